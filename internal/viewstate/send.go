package viewstate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/subspace-chat/internal/bot"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/markdown"
)

// sendOp is one SendMessage call.
type sendOp struct {
	epoch   uint64
	convID  string
	text    string
	history []bot.Turn
	// base is the number of messages displayed before the send.
	base int
	// count is the conversation's stored message count before the send.
	count int
	// local ids of buffer entries this send added
	local []string
}

// SendMessage sends text into the active conversation and appends the reply.
//
// It is a no-op when text is blank, nothing is active, or a send into the
// active conversation is still running. Over-long text is rejected before
// any backend call. On failure the buffer loses the entries whose writes
// never succeeded and a single notice is raised; writes that did succeed
// are left in place.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	convID := c.activeID
	if convID == "" || c.inFlight[convID] {
		c.mu.Unlock()
		return nil
	}
	if err := chat.ValidateMessage(text); err != nil {
		c.mu.Unlock()
		return err
	}

	flight := c.inFlight
	flight[convID] = true
	op := &sendOp{epoch: c.epoch, convID: convID, text: text}
	for _, e := range c.displayLocked() {
		if e.Placeholder {
			continue
		}
		op.history = append(op.history, bot.Turn{Author: string(e.Author), Content: e.Content})
	}
	op.base = len(op.history)
	op.count = op.base
	if c.active != nil && c.active.ID == convID {
		op.count = c.active.MessageCount
	}

	c.draft = ""
	userEntry := Entry{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Author:         chat.AuthorUser,
		Content:        text,
		CreatedAt:      c.now(),
		Local:          true,
	}
	c.buffer = append(c.buffer, userEntry)
	op.local = append(op.local, userEntry.ID)
	c.mu.Unlock()

	err := c.runSend(ctx, op, userEntry.ID)

	c.mu.Lock()
	delete(flight, convID)
	if err != nil && c.epoch == op.epoch {
		c.rollbackLocked(op.local)
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("[ViewState] send message to %s: %v", convID, err)
		c.notify(LevelError, err, msgSendFailed)
		return err
	}

	c.refetchList(ctx)
	c.refetchActive(ctx)
	return nil
}

func (c *Controller) runSend(ctx context.Context, op *sendOp, userEntryID string) error {
	userMsg, err := c.backend.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: op.convID,
		Content:        op.text,
		Author:         chat.AuthorUser,
		Position:       op.base + 1,
		ContentType:    contentTypeOf(op.text),
	})
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	placeholderID := uuid.NewString()
	c.mu.Lock()
	if c.epoch == op.epoch {
		c.confirmLocked(userEntryID, userMsg.ID)
		if c.activeID == op.convID {
			c.buffer = append(c.buffer, Entry{
				ID:             placeholderID,
				ConversationID: op.convID,
				Author:         chat.AuthorAssistant,
				Content:        PlaceholderText,
				CreatedAt:      c.now(),
				Placeholder:    true,
				Local:          true,
			})
			op.local = append(op.local, placeholderID)
		}
	}
	c.mu.Unlock()

	if err := c.wait(ctx); err != nil {
		return err
	}
	reply, err := c.responder.Respond(ctx, op.text, op.history)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	c.mu.Lock()
	for i := range c.buffer {
		if c.buffer[i].ID == placeholderID {
			c.buffer[i].Content = reply
			c.buffer[i].Placeholder = false
			c.buffer[i].CreatedAt = c.now()
		}
	}
	c.mu.Unlock()

	botMsg, err := c.backend.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: op.convID,
		Content:        reply,
		Author:         chat.AuthorAssistant,
		Position:       op.base + 2,
		ContentType:    contentTypeOf(reply),
	})
	if err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}
	c.mu.Lock()
	if c.epoch == op.epoch {
		c.confirmLocked(placeholderID, botMsg.ID)
	}
	c.mu.Unlock()

	at := c.now()
	count := op.count + 2
	if _, err := c.backend.UpdateConversation(ctx, op.convID, chat.UpdateConversationInput{
		LastMessageAt: &at,
		MessageCount:  &count,
	}); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (c *Controller) displayLocked() []Entry {
	out := make([]Entry, 0, len(c.thread)+len(c.buffer))
	for _, m := range c.thread {
		out = append(out, entryFromMessage(m))
	}
	return append(out, c.buffer...)
}

func (c *Controller) confirmLocked(localID, persistedID string) {
	for i := range c.buffer {
		if c.buffer[i].ID == localID {
			c.buffer[i].PersistedID = persistedID
			return
		}
	}
}

// rollbackLocked removes the given buffer entries unless the backend has them.
func (c *Controller) rollbackLocked(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := c.buffer[:0]
	for _, e := range c.buffer {
		if drop[e.ID] && e.PersistedID == "" {
			continue
		}
		kept = append(kept, e)
	}
	c.buffer = kept
}

func (c *Controller) wait(ctx context.Context) error {
	d := c.delayMin
	if c.delayMax > c.delayMin {
		c.mu.Lock()
		d += time.Duration(c.rnd.Int63n(int64(c.delayMax - c.delayMin)))
		c.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return common.Network(ctx.Err())
	case <-t.C:
		return nil
	}
}

func contentTypeOf(s string) chat.ContentType {
	if markdown.HasCode(s) {
		return chat.ContentCode
	}
	return chat.ContentText
}
