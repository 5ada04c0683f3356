// Package viewstate owns the client-side view of the chat: the active
// conversation, the draft, the optimistic message buffer and the send flow.
package viewstate

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/bot"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/session"
)

// Backend is the data backend as seen by one signed-in user.
type Backend interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	CreateConversation(ctx context.Context, in chat.CreateConversationInput) (*chat.Conversation, error)
	UpdateConversation(ctx context.Context, id string, in chat.UpdateConversationInput) (*chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, in chat.CreateMessageInput) (*chat.Message, error)
}

type Options struct {
	// The reply is generated after a random delay in [DelayMin, DelayMax].
	DelayMin time.Duration
	DelayMax time.Duration
	Rand     *rand.Rand
	Now      func() time.Time
}

const (
	msgSendFailed   = "Failed to send message. Please try again."
	msgDeleteFailed = "Failed to delete chat. Please try again."
	msgNetwork      = "Network error. Please check your connection and try again."
)

type Controller struct {
	backend   Backend
	responder bot.Responder
	notifier  Notifier
	delayMin  time.Duration
	delayMax  time.Duration
	now       func() time.Time

	unsubscribe func()

	mu  sync.Mutex
	rnd *rand.Rand
	// epoch changes on sign-out; results of calls started earlier are dropped.
	epoch        uint64
	sess         *session.Session
	convs        []chat.Conversation
	activeID     string
	active       *chat.Conversation
	thread       []chat.Message
	buffer       []Entry
	draft        string
	inFlight     map[string]bool
	showProfile  bool
	showSettings bool
}

func New(backend Backend, provider session.Provider, responder bot.Responder, notifier Notifier, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if responder == nil {
		responder = bot.NewCanned(bot.NewEngine(rand.New(rand.NewSource(opts.Rand.Int63()))))
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	c := &Controller{
		backend:   backend,
		responder: responder,
		notifier:  notifier,
		delayMin:  opts.DelayMin,
		delayMax:  opts.DelayMax,
		now:       opts.Now,
		rnd:       opts.Rand,
		inFlight:  make(map[string]bool),
	}
	if provider != nil {
		c.sess = provider.Current()
		c.unsubscribe = provider.Subscribe(c.onSession)
	}
	return c
}

// Close stops following the session stream.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Controller) onSession(ev session.Event) {
	if ev.Type == session.SignedOut {
		c.Reset()
		return
	}
	c.mu.Lock()
	c.sess = ev.Session
	c.mu.Unlock()
}

// Reset drops all view-state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.sess = nil
	c.convs = nil
	c.activeID = ""
	c.active = nil
	c.thread = nil
	c.buffer = nil
	c.draft = ""
	c.inFlight = make(map[string]bool)
	c.showProfile = false
	c.showSettings = false
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Conversations: append([]chat.Conversation(nil), c.convs...),
		ActiveID:      c.activeID,
		Draft:         c.draft,
		Typing:        c.activeID != "" && c.inFlight[c.activeID],
		Thread:        append([]chat.Message(nil), c.thread...),
		Buffer:        append([]Entry(nil), c.buffer...),
		ShowProfile:   c.showProfile,
		ShowSettings:  c.showSettings,
	}
	if c.sess != nil {
		cp := *c.sess
		s.Session = &cp
	}
	if c.active != nil {
		cp := *c.active
		cp.Messages = nil
		s.Active = &cp
	}
	return s
}

func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) ToggleProfile() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showProfile = !c.showProfile
	return c.showProfile
}

func (c *Controller) ToggleSettings() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showSettings = !c.showSettings
	return c.showSettings
}

func (c *Controller) notify(level Level, err error, text string) {
	c.notifier.Notify(Notice{Level: level, Kind: common.KindOf(err), Text: text})
}

// failureText picks the notice for a failed backend call.
func failureText(action string, err error) string {
	switch common.KindOf(err) {
	case common.KindPermission:
		return fmt.Sprintf("You don't have permission to %s. Please sign out and sign in again.", action)
	case common.KindNetwork:
		return msgNetwork
	case common.KindValidation, common.KindNotFound, common.KindConflict:
		return common.MessageOf(err)
	}
	return fmt.Sprintf("Failed to %s: %s", action, common.MessageOf(err))
}

// setActiveLocked switches the thread and clears the buffer.
func (c *Controller) setActiveLocked(id string, conv *chat.Conversation) {
	if c.activeID != id {
		c.buffer = nil
	}
	c.activeID = id
	c.active = conv
	c.thread = nil
	if conv != nil {
		c.thread = conv.Messages
	}
}

func (c *Controller) fetchList(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	convs, err := c.backend.ListConversations(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.convs = convs
	}
	return nil
}

func (c *Controller) fetchThread(ctx context.Context, id string) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	conv, err := c.backend.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.activeID != id {
		return nil
	}
	c.active = conv
	c.thread = conv.Messages
	c.reconcileLocked()
	return nil
}

// reconcileLocked drops buffered entries the fetched thread already contains.
func (c *Controller) reconcileLocked() {
	persisted := make(map[string]bool, len(c.thread))
	for _, m := range c.thread {
		persisted[m.ID] = true
	}
	kept := c.buffer[:0]
	for _, e := range c.buffer {
		if e.PersistedID != "" && persisted[e.PersistedID] {
			continue
		}
		kept = append(kept, e)
	}
	c.buffer = kept
}

// refetchList is the re-fetch that follows every write. Failures only notify.
func (c *Controller) refetchList(ctx context.Context) {
	if err := c.fetchList(ctx); err != nil {
		log.Printf("[ViewState] list conversations: %v", err)
		c.notify(LevelError, err, failureText("load chats", err))
	}
}

func (c *Controller) refetchActive(ctx context.Context) {
	c.mu.Lock()
	id := c.activeID
	c.mu.Unlock()
	if id == "" {
		return
	}
	if err := c.fetchThread(ctx, id); err != nil {
		log.Printf("[ViewState] load conversation %s: %v", id, err)
		c.notify(LevelError, err, failureText("load chat", err))
	}
}

// Refresh re-fetches the conversation list and the active thread.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.fetchList(ctx); err != nil {
		c.notify(LevelError, err, failureText("load chats", err))
		return err
	}
	c.mu.Lock()
	id := c.activeID
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := c.fetchThread(ctx, id); err != nil {
		c.notify(LevelError, err, failureText("load chat", err))
		return err
	}
	return nil
}

// CreateConversation creates an empty private conversation and makes it active.
func (c *Controller) CreateConversation(ctx context.Context) (*chat.Conversation, error) {
	return c.createConversation(ctx, chat.DefaultTitle(c.now()))
}

func (c *Controller) createConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	conv, err := c.backend.CreateConversation(ctx, chat.CreateConversationInput{Title: title})
	if err != nil {
		log.Printf("[ViewState] create conversation: %v", err)
		c.notify(LevelError, err, failureText("create chats", err))
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.setActiveLocked(conv.ID, conv)
	}
	c.mu.Unlock()

	c.refetchList(ctx)
	return conv, nil
}

// StartConversation creates a conversation titled after text and sends text into it.
func (c *Controller) StartConversation(ctx context.Context, text string) (*chat.Conversation, error) {
	text = strings.TrimSpace(text)
	if err := chat.ValidateMessage(text); err != nil {
		return nil, err
	}
	conv, err := c.createConversation(ctx, chat.TitleFromMessage(text))
	if err != nil {
		return nil, err
	}
	if err := c.SendMessage(ctx, text); err != nil {
		return conv, err
	}
	return conv, nil
}

// SelectConversation makes id the active conversation and loads its thread.
// An empty id clears the selection.
func (c *Controller) SelectConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	c.setActiveLocked(id, nil)
	c.mu.Unlock()
	if id == "" {
		return nil
	}

	if err := c.fetchThread(ctx, id); err != nil {
		if common.KindOf(err) == common.KindNotFound {
			c.mu.Lock()
			if c.activeID == id {
				c.setActiveLocked("", nil)
			}
			c.mu.Unlock()
		}
		log.Printf("[ViewState] select conversation %s: %v", id, err)
		c.notify(LevelError, err, failureText("load chat", err))
		return err
	}
	return nil
}

// DeleteConversation deletes id and its messages once confirm agrees.
// A nil confirm counts as agreement.
func (c *Controller) DeleteConversation(ctx context.Context, id string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		return nil
	}
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	err := c.backend.DeleteConversation(ctx, id)
	if err != nil {
		log.Printf("[ViewState] delete conversation %s: %v", id, err)
		c.notify(LevelError, err, msgDeleteFailed)
	} else {
		c.mu.Lock()
		if c.epoch == epoch && c.activeID == id {
			c.setActiveLocked("", nil)
		}
		c.mu.Unlock()
	}

	c.refetchList(ctx)
	return err
}

func (c *Controller) RenameConversation(ctx context.Context, id, title string) error {
	if err := chat.ValidateTitle(title); err != nil {
		return err
	}
	t := strings.TrimSpace(title)
	if _, err := c.backend.UpdateConversation(ctx, id, chat.UpdateConversationInput{Title: &t}); err != nil {
		log.Printf("[ViewState] rename conversation %s: %v", id, err)
		c.notify(LevelError, err, failureText("rename chats", err))
		return err
	}
	c.notifier.Notify(Notice{Level: LevelInfo, Text: "Chat renamed"})
	c.refetchList(ctx)
	c.refetchActive(ctx)
	return nil
}

// SetVisibility makes a conversation public (shareable by token) or private.
func (c *Controller) SetVisibility(ctx context.Context, id string, public bool) (*chat.Conversation, error) {
	conv, err := c.backend.UpdateConversation(ctx, id, chat.UpdateConversationInput{IsPublic: &public})
	if err != nil {
		log.Printf("[ViewState] share conversation %s: %v", id, err)
		c.notify(LevelError, err, failureText("share chats", err))
		return nil, err
	}
	text := "Chat is now private"
	if public {
		text = "Chat is now public"
	}
	c.notifier.Notify(Notice{Level: LevelInfo, Text: text})
	c.refetchList(ctx)
	c.refetchActive(ctx)
	return conv, nil
}

// HandleEvent applies a pushed backend change by re-fetching what it touched.
func (c *Controller) HandleEvent(ctx context.Context, ev chat.Event) {
	c.mu.Lock()
	active := c.activeID
	if ev.Type == chat.EventConversationDeleted && active == ev.ConversationID {
		c.setActiveLocked("", nil)
		active = ""
	}
	c.mu.Unlock()

	switch ev.Type {
	case chat.EventConversationDeleted, chat.EventConversationUpdated:
		c.refetchList(ctx)
	}
	if active != "" && active == ev.ConversationID {
		c.refetchActive(ctx)
	}
}
