package viewstate

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/subspace-chat/internal/bot"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/db"
	"github.com/suPer8Hu/subspace-chat/internal/session"
)

const testUser uint64 = 1

// countingBackend records every backend call and can fail selected writes.
type countingBackend struct {
	inner Backend

	mu        sync.Mutex
	calls     []string
	createErr error
	// failMessage fails CreateMessage for the given author.
	failMessage chat.Author
}

func (b *countingBackend) record(name string) {
	b.mu.Lock()
	b.calls = append(b.calls, name)
	b.mu.Unlock()
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *countingBackend) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	b.record("list")
	return b.inner.ListConversations(ctx)
}

func (b *countingBackend) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	b.record("get")
	return b.inner.GetConversation(ctx, id)
}

func (b *countingBackend) CreateConversation(ctx context.Context, in chat.CreateConversationInput) (*chat.Conversation, error) {
	b.record("create")
	if b.createErr != nil {
		return nil, b.createErr
	}
	return b.inner.CreateConversation(ctx, in)
}

func (b *countingBackend) UpdateConversation(ctx context.Context, id string, in chat.UpdateConversationInput) (*chat.Conversation, error) {
	b.record("update")
	return b.inner.UpdateConversation(ctx, id, in)
}

func (b *countingBackend) DeleteConversation(ctx context.Context, id string) error {
	b.record("delete")
	return b.inner.DeleteConversation(ctx, id)
}

func (b *countingBackend) CreateMessage(ctx context.Context, in chat.CreateMessageInput) (*chat.Message, error) {
	b.record("message")
	if b.failMessage != "" && b.failMessage == in.Author {
		return nil, common.Network(errors.New("connection reset"))
	}
	return b.inner.CreateMessage(ctx, in)
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) Notify(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *noticeLog) errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, n := range l.notices {
		if n.Level == LevelError {
			out = append(out, n.Text)
		}
	}
	return out
}

type harness struct {
	svc      *chat.Service
	backend  *countingBackend
	notices  *noticeLog
	sessions *session.Broadcaster
	ctl      *Controller
}

func newHarness(t *testing.T, responder bot.Responder) *harness {
	t.Helper()
	gdb, err := db.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&chat.Conversation{}, &chat.Message{}))

	svc := chat.NewService(chat.NewRepo(gdb), nil)
	h := &harness{
		svc:      svc,
		backend:  &countingBackend{inner: svc.ForUser(testUser)},
		notices:  &noticeLog{},
		sessions: session.NewBroadcaster(),
	}
	h.sessions.Publish(session.SignedIn, &session.Session{UserID: testUser, Email: "a@b.co"})
	if responder == nil {
		responder = bot.NewCanned(bot.NewEngine(rand.New(rand.NewSource(7))))
	}
	h.ctl = New(h.backend, h.sessions, responder, h.notices, Options{})
	t.Cleanup(h.ctl.Close)
	return h
}

func (h *harness) stored(t *testing.T, id string) *chat.Conversation {
	t.Helper()
	conv, err := h.svc.GetConversation(context.Background(), testUser, id)
	require.NoError(t, err)
	return conv
}

var greetings = []string{
	"Hello! How can I help you today?",
	"Hi there! What's on your mind?",
	"Greetings! How may I assist you?",
}

func TestCreateConversation_BecomesActive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	st := h.ctl.Snapshot()
	assert.Equal(t, conv.ID, st.ActiveID)
	assert.Empty(t, st.Buffer)
	require.Len(t, st.Conversations, 1)
	assert.Equal(t, conv.ID, st.Conversations[0].ID)
	assert.True(t, strings.HasPrefix(conv.Title, "New Chat "))
	assert.False(t, conv.IsPublic)
	assert.Nil(t, conv.ShareToken)
}

func TestCreateConversation_FailureNotices(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{common.Permission("row level security"), "You don't have permission to create chats. Please sign out and sign in again."},
		{common.Network(errors.New("dial tcp")), "Network error. Please check your connection and try again."},
		{errors.New("boom"), "Failed to create chats: boom"},
	}
	for _, tc := range cases {
		h := newHarness(t, nil)
		h.backend.createErr = tc.err

		_, err := h.ctl.CreateConversation(context.Background())
		require.Error(t, err)
		assert.Equal(t, []string{tc.want}, h.notices.errors())
		assert.Empty(t, h.ctl.Snapshot().ActiveID)
	}
}

func TestSendMessage_NoOps(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// nothing active
	require.NoError(t, h.ctl.SendMessage(ctx, "hello"))
	assert.Zero(t, h.backend.count())

	_, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	h.ctl.SetDraft("   ")
	before := h.backend.count()
	snap := h.ctl.Snapshot()

	require.NoError(t, h.ctl.SendMessage(ctx, "  \t\n "))
	assert.Equal(t, before, h.backend.count())
	assert.Equal(t, snap, h.ctl.Snapshot())
}

func TestSendMessage_TooLongRejectedBeforeNetwork(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	before := h.backend.count()

	err = h.ctl.SendMessage(ctx, strings.Repeat("a", chat.MaxMessageLength+1))
	assert.Equal(t, common.KindValidation, common.KindOf(err))
	assert.Equal(t, "content", common.FieldOf(err))
	assert.Equal(t, before, h.backend.count())
	assert.Empty(t, h.ctl.Snapshot().Buffer)
}

func TestScenario_Hello(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	h.ctl.SetDraft("hello")

	before := time.Now().Truncate(time.Second)
	require.NoError(t, h.ctl.SendMessage(ctx, "hello"))

	stored := h.stored(t, conv.ID)
	assert.Equal(t, 2, stored.MessageCount)
	require.NotNil(t, stored.LastMessageAt)
	assert.False(t, stored.LastMessageAt.Before(before))

	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "hello", stored.Messages[0].Content)
	assert.Equal(t, chat.AuthorUser, stored.Messages[0].Author)
	assert.Equal(t, 1, stored.Messages[0].Position)
	assert.Equal(t, chat.AuthorAssistant, stored.Messages[1].Author)
	assert.Equal(t, 2, stored.Messages[1].Position)
	assert.Contains(t, greetings, stored.Messages[1].Content)

	st := h.ctl.Snapshot()
	assert.False(t, st.Typing)
	assert.Empty(t, st.Draft)
	assert.Empty(t, st.Buffer, "re-fetch reconciles the buffer")
	assert.Len(t, st.Display(), 2)
	assert.Empty(t, h.notices.errors())
}

func TestScenario_NoKeywordEmptyHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	require.NoError(t, h.ctl.SendMessage(ctx, "tell me about X"))

	stored := h.stored(t, conv.ID)
	require.Len(t, stored.Messages, 2)
	reply := stored.Messages[1].Content
	assert.Contains(t, reply, "X")
	assert.Contains(t, reply, `"tell me about X"`)
	assert.NotContains(t, reply, "Based on our conversation")
	assert.NotContains(t, reply, "Continuing our discussion")
}

func TestSendMessage_CountGrowsByTwo(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	for i, want := range []int{2, 4, 6} {
		require.NoError(t, h.ctl.SendMessage(ctx, "tell me about round "+string(rune('A'+i))))
		assert.Equal(t, want, h.stored(t, conv.ID).MessageCount)
	}

	stored := h.stored(t, conv.ID)
	for i, m := range stored.Messages {
		assert.Equal(t, i+1, m.Position)
	}
	// the third reply had history, so it is contextual
	assert.True(t, strings.Contains(stored.Messages[5].Content, "..."))
}

func TestDeleteConversation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	second, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, h.ctl.Snapshot().ActiveID)

	// declined prompt does nothing
	before := h.backend.count()
	require.NoError(t, h.ctl.DeleteConversation(ctx, second.ID, func() bool { return false }))
	assert.Equal(t, before, h.backend.count())

	// deleting a non-active conversation keeps the selection
	require.NoError(t, h.ctl.DeleteConversation(ctx, first.ID, func() bool { return true }))
	assert.Equal(t, second.ID, h.ctl.Snapshot().ActiveID)

	// deleting the active one clears it and the list no longer has it
	require.NoError(t, h.ctl.DeleteConversation(ctx, second.ID, nil))
	st := h.ctl.Snapshot()
	assert.Empty(t, st.ActiveID)
	assert.Empty(t, st.Conversations)
}

func TestDeleteConversation_FailureStillRefetches(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	err = h.ctl.DeleteConversation(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
	assert.Equal(t, []string{"Failed to delete chat. Please try again."}, h.notices.errors())
	assert.Equal(t, conv.ID, h.ctl.Snapshot().ActiveID)

	h.backend.mu.Lock()
	last := h.backend.calls[len(h.backend.calls)-1]
	h.backend.mu.Unlock()
	assert.Equal(t, "list", last)
}

// gateResponder blocks every reply until release is closed.
type gateResponder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateResponder) Respond(ctx context.Context, input string, history []bot.Turn) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return "gated reply", nil
}

func TestSendMessage_DoubleSendPersistsOnce(t *testing.T) {
	gate := &gateResponder{started: make(chan struct{}, 2), release: make(chan struct{})}
	h := newHarness(t, gate)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.ctl.SendMessage(ctx, "first") }()
	<-gate.started

	st := h.ctl.Snapshot()
	assert.True(t, st.Typing)
	require.Len(t, st.Buffer, 2)
	assert.True(t, st.Buffer[1].Placeholder)
	assert.Equal(t, PlaceholderText, st.Buffer[1].Content)

	before := h.backend.count()
	require.NoError(t, h.ctl.SendMessage(ctx, "second"))
	assert.Equal(t, before, h.backend.count())

	close(gate.release)
	require.NoError(t, <-done)

	stored := h.stored(t, conv.ID)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "first", stored.Messages[0].Content)
	assert.Equal(t, "gated reply", stored.Messages[1].Content)
	assert.Equal(t, 2, stored.MessageCount)
	assert.False(t, h.ctl.Snapshot().Typing)
}

func TestSendMessage_OtherConversationNotBlocked(t *testing.T) {
	gate := &gateResponder{started: make(chan struct{}, 2), release: make(chan struct{})}
	h := newHarness(t, gate)
	ctx := context.Background()
	first, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() { done <- h.ctl.SendMessage(ctx, "into first") }()
	<-gate.started

	second, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.ctl.Snapshot().Buffer, "switching clears the buffer")

	go func() { done <- h.ctl.SendMessage(ctx, "into second") }()
	<-gate.started

	close(gate.release)
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	assert.Len(t, h.stored(t, first.ID).Messages, 2)
	assert.Len(t, h.stored(t, second.ID).Messages, 2)
}

func TestSendMessage_FailureRollsBackUnconfirmed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	h.backend.failMessage = chat.AuthorAssistant

	err = h.ctl.SendMessage(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, common.KindNetwork, common.KindOf(err))
	assert.Equal(t, []string{"Failed to send message. Please try again."}, h.notices.errors())

	st := h.ctl.Snapshot()
	assert.False(t, st.Typing)
	// the user message reached the backend so it stays; the reply did not
	require.Len(t, st.Buffer, 1)
	assert.Equal(t, "hello", st.Buffer[0].Content)
	assert.NotEmpty(t, st.Buffer[0].PersistedID)

	// no compensation on the backend
	stored := h.stored(t, conv.ID)
	assert.Len(t, stored.Messages, 1)
	assert.Equal(t, 0, stored.MessageCount)

	// a re-fetch reconciles the confirmed entry away
	require.NoError(t, h.ctl.Refresh(ctx))
	st = h.ctl.Snapshot()
	assert.Empty(t, st.Buffer)
	assert.Len(t, st.Display(), 1)
}

func TestSendMessage_UserWriteFailureLeavesNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	h.backend.failMessage = chat.AuthorUser

	require.Error(t, h.ctl.SendMessage(ctx, "hello"))
	assert.Empty(t, h.ctl.Snapshot().Buffer)
	assert.Len(t, h.notices.errors(), 1)
}

func TestSignOutResetsState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)
	h.ctl.SetDraft("unsent")
	h.ctl.ToggleProfile()
	require.NotNil(t, h.ctl.Snapshot().Session)

	h.sessions.Publish(session.SignedOut, nil)

	st := h.ctl.Snapshot()
	assert.Nil(t, st.Session)
	assert.Empty(t, st.ActiveID)
	assert.Empty(t, st.Draft)
	assert.Empty(t, st.Conversations)
	assert.False(t, st.ShowProfile)
}

func TestStartConversation_TitledFromMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	conv, err := h.ctl.StartConversation(ctx, "Explain how quantum computing differs from classical computing")
	require.NoError(t, err)
	assert.Equal(t, "Explain how quantum computing", conv.Title)
	assert.Equal(t, 2, h.stored(t, conv.ID).MessageCount)
}

func TestRenameAndShare(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	err = h.ctl.RenameConversation(ctx, conv.ID, " ")
	assert.Equal(t, "title", common.FieldOf(err))

	require.NoError(t, h.ctl.RenameConversation(ctx, conv.ID, "Trip planning"))
	assert.Equal(t, "Trip planning", h.ctl.Snapshot().Conversations[0].Title)
	assert.Equal(t, "Trip planning", h.ctl.Snapshot().Active.Title)

	shared, err := h.ctl.SetVisibility(ctx, conv.ID, true)
	require.NoError(t, err)
	require.NotNil(t, shared.ShareToken)
	assert.True(t, h.ctl.Snapshot().Active.IsPublic)
}

func TestSelectConversation_MissingClearsSelection(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ctl.SelectConversation(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
	assert.Empty(t, h.ctl.Snapshot().ActiveID)
	assert.Equal(t, []string{"conversation not found"}, h.notices.errors())
}

func TestHandleEvent_RemoteDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteConversation(ctx, testUser, conv.ID))
	h.ctl.HandleEvent(ctx, chat.Event{Type: chat.EventConversationDeleted, ConversationID: conv.ID})

	st := h.ctl.Snapshot()
	assert.Empty(t, st.ActiveID)
	assert.Empty(t, st.Conversations)
}

type fixedResponder string

func (r fixedResponder) Respond(context.Context, string, []bot.Turn) (string, error) {
	return string(r), nil
}

func TestSendMessage_TagsFencedCode(t *testing.T) {
	h := newHarness(t, fixedResponder("Try this:\n```go\nfmt.Println(\"hi\")\n```"))
	ctx := context.Background()
	conv, err := h.ctl.CreateConversation(ctx)
	require.NoError(t, err)

	require.NoError(t, h.ctl.SendMessage(ctx, "how do I print?"))

	msgs := h.stored(t, conv.ID).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.ContentText, msgs[0].ContentType)
	assert.Equal(t, chat.ContentCode, msgs[1].ContentType)
}
