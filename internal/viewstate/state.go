package viewstate

import (
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/session"
)

const PlaceholderText = "Thinking..."

// Entry is one message as shown in the thread. Buffered entries carry a
// local id until the backend confirms them.
type Entry struct {
	ID             string
	ConversationID string
	Author         chat.Author
	Content        string
	CreatedAt      time.Time

	// PersistedID is the backend id once the write succeeded.
	PersistedID string
	Placeholder bool
	Local       bool
}

func (e Entry) IsAssistant() bool { return e.Author == chat.AuthorAssistant }

func entryFromMessage(m chat.Message) Entry {
	return Entry{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Author:         m.Author,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		PersistedID:    m.ID,
	}
}

// State is a copy of the controller's view-state.
type State struct {
	Session       *session.Session
	Conversations []chat.Conversation
	ActiveID      string
	Active        *chat.Conversation
	Draft         string
	Typing        bool
	Thread        []chat.Message
	Buffer        []Entry
	ShowProfile   bool
	ShowSettings  bool
}

// Display is the persisted thread followed by the local buffer.
func (s State) Display() []Entry {
	out := make([]Entry, 0, len(s.Thread)+len(s.Buffer))
	for _, m := range s.Thread {
		out = append(out, entryFromMessage(m))
	}
	return append(out, s.Buffer...)
}

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a toast for the presentation layer.
type Notice struct {
	Level Level
	Kind  common.Kind
	Text  string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
