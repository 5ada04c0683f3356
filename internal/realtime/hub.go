// Package realtime fans committed chat events out to live subscribers.
package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/suPer8Hu/subspace-chat/internal/chat"
)

const defaultBuffer = 16

type subscriber struct {
	ch chan chat.Event
}

// Hub delivers events to the subscribers of each conversation. A subscriber
// that falls behind loses events rather than stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe returns the event stream of one conversation. cancel closes the
// stream and may be called more than once.
func (h *Hub) Subscribe(conversationID string) (<-chan chat.Event, func()) {
	s := &subscriber{ch: make(chan chat.Event, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[conversationID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[conversationID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, conversationID)
				}
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish implements chat.EventSink.
func (h *Hub) Publish(_ context.Context, ev chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.ConversationID] {
		select {
		case s.ch <- ev:
		default:
			log.Printf("[Realtime] subscriber of %s is full, dropped %s", ev.ConversationID, ev.Type)
		}
	}
}

func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}
