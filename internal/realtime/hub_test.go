package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
)

func TestHub_DeliversToConversationSubscribers(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("conv-a")
	defer cancelA()
	b, cancelB := h.Subscribe("conv-b")
	defer cancelB()

	h.Publish(context.Background(), chat.Event{Type: chat.EventMessageCreated, ConversationID: "conv-a"})

	select {
	case ev := <-a:
		assert.Equal(t, chat.EventMessageCreated, ev.Type)
	default:
		t.Fatal("expected event for conv-a")
	}
	select {
	case ev := <-b:
		t.Fatalf("conv-b got %v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("c")
	defer cancel()

	for i := 0; i < 3; i++ {
		h.Publish(context.Background(), chat.Event{Type: chat.EventMessageCreated, ConversationID: "c"})
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("expected the overflow to be dropped")
	default:
	}
}

func TestHub_CancelClosesAndForgets(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe("c")
	require.Equal(t, 1, h.Subscribers("c"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("c"))

	// publishing with nobody listening is fine
	h.Publish(context.Background(), chat.Event{ConversationID: "c"})
}
