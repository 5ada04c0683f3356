package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
)

// EventBus relays chat events between server instances through a fanout
// exchange. Every instance consumes from its own exclusive queue.
type EventBus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewEventBus(url, exchange string) (*EventBus, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &EventBus{conn: conn, ch: ch, exchange: exchange}, nil
}

func (b *EventBus) Close() error {
	_ = b.ch.Close()
	return b.conn.Close()
}

// Publish implements chat.EventSink. Failures are logged; the write that
// produced the event has already been committed.
func (b *EventBus) Publish(ctx context.Context, ev chat.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EventBus] marshal %s: %v", ev.Type, err)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.ch.PublishWithContext(cctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	}); err != nil {
		log.Printf("[EventBus] publish %s for %s: %v", ev.Type, ev.ConversationID, err)
	}
}

// Run forwards every event on the exchange to sink until ctx ends.
func (b *EventBus) Run(ctx context.Context, sink chat.EventSink) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declaring event queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("binding event queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("event delivery channel closed")
			}
			var ev chat.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				log.Printf("[EventBus] bad event: %v", err)
				continue
			}
			sink.Publish(ctx, ev)
		}
	}
}
