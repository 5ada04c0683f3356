package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Topology names the queues that carry mail jobs: the work queue, a retry
// queue whose expired messages flow back to work, and a dead-letter queue
// for rejected work.
type Topology struct {
	Work  string
	Retry string
	Dead  string
}

func JobTopology(queue string) Topology {
	return Topology{Work: queue, Retry: queue + ".retry", Dead: queue + ".dlq"}
}

func deadLetterTo(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// Declare creates the queues. Server and worker both declare so either
// may start first.
func (t Topology) Declare(ch *amqp.Channel) error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{t.Dead, nil},
		{t.Retry, deadLetterTo(t.Work)},
		{t.Work, deadLetterTo(t.Dead)},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare %s: %w", q.name, err)
		}
	}
	return nil
}

type jobMessage struct {
	JobID string `json:"job_id"`
}

// DecodeJob returns the mail job id carried by a delivery body.
func DecodeJob(body []byte) (string, error) {
	var m jobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.JobID == "" {
		return "", errors.New("job_id missing")
	}
	return m.JobID, nil
}

// Publisher puts mail job ids on the work or retry queue.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	topo Topology
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// NewPublisher opens its own connection and declares the job queues.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	topo := JobTopology(queue)
	if err := topo.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, topo: topo}, nil
}

// NewPublisherOnChannel publishes on a channel owned by the caller.
func NewPublisherOnChannel(ch *amqp.Channel, topo Topology) *Publisher {
	return &Publisher{ch: ch, topo: topo}
}

// Close releases the connection when the publisher owns it.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	_ = p.ch.Close()
	return p.conn.Close()
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	return p.publish(ctx, p.topo.Work, jobID, "")
}

// PublishRetry parks the job on the retry queue until delay passes.
func (p *Publisher) PublishRetry(ctx context.Context, jobID string, delay time.Duration) error {
	return p.publish(ctx, p.topo.Retry, jobID, strconv.FormatInt(delay.Milliseconds(), 10))
}

func (p *Publisher) publish(ctx context.Context, queue, jobID, expiration string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Expiration:   expiration,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish job %s to %s: %w", jobID, queue, err)
	}
	return nil
}
