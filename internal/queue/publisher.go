package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// maxDialTimeout caps the connect and AMQP handshake of one publish when
// the caller's context carries no earlier deadline.
const maxDialTimeout = 3 * time.Second

// Publisher sends events to RabbitMQ. It dials per publish: event volume
// is a handful per request at most and a broker restart never leaves a
// dead connection behind.
type Publisher struct {
	url         string
	log         *zap.Logger
	dialTimeout time.Duration
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log, dialTimeout: maxDialTimeout}
}

// dial connects within the tighter of ctx's deadline and p.dialTimeout.
// amqp.DefaultDial applies the timeout to the TCP connect and to the
// handshake, and clears it once the connection is open.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return nil, context.DeadlineExceeded
		}
		timeout = min(timeout, left)
	}
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publish marshals event to JSON and sends it as a persistent message to
// the durable queue queueName on the default exchange.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	conn, err := p.dial(ctx) // bounded by the request deadline
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent. Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         queueName,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	p.log.Debug("event published", zap.String("queue", queueName), zap.String("message_id", msg.MessageId))
	return nil
}

// Nop drops every event. It is used when RABBITMQ_URL is empty.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
