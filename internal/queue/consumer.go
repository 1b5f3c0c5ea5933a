package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NotificationFile is the file, inside the consumer's directory, that
// receives one line per event.
const NotificationFile = "notifications.log"

// Consumer listens on every event queue and appends a human readable line
// per message to <dir>/notifications.log. For password resets that line is
// how the verification code reaches the farmer.
type Consumer struct {
	url string
	dir string
	log *zap.Logger
	mu  sync.Mutex // serializes writes from the per-queue goroutines
	now func() time.Time
}

func NewConsumer(url, dir string, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, dir: dir, log: log, now: time.Now}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff (capped at 30s) whenever the
// connection or a delivery channel drops. It returns nil once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.log.Info("notification consumer: connected", zap.Strings("queues", Queues))
		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("notification consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("notification consumer: set QoS failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range Queues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		g.Go(func() error { return c.drain(gctx, name, msgs) })
	}
	return g.Wait()
}

func (c *Consumer) drain(ctx context.Context, queueName string, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(queueName, d.Body); err != nil {
				c.log.Error("notification consumer: handle message failed",
					zap.String("queue", queueName), zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message from queueName and appends its notification
// line.
func (c *Consumer) Handle(queueName string, body []byte) error {
	line, err := c.format(queueName, body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, NotificationFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write notification log: %w", err)
	}
	return nil
}

func (c *Consumer) format(queueName string, body []byte) (string, error) {
	ts := c.now().UTC().Format(time.RFC3339)
	switch queueName {
	case QueueObjectionSubmitted:
		var ev ObjectionSubmittedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Objection submitted | objection_id=%d | farmer_id=%d | code=%s | transaction=%q\n",
			ts, ev.ObjectionID, ev.FarmerID, ev.Code, ev.TransactionNumber), nil

	case QueueObjectionStatusChanged:
		var ev ObjectionStatusChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Objection %s | objection_id=%d | farmer_id=%d | code=%s | from=%s\n",
			ts, ev.To, ev.ObjectionID, ev.FarmerID, ev.Code, ev.From), nil

	case QueuePasswordReset:
		var ev PasswordResetRequestedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		if ev.Code == "" {
			return "", errors.New("password reset event without code")
		}
		return fmt.Sprintf("[%s] Password reset code | farmer_id=%d | national_id=%s | phone=%s | code=%s | expires_at=%s\n",
			ts, ev.FarmerID, ev.NationalID, ev.Phone, ev.Code, ev.ExpiresAt), nil
	}
	return "", fmt.Errorf("unknown queue %q", queueName)
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
