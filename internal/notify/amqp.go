package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const MailQueue = "send-mail"

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher enqueues notifications on a durable queue for the mailer
// worker to pick up. A closed channel or connection is re-dialed on the next
// publish.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    io.Closer
	channel amqpChannel
	queue   string
	dial    func() (amqpChannel, io.Closer, error)
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		queue: queue,
		dial: func() (amqpChannel, io.Closer, error) {
			return dialQueue(url, queue)
		},
	}

	err := p.reconnect()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func dialQueue(url, queue string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return ch, conn, nil
}

func (p *AMQPPublisher) Notify(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	// channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		err = p.reconnect()
		if err != nil {
			return fmt.Errorf("failed to publish to %s: %w", p.queue, err)
		}
	}

	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		rerr := p.reconnect()
		if rerr != nil {
			return fmt.Errorf("failed to publish to %s: %w", p.queue, errors.Join(err, rerr))
		}

		err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.queue, err)
	}

	return nil
}

// reconnect must be called with p.mu held, or before p is shared.
func (p *AMQPPublisher) reconnect() error {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.channel = nil, nil

	if p.dial == nil {
		return amqp.ErrClosed
	}

	ch, conn, err := p.dial()
	if err != nil {
		return err
	}

	p.conn, p.channel = conn, ch

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}

	err := p.conn.Close()
	p.conn, p.channel = nil, nil

	return err
}

// Consumer reads the mail queue and hands every message to a Notifier,
// reconnecting with backoff when the broker goes away.
type Consumer struct {
	url     string
	queue   string
	handler domain.Notifier
	logger  *slog.Logger
}

func NewConsumer(url, queue string, handler domain.Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		url:     url,
		queue:   queue,
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Error("failed to dial broker", "error", err, "retry_in", backoff)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}

			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second

		err = c.consume(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Error("consume loop ended, reconnecting", "error", err)
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer ch.Close()

	err = ch.Qos(10, 0, false)
	if err != nil {
		c.logger.Warn("failed to set QoS", "error", err)
	}

	_, err = ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range deliveries {
		c.process(ctx, d)
	}

	return errors.New("deliveries channel closed")
}

// process acks a delivered message once it is handled. Messages interrupted
// by shutdown go back on the queue, any other failure is dropped so a poison
// message cannot loop.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := c.handle(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("requeueing mail message interrupted by shutdown", "error", err)
		_ = d.Nack(false, true)
		return
	}

	c.logger.Error("failed to handle mail message", "error", err)
	_ = d.Nack(false, false)
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var n domain.Notification

	err := json.Unmarshal(body, &n)
	if err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if n.Recipient == "" {
		return errors.New("message has no recipient")
	}

	return c.handler.Notify(ctx, n)
}
