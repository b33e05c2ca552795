package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

var (
	ErrNotConnected = errors.New("rabbit provider is not connected")
	ErrNotConfirmed = errors.New("message was not confirmed by broker")
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Queue    string
}

// Message is a rendered reminder queued for delivery.
type Message struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

const confirmBuffer = 64

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Provider struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	queue      amqp.Queue
	channel    *amqp.Channel
	pub        publisher
	confirms   chan amqp.Confirmation
	published  uint64
	connString string
	queueName  string
}

func New(config Config) *Provider {
	return &Provider{
		connString: fmt.Sprintf(
			"amqp://%s:%s@%s:%d/",
			config.User,
			config.Password,
			config.Host,
			config.Port,
		),
		queueName: config.Queue,
	}
}

// Connect opens the channel and declares a durable queue.
// With confirm set the channel is switched to publisher confirm mode.
func (r *Provider) Connect(confirm bool) error {
	var err error
	r.conn, err = amqp.Dial(r.connString)
	if err != nil {
		return err
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		return err
	}
	r.queue, err = r.channel.QueueDeclare(
		r.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	if confirm {
		if err := r.channel.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
		r.confirms = r.channel.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
		r.published = 0
	}
	r.pub = r.channel
	return nil
}

func (r *Provider) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

// Publish sends body to the queue and, in confirm mode, waits for the broker ack.
// Delivery tags count publishes on the channel, so confirmations left over from
// earlier timed out calls are skipped.
func (r *Provider) Publish(ctx context.Context, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pub == nil {
		return ErrNotConnected
	}

	err := r.pub.Publish(
		"",           // exchange
		r.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return err
	}
	if r.confirms == nil {
		return nil
	}
	r.published++
	return awaitConfirm(ctx, r.confirms, r.published)
}

func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotConfirmed, ctx.Err())
		case c, ok := <-confirms:
			if !ok {
				return fmt.Errorf("%w: confirm channel closed", ErrNotConfirmed)
			}
			if c.DeliveryTag < tag {
				continue
			}
			if c.DeliveryTag > tag || !c.Ack {
				return ErrNotConfirmed
			}
			return nil
		}
	}
}

type MessageProcess = func(msg amqp.Delivery) error

// Consume hands every delivery to process. Failed messages are requeued.
func (r *Provider) Consume(ctx context.Context, process MessageProcess) error {
	if r.channel == nil {
		return ErrNotConnected
	}
	msgs, err := r.channel.Consume(
		r.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := process(m); err != nil {
				m.Nack(false, true)
				continue
			}
			m.Ack(false)
		}
	}
}
