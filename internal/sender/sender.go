// Package sender delivers rendered reminders to a destination.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	log "github.com/sirupsen/logrus"
)

var ErrEmptyMessage = errors.New("message is empty")

// Sender hands a message to the outbound channel. A nil error means delivered.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// LogSender only writes messages to the log.
type LogSender struct{}

func (LogSender) Send(_ context.Context, destination, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	log.WithField("destination", destination).Infof("notification: %s", text)
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// RabbitSender queues messages for the sender service.
type RabbitSender struct {
	publisher Publisher
	now       func() time.Time
}

func NewRabbit(publisher Publisher) *RabbitSender {
	return &RabbitSender{publisher: publisher, now: time.Now}
}

func (s *RabbitSender) Send(ctx context.Context, destination, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	m := rabbit.Message{
		ID:          uuid.NewString(),
		Destination: destination,
		Text:        text,
		CreatedAt:   s.now().UTC(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.publisher.Publish(ctx, data); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", m.ID, err)
	}
	log.Debugf("message %s queued for %s", m.ID, destination)
	return nil
}
