package sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	"github.com/stretchr/testify/require"
)

type publisherFunc func(ctx context.Context, body []byte) error

func (f publisherFunc) Publish(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

func TestRabbitSender(t *testing.T) {
	var published []byte
	s := NewRabbit(publisherFunc(func(_ context.Context, body []byte) error {
		published = body
		return nil
	}))
	s.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Send(context.Background(), "+123456", "Standup at 09:00"))

	var m rabbit.Message
	require.NoError(t, json.Unmarshal(published, &m))
	require.Equal(t, "+123456", m.Destination)
	require.Equal(t, "Standup at 09:00", m.Text)
	require.Equal(t, time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), m.CreatedAt)
	_, err := uuid.Parse(m.ID)
	require.NoError(t, err)
}

func TestRabbitSenderFailure(t *testing.T) {
	errDown := errors.New("broker down")
	s := NewRabbit(publisherFunc(func(context.Context, []byte) error { return errDown }))

	require.ErrorIs(t, s.Send(context.Background(), "+123456", "hi"), errDown)
	require.ErrorIs(t, s.Send(context.Background(), "+123456", ""), ErrEmptyMessage)
}

func TestLogSender(t *testing.T) {
	require.NoError(t, LogSender{}.Send(context.Background(), "+123456", "hi"))
	require.ErrorIs(t, LogSender{}.Send(context.Background(), "+123456", ""), ErrEmptyMessage)
}
