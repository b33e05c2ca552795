package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	body, err := json.Marshal(rabbit.Message{
		ID:          "1",
		Destination: "+15550001111",
		Text:        "Standup at 09:00",
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, deliver(amqp.Delivery{Body: body}))
	require.NoError(t, deliver(amqp.Delivery{Body: []byte("not json")}))
}

func TestNewConfig(t *testing.T) {
	t.Setenv("SENDER_TEST_RABBIT_PASSWORD", "secret")
	path := filepath.Join(t.TempDir(), "sender.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: INFO
rabbit:
  user: guest
  password: $env:SENDER_TEST_RABBIT_PASSWORD
`), 0o600))

	config, err := NewConfig(path)
	require.NoError(t, err)
	require.Equal(t, "INFO", config.Logger.Level)
	require.Equal(t, "guest", config.Rabbit.User)
	require.Equal(t, "secret", config.Rabbit.Password)
	require.Equal(t, 5672, config.Rabbit.Port)
	require.Equal(t, "calendar.notify", config.Rabbit.Queue)
}

func TestNewConfigUnsetEnv(t *testing.T) {
	t.Setenv("SENDER_TEST_RABBIT_USER", "")
	path := filepath.Join(t.TempDir(), "sender.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rabbit:
  user: $env:SENDER_TEST_RABBIT_USER
`), 0o600))

	_, err := NewConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SENDER_TEST_RABBIT_USER")
}
