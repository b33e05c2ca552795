package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storagebuilder"
	sqlitestorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteNotifications(t *testing.T) {
	sentAt := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	notifications := []storage.Notification{
		{EventID: "standup", LeadMinutes: 60, SentAt: sentAt},
		{EventID: "standup", LeadMinutes: 10, SentAt: sentAt.Add(50 * time.Minute)},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeNotifications(&buf, "json", notifications))
		var got []storage.Notification
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
		require.Equal(t, "standup", got[1].EventID)
		require.Equal(t, 10, got[1].LeadMinutes)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeNotifications(&buf, "yaml", notifications))
		var got []map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeNotifications(&buf, "table", notifications))
		require.Contains(t, buf.String(), "EVENT ID")
		require.Contains(t, buf.String(), "2024-05-10T08:50:00Z")
	})

	t.Run("unknown", func(t *testing.T) {
		require.Error(t, writeNotifications(&bytes.Buffer{}, "xml", notifications))
	})
}

func TestLedgerCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "notifications.db")
	path := writeConfig(t, fmt.Sprintf(`
storage:
  storageType: sqlite
  sqlite:
    path: %s
  retentionDays: 30
`, dbPath))

	now := time.Now()
	clock := now.Add(-40 * 24 * time.Hour)
	ledger, err := storagebuilder.New(
		storagebuilder.Config{StorageType: "sqlite", Sqlite: sqlitestorage.Config{Path: dbPath}},
		storage.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ledger.MarkNotified(ctx, "old", 60))
	clock = now
	require.NoError(t, ledger.MarkNotified(ctx, "fresh", 10))
	require.NoError(t, ledger.Close(ctx))

	execute := func(args ...string) string {
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetArgs(append([]string{"--config", path}, args...))
		require.NoError(t, root.Execute())
		return out.String()
	}

	var listed []storage.Notification
	require.NoError(t, json.Unmarshal([]byte(execute("ledger", "list", "-o", "json")), &listed))
	require.Len(t, listed, 2)

	require.Contains(t, execute("ledger", "purge"), "removed 1 records older than 30 days")

	listed = nil
	require.NoError(t, json.Unmarshal([]byte(execute("ledger", "list", "-o", "json")), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "fresh", listed[0].EventID)
}
