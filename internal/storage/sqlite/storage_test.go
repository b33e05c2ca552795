package sqlitestorage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	sqlitestorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/sqlite"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	storagetest.RunLedgerTests(t, func(t *testing.T, clock *storagetest.Clock) storage.Ledger {
		t.Helper()
		return createStorage(t, filepath.Join(t.TempDir(), "notifications.db"), clock)
	})
}

func TestStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "notifications.db")
	clock := storagetest.NewClock(time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC))

	s, err := sqlitestorage.Open(ctx, sqlitestorage.Config{Path: path}, storage.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.MarkNotified(ctx, "event-1", 60))
	require.NoError(t, s.Close(ctx))

	reopened := createStorage(t, path, clock)
	ok, err := reopened.HasNotified(ctx, "event-1", 60)
	require.NoError(t, err)
	require.True(t, ok)

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := sqlitestorage.Open(context.Background(), sqlitestorage.Config{})
	require.Error(t, err)
}

func createStorage(t *testing.T, path string, clock *storagetest.Clock) *sqlitestorage.Storage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := sqlitestorage.Open(ctx, sqlitestorage.Config{Path: path}, storage.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close(context.Background())
	})
	return s
}
