package storagebuilder

import (
	"context"
	"path/filepath"
	"testing"

	memorystorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/memory"
	sqlitestorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		l, err := New(Config{StorageType: "memory"})
		require.NoError(t, err)
		require.IsType(t, &memorystorage.Storage{}, l)
	})

	t.Run("sqlite", func(t *testing.T) {
		l, err := New(Config{
			StorageType: "sqlite",
			Sqlite:      sqlitestorage.Config{Path: filepath.Join(t.TempDir(), "ledger.db")},
		})
		require.NoError(t, err)
		require.IsType(t, &sqlitestorage.Storage{}, l)
		require.NoError(t, l.Close(context.Background()))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{StorageType: "redis"})
		require.Error(t, err)
	})
}
