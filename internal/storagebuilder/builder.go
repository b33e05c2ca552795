package storagebuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	memorystorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/memory"
	sqlstorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/sql"
	sqlitestorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/sqlite"
)

const initTimeout = 15 * time.Second

type Config struct {
	StorageType   string
	Database      sqlstorage.Config
	Sqlite        sqlitestorage.Config
	RetentionDays int
	PurgeSchedule string
}

// New builds and initializes the ledger selected by config.StorageType.
// The returned ledger is ready for use; failures here are fatal for startup.
func New(config Config, opts ...storage.Option) (storage.Ledger, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	switch config.StorageType {
	case "memory":
		s := memorystorage.New(opts...)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlitestorage.Open(ctx, config.Sqlite, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database %s: %w", config.Sqlite.Path, err)
		}
		return s, nil
	case "sql":
		s, err := sqlstorage.Open(ctx, config.Database, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database %s %d: %w", config.Database.Host, config.Database.Port, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %s", config.StorageType)
	}
}
