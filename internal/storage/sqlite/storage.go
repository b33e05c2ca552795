// Package sqlitestorage keeps the notification ledger in a local SQLite file.
// sent_at is stored as unix milliseconds so cutoff comparisons stay numeric.
package sqlitestorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	sqlite3 "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	event_id     TEXT    NOT NULL,
	lead_minutes INTEGER NOT NULL,
	sent_at      INTEGER NOT NULL,
	PRIMARY KEY (event_id, lead_minutes)
);
CREATE INDEX IF NOT EXISTS notifications_sent_at_idx ON notifications (sent_at);
`

type Config struct {
	Path string
}

type row struct {
	EventID     string `db:"event_id"`
	LeadMinutes int    `db:"lead_minutes"`
	SentAt      int64  `db:"sent_at"`
}

type statements struct {
	has    *sqlx.Stmt
	insert *sqlx.Stmt
	purge  *sqlx.Stmt
	getAll *sqlx.Stmt
	count  *sqlx.Stmt
}

type Storage struct {
	db    *sqlx.DB
	stmts statements
	opts  storage.Options
}

// Open creates the database file if needed, ensures the schema and prepares all statements.
func Open(ctx context.Context, config Config, opts ...storage.Option) (*Storage, error) {
	if config.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", config.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", config.Path, err)
	}
	// Single writer; keeps :memory: databases on one connection as well.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, opts: storage.NewOptions(opts...)}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications"); err != nil {
		return fmt.Errorf("failed to count notifications: %w", err)
	}
	log.Infof("loaded %d notification records from database", count)
	return nil
}

func (s *Storage) prepare(ctx context.Context) error {
	queries := []struct {
		dst   **sqlx.Stmt
		query string
	}{
		{&s.stmts.has, "SELECT EXISTS(SELECT 1 FROM notifications WHERE event_id=? AND lead_minutes=?)"},
		{&s.stmts.insert, "INSERT INTO notifications(event_id, lead_minutes, sent_at) VALUES(?, ?, ?)"},
		{&s.stmts.purge, "DELETE FROM notifications WHERE sent_at < ?"},
		{&s.stmts.getAll, "SELECT event_id, lead_minutes, sent_at FROM notifications " +
			"ORDER BY sent_at, event_id, lead_minutes"},
		{&s.stmts.count, "SELECT COUNT(*) FROM notifications"},
	}
	for _, q := range queries {
		stmt, err := s.db.PreparexContext(ctx, q.query)
		if err != nil {
			return fmt.Errorf("failed to prepare %q: %w", q.query, err)
		}
		*q.dst = stmt
	}
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	for _, stmt := range []*sqlx.Stmt{s.stmts.has, s.stmts.insert, s.stmts.purge, s.stmts.getAll, s.stmts.count} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Info("database closed")
	return nil
}

func (s *Storage) HasNotified(ctx context.Context, eventID string, leadMinutes int) (bool, error) {
	var found bool
	if err := s.stmts.has.GetContext(ctx, &found, eventID, leadMinutes); err != nil {
		return false, fmt.Errorf("failed to check notification %q (%d min): %w", eventID, leadMinutes, err)
	}
	return found, nil
}

func (s *Storage) MarkNotified(ctx context.Context, eventID string, leadMinutes int) error {
	_, err := s.stmts.insert.ExecContext(ctx, eventID, leadMinutes, s.opts.Now().UnixMilli())
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("event %q (%d min): %w", eventID, leadMinutes, storage.ErrAlreadyNotified)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification %q (%d min): %w", eventID, leadMinutes, err)
	}
	log.Debugf("marked as notified: %s (%dmin)", eventID, leadMinutes)
	return nil
}

func (s *Storage) Purge(ctx context.Context, retentionDays int) (int64, error) {
	cutoff, err := storage.PurgeCutoff(s.opts.Now(), retentionDays)
	if err != nil {
		return 0, err
	}
	res, err := s.stmts.purge.ExecContext(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *Storage) ListAll(ctx context.Context) ([]storage.Notification, error) {
	var rows []row
	if err := s.stmts.getAll.SelectContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	records := make([]storage.Notification, 0, len(rows))
	for _, r := range rows {
		records = append(records, storage.Notification{
			EventID:     r.EventID,
			LeadMinutes: r.LeadMinutes,
			SentAt:      time.UnixMilli(r.SentAt).UTC(),
		})
	}
	return records, nil
}

func (s *Storage) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.stmts.count.GetContext(ctx, &count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}
