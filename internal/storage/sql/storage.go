package sqlstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	log "github.com/sirupsen/logrus"
)

var ErrConnectionFailed = errors.New("failed to connect")

const dbErrUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	event_id     TEXT        NOT NULL,
	lead_minutes INTEGER     NOT NULL,
	sent_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, lead_minutes)
);
CREATE INDEX IF NOT EXISTS notifications_sent_at_idx ON notifications (sent_at);
`

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
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

// Open connects to PostgreSQL, ensures the schema and prepares all statements.
func Open(ctx context.Context, config Config, opts ...storage.Option) (*Storage, error) {
	db, err := sqlx.ConnectContext(
		ctx,
		"postgres",
		fmt.Sprintf(
			"sslmode=disable host=%s port=%d dbname=%s user=%s password=%s",
			config.Host, config.Port, config.Database, config.Username, config.Password),
	)
	if err != nil {
		log.Errorf("failed to connect: %v", err)
		return nil, ErrConnectionFailed
	}

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
		{&s.stmts.has, "SELECT EXISTS(SELECT 1 FROM notifications WHERE event_id=$1 AND lead_minutes=$2)"},
		{&s.stmts.insert, "INSERT INTO notifications(event_id, lead_minutes, sent_at) VALUES($1, $2, $3)"},
		{&s.stmts.purge, "DELETE FROM notifications WHERE sent_at < $1"},
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
		return fmt.Errorf("failed to close connection: %w", err)
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
	_, err := s.stmts.insert.ExecContext(ctx, eventID, leadMinutes, s.opts.Now().UTC())
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == dbErrUniqueViolation {
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
	res, err := s.stmts.purge.ExecContext(ctx, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *Storage) ListAll(ctx context.Context) ([]storage.Notification, error) {
	records := make([]storage.Notification, 0)
	if err := s.stmts.getAll.SelectContext(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
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
