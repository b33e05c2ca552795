// Package storagetest holds behaviour tests shared by every Ledger backend.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	"github.com/stretchr/testify/require"
)

// Clock is a manually driven time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Factory returns an initialized ledger driven by clock. Cleanup is up to the factory.
type Factory func(t *testing.T, clock *Clock) storage.Ledger

func RunLedgerTests(t *testing.T, newLedger Factory) {
	t.Helper()
	base := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

	t.Run("mark and check", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, NewClock(base))

		ok, err := l.HasNotified(ctx, "event-1", 60)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, l.MarkNotified(ctx, "event-1", 60))

		ok, err = l.HasNotified(ctx, "event-1", 60)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.HasNotified(ctx, "event-1", 10)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = l.HasNotified(ctx, "event-2", 60)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("check does not create records", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, NewClock(base))

		for i := 0; i < 3; i++ {
			_, err := l.HasNotified(ctx, "event-1", 60)
			require.NoError(t, err)
		}
		count, err := l.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(0), count)
	})

	t.Run("duplicate mark is a conflict", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(base)
		l := newLedger(t, clock)

		require.NoError(t, l.MarkNotified(ctx, "event-1", 60))
		clock.Set(base.Add(time.Hour))
		require.ErrorIs(t, l.MarkNotified(ctx, "event-1", 60), storage.ErrAlreadyNotified)

		records, err := l.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.True(t, base.Equal(records[0].SentAt), "original record must be kept: %s", records[0].SentAt)
	})

	t.Run("list all", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(base)
		l := newLedger(t, clock)

		require.NoError(t, l.MarkNotified(ctx, "event-1", 60))
		clock.Set(base.Add(time.Minute))
		require.NoError(t, l.MarkNotified(ctx, "event-1", 10))
		clock.Set(base.Add(2 * time.Minute))
		require.NoError(t, l.MarkNotified(ctx, "event-2", 60))

		records, err := l.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.Equal(t, "event-1", records[0].EventID)
		require.Equal(t, 60, records[0].LeadMinutes)
		require.True(t, base.Equal(records[0].SentAt))
		require.Equal(t, "event-1", records[1].EventID)
		require.Equal(t, 10, records[1].LeadMinutes)
		require.Equal(t, "event-2", records[2].EventID)

		count, err := l.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(3), count)
	})

	t.Run("purge by retention", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(base.AddDate(0, 0, -31))
		l := newLedger(t, clock)

		require.NoError(t, l.MarkNotified(ctx, "old", 60))
		clock.Set(base.AddDate(0, 0, -29))
		require.NoError(t, l.MarkNotified(ctx, "recent", 60))
		clock.Set(base)

		removed, err := l.Purge(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, int64(1), removed)

		ok, err := l.HasNotified(ctx, "old", 60)
		require.NoError(t, err)
		require.False(t, ok)
		ok, err = l.HasNotified(ctx, "recent", 60)
		require.NoError(t, err)
		require.True(t, ok)

		removed, err = l.Purge(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, int64(0), removed)
	})

	t.Run("purge empty ledger", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, NewClock(base))

		removed, err := l.Purge(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, int64(0), removed)
	})

	t.Run("purge negative retention", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, NewClock(base))

		_, err := l.Purge(ctx, -1)
		require.ErrorIs(t, err, storage.ErrInvalidRetention)
	})

	t.Run("init is idempotent", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, NewClock(base))

		require.NoError(t, l.MarkNotified(ctx, "event-1", 60))
		require.NoError(t, l.Init(ctx))

		ok, err := l.HasNotified(ctx, "event-1", 60)
		require.NoError(t, err)
		require.True(t, ok)
	})
}
