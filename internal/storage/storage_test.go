package storage_test

import (
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestPurgeCutoff(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

	cutoff, err := storage.PurgeCutoff(now, 30)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), cutoff)

	cutoff, err = storage.PurgeCutoff(now, 0)
	require.NoError(t, err)
	require.Equal(t, now, cutoff)

	_, err = storage.PurgeCutoff(now, -1)
	require.ErrorIs(t, err, storage.ErrInvalidRetention)
}

func TestNewOptions(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	o := storage.NewOptions(storage.WithClock(func() time.Time { return fixed }))
	require.Equal(t, fixed, o.Now())

	o = storage.NewOptions(storage.WithClock(nil))
	require.NotNil(t, o.Now)
}
