package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	memorystorage "github.com/lomoval/otus-golang/calendar_notifier/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context, eventID string, leadMinutes int) (bool, error)

func (f checkerFunc) HasNotified(ctx context.Context, eventID string, leadMinutes int) (bool, error) {
	return f(ctx, eventID, leadMinutes)
}

var nothingNotified = checkerFunc(func(context.Context, string, int) (bool, error) { return false, nil })

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 10, hour, minute, 0, 0, time.UTC)
}

func TestIsDue(t *testing.T) {
	start := at(10, 0)
	tests := []struct {
		name string
		now  time.Time
		lead int
		due  bool
	}{
		{name: "before window", now: at(8, 59), lead: 60, due: false},
		{name: "window opens", now: at(9, 0), lead: 60, due: true},
		{name: "inside window", now: at(9, 30), lead: 60, due: true},
		{name: "just before start", now: start.Add(-time.Nanosecond), lead: 60, due: true},
		{name: "at start", now: start, lead: 60, due: false},
		{name: "after start", now: at(10, 1), lead: 60, due: false},
		{name: "zero lead", now: at(9, 59), lead: 0, due: false},
		{name: "negative lead", now: at(9, 59), lead: -10, due: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.due, IsDue(tt.now, start, tt.lead))
		})
	}
}

func TestComputeDueScenario(t *testing.T) {
	ctx := context.Background()
	ledger := memorystorage.New()
	s := New(ledger)
	event := storage.Event{ID: "evt", Title: "Planning", Start: at(10, 0), End: at(11, 0)}
	offsets := []int{60, 10}

	due, err := s.ComputeDue(ctx, at(9, 0), []storage.Event{event}, offsets, "{{title}}")
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 60, due[0].LeadMinutes)
	require.Equal(t, "evt", due[0].Event.ID)

	require.NoError(t, ledger.MarkNotified(ctx, "evt", 60))

	due, err = s.ComputeDue(ctx, at(9, 5), []storage.Event{event}, offsets, "{{title}}")
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = s.ComputeDue(ctx, at(9, 50), []storage.Event{event}, offsets, "{{title}}")
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 10, due[0].LeadMinutes)
}

func TestComputeDueDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	ledger := memorystorage.New()
	s := New(ledger)
	event := storage.Event{ID: "evt", Title: "Planning", Start: at(10, 0), End: at(11, 0)}

	for i := 0; i < 3; i++ {
		due, err := s.ComputeDue(ctx, at(9, 0), []storage.Event{event}, []int{60}, "")
		require.NoError(t, err)
		require.Len(t, due, 1)
	}
	count, err := ledger.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestComputeDueMissedCycle(t *testing.T) {
	s := New(nothingNotified)
	event := storage.Event{ID: "evt", Title: "Planning", Start: at(10, 0), End: at(11, 0)}

	// Both windows are open when the first poll after a gap happens.
	due, err := s.ComputeDue(context.Background(), at(9, 55), []storage.Event{event}, []int{60, 10}, "")
	require.NoError(t, err)
	require.Len(t, due, 2)
}

func TestComputeDueSkipsStartedEvents(t *testing.T) {
	s := New(nothingNotified)
	events := []storage.Event{
		{ID: "started", Title: "Started", Start: at(9, 0), End: at(11, 0)},
		{ID: "now", Title: "Now", Start: at(10, 0), End: at(11, 0)},
	}

	due, err := s.ComputeDue(context.Background(), at(10, 0), events, []int{60, 120}, "")
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestComputeDueDuplicateOffsets(t *testing.T) {
	s := New(nothingNotified)
	event := storage.Event{ID: "evt", Title: "Planning", Start: at(10, 0), End: at(11, 0)}

	due, err := s.ComputeDue(context.Background(), at(9, 30), []storage.Event{event}, []int{60, 60, 60}, "")
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestComputeDueCheckerError(t *testing.T) {
	errBroken := errors.New("broken")
	s := New(checkerFunc(func(context.Context, string, int) (bool, error) { return false, errBroken }))
	event := storage.Event{ID: "evt", Title: "Planning", Start: at(10, 0), End: at(11, 0)}

	_, err := s.ComputeDue(context.Background(), at(9, 30), []storage.Event{event}, []int{60}, "")
	require.ErrorIs(t, err, errBroken)
}

func TestComputeDueNoEvents(t *testing.T) {
	due, err := New(nothingNotified).ComputeDue(context.Background(), at(9, 0), nil, []int{60}, "")
	require.NoError(t, err)
	require.Empty(t, due)
}
