// Package scheduler decides which (event, lead time) reminders are due.
//
// A reminder for an event starting at T with lead L is due while T-L <= now < T
// and it has not been recorded yet. A missed poll still fires the reminder as
// long as the event has not started; once it has, the reminder is dropped.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
)

const DefaultTimeLayout = "15:04"

// Checker reports whether a reminder was already delivered. It must not modify state.
type Checker interface {
	HasNotified(ctx context.Context, eventID string, leadMinutes int) (bool, error)
}

type Due struct {
	Event       storage.Event
	LeadMinutes int
	Message     string
}

type Scheduler struct {
	checker    Checker
	location   *time.Location
	timeLayout string
}

type Option func(*Scheduler)

// WithLocation sets the zone used to render {{time}} and {{date}}.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithTimeLayout(layout string) Option {
	return func(s *Scheduler) {
		if layout != "" {
			s.timeLayout = layout
		}
	}
}

func New(checker Checker, opts ...Option) *Scheduler {
	s := &Scheduler{checker: checker, location: time.UTC, timeLayout: DefaultTimeLayout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsDue reports whether the reminder window [start-lead, start) contains now.
func IsDue(now, start time.Time, leadMinutes int) bool {
	if leadMinutes <= 0 {
		return false
	}
	trigger := start.Add(-time.Duration(leadMinutes) * time.Minute)
	return !now.Before(trigger) && now.Before(start)
}

// ComputeDue returns the rendered reminders whose window is open at now and which
// the checker has not seen. It never records anything, so it can be retried freely.
func (s *Scheduler) ComputeDue(
	ctx context.Context,
	now time.Time,
	events []storage.Event,
	offsets []int,
	template string,
) ([]Due, error) {
	offsets = uniqueOffsets(offsets)
	due := make([]Due, 0)
	for _, event := range events {
		if !event.Start.After(now) {
			continue
		}
		for _, lead := range offsets {
			if !IsDue(now, event.Start, lead) {
				continue
			}
			notified, err := s.checker.HasNotified(ctx, event.ID, lead)
			if err != nil {
				return nil, fmt.Errorf("failed to check event %q (%d min): %w", event.ID, lead, err)
			}
			if notified {
				continue
			}
			due = append(due, Due{
				Event:       event,
				LeadMinutes: lead,
				Message:     s.Render(template, event, lead),
			})
		}
	}
	return due, nil
}

func uniqueOffsets(offsets []int) []int {
	seen := make(map[int]struct{}, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, o := range offsets {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
