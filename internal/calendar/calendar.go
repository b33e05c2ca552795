// Package calendar turns events reported by a calendar source into storage.Event values.
//
// All-day events carry only a date. They resolve to midnight of that date in the
// configured location, and their end date is exclusive, so a single all-day event
// spans [day 00:00, next day 00:00).
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

var (
	ErrMissingID    = errors.New("event has no id")
	ErrMissingTitle = errors.New("event has no title")
	ErrMissingTime  = errors.New("event has no start or end time")
	ErrInvalidTime  = errors.New("event time is invalid")
)

// Source lists upcoming event instances. Recurring events must already be expanded.
type Source interface {
	ListUpcomingEvents(ctx context.Context) ([]RawEvent, error)
}

// EventTime is either a timed instant (RFC 3339 DateTime) or an all-day Date (YYYY-MM-DD).
type EventTime struct {
	DateTime string
	Date     string
}

func (t EventTime) empty() bool {
	return t.DateTime == "" && t.Date == ""
}

func (t EventTime) resolve(loc *time.Location) (time.Time, bool, error) {
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidTime, err)
		}
		return v, false, nil
	}
	v, err := time.ParseInLocation(dateLayout, t.Date, loc)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return v, true, nil
}

// RawEvent is an event as reported by a source, before validation.
type RawEvent struct {
	ID          string
	Summary     string
	Location    string
	Description string
	Start       EventTime
	End         EventTime
}

// Normalize validates raw and resolves its times. loc is used for all-day dates.
func Normalize(raw RawEvent, loc *time.Location) (storage.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	if raw.ID == "" {
		return storage.Event{}, ErrMissingID
	}
	if raw.Summary == "" {
		return storage.Event{}, ErrMissingTitle
	}
	if raw.Start.empty() || raw.End.empty() {
		return storage.Event{}, ErrMissingTime
	}

	start, allDay, err := raw.Start.resolve(loc)
	if err != nil {
		return storage.Event{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := raw.End.resolve(loc)
	if err != nil {
		return storage.Event{}, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		return storage.Event{}, fmt.Errorf("end %s is before start %s: %w", end, start, ErrInvalidTime)
	}

	return storage.Event{
		ID:          raw.ID,
		Title:       raw.Summary,
		Start:       start,
		End:         end,
		Location:    raw.Location,
		Description: raw.Description,
		AllDay:      allDay,
	}, nil
}

// NormalizeAll keeps the valid events. Rejected ones are logged and skipped.
func NormalizeAll(raws []RawEvent, loc *time.Location) []storage.Event {
	events := make([]storage.Event, 0, len(raws))
	for _, raw := range raws {
		e, err := Normalize(raw, loc)
		if err != nil {
			log.WithField("id", raw.ID).Warnf("skipping event: %v", err)
			continue
		}
		events = append(events, e)
	}
	return events
}
