package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/util"
)

var (
	ErrAlreadyNotified  = errors.New("notification already recorded")
	ErrInvalidRetention = errors.New("retention days must not be negative")
)

// Ledger is the durable set of (event, lead time) pairs already notified.
// Init must complete before any other call.
type Ledger interface {
	Init(ctx context.Context) error
	Close(ctx context.Context) error
	HasNotified(ctx context.Context, eventID string, leadMinutes int) (bool, error)
	MarkNotified(ctx context.Context, eventID string, leadMinutes int) error
	Purge(ctx context.Context, retentionDays int) (int64, error)
	ListAll(ctx context.Context) ([]Notification, error)
	Count(ctx context.Context) (int64, error)
}

type Options struct {
	Now func() time.Time
}

type Option func(*Options)

// WithClock overrides the time source used for sent_at and purge cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

func NewOptions(opts ...Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PurgeCutoff returns the instant before which records are removed.
func PurgeCutoff(now time.Time, retentionDays int) (time.Time, error) {
	if retentionDays < 0 {
		return time.Time{}, ErrInvalidRetention
	}
	return now.Add(-util.Days(retentionDays)), nil
}
