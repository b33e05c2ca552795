package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	log "github.com/sirupsen/logrus"
)

type key struct {
	eventID     string
	leadMinutes int
}

type Storage struct {
	mu   sync.RWMutex
	data map[key]storage.Notification
	opts storage.Options
}

func New(opts ...storage.Option) *Storage {
	return &Storage{data: make(map[key]storage.Notification), opts: storage.NewOptions(opts...)}
}

func (s *Storage) Init(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log.Infof("loaded %d notification records from memory", len(s.data))
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	return nil
}

func (s *Storage) HasNotified(_ context.Context, eventID string, leadMinutes int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key{eventID: eventID, leadMinutes: leadMinutes}]
	return ok, nil
}

func (s *Storage) MarkNotified(_ context.Context, eventID string, leadMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{eventID: eventID, leadMinutes: leadMinutes}
	if _, ok := s.data[k]; ok {
		return fmt.Errorf("event %q (%d min): %w", eventID, leadMinutes, storage.ErrAlreadyNotified)
	}
	s.data[k] = storage.Notification{EventID: eventID, LeadMinutes: leadMinutes, SentAt: s.opts.Now().UTC()}
	log.Debugf("marked as notified: %s (%dmin)", eventID, leadMinutes)
	return nil
}

func (s *Storage) Purge(_ context.Context, retentionDays int) (int64, error) {
	cutoff, err := storage.PurgeCutoff(s.opts.Now(), retentionDays)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for k, n := range s.data {
		if n.SentAt.Before(cutoff) {
			delete(s.data, k)
			removed++
		}
	}
	return removed, nil
}

// ListAll returns records ordered by sent time, then event id and lead time.
func (s *Storage) ListAll(_ context.Context) ([]storage.Notification, error) {
	s.mu.RLock()
	records := make([]storage.Notification, 0, len(s.data))
	for _, n := range s.data {
		records = append(records, n)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.Before(b.SentAt)
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.LeadMinutes < b.LeadMinutes
	})
	return records, nil
}

func (s *Storage) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}
