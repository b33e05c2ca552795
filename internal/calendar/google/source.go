package google

import (
	"context"
	"fmt"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	defaultCalendarID = "primary"
	defaultHorizon    = 48 * time.Hour
	pageSize          = 250
)

type Config struct {
	CredentialsPath string
	TokenPath       string
	CalendarID      string
	HorizonHours    int
}

// Source reads upcoming events from the Google Calendar API.
type Source struct {
	service    *gcal.Service
	calendarID string
	horizon    time.Duration
	now        func() time.Time
}

// New builds a source from stored OAuth credentials. The token must exist, see Authorize.
func New(ctx context.Context, config Config) (*Source, error) {
	oauthConfig, err := loadOAuthConfig(config.CredentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(config.TokenPath)
	if err != nil {
		return nil, err
	}

	ts := &persistingTokenSource{
		base:   oauthConfig.TokenSource(ctx, tok),
		path:   config.TokenPath,
		access: tok.AccessToken,
	}
	service, err := gcal.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return NewWithService(service, config), nil
}

func NewWithService(service *gcal.Service, config Config) *Source {
	s := &Source{
		service:    service,
		calendarID: config.CalendarID,
		horizon:    time.Duration(config.HorizonHours) * time.Hour,
		now:        time.Now,
	}
	if s.calendarID == "" {
		s.calendarID = defaultCalendarID
	}
	if s.horizon <= 0 {
		s.horizon = defaultHorizon
	}
	return s
}

// ListUpcomingEvents returns single (already expanded) events between now and now+horizon.
func (s *Source) ListUpcomingEvents(ctx context.Context) ([]calendar.RawEvent, error) {
	now := s.now()
	call := s.service.Events.List(s.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(s.horizon).Format(time.RFC3339)).
		MaxResults(pageSize)

	events := make([]calendar.RawEvent, 0)
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			events = append(events, toRawEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events of %q: %w", s.calendarID, err)
	}
	log.Debugf("fetched %d events from google calendar %q", len(events), s.calendarID)
	return events, nil
}

func toRawEvent(item *gcal.Event) calendar.RawEvent {
	raw := calendar.RawEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Location:    item.Location,
		Description: item.Description,
	}
	if item.Start != nil {
		raw.Start = calendar.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date}
	}
	if item.End != nil {
		raw.End = calendar.EventTime{DateTime: item.End.DateTime, Date: item.End.Date}
	}
	return raw
}
