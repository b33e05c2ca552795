// Package ics reads upcoming events from an iCalendar (.ics) subscription URL.
// RRULE recurrences are not expanded: only the instances present in the feed are reported.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHorizon = 48 * time.Hour
	icsDateLayout  = "20060102"
	dateLayout     = "2006-01-02"
	maxBodySize    = 10 << 20
)

type Config struct {
	URL          string
	HorizonHours int
	// Location resolves all-day dates, it must match the one used for normalization.
	Location *time.Location
}

type Source struct {
	client  *http.Client
	url     string
	horizon  time.Duration
	location *time.Location
	now      func() time.Time
}

func New(config Config, client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &Source{
		client:   client,
		url:      config.URL,
		horizon:  time.Duration(config.HorizonHours) * time.Hour,
		location: config.Location,
		now:      time.Now,
	}
	if s.horizon <= 0 {
		s.horizon = defaultHorizon
	}
	if s.location == nil {
		s.location = time.UTC
	}
	return s
}

// ListUpcomingEvents fetches the feed and returns events overlapping [now, now+horizon].
func (s *Source) ListUpcomingEvents(ctx context.Context) ([]calendar.RawEvent, error) {
	if s.url == "" {
		return nil, errors.New("ics url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ics feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch ics feed: %s", resp.Status)
	}

	cal, err := ical.ParseCalendar(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ics feed: %w", err)
	}

	now := s.now()
	until := now.Add(s.horizon)
	events := make([]calendar.RawEvent, 0)
	for _, ve := range cal.Events() {
		raw, start, end := toRawEvent(ve, s.location)
		if !start.IsZero() && (end.Before(now) || start.After(until)) {
			continue
		}
		events = append(events, raw)
	}
	log.Debugf("fetched %d events from ics feed", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// toRawEvent also returns the resolved start and end used for horizon filtering.
// Zero times mean the event could not be resolved; normalization rejects it later.
func toRawEvent(ve *ical.VEvent, loc *time.Location) (calendar.RawEvent, time.Time, time.Time) {
	raw := calendar.RawEvent{
		ID:          propValue(ve, ical.ComponentPropertyUniqueId),
		Summary:     propValue(ve, ical.ComponentPropertySummary),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Description: propValue(ve, ical.ComponentPropertyDescription),
	}
	// Overridden instances of a recurring event share the UID.
	if rid := propValue(ve, ical.ComponentProperty("RECURRENCE-ID")); rid != "" && raw.ID != "" {
		raw.ID += "/" + rid
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return raw, time.Time{}, time.Time{}
	}

	if isDateValue(startProp) {
		start, err := time.ParseInLocation(icsDateLayout, strings.TrimSpace(startProp.Value), loc)
		if err != nil {
			return raw, time.Time{}, time.Time{}
		}
		end := start.AddDate(0, 0, 1)
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if v, err := time.ParseInLocation(icsDateLayout, strings.TrimSpace(endProp.Value), loc); err == nil {
				end = v
			}
		}
		raw.Start = calendar.EventTime{Date: start.Format(dateLayout)}
		raw.End = calendar.EventTime{Date: end.Format(dateLayout)}
		return raw, start, end
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return raw, time.Time{}, time.Time{}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	raw.Start = calendar.EventTime{DateTime: start.Format(time.RFC3339)}
	raw.End = calendar.EventTime{DateTime: end.Format(time.RFC3339)}
	return raw, start, end
}
