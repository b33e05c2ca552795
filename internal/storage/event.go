package storage

import (
	"time"
)

// Event is a single concrete calendar event instance.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	AllDay      bool      `json:"allDay"`
}

// Notification records a reminder that was successfully handed to the messaging channel.
type Notification struct {
	EventID     string    `json:"eventId" yaml:"eventId" db:"event_id"`
	LeadMinutes int       `json:"leadMinutes" yaml:"leadMinutes" db:"lead_minutes"`
	SentAt      time.Time `json:"sentAt" yaml:"sentAt" db:"sent_at"`
}
