package scheduler

import (
	"strconv"
	"strings"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	// AllDayTime is what {{time}} renders for events without a start time.
	AllDayTime = "all day"
)

// Render substitutes {{title}}, {{time}}, {{date}}, {{location}}, {{description}} and {{lead}}.
// Unknown placeholders are left as is.
func (s *Scheduler) Render(template string, event storage.Event, leadMinutes int) string {
	start := event.Start.In(s.location)
	at := start.Format(s.timeLayout)
	if event.AllDay {
		at = AllDayTime
	}
	return strings.NewReplacer(
		"{{title}}", event.Title,
		"{{time}}", at,
		"{{date}}", start.Format(dateLayout),
		"{{location}}", event.Location,
		"{{description}}", event.Description,
		"{{lead}}", strconv.Itoa(leadMinutes),
	).Replace(template)
}
