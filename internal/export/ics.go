package export

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"fxcal/internal/model"
)

// eventSlotDuration is the nominal length given to each VEVENT; feed events
// are instants, but calendar applications want a non-zero block.
const eventSlotDuration = 15 * time.Minute

// RenderICS builds an iCalendar document with one VEVENT per calendar event,
// so a filtered export can be imported into a desktop calendar.
func RenderICS(events []model.Event, title string) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//fxcal//calendar export//EN")
	if title != "" {
		cal.SetXWRCalName(title)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.UID)
		ve.SetSummary(fmt.Sprintf("[%s] %s", e.Currency, e.Title))
		ve.SetDtStampTime(e.UTC)
		ve.SetStartAt(e.UTC)
		ve.SetEndAt(e.UTC.Add(eventSlotDuration))
		if desc := describe(e); desc != "" {
			ve.SetDescription(desc)
		}
	}

	return cal.Serialize()
}

// describe summarizes the event's figures in a single line.
func describe(e model.Event) string {
	parts := []string{"Impact: " + string(e.Impact)}
	if e.Actual != "" {
		parts = append(parts, "Actual: "+e.Actual)
	}
	if e.Forecast != "" {
		parts = append(parts, "Forecast: "+e.Forecast)
	}
	if e.Previous != "" {
		parts = append(parts, "Previous: "+e.Previous)
	}
	return strings.Join(parts, "; ")
}
