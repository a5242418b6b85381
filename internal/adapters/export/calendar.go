package export

import (
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"fellowship/internal/domain/event"
)

// CalendarName is the display name calendar clients show for the feed.
const CalendarName = "Fellowship events"

// WriteCalendar writes events as an iCalendar feed. baseURL is used to
// build a link back to each event.
// POST: w receives a VCALENDAR with one VEVENT per event
func WriteCalendar(w io.Writer, events []event.Event, baseURL string, now time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//fellowship//events//EN")
	cal.SetXWRCalName(CalendarName)

	for _, e := range events {
		v := cal.AddEvent(e.ID + "@fellowship")
		v.SetDtStampTime(now.UTC())
		v.SetCreatedTime(e.CreatedAt.UTC())
		v.SetModifiedAt(e.UpdatedAt.UTC())
		v.SetStartAt(e.StartsAt.UTC())
		v.SetEndAt(e.EndsAt.UTC())
		v.SetSummary(e.Title)
		if e.Location != "" {
			v.SetLocation(e.Location)
		}
		if e.Description != "" {
			v.SetDescription(e.Description)
		}
		if baseURL != "" {
			v.SetURL(baseURL + "/events/" + e.ID)
		}
		if e.IsCancelled() {
			v.SetStatus(ics.ObjectStatusCancelled)
		} else {
			v.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal.SerializeTo(w)
}
