// Package calendar exports scheduled occurrences as iCalendar documents.
package calendar

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"timeline-planner/internal/model"
)

const productID = "-//timeline-planner//planner export//RU"

// uidNamespace scopes the event UIDs so re-exports of the same occurrence keep their UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("timeline-planner/occurrence"))

// EventUID returns the stable UID of an occurrence.
func EventUID(occurrenceID uint) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatUint(uint64(occurrenceID), 10))).String()
}

// Export renders occs as a VCALENDAR. Wall-clock times are interpreted in loc;
// full-day occurrences become all-day events.
func Export(occs []model.Occurrence, loc *time.Location, stamp time.Time) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Planner")

	for _, occ := range occs {
		event := cal.AddEvent(EventUID(occ.ID))
		event.SetDtStampTime(stamp)
		event.SetSummary(occ.Title)
		if occ.Description != "" {
			event.SetDescription(occ.Description)
		}

		if occ.IsAllDay() {
			day := occ.Date.In(loc)
			event.SetAllDayStartAt(day)
			event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		} else {
			event.SetStartAt(occ.Start(loc))
			event.SetEndAt(occ.End(loc))
		}

		if occ.IsCompleted {
			event.SetStatus(ical.ObjectStatusCompleted)
		} else {
			event.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize()
}
