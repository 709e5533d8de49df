package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"storefront/internal/model"
)

const exportProductID = "-//storefront//live schedule//UK"

// ExportICS re-publishes events as an iCalendar document so visitors can
// subscribe to just the upcoming window.
func ExportICS(events []model.EventRecord, name string, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(exportProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for i, ev := range events {
		uid := ev.UID
		if uid == "" {
			uid = fmt.Sprintf("%d-%d@storefront", ev.Start.Unix(), i)
		}

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}

		if ev.AllDay {
			end := ev.End
			if !end.After(ev.Start) {
				end = ev.Start.AddDate(0, 0, 1)
			}
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(end)
			continue
		}
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}

	return cal.Serialize()
}
