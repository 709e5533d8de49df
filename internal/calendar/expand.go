package calendar

import (
	"errors"
	"sort"

	"github.com/teambition/rrule-go"

	appLog "storefront/internal/log"
	"storefront/internal/model"
)

// maxOccurrencesPerEvent caps a single RRULE expansion.
const maxOccurrencesPerEvent = 500

// ExpandRecurring replaces every record that carries an RRULE with its
// occurrences inside w, honouring EXDATE and keeping the original duration.
// Records without an RRULE pass through unchanged. A record whose rule
// cannot be parsed is kept as-is. The result is sorted by start.
func ExpandRecurring(events []model.EventRecord, w Window) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(events))

	for _, ev := range events {
		if ev.RRule == "" || !ev.HasStart() {
			out = append(out, ev)
			continue
		}

		occ, err := expandEvent(ev, w)
		if err != nil {
			appLog.Error("calendar: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
			out = append(out, ev)
			continue
		}
		out = append(out, occ...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func expandEvent(ev model.EventRecord, w Window) ([]model.EventRecord, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	times := set.Between(w.Start.In(loc), w.End.In(loc), true)
	if len(times) > maxOccurrencesPerEvent {
		appLog.Error("calendar: truncated occurrences for UID due to cap",
			errors.New("max occurrences reached"),
			"uid", ev.UID,
			"cap", maxOccurrencesPerEvent,
		)
		times = times[:maxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.EventRecord, 0, len(times))
	for _, start := range times {
		occ := ev
		occ.Start = start
		occ.End = start.Add(dur)
		occ.RRule = ""
		occ.ExDates = nil
		out = append(out, occ)
	}
	return out, nil
}
