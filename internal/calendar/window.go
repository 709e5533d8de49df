package calendar

import (
	"time"

	"storefront/internal/model"
)

// Window is an inclusive range of local calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns [midnight of now's day, 23:59:59.999 of the day that is
// days later], both in now.Location().
func NewWindow(now time.Time, days int) Window {
	y, m, d := now.Date()
	loc := now.Location()
	return Window{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+days, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// Contains reports whether t lies within both bounds.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// FilterWindow keeps events whose start is not after w.End. The lower bound
// is not applied, so events already under way (or stale records still in
// the feed) are kept. Records without a decodable start are dropped.
// Order is preserved and duplicates are not merged.
func FilterWindow(events []model.EventRecord, w Window) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		if !ev.HasStart() {
			continue
		}
		if ev.Start.After(w.End) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
