// Package render turns a calendar load result into display records. It is
// pure: binding the records to a page is left to the caller.
package render

import (
	"fmt"
	"time"

	"storefront/internal/model"
)

const (
	MessageEmptyWindow = "На найближчі 5 днів ефірів не заплановано"
	MessageNotSynced   = "📅 Календар LIVE-трансляцій не синхронізовано"
)

var weekdays = [7]string{"Неділя", "Понеділок", "Вівторок", "Середа", "Четвер", "П'ятниця", "Субота"}

var months = [12]string{
	"січня", "лютого", "березня", "квітня", "травня", "червня",
	"липня", "серпня", "вересня", "жовтня", "листопада", "грудня",
}

// Entry is one line group of the schedule.
type Entry struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// View fully replaces whatever was displayed before.
type View struct {
	Kind    model.StateKind `json:"kind"`
	Entries []Entry         `json:"entries"`
	Message string          `json:"message,omitempty"`
	Source  string          `json:"source,omitempty"`
	// Reason explains NotSynced for diagnostics; the page does not show it.
	Reason string `json:"reason,omitempty"`
}

// Render formats state with dates and times shown in loc.
func Render(state model.State, loc *time.Location) View {
	if loc == nil {
		loc = time.Local
	}

	v := View{Kind: state.Kind, Entries: []Entry{}, Source: state.Source}

	switch state.Kind {
	case model.StateEvents:
		for _, ev := range state.Events {
			start := ev.Start.In(loc)
			end := ev.End.In(loc)
			v.Entries = append(v.Entries, Entry{
				Date:  FormatDate(start),
				Time:  FormatTime(start, end),
				Title: ev.Title,
				Start: start,
				End:   end,
			})
		}
	case model.StateEmptyWindow:
		v.Message = MessageEmptyWindow
	default:
		v.Kind = model.StateNotSynced
		v.Message = MessageNotSynced
		v.Reason = state.Reason
	}
	return v
}

// FormatDate renders "Понеділок, 15 січня".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s, %d %s", weekdays[t.Weekday()], t.Day(), months[t.Month()-1])
}

// FormatTime renders "HH:MM", or "HH:MM - HH:MM" when end differs from start.
func FormatTime(start, end time.Time) string {
	if end.IsZero() || end.Equal(start) {
		return start.Format("15:04")
	}
	return start.Format("15:04") + " - " + end.Format("15:04")
}
