package calendar

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/model"
)

// maxLineBytes bounds a single (unfolded) feed line. Longer lines abort the
// parse with an error.
const maxLineBytes = 1 << 20

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
)

// ParseFeed scans a plain-text iCalendar feed into event records sorted by
// start time. Only BEGIN:VEVENT / END:VEVENT blocks and a handful of
// property prefixes are looked at; a feed with no blocks at all yields an
// empty slice rather than an error.
//
// Blocks without DTSTART are dropped. Blocks whose DTSTART cannot be decoded
// are kept with a zero Start (see EventRecord.HasStart) and are removed by
// the window filter.
//
// Date-time values without a trailing Z are read as wall-clock time in loc;
// TZID parameters are not interpreted.
func ParseFeed(body []byte, loc *time.Location) ([]model.EventRecord, error) {
	if loc == nil {
		loc = time.Local
	}

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	events := make([]model.EventRecord, 0)
	var cur *block

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == "BEGIN:VEVENT":
			cur = &block{}
		case line == "END:VEVENT":
			if cur != nil {
				if rec, ok := cur.record(loc); ok {
					events = append(events, rec)
				}
			}
			cur = nil
		case cur != nil:
			cur.add(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("feed scan: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// block accumulates the raw property values of one VEVENT.
type block struct {
	// depth counts nested components (VALARM etc.) whose properties must
	// not leak into the event.
	depth int

	uid         string
	summary     string
	description string
	start       string
	end         string
	rrule       string
	exdates     []string
}

func (b *block) add(line string) {
	switch {
	case strings.HasPrefix(line, "BEGIN:"):
		b.depth++
		return
	case strings.HasPrefix(line, "END:"):
		if b.depth > 0 {
			b.depth--
		}
		return
	}
	if b.depth > 0 {
		return
	}

	switch {
	case strings.HasPrefix(line, "SUMMARY:"):
		b.summary = strings.TrimSpace(line[len("SUMMARY:"):])
	case strings.HasPrefix(line, "DTSTART"):
		if v := propertyValue(line); v != "" {
			b.start = v
		}
	case strings.HasPrefix(line, "DTEND"):
		if v := propertyValue(line); v != "" {
			b.end = v
		}
	case strings.HasPrefix(line, "DESCRIPTION:"):
		b.description = strings.TrimSpace(line[len("DESCRIPTION:"):])
	case strings.HasPrefix(line, "UID:"):
		b.uid = strings.TrimSpace(line[len("UID:"):])
	case strings.HasPrefix(line, "RRULE:"):
		b.rrule = strings.TrimSpace(line[len("RRULE:"):])
	case strings.HasPrefix(line, "EXDATE"):
		for _, part := range strings.Split(propertyValue(line), ",") {
			if part = strings.TrimSpace(part); part != "" {
				b.exdates = append(b.exdates, part)
			}
		}
	}
}

func (b *block) record(loc *time.Location) (model.EventRecord, bool) {
	if b.start == "" {
		return model.EventRecord{}, false
	}

	rec := model.EventRecord{
		UID:         b.uid,
		Title:       b.summary,
		Description: b.description,
		RRule:       b.rrule,
	}
	if rec.Title == "" {
		rec.Title = model.DefaultTitle
	}

	if start, allDay, ok := decodeDate(b.start, loc); ok {
		rec.Start = start
		rec.AllDay = allDay
	} else {
		rec.RawStart = b.start
	}

	rec.End = rec.Start
	if b.end != "" {
		if end, _, ok := decodeDate(b.end, loc); ok {
			rec.End = end
		}
	}

	for _, raw := range b.exdates {
		if t, _, ok := decodeDate(raw, loc); ok {
			rec.ExDates = append(rec.ExDates, t)
		}
	}

	return rec, true
}

// propertyValue returns the text after the first colon, ignoring any
// parameters before it ("DTSTART;VALUE=DATE:20240115" -> "20240115").
func propertyValue(line string) string {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(line[i+1:])
}

// decodeDate understands the value shapes public feeds use:
//
//	20240115          all-day, midnight in loc
//	20240115T090000Z  UTC instant
//	20240115T090000   wall-clock time in loc
func decodeDate(v string, loc *time.Location) (t time.Time, allDay bool, ok bool) {
	if len(v) == 8 && isDigits(v) {
		t, err := time.ParseInLocation(layoutDate, v, loc)
		return t, true, err == nil
	}

	if len(v) >= 15 && strings.Contains(v, "T") {
		var err error
		if strings.HasSuffix(v, "Z") {
			t, err = time.Parse(layoutDateTime, v[:15])
		} else {
			t, err = time.ParseInLocation(layoutDateTime, v[:15], loc)
		}
		return t, false, err == nil
	}

	return time.Time{}, false, false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
