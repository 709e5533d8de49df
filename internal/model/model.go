package model

import "time"

// DefaultTitle is used when a feed record carries no SUMMARY.
const DefaultTitle = "Подія"

// EventRecord is one calendar occurrence built for a single load cycle.
// Records are never persisted; every refresh rebuilds them from the feed.
type EventRecord struct {
	UID         string
	Title       string
	Description string

	// Start is zero when the feed value could not be decoded; RawStart keeps
	// the original text so the record can be reported before being dropped.
	Start    time.Time
	End      time.Time
	RawStart string
	AllDay   bool

	// RRule and ExDates are only consulted when recurrence expansion is on.
	RRule   string
	ExDates []time.Time
}

// HasStart reports whether the record can be scheduled.
func (e EventRecord) HasStart() bool {
	return !e.Start.IsZero()
}

// StateKind enumerates the terminal outcomes of a calendar load.
type StateKind string

const (
	StateEvents      StateKind = "events"
	StateEmptyWindow StateKind = "empty"
	StateNotSynced   StateKind = "not_synced"
)

// State is what a load cycle produces. Events is set only for StateEvents,
// Reason only for StateNotSynced.
type State struct {
	Kind   StateKind
	Events []EventRecord
	Reason string
	// Source records which upstream produced the events ("api" or "feed").
	Source string
}

// Events is the state for a cycle that found upcoming events in source.
func Events(source string, events []EventRecord) State {
	return State{Kind: StateEvents, Events: events, Source: source}
}

// EmptyWindow is the state for a feed that loaded but has nothing in the
// window.
func EmptyWindow() State {
	return State{Kind: StateEmptyWindow, Source: "feed"}
}

// NotSynced is the fallback state. reason is for diagnostics only.
func NotSynced(reason string) State {
	return State{Kind: StateNotSynced, Reason: reason}
}
