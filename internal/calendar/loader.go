package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	appLog "storefront/internal/log"
	"storefront/internal/metrics"
	"storefront/internal/model"
)

// Loader runs one calendar load cycle: resolve the reference, try the
// events API when a key is set, then fall back to the public feed.
//
// A Loader holds no per-cycle state; concurrent Load calls are independent
// and the caller decides which result to keep.
type Loader struct {
	cfg     config.CalendarConfig
	loc     *time.Location
	fetcher *Fetcher
	api     *APIClient
}

// NewLoader builds a Loader from the calendar section of cfg.
func NewLoader(cfg *config.Config) *Loader {
	l := &Loader{
		cfg:     cfg.Calendar,
		loc:     cfg.Location(),
		fetcher: NewFetcher(cfg.Calendar.Timeout),
	}
	if cfg.Calendar.APIKey != "" {
		api, err := NewAPIClient(cfg.Calendar.APIBaseURL, cfg.Calendar.APIKey, cfg.Calendar.Timeout)
		if err != nil {
			appLog.Error("calendar api unavailable; using feed only", err)
		} else {
			l.api = api
		}
	}
	return l
}

// Location is the display timezone used for day boundaries.
func (l *Loader) Location() *time.Location {
	return l.loc
}

// Load never fails: every outcome is one of Events, EmptyWindow or
// NotSynced, and the reason for NotSynced is only meant for diagnostics.
func (l *Loader) Load(ctx context.Context, now time.Time) (state model.State) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("calendar: load panicked", fmt.Errorf("%v", r))
			state = model.NotSynced(fmt.Sprintf("internal error: %v", r))
		}
		metrics.CalendarLoads.WithLabelValues(string(state.Kind)).Inc()
		appLog.Info("calendar load finished",
			"state", state.Kind,
			"source", state.Source,
			"events", len(state.Events),
			"reason", state.Reason,
		)
	}()

	now = now.In(l.loc)
	ref := strings.TrimSpace(l.cfg.Reference)

	id, err := Resolve(ref)
	switch {
	case errors.Is(err, ErrNotConfigured):
		appLog.Info("calendar: reference not configured")
		return model.NotSynced("not configured")
	case err != nil:
		appLog.Error("calendar: could not resolve reference", err, "reference", redactURL(ref))
		return model.NotSynced("could not resolve")
	}

	if l.api != nil {
		events, err := l.api.ListEvents(ctx, id, now, now.Add(time.Duration(l.cfg.WindowDays)*24*time.Hour), l.loc)
		switch {
		case err != nil:
			appLog.Error("calendar api attempt failed; falling back to feed", err)
		case len(events) == 0:
			appLog.Info("calendar api returned no items; falling back to feed")
		default:
			appLog.Info("calendar api attempt succeeded", "events", len(events))
			return model.Events("api", events)
		}
	}

	feedURL := FeedURL(l.cfg.FeedURLTemplate, id)
	if IsFeedURL(ref) {
		feedURL = ref
	}

	var events []model.EventRecord
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		events, err = l.loadFeed(ctx, feedURL, now)
		if err == nil {
			break
		}
		appLog.Error("calendar feed attempt failed", err, "attempt", attempt, "max_attempts", l.cfg.MaxAttempts)
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return model.NotSynced("fetch or parse error: " + err.Error())
	}

	if len(events) == 0 {
		return model.EmptyWindow()
	}
	return model.Events("feed", events)
}

func (l *Loader) loadFeed(ctx context.Context, feedURL string, now time.Time) ([]model.EventRecord, error) {
	body, err := l.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseFeed(body, l.loc)
	if err != nil {
		return nil, err
	}

	w := NewWindow(now, l.cfg.WindowDays)
	if l.cfg.ExpandRecurring {
		parsed = ExpandRecurring(parsed, w)
	}
	filtered := FilterWindow(parsed, w)

	appLog.Info("calendar feed parsed",
		"bytes", len(body),
		"parsed", len(parsed),
		"in_window", len(filtered),
		"window_end", w.End.Format(time.RFC3339),
	)
	return filtered, nil
}
