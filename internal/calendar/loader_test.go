package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/metrics"
	"storefront/internal/model"
)

// referenceNow is Monday 2024-01-15 10:00 UTC; the window ends Saturday
// 2024-01-20 23:59:59.999.
var referenceNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type upstream struct {
	srv       *httptest.Server
	feedHits  atomic.Int32
	apiHits   atomic.Int32
	feed      func(w http.ResponseWriter, r *http.Request, hit int32)
	api       func(w http.ResponseWriter, r *http.Request)
	lastFeed  atomic.Value
	lastQuery atomic.Value
	lastPath  atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/calendars/"):
			u.apiHits.Add(1)
			u.lastQuery.Store(r.URL.Query())
			u.lastPath.Store(r.URL.Path)
			if u.api == nil {
				http.Error(w, "no api", http.StatusForbidden)
				return
			}
			u.api(w, r)
		default:
			hit := u.feedHits.Add(1)
			u.lastFeed.Store(r)
			if u.feed == nil {
				http.NotFound(w, r)
				return
			}
			u.feed(w, r, hit)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) config(reference string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendar.Reference = reference
	cfg.Calendar.FeedURLTemplate = u.srv.URL + "/calendar/ical/%s/public/basic.ics"
	cfg.Calendar.APIBaseURL = u.srv.URL + "/"
	cfg.Calendar.Timeout = 2 * time.Second
	return cfg
}

func serveFeed(body []byte) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(body)
	}
}

func TestLoadNotConfiguredMakesNoRequests(t *testing.T) {
	u := newUpstream(t)
	cfg := u.config("   ")
	cfg.Calendar.APIKey = "key"

	before := testutil.ToFloat64(metrics.CalendarLoads.WithLabelValues(string(model.StateNotSynced)))
	state := NewLoader(cfg).Load(context.Background(), referenceNow)

	assert.Equal(t, model.StateNotSynced, state.Kind)
	assert.Equal(t, "not configured", state.Reason)
	assert.Zero(t, u.feedHits.Load())
	assert.Zero(t, u.apiHits.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CalendarLoads.WithLabelValues(string(model.StateNotSynced))))
}

func TestLoadUnresolvableReference(t *testing.T) {
	u := newUpstream(t)
	state := NewLoader(u.config("https://calendar.google.com/calendar/embed?mode=AGENDA")).Load(context.Background(), referenceNow)

	assert.Equal(t, model.StateNotSynced, state.Kind)
	assert.Equal(t, "could not resolve", state.Reason)
	assert.Zero(t, u.feedHits.Load())
}

func TestLoadSingleFeedEvent(t *testing.T) {
	u := newUpstream(t)
	u.feed = serveFeed(feed("DTSTART:20240116T090000Z\nSUMMARY:Live sale"))

	state := NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)

	require.Equal(t, model.StateEvents, state.Kind)
	assert.Equal(t, "feed", state.Source)
	require.Len(t, state.Events, 1)
	assert.Equal(t, "Live sale", state.Events[0].Title)
	assert.True(t, state.Events[0].Start.Equal(time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)))

	req := u.lastFeed.Load().(*http.Request)
	assert.Equal(t, "/calendar/ical/xyz%40group.calendar.google.com/public/basic.ics", req.RequestURI)
	assert.Equal(t, feedAccept, req.Header.Get("Accept"))
	assert.Equal(t, int32(1), u.feedHits.Load())
}

func TestLoadFeedNotFoundRetriesOnce(t *testing.T) {
	u := newUpstream(t)

	state := NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)

	assert.Equal(t, model.StateNotSynced, state.Kind)
	assert.True(t, strings.HasPrefix(state.Reason, "fetch or parse error: "), state.Reason)
	assert.Contains(t, state.Reason, "404")
	assert.Equal(t, int32(2), u.feedHits.Load())
}

func TestLoadFeedRecoversOnRetry(t *testing.T) {
	u := newUpstream(t)
	body := feed("DTSTART:20240116T090000Z\nSUMMARY:Live sale")
	u.feed = func(w http.ResponseWriter, r *http.Request, hit int32) {
		if hit == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		serveFeed(body)(w, r, hit)
	}

	state := NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)

	assert.Equal(t, model.StateEvents, state.Kind)
	assert.Len(t, state.Events, 1)
	assert.Equal(t, int32(2), u.feedHits.Load())
}

func TestLoadFiltersToWindowAndSorts(t *testing.T) {
	u := newUpstream(t)
	u.feed = serveFeed(feed(
		"DTSTART:20240118T170000Z\nSUMMARY:Second",
		"DTSTART:20240126T170000Z\nSUMMARY:Too late",
		"DTSTART:20240116T170000Z\nSUMMARY:First",
	))

	state := NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)

	require.Equal(t, model.StateEvents, state.Kind)
	require.Len(t, state.Events, 2)
	assert.Equal(t, "First", state.Events[0].Title)
	assert.Equal(t, "Second", state.Events[1].Title)
}

func TestLoadEmptyWindowIsNotNotSynced(t *testing.T) {
	u := newUpstream(t)
	u.feed = serveFeed(feed("DTSTART:20240301T170000Z\nSUMMARY:Far away"))

	state := NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)
	assert.Equal(t, model.StateEmptyWindow, state.Kind)

	u.feed = serveFeed([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	state = NewLoader(u.config("xyz@group.calendar.google.com")).Load(context.Background(), referenceNow)
	assert.Equal(t, model.StateEmptyWindow, state.Kind)
}

func TestLoadReusesFeedURLVerbatim(t *testing.T) {
	u := newUpstream(t)
	u.feed = serveFeed(feed("DTSTART:20240116T090000Z\nSUMMARY:Live sale"))

	ref := u.srv.URL + "/calendar/ical/shop%40group.calendar.google.com/public/basic.ics?hl=uk"
	cfg := u.config(ref)
	cfg.Calendar.FeedURLTemplate = u.srv.URL + "/synthesized/%s"

	state := NewLoader(cfg).Load(context.Background(), referenceNow)

	require.Equal(t, model.StateEvents, state.Kind)
	req := u.lastFeed.Load().(*http.Request)
	assert.Equal(t, "/calendar/ical/shop%40group.calendar.google.com/public/basic.ics?hl=uk", req.RequestURI)
}

func TestLoadPrefersAPI(t *testing.T) {
	u := newUpstream(t)
	u.api = func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "a", "summary": "From API", "start": map[string]string{"dateTime": "2024-01-16T11:00:00+02:00"}, "end": map[string]string{"dateTime": "2024-01-16T12:00:00+02:00"}},
				{"id": "b", "start": map[string]string{"date": "2024-01-17"}, "end": map[string]string{"date": "2024-01-18"}},
				{"id": "c", "summary": "No start"},
			},
		})
	}
	cfg := u.config("xyz@group.calendar.google.com")
	cfg.Calendar.APIKey = "secret"

	state := NewLoader(cfg).Load(context.Background(), referenceNow)

	require.Equal(t, model.StateEvents, state.Kind)
	assert.Equal(t, "api", state.Source)
	require.Len(t, state.Events, 2)
	assert.Equal(t, "From API", state.Events[0].Title)
	assert.True(t, state.Events[0].Start.Equal(time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.DefaultTitle, state.Events[1].Title)
	assert.True(t, state.Events[1].AllDay)
	assert.Zero(t, u.feedHits.Load())

	q := u.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"2024-01-15T10:00:00Z"}, q["timeMin"])
	assert.Equal(t, []string{"2024-01-20T10:00:00Z"}, q["timeMax"])
	assert.Equal(t, []string{"true"}, q["singleEvents"])
	assert.Equal(t, []string{"startTime"}, q["orderBy"])
	assert.Equal(t, []string{"50"}, q["maxResults"])
	assert.Equal(t, []string{"secret"}, q["key"])
	assert.Equal(t, "/calendars/xyz@group.calendar.google.com/events", u.lastPath.Load())
}

func TestLoadAPIFallsThroughToFeed(t *testing.T) {
	tests := []struct {
		name string
		api  func(w http.ResponseWriter, r *http.Request)
	}{
		{name: "forbidden", api: nil},
		{name: "no items", api: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items":[]}`))
		}},
		{name: "bad json", api: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t)
			u.api = tt.api
			u.feed = serveFeed(feed("DTSTART:20240116T090000Z\nSUMMARY:From feed"))
			cfg := u.config("xyz@group.calendar.google.com")
			cfg.Calendar.APIKey = "secret"

			state := NewLoader(cfg).Load(context.Background(), referenceNow)

			require.Equal(t, model.StateEvents, state.Kind)
			assert.Equal(t, "feed", state.Source)
			assert.Equal(t, "From feed", state.Events[0].Title)
			assert.Equal(t, int32(1), u.apiHits.Load())
			assert.Equal(t, int32(1), u.feedHits.Load())
		})
	}
}

func TestLoadFeedTimeoutIsNotSynced(t *testing.T) {
	u := newUpstream(t)
	u.feed = func(w http.ResponseWriter, r *http.Request, _ int32) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	cfg := u.config("xyz@group.calendar.google.com")
	cfg.Calendar.Timeout = 50 * time.Millisecond

	state := NewLoader(cfg).Load(context.Background(), referenceNow)

	assert.Equal(t, model.StateNotSynced, state.Kind)
	assert.True(t, strings.HasPrefix(state.Reason, "fetch or parse error: "))
	assert.Equal(t, int32(2), u.feedHits.Load())
}

func TestLoadExpandsRecurringWhenEnabled(t *testing.T) {
	u := newUpstream(t)
	u.feed = serveFeed(feed("DTSTART:20240102T180000Z\nDTEND:20240102T190000Z\nRRULE:FREQ=WEEKLY\nSUMMARY:Tuesday live"))

	cfg := u.config("xyz@group.calendar.google.com")
	state := NewLoader(cfg).Load(context.Background(), referenceNow)
	require.Equal(t, model.StateEvents, state.Kind)
	assert.Equal(t, 2, state.Events[0].Start.Day(), "literal DTSTART is kept by default")

	cfg.Calendar.ExpandRecurring = true
	state = NewLoader(cfg).Load(context.Background(), referenceNow)
	require.Equal(t, model.StateEvents, state.Kind)
	require.Len(t, state.Events, 1)
	assert.Equal(t, 16, state.Events[0].Start.Day())
}
