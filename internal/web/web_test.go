package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/render"
)

const liveSaleFeed = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-1@example.com\r\n" +
	"DTSTART:20240116T090000Z\r\n" +
	"SUMMARY:Live sale\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newTestServer(t *testing.T, feed string) (*Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	s := newTestServerWith(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feed))
	})
	return s, &hits
}

func newTestServerWith(t *testing.T, upstreamHandler http.HandlerFunc) *Server {
	t.Helper()

	upstream := httptest.NewServer(upstreamHandler)
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Profile.ShopName = "Крамниця"
	cfg.Calendar.Reference = "shop@group.calendar.google.com"
	cfg.Calendar.FeedURLTemplate = upstream.URL + "/calendar/ical/%s/public/basic.ics"
	cfg.Calendar.Timeout = 2 * time.Second

	s := NewServer(cfg)
	s.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeCalendar(t *testing.T, rec *httptest.ResponseRecorder) calendarResponse {
	t.Helper()
	var resp calendarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)
	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCalendarEndpointLoadsOnceAndCaches(t *testing.T) {
	s, hits := newTestServer(t, liveSaleFeed)

	rec := do(t, s, http.MethodGet, "/api/calendar")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decodeCalendar(t, rec)
	assert.Equal(t, model.StateEvents, resp.Kind)
	assert.Equal(t, "Крамниця: Розклад прямих ефірів", resp.Title)
	assert.Equal(t, "UTC", resp.Timezone)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "Вівторок, 16 січня", resp.Entries[0].Date)
	assert.Equal(t, "09:00", resp.Entries[0].Time)
	assert.Equal(t, "Live sale", resp.Entries[0].Title)

	do(t, s, http.MethodGet, "/api/calendar")
	assert.Equal(t, int32(1), hits.Load())
}

func TestCalendarEndpointNotConfigured(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	resp := decodeCalendar(t, do(t, s, http.MethodGet, "/api/calendar"))
	assert.Equal(t, model.StateNotSynced, resp.Kind)
	assert.Equal(t, render.MessageNotSynced, resp.Message)
	assert.NotNil(t, resp.Entries)
	assert.Empty(t, resp.Entries)
}

func TestCalendarEndpointEmptyWindow(t *testing.T) {
	s, _ := newTestServer(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")

	resp := decodeCalendar(t, do(t, s, http.MethodGet, "/api/calendar"))
	assert.Equal(t, model.StateEmptyWindow, resp.Kind)
	assert.Equal(t, render.MessageEmptyWindow, resp.Message)
}

func TestRefreshIsRateLimited(t *testing.T) {
	s, hits := newTestServer(t, liveSaleFeed)

	for i := 0; i < refreshBurst; i++ {
		rec := do(t, s, http.MethodPost, "/api/calendar/refresh")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.StateEvents, decodeCalendar(t, rec).Kind)
	}

	rec := do(t, s, http.MethodPost, "/api/calendar/refresh")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, int32(refreshBurst), hits.Load())

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/calendar/refresh").Code)
}

func TestRefreshRespondsWithItsOwnCycle(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	s := newTestServerWith(t, func(w http.ResponseWriter, _ *http.Request) {
		title := "Second"
		if hits.Add(1) == 1 {
			<-release
			title = "First"
		}
		_, _ = w.Write([]byte(strings.Replace(liveSaleFeed, "Live sale", title, 1)))
	})

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- do(t, s, http.MethodPost, "/api/calendar/refresh") }()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	second := decodeCalendar(t, do(t, s, http.MethodPost, "/api/calendar/refresh"))
	require.Len(t, second.Entries, 1)
	assert.Equal(t, "Second", second.Entries[0].Title)

	close(release)
	got := decodeCalendar(t, <-first)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "First", got.Entries[0].Title)
}

func TestProfileEndpoint(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)
	s.cfg.Calendar.APIKey = "secret"

	rec := do(t, s, http.MethodGet, "/api/profile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	var page struct {
		CalendarTitle string `json:"calendar_title"`
		CalendarEmbed string `json:"calendar_embed"`
		Profile       struct {
			ShopName string `json:"shop_name"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, "Крамниця", page.Profile.ShopName)
	assert.Equal(t, "Крамниця: Розклад прямих ефірів", page.CalendarTitle)
	assert.Contains(t, page.CalendarEmbed, "src=shop%40group.calendar.google.com")
}

func TestICSEndpoint(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)

	rec := do(t, s, http.MethodGet, "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "SUMMARY:Live sale")
	assert.Contains(t, body, "UID:ev-1@example.com")
}

func TestICSEndpointWithoutEvents(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	rec := do(t, s, http.MethodGet, "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "BEGIN:VEVENT")
}

func TestStaticAndMisses(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-ready="false"`)

	rec = do(t, s, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "<html"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)
	do(t, s, http.MethodGet, "/health")

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_requests_total")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, liveSaleFeed)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, s, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
