package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "storefront/internal/log"
	"storefront/internal/metrics"
	"storefront/internal/model"
)

// apiMaxResults caps the number of instances requested from the events API.
const apiMaxResults = 50

// APIClient queries the structured events API. It is only consulted when
// an API key is configured.
type APIClient struct {
	svc     *gcal.Service
	key     string
	timeout time.Duration
}

// NewAPIClient returns a client for the events API rooted at baseURL
// (the v3 root, with a trailing slash). Requests are authenticated with
// key and bounded by timeout.
func NewAPIClient(baseURL, key string, timeout time.Duration) (*APIClient, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	svc, err := gcal.NewService(context.Background(),
		option.WithAPIKey(key),
		option.WithEndpoint(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("api: create calendar service: %w", err)
	}

	return &APIClient{svc: svc, key: key, timeout: timeout}, nil
}

// ListEvents returns single (recurrence-expanded) instances starting in
// [from, to], ordered by start time. All-day dates are placed at midnight
// in loc.
func (c *APIClient) ListEvents(ctx context.Context, id string, from, to time.Time, loc *time.Location) (events []model.EventRecord, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFetch("api", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// option.WithAPIKey is ignored once an HTTP client is supplied, so the
	// key also travels as a call parameter.
	resp, err := c.svc.Events.List(id).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(apiMaxResults).
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.key))
	if err != nil {
		return nil, fmt.Errorf("api: list events: %w", err)
	}

	events = make([]model.EventRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		rec, ok := eventRecord(item, loc)
		if !ok {
			appLog.Warn("calendar api: skipping item without usable start", "id", item.Id)
			continue
		}
		events = append(events, rec)
	}
	return events, nil
}

func eventRecord(e *gcal.Event, loc *time.Location) (model.EventRecord, bool) {
	if e == nil {
		return model.EventRecord{}, false
	}
	start, allDay, ok := decodeEventTime(e.Start, loc)
	if !ok {
		return model.EventRecord{}, false
	}
	end, _, ok := decodeEventTime(e.End, loc)
	if !ok {
		end = start
	}

	title := strings.TrimSpace(e.Summary)
	if title == "" {
		title = model.DefaultTitle
	}
	return model.EventRecord{
		UID:         e.Id,
		Title:       title,
		Description: e.Description,
		Start:       start,
		End:         end,
		AllDay:      allDay,
	}, true
}

// decodeEventTime reports the instant, whether it is a date-only value and
// whether it could be decoded at all.
func decodeEventTime(t *gcal.EventDateTime, loc *time.Location) (time.Time, bool, bool) {
	switch {
	case t == nil:
		return time.Time{}, false, false
	case t.DateTime != "":
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err == nil
	case t.Date != "":
		v, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		return v, true, err == nil
	}
	return time.Time{}, false, false
}
