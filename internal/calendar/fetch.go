package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "storefront/internal/log"
	"storefront/internal/metrics"
)

const (
	// maxFeedBytes bounds the feed payload read into memory.
	maxFeedBytes = 16 << 20
	// errorBodyPreview is how much of a non-OK response body gets logged.
	errorBodyPreview = 512

	feedAccept = "text/calendar, text/plain, */*"
)

// StatusError is returned when an upstream answers with a non-OK status.
type StatusError struct {
	Source     string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Source, e.Status)
}

// Fetcher downloads the public plain-text feed. It keeps no cache: every
// load cycle sees the upstream as it is.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	limit   int64
}

// NewFetcher creates a Fetcher whose requests are each bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		limit:   maxFeedBytes,
	}
}

// Fetch GETs feedURL and returns the body of a 200 response. Bodies larger
// than the fetcher's limit are rejected rather than truncated.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFetch("feed", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", feedAccept)
	req.Header.Set("Cache-Control", "no-cache")

	appLog.Info("calendar feed fetch start", "url", redactURL(feedURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPreview))
		serr := &StatusError{Source: "feed", StatusCode: resp.StatusCode, Status: resp.Status}
		appLog.Error("calendar feed fetch non-OK", serr,
			"url", redactURL(feedURL),
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(preview)),
		)
		return nil, serr
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.limit {
		return nil, fmt.Errorf("feed: body exceeds %d bytes", f.limit)
	}

	appLog.Info("calendar feed fetch success", "url", redactURL(feedURL), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// redactURL keeps only scheme and host of a URL for logging; feed paths
// carry the calendar ID and API URLs carry the key.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "calendar://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
