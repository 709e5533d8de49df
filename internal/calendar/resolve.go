package calendar

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	appLog "storefront/internal/log"
)

var (
	// ErrNotConfigured means the shop has no calendar reference at all.
	ErrNotConfigured = errors.New("calendar reference not configured")
	// ErrUnresolvable means a reference is present but no identifier could
	// be extracted from it.
	ErrUnresolvable = errors.New("calendar reference could not be resolved")
)

const (
	embedMarker = "/embed?"
	icalMarker  = "/ical/"
	feedSuffix  = "/public/basic.ics"

	embedURLFormat = "https://calendar.google.com/calendar/embed?src=%s&ctz=%s&mode=AGENDA&showNav=0&showTitle=0&showPrint=0&showCalendars=0&showTabs=0"
)

// Resolve normalizes a calendar reference into a bare calendar identifier.
//
// Accepted shapes:
//   - "id@group.calendar.google.com" (returned unchanged)
//   - ".../embed?src=<percent-encoded id>"
//   - ".../ical/<percent-encoded id>/public/basic.ics"
//
// Anything else that is not a broken URL is returned unchanged as a
// best-effort identifier. An empty reference yields ErrNotConfigured.
func Resolve(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", ErrNotConfigured
	}

	if strings.Contains(ref, "@") && !strings.HasPrefix(ref, "http") {
		return ref, nil
	}

	if strings.Contains(ref, embedMarker) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}
		src := u.Query().Get("src")
		if src == "" {
			return "", fmt.Errorf("%w: embed URL has no src parameter", ErrUnresolvable)
		}
		id, err := url.PathUnescape(src)
		if err != nil || id == "" {
			return "", fmt.Errorf("%w: bad src encoding", ErrUnresolvable)
		}
		appLog.Debug("calendar: resolved embed URL", "id", id)
		return id, nil
	}

	if i := strings.Index(ref, icalMarker); i >= 0 {
		rest := ref[i+len(icalMarker):]
		if j := strings.Index(rest, "/"); j > 0 {
			id, err := url.PathUnescape(rest[:j])
			if err != nil || id == "" {
				return "", fmt.Errorf("%w: bad iCal segment encoding", ErrUnresolvable)
			}
			if !strings.Contains(id, "@") {
				appLog.Warn("calendar: resolved ID has no @, it may be incomplete", "id", id)
			}
			appLog.Debug("calendar: resolved iCal URL", "id", id)
			return id, nil
		}
		appLog.Warn("calendar: iCal URL has no calendar segment; using it as the ID", "reference", redactURL(ref))
	}

	if strings.Contains(ref, "://") {
		if _, err := url.Parse(ref); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}
	}

	return ref, nil
}

// IsFeedURL reports whether reference is already a public iCal feed URL
// that can be fetched as-is.
func IsFeedURL(reference string) bool {
	return strings.Contains(reference, icalMarker) && strings.Contains(reference, feedSuffix)
}

// FeedURL builds the public feed URL for id from a template holding one %s.
func FeedURL(template, id string) string {
	return fmt.Sprintf(template, encodeComponent(id))
}

// EmbedURL builds the agenda-mode iframe URL for id.
func EmbedURL(id, timezone string) string {
	return fmt.Sprintf(embedURLFormat, encodeComponent(id), encodeComponent(timezone))
}

// encodeComponent percent-encodes s for use as a single URL path segment or
// query value ("@" becomes "%40", space becomes "%20").
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
