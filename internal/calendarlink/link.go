// Package calendarlink formats Google Calendar "render" deep links for a
// booked appointment. It has no scheduling semantics of its own.
package calendarlink

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var ErrInvalidDate = errors.New("invalid calendar link dates")

// Compact UTC form Google expects in the dates parameter.
const stampLayout = "20060102T150405Z"

// Build produces a shareable event link. Free-text fields are URL-encoded;
// both instants are rendered in UTC and joined as start/end.
func Build(title, details, location string, start, end time.Time) (string, error) {
	if start.IsZero() || end.IsZero() {
		return "", fmt.Errorf("%w: zero start or end", ErrInvalidDate)
	}
	if !end.After(start) {
		return "", fmt.Errorf("%w: end %s is not after start %s", ErrInvalidDate, end, start)
	}

	dates := start.UTC().Format(stampLayout) + "/" + end.UTC().Format(stampLayout)

	link := fmt.Sprintf(
		"https://www.google.com/calendar/render?action=TEMPLATE&text=%s&dates=%s&details=%s&location=%s&sf=true&output=xml",
		url.QueryEscape(title),
		dates,
		url.QueryEscape(details),
		url.QueryEscape(location),
	)

	return link, nil
}
