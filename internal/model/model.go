package model

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Impact classifies the severity of a scheduled economic event as emitted
// by the calendar feed.
type Impact string

const (
	ImpactHigh    Impact = "High"
	ImpactMedium  Impact = "Medium"
	ImpactLow     Impact = "Low"
	ImpactHoliday Impact = "Holiday"
	ImpactNone    Impact = "None"
	ImpactUnknown Impact = "Unknown"
)

// ImpactFromValue maps a feed-supplied impact string onto the closed Impact
// set. Matching is case-insensitive. Unrecognized or empty input yields
// ImpactUnknown rather than an error, since the upstream vocabulary may drift.
func ImpactFromValue(value string) Impact {
	normalized := Impact(titleCase(strings.TrimSpace(value)))
	switch normalized {
	case ImpactHigh, ImpactMedium, ImpactLow, ImpactHoliday, ImpactNone, ImpactUnknown:
		return normalized
	}
	return ImpactUnknown
}

// Weight returns the ordering weight used for impact-first sorting; more
// severe impacts sort first.
func (i Impact) Weight() int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	case ImpactLow:
		return 2
	case ImpactHoliday:
		return 3
	case ImpactNone:
		return 4
	case ImpactUnknown:
		return 5
	}
	return 9
}

const (
	placeholderTitle    = "Untitled"
	placeholderCurrency = "N/A"
)

// Event is the canonical representation of one calendar entry. Events are
// constructed fresh on every fetch or cache load and never mutated; the
// whole collection is replaced wholesale on refresh.
type Event struct {
	// UID is derived purely from (Currency, Title, UTC), so identical
	// source events always produce identical ids across fetches.
	UID string

	Title    string
	Currency string
	Impact   Impact

	// UTC and Local hold the same instant; Local is a timezone conversion
	// of UTC, never independently sourced.
	UTC   time.Time
	Local time.Time

	// Optional feed values; whitespace-only input normalizes to "".
	Forecast string
	Previous string
	Actual   string

	// Raw retains the original feed object for traceability.
	Raw map[string]any
}

// SortKey orders events by impact severity first, then chronologically.
func (e Event) SortKey() (int, time.Time) {
	return e.Impact.Weight(), e.UTC
}

// ValidationError reports a feed payload that cannot be interpreted as
// calendar event data.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid calendar payload: " + e.Reason
}

// timestampLayouts are the accepted ISO-8601 shapes, most specific first.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 feed timestamp. Values without an
// explicit offset are interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Reason: fmt.Sprintf("date %q is not an ISO-8601 timestamp", value)}
}

// BuildUID derives the stable event identity from the three fields that
// survive feed refreshes unchanged.
func BuildUID(currency, title string, utc time.Time) string {
	return strings.ToLower(currency + ":" + utc.Format(time.RFC3339) + ":" + title)
}

// FromPayload converts one raw feed object into an Event. The payload must
// carry a string "date" field parseable as an ISO-8601 timestamp; anything
// else fails with a ValidationError. loc is the display timezone for the
// Local instant (nil means the system timezone).
func FromPayload(payload map[string]any, loc *time.Location) (Event, error) {
	if loc == nil {
		loc = time.Local
	}

	dateValue, _ := payload["date"].(string)
	if dateValue == "" {
		return Event{}, &ValidationError{Reason: `missing "date" string`}
	}
	parsed, err := ParseTimestamp(dateValue)
	if err != nil {
		return Event{}, err
	}
	utc := parsed.UTC()

	title := stringField(payload, "title")
	if title == "" {
		title = placeholderTitle
	}
	currency := stringField(payload, "country")
	if currency == "" {
		currency = placeholderCurrency
	}

	return Event{
		UID:      BuildUID(currency, title, utc),
		Title:    title,
		Currency: currency,
		Impact:   ImpactFromValue(stringField(payload, "impact")),
		UTC:      utc,
		Local:    utc.In(loc),
		Forecast: optionalField(payload, "forecast"),
		Previous: optionalField(payload, "previous"),
		Actual:   optionalField(payload, "actual"),
		Raw:      maps.Clone(payload),
	}, nil
}

// BuildEvents converts a validated payload array into events, preserving
// input order. A conversion failure for any element aborts the whole batch;
// there are no partial results.
func BuildEvents(payload []map[string]any, loc *time.Location) ([]Event, error) {
	events := make([]Event, 0, len(payload))
	for i, item := range payload {
		ev, err := FromPayload(item, loc)
		if err != nil {
			return nil, fmt.Errorf("event at index %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DiffNew returns the events in next whose UID does not appear in prev.
// Identity is the UID alone, so value-only changes (an actual figure being
// published, a revised forecast) do not count as new events.
func DiffNew(prev, next []Event) []Event {
	seen := make(map[string]struct{}, len(prev))
	for _, e := range prev {
		seen[e.UID] = struct{}{}
	}
	var out []Event
	for _, e := range next {
		if _, ok := seen[e.UID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func optionalField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
