/*
Package query provides pure, side-effect-free operations over event
collections. Every function returns a fresh slice and never mutates its
input.
*/
package query

import (
	"sort"
	"strings"
	"time"

	"fxcal/internal/model"
)

// FilterByImpact keeps events whose impact is a member of the given set.
func FilterByImpact(events []model.Event, impacts []model.Impact) []model.Event {
	allowed := make(map[model.Impact]struct{}, len(impacts))
	for _, impact := range impacts {
		allowed[impact] = struct{}{}
	}

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if _, ok := allowed[e.Impact]; ok {
			out = append(out, e)
		}
	}
	return out
}

// FilterByCurrency keeps events matching any of the given currency codes.
// Comparison normalizes both sides to uppercase.
func FilterByCurrency(events []model.Event, currencies []string) []model.Event {
	allowed := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		allowed[strings.ToUpper(c)] = struct{}{}
	}

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if _, ok := allowed[strings.ToUpper(e.Currency)]; ok {
			out = append(out, e)
		}
	}
	return out
}

// FilterByDateRange keeps events whose calendar date (local or UTC per
// useLocal) falls within [start, end] inclusive. Only the year/month/day of
// the bounds are honored. A nil bound is unconstrained on that side; both
// bounds nil returns a copy of the input.
func FilterByDateRange(events []model.Event, start, end *time.Time, useLocal bool) []model.Event {
	if start == nil && end == nil {
		return append([]model.Event(nil), events...)
	}

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		day := dayOf(eventTime(e, useLocal))
		if start != nil && day.Before(dayOf(*start)) {
			continue
		}
		if end != nil && day.After(dayOf(*end)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Search keeps events with a case-insensitive substring match against title,
// currency, impact label, forecast, previous, or actual; absent fields are
// skipped. An empty query returns a copy of the input.
func Search(events []model.Event, q string) []model.Event {
	if q == "" {
		return append([]model.Event(nil), events...)
	}
	needle := strings.ToLower(q)

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if matches(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

// Sort orders events either impact-first (severity weight, then UTC time) or
// purely chronologically by UTC time. The sort is stable for equal keys.
func Sort(events []model.Event, byImpactFirst bool) []model.Event {
	out := append([]model.Event(nil), events...)
	if byImpactFirst {
		sort.SliceStable(out, func(i, j int) bool {
			wi, ti := out[i].SortKey()
			wj, tj := out[j].SortKey()
			if wi != wj {
				return wi < wj
			}
			return ti.Before(tj)
		})
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UTC.Before(out[j].UTC)
	})
	return out
}

// DayGroup is one calendar day's worth of events, ordered for display.
type DayGroup struct {
	Date   time.Time // midnight (UTC) of the bucket's calendar day
	Events []model.Event
}

// GroupByDay buckets events by calendar date (local or UTC per useLocal).
// Buckets are ordered by ascending date; within a bucket events are ordered
// by (time, impact weight, lowercased title).
func GroupByDay(events []model.Event, useLocal bool) []DayGroup {
	buckets := make(map[time.Time][]model.Event)
	for _, e := range events {
		day := dayOf(eventTime(e, useLocal))
		buckets[day] = append(buckets[day], e)
	}

	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	groups := make([]DayGroup, 0, len(days))
	for _, day := range days {
		evs := buckets[day]
		sort.SliceStable(evs, func(i, j int) bool {
			ti := eventTime(evs[i], useLocal)
			tj := eventTime(evs[j], useLocal)
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			wi, wj := evs[i].Impact.Weight(), evs[j].Impact.Weight()
			if wi != wj {
				return wi < wj
			}
			return strings.ToLower(evs[i].Title) < strings.ToLower(evs[j].Title)
		})
		groups = append(groups, DayGroup{Date: day, Events: evs})
	}
	return groups
}

func matches(e model.Event, needle string) bool {
	haystacks := []string{
		e.Title,
		e.Currency,
		string(e.Impact),
		e.Forecast,
		e.Previous,
		e.Actual,
	}
	for _, hay := range haystacks {
		if hay == "" {
			continue
		}
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func eventTime(e model.Event, useLocal bool) time.Time {
	if useLocal {
		return e.Local
	}
	return e.UTC
}

// dayOf reduces an instant to its calendar day, normalized into UTC so the
// value works as a map key regardless of the source location.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
