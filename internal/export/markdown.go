/*
Package export renders event collections into markdown and iCalendar
documents and writes them to disk.
*/
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fxcal/internal/model"
	"fxcal/internal/query"
)

const (
	tableHeader  = "| Time | Currency | Event | Actual | Forecast | Previous |"
	tableDivider = "|------|----------|-------|--------|----------|----------|"
	missingValue = "n/a"
	noEventsLine = "No scheduled events."
)

// RenderMarkdown renders the day-grouped view. Day headings come from
// grouping all events so the document shape is stable across filter changes;
// table rows come from the filtered subset, chronologically ordered. A nil
// filtered slice means "no filtering" and renders every event.
func RenderMarkdown(all, filtered []model.Event, title string, useLocal bool) string {
	if filtered == nil {
		filtered = all
	}

	var sb strings.Builder
	sb.WriteString("# " + title + "\n\n")

	dayGroups := query.GroupByDay(all, useLocal)
	if len(dayGroups) == 0 {
		sb.WriteString(noEventsLine + "\n")
		return sb.String()
	}

	filteredByDay := make(map[time.Time][]model.Event)
	for _, g := range query.GroupByDay(filtered, useLocal) {
		filteredByDay[g.Date] = g.Events
	}

	for _, g := range dayGroups {
		sb.WriteString("## " + g.Date.Format("Mon Jan 02") + "\n")

		dayEvents := filteredByDay[g.Date]
		if len(dayEvents) == 0 {
			sb.WriteString(noEventsLine + "\n\n")
			continue
		}

		sb.WriteString(tableHeader + "\n")
		sb.WriteString(tableDivider + "\n")
		for _, e := range query.Sort(dayEvents, false) {
			sb.WriteString(formatRow(e, useLocal) + "\n")
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func formatRow(e model.Event, useLocal bool) string {
	dt := e.UTC
	if useLocal {
		dt = e.Local
	}
	return fmt.Sprintf("| %s | %s | %s | %s | %s | %s |",
		formatClock(dt), e.Currency, e.Title,
		orMissing(e.Actual), orMissing(e.Forecast), orMissing(e.Previous))
}

// formatClock renders times like "2:30pm" with no leading zero; midnight
// stays "12:00am".
func formatClock(dt time.Time) string {
	return strings.ToLower(dt.Format("3:04PM"))
}

func orMissing(value string) string {
	if value == "" {
		return missingValue
	}
	return value
}

// WriteFile writes content as UTF-8, creating parent directories as needed.
func WriteFile(content, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// DefaultOutputPath builds a timestamped filename under dir, slugged with
// the requested impact levels ("all" when none are given).
func DefaultOutputPath(dir string, impacts []model.Impact, ts time.Time, ext string) string {
	seen := make(map[string]struct{}, len(impacts))
	parts := make([]string, 0, len(impacts))
	for _, impact := range impacts {
		slug := strings.ToLower(string(impact))
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		parts = append(parts, slug)
	}
	sort.Strings(parts)

	slug := strings.Join(parts, "-")
	if slug == "" {
		slug = "all"
	}

	filename := fmt.Sprintf("%s_impact_news_%s.%s", slug, ts.Format("20060102_1504"), ext)
	return filepath.Join(dir, filename)
}
