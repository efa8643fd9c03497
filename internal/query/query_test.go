package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxcal/internal/model"
)

func mkEvent(title, currency string, impact model.Impact, at time.Time) model.Event {
	return model.Event{
		UID:      model.BuildUID(currency, title, at.UTC()),
		Title:    title,
		Currency: currency,
		Impact:   impact,
		UTC:      at.UTC(),
		Local:    at,
	}
}

func sampleEvents() []model.Event {
	day := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	return []model.Event{
		mkEvent("Bank Holiday", "EUR", model.ImpactHoliday, day.Add(8*time.Hour)),
		mkEvent("GDP", "USD", model.ImpactHigh, day.Add(12*time.Hour+30*time.Minute)),
		mkEvent("Retail Sales", "GBP", model.ImpactMedium, day.Add(9*time.Hour)),
		mkEvent("CPI", "USD", model.ImpactHigh, day.Add(24*time.Hour+13*time.Hour)),
		mkEvent("Trade Balance", "JPY", model.ImpactLow, day.Add(48*time.Hour+2*time.Hour)),
	}
}

func titles(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestFilterByImpact(t *testing.T) {
	events := sampleEvents()

	got := FilterByImpact(events, []model.Impact{model.ImpactHigh})

	assert.Equal(t, []string{"GDP", "CPI"}, titles(got), "only High, input order preserved")
}

func TestFilterByImpactEmptySet(t *testing.T) {
	assert.Empty(t, FilterByImpact(sampleEvents(), nil))
}

func TestFilterByCurrencyIsCaseInsensitive(t *testing.T) {
	events := sampleEvents()

	lower := FilterByCurrency(events, []string{"usd"})
	upper := FilterByCurrency(events, []string{"USD"})

	assert.Equal(t, upper, lower)
	assert.Equal(t, []string{"GDP", "CPI"}, titles(lower))
}

func TestFilterByDateRange(t *testing.T) {
	events := sampleEvents()
	day1 := time.Date(2025, 10, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)

	t.Run("no bounds returns everything", func(t *testing.T) {
		got := FilterByDateRange(events, nil, nil, false)
		assert.Equal(t, titles(events), titles(got))
	})

	t.Run("start bound is inclusive", func(t *testing.T) {
		got := FilterByDateRange(events, &day2, nil, false)
		assert.Equal(t, []string{"CPI", "Trade Balance"}, titles(got))
	})

	t.Run("end bound is inclusive by calendar day", func(t *testing.T) {
		got := FilterByDateRange(events, nil, &day1, false)
		assert.Equal(t, []string{"Bank Holiday", "GDP", "Retail Sales"}, titles(got))
	})

	t.Run("both bounds", func(t *testing.T) {
		got := FilterByDateRange(events, &day2, &day2, false)
		assert.Equal(t, []string{"CPI"}, titles(got))
	})
}

func TestSearch(t *testing.T) {
	events := sampleEvents()

	t.Run("matches title case-insensitively", func(t *testing.T) {
		got := Search(events, "gdp")
		require.Len(t, got, 1)
		assert.Equal(t, "GDP", got[0].Title)
	})

	t.Run("matches currency and impact label", func(t *testing.T) {
		assert.Equal(t, []string{"Trade Balance"}, titles(Search(events, "jpy")))
		assert.Equal(t, []string{"Bank Holiday"}, titles(Search(events, "holiday")))
	})

	t.Run("matches optional value fields", func(t *testing.T) {
		withActual := events
		withActual[1].Actual = "2.9%"
		assert.Equal(t, []string{"GDP"}, titles(Search(withActual, "2.9")))
	})

	t.Run("empty query returns a copy of the input", func(t *testing.T) {
		got := Search(events, "")
		assert.Equal(t, titles(events), titles(got))
	})
}

func TestSortImpactFirst(t *testing.T) {
	events := sampleEvents()

	got := Sort(events, true)

	require.NotEmpty(t, got)
	assert.Equal(t, model.ImpactHigh, got[0].Impact, "a High event sorts first when present")
	assert.Equal(t, []string{"GDP", "CPI", "Retail Sales", "Trade Balance", "Bank Holiday"}, titles(got))

	// Input order untouched.
	assert.Equal(t, "Bank Holiday", events[0].Title)
}

func TestSortChronological(t *testing.T) {
	got := Sort(sampleEvents(), false)

	assert.Equal(t, []string{"Bank Holiday", "Retail Sales", "GDP", "CPI", "Trade Balance"}, titles(got))
}

func TestSortIsStableForEqualKeys(t *testing.T) {
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	events := []model.Event{
		mkEvent("First", "USD", model.ImpactHigh, at),
		mkEvent("Second", "EUR", model.ImpactHigh, at),
	}

	got := Sort(events, true)
	assert.Equal(t, []string{"First", "Second"}, titles(got))
}

func TestGroupByDay(t *testing.T) {
	events := sampleEvents()

	groups := GroupByDay(events, false)

	require.Len(t, groups, 3)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), groups[0].Date)
	assert.Equal(t, time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC), groups[1].Date)
	assert.Equal(t, time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC), groups[2].Date)

	// Within a bucket: time, then impact weight, then lowercased title.
	assert.Equal(t, []string{"Bank Holiday", "Retail Sales", "GDP"}, titles(groups[0].Events))
}

func TestGroupByDayTieBreaks(t *testing.T) {
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	events := []model.Event{
		mkEvent("beta", "USD", model.ImpactLow, at),
		mkEvent("Alpha", "USD", model.ImpactLow, at),
		mkEvent("gamma", "USD", model.ImpactHigh, at),
	}

	groups := GroupByDay(events, false)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"gamma", "Alpha", "beta"}, titles(groups[0].Events),
		"same instant: higher impact first, then lowercased title")
}

func TestGroupByDayUsesLocalDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:30 UTC on Oct 2 is still Oct 1 in New York.
	utc := time.Date(2025, 10, 2, 1, 30, 0, 0, time.UTC)
	ev := model.Event{Title: "GDP", Currency: "USD", Impact: model.ImpactHigh, UTC: utc, Local: utc.In(loc)}

	byUTC := GroupByDay([]model.Event{ev}, false)
	byLocal := GroupByDay([]model.Event{ev}, true)

	require.Len(t, byUTC, 1)
	require.Len(t, byLocal, 1)
	assert.Equal(t, 2, byUTC[0].Date.Day())
	assert.Equal(t, 1, byLocal[0].Date.Day())
}
