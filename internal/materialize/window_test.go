package materialize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskPlanner/internal/materialize"
	"taskPlanner/internal/models"
)

func newManager(t *testing.T, opts materialize.Options) *materialize.Manager {
	t.Helper()
	m, err := materialize.NewManager(opts)
	require.NoError(t, err)
	return m
}

// TestWindowForFilters maps each filter kind to its interval, with
// catch-up enabled so the raw policy is visible.
func TestWindowForFilters(t *testing.T) {
	opts := materialize.DefaultOptions()
	opts.EnableCatchup = true
	m := newManager(t, opts)

	now := time.Date(2025, 8, 8, 12, 0, 0, 0, time.UTC)
	grace := 3 * 24 * time.Hour
	lookahead := 30 * 24 * time.Hour
	day := func(d int) time.Time { return time.Date(2025, 8, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		filters  []models.DueFilter
		expected materialize.Window
	}{
		{
			name:     "no filters means default horizon",
			filters:  nil,
			expected: materialize.Window{Start: now.Add(-grace), End: now.Add(lookahead)},
		},
		{
			name:     "today pads the day by grace",
			filters:  []models.DueFilter{{Kind: models.DueToday}},
			expected: materialize.Window{Start: day(8).Add(-grace), End: day(9).Add(grace)},
		},
		{
			name:     "tomorrow shifts one day ahead",
			filters:  []models.DueFilter{{Kind: models.DueTomorrow}},
			expected: materialize.Window{Start: day(9).Add(-grace), End: day(10).Add(grace)},
		},
		{
			name:     "yesterday shifts one day back",
			filters:  []models.DueFilter{{Kind: models.DueYesterday}},
			expected: materialize.Window{Start: day(7).Add(-grace), End: day(8).Add(grace)},
		},
		{
			name:     "before caps the end",
			filters:  []models.DueFilter{{Kind: models.DueBefore, At: day(20)}},
			expected: materialize.Window{Start: now.Add(-grace), End: day(20)},
		},
		{
			name:     "after in the future starts there",
			filters:  []models.DueFilter{{Kind: models.DueAfter, At: day(15)}},
			expected: materialize.Window{Start: day(15), End: day(15).Add(lookahead)},
		},
		{
			name:    "after in the past floors at the grace bound",
			filters: []models.DueFilter{{Kind: models.DueAfter, At: day(1)}},
			expected: materialize.Window{
				Start: now.Add(-grace),
				End:   now.Add(lookahead),
			},
		},
		{
			name:     "overdue reaches back to the epoch",
			filters:  []models.DueFilter{{Kind: models.DueOverdue}},
			expected: materialize.Window{Start: time.Unix(0, 0).UTC(), End: now},
		},
		{
			name: "multiple filters take the union",
			filters: []models.DueFilter{
				{Kind: models.DueToday},
				{Kind: models.DueAfter, At: day(15)},
			},
			expected: materialize.Window{Start: day(8).Add(-grace), End: day(15).Add(lookahead)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := m.WindowForFiltersAt(tt.filters, now)
			assert.Equal(t, tt.expected.Start, w.Start, "start")
			assert.Equal(t, tt.expected.End, w.End, "end")
		})
	}
}

// TestWindow_CatchupClamp keeps the start above now minus grace when
// catch-up is off.
func TestWindow_CatchupClamp(t *testing.T) {
	opts := materialize.DefaultOptions()
	opts.EnableCatchup = false
	m := newManager(t, opts)

	now := time.Date(2025, 8, 8, 12, 0, 0, 0, time.UTC)
	floor := now.Add(-3 * 24 * time.Hour)

	w := m.WindowForFiltersAt([]models.DueFilter{{Kind: models.DueOverdue}}, now)
	assert.Equal(t, floor, w.Start)
	assert.Equal(t, now, w.End)
}

// TestWindow_TimezoneDays floors day filters in the configured zone
func TestWindow_TimezoneDays(t *testing.T) {
	opts := materialize.DefaultOptions()
	opts.DefaultTimezone = "Asia/Tokyo"
	opts.EnableCatchup = true
	m := newManager(t, opts)

	// 23:00 UTC on Aug 8 is already Aug 9 in Tokyo
	now := time.Date(2025, 8, 8, 23, 0, 0, 0, time.UTC)
	grace := 3 * 24 * time.Hour

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	floor := time.Date(2025, 8, 9, 0, 0, 0, 0, tokyo)

	w := m.WindowForFiltersAt([]models.DueFilter{{Kind: models.DueToday}}, now)
	assert.Equal(t, floor.Add(-grace).UTC(), w.Start)
	assert.Equal(t, floor.AddDate(0, 0, 1).Add(grace).UTC(), w.End)
}

// TestWindow_Contains is a closed interval
func TestWindow_Contains(t *testing.T) {
	start := time.Date(2025, 8, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)
	w := materialize.Window{Start: start, End: end}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(end))
	assert.True(t, w.Contains(start.AddDate(0, 0, 3)))
	assert.False(t, w.Contains(start.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(end.Add(time.Nanosecond)))
}

// TestNewManager_BadZone rejects an unknown default timezone
func TestNewManager_BadZone(t *testing.T) {
	opts := materialize.DefaultOptions()
	opts.DefaultTimezone = "Nowhere/Void"
	_, err := materialize.NewManager(opts)
	assert.Error(t, err)
}
