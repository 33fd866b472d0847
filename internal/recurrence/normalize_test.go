package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskPlanner/internal/recurrence"
)

// TestNormalize_CanonicalForm checks the serialized shape of accepted rules
func TestNormalize_CanonicalForm(t *testing.T) {
	dtstart := time.Date(2025, 8, 8, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		tz       string
		expected string
	}{
		{
			name:     "bare body in UTC",
			raw:      "FREQ=DAILY",
			tz:       "UTC",
			expected: "DTSTART:20250808T090000Z\nRRULE:FREQ=DAILY",
		},
		{
			name:     "RRULE prefix stripped",
			raw:      "RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
			tz:       "UTC",
			expected: "DTSTART:20250808T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE",
		},
		{
			name:     "zoned dtstart carries TZID",
			raw:      "FREQ=DAILY",
			tz:       "Europe/Berlin",
			expected: "DTSTART;TZID=Europe/Berlin:20250808T110000\nRRULE:FREQ=DAILY",
		},
		{
			name:     "embedded DTSTART is ignored",
			raw:      "DTSTART:20200101T000000Z\nRRULE:FREQ=DAILY",
			tz:       "UTC",
			expected: "DTSTART:20250808T090000Z\nRRULE:FREQ=DAILY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, err := recurrence.Normalize(tt.raw, dtstart, tt.tz)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, canonical)
		})
	}
}

// TestNormalize_Idempotent feeds the canonical form back in
func TestNormalize_Idempotent(t *testing.T) {
	dtstart := time.Date(2025, 8, 8, 9, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO",
		"FREQ=MONTHLY;BYMONTHDAY=15",
		"FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=24",
	} {
		canonical, err := recurrence.Normalize(raw, dtstart, "Europe/Berlin")
		require.NoError(t, err, raw)

		again, err := recurrence.Normalize(canonical, dtstart, "Europe/Berlin")
		require.NoError(t, err, raw)
		assert.Equal(t, canonical, again, raw)
	}
}

// TestNormalize_Rejections covers the unsupported subset and bad input
func TestNormalize_Rejections(t *testing.T) {
	dtstart := time.Date(2025, 8, 8, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		tz       string
		expected error
	}{
		{"unknown timezone", "FREQ=DAILY", "Mars/Olympus", recurrence.ErrInvalidTimezone},
		{"empty rule", "", "UTC", recurrence.ErrInvalidRRule},
		{"missing FREQ", "INTERVAL=2", "UTC", recurrence.ErrInvalidRRule},
		{"unsupported frequency", "FREQ=SECONDLY", "UTC", recurrence.ErrInvalidRRule},
		{"unsupported part", "FREQ=DAILY;BYSETPOS=1", "UTC", recurrence.ErrInvalidRRule},
		{"unsupported part BYHOUR", "FREQ=DAILY;BYHOUR=9", "UTC", recurrence.ErrInvalidRRule},
		{"multiple RRULE lines", "RRULE:FREQ=DAILY\nRRULE:FREQ=WEEKLY", "UTC", recurrence.ErrInvalidRRule},
		{"garbage line", "not a rule", "UTC", recurrence.ErrInvalidRRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := recurrence.Normalize(tt.raw, dtstart, tt.tz)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

// TestNormalize_YearBounds rejects dtstart and UNTIL outside year 1..9999
func TestNormalize_YearBounds(t *testing.T) {
	farFuture := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := recurrence.Normalize("FREQ=DAILY", farFuture, "UTC")
	assert.ErrorIs(t, err, recurrence.ErrInvalidRRule)
}

// TestNormalize_DST pins wall clocks across the Europe/Berlin transitions:
// the spring-forward gap rolls forward, the fall-back ambiguity resolves
// to the earlier instant.
func TestNormalize_DST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	t.Run("spring forward gap rolls ahead", func(t *testing.T) {
		// 2025-03-30 02:30 does not exist in Berlin; it becomes 03:30 CEST
		gap := time.Date(2025, 3, 30, 2, 30, 0, 0, berlin)
		canonical, err := recurrence.Normalize("FREQ=DAILY", gap, "Europe/Berlin")
		require.NoError(t, err)
		assert.Contains(t, canonical, "DTSTART;TZID=Europe/Berlin:20250330T033000")
	})

	t.Run("fall back ambiguity takes earlier instant", func(t *testing.T) {
		// 2025-10-26 02:30 happens twice; the CEST (earlier) instant wins
		base := time.Date(2025, 10, 26, 0, 30, 0, 0, time.UTC) // 02:30 CEST
		canonical, err := recurrence.Normalize("FREQ=DAILY", base, "Europe/Berlin")
		require.NoError(t, err)
		assert.Contains(t, canonical, "DTSTART;TZID=Europe/Berlin:20251026T023000")
	})
}
