// Package materialize holds the stateless window policy: given the
// due-date filters of an incoming query it decides which interval must
// be materialized before the query can be answered correctly.
package materialize

import (
	"time"

	"taskPlanner/internal/models"
	"taskPlanner/internal/recurrence"
)

type Options struct {
	DefaultTimezone      string
	LookaheadDays        int
	MinUpcomingInstances int
	MaxBatchSize         int
	EnableCatchup        bool
	GraceDays            int
}

func DefaultOptions() Options {
	return Options{
		DefaultTimezone:      "UTC",
		LookaheadDays:        30,
		MinUpcomingInstances: 1,
		MaxBatchSize:         100,
		EnableCatchup:        false,
		GraceDays:            3,
	}
}

// Window is the advisory interval [Start, End] that must be consistent
// before a query runs.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type Manager struct {
	opts Options
	loc  *time.Location
}

func NewManager(opts Options) (*Manager, error) {
	loc, err := recurrence.LoadZone(opts.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	return &Manager{opts: opts, loc: loc}, nil
}

func (m *Manager) Options() Options {
	return m.opts
}

// WindowForFilters derives the materialization window from the due-date
// filters of a query tree.
func (m *Manager) WindowForFilters(filters []models.DueFilter) Window {
	return m.WindowForFiltersAt(filters, time.Now())
}

// WindowForFiltersAt is WindowForFilters with an explicit clock.
// Multiple filters compose by taking the union interval. With catch-up
// disabled the window never starts earlier than now minus the grace
// period, regardless of what the filters ask for.
func (m *Manager) WindowForFiltersAt(filters []models.DueFilter, now time.Time) Window {
	now = now.UTC()
	grace := time.Duration(m.opts.GraceDays) * 24 * time.Hour
	lookahead := time.Duration(m.opts.LookaheadDays) * 24 * time.Hour

	if len(filters) == 0 {
		return m.clamp(Window{Start: now.Add(-grace), End: now.Add(lookahead)}, now, grace)
	}

	var win *Window
	for _, f := range filters {
		fw := m.windowForFilter(f, now, grace, lookahead)
		if win == nil {
			w := fw
			win = &w
			continue
		}
		if fw.Start.Before(win.Start) {
			win.Start = fw.Start
		}
		if fw.End.After(win.End) {
			win.End = fw.End
		}
	}
	return m.clamp(*win, now, grace)
}

func (m *Manager) windowForFilter(f models.DueFilter, now time.Time, grace, lookahead time.Duration) Window {
	switch f.Kind {
	case models.DueToday:
		return m.dayWindow(now, 0, grace)
	case models.DueTomorrow:
		return m.dayWindow(now, 1, grace)
	case models.DueYesterday:
		return m.dayWindow(now, -1, grace)
	case models.DueBefore:
		return Window{Start: now.Add(-grace), End: f.At.UTC()}
	case models.DueAfter:
		at := f.At.UTC()
		start := at
		if floor := now.Add(-grace); floor.After(start) {
			start = floor
		}
		end := at.Add(lookahead)
		if alt := now.Add(lookahead); alt.After(end) {
			end = alt
		}
		return Window{Start: start, End: end}
	case models.DueOverdue:
		return Window{Start: time.Unix(0, 0).UTC(), End: now}
	default:
		return Window{Start: now.Add(-grace), End: now.Add(lookahead)}
	}
}

// dayWindow is the day at now+offset days in the configured timezone,
// floored and ceiled, padded by the grace period on both sides.
func (m *Manager) dayWindow(now time.Time, offsetDays int, grace time.Duration) Window {
	local := now.In(m.loc)
	floor := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc).AddDate(0, 0, offsetDays)
	ceil := floor.AddDate(0, 0, 1)
	return Window{Start: floor.Add(-grace).UTC(), End: ceil.Add(grace).UTC()}
}

func (m *Manager) clamp(w Window, now time.Time, grace time.Duration) Window {
	if !m.opts.EnableCatchup {
		if floor := now.Add(-grace); w.Start.Before(floor) {
			w.Start = floor
		}
	}
	if w.End.Before(w.Start) {
		w.End = w.Start
	}
	return w
}
