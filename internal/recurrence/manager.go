package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"taskPlanner/internal/models"
)

// Occurrence is a single canonical instant of a series, annotated with
// the applicable exception and the effective instant after applying it
// (the move target for a Move, otherwise the original).
type Occurrence struct {
	Original  time.Time
	Effective time.Time
	Exception *models.SeriesException
}

// Hidden reports whether the occurrence is suppressed from previews.
func (o Occurrence) Hidden() bool {
	return o.Exception != nil && o.Exception.Type == models.ExceptionSkip
}

// Materializable reports whether a refresh may insert an instance row
// for this occurrence. Skip, Override and Move all leave the original
// instant unmaterialized.
func (o Occurrence) Materializable() bool {
	return o.Exception == nil
}

// Manager is a pure function object over one series: it enumerates
// canonical occurrences and merges exceptions into the effective
// sequence. It performs no I/O.
type Manager struct {
	series     *models.TaskSeries
	template   *models.Task
	set        *rrule.Set
	loc        *time.Location
	exceptions []models.SeriesException
	byInstant  map[int64]*models.SeriesException
	moveDue    map[uuid.UUID]time.Time
}

// NewManager builds a manager from a series, its template and the full
// exception list. moveDue maps a Move exception's task id to that task's
// due instant; pass nil when no Move redirection is needed (for example
// during materialization, which never touches excepted occurrences).
func NewManager(series *models.TaskSeries, template *models.Task, exceptions []models.SeriesException, moveDue map[uuid.UUID]time.Time) (*Manager, error) {
	loc, err := LoadZone(series.Timezone)
	if err != nil {
		return nil, err
	}

	set, err := rrule.StrToRRuleSet(series.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRRule, err)
	}
	if set.GetDTStart().IsZero() {
		set.DTStart(series.DTStart.In(loc))
	}

	m := &Manager{
		series:     series,
		template:   template,
		set:        set,
		loc:        loc,
		exceptions: exceptions,
		byInstant:  make(map[int64]*models.SeriesException, len(exceptions)),
		moveDue:    moveDue,
	}
	for i := range exceptions {
		exc := &exceptions[i]
		m.byInstant[exc.OccurrenceDT.UTC().UnixNano()] = exc
	}
	return m, nil
}

// toUTC applies the DST resolution policy to a generated occurrence and
// converts it to UTC.
func (m *Manager) toUTC(t time.Time) time.Time {
	return resolveLocal(t.In(m.loc), m.loc).UTC()
}

func (m *Manager) annotate(instant time.Time) Occurrence {
	occ := Occurrence{Original: instant, Effective: instant}
	exc, ok := m.byInstant[instant.UnixNano()]
	if !ok {
		return occ
	}
	occ.Exception = exc
	if exc.Type == models.ExceptionMove && exc.ExceptionTaskID != nil {
		if due, found := m.moveDue[*exc.ExceptionTaskID]; found {
			occ.Effective = due.UTC()
		}
	}
	return occ
}

// OccurrencesBetween returns the ordered canonical occurrences whose
// instants lie in the closed interval [start, end], each annotated with
// its exception and effective instant.
func (m *Manager) OccurrencesBetween(start, end time.Time) []Occurrence {
	if end.Before(start) {
		return nil
	}
	times := m.set.Between(start, end, true)
	out := make([]Occurrence, 0, len(times))
	for _, t := range times {
		instant := m.toUTC(t)
		if instant.Before(start) || instant.After(end) {
			continue
		}
		out = append(out, m.annotate(instant))
	}
	return out
}

// MaterializableBetween filters OccurrencesBetween down to the
// occurrences a refresh may insert rows for.
func (m *Manager) MaterializableBetween(start, end time.Time) []Occurrence {
	all := m.OccurrencesBetween(start, end)
	out := all[:0]
	for _, occ := range all {
		if occ.Materializable() {
			out = append(out, occ)
		}
	}
	return out
}

// Preview returns up to count effective occurrences strictly after
// `after`, ascending. Skipped occurrences are hidden; moved occurrences
// appear at their target instant with the Move tag attached.
func (m *Manager) Preview(after time.Time, count int) []Occurrence {
	if count <= 0 {
		return nil
	}

	var out []Occurrence

	// Moves can land anywhere, so collect their targets up front.
	for i := range m.exceptions {
		exc := &m.exceptions[i]
		if exc.Type != models.ExceptionMove || exc.ExceptionTaskID == nil {
			continue
		}
		due, ok := m.moveDue[*exc.ExceptionTaskID]
		if !ok || !due.UTC().After(after) {
			continue
		}
		out = append(out, Occurrence{
			Original:  exc.OccurrenceDT.UTC(),
			Effective: due.UTC(),
			Exception: exc,
		})
	}

	cur := after
	collected := 0
	scanLimit := count + len(m.exceptions) + 1
	for i := 0; i < scanLimit && collected < count; i++ {
		next := m.set.After(cur.In(m.loc), false)
		if next.IsZero() {
			break
		}
		cur = next
		instant := m.toUTC(next)
		if !instant.After(after) {
			continue
		}
		occ := m.annotate(instant)
		if occ.Hidden() {
			continue
		}
		if occ.Exception != nil && occ.Exception.Type == models.ExceptionMove {
			continue // already collected from moveDue
		}
		out = append(out, occ)
		collected++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Effective.Before(out[j].Effective) })
	if len(out) > count {
		out = out[:count]
	}
	return out
}

// NextAfter returns the first effective instant strictly greater than t,
// or false when the rule is exhausted.
func (m *Manager) NextAfter(t time.Time) (time.Time, bool) {
	next := m.Preview(t, 1)
	if len(next) == 0 {
		return time.Time{}, false
	}
	return next[0].Effective, true
}

// Timezone returns the resolved series location.
func (m *Manager) Timezone() *time.Location {
	return m.loc
}

// Template returns the template task the manager was built with.
func (m *Manager) Template() *models.Task {
	return m.template
}
