package models

import "time"

// Filter is the query AST handed to the repository by the (out of scope)
// query parser. The tree is ANDs/ORs/NOTs over leaf predicates.
type Filter interface {
	isFilter()
}

type AndFilter struct {
	Operands []Filter
}

type OrFilter struct {
	Operands []Filter
}

type NotFilter struct {
	Operand Filter
}

type DueKind string

const (
	DueToday     DueKind = "today"
	DueTomorrow  DueKind = "tomorrow"
	DueYesterday DueKind = "yesterday"
	DueBefore    DueKind = "before"
	DueAfter     DueKind = "after"
	DueOverdue   DueKind = "overdue"
)

// DueFilter matches on the task due instant. At is only meaningful for
// the Before and After kinds.
type DueFilter struct {
	Kind DueKind
	At   time.Time
}

type StatusFilter struct {
	Status Status
}

type PriorityFilter struct {
	Priority Priority
}

type ProjectFilter struct {
	Name string
}

type TagFilter struct {
	Tag string
}

type NameFilter struct {
	Substring string
}

func (AndFilter) isFilter()      {}
func (OrFilter) isFilter()       {}
func (NotFilter) isFilter()      {}
func (DueFilter) isFilter()      {}
func (StatusFilter) isFilter()   {}
func (PriorityFilter) isFilter() {}
func (ProjectFilter) isFilter()  {}
func (TagFilter) isFilter()      {}
func (NameFilter) isFilter()     {}

// CollectDueFilters walks the tree and returns every due-date leaf,
// descending through AND, OR and NOT nodes. The materialization window
// is derived from these before the query runs.
func CollectDueFilters(f Filter) []DueFilter {
	var out []DueFilter
	collectDue(f, &out)
	return out
}

func collectDue(f Filter, out *[]DueFilter) {
	switch node := f.(type) {
	case nil:
	case AndFilter:
		for _, op := range node.Operands {
			collectDue(op, out)
		}
	case OrFilter:
		for _, op := range node.Operands {
			collectDue(op, out)
		}
	case NotFilter:
		collectDue(node.Operand, out)
	case DueFilter:
		*out = append(*out, node)
	}
}
