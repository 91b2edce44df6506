package scheduler

import (
	"fmt"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// ResourceKind names the three resource families tracked by the conflict index.
type ResourceKind string

const (
	ResourceRoom    ResourceKind = "ROOM"
	ResourceTeacher ResourceKind = "TEACHER"
	ResourceBatch   ResourceKind = "BATCH"
)

// Interval is a half-open [Start, End) range on one day.
type Interval struct {
	Day   Weekday `json:"day"`
	Start Clock   `json:"start"`
	End   Clock   `json:"end"`
}

// Overlaps reports whether both intervals share the day and any instant.
func (a Interval) Overlaps(b Interval) bool {
	return a.Day == b.Day && a.Start < b.End && a.End > b.Start
}

// Minutes returns the interval length.
func (a Interval) Minutes() int {
	return int(a.End - a.Start)
}

func (a Interval) String() string {
	return fmt.Sprintf("%s %s-%s", a.Day, a.Start, a.End)
}

type resourceKey struct {
	kind ResourceKind
	id   string
}

// dayKey buckets intervals per resource and day so lookups only scan one day's bookings.
type dayKey struct {
	resourceKey
	day Weekday
}

// ConflictIndex records which resources are busy when. One index belongs to exactly one run.
type ConflictIndex struct {
	grid      *Grid
	committed map[dayKey][]Interval
	blocked   map[dayKey][]Interval
	order     map[resourceKey][]Interval
	minutes   map[resourceKey]int
}

// NewConflictIndex builds an empty index bound to the days of grid.
func NewConflictIndex(grid *Grid) *ConflictIndex {
	return &ConflictIndex{
		grid:      grid,
		committed: make(map[dayKey][]Interval),
		blocked:   make(map[dayKey][]Interval),
		order:     make(map[resourceKey][]Interval),
		minutes:   make(map[resourceKey]int),
	}
}

// IsFree reports whether the resource has neither a commitment nor a block overlapping iv.
func (c *ConflictIndex) IsFree(kind ResourceKind, id string, iv Interval) bool {
	key := dayKey{resourceKey: resourceKey{kind: kind, id: id}, day: iv.Day}
	for _, busy := range c.committed[key] {
		if busy.Overlaps(iv) {
			return false
		}
	}
	for _, busy := range c.blocked[key] {
		if busy.Overlaps(iv) {
			return false
		}
	}
	return true
}

// Commit books iv for the resource. Committing over an existing commitment, or on a day
// outside the grid, is a caller bug and yields ErrInvariantViolation.
func (c *ConflictIndex) Commit(kind ResourceKind, id string, iv Interval) error {
	if c.grid != nil && !c.grid.HasDay(iv.Day) {
		return appErrors.Clone(appErrors.ErrInvariantViolation, fmt.Sprintf("commit for %s %s references day %s outside the grid", kind, id, iv.Day))
	}
	if iv.End <= iv.Start {
		return appErrors.Clone(appErrors.ErrInvariantViolation, fmt.Sprintf("commit for %s %s has empty interval %s", kind, id, iv))
	}
	res := resourceKey{kind: kind, id: id}
	key := dayKey{resourceKey: res, day: iv.Day}
	for _, busy := range c.committed[key] {
		if busy.Overlaps(iv) {
			return appErrors.Clone(appErrors.ErrInvariantViolation, fmt.Sprintf("%s %s already committed at %s", kind, id, busy))
		}
	}
	c.committed[key] = append(c.committed[key], iv)
	c.order[res] = append(c.order[res], iv)
	c.minutes[res] += iv.Minutes()
	return nil
}

// Block marks the resource unavailable without counting it as a commitment.
func (c *ConflictIndex) Block(kind ResourceKind, id string, iv Interval) {
	key := dayKey{resourceKey: resourceKey{kind: kind, id: id}, day: iv.Day}
	c.blocked[key] = append(c.blocked[key], iv)
}

// CommittedMinutes sums the lengths of all commitments of the resource.
func (c *ConflictIndex) CommittedMinutes(kind ResourceKind, id string) int {
	return c.minutes[resourceKey{kind: kind, id: id}]
}

// CommittedOn counts the commitments of the resource on day.
func (c *ConflictIndex) CommittedOn(kind ResourceKind, id string, day Weekday) int {
	return len(c.committed[dayKey{resourceKey: resourceKey{kind: kind, id: id}, day: day}])
}

// Committed returns a copy of the commitments of the resource in commit order.
func (c *ConflictIndex) Committed(kind ResourceKind, id string) []Interval {
	src := c.order[resourceKey{kind: kind, id: id}]
	out := make([]Interval, len(src))
	copy(out, src)
	return out
}
