package scheduler

import (
	"fmt"
	"sort"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// FailureReason classifies why a session did not receive all of its occurrences.
type FailureReason string

const (
	// ReasonNoFeasibleSlot means an occurrence had no (slot, room) candidate satisfying every hard constraint.
	ReasonNoFeasibleSlot FailureReason = "NoFeasibleSlot"
	// ReasonNotAttempted means the run was cancelled before the session was searched.
	ReasonNotAttempted FailureReason = "NotAttempted"
)

// Rejections counts the candidates discarded while searching the failing occurrence.
type Rejections struct {
	NoCompatibleRoom int `json:"noCompatibleRoom"`
	NoContiguousSpan int `json:"noContiguousSpan"`
	DayAlreadyUsed   int `json:"dayAlreadyUsed"`
	TeacherHourCap   int `json:"teacherHourCap"`
	TeacherDailyCap  int `json:"teacherDailyCap"`
	TeacherBusy      int `json:"teacherBusy"`
	BatchBusy        int `json:"batchBusy"`
	RoomBusy         int `json:"roomBusy"`
}

// Dominant names the constraint that discarded the most candidates.
func (r Rejections) Dominant() string {
	counts := []struct {
		name  string
		count int
	}{
		{"no compatible room", r.NoCompatibleRoom},
		{"teacher weekly hour cap", r.TeacherHourCap},
		{"teacher daily session cap", r.TeacherDailyCap},
		{"teacher busy", r.TeacherBusy},
		{"student batch busy", r.BatchBusy},
		{"room busy", r.RoomBusy},
		{"day already used", r.DayAlreadyUsed},
		{"no contiguous slots", r.NoContiguousSpan},
	}
	best, bestCount := "", 0
	for _, c := range counts {
		if c.count > bestCount {
			best, bestCount = c.name, c.count
		}
	}
	return best
}

// PlacementFailure is the data-level outcome of a session that could not be fully placed.
type PlacementFailure struct {
	SessionID  string        `json:"sessionId"`
	CourseID   string        `json:"courseId"`
	TeacherID  string        `json:"teacherId"`
	Reason     FailureReason `json:"reason"`
	Requested  int           `json:"requested"`
	Placed     int           `json:"placed"`
	Detail     string        `json:"detail"`
	Rejections Rejections    `json:"rejections"`
}

// Partial reports whether some occurrences of the session were committed.
func (f PlacementFailure) Partial() bool {
	return f.Placed > 0
}

// Entry is one committed occurrence of a session.
type Entry struct {
	SessionID       string   `json:"sessionId"`
	CourseID        string   `json:"courseId"`
	Occurrence      int      `json:"occurrence"`
	Day             Weekday  `json:"day"`
	Start           Clock    `json:"start"`
	End             Clock    `json:"end"`
	SlotIndexes     []int    `json:"slotIndexes"`
	RoomID          string   `json:"roomId"`
	TeacherID       string   `json:"teacherId"`
	BatchIDs        []string `json:"batchIds"`
	DurationMinutes int      `json:"durationMinutes"`
}

// Interval returns the time the entry occupies.
func (e Entry) Interval() Interval {
	return Interval{Day: e.Day, Start: e.Start, End: e.End}
}

// PlacementResult holds the committed entries of a session and, when incomplete, its failure.
type PlacementResult struct {
	Session Session           `json:"session"`
	Entries []Entry           `json:"entries"`
	Failure *PlacementFailure `json:"failure,omitempty"`
}

// Options tunes the placement search. The zero value is the plain greedy search.
type Options struct {
	// OnePerDay keeps occurrences of the same session on distinct days.
	OnePerDay bool
}

// OrderSessions sorts sessions into placement order: labs first, then larger required
// capacity, then course and session identifiers.
func OrderSessions(sessions []Session, catalog *Catalog) []Session {
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	capacity := make(map[string]int, len(ordered))
	for _, s := range ordered {
		capacity[s.ID] = catalog.RequiredCapacity(s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.RequiresLab() != b.RequiresLab() {
			return a.RequiresLab()
		}
		if capacity[a.ID] != capacity[b.ID] {
			return capacity[a.ID] > capacity[b.ID]
		}
		if a.CourseID != b.CourseID {
			return a.CourseID < b.CourseID
		}
		return a.ID < b.ID
	})
	return ordered
}

// Place greedily commits every occurrence of session into index. Occurrences committed
// before a failing one stay committed. The returned error is reserved for configuration
// and invariant problems; an unplaceable session is reported through the result.
func Place(session Session, grid *Grid, catalog *Catalog, index *ConflictIndex, opts Options) (PlacementResult, error) {
	result := PlacementResult{Session: session}
	teacher, ok := catalog.Teacher(session.TeacherID)
	if !ok {
		return result, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("session %s references unknown teacher %s", session.ID, session.TeacherID))
	}

	search := &candidateSearch{
		session: session,
		teacher: teacher,
		rooms:   catalog.CompatibleRooms(session),
		grid:    grid,
		index:   index,
		opts:    opts,
		span:    (session.DurationMinutes + grid.SlotDuration - 1) / grid.SlotDuration,
		used:    make(map[Weekday]bool),
	}

	for occurrence := 1; occurrence <= session.WeeklyFrequency; occurrence++ {
		entry, found := search.next()
		if !found {
			result.Failure = &PlacementFailure{
				SessionID:  session.ID,
				CourseID:   session.CourseID,
				TeacherID:  session.TeacherID,
				Reason:     ReasonNoFeasibleSlot,
				Requested:  session.WeeklyFrequency,
				Placed:     len(result.Entries),
				Rejections: search.rejected,
				Detail:     failureDetail(len(result.Entries), session.WeeklyFrequency, search.rejected),
			}
			return result, nil
		}
		entry.Occurrence = occurrence
		if err := commitEntry(index, entry); err != nil {
			return result, err
		}
		search.used[entry.Day] = true
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func commitEntry(index *ConflictIndex, entry Entry) error {
	iv := entry.Interval()
	if err := index.Commit(ResourceRoom, entry.RoomID, iv); err != nil {
		return err
	}
	if err := index.Commit(ResourceTeacher, entry.TeacherID, iv); err != nil {
		return err
	}
	for _, batchID := range entry.BatchIDs {
		if err := index.Commit(ResourceBatch, batchID, iv); err != nil {
			return err
		}
	}
	return nil
}

type candidateSearch struct {
	session  Session
	teacher  Teacher
	rooms    []Room
	grid     *Grid
	index    *ConflictIndex
	opts     Options
	span     int
	used     map[Weekday]bool
	rejected Rejections
}

// next scans the grid in order and returns the first feasible candidate for one occurrence.
func (c *candidateSearch) next() (Entry, bool) {
	c.rejected = Rejections{}
	if len(c.rooms) == 0 {
		c.rejected.NoCompatibleRoom = 1
		return Entry{}, false
	}
	duration := Clock(c.session.DurationMinutes)
	capMinutes := c.teacher.CapMinutes()

	for i := range c.grid.Slots {
		span, ok := c.grid.Span(i, c.span)
		if !ok {
			c.rejected.NoContiguousSpan++
			continue
		}
		first := span[0]
		iv := Interval{Day: first.Day, Start: first.Start, End: first.Start + duration}

		if c.opts.OnePerDay && c.used[first.Day] {
			c.rejected.DayAlreadyUsed++
			continue
		}
		if capMinutes > 0 && c.index.CommittedMinutes(ResourceTeacher, c.teacher.ID)+c.session.DurationMinutes > capMinutes {
			c.rejected.TeacherHourCap++
			continue
		}
		if c.teacher.MaxSessionsPerDay > 0 && c.index.CommittedOn(ResourceTeacher, c.teacher.ID, first.Day) >= c.teacher.MaxSessionsPerDay {
			c.rejected.TeacherDailyCap++
			continue
		}
		if !c.index.IsFree(ResourceTeacher, c.teacher.ID, iv) {
			c.rejected.TeacherBusy++
			continue
		}
		if !c.batchesFree(iv) {
			c.rejected.BatchBusy++
			continue
		}
		for _, room := range c.rooms {
			if !c.index.IsFree(ResourceRoom, room.ID, iv) {
				c.rejected.RoomBusy++
				continue
			}
			indexes := make([]int, len(span))
			for k, s := range span {
				indexes[k] = s.Index
			}
			return Entry{
				SessionID:       c.session.ID,
				CourseID:        c.session.CourseID,
				Day:             iv.Day,
				Start:           iv.Start,
				End:             iv.End,
				SlotIndexes:     indexes,
				RoomID:          room.ID,
				TeacherID:       c.teacher.ID,
				BatchIDs:        append([]string(nil), c.session.BatchIDs...),
				DurationMinutes: c.session.DurationMinutes,
			}, true
		}
	}
	return Entry{}, false
}

func (c *candidateSearch) batchesFree(iv Interval) bool {
	for _, batchID := range c.session.BatchIDs {
		if !c.index.IsFree(ResourceBatch, batchID, iv) {
			return false
		}
	}
	return true
}

func failureDetail(placed, requested int, r Rejections) string {
	detail := fmt.Sprintf("placed %d of %d occurrences", placed, requested)
	if dominant := r.Dominant(); dominant != "" {
		detail += "; most candidates rejected by " + dominant
	}
	return detail
}
