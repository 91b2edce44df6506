package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func newMondayIndex(t *testing.T) *ConflictIndex {
	t.Helper()
	grid, err := BuildGrid(weekdayAllocation(60, "08:00", "16:00", "Monday"))
	require.NoError(t, err)
	return NewConflictIndex(grid)
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	a := Interval{Day: Monday, Start: 8 * 60, End: 9 * 60}
	assert.False(t, a.Overlaps(Interval{Day: Monday, Start: 9 * 60, End: 10 * 60}))
	assert.True(t, a.Overlaps(Interval{Day: Monday, Start: 8*60 + 59, End: 10 * 60}))
	assert.False(t, a.Overlaps(Interval{Day: Tuesday, Start: 8 * 60, End: 9 * 60}))
}

func TestConflictIndexCommitAndQuery(t *testing.T) {
	index := newMondayIndex(t)
	iv := Interval{Day: Monday, Start: 8 * 60, End: 9*60 + 30}

	require.NoError(t, index.Commit(ResourceRoom, "room-1", iv))
	assert.False(t, index.IsFree(ResourceRoom, "room-1", Interval{Day: Monday, Start: 9 * 60, End: 10 * 60}))
	assert.True(t, index.IsFree(ResourceRoom, "room-1", Interval{Day: Monday, Start: 9*60 + 30, End: 10 * 60}))
	assert.True(t, index.IsFree(ResourceRoom, "room-2", iv))
	assert.True(t, index.IsFree(ResourceTeacher, "room-1", iv), "kinds are tracked separately")

	assert.Equal(t, 90, index.CommittedMinutes(ResourceRoom, "room-1"))
	assert.Equal(t, 1, index.CommittedOn(ResourceRoom, "room-1", Monday))
	assert.Equal(t, []Interval{iv}, index.Committed(ResourceRoom, "room-1"))
}

func TestConflictIndexRejectsDoubleCommit(t *testing.T) {
	index := newMondayIndex(t)
	require.NoError(t, index.Commit(ResourceTeacher, "teacher-1", Interval{Day: Monday, Start: 8 * 60, End: 9 * 60}))

	err := index.Commit(ResourceTeacher, "teacher-1", Interval{Day: Monday, Start: 8*60 + 30, End: 9*60 + 30})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvariantViolation))
	assert.Equal(t, 60, index.CommittedMinutes(ResourceTeacher, "teacher-1"))
}

func TestConflictIndexRejectsDayOutsideGrid(t *testing.T) {
	index := newMondayIndex(t)
	err := index.Commit(ResourceBatch, "batch-1", Interval{Day: Sunday, Start: 8 * 60, End: 9 * 60})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvariantViolation))

	err = index.Commit(ResourceBatch, "batch-1", Interval{Day: Monday, Start: 9 * 60, End: 9 * 60})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvariantViolation))
}

func TestConflictIndexBlockDoesNotCount(t *testing.T) {
	index := newMondayIndex(t)
	index.Block(ResourceTeacher, "teacher-1", Interval{Day: Monday, Start: 12 * 60, End: 13 * 60})

	assert.False(t, index.IsFree(ResourceTeacher, "teacher-1", Interval{Day: Monday, Start: 12*60 + 30, End: 13*60 + 30}))
	assert.Zero(t, index.CommittedMinutes(ResourceTeacher, "teacher-1"))
	assert.Zero(t, index.CommittedOn(ResourceTeacher, "teacher-1", Monday))
}
