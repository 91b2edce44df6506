package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

func newCatalogRepoMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// the snapshot tables are read concurrently
	mock.MatchExpectationsInOrder(false)
	return NewCatalogRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func expectCatalogTables(mock sqlmock.Sqlmock, allocationErr error) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_sessions WHERE year = $1 AND semester = $2")).
		WithArgs("2024", "1", "science").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "name", "department", "duration_minutes", "weekly_frequency", "room_type", "lab_kind", "min_capacity", "teacher_id", "batch_ids"}).
			AddRow("session-1", "physics", "Physics", "science", 90, 2, "lecture", "", 0, "teacher-1", "{x-ipa-1}").
			AddRow("session-2", "chem-lab", "Chemistry Lab", "science", 120, 1, "lab", "chemistry", 30, "teacher-1", "{}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "building", "department", "capacity", "room_type", "lab_kind", "availability"}).
			AddRow("room-1", "A101", "A", "", 40, "lecture", "", "Available").
			AddRow("room-2", "Lab 1", "B", "science", 32, "lab", "chemistry", "Under Maintenance"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE active = TRUE ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "department", "max_hours_per_week", "max_sessions_per_day", "seniority", "availability", "unavailable"}).
			AddRow("teacher-1", "Budi", "science", 18, 0, 3, "Mon-Fri", `[{"day":"Friday","start":"11:00","end":"13:00"}]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_batches WHERE year = $1")).
		WithArgs("2024", "science").
		WillReturnRows(sqlmock.NewRows([]string{"id", "department", "courses", "students"}).
			AddRow("x-ipa-1", "science", "{physics,chem-lab}", 32))

	allocation := mock.ExpectQuery(regexp.QuoteMeta("FROM time_allocations WHERE year = $1 AND semester = $2")).
		WithArgs("2024", "1", "science")
	if allocationErr != nil {
		allocation.WillReturnError(allocationErr)
		return
	}
	allocation.WillReturnRows(sqlmock.NewRows([]string{"id", "department", "settings", "weekdays", "weekends"}).
		AddRow("alloc-1", "science",
			`{"slotDuration":45,"weekdayStartTime":"7:00 AM","weekdayEndTime":"2:00 PM"}`,
			`{"Monday":{"availableSlots":[],"unavailableSlots":["12:00-12:30"]},"Friday":{}}`,
			`{}`))
}

func TestCatalogRepositoryLoadSnapshot(t *testing.T) {
	repo, mock := newCatalogRepoMock(t)
	expectCatalogTables(mock, nil)

	scope := scheduler.Scope{Institution: "sma-1", Year: "2024", Semester: "1", Department: "science"}
	catalog, err := repo.LoadSnapshot(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, scope, catalog.Scope)
	require.Len(t, catalog.Sessions, 2)
	assert.Equal(t, []string{"x-ipa-1"}, catalog.Sessions[0].BatchIDs)
	assert.Equal(t, scheduler.RoomTypeLab, catalog.Sessions[1].RoomType)
	assert.Equal(t, "chemistry", catalog.Sessions[1].LabKind)

	require.Len(t, catalog.Rooms, 2)
	assert.False(t, catalog.Rooms[0].Closed)
	assert.True(t, catalog.Rooms[1].Closed)

	require.Len(t, catalog.Teachers, 1)
	assert.Equal(t, 18*60, catalog.Teachers[0].CapMinutes())
	assert.Equal(t, []scheduler.Window{{Day: "Friday", Start: "11:00", End: "13:00"}}, catalog.Teachers[0].Unavailable)

	require.Len(t, catalog.Batches, 1)
	assert.Equal(t, 32, catalog.Batches[0].Students)

	assert.Equal(t, 45, catalog.TimeAllocation.Settings.SlotDuration)
	assert.Equal(t, []string{"12:00-12:30"}, catalog.TimeAllocation.Weekdays["Monday"].UnavailableSlots)
	_, err = scheduler.BuildGrid(catalog.TimeAllocation)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryLoadSnapshotMissingAllocation(t *testing.T) {
	repo, mock := newCatalogRepoMock(t)
	expectCatalogTables(mock, sql.ErrNoRows)

	_, err := repo.LoadSnapshot(context.Background(), scheduler.Scope{Year: "2024", Semester: "1", Department: "science"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCatalogRepositoryRejectsUnknownRoomType(t *testing.T) {
	_, err := toRoom(roomRecordWithType("auditorium"))
	assert.Error(t, err)

	room, err := toRoom(roomRecordWithType("Tutorial"))
	require.NoError(t, err)
	assert.Equal(t, scheduler.RoomTypeTutorial, room.Type)
	assert.False(t, room.Closed)
}

func roomRecordWithType(roomType string) models.RoomRecord {
	return models.RoomRecord{ID: "room-x", Capacity: 10, RoomType: roomType}
}
