package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

// CatalogRepository reads the scheduling catalog for a scope.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const (
	catalogSessionsQuery = `SELECT id, course_id, name, COALESCE(department, '') AS department, duration_minutes, weekly_frequency,
room_type, COALESCE(lab_kind, '') AS lab_kind, COALESCE(min_capacity, 0) AS min_capacity, teacher_id, batch_ids
FROM course_sessions WHERE year = $1 AND semester = $2 AND ($3 = '' OR department = $3) ORDER BY id`

	catalogRoomsQuery = `SELECT id, name, COALESCE(building, '') AS building, COALESCE(department, '') AS department, capacity,
room_type, COALESCE(lab_kind, '') AS lab_kind, COALESCE(availability, '') AS availability
FROM rooms ORDER BY id`

	catalogTeachersQuery = `SELECT id, full_name, COALESCE(department, '') AS department, COALESCE(max_hours_per_week, 0) AS max_hours_per_week,
COALESCE(max_sessions_per_day, 0) AS max_sessions_per_day, COALESCE(seniority, 0) AS seniority,
COALESCE(availability, '') AS availability, COALESCE(unavailable, '[]') AS unavailable
FROM teachers WHERE active = TRUE ORDER BY id`

	catalogBatchesQuery = `SELECT id, COALESCE(department, '') AS department, courses, students
FROM student_batches WHERE year = $1 AND ($2 = '' OR department = $2) ORDER BY id`

	catalogAllocationQuery = `SELECT id, department, settings, COALESCE(weekdays, '{}') AS weekdays, COALESCE(weekends, '{}') AS weekends
FROM time_allocations WHERE year = $1 AND semester = $2 AND department IN ($3, '') ORDER BY department DESC LIMIT 1`
)

// LoadSnapshot reads sessions, rooms, teachers, batches and the time allocation of scope into
// an immutable catalog. A department specific allocation wins over the scope-wide default.
// A missing allocation surfaces sql.ErrNoRows.
func (r *CatalogRepository) LoadSnapshot(ctx context.Context, scope scheduler.Scope) (*scheduler.Catalog, error) {
	var (
		sessions   []models.CourseSessionRecord
		rooms      []models.RoomRecord
		teachers   []models.TeacherLoadRecord
		batches    []models.StudentBatchRecord
		allocation models.TimeAllocationRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.db.SelectContext(gctx, &sessions, catalogSessionsQuery, scope.Year, scope.Semester, scope.Department); err != nil {
			return fmt.Errorf("list course sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.SelectContext(gctx, &rooms, catalogRoomsQuery); err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.SelectContext(gctx, &teachers, catalogTeachersQuery); err != nil {
			return fmt.Errorf("list teachers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.SelectContext(gctx, &batches, catalogBatchesQuery, scope.Year, scope.Department); err != nil {
			return fmt.Errorf("list student batches: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.GetContext(gctx, &allocation, catalogAllocationQuery, scope.Year, scope.Semester, scope.Department); err != nil {
			return fmt.Errorf("load time allocation: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog := &scheduler.Catalog{
		Scope:    scope,
		Sessions: make([]scheduler.Session, 0, len(sessions)),
		Rooms:    make([]scheduler.Room, 0, len(rooms)),
		Teachers: make([]scheduler.Teacher, 0, len(teachers)),
		Batches:  make([]scheduler.Batch, 0, len(batches)),
	}
	for _, rec := range sessions {
		session, err := toSession(rec)
		if err != nil {
			return nil, err
		}
		catalog.Sessions = append(catalog.Sessions, session)
	}
	for _, rec := range rooms {
		room, err := toRoom(rec)
		if err != nil {
			return nil, err
		}
		catalog.Rooms = append(catalog.Rooms, room)
	}
	for _, rec := range teachers {
		teacher, err := toTeacher(rec)
		if err != nil {
			return nil, err
		}
		catalog.Teachers = append(catalog.Teachers, teacher)
	}
	for _, rec := range batches {
		catalog.Batches = append(catalog.Batches, scheduler.Batch{
			ID:         rec.ID,
			Department: rec.Department,
			Courses:    []string(rec.Courses),
			Students:   rec.Students,
		})
	}
	alloc, err := toTimeAllocation(allocation)
	if err != nil {
		return nil, err
	}
	catalog.TimeAllocation = alloc
	return catalog, nil
}

func toSession(rec models.CourseSessionRecord) (scheduler.Session, error) {
	roomType, err := scheduler.ParseRoomType(rec.RoomType)
	if err != nil {
		return scheduler.Session{}, fmt.Errorf("course session %s: %w", rec.ID, err)
	}
	return scheduler.Session{
		ID:              rec.ID,
		CourseID:        rec.CourseID,
		Name:            rec.Name,
		Department:      rec.Department,
		DurationMinutes: rec.DurationMinutes,
		WeeklyFrequency: rec.WeeklyFrequency,
		RoomType:        roomType,
		LabKind:         rec.LabKind,
		MinCapacity:     rec.MinCapacity,
		TeacherID:       rec.TeacherID,
		BatchIDs:        []string(rec.BatchIDs),
	}, nil
}

func toRoom(rec models.RoomRecord) (scheduler.Room, error) {
	roomType, err := scheduler.ParseRoomType(rec.RoomType)
	if err != nil {
		return scheduler.Room{}, fmt.Errorf("room %s: %w", rec.ID, err)
	}
	availability := strings.TrimSpace(rec.Availability)
	return scheduler.Room{
		ID:         rec.ID,
		Name:       rec.Name,
		Building:   rec.Building,
		Department: rec.Department,
		Capacity:   rec.Capacity,
		Type:       roomType,
		LabKind:    rec.LabKind,
		Closed:     availability != "" && !strings.EqualFold(availability, "available"),
	}, nil
}

func toTeacher(rec models.TeacherLoadRecord) (scheduler.Teacher, error) {
	teacher := scheduler.Teacher{
		ID:                rec.ID,
		Name:              rec.FullName,
		Department:        rec.Department,
		MaxHoursPerWeek:   rec.MaxHoursPerWeek,
		MaxSessionsPerDay: rec.MaxSessionsPerDay,
		Seniority:         rec.Seniority,
		Availability:      rec.Availability,
	}
	if len(rec.Unavailable) > 0 {
		if err := json.Unmarshal(rec.Unavailable, &teacher.Unavailable); err != nil {
			return scheduler.Teacher{}, fmt.Errorf("decode unavailable windows for teacher %s: %w", rec.ID, err)
		}
	}
	return teacher, nil
}

func toTimeAllocation(rec models.TimeAllocationRecord) (scheduler.TimeAllocation, error) {
	var alloc scheduler.TimeAllocation
	if err := json.Unmarshal(rec.Settings, &alloc.Settings); err != nil {
		return alloc, fmt.Errorf("decode time allocation %s settings: %w", rec.ID, err)
	}
	if len(rec.Weekdays) > 0 {
		if err := json.Unmarshal(rec.Weekdays, &alloc.Weekdays); err != nil {
			return alloc, fmt.Errorf("decode time allocation %s weekdays: %w", rec.ID, err)
		}
	}
	if len(rec.Weekends) > 0 {
		if err := json.Unmarshal(rec.Weekends, &alloc.Weekends); err != nil {
			return alloc, fmt.Errorf("decode time allocation %s weekends: %w", rec.ID, err)
		}
	}
	return alloc, nil
}
