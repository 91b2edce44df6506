package models

import (
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// CourseSessionRecord is a course offering that must be placed every week.
type CourseSessionRecord struct {
	ID              string         `db:"id"`
	CourseID        string         `db:"course_id"`
	Name            string         `db:"name"`
	Department      string         `db:"department"`
	DurationMinutes int            `db:"duration_minutes"`
	WeeklyFrequency int            `db:"weekly_frequency"`
	RoomType        string         `db:"room_type"`
	LabKind         string         `db:"lab_kind"`
	MinCapacity     int            `db:"min_capacity"`
	TeacherID       string         `db:"teacher_id"`
	BatchIDs        pq.StringArray `db:"batch_ids"`
}

// RoomRecord is a bookable room row.
type RoomRecord struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Building     string `db:"building"`
	Department   string `db:"department"`
	Capacity     int    `db:"capacity"`
	RoomType     string `db:"room_type"`
	LabKind      string `db:"lab_kind"`
	Availability string `db:"availability"`
}

// TeacherLoadRecord carries the scheduling-relevant columns of a teacher.
type TeacherLoadRecord struct {
	ID                string         `db:"id"`
	FullName          string         `db:"full_name"`
	Department        string         `db:"department"`
	MaxHoursPerWeek   int            `db:"max_hours_per_week"`
	MaxSessionsPerDay int            `db:"max_sessions_per_day"`
	Seniority         int            `db:"seniority"`
	Availability      string         `db:"availability"`
	Unavailable       types.JSONText `db:"unavailable"`
}

// StudentBatchRecord is a cohort of students enrolled in the same courses.
type StudentBatchRecord struct {
	ID         string         `db:"id"`
	Department string         `db:"department"`
	Courses    pq.StringArray `db:"courses"`
	Students   int            `db:"students"`
}

// TimeAllocationRecord stores the grid configuration of a scope as JSON documents.
type TimeAllocationRecord struct {
	ID         string         `db:"id"`
	Department string         `db:"department"`
	Settings   types.JSONText `db:"settings"`
	Weekdays   types.JSONText `db:"weekdays"`
	Weekends   types.JSONText `db:"weekends"`
}
