package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

// TimetableStatus represents lifecycle phases for stored timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable captures a versioned, persisted generation result for a scope.
type Timetable struct {
	ID          string          `db:"id" json:"id"`
	Institution string          `db:"institution" json:"institution"`
	Year        string          `db:"year" json:"year"`
	Semester    string          `db:"semester" json:"semester"`
	Department  string          `db:"department" json:"department"`
	Version     int             `db:"version" json:"version"`
	Status      TimetableStatus `db:"status" json:"status"`
	Meta        types.JSONText  `db:"meta" json:"meta"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Scope returns the catalog scope the timetable was generated for.
func (t Timetable) Scope() scheduler.Scope {
	return scheduler.Scope{Institution: t.Institution, Year: t.Year, Semester: t.Semester, Department: t.Department}
}

// TimetableEntry is one committed session occurrence inside a stored timetable.
type TimetableEntry struct {
	ID              string         `db:"id" json:"id"`
	TimetableID     string         `db:"timetable_id" json:"timetable_id"`
	SessionID       string         `db:"session_id" json:"session_id"`
	CourseID        string         `db:"course_id" json:"course_id"`
	Occurrence      int            `db:"occurrence" json:"occurrence"`
	DayOfWeek       int            `db:"day_of_week" json:"day_of_week"`
	StartTime       string         `db:"start_time" json:"start_time"`
	EndTime         string         `db:"end_time" json:"end_time"`
	RoomID          string         `db:"room_id" json:"room_id"`
	TeacherID       string         `db:"teacher_id" json:"teacher_id"`
	BatchIDs        pq.StringArray `db:"batch_ids" json:"batch_ids"`
	DurationMinutes int            `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// TimetableProposal is a generated, not yet persisted schedule kept in the proposal store.
type TimetableProposal struct {
	ID          string              `json:"id"`
	Scope       scheduler.Scope     `json:"scope"`
	Schedule    *scheduler.Schedule `json:"schedule"`
	Options     scheduler.Options   `json:"options"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// TimetableSummary is the lightweight metadata stored with each timetable version.
type TimetableSummary struct {
	ProposalID  string          `json:"proposal_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Stats       scheduler.Stats `json:"stats"`
	Unplaced    int             `json:"unplaced"`
	Partial     bool            `json:"partial"`
}
