package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// TimetableEntryRepository manages the placed occurrences of stored timetables.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository builds repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

func (r *TimetableEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch inserts entries for a timetable.
func (r *TimetableEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_entries (id, timetable_id, session_id, course_id, occurrence, day_of_week, start_time, end_time, room_id, teacher_id, batch_ids, duration_minutes, created_at)
VALUES (:id, :timetable_id, :session_id, :course_id, :occurrence, :day_of_week, :start_time, :end_time, :room_id, :teacher_id, :batch_ids, :duration_minutes, :created_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if entry.BatchIDs == nil {
			entry.BatchIDs = []string{}
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert timetable entry: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns entries ordered by day and start time.
func (r *TimetableEntryRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableEntry, error) {
	const query = `SELECT id, timetable_id, session_id, course_id, occurrence, day_of_week, start_time, end_time, room_id, teacher_id, batch_ids, duration_minutes, created_at
FROM timetable_entries WHERE timetable_id = $1 ORDER BY day_of_week ASC, start_time ASC, room_id ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}
