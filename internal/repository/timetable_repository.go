package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

// TimetableRepository persists versioned timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const timetableColumns = `id, institution, year, semester, department, version, status, meta, created_at, updated_at`

// CreateVersioned inserts a timetable assigning the next version for its scope.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.Year == "" || timetable.Semester == "" {
		return fmt.Errorf("year and semester are required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusDraft
	}
	if len(timetable.Meta) == 0 {
		timetable.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetables WHERE institution = $1 AND year = $2 AND semester = $3 AND department = $4`
	if err := sqlx.GetContext(ctx, target, &timetable.Version, nextVersionQuery, timetable.Institution, timetable.Year, timetable.Semester, timetable.Department); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetables (id, institution, year, semester, department, version, status, meta, created_at, updated_at)
VALUES (:id, :institution, :year, :semester, :department, :version, :status, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// ListByScope returns every version stored for scope, newest first.
func (r *TimetableRepository) ListByScope(ctx context.Context, scope scheduler.Scope) ([]models.Timetable, error) {
	query := `SELECT ` + timetableColumns + `
FROM timetables WHERE institution = $1 AND year = $2 AND semester = $3 AND department = $4 ORDER BY version DESC`
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, scope.Institution, scope.Year, scope.Semester, scope.Department); err != nil {
		return nil, fmt.Errorf("list timetables: %w", err)
	}
	return timetables, nil
}

// FindByID loads a timetable by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// Delete removes a stored timetable version. Entries cascade.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus updates the status (and optionally meta) of a timetable.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE timetables SET status = $1, meta = $2, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchivePublished archives every published version of scope except exceptID.
func (r *TimetableRepository) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, scope scheduler.Scope, exceptID string) (int64, error) {
	const query = `UPDATE timetables SET status = $1, updated_at = $2
WHERE institution = $3 AND year = $4 AND semester = $5 AND department = $6 AND status = $7 AND id <> $8`
	result, err := r.exec(exec).ExecContext(ctx, query,
		models.TimetableStatusArchived, time.Now().UTC(),
		scope.Institution, scope.Year, scope.Semester, scope.Department,
		models.TimetableStatusPublished, exceptID,
	)
	if err != nil {
		return 0, fmt.Errorf("archive published timetables: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archived timetable rows affected: %w", err)
	}
	return affected, nil
}
