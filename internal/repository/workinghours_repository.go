package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adika-dev/presensi-core/internal/models"
)

// WorkingHoursRepository owns the per-day work-hour aggregates produced by the
// second reconciliation stage.
type WorkingHoursRepository struct {
	db *sqlx.DB
}

// NewWorkingHoursRepository constructs the repository.
func NewWorkingHoursRepository(db *sqlx.DB) *WorkingHoursRepository {
	return &WorkingHoursRepository{db: db}
}

// ReplaceRange rewrites the aggregates for the scope in one transaction.
func (r *WorkingHoursRepository) ReplaceRange(ctx context.Context, from, to time.Time, pins []string, rows []models.WorkingHours) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace working hours: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	where := []string{"date >= $1", "date <= $2"}
	args := []interface{}{from, to}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}
	deleteQuery := fmt.Sprintf("DELETE FROM workinghours WHERE %s", strings.Join(where, " AND "))
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("delete working hours range: %w", err)
	}

	const insertQuery = `INSERT INTO workinghours (date, pin, shift, regular_hours, overtime_hours, break_hours, workday)
VALUES (:date, :pin, :shift, :regular_hours, :overtime_hours, :break_hours, :workday)`
	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, insertQuery, rows[i]); err != nil {
			return fmt.Errorf("insert working hours %s/%s: %w", rows[i].PIN, rows[i].Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace working hours: %w", err)
	}
	commit = true
	return nil
}
