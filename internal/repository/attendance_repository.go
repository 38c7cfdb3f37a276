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

// AttendanceRepository owns the canonical attendance_records table.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ReplaceRange deletes every record for the (date range, pins?) scope and
// inserts the freshly computed rows, all inside one transaction. Running the
// same reconciliation twice therefore converges on identical rows.
func (r *AttendanceRepository) ReplaceRange(ctx context.Context, from, to time.Time, pins []string, records []models.AttendanceRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace attendance: %w", err)
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
	deleteQuery := fmt.Sprintf("DELETE FROM attendance_records WHERE %s", strings.Join(where, " AND "))
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("delete attendance range: %w", err)
	}

	const insertQuery = `INSERT INTO attendance_records
(date, pin, name, role, location, dept, shift, check_in, check_out, prod_in, prod_out, classification)
VALUES (:date, :pin, :name, :role, :location, :dept, :shift, :check_in, :check_out, :prod_in, :prod_out, :classification)`
	for i := range records {
		if _, err := tx.NamedExecContext(ctx, insertQuery, records[i]); err != nil {
			return fmt.Errorf("insert attendance record %s/%s: %w", records[i].PIN, records[i].Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace attendance: %w", err)
	}
	commit = true
	return nil
}

// ListRange returns records for the range ordered by (pin, date). The second
// reconciliation stage consumes this instead of raw events.
func (r *AttendanceRepository) ListRange(ctx context.Context, from, to time.Time, pins []string) ([]models.AttendanceRecord, error) {
	where := []string{"date >= $1", "date <= $2"}
	args := []interface{}{from, to}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT date, pin, name, role, location, dept, shift, check_in, check_out, prod_in, prod_out, classification
FROM attendance_records
WHERE %s
ORDER BY pin, date`, strings.Join(where, " AND "))

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return rows, nil
}
