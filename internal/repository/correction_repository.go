package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adika-dev/presensi-core/internal/models"
)

// CorrectionRepository owns the operator-entered corrections table.
type CorrectionRepository struct {
	db *sqlx.DB
}

// NewCorrectionRepository constructs the repository.
func NewCorrectionRepository(db *sqlx.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

// AppendCorrections inserts the batch in one transaction with the same
// minute-precision dedup contract as raw events.
func (r *CorrectionRepository) AppendCorrections(ctx context.Context, corrections []models.Correction) (inserted, duplicates int, err error) {
	if len(corrections) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin append corrections: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO corrections (pin, at, device, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (pin, date_trunc('minute', at), device, status) DO NOTHING
RETURNING pin`

	now := time.Now().UTC()
	for i := range corrections {
		c := &corrections[i]
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		var insertedPIN string
		if err := tx.QueryRowxContext(ctx, query, c.PIN, c.At, c.Device, c.Status, createdAt).Scan(&insertedPIN); err != nil {
			if err == sql.ErrNoRows {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("append correction %s@%s: %w", c.PIN, c.At.Format(time.RFC3339), err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit append corrections: %w", err)
	}
	commit = true
	return inserted, duplicates, nil
}

// CorrectionsBetween returns corrections in [from, to] ordered by (pin, at).
func (r *CorrectionRepository) CorrectionsBetween(ctx context.Context, from, to time.Time, pins []string) ([]models.Correction, error) {
	where := []string{"at >= $1", "at <= $2"}
	args := []interface{}{from, to}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT pin, at, device, status, created_at, updated_at
FROM corrections
WHERE %s
ORDER BY pin, at`, strings.Join(where, " AND "))

	var rows []models.Correction
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("corrections between: %w", err)
	}
	return rows, nil
}
