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

// EventRepository owns the append-only raw_events table.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// AppendEvents inserts the batch in one transaction, skipping rows whose
// natural key (pin, minute(at), device, status) already exists. Re-appending
// an already stored batch is a no-op, which makes caller retries safe.
func (r *EventRepository) AppendEvents(ctx context.Context, events []models.RawEvent) (inserted, duplicates int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin append events: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO raw_events (pin, at, device, status, fpid)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (pin, date_trunc('minute', at), device, status) DO NOTHING
RETURNING pin`

	for i := range events {
		ev := &events[i]
		var insertedPIN string
		if err := tx.QueryRowxContext(ctx, query, ev.PIN, ev.At, ev.Device, ev.Status, ev.FPID).Scan(&insertedPIN); err != nil {
			if err == sql.ErrNoRows {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("append event %s@%s: %w", ev.PIN, ev.At.Format(time.RFC3339), err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit append events: %w", err)
	}
	commit = true
	return inserted, duplicates, nil
}

// EventsBetween returns raw events in [from, to] ordered by (pin, at).
// An empty pin filter selects every employee.
func (r *EventRepository) EventsBetween(ctx context.Context, from, to time.Time, pins []string) ([]models.RawEvent, error) {
	where := []string{"at >= $1", "at <= $2"}
	args := []interface{}{from, to}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT pin, at, device, status, fpid
FROM raw_events
WHERE %s
ORDER BY pin, at`, strings.Join(where, " AND "))

	var rows []models.RawEvent
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	return rows, nil
}
