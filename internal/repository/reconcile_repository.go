package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PinDate keys one employee-day during reconciliation. Date is "2006-01-02".
type PinDate struct {
	PIN  string `db:"pin"`
	Date string `db:"day"`
}

// Agg selects the aggregate direction of a selector query.
type Agg string

const (
	AggMin Agg = "MIN"
	AggMax Agg = "MAX"
)

// EventAggQuery is a typed selector over raw_events: per (pin, day), the
// MIN/MAX event time restricted by device set and an optional status
// equality or inequality. Parameter binding is mandatory; device names and
// statuses never reach the SQL text.
type EventAggQuery struct {
	Agg       Agg
	Devices   []string
	Status    *string
	NotStatus *string
	From      time.Time // inclusive
	To        time.Time // exclusive
	PINs      []string
}

// ReconcileRepository issues the set-oriented selector queries that drive the
// daily reconciliation stage.
type ReconcileRepository struct {
	db *sqlx.DB
}

// NewReconcileRepository constructs the repository.
func NewReconcileRepository(db *sqlx.DB) *ReconcileRepository {
	return &ReconcileRepository{db: db}
}

type aggRow struct {
	PIN  string    `db:"pin"`
	Day  time.Time `db:"day"`
	At   time.Time `db:"at"`
}

func toMap(rows []aggRow) map[PinDate]time.Time {
	out := make(map[PinDate]time.Time, len(rows))
	for _, row := range rows {
		out[PinDate{PIN: row.PIN, Date: row.Day.Format("2006-01-02")}] = row.At
	}
	return out
}

// Calendar returns the distinct (pin, day) pairs appearing in raw_events or
// corrections for the range, restricted to the tracked device set.
func (r *ReconcileRepository) Calendar(ctx context.Context, from, to time.Time, pins, trackedDevices []string) ([]PinDate, error) {
	where := []string{"at >= $1", "at < $2", "device = ANY($3)"}
	args := []interface{}{from, to, pq.Array(trackedDevices)}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}
	cond := strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT DISTINCT pin, at::date AS day FROM raw_events WHERE %s
UNION
SELECT DISTINCT pin, at::date AS day FROM corrections WHERE %s
ORDER BY pin, day`, cond, cond)

	var rows []PinDate
	type calRow struct {
		PIN string    `db:"pin"`
		Day time.Time `db:"day"`
	}
	var raw []calRow
	if err := r.db.SelectContext(ctx, &raw, query, args...); err != nil {
		return nil, fmt.Errorf("reconciliation calendar: %w", err)
	}
	for _, row := range raw {
		rows = append(rows, PinDate{PIN: row.PIN, Date: row.Day.Format("2006-01-02")})
	}
	return rows, nil
}

// AggregateEvents resolves one selector over raw_events.
func (r *ReconcileRepository) AggregateEvents(ctx context.Context, q EventAggQuery) (map[PinDate]time.Time, error) {
	if q.Agg != AggMin && q.Agg != AggMax {
		return nil, fmt.Errorf("unsupported aggregate %q", q.Agg)
	}

	where := []string{"at >= $1", "at < $2", "device = ANY($3)"}
	args := []interface{}{q.From, q.To, pq.Array(q.Devices)}
	if q.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *q.Status)
	}
	if q.NotStatus != nil {
		where = append(where, fmt.Sprintf("status <> $%d", len(args)+1))
		args = append(args, *q.NotStatus)
	}
	if len(q.PINs) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(q.PINs))
	}

	query := fmt.Sprintf(`SELECT pin, at::date AS day, %s(at) AS at
FROM raw_events
WHERE %s
GROUP BY pin, at::date`, q.Agg, strings.Join(where, " AND "))

	var rows []aggRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	return toMap(rows), nil
}

// AggregateCorrections resolves one selector over corrections, filtered by
// device set only: a correction's status carries no selector weight.
func (r *ReconcileRepository) AggregateCorrections(ctx context.Context, agg Agg, devices []string, from, to time.Time, pins []string) (map[PinDate]time.Time, error) {
	if agg != AggMin && agg != AggMax {
		return nil, fmt.Errorf("unsupported aggregate %q", agg)
	}

	where := []string{"at >= $1", "at < $2", "device = ANY($3)"}
	args := []interface{}{from, to, pq.Array(devices)}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT pin, at::date AS day, %s(at) AS at
FROM corrections
WHERE %s
GROUP BY pin, at::date`, agg, strings.Join(where, " AND "))

	var rows []aggRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate corrections: %w", err)
	}
	return toMap(rows), nil
}

// LegacyGateCheckIns resolves the historical device-'1' check-in rule: the
// earliest device-'1' event per (pin, day) inside a fixed legacy window, for
// pins with no device-'2' event inside the legacy anti-join window. Old data
// still flows through reconciliation, so the carve-out survives verbatim.
func (r *ReconcileRepository) LegacyGateCheckIns(ctx context.Context, gateDevice, replacementDevice string, windowFrom, windowTo, antiFrom, antiTo time.Time, pins []string) (map[PinDate]time.Time, error) {
	where := []string{
		"device = $1",
		"at >= $2", "at < $3",
		`pin NOT IN (SELECT DISTINCT pin FROM raw_events WHERE device = $4 AND at >= $5 AND at < $6)`,
	}
	args := []interface{}{gateDevice, windowFrom, windowTo, replacementDevice, antiFrom, antiTo}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT pin, at::date AS day, MIN(at) AS at
FROM raw_events
WHERE %s
GROUP BY pin, at::date`, strings.Join(where, " AND "))

	var rows []aggRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("legacy gate check-ins: %w", err)
	}
	return toMap(rows), nil
}
