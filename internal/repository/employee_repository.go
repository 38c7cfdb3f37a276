package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adika-dev/presensi-core/internal/models"
)

// EmployeeRepository reads the external employee and department catalogs.
// The core never writes these tables.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs the repository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// ListByPINs returns catalog rows for the given pins restricted to the given
// employment statuses, left-joined with departments. An empty pin slice
// selects the whole catalog.
func (r *EmployeeRepository) ListByPINs(ctx context.Context, pins []string, statuses []models.EmployeeStatus) ([]models.Employee, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		where = append(where, fmt.Sprintf("e.status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(raw))
	}
	if len(pins) > 0 {
		where = append(where, fmt.Sprintf("e.pin = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(pins))
	}

	query := fmt.Sprintf(`SELECT e.pin, e.name, e.role, e.location, e.department_id, e.shift_name, e.status, e.fpid,
        d.name AS department_name
FROM employees e
LEFT JOIN departments d ON d.id = e.department_id
WHERE %s
ORDER BY e.pin`, strings.Join(where, " AND "))

	var rows []models.Employee
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return rows, nil
}
