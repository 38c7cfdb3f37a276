package models

import "time"

// Classification labels a reconciled day for an employee.
type Classification string

const (
	ClassOnTime     Classification = "ON_TIME"
	ClassLate       Classification = "LATE"
	ClassNoCheckIn  Classification = "NO_CHECK_IN"
	ClassNoCheckOut Classification = "NO_CHECK_OUT"
)

// Valid returns true when the classification is a supported value.
func (c Classification) Valid() bool {
	switch c {
	case ClassOnTime, ClassLate, ClassNoCheckIn, ClassNoCheckOut:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the canonical per-employee-per-day output of
// reconciliation. At most one row exists per (date, pin); rows are replaced
// wholesale whenever a reconciliation wave covers the date.
type AttendanceRecord struct {
	Date           time.Time       `db:"date" json:"date"`
	PIN            string          `db:"pin" json:"pin"`
	Name           string          `db:"name" json:"name"`
	Role           string          `db:"role" json:"role"`
	Location       string          `db:"location" json:"location"`
	Dept           string          `db:"dept" json:"dept"`
	Shift          string          `db:"shift" json:"shift"`
	CheckIn        *time.Time      `db:"check_in" json:"check_in,omitempty"`
	CheckOut       *time.Time      `db:"check_out" json:"check_out,omitempty"`
	ProdIn         *time.Time      `db:"prod_in" json:"prod_in,omitempty"`
	ProdOut        *time.Time      `db:"prod_out" json:"prod_out,omitempty"`
	Classification *Classification `db:"classification" json:"classification,omitempty"`
}

// WorkingHours is the per-(date, pin) aggregate derived from attendance
// records by the second reconciliation stage. It never reads raw events.
type WorkingHours struct {
	Date          time.Time `db:"date" json:"date"`
	PIN           string    `db:"pin" json:"pin"`
	Shift         string    `db:"shift" json:"shift"`
	RegularHours  float64   `db:"regular_hours" json:"regular_hours"`
	OvertimeHours float64   `db:"overtime_hours" json:"overtime_hours"`
	BreakHours    float64   `db:"break_hours" json:"break_hours"`
	Workday       bool      `db:"workday" json:"workday"`
}
