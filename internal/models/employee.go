package models

// EmployeeStatus mirrors the catalog's employment state column.
type EmployeeStatus string

const (
	EmployeeActive EmployeeStatus = "Active"
	EmployeeResign EmployeeStatus = "Resign"
)

// Employee is a read-only row from the employee catalog.
type Employee struct {
	PIN          string         `db:"pin" json:"pin"`
	Name         string         `db:"name" json:"name"`
	Role         string         `db:"role" json:"role"`
	Location     string         `db:"location" json:"location"`
	DepartmentID *int           `db:"department_id" json:"department_id,omitempty"`
	ShiftName    string         `db:"shift_name" json:"shift_name"`
	Status       EmployeeStatus `db:"status" json:"status"`
	FPID         *int           `db:"fpid" json:"fpid,omitempty"`

	// Joined from departments; nil when the employee has no department.
	DepartmentName *string `db:"department_name" json:"department_name,omitempty"`
}

// Department is a read-only catalog row.
type Department struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
