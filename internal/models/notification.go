package models

import "time"

// NotificationKind distinguishes terminal job outcomes.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "SUCCESS"
	NotificationFailure NotificationKind = "FAILURE"
)

// Notification is appended when a job reaches a terminal transition and is
// consumed by the dashboard via polling.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	JobID     string           `db:"job_id" json:"job_id"`
	Owner     string           `db:"owner" json:"owner"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
