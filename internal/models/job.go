package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates supported background job categories.
type JobType string

const (
	// JobTypeProcedure runs the reconciliation procedures over a date range.
	JobTypeProcedure JobType = "PROCEDURE_PROCESSING"
)

// Valid returns true when the type is a supported value.
func (t JobType) Valid() bool {
	return t == JobTypeProcedure
}

// JobState captures the queue lifecycle states.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
)

// Terminal reports whether no further transitions are possible. FAILED is
// terminal only once attempts are exhausted, which the queue checks separately.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// Priority bounds: 1 is the most urgent.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// JSONMap stores arbitrary JSON documents in a JSONB column.
type JSONMap map[string]interface{}

// Value marshals the map for persistence.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json map: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the map.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal json map: %w", err)
	}
	return nil
}

// Job is a durable work item in the persistent queue.
type Job struct {
	ID          string     `db:"id" json:"id"`
	Type        JobType    `db:"type" json:"type"`
	Payload     JSONMap    `db:"payload_json" json:"payload"`
	State       JobState   `db:"state" json:"state"`
	Priority    int        `db:"priority" json:"priority"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Error       *string    `db:"error" json:"error,omitempty"`
	Result      JSONMap    `db:"result_json" json:"result,omitempty"`
	Owner       *string    `db:"owner" json:"owner,omitempty"`
}

// JobFilter scopes job listings.
type JobFilter struct {
	Owner     string
	Type      JobType
	State     JobState
	Page      int
	PageSize  int
	SortOrder string
}

// QueueStats summarises queue depth per state for dashboard polls.
type QueueStats struct {
	Pending   int `db:"pending" json:"pending"`
	Running   int `db:"running" json:"running"`
	Completed int `db:"completed" json:"completed"`
	Failed    int `db:"failed" json:"failed"`
	Cancelled int `db:"cancelled" json:"cancelled"`
}
