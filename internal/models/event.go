package models

import (
	"fmt"
	"time"
)

// PunchStatus is the normalized kind of a fingerprint scan. Device-specific
// markers such as "P1 MASUK-1" are preserved verbatim as opaque tags because
// the reconciliation selectors match on them.
type PunchStatus string

const (
	PunchIn       PunchStatus = "IN"
	PunchOut      PunchStatus = "OUT"
	PunchInBreak  PunchStatus = "IN_BREAK"
	PunchOutBreak PunchStatus = "OUT_BREAK"
	PunchRawCode  PunchStatus = "RAW_CODE"
)

// RawEvent is one fingerprint scan as emitted by a clocking device.
// Rows are append-only; the status column is never rewritten after insert.
type RawEvent struct {
	PIN    string      `db:"pin" json:"pin"`
	At     time.Time   `db:"at" json:"at"`
	Device string      `db:"device" json:"device"`
	Status PunchStatus `db:"status" json:"status"`
	FPID   *int        `db:"fpid" json:"fpid,omitempty"`
}

// DedupKey returns the natural key used for at-most-once insertion:
// (pin, minute-truncated timestamp, device, status).
func (e RawEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.PIN, e.At.Truncate(time.Minute).Format("2006-01-02 15:04"), e.Device, e.Status)
}

// Correction is an operator-entered row standing in for a missed scan.
// It shares the raw event dedup key and joins reconciliation as an equal peer.
type Correction struct {
	PIN       string      `db:"pin" json:"pin"`
	At        time.Time   `db:"at" json:"at"`
	Device    string      `db:"device" json:"device"`
	Status    PunchStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// DedupKey mirrors RawEvent.DedupKey over the corrections table.
func (c Correction) DedupKey() string {
	return RawEvent{PIN: c.PIN, At: c.At, Device: c.Device, Status: c.Status}.DedupKey()
}
