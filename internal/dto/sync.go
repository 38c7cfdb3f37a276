package dto

import "github.com/adika-dev/presensi-core/internal/models"

// SyncRequest triggers a device sync wave over a closed date range.
type SyncRequest struct {
	StartDate         string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	ExecuteProcedures bool     `json:"execute_procedures"`
	Pins              []string `json:"pins,omitempty"`
}

// SyncStatusResponse is the dashboard poll payload.
type SyncStatusResponse struct {
	Wave    int                  `json:"wave"`
	Active  bool                 `json:"active"`
	Devices []models.DeviceState `json:"devices"`
}

// CorrectionEntry is one manually entered punch standing in for a failed scan.
type CorrectionEntry struct {
	PIN    string `json:"pin" validate:"required"`
	At     string `json:"at" validate:"required,datetime=2006-01-02 15:04:05"`
	Device string `json:"device" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// AppendCorrectionsRequest uploads a batch of manual corrections.
type AppendCorrectionsRequest struct {
	Entries []CorrectionEntry `json:"entries" validate:"required,min=1,dive"`
}

// AppendCorrectionsResponse reports the dedup outcome.
type AppendCorrectionsResponse struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}
