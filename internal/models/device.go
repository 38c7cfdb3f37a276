package models

import "time"

// DeviceFamily selects the adapter driving a clocking device.
type DeviceFamily string

const (
	// FamilyPullNative opens a vendor TCP session and reads the on-device buffer.
	FamilyPullNative DeviceFamily = "PULL_NATIVE"
	// FamilyPullHTTP polls a vendor cloud endpoint bearing an API key.
	FamilyPullHTTP DeviceFamily = "PULL_HTTP"
	// FamilyPushHTTP polls a generic internal endpoint fed by a web form.
	FamilyPushHTTP DeviceFamily = "PUSH_HTTP"
)

// Valid returns true when the family is a supported value.
func (f DeviceFamily) Valid() bool {
	switch f {
	case FamilyPullNative, FamilyPullHTTP, FamilyPushHTTP:
		return true
	default:
		return false
	}
}

// PunchMap converts a device-local punch code into a normalized status.
// Codes absent from the map fall back to Fallback; when Fallback is empty the
// event is dropped and counted rather than mislabelled.
type PunchMap struct {
	Codes    map[string]PunchStatus `mapstructure:"codes" yaml:"codes" json:"codes"`
	Fallback PunchStatus            `mapstructure:"fallback" yaml:"fallback" json:"fallback"`
}

// Resolve maps a device-local code; ok is false when the event must be dropped.
func (m PunchMap) Resolve(code string) (PunchStatus, bool) {
	if status, found := m.Codes[code]; found {
		return status, true
	}
	if m.Fallback != "" {
		return m.Fallback, true
	}
	return "", false
}

// DeviceConfig describes one fleet member. Loaded from the devices YAML file,
// never persisted by the core.
type DeviceConfig struct {
	Name     string       `mapstructure:"name" yaml:"name" json:"name"`
	Family   DeviceFamily `mapstructure:"family" yaml:"family" json:"family"`
	Endpoint string       `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey   string       `mapstructure:"api_key" yaml:"api_key" json:"-"`
	CloudID  string       `mapstructure:"cloud_id" yaml:"cloud_id" json:"cloud_id,omitempty"`
	PunchMap PunchMap     `mapstructure:"punch_map" yaml:"punch_map" json:"punch_map"`
}

// DeviceStatus is a device's position in the current sync wave.
type DeviceStatus string

const (
	DeviceIdle       DeviceStatus = "IDLE"
	DeviceConnecting DeviceStatus = "CONNECTING"
	DeviceReading    DeviceStatus = "READING"
	DeviceWriting    DeviceStatus = "WRITING"
	DeviceCompleted  DeviceStatus = "COMPLETED"
	DeviceFailed     DeviceStatus = "FAILED"
	DeviceCancelled  DeviceStatus = "CANCELLED"
	DeviceTimeout    DeviceStatus = "TIMEOUT"
)

// Terminal reports whether the wave is finished with this device.
// Transitions out of a terminal state only happen when the next wave begins.
func (s DeviceStatus) Terminal() bool {
	switch s {
	case DeviceCompleted, DeviceFailed, DeviceCancelled, DeviceTimeout:
		return true
	default:
		return false
	}
}

// DeviceState is the dashboard-facing snapshot of one device.
type DeviceState struct {
	Name          string       `json:"name"`
	Status        DeviceStatus `json:"status"`
	Message       string       `json:"message,omitempty"`
	RecordsSynced int          `json:"records_synced"`
	Dropped       int          `json:"dropped"`
	Duplicates    int          `json:"duplicates"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
}
