package device

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
)

// FetchResult carries a poll's decoded events plus the count of records whose
// punch code had no mapping. Unmappable records are dropped and counted,
// never mislabelled.
type FetchResult struct {
	Events  []models.RawEvent
	Dropped int
}

// Adapter drives one clocking device. Implementations never write to the
// database and never retry beyond the shared HTTP client policy; failures
// surface to the orchestrator as structured errors.
type Adapter interface {
	Name() string
	TestConnect(ctx context.Context) error
	FetchEvents(ctx context.Context, from, to time.Time) (*FetchResult, error)
	// StreamEvents forwards punches live as the device records them, until
	// ctx is cancelled or the session drops. Poll-only families return
	// ErrStreamUnsupported.
	StreamEvents(ctx context.Context, ch chan<- models.RawEvent) error
}

// New builds the family-specific adapter for a configured device.
func New(cfg models.DeviceConfig, client *Client, logger *zap.Logger) (Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Family {
	case models.FamilyPullNative:
		return newNativeAdapter(cfg, logger), nil
	case models.FamilyPullHTTP:
		return newCloudAdapter(cfg, client, logger), nil
	case models.FamilyPushHTTP:
		return newWebformAdapter(cfg, client, logger), nil
	default:
		return nil, fmt.Errorf("device %s: unsupported family %q", cfg.Name, cfg.Family)
	}
}
