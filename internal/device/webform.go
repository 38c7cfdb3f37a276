package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

// webformAdapter polls a generic internal endpoint that returns scans recorded
// through a web form since a timestamp.
type webformAdapter struct {
	cfg    models.DeviceConfig
	client *Client
	logger *zap.Logger
}

func newWebformAdapter(cfg models.DeviceConfig, client *Client, logger *zap.Logger) *webformAdapter {
	return &webformAdapter{cfg: cfg, client: client, logger: logger}
}

func (a *webformAdapter) Name() string { return a.cfg.Name }

type webformRequest struct {
	Since string `json:"since"`
	Until string `json:"until,omitempty"`
}

type webformRecord struct {
	PIN       string `json:"pin"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type webformResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    []webformRecord `json:"data"`
}

func (a *webformAdapter) TestConnect(ctx context.Context) error {
	// Asking for a zero-width window doubles as a health probe.
	now := time.Now()
	_, err := a.query(ctx, now, now)
	return err
}

func (a *webformAdapter) FetchEvents(ctx context.Context, from, to time.Time) (*FetchResult, error) {
	records, err := a.query(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{}
	for _, rec := range records {
		at, err := time.ParseInLocation("2006-01-02 15:04:05", rec.Timestamp, time.Local)
		if err != nil {
			a.logger.Sugar().Warnw("webform record timestamp unparseable", "device", a.cfg.Name, "timestamp", rec.Timestamp)
			result.Dropped++
			continue
		}
		status, ok := a.cfg.PunchMap.Resolve(rec.Status)
		if !ok {
			a.logger.Sugar().Warnw("webform record status unmapped", "device", a.cfg.Name, "status", rec.Status)
			result.Dropped++
			continue
		}
		result.Events = append(result.Events, models.RawEvent{
			PIN:    rec.PIN,
			At:     at,
			Device: a.cfg.Name,
			Status: status,
		})
	}
	return result, nil
}

// StreamEvents is unavailable for the webform family.
func (a *webformAdapter) StreamEvents(ctx context.Context, ch chan<- models.RawEvent) error {
	return appErrors.Clone(appErrors.ErrStreamUnsupported, fmt.Sprintf("device %s is poll-only", a.cfg.Name))
}

func (a *webformAdapter) query(ctx context.Context, from, to time.Time) ([]webformRecord, error) {
	req := webformRequest{
		Since: from.Format("2006-01-02 15:04:05"),
		Until: to.Format("2006-01-02 15:04:05"),
	}
	body, err := a.client.PostJSON(ctx, a.cfg.Endpoint, req)
	if err != nil {
		return nil, err
	}

	var resp webformResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFormat.Code, appErrors.ErrUpstreamFormat.Status, "webform payload")
	}
	if !resp.Success {
		return nil, fmt.Errorf("webform fetch rejected: %s", resp.Message)
	}
	return resp.Data, nil
}
