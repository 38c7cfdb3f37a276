package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

// cloudWindow is the widest range the vendor cloud accepts per request.
const cloudWindow = 48 * time.Hour

// cloudAdapter polls a vendor cloud endpoint bearing an API key and cloud id.
// Ranges wider than the upstream's two-day limit are clamped into chunks.
type cloudAdapter struct {
	cfg    models.DeviceConfig
	client *Client
	logger *zap.Logger
}

func newCloudAdapter(cfg models.DeviceConfig, client *Client, logger *zap.Logger) *cloudAdapter {
	return &cloudAdapter{cfg: cfg, client: client, logger: logger}
}

func (a *cloudAdapter) Name() string { return a.cfg.Name }

type cloudRequest struct {
	TransID   string `json:"trans_id"`
	CloudID   string `json:"cloud_id"`
	APIKey    string `json:"api_key"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type cloudRecord struct {
	PIN       string `json:"pin"`
	Timestamp string `json:"timestamp"`
	PunchCode string `json:"punch_code"`
	FPID      *int   `json:"fpid"`
}

type cloudResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    []cloudRecord `json:"data"`
}

func (a *cloudAdapter) TestConnect(ctx context.Context) error {
	req := cloudRequest{TransID: uuid.NewString(), CloudID: a.cfg.CloudID, APIKey: a.cfg.APIKey}
	body, err := a.client.PostJSON(ctx, a.cfg.Endpoint, req)
	if err != nil {
		return err
	}
	var resp cloudResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstreamFormat.Code, appErrors.ErrUpstreamFormat.Status, "cloud handshake payload")
	}
	if !resp.Success {
		return fmt.Errorf("cloud handshake rejected: %s", resp.Message)
	}
	return nil
}

func (a *cloudAdapter) FetchEvents(ctx context.Context, from, to time.Time) (*FetchResult, error) {
	result := &FetchResult{}

	for chunkStart := from; chunkStart.Before(to); {
		chunkEnd := chunkStart.Add(cloudWindow)
		if chunkEnd.After(to) {
			chunkEnd = to
		}

		records, err := a.fetchChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			ev, ok := a.decode(rec)
			if !ok {
				result.Dropped++
				continue
			}
			result.Events = append(result.Events, ev)
		}

		chunkStart = chunkEnd
	}

	return result, nil
}

// StreamEvents is unavailable for the cloud family; punches only surface
// through the polled endpoint.
func (a *cloudAdapter) StreamEvents(ctx context.Context, ch chan<- models.RawEvent) error {
	return appErrors.Clone(appErrors.ErrStreamUnsupported, fmt.Sprintf("device %s is poll-only", a.cfg.Name))
}

func (a *cloudAdapter) fetchChunk(ctx context.Context, from, to time.Time) ([]cloudRecord, error) {
	req := cloudRequest{
		TransID:   uuid.NewString(),
		CloudID:   a.cfg.CloudID,
		APIKey:    a.cfg.APIKey,
		StartDate: from.Format("2006-01-02"),
		EndDate:   to.Format("2006-01-02"),
	}
	body, err := a.client.PostJSON(ctx, a.cfg.Endpoint, req)
	if err != nil {
		return nil, err
	}

	var resp cloudResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFormat.Code, appErrors.ErrUpstreamFormat.Status, "cloud attendance payload")
	}
	if !resp.Success {
		return nil, fmt.Errorf("cloud fetch rejected: %s", resp.Message)
	}
	return resp.Data, nil
}

func (a *cloudAdapter) decode(rec cloudRecord) (models.RawEvent, bool) {
	at, err := time.ParseInLocation("2006-01-02 15:04:05", rec.Timestamp, time.Local)
	if err != nil {
		a.logger.Sugar().Warnw("cloud record timestamp unparseable", "device", a.cfg.Name, "timestamp", rec.Timestamp)
		return models.RawEvent{}, false
	}
	status, ok := a.cfg.PunchMap.Resolve(rec.PunchCode)
	if !ok {
		a.logger.Sugar().Warnw("cloud record punch code unmapped", "device", a.cfg.Name, "code", rec.PunchCode)
		return models.RawEvent{}, false
	}
	return models.RawEvent{
		PIN:    rec.PIN,
		At:     at,
		Device: a.cfg.Name,
		Status: status,
		FPID:   rec.FPID,
	}, true
}
