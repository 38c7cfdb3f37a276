package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

type correctionAppender interface {
	AppendCorrections(ctx context.Context, corrections []models.Correction) (inserted, duplicates int, err error)
}

// EventService fronts the manual correction intake. Corrections share the raw
// event dedup key, so re-uploading a batch is harmless and reports the rows
// that were already present.
type EventService struct {
	corrections correctionAppender
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEventService constructs the service.
func NewEventService(corrections correctionAppender, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{corrections: corrections, metrics: metrics, validator: validate, logger: logger}
}

// AppendCorrections stores a batch of operator-entered punches.
func (s *EventService) AppendCorrections(ctx context.Context, req dto.AppendCorrectionsRequest) (*dto.AppendCorrectionsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	rows := make([]models.Correction, 0, len(req.Entries))
	for _, entry := range req.Entries {
		at, err := time.ParseInLocation("2006-01-02 15:04:05", entry.At, time.Local)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "correction timestamp must be formatted as 2006-01-02 15:04:05")
		}
		rows = append(rows, models.Correction{
			PIN:    entry.PIN,
			At:     at,
			Device: entry.Device,
			Status: models.PunchStatus(entry.Status),
		})
	}

	inserted, duplicates, err := s.corrections.AppendCorrections(ctx, rows)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveIngest("manual", inserted, duplicates, 0)
	s.logger.Info("corrections appended",
		zap.Int("inserted", inserted),
		zap.Int("duplicates", duplicates))
	return &dto.AppendCorrectionsResponse{Inserted: inserted, Duplicates: duplicates}, nil
}
