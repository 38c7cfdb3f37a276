package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
)

type workingHoursStore interface {
	ReplaceRange(ctx context.Context, from, to time.Time, pins []string, rows []models.WorkingHours) error
}

// WorkHoursSummary reports one working-hours rebuild.
type WorkHoursSummary struct {
	Rows int `json:"rows"`
}

// WorkHoursService derives per-day working hours from reconciled attendance.
// It reads attendance_records only, never the raw logs, so its output always
// reflects the attendance stage that preceded it.
type WorkHoursService struct {
	attendance attendanceStore
	hours      workingHoursStore
	standard   time.Duration // paid hours per full workday
	breakSpan  time.Duration // unpaid break deducted when the span covers it
	logger     *zap.Logger
}

// NewWorkHoursService constructs the service with the standard 8-hour day and
// a 1-hour unpaid break.
func NewWorkHoursService(attendance attendanceStore, hours workingHoursStore, logger *zap.Logger) *WorkHoursService {
	return &WorkHoursService{
		attendance: attendance,
		hours:      hours,
		standard:   8 * time.Hour,
		breakSpan:  time.Hour,
		logger:     logger,
	}
}

// Run recomputes workinghours for [from, to] (date-granular, inclusive),
// deleting and rewriting the target range.
func (s *WorkHoursService) Run(ctx context.Context, from, to time.Time, pins []string) (*WorkHoursSummary, error) {
	from = truncateToDay(from)
	to = truncateToDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("empty working-hours range %s..%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	records, err := s.attendance.ListRange(ctx, from, to, pins)
	if err != nil {
		return nil, err
	}

	rows := make([]models.WorkingHours, 0, len(records))
	for _, rec := range records {
		rows = append(rows, s.derive(rec))
	}

	if err := s.hours.ReplaceRange(ctx, from, to, pins, rows); err != nil {
		return nil, err
	}

	s.logger.Info("working hours rebuilt",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", to.Format("2006-01-02")),
		zap.Int("rows", len(rows)))
	return &WorkHoursSummary{Rows: len(rows)}, nil
}

// derive computes one row. A day with both punches splits its span into
// regular hours capped at the standard day, overtime above it, and the unpaid
// break when the span is long enough to contain it. A day missing either
// punch yields a zero-hour non-workday row, which keeps the employee-day
// visible to payroll instead of silently absent.
func (s *WorkHoursService) derive(rec models.AttendanceRecord) models.WorkingHours {
	row := models.WorkingHours{
		Date:  rec.Date,
		PIN:   rec.PIN,
		Shift: rec.Shift,
	}
	if rec.CheckIn == nil || rec.CheckOut == nil {
		return row
	}

	span := rec.CheckOut.Sub(*rec.CheckIn)
	if span <= 0 {
		return row
	}

	if span > s.breakSpan+s.standard/2 {
		row.BreakHours = s.breakSpan.Hours()
		span -= s.breakSpan
	}

	if span > s.standard {
		row.RegularHours = s.standard.Hours()
		row.OvertimeHours = roundHours(span - s.standard)
	} else {
		row.RegularHours = roundHours(span)
	}
	row.Workday = true
	return row
}

// roundHours keeps two decimals; payroll ingests hundredths of an hour.
func roundHours(d time.Duration) float64 {
	return float64(int(d.Hours()*100+0.5)) / 100
}
