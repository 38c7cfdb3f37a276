package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
)

// Procedure stage names accepted in a PROCEDURE_PROCESSING payload.
const (
	StageAttendance   = "attrecord"
	StageWorkingHours = "spjamkerja"
)

// ProcedurePayload is the decoded payload of a PROCEDURE_PROCESSING job.
type ProcedurePayload struct {
	StartDate  time.Time
	EndDate    time.Time
	PINs       []string
	Procedures []string
}

// ParseProcedurePayload validates a raw job payload. Validation runs both at
// enqueue time, so a malformed job never reaches the queue, and again in the
// worker, because rows can arrive from older deployments.
func ParseProcedurePayload(raw map[string]interface{}) (*ProcedurePayload, error) {
	p := &ProcedurePayload{}

	start, err := payloadDate(raw, "start_date", true)
	if err != nil {
		return nil, err
	}
	end, err := payloadDate(raw, "end_date", true)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s precedes start_date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	p.StartDate, p.EndDate = start, end

	if p.PINs, err = payloadStrings(raw, "pins"); err != nil {
		return nil, err
	}

	if p.Procedures, err = payloadStrings(raw, "procedures"); err != nil {
		return nil, err
	}
	if len(p.Procedures) == 0 {
		p.Procedures = []string{StageAttendance, StageWorkingHours}
	}
	for _, proc := range p.Procedures {
		if proc != StageAttendance && proc != StageWorkingHours {
			return nil, fmt.Errorf("unknown procedure %q", proc)
		}
	}
	return p, nil
}

func (p *ProcedurePayload) wants(stage string) bool {
	for _, proc := range p.Procedures {
		if proc == stage {
			return true
		}
	}
	return false
}

func payloadDate(raw map[string]interface{}, key string, required bool) (time.Time, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		if required {
			return time.Time{}, fmt.Errorf("payload field %q is required", key)
		}
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("payload field %q must be a string date", key)
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("payload field %q: %w", key, err)
	}
	return t, nil
}

func payloadStrings(raw map[string]interface{}, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("payload field %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload field %q must be a list of strings", key)
	}
}

type attendanceStage interface {
	Run(ctx context.Context, from, to time.Time, pins []string) (*ReconcileSummary, error)
}

type hoursStage interface {
	Run(ctx context.Context, from, to time.Time, pins []string) (*WorkHoursSummary, error)
}

// ProcedureRunner executes the two reconciliation stages of a
// PROCEDURE_PROCESSING job in order. The working-hours stage reads only the
// attendance table the first stage wrote, so it never runs after an
// attendance failure.
type ProcedureRunner struct {
	reconcile attendanceStage
	workhours hoursStage
	logger    *zap.Logger
}

// NewProcedureRunner constructs the runner.
func NewProcedureRunner(reconcile attendanceStage, workhours hoursStage, logger *zap.Logger) *ProcedureRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcedureRunner{reconcile: reconcile, workhours: workhours, logger: logger}
}

// Handle is the JobHandler for PROCEDURE_PROCESSING. The result map carries a
// message per executed stage and is persisted even on failure, so an operator
// can see which stage broke.
func (r *ProcedureRunner) Handle(ctx context.Context, job models.Job) (models.JSONMap, error) {
	payload, err := ParseProcedurePayload(job.Payload)
	if err != nil {
		return models.JSONMap{"error": err.Error()}, err
	}

	result := models.JSONMap{
		"start_date": payload.StartDate.Format("2006-01-02"),
		"end_date":   payload.EndDate.Format("2006-01-02"),
	}
	log := r.logger.Sugar().With("job_id", job.ID,
		"start_date", payload.StartDate.Format("2006-01-02"),
		"end_date", payload.EndDate.Format("2006-01-02"))

	if payload.wants(StageAttendance) {
		summary, err := r.reconcile.Run(ctx, payload.StartDate, payload.EndDate, payload.PINs)
		if err != nil {
			result[StageAttendance] = fmt.Sprintf("failed: %v", err)
			return result, fmt.Errorf("%s: %w", StageAttendance, err)
		}
		result[StageAttendance] = fmt.Sprintf("rebuilt %d records over %d employee-days", summary.Records, summary.Days)
		if summary.UnknownPins > 0 {
			result["unknown_pins"] = summary.UnknownPins
		}
		log.Infow("attendance stage completed", "records", summary.Records)
	}

	if payload.wants(StageWorkingHours) {
		summary, err := r.workhours.Run(ctx, payload.StartDate, payload.EndDate, payload.PINs)
		if err != nil {
			result[StageWorkingHours] = fmt.Sprintf("failed: %v", err)
			return result, fmt.Errorf("%s: %w", StageWorkingHours, err)
		}
		result[StageWorkingHours] = fmt.Sprintf("computed %d working-hour rows", summary.Rows)
		log.Infow("working hours stage completed", "rows", summary.Rows)
	}

	return result, nil
}
