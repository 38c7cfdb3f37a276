package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/pkg/config"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

type schedulerQueue interface {
	CountActive(ctx context.Context, jobType models.JobType, owner string) (int, error)
	CreateJob(ctx context.Context, req dto.CreateJobRequest) (*models.Job, error)
}

// SchedulerService fires a full sync-plus-procedures run on a fixed cadence,
// always over [yesterday, today]. The overlap guard lives in the job queue,
// not in memory, so a restart mid-run still refuses to stack a second run on
// top of the first.
type SchedulerService struct {
	sync   *SyncService
	queue  schedulerQueue
	logger *zap.Logger
	owner  string
	now    func() time.Time

	mu       sync.Mutex
	interval time.Duration
	bump     chan struct{}
	running  bool
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(syncSvc *SyncService, queue schedulerQueue, cfg config.SchedulerConfig, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		sync:     syncSvc,
		queue:    queue,
		logger:   logger,
		owner:    cfg.Owner,
		now:      time.Now,
		interval: cfg.Interval,
		bump:     make(chan struct{}, 1),
	}
}

// Interval returns the current cadence.
func (s *SchedulerService) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the cadence at runtime; the running ticker picks the
// new value up immediately.
func (s *SchedulerService) SetInterval(d time.Duration) error {
	if d < time.Minute {
		return appErrors.Clone(appErrors.ErrValidation, "scheduler interval must be at least one minute")
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	select {
	case s.bump <- struct{}{}:
	default:
	}
	s.logger.Info("scheduler interval changed", zap.Duration("interval", d))
	return nil
}

// Start runs the loop until ctx is cancelled. The first run happens after one
// full interval, not at boot, so a crash-looping process cannot hammer the
// fleet.
func (s *SchedulerService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(s.Interval())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.bump:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.Interval())
			case <-timer.C:
				s.execute(ctx)
				timer.Reset(s.Interval())
			}
		}
	}()
	s.logger.Info("scheduler started", zap.Duration("interval", s.Interval()))
}

// ForceExecute triggers a run now, outside the cadence. The overlap guard
// still applies.
func (s *SchedulerService) ForceExecute(ctx context.Context) error {
	return s.execute(ctx)
}

func (s *SchedulerService) execute(ctx context.Context) error {
	active, err := s.queue.CountActive(ctx, models.JobTypeProcedure, s.owner)
	if err != nil {
		s.logger.Error("scheduler overlap check failed", zap.Error(err))
		return err
	}
	if active > 0 {
		s.logger.Warn("scheduled run skipped: previous run still active", zap.Int("active_jobs", active))
		return appErrors.Clone(appErrors.ErrConflict, "previous scheduled run is still active")
	}

	today := truncateToDay(s.now())
	from := today.AddDate(0, 0, -1)

	// The reconciliation job is the point of the scheduled run: it must land
	// even when the whole fleet is unreachable, so manual corrections for the
	// range still get folded in on cadence. The device refresh below is a
	// best-effort extra on top.
	job, err := s.queue.CreateJob(ctx, dto.CreateJobRequest{
		Type: string(models.JobTypeProcedure),
		Payload: map[string]interface{}{
			"start_date": from.Format("2006-01-02"),
			"end_date":   today.Format("2006-01-02"),
			"procedures": []string{StageAttendance, StageWorkingHours},
		},
		Owner:    s.owner,
		Priority: models.PriorityDefault,
	})
	if err != nil {
		s.logger.Error("scheduled procedure job not created", zap.Error(err))
		return err
	}

	req := WaveRequest{
		From:  from,
		To:    today,
		Owner: s.owner,
	}
	if err := s.sync.Start(req); err != nil {
		if errors.Is(err, appErrors.ErrDeviceBusy) {
			s.logger.Warn("scheduled device refresh skipped: sync wave already in progress")
		} else {
			s.logger.Warn("scheduled device refresh did not start", zap.Error(err))
		}
	}

	s.logger.Info("scheduled run started",
		zap.String("job_id", job.ID),
		zap.String("from", req.From.Format("2006-01-02")),
		zap.String("to", req.To.Format("2006-01-02")))
	return nil
}
