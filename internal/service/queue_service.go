package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

type jobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error)
	DequeueNext(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, id string, result models.JSONMap) (*models.Job, error)
	Fail(ctx context.Context, id, errMsg string, result models.JSONMap) (*models.Job, error)
	Retry(ctx context.Context, id string) (*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	CountActive(ctx context.Context, jobType models.JobType, owner string) (int, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
	ReclaimExpired(ctx context.Context, lease time.Duration) (requeued, failed int, err error)
}

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// QueueService fronts the durable job queue: creation-time validation,
// terminal-transition notifications and crash recovery live here, on top of
// the repository's atomic state transitions.
type QueueService struct {
	jobs            jobStore
	notifications   notificationStore
	metrics         *MetricsService
	logger          *zap.Logger
	maxAttempts     int
	lease           time.Duration
	reclaimInterval time.Duration
}

// QueueServiceConfig tunes attempt bounds and lease recovery.
type QueueServiceConfig struct {
	MaxAttempts     int
	Lease           time.Duration
	ReclaimInterval time.Duration
}

// NewQueueService constructs the service.
func NewQueueService(jobs jobStore, notifications notificationStore, metrics *MetricsService, logger *zap.Logger, cfg QueueServiceConfig) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Minute
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = time.Minute
	}
	return &QueueService{
		jobs:            jobs,
		notifications:   notifications,
		metrics:         metrics,
		logger:          logger,
		maxAttempts:     cfg.MaxAttempts,
		lease:           cfg.Lease,
		reclaimInterval: cfg.ReclaimInterval,
	}
}

// CreateJob validates and enqueues a new PENDING job. Validation failures
// never reach the queue table.
func (s *QueueService) CreateJob(ctx context.Context, req dto.CreateJobRequest) (*models.Job, error) {
	jobType := models.JobType(req.Type)
	if !jobType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown job type %q", req.Type))
	}
	priority := req.Priority
	if priority == 0 {
		priority = models.PriorityDefault
	}
	if priority < models.PriorityHighest || priority > models.PriorityLowest {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("priority %d out of range [%d, %d]", priority, models.PriorityHighest, models.PriorityLowest))
	}

	if jobType == models.JobTypeProcedure {
		if _, err := ParseProcedurePayload(req.Payload); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}

	job := &models.Job{
		Type:        jobType,
		Payload:     models.JSONMap(req.Payload),
		State:       models.JobPending,
		Priority:    priority,
		MaxAttempts: s.maxAttempts,
	}
	if req.Owner != "" {
		owner := req.Owner
		job.Owner = &owner
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("job created", "job_id", job.ID, "type", job.Type, "priority", job.Priority)
	return job, nil
}

// GetJob returns one job by id.
func (s *QueueService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns jobs for the filter plus pagination metadata.
func (s *QueueService) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, *models.Pagination, error) {
	jobs, total, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return jobs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Dequeue claims the next runnable job, or nil when the queue is idle.
func (s *QueueService) Dequeue(ctx context.Context) (*models.Job, error) {
	return s.jobs.DequeueNext(ctx)
}

// Complete finishes a RUNNING job and notifies its owner.
func (s *QueueService) Complete(ctx context.Context, id string, result models.JSONMap) error {
	job, err := s.jobs.Complete(ctx, id, result)
	if err != nil {
		return err
	}
	s.metrics.ObserveJob(string(job.Type), string(job.State))
	s.notify(ctx, job, models.NotificationSuccess, fmt.Sprintf("%s finished", job.Type), "job completed successfully")
	return nil
}

// Fail records a RUNNING job's failure, keeping any partial result, and
// notifies its owner.
func (s *QueueService) Fail(ctx context.Context, id, errMsg string, result models.JSONMap) error {
	job, err := s.jobs.Fail(ctx, id, errMsg, result)
	if err != nil {
		return err
	}
	s.metrics.ObserveJob(string(job.Type), string(job.State))
	s.notify(ctx, job, models.NotificationFailure, fmt.Sprintf("%s failed", job.Type), errMsg)
	return nil
}

// RetryJob requeues a FAILED job while attempts remain.
func (s *QueueService) RetryJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobs.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("job requeued", "job_id", job.ID, "attempts", job.Attempts)
	return job, nil
}

// CancelJob cancels a PENDING job. RUNNING handlers are never killed.
func (s *QueueService) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveJob(string(job.Type), string(job.State))
	return job, nil
}

// CountActive reports PENDING + RUNNING jobs of the type for the owner.
func (s *QueueService) CountActive(ctx context.Context, jobType models.JobType, owner string) (int, error) {
	return s.jobs.CountActive(ctx, jobType, owner)
}

// Stats summarises queue depth per state and refreshes the depth gauges.
func (s *QueueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetQueueDepth("pending", stats.Pending)
	s.metrics.SetQueueDepth("running", stats.Running)
	s.metrics.SetQueueDepth("failed", stats.Failed)
	return stats, nil
}

// StartReclaimer runs the lease-expiry sweep until the context ends. A
// RUNNING row whose started_at exceeds the lease belongs to a dead worker.
func (s *QueueService) StartReclaimer(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				requeued, failed, err := s.jobs.ReclaimExpired(ctx, s.lease)
				if err != nil {
					s.logger.Sugar().Errorw("lease reclaim failed", "error", err)
					continue
				}
				if requeued > 0 || failed > 0 {
					s.logger.Sugar().Warnw("reclaimed expired jobs", "requeued", requeued, "failed", failed)
				}
			}
		}
	}()
}

func (s *QueueService) notify(ctx context.Context, job *models.Job, kind models.NotificationKind, title, body string) {
	if job.Owner == nil || *job.Owner == "" {
		return
	}
	n := &models.Notification{
		JobID: job.ID,
		Owner: *job.Owner,
		Kind:  kind,
		Title: title,
		Body:  body,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Sugar().Errorw("notification write failed", "job_id", job.ID, "error", err)
	}
}
