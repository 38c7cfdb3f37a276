package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

// stubJobStore is an in-memory jobStore honouring the repository's state
// transition contracts.
type stubJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	seq  int
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{jobs: make(map[string]*models.Job)}
}

func (s *stubJobStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if job.ID == "" {
		job.ID = time.Now().Format("150405") + "-" + string(rune('a'+s.seq))
	}
	if job.State == "" {
		job.State = models.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *stubJobStore) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, len(out), nil
}

func (s *stubJobStore) DequeueNext(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Job
	for _, job := range s.jobs {
		if job.State != models.JobPending || job.Attempts >= job.MaxAttempts {
			continue
		}
		if best == nil || job.Priority < best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = models.JobRunning
	best.Attempts++
	now := time.Now()
	best.StartedAt = &now
	cp := *best
	return &cp, nil
}

func (s *stubJobStore) transition(id string, from, to models.JobState, mutate func(*models.Job)) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.State != from {
		return nil, appErrors.ErrJobState
	}
	job.State = to
	if mutate != nil {
		mutate(job)
	}
	cp := *job
	return &cp, nil
}

func (s *stubJobStore) Complete(ctx context.Context, id string, result models.JSONMap) (*models.Job, error) {
	return s.transition(id, models.JobRunning, models.JobCompleted, func(j *models.Job) { j.Result = result })
}

func (s *stubJobStore) Fail(ctx context.Context, id, errMsg string, result models.JSONMap) (*models.Job, error) {
	return s.transition(id, models.JobRunning, models.JobFailed, func(j *models.Job) {
		j.Error = &errMsg
		j.Result = result
	})
}

func (s *stubJobStore) Retry(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok && job.Attempts >= job.MaxAttempts {
		s.mu.Unlock()
		return nil, appErrors.ErrJobState
	}
	s.mu.Unlock()
	return s.transition(id, models.JobFailed, models.JobPending, func(j *models.Job) { j.Error = nil })
}

func (s *stubJobStore) Cancel(ctx context.Context, id string) (*models.Job, error) {
	return s.transition(id, models.JobPending, models.JobCancelled, nil)
}

func (s *stubJobStore) CountActive(ctx context.Context, jobType models.JobType, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Type != jobType {
			continue
		}
		if job.Owner == nil || *job.Owner != owner {
			continue
		}
		if job.State == models.JobPending || job.State == models.JobRunning {
			count++
		}
	}
	return count, nil
}

func (s *stubJobStore) Stats(ctx context.Context) (*models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.QueueStats{}
	for _, job := range s.jobs {
		switch job.State {
		case models.JobPending:
			stats.Pending++
		case models.JobRunning:
			stats.Running++
		case models.JobCompleted:
			stats.Completed++
		case models.JobFailed:
			stats.Failed++
		case models.JobCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (s *stubJobStore) ReclaimExpired(ctx context.Context, lease time.Duration) (int, int, error) {
	return 0, 0, nil
}

type stubNotificationStore struct {
	mu      sync.Mutex
	created []models.Notification
}

func (s *stubNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *n)
	return nil
}

func newTestQueue() (*QueueService, *stubJobStore, *stubNotificationStore) {
	store := newStubJobStore()
	notifications := &stubNotificationStore{}
	svc := NewQueueService(store, notifications, NewMetricsService(), nil, QueueServiceConfig{MaxAttempts: 3})
	return svc, store, notifications
}

func procedurePayload() map[string]interface{} {
	return map[string]interface{}{
		"start_date": "2024-03-07",
		"end_date":   "2024-03-08",
	}
}

func TestCreateJobValidation(t *testing.T) {
	svc, _, _ := newTestQueue()
	ctx := context.Background()

	if _, err := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "NOT_A_TYPE"}); !errors.Is(err, appErrors.ErrValidation) {
		t.Fatalf("unknown type must be rejected, got %v", err)
	}
	if _, err := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Priority: 11, Payload: procedurePayload()}); !errors.Is(err, appErrors.ErrValidation) {
		t.Fatalf("out-of-range priority must be rejected, got %v", err)
	}
	if _, err := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Payload: map[string]interface{}{"start_date": "2024-03-08"}}); !errors.Is(err, appErrors.ErrValidation) {
		t.Fatalf("missing end_date must be rejected, got %v", err)
	}

	job, err := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Payload: procedurePayload()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Priority != models.PriorityDefault {
		t.Fatalf("expected default priority, got %d", job.Priority)
	}
	if job.State != models.JobPending {
		t.Fatalf("expected PENDING, got %s", job.State)
	}
}

func TestDequeueOrdersByPriorityThenAge(t *testing.T) {
	svc, _, _ := newTestQueue()
	ctx := context.Background()

	low, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Priority: 9, Payload: procedurePayload()})
	urgent, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Priority: 1, Payload: procedurePayload()})

	first, err := svc.Dequeue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != urgent.ID {
		t.Fatalf("urgent job must be claimed first, got %s", first.ID)
	}

	second, _ := svc.Dequeue(ctx)
	if second.ID != low.ID {
		t.Fatalf("remaining job must be claimed next, got %s", second.ID)
	}

	idle, _ := svc.Dequeue(ctx)
	if idle != nil {
		t.Fatalf("idle queue must return nil, got %+v", idle)
	}
}

func TestCompleteNotifiesOwner(t *testing.T) {
	svc, _, notifications := newTestQueue()
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Owner: "ops", Payload: procedurePayload()})
	claimed, _ := svc.Dequeue(ctx)
	if claimed.ID != job.ID {
		t.Fatalf("expected to claim the created job")
	}

	if err := svc.Complete(ctx, job.ID, models.JSONMap{"ok": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifications.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifications.created))
	}
	if notifications.created[0].Kind != models.NotificationSuccess || notifications.created[0].Owner != "ops" {
		t.Fatalf("unexpected notification: %+v", notifications.created[0])
	}
}

func TestRetryExhaustionKeepsJobFailed(t *testing.T) {
	svc, store, _ := newTestQueue()
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Payload: procedurePayload()})

	// Burn through every attempt.
	for i := 0; i < 3; i++ {
		claimed, _ := svc.Dequeue(ctx)
		if claimed == nil {
			t.Fatalf("attempt %d: expected a claimable job", i+1)
		}
		if err := svc.Fail(ctx, claimed.ID, "boom", nil); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i+1, err)
		}
		if i < 2 {
			if _, err := svc.RetryJob(ctx, job.ID); err != nil {
				t.Fatalf("attempt %d: retry should succeed: %v", i+1, err)
			}
		}
	}

	if _, err := svc.RetryJob(ctx, job.ID); !errors.Is(err, appErrors.ErrJobState) {
		t.Fatalf("retry at max attempts must be refused, got %v", err)
	}
	final, _ := store.GetByID(ctx, job.ID)
	if final.State != models.JobFailed {
		t.Fatalf("exhausted job must stay FAILED, got %s", final.State)
	}
}

func TestCancelOnlyPendingJobs(t *testing.T) {
	svc, _, _ := newTestQueue()
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Payload: procedurePayload()})
	if _, err := svc.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("pending job must be cancellable: %v", err)
	}

	job2, _ := svc.CreateJob(ctx, dto.CreateJobRequest{Type: "PROCEDURE_PROCESSING", Payload: procedurePayload()})
	if _, err := svc.Dequeue(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CancelJob(ctx, job2.ID); !errors.Is(err, appErrors.ErrJobState) {
		t.Fatalf("running job must not be cancellable, got %v", err)
	}
}
