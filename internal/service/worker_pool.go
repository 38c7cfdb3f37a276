package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
)

// JobHandler executes one claimed job. The returned map is persisted as the
// job's result; it is stored even when err is non-nil so partial stage
// outcomes survive a failure.
type JobHandler func(ctx context.Context, job models.Job) (models.JSONMap, error)

// WorkerPool runs a fixed number of workers over the persistent queue. Every
// handler error is captured into the job row; nothing escapes a worker, so no
// RUNNING row is ever dropped on the floor.
type WorkerPool struct {
	queue        *QueueService
	logger       *zap.Logger
	workers      int
	pollInterval time.Duration

	mu       sync.Mutex
	handlers map[models.JobType]JobHandler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool constructs a stopped pool.
func NewWorkerPool(queue *QueueService, logger *zap.Logger, workers int, pollInterval time.Duration) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &WorkerPool{
		queue:        queue,
		logger:       logger,
		workers:      workers,
		pollInterval: pollInterval,
		handlers:     make(map[models.JobType]JobHandler),
	}
}

// Register binds a handler to a job type. Later registrations win; handlers
// must be registered before Start.
func (p *WorkerPool) Register(jobType models.JobType, handler JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

// Start launches the workers. Safe to call once.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
	p.started = true
	p.logger.Sugar().Infow("worker pool started", "workers", p.workers)
}

// Stop cancels workers and waits for in-flight handlers to come back.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Infow("worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.Sugar().With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			log.Errorw("dequeue failed", "error", err)
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		log.Infow("job claimed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)
		result, handlerErr := p.run(ctx, *job)

		if handlerErr != nil {
			log.Warnw("job failed", "job_id", job.ID, "error", handlerErr)
			if err := p.queue.Fail(ctx, job.ID, handlerErr.Error(), result); err != nil {
				log.Errorw("fail transition lost", "job_id", job.ID, "error", err)
			}
			continue
		}
		if err := p.queue.Complete(ctx, job.ID, result); err != nil {
			log.Errorw("complete transition lost", "job_id", job.ID, "error", err)
			continue
		}
		log.Infow("job completed", "job_id", job.ID)
	}
}

// run invokes the handler with panic isolation.
func (p *WorkerPool) run(ctx context.Context, job models.Job) (result models.JSONMap, err error) {
	p.mu.Lock()
	handler, ok := p.handlers[job.Type]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (p *WorkerPool) sleep(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
