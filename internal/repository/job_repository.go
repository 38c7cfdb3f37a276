package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

const jobColumns = `id, type, payload_json, state, priority, attempts, max_attempts, created_at, started_at, completed_at, error, result_json, owner`

// JobRepository persists the durable job queue. Every RUNNING row in the
// system is created by DequeueNext and nowhere else.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a PENDING job row with generated defaults.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.State == "" {
		job.State = models.JobPending
	}
	if job.Priority == 0 {
		job.Priority = models.PriorityDefault
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO job_queue (` + jobColumns + `)
VALUES (:id, :type, :payload_json, :state, :priority, :attempts, :max_attempts, :created_at, :started_at, :completed_at, :error, :result_json, :owner)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue WHERE id = $1`
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching the filter with pagination.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Owner != "" {
		where = append(where, fmt.Sprintf("owner = $%d", len(args)+1))
		args = append(args, filter.Owner)
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.State != "" {
		where = append(where, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	whereClause := strings.Join(where, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE %s ORDER BY created_at %s LIMIT %d OFFSET %d`,
		jobColumns, whereClause, order, size, offset)

	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM job_queue WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

// DequeueNext claims at most one runnable job. The inner SELECT uses
// FOR UPDATE SKIP LOCKED so concurrent callers never receive the same row;
// the UPDATE transitions to RUNNING, stamps started_at and increments
// attempts in the same statement. Returns (nil, nil) when the queue is idle.
func (r *JobRepository) DequeueNext(ctx context.Context) (*models.Job, error) {
	query := `UPDATE job_queue SET state = 'RUNNING', started_at = NOW(), attempts = attempts + 1
WHERE id = (
    SELECT id FROM job_queue
    WHERE state = 'PENDING' AND attempts < max_attempts
    ORDER BY priority ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return &job, nil
}

// Complete transitions RUNNING -> COMPLETED and stores the handler result.
func (r *JobRepository) Complete(ctx context.Context, id string, result models.JSONMap) (*models.Job, error) {
	query := `UPDATE job_queue SET state = 'COMPLETED', completed_at = NOW(), result_json = $2
WHERE id = $1 AND state = 'RUNNING'
RETURNING ` + jobColumns
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id, result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrJobState
		}
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return &job, nil
}

// Fail transitions RUNNING -> FAILED. Partial results survive the failure so
// a half-successful procedure run keeps its stage messages.
func (r *JobRepository) Fail(ctx context.Context, id, errMsg string, result models.JSONMap) (*models.Job, error) {
	query := `UPDATE job_queue SET state = 'FAILED', completed_at = NOW(), error = $2, result_json = $3
WHERE id = $1 AND state = 'RUNNING'
RETURNING ` + jobColumns
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id, errMsg, result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrJobState
		}
		return nil, fmt.Errorf("fail job: %w", err)
	}
	return &job, nil
}

// Retry transitions FAILED -> PENDING while attempts remain, clearing the
// recorded error. A job at max_attempts stays FAILED.
func (r *JobRepository) Retry(ctx context.Context, id string) (*models.Job, error) {
	query := `UPDATE job_queue SET state = 'PENDING', error = NULL, started_at = NULL, completed_at = NULL
WHERE id = $1 AND state = 'FAILED' AND attempts < max_attempts
RETURNING ` + jobColumns
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrJobState
		}
		return nil, fmt.Errorf("retry job: %w", err)
	}
	return &job, nil
}

// Cancel transitions PENDING -> CANCELLED. RUNNING jobs are never killed.
func (r *JobRepository) Cancel(ctx context.Context, id string) (*models.Job, error) {
	query := `UPDATE job_queue SET state = 'CANCELLED', completed_at = NOW()
WHERE id = $1 AND state = 'PENDING'
RETURNING ` + jobColumns
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrJobState
		}
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return &job, nil
}

// CountActive returns PENDING + RUNNING jobs of the type for the owner.
// The scheduler's overlap guard asks the queue, not a local flag, so the
// guard survives restarts.
func (r *JobRepository) CountActive(ctx context.Context, jobType models.JobType, owner string) (int, error) {
	const query = `SELECT COUNT(*) FROM job_queue
WHERE type = $1 AND owner = $2 AND state IN ('PENDING', 'RUNNING')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, jobType, owner); err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// Stats summarises queue depth per state.
func (r *JobRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	const query = `SELECT
    COUNT(*) FILTER (WHERE state = 'PENDING') AS pending,
    COUNT(*) FILTER (WHERE state = 'RUNNING') AS running,
    COUNT(*) FILTER (WHERE state = 'COMPLETED') AS completed,
    COUNT(*) FILTER (WHERE state = 'FAILED') AS failed,
    COUNT(*) FILTER (WHERE state = 'CANCELLED') AS cancelled
FROM job_queue`
	var stats models.QueueStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

// ReclaimExpired recovers RUNNING rows whose lease ran out, typically after a
// worker crash. Rows with attempts remaining become PENDING again; exhausted
// rows move to FAILED with a lease-expired error.
func (r *JobRepository) ReclaimExpired(ctx context.Context, lease time.Duration) (requeued, failed int, err error) {
	cutoff := time.Now().UTC().Add(-lease)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin reclaim: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	requeueQuery := `UPDATE job_queue SET state = 'PENDING', started_at = NULL
WHERE state = 'RUNNING' AND started_at < $1 AND attempts < max_attempts`
	res, err := tx.ExecContext(ctx, requeueQuery, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		requeued = int(n)
	}

	failQuery := `UPDATE job_queue SET state = 'FAILED', completed_at = NOW(), error = 'lease expired'
WHERE state = 'RUNNING' AND started_at < $1 AND attempts >= max_attempts`
	res, err = tx.ExecContext(ctx, failQuery, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("fail expired jobs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		failed = int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit reclaim: %w", err)
	}
	commit = true
	return requeued, failed, nil
}
