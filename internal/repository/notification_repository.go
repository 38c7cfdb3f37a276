package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adika-dev/presensi-core/internal/models"
)

// NotificationRepository persists job outcome notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row with generated defaults.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, job_id, owner, kind, title, body, read, created_at)
VALUES (:id, :job_id, :owner, :kind, :title, :body, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's notifications, newest first.
func (r *NotificationRepository) ListByOwner(ctx context.Context, owner string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	where := []string{"owner = $1"}
	args := []interface{}{owner}
	if unreadOnly {
		where = append(where, "read = FALSE")
	}
	query := fmt.Sprintf(`SELECT id, job_id, owner, kind, title, body, read, created_at
FROM notifications
WHERE %s
ORDER BY created_at DESC
LIMIT %d`, strings.Join(where, " AND "), limit)

	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}

// MarkRead flips a single notification to read for its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, owner string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND owner = $2`
	res, err := r.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s not found for owner %s", id, owner)
	}
	return nil
}
