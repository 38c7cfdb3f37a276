package service

import (
	"context"

	"github.com/adika-dev/presensi-core/internal/models"
)

type notificationReader interface {
	ListByOwner(ctx context.Context, owner string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, owner string) error
}

// NotificationService serves the per-owner job outcome feed.
type NotificationService struct {
	store notificationReader
}

// NewNotificationService constructs the service.
func NewNotificationService(store notificationReader) *NotificationService {
	return &NotificationService{store: store}
}

// List returns an owner's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, owner string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByOwner(ctx, owner, unreadOnly, limit)
}

// MarkRead marks one notification read; the owner scoping prevents reading
// across accounts.
func (s *NotificationService) MarkRead(ctx context.Context, id, owner string) error {
	return s.store.MarkRead(ctx, id, owner)
}
