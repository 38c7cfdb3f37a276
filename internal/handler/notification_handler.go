package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adika-dev/presensi-core/internal/service"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
	"github.com/adika-dev/presensi-core/pkg/response"
)

// NotificationHandler exposes the per-owner job outcome feed.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List an owner's notifications
// @Tags Notifications
// @Produce json
// @Param owner query string true "Owner"
// @Param unread query bool false "Unread only"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "owner required"))
		return
	}
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.notifications.List(c.Request.Context(), owner, unread, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// MarkRead godoc
// @Summary Mark one notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Param owner query string true "Owner"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "owner required"))
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), owner); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
