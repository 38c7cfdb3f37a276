package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adika-dev/presensi-core/internal/service"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
	"github.com/adika-dev/presensi-core/pkg/response"
)

// SchedulerHandler exposes the periodic run controls.
type SchedulerHandler struct {
	scheduler *service.SchedulerService
}

// NewSchedulerHandler constructs the handler.
func NewSchedulerHandler(scheduler *service.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// Run godoc
// @Summary Trigger a scheduled run now
// @Tags Scheduler
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /scheduler/run [post]
func (h *SchedulerHandler) Run(c *gin.Context) {
	if err := h.scheduler.ForceExecute(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "started"}, nil)
}

type updateIntervalRequest struct {
	Interval string `json:"interval" binding:"required"`
}

// SetInterval godoc
// @Summary Change the scheduler cadence
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body updateIntervalRequest true "Interval, Go duration syntax"
// @Success 200 {object} response.Envelope
// @Router /scheduler/interval [put]
func (h *SchedulerHandler) SetInterval(c *gin.Context) {
	var req updateIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid interval payload"))
		return
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "interval must use Go duration syntax, e.g. 6h"))
		return
	}
	if err := h.scheduler.SetInterval(interval); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"interval": interval.String()}, nil)
}
