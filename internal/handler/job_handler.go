package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/internal/service"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
	"github.com/adika-dev/presensi-core/pkg/response"
)

// JobHandler exposes the background job queue.
type JobHandler struct {
	queue *service.QueueService
}

// NewJobHandler constructs the handler.
func NewJobHandler(queue *service.QueueService) *JobHandler {
	return &JobHandler{queue: queue}
}

// Create godoc
// @Summary Enqueue a background job
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.CreateJobRequest true "Job payload"
// @Success 201 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	job, err := h.queue.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// List godoc
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param owner query string false "Owner filter"
// @Param type query string false "Job type filter"
// @Param state query string false "State filter"
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	var q dto.ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job query"))
		return
	}
	jobs, pagination, err := h.queue.ListJobs(c.Request.Context(), models.JobFilter{
		Owner:     q.Owner,
		Type:      models.JobType(q.Type),
		State:     models.JobState(q.State),
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortOrder: q.SortOrder,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, pagination)
}

// Get godoc
// @Summary Fetch one job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.queue.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Retry godoc
// @Summary Retry a failed job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/retry [post]
func (h *JobHandler) Retry(c *gin.Context) {
	job, err := h.queue.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RetryJobResponse{ID: job.ID, State: string(job.State), Attempts: job.Attempts}, nil)
}

// Cancel godoc
// @Summary Cancel a pending job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	job, err := h.queue.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Stats godoc
// @Summary Queue depth per state
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/stats [get]
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
