package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/service"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
	"github.com/adika-dev/presensi-core/pkg/response"
)

// SyncHandler exposes the device sync orchestrator and the manual correction
// intake.
type SyncHandler struct {
	sync   *service.SyncService
	events *service.EventService
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(syncSvc *service.SyncService, events *service.EventService) *SyncHandler {
	return &SyncHandler{sync: syncSvc, events: events}
}

func parseWaveRequest(c *gin.Context) (*service.WaveRequest, error) {
	var req dto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sync payload")
	}
	from, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as 2006-01-02")
	}
	to, err := time.ParseInLocation("2006-01-02", req.EndDate, time.Local)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as 2006-01-02")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date precedes start_date")
	}
	return &service.WaveRequest{
		From:              from,
		To:                to,
		PINs:              req.Pins,
		ExecuteProcedures: req.ExecuteProcedures,
		Owner:             c.Query("owner"),
	}, nil
}

// Start godoc
// @Summary Start a sync wave over the whole fleet
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.SyncRequest true "Sync range"
// @Success 202 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Start(c *gin.Context) {
	req, err := parseWaveRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.sync.Start(*req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "started"}, nil)
}

// StartDevice godoc
// @Summary Start a sync wave for one device
// @Tags Sync
// @Accept json
// @Produce json
// @Param name path string true "Device name"
// @Param payload body dto.SyncRequest true "Sync range"
// @Success 202 {object} response.Envelope
// @Router /sync/devices/{name} [post]
func (h *SyncHandler) StartDevice(c *gin.Context) {
	req, err := parseWaveRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Devices = []string{c.Param("name")}
	if err := h.sync.Start(*req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "started", "device": c.Param("name")}, nil)
}

// Status godoc
// @Summary Current wave status per device
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.sync.Snapshot(c.Request.Context()), nil)
}

// Cancel godoc
// @Summary Cancel the running wave
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/cancel [post]
func (h *SyncHandler) Cancel(c *gin.Context) {
	if !h.sync.Cancel() {
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, "no sync wave is running"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "cancelling"}, nil)
}

// AppendCorrections godoc
// @Summary Upload manual punch corrections
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.AppendCorrectionsRequest true "Correction batch"
// @Success 200 {object} response.Envelope
// @Router /corrections [post]
func (h *SyncHandler) AppendCorrections(c *gin.Context) {
	var req dto.AppendCorrectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid correction payload"))
		return
	}
	result, err := h.events.AppendCorrections(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
