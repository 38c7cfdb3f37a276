package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adika-dev/presensi-core/internal/device"
	"github.com/adika-dev/presensi-core/internal/service"
	"github.com/adika-dev/presensi-core/pkg/config"
)

func newIdleSyncHandler() *SyncHandler {
	syncSvc := service.NewSyncService(
		[]device.Adapter{},
		nil,
		nil,
		nil,
		service.NewMetricsService(),
		config.SyncConfig{BarrierTimeout: time.Second, SafetyDelay: time.Millisecond},
		nil,
	)
	return NewSyncHandler(syncSvc, nil)
}

func postJSON(t *testing.T, h gin.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)
	return recorder
}

func TestSyncHandlerRejectsBadDates(t *testing.T) {
	h := newIdleSyncHandler()

	recorder := postJSON(t, h.Start, "/sync", `{"start_date":"07-03-2024","end_date":"2024-03-08"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestSyncHandlerRejectsInvertedRange(t *testing.T) {
	h := newIdleSyncHandler()

	recorder := postJSON(t, h.Start, "/sync", `{"start_date":"2024-03-08","end_date":"2024-03-07"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestSyncHandlerCancelWhenIdle(t *testing.T) {
	h := newIdleSyncHandler()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/sync/cancel", nil)

	h.Cancel(c)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestSyncHandlerStatus(t *testing.T) {
	h := newIdleSyncHandler()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/sync/status", nil)

	h.Status(c)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
