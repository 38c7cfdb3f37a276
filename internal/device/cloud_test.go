package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

func cloudConfig(endpoint string) models.DeviceConfig {
	return models.DeviceConfig{
		Name:     "cloud-1",
		Family:   models.FamilyPullHTTP,
		Endpoint: endpoint,
		APIKey:   "secret",
		CloudID:  "C100",
		PunchMap: models.PunchMap{
			Codes: map[string]models.PunchStatus{
				"0": models.PunchIn,
				"1": models.PunchOut,
			},
		},
	}
}

func TestCloudFetchChunksWideRanges(t *testing.T) {
	var mu sync.Mutex
	var requests []cloudRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		json.NewEncoder(w).Encode(cloudResponse{Success: true})
	}))
	defer server.Close()

	adapter := newCloudAdapter(cloudConfig(server.URL), NewClient(5*time.Second, 1, nil), zap.NewNop())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 5)
	result, err := adapter.FetchEvents(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 0 || result.Dropped != 0 {
		t.Fatalf("empty upstream should yield empty result, got %+v", result)
	}

	// Five days against a two-day upstream limit means three requests.
	if len(requests) != 3 {
		t.Fatalf("expected 3 chunked requests, got %d", len(requests))
	}
	if requests[0].StartDate != "2024-03-01" || requests[0].EndDate != "2024-03-03" {
		t.Fatalf("unexpected first chunk: %+v", requests[0])
	}
	if requests[2].StartDate != "2024-03-05" || requests[2].EndDate != "2024-03-06" {
		t.Fatalf("unexpected last chunk: %+v", requests[2])
	}
	for i, req := range requests {
		if req.CloudID != "C100" || req.APIKey != "secret" || req.TransID == "" {
			t.Fatalf("request %d missing credentials: %+v", i, req)
		}
	}
}

func TestCloudFetchDecodesAndDrops(t *testing.T) {
	fpid := 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cloudResponse{
			Success: true,
			Data: []cloudRecord{
				{PIN: "1001", Timestamp: "2024-03-01 07:58:30", PunchCode: "0", FPID: &fpid},
				{PIN: "1002", Timestamp: "2024-03-01 17:02:11", PunchCode: "1"},
				{PIN: "1003", Timestamp: "2024-03-01 12:00:00", PunchCode: "9"}, // unmapped, no fallback
				{PIN: "1004", Timestamp: "not a time", PunchCode: "0"},
			},
		})
	}))
	defer server.Close()

	adapter := newCloudAdapter(cloudConfig(server.URL), NewClient(5*time.Second, 1, nil), zap.NewNop())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	result, err := adapter.FetchEvents(context.Background(), from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 decoded events, got %d", len(result.Events))
	}
	if result.Dropped != 2 {
		t.Fatalf("expected 2 dropped records, got %d", result.Dropped)
	}

	first := result.Events[0]
	if first.PIN != "1001" || first.Status != models.PunchIn || first.Device != "cloud-1" {
		t.Fatalf("unexpected event: %+v", first)
	}
	if first.FPID == nil || *first.FPID != 3 {
		t.Fatal("fpid should survive decoding")
	}
	want := time.Date(2024, 3, 1, 7, 58, 30, 0, time.Local)
	if !first.At.Equal(want) {
		t.Fatalf("timestamp decoded as %s, want %s", first.At, want)
	}
}

func TestCloudFetchRejectedByUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cloudResponse{Success: false, Message: "invalid api key"})
	}))
	defer server.Close()

	adapter := newCloudAdapter(cloudConfig(server.URL), NewClient(5*time.Second, 1, nil), zap.NewNop())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	if _, err := adapter.FetchEvents(context.Background(), from, from.AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected error when upstream rejects the request")
	}
}

func TestPollOnlyFamiliesRejectStreaming(t *testing.T) {
	cloud := newCloudAdapter(cloudConfig("http://unused"), NewClient(time.Second, 1, nil), zap.NewNop())
	if err := cloud.StreamEvents(context.Background(), nil); !errors.Is(err, appErrors.ErrStreamUnsupported) {
		t.Fatalf("cloud adapter must refuse streaming, got %v", err)
	}

	web := newWebformAdapter(cloudConfig("http://unused"), NewClient(time.Second, 1, nil), zap.NewNop())
	if err := web.StreamEvents(context.Background(), nil); !errors.Is(err, appErrors.ErrStreamUnsupported) {
		t.Fatalf("webform adapter must refuse streaming, got %v", err)
	}
}

func TestCloudTestConnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cloudResponse{Success: true})
	}))
	defer server.Close()

	adapter := newCloudAdapter(cloudConfig(server.URL), NewClient(5*time.Second, 1, nil), zap.NewNop())
	if err := adapter.TestConnect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
