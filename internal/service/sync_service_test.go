package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adika-dev/presensi-core/internal/device"
	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/pkg/config"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

type fakeAdapter struct {
	name       string
	events     []models.RawEvent
	dropped    int
	connectErr error
	fetchErr   error
	block      chan struct{} // when set, FetchEvents waits for close or ctx
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) TestConnect(ctx context.Context) error { return a.connectErr }

func (a *fakeAdapter) StreamEvents(ctx context.Context, ch chan<- models.RawEvent) error {
	for _, ev := range a.events {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeAdapter) FetchEvents(ctx context.Context, from, to time.Time) (*device.FetchResult, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return &device.FetchResult{Events: a.events, Dropped: a.dropped}, nil
}

type stubAppender struct {
	mu         sync.Mutex
	inserted   int
	duplicates int
	appendErr  error
}

func (s *stubAppender) AppendEvents(ctx context.Context, events []models.RawEvent) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return 0, 0, s.appendErr
	}
	s.inserted += len(events)
	return len(events), s.duplicates, nil
}

type stubProcedureQueue struct {
	mu      sync.Mutex
	created []dto.CreateJobRequest
}

func (s *stubProcedureQueue) CreateJob(ctx context.Context, req dto.CreateJobRequest) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return &models.Job{ID: "job-1", Type: models.JobType(req.Type)}, nil
}

func (s *stubProcedureQueue) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func (s *stubProcedureQueue) first() dto.CreateJobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[0]
}

func waitForJob(t *testing.T, q *stubProcedureQueue) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for q.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("procedure job was never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func syncTestConfig() config.SyncConfig {
	return config.SyncConfig{
		BarrierTimeout: 2 * time.Second,
		SafetyDelay:    10 * time.Millisecond,
	}
}

func waitForIdle(t *testing.T, svc *SyncService) dto.SyncStatusResponse {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		snap := svc.Snapshot(context.Background())
		if !snap.Active && snap.Wave > 0 {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("wave never finished: %+v", snap)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func testWave() WaveRequest {
	return WaveRequest{
		From: dayAt(2024, 3, 7, 0, 0, 0),
		To:   dayAt(2024, 3, 8, 0, 0, 0),
	}
}

func TestSyncWaveCompletesAndCounts(t *testing.T) {
	events := []models.RawEvent{
		{PIN: "1", At: dayAt(2024, 3, 8, 8, 0, 0), Device: "104", Status: models.PunchIn},
		{PIN: "2", At: dayAt(2024, 3, 8, 8, 1, 0), Device: "104", Status: models.PunchIn},
	}
	adapters := []device.Adapter{
		&fakeAdapter{name: "104", events: events, dropped: 1},
		&fakeAdapter{name: "105"},
	}
	appender := &stubAppender{}
	queue := &stubProcedureQueue{}
	svc := NewSyncService(adapters, appender, queue, nil, NewMetricsService(), syncTestConfig(), nil)

	if err := svc.Start(testWave()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForIdle(t, svc)

	for _, st := range snap.Devices {
		if st.Status != models.DeviceCompleted {
			t.Fatalf("device %s should be COMPLETED, got %s", st.Name, st.Status)
		}
	}
	var lobby models.DeviceState
	for _, st := range snap.Devices {
		if st.Name == "104" {
			lobby = st
		}
	}
	if lobby.RecordsSynced != 2 || lobby.Dropped != 1 {
		t.Fatalf("unexpected lobby counters: %+v", lobby)
	}
	if appender.inserted != 2 {
		t.Fatalf("expected 2 stored events, got %d", appender.inserted)
	}
	if queue.count() != 0 {
		t.Fatal("no procedure job without execute_procedures")
	}
}

func TestSyncWaveEnqueuesProceduresAfterBarrier(t *testing.T) {
	adapters := []device.Adapter{
		&fakeAdapter{name: "104"},
		&fakeAdapter{name: "105", connectErr: errors.New("unreachable")},
	}
	queue := &stubProcedureQueue{}
	svc := NewSyncService(adapters, &stubAppender{}, queue, nil, NewMetricsService(), syncTestConfig(), nil)

	req := testWave()
	req.ExecuteProcedures = true
	if err := svc.Start(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForIdle(t, svc)

	// One device completed, so the follow-up job still runs.
	waitForJob(t, queue)
	created := queue.first()
	if created.Type != string(models.JobTypeProcedure) {
		t.Fatalf("unexpected job type %s", created.Type)
	}
	if created.Payload["start_date"] != "2024-03-07" || created.Payload["end_date"] != "2024-03-08" {
		t.Fatalf("unexpected payload: %+v", created.Payload)
	}
}

func TestSyncWaveSkipsProceduresWhenNothingCompleted(t *testing.T) {
	adapters := []device.Adapter{
		&fakeAdapter{name: "104", connectErr: errors.New("unreachable")},
	}
	queue := &stubProcedureQueue{}
	svc := NewSyncService(adapters, &stubAppender{}, queue, nil, NewMetricsService(), syncTestConfig(), nil)

	req := testWave()
	req.ExecuteProcedures = true
	if err := svc.Start(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForIdle(t, svc)

	time.Sleep(20 * time.Millisecond)
	if queue.count() != 0 {
		t.Fatal("no procedure job when every device failed")
	}
	if snap.Devices[0].Status != models.DeviceFailed {
		t.Fatalf("expected FAILED, got %s", snap.Devices[0].Status)
	}
}

func TestSyncRejectsConcurrentWaves(t *testing.T) {
	block := make(chan struct{})
	adapters := []device.Adapter{&fakeAdapter{name: "104", block: block}}
	svc := NewSyncService(adapters, &stubAppender{}, &stubProcedureQueue{}, nil, NewMetricsService(), syncTestConfig(), nil)

	if err := svc.Start(testWave()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Start(testWave()); !errors.Is(err, appErrors.ErrDeviceBusy) {
		t.Fatalf("second wave must be rejected, got %v", err)
	}
	close(block)
	waitForIdle(t, svc)
}

func TestSyncBarrierTimeoutMarksStragglers(t *testing.T) {
	block := make(chan struct{})
	adapters := []device.Adapter{
		&fakeAdapter{name: "104"},
		&fakeAdapter{name: "hung", block: block},
	}
	cfg := syncTestConfig()
	cfg.BarrierTimeout = 50 * time.Millisecond
	svc := NewSyncService(adapters, &stubAppender{}, &stubProcedureQueue{}, nil, NewMetricsService(), cfg, nil)

	if err := svc.Start(testWave()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForIdle(t, svc)

	byName := make(map[string]models.DeviceStatus)
	for _, st := range snap.Devices {
		byName[st.Name] = st.Status
	}
	if byName["104"] != models.DeviceCompleted {
		t.Fatalf("fast device should complete, got %s", byName["104"])
	}
	if byName["hung"] != models.DeviceTimeout {
		t.Fatalf("straggler should be marked TIMEOUT, got %s", byName["hung"])
	}

	// The straggler's late send must not wedge the orchestrator: once it
	// unblocks, a fresh wave still runs to completion.
	close(block)
	time.Sleep(20 * time.Millisecond)
	if err := svc.Start(testWave()); err != nil {
		t.Fatalf("wave after timeout rejected: %v", err)
	}
	waitForIdle(t, svc)
}

func TestSyncCancelMarksDevicesCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	adapters := []device.Adapter{&fakeAdapter{name: "104", block: block}}
	svc := NewSyncService(adapters, &stubAppender{}, &stubProcedureQueue{}, nil, NewMetricsService(), syncTestConfig(), nil)

	if err := svc.Start(testWave()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.Cancel() {
		t.Fatal("cancel should report an active wave")
	}
	snap := waitForIdle(t, svc)
	if snap.Devices[0].Status != models.DeviceCancelled {
		t.Fatalf("expected CANCELLED, got %s", snap.Devices[0].Status)
	}
}

func TestSyncUnknownDeviceRejected(t *testing.T) {
	svc := NewSyncService([]device.Adapter{&fakeAdapter{name: "104"}}, &stubAppender{}, &stubProcedureQueue{}, nil, NewMetricsService(), syncTestConfig(), nil)

	req := testWave()
	req.Devices = []string{"nope"}
	if err := svc.Start(req); !errors.Is(err, appErrors.ErrUnknownDevice) {
		t.Fatalf("unknown device must be rejected, got %v", err)
	}
}
