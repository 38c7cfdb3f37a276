package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/device"
	"github.com/adika-dev/presensi-core/internal/dto"
	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/pkg/config"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

const syncSnapshotKey = "sync:snapshot"

type eventAppender interface {
	AppendEvents(ctx context.Context, events []models.RawEvent) (inserted, duplicates int, err error)
}

// SnapshotCache persists the latest wave snapshot across restarts.
type SnapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type procedureQueue interface {
	CreateJob(ctx context.Context, req dto.CreateJobRequest) (*models.Job, error)
}

// WaveRequest describes one sync wave over the fleet. From and To are a
// closed date range; devices are polled through the end of To's day.
type WaveRequest struct {
	From              time.Time
	To                time.Time
	Devices           []string // empty means the whole fleet
	PINs              []string
	ExecuteProcedures bool
	Owner             string
}

// SyncService fans a sync wave out to every device adapter, one goroutine per
// device, and holds the wave behind a barrier: the follow-up processing job is
// enqueued only after every device has reached a terminal status and a short
// settling delay has passed, never while a device is still writing.
type SyncService struct {
	adapters []device.Adapter
	events   eventAppender
	queue    procedureQueue
	cache    SnapshotCache
	metrics  *MetricsService
	cfg      config.SyncConfig
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	wave   int
	active bool
	cancel context.CancelFunc
	states map[string]*models.DeviceState
}

// NewSyncService constructs the orchestrator. cache may be nil when redis is
// not configured; snapshots then live in memory only.
func NewSyncService(adapters []device.Adapter, events eventAppender, queue procedureQueue, cache SnapshotCache, metrics *MetricsService, cfg config.SyncConfig, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make(map[string]*models.DeviceState, len(adapters))
	for _, a := range adapters {
		states[a.Name()] = &models.DeviceState{Name: a.Name(), Status: models.DeviceIdle}
	}
	return &SyncService{
		adapters: adapters,
		events:   events,
		queue:    queue,
		cache:    cache,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		states:   states,
	}
}

// Start launches a wave. Exactly one wave runs at a time; a second request
// while one is active is rejected rather than queued.
func (s *SyncService) Start(req WaveRequest) error {
	targets, err := s.selectAdapters(req.Devices)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return appErrors.ErrDeviceBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.active = true
	s.wave++
	wave := s.wave
	s.cancel = cancel
	now := s.now()
	for _, a := range targets {
		s.states[a.Name()] = &models.DeviceState{Name: a.Name(), Status: models.DeviceConnecting, StartedAt: &now}
	}
	s.mu.Unlock()

	s.logger.Info("sync wave started",
		zap.Int("wave", wave),
		zap.Int("devices", len(targets)),
		zap.String("from", req.From.Format("2006-01-02")),
		zap.String("to", req.To.Format("2006-01-02")))

	go s.runWave(ctx, wave, targets, req)
	return nil
}

// fetchBounds converts the closed date range into adapter poll bounds.
func fetchBounds(req WaveRequest) (time.Time, time.Time) {
	from := time.Date(req.From.Year(), req.From.Month(), req.From.Day(), 0, 0, 0, 0, time.Local)
	to := time.Date(req.To.Year(), req.To.Month(), req.To.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
	return from, to
}

// Cancel aborts the running wave; devices still in flight finish as CANCELLED.
func (s *SyncService) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Snapshot reports the wave counter, whether a wave is active, and the
// per-device states sorted by name.
func (s *SyncService) Snapshot(ctx context.Context) dto.SyncStatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active && s.wave == 0 && s.cache != nil {
		// Fresh process: surface the last persisted wave if one exists.
		var cached dto.SyncStatusResponse
		if err := s.cache.Get(ctx, syncSnapshotKey, &cached); err == nil {
			return cached
		}
	}

	resp := dto.SyncStatusResponse{Wave: s.wave, Active: s.active}
	for _, a := range s.adapters {
		if st, ok := s.states[a.Name()]; ok {
			resp.Devices = append(resp.Devices, *st)
		}
	}
	return resp
}

func (s *SyncService) selectAdapters(names []string) ([]device.Adapter, error) {
	if len(names) == 0 {
		if len(s.adapters) == 0 {
			return nil, appErrors.Clone(appErrors.ErrUnknownDevice, "no devices configured")
		}
		return s.adapters, nil
	}
	byName := make(map[string]device.Adapter, len(s.adapters))
	for _, a := range s.adapters {
		byName[a.Name()] = a
	}
	targets := make([]device.Adapter, 0, len(names))
	for _, name := range names {
		a, ok := byName[name]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownDevice, fmt.Sprintf("unknown device %q", name))
		}
		targets = append(targets, a)
	}
	return targets, nil
}

func (s *SyncService) runWave(ctx context.Context, wave int, targets []device.Adapter, req WaveRequest) {
	done := make(chan string, len(targets))
	fetchFrom, fetchTo := fetchBounds(req)
	for _, a := range targets {
		go func(a device.Adapter) {
			defer func() { done <- a.Name() }()
			s.syncDevice(ctx, a, fetchFrom, fetchTo)
		}(a)
	}

	// Barrier: every device terminal, or the wave cap expires. On expiry the
	// stragglers are cancelled and recorded as TIMEOUT.
	deadline := time.NewTimer(s.cfg.BarrierTimeout)
	defer deadline.Stop()
	remaining := len(targets)
	timedOut := false
	for remaining > 0 {
		select {
		case <-done:
			remaining--
		case <-deadline.C:
			timedOut = true
			s.markStragglers(targets)
			s.mu.Lock()
			cancel := s.cancel
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			// done is buffered to len(targets), so the stragglers can
			// finish their sends unobserved.
			remaining = 0
		}
	}

	// Settling delay: the store commits are transactional, but downstream
	// procedures read through replicas that lag by a few seconds.
	select {
	case <-time.After(s.cfg.SafetyDelay):
	case <-ctx.Done():
	}

	completed := s.finishWave(wave, timedOut)

	if req.ExecuteProcedures && completed > 0 {
		s.enqueueProcedures(req)
	} else if req.ExecuteProcedures {
		s.logger.Warn("procedure job skipped: no device completed", zap.Int("wave", wave))
	}
}

func (s *SyncService) syncDevice(ctx context.Context, a device.Adapter, from, to time.Time) {
	started := s.now()
	name := a.Name()
	log := s.logger.Sugar().With("device", name)

	fail := func(err error) {
		status := models.DeviceFailed
		if ctx.Err() != nil {
			status = models.DeviceCancelled
		}
		s.setState(name, status, err.Error(), nil)
		s.metrics.ObserveSync(name, strings.ToLower(string(status)), s.now().Sub(started))
		log.Warnw("device sync did not complete", "status", status, "error", err)
	}

	s.setState(name, models.DeviceConnecting, "", nil)
	if err := a.TestConnect(ctx); err != nil {
		fail(err)
		return
	}

	s.setState(name, models.DeviceReading, "", nil)
	result, err := a.FetchEvents(ctx, from, to)
	if err != nil {
		fail(err)
		return
	}

	s.setState(name, models.DeviceWriting, "", nil)
	inserted, duplicates, err := s.events.AppendEvents(ctx, result.Events)
	if err != nil {
		fail(err)
		return
	}

	s.setState(name, models.DeviceCompleted, "", &deviceCounts{
		synced:     inserted,
		dropped:    result.Dropped,
		duplicates: duplicates,
	})
	s.metrics.ObserveIngest(name, inserted, duplicates, result.Dropped)
	s.metrics.ObserveSync(name, "completed", s.now().Sub(started))
	log.Infow("device sync completed", "inserted", inserted, "duplicates", duplicates, "dropped", result.Dropped)
}

type deviceCounts struct {
	synced     int
	dropped    int
	duplicates int
}

// setState advances one device's status. Terminal states are sticky: a late
// write from a cancelled goroutine cannot resurrect a finished device.
func (s *SyncService) setState(name string, status models.DeviceStatus, message string, counts *deviceCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok || st.Status.Terminal() {
		return
	}
	st.Status = status
	st.Message = message
	if counts != nil {
		st.RecordsSynced = counts.synced
		st.Dropped = counts.dropped
		st.Duplicates = counts.duplicates
	}
	if status.Terminal() {
		now := s.now()
		st.EndedAt = &now
	}
}

func (s *SyncService) markStragglers(targets []device.Adapter) {
	for _, a := range targets {
		s.setState(a.Name(), models.DeviceTimeout, "barrier timeout", nil)
	}
}

// finishWave closes out the wave, persists the snapshot, and returns how many
// devices completed.
func (s *SyncService) finishWave(wave int, timedOut bool) int {
	s.mu.Lock()
	s.active = false
	s.cancel = nil
	completed := 0
	snapshot := dto.SyncStatusResponse{Wave: s.wave, Active: false}
	for _, a := range s.adapters {
		if st, ok := s.states[a.Name()]; ok {
			if st.Status == models.DeviceCompleted {
				completed++
			}
			snapshot.Devices = append(snapshot.Devices, *st)
		}
	}
	s.mu.Unlock()

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, syncSnapshotKey, snapshot, s.cfg.SnapshotTTL); err != nil {
			s.logger.Warn("sync snapshot not cached", zap.Error(err))
		}
	}

	s.logger.Info("sync wave finished",
		zap.Int("wave", wave),
		zap.Int("completed", completed),
		zap.Bool("timed_out", timedOut))
	return completed
}

func (s *SyncService) enqueueProcedures(req WaveRequest) {
	payload := map[string]interface{}{
		"start_date": req.From.Format("2006-01-02"),
		"end_date":   req.To.Format("2006-01-02"),
		"procedures": []string{StageAttendance, StageWorkingHours},
	}
	if len(req.PINs) > 0 {
		payload["pins"] = req.PINs
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := s.queue.CreateJob(ctx, dto.CreateJobRequest{
		Type:     string(models.JobTypeProcedure),
		Payload:  payload,
		Owner:    req.Owner,
		Priority: models.PriorityDefault,
	})
	if err != nil {
		s.logger.Error("procedure job not enqueued", zap.Error(err))
		return
	}
	s.logger.Info("procedure job enqueued", zap.String("job_id", job.ID))
}
