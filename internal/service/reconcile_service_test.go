package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/internal/repository"
)

type stubReconcileStore struct {
	calendar    []repository.PinDate
	eventAggs   []map[repository.PinDate]time.Time
	corrAggs    []map[repository.PinDate]time.Time
	legacy      map[repository.PinDate]time.Time
	legacyCalls int
	eventCalls  int
}

func (s *stubReconcileStore) Calendar(ctx context.Context, from, to time.Time, pins, tracked []string) ([]repository.PinDate, error) {
	return s.calendar, nil
}

func (s *stubReconcileStore) AggregateEvents(ctx context.Context, q repository.EventAggQuery) (map[repository.PinDate]time.Time, error) {
	s.eventCalls++
	if len(s.eventAggs) == 0 {
		return nil, nil
	}
	out := s.eventAggs[0]
	s.eventAggs = s.eventAggs[1:]
	return out, nil
}

func (s *stubReconcileStore) AggregateCorrections(ctx context.Context, agg repository.Agg, devices []string, from, to time.Time, pins []string) (map[repository.PinDate]time.Time, error) {
	if len(s.corrAggs) == 0 {
		return nil, nil
	}
	out := s.corrAggs[0]
	s.corrAggs = s.corrAggs[1:]
	return out, nil
}

func (s *stubReconcileStore) LegacyGateCheckIns(ctx context.Context, gate, replacement string, wf, wt, af, at time.Time, pins []string) (map[repository.PinDate]time.Time, error) {
	s.legacyCalls++
	return s.legacy, nil
}

type stubEmployeeStore struct {
	employees []models.Employee
}

func (s *stubEmployeeStore) ListByPINs(ctx context.Context, pins []string, statuses []models.EmployeeStatus) ([]models.Employee, error) {
	return s.employees, nil
}

type stubAttendanceStore struct {
	replaced []models.AttendanceRecord
	listed   []models.AttendanceRecord
}

func (s *stubAttendanceStore) ReplaceRange(ctx context.Context, from, to time.Time, pins []string, records []models.AttendanceRecord) error {
	s.replaced = records
	return nil
}

func (s *stubAttendanceStore) ListRange(ctx context.Context, from, to time.Time, pins []string) ([]models.AttendanceRecord, error) {
	return s.listed, nil
}

func deptName(name string) *string { return &name }

func TestReconcileMergesSelectorsAndClassifies(t *testing.T) {
	key := repository.PinDate{PIN: "100", Date: "2024-03-08"}
	events := &stubReconcileStore{
		calendar: []repository.PinDate{key},
		// Check-in selectors, consumed in order: lobby, backup, gate, patrol.
		eventAggs: []map[repository.PinDate]time.Time{
			{key: dayAt(2024, 3, 8, 8, 2, 0)},
			{key: dayAt(2024, 3, 8, 8, 5, 0)},
			nil,
			nil,
			// Check-out selectors: main, backup, gate, patrol.
			{key: dayAt(2024, 3, 8, 17, 1, 0)},
			nil,
			{key: dayAt(2024, 3, 8, 17, 30, 0)},
			nil,
			// Prod in / prod out.
			nil,
			nil,
		},
		corrAggs: []map[repository.PinDate]time.Time{nil, nil, nil, nil},
	}
	employees := &stubEmployeeStore{employees: []models.Employee{
		{PIN: "100", Name: "Budi", Role: "Operator", Location: "Plant A", ShiftName: "Non shift 1", Status: models.EmployeeActive, DepartmentName: deptName("Produksi")},
	}}
	store := &stubAttendanceStore{}

	svc := NewReconcileService(events, employees, store, zap.NewNop())
	svc.now = func() time.Time { return dayAt(2024, 3, 20, 10, 0, 0) }

	summary, err := svc.Run(context.Background(), dayAt(2024, 3, 8, 0, 0, 0), dayAt(2024, 3, 8, 0, 0, 0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Records != 1 || summary.UnknownPins != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	rec := store.replaced[0]
	if rec.CheckIn == nil || !rec.CheckIn.Equal(dayAt(2024, 3, 8, 8, 2, 0)) {
		t.Fatalf("earliest check-in must win across selectors, got %v", rec.CheckIn)
	}
	if rec.CheckOut == nil || !rec.CheckOut.Equal(dayAt(2024, 3, 8, 17, 30, 0)) {
		t.Fatalf("latest check-out must win across selectors, got %v", rec.CheckOut)
	}
	if rec.Classification == nil || *rec.Classification != models.ClassLate {
		t.Fatalf("08:02 check-in after the 2024-03-07 cutover must be LATE, got %v", rec.Classification)
	}
	if rec.Dept != "Produksi" {
		t.Fatalf("department label should fall back to catalog name, got %q", rec.Dept)
	}
}

func TestReconcileDropsUnknownPins(t *testing.T) {
	known := repository.PinDate{PIN: "100", Date: "2024-03-08"}
	ghost := repository.PinDate{PIN: "999", Date: "2024-03-08"}
	events := &stubReconcileStore{calendar: []repository.PinDate{known, ghost}}
	employees := &stubEmployeeStore{employees: []models.Employee{
		{PIN: "100", Name: "Budi", ShiftName: "Non shift 1", Status: models.EmployeeActive},
	}}
	store := &stubAttendanceStore{}

	svc := NewReconcileService(events, employees, store, zap.NewNop())
	summary, err := svc.Run(context.Background(), dayAt(2024, 3, 8, 0, 0, 0), dayAt(2024, 3, 8, 0, 0, 0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.UnknownPins != 1 {
		t.Fatalf("expected 1 unknown pin, got %d", summary.UnknownPins)
	}
	if len(store.replaced) != 1 {
		t.Fatalf("ghost pin must not produce a record, got %d records", len(store.replaced))
	}
}

func TestReconcileLegacyWindowOnlyWhenRangeTouchesIt(t *testing.T) {
	events := &stubReconcileStore{
		calendar: []repository.PinDate{{PIN: "100", Date: "2022-03-08"}},
	}
	employees := &stubEmployeeStore{employees: []models.Employee{
		{PIN: "100", Name: "Budi", ShiftName: "Non shift 1", Status: models.EmployeeActive},
	}}
	svc := NewReconcileService(events, employees, &stubAttendanceStore{}, zap.NewNop())

	if _, err := svc.Run(context.Background(), dayAt(2022, 3, 8, 0, 0, 0), dayAt(2022, 3, 8, 0, 0, 0), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events.legacyCalls != 1 {
		t.Fatalf("legacy selector must run for ranges inside its window, got %d calls", events.legacyCalls)
	}

	events.legacyCalls = 0
	events.calendar = []repository.PinDate{{PIN: "100", Date: "2024-03-08"}}
	if _, err := svc.Run(context.Background(), dayAt(2024, 3, 8, 0, 0, 0), dayAt(2024, 3, 8, 0, 0, 0), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events.legacyCalls != 0 {
		t.Fatalf("legacy selector must not run outside its window, got %d calls", events.legacyCalls)
	}
}

func TestReconcileEmptyCalendarClearsRange(t *testing.T) {
	store := &stubAttendanceStore{replaced: []models.AttendanceRecord{{PIN: "stale"}}}
	svc := NewReconcileService(&stubReconcileStore{}, &stubEmployeeStore{}, store, zap.NewNop())

	summary, err := svc.Run(context.Background(), dayAt(2024, 3, 8, 0, 0, 0), dayAt(2024, 3, 8, 0, 0, 0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Records != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if store.replaced != nil {
		t.Fatal("range must be cleared even when no events exist")
	}
}
