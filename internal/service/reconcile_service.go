package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/internal/repository"
)

// SelectorRules names every device group and historical carve-out that feeds
// the daily attendance rebuild. They default to the production fleet but stay
// data, not code, so a device swap never needs a selector rewrite.
type SelectorRules struct {
	// Check-in selectors, merged by earliest time per employee-day.
	LobbyInDevice       string   // IN punches
	BackupInDevice      string   // IN punches
	CorrectionInDevices []string // correction rows, any status
	GateInDevices       []string // any status
	PatrolInDevice      string
	PatrolInStatus      string

	// Legacy gate carve-out: the retired gate device reads as a check-in
	// source only inside a fixed window, and only for employees the
	// replacement device never saw inside its own window.
	LegacyGateDevice  string
	LegacyReplacement string
	LegacyWindowFrom  time.Time
	LegacyWindowTo    time.Time // exclusive
	LegacyAntiFrom    time.Time
	LegacyAntiTo      time.Time // exclusive

	// Check-out selectors, merged by latest time per employee-day.
	MainOutDevice        string // any status except MainOutExclStatus
	MainOutExclStatus    string
	BackupOutDevice      string // OUT punches
	CorrectionOutDevices []string
	GateOutDevices       []string
	PatrolOutDevice      string
	PatrolOutStatus      string

	// Production-area selectors.
	ProdDevices         []string // IN for prod-in, OUT for prod-out
	ProdCorrectionIn    string
	ProdCorrectionOut   string

	// Department display labels keyed "location|role"; employees outside the
	// map fall back to their catalog department name, then to location.
	DeptLabels map[string]string
}

// DefaultSelectorRules mirrors the deployed fleet.
func DefaultSelectorRules() SelectorRules {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	}
	return SelectorRules{
		LobbyInDevice:       "104",
		BackupInDevice:      "105",
		CorrectionInDevices: []string{"104", "114"},
		GateInDevices:       []string{"2", "3"},
		PatrolInDevice:      "201",
		PatrolInStatus:      "P1 MASUK-1",

		LegacyGateDevice:  "1",
		LegacyReplacement: "2",
		LegacyWindowFrom:  day(2022, 3, 7),
		LegacyWindowTo:    day(2022, 3, 12),
		LegacyAntiFrom:    day(2022, 3, 7),
		LegacyAntiTo:      day(2022, 3, 11),

		MainOutDevice:        "102",
		MainOutExclStatus:    "1",
		BackupOutDevice:      "105",
		CorrectionOutDevices: []string{"102", "112"},
		GateOutDevices:       []string{"1", "4"},
		PatrolOutDevice:      "203",
		PatrolOutStatus:      "P1 PULANG-2",

		ProdDevices:       []string{"108", "110", "111"},
		ProdCorrectionIn:  "204",
		ProdCorrectionOut: "202",
	}
}

// TrackedDevices is the union of every device any selector reads; the
// reconciliation calendar only counts days these devices produced.
func (r SelectorRules) TrackedDevices() []string {
	seen := make(map[string]struct{})
	add := func(devices ...string) {
		for _, d := range devices {
			if d != "" {
				seen[d] = struct{}{}
			}
		}
	}
	add(r.LobbyInDevice, r.BackupInDevice, r.PatrolInDevice, r.LegacyGateDevice)
	add(r.GateInDevices...)
	add(r.CorrectionInDevices...)
	add(r.MainOutDevice, r.BackupOutDevice, r.PatrolOutDevice)
	add(r.GateOutDevices...)
	add(r.CorrectionOutDevices...)
	add(r.ProdDevices...)
	add(r.ProdCorrectionIn, r.ProdCorrectionOut)

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

type reconcileStore interface {
	Calendar(ctx context.Context, from, to time.Time, pins, trackedDevices []string) ([]repository.PinDate, error)
	AggregateEvents(ctx context.Context, q repository.EventAggQuery) (map[repository.PinDate]time.Time, error)
	AggregateCorrections(ctx context.Context, agg repository.Agg, devices []string, from, to time.Time, pins []string) (map[repository.PinDate]time.Time, error)
	LegacyGateCheckIns(ctx context.Context, gateDevice, replacementDevice string, windowFrom, windowTo, antiFrom, antiTo time.Time, pins []string) (map[repository.PinDate]time.Time, error)
}

type employeeStore interface {
	ListByPINs(ctx context.Context, pins []string, statuses []models.EmployeeStatus) ([]models.Employee, error)
}

type attendanceStore interface {
	ReplaceRange(ctx context.Context, from, to time.Time, pins []string, records []models.AttendanceRecord) error
	ListRange(ctx context.Context, from, to time.Time, pins []string) ([]models.AttendanceRecord, error)
}

// ReconcileSummary reports one attendance rebuild.
type ReconcileSummary struct {
	Days        int `json:"days"`
	Records     int `json:"records"`
	UnknownPins int `json:"unknown_pins"`
}

// ReconcileService rebuilds the attendance_records range from the raw event
// and correction logs. A rebuild is a pure function of those logs: it deletes
// the target range and rewrites it, so replays converge.
type ReconcileService struct {
	events     reconcileStore
	employees  employeeStore
	attendance attendanceStore
	rules      SelectorRules
	shifts     ShiftRules
	now        func() time.Time
	logger     *zap.Logger
}

// NewReconcileService constructs the service with production rules.
func NewReconcileService(events reconcileStore, employees employeeStore, attendance attendanceStore, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		events:     events,
		employees:  employees,
		attendance: attendance,
		rules:      DefaultSelectorRules(),
		shifts:     DefaultShiftRules(),
		now:        time.Now,
		logger:     logger,
	}
}

// Run rebuilds attendance for [from, to] (date-granular, inclusive) and the
// given pins; empty pins means every employee seen in the range.
func (s *ReconcileService) Run(ctx context.Context, from, to time.Time, pins []string) (*ReconcileSummary, error) {
	from = truncateToDay(from)
	toEx := truncateToDay(to).AddDate(0, 0, 1)
	if !toEx.After(from) {
		return nil, fmt.Errorf("empty reconciliation range %s..%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	calendar, err := s.events.Calendar(ctx, from, toEx, pins, s.rules.TrackedDevices())
	if err != nil {
		return nil, err
	}
	if len(calendar) == 0 {
		if err := s.attendance.ReplaceRange(ctx, from, to, pins, nil); err != nil {
			return nil, err
		}
		return &ReconcileSummary{}, nil
	}

	checkIn, err := s.resolveCheckIns(ctx, from, toEx, pins)
	if err != nil {
		return nil, err
	}
	checkOut, err := s.resolveCheckOuts(ctx, from, toEx, pins)
	if err != nil {
		return nil, err
	}
	prodIn, prodOut, err := s.resolveProd(ctx, from, toEx, pins)
	if err != nil {
		return nil, err
	}

	roster, err := s.roster(ctx, calendar)
	if err != nil {
		return nil, err
	}

	today := truncateToDay(s.now())
	records := make([]models.AttendanceRecord, 0, len(calendar))
	unknown := 0
	for _, key := range calendar {
		emp, ok := roster[key.PIN]
		if !ok {
			unknown++
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", key.Date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("calendar day %q: %w", key.Date, err)
		}

		rec := models.AttendanceRecord{
			Date:       date,
			PIN:        emp.PIN,
			Name:       emp.Name,
			Role:       emp.Role,
			Location:   emp.Location,
			Dept:       s.deptLabel(emp),
			Shift:      emp.ShiftName,
			CheckIn:    lookup(checkIn, key),
			CheckOut:   lookup(checkOut, key),
			ProdIn:     lookup(prodIn, key),
			ProdOut:    lookup(prodOut, key),
		}
		rec.Classification = s.shifts.Classify(rec.Shift, date, rec.CheckIn, rec.CheckOut, today)
		records = append(records, rec)
	}

	if err := s.attendance.ReplaceRange(ctx, from, to, pins, records); err != nil {
		return nil, err
	}

	if unknown > 0 {
		s.logger.Warn("reconciliation skipped events for pins missing from the employee catalog",
			zap.Int("unknown_pins", unknown))
	}
	s.logger.Info("attendance range rebuilt",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", to.Format("2006-01-02")),
		zap.Int("records", len(records)))

	return &ReconcileSummary{Days: len(calendar), Records: len(records), UnknownPins: unknown}, nil
}

func (s *ReconcileService) resolveCheckIns(ctx context.Context, from, to time.Time, pins []string) (map[repository.PinDate]time.Time, error) {
	r := s.rules
	in := string(models.PunchIn)
	sources := make([]map[repository.PinDate]time.Time, 0, 6)

	for _, q := range []repository.EventAggQuery{
		{Agg: repository.AggMin, Devices: []string{r.LobbyInDevice}, Status: &in, From: from, To: to, PINs: pins},
		{Agg: repository.AggMin, Devices: []string{r.BackupInDevice}, Status: &in, From: from, To: to, PINs: pins},
		{Agg: repository.AggMin, Devices: r.GateInDevices, From: from, To: to, PINs: pins},
		{Agg: repository.AggMin, Devices: []string{r.PatrolInDevice}, Status: &r.PatrolInStatus, From: from, To: to, PINs: pins},
	} {
		m, err := s.events.AggregateEvents(ctx, q)
		if err != nil {
			return nil, err
		}
		sources = append(sources, m)
	}

	corr, err := s.events.AggregateCorrections(ctx, repository.AggMin, r.CorrectionInDevices, from, to, pins)
	if err != nil {
		return nil, err
	}
	sources = append(sources, corr)

	// The legacy window only matters when the asked range touches it.
	if from.Before(r.LegacyWindowTo) && to.After(r.LegacyWindowFrom) {
		legacy, err := s.events.LegacyGateCheckIns(ctx, r.LegacyGateDevice, r.LegacyReplacement,
			r.LegacyWindowFrom, r.LegacyWindowTo, r.LegacyAntiFrom, r.LegacyAntiTo, pins)
		if err != nil {
			return nil, err
		}
		sources = append(sources, legacy)
	}

	return mergeEarliest(sources...), nil
}

func (s *ReconcileService) resolveCheckOuts(ctx context.Context, from, to time.Time, pins []string) (map[repository.PinDate]time.Time, error) {
	r := s.rules
	out := string(models.PunchOut)
	sources := make([]map[repository.PinDate]time.Time, 0, 5)

	for _, q := range []repository.EventAggQuery{
		{Agg: repository.AggMax, Devices: []string{r.MainOutDevice}, NotStatus: &r.MainOutExclStatus, From: from, To: to, PINs: pins},
		{Agg: repository.AggMax, Devices: []string{r.BackupOutDevice}, Status: &out, From: from, To: to, PINs: pins},
		{Agg: repository.AggMax, Devices: r.GateOutDevices, From: from, To: to, PINs: pins},
		{Agg: repository.AggMax, Devices: []string{r.PatrolOutDevice}, Status: &r.PatrolOutStatus, From: from, To: to, PINs: pins},
	} {
		m, err := s.events.AggregateEvents(ctx, q)
		if err != nil {
			return nil, err
		}
		sources = append(sources, m)
	}

	corr, err := s.events.AggregateCorrections(ctx, repository.AggMax, r.CorrectionOutDevices, from, to, pins)
	if err != nil {
		return nil, err
	}
	sources = append(sources, corr)

	return mergeLatest(sources...), nil
}

func (s *ReconcileService) resolveProd(ctx context.Context, from, to time.Time, pins []string) (prodIn, prodOut map[repository.PinDate]time.Time, err error) {
	r := s.rules
	in := string(models.PunchIn)
	out := string(models.PunchOut)

	inEvents, err := s.events.AggregateEvents(ctx, repository.EventAggQuery{
		Agg: repository.AggMin, Devices: r.ProdDevices, Status: &in, From: from, To: to, PINs: pins,
	})
	if err != nil {
		return nil, nil, err
	}
	inCorr, err := s.events.AggregateCorrections(ctx, repository.AggMin, []string{r.ProdCorrectionIn}, from, to, pins)
	if err != nil {
		return nil, nil, err
	}

	outEvents, err := s.events.AggregateEvents(ctx, repository.EventAggQuery{
		Agg: repository.AggMax, Devices: r.ProdDevices, Status: &out, From: from, To: to, PINs: pins,
	})
	if err != nil {
		return nil, nil, err
	}
	outCorr, err := s.events.AggregateCorrections(ctx, repository.AggMax, []string{r.ProdCorrectionOut}, from, to, pins)
	if err != nil {
		return nil, nil, err
	}

	return mergeEarliest(inEvents, inCorr), mergeLatest(outEvents, outCorr), nil
}

// roster loads active and resigned employees for every pin in the calendar.
func (s *ReconcileService) roster(ctx context.Context, calendar []repository.PinDate) (map[string]models.Employee, error) {
	seen := make(map[string]struct{}, len(calendar))
	pins := make([]string, 0, len(calendar))
	for _, key := range calendar {
		if _, ok := seen[key.PIN]; ok {
			continue
		}
		seen[key.PIN] = struct{}{}
		pins = append(pins, key.PIN)
	}

	employees, err := s.employees.ListByPINs(ctx, pins, []models.EmployeeStatus{models.EmployeeActive, models.EmployeeResign})
	if err != nil {
		return nil, err
	}
	roster := make(map[string]models.Employee, len(employees))
	for _, emp := range employees {
		roster[emp.PIN] = emp
	}
	return roster, nil
}

func (s *ReconcileService) deptLabel(emp models.Employee) string {
	if label, ok := s.rules.DeptLabels[emp.Location+"|"+emp.Role]; ok {
		return label
	}
	if emp.DepartmentName != nil && *emp.DepartmentName != "" {
		return *emp.DepartmentName
	}
	return emp.Location
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

func lookup(m map[repository.PinDate]time.Time, key repository.PinDate) *time.Time {
	if at, ok := m[key]; ok {
		at := at
		return &at
	}
	return nil
}

func mergeEarliest(sources ...map[repository.PinDate]time.Time) map[repository.PinDate]time.Time {
	merged := make(map[repository.PinDate]time.Time)
	for _, src := range sources {
		for key, at := range src {
			if cur, ok := merged[key]; !ok || at.Before(cur) {
				merged[key] = at
			}
		}
	}
	return merged
}

func mergeLatest(sources ...map[repository.PinDate]time.Time) map[repository.PinDate]time.Time {
	merged := make(map[repository.PinDate]time.Time)
	for _, src := range sources {
		for key, at := range src {
			if cur, ok := merged[key]; !ok || at.After(cur) {
				merged[key] = at
			}
		}
	}
	return merged
}
