package service

import (
	"time"

	"github.com/adika-dev/presensi-core/internal/models"
)

// Clock is a time-of-day in seconds since midnight. Classification windows
// compare wall-clock times only, never dates.
type Clock int

// MustClock parses "HH:MM:SS"; the rule tables are package literals so a bad
// literal is a programming error.
func MustClock(s string) Clock {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		panic(err)
	}
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// ClockOf projects a timestamp onto its time-of-day.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// ShiftBand matches a check-in to a shift start window and carries the
// deadline after which the check-in counts as late.
type ShiftBand struct {
	WindowStart Clock
	WindowEnd   Clock
	Deadline    Clock
}

// BandTable is one generation of shift windows, effective from a date.
type BandTable struct {
	EffectiveFrom time.Time
	Bands         []ShiftBand
}

// ShiftRules classifies check-ins. The "Non shift 1" shift has its own dated
// deadline pair; all other shifts are matched against banded windows whose
// generations switch on dated cutoffs. The bands live in a table rather than
// in code so operations can adjust them without a release.
type ShiftRules struct {
	NonShiftName string
	// Non shift 1 deadlines: the later generation applies from NonShiftCutover.
	NonShiftCutover        time.Time
	NonShiftDeadlineBefore Clock
	NonShiftDeadlineAfter  Clock

	// Banded tables for every other shift, oldest first.
	Tables []BandTable

	NoCheckInAfter   Clock // check-out later than this with no check-in
	NoCheckOutBefore Clock // check-in earlier than this with no check-out
}

// DefaultShiftRules mirrors the operational rule set in production.
func DefaultShiftRules() ShiftRules {
	return ShiftRules{
		NonShiftName:           "Non shift 1",
		NonShiftCutover:        time.Date(2024, 3, 7, 0, 0, 0, 0, time.Local),
		NonShiftDeadlineBefore: MustClock("08:00:00"),
		NonShiftDeadlineAfter:  MustClock("07:55:00"),
		Tables: []BandTable{
			{
				EffectiveFrom: time.Time{}, // open-ended past
				Bands: []ShiftBand{
					{WindowStart: MustClock("04:00:00"), WindowEnd: MustClock("10:59:59"), Deadline: MustClock("07:00:00")},
					{WindowStart: MustClock("11:00:00"), WindowEnd: MustClock("18:59:59"), Deadline: MustClock("15:00:00")},
					{WindowStart: MustClock("19:00:00"), WindowEnd: MustClock("23:59:59"), Deadline: MustClock("23:00:00")},
				},
			},
			{
				EffectiveFrom: time.Date(2022, 1, 17, 0, 0, 0, 0, time.Local),
				Bands: []ShiftBand{
					{WindowStart: MustClock("04:00:00"), WindowEnd: MustClock("10:59:59"), Deadline: MustClock("06:55:00")},
					{WindowStart: MustClock("11:00:00"), WindowEnd: MustClock("18:59:59"), Deadline: MustClock("14:55:00")},
					{WindowStart: MustClock("19:00:00"), WindowEnd: MustClock("23:59:59"), Deadline: MustClock("22:55:00")},
				},
			},
		},
		NoCheckInAfter:   MustClock("14:00:00"),
		NoCheckOutBefore: MustClock("18:00:00"),
	}
}

// bandsFor picks the newest table effective on the date.
func (r ShiftRules) bandsFor(date time.Time) []ShiftBand {
	var chosen []ShiftBand
	for _, tbl := range r.Tables {
		if !tbl.EffectiveFrom.After(date) {
			chosen = tbl.Bands
		}
	}
	return chosen
}

// late reports whether a check-in misses its deadline for the shift and date.
func (r ShiftRules) late(shift string, date, checkIn time.Time) bool {
	at := ClockOf(checkIn)
	if shift == r.NonShiftName {
		deadline := r.NonShiftDeadlineBefore
		if !date.Before(r.NonShiftCutover) {
			deadline = r.NonShiftDeadlineAfter
		}
		return at > deadline
	}
	for _, band := range r.bandsFor(date) {
		if at >= band.WindowStart && at <= band.WindowEnd {
			return at > band.Deadline
		}
	}
	return false
}

// Classify labels a reconciled day. A late check-in outranks a missing
// check-out; a day with neither punch stays unlabelled.
func (r ShiftRules) Classify(shift string, date time.Time, checkIn, checkOut *time.Time, today time.Time) *models.Classification {
	label := func(c models.Classification) *models.Classification { return &c }

	if checkIn != nil {
		if r.late(shift, date, *checkIn) {
			return label(models.ClassLate)
		}
		sameDay := date.Year() == today.Year() && date.YearDay() == today.YearDay()
		if checkOut == nil && ClockOf(*checkIn) < r.NoCheckOutBefore && !sameDay {
			return label(models.ClassNoCheckOut)
		}
		return label(models.ClassOnTime)
	}

	if checkOut != nil && ClockOf(*checkOut) > r.NoCheckInAfter {
		return label(models.ClassNoCheckIn)
	}
	return nil
}
