package service

import (
	"testing"
	"time"

	"github.com/adika-dev/presensi-core/internal/models"
)

func dayAt(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.Local)
}

func ptr(t time.Time) *time.Time { return &t }

func TestClassifyNonShiftDeadlineGenerations(t *testing.T) {
	rules := DefaultShiftRules()
	today := dayAt(2024, 3, 20, 0, 0, 0)

	tests := []struct {
		name    string
		date    time.Time
		checkIn time.Time
		want    models.Classification
	}{
		{
			name:    "late after new deadline",
			date:    dayAt(2024, 3, 8, 0, 0, 0),
			checkIn: dayAt(2024, 3, 8, 8, 2, 0),
			want:    models.ClassLate,
		},
		{
			name:    "on time before new deadline",
			date:    dayAt(2024, 3, 8, 0, 0, 0),
			checkIn: dayAt(2024, 3, 8, 7, 54, 59),
			want:    models.ClassOnTime,
		},
		{
			name:    "old deadline still tolerant before cutover",
			date:    dayAt(2024, 3, 6, 0, 0, 0),
			checkIn: dayAt(2024, 3, 6, 7, 58, 0),
			want:    models.ClassOnTime,
		},
		{
			name:    "late past old deadline before cutover",
			date:    dayAt(2024, 3, 6, 0, 0, 0),
			checkIn: dayAt(2024, 3, 6, 8, 0, 1),
			want:    models.ClassLate,
		},
		{
			name:    "exactly on deadline is on time",
			date:    dayAt(2024, 3, 8, 0, 0, 0),
			checkIn: dayAt(2024, 3, 8, 7, 55, 0),
			want:    models.ClassOnTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := dayAt(tt.date.Year(), tt.date.Month(), tt.date.Day(), 17, 0, 0)
			got := rules.Classify("Non shift 1", tt.date, ptr(tt.checkIn), ptr(out), today)
			if got == nil || *got != tt.want {
				t.Fatalf("Classify() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyBandedShifts(t *testing.T) {
	rules := DefaultShiftRules()
	today := dayAt(2024, 3, 20, 0, 0, 0)

	// After the 2022-01-17 generation the morning deadline is 06:55.
	date := dayAt(2022, 2, 1, 0, 0, 0)
	late := rules.Classify("Shift 2", date, ptr(dayAt(2022, 2, 1, 6, 56, 0)), ptr(dayAt(2022, 2, 1, 15, 0, 0)), today)
	if late == nil || *late != models.ClassLate {
		t.Fatalf("expected LATE for 06:56 morning check-in, got %v", late)
	}

	// Before the generation switch the deadline was 07:00.
	oldDate := dayAt(2022, 1, 10, 0, 0, 0)
	onTime := rules.Classify("Shift 2", oldDate, ptr(dayAt(2022, 1, 10, 6, 58, 0)), ptr(dayAt(2022, 1, 10, 15, 0, 0)), today)
	if onTime == nil || *onTime != models.ClassOnTime {
		t.Fatalf("expected ON_TIME for 06:58 check-in on the old table, got %v", onTime)
	}
}

func TestClassifyMissingPunches(t *testing.T) {
	rules := DefaultShiftRules()
	today := dayAt(2024, 3, 20, 0, 0, 0)
	date := dayAt(2024, 3, 8, 0, 0, 0)

	t.Run("no check-in with late check-out", func(t *testing.T) {
		got := rules.Classify("Non shift 1", date, nil, ptr(dayAt(2024, 3, 8, 17, 0, 0)), today)
		if got == nil || *got != models.ClassNoCheckIn {
			t.Fatalf("expected NO_CHECK_IN, got %v", got)
		}
	})

	t.Run("no check-in with early check-out stays unlabelled", func(t *testing.T) {
		got := rules.Classify("Non shift 1", date, nil, ptr(dayAt(2024, 3, 8, 13, 0, 0)), today)
		if got != nil {
			t.Fatalf("expected nil classification, got %v", *got)
		}
	})

	t.Run("no check-out on a past day", func(t *testing.T) {
		got := rules.Classify("Non shift 1", date, ptr(dayAt(2024, 3, 8, 7, 0, 0)), nil, today)
		if got == nil || *got != models.ClassNoCheckOut {
			t.Fatalf("expected NO_CHECK_OUT, got %v", got)
		}
	})

	t.Run("no check-out today stays on time", func(t *testing.T) {
		got := rules.Classify("Non shift 1", today, ptr(dayAt(2024, 3, 20, 7, 0, 0)), nil, today)
		if got == nil || *got != models.ClassOnTime {
			t.Fatalf("expected ON_TIME while the day is still open, got %v", got)
		}
	})

	t.Run("late outranks missing check-out", func(t *testing.T) {
		got := rules.Classify("Non shift 1", date, ptr(dayAt(2024, 3, 8, 8, 2, 0)), nil, today)
		if got == nil || *got != models.ClassLate {
			t.Fatalf("expected LATE, got %v", got)
		}
	})
}
