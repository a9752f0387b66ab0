package availability

import (
	"testing"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	at := func(mins int) time.Time { return base.Add(time.Duration(mins) * time.Minute) }

	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     int
		want                           bool
	}{
		{"identical", 0, 60, 0, 60, true},
		{"partial", 0, 60, 30, 90, true},
		{"contained", 0, 90, 30, 60, true},
		{"adjacent is not overlap", 0, 60, 60, 120, false},
		{"disjoint", 0, 30, 60, 90, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(at(tc.aStart), at(tc.aEnd), at(tc.bStart), at(tc.bEnd))
			if got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSlotsNeeded(t *testing.T) {
	if n := SlotsNeeded(model.Service{DurationMins: 60}); n != 2 {
		t.Fatalf("60min service needs %d units, want 2", n)
	}
	if n := SlotsNeeded(model.Service{DurationMins: 45}); n != 2 {
		t.Fatalf("45min service needs %d units, want 2 (rounded up)", n)
	}
	if n := SlotsNeeded(model.Service{DurationMins: 90, SlotsNeeded: 3}); n != 3 {
		t.Fatalf("configured slots_needed overrides derivation, got %d", n)
	}
}

func TestCandidateStarts_FullDay(t *testing.T) {
	// 09:00-17:00, 60-minute service: exactly eight candidates, one per hour.
	windows := []schedule.Window{{StartMinute: 540, EndMinute: 1020}}
	starts := CandidateStarts(windows, 540, 2, 60)
	if len(starts) != 8 {
		t.Fatalf("expected 8 candidates, got %d (%v)", len(starts), starts)
	}
	for i, m := range starts {
		if want := 540 + i*60; m != want {
			t.Fatalf("candidate %d = %d, want %d", i, m, want)
		}
	}
}

func TestCandidateStarts_LunchBreak(t *testing.T) {
	day := model.BusinessDay{
		IsOpen:           true,
		OpenMinute:       540,
		CloseMinute:      1020,
		LunchStartMinute: 720,
		LunchEndMinute:   780,
	}
	windows := BusinessWindows(day)
	if len(windows) != 2 {
		t.Fatalf("expected open hours split in two, got %v", windows)
	}

	starts := CandidateStarts(windows, 540, 2, 60)
	want := []int{540, 600, 660, 780, 840, 900, 960}
	if len(starts) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), starts)
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Fatalf("candidate %d = %d, want %d", i, starts[i], want[i])
		}
	}
	// No candidate may intersect the lunch window.
	for _, m := range starts {
		if m < 780 && m+60 > 720 {
			t.Fatalf("candidate %d intersects lunch", m)
		}
	}
}

func TestCandidateStarts_GridAlignment(t *testing.T) {
	// Staff windows that start off-grid still yield anchor-aligned starts.
	windows := []schedule.Window{{StartMinute: 550, EndMinute: 720}}
	starts := CandidateStarts(windows, 540, 1, 30)
	for _, m := range starts {
		if (m-540)%30 != 0 {
			t.Fatalf("start %d is off the grid", m)
		}
		if m < 550 {
			t.Fatalf("start %d precedes the window", m)
		}
	}
	if len(starts) == 0 || starts[0] != 570 {
		t.Fatalf("expected first aligned start 570, got %v", starts)
	}
}

func TestCandidateStarts_FootprintRespectsWindowEnd(t *testing.T) {
	// A 90-minute service in a 2-hour window fits once, not twice.
	windows := []schedule.Window{{StartMinute: 540, EndMinute: 660}}
	starts := CandidateStarts(windows, 540, 3, 90)
	if len(starts) != 1 || starts[0] != 540 {
		t.Fatalf("expected single candidate at 540, got %v", starts)
	}
}

func TestBusinessWindows_Closed(t *testing.T) {
	if w := BusinessWindows(model.BusinessDay{IsOpen: false}); w != nil {
		t.Fatalf("closed day yields windows: %v", w)
	}
}

func TestGridIndex(t *testing.T) {
	if i := GridIndex(540, 540); i != 0 {
		t.Fatalf("anchor slot index = %d, want 0", i)
	}
	if i := GridIndex(660, 540); i != 4 {
		t.Fatalf("11:00 index = %d, want 4", i)
	}
}

func TestCountOverlapping_IgnoresTerminal(t *testing.T) {
	start := time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	appts := []model.Appointment{
		{ScheduledFor: start, DurationMins: 60, Status: model.StatusConfirmed},
		{ScheduledFor: start, DurationMins: 60, Status: model.StatusCancelled},
		{ScheduledFor: start.Add(-time.Hour), DurationMins: 60, Status: model.StatusPending},
	}
	if n := CountOverlapping(appts, start, end); n != 1 {
		t.Fatalf("overlap count = %d, want 1 (terminal and adjacent excluded)", n)
	}
}
