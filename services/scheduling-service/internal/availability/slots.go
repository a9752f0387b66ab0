// Package availability turns business open hours, staff working windows, and
// existing appointments into the ordered sequence of bookable slots for a day.
package availability

import (
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// GranularityMins is the fixed slot granularity. Slot boundaries are anchored
// at the business day start (default 09:00) in steps of this size.
const GranularityMins = 30

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Every overlap decision in the scheduling core goes
// through this one predicate; the SQL range filters mirror it.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SlotKey is the structured identity of a slot boundary. It replaces the
// legacy "serviceId-day-HH:MM" string key, which was ambiguous for service ids
// containing hyphens.
type SlotKey struct {
	ServiceID   string
	Weekday     time.Weekday
	StartMinute int // minutes from local midnight
}

type Slot struct {
	Key       SlotKey
	StaffID   string // empty for service-level (class) slots
	Start     time.Time
	End       time.Time
	Index     int // zero-based position on the granularity grid from day start
	Remaining int
	Available bool
}

// SlotsNeeded returns the number of contiguous granularity units the service
// occupies: the configured value, or ceil(duration/30) when unset.
func SlotsNeeded(svc model.Service) int {
	if svc.SlotsNeeded > 0 {
		return svc.SlotsNeeded
	}
	n := (svc.DurationMins + GranularityMins - 1) / GranularityMins
	if n < 1 {
		n = 1
	}
	return n
}

// BusinessWindows converts one weekday of the open-hours table into working
// windows, splitting at the lunch break so candidates intersecting lunch are
// never generated.
func BusinessWindows(day model.BusinessDay) []schedule.Window {
	if !day.IsOpen || day.CloseMinute <= day.OpenMinute {
		return nil
	}
	if !day.HasLunch() {
		return []schedule.Window{{StartMinute: day.OpenMinute, EndMinute: day.CloseMinute}}
	}
	var out []schedule.Window
	if day.LunchStartMinute > day.OpenMinute {
		out = append(out, schedule.Window{StartMinute: day.OpenMinute, EndMinute: day.LunchStartMinute})
	}
	if day.CloseMinute > day.LunchEndMinute {
		out = append(out, schedule.Window{StartMinute: day.LunchEndMinute, EndMinute: day.CloseMinute})
	}
	return out
}

// CandidateStarts enumerates the grid-aligned start minutes at which a booking
// of durationMins fits entirely inside one of the windows. Boundaries advance
// by the service footprint (slotsNeeded granularity units) from the anchor.
func CandidateStarts(windows []schedule.Window, anchorMinute, slotsNeeded, durationMins int) []int {
	if slotsNeeded < 1 || durationMins <= 0 {
		return nil
	}
	step := slotsNeeded * GranularityMins
	var starts []int
	for _, w := range windows {
		m := alignUp(w.StartMinute, anchorMinute, step)
		for ; m+durationMins <= w.EndMinute; m += step {
			starts = append(starts, m)
		}
	}
	return starts
}

// alignUp returns the smallest minute >= m that sits on the anchor grid.
func alignUp(m, anchor, step int) int {
	d := m - anchor
	if d <= 0 {
		// Open hours start at or before the anchor: first boundary at or after m.
		for anchor-step >= m {
			anchor -= step
		}
		return anchor
	}
	q := (d + step - 1) / step
	return anchor + q*step
}

// GridIndex is the zero-based slot index of a start minute relative to the
// business day start.
func GridIndex(startMinute, anchorMinute int) int {
	return (startMinute - anchorMinute) / GranularityMins
}

// CountOverlapping counts the non-terminal appointments in appts whose
// interval intersects [start, end).
func CountOverlapping(appts []model.Appointment, start, end time.Time) int {
	n := 0
	for _, a := range appts {
		if a.Status.Terminal() {
			continue
		}
		if Overlaps(a.ScheduledFor, a.End(), start, end) {
			n++
		}
	}
	return n
}
