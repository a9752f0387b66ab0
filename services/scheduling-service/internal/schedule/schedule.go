// Package schedule resolves a staff member's concrete working windows for a
// calendar date: the weekly shift plan for that weekday minus any time off
// covering the date.
package schedule

import "sort"

// Window is a working interval within one day, minutes from local midnight,
// half-open [StartMinute, EndMinute).
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func (w Window) Valid() bool {
	return w.StartMinute >= 0 && w.EndMinute <= 24*60 && w.StartMinute < w.EndMinute
}

// Day is one weekday of a staff member's weekly plan. A day is either not
// working or working a list of windows; there is no third shape. Historical
// single-window and shift-list inputs both normalize into Windows.
type Day struct {
	IsWorking bool
	Windows   []Window
}

// Normalize drops malformed windows (start >= end or out of range) and sorts
// the remainder by start. A working day left with no valid windows degrades to
// not working.
func (d Day) Normalize() Day {
	if !d.IsWorking {
		return Day{}
	}
	var kept []Window
	for _, w := range d.Windows {
		if w.Valid() {
			kept = append(kept, w)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].StartMinute < kept[j].StartMinute })
	if len(kept) == 0 {
		return Day{}
	}
	return Day{IsWorking: true, Windows: kept}
}

// Week is a full weekly plan indexed by time.Weekday (0=Sunday).
type Week [7]Day

// Intersect clips the windows in a against the windows in b. Both inputs must
// be sorted; the result is sorted. This is the meet of business open hours and
// a staff plan when computing bookable candidates.
func Intersect(a, b []Window) []Window {
	var out []Window
	for _, x := range a {
		for _, y := range b {
			start := x.StartMinute
			if y.StartMinute > start {
				start = y.StartMinute
			}
			end := x.EndMinute
			if y.EndMinute < end {
				end = y.EndMinute
			}
			if start < end {
				out = append(out, Window{StartMinute: start, EndMinute: end})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out
}
