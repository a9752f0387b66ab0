package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

type resolverStore struct {
	weeks   map[string]Week
	timeOff map[string][]time.Time
}

func (s *resolverStore) GetWeek(_ context.Context, _, staffID string) (Week, bool, error) {
	w, ok := s.weeks[staffID]
	return w, ok, nil
}

func (s *resolverStore) HasTimeOffOn(_ context.Context, _, staffID string, date time.Time) (bool, error) {
	for _, d := range s.timeOff[staffID] {
		if d.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

var testMonday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func TestResolveWindows_MissingRecord(t *testing.T) {
	r := NewResolver(&resolverStore{weeks: map[string]Week{}})
	_, err := r.ResolveWindows(context.Background(), "biz", "ghost", testMonday)
	if code, ok := schederr.CodeOf(err); !ok || code != schederr.CodeStaffScheduleNotFound {
		t.Fatalf("expected STAFF_SCHEDULE_NOT_FOUND, got %v", err)
	}
}

func TestResolveWindows_NotWorkingDay(t *testing.T) {
	var week Week // all days not working
	r := NewResolver(&resolverStore{weeks: map[string]Week{"s1": week}})
	windows, err := r.ResolveWindows(context.Background(), "biz", "s1", testMonday)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("not-working day yielded windows: %+v", windows)
	}
}

func TestResolveWindows_TimeOff(t *testing.T) {
	var week Week
	week[1] = Day{IsWorking: true, Windows: []Window{{StartMinute: 540, EndMinute: 1020}}}
	r := NewResolver(&resolverStore{
		weeks:   map[string]Week{"s1": week},
		timeOff: map[string][]time.Time{"s1": {testMonday}},
	})
	windows, err := r.ResolveWindows(context.Background(), "biz", "s1", testMonday)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("time off day yielded windows: %+v", windows)
	}
}

func TestResolveWindows_SortedWindows(t *testing.T) {
	var week Week
	week[1] = Day{IsWorking: true, Windows: []Window{
		{StartMinute: 780, EndMinute: 1020},
		{StartMinute: 540, EndMinute: 720},
	}}
	r := NewResolver(&resolverStore{weeks: map[string]Week{"s1": week}})
	windows, err := r.ResolveWindows(context.Background(), "biz", "s1", testMonday)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(windows) != 2 || windows[0].StartMinute != 540 {
		t.Fatalf("windows not sorted: %+v", windows)
	}
}
