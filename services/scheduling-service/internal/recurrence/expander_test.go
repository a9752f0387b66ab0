package recurrence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/booking"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/outbox"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// 2026-09-07 is a Monday.
var patternStart = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandDates_WeeklyInclusiveBounds(t *testing.T) {
	dates, err := ExpandDates(Pattern{
		Frequency: Weekly,
		Interval:  1,
		StartDate: patternStart,
		EndDate:   date(2026, 10, 5),
	})
	if err != nil {
		t.Fatalf("ExpandDates: %v", err)
	}
	want := []time.Time{
		date(2026, 9, 7), date(2026, 9, 14), date(2026, 9, 21), date(2026, 9, 28), date(2026, 10, 5),
	}
	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d: %v", len(dates), len(want), dates)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

func TestExpandDates_DefaultHorizon(t *testing.T) {
	dates, err := ExpandDates(Pattern{Frequency: Daily, Interval: 1, StartDate: patternStart})
	if err != nil {
		t.Fatalf("ExpandDates: %v", err)
	}
	// One year past the start, both bounds inclusive.
	if len(dates) != 366 {
		t.Fatalf("got %d dates, want 366", len(dates))
	}
	if last := dates[len(dates)-1]; !last.Equal(date(2027, 9, 7)) {
		t.Fatalf("last date = %s, want 2027-09-07", last)
	}
}

func TestExpandDates_WeekdayFilter(t *testing.T) {
	dates, err := ExpandDates(Pattern{
		Frequency:  Daily,
		Interval:   1,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
		StartDate:  patternStart,
		EndDate:    date(2026, 9, 20),
	})
	if err != nil {
		t.Fatalf("ExpandDates: %v", err)
	}
	if len(dates) != 4 {
		t.Fatalf("got %d dates, want 4: %v", len(dates), dates)
	}
	for _, d := range dates {
		if wd := d.Weekday(); wd != time.Monday && wd != time.Wednesday {
			t.Fatalf("date %s is a %s", d.Format("2006-01-02"), wd)
		}
	}
}

func TestExpandDates_MonthlyInterval(t *testing.T) {
	dates, err := ExpandDates(Pattern{
		Frequency: Monthly,
		Interval:  2,
		StartDate: patternStart,
		EndDate:   date(2027, 3, 7),
	})
	if err != nil {
		t.Fatalf("ExpandDates: %v", err)
	}
	want := []time.Time{date(2026, 9, 7), date(2026, 11, 7), date(2027, 1, 7), date(2027, 3, 7)}
	if len(dates) != len(want) {
		t.Fatalf("got %v, want %v", dates, want)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

func TestExpandDates_Invalid(t *testing.T) {
	cases := []struct {
		name string
		p    Pattern
	}{
		{"zero interval", Pattern{Frequency: Weekly, Interval: 0, StartDate: patternStart}},
		{"bad frequency", Pattern{Frequency: "FORTNIGHTLY", Interval: 1, StartDate: patternStart}},
		{"missing start", Pattern{Frequency: Weekly, Interval: 1}},
		{"end before start", Pattern{Frequency: Weekly, Interval: 1, StartDate: patternStart, EndDate: date(2026, 9, 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExpandDates(tc.p)
			if code, ok := schederr.CodeOf(err); !ok || code != schederr.CodeInvalidRecurrence {
				t.Fatalf("expected INVALID_RECURRENCE, got %v", err)
			}
		})
	}
}

// applyEnv wires a real Booker over in-memory state so Apply's fan-out can be
// observed end to end.
type applyEnv struct {
	business model.Business
	days     map[int]model.BusinessDay
	services map[string]model.Service
	staff    map[string]model.Staff
	weeks    map[string]schedule.Week
	appts    map[string]model.Appointment

	txCount int
	failAt  int // abort InTx with an infra error on this call number; 0 = never
}

func newApplyEnv() *applyEnv {
	week := schedule.Week{}
	for wd := 1; wd <= 5; wd++ {
		week[wd] = schedule.Day{IsWorking: true, Windows: []schedule.Window{{StartMinute: 540, EndMinute: 1020}}}
	}
	env := &applyEnv{
		business: model.Business{ID: "biz", Name: "Studio", DayStartMinute: 540},
		days:     map[int]model.BusinessDay{},
		services: map[string]model.Service{
			"svc-cut": {ID: "svc-cut", BusinessID: "biz", Name: "Cut", DurationMins: 60, Capacity: 1, IsActive: true},
		},
		staff: map[string]model.Staff{
			"staff-a": {ID: "staff-a", BusinessID: "biz", Name: "A", IsActive: true},
		},
		weeks: map[string]schedule.Week{"staff-a": week},
		appts: map[string]model.Appointment{},
	}
	for wd := 1; wd <= 5; wd++ {
		env.days[wd] = model.BusinessDay{Weekday: wd, IsOpen: true, OpenMinute: 540, CloseMinute: 1020}
	}
	return env
}

func (e *applyEnv) GetBusiness(context.Context, string) (model.Business, bool, error) {
	return e.business, true, nil
}

func (e *applyEnv) GetBusinessDay(_ context.Context, _ string, weekday int) (model.BusinessDay, bool, error) {
	d, ok := e.days[weekday]
	return d, ok, nil
}

func (e *applyEnv) GetService(_ context.Context, _, serviceID string) (model.Service, bool, error) {
	s, ok := e.services[serviceID]
	return s, ok, nil
}

func (e *applyEnv) GetStaff(_ context.Context, _, staffID string) (model.Staff, bool, error) {
	s, ok := e.staff[staffID]
	return s, ok, nil
}

func (e *applyEnv) GetClient(context.Context, string, string) (model.Client, bool, error) {
	return model.Client{ID: "client-1", IsEligible: true}, true, nil
}

func (e *applyEnv) GetWeek(_ context.Context, _, staffID string) (schedule.Week, bool, error) {
	w, ok := e.weeks[staffID]
	return w, ok, nil
}

func (e *applyEnv) HasTimeOffOn(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (e *applyEnv) InTx(_ context.Context, fn func(tx booking.Tx) error) error {
	e.txCount++
	if e.failAt > 0 && e.txCount == e.failAt {
		return errors.New("connection reset by peer")
	}
	return fn(&applyTx{env: e})
}

type applyTx struct {
	env *applyEnv
}

func (t *applyTx) LockServiceRow(context.Context, string, string) error { return nil }

func (t *applyTx) CountOverlappingForStaff(_ context.Context, _, staffID string, start, end time.Time) (int, error) {
	n := 0
	for _, a := range t.env.appts {
		if a.StaffID == staffID && !a.Status.Terminal() && a.ScheduledFor.Before(end) && start.Before(a.End()) {
			n++
		}
	}
	return n, nil
}

func (t *applyTx) CountOverlappingForService(context.Context, string, string, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (t *applyTx) ClientHasBookingBetween(context.Context, string, string, string, time.Time, time.Time) (bool, error) {
	return false, nil
}

func (t *applyTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	t.env.appts[appt.ID] = *appt
	return nil
}

func (t *applyTx) GetAppointment(_ context.Context, _, id string) (model.Appointment, bool, error) {
	a, ok := t.env.appts[id]
	return a, ok, nil
}

func (t *applyTx) GetAppointmentForUpdate(ctx context.Context, businessID, id string) (model.Appointment, bool, error) {
	return t.GetAppointment(ctx, businessID, id)
}

func (t *applyTx) UpdateAppointmentStatus(_ context.Context, _, id string, status model.Status, _ string) error {
	a := t.env.appts[id]
	a.Status = status
	t.env.appts[id] = a
	return nil
}

func (t *applyTx) AppendEvent(context.Context, outbox.Event) error { return nil }

func (t *applyTx) LockIdempotencyKey(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

func (t *applyTx) FinalizeIdempotencyKey(context.Context, string, string, string) error {
	return nil
}

func newExpander(env *applyEnv) *Expander {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := booking.NewBooker(env, env, schedule.NewResolver(env), logger).
		WithClock(func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) })
	return NewExpander(b, logger)
}

func weeklyPattern() Pattern {
	return Pattern{
		ID:         "pat-1",
		BusinessID: "biz",
		ServiceID:  "svc-cut",
		StaffID:    "staff-a",
		ClientID:   "client-1",
		Frequency:  Weekly,
		Interval:   1,
		StartDate:  patternStart,
		EndDate:    date(2026, 10, 5),
	}
}

func TestApply_AllDatesBooked(t *testing.T) {
	env := newApplyEnv()
	res, err := newExpander(env).Apply(context.Background(), weeklyPattern(), Template{StartMinute: 600})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 5 || len(res.Attempts) != 5 {
		t.Fatalf("created %d of %d attempts, want 5 of 5", res.Created, len(res.Attempts))
	}
	for _, a := range res.Attempts {
		if a.Code != "" || a.AppointmentID == "" {
			t.Fatalf("attempt on %s did not succeed: %+v", a.Date.Format("2006-01-02"), a)
		}
	}
	for _, appt := range env.appts {
		if appt.PatternID != "pat-1" {
			t.Fatalf("appointment missing pattern id: %+v", appt)
		}
		if got := appt.ScheduledFor.Hour()*60 + appt.ScheduledFor.Minute(); got != 600 {
			t.Fatalf("occurrence starts at minute %d, want 600", got)
		}
	}
}

func TestApply_ConflictSkipsDateOnly(t *testing.T) {
	env := newApplyEnv()
	// Occupy the staff member on the third occurrence.
	taken := date(2026, 9, 21).Add(10 * time.Hour)
	env.appts["existing"] = model.Appointment{
		ID: "existing", BusinessID: "biz", ServiceID: "svc-cut", StaffID: "staff-a",
		ClientID: "client-2", ScheduledFor: taken, DurationMins: 60, Status: model.StatusConfirmed,
	}

	res, err := newExpander(env).Apply(context.Background(), weeklyPattern(), Template{StartMinute: 600})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 4 {
		t.Fatalf("created %d, want 4", res.Created)
	}
	var conflicted *Attempt
	for i := range res.Attempts {
		if res.Attempts[i].Code != "" {
			conflicted = &res.Attempts[i]
		}
	}
	if conflicted == nil || conflicted.Code != schederr.CodeSlotConflict {
		t.Fatalf("expected one SLOT_CONFLICT attempt, got %+v", res.Attempts)
	}
	if !conflicted.Date.Equal(date(2026, 9, 21)) {
		t.Fatalf("conflict on %s, want 2026-09-21", conflicted.Date.Format("2006-01-02"))
	}
}

func TestApply_InfraErrorAborts(t *testing.T) {
	env := newApplyEnv()
	env.failAt = 3

	res, err := newExpander(env).Apply(context.Background(), weeklyPattern(), Template{StartMinute: 600})
	if err == nil {
		t.Fatal("expected an infrastructure error")
	}
	if _, taxonomy := schederr.CodeOf(err); taxonomy {
		t.Fatalf("infra error must not carry a taxonomy code: %v", err)
	}
	// The first two dates stay committed.
	if res.Created != 2 {
		t.Fatalf("created %d before abort, want 2", res.Created)
	}
}
