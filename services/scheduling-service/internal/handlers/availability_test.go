package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/availability"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

type fakeAvailabilityStore struct {
	business model.Business
	days     map[int]model.BusinessDay
	services map[string]model.Service
	staff    []model.Staff
	weeks    map[string]schedule.Week
	appts    []model.Appointment
}

func (f *fakeAvailabilityStore) GetBusiness(context.Context, string) (model.Business, bool, error) {
	return f.business, f.business.ID != "", nil
}

func (f *fakeAvailabilityStore) GetBusinessDay(_ context.Context, _ string, weekday int) (model.BusinessDay, bool, error) {
	d, ok := f.days[weekday]
	return d, ok, nil
}

func (f *fakeAvailabilityStore) GetService(_ context.Context, _, serviceID string) (model.Service, bool, error) {
	s, ok := f.services[serviceID]
	return s, ok, nil
}

func (f *fakeAvailabilityStore) GetStaff(_ context.Context, _, staffID string) (model.Staff, bool, error) {
	for _, s := range f.staff {
		if s.ID == staffID {
			return s, true, nil
		}
	}
	return model.Staff{}, false, nil
}

func (f *fakeAvailabilityStore) ListActiveStaff(context.Context, string) ([]model.Staff, error) {
	return f.staff, nil
}

func (f *fakeAvailabilityStore) ListNonTerminalBetween(_ context.Context, _ string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ScheduledFor.Before(end) && start.Before(a.End()) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAvailabilityStore) GetWeek(_ context.Context, _, staffID string) (schedule.Week, bool, error) {
	w, ok := f.weeks[staffID]
	return w, ok, nil
}

func (f *fakeAvailabilityStore) HasTimeOffOn(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func newAvailabilityHandler() *AvailabilityHandler {
	var week schedule.Week
	for wd := 1; wd <= 5; wd++ {
		week[wd] = schedule.Day{IsWorking: true, Windows: []schedule.Window{{StartMinute: 540, EndMinute: 1020}}}
	}
	store := &fakeAvailabilityStore{
		business: model.Business{ID: "biz", Name: "Studio", DayStartMinute: 540},
		days: map[int]model.BusinessDay{
			1: {Weekday: 1, IsOpen: true, OpenMinute: 540, CloseMinute: 1020},
		},
		services: map[string]model.Service{
			"svc-cut": {ID: "svc-cut", BusinessID: "biz", Name: "Cut", DurationMins: 60, Capacity: 1, IsActive: true},
		},
		staff: []model.Staff{{ID: "staff-a", BusinessID: "biz", Name: "A", IsActive: true}},
		weeks: map[string]schedule.Week{"staff-a": week},
	}
	calc := availability.NewCalculator(store, schedule.NewResolver(store)).
		WithClock(func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAvailabilityHandler(calc, logger)
}

func availabilityRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	actor := identity.Actor{Sub: "u", BusinessID: "biz", Role: identity.RoleClient, ClientID: "client-1"}
	return req.WithContext(identity.WithActor(req.Context(), actor))
}

func TestSlots_FullDay(t *testing.T) {
	h := newAvailabilityHandler()
	rr := httptest.NewRecorder()
	// 2026-09-07 is a Monday.
	h.Slots(rr, availabilityRequest("/api/v1/availability?service_id=svc-cut&date=2026-09-07"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Date  string     `json:"date"`
		Slots []slotItem `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Date != "2026-09-07" {
		t.Fatalf("date = %q", body.Date)
	}
	// 09:00 through 16:00, hourly.
	if len(body.Slots) != 8 {
		t.Fatalf("got %d slots, want 8: %+v", len(body.Slots), body.Slots)
	}
	first := body.Slots[0]
	if first.StartTime != "2026-09-07T09:00:00Z" || first.EndTime != "2026-09-07T10:00:00Z" {
		t.Fatalf("first slot %s - %s", first.StartTime, first.EndTime)
	}
	if !first.Available || first.Remaining != 1 || first.StaffID != "staff-a" {
		t.Fatalf("unexpected first slot: %+v", first)
	}
}

func TestSlots_BadRequest(t *testing.T) {
	h := newAvailabilityHandler()
	cases := []struct {
		name   string
		target string
	}{
		{"missing service", "/api/v1/availability?date=2026-09-07"},
		{"missing date", "/api/v1/availability?service_id=svc-cut"},
		{"malformed date", "/api/v1/availability?service_id=svc-cut&date=07-09-2026"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Slots(rr, availabilityRequest(tc.target))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestSlots_TaxonomyErrorEnvelope(t *testing.T) {
	h := newAvailabilityHandler()
	rr := httptest.NewRecorder()
	h.Slots(rr, availabilityRequest("/api/v1/availability?service_id=svc-ghost&date=2026-09-07"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var body errorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "SERVICE_NOT_FOUND" {
		t.Fatalf("code = %q, want SERVICE_NOT_FOUND", body.Error.Code)
	}
}

func TestSlots_PastDate(t *testing.T) {
	h := newAvailabilityHandler()
	rr := httptest.NewRecorder()
	h.Slots(rr, availabilityRequest("/api/v1/availability?service_id=svc-cut&date=2026-08-01"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestSlots_Unauthenticated(t *testing.T) {
	h := newAvailabilityHandler()
	rr := httptest.NewRecorder()
	h.Slots(rr, httptest.NewRequest(http.MethodGet, "/api/v1/availability?service_id=svc-cut&date=2026-09-07", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSlots_MethodNotAllowed(t *testing.T) {
	h := newAvailabilityHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", nil)
	h.Slots(rr, req.WithContext(identity.WithActor(req.Context(), identity.Actor{BusinessID: "biz", Role: identity.RoleAdmin})))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}
