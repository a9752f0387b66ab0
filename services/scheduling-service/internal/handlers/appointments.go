package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/booking"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/storage"
)

type AppointmentHandler struct {
	booker *booking.Booker
	store  *storage.BookingStore
	logger *slog.Logger
}

func NewAppointmentHandler(booker *booking.Booker, store *storage.BookingStore, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{booker: booker, store: store, logger: logger}
}

type createAppointmentRequest struct {
	ServiceID    string `json:"service_id"`
	StaffID      string `json:"staff_id"`
	ClientID     string `json:"client_id"`
	ScheduledFor string `json:"scheduled_for"`
	Notes        string `json:"notes"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ClientID      string `json:"client_id"`
	PatternID     string `json:"recurring_pattern_id,omitempty"`
	ScheduledFor  string `json:"scheduled_for"`
	EndTime       string `json:"end_time"`
	DurationMins  int    `json:"duration_minutes"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func appointmentToItem(a *model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		ClientID:      a.ClientID,
		PatternID:     a.PatternID,
		ScheduledFor:  a.ScheduledFor.UTC().Format(time.RFC3339),
		EndTime:       a.End().UTC().Format(time.RFC3339),
		DurationMins:  a.DurationMins,
		Status:        string(a.Status),
		Notes:         a.Notes,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

// Create answers POST /api/v1/appointments. Client tokens book for
// themselves; staff and admin tokens pass client_id explicitly. The optional
// Idempotency-Key header makes retries of the same booking safe.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		req.ClientID = actor.ClientID
	}
	if req.ServiceID == "" || req.ClientID == "" {
		writeBadRequest(w, "service_id and client_id are required")
		return
	}
	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		writeBadRequest(w, "scheduled_for must be RFC3339")
		return
	}

	appt, err := h.booker.Book(r.Context(), booking.Request{
		BusinessID:     actor.BusinessID,
		ServiceID:      req.ServiceID,
		StaffID:        req.StaffID,
		ClientID:       req.ClientID,
		ScheduledFor:   scheduledFor,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentToItem(appt))
}

// List answers GET /api/v1/appointments with optional client_id, staff_id,
// from, to and limit query parameters. Client tokens only ever see their own
// appointments.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	f := storage.ListFilter{
		ClientID: strings.TrimSpace(q.Get("client_id")),
		StaffID:  strings.TrimSpace(q.Get("staff_id")),
	}
	if actor.Role == identity.RoleClient {
		f.ClientID = actor.ClientID
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "from must be RFC3339")
			return
		}
		f.From = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "to must be RFC3339")
			return
		}
		f.To = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	appts, err := h.store.ListAppointments(r.Context(), actor.BusinessID, f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for i := range appts {
		items = append(items, appointmentToItem(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// transition is the shared body of the status endpoints. Every transition
// runs under the appointment row lock; an appointment already in the target
// status replays as success.
func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, to model.Status) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeBadRequest(w, "appointment_id is required")
		return
	}

	// Clients may only cancel, and only their own appointment. The remaining
	// transitions are staff and admin operations, enforced by route wiring.
	if actor.Role == identity.RoleClient {
		if to != model.StatusCancelled {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		appt, found, err := h.store.GetAppointment(r.Context(), actor.BusinessID, req.AppointmentID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if found && appt.ClientID != actor.ClientID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	appt, err := h.booker.Transition(r.Context(), actor.BusinessID, req.AppointmentID, to, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToItem(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusCancelled)
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusConfirmed)
}

func (h *AppointmentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusAccepted)
}

func (h *AppointmentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusRejected)
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusCompleted)
}
