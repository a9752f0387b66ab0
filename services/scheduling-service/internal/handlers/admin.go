package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/catalog"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/storage"
)

// AdminHandler is the configuration plane: open hours, staff, weekly
// schedules, time off, services, slot templates, and client eligibility. All
// routes behind it require the admin role.
type AdminHandler struct {
	repo    *storage.Repository
	catalog *catalog.Expander
	logger  *slog.Logger
}

func NewAdminHandler(repo *storage.Repository, cat *catalog.Expander, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, catalog: cat, logger: logger}
}

func actorOr401(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}
	return actor, ok
}

type businessDayRequest struct {
	Weekday          int  `json:"weekday"`
	IsOpen           bool `json:"is_open"`
	OpenMinute       int  `json:"open_minute"`
	CloseMinute      int  `json:"close_minute"`
	LunchStartMinute int  `json:"lunch_start_minute"`
	LunchEndMinute   int  `json:"lunch_end_minute"`
}

// UpsertBusinessHours answers PUT /api/v1/admin/business-hours with one
// weekday row per call.
func (h *AdminHandler) UpsertBusinessHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req businessDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		writeBadRequest(w, "weekday must be 0..6")
		return
	}
	day := model.BusinessDay{
		Weekday:          req.Weekday,
		IsOpen:           req.IsOpen,
		OpenMinute:       req.OpenMinute,
		CloseMinute:      req.CloseMinute,
		LunchStartMinute: req.LunchStartMinute,
		LunchEndMinute:   req.LunchEndMinute,
	}
	if day.IsOpen {
		if day.OpenMinute < 0 || day.CloseMinute > 24*60 || day.CloseMinute <= day.OpenMinute {
			writeBadRequest(w, "open_minute and close_minute must describe a window within the day")
			return
		}
		if day.HasLunch() && (day.LunchStartMinute < day.OpenMinute || day.LunchEndMinute > day.CloseMinute) {
			writeBadRequest(w, "lunch break must lie inside open hours")
			return
		}
	}

	if err := h.repo.UpsertBusinessDay(r.Context(), actor.BusinessID, day); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateStaff answers POST /api/v1/admin/staff. New staff start on the
// default Monday-to-Friday plan.
func (h *AdminHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	id, err := h.repo.CreateStaff(r.Context(), actor.BusinessID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"staff_id": id})
}

type scheduleDayRequest struct {
	StaffID   string `json:"staff_id"`
	Weekday   int    `json:"weekday"`
	IsWorking bool   `json:"is_working"`
	Windows   []struct {
		StartMinute int `json:"start_minute"`
		EndMinute   int `json:"end_minute"`
	} `json:"windows"`
}

// UpsertStaffSchedule answers PUT /api/v1/admin/staff/schedule with one
// weekday of a staff member's weekly plan.
func (h *AdminHandler) UpsertStaffSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req scheduleDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" || req.Weekday < 0 || req.Weekday > 6 {
		writeBadRequest(w, "staff_id and weekday 0..6 are required")
		return
	}

	day := schedule.Day{IsWorking: req.IsWorking}
	for _, win := range req.Windows {
		day.Windows = append(day.Windows, schedule.Window{StartMinute: win.StartMinute, EndMinute: win.EndMinute})
	}

	err := h.repo.UpsertWeekDay(r.Context(), actor.BusinessID, req.StaffID, req.Weekday, day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorEnvelope{
				Error: errorBody{Code: "STAFF_NOT_FOUND", Message: "staff member not found"},
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeOffRequest struct {
	StaffID   string `json:"staff_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

// CreateTimeOff answers POST /api/v1/admin/staff/time-off. Both dates are
// inclusive; time off is whole days.
func (h *AdminHandler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req timeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		writeBadRequest(w, "staff_id is required")
		return
	}
	start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.StartDate), time.UTC)
	if err != nil {
		writeBadRequest(w, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.EndDate), time.UTC)
	if err != nil {
		writeBadRequest(w, "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeBadRequest(w, "end_date precedes start_date")
		return
	}

	id, err := h.repo.CreateTimeOff(r.Context(), actor.BusinessID, storage.TimeOff{
		StaffID:   req.StaffID,
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorEnvelope{
				Error: errorBody{Code: "STAFF_NOT_FOUND", Message: "staff member not found"},
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"time_off_id": id})
}

type createServiceRequest struct {
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	SlotsNeeded  int    `json:"slots_needed"`
	Capacity     int    `json:"capacity"`
}

// CreateService answers POST /api/v1/admin/services for services built from
// scratch; template-derived services go through InstantiateTemplate.
func (h *AdminHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DurationMins <= 0 {
		writeBadRequest(w, "name and a positive duration_minutes are required")
		return
	}
	if req.Capacity < 1 {
		req.Capacity = 1
	}

	svc := model.Service{
		ID:           uuid.NewString(),
		BusinessID:   actor.BusinessID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		SlotsNeeded:  req.SlotsNeeded,
		Capacity:     req.Capacity,
		IsActive:     true,
	}
	if err := h.repo.CreateService(r.Context(), svc); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": svc.ID})
}

type instantiateTemplateRequest struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
}

// InstantiateTemplate answers POST /api/v1/admin/services/from-template.
func (h *AdminHandler) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req instantiateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	if req.TemplateID == "" {
		writeBadRequest(w, "template_id is required")
		return
	}

	svc, err := h.catalog.InstantiateTemplate(r.Context(), actor.BusinessID, req.TemplateID, req.Name, req.Capacity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"service_id":       svc.ID,
		"name":             svc.Name,
		"duration_minutes": svc.DurationMins,
		"slots_needed":     svc.SlotsNeeded,
		"capacity":         svc.Capacity,
		"slot_template_id": svc.SlotTemplateID,
	})
}

// ListSlotTemplates answers GET /api/v1/admin/slot-templates: the business's
// own templates plus the global defaults.
func (h *AdminHandler) ListSlotTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	templates, err := h.repo.ListSlotTemplates(r.Context(), actor.BusinessID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		items = append(items, map[string]any{
			"template_id":      t.ID,
			"name":             t.Name,
			"duration_minutes": t.DurationMins,
			"slots_needed":     t.SlotsNeeded,
			"category":         t.Category,
			"is_default":       t.IsDefault,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": items})
}

type eligibilityRequest struct {
	ClientID   string `json:"client_id"`
	IsEligible bool   `json:"is_eligible"`
}

// SetClientEligibility answers PUT /api/v1/admin/clients/eligibility. Only
// eligible clients may enroll in class services.
func (h *AdminHandler) SetClientEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		writeBadRequest(w, "client_id is required")
		return
	}

	err := h.repo.SetClientEligibility(r.Context(), actor.BusinessID, req.ClientID, req.IsEligible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorEnvelope{
				Error: errorBody{Code: "CLIENT_NOT_FOUND", Message: "client not found"},
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
