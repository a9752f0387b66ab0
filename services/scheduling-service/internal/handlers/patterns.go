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
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/recurrence"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/storage"
)

type PatternHandler struct {
	expander *recurrence.Expander
	repo     *storage.Repository
	logger   *slog.Logger
}

func NewPatternHandler(expander *recurrence.Expander, repo *storage.Repository, logger *slog.Logger) *PatternHandler {
	return &PatternHandler{expander: expander, repo: repo, logger: logger}
}

type createPatternRequest struct {
	ServiceID   string `json:"service_id"`
	StaffID     string `json:"staff_id"`
	ClientID    string `json:"client_id"`
	Frequency   string `json:"frequency"`
	Interval    int    `json:"interval"`
	DaysOfWeek  []int  `json:"days_of_week"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	StartMinute int    `json:"start_minute"`
	Notes       string `json:"notes"`
}

type patternAttemptItem struct {
	Date          string `json:"date"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Code          string `json:"code,omitempty"`
}

// Create answers POST /api/v1/recurring-patterns: the pattern is persisted
// first, then expanded into individual booking attempts. A date lost to a
// conflict is reported in the attempts list, never rolled back over.
func (h *PatternHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		req.ClientID = actor.ClientID
	}
	if req.ServiceID == "" || req.ClientID == "" {
		writeBadRequest(w, "service_id and client_id are required")
		return
	}
	if req.Interval == 0 {
		req.Interval = 1
	}
	if req.StartMinute < 0 || req.StartMinute >= 24*60 {
		writeBadRequest(w, "start_minute must be within the day")
		return
	}

	startDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.StartDate), time.UTC)
	if err != nil {
		writeBadRequest(w, "start_date must be YYYY-MM-DD")
		return
	}
	var endDate time.Time
	if raw := strings.TrimSpace(req.EndDate); raw != "" {
		endDate, err = time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			writeBadRequest(w, "end_date must be YYYY-MM-DD")
			return
		}
	}
	var days []time.Weekday
	for _, d := range req.DaysOfWeek {
		if d < 0 || d > 6 {
			writeBadRequest(w, "days_of_week entries must be 0..6")
			return
		}
		days = append(days, time.Weekday(d))
	}

	p := recurrence.Pattern{
		ID:         uuid.NewString(),
		BusinessID: actor.BusinessID,
		ServiceID:  req.ServiceID,
		StaffID:    strings.TrimSpace(req.StaffID),
		ClientID:   req.ClientID,
		Frequency:  recurrence.Frequency(strings.ToUpper(strings.TrimSpace(req.Frequency))),
		Interval:   req.Interval,
		DaysOfWeek: days,
		StartDate:  startDate,
		EndDate:    endDate,
	}

	// Validate before persisting so an invalid pattern leaves no row behind.
	if _, err := recurrence.ExpandDates(p); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.repo.CreatePattern(r.Context(), p); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.expander.Apply(r.Context(), p, recurrence.Template{
		StartMinute: req.StartMinute,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		if _, expected := schederr.CodeOf(err); !expected {
			h.logger.Error("pattern expansion aborted", "pattern_id", p.ID, "err", err)
		}
		writeError(w, h.logger, err)
		return
	}

	attempts := make([]patternAttemptItem, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		attempts = append(attempts, patternAttemptItem{
			Date:          a.Date.Format("2006-01-02"),
			AppointmentID: a.AppointmentID,
			Code:          string(a.Code),
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"pattern_id": p.ID,
		"created":    res.Created,
		"attempts":   attempts,
	})
}

type deletePatternRequest struct {
	PatternID string `json:"pattern_id"`
}

// Delete answers POST /api/v1/recurring-patterns/delete. Future occurrences
// still holding capacity are removed with the pattern; past and completed
// ones stay.
func (h *PatternHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req deletePatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.PatternID = strings.TrimSpace(req.PatternID)
	if req.PatternID == "" {
		writeBadRequest(w, "pattern_id is required")
		return
	}

	removed, err := h.repo.DeletePattern(r.Context(), actor.BusinessID, req.PatternID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorEnvelope{
				Error: errorBody{Code: "PATTERN_NOT_FOUND", Message: "recurring pattern not found"},
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pattern_id":           req.PatternID,
		"appointments_removed": removed,
	})
}
