package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/availability"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
)

type AvailabilityHandler struct {
	calc   *availability.Calculator
	logger *slog.Logger
}

func NewAvailabilityHandler(calc *availability.Calculator, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{calc: calc, logger: logger}
}

type slotItem struct {
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id,omitempty"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Index     int    `json:"slot_index"`
	Remaining int    `json:"remaining"`
	Available bool   `json:"available"`
}

// Slots answers GET /api/v1/availability?service_id=...&date=YYYY-MM-DD and
// optionally &staff_id=... for a single staff member's calendar.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
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
	serviceID := strings.TrimSpace(q.Get("service_id"))
	rawDate := strings.TrimSpace(q.Get("date"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if serviceID == "" || rawDate == "" {
		writeBadRequest(w, "service_id and date are required")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", rawDate, time.UTC)
	if err != nil {
		writeBadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.calc.ComputeSlots(r.Context(), actor.BusinessID, serviceID, date, staffID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			ServiceID: s.Key.ServiceID,
			StaffID:   s.StaffID,
			Weekday:   int(s.Key.Weekday),
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			Index:     s.Index,
			Remaining: s.Remaining,
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  rawDate,
		"slots": items,
	})
}
