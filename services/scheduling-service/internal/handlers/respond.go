package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

// statusFor maps taxonomy codes onto HTTP statuses. Codes absent from the map
// fall back to 500, which marks a taxonomy gap worth closing.
var statusFor = map[schederr.Code]int{
	schederr.CodePastDate:              http.StatusUnprocessableEntity,
	schederr.CodeSlotConflict:          http.StatusConflict,
	schederr.CodeAlreadyEnrolled:       http.StatusConflict,
	schederr.CodeEnrollmentClosed:      http.StatusUnprocessableEntity,
	schederr.CodeClientNotEligible:     http.StatusForbidden,
	schederr.CodeStaffScheduleNotFound: http.StatusNotFound,
	schederr.CodeServiceNotFound:       http.StatusNotFound,
	schederr.CodeStaffNotFound:         http.StatusNotFound,
	schederr.CodeAppointmentNotFound:   http.StatusNotFound,
	schederr.CodeInvalidRecurrence:     http.StatusBadRequest,
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders taxonomy errors with their code and message. Anything
// else is an infrastructure failure: logged, and masked as a 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if code, ok := schederr.CodeOf(err); ok {
		status, mapped := statusFor[code]
		if !mapped {
			status = http.StatusInternalServerError
		}
		msg := err.Error()
		var e *schederr.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
		writeJSON(w, status, errorEnvelope{Error: errorBody{Code: string(code), Message: msg}})
		return
	}
	logger.Error("request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{
		Error: errorBody{Code: "INTERNAL", Message: "internal error"},
	})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{Code: "BAD_REQUEST", Message: msg},
	})
}
