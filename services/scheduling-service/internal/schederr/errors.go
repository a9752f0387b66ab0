// Package schederr defines the scheduling error taxonomy. Every code is an
// expected, user-facing outcome: handlers map codes to HTTP statuses and the
// core never retries them. Anything that is not a *schederr.Error is an
// infrastructure failure (store connectivity and the like) and surfaces as a
// generic internal error.
package schederr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodePastDate              Code = "PAST_DATE"
	CodeSlotConflict          Code = "SLOT_CONFLICT"
	CodeAlreadyEnrolled       Code = "ALREADY_ENROLLED"
	CodeEnrollmentClosed      Code = "ENROLLMENT_CLOSED"
	CodeClientNotEligible     Code = "CLIENT_NOT_ELIGIBLE"
	CodeStaffScheduleNotFound Code = "STAFF_SCHEDULE_NOT_FOUND"
	CodeServiceNotFound       Code = "SERVICE_NOT_FOUND"
	CodeStaffNotFound         Code = "STAFF_NOT_FOUND"
	CodeAppointmentNotFound   Code = "APPOINTMENT_NOT_FOUND"
	CodeInvalidRecurrence     Code = "INVALID_RECURRENCE"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
// ok is false for infrastructure errors.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is lets errors.Is match two taxonomy errors by code regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}
