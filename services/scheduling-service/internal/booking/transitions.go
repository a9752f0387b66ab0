package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/outbox"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

// allowedTransitions maps each non-terminal status to the statuses staff or
// client action may move it to. Terminal states have no entry: they never
// re-open.
var allowedTransitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusAccepted, model.StatusRejected, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusAccepted, model.StatusCompleted, model.StatusCancelled},
	model.StatusAccepted:  {model.StatusCompleted, model.StatusCancelled},
}

func transitionAllowed(from, to model.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves an appointment to a new status under the row lock,
// releasing its capacity when the new status is terminal. Transitioning an
// appointment already in the target status is a no-op, not an error.
func (b *Booker) Transition(ctx context.Context, businessID, appointmentID string, to model.Status, reason string) (*model.Appointment, error) {
	var out model.Appointment
	err := b.store.InTx(ctx, func(tx Tx) error {
		appt, found, err := tx.GetAppointmentForUpdate(ctx, businessID, appointmentID)
		if err != nil {
			return err
		}
		if !found {
			return schederr.New(schederr.CodeAppointmentNotFound, "appointment %s not found", appointmentID)
		}
		if appt.Status == to {
			out = appt
			return nil
		}
		if !transitionAllowed(appt.Status, to) {
			return schederr.New(schederr.CodeSlotConflict, "appointment is %s and cannot become %s", appt.Status, to)
		}
		if err := tx.UpdateAppointmentStatus(ctx, businessID, appointmentID, to, reason); err != nil {
			return err
		}
		appt.Status = to
		appt.CancelReason = reason
		if to == model.StatusCancelled {
			now := b.now()
			appt.CancelledAt = &now
		}
		out = appt

		if evtType, notify := transitionEvents[to]; notify {
			return tx.AppendEvent(ctx, outbox.Event{
				AggregateType: "appointment",
				AggregateID:   appt.ID,
				EventType:     evtType,
				Payload:       appointmentPayload(&appt, map[string]string{"reason": reason}),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Only confirmations and cancellations reach the notification service; the
// remaining transitions are visible through the portal alone.
var transitionEvents = map[model.Status]string{
	model.StatusConfirmed: "booking.appointment.confirmed.v1",
	model.StatusCancelled: "booking.appointment.cancelled.v1",
}

func appointmentPayload(appt *model.Appointment, extra map[string]string) []byte {
	m := map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"service_id":     appt.ServiceID,
		"staff_id":       appt.StaffID,
		"client_id":      appt.ClientID,
		"scheduled_for":  appt.ScheduledFor.UTC().Format(time.RFC3339),
		"duration_mins":  appt.DurationMins,
		"status":         string(appt.Status),
	}
	for k, v := range extra {
		if v != "" {
			m[k] = v
		}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		// Map of strings marshals unconditionally; keep the event pipeline moving.
		return []byte("{}")
	}
	return raw
}
