// Package booking commits appointments against the slots the availability
// calculator offers. Book is the concurrency-critical path: every capacity
// check is re-executed against the store inside the committing transaction, so
// two racing callers can never both observe room and both insert.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/availability"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/outbox"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// ErrSlotTaken is returned by Tx.InsertAppointment when the store's exclusion
// constraint rejects the row: a concurrent transaction won the slot between
// our count and our insert.
var ErrSlotTaken = errors.New("booking: slot taken by concurrent insert")

// Reads is the configuration-plane data the booker consults before opening
// the booking transaction. These reads are safe outside the atomic section:
// business hours, services, and schedules change through admin actions, not
// through racing bookings.
type Reads interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, bool, error)
	GetBusinessDay(ctx context.Context, businessID string, weekday int) (model.BusinessDay, bool, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, bool, error)
	GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, bool, error)
	GetClient(ctx context.Context, businessID, clientID string) (model.Client, bool, error)
}

// Tx is one atomic unit of work against the appointment store. Implementations
// must guarantee that the overlap counts and the insert observe a serialized
// view of the exclusivity key: a pgx transaction holding the service row lock
// (capacity-N) backed by an exclusion constraint (capacity-1) in production, a
// mutex in test fakes.
type Tx interface {
	// LockServiceRow serializes concurrent bookings of one class service.
	LockServiceRow(ctx context.Context, businessID, serviceID string) error
	CountOverlappingForStaff(ctx context.Context, businessID, staffID string, start, end time.Time) (int, error)
	CountOverlappingForService(ctx context.Context, businessID, serviceID string, start, end time.Time) (int, error)
	ClientHasBookingBetween(ctx context.Context, businessID, clientID, serviceID string, start, end time.Time) (bool, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, bool, error)
	GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, bool, error)
	UpdateAppointmentStatus(ctx context.Context, businessID, appointmentID string, status model.Status, reason string) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
	// LockIdempotencyKey claims the key, returning the appointment id of a
	// prior successful booking when the key was already finalized.
	LockIdempotencyKey(ctx context.Context, businessID, key string) (appointmentID string, replay bool, err error)
	FinalizeIdempotencyKey(ctx context.Context, businessID, key, appointmentID string) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Request struct {
	BusinessID     string
	ServiceID      string
	StaffID        string // optional; empty for unassigned class services
	ClientID       string
	ScheduledFor   time.Time
	Notes          string
	PatternID      string // set when generated by a recurring pattern
	IdempotencyKey string // optional
}

type Booker struct {
	store    Store
	reads    Reads
	resolver *schedule.Resolver
	gate     *EligibilityGate
	logger   *slog.Logger
	now      func() time.Time
}

func NewBooker(store Store, reads Reads, resolver *schedule.Resolver, logger *slog.Logger) *Booker {
	return &Booker{
		store:    store,
		reads:    reads,
		resolver: resolver,
		gate:     NewEligibilityGate(reads),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (b *Booker) WithClock(now func() time.Time) *Booker {
	b.now = now
	return b
}

// Book validates the candidate slot and commits the appointment, or fails with
// a taxonomy error. None of the failures are retried here; re-offering another
// slot is the caller's decision.
func (b *Booker) Book(ctx context.Context, req Request) (*model.Appointment, error) {
	now := b.now()

	svc, found, err := b.reads.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !found || !svc.IsActive {
		return nil, schederr.New(schederr.CodeServiceNotFound, "service %s not found", req.ServiceID)
	}

	day := startOfDay(req.ScheduledFor)
	if day.Before(startOfDay(now)) {
		return nil, schederr.New(schederr.CodePastDate, "requested date %s has elapsed", day.Format("2006-01-02"))
	}
	if svc.Exclusive() {
		if req.ScheduledFor.Before(now) {
			return nil, schederr.New(schederr.CodePastDate, "requested start time has elapsed")
		}
	} else {
		// Enrollment closes the instant the class starts.
		if !req.ScheduledFor.After(now) {
			return nil, schederr.New(schederr.CodeEnrollmentClosed, "enrollment closed at %s", req.ScheduledFor.Format(time.RFC3339))
		}
		if err := b.gate.Authorize(ctx, req.BusinessID, req.ClientID, svc); err != nil {
			return nil, err
		}
	}

	biz, found, err := b.reads.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, schederr.New(schederr.CodeServiceNotFound, "service %s not found", req.ServiceID)
	}

	if err := b.validateWithinHours(ctx, biz, svc, req, day); err != nil {
		return nil, err
	}

	status := model.StatusPending
	if biz.AutoConfirm {
		status = model.StatusConfirmed
	}
	appt := &model.Appointment{
		ID:           uuid.NewString(),
		BusinessID:   req.BusinessID,
		ServiceID:    svc.ID,
		StaffID:      req.StaffID,
		ClientID:     req.ClientID,
		PatternID:    req.PatternID,
		ScheduledFor: req.ScheduledFor,
		DurationMins: svc.DurationMins,
		Status:       status,
		Notes:        req.Notes,
	}

	err = b.store.InTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			prior, replay, err := tx.LockIdempotencyKey(ctx, req.BusinessID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if replay {
				existing, found, err := tx.GetAppointment(ctx, req.BusinessID, prior)
				if err != nil {
					return err
				}
				if found {
					*appt = existing
					return nil
				}
			}
		}

		if err := b.checkCapacity(ctx, tx, svc, appt); err != nil {
			return err
		}

		enrolled, err := tx.ClientHasBookingBetween(ctx, req.BusinessID, req.ClientID, svc.ID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if enrolled {
			return schederr.New(schederr.CodeAlreadyEnrolled, "client already booked for service %s on %s", svc.ID, day.Format("2006-01-02"))
		}

		if err := tx.InsertAppointment(ctx, appt); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return schederr.New(schederr.CodeSlotConflict, "slot taken at commit time")
			}
			return err
		}

		if err := tx.AppendEvent(ctx, bookedEvent(appt)); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			return tx.FinalizeIdempotencyKey(ctx, req.BusinessID, req.IdempotencyKey, appt.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// checkCapacity re-counts the exclusivity key inside the transaction and
// rejects when capacity is reached. For class services the service row lock
// makes the count-then-insert pair atomic; for exclusive services the
// exclusion constraint backstops the count against a concurrent insert.
func (b *Booker) checkCapacity(ctx context.Context, tx Tx, svc model.Service, appt *model.Appointment) error {
	start, end := appt.ScheduledFor, appt.End()
	if svc.Exclusive() {
		if appt.StaffID == "" {
			return schederr.New(schederr.CodeStaffNotFound, "exclusive service %s requires a staff member", svc.ID)
		}
		n, err := tx.CountOverlappingForStaff(ctx, appt.BusinessID, appt.StaffID, start, end)
		if err != nil {
			return err
		}
		if n >= 1 {
			return schederr.New(schederr.CodeSlotConflict, "staff %s already booked in that interval", appt.StaffID)
		}
		return nil
	}

	if err := tx.LockServiceRow(ctx, appt.BusinessID, svc.ID); err != nil {
		return err
	}
	n, err := tx.CountOverlappingForService(ctx, appt.BusinessID, svc.ID, start, end)
	if err != nil {
		return err
	}
	if n >= svc.Capacity {
		return schederr.New(schederr.CodeSlotConflict, "service %s is at capacity %d", svc.ID, svc.Capacity)
	}
	return nil
}

// validateWithinHours re-checks the calendar rules a slot was offered under:
// inside business open hours (minus lunch), on the slot grid, and inside the
// staff member's working windows when one is assigned. A slot accepted at
// availability-query time may have gone stale by booking time.
func (b *Booker) validateWithinHours(ctx context.Context, biz model.Business, svc model.Service, req Request, day time.Time) error {
	bizDay, found, err := b.reads.GetBusinessDay(ctx, req.BusinessID, int(day.Weekday()))
	if err != nil {
		return err
	}
	if !found || !bizDay.IsOpen {
		return schederr.New(schederr.CodeSlotConflict, "business is closed on %s", day.Weekday())
	}
	windows := availability.BusinessWindows(bizDay)

	if req.StaffID != "" {
		if _, found, err := b.reads.GetStaff(ctx, req.BusinessID, req.StaffID); err != nil {
			return err
		} else if !found {
			return schederr.New(schederr.CodeStaffNotFound, "staff %s not found", req.StaffID)
		}
		staffWindows, err := b.resolver.ResolveWindows(ctx, req.BusinessID, req.StaffID, day)
		if err != nil {
			return err
		}
		windows = schedule.Intersect(windows, staffWindows)
	}

	startMinute := minuteOfDay(req.ScheduledFor)
	for _, m := range availability.CandidateStarts(windows, biz.DayStartMinute, availability.SlotsNeeded(svc), svc.DurationMins) {
		if m == startMinute {
			return nil
		}
	}
	return schederr.New(schederr.CodeSlotConflict, "requested time is not a bookable slot")
}

func bookedEvent(appt *model.Appointment) outbox.Event {
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.booked.v1",
		Payload:       appointmentPayload(appt, nil),
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
