package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-haroun/bookably/libs/db"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/booking"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/outbox"
)

// BookingStore is the pgx implementation of booking.Store. Each InTx call is
// one database transaction; the exclusion constraint on appointments turns a
// lost race on an exclusive slot into booking.ErrSlotTaken instead of a double
// booking.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingStore(pool *db.Pool, ob *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: ob}
}

func (s *BookingStore) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&apptTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type apptTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *apptTx) LockServiceRow(ctx context.Context, businessID, serviceID string) error {
	var id string
	return t.tx.QueryRow(ctx, `
		SELECT id::text FROM services
		WHERE business_id = $1 AND id = $2
		FOR UPDATE
	`, businessID, serviceID).Scan(&id)
}

// Overlap is the half-open interval test: scheduled_for < end AND ends_at >
// start. Terminal rows never count against capacity.
const overlapWhere = `
	business_id = $1
	AND status IN ('PENDING', 'CONFIRMED', 'ACCEPTED')
	AND scheduled_for < $4
	AND ends_at > $3
`

func (t *apptTx) CountOverlappingForStaff(ctx context.Context, businessID, staffID string, start, end time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE staff_id = $2 AND `+overlapWhere,
		businessID, staffID, start, end).Scan(&n)
	return n, err
}

func (t *apptTx) CountOverlappingForService(ctx context.Context, businessID, serviceID string, start, end time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE service_id = $2 AND `+overlapWhere,
		businessID, serviceID, start, end).Scan(&n)
	return n, err
}

func (t *apptTx) ClientHasBookingBetween(ctx context.Context, businessID, clientID, serviceID string, start, end time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE business_id = $1
				AND client_id = $2
				AND service_id = $3
				AND status IN ('PENDING', 'CONFIRMED', 'ACCEPTED')
				AND scheduled_for >= $4
				AND scheduled_for < $5
		)
	`, businessID, clientID, serviceID, start, end).Scan(&exists)
	return exists, err
}

func (t *apptTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	var staffID, patternID *string
	if appt.StaffID != "" {
		staffID = &appt.StaffID
	}
	if appt.PatternID != "" {
		patternID = &appt.PatternID
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, staff_id, client_id, recurring_pattern_id,
			 scheduled_for, ends_at, duration_minutes, status, notes, is_exclusive)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			(SELECT capacity <= 1 FROM services WHERE id = $3))
		RETURNING created_at
	`, appt.ID, appt.BusinessID, appt.ServiceID, staffID, appt.ClientID, patternID,
		appt.ScheduledFor, appt.End(), appt.DurationMins, appt.Status, appt.Notes,
	).Scan(&appt.CreatedAt)
	if IsConflict(err) {
		return booking.ErrSlotTaken
	}
	return err
}

const appointmentColumns = `
	id::text, business_id::text, service_id::text, COALESCE(staff_id::text, ''),
	client_id::text, COALESCE(recurring_pattern_id::text, ''), scheduled_for,
	duration_minutes, status, COALESCE(notes, ''), COALESCE(cancel_reason, ''),
	cancelled_at, created_at
`

func scanAppointment(row pgx.Row, a *model.Appointment) error {
	return row.Scan(
		&a.ID, &a.BusinessID, &a.ServiceID, &a.StaffID,
		&a.ClientID, &a.PatternID, &a.ScheduledFor,
		&a.DurationMins, &a.Status, &a.Notes, &a.CancelReason,
		&a.CancelledAt, &a.CreatedAt,
	)
}

func (t *apptTx) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, bool, error) {
	return t.getAppointment(ctx, businessID, appointmentID, "")
}

func (t *apptTx) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, bool, error) {
	return t.getAppointment(ctx, businessID, appointmentID, " FOR UPDATE")
}

func (t *apptTx) getAppointment(ctx context.Context, businessID, appointmentID, lock string) (model.Appointment, bool, error) {
	var a model.Appointment
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND id = $2`+lock,
		businessID, appointmentID)
	if err := scanAppointment(row, &a); err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (t *apptTx) UpdateAppointmentStatus(ctx context.Context, businessID, appointmentID string, status model.Status, reason string) error {
	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			cancel_reason = COALESCE($4, cancel_reason),
			cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN now() ELSE cancelled_at END
		WHERE business_id = $1 AND id = $2
	`, businessID, appointmentID, status, cancelReason)
	return err
}

func (t *apptTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

// LockIdempotencyKey claims the key for this transaction. The insert-then-lock
// dance serializes two racing requests carrying the same key: the loser blocks
// on the row lock until the winner commits, then observes the finalized
// appointment id.
func (t *apptTx) LockIdempotencyKey(ctx context.Context, businessID, key string) (string, bool, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key); err != nil {
		return "", false, err
	}

	var appointmentID string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&appointmentID)
	if err != nil {
		return "", false, err
	}
	return appointmentID, appointmentID != "", nil
}

func (t *apptTx) FinalizeIdempotencyKey(ctx context.Context, businessID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3, finalized_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID)
	return err
}

// GetAppointment reads one appointment outside any transaction.
func (s *BookingStore) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, bool, error) {
	var a model.Appointment
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND id = $2
	`, businessID, appointmentID)
	if err := scanAppointment(row, &a); err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

type ListFilter struct {
	ClientID string
	StaffID  string
	From     time.Time
	To       time.Time
	Limit    int
}

func (s *BookingStore) ListAppointments(ctx context.Context, businessID string, f ListFilter) ([]model.Appointment, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var clientID, staffID *string
	if f.ClientID != "" {
		clientID = &f.ClientID
	}
	if f.StaffID != "" {
		staffID = &f.StaffID
	}
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND ($2::uuid IS NULL OR client_id = $2)
			AND ($3::uuid IS NULL OR staff_id = $3)
			AND ($4::timestamptz IS NULL OR scheduled_for >= $4)
			AND ($5::timestamptz IS NULL OR scheduled_for < $5)
		ORDER BY scheduled_for ASC
		LIMIT $6
	`, businessID, clientID, staffID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
