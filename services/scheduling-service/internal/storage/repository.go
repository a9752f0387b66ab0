package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nabil-haroun/bookably/libs/db"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// Repository is the configuration-plane store: businesses, open hours, staff,
// weekly schedules, time off, services, slot templates, clients. All queries
// are scoped by business id; a row owned by another business is simply not
// found.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports an exclusion-constraint violation (SQLSTATE 23P01): a
// concurrent transaction already holds the slot.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (model.Business, bool, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, day_start_minute, auto_confirm
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Timezone, &b.DayStartMinute, &b.AutoConfirm)
	if err != nil {
		if IsNotFound(err) {
			return model.Business{}, false, nil
		}
		return model.Business{}, false, err
	}
	return b, true, nil
}

func (r *Repository) GetBusinessDay(ctx context.Context, businessID string, weekday int) (model.BusinessDay, bool, error) {
	var d model.BusinessDay
	err := r.pool.QueryRow(ctx, `
		SELECT weekday, is_open, open_minute, close_minute,
			COALESCE(lunch_start_minute, 0), COALESCE(lunch_end_minute, 0)
		FROM business_hours
		WHERE business_id = $1 AND weekday = $2
	`, businessID, weekday).Scan(&d.Weekday, &d.IsOpen, &d.OpenMinute, &d.CloseMinute, &d.LunchStartMinute, &d.LunchEndMinute)
	if err != nil {
		if IsNotFound(err) {
			return model.BusinessDay{}, false, nil
		}
		return model.BusinessDay{}, false, err
	}
	return d, true, nil
}

func (r *Repository) UpsertBusinessDay(ctx context.Context, businessID string, d model.BusinessDay) error {
	var lunchStart, lunchEnd *int
	if d.HasLunch() {
		lunchStart, lunchEnd = &d.LunchStartMinute, &d.LunchEndMinute
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_hours (business_id, weekday, is_open, open_minute, close_minute, lunch_start_minute, lunch_end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, weekday) DO UPDATE
		SET is_open = EXCLUDED.is_open,
			open_minute = EXCLUDED.open_minute,
			close_minute = EXCLUDED.close_minute,
			lunch_start_minute = EXCLUDED.lunch_start_minute,
			lunch_end_minute = EXCLUDED.lunch_end_minute
	`, businessID, d.Weekday, d.IsOpen, d.OpenMinute, d.CloseMinute, lunchStart, lunchEnd)
	return err
}

func (r *Repository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, bool, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, slots_needed, capacity,
			COALESCE(slot_template_id::text, ''), is_active
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins, &s.SlotsNeeded, &s.Capacity, &s.SlotTemplateID, &s.IsActive)
	if err != nil {
		if IsNotFound(err) {
			return model.Service{}, false, nil
		}
		return model.Service{}, false, err
	}
	return s, true, nil
}

func (r *Repository) CreateService(ctx context.Context, svc model.Service) error {
	var templateID *string
	if svc.SlotTemplateID != "" {
		templateID = &svc.SlotTemplateID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes, slots_needed, capacity, slot_template_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, svc.ID, svc.BusinessID, svc.Name, svc.DurationMins, svc.SlotsNeeded, svc.Capacity, templateID, svc.IsActive)
	return err
}

func (r *Repository) ListServices(ctx context.Context, businessID string, limit int) ([]model.Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, slots_needed, capacity,
			COALESCE(slot_template_id::text, ''), is_active
		FROM services
		WHERE business_id = $1
		ORDER BY name ASC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins, &s.SlotsNeeded, &s.Capacity, &s.SlotTemplateID, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, bool, error) {
	var s model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, is_active
		FROM staff
		WHERE business_id = $1 AND id = $2
	`, businessID, staffID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive)
	if err != nil {
		if IsNotFound(err) {
			return model.Staff{}, false, nil
		}
		return model.Staff{}, false, err
	}
	return s, true, nil
}

// CreateStaff inserts the staff member together with a default weekly plan:
// Monday through Friday, 09:00-17:00.
func (r *Repository) CreateStaff(ctx context.Context, businessID, name string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO staff (id, business_id, name, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, id, businessID, name); err != nil {
		return "", err
	}

	for wd := 0; wd <= 6; wd++ {
		working := wd >= 1 && wd <= 5
		windows := []byte("[]")
		if working {
			raw, err := json.Marshal([]schedule.Window{{StartMinute: 540, EndMinute: 1020}})
			if err != nil {
				return "", err
			}
			windows = raw
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_schedules (staff_id, weekday, is_working, windows)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (staff_id, weekday) DO NOTHING
		`, id, wd, working, windows); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListActiveStaff(ctx context.Context, businessID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, is_active
		FROM staff
		WHERE business_id = $1 AND is_active
		ORDER BY id ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetClient(ctx context.Context, businessID, clientID string) (model.Client, bool, error) {
	var c model.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, email, phone, is_eligible
		FROM clients
		WHERE business_id = $1 AND id = $2
	`, businessID, clientID).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.IsEligible)
	if err != nil {
		if IsNotFound(err) {
			return model.Client{}, false, nil
		}
		return model.Client{}, false, err
	}
	return c, true, nil
}

func (r *Repository) SetClientEligibility(ctx context.Context, businessID, clientID string, eligible bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients
		SET is_eligible = $3
		WHERE business_id = $1 AND id = $2
	`, businessID, clientID, eligible)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) GetSlotTemplate(ctx context.Context, businessID, templateID string) (model.SlotTemplate, bool, error) {
	var t model.SlotTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(business_id::text, ''), name, slots_needed, duration_minutes, category, is_default
		FROM slot_templates
		WHERE id = $1 AND (business_id = $2 OR business_id IS NULL)
	`, templateID, businessID).Scan(&t.ID, &t.BusinessID, &t.Name, &t.SlotsNeeded, &t.DurationMins, &t.Category, &t.IsDefault)
	if err != nil {
		if IsNotFound(err) {
			return model.SlotTemplate{}, false, nil
		}
		return model.SlotTemplate{}, false, err
	}
	return t, true, nil
}

func (r *Repository) ListSlotTemplates(ctx context.Context, businessID string) ([]model.SlotTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(business_id::text, ''), name, slots_needed, duration_minutes, category, is_default
		FROM slot_templates
		WHERE business_id = $1 OR business_id IS NULL
		ORDER BY is_default DESC, name ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SlotTemplate
	for rows.Next() {
		var t model.SlotTemplate
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.Name, &t.SlotsNeeded, &t.DurationMins, &t.Category, &t.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ListNonTerminalBetween(ctx context.Context, businessID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, service_id::text, COALESCE(staff_id::text, ''), client_id::text,
			COALESCE(recurring_pattern_id::text, ''), scheduled_for, duration_minutes, status, COALESCE(notes, ''), created_at
		FROM appointments
		WHERE business_id = $1
			AND status IN ('PENDING', 'CONFIRMED', 'ACCEPTED')
			AND scheduled_for < $3
			AND ends_at > $2
		ORDER BY scheduled_for ASC
	`, businessID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(
			&a.ID,
			&a.BusinessID,
			&a.ServiceID,
			&a.StaffID,
			&a.ClientID,
			&a.PatternID,
			&a.ScheduledFor,
			&a.DurationMins,
			&a.Status,
			&a.Notes,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
