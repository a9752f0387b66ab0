package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/recurrence"
)

func (r *Repository) CreatePattern(ctx context.Context, p recurrence.Pattern) error {
	var staffID *string
	if p.StaffID != "" {
		staffID = &p.StaffID
	}
	var endDate *time.Time
	if !p.EndDate.IsZero() {
		endDate = &p.EndDate
	}
	days := make([]int, 0, len(p.DaysOfWeek))
	for _, wd := range p.DaysOfWeek {
		days = append(days, int(wd))
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recurring_patterns
			(id, business_id, service_id, staff_id, client_id, frequency, interval_count, days_of_week, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.BusinessID, p.ServiceID, staffID, p.ClientID, p.Frequency, p.Interval, days, p.StartDate, endDate)
	return err
}

func (r *Repository) GetPattern(ctx context.Context, businessID, patternID string) (recurrence.Pattern, bool, error) {
	var (
		p       recurrence.Pattern
		days    []int
		endDate *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, service_id::text, COALESCE(staff_id::text, ''), client_id::text,
			frequency, interval_count, days_of_week, start_date, end_date
		FROM recurring_patterns
		WHERE business_id = $1 AND id = $2
	`, businessID, patternID).Scan(
		&p.ID, &p.BusinessID, &p.ServiceID, &p.StaffID, &p.ClientID,
		&p.Frequency, &p.Interval, &days, &p.StartDate, &endDate,
	)
	if err != nil {
		if IsNotFound(err) {
			return recurrence.Pattern{}, false, nil
		}
		return recurrence.Pattern{}, false, err
	}
	for _, d := range days {
		p.DaysOfWeek = append(p.DaysOfWeek, time.Weekday(d))
	}
	if endDate != nil {
		p.EndDate = *endDate
	}
	return p, true, nil
}

// DeletePattern removes the pattern together with its future, still-capacity-
// holding occurrences. Past and completed occurrences survive with their
// pattern reference nulled out by the ON DELETE SET NULL foreign key. Returns
// the number of occurrences removed.
func (r *Repository) DeletePattern(ctx context.Context, businessID, patternID string, now time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments
		WHERE business_id = $1
			AND recurring_pattern_id = $2
			AND status IN ('PENDING', 'CONFIRMED', 'ACCEPTED')
			AND scheduled_for > $3
	`, businessID, patternID, now)
	if err != nil {
		return 0, err
	}
	removed := int(tag.RowsAffected())

	patTag, err := tx.Exec(ctx, `
		DELETE FROM recurring_patterns
		WHERE business_id = $1 AND id = $2
	`, businessID, patternID)
	if err != nil {
		return 0, err
	}
	if patTag.RowsAffected() == 0 {
		return 0, pgx.ErrNoRows
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}
