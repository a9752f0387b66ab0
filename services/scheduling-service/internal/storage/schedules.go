package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// GetWeek assembles the staff member's weekly plan from the per-weekday rows.
// found is false only when the staff member has no schedule rows at all, which
// is a distinct condition from "not working any day".
func (r *Repository) GetWeek(ctx context.Context, businessID, staffID string) (schedule.Week, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ss.weekday, ss.is_working, ss.windows
		FROM staff_schedules ss
		JOIN staff s ON s.id = ss.staff_id
		WHERE s.business_id = $1 AND ss.staff_id = $2
	`, businessID, staffID)
	if err != nil {
		return schedule.Week{}, false, err
	}
	defer rows.Close()

	var week schedule.Week
	found := false
	for rows.Next() {
		var (
			weekday   int
			isWorking bool
			raw       []byte
		)
		if err := rows.Scan(&weekday, &isWorking, &raw); err != nil {
			return schedule.Week{}, false, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		var windows []schedule.Window
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &windows); err != nil {
				return schedule.Week{}, false, err
			}
		}
		week[weekday] = schedule.Day{IsWorking: isWorking, Windows: windows}
		found = true
	}
	if rows.Err() != nil {
		return schedule.Week{}, false, rows.Err()
	}
	return week, found, nil
}

func (r *Repository) UpsertWeekDay(ctx context.Context, businessID, staffID string, weekday int, day schedule.Day) error {
	day = day.Normalize()
	raw, err := json.Marshal(day.Windows)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO staff_schedules (staff_id, weekday, is_working, windows)
		SELECT s.id, $3, $4, $5
		FROM staff s
		WHERE s.business_id = $1 AND s.id = $2
		ON CONFLICT (staff_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working, windows = EXCLUDED.windows
	`, businessID, staffID, weekday, day.IsWorking, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type TimeOff struct {
	ID        string
	StaffID   string
	StartDate time.Time
	EndDate   time.Time // inclusive
	Reason    string
}

// HasTimeOffOn is day-granular: a record overlapping the date blanks the whole
// working day regardless of hours.
func (r *Repository) HasTimeOffOn(ctx context.Context, businessID, staffID string, date time.Time) (bool, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM staff_time_off t
			JOIN staff s ON s.id = t.staff_id
			WHERE s.business_id = $1 AND t.staff_id = $2
				AND t.start_date <= $3 AND t.end_date >= $3
		)
	`, businessID, staffID, day).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateTimeOff(ctx context.Context, businessID string, off TimeOff) (string, error) {
	id := uuid.NewString()
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO staff_time_off (id, staff_id, start_date, end_date, reason)
		SELECT $2, s.id, $4, $5, $6
		FROM staff s
		WHERE s.business_id = $1 AND s.id = $3
	`, businessID, id, off.StaffID, off.StartDate, off.EndDate, off.Reason)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", pgx.ErrNoRows
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, businessID, staffID string) ([]TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id::text, t.staff_id::text, t.start_date, t.end_date, COALESCE(t.reason, '')
		FROM staff_time_off t
		JOIN staff s ON s.id = t.staff_id
		WHERE s.business_id = $1 AND t.staff_id = $2
		ORDER BY t.start_date ASC
	`, businessID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var o TimeOff
		if err := rows.Scan(&o.ID, &o.StaffID, &o.StartDate, &o.EndDate, &o.Reason); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, businessID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff s
		WHERE s.id = t.staff_id AND s.business_id = $1 AND t.id = $2
	`, businessID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
