// Package recurrence expands a recurring appointment pattern into concrete
// booking attempts. Expansion is pure; applying a pattern fans out one booking
// transaction per date, sequentially, and a conflict on one date never rolls
// back the dates already committed.
package recurrence

import (
	"context"
	"log/slog"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/booking"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// DefaultHorizon bounds open-ended patterns: one year past the start date.
const DefaultHorizon = 1 // years

type Pattern struct {
	ID         string
	BusinessID string
	ServiceID  string
	StaffID    string
	ClientID   string
	Frequency  Frequency
	Interval   int
	DaysOfWeek []time.Weekday // empty = no filter
	StartDate  time.Time      // midnight of the first candidate date
	EndDate    time.Time      // zero = default horizon
}

// ExpandDates returns the candidate dates of the pattern, both bounds
// inclusive. A non-positive interval or an unrecognized frequency fails fast
// with INVALID_RECURRENCE; the loop can never run unbounded because every
// step strictly advances the cursor and the horizon is finite.
func ExpandDates(p Pattern) ([]time.Time, error) {
	if p.Interval < 1 {
		return nil, schederr.New(schederr.CodeInvalidRecurrence, "interval must be >= 1, got %d", p.Interval)
	}
	step, err := stepper(p.Frequency, p.Interval)
	if err != nil {
		return nil, err
	}
	if p.StartDate.IsZero() {
		return nil, schederr.New(schederr.CodeInvalidRecurrence, "start date is required")
	}

	end := p.EndDate
	if end.IsZero() {
		end = p.StartDate.AddDate(DefaultHorizon, 0, 0)
	}
	if end.Before(p.StartDate) {
		return nil, schederr.New(schederr.CodeInvalidRecurrence, "end date precedes start date")
	}

	filter := map[time.Weekday]bool{}
	for _, wd := range p.DaysOfWeek {
		filter[wd] = true
	}

	var dates []time.Time
	for d := p.StartDate; !d.After(end); d = step(d) {
		if len(filter) > 0 && !filter[d.Weekday()] {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func stepper(f Frequency, interval int) (func(time.Time) time.Time, error) {
	switch f {
	case Daily:
		return func(d time.Time) time.Time { return d.AddDate(0, 0, interval) }, nil
	case Weekly:
		return func(d time.Time) time.Time { return d.AddDate(0, 0, 7*interval) }, nil
	case Monthly:
		return func(d time.Time) time.Time { return d.AddDate(0, interval, 0) }, nil
	case Yearly:
		return func(d time.Time) time.Time { return d.AddDate(interval, 0, 0) }, nil
	default:
		return nil, schederr.New(schederr.CodeInvalidRecurrence, "unrecognized frequency %q", f)
	}
}

// Template carries the per-occurrence booking fields: the time of day each
// occurrence starts at, and free-text notes.
type Template struct {
	StartMinute int
	Notes       string
}

// Attempt is the outcome of one expanded date.
type Attempt struct {
	Date          time.Time
	AppointmentID string
	Code          schederr.Code // empty on success
}

type Result struct {
	Attempts []Attempt
	Created  int
}

type Expander struct {
	booker *booking.Booker
	logger *slog.Logger
}

func NewExpander(booker *booking.Booker, logger *slog.Logger) *Expander {
	return &Expander{booker: booker, logger: logger}
}

// Apply expands the pattern and submits each date through the booking
// transaction. Attempts run sequentially and independently: a conflict at
// date N leaves dates 1..N-1 committed and is reported, not retried.
// Infrastructure errors abort the fan-out mid-way and surface to the caller.
func (e *Expander) Apply(ctx context.Context, p Pattern, tmpl Template) (Result, error) {
	dates, err := ExpandDates(p)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, d := range dates {
		appt, err := e.booker.Book(ctx, booking.Request{
			BusinessID:   p.BusinessID,
			ServiceID:    p.ServiceID,
			StaffID:      p.StaffID,
			ClientID:     p.ClientID,
			ScheduledFor: d.Add(time.Duration(tmpl.StartMinute) * time.Minute),
			Notes:        tmpl.Notes,
			PatternID:    p.ID,
		})
		if err != nil {
			code, expected := schederr.CodeOf(err)
			if !expected {
				return res, err
			}
			e.logger.Info("recurrence date skipped", "pattern_id", p.ID, "date", d.Format("2006-01-02"), "code", string(code))
			res.Attempts = append(res.Attempts, Attempt{Date: d, Code: code})
			continue
		}
		res.Attempts = append(res.Attempts, Attempt{Date: d, AppointmentID: appt.ID})
		res.Created++
	}
	return res, nil
}
