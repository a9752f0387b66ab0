package model

import "time"

// Status is the lifecycle state of an appointment. Terminal states never
// re-open and never count against capacity or exclusivity checks.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusAccepted  Status = "ACCEPTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// NonTerminalStatuses is the set of statuses that hold capacity. Keep in sync
// with the partial indexes in deploy/postgres/init.sql.
var NonTerminalStatuses = []Status{StatusPending, StatusConfirmed, StatusAccepted}

type Appointment struct {
	ID           string
	BusinessID   string
	ServiceID    string
	StaffID      string // empty for unassigned class services
	ClientID     string
	PatternID    string // empty unless generated by a recurring pattern
	ScheduledFor time.Time
	DurationMins int // copied from the service at booking time
	Status       Status
	Notes        string
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
}

func (a *Appointment) End() time.Time {
	return a.ScheduledFor.Add(time.Duration(a.DurationMins) * time.Minute)
}
