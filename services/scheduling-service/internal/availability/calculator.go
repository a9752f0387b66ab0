package availability

import (
	"context"
	"sort"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
)

// Store is the read-only slice of the persistence layer the calculator needs.
// All reads are side-effect-free; stale data only produces a slot the booking
// transaction will correctly reject.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, bool, error)
	GetBusinessDay(ctx context.Context, businessID string, weekday int) (model.BusinessDay, bool, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, bool, error)
	GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, bool, error)
	ListActiveStaff(ctx context.Context, businessID string) ([]model.Staff, error)
	// ListNonTerminalBetween returns appointments holding capacity whose
	// interval intersects [start, end), any staff, any service.
	ListNonTerminalBetween(ctx context.Context, businessID string, start, end time.Time) ([]model.Appointment, error)
}

type Calculator struct {
	store    Store
	resolver *schedule.Resolver
	now      func() time.Time
}

func NewCalculator(store Store, resolver *schedule.Resolver) *Calculator {
	return &Calculator{store: store, resolver: resolver, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// ComputeSlots produces the ordered bookable slots for one service on one
// date. staffID narrows the result to one staff member; when empty, exclusive
// services fan out over every active staff member and class services yield
// service-level slots. Slots at or past capacity are included but flagged
// unavailable so callers can render "full". Output is ordered by start time,
// ties broken by staff id, and is idempotent for unchanged underlying data.
func (c *Calculator) ComputeSlots(ctx context.Context, businessID, serviceID string, date time.Time, staffID string) ([]Slot, error) {
	now := c.now()
	if date.Before(startOfDay(now)) {
		return nil, schederr.New(schederr.CodePastDate, "date %s is in the past", date.Format("2006-01-02"))
	}

	svc, found, err := c.store.GetService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	if !found || !svc.IsActive {
		return nil, schederr.New(schederr.CodeServiceNotFound, "service %s not found", serviceID)
	}

	biz, found, err := c.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, schederr.New(schederr.CodeServiceNotFound, "service %s not found", serviceID)
	}

	weekday := int(date.Weekday())
	day, found, err := c.store.GetBusinessDay(ctx, businessID, weekday)
	if err != nil {
		return nil, err
	}
	if !found || !day.IsOpen {
		return nil, nil
	}
	open := BusinessWindows(day)
	if len(open) == 0 {
		return nil, nil
	}

	appts, err := c.store.ListNonTerminalBetween(ctx, businessID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	anchor := biz.DayStartMinute
	needed := SlotsNeeded(svc)

	var slots []Slot
	emit := func(windows []schedule.Window, staffID string) {
		for _, m := range CandidateStarts(windows, anchor, needed, svc.DurationMins) {
			start := date.Add(time.Duration(m) * time.Minute)
			end := start.Add(time.Duration(svc.DurationMins) * time.Minute)
			remaining := svc.Capacity - c.occupancy(svc, staffID, appts, start, end)
			slots = append(slots, Slot{
				Key:       SlotKey{ServiceID: svc.ID, Weekday: date.Weekday(), StartMinute: m},
				StaffID:   staffID,
				Start:     start,
				End:       end,
				Index:     GridIndex(m, anchor),
				Remaining: remaining,
				Available: remaining > 0 && !start.Before(now),
			})
		}
	}

	switch {
	case staffID != "":
		if _, found, err := c.store.GetStaff(ctx, businessID, staffID); err != nil {
			return nil, err
		} else if !found {
			return nil, schederr.New(schederr.CodeStaffNotFound, "staff %s not found", staffID)
		}
		windows, err := c.resolver.ResolveWindows(ctx, businessID, staffID, date)
		if err != nil {
			return nil, err
		}
		emit(schedule.Intersect(open, windows), staffID)

	case svc.Exclusive():
		staff, err := c.store.ListActiveStaff(ctx, businessID)
		if err != nil {
			return nil, err
		}
		for _, s := range staff {
			windows, err := c.resolver.ResolveWindows(ctx, businessID, s.ID, date)
			if err != nil {
				// A staff member without a schedule record simply contributes
				// no windows to the aggregate view.
				if code, ok := schederr.CodeOf(err); ok && code == schederr.CodeStaffScheduleNotFound {
					continue
				}
				return nil, err
			}
			emit(schedule.Intersect(open, windows), s.ID)
		}

	default:
		// Class service with no staff binding: service-level aggregate slots
		// constrained only by business hours.
		emit(open, "")
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].StaffID < slots[j].StaffID
	})
	return slots, nil
}

// occupancy counts the appointments competing with the candidate on its
// exclusivity key: the staff member for exclusive services, the service for
// class services.
func (c *Calculator) occupancy(svc model.Service, staffID string, appts []model.Appointment, start, end time.Time) int {
	var competing []model.Appointment
	for _, a := range appts {
		if svc.Exclusive() && staffID != "" {
			if a.StaffID == staffID {
				competing = append(competing, a)
			}
			continue
		}
		if a.ServiceID == svc.ID {
			competing = append(competing, a)
		}
	}
	return CountOverlapping(competing, start, end)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
