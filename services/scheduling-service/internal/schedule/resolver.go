package schedule

import (
	"context"
	"time"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

// Store is the slice of the persistence layer the resolver needs. Implemented
// by storage.Repository in production and by fakes in tests.
type Store interface {
	// GetWeek returns the staff member's weekly plan, or found=false when no
	// schedule record was ever created for them.
	GetWeek(ctx context.Context, businessID, staffID string) (Week, bool, error)
	// HasTimeOffOn reports whether any time-off record covers the given date.
	// Time off is day-granular: one overlapping record blanks the whole day.
	HasTimeOffOn(ctx context.Context, businessID, staffID string, date time.Time) (bool, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveWindows returns the staff member's working windows for date, sorted
// by start minute. An empty slice means the staff member is not available that
// day. Fails with STAFF_SCHEDULE_NOT_FOUND when the staff member has never had
// an availability record created.
func (r *Resolver) ResolveWindows(ctx context.Context, businessID, staffID string, date time.Time) ([]Window, error) {
	week, found, err := r.store.GetWeek(ctx, businessID, staffID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, schederr.New(schederr.CodeStaffScheduleNotFound, "no availability record for staff %s", staffID)
	}

	day := week[int(date.Weekday())].Normalize()
	if !day.IsWorking {
		return nil, nil
	}

	off, err := r.store.HasTimeOffOn(ctx, businessID, staffID, date)
	if err != nil {
		return nil, err
	}
	if off {
		return nil, nil
	}
	return day.Windows, nil
}
