package booking

import (
	"context"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

// EligibilityGate authorizes a client to enroll in a capacity-based (class)
// service. It runs before the booking transaction so an ineligible client
// never consumes a capacity slot, not even transiently. One-on-one services
// bypass the gate entirely.
type EligibilityGate struct {
	reads Reads
}

func NewEligibilityGate(reads Reads) *EligibilityGate {
	return &EligibilityGate{reads: reads}
}

func (g *EligibilityGate) Authorize(ctx context.Context, businessID, clientID string, svc model.Service) error {
	if svc.Exclusive() {
		return nil
	}
	client, found, err := g.reads.GetClient(ctx, businessID, clientID)
	if err != nil {
		return err
	}
	// An unknown client is indistinguishable from an ineligible one from the
	// caller's point of view; both are business-controlled gates.
	if !found || !client.IsEligible {
		return schederr.New(schederr.CodeClientNotEligible, "client %s is not eligible to enroll", clientID)
	}
	return nil
}
