// Package catalog holds the business-configuration convenience around slot
// templates. It is out of the live-booking path; it only shares the slot
// granularity vocabulary with the scheduling core.
package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

type Store interface {
	// GetSlotTemplate resolves a template visible to the business: its own, or
	// a global default.
	GetSlotTemplate(ctx context.Context, businessID, templateID string) (model.SlotTemplate, bool, error)
	CreateService(ctx context.Context, svc model.Service) error
}

type Expander struct {
	store Store
}

func NewExpander(store Store) *Expander {
	return &Expander{store: store}
}

// InstantiateTemplate copies a template's duration, footprint, and category
// onto a brand-new service. Calling it twice with the same template produces
// two independent services; the template itself is never mutated.
func (e *Expander) InstantiateTemplate(ctx context.Context, businessID, templateID, name string, capacity int) (model.Service, error) {
	tmpl, found, err := e.store.GetSlotTemplate(ctx, businessID, templateID)
	if err != nil {
		return model.Service{}, err
	}
	if !found {
		return model.Service{}, schederr.New(schederr.CodeServiceNotFound, "slot template %s not found", templateID)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = tmpl.Name
	}
	if capacity < 1 {
		capacity = 1
	}

	svc := model.Service{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		Name:           name,
		DurationMins:   tmpl.DurationMins,
		SlotsNeeded:    tmpl.SlotsNeeded,
		Capacity:       capacity,
		SlotTemplateID: tmpl.ID,
		IsActive:       true,
	}
	if err := e.store.CreateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}
