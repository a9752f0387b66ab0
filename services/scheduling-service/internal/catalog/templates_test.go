package catalog

import (
	"context"
	"testing"

	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/model"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schederr"
)

type fakeStore struct {
	templates map[string]model.SlotTemplate
	created   []model.Service
}

func (f *fakeStore) GetSlotTemplate(_ context.Context, _, templateID string) (model.SlotTemplate, bool, error) {
	t, ok := f.templates[templateID]
	return t, ok, nil
}

func (f *fakeStore) CreateService(_ context.Context, svc model.Service) error {
	f.created = append(f.created, svc)
	return nil
}

func newStore() *fakeStore {
	return &fakeStore{
		templates: map[string]model.SlotTemplate{
			"tmpl-standard": {ID: "tmpl-standard", Name: "Standard visit", SlotsNeeded: 2, DurationMins: 60, IsDefault: true},
		},
	}
}

func TestInstantiateTemplate(t *testing.T) {
	store := newStore()
	svc, err := NewExpander(store).InstantiateTemplate(context.Background(), "biz", "tmpl-standard", "Deep tissue", 1)
	if err != nil {
		t.Fatalf("InstantiateTemplate: %v", err)
	}
	if svc.ID == "" || svc.ID == "tmpl-standard" {
		t.Fatalf("service must get its own id, got %q", svc.ID)
	}
	if svc.BusinessID != "biz" || svc.Name != "Deep tissue" {
		t.Fatalf("unexpected service: %+v", svc)
	}
	if svc.DurationMins != 60 || svc.SlotsNeeded != 2 {
		t.Fatalf("footprint not copied from template: %+v", svc)
	}
	if svc.SlotTemplateID != "tmpl-standard" || !svc.IsActive {
		t.Fatalf("unexpected service: %+v", svc)
	}
	if len(store.created) != 1 {
		t.Fatalf("persisted %d services, want 1", len(store.created))
	}
}

func TestInstantiateTemplate_Defaults(t *testing.T) {
	store := newStore()
	svc, err := NewExpander(store).InstantiateTemplate(context.Background(), "biz", "tmpl-standard", "  ", 0)
	if err != nil {
		t.Fatalf("InstantiateTemplate: %v", err)
	}
	if svc.Name != "Standard visit" {
		t.Fatalf("blank name must fall back to the template's, got %q", svc.Name)
	}
	if svc.Capacity != 1 {
		t.Fatalf("capacity = %d, want 1", svc.Capacity)
	}
}

func TestInstantiateTemplate_Independent(t *testing.T) {
	store := newStore()
	exp := NewExpander(store)
	first, err := exp.InstantiateTemplate(context.Background(), "biz", "tmpl-standard", "Morning", 1)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := exp.InstantiateTemplate(context.Background(), "biz", "tmpl-standard", "Evening", 3)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("instantiations must be independent services")
	}
	if got := store.templates["tmpl-standard"]; got.Name != "Standard visit" || got.DurationMins != 60 {
		t.Fatalf("template mutated: %+v", got)
	}
}

func TestInstantiateTemplate_NotFound(t *testing.T) {
	_, err := NewExpander(newStore()).InstantiateTemplate(context.Background(), "biz", "tmpl-ghost", "X", 1)
	if code, ok := schederr.CodeOf(err); !ok || code != schederr.CodeServiceNotFound {
		t.Fatalf("expected SERVICE_NOT_FOUND, got %v", err)
	}
}
