package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

func newOpportunity(t *testing.T, id string, now time.Time) domain.Opportunity {
	t.Helper()
	o, err := domain.NewOpportunity(domain.OpportunityInput{
		ID:             id,
		Title:          "Data platform " + id,
		Customer:       domain.Customer{ID: "c-" + id, Name: "Initech"},
		SalesManagerID: "sm-1",
		Description:    "Warehouse consolidation",
		Geo:            domain.GeoRequirement{RegionID: "us", RegionName: "US", RequiresPhysicalPresence: true},
	}, now)
	if err != nil {
		t.Fatalf("NewOpportunity() error = %v", err)
	}
	o.Version = 1
	return o
}

func TestRepositoryIsolatesStoredValues(t *testing.T) {
	ctx := context.Background()
	repo := New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	o := newOpportunity(t, "o1", now)
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}
	o.StatusHistory[0].Reason = "mutated by caller"

	loaded, err := repo.GetOpportunity(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOpportunity() error = %v", err)
	}
	if loaded.StatusHistory[0].Reason == "mutated by caller" {
		t.Fatal("expected stored ledger to be isolated from caller mutations")
	}
	loaded.StatusHistory[0].Reason = "mutated again"
	again, _ := repo.GetOpportunity(ctx, "o1")
	if again.StatusHistory[0].Reason == "mutated again" {
		t.Fatal("expected returned values to be copies")
	}
}

func TestRepositoryVersionsAndErrors(t *testing.T) {
	ctx := context.Background()
	repo := New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	o := newOpportunity(t, "o1", now)
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}
	if err := repo.CreateOpportunity(ctx, o); !errors.Is(err, app.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	o.Version = 2
	if err := repo.SaveOpportunity(ctx, o, 1); err != nil {
		t.Fatalf("SaveOpportunity() error = %v", err)
	}
	if err := repo.SaveOpportunity(ctx, o, 1); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := repo.DeleteOpportunity(ctx, "o1"); err != nil {
		t.Fatalf("DeleteOpportunity() error = %v", err)
	}
	if _, err := repo.GetOpportunity(ctx, "o1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositorySearch(t *testing.T) {
	ctx := context.Background()
	repo := New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		o := newOpportunity(t, id, now.Add(time.Duration(i)*time.Minute))
		if id == "o2" {
			if err := o.Cancel("lost", "sm-1", now.Add(time.Hour)); err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}
		}
		if err := repo.CreateOpportunity(ctx, o); err != nil {
			t.Fatalf("CreateOpportunity() error = %v", err)
		}
	}

	all, _ := repo.SearchOpportunities(ctx, app.SearchFilter{})
	if len(all) != 3 || all[0].ID != "o2" || all[1].ID != "o3" {
		t.Fatalf("unexpected order %v", all)
	}
	drafts, _ := repo.SearchOpportunities(ctx, app.SearchFilter{Statuses: []domain.Status{domain.StatusDraft}, Query: "PLATFORM O1"})
	if len(drafts) != 1 || drafts[0].ID != "o1" {
		t.Fatalf("unexpected drafts %v", drafts)
	}
	if _, err := repo.SearchOpportunities(ctx, app.SearchFilter{Filter: `status = "draft"`}); !errors.Is(err, app.ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
}
