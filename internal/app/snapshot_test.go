package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hylla/opportune/internal/domain"
)

func TestExportImportSnapshotRoundTrip(t *testing.T) {
	src := newServiceFixture(t, ServiceConfig{}, nil)
	ctx := context.Background()
	opp := src.completeDraft(t)
	if _, err := src.svc.SubmitOpportunity(ctx, opp.ID, "sm-1"); err != nil {
		t.Fatalf("SubmitOpportunity() error = %v", err)
	}
	if _, err := src.svc.CreateOpportunity(ctx, createInput()); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}

	snap, err := src.svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion || len(snap.Opportunities) != 2 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	dst := newServiceFixture(t, ServiceConfig{}, nil)
	if err := dst.svc.ImportSnapshot(ctx, decoded); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	got, err := dst.svc.OpportunityHistory(ctx, opp.ID)
	if err != nil {
		t.Fatalf("OpportunityHistory() error = %v", err)
	}
	if len(got.Status) != 2 || got.Status[1].Status != domain.StatusSubmitted || len(got.Changes) != 3 {
		t.Fatalf("unexpected imported history %#v", got)
	}

	// Importing again replaces rows and advances their version.
	before, _ := dst.repo.GetOpportunity(ctx, opp.ID)
	if err := dst.svc.ImportSnapshot(ctx, decoded); err != nil {
		t.Fatalf("second ImportSnapshot() error = %v", err)
	}
	after, _ := dst.repo.GetOpportunity(ctx, opp.ID)
	if after.Version != before.Version+1 {
		t.Fatalf("expected version %d, got %d", before.Version+1, after.Version)
	}
}

func TestSnapshotValidate(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	base, err := domain.NewOpportunity(domain.OpportunityInput{
		ID:             "o1",
		Title:          "Data platform",
		Customer:       domain.Customer{ID: "c", Name: "C"},
		SalesManagerID: "sm-1",
		Description:    "Warehouse",
		Geo:            domain.GeoRequirement{RegionID: "us", RegionName: "US", AllowsRemoteWork: true},
	}, now)
	if err != nil {
		t.Fatalf("NewOpportunity() error = %v", err)
	}

	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{name: "version", snap: Snapshot{Version: "other"}, want: "unsupported snapshot version"},
		{name: "duplicate", snap: Snapshot{Opportunities: []domain.Opportunity{base, base}}, want: "duplicate opportunity id"},
		{name: "status", snap: Snapshot{Opportunities: []domain.Opportunity{func() domain.Opportunity {
			o := base.Copy()
			o.Status = "archived"
			return o
		}()}}, want: "unknown status"},
		{name: "ledger", snap: Snapshot{Opportunities: []domain.Opportunity{func() domain.Opportunity {
			o := base.Copy()
			o.StatusHistory = nil
			return o
		}()}}, want: "validation failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.snap.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want %q", err, tc.want)
			}
		})
	}
}
