package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

var problemText = strings.Repeat("Ageing on-prem billing stack needs a phased move to managed cloud services. ", 3)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "opportune.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func newOpportunity(t *testing.T, id, salesManagerID string, now time.Time) domain.Opportunity {
	t.Helper()
	o, err := domain.NewOpportunity(domain.OpportunityInput{
		ID:                     id,
		Title:                  "Cloud migration " + id,
		Customer:               domain.Customer{ID: "cust-" + id, Name: "Acme " + id},
		SalesManagerID:         salesManagerID,
		Description:            "Lift and shift billing",
		Priority:               domain.PriorityHigh,
		AnnualRecurringRevenue: 120000.5,
		Geo:                    domain.GeoRequirement{RegionID: "eu", RegionName: "Europe", AllowsRemoteWork: true},
	}, now)
	if err != nil {
		t.Fatalf("NewOpportunity() error = %v", err)
	}
	o.Version = 1
	return o
}

func fillRequirements(t *testing.T, o *domain.Opportunity, now time.Time) {
	t.Helper()
	if err := o.AttachProblemStatement(domain.ProblemStatementInput{
		Content: problemText,
		Attachments: []domain.Attachment{{
			ID: "a1", FileName: "brief.pdf", ContentType: "application/pdf", SizeBytes: 2048, UploadedAt: now,
		}},
	}, "sm-1", "", now); err != nil {
		t.Fatalf("AttachProblemStatement() error = %v", err)
	}
	if err := o.AddSkillRequirement(domain.SkillRequirementInput{
		SkillID: "sk-go", SkillName: "Go", Type: domain.SkillTypeTechnical,
		Importance: domain.ImportanceMustHave, MinimumProficiency: domain.ProficiencyExpert,
	}, "sm-1", "", now); err != nil {
		t.Fatalf("AddSkillRequirement() error = %v", err)
	}
	if err := o.SetTimelineRequirement(domain.TimelineInput{
		Start:        now.AddDate(0, 1, 0),
		End:          now.AddDate(0, 4, 0),
		SpecificDays: []time.Time{now.AddDate(0, 2, 0)},
	}, "sm-1", "", now); err != nil {
		t.Fatalf("SetTimelineRequirement() error = %v", err)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return string(raw)
}

func TestRepository_OpportunityRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	o := newOpportunity(t, "o1", "sm-1", now)
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}
	if err := repo.CreateOpportunity(ctx, o); !errors.Is(err, app.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	work := o.Copy()
	fillRequirements(t, &work, now.Add(time.Minute))
	if err := work.Submit("sm-1", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := work.Cancel("customer paused", "sm-1", now.Add(3*time.Minute)); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	work.Version = 2
	if err := repo.SaveOpportunity(ctx, work, 1); err != nil {
		t.Fatalf("SaveOpportunity() error = %v", err)
	}

	loaded, err := repo.GetOpportunity(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOpportunity() error = %v", err)
	}
	if got, want := mustJSON(t, loaded), mustJSON(t, work); got != want {
		t.Fatalf("round trip mismatch\n got: %s\nwant: %s", got, want)
	}
	if violations := domain.ValidateLedgers(loaded); len(violations) != 0 {
		t.Fatalf("unexpected ledger violations %v", violations)
	}
	if !loaded.CanReactivate(now.Add(time.Hour)) {
		t.Fatal("expected loaded opportunity to be reactivatable")
	}
}

func TestRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	o := newOpportunity(t, "o1", "sm-1", now)
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}

	first := o.Copy()
	if err := first.ApplyUpdate(domain.TitleUpdate{Title: "First"}, "sm-1", "", now.Add(time.Second)); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	first.Version = 2
	if err := repo.SaveOpportunity(ctx, first, 1); err != nil {
		t.Fatalf("SaveOpportunity(first) error = %v", err)
	}

	second := o.Copy()
	if err := second.ApplyUpdate(domain.TitleUpdate{Title: "Second"}, "sm-2", "", now.Add(2*time.Second)); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	second.Version = 2
	if err := repo.SaveOpportunity(ctx, second, 1); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	loaded, _ := repo.GetOpportunity(ctx, "o1")
	if loaded.Title != "First" || len(loaded.Changes) != 1 || loaded.Changes[0].ActorID != "sm-1" {
		t.Fatalf("expected the losing write to leave no trace, got %#v", loaded)
	}

	missing := newOpportunity(t, "ghost", "sm-1", now)
	if err := repo.SaveOpportunity(ctx, missing, 1); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_SearchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, seed := range []struct {
		id       string
		manager  string
		priority domain.Priority
		revenue  float64
	}{
		{id: "o1", manager: "sm-1", priority: domain.PriorityHigh, revenue: 50000},
		{id: "o2", manager: "sm-1", priority: domain.PriorityLow, revenue: 250000},
		{id: "o3", manager: "sm-2", priority: domain.PriorityCritical, revenue: 900000},
	} {
		o := newOpportunity(t, seed.id, seed.manager, now.Add(time.Duration(i)*time.Hour))
		o.Priority = seed.priority
		o.AnnualRecurringRevenue = seed.revenue
		if err := repo.CreateOpportunity(ctx, o); err != nil {
			t.Fatalf("CreateOpportunity(%s) error = %v", seed.id, err)
		}
	}

	ids := func(opps []domain.Opportunity) string {
		out := make([]string, 0, len(opps))
		for _, o := range opps {
			out = append(out, o.ID)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name   string
		filter app.SearchFilter
		want   string
	}{
		{name: "all newest first", filter: app.SearchFilter{}, want: "o3,o2,o1"},
		{name: "sales manager", filter: app.SearchFilter{SalesManagerID: "sm-1"}, want: "o2,o1"},
		{name: "priority", filter: app.SearchFilter{Priorities: []domain.Priority{domain.PriorityLow, domain.PriorityCritical}}, want: "o3,o2"},
		{name: "query", filter: app.SearchFilter{Query: "ACME O2"}, want: "o2"},
		{name: "limit", filter: app.SearchFilter{Limit: 1}, want: "o3"},
		{name: "aip revenue", filter: app.SearchFilter{Filter: `annual_recurring_revenue >= 250000.0 AND sales_manager_id = "sm-1"`}, want: "o2"},
		{name: "aip or", filter: app.SearchFilter{Filter: `priority = "high" OR priority = "critical"`}, want: "o3,o1"},
		{name: "aip has", filter: app.SearchFilter{Filter: `customer_name:"acme o3"`}, want: "o3"},
		{name: "aip timestamp", filter: app.SearchFilter{Filter: `created_at > timestamp("2026-03-02T09:30:00Z")`}, want: "o3,o2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.SearchOpportunities(ctx, tc.filter)
			if err != nil {
				t.Fatalf("SearchOpportunities() error = %v", err)
			}
			if ids(got) != tc.want {
				t.Fatalf("SearchOpportunities() = %s, want %s", ids(got), tc.want)
			}
		})
	}

	if _, err := repo.SearchOpportunities(ctx, app.SearchFilter{Filter: `budget > 3`}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown filter field to fail validation, got %v", err)
	}

	if err := repo.DeleteOpportunity(ctx, "o1"); err != nil {
		t.Fatalf("DeleteOpportunity() error = %v", err)
	}
	if _, err := repo.GetOpportunity(ctx, "o1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteOpportunity(ctx, "o1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
	var orphans int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM status_records WHERE opportunity_id = 'o1'`).Scan(&orphans); err != nil {
		t.Fatalf("count status records error = %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected ledger rows removed with the opportunity, got %d", orphans)
	}
}

func TestRepository_LedgerRowsAreNotRewritten(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	o := newOpportunity(t, "o1", "sm-1", now)
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}

	tampered := o.Copy()
	tampered.StatusHistory[0].Reason = "rewritten"
	tampered.Version = 2
	if err := repo.SaveOpportunity(ctx, tampered, 1); err != nil {
		t.Fatalf("SaveOpportunity() error = %v", err)
	}
	loaded, _ := repo.GetOpportunity(ctx, "o1")
	if loaded.StatusHistory[0].Reason != o.StatusHistory[0].Reason {
		t.Fatalf("expected stored status record unchanged, got %q", loaded.StatusHistory[0].Reason)
	}
}

func TestOpenInMemory(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, err := repo.GetOpportunity(context.Background(), "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
