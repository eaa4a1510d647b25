package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/opportune/internal/domain"
)

// AttentionThresholds decide when the dashboard flags an opportunity.
type AttentionThresholds struct {
	StaleDraftAfter        time.Duration
	AwaitingSelectionAfter time.Duration
	ReactivationWarning    time.Duration
	RecentLimit            int
}

// DefaultAttentionThresholds returns the default dashboard thresholds.
func DefaultAttentionThresholds() AttentionThresholds {
	return AttentionThresholds{
		StaleDraftAfter:        7 * 24 * time.Hour,
		AwaitingSelectionAfter: 3 * 24 * time.Hour,
		ReactivationWarning:    7 * 24 * time.Hour,
		RecentLimit:            5,
	}
}

func (a AttentionThresholds) withDefaults() AttentionThresholds {
	def := DefaultAttentionThresholds()
	if a.StaleDraftAfter <= 0 {
		a.StaleDraftAfter = def.StaleDraftAfter
	}
	if a.AwaitingSelectionAfter <= 0 {
		a.AwaitingSelectionAfter = def.AwaitingSelectionAfter
	}
	if a.ReactivationWarning <= 0 {
		a.ReactivationWarning = def.ReactivationWarning
	}
	if a.RecentLimit <= 0 {
		a.RecentLimit = def.RecentLimit
	}
	return a
}

// AttentionReason names why an opportunity needs a sales manager's attention.
type AttentionReason string

// AttentionReason values.
const (
	AttentionStaleDraft           AttentionReason = "stale_draft"
	AttentionAwaitingSelection    AttentionReason = "awaiting_selection"
	AttentionReactivationExpiring AttentionReason = "reactivation_expiring"
)

// AttentionItem is one flagged opportunity.
type AttentionItem struct {
	OpportunityID string          `json:"opportunity_id"`
	Title         string          `json:"title"`
	Status        domain.Status   `json:"status"`
	Reason        AttentionReason `json:"reason"`
	Since         time.Time       `json:"since"`
}

// Dashboard summarizes one sales manager's pipeline.
type Dashboard struct {
	SalesManagerID   string                  `json:"sales_manager_id"`
	GeneratedAt      time.Time               `json:"generated_at"`
	Total            int                     `json:"total"`
	CountsByStatus   map[domain.Status]int   `json:"counts_by_status"`
	CountsByPriority map[domain.Priority]int `json:"counts_by_priority"`
	TotalRevenue     float64                 `json:"total_revenue"`
	PipelineRevenue  float64                 `json:"pipeline_revenue"`
	NeedsAttention   []AttentionItem         `json:"needs_attention"`
	RecentlyUpdated  []domain.Opportunity    `json:"recently_updated"`
}

// SalesManagerDashboard builds the pipeline view of one sales manager.
// Pipeline revenue sums active opportunities only.
func (s *Service) SalesManagerDashboard(ctx context.Context, salesManagerID string) (out Dashboard, err error) {
	ctx, span := s.startSpan(ctx, "SalesManagerDashboard", "")
	defer func() { endSpan(span, err) }()

	salesManagerID = strings.TrimSpace(salesManagerID)
	if salesManagerID == "" {
		return Dashboard{}, domain.NewValidationError([]string{"sales manager id is required"})
	}
	opps, err := s.repo.SearchOpportunities(ctx, SearchFilter{SalesManagerID: salesManagerID})
	if err != nil {
		return Dashboard{}, err
	}

	now := s.clock().UTC()
	out = Dashboard{
		SalesManagerID:   salesManagerID,
		GeneratedAt:      now,
		Total:            len(opps),
		CountsByStatus:   map[domain.Status]int{},
		CountsByPriority: map[domain.Priority]int{},
		NeedsAttention:   []AttentionItem{},
	}
	for _, st := range domain.Statuses() {
		out.CountsByStatus[st] = 0
	}
	for _, p := range domain.Priorities() {
		out.CountsByPriority[p] = 0
	}
	for _, o := range opps {
		out.CountsByStatus[o.Status]++
		out.CountsByPriority[o.Priority]++
		out.TotalRevenue += o.AnnualRecurringRevenue
		if o.Status.IsActive() {
			out.PipelineRevenue += o.AnnualRecurringRevenue
		}
		if item, ok := s.attentionFor(o, now); ok {
			out.NeedsAttention = append(out.NeedsAttention, item)
		}
	}
	slices.SortFunc(out.NeedsAttention, func(a, b AttentionItem) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.OpportunityID, b.OpportunityID)
	})

	recent := slices.Clone(opps)
	slices.SortFunc(recent, func(a, b domain.Opportunity) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(recent) > s.attention.RecentLimit {
		recent = recent[:s.attention.RecentLimit]
	}
	out.RecentlyUpdated = recent
	return out, nil
}

// attentionFor flags o when it has sat in one status longer than allowed.
func (s *Service) attentionFor(o domain.Opportunity, now time.Time) (AttentionItem, bool) {
	last, ok := o.LastStatusRecord()
	if !ok {
		return AttentionItem{}, false
	}
	item := AttentionItem{
		OpportunityID: o.ID,
		Title:         o.Title,
		Status:        o.Status,
		Since:         last.At,
	}
	switch o.Status {
	case domain.StatusDraft:
		if now.Sub(last.At) > s.attention.StaleDraftAfter {
			item.Reason = AttentionStaleDraft
			return item, true
		}
	case domain.StatusMatchesFound:
		if now.Sub(last.At) > s.attention.AwaitingSelectionAfter {
			item.Reason = AttentionAwaitingSelection
			return item, true
		}
	case domain.StatusCancelled:
		if o.CanReactivate(now) && o.ReactivationDeadline.Sub(now) <= s.attention.ReactivationWarning {
			item.Reason = AttentionReactivationExpiring
			return item, true
		}
	}
	return AttentionItem{}, false
}
