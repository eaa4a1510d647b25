package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/opportune/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "opportune.snapshot.v1"

// Snapshot is a portable export of every stored opportunity with both ledgers.
type Snapshot struct {
	Version       string               `json:"version"`
	ExportedAt    time.Time            `json:"exported_at"`
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (snap Snapshot, err error) {
	ctx, span := s.startSpan(ctx, "ExportSnapshot", "")
	defer func() { endSpan(span, err) }()

	opps, err := s.repo.SearchOpportunities(ctx, SearchFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	snap = Snapshot{
		Version:       SnapshotVersion,
		ExportedAt:    s.clock().UTC(),
		Opportunities: make([]domain.Opportunity, 0, len(opps)),
	}
	for _, o := range opps {
		snap.Opportunities = append(snap.Opportunities, o.Copy())
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every opportunity in snap. Existing rows are replaced and
// their version advanced.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (err error) {
	ctx, span := s.startSpan(ctx, "ImportSnapshot", "")
	defer func() { endSpan(span, err) }()

	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, opp := range snap.Opportunities {
		if err := s.upsertOpportunity(ctx, opp.Copy()); err != nil {
			return fmt.Errorf("import opportunity %q: %w", opp.ID, err)
		}
	}
	return nil
}

// Validate checks snapshot version, identity and ledger consistency.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	ids := map[string]struct{}{}
	for i, o := range s.Opportunities {
		if strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("opportunities[%d].id is required", i)
		}
		if strings.TrimSpace(o.Title) == "" {
			return fmt.Errorf("opportunities[%d].title is required", i)
		}
		if !o.Status.Valid() {
			return fmt.Errorf("opportunities[%d] has unknown status %q", i, o.Status)
		}
		if o.CreatedAt.IsZero() || o.UpdatedAt.IsZero() {
			return fmt.Errorf("opportunities[%d] timestamps are required", i)
		}
		if _, exists := ids[o.ID]; exists {
			return fmt.Errorf("duplicate opportunity id: %q", o.ID)
		}
		if violations := domain.ValidateLedgers(o); len(violations) > 0 {
			return fmt.Errorf("opportunities[%d]: %w", i, domain.NewValidationError(violations))
		}
		ids[o.ID] = struct{}{}
	}
	return nil
}

// upsertOpportunity creates opp or replaces the stored row with the same id.
func (s *Service) upsertOpportunity(ctx context.Context, opp domain.Opportunity) error {
	unlock := s.locks.Lock(opp.ID)
	defer unlock()

	existing, err := s.repo.GetOpportunity(ctx, opp.ID)
	if err == nil {
		opp.Version = existing.Version + 1
		return s.repo.SaveOpportunity(ctx, opp, existing.Version)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if opp.Version < 1 {
		opp.Version = 1
	}
	return s.repo.CreateOpportunity(ctx, opp)
}

func (s *Snapshot) sort() {
	sort.Slice(s.Opportunities, func(i, j int) bool {
		a := s.Opportunities[i]
		b := s.Opportunities[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
