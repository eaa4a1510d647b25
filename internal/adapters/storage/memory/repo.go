// Package memory provides a process-local opportunity repository.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

// Repository keeps opportunities in a map guarded by a mutex. Values are deep-copied
// on the way in and out.
type Repository struct {
	mu   sync.RWMutex
	opps map[string]domain.Opportunity
}

// New constructs an empty repository.
func New() *Repository {
	return &Repository{opps: map[string]domain.Opportunity{}}
}

// CreateOpportunity stores a new opportunity.
func (r *Repository) CreateOpportunity(_ context.Context, o domain.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.opps[o.ID]; ok {
		return fmt.Errorf("opportunity %q: %w", o.ID, app.ErrAlreadyExists)
	}
	r.opps[o.ID] = o.Copy()
	return nil
}

// GetOpportunity loads one opportunity.
func (r *Repository) GetOpportunity(_ context.Context, id string) (domain.Opportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.opps[id]
	if !ok {
		return domain.Opportunity{}, app.ErrNotFound
	}
	return o.Copy(), nil
}

// SaveOpportunity replaces a stored opportunity when its version equals expectedVersion.
func (r *Repository) SaveOpportunity(_ context.Context, o domain.Opportunity, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.opps[o.ID]
	if !ok {
		return app.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("opportunity %q at version %d: %w", o.ID, expectedVersion, app.ErrConflict)
	}
	r.opps[o.ID] = o.Copy()
	return nil
}

// SearchOpportunities lists matching opportunities, most recently updated first.
// AIP filter expressions are not supported.
func (r *Repository) SearchOpportunities(_ context.Context, filter app.SearchFilter) ([]domain.Opportunity, error) {
	if strings.TrimSpace(filter.Filter) != "" {
		return nil, app.ErrUnsupportedFilter
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	r.mu.RLock()
	out := make([]domain.Opportunity, 0, len(r.opps))
	for _, o := range r.opps {
		if !matches(o, filter, query) {
			continue
		}
		out = append(out, o.Copy())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Opportunity) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteOpportunity removes one opportunity.
func (r *Repository) DeleteOpportunity(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.opps[id]; !ok {
		return app.ErrNotFound
	}
	delete(r.opps, id)
	return nil
}

func matches(o domain.Opportunity, f app.SearchFilter, query string) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, o.Priority) {
		return false
	}
	if f.SalesManagerID != "" && o.SalesManagerID != f.SalesManagerID {
		return false
	}
	if f.CustomerID != "" && o.Customer.ID != f.CustomerID {
		return false
	}
	if query == "" {
		return true
	}
	for _, field := range []string{o.Title, o.Description, o.Customer.Name} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
