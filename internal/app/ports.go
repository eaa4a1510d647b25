package app

import (
	"context"

	"github.com/hylla/opportune/internal/domain"
)

// Repository stores opportunities. SaveOpportunity must fail with ErrConflict when the
// stored version differs from expectedVersion.
type Repository interface {
	CreateOpportunity(context.Context, domain.Opportunity) error
	GetOpportunity(context.Context, string) (domain.Opportunity, error)
	SaveOpportunity(ctx context.Context, opp domain.Opportunity, expectedVersion int64) error
	SearchOpportunities(context.Context, SearchFilter) ([]domain.Opportunity, error)
	DeleteOpportunity(context.Context, string) error
}

// SearchFilter narrows repository searches. Empty fields match everything.
type SearchFilter struct {
	Query          string
	Statuses       []domain.Status
	Priorities     []domain.Priority
	SalesManagerID string
	CustomerID     string
	// Filter is an AIP-160 expression, for repositories that support one.
	Filter string
	Limit  int
}

// CatalogSkill is one read-only skills-catalog entry.
type CatalogSkill struct {
	ID     string
	Name   string
	Type   domain.SkillType
	Active bool
}

// SkillsCatalog resolves skill ids. It returns ErrNotFound for unknown ids.
type SkillsCatalog interface {
	LookupSkill(context.Context, string) (CatalogSkill, error)
}

// EventPublisher receives lifecycle events after they are persisted.
type EventPublisher interface {
	Publish(context.Context, Event) error
}
