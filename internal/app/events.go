package app

import (
	"context"
	"time"

	"github.com/hylla/opportune/internal/domain"
)

// EventName identifies one lifecycle event.
type EventName string

// EventName values.
const (
	EventCreated       EventName = "opportunity.created"
	EventSubmitted     EventName = "opportunity.submitted"
	EventUpdated       EventName = "opportunity.updated"
	EventCancelled     EventName = "opportunity.cancelled"
	EventReactivated   EventName = "opportunity.reactivated"
	EventStatusChanged EventName = "opportunity.status_changed"
	EventDeleted       EventName = "opportunity.deleted"
)

// Event describes one persisted change to an opportunity.
type Event struct {
	Name          EventName         `json:"name"`
	OpportunityID string            `json:"opportunity_id"`
	Status        domain.Status     `json:"status"`
	ActorID       string            `json:"actor_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Data          map[string]string `json:"data,omitempty"`
}

// noopPublisher drops every event.
type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, _ Event) error { return nil }
