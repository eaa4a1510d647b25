// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

// ErrInvalidRequest reports malformed or rejected input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrNotAllowed reports an operation refused in the opportunity's current status.
var ErrNotAllowed = errors.New("operation not allowed")

// ErrExpired reports a reactivation attempted after its deadline.
var ErrExpired = errors.New("reactivation window expired")

// ErrConflict reports a concurrent write or a taken id.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a dependency that is not configured or not ready.
var ErrUnavailable = errors.New("service unavailable")

// OpportunityService is the surface both transports call.
type OpportunityService interface {
	ListOpportunities(context.Context, ListRequest) ([]domain.Opportunity, error)
	GetOpportunity(context.Context, string) (domain.Opportunity, error)
	CreateOpportunity(context.Context, CreateOpportunityRequest) (domain.Opportunity, error)
	AttachProblemStatement(context.Context, string, ProblemStatementRequest) (domain.Opportunity, error)
	AddSkillRequirement(context.Context, string, SkillRequest) (domain.Opportunity, error)
	SetTimelineRequirement(context.Context, string, TimelineRequest) (domain.Opportunity, error)
	SubmitOpportunity(context.Context, string) (domain.Opportunity, error)
	UpdateOpportunity(context.Context, string, UpdateRequest) (domain.Opportunity, error)
	CancelOpportunity(context.Context, string, CancelRequest) (domain.Opportunity, error)
	ReactivateOpportunity(context.Context, string) (domain.Opportunity, error)
	CloneOpportunity(context.Context, string, CloneRequest) (domain.Opportunity, error)
	StartMatching(context.Context, string) (domain.Opportunity, error)
	RecordMatchesFound(context.Context, string) (domain.Opportunity, error)
	SelectArchitect(context.Context, string, ArchitectRequest) (domain.Opportunity, error)
	CompleteOpportunity(context.Context, string) (domain.Opportunity, error)
	DeleteOpportunity(context.Context, string) error
	OpportunityHistory(context.Context, string) (app.History, error)
	MatchingCriteria(context.Context, string) (domain.MatchingCriteria, error)
	Dashboard(context.Context, string) (app.Dashboard, error)
	Ready(context.Context) error
}

// Pinger checks backing storage health.
type Pinger interface {
	Ping(context.Context) error
}

// GeoRequest is the wire shape of a geographic requirement.
type GeoRequest struct {
	RegionID                 string `json:"region_id"`
	RegionName               string `json:"region_name"`
	RequiresPhysicalPresence bool   `json:"requires_physical_presence"`
	AllowsRemoteWork         bool   `json:"allows_remote_work"`
}

// CustomerRequest is the wire shape of a customer reference.
type CustomerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateOpportunityRequest stores transport input for opportunity creation.
type CreateOpportunityRequest struct {
	Title                  string          `json:"title"`
	Customer               CustomerRequest `json:"customer"`
	SalesManagerID         string          `json:"sales_manager_id"`
	Description            string          `json:"description"`
	Priority               string          `json:"priority,omitempty"`
	AnnualRecurringRevenue float64         `json:"annual_recurring_revenue"`
	Geo                    GeoRequest      `json:"geo"`
}

// AttachmentRequest is attachment metadata; the file itself lives elsewhere.
type AttachmentRequest struct {
	ID          string `json:"id,omitempty"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url,omitempty"`
}

type ProblemStatementRequest struct {
	Content     string              `json:"content"`
	Attachments []AttachmentRequest `json:"attachments,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

type SkillRequest struct {
	SkillID            string `json:"skill_id"`
	SkillName          string `json:"skill_name"`
	Type               string `json:"type"`
	Importance         string `json:"importance"`
	MinimumProficiency string `json:"minimum_proficiency"`
	Reason             string `json:"reason,omitempty"`
}

// TimelineRequest accepts RFC3339 timestamps or YYYY-MM-DD dates.
type TimelineRequest struct {
	Start        string   `json:"start"`
	End          string   `json:"end"`
	SpecificDays []string `json:"specific_days,omitempty"`
	Flexible     bool     `json:"flexible"`
	Reason       string   `json:"reason,omitempty"`
}

// UpdateRequest carries optional field replacements applied as one unit.
type UpdateRequest struct {
	Title                  *string          `json:"title,omitempty"`
	Description            *string          `json:"description,omitempty"`
	Priority               *string          `json:"priority,omitempty"`
	AnnualRecurringRevenue *float64         `json:"annual_recurring_revenue,omitempty"`
	Geo                    *GeoRequest      `json:"geo,omitempty"`
	Customer               *CustomerRequest `json:"customer,omitempty"`
	Reason                 string           `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CloneRequest struct {
	Customer       CustomerRequest `json:"customer"`
	SalesManagerID string          `json:"sales_manager_id,omitempty"`
}

type ArchitectRequest struct {
	ArchitectID string `json:"architect_id"`
}

// ListRequest narrows an opportunity search.
type ListRequest struct {
	Query          string   `json:"query,omitempty"`
	Statuses       []string `json:"statuses,omitempty"`
	Priorities     []string `json:"priorities,omitempty"`
	SalesManagerID string   `json:"sales_manager_id,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	Filter         string   `json:"filter,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}
