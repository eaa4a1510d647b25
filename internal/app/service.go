package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/opportune/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by the application service.
const tracerName = "github.com/hylla/opportune/internal/app"

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Matching    domain.MatchingPolicy
	Attachments AttachmentPolicy
	Attention   AttentionThresholds
	// OnPublishError observes events the publisher rejected. The saved state stands.
	OnPublishError func(Event, error)
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service orchestrates opportunity operations against a repository.
type Service struct {
	repo           Repository
	catalog        SkillsCatalog
	publisher      EventPublisher
	idGen          IDGenerator
	clock          Clock
	matching       domain.MatchingPolicy
	attachments    AttachmentPolicy
	attention      AttentionThresholds
	onPublishError func(Event, error)
	locks          *keyedLocker
	tracer         trace.Tracer
}

// NewService constructs a new value for this package. catalog and publisher may be nil.
func NewService(repo Repository, catalog SkillsCatalog, publisher EventPublisher, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if cfg.Matching == (domain.MatchingPolicy{}) {
		cfg.Matching = domain.DefaultMatchingPolicy()
	}
	if cfg.Attachments.MaxBytes <= 0 {
		cfg.Attachments = DefaultAttachmentPolicy()
	}
	cfg.Attention = cfg.Attention.withDefaults()
	if cfg.OnPublishError == nil {
		cfg.OnPublishError = func(Event, error) {}
	}

	return &Service{
		repo:           repo,
		catalog:        catalog,
		publisher:      publisher,
		idGen:          idGen,
		clock:          clock,
		matching:       cfg.Matching,
		attachments:    cfg.Attachments,
		attention:      cfg.Attention,
		onPublishError: cfg.OnPublishError,
		locks:          newKeyedLocker(),
		tracer:         otel.Tracer(tracerName),
	}
}

// CreateOpportunityInput holds input values for create opportunity operations.
type CreateOpportunityInput struct {
	Title                  string
	Customer               domain.Customer
	SalesManagerID         string
	Description            string
	Priority               domain.Priority
	AnnualRecurringRevenue float64
	Geo                    domain.GeoRequirement
	ActorID                string
}

// CreateOpportunity creates a Draft opportunity.
func (s *Service) CreateOpportunity(ctx context.Context, in CreateOpportunityInput) (opp domain.Opportunity, err error) {
	ctx, span := s.startSpan(ctx, "CreateOpportunity", "")
	defer func() { endSpan(span, err) }()

	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		if actor, ok := MutationActorFromContext(ctx); ok {
			actorID = actor.ActorID
		}
	}
	now := s.clock()
	opp, err = domain.NewOpportunity(domain.OpportunityInput{
		ID:                     s.idGen(),
		Title:                  in.Title,
		Customer:               in.Customer,
		SalesManagerID:         in.SalesManagerID,
		Description:            in.Description,
		Priority:               in.Priority,
		AnnualRecurringRevenue: in.AnnualRecurringRevenue,
		Geo:                    in.Geo,
		CreatedBy:              actorID,
	}, now)
	if err != nil {
		return domain.Opportunity{}, err
	}
	opp.Version = 1
	if err := s.repo.CreateOpportunity(ctx, opp); err != nil {
		return domain.Opportunity{}, err
	}
	record, _ := opp.LastStatusRecord()
	s.publish(ctx, Event{
		Name:          EventCreated,
		OpportunityID: opp.ID,
		Status:        opp.Status,
		ActorID:       record.ActorID,
		OccurredAt:    record.At,
		Data:          map[string]string{"title": opp.Title, "sales_manager_id": opp.SalesManagerID},
	})
	return opp, nil
}

// GetOpportunity loads one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Opportunity{}, domain.ErrInvalidID
	}
	return s.repo.GetOpportunity(ctx, id)
}

// AttachProblemStatementInput holds input values for attaching a problem statement.
type AttachProblemStatementInput struct {
	OpportunityID string
	Content       string
	Attachments   []domain.Attachment
	ActorID       string
	Reason        string
}

// AttachProblemStatement attaches the single problem statement of an opportunity.
func (s *Service) AttachProblemStatement(ctx context.Context, in AttachProblemStatementInput) (domain.Opportunity, error) {
	if err := s.attachments.Check(in.Attachments); err != nil {
		return domain.Opportunity{}, err
	}
	return s.mutate(ctx, "AttachProblemStatement", in.OpportunityID, in.ActorID, EventUpdated, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.AttachProblemStatement(domain.ProblemStatementInput{
			Content:     in.Content,
			Attachments: in.Attachments,
		}, actorID, in.Reason, now)
	})
}

// AddSkillRequirementInput holds input values for adding a skill requirement.
type AddSkillRequirementInput struct {
	OpportunityID string
	Skill         domain.SkillRequirementInput
	ActorID       string
	Reason        string
}

// AddSkillRequirement verifies the skill against the catalog and appends it.
func (s *Service) AddSkillRequirement(ctx context.Context, in AddSkillRequirementInput) (domain.Opportunity, error) {
	if err := s.checkCatalogSkill(ctx, in.Skill.SkillID); err != nil {
		return domain.Opportunity{}, err
	}
	return s.mutate(ctx, "AddSkillRequirement", in.OpportunityID, in.ActorID, EventUpdated, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.AddSkillRequirement(in.Skill, actorID, in.Reason, now)
	})
}

// SetTimelineRequirementInput holds input values for setting a timeline.
type SetTimelineRequirementInput struct {
	OpportunityID string
	Timeline      domain.TimelineInput
	ActorID       string
	Reason        string
}

// SetTimelineRequirement sets or, while Draft, replaces the timeline.
func (s *Service) SetTimelineRequirement(ctx context.Context, in SetTimelineRequirementInput) (domain.Opportunity, error) {
	return s.mutate(ctx, "SetTimelineRequirement", in.OpportunityID, in.ActorID, EventUpdated, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.SetTimelineRequirement(in.Timeline, actorID, in.Reason, now)
	})
}

// UpdateOpportunityInput holds typed field updates applied as one unit.
type UpdateOpportunityInput struct {
	OpportunityID string
	Updates       []domain.FieldUpdate
	ActorID       string
	Reason        string
}

// UpdateOpportunity applies every update or none of them.
func (s *Service) UpdateOpportunity(ctx context.Context, in UpdateOpportunityInput) (domain.Opportunity, error) {
	if len(in.Updates) == 0 {
		return domain.Opportunity{}, domain.NewValidationError([]string{"at least one field update is required"})
	}
	return s.mutate(ctx, "UpdateOpportunity", in.OpportunityID, in.ActorID, EventUpdated, func(o *domain.Opportunity, actorID string, now time.Time) error {
		for _, u := range in.Updates {
			if err := o.ApplyUpdate(u, actorID, in.Reason, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// SubmitOpportunity moves a complete Draft to Submitted.
func (s *Service) SubmitOpportunity(ctx context.Context, id, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "SubmitOpportunity", id, actorID, EventSubmitted, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.Submit(actorID, now)
	})
}

// CancelOpportunity cancels any non-terminal opportunity.
func (s *Service) CancelOpportunity(ctx context.Context, id, reason, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "CancelOpportunity", id, actorID, EventCancelled, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.Cancel(reason, actorID, now)
	})
}

// ReactivateOpportunity restores a cancelled opportunity within its deadline.
func (s *Service) ReactivateOpportunity(ctx context.Context, id, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "ReactivateOpportunity", id, actorID, EventReactivated, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.Reactivate(actorID, now)
	})
}

// StartMatching records that the external matching engine picked the opportunity up.
func (s *Service) StartMatching(ctx context.Context, id, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "StartMatching", id, actorID, EventStatusChanged, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.StartMatching(actorID, now)
	})
}

// RecordMatchesFound records that candidate architects were found.
func (s *Service) RecordMatchesFound(ctx context.Context, id, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "RecordMatchesFound", id, actorID, EventStatusChanged, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.RecordMatchesFound(actorID, now)
	})
}

// SelectArchitect records the chosen architect.
func (s *Service) SelectArchitect(ctx context.Context, id, architectID, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "SelectArchitect", id, actorID, EventStatusChanged, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.SelectArchitect(architectID, actorID, now)
	})
}

// CompleteOpportunity closes the engagement.
func (s *Service) CompleteOpportunity(ctx context.Context, id, actorID string) (domain.Opportunity, error) {
	return s.mutate(ctx, "CompleteOpportunity", id, actorID, EventStatusChanged, func(o *domain.Opportunity, actorID string, now time.Time) error {
		return o.Complete(actorID, now)
	})
}

// CloneOpportunityInput holds input values for cloning an opportunity.
type CloneOpportunityInput struct {
	SourceID       string
	Customer       domain.Customer
	SalesManagerID string
	ActorID        string
}

// CloneOpportunity creates a new Draft from an existing opportunity.
func (s *Service) CloneOpportunity(ctx context.Context, in CloneOpportunityInput) (opp domain.Opportunity, err error) {
	ctx, span := s.startSpan(ctx, "CloneOpportunity", in.SourceID)
	defer func() { endSpan(span, err) }()

	actorID, err := resolveActorID(ctx, in.ActorID)
	if err != nil {
		return domain.Opportunity{}, err
	}
	src, err := s.GetOpportunity(ctx, in.SourceID)
	if err != nil {
		return domain.Opportunity{}, err
	}
	opp, err = src.Clone(domain.CloneInput{
		ID:             s.idGen(),
		Customer:       in.Customer,
		SalesManagerID: in.SalesManagerID,
		ActorID:        actorID,
	}, s.clock())
	if err != nil {
		return domain.Opportunity{}, err
	}
	opp.Version = 1
	if err := s.repo.CreateOpportunity(ctx, opp); err != nil {
		return domain.Opportunity{}, err
	}
	record, _ := opp.LastStatusRecord()
	s.publish(ctx, Event{
		Name:          EventCreated,
		OpportunityID: opp.ID,
		Status:        opp.Status,
		ActorID:       actorID,
		OccurredAt:    record.At,
		Data:          map[string]string{"title": opp.Title, "source_id": src.ID},
	})
	return opp, nil
}

// DeleteOpportunity removes a Draft opportunity from storage.
func (s *Service) DeleteOpportunity(ctx context.Context, id, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteOpportunity", id)
	defer func() { endSpan(span, err) }()

	actorID, err = resolveActorID(ctx, actorID)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(id)
	defer unlock()

	opp, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return err
	}
	if !opp.CanDelete() {
		return &domain.NotAllowedError{Operation: "delete", Status: opp.Status}
	}
	if err := s.repo.DeleteOpportunity(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, Event{
		Name:          EventDeleted,
		OpportunityID: id,
		Status:        opp.Status,
		ActorID:       actorID,
		OccurredAt:    s.clock().UTC(),
	})
	return nil
}

// SearchOpportunities lists opportunities matching filter.
func (s *Service) SearchOpportunities(ctx context.Context, filter SearchFilter) (out []domain.Opportunity, err error) {
	ctx, span := s.startSpan(ctx, "SearchOpportunities", "")
	defer func() { endSpan(span, err) }()

	filter, err = normalizeSearchFilter(filter)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchOpportunities(ctx, filter)
}

// History is the ordered ledger view of one opportunity.
type History struct {
	OpportunityID string                `json:"opportunity_id"`
	Status        []domain.StatusRecord `json:"status"`
	Changes       []domain.ChangeRecord `json:"changes"`
}

// OpportunityHistory returns both ledgers, oldest first.
func (s *Service) OpportunityHistory(ctx context.Context, id string) (History, error) {
	opp, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return History{}, err
	}
	out := History{
		OpportunityID: opp.ID,
		Status:        opp.History(),
		Changes:       opp.ChangeLog(),
	}
	if out.Changes == nil {
		out.Changes = []domain.ChangeRecord{}
	}
	return out, nil
}

// PrepareMatchingCriteria builds the matching-engine payload for one opportunity.
func (s *Service) PrepareMatchingCriteria(ctx context.Context, id string) (domain.MatchingCriteria, error) {
	opp, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return domain.MatchingCriteria{}, err
	}
	return domain.PrepareMatchingCriteria(opp, s.matching, s.clock())
}

// mutate runs fn against a copy of the stored opportunity under the per-id lock and
// saves the result with an optimistic version check.
func (s *Service) mutate(ctx context.Context, op, id, actorID string, event EventName, fn func(o *domain.Opportunity, actorID string, now time.Time) error) (out domain.Opportunity, err error) {
	ctx, span := s.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	actorID, err = resolveActorID(ctx, actorID)
	if err != nil {
		return domain.Opportunity{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Opportunity{}, domain.ErrInvalidID
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	stored, err := s.repo.GetOpportunity(ctx, id)
	if err != nil {
		return domain.Opportunity{}, err
	}
	work := stored.Copy()
	if err := fn(&work, actorID, s.clock()); err != nil {
		return domain.Opportunity{}, err
	}
	if len(work.StatusHistory) == len(stored.StatusHistory) && len(work.Changes) == len(stored.Changes) {
		// Nothing was recorded, so there is nothing to save or announce.
		return stored, nil
	}

	expected := work.Version
	work.Version++
	if err := s.repo.SaveOpportunity(ctx, work, expected); err != nil {
		return domain.Opportunity{}, err
	}

	data := map[string]string{"operation": op}
	if stored.Status != work.Status {
		data["previous_status"] = string(stored.Status)
	}
	if n := len(work.Changes); n > len(stored.Changes) {
		fields := make([]string, 0, n-len(stored.Changes))
		for _, rec := range work.Changes[len(stored.Changes):] {
			if !slices.Contains(fields, rec.Field) {
				fields = append(fields, rec.Field)
			}
		}
		data["fields"] = strings.Join(fields, ",")
	}
	s.publish(ctx, Event{
		Name:          event,
		OpportunityID: work.ID,
		Status:        work.Status,
		ActorID:       actorID,
		OccurredAt:    work.UpdatedAt,
		Data:          data,
	})
	return work, nil
}

// checkCatalogSkill verifies a skill id against the catalog when one is configured.
func (s *Service) checkCatalogSkill(ctx context.Context, skillID string) error {
	skillID = strings.TrimSpace(skillID)
	if s.catalog == nil || skillID == "" {
		return nil
	}
	skill, err := s.catalog.LookupSkill(ctx, skillID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("skill %q in skills catalog: %w", skillID, ErrNotFound)
		}
		return err
	}
	if !skill.Active {
		return domain.NewValidationError([]string{fmt.Sprintf("skill %q is not active", skillID)})
	}
	return nil
}

// publish delivers one event and reports publisher failures to the configured observer.
func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.onPublishError(ev, err)
	}
}

// startSpan opens one tracing span for a service operation.
func (s *Service) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("opportune.operation", op)}
	if id = strings.TrimSpace(id); id != "" {
		attrs = append(attrs, attribute.String("opportune.opportunity_id", id))
	}
	return s.tracer.Start(ctx, "app."+op, trace.WithAttributes(attrs...))
}

// endSpan records err on span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// normalizeSearchFilter trims filter values and validates enum members.
func normalizeSearchFilter(f SearchFilter) (SearchFilter, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.SalesManagerID = strings.TrimSpace(f.SalesManagerID)
	f.CustomerID = strings.TrimSpace(f.CustomerID)
	f.Filter = strings.TrimSpace(f.Filter)
	f.Statuses = slices.Clone(f.Statuses)
	f.Priorities = slices.Clone(f.Priorities)
	var violations []string
	for i, st := range f.Statuses {
		parsed, ok := domain.ParseStatus(string(st))
		if !ok {
			violations = append(violations, fmt.Sprintf("unknown status %q", st))
			continue
		}
		f.Statuses[i] = parsed
	}
	for i, p := range f.Priorities {
		parsed, ok := domain.ParsePriority(string(p))
		if !ok {
			violations = append(violations, fmt.Sprintf("unknown priority %q", p))
			continue
		}
		f.Priorities[i] = parsed
	}
	if f.Limit < 0 {
		violations = append(violations, "limit must not be negative")
	}
	if err := domain.NewValidationError(violations); err != nil {
		return SearchFilter{}, err
	}
	return f, nil
}
