package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
	pinger  Pinger
	now     func() time.Time
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
// pinger may be nil, in which case Ready only checks the service.
func NewAppServiceAdapter(service *app.Service, pinger Pinger, now func() time.Time) *AppServiceAdapter {
	if now == nil {
		now = time.Now
	}
	return &AppServiceAdapter{service: service, pinger: pinger, now: now}
}

// WithActor validates caller identity and attaches it to ctx. An empty actorID leaves ctx unchanged.
func WithActor(ctx context.Context, actorID, actorType string) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	actorID = strings.TrimSpace(actorID)
	kind := app.ActorType(strings.TrimSpace(strings.ToLower(actorType)))
	switch kind {
	case "":
		kind = app.ActorTypeUser
	case app.ActorTypeUser, app.ActorTypeAgent, app.ActorTypeSystem:
	default:
		return nil, fmt.Errorf("actor_type %q is unsupported: %w", actorType, ErrInvalidRequest)
	}
	if actorID == "" {
		return ctx, nil
	}
	return app.WithMutationActor(ctx, app.MutationActor{ActorID: actorID, ActorType: kind}), nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// Ready reports whether the service and its storage can take requests.
func (a *AppServiceAdapter) Ready(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if a.pinger == nil {
		return nil
	}
	if err := a.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("storage ping: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (a *AppServiceAdapter) ListOpportunities(ctx context.Context, in ListRequest) ([]domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	filter := app.SearchFilter{
		Query:          in.Query,
		SalesManagerID: in.SalesManagerID,
		CustomerID:     in.CustomerID,
		Filter:         in.Filter,
		Limit:          in.Limit,
	}
	for _, raw := range splitList(in.Statuses) {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown status %q: %w", raw, ErrInvalidRequest)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range splitList(in.Priorities) {
		priority, ok := domain.ParsePriority(raw)
		if !ok {
			return nil, fmt.Errorf("unknown priority %q: %w", raw, ErrInvalidRequest)
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	out, err := a.service.SearchOpportunities(ctx, filter)
	if err != nil {
		return nil, mapAppError("list opportunities", err)
	}
	return out, nil
}

func (a *AppServiceAdapter) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.GetOpportunity(ctx, id)
	return opp, mapAppError("get opportunity", err)
}

func (a *AppServiceAdapter) CreateOpportunity(ctx context.Context, in CreateOpportunityRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.CreateOpportunity(ctx, app.CreateOpportunityInput{
		Title:                  in.Title,
		Customer:               toCustomer(in.Customer),
		SalesManagerID:         in.SalesManagerID,
		Description:            in.Description,
		Priority:               domain.Priority(in.Priority),
		AnnualRecurringRevenue: in.AnnualRecurringRevenue,
		Geo:                    toGeo(in.Geo),
	})
	return opp, mapAppError("create opportunity", err)
}

func (a *AppServiceAdapter) AttachProblemStatement(ctx context.Context, id string, in ProblemStatementRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	uploadedBy := ""
	if actor, ok := app.MutationActorFromContext(ctx); ok {
		uploadedBy = actor.ActorID
	}
	now := a.now().UTC()
	attachments := make([]domain.Attachment, 0, len(in.Attachments))
	for _, raw := range in.Attachments {
		attachmentID := strings.TrimSpace(raw.ID)
		if attachmentID == "" {
			attachmentID = uuid.NewString()
		}
		attachments = append(attachments, domain.Attachment{
			ID:          attachmentID,
			FileName:    raw.FileName,
			ContentType: raw.ContentType,
			SizeBytes:   raw.SizeBytes,
			URL:         raw.URL,
			UploadedBy:  uploadedBy,
			UploadedAt:  now,
		})
	}
	opp, err := a.service.AttachProblemStatement(ctx, app.AttachProblemStatementInput{
		OpportunityID: id,
		Content:       in.Content,
		Attachments:   attachments,
		Reason:        in.Reason,
	})
	return opp, mapAppError("attach problem statement", err)
}

func (a *AppServiceAdapter) AddSkillRequirement(ctx context.Context, id string, in SkillRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.AddSkillRequirement(ctx, app.AddSkillRequirementInput{
		OpportunityID: id,
		Skill: domain.SkillRequirementInput{
			SkillID:            in.SkillID,
			SkillName:          in.SkillName,
			Type:               domain.SkillType(in.Type),
			Importance:         domain.Importance(in.Importance),
			MinimumProficiency: domain.Proficiency(in.MinimumProficiency),
		},
		Reason: in.Reason,
	})
	return opp, mapAppError("add skill requirement", err)
}

func (a *AppServiceAdapter) SetTimelineRequirement(ctx context.Context, id string, in TimelineRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	timeline, err := ParseTimeline(in)
	if err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.SetTimelineRequirement(ctx, app.SetTimelineRequirementInput{
		OpportunityID: id,
		Timeline:      timeline,
		Reason:        in.Reason,
	})
	return opp, mapAppError("set timeline requirement", err)
}

func (a *AppServiceAdapter) SubmitOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.SubmitOpportunity(ctx, id, "")
	return opp, mapAppError("submit opportunity", err)
}

func (a *AppServiceAdapter) UpdateOpportunity(ctx context.Context, id string, in UpdateRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	updates := ToFieldUpdates(in)
	opp, err := a.service.UpdateOpportunity(ctx, app.UpdateOpportunityInput{
		OpportunityID: id,
		Updates:       updates,
		Reason:        in.Reason,
	})
	return opp, mapAppError("update opportunity", err)
}

func (a *AppServiceAdapter) CancelOpportunity(ctx context.Context, id string, in CancelRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.CancelOpportunity(ctx, id, in.Reason, "")
	return opp, mapAppError("cancel opportunity", err)
}

func (a *AppServiceAdapter) ReactivateOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.ReactivateOpportunity(ctx, id, "")
	return opp, mapAppError("reactivate opportunity", err)
}

func (a *AppServiceAdapter) CloneOpportunity(ctx context.Context, id string, in CloneRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.CloneOpportunity(ctx, app.CloneOpportunityInput{
		SourceID:       id,
		Customer:       toCustomer(in.Customer),
		SalesManagerID: in.SalesManagerID,
	})
	return opp, mapAppError("clone opportunity", err)
}

func (a *AppServiceAdapter) StartMatching(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.StartMatching(ctx, id, "")
	return opp, mapAppError("start matching", err)
}

func (a *AppServiceAdapter) RecordMatchesFound(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.RecordMatchesFound(ctx, id, "")
	return opp, mapAppError("record matches found", err)
}

func (a *AppServiceAdapter) SelectArchitect(ctx context.Context, id string, in ArchitectRequest) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.SelectArchitect(ctx, id, in.ArchitectID, "")
	return opp, mapAppError("select architect", err)
}

func (a *AppServiceAdapter) CompleteOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := a.ready(); err != nil {
		return domain.Opportunity{}, err
	}
	opp, err := a.service.CompleteOpportunity(ctx, id, "")
	return opp, mapAppError("complete opportunity", err)
}

func (a *AppServiceAdapter) DeleteOpportunity(ctx context.Context, id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("delete opportunity", a.service.DeleteOpportunity(ctx, id, ""))
}

func (a *AppServiceAdapter) OpportunityHistory(ctx context.Context, id string) (app.History, error) {
	if err := a.ready(); err != nil {
		return app.History{}, err
	}
	history, err := a.service.OpportunityHistory(ctx, id)
	return history, mapAppError("opportunity history", err)
}

func (a *AppServiceAdapter) MatchingCriteria(ctx context.Context, id string) (domain.MatchingCriteria, error) {
	if err := a.ready(); err != nil {
		return domain.MatchingCriteria{}, err
	}
	criteria, err := a.service.PrepareMatchingCriteria(ctx, id)
	return criteria, mapAppError("prepare matching criteria", err)
}

func (a *AppServiceAdapter) Dashboard(ctx context.Context, salesManagerID string) (app.Dashboard, error) {
	if err := a.ready(); err != nil {
		return app.Dashboard{}, err
	}
	dashboard, err := a.service.SalesManagerDashboard(ctx, salesManagerID)
	return dashboard, mapAppError("sales manager dashboard", err)
}

// ToFieldUpdates converts the present fields of in, in a fixed order.
func ToFieldUpdates(in UpdateRequest) []domain.FieldUpdate {
	var updates []domain.FieldUpdate
	if in.Title != nil {
		updates = append(updates, domain.TitleUpdate{Title: *in.Title})
	}
	if in.Description != nil {
		updates = append(updates, domain.DescriptionUpdate{Description: *in.Description})
	}
	if in.Priority != nil {
		updates = append(updates, domain.PriorityUpdate{Priority: domain.Priority(*in.Priority)})
	}
	if in.AnnualRecurringRevenue != nil {
		updates = append(updates, domain.RevenueUpdate{AnnualRecurringRevenue: *in.AnnualRecurringRevenue})
	}
	if in.Geo != nil {
		updates = append(updates, domain.GeoUpdate{Geo: toGeo(*in.Geo)})
	}
	if in.Customer != nil {
		updates = append(updates, domain.CustomerUpdate{Customer: toCustomer(*in.Customer)})
	}
	return updates
}

// ParseTimeline converts wire dates into a domain timeline input.
func ParseTimeline(in TimelineRequest) (domain.TimelineInput, error) {
	start, err := parseDate("start", in.Start)
	if err != nil {
		return domain.TimelineInput{}, err
	}
	end, err := parseDate("end", in.End)
	if err != nil {
		return domain.TimelineInput{}, err
	}
	out := domain.TimelineInput{Start: start, End: end, Flexible: in.Flexible}
	for i, raw := range in.SpecificDays {
		day, err := parseDate(fmt.Sprintf("specific_days[%d]", i), raw)
		if err != nil {
			return domain.TimelineInput{}, err
		}
		out.SpecificDays = append(out.SpecificDays, day)
	}
	return out, nil
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD, got %q: %w", field, raw, ErrInvalidRequest)
	}
	return ts, nil
}

// splitList accepts both repeated values and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func toCustomer(in CustomerRequest) domain.Customer {
	return domain.Customer{ID: in.ID, Name: in.Name}
}

func toGeo(in GeoRequest) domain.GeoRequirement {
	return domain.GeoRequirement{
		RegionID:                 in.RegionID,
		RegionName:               in.RegionName,
		RequiresPhysicalPresence: in.RequiresPhysicalPresence,
		AllowsRemoteWork:         in.AllowsRemoteWork,
	}
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrReactivationExpired):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrExpired, err))
	case errors.Is(err, domain.ErrOperationNotAllowed),
		errors.Is(err, domain.ErrInvalidTransition):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotAllowed, err))
	case errors.Is(err, app.ErrConflict), errors.Is(err, app.ErrAlreadyExists):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, app.ErrActorRequired),
		errors.Is(err, app.ErrUnsupportedFilter):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
