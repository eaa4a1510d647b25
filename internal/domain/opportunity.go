package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// ReactivationWindow is how long a cancelled opportunity stays reactivatable.
const ReactivationWindow = 90 * 24 * time.Hour

// Priority ranks an opportunity.
type Priority string

// Priority values.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Priorities returns all priorities, lowest first.
func Priorities() []Priority {
	return append([]Priority(nil), validPriorities...)
}

// Weight returns 1 for low through 4 for critical.
func (p Priority) Weight() int {
	return slices.Index(validPriorities, p) + 1
}

// ParsePriority normalizes raw into a known priority.
func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	return p, slices.Contains(validPriorities, p)
}

// Opportunity is the aggregate root for a customer's request for a solution architect.
type Opportunity struct {
	ID                     string               `json:"id"`
	Title                  string               `json:"title"`
	Customer               Customer             `json:"customer"`
	SalesManagerID         string               `json:"sales_manager_id"`
	Description            string               `json:"description"`
	Priority               Priority             `json:"priority"`
	Status                 Status               `json:"status"`
	AnnualRecurringRevenue float64              `json:"annual_recurring_revenue"`
	Geo                    GeoRequirement       `json:"geo"`
	ProblemStatement       *ProblemStatement    `json:"problem_statement,omitempty"`
	Skills                 []SkillRequirement   `json:"skills,omitempty"`
	Timeline               *TimelineRequirement `json:"timeline,omitempty"`
	SelectedArchitectID    string               `json:"selected_architect_id,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
	SubmittedAt            *time.Time           `json:"submitted_at,omitempty"`
	CompletedAt            *time.Time           `json:"completed_at,omitempty"`
	CancelledAt            *time.Time           `json:"cancelled_at,omitempty"`
	CancellationReason     string               `json:"cancellation_reason,omitempty"`
	ReactivationDeadline   *time.Time           `json:"reactivation_deadline,omitempty"`
	PreviousStatus         Status               `json:"previous_status,omitempty"`
	Version                int64                `json:"version"`
	StatusHistory          []StatusRecord       `json:"status_history"`
	Changes                []ChangeRecord       `json:"changes,omitempty"`
}

// OpportunityInput holds write-time values for creating an opportunity.
type OpportunityInput struct {
	ID                     string
	Title                  string
	Customer               Customer
	SalesManagerID         string
	Description            string
	Priority               Priority
	AnnualRecurringRevenue float64
	Geo                    GeoRequirement
	// CreatedBy defaults to SalesManagerID.
	CreatedBy string
}

// NewOpportunity validates in and returns a Draft opportunity with its first status record.
func NewOpportunity(in OpportunityInput, now time.Time) (Opportunity, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.SalesManagerID = strings.TrimSpace(in.SalesManagerID)
	in.Customer = normalizeCustomer(in.Customer)
	in.Geo = normalizeGeo(in.Geo)
	in.Priority = Priority(strings.ToLower(strings.TrimSpace(string(in.Priority))))
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)

	if in.ID == "" {
		return Opportunity{}, ErrInvalidID
	}
	if err := NewValidationError(ValidateOpportunityInput(in)); err != nil {
		return Opportunity{}, err
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if in.CreatedBy == "" {
		in.CreatedBy = in.SalesManagerID
	}

	o := Opportunity{
		ID:                     in.ID,
		Title:                  in.Title,
		Customer:               in.Customer,
		SalesManagerID:         in.SalesManagerID,
		Description:            in.Description,
		Priority:               in.Priority,
		AnnualRecurringRevenue: roundCents(in.AnnualRecurringRevenue),
		Geo:                    in.Geo,
		CreatedAt:              now.UTC(),
	}
	o.appendStatus(StatusDraft, in.CreatedBy, "opportunity created", now)
	return o, nil
}

// ensureMutable rejects field and sub-entity changes once the opportunity is locked.
func (o *Opportunity) ensureMutable(operation string) error {
	if o.Status.Frozen() || o.Status == StatusCancelled {
		return &NotAllowedError{Operation: operation, Status: o.Status}
	}
	return nil
}

// AttachProblemStatement sets the single problem statement of o.
func (o *Opportunity) AttachProblemStatement(in ProblemStatementInput, actorID, reason string, now time.Time) error {
	if err := o.ensureMutable("attach problem statement"); err != nil {
		return err
	}
	var violations []string
	if o.ProblemStatement != nil {
		violations = append(violations, "problem statement already exists")
	}
	violations = append(violations, ValidateChangeReason(o.Status, reason)...)
	ps, err := NewProblemStatement(in, now)
	violations = append(violations, Violations(err)...)
	if err := NewValidationError(violations); err != nil {
		return err
	}

	at := o.appendChange("problem_statement", "", summarize(ps.Content), actorID, strings.TrimSpace(reason), now)
	ps.CreatedAt = at
	o.ProblemStatement = &ps
	return nil
}

// AddSkillRequirement appends one skill requirement.
func (o *Opportunity) AddSkillRequirement(in SkillRequirementInput, actorID, reason string, now time.Time) error {
	if err := o.ensureMutable("add skill requirement"); err != nil {
		return err
	}
	in = normalizeSkillInput(in)
	violations := ValidateChangeReason(o.Status, reason)
	skill, err := NewSkillRequirement(in)
	violations = append(violations, Violations(err)...)
	if in.SkillID != "" && slices.ContainsFunc(o.Skills, func(s SkillRequirement) bool { return s.SkillID == in.SkillID }) {
		violations = append(violations, fmt.Sprintf("skill %q is already required", in.SkillID))
	}
	if err := NewValidationError(violations); err != nil {
		return err
	}

	o.Skills = append(o.Skills, skill)
	o.appendChange("skills", "", fmt.Sprintf("%s (%s, %s, %s)", skill.SkillName, skill.Type, skill.Importance, skill.MinimumProficiency), actorID, strings.TrimSpace(reason), now)
	return nil
}

// SetTimelineRequirement sets the timeline. An existing timeline may only be replaced while Draft.
func (o *Opportunity) SetTimelineRequirement(in TimelineInput, actorID, reason string, now time.Time) error {
	if err := o.ensureMutable("set timeline requirement"); err != nil {
		return err
	}
	if o.Timeline != nil && o.Status != StatusDraft {
		return &NotAllowedError{Operation: "replace timeline requirement", Status: o.Status}
	}
	violations := ValidateChangeReason(o.Status, reason)
	timeline, err := NewTimelineRequirement(in)
	violations = append(violations, Violations(err)...)
	if err := NewValidationError(violations); err != nil {
		return err
	}

	oldValue := ""
	if o.Timeline != nil {
		oldValue = formatTimeline(*o.Timeline)
	}
	o.Timeline = &timeline
	o.appendChange("timeline", oldValue, formatTimeline(timeline), actorID, strings.TrimSpace(reason), now)
	return nil
}

// Submit moves a complete Draft to Submitted.
func (o *Opportunity) Submit(actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusSubmitted); err != nil {
		return err
	}
	if err := NewValidationError(ValidateSubmission(*o)); err != nil {
		return err
	}
	at := o.appendStatus(StatusSubmitted, actorID, "opportunity submitted", now)
	o.SubmittedAt = &at
	return nil
}

// ApplyUpdate changes one field and records it in the change ledger.
// Updates that leave the value unchanged are validated but not recorded.
func (o *Opportunity) ApplyUpdate(u FieldUpdate, actorID, reason string, now time.Time) error {
	if u == nil {
		return NewValidationError([]string{"update is required"})
	}
	if err := o.ensureMutable("update " + u.Field()); err != nil {
		return err
	}
	violations := ValidateChangeReason(o.Status, reason)
	violations = append(violations, u.validate()...)
	if err := NewValidationError(violations); err != nil {
		return err
	}

	oldValue := u.current(o)
	newValue := u.apply(o)
	if oldValue == newValue {
		return nil
	}
	o.appendChange(u.Field(), oldValue, newValue, actorID, strings.TrimSpace(reason), now)
	return nil
}

// StartMatching records that the matching engine picked up the opportunity.
func (o *Opportunity) StartMatching(actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusMatchingInProgress); err != nil {
		return err
	}
	o.appendStatus(StatusMatchingInProgress, actorID, "matching started", now)
	return nil
}

// RecordMatchesFound records that candidate architects are available.
func (o *Opportunity) RecordMatchesFound(actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusMatchesFound); err != nil {
		return err
	}
	o.appendStatus(StatusMatchesFound, actorID, "matches found", now)
	return nil
}

// SelectArchitect records the chosen architect. The opportunity is frozen afterwards.
func (o *Opportunity) SelectArchitect(architectID, actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusArchitectSelected); err != nil {
		return err
	}
	architectID = strings.TrimSpace(architectID)
	if architectID == "" {
		return NewValidationError([]string{"architect id is required"})
	}
	o.SelectedArchitectID = architectID
	o.appendStatus(StatusArchitectSelected, actorID, "architect "+architectID+" selected", now)
	return nil
}

// Complete closes the engagement.
func (o *Opportunity) Complete(actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusCompleted); err != nil {
		return err
	}
	at := o.appendStatus(StatusCompleted, actorID, "opportunity completed", now)
	o.CompletedAt = &at
	return nil
}

// Cancel moves any non-terminal opportunity to Cancelled and opens the reactivation window.
func (o *Opportunity) Cancel(reason, actorID string, now time.Time) error {
	if err := checkTransition(o.Status, StatusCancelled); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewValidationError([]string{"cancellation reason is required"})
	}

	previous := o.Status
	at := o.appendStatus(StatusCancelled, actorID, reason, now)
	deadline := at.Add(ReactivationWindow)
	o.PreviousStatus = previous
	o.CancelledAt = &at
	o.CancellationReason = reason
	o.ReactivationDeadline = &deadline
	return nil
}

// Reactivate restores the status held before cancellation. It succeeds up to and
// including the reactivation deadline.
func (o *Opportunity) Reactivate(actorID string, now time.Time) error {
	if o.Status != StatusCancelled {
		return &NotAllowedError{Operation: "reactivate", Status: o.Status}
	}
	if o.ReactivationDeadline == nil || now.UTC().After(*o.ReactivationDeadline) {
		deadline := "none"
		if o.ReactivationDeadline != nil {
			deadline = o.ReactivationDeadline.Format(time.RFC3339)
		}
		return fmt.Errorf("%w: deadline %s", ErrReactivationExpired, deadline)
	}
	if !o.PreviousStatus.IsActive() {
		return errors.Join(ErrOperationNotAllowed, fmt.Errorf("unknown status before cancellation %q", o.PreviousStatus))
	}

	o.appendStatus(o.PreviousStatus, actorID, "opportunity reactivated", now)
	o.PreviousStatus = ""
	o.CancelledAt = nil
	o.CancellationReason = ""
	o.ReactivationDeadline = nil
	return nil
}

// CanReactivate reports whether Reactivate would succeed at now.
func (o Opportunity) CanReactivate(now time.Time) bool {
	return o.Status == StatusCancelled &&
		o.ReactivationDeadline != nil &&
		!now.UTC().After(*o.ReactivationDeadline) &&
		o.PreviousStatus.IsActive()
}

// CanDelete reports whether the opportunity may be removed from storage.
func (o Opportunity) CanDelete() bool {
	return o.Status == StatusDraft
}

// CloneInput holds the values re-supplied when cloning an opportunity.
type CloneInput struct {
	ID             string
	Customer       Customer
	SalesManagerID string
	ActorID        string
}

// Clone returns a new Draft copying title, description, priority, geo, problem
// statement, skills and timeline. Ledgers, revenue and the customer are not copied.
func (o Opportunity) Clone(in CloneInput, now time.Time) (Opportunity, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Opportunity{}, ErrInvalidID
	}
	if in.ID == o.ID {
		return Opportunity{}, NewValidationError([]string{"clone id must differ from the source id"})
	}
	in.SalesManagerID = strings.TrimSpace(in.SalesManagerID)
	if in.SalesManagerID == "" {
		in.SalesManagerID = o.SalesManagerID
	}
	in.ActorID = strings.TrimSpace(in.ActorID)
	if in.ActorID == "" {
		in.ActorID = in.SalesManagerID
	}

	out := Opportunity{
		ID:             in.ID,
		Title:          o.Title,
		Customer:       normalizeCustomer(in.Customer),
		SalesManagerID: in.SalesManagerID,
		Description:    o.Description,
		Priority:       o.Priority,
		Geo:            o.Geo,
		Skills:         append([]SkillRequirement(nil), o.Skills...),
		CreatedAt:      now.UTC(),
	}
	if o.ProblemStatement != nil {
		out.ProblemStatement = o.ProblemStatement.clone()
		out.ProblemStatement.CreatedAt = now.UTC()
	}
	if o.Timeline != nil {
		out.Timeline = o.Timeline.clone()
	}
	out.appendStatus(StatusDraft, in.ActorID, "cloned from "+o.ID, now)
	return out, nil
}

// Copy returns a deep copy of o.
func (o Opportunity) Copy() Opportunity {
	out := o
	if o.ProblemStatement != nil {
		out.ProblemStatement = o.ProblemStatement.clone()
	}
	if o.Timeline != nil {
		out.Timeline = o.Timeline.clone()
	}
	out.Skills = append([]SkillRequirement(nil), o.Skills...)
	out.StatusHistory = append([]StatusRecord(nil), o.StatusHistory...)
	out.Changes = append([]ChangeRecord(nil), o.Changes...)
	out.SubmittedAt = copyTime(o.SubmittedAt)
	out.CompletedAt = copyTime(o.CompletedAt)
	out.CancelledAt = copyTime(o.CancelledAt)
	out.ReactivationDeadline = copyTime(o.ReactivationDeadline)
	return out
}

// MustHaveSkills returns the mandatory skill requirements.
func (o Opportunity) MustHaveSkills() []SkillRequirement {
	out := make([]SkillRequirement, 0, len(o.Skills))
	for _, s := range o.Skills {
		if s.IsMustHave() {
			out = append(out, s)
		}
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// summarize shortens long values for the change ledger.
func summarize(s string) string {
	const limit = 80
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func formatTimeline(t TimelineRequirement) string {
	out := t.Start.Format(time.DateOnly) + ".." + t.End.Format(time.DateOnly)
	if len(t.SpecificDays) > 0 {
		out += fmt.Sprintf(" (%d specific days)", len(t.SpecificDays))
	}
	if t.Flexible {
		out += " flexible"
	}
	return out
}
