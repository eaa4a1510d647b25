package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidateOpportunityInput checks the fields required to create an opportunity.
func ValidateOpportunityInput(in OpportunityInput) []string {
	var violations []string
	if strings.TrimSpace(in.Title) == "" {
		violations = append(violations, "title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		violations = append(violations, "description is required")
	}
	violations = append(violations, ValidateCustomer(in.Customer)...)
	if strings.TrimSpace(in.SalesManagerID) == "" {
		violations = append(violations, "sales manager id is required")
	}
	violations = append(violations, ValidatePriority(in.Priority)...)
	violations = append(violations, ValidateRevenue(in.AnnualRecurringRevenue)...)
	violations = append(violations, ValidateGeo(in.Geo)...)
	return violations
}

// ValidateCustomer checks a customer reference.
func ValidateCustomer(c Customer) []string {
	var violations []string
	if strings.TrimSpace(c.ID) == "" {
		violations = append(violations, "customer id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		violations = append(violations, "customer name is required")
	}
	return violations
}

// ValidatePriority checks enum membership. Empty is accepted and defaults to medium.
func ValidatePriority(p Priority) []string {
	if p == "" || slices.Contains(validPriorities, p) {
		return nil
	}
	return []string{fmt.Sprintf("priority %q is not one of low, medium, high, critical", p)}
}

// ValidateRevenue checks the annual recurring revenue lower bound.
func ValidateRevenue(arr float64) []string {
	if math.IsNaN(arr) || math.IsInf(arr, 0) {
		return []string{"annual recurring revenue must be a finite number"}
	}
	if arr < 0 {
		return []string{"annual recurring revenue must not be negative"}
	}
	return nil
}

// ValidateGeo checks the geographic requirement.
func ValidateGeo(g GeoRequirement) []string {
	var violations []string
	if strings.TrimSpace(g.RegionID) == "" {
		violations = append(violations, "geo region id is required")
	}
	if strings.TrimSpace(g.RegionName) == "" {
		violations = append(violations, "geo region name is required")
	}
	if !g.RequiresPhysicalPresence && !g.AllowsRemoteWork {
		violations = append(violations, "geo requirement must allow physical presence or remote work")
	}
	return violations
}

// ValidateProblemStatement checks problem statement content.
func ValidateProblemStatement(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return []string{"problem statement content is required"}
	}
	if n := utf8.RuneCountInString(content); n < MinProblemStatementLength {
		return []string{fmt.Sprintf("problem statement must be at least %d characters, got %d", MinProblemStatementLength, n)}
	}
	return nil
}

// ValidateSkillRequirement checks one skill requirement.
func ValidateSkillRequirement(in SkillRequirementInput) []string {
	in = normalizeSkillInput(in)
	var violations []string
	if in.SkillID == "" {
		violations = append(violations, "skill id is required")
	}
	if in.SkillName == "" {
		violations = append(violations, "skill name is required")
	}
	if !slices.Contains(validSkillTypes, in.Type) {
		violations = append(violations, fmt.Sprintf("skill type %q is not one of technical, soft, industry, language", in.Type))
	}
	if !slices.Contains(validImportances, in.Importance) {
		violations = append(violations, fmt.Sprintf("importance %q is not one of must_have, nice_to_have", in.Importance))
	}
	if !slices.Contains(validProficiencies, in.MinimumProficiency) {
		violations = append(violations, fmt.Sprintf("proficiency %q is not one of beginner, intermediate, advanced, expert", in.MinimumProficiency))
	}
	return violations
}

// ValidateTimeline checks date ordering and specific days.
func ValidateTimeline(in TimelineInput) []string {
	var violations []string
	if in.Start.IsZero() {
		violations = append(violations, "timeline start is required")
	}
	if in.End.IsZero() {
		violations = append(violations, "timeline end is required")
	}
	if len(violations) > 0 {
		return violations
	}
	if !in.End.After(in.Start) {
		violations = append(violations, "timeline end must be after start")
		return violations
	}
	first, last := utcDate(in.Start), utcDate(in.End)
	for _, day := range in.SpecificDays {
		if d := utcDate(day); d.Before(first) || d.After(last) {
			violations = append(violations, fmt.Sprintf("specific day %s is outside the timeline", d.Format(time.DateOnly)))
		}
	}
	return violations
}

// ValidateSkillSet checks the cross-entity skill rules needed for submission.
func ValidateSkillSet(skills []SkillRequirement) []string {
	if len(skills) == 0 {
		return []string{"at least one skill requirement is required", "at least one must have skill is required"}
	}
	if !slices.ContainsFunc(skills, SkillRequirement.IsMustHave) {
		return []string{"at least one must have skill is required"}
	}
	return nil
}

// ValidateSubmission lists every unmet submission precondition of o.
func ValidateSubmission(o Opportunity) []string {
	var violations []string
	if o.ProblemStatement == nil {
		violations = append(violations, "problem statement is required")
	} else {
		violations = append(violations, ValidateProblemStatement(o.ProblemStatement.Content)...)
	}
	violations = append(violations, ValidateSkillSet(o.Skills)...)
	if o.Timeline == nil {
		violations = append(violations, "timeline requirement is required")
	} else {
		violations = append(violations, ValidateTimeline(TimelineInput{
			Start:        o.Timeline.Start,
			End:          o.Timeline.End,
			SpecificDays: o.Timeline.SpecificDays,
		})...)
	}
	if o.AnnualRecurringRevenue <= 0 {
		violations = append(violations, "annual recurring revenue must be greater than zero")
	}
	return violations
}

// ValidateChangeReason checks that a reason is present when s requires one.
func ValidateChangeReason(s Status, reason string) []string {
	if s != StatusDraft && strings.TrimSpace(reason) == "" {
		return []string{fmt.Sprintf("a reason is required to change a %s opportunity", s)}
	}
	return nil
}
