package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMinimumMatchScore(t *testing.T) {
	policy := DefaultMatchingPolicy()
	mustHaves := func(n int) []SkillRequirement {
		out := make([]SkillRequirement, 0, n)
		for i := range n {
			out = append(out, SkillRequirement{SkillID: fmt.Sprintf("s%d", i), Importance: ImportanceMustHave})
		}
		return out
	}
	tests := []struct {
		name   string
		opp    Opportunity
		expect float64
	}{
		{name: "medium", opp: Opportunity{Priority: PriorityMedium}, expect: 60},
		{name: "low", opp: Opportunity{Priority: PriorityLow}, expect: 60},
		{name: "high", opp: Opportunity{Priority: PriorityHigh}, expect: 70},
		{name: "critical", opp: Opportunity{Priority: PriorityCritical}, expect: 80},
		{name: "five must haves is not complex", opp: Opportunity{Priority: PriorityMedium, Skills: mustHaves(5)}, expect: 60},
		{name: "six must haves", opp: Opportunity{Priority: PriorityMedium, Skills: mustHaves(6)}, expect: 65},
		{name: "high value", opp: Opportunity{Priority: PriorityHigh, AnnualRecurringRevenue: 500001}, expect: 75},
		{name: "exactly threshold", opp: Opportunity{Priority: PriorityHigh, AnnualRecurringRevenue: 500000}, expect: 70},
		{name: "capped", opp: Opportunity{Priority: PriorityCritical, AnnualRecurringRevenue: 900000, Skills: mustHaves(7)}, expect: 90},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MinimumMatchScore(tc.opp, policy); got != tc.expect {
				t.Fatalf("MinimumMatchScore() = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestPrepareMatchingCriteria(t *testing.T) {
	now := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	o := newSubmittable(t, now)
	if _, err := PrepareMatchingCriteria(o, DefaultMatchingPolicy(), now); !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("expected draft to be rejected, got %v", err)
	}
	_ = o.AddSkillRequirement(SkillRequirementInput{
		SkillID: "sk-es", SkillName: "Spanish", Type: SkillTypeLanguage,
		Importance: ImportanceNiceToHave, MinimumProficiency: ProficiencyIntermediate,
	}, "sm-1", "", now)
	advanceTo(t, &o, StatusSubmitted, now)

	c, err := PrepareMatchingCriteria(o, DefaultMatchingPolicy(), now)
	if err != nil {
		t.Fatalf("PrepareMatchingCriteria() error = %v", err)
	}
	if len(c.MandatorySkills) != 1 || len(c.OptionalSkills) != 1 || c.OptionalSkills[0].Weight != 0.5 {
		t.Fatalf("unexpected skill split %#v / %#v", c.MandatorySkills, c.OptionalSkills)
	}
	if c.MinimumMatchScore != 70 || c.PriorityWeight != 3 {
		t.Fatalf("unexpected scoring score=%v weight=%d", c.MinimumMatchScore, c.PriorityWeight)
	}
	if c.Timeline.DurationDays != 151 || c.Timeline.UrgencyScore != 8 {
		t.Fatalf("unexpected timeline criteria %#v", c.Timeline)
	}
	if c.Weights.Languages != 0.15 || c.Weights.Skills != 0.45 {
		t.Fatalf("unexpected weights %#v", c.Weights)
	}
	if !c.Geo.RemoteAllowed || c.Geo.RegionID != "eu-west" {
		t.Fatalf("unexpected geo criteria %#v", c.Geo)
	}
}
