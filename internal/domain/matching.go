package domain

import (
	"math"
	"time"
)

// MatchingPolicy holds the constants used to derive the minimum match score.
type MatchingPolicy struct {
	BaseScore             float64 `toml:"base_score"`
	HighPriorityScore     float64 `toml:"high_priority_score"`
	CriticalPriorityScore float64 `toml:"critical_priority_score"`
	ComplexSkillCount     int     `toml:"complex_skill_count"`
	ComplexSkillBonus     float64 `toml:"complex_skill_bonus"`
	HighValueRevenue      float64 `toml:"high_value_revenue"`
	HighValueBonus        float64 `toml:"high_value_bonus"`
	MaxScore              float64 `toml:"max_score"`
}

// DefaultMatchingPolicy returns the standard scoring constants.
func DefaultMatchingPolicy() MatchingPolicy {
	return MatchingPolicy{
		BaseScore:             60,
		HighPriorityScore:     70,
		CriticalPriorityScore: 80,
		ComplexSkillCount:     5,
		ComplexSkillBonus:     5,
		HighValueRevenue:      500000,
		HighValueBonus:        5,
		MaxScore:              90,
	}
}

// SkillCriterion is one skill as handed to the matching engine.
type SkillCriterion struct {
	SkillID            string      `json:"skill_id"`
	Name               string      `json:"name"`
	Type               SkillType   `json:"type"`
	Importance         Importance  `json:"importance"`
	Weight             float64     `json:"weight"`
	MinimumProficiency Proficiency `json:"minimum_proficiency"`
}

// TimelineCriteria is the timeline as handed to the matching engine.
type TimelineCriteria struct {
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	DurationDays int         `json:"duration_days"`
	SpecificDays []time.Time `json:"specific_days,omitempty"`
	Flexible     bool        `json:"flexible"`
	UrgencyScore int         `json:"urgency_score"`
}

// GeoCriteria is the geographic requirement as handed to the matching engine.
type GeoCriteria struct {
	RegionID         string `json:"region_id"`
	RegionName       string `json:"region_name"`
	RemoteAllowed    bool   `json:"remote_allowed"`
	PresenceRequired bool   `json:"presence_required"`
}

// MatchingWeights weighs the criteria groups.
type MatchingWeights struct {
	Skills        float64 `json:"skills"`
	Timeline      float64 `json:"timeline"`
	Geographic    float64 `json:"geographic"`
	Languages     float64 `json:"languages"`
	PriorityBonus float64 `json:"priority_bonus"`
}

// MatchingCriteria is the preparation payload for the external matching engine.
type MatchingCriteria struct {
	OpportunityID          string           `json:"opportunity_id"`
	Title                  string           `json:"title"`
	Priority               Priority         `json:"priority"`
	PriorityWeight         int              `json:"priority_weight"`
	AnnualRecurringRevenue float64          `json:"annual_recurring_revenue"`
	MandatorySkills        []SkillCriterion `json:"mandatory_skills"`
	OptionalSkills         []SkillCriterion `json:"optional_skills"`
	Timeline               TimelineCriteria `json:"timeline"`
	Geo                    GeoCriteria      `json:"geo"`
	Weights                MatchingWeights  `json:"weights"`
	MinimumMatchScore      float64          `json:"minimum_match_score"`
	Warnings               []string         `json:"warnings,omitempty"`
}

// PrepareMatchingCriteria builds the matching-engine payload for a submittable opportunity.
func PrepareMatchingCriteria(o Opportunity, policy MatchingPolicy, now time.Time) (MatchingCriteria, error) {
	if o.Status == StatusDraft || o.Status == StatusCancelled {
		return MatchingCriteria{}, &NotAllowedError{Operation: "prepare matching criteria", Status: o.Status}
	}
	if err := NewValidationError(ValidateSubmission(o)); err != nil {
		return MatchingCriteria{}, err
	}

	out := MatchingCriteria{
		OpportunityID:          o.ID,
		Title:                  o.Title,
		Priority:               o.Priority,
		PriorityWeight:         o.Priority.Weight(),
		AnnualRecurringRevenue: o.AnnualRecurringRevenue,
		MandatorySkills:        []SkillCriterion{},
		OptionalSkills:         []SkillCriterion{},
		Geo: GeoCriteria{
			RegionID:         o.Geo.RegionID,
			RegionName:       o.Geo.RegionName,
			RemoteAllowed:    o.Geo.AllowsRemoteWork,
			PresenceRequired: o.Geo.RequiresPhysicalPresence,
		},
	}
	for _, s := range o.Skills {
		c := SkillCriterion{
			SkillID:            s.SkillID,
			Name:               s.SkillName,
			Type:               s.Type,
			Importance:         s.Importance,
			Weight:             s.Importance.Weight(),
			MinimumProficiency: s.MinimumProficiency,
		}
		if s.IsMustHave() {
			out.MandatorySkills = append(out.MandatorySkills, c)
		} else {
			out.OptionalSkills = append(out.OptionalSkills, c)
		}
	}

	t := *o.Timeline
	out.Timeline = TimelineCriteria{
		Start:        t.Start,
		End:          t.End,
		DurationDays: int(math.Ceil(t.Duration().Hours() / 24)),
		SpecificDays: append([]time.Time(nil), t.SpecificDays...),
		Flexible:     t.Flexible,
		UrgencyScore: urgencyScore(t.Start, now),
	}
	out.Weights = matchingWeights(o)
	out.MinimumMatchScore = MinimumMatchScore(o, policy)

	if len(out.MandatorySkills) > 8 {
		out.Warnings = append(out.Warnings, "high number of mandatory skills may limit matches")
	}
	if out.Timeline.DurationDays < 14 {
		out.Warnings = append(out.Warnings, "short timeline may limit architect availability")
	}
	return out, nil
}

// MinimumMatchScore returns the score a candidate must reach for o.
func MinimumMatchScore(o Opportunity, policy MatchingPolicy) float64 {
	score := policy.BaseScore
	switch o.Priority {
	case PriorityCritical:
		score = policy.CriticalPriorityScore
	case PriorityHigh:
		score = policy.HighPriorityScore
	}
	if len(o.MustHaveSkills()) > policy.ComplexSkillCount {
		score += policy.ComplexSkillBonus
	}
	if o.AnnualRecurringRevenue > policy.HighValueRevenue {
		score += policy.HighValueBonus
	}
	return math.Min(score, policy.MaxScore)
}

func matchingWeights(o Opportunity) MatchingWeights {
	w := MatchingWeights{Skills: 0.5, Timeline: 0.2, Geographic: 0.15, Languages: 0.1, PriorityBonus: 0.05}
	if o.Priority.Weight() >= PriorityHigh.Weight() {
		w.Skills = 0.6
		w.Timeline = 0.25
	}
	for _, s := range o.Skills {
		if s.Type == SkillTypeLanguage {
			w.Languages = 0.15
			w.Skills = 0.45
			break
		}
	}
	if o.Geo.RequiresPhysicalPresence && !o.Geo.AllowsRemoteWork {
		w.Geographic = 0.25
		w.Skills = 0.45
	}
	return w
}

// urgencyScore grades how soon the engagement starts, 10 being most urgent.
func urgencyScore(start, now time.Time) int {
	days := start.Sub(now).Hours() / 24
	switch {
	case days <= 7:
		return 10
	case days <= 14:
		return 8
	case days <= 30:
		return 6
	case days <= 60:
		return 4
	default:
		return 2
	}
}
