package domain

import (
	"slices"
	"strings"
)

// SkillType classifies one required skill.
type SkillType string

// SkillType values.
const (
	SkillTypeTechnical SkillType = "technical"
	SkillTypeSoft      SkillType = "soft"
	SkillTypeIndustry  SkillType = "industry"
	SkillTypeLanguage  SkillType = "language"
)

var validSkillTypes = []SkillType{SkillTypeTechnical, SkillTypeSoft, SkillTypeIndustry, SkillTypeLanguage}

// ParseSkillType normalizes raw into a known skill type.
func ParseSkillType(raw string) (SkillType, bool) {
	t := SkillType(strings.ToLower(strings.TrimSpace(raw)))
	return t, slices.Contains(validSkillTypes, t)
}

// Importance marks a skill as required or preferred.
type Importance string

// Importance values.
const (
	ImportanceMustHave   Importance = "must_have"
	ImportanceNiceToHave Importance = "nice_to_have"
)

var validImportances = []Importance{ImportanceMustHave, ImportanceNiceToHave}

// Weight returns the matching weight of the importance level.
func (i Importance) Weight() float64 {
	switch i {
	case ImportanceMustHave:
		return 1.0
	case ImportanceNiceToHave:
		return 0.5
	default:
		return 0
	}
}

// Proficiency is the minimum proficiency a candidate must show.
type Proficiency string

// Proficiency values, lowest first.
const (
	ProficiencyBeginner     Proficiency = "beginner"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

var validProficiencies = []Proficiency{ProficiencyBeginner, ProficiencyIntermediate, ProficiencyAdvanced, ProficiencyExpert}

// Rank returns 1..4 for known levels and 0 otherwise.
func (p Proficiency) Rank() int {
	return slices.Index(validProficiencies, p) + 1
}

// SkillRequirement references a skills-catalog entry by id and keeps a name snapshot.
type SkillRequirement struct {
	SkillID            string      `json:"skill_id"`
	SkillName          string      `json:"skill_name"`
	Type               SkillType   `json:"type"`
	Importance         Importance  `json:"importance"`
	MinimumProficiency Proficiency `json:"minimum_proficiency"`
}

// SkillRequirementInput holds write-time values for one skill requirement.
type SkillRequirementInput struct {
	SkillID            string
	SkillName          string
	Type               SkillType
	Importance         Importance
	MinimumProficiency Proficiency
}

// normalizeSkillInput trims and lower-cases enum values in place.
func normalizeSkillInput(in SkillRequirementInput) SkillRequirementInput {
	in.SkillID = strings.TrimSpace(in.SkillID)
	in.SkillName = strings.TrimSpace(in.SkillName)
	in.Type = SkillType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	in.Importance = Importance(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(in.Importance))), " ", "_"))
	in.MinimumProficiency = Proficiency(strings.ToLower(strings.TrimSpace(string(in.MinimumProficiency))))
	return in
}

// NewSkillRequirement validates in and builds a SkillRequirement.
func NewSkillRequirement(in SkillRequirementInput) (SkillRequirement, error) {
	in = normalizeSkillInput(in)
	if err := NewValidationError(ValidateSkillRequirement(in)); err != nil {
		return SkillRequirement{}, err
	}
	return SkillRequirement(in), nil
}

// IsMustHave reports whether the requirement is mandatory.
func (s SkillRequirement) IsMustHave() bool {
	return s.Importance == ImportanceMustHave
}
