package domain

import (
	"slices"
	"time"
)

// TimelineRequirement is the engagement window of an opportunity.
type TimelineRequirement struct {
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	SpecificDays []time.Time `json:"specific_days,omitempty"`
	Flexible     bool        `json:"flexible"`
}

// TimelineInput holds write-time values for a timeline requirement.
type TimelineInput struct {
	Start        time.Time
	End          time.Time
	SpecificDays []time.Time
	Flexible     bool
}

// NewTimelineRequirement validates in and builds a TimelineRequirement.
// Specific days are stored as UTC dates, sorted and deduplicated.
func NewTimelineRequirement(in TimelineInput) (TimelineRequirement, error) {
	in.Start = in.Start.UTC()
	in.End = in.End.UTC()
	if err := NewValidationError(ValidateTimeline(in)); err != nil {
		return TimelineRequirement{}, err
	}

	var days []time.Time
	for _, day := range in.SpecificDays {
		d := utcDate(day)
		if !slices.ContainsFunc(days, d.Equal) {
			days = append(days, d)
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	return TimelineRequirement{
		Start:        in.Start,
		End:          in.End,
		SpecificDays: days,
		Flexible:     in.Flexible,
	}, nil
}

// utcDate truncates t to midnight of its UTC calendar date.
func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Duration returns the length of the window.
func (t TimelineRequirement) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

func (t TimelineRequirement) clone() *TimelineRequirement {
	out := t
	out.SpecificDays = append([]time.Time(nil), t.SpecificDays...)
	return &out
}
