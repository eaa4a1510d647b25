package domain

import (
	"slices"
	"strings"
)

// Status identifies one lifecycle state of an opportunity.
type Status string

// Status values.
const (
	StatusDraft              Status = "draft"
	StatusSubmitted          Status = "submitted"
	StatusMatchingInProgress Status = "matching_in_progress"
	StatusMatchesFound       Status = "matches_found"
	StatusArchitectSelected  Status = "architect_selected"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// validStatuses stores every status in lifecycle order.
var validStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusMatchingInProgress,
	StatusMatchesFound,
	StatusArchitectSelected,
	StatusCompleted,
	StatusCancelled,
}

// forwardEdges maps each status to its single forward successor.
var forwardEdges = map[Status]Status{
	StatusDraft:              StatusSubmitted,
	StatusSubmitted:          StatusMatchingInProgress,
	StatusMatchingInProgress: StatusMatchesFound,
	StatusMatchesFound:       StatusArchitectSelected,
	StatusArchitectSelected:  StatusCompleted,
}

// Statuses returns all statuses in lifecycle order.
func Statuses() []Status {
	return append([]Status(nil), validStatuses...)
}

// ParseStatus normalizes raw into a known status.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	return status, slices.Contains(validStatuses, status)
}

func (s Status) Valid() bool {
	return slices.Contains(validStatuses, s)
}

// IsTerminal reports whether no regular edge leaves s. Cancelled counts as terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether s still counts towards the open pipeline.
func (s Status) IsActive() bool {
	return s.Valid() && !s.IsTerminal()
}

// Frozen reports whether field changes are locked in s.
func (s Status) Frozen() bool {
	return s == StatusArchitectSelected || s == StatusCompleted
}

// Label returns a human-readable status name.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusSubmitted:
		return "Submitted"
	case StatusMatchingInProgress:
		return "Matching In Progress"
	case StatusMatchesFound:
		return "Matches Found"
	case StatusArchitectSelected:
		return "Architect Selected"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// CanTransition reports whether from -> to is a regular lifecycle edge.
// Cancelled -> previous is not a regular edge; only Reactivate performs it.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusCancelled {
		return !from.IsTerminal()
	}
	next, ok := forwardEdges[from]
	return ok && next == to
}

// checkTransition returns a TransitionError when from -> to is not allowed.
func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
