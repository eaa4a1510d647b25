package domain

import "time"

// StatusRecord is one entry of the status history ledger.
type StatusRecord struct {
	Seq     int64     `json:"seq"`
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	ActorID string    `json:"actor_id"`
	Reason  string    `json:"reason,omitempty"`
}

// ChangeRecord is one entry of the change audit ledger.
type ChangeRecord struct {
	Seq      int64     `json:"seq"`
	Field    string    `json:"field"`
	OldValue string    `json:"old_value"`
	NewValue string    `json:"new_value"`
	At       time.Time `json:"at"`
	ActorID  string    `json:"actor_id"`
	Reason   string    `json:"reason,omitempty"`
}

// nextStamp returns the next ledger timestamp and sequence for o.
// Timestamps are strictly increasing across both ledgers of one opportunity.
func (o *Opportunity) nextStamp(now time.Time) (time.Time, int64) {
	at := now.UTC()
	var last time.Time
	var seq int64
	if n := len(o.StatusHistory); n > 0 {
		last = o.StatusHistory[n-1].At
		seq = o.StatusHistory[n-1].Seq
	}
	if n := len(o.Changes); n > 0 {
		if o.Changes[n-1].At.After(last) {
			last = o.Changes[n-1].At
		}
		seq = max(seq, o.Changes[n-1].Seq)
	}
	if !last.IsZero() && !at.After(last) {
		at = last.Add(time.Nanosecond)
	}
	return at, seq + 1
}

// appendStatus records a status change and returns the stamped time.
func (o *Opportunity) appendStatus(status Status, actorID, reason string, now time.Time) time.Time {
	at, seq := o.nextStamp(now)
	o.StatusHistory = append(o.StatusHistory, StatusRecord{
		Seq:     seq,
		Status:  status,
		At:      at,
		ActorID: actorID,
		Reason:  reason,
	})
	o.Status = status
	o.UpdatedAt = at
	return at
}

// appendChange records a field change and returns the stamped time.
func (o *Opportunity) appendChange(field, oldValue, newValue, actorID, reason string, now time.Time) time.Time {
	at, seq := o.nextStamp(now)
	o.Changes = append(o.Changes, ChangeRecord{
		Seq:      seq,
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		At:       at,
		ActorID:  actorID,
		Reason:   reason,
	})
	o.UpdatedAt = at
	return at
}

// History returns the status ledger, oldest first.
func (o Opportunity) History() []StatusRecord {
	return append([]StatusRecord(nil), o.StatusHistory...)
}

// ChangeLog returns the change ledger, oldest first.
func (o Opportunity) ChangeLog() []ChangeRecord {
	return append([]ChangeRecord(nil), o.Changes...)
}

// LastStatusRecord returns the newest status record.
func (o Opportunity) LastStatusRecord() (StatusRecord, bool) {
	if len(o.StatusHistory) == 0 {
		return StatusRecord{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// ValidateLedgers checks ledger ordering and that the status ledger agrees with Status.
func ValidateLedgers(o Opportunity) []string {
	var violations []string
	last, ok := o.LastStatusRecord()
	if !ok {
		violations = append(violations, "status history is empty")
	} else if last.Status != o.Status {
		violations = append(violations, "latest status record does not match status")
	}
	for i := 1; i < len(o.StatusHistory); i++ {
		if !o.StatusHistory[i].At.After(o.StatusHistory[i-1].At) {
			violations = append(violations, "status history timestamps are not strictly increasing")
			break
		}
	}
	for i := 1; i < len(o.Changes); i++ {
		if o.Changes[i].Seq <= o.Changes[i-1].Seq {
			violations = append(violations, "change records are out of order")
			break
		}
	}
	return violations
}
