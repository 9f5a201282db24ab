package attempt

import (
	"errors"
	"fmt"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/estimator"
)

// ErrCorruptRecord is returned when a persisted record violates the attempt
// invariants.
var ErrCorruptRecord = errors.New("corrupt attempt record")

// Record is the serializable form of an attempt. Items are stored by id and
// resolved against the bank on Restore.
type Record struct {
	ID           string                    `json:"id"`
	Status       Status                    `json:"status"`
	Config       Config                    `json:"config"`
	Administered []string                  `json:"administered,omitempty"`
	Responses    []Response                `json:"responses,omitempty"`
	Estimate     estimator.AbilityEstimate `json:"estimate"`
	Pending      string                    `json:"pending,omitempty"`
	Summary      *Summary                  `json:"summary,omitempty"`
	AbortReason  string                    `json:"abort_reason,omitempty"`
	AbortedAt    *time.Time                `json:"aborted_at,omitempty"`
}

// Record captures the attempt's current state.
func (a *Attempt) Record() Record {
	h := a.History()
	rec := Record{
		ID:           a.ID,
		Status:       a.Status(),
		Config:       a.Config,
		Administered: h.AdministeredIDs(),
		Responses:    h.Responses,
		Estimate:     h.Estimate,
	}
	switch s := a.state.(type) {
	case InProgress:
		rec.Pending = s.Pending.ID
	case Completed:
		sum := s.Summary
		rec.Summary = &sum
	case Aborted:
		rec.AbortReason = s.Reason
		at := s.AbortedAt
		rec.AbortedAt = &at
	}
	return rec
}

// Restore rebuilds an attempt from rec, resolving items through bank.
// Unknown item ids surface the bank's not-found error.
func Restore(rec Record, bank Bank) (*Attempt, error) {
	if len(rec.Administered) != len(rec.Responses) {
		return nil, fmt.Errorf("%w: %d items but %d responses", ErrCorruptRecord, len(rec.Administered), len(rec.Responses))
	}

	h := History{Estimate: rec.Estimate}
	seen := make(map[string]bool, len(rec.Administered))
	for i, id := range rec.Administered {
		if seen[id] {
			return nil, fmt.Errorf("%w: item %s administered twice", ErrCorruptRecord, id)
		}
		seen[id] = true
		if r := rec.Responses[i]; r.ItemID != id || r.Sequence != i+1 {
			return nil, fmt.Errorf("%w: response %d does not match item %s", ErrCorruptRecord, i+1, id)
		}
		it, err := bank.Get(id)
		if err != nil {
			return nil, fmt.Errorf("restore attempt %s: %w", rec.ID, err)
		}
		h.Administered = append(h.Administered, it)
	}
	h.Responses = append([]Response(nil), rec.Responses...)

	a := &Attempt{ID: rec.ID, Config: rec.Config}
	switch rec.Status {
	case StatusNotStarted:
		if len(h.Administered) > 0 {
			return nil, fmt.Errorf("%w: not started with history", ErrCorruptRecord)
		}
		a.state = NotStarted{}
	case StatusInProgress:
		if rec.Pending == "" || seen[rec.Pending] {
			return nil, fmt.Errorf("%w: invalid pending item %q", ErrCorruptRecord, rec.Pending)
		}
		pending, err := bank.Get(rec.Pending)
		if err != nil {
			return nil, fmt.Errorf("restore attempt %s: %w", rec.ID, err)
		}
		a.state = InProgress{History: h, Pending: pending}
	case StatusCompleted:
		if rec.Summary == nil {
			return nil, fmt.Errorf("%w: completed without summary", ErrCorruptRecord)
		}
		a.state = Completed{History: h, Summary: *rec.Summary}
	case StatusAborted:
		var at time.Time
		if rec.AbortedAt != nil {
			at = *rec.AbortedAt
		}
		a.state = Aborted{History: h, Reason: rec.AbortReason, AbortedAt: at}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrCorruptRecord, rec.Status)
	}
	return a, nil
}
