// Package attempt models one examinee's pass through an adaptive quiz and
// the controller that advances it.
package attempt

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/estimator"
	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/selector"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("attempt already started")
	// ErrUnexpectedItem is returned when a response names an item other
	// than the one pending.
	ErrUnexpectedItem = errors.New("response does not match the pending item")
	// ErrNotInProgress is returned when a response arrives for an attempt
	// that is not in progress.
	ErrNotInProgress = errors.New("attempt is not in progress")
)

// Status names the lifecycle stage of an attempt.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// WeakTopicRule flags a topic as weak when accuracy on it is below
// MaxAccuracy across at least MinItems answered items.
type WeakTopicRule struct {
	MaxAccuracy float64 `json:"max_accuracy"`
	MinItems    int     `json:"min_items"`
}

// Config fixes the engine behaviour for one attempt. It is stored with the
// attempt so later configuration changes do not affect running attempts.
type Config struct {
	Estimator estimator.Config `json:"estimator"`
	Stopping  stopping.Rule    `json:"stopping"`
	Selection selector.Config  `json:"selection"`
	// Seed drives randomized selection. Unused when selection is
	// deterministic.
	Seed      uint64        `json:"seed,omitempty"`
	WeakTopic WeakTopicRule `json:"weak_topic"`
}

// DefaultConfig returns a 20-item maximum-likelihood test with deterministic
// selection.
func DefaultConfig() Config {
	return Config{
		Estimator: estimator.DefaultConfig(),
		Stopping:  stopping.DefaultRule(),
		Selection: selector.DefaultConfig(),
		WeakTopic: WeakTopicRule{MaxAccuracy: 0.5, MinItems: 2},
	}
}

// Validate checks every part of the configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.Estimator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("estimator: %w", err))
	}
	if err := c.Stopping.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stopping: %w", err))
	}
	if err := c.Selection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("selection: %w", err))
	}
	if c.WeakTopic.MaxAccuracy < 0 || c.WeakTopic.MaxAccuracy > 1 {
		errs = append(errs, fmt.Errorf("weak topic: max accuracy must be in [0, 1], got %v", c.WeakTopic.MaxAccuracy))
	}
	if c.WeakTopic.MinItems < 1 {
		errs = append(errs, fmt.Errorf("weak topic: min items must be >= 1, got %d", c.WeakTopic.MinItems))
	}
	return errors.Join(errs...)
}

// Response is one scored answer. Sequence is the 1-based position.
type Response struct {
	ItemID   string `json:"item_id"`
	Correct  bool   `json:"correct"`
	Sequence int    `json:"sequence"`
}

// History is everything answered so far. Administered and Responses are
// index-aligned.
type History struct {
	Administered []irt.Item
	Responses    []Response
	Estimate     estimator.AbilityEstimate
}

// Len returns the number of answered items.
func (h History) Len() int { return len(h.Responses) }

// CorrectCount returns the number of correct responses.
func (h History) CorrectCount() int {
	n := 0
	for _, r := range h.Responses {
		if r.Correct {
			n++
		}
	}
	return n
}

// AdministeredIDs returns answered item ids in order.
func (h History) AdministeredIDs() []string {
	ids := make([]string, len(h.Administered))
	for i, it := range h.Administered {
		ids[i] = it.ID
	}
	return ids
}

func (h History) administeredSet(extra ...string) map[string]bool {
	set := make(map[string]bool, len(h.Administered)+len(extra))
	for _, it := range h.Administered {
		set[it.ID] = true
	}
	for _, id := range extra {
		set[id] = true
	}
	return set
}

func (h History) observations() []estimator.Observation {
	obs := make([]estimator.Observation, len(h.Administered))
	for i, it := range h.Administered {
		obs[i] = estimator.Observation{Params: it.Params, Correct: h.Responses[i].Correct}
	}
	return obs
}

// with returns a copy of h extended by one answered item. h is not modified.
func (h History) with(it irt.Item, correct bool) History {
	next := History{
		Administered: append(slices.Clone(h.Administered), it),
		Responses: append(slices.Clone(h.Responses), Response{
			ItemID:   it.ID,
			Correct:  correct,
			Sequence: len(h.Responses) + 1,
		}),
		Estimate: h.Estimate,
	}
	return next
}

// State is the tagged lifecycle variant of an attempt. The concrete types
// are NotStarted, InProgress, Completed and Aborted.
type State interface {
	Status() Status
	isState()
}

// NotStarted is the initial state.
type NotStarted struct{}

// InProgress holds the answered history and the item awaiting a response.
type InProgress struct {
	History History
	Pending irt.Item
}

// Completed is terminal; the summary is final.
type Completed struct {
	History History
	Summary Summary
}

// Aborted is terminal.
type Aborted struct {
	History   History
	Reason    string
	AbortedAt time.Time
}

func (NotStarted) Status() Status { return StatusNotStarted }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }
func (Aborted) Status() Status    { return StatusAborted }

func (NotStarted) isState() {}
func (InProgress) isState() {}
func (Completed) isState()  {}
func (Aborted) isState()    {}

// Attempt is the aggregate the controller mutates.
type Attempt struct {
	ID     string
	Config Config
	state  State
}

// New creates a not-started attempt.
func New(id string, cfg Config) *Attempt {
	return &Attempt{ID: id, Config: cfg, state: NotStarted{}}
}

// State returns the current lifecycle variant.
func (a *Attempt) State() State { return a.state }

// Status is shorthand for a.State().Status().
func (a *Attempt) Status() Status { return a.state.Status() }

// History returns the answered history; empty before the attempt starts.
func (a *Attempt) History() History {
	switch s := a.state.(type) {
	case InProgress:
		return s.History
	case Completed:
		return s.History
	case Aborted:
		return s.History
	}
	return History{Estimate: estimator.Prior(a.Config.Estimator)}
}

// Pending returns the item awaiting a response, if any.
func (a *Attempt) Pending() (irt.Item, bool) {
	if s, ok := a.state.(InProgress); ok {
		return s.Pending, true
	}
	return irt.Item{}, false
}

// Summary returns the completion summary of a completed attempt.
func (a *Attempt) Summary() (Summary, bool) {
	if s, ok := a.state.(Completed); ok {
		return s.Summary, true
	}
	return Summary{}, false
}
