package attempt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/estimator"
	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/selector"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

// Bank is the item source the controller selects from.
type Bank interface {
	selector.Pool
	Get(id string) (irt.Item, error)
}

// Outcome is the result of a successful Submit.
type Outcome struct {
	Estimate estimator.AbilityEstimate
	// Next is the newly pending item; nil once the attempt completes.
	Next *irt.Item
	// Summary is set when the attempt completed with this response.
	Summary *Summary
}

// Complete reports whether the attempt finished.
func (o Outcome) Complete() bool { return o.Summary != nil }

// Controller advances attempts against one bank. It holds no per-attempt
// state and may be shared; callers serialize operations on a given attempt.
type Controller struct {
	bank Bank
	now  func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller.
func NewController(bank Bank, opts ...Option) *Controller {
	c := &Controller{bank: bank, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Bank returns the bank the controller draws from.
func (c *Controller) Bank() Bank { return c.bank }

// Start moves a not-started attempt into progress and returns the first item,
// chosen at the prior ability. If the bank has nothing to offer the attempt
// is left not started.
func (c *Controller) Start(a *Attempt) (irt.Item, error) {
	if _, ok := a.state.(NotStarted); !ok {
		return irt.Item{}, fmt.Errorf("%w: attempt %s is %s", ErrAlreadyStarted, a.ID, a.Status())
	}

	est := estimator.Prior(a.Config.Estimator)
	item, err := c.selectNext(a, est.Theta, nil, 1)
	if err != nil {
		return irt.Item{}, err
	}

	a.state = InProgress{History: History{Estimate: est}, Pending: item}
	return item, nil
}

// Submit records the response to the pending item, re-estimates ability and
// either completes the attempt or issues the next item. On error the attempt
// is unchanged.
func (c *Controller) Submit(a *Attempt, itemID string, correct bool) (Outcome, error) {
	ip, ok := a.state.(InProgress)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: attempt %s is %s", ErrNotInProgress, a.ID, a.Status())
	}
	if itemID != ip.Pending.ID {
		return Outcome{}, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedItem, ip.Pending.ID, itemID)
	}

	h := ip.History.with(ip.Pending, correct)
	h.Estimate = estimator.Estimate(h.observations(), ip.History.Estimate.Theta, a.Config.Estimator)
	h.Estimate.StandardError = reportedSE(ip.History.Estimate, ip.Pending, h.Estimate.StandardError)

	if d := a.Config.Stopping.Evaluate(h.Estimate, h.Len()); d.Stop {
		return c.complete(a, h, d.Reason), nil
	}

	next, err := c.selectNext(a, h.Estimate.Theta, h.administeredSet(), h.Len()+1)
	if errors.Is(err, selector.ErrItemBankExhausted) {
		return c.complete(a, h, stopping.ReasonBankExhausted), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	a.state = InProgress{History: h, Pending: next}
	return Outcome{Estimate: h.Estimate, Next: &next}, nil
}

// Abort ends a non-terminal attempt. It reports whether the state changed;
// aborting a terminal attempt is a no-op.
func (c *Controller) Abort(a *Attempt, reason string) bool {
	if a.Status().Terminal() {
		return false
	}
	a.state = Aborted{History: a.History(), Reason: reason, AbortedAt: c.now().UTC()}
	return true
}

func (c *Controller) complete(a *Attempt, h History, reason stopping.Reason) Outcome {
	sum := Summarize(h, reason, a.Config.WeakTopic, c.now().UTC())
	a.state = Completed{History: h, Summary: sum}
	return Outcome{Estimate: h.Estimate, Summary: &sum}
}

// reportedSE keeps the standard error from growing after an informative
// response. Evaluated at a new theta the information sum can shrink, most
// sharply when the estimate jumps to a bound.
func reportedSE(prev estimator.AbilityEstimate, answered irt.Item, se float64) float64 {
	if answered.Information(prev.Theta) > irt.MinInformation && se > prev.StandardError {
		return prev.StandardError
	}
	return se
}

// selectNext picks the item for the given 1-based selection ordinal.
func (c *Controller) selectNext(a *Attempt, theta float64, administered map[string]bool, ordinal int) (irt.Item, error) {
	var rng *rand.Rand
	if a.Config.Selection.Randomized() {
		rng = selector.Source(a.Config.Seed, ordinal)
	}
	return selector.New(a.Config.Selection).Select(c.bank, theta, administered, rng)
}
