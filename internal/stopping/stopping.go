// Package stopping decides when an adaptive test has gathered enough
// responses.
package stopping

import (
	"fmt"
	"math"

	"github.com/02061997/ai-tutor-experiment/internal/estimator"
)

// Reason explains why a test stopped.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMaxItems      Reason = "max_items"
	ReasonTargetSE      Reason = "target_se"
	ReasonBankExhausted Reason = "bank_exhausted"
)

// Decision is the outcome of evaluating a Rule.
type Decision struct {
	Stop   bool
	Reason Reason
}

// Continue is the zero decision.
var Continue = Decision{}

// Rule combines a test-length window with an optional precision target.
// A zero TargetSE disables the precision rule.
type Rule struct {
	MinItems int     `json:"min_items"`
	MaxItems int     `json:"max_items"`
	TargetSE float64 `json:"target_se"`
}

// DefaultRule is a fixed-length test of 20 items, the length the study ran
// with.
func DefaultRule() Rule {
	return Rule{MinItems: 1, MaxItems: 20}
}

// Validate checks the rule.
func (r Rule) Validate() error {
	switch {
	case r.MaxItems < 1:
		return fmt.Errorf("max items must be >= 1, got %d", r.MaxItems)
	case r.MinItems < 0:
		return fmt.Errorf("min items must be >= 0, got %d", r.MinItems)
	case r.MinItems > r.MaxItems:
		return fmt.Errorf("min items %d exceeds max items %d", r.MinItems, r.MaxItems)
	case r.TargetSE < 0 || math.IsNaN(r.TargetSE):
		return fmt.Errorf("target SE must be >= 0, got %v", r.TargetSE)
	}
	return nil
}

// Evaluate applies the rule after administered items have been answered.
// Checks run in order: minimum length, maximum length, precision.
func (r Rule) Evaluate(est estimator.AbilityEstimate, administered int) Decision {
	if administered < r.MinItems {
		return Continue
	}
	if administered >= r.MaxItems {
		return Decision{Stop: true, Reason: ReasonMaxItems}
	}
	if r.TargetSE > 0 && est.StandardError <= r.TargetSE {
		return Decision{Stop: true, Reason: ReasonTargetSE}
	}
	return Continue
}
