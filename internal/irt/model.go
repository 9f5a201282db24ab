// Package irt implements the four-parameter logistic item response model
// used by the adaptive quiz engine.
//
// With d = 1 the model reduces to the familiar 3PL form
//
//	P(θ) = c + (d − c) / (1 + exp(−a(θ − b)))
//
// where a is discrimination, b difficulty, c the pseudo-guessing floor and
// d the upper asymptote.
package irt

import (
	"fmt"
	"math"
)

// ProbEpsilon keeps response probabilities inside [ProbEpsilon, 1-ProbEpsilon]
// wherever they are divided by or passed to a logarithm. Raising it trades
// accuracy near the asymptotes for numerical headroom.
const ProbEpsilon = 1e-7

// Params holds the calibrated parameters of a single item.
type Params struct {
	A float64 `json:"a"` // discrimination, > 0
	B float64 `json:"b"` // difficulty
	C float64 `json:"c"` // pseudo-guessing, in [0, 1)
	D float64 `json:"d"` // upper asymptote, in (0, 1]
}

// Validate reports whether the parameters describe a usable item.
func (p Params) Validate() error {
	switch {
	case !isFinite(p.A) || p.A <= 0:
		return fmt.Errorf("discrimination a must be finite and > 0, got %v", p.A)
	case !isFinite(p.B):
		return fmt.Errorf("difficulty b must be finite, got %v", p.B)
	case !isFinite(p.C) || p.C < 0 || p.C >= 1:
		return fmt.Errorf("guessing c must be in [0, 1), got %v", p.C)
	case !isFinite(p.D) || p.D <= 0 || p.D > 1:
		return fmt.Errorf("upper asymptote d must be in (0, 1], got %v", p.D)
	case p.C >= p.D:
		return fmt.Errorf("guessing c (%v) must be below upper asymptote d (%v)", p.C, p.D)
	}
	return nil
}

// Prob returns the probability of a correct response at ability theta.
func (p Params) Prob(theta float64) float64 {
	return p.C + (p.D-p.C)*logistic(p.A*(theta-p.B))
}

// Derivative returns dP/dθ at theta.
func (p Params) Derivative(theta float64) float64 {
	s := logistic(p.A * (theta - p.B))
	return p.A * (p.D - p.C) * s * (1 - s)
}

// SecondDerivative returns d²P/dθ² at theta.
func (p Params) SecondDerivative(theta float64) float64 {
	s := logistic(p.A * (theta - p.B))
	return p.A * p.A * (p.D - p.C) * s * (1 - s) * (1 - 2*s)
}

// Information returns the Fisher information the item carries at theta:
//
//	I(θ) = P′(θ)² / (P(θ)(1 − P(θ)))
func (p Params) Information(theta float64) float64 {
	pr := ClampProb(p.Prob(theta))
	d := p.Derivative(theta)
	return d * d / (pr * (1 - pr))
}

// ClampProb bounds a probability to [ProbEpsilon, 1-ProbEpsilon].
func ClampProb(pr float64) float64 {
	switch {
	case math.IsNaN(pr):
		return 0.5
	case pr < ProbEpsilon:
		return ProbEpsilon
	case pr > 1-ProbEpsilon:
		return 1 - ProbEpsilon
	}
	return pr
}

// logistic is 1/(1+e^-z), evaluated without overflowing for large |z|.
func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
