// Package estimator computes ability estimates from scored responses.
//
// Estimate is a pure function: it is recomputed from the full response set
// after every answer, warm-started from the previous theta.
package estimator

import (
	"fmt"
	"math"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
)

// Method selects the estimation objective.
type Method string

const (
	// MethodMLE maximises the response log-likelihood.
	MethodMLE Method = "mle"
	// MethodMAP maximises the posterior under a normal prior.
	MethodMAP Method = "map"
)

// minCurvature is the largest (least negative) observed curvature accepted
// for a Newton step before falling back to Fisher scoring.
const minCurvature = -1e-12

// Config controls estimation.
type Config struct {
	Method        Method  `json:"method"`
	PriorTheta    float64 `json:"prior_theta"`
	PriorSE       float64 `json:"prior_se"`
	MinTheta      float64 `json:"min_theta"`
	MaxTheta      float64 `json:"max_theta"`
	Tolerance     float64 `json:"tolerance"`
	MaxIterations int     `json:"max_iterations"`
	MaxStep       float64 `json:"max_step"`
}

// DefaultConfig returns maximum-likelihood estimation on [-4, 4] with a
// standard normal prior used for the starting point and the initial SE.
func DefaultConfig() Config {
	return Config{
		Method:        MethodMLE,
		PriorTheta:    0,
		PriorSE:       1,
		MinTheta:      -4,
		MaxTheta:      4,
		Tolerance:     1e-4,
		MaxIterations: 50,
		MaxStep:       1,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	switch {
	case c.Method != MethodMLE && c.Method != MethodMAP:
		return fmt.Errorf("unknown estimation method %q", c.Method)
	case !(c.MinTheta < c.MaxTheta):
		return fmt.Errorf("min theta %v must be below max theta %v", c.MinTheta, c.MaxTheta)
	case c.PriorTheta < c.MinTheta || c.PriorTheta > c.MaxTheta:
		return fmt.Errorf("prior theta %v outside [%v, %v]", c.PriorTheta, c.MinTheta, c.MaxTheta)
	case !(c.PriorSE > 0):
		return fmt.Errorf("prior SE must be > 0, got %v", c.PriorSE)
	case !(c.Tolerance > 0):
		return fmt.Errorf("tolerance must be > 0, got %v", c.Tolerance)
	case c.MaxIterations < 1:
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIterations)
	case !(c.MaxStep > 0):
		return fmt.Errorf("max step must be > 0, got %v", c.MaxStep)
	}
	return nil
}

// Observation is one scored response to a calibrated item.
type Observation struct {
	Params  irt.Params
	Correct bool
}

// AbilityEstimate is the result of one estimation pass.
type AbilityEstimate struct {
	Theta         float64 `json:"theta"`
	StandardError float64 `json:"standard_error"`
	Iterations    int     `json:"iterations"`
	Converged     bool    `json:"converged"`
}

// Prior returns the estimate reported before any response exists.
func Prior(cfg Config) AbilityEstimate {
	return AbilityEstimate{
		Theta:         cfg.PriorTheta,
		StandardError: cfg.PriorSE,
		Converged:     true,
	}
}

// Estimate runs Newton-Raphson from start and returns the estimate.
//
// When the observed curvature is not negative, which can happen with a
// guessing floor, the step uses expected information instead. If the
// objective keeps increasing past MinTheta or MaxTheta the estimate is pinned
// to that bound and reported as not converged. Estimate never fails.
func Estimate(obs []Observation, start float64, cfg Config) AbilityEstimate {
	if len(obs) == 0 {
		return Prior(cfg)
	}
	if math.IsNaN(start) {
		start = cfg.PriorTheta
	}
	theta := clamp(start, cfg.MinTheta, cfg.MaxTheta)

	var (
		iterations int
		converged  bool
	)
	for iterations < cfg.MaxIterations {
		iterations++
		grad, curv, info := derivatives(obs, theta, cfg)

		var step float64
		switch {
		case curv < minCurvature:
			step = -grad / curv
		case info > irt.MinInformation:
			step = grad / info
		}
		if math.IsNaN(step) {
			break
		}
		step = clamp(step, -cfg.MaxStep, cfg.MaxStep)

		raw := theta + step
		next := clamp(raw, cfg.MinTheta, cfg.MaxTheta)
		if next != raw {
			if next == theta {
				// Pinned: the objective still rises beyond the bound.
				break
			}
			// A clamped step never counts toward convergence; the next
			// iteration decides whether the bound holds.
			theta = next
			continue
		}
		delta := next - theta
		theta = next
		if math.Abs(delta) < cfg.Tolerance {
			converged = true
			break
		}
	}

	_, _, info := derivatives(obs, theta, cfg)
	return AbilityEstimate{
		Theta:         theta,
		StandardError: irt.StandardError(info, cfg.PriorSE),
		Iterations:    iterations,
		Converged:     converged,
	}
}

// derivatives returns the first and second derivatives of the objective and
// the expected information at theta. For MAP the normal prior is included.
func derivatives(obs []Observation, theta float64, cfg Config) (grad, curv, info float64) {
	for _, o := range obs {
		p := irt.ClampProb(o.Params.Prob(theta))
		d1 := o.Params.Derivative(theta)
		d2 := o.Params.SecondDerivative(theta)

		var r, w float64
		if o.Correct {
			r = 1 / p
			w = 1 / (p * p)
		} else {
			r = -1 / (1 - p)
			w = 1 / ((1 - p) * (1 - p))
		}
		grad += d1 * r
		curv += d2*r - d1*d1*w
		info += d1 * d1 / (p * (1 - p))
	}
	if cfg.Method == MethodMAP {
		v := cfg.PriorSE * cfg.PriorSE
		grad -= (theta - cfg.PriorTheta) / v
		curv -= 1 / v
		info += 1 / v
	}
	return grad, curv, info
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
