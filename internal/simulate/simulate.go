// Package simulate runs simulated examinees with known abilities through the
// adaptive engine and reports how well their abilities are recovered.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

// Config describes a simulation run.
type Config struct {
	Examinees int
	// Seed fixes true abilities, responses and randomized selection.
	Seed    uint64
	Workers int
	// True abilities are drawn from N(ThetaMean, ThetaSD²).
	ThetaMean float64
	ThetaSD   float64
	Attempt   attempt.Config
}

func DefaultConfig() Config {
	return Config{
		Examinees: 500,
		Seed:      1,
		Workers:   runtime.GOMAXPROCS(0),
		ThetaSD:   1,
		Attempt:   attempt.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Examinees < 1 {
		errs = append(errs, fmt.Errorf("examinees must be >= 1, got %d", c.Examinees))
	}
	if c.ThetaSD < 0 || math.IsNaN(c.ThetaSD) {
		errs = append(errs, fmt.Errorf("theta sd must be >= 0, got %v", c.ThetaSD))
	}
	if err := c.Attempt.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Examinee is the result for one simulated test taker.
type Examinee struct {
	Index         int
	TrueTheta     float64
	Theta         float64
	StandardError float64
	Converged     bool
	Items         int
	Correct       int
	Reason        stopping.Reason
	Administered  []string
}

// Residual is the estimation error, estimate minus true ability.
func (e Examinee) Residual() float64 { return e.Theta - e.TrueTheta }

// Exposure is how often one item was administered.
type Exposure struct {
	ItemID string
	Count  int
	Rate   float64
}

type Report struct {
	Examinees    []Examinee
	Bias         float64
	RMSE         float64
	MeanItems    float64
	MeanSE       float64
	NonConverged int
	Reasons      map[stopping.Reason]int
	// Exposure lists administered items, most exposed first.
	Exposure []Exposure
}

// Run simulates cfg.Examinees test takers against the controller's bank.
// Results depend only on cfg, not on worker scheduling.
func Run(ctx context.Context, ctrl *attempt.Controller, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results := make([]Examinee, cfg.Examinees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range results {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ex, err := examine(ctrl, cfg, i)
			if err != nil {
				return fmt.Errorf("examinee %d: %w", i, err)
			}
			results[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(results), nil
}

func examine(ctrl *attempt.Controller, cfg Config, i int) (Examinee, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
	trueTheta := cfg.ThetaMean + cfg.ThetaSD*rng.NormFloat64()

	acfg := cfg.Attempt
	acfg.Seed = cfg.Seed ^ (uint64(i) + 1)
	a := attempt.New(fmt.Sprintf("sim-%05d", i), acfg)

	item, err := ctrl.Start(a)
	if err != nil {
		return Examinee{}, err
	}
	for {
		correct := rng.Float64() < item.Params.Prob(trueTheta)
		out, err := ctrl.Submit(a, item.ID, correct)
		if err != nil {
			return Examinee{}, err
		}
		if out.Complete() {
			s := out.Summary
			return Examinee{
				Index:         i,
				TrueTheta:     trueTheta,
				Theta:         s.Theta,
				StandardError: s.StandardError,
				Converged:     s.Converged,
				Items:         s.ItemCount,
				Correct:       s.CorrectCount,
				Reason:        s.StopReason,
				Administered:  s.AdministeredIDs,
			}, nil
		}
		item = *out.Next
	}
}

func summarize(results []Examinee) *Report {
	r := &Report{Examinees: results, Reasons: make(map[stopping.Reason]int)}
	exposure := make(map[string]int)
	var sumErr, sumSq, sumItems, sumSE float64
	for _, ex := range results {
		e := ex.Residual()
		sumErr += e
		sumSq += e * e
		sumItems += float64(ex.Items)
		sumSE += ex.StandardError
		if !ex.Converged {
			r.NonConverged++
		}
		r.Reasons[ex.Reason]++
		for _, id := range ex.Administered {
			exposure[id]++
		}
	}
	n := float64(len(results))
	r.Bias = sumErr / n
	r.RMSE = math.Sqrt(sumSq / n)
	r.MeanItems = sumItems / n
	r.MeanSE = sumSE / n

	r.Exposure = make([]Exposure, 0, len(exposure))
	for id, count := range exposure {
		r.Exposure = append(r.Exposure, Exposure{ItemID: id, Count: count, Rate: float64(count) / n})
	}
	slices.SortFunc(r.Exposure, func(a, b Exposure) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return r
}
