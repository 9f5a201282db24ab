// Package selector chooses the next item to administer by maximum Fisher
// information at the current ability estimate.
package selector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
)

// ErrItemBankExhausted is returned when no eligible item remains.
var ErrItemBankExhausted = errors.New("item bank exhausted")

// DefaultTieTolerance is the absolute information difference under which two
// items are considered equally informative.
const DefaultTieTolerance = 1e-9

// Pool is the set of items a selection draws from.
type Pool interface {
	// Eligible returns the items not in excluding, in ascending ID order.
	Eligible(excluding map[string]bool) []irt.Item
}

// Config controls tie-breaking and exposure.
type Config struct {
	TieTolerance float64 `json:"tie_tolerance"`
	// RandomizeTies picks uniformly among tied items instead of the lowest ID.
	RandomizeTies bool `json:"randomize_ties"`
	// Randomesque, when > 1, picks uniformly among the N most informative
	// eligible items.
	Randomesque int `json:"randomesque"`
}

// DefaultConfig returns deterministic maximum-information selection.
func DefaultConfig() Config {
	return Config{TieTolerance: DefaultTieTolerance, Randomesque: 1}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TieTolerance < 0 || math.IsNaN(c.TieTolerance) {
		return fmt.Errorf("tie tolerance must be >= 0, got %v", c.TieTolerance)
	}
	if c.Randomesque < 0 {
		return fmt.Errorf("randomesque window must be >= 0, got %d", c.Randomesque)
	}
	return nil
}

// Randomized reports whether selection consumes randomness.
func (c Config) Randomized() bool {
	return c.RandomizeTies || c.Randomesque > 1
}

// Source returns the generator used for the selection with the given
// 1-based ordinal of an attempt seeded with seed. The same pair always
// yields the same stream, so persisted attempts replay identically.
func Source(seed uint64, ordinal int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(ordinal)))
}

// Selector applies a Config to pools.
type Selector struct {
	cfg Config
}

// New creates a Selector.
func New(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

type candidate struct {
	item irt.Item
	info float64
}

// Select returns the eligible item with the highest information at theta.
// rng is only consulted when the configuration is randomized; a nil rng
// always falls back to the lowest-ID rule.
func (s *Selector) Select(pool Pool, theta float64, administered map[string]bool, rng *rand.Rand) (irt.Item, error) {
	eligible := pool.Eligible(administered)
	if len(eligible) == 0 {
		return irt.Item{}, ErrItemBankExhausted
	}

	cands := make([]candidate, len(eligible))
	best := math.Inf(-1)
	for i, it := range eligible {
		info := it.Information(theta)
		if math.IsNaN(info) {
			info = 0
		}
		cands[i] = candidate{item: it, info: info}
		if info > best {
			best = info
		}
	}

	if s.cfg.Randomesque > 1 && rng != nil {
		// Stable sort keeps ascending ID order among equal information.
		slices.SortStableFunc(cands, func(x, y candidate) int {
			switch {
			case x.info > y.info:
				return -1
			case x.info < y.info:
				return 1
			}
			return 0
		})
		n := min(s.cfg.Randomesque, len(cands))
		return cands[rng.IntN(n)].item, nil
	}

	var tied []irt.Item
	for _, c := range cands {
		if best-c.info <= s.cfg.TieTolerance {
			tied = append(tied, c.item)
		}
	}
	if s.cfg.RandomizeTies && rng != nil && len(tied) > 1 {
		return tied[rng.IntN(len(tied))], nil
	}
	return tied[0], nil
}
