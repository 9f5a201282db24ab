package irt

import (
	"fmt"
	"math"
	"slices"
)

// MinInformation is the total test information below which a standard error
// is considered undefined and the prior standard error is reported instead.
const MinInformation = 1e-12

// Item is a calibrated test item. Items are immutable once calibrated.
type Item struct {
	ID     string   `json:"id"`
	Params Params   `json:"params"`
	Tags   []string `json:"tags,omitempty"` // content/topic tags
}

// NewItem builds an item, validating its parameters.
func NewItem(id string, params Params, tags ...string) (Item, error) {
	if id == "" {
		return Item{}, fmt.Errorf("item id must not be empty")
	}
	if err := params.Validate(); err != nil {
		return Item{}, fmt.Errorf("item %q: %w", id, err)
	}
	return Item{ID: id, Params: params, Tags: slices.Clone(tags)}, nil
}

// Information is shorthand for it.Params.Information(theta).
func (it Item) Information(theta float64) float64 {
	return it.Params.Information(theta)
}

// TestInformation sums item information at theta.
func TestInformation(items []Item, theta float64) float64 {
	var total float64
	for _, it := range items {
		total += it.Information(theta)
	}
	return total
}

// StandardError converts total test information into a standard error.
// When the information is effectively zero, priorSE is returned.
func StandardError(totalInfo, priorSE float64) float64 {
	if math.IsNaN(totalInfo) || totalInfo < MinInformation {
		return priorSE
	}
	return 1 / math.Sqrt(totalInfo)
}
