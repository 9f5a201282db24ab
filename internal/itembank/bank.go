// Package itembank holds the calibrated items an adaptive test draws from.
//
// A Bank is immutable after construction and safe for concurrent reads.
package itembank

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
)

// ErrNotFound is returned when an item id is not in the bank.
var ErrNotFound = errors.New("item not found")

// Bank is a read-only, ID-ordered collection of calibrated items.
type Bank struct {
	items []irt.Item
	byID  map[string]int
}

// New builds a bank from items. Parameters are validated and duplicate ids
// rejected. Items are ordered by ascending id.
func New(items []irt.Item) (*Bank, error) {
	b := &Bank{
		items: make([]irt.Item, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item with empty id")
		}
		if err := it.Params.Validate(); err != nil {
			return nil, fmt.Errorf("item %q: %w", it.ID, err)
		}
		if _, dup := b.byID[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		b.byID[it.ID] = -1
		it.Tags = slices.Clone(it.Tags)
		b.items = append(b.items, it)
	}

	slices.SortFunc(b.items, func(x, y irt.Item) int { return strings.Compare(x.ID, y.ID) })
	for i, it := range b.items {
		b.byID[it.ID] = i
	}
	return b, nil
}

// Get returns the item with the given id.
func (b *Bank) Get(id string) (irt.Item, error) {
	i, ok := b.byID[id]
	if !ok {
		return irt.Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return detach(b.items[i]), nil
}

// Eligible returns every item whose id is not in excluding, in ascending id
// order. A nil set excludes nothing.
func (b *Bank) Eligible(excluding map[string]bool) []irt.Item {
	out := make([]irt.Item, 0, len(b.items)-min(len(excluding), len(b.items)))
	for _, it := range b.items {
		if !excluding[it.ID] {
			out = append(out, detach(it))
		}
	}
	return out
}

// Len returns the number of items.
func (b *Bank) Len() int { return len(b.items) }

// Items returns a copy of all items in id order.
func (b *Bank) Items() []irt.Item { return b.Eligible(nil) }

// IDs returns all item ids in ascending order.
func (b *Bank) IDs() []string {
	ids := make([]string, len(b.items))
	for i, it := range b.items {
		ids[i] = it.ID
	}
	return ids
}

// Tags returns the distinct topic tags across the bank, sorted.
func (b *Bank) Tags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, it := range b.items {
		for _, t := range it.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	slices.Sort(tags)
	return tags
}

// detach copies the tag slice so callers cannot reach the bank's storage.
func detach(it irt.Item) irt.Item {
	it.Tags = slices.Clone(it.Tags)
	return it
}
