package quiz

import (
	"context"
	"fmt"

	"github.com/02061997/ai-tutor-experiment/internal/itembank"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

// Catalog pairs the calibrated bank with the content examinees see. Both
// are read-only once built.
type Catalog struct {
	bank    *itembank.Bank
	content map[string]store.ItemRecord
}

// NewCatalog builds a catalog from stored items. Items that cannot be used
// are skipped and reported as warnings.
func NewCatalog(recs []store.ItemRecord) (*Catalog, []itembank.Warning) {
	bank, kept, warnings := itembank.FromRecords(recs)
	content := make(map[string]store.ItemRecord, len(kept))
	for _, rec := range kept {
		content[rec.ID] = rec
	}
	return &Catalog{bank: bank, content: content}, warnings
}

// LoadCatalog reads one named bank from the item repository.
func LoadCatalog(ctx context.Context, items store.ItemRepo, bank string) (*Catalog, []itembank.Warning, error) {
	recs, err := items.List(ctx, bank)
	if err != nil {
		return nil, nil, fmt.Errorf("load bank %q: %w", bank, err)
	}
	cat, warnings := NewCatalog(recs)
	return cat, warnings, nil
}

func (c *Catalog) Bank() *itembank.Bank { return c.bank }

// Len is the number of usable items.
func (c *Catalog) Len() int { return c.bank.Len() }

func (c *Catalog) lookup(id string) (store.ItemRecord, error) {
	rec, ok := c.content[id]
	if !ok {
		return store.ItemRecord{}, fmt.Errorf("item %s: %w", id, itembank.ErrNotFound)
	}
	return rec, nil
}
