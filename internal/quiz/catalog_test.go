package quiz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02061997/ai-tutor-experiment/internal/itembank"
)

func TestNewCatalog_SkipsUnusableItems(t *testing.T) {
	badKey := item("bad-key", 1, 0)
	badKey.CorrectOptions = []int{9}
	badParams := item("bad-params", -1, 0)

	cat, warnings := NewCatalog(append(spread(3), badKey, badParams))
	assert.Equal(t, 3, cat.Len())
	require.Len(t, warnings, 2)

	_, err := cat.lookup("bad-key")
	assert.ErrorIs(t, err, itembank.ErrNotFound)

	rec, err := cat.lookup("q01")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rec.CorrectOptions)
}

func TestLoadCatalog_ReadsOneBank(t *testing.T) {
	st := openStore(t)
	other := item("x1", 1, 0)
	other.Bank = "other"
	_, err := st.ItemRepo().Upsert(context.Background(), append(spread(4), other))
	require.NoError(t, err)

	cat, warnings, err := LoadCatalog(context.Background(), st.ItemRepo(), "default")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 4, cat.Len())
	assert.Equal(t, []string{"q00", "q01", "q02", "q03"}, cat.Bank().IDs())
}
