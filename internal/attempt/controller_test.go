package attempt

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/itembank"
	"github.com/02061997/ai-tutor-experiment/internal/selector"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newController(t *testing.T, items ...irt.Item) *Controller {
	t.Helper()
	bank, err := itembank.New(items)
	require.NoError(t, err)
	return NewController(bank, WithClock(func() time.Time { return fixedNow }))
}

func twoPL(id string, a, b float64, tags ...string) irt.Item {
	return irt.Item{ID: id, Params: irt.Params{A: a, B: b, C: 0, D: 1}, Tags: tags}
}

// spreadBank returns n items with difficulties spread over [-2.5, 2.5].
func spreadBank(n int) []irt.Item {
	items := make([]irt.Item, n)
	for i := range items {
		b := -2.5 + 5*float64(i)/float64(max(n-1, 1))
		items[i] = twoPL(fmt.Sprintf("i%02d", i), 0.8+0.05*float64(i%7), b)
	}
	return items
}

func fixedLength(n int) Config {
	cfg := DefaultConfig()
	cfg.Stopping = stopping.Rule{MinItems: n, MaxItems: n}
	return cfg
}

func TestStart_SelectsMostInformativeAtPrior(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0), twoPL("B", 1.5, 1))
	a := New("att", DefaultConfig())

	first, err := c.Start(a)
	require.NoError(t, err)
	assert.Equal(t, "B", first.ID)
	assert.Equal(t, StatusInProgress, a.Status())

	h := a.History()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1.0, h.Estimate.StandardError, "SE before any response is the prior SE")
}

func TestStart_Twice(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0))
	a := New("att", DefaultConfig())
	_, err := c.Start(a)
	require.NoError(t, err)

	_, err = c.Start(a)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStart_EmptyBank(t *testing.T) {
	c := newController(t)
	a := New("att", DefaultConfig())
	_, err := c.Start(a)
	assert.ErrorIs(t, err, selector.ErrItemBankExhausted)
	assert.Equal(t, StatusNotStarted, a.Status())
}

func TestSubmit_FixedLengthStopsAtExactlyN(t *testing.T) {
	c := newController(t, spreadBank(15)...)
	a := New("att", fixedLength(6))

	item, err := c.Start(a)
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		out, err := c.Submit(a, item.ID, i%2 == 0)
		require.NoError(t, err)
		if i < 6 {
			require.False(t, out.Complete(), "completed early at %d", i)
			require.NotNil(t, out.Next)
			item = *out.Next
			continue
		}
		require.True(t, out.Complete())
		assert.Nil(t, out.Next)
		assert.Equal(t, 6, out.Summary.ItemCount)
		assert.Equal(t, stopping.ReasonMaxItems, out.Summary.StopReason)
	}
	assert.Equal(t, StatusCompleted, a.Status())
}

func TestSubmit_TargetSEContinuesPastMinimum(t *testing.T) {
	c := newController(t, spreadBank(40)...)
	cfg := DefaultConfig()
	cfg.Stopping = stopping.Rule{MinItems: 5, MaxItems: 30, TargetSE: 0.3}
	a := New("att", cfg)

	item, err := c.Start(a)
	require.NoError(t, err)
	var out Outcome
	for i := 1; i <= 5; i++ {
		out, err = c.Submit(a, item.ID, i%2 == 1)
		require.NoError(t, err)
		if out.Next != nil {
			item = *out.Next
		}
	}
	require.Greater(t, out.Estimate.StandardError, 0.3)
	assert.False(t, out.Complete(), "SE %.3f above target must continue", out.Estimate.StandardError)
	require.NotNil(t, out.Next, "a sixth item is issued")
	assert.Equal(t, 5, a.History().Len())
}

func TestSubmit_TargetSEStops(t *testing.T) {
	// Highly discriminating items around zero make the SE fall quickly.
	var items []irt.Item
	for i := 0; i < 30; i++ {
		items = append(items, twoPL(fmt.Sprintf("h%02d", i), 2.5, -0.3+0.02*float64(i)))
	}
	c := newController(t, items...)
	cfg := DefaultConfig()
	cfg.Stopping = stopping.Rule{MinItems: 3, MaxItems: 30, TargetSE: 0.45}
	a := New("att", cfg)

	item, err := c.Start(a)
	require.NoError(t, err)
	var out Outcome
	for i := 0; i < 30 && !out.Complete(); i++ {
		out, err = c.Submit(a, item.ID, i%2 == 0)
		require.NoError(t, err)
		if out.Next != nil {
			item = *out.Next
		}
	}
	require.True(t, out.Complete())
	assert.Equal(t, stopping.ReasonTargetSE, out.Summary.StopReason)
	assert.LessOrEqual(t, out.Summary.StandardError, 0.45)
	assert.Less(t, out.Summary.ItemCount, 30)
}

func TestSubmit_AllIncorrectFiniteEstimate(t *testing.T) {
	c := newController(t, spreadBank(20)...)
	a := New("att", fixedLength(10))

	item, err := c.Start(a)
	require.NoError(t, err)
	var out Outcome
	for i := 0; i < 10; i++ {
		out, err = c.Submit(a, item.ID, false)
		require.NoError(t, err)
		if out.Next != nil {
			item = *out.Next
		}
	}
	require.True(t, out.Complete())
	sum := out.Summary
	assert.False(t, math.IsNaN(sum.Theta) || math.IsInf(sum.Theta, 0))
	assert.False(t, math.IsNaN(sum.StandardError) || math.IsInf(sum.StandardError, 0))
	assert.False(t, sum.Converged, "likelihood maximum lies beyond the theta bound")
	assert.Equal(t, 0, sum.CorrectCount)
	assert.Equal(t, 0.0, sum.ScorePercent)
}

func TestSubmit_StandardErrorNeverIncreases(t *testing.T) {
	patterns := map[string]func(int) bool{
		"all incorrect": func(int) bool { return false },
		"all correct":   func(int) bool { return true },
		"alternating":   func(i int) bool { return i%2 == 0 },
	}
	for name, correct := range patterns {
		t.Run(name, func(t *testing.T) {
			c := newController(t,
				twoPL("A", 1, 0), twoPL("B", 1.5, 1), twoPL("C", 0.7, -1.5), twoPL("D", 1.2, 2))
			a := New("att", fixedLength(4))

			item, err := c.Start(a)
			require.NoError(t, err)
			prev := a.History().Estimate.StandardError
			for i := 0; ; i++ {
				out, err := c.Submit(a, item.ID, correct(i))
				require.NoError(t, err)
				se := out.Estimate.StandardError
				require.LessOrEqual(t, se, prev, "SE grew after response %d", i+1)
				prev = se
				if out.Complete() {
					break
				}
				item = *out.Next
			}
		})
	}
}

func TestSubmit_UnexpectedItemLeavesStateUnchanged(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0), twoPL("B", 1.5, 1))
	a := New("att", DefaultConfig())
	_, err := c.Start(a)
	require.NoError(t, err)
	before := a.Record()

	_, err = c.Submit(a, "A", true)
	assert.ErrorIs(t, err, ErrUnexpectedItem)
	assert.Equal(t, before, a.Record())
}

func TestSubmit_NotInProgress(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0))

	notStarted := New("ns", DefaultConfig())
	_, err := c.Submit(notStarted, "A", true)
	assert.ErrorIs(t, err, ErrNotInProgress)

	done := New("done", fixedLength(1))
	_, err = c.Start(done)
	require.NoError(t, err)
	out, err := c.Submit(done, "A", true)
	require.NoError(t, err)
	require.True(t, out.Complete())

	_, err = c.Submit(done, "A", true)
	assert.ErrorIs(t, err, ErrNotInProgress)
}

func TestSubmit_BankExhaustedForcesCompletion(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0), twoPL("B", 1.5, 1))
	a := New("att", fixedLength(5))

	item, err := c.Start(a)
	require.NoError(t, err)
	out, err := c.Submit(a, item.ID, true)
	require.NoError(t, err)
	require.NotNil(t, out.Next)

	out, err = c.Submit(a, out.Next.ID, false)
	require.NoError(t, err)
	require.True(t, out.Complete())
	assert.Equal(t, stopping.ReasonBankExhausted, out.Summary.StopReason)
	assert.Equal(t, 2, out.Summary.ItemCount)
}

func TestSubmit_Invariants(t *testing.T) {
	c := newController(t, spreadBank(25)...)
	a := New("att", fixedLength(20))

	item, err := c.Start(a)
	require.NoError(t, err)
	for i := 0; ; i++ {
		out, err := c.Submit(a, item.ID, (i*7)%3 != 0)
		require.NoError(t, err)

		h := a.History()
		require.Equal(t, len(h.Administered), len(h.Responses))
		seen := map[string]bool{}
		for j, it := range h.Administered {
			require.False(t, seen[it.ID], "item %s administered twice", it.ID)
			seen[it.ID] = true
			require.Equal(t, it.ID, h.Responses[j].ItemID)
			require.Equal(t, j+1, h.Responses[j].Sequence)
		}
		require.GreaterOrEqual(t, h.Estimate.StandardError, 0.0)
		require.False(t, math.IsNaN(h.Estimate.StandardError))

		if out.Complete() {
			break
		}
		require.False(t, seen[out.Next.ID], "pending item already administered")
		item = *out.Next
	}
	assert.Equal(t, 20, a.History().Len())
}

func TestAbort(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0), twoPL("B", 1.5, 1))

	a := New("att", DefaultConfig())
	first, err := c.Start(a)
	require.NoError(t, err)
	_, err = c.Submit(a, first.ID, true)
	require.NoError(t, err)

	assert.True(t, c.Abort(a, "session_timeout"))
	assert.Equal(t, StatusAborted, a.Status())
	ab := a.State().(Aborted)
	assert.Equal(t, "session_timeout", ab.Reason)
	assert.Equal(t, fixedNow, ab.AbortedAt)
	assert.Equal(t, 1, ab.History.Len(), "history survives abort")

	assert.False(t, c.Abort(a, "again"), "terminal states never change")
	assert.Equal(t, "session_timeout", a.State().(Aborted).Reason)

	_, err = c.Submit(a, "A", true)
	assert.ErrorIs(t, err, ErrNotInProgress)
}

func TestAbort_CompletedIsNoop(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0))
	a := New("att", fixedLength(1))
	item, _ := c.Start(a)
	_, err := c.Submit(a, item.ID, true)
	require.NoError(t, err)

	assert.False(t, c.Abort(a, "late"))
	assert.Equal(t, StatusCompleted, a.Status())
}

func TestAbort_NotStarted(t *testing.T) {
	c := newController(t, twoPL("A", 1, 0))
	a := New("att", DefaultConfig())
	assert.True(t, c.Abort(a, "consent_withdrawn"))
	assert.Equal(t, StatusAborted, a.Status())
}

func TestSummary_ScoreAndWeakTopics(t *testing.T) {
	items := []irt.Item{
		twoPL("f1", 1, -1, "fractions"),
		twoPL("f2", 1, 0, "fractions"),
		twoPL("f3", 1, 1, "fractions", "word-problems"),
		twoPL("g1", 1, -0.5, "geometry"),
		twoPL("g2", 1, 0.5, "geometry"),
		twoPL("w1", 1, 0.2, "word-problems"),
	}
	correct := map[string]bool{"f1": false, "f2": false, "f3": true, "g1": true, "g2": true, "w1": false}

	c := newController(t, items...)
	a := New("att", fixedLength(6))
	item, err := c.Start(a)
	require.NoError(t, err)
	var out Outcome
	for !out.Complete() {
		out, err = c.Submit(a, item.ID, correct[item.ID])
		require.NoError(t, err)
		if out.Next != nil {
			item = *out.Next
		}
	}

	sum := out.Summary
	assert.Equal(t, 3, sum.CorrectCount)
	assert.InDelta(t, 50.0, sum.ScorePercent, 1e-9)
	// fractions 1/3, geometry 2/2, word-problems 1/2.
	assert.Equal(t, []string{"fractions"}, sum.WeakTopics)
	assert.Equal(t, fixedNow, sum.CompletedAt)
	assert.Len(t, sum.AdministeredIDs, 6)

	stored, ok := a.Summary()
	require.True(t, ok)
	assert.Equal(t, *sum, stored)
}

func TestWeakTopics_MinItems(t *testing.T) {
	h := History{
		Administered: []irt.Item{twoPL("a", 1, 0, "x"), twoPL("b", 1, 0, "y"), twoPL("c", 1, 0, "y")},
		Responses: []Response{
			{ItemID: "a", Correct: false, Sequence: 1},
			{ItemID: "b", Correct: false, Sequence: 2},
			{ItemID: "c", Correct: false, Sequence: 3},
		},
	}
	assert.Equal(t, []string{"y"}, h.WeakTopics(WeakTopicRule{MaxAccuracy: 0.5, MinItems: 2}))
	assert.Equal(t, []string{"x", "y"}, h.WeakTopics(WeakTopicRule{MaxAccuracy: 0.5, MinItems: 1}))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Stopping.MinItems = 50
	cfg.WeakTopic.MinItems = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopping")
	assert.Contains(t, err.Error(), "weak topic")
}

func TestErrorsAreDistinct(t *testing.T) {
	for _, pair := range [][2]error{
		{ErrAlreadyStarted, ErrNotInProgress},
		{ErrUnexpectedItem, ErrNotInProgress},
		{ErrAlreadyStarted, ErrUnexpectedItem},
	} {
		assert.False(t, errors.Is(pair[0], pair[1]))
	}
}
