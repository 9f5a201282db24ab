package itembank

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

func params(a, b float64) irt.Params {
	return irt.Params{A: a, B: b, C: 0, D: 1}
}

func TestNew_SortsAndIndexes(t *testing.T) {
	b, err := New([]irt.Item{
		{ID: "q3", Params: params(1, 0)},
		{ID: "q1", Params: params(1, 1)},
		{ID: "q2", Params: params(1, -1), Tags: []string{"algebra"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := strings.Join(b.IDs(), ","); got != "q1,q2,q3" {
		t.Errorf("IDs = %s", got)
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d", b.Len())
	}
	it, err := b.Get("q2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if it.Params.B != -1 || it.Tags[0] != "algebra" {
		t.Errorf("Get(q2) = %+v", it)
	}
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		items []irt.Item
	}{
		{"duplicate", []irt.Item{{ID: "a", Params: params(1, 0)}, {ID: "a", Params: params(1, 1)}}},
		{"invalid params", []irt.Item{{ID: "a", Params: irt.Params{A: 0, D: 1}}}},
		{"empty id", []irt.Item{{ID: "", Params: params(1, 0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.items); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	b, _ := New(nil)
	_, err := b.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEligible(t *testing.T) {
	b, _ := New([]irt.Item{
		{ID: "c", Params: params(1, 0)},
		{ID: "a", Params: params(1, 0)},
		{ID: "b", Params: params(1, 0)},
	})
	got := b.Eligible(map[string]bool{"b": true, "zzz": true})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("Eligible = %+v", got)
	}
	if all := b.Eligible(nil); len(all) != 3 {
		t.Errorf("Eligible(nil) = %d items", len(all))
	}
	if none := b.Eligible(map[string]bool{"a": true, "b": true, "c": true}); len(none) != 0 {
		t.Errorf("Eligible(all) = %d items", len(none))
	}
}

func TestBank_ImmutableThroughAccessors(t *testing.T) {
	tags := []string{"geometry"}
	b, _ := New([]irt.Item{{ID: "a", Params: params(1, 0), Tags: tags}})
	tags[0] = "mutated"

	items := b.Items()
	items[0].ID = "changed"

	it, _ := b.Get("a")
	if it.Tags[0] != "geometry" {
		t.Errorf("caller slice leaked into bank: %v", it.Tags)
	}
	if b.IDs()[0] != "a" {
		t.Error("Items() exposed internal storage")
	}

	it.Tags[0] = "from get"
	b.Eligible(nil)[0].Tags[0] = "from eligible"
	b.Items()[0].Tags[0] = "from items"
	if again, _ := b.Get("a"); again.Tags[0] != "geometry" {
		t.Errorf("returned tags alias the bank: %v", again.Tags)
	}
	if got := b.Tags(); len(got) != 1 || got[0] != "geometry" {
		t.Errorf("Tags = %v", got)
	}
}

func TestBank_ConcurrentReads(t *testing.T) {
	b, _ := New([]irt.Item{{ID: "a", Params: params(1, 0)}, {ID: "b", Params: params(1, 1)}})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Eligible(map[string]bool{"a": true})
				_, _ = b.Get("b")
			}
		}()
	}
	wg.Wait()
}

func TestTags(t *testing.T) {
	b, _ := New([]irt.Item{
		{ID: "a", Params: params(1, 0), Tags: []string{"z", "m"}},
		{ID: "b", Params: params(1, 0), Tags: []string{"m", "a"}},
	})
	if got := strings.Join(b.Tags(), ","); got != "a,m,z" {
		t.Errorf("Tags = %s", got)
	}
}

const sampleBank = `{
  "format_version": "1.2.0",
  "name": "fractions",
  "items": [
    {"id": "f2", "prompt": "1/2 + 1/4 = ?", "options": ["3/4", "2/6", "1/8"], "correct_options": [0],
     "topic_tags": ["fractions"], "irt": {"a": 1.2, "b": 0.4, "c": 0.2}},
    {"id": "f1", "prompt": "Which equals 2/4?", "options": ["1/2", "1/3"], "correct_options": [0],
     "topic_tags": ["fractions", "equivalence"], "irt": {"a": 0.9, "b": -0.8, "c": 0.1, "d": 0.97}},
    {"id": "f3", "prompt": "Uncalibrated", "options": ["a", "b"], "correct_options": [1]},
    {"id": "f4", "prompt": "Bad slope", "options": ["a", "b"], "correct_options": [1], "irt": {"a": -1, "b": 0, "c": 0}},
    {"id": "f5", "prompt": "Bad key", "options": ["a", "b"], "correct_options": [4], "irt": {"a": 1, "b": 0, "c": 0}},
    {"id": "f6", "prompt": "No guessing floor", "options": ["a", "b"], "correct_options": [0], "irt": {"a": 1, "b": 0}}
  ]
}`

func TestParseAndBuild(t *testing.T) {
	f, err := Parse([]byte(sampleBank))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bank, recs, warnings, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := strings.Join(bank.IDs(), ","); got != "f1,f2" {
		t.Errorf("bank IDs = %s, want f1,f2", got)
	}
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2", len(recs))
	}
	if len(warnings) != 4 {
		t.Fatalf("warnings = %v, want 4", warnings)
	}
	skipped := map[string]string{}
	for _, w := range warnings {
		skipped[w.ItemID] = w.Reason
	}
	if skipped["f6"] != "missing IRT parameters" {
		t.Errorf("f6 without c: reason = %q", skipped["f6"])
	}
	for _, id := range []string{"f3", "f4", "f5", "f6"} {
		if _, ok := skipped[id]; !ok {
			t.Errorf("expected warning for %s", id)
		}
	}

	f2, _ := bank.Get("f2")
	if f2.Params.D != 1 {
		t.Errorf("d default = %v, want 1", f2.Params.D)
	}
	f1, _ := bank.Get("f1")
	if f1.Params.D != 0.97 || f1.Params.C != 0.1 {
		t.Errorf("f1 params = %+v", f1.Params)
	}
	for _, r := range recs {
		if r.Bank != "fractions" {
			t.Errorf("record %s bank = %q", r.ID, r.Bank)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"missing items", `{"format_version": "1.0.0"}`},
		{"bad version", `{"format_version": "one", "items": []}`},
		{"future major", `{"format_version": "v2.0.0", "items": []}`},
		{"single option", `{"format_version": "1.0.0", "items": [{"id": "x", "prompt": "p", "options": ["a"], "correct_options": [0]}]}`},
		{"string slope", `{"format_version": "1.0.0", "items": [{"id": "x", "prompt": "p", "options": ["a", "b"], "correct_options": [0], "irt": {"a": "high", "b": 0}}]}`},
		{"unknown field", `{"format_version": "1.0.0", "items": [], "extra": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.json)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRecords_DuplicateID(t *testing.T) {
	f, err := Parse([]byte(`{"format_version": "v1.0.0", "items": [
		{"id": "x", "prompt": "p", "options": ["a", "b"], "correct_options": [0], "irt": {"a": 1, "b": 0, "c": 0}},
		{"id": "x", "prompt": "q", "options": ["a", "b"], "correct_options": [1], "irt": {"a": 1, "b": 1, "c": 0}}
	]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, _, err := f.Build(); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	if err := os.WriteFile(path, []byte(sampleBank), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Name != "fractions" || len(f.Items) != 6 {
		t.Errorf("LoadFile = %+v", f)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromRecords_SkipsInvalid(t *testing.T) {
	bank, kept, warnings := FromRecords([]store.ItemRecord{
		{ID: "ok", Options: []string{"a", "b"}, CorrectOptions: []int{1}, A: 1, B: 0, D: 1},
		{ID: "zero-d", Options: []string{"a", "b"}, CorrectOptions: []int{1}, A: 1, B: 0, D: 0},
		{ID: "ok", Options: []string{"a", "b"}, CorrectOptions: []int{0}, A: 1, B: 2, D: 1},
	})
	if bank.Len() != 1 || len(kept) != 1 {
		t.Fatalf("bank len %d, kept %d", bank.Len(), len(kept))
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[0].String(), "zero-d") {
		t.Errorf("warning text = %q", warnings[0].String())
	}
}
