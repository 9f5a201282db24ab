package itembank

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

// SupportedMajor is the bank file format major version this build reads.
const SupportedMajor = "v1"

//go:embed bank.schema.json
var schemaJSON []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var def any
	if err := json.Unmarshal(schemaJSON, &def); err != nil {
		return nil, fmt.Errorf("parse bank schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const url = "schema://itembank.json"
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(url)
})

// File is an item bank as authored on disk.
type File struct {
	FormatVersion string     `json:"format_version"`
	Name          string     `json:"name,omitempty"`
	Items         []FileItem `json:"items"`
}

// FileItem is one authored item: examinee-facing content plus calibration.
type FileItem struct {
	ID             string      `json:"id"`
	Prompt         string      `json:"prompt"`
	Options        []string    `json:"options"`
	CorrectOptions []int       `json:"correct_options"`
	TopicTags      []string    `json:"topic_tags,omitempty"`
	IRT            *FileParams `json:"irt,omitempty"`
}

// FileParams holds optional calibration values. Missing a or b makes the item
// unusable; c defaults to 0 and d to 1.
type FileParams struct {
	A *float64 `json:"a,omitempty"`
	B *float64 `json:"b,omitempty"`
	C *float64 `json:"c,omitempty"`
	D *float64 `json:"d,omitempty"`
}

// Warning describes an item left out of a bank.
type Warning struct {
	ItemID string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("skipping item %s: %s", w.ItemID, w.Reason)
}

// LoadFile reads and validates a bank file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse validates raw bank JSON against the bank schema and decodes it.
func Parse(data []byte) (*File, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	sch, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile bank schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode bank: %w", err)
	}

	v := f.FormatVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("format_version %q is not a semantic version", f.FormatVersion)
	}
	if semver.Major(v) != SupportedMajor {
		return nil, fmt.Errorf("format_version %s unsupported, want %s.x", f.FormatVersion, SupportedMajor)
	}
	return &f, nil
}

// Records converts the file into item records, skipping items without
// numeric a, b and c. Duplicate ids are an error.
func (f *File) Records() ([]store.ItemRecord, []Warning, error) {
	seen := make(map[string]bool, len(f.Items))
	var (
		recs     []store.ItemRecord
		warnings []Warning
	)
	for _, it := range f.Items {
		if seen[it.ID] {
			return nil, nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		seen[it.ID] = true

		if it.IRT == nil || it.IRT.A == nil || it.IRT.B == nil || it.IRT.C == nil {
			warnings = append(warnings, Warning{ItemID: it.ID, Reason: "missing IRT parameters"})
			continue
		}
		rec := store.ItemRecord{
			ID:             it.ID,
			Bank:           f.Name,
			Prompt:         it.Prompt,
			Options:        it.Options,
			CorrectOptions: it.CorrectOptions,
			TopicTags:      it.TopicTags,
			A:              *it.IRT.A,
			B:              *it.IRT.B,
			C:              *it.IRT.C,
			D:              1,
		}
		if it.IRT.D != nil {
			rec.D = *it.IRT.D
		}
		recs = append(recs, rec)
	}
	return recs, warnings, nil
}

// Build returns the bank described by the file together with the records
// that made it in. Unusable items are reported as warnings.
func (f *File) Build() (*Bank, []store.ItemRecord, []Warning, error) {
	recs, warnings, err := f.Records()
	if err != nil {
		return nil, nil, nil, err
	}
	bank, kept, more := FromRecords(recs)
	return bank, kept, append(warnings, more...), nil
}

// FromRecords builds a bank from stored records, skipping invalid ones.
// It also returns the records that were kept.
func FromRecords(recs []store.ItemRecord) (*Bank, []store.ItemRecord, []Warning) {
	var (
		items    []irt.Item
		kept     []store.ItemRecord
		warnings []Warning
		seen     = make(map[string]bool, len(recs))
	)
	for _, rec := range recs {
		if seen[rec.ID] {
			warnings = append(warnings, Warning{ItemID: rec.ID, Reason: "duplicate id"})
			continue
		}
		if reason := checkContent(rec); reason != "" {
			warnings = append(warnings, Warning{ItemID: rec.ID, Reason: reason})
			continue
		}
		it, err := irt.NewItem(rec.ID, irt.Params{A: rec.A, B: rec.B, C: rec.C, D: rec.D}, rec.TopicTags...)
		if err != nil {
			warnings = append(warnings, Warning{ItemID: rec.ID, Reason: err.Error()})
			continue
		}
		seen[rec.ID] = true
		items = append(items, it)
		kept = append(kept, rec)
	}

	// Every item is valid and unique at this point.
	bank, err := New(items)
	if err != nil {
		panic(fmt.Sprintf("itembank: %v", err))
	}
	return bank, kept, warnings
}

func checkContent(rec store.ItemRecord) string {
	if rec.ID == "" {
		return "empty id"
	}
	for _, idx := range rec.CorrectOptions {
		if idx < 0 || idx >= len(rec.Options) {
			return fmt.Sprintf("correct option %d out of range for %d options", idx, len(rec.Options))
		}
	}
	return ""
}
