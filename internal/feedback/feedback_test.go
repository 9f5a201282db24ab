package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/llm"
)

func sampleInput() Input {
	return Input{
		ScorePercent: 40,
		ItemCount:    5,
		Topics: []attempt.TopicAccuracy{
			{Topic: "fractions", Correct: 0, Total: 3},
			{Topic: "ratios", Correct: 2, Total: 2},
		},
		WeakTopics: []string{"fractions"},
	}
}

func TestGenerate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{
			"summary": "A solid start with ratios; fractions need work.",
			"focus_areas": [
				{"topic": "fractions", "suggestion": "Practise finding common denominators."},
				{"topic": "geometry", "suggestion": "Not asked for."}
			]
		}`),
	})
	g := NewGenerator(mock, DefaultConfig())

	fb, err := g.Generate(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fb.Summary == "" {
		t.Error("empty summary")
	}
	if len(fb.FocusAreas) != 1 || fb.FocusAreas[0].Topic != "fractions" {
		t.Errorf("focus areas = %+v, want only fractions", fb.FocusAreas)
	}
	if fb.Model != "mock" {
		t.Errorf("model = %q", fb.Model)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	req := calls[0]
	if req.Schema != Schema {
		t.Error("expected the study-feedback schema")
	}
	user := req.Messages[0].Content
	for _, want := range []string{"fractions: 0 of 3 correct", "Overall score: 40%", "- fractions\n"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestGenerate_NoWeakTopics(t *testing.T) {
	mock := llm.NewMockProvider()
	in := sampleInput()
	in.WeakTopics = nil

	_, err := NewGenerator(mock, DefaultConfig()).Generate(context.Background(), in)
	if !errors.Is(err, ErrNoWeakTopics) {
		t.Fatalf("err = %v, want ErrNoWeakTopics", err)
	}
	if len(mock.Calls()) != 0 {
		t.Error("provider should not be called")
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := NewGenerator(mock, DefaultConfig()).Generate(context.Background(), sampleInput())
	var unavailable *llm.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v", err)
	}
}
