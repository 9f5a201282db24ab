// Package feedback turns the weak topics of a completed attempt into short
// study guidance using an LLM.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/llm"
)

// ErrNoWeakTopics is returned when there is nothing to give feedback on.
var ErrNoWeakTopics = errors.New("no weak topics")

type Config struct {
	MaxTokens   int
	Temperature float64
	// Timeout bounds one generation. Feedback is best-effort and must not
	// hold an attempt open for long.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{MaxTokens: 600, Temperature: 0.4, Timeout: 20 * time.Second}
}

// Input is what the coach sees about an attempt.
type Input struct {
	ScorePercent float64
	ItemCount    int
	Topics       []attempt.TopicAccuracy
	WeakTopics   []string
}

// InputFor builds the input from a completed attempt's history and summary.
func InputFor(h attempt.History, s attempt.Summary) Input {
	return Input{
		ScorePercent: s.ScorePercent,
		ItemCount:    s.ItemCount,
		Topics:       h.Topics(),
		WeakTopics:   s.WeakTopics,
	}
}

type FocusArea struct {
	Topic      string `json:"topic"`
	Suggestion string `json:"suggestion"`
}

// Feedback is persisted alongside the attempt and returned with its summary.
type Feedback struct {
	Summary     string      `json:"summary"`
	FocusAreas  []FocusArea `json:"focus_areas"`
	Model       string      `json:"model"`
	GeneratedAt time.Time   `json:"generated_at"`
}

type Generator struct {
	provider llm.Provider
	cfg      Config
	now      func() time.Time
}

func NewGenerator(provider llm.Provider, cfg Config) *Generator {
	return &Generator{provider: provider, cfg: cfg, now: time.Now}
}

// Generate asks the provider for feedback. Focus areas for topics that are
// not weak are dropped.
func (g *Generator) Generate(ctx context.Context, in Input) (*Feedback, error) {
	if len(in.WeakTopics) == 0 {
		return nil, ErrNoWeakTopics
	}
	ctx = llm.WithPurpose(ctx, llm.PurposeFeedback)
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	req := llm.Prompt(systemPrompt, buildUserMessage(in), Schema, g.cfg.MaxTokens)
	req.Temperature = g.cfg.Temperature
	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("study feedback: %w", err)
	}

	var out struct {
		Summary    string      `json:"summary"`
		FocusAreas []FocusArea `json:"focus_areas"`
	}
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("parse study feedback: %w", err)
	}

	areas := make([]FocusArea, 0, len(out.FocusAreas))
	for _, fa := range out.FocusAreas {
		if slices.Contains(in.WeakTopics, fa.Topic) {
			areas = append(areas, fa)
		}
	}
	return &Feedback{
		Summary:     out.Summary,
		FocusAreas:  areas,
		Model:       resp.Model,
		GeneratedAt: g.now().UTC(),
	}, nil
}
