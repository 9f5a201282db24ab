package attempt

import (
	"slices"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

// Summary is the final report of a completed attempt.
type Summary struct {
	Theta           float64         `json:"theta"`
	StandardError   float64         `json:"standard_error"`
	Converged       bool            `json:"converged"`
	ItemCount       int             `json:"item_count"`
	AdministeredIDs []string        `json:"administered_ids"`
	CorrectCount    int             `json:"correct_count"`
	ScorePercent    float64         `json:"score_percent"`
	WeakTopics      []string        `json:"weak_topics"`
	StopReason      stopping.Reason `json:"stop_reason"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// TopicAccuracy is the per-topic tally behind weak topic detection.
type TopicAccuracy struct {
	Topic   string
	Correct int
	Total   int
}

// Accuracy returns the fraction answered correctly.
func (t TopicAccuracy) Accuracy() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total)
}

// Topics tallies accuracy per topic tag, sorted by topic.
func (h History) Topics() []TopicAccuracy {
	byTopic := make(map[string]*TopicAccuracy)
	for i, it := range h.Administered {
		for _, tag := range it.Tags {
			ta, ok := byTopic[tag]
			if !ok {
				ta = &TopicAccuracy{Topic: tag}
				byTopic[tag] = ta
			}
			ta.Total++
			if h.Responses[i].Correct {
				ta.Correct++
			}
		}
	}

	out := make([]TopicAccuracy, 0, len(byTopic))
	for _, ta := range byTopic {
		out = append(out, *ta)
	}
	slices.SortFunc(out, func(a, b TopicAccuracy) int {
		switch {
		case a.Topic < b.Topic:
			return -1
		case a.Topic > b.Topic:
			return 1
		}
		return 0
	})
	return out
}

// WeakTopics returns the topics that fall under rule, sorted.
func (h History) WeakTopics(rule WeakTopicRule) []string {
	weak := []string{}
	for _, ta := range h.Topics() {
		if ta.Total >= rule.MinItems && ta.Accuracy() < rule.MaxAccuracy {
			weak = append(weak, ta.Topic)
		}
	}
	return weak
}

// Summarize builds the completion summary for h.
func Summarize(h History, reason stopping.Reason, rule WeakTopicRule, at time.Time) Summary {
	correct := h.CorrectCount()
	var score float64
	if n := h.Len(); n > 0 {
		score = float64(correct) / float64(n) * 100
	}
	return Summary{
		Theta:           h.Estimate.Theta,
		StandardError:   h.Estimate.StandardError,
		Converged:       h.Estimate.Converged,
		ItemCount:       h.Len(),
		AdministeredIDs: h.AdministeredIDs(),
		CorrectCount:    correct,
		ScorePercent:    score,
		WeakTopics:      h.WeakTopics(rule),
		StopReason:      reason,
		CompletedAt:     at,
	}
}
