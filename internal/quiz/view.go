package quiz

import (
	"encoding/json"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/feedback"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

// ItemView is what an examinee sees of an item. Calibration parameters and
// the answer key never leave the service.
type ItemView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

func viewOf(rec store.ItemRecord) ItemView {
	return ItemView{ID: rec.ID, Prompt: rec.Prompt, Options: append([]string(nil), rec.Options...)}
}

// CompletionSummary is the examinee-facing report of a completed attempt.
type CompletionSummary struct {
	AttemptID       string             `json:"attempt_id"`
	Theta           float64            `json:"theta"`
	StandardError   float64            `json:"standard_error"`
	Converged       bool               `json:"converged"`
	ItemCount       int                `json:"item_count"`
	AdministeredIDs []string           `json:"administered_ids"`
	CorrectCount    int                `json:"correct_count"`
	ScorePercent    float64            `json:"score_percent"`
	WeakTopics      []string           `json:"weak_topics"`
	StopReason      string             `json:"stop_reason"`
	Feedback        *feedback.Feedback `json:"feedback,omitempty"`
}

func completionOf(id string, s attempt.Summary) *CompletionSummary {
	return &CompletionSummary{
		AttemptID:       id,
		Theta:           s.Theta,
		StandardError:   s.StandardError,
		Converged:       s.Converged,
		ItemCount:       s.ItemCount,
		AdministeredIDs: s.AdministeredIDs,
		CorrectCount:    s.CorrectCount,
		ScorePercent:    s.ScorePercent,
		WeakTopics:      s.WeakTopics,
		StopReason:      string(s.StopReason),
	}
}

// AnswerResult reports a scored response. Next is set while the attempt
// continues; Summary once it completes.
type AnswerResult struct {
	Correct  bool               `json:"correct"`
	Complete bool               `json:"complete"`
	Next     *ItemView          `json:"next_item,omitempty"`
	Summary  *CompletionSummary `json:"summary,omitempty"`
}

// Progress is the read view of an attempt.
type Progress struct {
	AttemptID string             `json:"attempt_id"`
	SessionID string             `json:"session_id"`
	QuizID    string             `json:"quiz_id,omitempty"`
	Status    string             `json:"status"`
	ItemCount int                `json:"item_count"`
	Pending   *ItemView          `json:"pending_item,omitempty"`
	Summary   *CompletionSummary `json:"summary,omitempty"`
}

func decodeFeedback(raw json.RawMessage) *feedback.Feedback {
	if len(raw) == 0 {
		return nil
	}
	var fb feedback.Feedback
	if err := json.Unmarshal(raw, &fb); err != nil {
		return nil
	}
	return &fb
}
