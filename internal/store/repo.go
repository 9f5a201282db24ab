package store

import (
	"context"
	"encoding/json"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	After   int64     // sequence > After
	From    time.Time // timestamp >= From
	Purpose string    // LLM events only
}

// ItemRecord is a calibrated item together with its examinee-facing content.
type ItemRecord struct {
	ID             string
	Bank           string
	Prompt         string
	Options        []string
	CorrectOptions []int // zero-based indexes into Options
	TopicTags      []string
	A, B, C, D     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ItemRepo stores item content and calibration.
type ItemRepo interface {
	// Upsert inserts or replaces items by id and returns how many were written.
	Upsert(ctx context.Context, items []ItemRecord) (int, error)

	// Get returns one item or ErrNotFound.
	Get(ctx context.Context, id string) (*ItemRecord, error)

	// List returns all items ordered by id. An empty bank name lists every bank.
	List(ctx context.Context, bank string) ([]ItemRecord, error)
}

// Attempt statuses as persisted.
const (
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
	AttemptAborted    = "aborted"
)

// AttemptRecord is the persisted layout of one quiz attempt. Data carries the
// serialized engine state and is opaque to the store.
type AttemptRecord struct {
	ID            string
	SessionID     string
	QuizID        string
	Status        string
	Version       int
	Theta         float64
	StandardError float64
	ItemCount     int
	Data          json.RawMessage
	Feedback      json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// AttemptFilter narrows attempt listings. Zero fields match everything.
type AttemptFilter struct {
	Status        string
	SessionID     string
	UpdatedBefore time.Time
	Limit         int
}

// AttemptRepo persists attempts with optimistic concurrency.
type AttemptRepo interface {
	// Create inserts a new attempt at version 1.
	Create(ctx context.Context, rec *AttemptRecord) error

	// Get returns the attempt or ErrNotFound.
	Get(ctx context.Context, id string) (*AttemptRecord, error)

	// Update writes rec if the stored version still equals rec.Version and
	// bumps the version. Returns ErrConflict if another writer got there
	// first and ErrNotFound if the attempt does not exist.
	Update(ctx context.Context, rec *AttemptRecord) error

	// SetFeedback attaches generated study feedback to an attempt.
	SetFeedback(ctx context.Context, id string, feedback json.RawMessage) error

	// List returns attempts matching f, most recently updated first.
	List(ctx context.Context, f AttemptFilter) ([]AttemptRecord, error)

	// CountByStatus returns the number of attempts per status.
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// AttemptEventData records a lifecycle transition of an attempt.
type AttemptEventData struct {
	ID            int
	Sequence      int64
	Timestamp     time.Time
	AttemptID     string
	Action        string // started, completed, aborted
	ItemCount     int
	Theta         float64
	StandardError float64
	Detail        string // stop or abort reason
}

// AnswerEventData records one scored response and the estimate after it.
type AnswerEventData struct {
	ID            int
	Sequence      int64
	Timestamp     time.Time
	AttemptID     string
	ItemID        string
	Position      int
	Correct       bool
	Theta         float64
	StandardError float64
	Converged     bool
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	ID           int
	Sequence     int64
	Timestamp    time.Time
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMUsage aggregates LLM calls by purpose or model.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	AppendAttemptEvent(ctx context.Context, data AttemptEventData) error
	AppendAnswerEvent(ctx context.Context, data AnswerEventData) error
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// AttemptEvents returns the lifecycle events of one attempt in sequence order.
	AttemptEvents(ctx context.Context, attemptID string) ([]AttemptEventData, error)
	// AnswerEvents returns the answers of one attempt in sequence order.
	AnswerEvents(ctx context.Context, attemptID string) ([]AnswerEventData, error)

	// QueryLLMEvents returns LLM events, newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEventData, error)
	// GetLLMEvent returns one LLM event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEventData, error)
	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}
