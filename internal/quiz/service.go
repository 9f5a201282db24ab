// Package quiz runs adaptive quiz attempts end to end: it loads and saves
// attempts, grades answers against item content and drives the engine.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/feedback"
	"github.com/02061997/ai-tutor-experiment/internal/lock"
	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/metrics"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

var (
	// ErrInvalidRequest marks caller input the service rejects outright.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidOption is returned for a selected option outside the item.
	ErrInvalidOption = errors.New("selected option out of range")
)

// AbortReasonTimeout is recorded on attempts expired by AbortStale.
const AbortReasonTimeout = "session_timeout"

// Deps are the collaborators of a Service. Catalog, Attempts and Events are
// required; the rest default to in-process or no-op implementations.
type Deps struct {
	Catalog  *Catalog
	Attempts store.AttemptRepo
	Events   store.EventRepo
	Locker   lock.Locker
	Feedback *feedback.Generator
	Metrics  *metrics.Metrics
	Log      *logging.Logger
	Clock    func() time.Time
}

// Service runs quiz attempts against the catalog and persists every change.
// It is safe for concurrent use.
type Service struct {
	cfg      attempt.Config
	catalog  *Catalog
	ctrl     *attempt.Controller
	attempts store.AttemptRepo
	events   store.EventRepo
	locker   lock.Locker
	feedback *feedback.Generator
	metrics  *metrics.Metrics
	log      *logging.Logger
	now      func() time.Time

	background sync.WaitGroup
}

// New validates cfg and wires a Service. cfg applies to attempts started
// from now on; running attempts keep the config they were started with.
func New(cfg attempt.Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if deps.Catalog == nil || deps.Attempts == nil || deps.Events == nil {
		return nil, errors.New("quiz: catalog, attempts and events are required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		cfg:      cfg,
		catalog:  deps.Catalog,
		ctrl:     attempt.NewController(deps.Catalog.Bank(), attempt.WithClock(deps.Clock)),
		attempts: deps.Attempts,
		events:   deps.Events,
		locker:   deps.Locker,
		feedback: deps.Feedback,
		metrics:  deps.Metrics,
		log:      deps.Log.Named("quiz"),
		now:      deps.Clock,
	}, nil
}

// StartRequest binds a new attempt to a study session.
type StartRequest struct {
	SessionID string
	QuizID    string
}

// StartResult is the new attempt's id and the first item to show.
type StartResult struct {
	AttemptID string
	FirstItem ItemView
}

// Start creates an attempt and returns its first item.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return StartResult{}, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}

	id := uuid.NewString()
	a := attempt.New(id, s.attemptConfig(id))
	first, err := s.ctrl.Start(a)
	if err != nil {
		return StartResult{}, fmt.Errorf("start attempt: %w", err)
	}
	view, err := s.itemView(first.ID)
	if err != nil {
		return StartResult{}, err
	}

	rec := &store.AttemptRecord{ID: id, SessionID: req.SessionID, QuizID: req.QuizID}
	if err := s.fill(rec, a); err != nil {
		return StartResult{}, err
	}
	if err := s.attempts.Create(ctx, rec); err != nil {
		return StartResult{}, fmt.Errorf("create attempt: %w", err)
	}

	est := a.History().Estimate
	s.appendEvent(ctx, store.AttemptEventData{
		AttemptID: id, Action: "started", Theta: est.Theta, StandardError: est.StandardError,
	})
	s.metrics.AttemptStarted()
	s.log.Info("attempt started", "attempt_id", id, "session_id", req.SessionID, "first_item", first.ID)

	return StartResult{AttemptID: id, FirstItem: view}, nil
}

// Answer grades the selected option against the item's answer key and
// submits the result.
func (s *Service) Answer(ctx context.Context, attemptID, itemID string, selected int) (AnswerResult, error) {
	rec, err := s.catalog.lookup(itemID)
	if err != nil {
		return AnswerResult{}, err
	}
	if selected < 0 || selected >= len(rec.Options) {
		return AnswerResult{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidOption, selected, len(rec.Options))
	}
	return s.SubmitResponse(ctx, attemptID, itemID, slices.Contains(rec.CorrectOptions, selected))
}

// SubmitResponse records an already-scored response.
func (s *Service) SubmitResponse(ctx context.Context, attemptID, itemID string, correct bool) (AnswerResult, error) {
	var out attempt.Outcome
	a, err := s.mutate(ctx, attemptID, func(a *attempt.Attempt) (bool, error) {
		var err error
		out, err = s.ctrl.Submit(a, itemID, correct)
		return err == nil, err
	})
	if err != nil {
		return AnswerResult{}, err
	}

	h := a.History()
	s.appendAnswer(ctx, store.AnswerEventData{
		AttemptID:     attemptID,
		ItemID:        itemID,
		Position:      h.Len(),
		Correct:       correct,
		Theta:         out.Estimate.Theta,
		StandardError: out.Estimate.StandardError,
		Converged:     out.Estimate.Converged,
	})
	s.metrics.ItemAnswered(out.Estimate.Converged)

	res := AnswerResult{Correct: correct, Complete: out.Complete()}
	if out.Next != nil {
		view, err := s.itemView(out.Next.ID)
		if err != nil {
			return AnswerResult{}, err
		}
		res.Next = &view
		return res, nil
	}

	sum := *out.Summary
	res.Summary = completionOf(attemptID, sum)
	s.appendEvent(ctx, store.AttemptEventData{
		AttemptID: attemptID, Action: "completed", ItemCount: sum.ItemCount,
		Theta: sum.Theta, StandardError: sum.StandardError, Detail: string(sum.StopReason),
	})
	s.metrics.AttemptCompleted(string(sum.StopReason), sum.ItemCount, sum.StandardError)
	s.log.Info("attempt completed", "attempt_id", attemptID, "items", sum.ItemCount,
		"theta", sum.Theta, "se", sum.StandardError, "reason", sum.StopReason)

	s.requestFeedback(attemptID, h, sum)
	return res, nil
}

// Abort ends an attempt. Aborting a finished attempt succeeds without
// changing it.
func (s *Service) Abort(ctx context.Context, attemptID, reason string) error {
	if reason == "" {
		reason = "aborted"
	}
	a, err := s.mutate(ctx, attemptID, func(a *attempt.Attempt) (bool, error) {
		return s.ctrl.Abort(a, reason), nil
	})
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}

	h := a.History()
	s.appendEvent(ctx, store.AttemptEventData{
		AttemptID: attemptID, Action: "aborted", ItemCount: h.Len(),
		Theta: h.Estimate.Theta, StandardError: h.Estimate.StandardError, Detail: reason,
	})
	s.metrics.AttemptAborted(reason)
	s.log.Info("attempt aborted", "attempt_id", attemptID, "reason", reason, "items", h.Len())
	return nil
}

// Get returns the stored attempt.
func (s *Service) Get(ctx context.Context, attemptID string) (*store.AttemptRecord, error) {
	return s.attempts.Get(ctx, attemptID)
}

// Progress returns the examinee-facing view of an attempt.
func (s *Service) Progress(ctx context.Context, attemptID string) (Progress, error) {
	rec, err := s.Get(ctx, attemptID)
	if err != nil {
		return Progress{}, err
	}
	a, err := s.restore(rec)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		AttemptID: rec.ID,
		SessionID: rec.SessionID,
		QuizID:    rec.QuizID,
		Status:    rec.Status,
		ItemCount: rec.ItemCount,
	}
	if it, ok := a.Pending(); ok {
		view, err := s.itemView(it.ID)
		if err != nil {
			return Progress{}, err
		}
		p.Pending = &view
	}
	if sum, ok := a.Summary(); ok {
		p.Summary = completionOf(rec.ID, sum)
		p.Summary.Feedback = decodeFeedback(rec.Feedback)
	}
	return p, nil
}

// AbortStale aborts in-progress attempts not touched for olderThan and
// returns how many it ended. Attempts that move on concurrently are skipped.
func (s *Service) AbortStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.attempts.List(ctx, store.AttemptFilter{
		Status:        store.AttemptInProgress,
		UpdatedBefore: s.now().Add(-olderThan),
	})
	if err != nil {
		return 0, fmt.Errorf("list stale attempts: %w", err)
	}

	n := 0
	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		err := s.Abort(ctx, rec.ID, AbortReasonTimeout)
		switch {
		case err == nil:
			n++
		case errors.Is(err, store.ErrConflict):
			s.log.Debug("stale attempt moved on", "attempt_id", rec.ID)
		default:
			return n, err
		}
	}
	return n, nil
}

// Wait blocks until background feedback generation has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// mutate runs fn on the attempt under its lock and persists the result when
// fn reports a change. It returns the attempt only if it changed.
func (s *Service) mutate(ctx context.Context, attemptID string, fn func(*attempt.Attempt) (bool, error)) (*attempt.Attempt, error) {
	unlock, err := s.locker.Lock(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("lock attempt %s: %w", attemptID, err)
	}
	defer unlock()

	rec, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	a, err := s.restore(rec)
	if err != nil {
		return nil, err
	}

	changed, err := fn(a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}

	if err := s.fill(rec, a); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.Conflict()
		}
		return nil, fmt.Errorf("save attempt %s: %w", attemptID, err)
	}
	return a, nil
}

func (s *Service) restore(rec *store.AttemptRecord) (*attempt.Attempt, error) {
	var ar attempt.Record
	if err := json.Unmarshal(rec.Data, &ar); err != nil {
		return nil, fmt.Errorf("decode attempt %s: %w", rec.ID, errors.Join(attempt.ErrCorruptRecord, err))
	}
	return attempt.Restore(ar, s.ctrl.Bank())
}

// fill copies the attempt's state into rec.
func (s *Service) fill(rec *store.AttemptRecord, a *attempt.Attempt) error {
	data, err := json.Marshal(a.Record())
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	h := a.History()
	rec.Status = string(a.Status())
	rec.Theta = h.Estimate.Theta
	rec.StandardError = h.Estimate.StandardError
	rec.ItemCount = h.Len()
	rec.Data = data
	if sum, ok := a.Summary(); ok {
		at := sum.CompletedAt
		rec.CompletedAt = &at
	}
	if ab, ok := a.State().(attempt.Aborted); ok {
		at := ab.AbortedAt
		rec.CompletedAt = &at
	}
	return nil
}

// attemptConfig fixes the engine config for a new attempt. Randomized
// selection without a configured seed gets one derived from the attempt id,
// so every attempt stays replayable from its record.
func (s *Service) attemptConfig(id string) attempt.Config {
	cfg := s.cfg
	if cfg.Selection.Randomized() && cfg.Seed == 0 {
		h := fnv.New64a()
		h.Write([]byte(id))
		cfg.Seed = h.Sum64()
	}
	return cfg
}

func (s *Service) itemView(id string) (ItemView, error) {
	rec, err := s.catalog.lookup(id)
	if err != nil {
		return ItemView{}, err
	}
	return viewOf(rec), nil
}

// requestFeedback generates study feedback in the background. Failures are
// logged and never affect the attempt.
func (s *Service) requestFeedback(attemptID string, h attempt.History, sum attempt.Summary) {
	if s.feedback == nil || len(sum.WeakTopics) == 0 {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx := context.Background()
		fb, err := s.feedback.Generate(ctx, feedback.InputFor(h, sum))
		if err != nil {
			s.log.Warn("study feedback failed", "attempt_id", attemptID, "error", err)
			return
		}
		raw, err := json.Marshal(fb)
		if err != nil {
			s.log.Warn("encode study feedback", "attempt_id", attemptID, "error", err)
			return
		}
		if err := s.attempts.SetFeedback(ctx, attemptID, raw); err != nil {
			s.log.Warn("save study feedback", "attempt_id", attemptID, "error", err)
		}
	}()
}

func (s *Service) appendEvent(ctx context.Context, ev store.AttemptEventData) {
	if err := s.events.AppendAttemptEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("record attempt event", "attempt_id", ev.AttemptID, "action", ev.Action, "error", err)
	}
}

func (s *Service) appendAnswer(ctx context.Context, ev store.AnswerEventData) {
	if err := s.events.AppendAnswerEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("record answer event", "attempt_id", ev.AttemptID, "item_id", ev.ItemID, "error", err)
	}
}
