package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

// RecordingProvider persists every call as an LLM request event. Failing to
// record never fails the call itself.
type RecordingProvider struct {
	inner    Provider
	provider string
	events   store.EventRepo
	log      *logging.Logger
}

// WithRecording wraps p. A nil events repo only logs.
func WithRecording(p Provider, provider string, events store.EventRepo, log *logging.Logger) Provider {
	if log == nil {
		log = logging.Nop()
	}
	return &RecordingProvider{inner: p, provider: provider, events: events, log: log.Named("llm")}
}

func (r *RecordingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := r.inner.Generate(ctx, req)

	ev := store.LLMRequestEventData{
		Provider:    r.provider,
		Model:       r.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: transcript(req),
	}
	if resp != nil {
		ev.Model = resp.Model
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.ResponseBody = string(resp.Content)
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}

	r.log.Debug("llm request",
		"purpose", ev.Purpose, "model", ev.Model, "latency_ms", ev.LatencyMs,
		"input_tokens", ev.InputTokens, "output_tokens", ev.OutputTokens, "ok", ev.Success)

	if r.events != nil {
		// The caller's context may already be cancelled.
		if recErr := r.events.AppendLLMRequest(context.WithoutCancel(ctx), ev); recErr != nil {
			r.log.Warn("record llm request", "error", recErr)
		}
	}
	return resp, err
}

func (r *RecordingProvider) ModelID() string { return r.inner.ModelID() }

// transcript renders a request the way `llm view` shows it.
func transcript(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
