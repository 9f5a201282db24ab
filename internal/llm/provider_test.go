package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

func serveJSON(t *testing.T, status int, body any, inspect func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatCompletion(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func feedbackRequest() Request {
	return Prompt("You write study feedback.", "Topics: fractions", feedbackLikeSchema(), 256)
}

func TestOpenAI_StructuredOutput(t *testing.T) {
	var sent map[string]any
	srv := serveJSON(t, http.StatusOK, chatCompletion(`{"summary":"Practise fractions.","topics":["fractions"]}`, "stop"),
		func(r *http.Request) { _ = json.NewDecoder(r.Body).Decode(&sent) })

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), feedbackRequest())
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 40, OutputTokens: 25, TotalTokens: 65}, resp.Usage)
	assert.Equal(t, StopEnd, resp.StopReason)
	assert.JSONEq(t, `{"summary":"Practise fractions.","topics":["fractions"]}`, string(resp.Content))

	format, _ := sent["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	msgs, _ := sent["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(t *testing.T, err error)
	}{
		{"rate limit", http.StatusTooManyRequests,
			map[string]any{"error": map[string]any{"message": "slow down", "type": "tokens"}},
			func(t *testing.T, err error) {
				var rl *ErrRateLimit
				assert.True(t, errors.As(err, &rl), "%T", err)
			}},
		{"server error", http.StatusInternalServerError,
			map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}},
			func(t *testing.T, err error) {
				var un *ErrProviderUnavailable
				assert.True(t, errors.As(err, &un), "%T", err)
			}},
		{"schema mismatch", http.StatusOK, chatCompletion(`{"summary":3}`, "stop"),
			func(t *testing.T, err error) {
				var inv *ErrInvalidResponse
				assert.True(t, errors.As(err, &inv), "%T", err)
			}},
		{"truncated", http.StatusOK, chatCompletion(`{"summary":"Pra`, "length"),
			func(t *testing.T, err error) {
				var mt *ErrMaxTokensExceeded
				assert.True(t, errors.As(err, &mt), "%T", err)
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveJSON(t, tt.status, tt.body, nil)
			p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)
			_, err = p.Generate(context.Background(), feedbackRequest())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOpenRouter_UsesCompatibleEndpoint(t *testing.T) {
	var path, auth string
	srv := serveJSON(t, http.StatusOK, chatCompletion(`plain text`, "stop"), func(r *http.Request) {
		path, auth = r.URL.Path, r.Header.Get("Authorization")
	})

	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "or-key", Model: "google/gemini-2.0-flash-001", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.0-flash-001", p.ModelID())

	resp, err := p.Generate(context.Background(), Prompt("", "hi", nil, 0))
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(resp.Content))
	assert.True(t, strings.HasSuffix(path, "/chat/completions"), path)
	assert.Equal(t, "Bearer or-key", auth)
}

func TestAnthropic_StructuredOutput(t *testing.T) {
	var sent map[string]any
	srv := serveJSON(t, http.StatusOK, map[string]any{
		"id":    "msg_1",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-haiku-4-5-20251001",
		"content": []map[string]any{
			{"type": "text", "text": `{"summary":"Review ratios.","topics":["ratios"]}`},
		},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 12, "output_tokens": 8},
	}, func(r *http.Request) { _ = json.NewDecoder(r.Body).Decode(&sent) })

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "k", Model: "claude-haiku", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5-20251001", p.ModelID())

	resp, err := p.Generate(context.Background(), feedbackRequest())
	require.NoError(t, err)
	assert.Equal(t, 20, resp.Usage.TotalTokens)
	assert.Equal(t, StopEnd, resp.StopReason)
	assert.EqualValues(t, 256, sent["max_tokens"])
}

func TestGeminiSchemaConversion(t *testing.T) {
	s := geminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "description": "two sentences"},
			"score":   map[string]any{"type": []any{"number", "null"}},
			"topics":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"summary"},
	})
	assert.Equal(t, "two sentences", s.Properties["summary"].Description)
	assert.Equal(t, []string{"summary"}, s.Required)
	require.NotNil(t, s.Properties["score"].Nullable)
	assert.True(t, *s.Properties["score"].Nullable)
	assert.NotNil(t, s.Properties["topics"].Items)
}

func TestNewProvider_Selection(t *testing.T) {
	cfg := DefaultConfig()
	p, err := NewProvider(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p, "no provider configured")

	cfg.Provider = ProviderOpenAI
	_, err = NewProvider(context.Background(), cfg, nil, nil)
	assert.ErrorContains(t, err, "api_key")

	cfg.Provider = "llama"
	_, err = NewProvider(context.Background(), cfg, nil, nil)
	assert.Error(t, err)

	cfg.Provider = ProviderMock
	p, err = NewProvider(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
}

func TestRecordingProvider_PersistsEvents(t *testing.T) {
	st, err := store.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"summary":"x","topics":[]}`), Usage: Usage{InputTokens: 5, OutputTokens: 3}},
		down(),
	)
	p := WithRecording(mock, ProviderMock, st.EventRepo(), logging.Nop())
	ctx := WithPurpose(context.Background(), PurposeFeedback)

	_, err = p.Generate(ctx, feedbackRequest())
	require.NoError(t, err)
	_, err = p.Generate(ctx, feedbackRequest())
	require.Error(t, err)

	events, err := st.EventRepo().QueryLLMEvents(context.Background(), store.QueryOpts{Purpose: PurposeFeedback})
	require.NoError(t, err)
	require.Len(t, events, 2)

	failed, ok := events[0], events[1]
	assert.False(t, failed.Success)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.True(t, ok.Success)
	assert.Equal(t, 5, ok.InputTokens)
	assert.Contains(t, ok.RequestBody, "[system]")
	assert.Contains(t, ok.RequestBody, "[schema: test-feedback-shape]")
}

func TestPurposeDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", PurposeFrom(context.Background()))
	assert.Equal(t, PurposeProbe, PurposeFrom(WithPurpose(context.Background(), PurposeProbe)))
}
