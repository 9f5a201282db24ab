package llm

import (
	"context"
	"fmt"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

// NewProvider builds the configured provider wrapped as
// caller → retry → recording → base. It returns nil, nil when no provider
// is configured.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log *logging.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "":
		return nil, nil
	case ProviderMock:
		base = NewMockProvider()
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	recorded := WithRecording(base, cfg.Provider, events, log)
	return WithRetry(recorded, cfg.Retry), nil
}
