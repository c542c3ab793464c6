package inference

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/config"
)

// New builds the backend selected by cfg.Provider.
func New(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.BaseURL, cfg.Model, logger)
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model, logger)
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.BaseURL, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
