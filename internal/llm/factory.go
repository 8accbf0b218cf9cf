package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/animalia/internal/config"
	"github.com/nugget/animalia/internal/httpkit"
)

// NewFromConfig builds the client for cfg.Provider. Every provider gets
// a retrying HTTP client governed by MaxRetries and RetryDelay.
func NewFromConfig(cfg config.ModelConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	retry := httpkit.WithRetry(cfg.MaxRetries, cfg.RetryDelay)

	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, logger, retry), nil
	case config.ProviderAnthropic:
		c := NewAnthropicClient(cfg.APIKey, logger, retry)
		if cfg.BaseURL != "" {
			c.apiURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"
		}
		return c, nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, logger, retry), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
