package provider

import (
	"fmt"

	"github.com/agentd-dev/agentd/internal/config"
)

// New builds the provider named by cfg.Provider. Config validation
// already rejects unknown names; the error return guards direct
// callers.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.RequestTimeout), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RequestTimeout), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.RequestTimeout), nil
	case "openrouter":
		return NewOpenRouter(OpenRouterOptions{
			APIKey:  cfg.OpenRouterAPIKey,
			BaseURL: cfg.OpenRouterBaseURL,
			Referer: cfg.OpenRouterReferer,
			AppName: cfg.OpenRouterApp,
		}, cfg.RequestTimeout), nil
	case "lmstudio":
		return NewLMStudio(cfg.LMStudioBaseURL, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
