package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/llm-quality-observer/internal/ai/anthropic"
	"github.com/kiranshivaraju/llm-quality-observer/internal/ai/openai"
	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible endpoint on a local install.
const DefaultOllamaBaseURL = "http://localhost:11434/v1/"

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup. vLLM and Ollama are reached through their
// OpenAI-compatible endpoints.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "openai":
		return classified{openai.NewProvider("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)}, nil
	case "vllm":
		return classified{openai.NewProvider("vllm", cfg.BaseURL, cfg.APIKey, cfg.Model)}, nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		return classified{openai.NewProvider("ollama", baseURL, cfg.APIKey, cfg.Model)}, nil
	case "anthropic":
		return classified{anthropic.NewProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

// classified normalizes every provider failure onto the package sentinels.
type classified struct {
	models.AIProvider
}

func (c classified) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := c.AIProvider.Complete(ctx, prompt)
	if err != nil {
		return "", Classify(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion from %s", ErrInvalidResponse, c.Name())
	}
	return text, nil
}
