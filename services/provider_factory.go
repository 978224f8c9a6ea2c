package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
)

type providerFactory struct {
	cfg         *config.Config
	costService CostService

	mu        sync.Mutex
	providers map[string]CompletionProvider
}

// NewProviderFactory routes model names to providers. Clients are created on
// first use and reused.
func NewProviderFactory(cfg *config.Config, costService CostService) ProviderFactory {
	return &providerFactory{
		cfg:         cfg,
		costService: costService,
		providers:   make(map[string]CompletionProvider),
	}
}

// ProviderFor returns the appropriate provider for the model
func (f *providerFactory) ProviderFor(model string) (CompletionProvider, error) {
	if f.cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	name, err := providerNameFor(model)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[name]; ok {
		return p, nil
	}

	var p CompletionProvider
	switch name {
	case "openai":
		if f.cfg.OpenAIAPIKey == "" && f.cfg.AzureOpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is empty in config")
		}
		p = NewOpenAIProvider(f.cfg, f.costService)
	case "anthropic":
		if f.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is empty in config")
		}
		p = NewAnthropicProvider(f.cfg, f.costService)
	}
	fmt.Printf("[ProviderFor] Selected %s provider for model: %s\n", name, model)

	f.providers[name] = p
	return p, nil
}

// Model families by name prefix.
var (
	openAIModelPrefixes    = []string{"gpt-", "chatgpt-", "o1", "o3", "o4"}
	anthropicModelPrefixes = []string{"claude-"}
)

func providerNameFor(model string) (string, error) {
	modelLower := strings.ToLower(strings.TrimSpace(model))

	for _, prefix := range openAIModelPrefixes {
		if strings.HasPrefix(modelLower, prefix) {
			return "openai", nil
		}
	}
	for _, prefix := range anthropicModelPrefixes {
		if strings.HasPrefix(modelLower, prefix) {
			return "anthropic", nil
		}
	}
	return "", fmt.Errorf("unsupported model: %s", model)
}
