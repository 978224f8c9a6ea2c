// services/openai_provider.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

type openAIProvider struct {
	client      *openai.Client
	costService CostService
	cfg         *config.Config // Added for Azure deployment name
}

// NewOpenAIProvider creates an OpenAI (or Azure OpenAI) provider. Extra
// request options are applied after the credentials, e.g. a base URL in tests.
func NewOpenAIProvider(cfg *config.Config, costService CostService, opts ...option.RequestOption) CompletionProvider {
	var clientOpts []option.RequestOption

	// Check if Azure configuration is available
	if cfg.AzureOpenAIEndpoint != "" && cfg.AzureOpenAIKey != "" && cfg.AzureOpenAIDeploymentName != "" {
		clientOpts = append(clientOpts,
			azure.WithEndpoint(cfg.AzureOpenAIEndpoint, "2024-12-01-preview"),
			azure.WithAPIKey(cfg.AzureOpenAIKey),
		)
		fmt.Printf("[NewOpenAIProvider] Using Azure OpenAI (endpoint: %s, deployment: %s)\n", cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIDeploymentName)
	} else {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.OpenAIAPIKey))
		fmt.Printf("[NewOpenAIProvider] Using standard OpenAI\n")
	}
	clientOpts = append(clientOpts, opts...)

	client := openai.NewClient(clientOpts...)
	return &openAIProvider{
		client:      &client,
		costService: costService,
		cfg:         cfg,
	}
}

func (p *openAIProvider) GetProviderName() string {
	return "openai"
}

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	// Determine which model to use
	var model openai.ChatModel
	if p.cfg.AzureOpenAIDeploymentName != "" {
		model = openai.ChatModel(p.cfg.AzureOpenAIDeploymentName)
	} else {
		model = openai.ChatModel(req.Model)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    model,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	// Conditional Temperature Setting
	if !strings.HasPrefix(req.Model, "gpt-5") {
		params.Temperature = openai.Float(req.Temperature)
	} else {
		fmt.Printf("[Complete] Skipping temperature setting for model %s\n", req.Model)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	inputTokens := int(response.Usage.PromptTokens)
	outputTokens := int(response.Usage.CompletionTokens)

	return &CompletionResponse{
		Text:         choice.Message.Content,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         p.costService.CalculateCost(p.GetProviderName(), req.Model, inputTokens, outputTokens),
		Incomplete:   choice.FinishReason == "length",
	}, nil
}
