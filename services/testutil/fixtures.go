package testutil

import (
	"github.com/AI-Template-SDK/senso-pria/internal/config"
)

// SampleConfig returns a test configuration
func SampleConfig() *config.Config {
	return &config.Config{
		OpenAIAPIKey:    "test-openai-key",
		AnthropicAPIKey: "test-anthropic-key",
		Run: config.RunConfig{
			DefaultModel:             "gpt-4.1",
			DefaultTemperature:       0.7,
			DefaultMaxTokens:         2000,
			CompletionTimeoutSeconds: 5,
			SystemPrompt:             "Answer with your top 3.",
		},
	}
}

// TopThreeReply is a numbered reply naming three entities.
func TopThreeReply(first, second, third string) string {
	return "Here are my picks:\n1. " + first + " - great\n2. " + second + " - good\n3. " + third + " - ok\n"
}
