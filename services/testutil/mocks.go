package testutil

import (
	"context"
	"sync"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/services"
)

// MockCostService is a mock implementation of CostService for testing
type MockCostService struct {
	CalculateCostFunc func(provider, model string, inputTokens, outputTokens int) float64
}

func (m *MockCostService) CalculateCost(provider, model string, inputTokens, outputTokens int) float64 {
	if m.CalculateCostFunc != nil {
		return m.CalculateCostFunc(provider, model, inputTokens, outputTokens)
	}
	return 0.0015 // Default mock cost
}

// NewMockCostService creates a new mock cost service
func NewMockCostService() *MockCostService {
	return &MockCostService{}
}

// MockCompletionProvider replays scripted replies in call order. When the
// script is exhausted the last entry is repeated.
type MockCompletionProvider struct {
	Replies []MockReply

	mu       sync.Mutex
	Requests []services.CompletionRequest
}

// MockReply is one scripted provider answer
type MockReply struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Incomplete   bool
	Err          error
}

func (m *MockCompletionProvider) Complete(ctx context.Context, req services.CompletionRequest) (*services.CompletionResponse, error) {
	m.mu.Lock()
	n := len(m.Requests)
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if len(m.Replies) == 0 {
		return &services.CompletionResponse{}, nil
	}
	if n >= len(m.Replies) {
		n = len(m.Replies) - 1
	}

	reply := m.Replies[n]
	if reply.Err != nil {
		return nil, reply.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &services.CompletionResponse{
		Text:         reply.Text,
		InputTokens:  reply.InputTokens,
		OutputTokens: reply.OutputTokens,
		Cost:         reply.Cost,
		Incomplete:   reply.Incomplete,
	}, nil
}

func (m *MockCompletionProvider) GetProviderName() string {
	return "mock"
}

// Calls returns how many completions were requested.
func (m *MockCompletionProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockProviderFactory returns the same provider for every model
type MockProviderFactory struct {
	Provider services.CompletionProvider
	Err      error
}

func (f *MockProviderFactory) ProviderFor(model string) (services.CompletionProvider, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Provider, nil
}

// MockIndexer records indexed outcomes
type MockIndexer struct {
	mu      sync.Mutex
	Indexed []*models.PromptOutcome
	Err     error
}

func (m *MockIndexer) EnsureCollection(ctx context.Context) error {
	return m.Err
}

func (m *MockIndexer) IndexOutcomes(ctx context.Context, run *models.Run, outcomes []*models.PromptOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Indexed = append(m.Indexed, outcomes...)
	return m.Err
}
