package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/tokens"
)

// MockOption configures the mock provider.
type MockOption func(*Mock)

// WithMockName overrides the provider name (default "mock").
func WithMockName(name string) MockOption {
	return func(m *Mock) { m.name = name }
}

// WithMockModels sets the supported-model list.
func WithMockModels(models ...string) MockOption {
	return func(m *Mock) { m.models = models }
}

// WithMockResponse sets the canned completion text.
func WithMockResponse(content string) MockOption {
	return func(m *Mock) { m.response = content }
}

// WithMockError makes every Complete call fail with err.
func WithMockError(err error) MockOption {
	return func(m *Mock) { m.failWith = err }
}

// WithMockFailures makes the first n Complete calls fail with err, then
// succeed. Used to exercise retry and fallback paths.
func WithMockFailures(n int, err error) MockOption {
	return func(m *Mock) {
		m.failWith = err
		m.failCount = n
	}
}

// WithMockLatency adds a fixed delay to each Complete call.
func WithMockLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

// WithMockCounter overrides the token counter behind the usage numbers.
func WithMockCounter(c tokens.Counter) MockOption {
	return func(m *Mock) { m.counter = c }
}

// Mock is a deterministic provider adapter for tests: canned response,
// configurable induced failure, and counter-based usage numbers so no
// real vendor call is needed. Usage comes from the default token
// registry: tiktoken counts for OpenAI-family models, the chars/4
// estimate for everything else.
type Mock struct {
	name     string
	models   []string
	response string
	failWith error
	latency  time.Duration
	counter  tokens.Counter

	mu        sync.Mutex
	calls     int
	failCount int // remaining induced failures; -1 means fail forever
}

// NewMock creates a mock provider.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		name:      "mock",
		models:    []string{"mock-model"},
		response:  "This is a mock completion.",
		counter:   tokens.NewDefaultRegistry(),
		failCount: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) SupportedModels() []string { return m.models }

func (m *Mock) SupportsModel(model string) bool {
	for _, mm := range m.models {
		if mm == model {
			return true
		}
	}
	return false
}

func (m *Mock) IsAvailable(ctx context.Context) bool { return true }

func (m *Mock) ValidateCredentials(ctx context.Context) error { return nil }

// Calls returns how many times Complete was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete returns the canned response, or the induced failure while any
// remain. Usage is counted by the configured token counter.
func (m *Mock) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	fail := m.failWith != nil && (m.failCount == -1 || m.failCount > 0)
	if fail && m.failCount > 0 {
		m.failCount--
	}
	m.mu.Unlock()

	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return nil, domain.ErrTimeout(m.name, ctx.Err().Error())
		}
	}

	if fail {
		return nil, m.failWith
	}

	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
	}
	promptTokens, _ := m.counter.CountText(req.Model, prompt.String())
	completionTokens, _ := m.counter.CountText(req.Model, m.response)

	usage := domain.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}

	return &domain.CompletionResponse{
		Content:           m.response,
		Model:             req.Model,
		Provider:          m.name,
		Usage:             usage,
		CostCents:         CostCents(req.Model, usage),
		ProviderRequestID: "mock-" + uuid.NewString(),
		FinishReason:      domain.FinishStop,
	}, nil
}
