// Package openai implements the domain.Provider interface for the OpenAI
// Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/provider"
	"github.com/fairlease/modelgate/internal/tokens"
)

const defaultBaseURL = "https://api.openai.com/v1"

// defaultTimeout bounds each individual vendor call attempt, not the
// whole retry sequence.
const defaultTimeout = 60 * time.Second

var supportedModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(p *Provider) { p.maxRetries = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithCounter overrides the token counter used to backfill usage when
// the vendor response omits it.
func WithCounter(c tokens.Counter) Option {
	return func(p *Provider) { p.counter = c }
}

// Provider calls the OpenAI Chat Completions API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	counter    tokens.Counter
	logger     *slog.Logger
}

// New creates an OpenAI provider with the given API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		maxRetries: provider.DefaultMaxRetries,
		counter:    tokens.NewDefaultRegistry(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) SupportedModels() []string { return supportedModels }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range supportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// IsAvailable reports whether the adapter has credentials to attempt a
// call. It does not hit the network.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// ValidateCredentials verifies the API key against the models endpoint.
func (p *Provider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("creating models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrAuthentication(p.Name(), "API key rejected")
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ErrProvider(p.Name(), fmt.Sprintf("models endpoint returned %d", resp.StatusCode), resp.StatusCode >= 500)
	}
	return nil
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete executes a single completion call with retry-with-backoff on
// transient failures.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	cfg := provider.RetryConfig{
		MaxRetries: p.maxRetries,
		Logger:     p.logger,
	}
	if req.MaxRetries > 0 {
		cfg.MaxRetries = req.MaxRetries
	}

	start := time.Now()
	resp, err := provider.Retry(ctx, cfg, func(ctx context.Context) (*domain.CompletionResponse, error) {
		return p.completeOnce(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

func (p *Provider) completeOnce(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	timeout := p.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.mapTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.mapAPIError(httpResp.StatusCode, respBody)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, domain.ErrProvider(p.Name(), "response contained no choices", false)
	}

	choice := apiResp.Choices[0]
	usage := domain.Usage{
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
		TotalTokens:      apiResp.Usage.TotalTokens,
	}
	if usage == (domain.Usage{}) {
		usage = p.estimateUsage(req, choice.Message.Content)
	}

	return &domain.CompletionResponse{
		Content:           choice.Message.Content,
		Model:             apiResp.Model,
		Provider:          p.Name(),
		Usage:             usage,
		CostCents:         provider.CostCents(req.Model, usage),
		ProviderRequestID: apiResp.ID,
		FinishReason:      mapFinishReason(choice.FinishReason),
	}, nil
}

// estimateUsage backfills token counts when the vendor response omits
// the usage block. Billing still follows these numbers, so they come
// from the tiktoken counter rather than the rough estimator.
func (p *Provider) estimateUsage(req *domain.CompletionRequest, content string) domain.Usage {
	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
	}
	promptTokens, _ := p.counter.CountText(req.Model, prompt.String())
	completionTokens, _ := p.counter.CountText(req.Model, content)
	return domain.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// mapAPIError translates a vendor HTTP error into the common taxonomy.
func (p *Provider) mapAPIError(status int, body []byte) error {
	var er errorResponse
	message := string(body)
	code := ""
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		message = er.Error.Message
		code = er.Error.Code
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuthentication(p.Name(), message)
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimit(p.Name(), message)
	case status == http.StatusRequestTimeout:
		return domain.ErrTimeout(p.Name(), message)
	case code == "content_filter" || er.Error.Type == "content_filter":
		return domain.ErrContentFiltered(p.Name(), message)
	default:
		return domain.ErrProvider(p.Name(), fmt.Sprintf("HTTP %d: %s", status, message), status >= 500)
	}
}

// mapTransportError classifies client-side transport failures.
func (p *Provider) mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout(p.Name(), err.Error())
	}
	return domain.ErrProvider(p.Name(), err.Error(), domain.IsRetryable(err))
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	default:
		return domain.FinishError
	}
}
