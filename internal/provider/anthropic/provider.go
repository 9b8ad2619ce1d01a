// Package anthropic implements the domain.Provider interface for the
// Anthropic Messages API.
package anthropic

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
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1024
)

var supportedModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
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

// Provider calls the Anthropic Messages API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// New creates an Anthropic provider with the given API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		maxRetries: provider.DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportedModels() []string { return supportedModels }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range supportedModels {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// ValidateCredentials issues a minimal messages call to verify the key.
// Anthropic has no cheap credentials endpoint, so a one-token request is
// the smallest probe available.
func (p *Provider) ValidateCredentials(ctx context.Context) error {
	probe := &domain.CompletionRequest{
		Model:     supportedModels[0],
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	}
	_, err := p.completeOnce(ctx, probe)
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Type == domain.ErrorTypeAuthentication {
		return err
	}
	return nil
}

type messagesRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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

	// Anthropic takes system text in a separate field. Concatenate all
	// system messages so no directive is lost.
	var systemParts []string
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, apiMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      strings.Join(systemParts, "\n\n"),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling messages request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrTimeout(p.Name(), err.Error())
		}
		return nil, domain.ErrProvider(p.Name(), err.Error(), domain.IsRetryable(err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading messages response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.mapAPIError(httpResp.StatusCode, respBody)
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decoding messages response: %w", err)
	}

	// Concatenate text blocks; the API can return several.
	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	usage := domain.Usage{
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
		TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
	}

	return &domain.CompletionResponse{
		Content:           content.String(),
		Model:             apiResp.Model,
		Provider:          p.Name(),
		Usage:             usage,
		CostCents:         provider.CostCents(req.Model, usage),
		ProviderRequestID: apiResp.ID,
		FinishReason:      mapStopReason(apiResp.StopReason),
	}, nil
}

// mapAPIError translates a vendor HTTP error into the common taxonomy.
// Anthropic reports overload as 529, which is treated like rate limiting.
func (p *Provider) mapAPIError(status int, body []byte) error {
	var er errorResponse
	message := string(body)
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		message = er.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuthentication(p.Name(), message)
	case status == http.StatusTooManyRequests || status == 529:
		return domain.ErrRateLimit(p.Name(), message)
	case status == http.StatusRequestTimeout:
		return domain.ErrTimeout(p.Name(), message)
	default:
		return domain.ErrProvider(p.Name(), fmt.Sprintf("HTTP %d: %s", status, message), status >= 500)
	}
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "refusal":
		return domain.FinishContentFilter
	default:
		return domain.FinishError
	}
}
