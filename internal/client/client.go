// Package client is the orchestrator: the single call path through which
// completions are produced. It composes the provider registry, the
// redactor, the policy gate, and the audit ledger; nothing else in the
// system is aware of their ordering.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/ledger"
	"github.com/fairlease/modelgate/internal/policy"
	"github.com/fairlease/modelgate/internal/provider"
	"github.com/fairlease/modelgate/internal/redact"
)

var tracer = otel.Tracer("github.com/fairlease/modelgate/internal/client")

// PolicyBlockedError is returned when the policy gate rejects the output
// and the client is configured to hard-block. The run is already recorded
// as blocked on the ledger.
type PolicyBlockedError struct {
	RunID  string
	Result *policy.CheckResult
}

func (e *PolicyBlockedError) Error() string {
	codes := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		codes = append(codes, string(v.Code))
	}
	return fmt.Sprintf("output blocked by policy gate (run %s): %s", e.RunID, strings.Join(codes, ", "))
}

// Option configures the Client.
type Option func(*Client)

// WithFallback names the provider to try once after the primary fails
// with a retryable error.
func WithFallback(providerName string) Option {
	return func(c *Client) { c.fallback = providerName }
}

// WithRedactor replaces the default redactor.
func WithRedactor(r *redact.Redactor) Option {
	return func(c *Client) { c.redactor = r }
}

// WithGate enables policy gating. Without a gate, output passes through
// unchecked.
func WithGate(g *policy.Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithHardBlock makes a failed policy check terminate the run as blocked
// instead of substituting sanitized text.
func WithHardBlock(hard bool) Option {
	return func(c *Client) { c.hardBlock = hard }
}

// WithLedger replaces the default in-memory ledger service.
func WithLedger(svc *ledger.Service) Option {
	return func(c *Client) { c.ledger = svc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client runs the completion pipeline. Each Complete call is one
// sequential pass; concurrent calls share only the ledger store and the
// budget usage source.
type Client struct {
	registry  *provider.Registry
	fallback  string
	redactor  *redact.Redactor
	gate      *policy.Gate
	hardBlock bool
	ledger    *ledger.Service
	logger    *slog.Logger
}

// New creates a client over the given provider registry. With no options
// it redacts with the built-in patterns, audits to an in-memory ledger,
// and skips policy gating.
func New(registry *provider.Registry, opts ...Option) *Client {
	c := &Client{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.redactor == nil {
		c.redactor = redact.New()
	}
	if c.ledger == nil {
		c.ledger = ledger.NewService()
	}
	return c
}

// Result is the outcome of a successful pipeline pass. Response.Content
// is the finalized text: redacted, and sanitized when the gate rewrote
// it.
type Result struct {
	RunID         string
	Response      *domain.CompletionResponse
	PromptReports []*redact.MessageReport
	OutputReport  *redact.Report
	Policy        *policy.CheckResult
}

// Complete runs the full pipeline for one request: budget check, prompt
// redaction, ledger run, provider call with one-shot fallback, output
// redaction, policy gate, completion record. Any error after the run is
// created is recorded on it exactly once before being returned.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*Result, error) {
	if req == nil || req.Model == "" {
		return nil, errors.New("completion request requires a model")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("completion request requires at least one message")
	}

	ctx, span := tracer.Start(ctx, "client.complete")
	defer span.End()
	span.SetAttributes(attribute.String("model", req.Model))

	prov, err := c.registry.ForModel(req.Model)
	if err != nil {
		return nil, err
	}

	var userID, orgID, jurisdiction, stage string
	if cc := req.Context; cc != nil {
		userID, orgID = cc.UserID, cc.OrganizationID
		jurisdiction, stage = cc.Jurisdiction, cc.ApplicationStage
	}

	// Budget is checked before the run exists, so an over-budget caller
	// leaves no ledger entry.
	if err := c.ledger.CheckBudget(ctx, userID, orgID); err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	redacted, promptReports := c.redactor.RedactMessages(ctx, req.Messages)

	run, err := c.ledger.StartRun(ctx, ledger.StartParams{
		RequestID:     requestID,
		Context:       req.Context,
		Provider:      prov.Name(),
		Model:         req.Model,
		Prompt:        redacted,
		PromptReports: promptReports,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("run_id", run.ID))

	if err := c.ledger.MarkProcessing(ctx, run.ID); err != nil {
		return nil, c.failRun(ctx, run.ID, err)
	}

	provReq := *req
	provReq.Messages = redacted
	provReq.RequestID = requestID

	resp, err := c.callWithFallback(ctx, prov, &provReq)
	if err != nil {
		return nil, c.failRun(ctx, run.ID, err)
	}

	outReport := c.redactor.Redact(ctx, resp.Content)
	resp.Content = outReport.Content

	var checkResult *policy.CheckResult
	if c.gate != nil && jurisdiction != "" {
		checkResult = c.gate.Check(ctx, resp.Content, jurisdiction, stage)
		blocked := !checkResult.Allowed && c.hardBlock

		if err := c.ledger.RecordPolicyCheck(ctx, run.ID, checkResult, blocked); err != nil {
			return nil, c.failRun(ctx, run.ID, err)
		}
		if blocked {
			c.logger.Warn("completion blocked by policy gate",
				slog.String("run_id", run.ID),
				slog.String("jurisdiction", jurisdiction),
				slog.Int("violations", len(checkResult.Violations)),
			)
			return nil, &PolicyBlockedError{RunID: run.ID, Result: checkResult}
		}
		if checkResult.Sanitized != "" {
			resp.Content = checkResult.Sanitized
		}
	}

	if resp.CostCents == 0 {
		resp.CostCents = provider.CostCents(resp.Model, resp.Usage)
	}

	err = c.ledger.RecordCompletion(ctx, run.ID, ledger.CompletionParams{
		Output:       resp.Content,
		OutputReport: outReport,
		Usage:        resp.Usage,
		CostCents:    resp.CostCents,
		Duration:     resp.Duration,
	})
	if err != nil {
		return nil, c.failRun(ctx, run.ID, err)
	}

	c.logger.Info("completion finished",
		slog.String("run_id", run.ID),
		slog.String("provider", resp.Provider),
		slog.String("model", resp.Model),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.Int64("cost_cents", resp.CostCents),
	)

	return &Result{
		RunID:         run.ID,
		Response:      resp,
		PromptReports: promptReports,
		OutputReport:  outReport,
		Policy:        checkResult,
	}, nil
}

// callWithFallback calls the primary provider and, when it fails with a
// retryable error and a different fallback provider is configured and
// supports the model, tries the fallback exactly once. The fallback's own
// retry loop still applies inside its Complete.
func (c *Client) callWithFallback(ctx context.Context, primary domain.Provider, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if c.fallback == "" || !domain.IsRetryable(err) {
		return nil, err
	}

	fb, fbErr := c.registry.Get(c.fallback)
	if fbErr != nil || fb.Name() == primary.Name() || !fb.SupportsModel(req.Model) {
		return nil, err
	}

	c.logger.Warn("primary provider failed, trying fallback",
		slog.String("primary", primary.Name()),
		slog.String("fallback", fb.Name()),
		slog.String("error", err.Error()),
	)
	return fb.Complete(ctx, req)
}

// failRun records err as the run's terminal failure and returns err. A
// ledger write failure here is logged, not returned; the original error
// is what the caller needs.
func (c *Client) failRun(ctx context.Context, runID string, err error) error {
	code := "internal_error"
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		code = string(provErr.Type)
	}
	if recErr := c.ledger.RecordFailure(ctx, runID, code, err.Error()); recErr != nil {
		c.logger.Error("recording run failure",
			slog.String("run_id", runID),
			slog.String("error", recErr.Error()),
		)
	}
	return err
}

// Run returns the ledger record for a run id, for status polling.
func (c *Client) Run(ctx context.Context, id string) (*ledger.Run, error) {
	return c.ledger.GetRun(ctx, id)
}

// Provider exposes a configured adapter by name, for availability and
// credential checks.
func (c *Client) Provider(name string) (domain.Provider, error) {
	return c.registry.Get(name)
}

// Providers lists the configured adapter names.
func (c *Client) Providers() []string {
	return c.registry.Names()
}
