package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/policy"
	"github.com/fairlease/modelgate/internal/redact"
)

// ErrTerminalState is returned when a transition is attempted on a run
// that already reached completed, failed, or blocked. The run is left
// untouched; calling code treats this as a programming error.
var ErrTerminalState = errors.New("run is in a terminal state")

// Option configures the Service.
type Option func(*Service)

// WithStore sets the backing store (default: in-memory).
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// WithLimits sets the daily budget caps.
func WithLimits(limits Limits) Option {
	return func(s *Service) { s.limits = limits }
}

// WithUsageFunc injects an external budget-usage source. Without one the
// service recomputes usage from its own store.
func WithUsageFunc(fn UsageFunc) Option {
	return func(s *Service) { s.usageFn = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// withClock overrides time for tests.
func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns every Run mutation. All writes flow through one update
// path so any Store implementation observes the same sequence.
type Service struct {
	store   Store
	limits  Limits
	usageFn UsageFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a ledger service. Construct one per composition
// root.
func NewService(opts ...Option) *Service {
	s := &Service{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = newMemoryStore()
	}
	if s.usageFn == nil {
		s.usageFn = storeUsage(s.store)
	}
	return s
}

// StartParams describes a new run. Prompt must already be redacted.
type StartParams struct {
	RequestID     string
	Context       *domain.CompletionContext
	Provider      string
	Model         string
	Prompt        []domain.Message
	PromptReports []*redact.MessageReport
}

// StartRun creates a run in the pending state and persists it.
func (s *Service) StartRun(ctx context.Context, params StartParams) (*Run, error) {
	run := &Run{
		ID:            uuid.NewString(),
		RequestID:     params.RequestID,
		Provider:      params.Provider,
		Model:         params.Model,
		Prompt:        params.Prompt,
		PromptReports: params.PromptReports,
		Status:        StatusPending,
		StartedAt:     s.now().UTC(),
	}
	if c := params.Context; c != nil {
		run.UserID = c.UserID
		run.OrganizationID = c.OrganizationID
		run.ConversationID = c.ConversationID
		run.EntityID = c.EntityID
		run.Jurisdiction = c.Jurisdiction
	}

	if err := s.store.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting run: %w", err)
	}

	s.logger.Debug("run started",
		slog.String("run_id", run.ID),
		slog.String("model", run.Model),
		slog.String("provider", run.Provider),
	)
	return run, nil
}

// GetRun returns the run for status polling.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.store.Get(ctx, id)
}

// MarkProcessing moves a pending run to processing, immediately before
// the provider call.
func (s *Service) MarkProcessing(ctx context.Context, id string) error {
	return s.apply(ctx, id, func(run *Run) error {
		run.Status = StatusProcessing
		return nil
	})
}

// CompletionParams carries the terminal fields of a successful run.
// Output must already be redacted.
type CompletionParams struct {
	Output       string
	OutputReport *redact.Report
	Usage        domain.Usage
	CostCents    int64
	Duration     time.Duration
}

// RecordCompletion moves the run to completed and sets the token, cost,
// and timing fields. Terminal.
func (s *Service) RecordCompletion(ctx context.Context, id string, params CompletionParams) error {
	return s.apply(ctx, id, func(run *Run) error {
		now := s.now().UTC()
		run.Status = StatusCompleted
		run.Output = params.Output
		run.OutputReport = params.OutputReport
		run.Usage = params.Usage
		run.CostCents = params.CostCents
		run.CompletedAt = &now
		return nil
	})
}

// RecordFailure moves the run to failed from any non-terminal state,
// recording the error code and message. Terminal.
func (s *Service) RecordFailure(ctx context.Context, id, code, message string) error {
	return s.apply(ctx, id, func(run *Run) error {
		now := s.now().UTC()
		run.Status = StatusFailed
		run.ErrorCode = code
		run.ErrorMessage = message
		run.CompletedAt = &now
		return nil
	})
}

// RecordPolicyCheck attaches a policy check result to the run. With
// blocked=true the run moves to blocked instead of proceeding to
// completion. Terminal in that case.
func (s *Service) RecordPolicyCheck(ctx context.Context, id string, result *policy.CheckResult, blocked bool) error {
	return s.apply(ctx, id, func(run *Run) error {
		run.PolicyResult = result
		if blocked {
			now := s.now().UTC()
			run.Status = StatusBlocked
			run.CompletedAt = &now
		}
		return nil
	})
}

// apply is the single update path: load, guard the terminal states,
// mutate, persist.
func (s *Service) apply(ctx context.Context, id string, mutate func(*Run) error) error {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s is %s: %w", id, run.Status, ErrTerminalState)
	}
	if err := mutate(run); err != nil {
		return err
	}
	if err := s.store.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting run update: %w", err)
	}
	return nil
}
