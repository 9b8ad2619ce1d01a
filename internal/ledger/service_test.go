package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/policy"
)

func startTestRun(t *testing.T, svc *Service) *Run {
	t.Helper()
	run, err := svc.StartRun(context.Background(), StartParams{
		RequestID: "req-1",
		Context: &domain.CompletionContext{
			UserID:         "user-1",
			OrganizationID: "org-1",
			Jurisdiction:   "nyc",
		},
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Prompt: []domain.Message{
			{Role: domain.RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	return run
}

func TestStartRunInitialState(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)

	if run.ID == "" {
		t.Fatal("expected a generated run id")
	}
	if run.Status != StatusPending {
		t.Errorf("status = %s, want %s", run.Status, StatusPending)
	}
	if run.UserID != "user-1" || run.OrganizationID != "org-1" {
		t.Errorf("context fields not copied: user=%q org=%q", run.UserID, run.OrganizationID)
	}
	if run.CompletedAt != nil {
		t.Error("CompletedAt should be unset on a pending run")
	}

	got, err := svc.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("persisted status = %s, want pending", got.Status)
	}
}

func TestCompletionLifecycle(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)
	ctx := context.Background()

	if err := svc.MarkProcessing(ctx, run.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	err := svc.RecordCompletion(ctx, run.ID, CompletionParams{
		Output:    "redacted output",
		Usage:     domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		CostCents: 3,
		Duration:  120 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	got, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Output != "redacted output" {
		t.Errorf("output = %q", got.Output)
	}
	if got.Usage.TotalTokens != 15 || got.CostCents != 3 {
		t.Errorf("usage/cost not recorded: %+v cost=%d", got.Usage, got.CostCents)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on completion")
	}
}

func TestRecordFailureFromPending(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)
	ctx := context.Background()

	if err := svc.RecordFailure(ctx, run.ID, "provider_error", "upstream unreachable"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	got, _ := svc.GetRun(ctx, run.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorCode != "provider_error" || got.ErrorMessage != "upstream unreachable" {
		t.Errorf("error fields = %q/%q", got.ErrorCode, got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on failure")
	}
}

func TestTerminalRunsRejectTransitions(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)
	ctx := context.Background()

	if err := svc.RecordCompletion(ctx, run.ID, CompletionParams{Output: "done"}); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	err := svc.RecordFailure(ctx, run.ID, "provider_error", "late failure")
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}

	// The rejected transition must not touch the stored run.
	got, _ := svc.GetRun(ctx, run.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status changed to %s after rejected transition", got.Status)
	}
	if got.ErrorCode != "" || got.ErrorMessage != "" {
		t.Errorf("error fields leaked: %q/%q", got.ErrorCode, got.ErrorMessage)
	}
	if got.Output != "done" {
		t.Errorf("output changed: %q", got.Output)
	}
}

func TestRecordPolicyCheckBlocked(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)
	ctx := context.Background()

	result := &policy.CheckResult{Allowed: false}
	if err := svc.RecordPolicyCheck(ctx, run.ID, result, true); err != nil {
		t.Fatalf("RecordPolicyCheck: %v", err)
	}

	got, _ := svc.GetRun(ctx, run.ID)
	if got.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}
	if got.PolicyResult == nil || got.PolicyResult.Allowed {
		t.Error("policy result not attached")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on block")
	}

	if err := svc.MarkProcessing(ctx, run.ID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState after block, got %v", err)
	}
}

func TestRecordPolicyCheckNonBlocking(t *testing.T) {
	svc := NewService()
	run := startTestRun(t, svc)
	ctx := context.Background()

	result := &policy.CheckResult{Allowed: true}
	if err := svc.RecordPolicyCheck(ctx, run.ID, result, false); err != nil {
		t.Fatalf("RecordPolicyCheck: %v", err)
	}

	got, _ := svc.GetRun(ctx, run.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.PolicyResult == nil {
		t.Error("policy result not attached")
	}
	if err := svc.RecordCompletion(ctx, run.ID, CompletionParams{Output: "ok"}); err != nil {
		t.Errorf("completion after advisory check: %v", err)
	}
}

func TestGetRunUnknown(t *testing.T) {
	svc := NewService()
	_, err := svc.GetRun(context.Background(), "no-such-run")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCheckBudgetNoLimits(t *testing.T) {
	svc := NewService()
	if err := svc.CheckBudget(context.Background(), "user-1", "org-1"); err != nil {
		t.Fatalf("unlimited budget should pass: %v", err)
	}
}

func fixedUsage(u Usage) UsageFunc {
	return func(ctx context.Context, userID, orgID string, day time.Time) (Usage, error) {
		return u, nil
	}
}

func TestCheckBudgetScopes(t *testing.T) {
	tests := []struct {
		name      string
		limits    Limits
		usage     Usage
		wantScope domain.BudgetScope
		wantOK    bool
	}{
		{
			name:   "under every limit",
			limits: Limits{UserDailyCents: 1000, OrgDailyCents: 5000, GlobalDailyCents: 20000},
			usage:  Usage{UserDailyCents: 999, OrgDailyCents: 4000, GlobalDailyCents: 10000},
			wantOK: true,
		},
		{
			name:      "user at limit",
			limits:    Limits{UserDailyCents: 1000},
			usage:     Usage{UserDailyCents: 1000},
			wantScope: domain.BudgetScopeUser,
		},
		{
			name:      "user over limit",
			limits:    Limits{UserDailyCents: 10000},
			usage:     Usage{UserDailyCents: 12000},
			wantScope: domain.BudgetScopeUser,
		},
		{
			name:      "org over limit",
			limits:    Limits{OrgDailyCents: 5000},
			usage:     Usage{OrgDailyCents: 5001},
			wantScope: domain.BudgetScopeOrg,
		},
		{
			name:      "global at limit",
			limits:    Limits{GlobalDailyCents: 20000},
			usage:     Usage{GlobalDailyCents: 20000},
			wantScope: domain.BudgetScopeGlobal,
		},
		{
			name:      "user checked before org",
			limits:    Limits{UserDailyCents: 100, OrgDailyCents: 100},
			usage:     Usage{UserDailyCents: 100, OrgDailyCents: 100},
			wantScope: domain.BudgetScopeUser,
		},
		{
			name:   "zero limit is uncapped",
			limits: Limits{UserDailyCents: 0, GlobalDailyCents: 100},
			usage:  Usage{UserDailyCents: 999999, GlobalDailyCents: 50},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(
				WithLimits(tt.limits),
				WithUsageFunc(fixedUsage(tt.usage)),
			)
			err := svc.CheckBudget(context.Background(), "user-1", "org-1")
			if tt.wantOK {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			var provErr *domain.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if provErr.Type != domain.ErrorTypeBudgetExceeded {
				t.Errorf("type = %s, want budget_exceeded", provErr.Type)
			}
			if provErr.Scope != tt.wantScope {
				t.Errorf("scope = %s, want %s", provErr.Scope, tt.wantScope)
			}
			if provErr.Retryable {
				t.Error("budget errors must not be retryable")
			}
		})
	}
}

func TestBudgetFromStoreResetsDaily(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	svc := NewService(
		WithLimits(Limits{UserDailyCents: 100}),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	run := startTestRun(t, svc)
	if err := svc.RecordCompletion(ctx, run.ID, CompletionParams{
		Usage:     domain.Usage{TotalTokens: 1000},
		CostCents: 100,
	}); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	err := svc.CheckBudget(ctx, "user-1", "org-1")
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) || provErr.Type != domain.ErrorTypeBudgetExceeded {
		t.Fatalf("expected budget error same day, got %v", err)
	}
	if provErr.LimitCents != 100 || provErr.CurrentCents != 100 {
		t.Errorf("limit/current = %d/%d, want 100/100", provErr.LimitCents, provErr.CurrentCents)
	}

	// Yesterday's spend does not count against today.
	now = now.Add(24 * time.Hour)
	if err := svc.CheckBudget(ctx, "user-1", "org-1"); err != nil {
		t.Fatalf("expected pass after day rollover, got %v", err)
	}
}

func TestMemoryStoreSumCosts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	runs := []*Run{
		{ID: "a", UserID: "u1", OrganizationID: "o1", CostCents: 10, StartedAt: base.Add(time.Hour)},
		{ID: "b", UserID: "u2", OrganizationID: "o1", CostCents: 20, StartedAt: base.Add(2 * time.Hour)},
		{ID: "c", UserID: "u1", OrganizationID: "o2", CostCents: 40, StartedAt: base.Add(-time.Hour)}, // before cutoff
	}
	for _, r := range runs {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s: %v", r.ID, err)
		}
	}

	totals, err := store.SumCosts(ctx, "u1", "o1", base)
	if err != nil {
		t.Fatalf("SumCosts: %v", err)
	}
	if totals.UserCents != 10 {
		t.Errorf("user = %d, want 10", totals.UserCents)
	}
	if totals.OrgCents != 30 {
		t.Errorf("org = %d, want 30", totals.OrgCents)
	}
	if totals.GlobalCents != 30 {
		t.Errorf("global = %d, want 30", totals.GlobalCents)
	}
}
