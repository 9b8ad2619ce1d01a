package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       *ProviderError
		retryable bool
	}{
		{"rate limit", ErrRateLimit("openai", "429"), true},
		{"timeout", ErrTimeout("openai", "deadline exceeded"), true},
		{"authentication", ErrAuthentication("openai", "bad key"), false},
		{"content filtered", ErrContentFiltered("openai", "unsafe"), false},
		{"budget", ErrBudgetExceeded(BudgetScopeUser, 10000, 12000), false},
		{"generic retryable", ErrProvider("openai", "boom", true), true},
		{"generic fatal", ErrProvider("openai", "boom", false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsRetryableHeuristic(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"untyped timeout", errors.New("request timed out"), true},
		{"untyped 503", errors.New("upstream returned 503"), true},
		{"untyped 429", errors.New("got HTTP 429"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"plain failure", errors.New("invalid request body"), false},
		{"wrapped typed", fmt.Errorf("calling vendor: %w", ErrAuthentication("x", "no")), false},
		{"wrapped retryable", fmt.Errorf("calling vendor: %w", ErrRateLimit("x", "slow down")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestBudgetErrorFields(t *testing.T) {
	err := ErrBudgetExceeded(BudgetScopeOrg, 50000, 61234)

	var pe *ProviderError
	if !errors.As(error(err), &pe) {
		t.Fatal("errors.As failed for *ProviderError")
	}
	if pe.Scope != BudgetScopeOrg {
		t.Errorf("Scope = %q, want %q", pe.Scope, BudgetScopeOrg)
	}
	if pe.LimitCents != 50000 || pe.CurrentCents != 61234 {
		t.Errorf("limit/current = %d/%d, want 50000/61234", pe.LimitCents, pe.CurrentCents)
	}
}
