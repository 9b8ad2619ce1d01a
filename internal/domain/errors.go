package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the category of a provider error.
type ErrorType string

const (
	// ErrorTypeRateLimit indicates the vendor rejected the call for rate
	// limiting. Retryable.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeTimeout indicates the call exceeded its deadline. Retryable.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeAuthentication indicates bad or missing credentials. Not
	// retryable.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeContentFiltered indicates the vendor refused to generate.
	// Not retryable; carries the vendor's reason text.
	ErrorTypeContentFiltered ErrorType = "content_filtered"

	// ErrorTypeBudgetExceeded indicates a configured spend cap was hit
	// before the provider was called. Not retryable; carries the scope and
	// the limit/current pair.
	ErrorTypeBudgetExceeded ErrorType = "budget_exceeded"

	// ErrorTypeProvider is the fallback bucket for vendor failures that
	// map to nothing more specific. Retryability is set heuristically.
	ErrorTypeProvider ErrorType = "provider_error"
)

// BudgetScope identifies which spend cap a budget error refers to.
type BudgetScope string

const (
	BudgetScopeUser   BudgetScope = "user"
	BudgetScopeOrg    BudgetScope = "org"
	BudgetScopeGlobal BudgetScope = "global"
)

// ProviderError is the canonical error produced by provider adapters and
// the orchestrator. The Type discriminant plus the shared Retryable flag
// replace an inheritance hierarchy.
type ProviderError struct {
	Type     ErrorType
	Provider string
	Message  string

	// Retryable reports whether the retry helper may attempt the call
	// again.
	Retryable bool

	// Reason carries the vendor's refusal text for content-filter errors.
	Reason string

	// Budget fields, set only when Type is ErrorTypeBudgetExceeded.
	// LimitCents and CurrentCents are in minor-currency units.
	Scope        BudgetScope
	LimitCents   int64
	CurrentCents int64
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Type == ErrorTypeBudgetExceeded {
		return fmt.Sprintf("%s: %s budget exceeded (limit %d, current %d)",
			e.Type, e.Scope, e.LimitCents, e.CurrentCents)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Type, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrRateLimit creates a retryable rate-limit error.
func ErrRateLimit(provider, message string) *ProviderError {
	return &ProviderError{Type: ErrorTypeRateLimit, Provider: provider, Message: message, Retryable: true}
}

// ErrTimeout creates a retryable timeout error.
func ErrTimeout(provider, message string) *ProviderError {
	return &ProviderError{Type: ErrorTypeTimeout, Provider: provider, Message: message, Retryable: true}
}

// ErrAuthentication creates a non-retryable authentication error.
func ErrAuthentication(provider, message string) *ProviderError {
	return &ProviderError{Type: ErrorTypeAuthentication, Provider: provider, Message: message}
}

// ErrContentFiltered creates a non-retryable content-filter error carrying
// the vendor's reason text.
func ErrContentFiltered(provider, reason string) *ProviderError {
	return &ProviderError{
		Type:     ErrorTypeContentFiltered,
		Provider: provider,
		Message:  "completion refused by vendor content filter",
		Reason:   reason,
	}
}

// ErrBudgetExceeded creates a non-retryable budget error for one scope.
func ErrBudgetExceeded(scope BudgetScope, limitCents, currentCents int64) *ProviderError {
	return &ProviderError{
		Type:         ErrorTypeBudgetExceeded,
		Message:      "budget exceeded",
		Scope:        scope,
		LimitCents:   limitCents,
		CurrentCents: currentCents,
	}
}

// ErrProvider creates a generic provider error with an explicit retryable
// flag.
func ErrProvider(provider, message string, retryable bool) *ProviderError {
	return &ProviderError{Type: ErrorTypeProvider, Provider: provider, Message: message, Retryable: retryable}
}

// transientMarkers are substrings that mark an untyped vendor error as
// transient. This heuristic is a known imprecision, not a guarantee.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"rate limit",
	"503",
	"429",
	"connection reset",
}

// IsRetryable reports whether err may be retried. Typed provider errors
// answer from their Retryable flag; anything else falls back to substring
// matching against a small set of transient-failure markers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
