package domain

import "context"

// Provider defines the uniform interface over one model vendor.
//
// Each adapter supports a fixed model list; the orchestrator never calls
// an adapter with a model outside that list.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// SupportedModels returns the fixed model list for this adapter.
	SupportedModels() []string

	// SupportsModel reports whether the adapter serves the given model.
	SupportsModel(model string) bool

	// IsAvailable reports whether the adapter is configured well enough
	// to attempt a call (credentials present, endpoint known).
	IsAvailable(ctx context.Context) bool

	// ValidateCredentials verifies the configured credentials against the
	// vendor, returning a typed error on failure.
	ValidateCredentials(ctx context.Context) error

	// Complete executes a single completion call. Failures are returned
	// as *ProviderError so retryability survives the boundary.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
