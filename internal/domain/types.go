// Package domain holds the canonical types shared by every stage of the
// completion pipeline: messages, requests, responses, and the provider
// error taxonomy.
package domain

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one chat message. A conversation is an ordered
// sequence of messages; messages are never mutated once sent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionContext carries the caller identifiers the pipeline needs for
// budgeting, auditing, and policy gating. All fields are optional; the
// ApplicationStage is consumed only by the policy gate.
type CompletionContext struct {
	UserID           string `json:"user_id,omitempty"`
	OrganizationID   string `json:"organization_id,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	EntityID         string `json:"entity_id,omitempty"`
	Jurisdiction     string `json:"jurisdiction,omitempty"`
	ApplicationStage string `json:"application_stage,omitempty"`
}

// CompletionRequest is a single completion call against one model.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Per-request overrides. Zero values mean "use the provider default".
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	MaxRetries  int           `json:"max_retries,omitempty"`

	Context *CompletionContext `json:"context,omitempty"`

	// RequestID is a caller-supplied correlation id. When empty the
	// orchestrator generates one.
	RequestID string `json:"request_id,omitempty"`
}

// Usage represents token usage for one completion.
// Invariant: TotalTokens == PromptTokens + CompletionTokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Finish reasons reported by providers, mapped to a closed set.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// CompletionResponse is the uniform result of a provider call.
type CompletionResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`

	// CostCents is the request cost in integer minor-currency units,
	// rounded up. Never negative.
	CostCents int64 `json:"cost_cents"`

	Duration time.Duration `json:"duration"`

	// ProviderRequestID is the vendor-side request id, when the vendor
	// reports one.
	ProviderRequestID string `json:"provider_request_id,omitempty"`

	FinishReason string `json:"finish_reason"`
}
