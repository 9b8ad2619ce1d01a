// Package ledger records one audit run per completion attempt, drives its
// state machine, and enforces per-entity budget caps from aggregated run
// cost.
package ledger

import (
	"time"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/policy"
	"github.com/fairlease/modelgate/internal/redact"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Run is the audit record for a single completion request. It holds only
// redacted content; the unredacted prompt and output never reach the
// ledger. Runs are owned and mutated exclusively by the Service; callers
// hold only the id.
type Run struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id,omitempty"`

	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	EntityID       string `json:"entity_id,omitempty"`
	Jurisdiction   string `json:"jurisdiction,omitempty"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Prompt and Output are redacted. The redaction reports carry the
	// source hashes that anchor them to the original text.
	Prompt        []domain.Message        `json:"prompt"`
	Output        string                  `json:"output,omitempty"`
	PromptReports []*redact.MessageReport `json:"prompt_reports,omitempty"`
	OutputReport  *redact.Report          `json:"output_report,omitempty"`

	PolicyResult *policy.CheckResult `json:"policy_result,omitempty"`

	Usage     domain.Usage `json:"usage"`
	CostCents int64        `json:"cost_cents"`

	Status       Status `json:"status"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
