// Package sqlite provides the durable ledger.Store implementation backed
// by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fairlease/modelgate/internal/ledger"
	"github.com/fairlease/modelgate/internal/policy"
	"github.com/fairlease/modelgate/internal/redact"
)

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the
// schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			user_id TEXT,
			organization_id TEXT,
			conversation_id TEXT,
			entity_id TEXT,
			jurisdiction TEXT,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt TEXT NOT NULL,
			output TEXT,
			prompt_reports TEXT,
			output_report TEXT,
			policy_result TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_cents INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_code TEXT,
			error_message TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user_started ON runs(user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_org_started ON runs(organization_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, run *ledger.Run) error {
	prompt, promptReports, outputReport, policyResult, err := marshalRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, request_id, user_id, organization_id, conversation_id,
			entity_id, jurisdiction, provider, model, prompt, output,
			prompt_reports, output_report, policy_result,
			prompt_tokens, completion_tokens, total_tokens, cost_cents,
			status, error_code, error_message, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RequestID, run.UserID, run.OrganizationID, run.ConversationID,
		run.EntityID, run.Jurisdiction, run.Provider, run.Model, prompt, run.Output,
		promptReports, outputReport, policyResult,
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Usage.TotalTokens, run.CostCents,
		string(run.Status), run.ErrorCode, run.ErrorMessage, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, run *ledger.Run) error {
	prompt, promptReports, outputReport, policyResult, err := marshalRun(run)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			request_id = ?, user_id = ?, organization_id = ?, conversation_id = ?,
			entity_id = ?, jurisdiction = ?, provider = ?, model = ?, prompt = ?,
			output = ?, prompt_reports = ?, output_report = ?, policy_result = ?,
			prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, cost_cents = ?,
			status = ?, error_code = ?, error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		run.RequestID, run.UserID, run.OrganizationID, run.ConversationID,
		run.EntityID, run.Jurisdiction, run.Provider, run.Model, prompt,
		run.Output, promptReports, outputReport, policyResult,
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Usage.TotalTokens, run.CostCents,
		string(run.Status), run.ErrorCode, run.ErrorMessage, run.StartedAt, run.CompletedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("updating run %s: %w", run.ID, ledger.ErrRunNotFound)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*ledger.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, user_id, organization_id, conversation_id,
			entity_id, jurisdiction, provider, model, prompt, output,
			prompt_reports, output_report, policy_result,
			prompt_tokens, completion_tokens, total_tokens, cost_cents,
			status, error_code, error_message, started_at, completed_at
		FROM runs WHERE id = ?`, id)

	var run ledger.Run
	var prompt string
	var promptReports, outputReport, policyResult sql.NullString
	var status string
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.RequestID, &run.UserID, &run.OrganizationID, &run.ConversationID,
		&run.EntityID, &run.Jurisdiction, &run.Provider, &run.Model, &prompt, &run.Output,
		&promptReports, &outputReport, &policyResult,
		&run.Usage.PromptTokens, &run.Usage.CompletionTokens, &run.Usage.TotalTokens, &run.CostCents,
		&status, &run.ErrorCode, &run.ErrorMessage, &run.StartedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ledger.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run %s: %w", id, err)
	}

	run.Status = ledger.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(prompt), &run.Prompt); err != nil {
		return nil, fmt.Errorf("decoding prompt for run %s: %w", id, err)
	}
	if promptReports.Valid && promptReports.String != "" {
		if err := json.Unmarshal([]byte(promptReports.String), &run.PromptReports); err != nil {
			return nil, fmt.Errorf("decoding prompt reports for run %s: %w", id, err)
		}
	}
	if outputReport.Valid && outputReport.String != "" {
		run.OutputReport = &redact.Report{}
		if err := json.Unmarshal([]byte(outputReport.String), run.OutputReport); err != nil {
			return nil, fmt.Errorf("decoding output report for run %s: %w", id, err)
		}
	}
	if policyResult.Valid && policyResult.String != "" {
		run.PolicyResult = &policy.CheckResult{}
		if err := json.Unmarshal([]byte(policyResult.String), run.PolicyResult); err != nil {
			return nil, fmt.Errorf("decoding policy result for run %s: %w", id, err)
		}
	}
	return &run, nil
}

func (s *Store) SumCosts(ctx context.Context, userID, orgID string, since time.Time) (ledger.CostTotals, error) {
	var totals ledger.CostTotals

	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM runs WHERE started_at >= ?`, since,
	).Scan(&totals.GlobalCents)
	if err != nil {
		return totals, fmt.Errorf("summing global cost: %w", err)
	}

	if userID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(cost_cents), 0) FROM runs WHERE user_id = ? AND started_at >= ?`,
			userID, since,
		).Scan(&totals.UserCents)
		if err != nil {
			return totals, fmt.Errorf("summing user cost: %w", err)
		}
	}

	if orgID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(cost_cents), 0) FROM runs WHERE organization_id = ? AND started_at >= ?`,
			orgID, since,
		).Scan(&totals.OrgCents)
		if err != nil {
			return totals, fmt.Errorf("summing org cost: %w", err)
		}
	}

	return totals, nil
}

func (s *Store) Close() error { return s.db.Close() }

// marshalRun serializes the structured run fields to JSON columns. The
// redaction entries marshal without their Original field, so no PII
// reaches the database.
func marshalRun(run *ledger.Run) (prompt, promptReports, outputReport, policyResult string, err error) {
	b, err := json.Marshal(run.Prompt)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encoding prompt: %w", err)
	}
	prompt = string(b)

	if len(run.PromptReports) > 0 {
		b, err = json.Marshal(run.PromptReports)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encoding prompt reports: %w", err)
		}
		promptReports = string(b)
	}
	if run.OutputReport != nil {
		b, err = json.Marshal(run.OutputReport)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encoding output report: %w", err)
		}
		outputReport = string(b)
	}
	if run.PolicyResult != nil {
		b, err = json.Marshal(run.PolicyResult)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encoding policy result: %w", err)
		}
		policyResult = string(b)
	}
	return prompt, promptReports, outputReport, policyResult, nil
}
