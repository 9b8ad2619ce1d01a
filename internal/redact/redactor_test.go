package redact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	"github.com/fairlease/modelgate/internal/domain"
)

func TestRedactBuiltinTypes(t *testing.T) {
	r := New()

	tests := []struct {
		name        string
		text        string
		wantType    PIIType
		placeholder string
	}{
		{"email", "Reach me at jane.doe@example.com today", TypeEmail, "[EMAIL_REDACTED]"},
		{"phone", "Call 555-867-5309 after noon", TypePhone, "[PHONE_REDACTED]"},
		{"ssn", "SSN is 219-09-9999 on file", TypeSSN, "[SSN_REDACTED]"},
		{"credit card", "Card 4111 1111 1111 1111 was charged", TypeCreditCard, "[CARD_REDACTED]"},
		{"bank account", "Wire to account number: 12345678 by Friday", TypeBankAccount, "[ACCOUNT_REDACTED]"},
		{"address", "Tenant lives at 350 Fifth Avenue, Apt 21", TypeAddress, "[ADDRESS_REDACTED]"},
		{"date of birth", "Applicant DOB: 04/12/1988 per application", TypeDateOfBirth, "[DOB_REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := r.Redact(context.Background(), tt.text)
			if report.Count != 1 {
				t.Fatalf("count = %d, want 1 (entries: %+v)", report.Count, report.Entries)
			}
			entry := report.Entries[0]
			if entry.Type != tt.wantType {
				t.Errorf("type = %s, want %s", entry.Type, tt.wantType)
			}
			if !strings.Contains(report.Content, tt.placeholder) {
				t.Errorf("content %q missing placeholder %q", report.Content, tt.placeholder)
			}
			if strings.Contains(report.Content, entry.Original) {
				t.Errorf("content %q still contains original %q", report.Content, entry.Original)
			}
			// Offsets are positions in the redacted output.
			if got := report.Content[entry.Start:entry.End]; got != tt.placeholder {
				t.Errorf("content[%d:%d] = %q, want %q", entry.Start, entry.End, got, tt.placeholder)
			}
		})
	}
}

func TestRedactLuhnGate(t *testing.T) {
	r := New()

	t.Run("valid card redacted", func(t *testing.T) {
		report := r.Redact(context.Background(), "pay with 4242424242424242 now")
		if report.Count != 1 || report.Entries[0].Type != TypeCreditCard {
			t.Fatalf("want one credit card entry, got %+v", report.Entries)
		}
	})

	t.Run("luhn-invalid left untouched", func(t *testing.T) {
		text := "reference 4242424242424243 is not a card"
		report := r.Redact(context.Background(), text)
		if report.Content != text {
			t.Errorf("content = %q, want unchanged", report.Content)
		}
		if report.Count != 0 {
			t.Errorf("count = %d, want 0", report.Count)
		}
	})
}

func TestRedactSSNValidation(t *testing.T) {
	r := New()

	invalid := []string{
		"SSN 000-12-3456 given",  // area 000
		"SSN 666-12-3456 given",  // area 666
		"SSN 900-12-3456 given",  // area 900+
		"SSN 123-00-3456 given",  // group 00
		"SSN 123-45-0000 given",  // serial 0000
	}
	for _, text := range invalid {
		report := r.Redact(context.Background(), text)
		for _, e := range report.Entries {
			if e.Type == TypeSSN {
				t.Errorf("%q: structurally invalid SSN was redacted", text)
			}
		}
	}

	report := r.Redact(context.Background(), "SSN 219-09-9999")
	if report.Count != 1 || report.Entries[0].Type != TypeSSN {
		t.Errorf("valid SSN not redacted: %+v", report.Entries)
	}
}

func TestRedactIdempotent(t *testing.T) {
	r := New()
	text := "Email jane@example.com, card 4111 1111 1111 1111, SSN 219-09-9999, " +
		"phone 555-867-5309, address 12 Oak Street, DOB: 01/02/1990, account number: 987654321"

	first := r.Redact(context.Background(), text)
	if first.Count == 0 {
		t.Fatal("first pass found nothing")
	}

	second := r.Redact(context.Background(), first.Content)
	if second.Count != 0 {
		t.Errorf("second pass found %d new matches in %q", second.Count, first.Content)
	}
	if second.Content != first.Content {
		t.Errorf("second pass changed content:\n first: %q\nsecond: %q", first.Content, second.Content)
	}
}

func TestRedactReportAlwaysProduced(t *testing.T) {
	r := New()
	report := r.Redact(context.Background(), "nothing sensitive here")

	if report == nil {
		t.Fatal("nil report for clean text")
	}
	if report.ID == "" {
		t.Error("missing report id")
	}
	if report.Entries == nil || len(report.Entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil list", report.Entries)
	}
	wantHash := sha256.Sum256([]byte("nothing sensitive here"))
	if report.SourceHash != hex.EncodeToString(wantHash[:]) {
		t.Errorf("source hash = %q, want hash of input", report.SourceHash)
	}
}

func TestRedactOverlapResolution(t *testing.T) {
	r := New(
		WithCustomPattern("case_number", regexp.MustCompile(`CASE-\d{4}`), 0.5),
		WithCustomPattern("docket", regexp.MustCompile(`\d{4}-DOCKET`), 0.9),
	)

	// "CASE-1234-DOCKET": case_number matches [0,9), docket matches [5,16).
	// The later overlapping match has strictly higher confidence, so it
	// replaces the earlier one.
	report := r.Redact(context.Background(), "ref CASE-1234-DOCKET closed")
	if report.Count != 1 {
		t.Fatalf("count = %d, want 1: %+v", report.Count, report.Entries)
	}
	if report.Entries[0].Type != PIIType("docket") {
		t.Errorf("kept %s, want higher-confidence docket", report.Entries[0].Type)
	}

	// Reversed confidences: the earlier match wins.
	r2 := New(
		WithCustomPattern("case_number", regexp.MustCompile(`CASE-\d{4}`), 0.9),
		WithCustomPattern("docket", regexp.MustCompile(`\d{4}-DOCKET`), 0.5),
	)
	report2 := r2.Redact(context.Background(), "ref CASE-1234-DOCKET closed")
	if report2.Count != 1 || report2.Entries[0].Type != PIIType("case_number") {
		t.Errorf("kept %+v, want earlier case_number", report2.Entries)
	}
}

func TestRedactOffsetsAfterMultipleSubstitutions(t *testing.T) {
	r := New()
	text := "a@b.co then c@d.co end"
	report := r.Redact(context.Background(), text)

	if report.Count != 2 {
		t.Fatalf("count = %d, want 2", report.Count)
	}
	for i, e := range report.Entries {
		if got := report.Content[e.Start:e.End]; got != e.Placeholder {
			t.Errorf("entry %d: content[%d:%d] = %q, want %q", i, e.Start, e.End, got, e.Placeholder)
		}
	}
	if report.Entries[0].Start >= report.Entries[1].Start {
		t.Error("entries not ordered by output offset")
	}
}

func TestRedactMessages(t *testing.T) {
	r := New()
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "You are a leasing assistant."},
		{Role: domain.RoleUser, Content: "My email is jane@example.com"},
		{Role: domain.RoleAssistant, Content: "Noted."},
		{Role: domain.RoleUser, Content: "And my SSN is 219-09-9999"},
	}

	redacted, reports := r.RedactMessages(context.Background(), msgs)

	if len(redacted) != 4 {
		t.Fatalf("redacted len = %d, want 4", len(redacted))
	}
	for i, msg := range redacted {
		if msg.Role != msgs[i].Role {
			t.Errorf("message %d role = %q, want %q", i, msg.Role, msgs[i].Role)
		}
	}
	if redacted[0].Content != msgs[0].Content || redacted[2].Content != msgs[2].Content {
		t.Error("clean messages were altered")
	}

	// Reports only for messages with >= 1 redaction, in message order.
	if len(reports) != 2 {
		t.Fatalf("reports len = %d, want 2", len(reports))
	}
	if reports[0].Index != 1 || reports[1].Index != 3 {
		t.Errorf("report indexes = %d,%d want 1,3", reports[0].Index, reports[1].Index)
	}
	if reports[0].Role != domain.RoleUser {
		t.Errorf("report role = %q", reports[0].Role)
	}
}

func TestWithEnabledTypes(t *testing.T) {
	r := New(WithEnabledTypes(TypeEmail))

	report := r.Redact(context.Background(), "jane@example.com and SSN 219-09-9999")
	if report.Count != 1 {
		t.Fatalf("count = %d, want 1", report.Count)
	}
	if report.Entries[0].Type != TypeEmail {
		t.Errorf("type = %s, want email only", report.Entries[0].Type)
	}
}
