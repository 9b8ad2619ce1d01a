// Package redact scans text for personally identifiable information and
// replaces every validated match with a typed placeholder token, producing
// a hash-anchored report per input so "no PII found" and "never checked"
// stay distinguishable.
package redact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairlease/modelgate/internal/domain"
)

var tracer = otel.Tracer("github.com/fairlease/modelgate/internal/redact")

// Entry records one redaction. Start and End are offsets into the
// redacted output string, not the original.
type Entry struct {
	Type        PIIType `json:"type"`
	Original    string  `json:"-"` // never persisted beyond the immediate call
	Placeholder string  `json:"placeholder"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Confidence  float64 `json:"confidence"`
}

// Report is the immutable result of one redaction pass. SourceHash is the
// SHA-256 of the original text, computed exactly once, so tampering with
// the stored redacted content is detectable without retaining the PII.
type Report struct {
	ID         string    `json:"id"`
	SourceHash string    `json:"source_hash"`
	Content    string    `json:"content"`
	Entries    []Entry   `json:"entries"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageReport pairs a redaction report with the message it came from.
type MessageReport struct {
	Index  int     `json:"index"`
	Role   string  `json:"role"`
	Report *Report `json:"report"`
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithCustomPattern adds a named pattern on top of the built-in set.
func WithCustomPattern(name string, re *regexp.Regexp, confidence float64) Option {
	return func(r *Redactor) {
		r.patterns = append(r.patterns, Pattern{
			Type:        PIIType(name),
			Regexp:      re,
			Confidence:  confidence,
			Placeholder: "[" + strings.ToUpper(name) + "_REDACTED]",
		})
	}
}

// WithEnabledTypes restricts detection to the given built-in types.
func WithEnabledTypes(types ...PIIType) Option {
	return func(r *Redactor) {
		enabled := make(map[PIIType]bool, len(types))
		for _, t := range types {
			enabled[t] = true
		}
		kept := r.patterns[:0]
		for _, p := range r.patterns {
			if enabled[p.Type] {
				kept = append(kept, p)
			}
		}
		r.patterns = kept
	}
}

// Redactor detects and redacts PII. Construct one per composition root
// and pass it down; it is stateless after construction and safe for
// concurrent use.
type Redactor struct {
	patterns []Pattern
}

// New creates a Redactor with the built-in pattern set.
func New(opts ...Option) *Redactor {
	r := &Redactor{patterns: builtinPatterns()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// match is a validated detection in the original text.
type match struct {
	start       int
	end         int
	ptype       PIIType
	placeholder string
	original    string
	confidence  float64
}

// scan runs every enabled pattern independently and returns validated,
// overlap-resolved matches sorted by start offset.
func (r *Redactor) scan(text string) []match {
	var found []match
	for _, p := range r.patterns {
		locs := p.Regexp.FindAllStringSubmatchIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			if p.Group > 0 && len(loc) > 2*p.Group+1 && loc[2*p.Group] >= 0 {
				start, end = loc[2*p.Group], loc[2*p.Group+1]
			}
			value := text[start:end]
			if p.Validate != nil && !p.Validate(value) {
				continue
			}
			found = append(found, match{
				start:       start,
				end:         end,
				ptype:       p.Type,
				placeholder: p.Placeholder,
				original:    value,
				confidence:  p.Confidence,
			})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].confidence > found[j].confidence
	})

	// Greedy single-pass overlap resolution: keep the earlier match unless
	// a later overlapping match has strictly higher confidence. Not a
	// global optimum.
	var resolved []match
	for _, m := range found {
		if len(resolved) == 0 {
			resolved = append(resolved, m)
			continue
		}
		last := &resolved[len(resolved)-1]
		if m.start < last.end {
			if m.confidence > last.confidence {
				*last = m
			}
			continue
		}
		resolved = append(resolved, m)
	}
	return resolved
}

// Redact scans text and returns a report with every validated match
// replaced by its placeholder. A report is always produced, even with
// zero redactions.
func (r *Redactor) Redact(ctx context.Context, text string) *Report {
	_, span := tracer.Start(ctx, "redact.redact")
	defer span.End()

	hash := sha256.Sum256([]byte(text))
	report := &Report{
		ID:         uuid.NewString(),
		SourceHash: hex.EncodeToString(hash[:]),
		Entries:    []Entry{},
		CreatedAt:  time.Now().UTC(),
	}

	matches := r.scan(text)
	if len(matches) == 0 {
		report.Content = text
		span.SetAttributes(attribute.Int("redact.count", 0))
		return report
	}

	// Single pass over the sorted, non-overlapping matches: copy unmatched
	// spans verbatim, substitute placeholders, and record offsets in the
	// output string. Placeholder length differs from match length, so the
	// output offsets come from the builder position.
	var out strings.Builder
	prev := 0
	for _, m := range matches {
		out.WriteString(text[prev:m.start])
		start := out.Len()
		out.WriteString(m.placeholder)
		report.Entries = append(report.Entries, Entry{
			Type:        m.ptype,
			Original:    m.original,
			Placeholder: m.placeholder,
			Start:       start,
			End:         out.Len(),
			Confidence:  m.confidence,
		})
		prev = m.end
	}
	out.WriteString(text[prev:])

	report.Content = out.String()
	report.Count = len(report.Entries)

	span.SetAttributes(attribute.Int("redact.count", report.Count))
	return report
}

// RedactMessages redacts each message independently, preserving order and
// role. The returned reports cover only the messages that had at least one
// redaction; the message slice always covers every input message.
func (r *Redactor) RedactMessages(ctx context.Context, messages []domain.Message) ([]domain.Message, []*MessageReport) {
	ctx, span := tracer.Start(ctx, "redact.redact_messages")
	defer span.End()

	redacted := make([]domain.Message, len(messages))
	var reports []*MessageReport
	for i, msg := range messages {
		rep := r.Redact(ctx, msg.Content)
		redacted[i] = domain.Message{Role: msg.Role, Content: rep.Content}
		if rep.Count > 0 {
			reports = append(reports, &MessageReport{Index: i, Role: msg.Role, Report: rep})
		}
	}

	span.SetAttributes(
		attribute.Int("redact.messages", len(messages)),
		attribute.Int("redact.messages_with_pii", len(reports)),
	)
	return redacted, reports
}
