package policy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/fairlease/modelgate/internal/policy")

// ViolationCode is the closed set of rule violations the gate reports.
type ViolationCode string

const (
	CodeIllegalBrokerFee ViolationCode = "illegal_broker_fee"
	CodeExcessiveDeposit ViolationCode = "excessive_deposit"
	CodePrematureCheck   ViolationCode = "premature_background_check"
)

// Severity orders violations from informational to blocking.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityViolation Severity = "violation"
	SeverityCritical  Severity = "critical"
)

// Violation is one detected rule breach.
type Violation struct {
	Code     ViolationCode     `json:"code"`
	Severity Severity          `json:"severity"`
	Matched  string            `json:"matched,omitempty"`
	RuleRef  string            `json:"rule_ref"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// CheckResult is the outcome of one policy evaluation.
// Allowed is false iff any violation is critical.
type CheckResult struct {
	Allowed          bool        `json:"allowed"`
	Violations       []Violation `json:"violations"`
	RecommendedFixes []string    `json:"recommended_fixes"`

	// Rules is a snapshot of the jurisdiction rule set the check used.
	Rules Rules `json:"rules"`

	// Sanitized is a best-effort compliant variant of the input,
	// populated only when the check failed and a substitution applied.
	Sanitized string `json:"sanitized,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// feeHeuristics detect phrasing that assigns the brokerage fee to the
// tenant. Ordered; only the first hit per violation code is reported.
var feeHeuristics = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:the\s+)?(?:tenant|renter|applicant)s?\s+(?:must|will|shall|should|(?:is|are)\s+(?:required|expected)\s+to|needs?\s+to|has\s+to|have\s+to)\s+(?:pay|cover)\s+(?:the\s+|a\s+)?broker(?:'s|age)?\s+fee`),
	regexp.MustCompile(`(?i)\bbroker(?:'s|age)?\s+fee\s+(?:of\s+[^.,;]{1,40}\s+)?(?:is|will\s+be|must\s+be)\s+(?:paid|covered|owed)\s+by\s+(?:the\s+)?(?:tenant|renter|applicant)s?\b`),
	regexp.MustCompile(`(?i)\b(?:you|you'll|you\s+will)\s+(?:owe|need\s+to\s+pay|be\s+responsible\s+for)\s+(?:the\s+|a\s+)?broker(?:'s|age)?\s+fee`),
}

// depositHeuristics capture a deposit expressed as a month multiple of
// rent. Group 1 holds the multiple.
var depositHeuristics = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:security\s+)?deposit\s+(?:of\s+|equal\s+to\s+|equals\s+)?(\d+(?:\.\d+)?|one|two|three|four|five|six)\s*(?:x\s*|times\s+)?months?'?\s+(?:of\s+)?rent`),
	regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?|one|two|three|four|five|six)\s*months?'?\s+(?:of\s+)?rent\s+(?:as\s+|for\s+)?(?:a\s+|the\s+)?(?:security\s+)?deposit`),
}

var wordNumbers = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
}

// checkMentions detect a forbidden screening-check type.
var checkMentions = map[CheckType]*regexp.Regexp{
	CheckCriminal: regexp.MustCompile(`(?i)\bcriminal\s+(?:history|record|background)(?:\s+check)?\b|\bbackground\s+check\b`),
	CheckCredit:   regexp.MustCompile(`(?i)\bcredit\s+(?:check|report|history|score)\b`),
	CheckEviction: regexp.MustCompile(`(?i)\beviction\s+(?:history|record|check|report)\b`),
}

// actionPhrasing marks an intent to run a check, as opposed to a purely
// informational mention. The conjunction of a check mention and action
// phrasing avoids false positives on explanatory text.
var actionPhrasing = regexp.MustCompile(`(?i)\b(?:we|you|i|they|let'?s)?\s*(?:will|should|must|need\s+to|needs\s+to|going\s+to|plan\s+to|want\s+to|gonna)\s+(?:run|perform|conduct|order|pull|request|do|start|initiate)\b`)

// remediations substitute each violation's matched span when sanitizing.
var remediations = map[ViolationCode]string{
	CodeIllegalBrokerFee: "the landlord covers any brokerage fee",
	CodeExcessiveDeposit: "a security deposit within the legal limit",
	CodePrematureCheck:   "screening can be discussed after a conditional offer is made",
}

var recommendedFixes = map[ViolationCode]string{
	CodeIllegalBrokerFee: "Remove language assigning the brokerage fee to the tenant; the fee is owed by the hiring party.",
	CodeExcessiveDeposit: "Reduce the security deposit to the jurisdiction's maximum month-multiple of rent.",
	CodePrematureCheck:   "Defer background, credit, and eviction checks until after a conditional offer.",
}

// Option configures the gate.
type Option func(*Gate)

// WithRules layers additional jurisdiction rule sets over the built-in
// defaults, replacing any with the same normalized id.
func WithRules(rules []Rules) Option {
	return func(g *Gate) {
		for _, r := range rules {
			g.rules[NormalizeJurisdiction(r.ID)] = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// Gate evaluates text against jurisdiction rule sets. Safe for concurrent
// use after construction.
type Gate struct {
	rules  map[string]Rules
	logger *slog.Logger
}

// NewGate creates a gate with the embedded jurisdiction rules.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		rules:  make(map[string]Rules),
		logger: slog.Default(),
	}
	for _, r := range builtinRules() {
		g.rules[r.ID] = r
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RulesFor returns the rule set for a jurisdiction id, falling back to
// the permissive default for unknown ids.
func (g *Gate) RulesFor(jurisdiction string) Rules {
	if r, ok := g.rules[NormalizeJurisdiction(jurisdiction)]; ok {
		return r
	}
	return defaultRules
}

// Check evaluates text under the jurisdiction's rules. The stage argument
// is the caller-supplied application stage; it only affects the
// Fair-Chance premature-check rule.
func (g *Gate) Check(ctx context.Context, text, jurisdiction, stage string) *CheckResult {
	_, span := tracer.Start(ctx, "policy.check")
	defer span.End()

	rules := g.RulesFor(jurisdiction)
	result := &CheckResult{
		Allowed:   true,
		Rules:     rules,
		CheckedAt: time.Now().UTC(),
	}

	g.checkBrokerFee(text, rules, result)
	g.checkDeposit(text, rules, result)
	g.checkPrematureChecks(text, rules, stage, result)

	for _, v := range result.Violations {
		if v.Severity == SeverityCritical {
			result.Allowed = false
			break
		}
	}

	if !result.Allowed {
		result.Sanitized = g.sanitize(text, result.Violations)
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", result.Allowed),
		attribute.Int("policy.violations", len(result.Violations)),
		attribute.String("policy.jurisdiction", rules.ID),
	)

	if !result.Allowed {
		g.logger.Warn("policy check failed",
			slog.String("jurisdiction", rules.ID),
			slog.Int("violations", len(result.Violations)),
		)
	}

	return result
}

// addViolation appends a violation unless one with the same code exists.
// Duplicate suppression is by code, not by text span.
func (g *Gate) addViolation(result *CheckResult, v Violation) {
	for _, existing := range result.Violations {
		if existing.Code == v.Code {
			return
		}
	}
	result.Violations = append(result.Violations, v)
	if fix, ok := recommendedFixes[v.Code]; ok {
		result.RecommendedFixes = append(result.RecommendedFixes, fix)
	}
}

func (g *Gate) checkBrokerFee(text string, rules Rules, result *CheckResult) {
	if !rules.BrokerFeeTenantProhibited {
		return
	}
	for _, re := range feeHeuristics {
		if m := re.FindString(text); m != "" {
			g.addViolation(result, Violation{
				Code:     CodeIllegalBrokerFee,
				Severity: SeverityCritical,
				Matched:  m,
				RuleRef:  rules.ID + "/broker-fee",
				Evidence: map[string]string{"jurisdiction": rules.ID},
			})
			return
		}
	}
}

func (g *Gate) checkDeposit(text string, rules Rules, result *CheckResult) {
	if rules.MaxDepositMonths <= 0 {
		return
	}
	for _, re := range depositHeuristics {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		months, ok := parseMonths(m[1])
		if !ok || months <= rules.MaxDepositMonths {
			continue
		}
		g.addViolation(result, Violation{
			Code:     CodeExcessiveDeposit,
			Severity: SeverityCritical,
			Matched:  m[0],
			RuleRef:  rules.ID + "/deposit-cap",
			Evidence: map[string]string{
				"months":     m[1],
				"max_months": strconv.FormatFloat(rules.MaxDepositMonths, 'f', -1, 64),
			},
		})
		return
	}
}

func (g *Gate) checkPrematureChecks(text string, rules Rules, stage string, result *CheckResult) {
	if !rules.FairChance.Enabled || stage == "" {
		return
	}
	if !rules.preOfferStages()[strings.ToLower(strings.TrimSpace(stage))] {
		return
	}
	// A check type mentioned without action language is informational,
	// not a violation.
	if !actionPhrasing.MatchString(text) {
		return
	}
	for _, checkType := range rules.FairChance.ForbiddenBeforeOffer {
		re, ok := checkMentions[checkType]
		if !ok {
			continue
		}
		if m := re.FindString(text); m != "" {
			g.addViolation(result, Violation{
				Code:     CodePrematureCheck,
				Severity: SeverityCritical,
				Matched:  m,
				RuleRef:  rules.ID + "/fair-chance",
				Evidence: map[string]string{
					"check_type": string(checkType),
					"stage":      stage,
				},
			})
			return
		}
	}
}

// sanitize produces a best-effort compliant variant by replacing each
// violation's matched span with a fixed remediation phrase. This is naive
// first-occurrence string replacement; if the same substring appears for
// unrelated reasons the wrong occurrence can be rewritten. Known
// limitation.
func (g *Gate) sanitize(text string, violations []Violation) string {
	out := text
	for _, v := range violations {
		if v.Matched == "" {
			continue
		}
		phrase, ok := remediations[v.Code]
		if !ok {
			continue
		}
		out = strings.Replace(out, v.Matched, phrase, 1)
	}
	if out == text {
		return ""
	}
	return out
}

func parseMonths(s string) (float64, bool) {
	s = strings.ToLower(s)
	if n, ok := wordNumbers[s]; ok {
		return n, true
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String implements fmt.Stringer for logging.
func (v Violation) String() string {
	return fmt.Sprintf("%s (%s)", v.Code, v.Severity)
}
