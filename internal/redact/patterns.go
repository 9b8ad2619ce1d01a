package redact

import "regexp"

// PIIType identifies a class of personally identifiable information.
type PIIType string

const (
	TypeEmail       PIIType = "email"
	TypePhone       PIIType = "phone"
	TypeSSN         PIIType = "ssn"
	TypeAddress     PIIType = "address"
	TypeCreditCard  PIIType = "credit_card"
	TypeBankAccount PIIType = "bank_account"
	TypeDateOfBirth PIIType = "date_of_birth"
)

// Pattern couples a detection regex with its confidence score, placeholder
// token, and an optional validation gate. Validation stays decoupled from
// the pattern definition so each type can swap its checker independently.
type Pattern struct {
	Type        PIIType
	Regexp      *regexp.Regexp
	Confidence  float64
	Placeholder string

	// Group selects the submatch to redact; 0 means the whole match.
	// Patterns that anchor on context words (account labels, "DOB:")
	// use a group so the label survives redaction.
	Group int

	// Validate discards structurally invalid matches (Luhn for cards,
	// area/group/serial ranges for SSNs). Nil means no gate.
	Validate func(match string) bool
}

// builtinPatterns returns the default detection set. Placeholder tokens are
// all-caps bracketed markers that no pattern matches, which keeps redaction
// idempotent on its own output.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Type:        TypeEmail,
			Regexp:      regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Confidence:  0.95,
			Placeholder: "[EMAIL_REDACTED]",
		},
		{
			Type:        TypePhone,
			Regexp:      regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`),
			Confidence:  0.75,
			Placeholder: "[PHONE_REDACTED]",
		},
		{
			Type:        TypeSSN,
			Regexp:      regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`),
			Confidence:  0.90,
			Placeholder: "[SSN_REDACTED]",
			Validate:    validSSN,
		},
		{
			Type:        TypeCreditCard,
			Regexp:      regexp.MustCompile(`\b\d(?:[ -]?\d){12,15}\b`),
			Confidence:  0.85,
			Placeholder: "[CARD_REDACTED]",
			Validate:    validCardNumber,
		},
		{
			Type:        TypeBankAccount,
			Regexp:      regexp.MustCompile(`(?i)\b(?:account|acct|routing)\s*(?:number|no\.?|#)?\s*[:#]?\s*(\d{6,17})\b`),
			Confidence:  0.80,
			Placeholder: "[ACCOUNT_REDACTED]",
			Group:       1,
		},
		{
			Type:        TypeAddress,
			Regexp:      regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9'.]+\s+){0,3}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|place|pl|way)\b\.?(?:,?\s*(?:apt|unit|suite|ste)\.?\s*#?\w+)?`),
			Confidence:  0.65,
			Placeholder: "[ADDRESS_REDACTED]",
		},
		{
			Type:        TypeDateOfBirth,
			Regexp:      regexp.MustCompile(`(?i)\b(?:dob|date\s+of\s+birth|born(?:\s+on)?)\s*[:\s]\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})`),
			Confidence:  0.85,
			Placeholder: "[DOB_REDACTED]",
			Group:       1,
		},
	}
}
