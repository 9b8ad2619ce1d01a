package provider

import "github.com/fairlease/modelgate/internal/domain"

// modelPricing holds per-model prices in cents per million tokens.
type modelPricing struct {
	inputCentsPerM  int64
	outputCentsPerM int64
}

// pricing is the static price table (Feb 2026 list prices). Models not in
// the table fall back to the conservative default row so cost is never
// silently zero.
var pricing = map[string]modelPricing{
	"gpt-4o":                     {inputCentsPerM: 250, outputCentsPerM: 1000},
	"gpt-4o-mini":                {inputCentsPerM: 15, outputCentsPerM: 60},
	"gpt-4-turbo":                {inputCentsPerM: 1000, outputCentsPerM: 3000},
	"gpt-3.5-turbo":              {inputCentsPerM: 50, outputCentsPerM: 150},
	"claude-3-5-sonnet-20241022": {inputCentsPerM: 300, outputCentsPerM: 1500},
	"claude-3-5-haiku-20241022":  {inputCentsPerM: 80, outputCentsPerM: 400},
	"claude-3-opus-20240229":     {inputCentsPerM: 1500, outputCentsPerM: 7500},
}

var defaultPricing = modelPricing{inputCentsPerM: 1000, outputCentsPerM: 3000}

// CostCents returns the cost of a completion in integer minor-currency
// units, rounded up. Never negative.
func CostCents(model string, usage domain.Usage) int64 {
	p, ok := pricing[model]
	if !ok {
		p = defaultPricing
	}

	prompt := int64(usage.PromptTokens)
	completion := int64(usage.CompletionTokens)
	if prompt < 0 {
		prompt = 0
	}
	if completion < 0 {
		completion = 0
	}

	microCents := prompt*p.inputCentsPerM + completion*p.outputCentsPerM
	cents := microCents / 1_000_000
	if microCents%1_000_000 != 0 {
		cents++
	}
	return cents
}
