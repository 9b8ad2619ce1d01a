// Package tokens provides token counting for completion text across
// providers: an accurate tiktoken-backed counter for OpenAI-family models
// and a character-ratio estimator fallback for everything else.
package tokens

import "strings"

// Counter counts tokens for a piece of text under a given model.
type Counter interface {
	// CountText returns the token count for text under model.
	CountText(model, text string) (int, error)

	// SupportsModel reports whether this counter handles the model.
	SupportsModel(model string) bool
}

// Registry resolves the appropriate counter for a model, falling back to
// an estimator when no registered counter matches.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the chars/4 estimator as fallback.
func NewRegistry() *Registry {
	return &Registry{fallback: NewEstimator()}
}

// NewDefaultRegistry creates a registry with the tiktoken-backed OpenAI
// counter registered over the estimator fallback. This is the counter
// the adapters use for usage estimation.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewOpenAICounter())
	return r
}

// Register adds a counter to the registry.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// CountText counts tokens using the first counter that supports the model,
// else the fallback estimator.
func (r *Registry) CountText(model, text string) (int, error) {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			return c.CountText(model, text)
		}
	}
	return r.fallback.CountText(model, text)
}

// SupportsModel returns true; the fallback handles any model no
// registered counter claims.
func (r *Registry) SupportsModel(model string) bool { return true }

// Estimator approximates token counts from character length. Roughly one
// token per four characters holds for English prose across current models.
type Estimator struct {
	CharsPerToken float64
}

// NewEstimator creates an estimator with the default 4 chars/token ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountText estimates the token count for text. The model is ignored.
func (e *Estimator) CountText(model, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n, nil
}

// SupportsModel returns true; the estimator is the universal fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher matches model names against prefix and exact lists.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a matcher from prefix and exact-match lists.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches reports whether the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
