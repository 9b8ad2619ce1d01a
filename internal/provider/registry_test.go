package provider

import (
	"context"
	"testing"

	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/tokens"
)

func TestRegistryForModel(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMock(WithMockName("alpha"), WithMockModels("model-a", "model-shared")))
	r.Register(NewMock(WithMockName("beta"), WithMockModels("model-b", "model-shared")))

	tests := []struct {
		model    string
		provider string
		wantErr  bool
	}{
		{"model-a", "alpha", false},
		{"model-b", "beta", false},
		{"model-shared", "alpha", false}, // first registration wins
		{"model-unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := r.ForModel(tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown model")
				}
				return
			}
			if err != nil {
				t.Fatalf("ForModel: %v", err)
			}
			if p.Name() != tt.provider {
				t.Errorf("provider = %q, want %q", p.Name(), tt.provider)
			}
		})
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMock(WithMockName("alpha")))

	if _, err := r.Get("alpha"); err != nil {
		t.Errorf("Get(alpha): %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("Get(missing): expected error")
	}
}

func TestMockCompleteUsage(t *testing.T) {
	m := NewMock(WithMockResponse("four word mock reply"))

	resp, err := m.Complete(context.Background(), &domain.CompletionRequest{
		Model: "mock-model",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Summarize this listing for me please."},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("total = %d, want prompt+completion = %d",
			resp.Usage.TotalTokens, resp.Usage.PromptTokens+resp.Usage.CompletionTokens)
	}
	if resp.Usage.PromptTokens <= 0 || resp.Usage.CompletionTokens <= 0 {
		t.Errorf("usage should be positive: %+v", resp.Usage)
	}
	if resp.CostCents < 0 {
		t.Errorf("cost = %d, want >= 0", resp.CostCents)
	}
	if resp.FinishReason != domain.FinishStop {
		t.Errorf("finish reason = %q, want stop", resp.FinishReason)
	}
}

func TestMockUsageFromTokenCounter(t *testing.T) {
	const prompt = "The quick brown fox jumps over the lazy dog near the riverbank."

	t.Run("openai models use the tiktoken counter", func(t *testing.T) {
		m := NewMock(WithMockModels("gpt-4o"))
		resp, err := m.Complete(context.Background(), &domain.CompletionRequest{
			Model:    "gpt-4o",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}

		want, err := tokens.NewOpenAICounter().CountText("gpt-4o", prompt)
		if err != nil {
			t.Fatalf("CountText: %v", err)
		}
		if resp.Usage.PromptTokens != want {
			t.Errorf("prompt tokens = %d, want %d from the tiktoken counter", resp.Usage.PromptTokens, want)
		}
	})

	t.Run("injected counter", func(t *testing.T) {
		m := NewMock(WithMockCounter(fixedCounter{n: 777}))
		resp, err := m.Complete(context.Background(), &domain.CompletionRequest{
			Model:    "mock-model",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Usage.PromptTokens != 777 || resp.Usage.CompletionTokens != 777 {
			t.Errorf("usage = %+v, want counts from the injected counter", resp.Usage)
		}
	})
}

type fixedCounter struct{ n int }

func (c fixedCounter) CountText(model, text string) (int, error) { return c.n, nil }
func (c fixedCounter) SupportsModel(model string) bool           { return true }

func TestMockInducedFailures(t *testing.T) {
	failErr := domain.ErrRateLimit("mock", "induced")
	m := NewMock(WithMockFailures(2, failErr))

	req := &domain.CompletionRequest{Model: "mock-model", Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}

	for i := 0; i < 2; i++ {
		if _, err := m.Complete(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected induced failure", i+1)
		}
	}
	if _, err := m.Complete(context.Background(), req); err != nil {
		t.Fatalf("call 3: %v", err)
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}
}

func TestCostCentsRoundsUp(t *testing.T) {
	// 1 prompt token of gpt-4o-mini costs far less than a cent; the
	// charge still rounds up to 1.
	cost := CostCents("gpt-4o-mini", domain.Usage{PromptTokens: 1, CompletionTokens: 0, TotalTokens: 1})
	if cost != 1 {
		t.Errorf("cost = %d, want 1 (rounded up)", cost)
	}

	if got := CostCents("gpt-4o", domain.Usage{}); got != 0 {
		t.Errorf("zero usage cost = %d, want 0", got)
	}

	// Unknown models use the conservative default row.
	if got := CostCents("unknown-model", domain.Usage{PromptTokens: 100, CompletionTokens: 100, TotalTokens: 200}); got <= 0 {
		t.Errorf("unknown model cost = %d, want > 0", got)
	}
}
