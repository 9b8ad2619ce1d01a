package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fairlease/modelgate/internal/client"
	"github.com/fairlease/modelgate/internal/config"
	"github.com/fairlease/modelgate/internal/domain"
	"github.com/fairlease/modelgate/internal/ledger"
	ledgersqlite "github.com/fairlease/modelgate/internal/ledger/sqlite"
	"github.com/fairlease/modelgate/internal/policy"
	"github.com/fairlease/modelgate/internal/provider"
	"github.com/fairlease/modelgate/internal/provider/anthropic"
	"github.com/fairlease/modelgate/internal/provider/openai"
	"github.com/fairlease/modelgate/internal/telemetry"
)

// buildClient is the composition root: everything is constructed here and
// injected, nothing holds package-level state.
func buildClient(configPath string) (*client.Client, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.Default()

	shutdownTracing, err := telemetry.Init(cfg.Tracing.Service, cfg.Tracing.Enabled, os.Stderr, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracing: %w", err)
	}

	registry := provider.NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := buildProvider(pc, logger)
		if err != nil {
			return nil, nil, err
		}
		registry.Register(p)
	}
	if len(registry.Names()) == 0 {
		registry.Register(provider.NewMock())
		logger.Warn("no providers configured, using the mock adapter")
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	ledgerSvc := ledger.NewService(
		ledger.WithStore(store),
		ledger.WithLimits(ledger.Limits{
			UserDailyCents:   cfg.Budget.UserDailyCents,
			OrgDailyCents:    cfg.Budget.OrgDailyCents,
			GlobalDailyCents: cfg.Budget.GlobalDailyCents,
		}),
		ledger.WithLogger(logger),
	)

	opts := []client.Option{
		client.WithLedger(ledgerSvc),
		client.WithLogger(logger),
	}
	if cfg.Fallback != "" {
		opts = append(opts, client.WithFallback(cfg.Fallback))
	}
	if cfg.Policy.Enabled {
		gate, err := buildGate(cfg.Policy, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, client.WithGate(gate), client.WithHardBlock(cfg.Policy.HardBlock))
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("shutting down tracing", slog.String("error", err.Error()))
		}
	}

	return client.New(registry, opts...), cleanup, nil
}

func buildProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
	timeout, err := pc.AttemptTimeout()
	if err != nil {
		return nil, err
	}

	switch pc.Type {
	case "openai":
		opts := []openai.Option{openai.WithLogger(logger)}
		if pc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pc.BaseURL))
		}
		if timeout > 0 {
			opts = append(opts, openai.WithTimeout(timeout))
		}
		if pc.MaxRetries != 0 {
			opts = append(opts, openai.WithMaxRetries(pc.MaxRetries))
		}
		return openai.New(pc.APIKey, opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithLogger(logger)}
		if pc.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(pc.BaseURL))
		}
		if timeout > 0 {
			opts = append(opts, anthropic.WithTimeout(timeout))
		}
		if pc.MaxRetries != 0 {
			opts = append(opts, anthropic.WithMaxRetries(pc.MaxRetries))
		}
		return anthropic.New(pc.APIKey, opts...), nil
	case "mock":
		return provider.NewMock(provider.WithMockName(pc.Name)), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

func buildStore(sc config.StorageConfig) (ledger.Store, error) {
	switch sc.Type {
	case "", "memory":
		return ledger.NewMemoryStore(), nil
	case "sqlite":
		path := sc.SQLite.Path
		if path == "" {
			path = "modelgate.db"
		}
		return ledgersqlite.New(path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", sc.Type)
	}
}

func buildGate(pc config.PolicyConfig, logger *slog.Logger) (*policy.Gate, error) {
	opts := []policy.Option{policy.WithLogger(logger)}
	if pc.RulesFile != "" {
		rules, err := policy.LoadRulesFile(pc.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("loading rules file: %w", err)
		}
		opts = append(opts, policy.WithRules(rules))
	}
	return policy.NewGate(opts...), nil
}
