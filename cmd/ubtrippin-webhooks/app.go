package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/observability"
	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/vault"
)

// app is everything a command needs, built from one Config.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	store    store.Store
	hooks    *ubtrippin.Hooks
	registry *prometheus.Registry
}

// newApp loads configuration and wires the store, vault and hooks.
// needVault is false for commands that never touch secrets.
func newApp(ctx context.Context, needVault bool) (*app, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	s, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: s}
	if !needVault {
		return a, nil
	}

	if cfg.Store.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck // already failing
			return nil, err
		}
	}

	v, err := vault.NewFromString(cfg.Vault.MasterKey)
	if err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("vault.master_key: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.hookOptions(),
		ubtrippin.WithStore(s),
		ubtrippin.WithVault(v),
		ubtrippin.WithLogger(logger),
		ubtrippin.WithMetrics(observability.NewMetrics(a.registry)),
		ubtrippin.WithTracer(observability.NewTracer()),
	)

	a.hooks, err = ubtrippin.New(opts...)
	if err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("close store", "error", err)
	}
}
