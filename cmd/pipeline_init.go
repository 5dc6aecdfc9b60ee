package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/pipeline"
	"github.com/painel-gv/indicadores/internal/resilience"
	"github.com/painel-gv/indicadores/internal/resolve"
	"github.com/painel-gv/indicadores/internal/source"
	"github.com/painel-gv/indicadores/internal/store"
)

// pipelineEnv bundles the wired subsystems a command needs.
type pipelineEnv struct {
	Store    store.Store
	Catalog  *config.Catalog
	Pipeline *pipeline.Pipeline
	Resolver *resolve.Resolver
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the store, loads the catalog, registers source adapters,
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := buildRegistry(cfg)

	retry := resilience.DefaultRetryConfig()
	if cfg.Sync.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Sync.MaxRetries
	}
	resolver := resolve.New(registry, resolve.Options{
		Timeout: time.Duration(cfg.Sync.AdapterTimeoutSecs) * time.Second,
		Retry:   &retry,
	})

	pl := pipeline.New(catalog, resolver, st, cfg.Municipality.Code, cfg.Sync.Workers)

	return &pipelineEnv{Store: st, Catalog: catalog, Pipeline: pl, Resolver: resolver}, nil
}

func loadCatalog() (*config.Catalog, error) {
	return config.LoadCatalog(cfg.CatalogPath)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry wires one adapter per source family from configuration.
func buildRegistry(cfg *config.Config) *source.Registry {
	registry := source.NewRegistry()

	registry.Register(config.AdapterSIDRA, source.NewSIDRAAdapter(source.SIDRAOptions{
		BaseURL:    cfg.Sources.SidraBaseURL,
		RatePerSec: cfg.Sources.SidraRate,
	}))
	registry.Register(config.AdapterCSV, source.NewCSVAdapter(cfg.Sources.DataDir))
	registry.Register(config.AdapterXLSX, source.NewXLSXAdapter(cfg.Sources.DataDir))
	registry.Register(config.AdapterFTP, source.NewFTPAdapter(source.FTPOptions{
		Host:     cfg.Sources.FTPHost,
		User:     cfg.Sources.FTPUser,
		Password: cfg.Sources.FTPPassword,
	}))

	return registry
}
