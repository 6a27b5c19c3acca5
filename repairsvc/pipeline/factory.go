package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sciansa/pdb-repair/repairsvc/config"
	"github.com/sciansa/pdb-repair/repairsvc/pdb"
	"github.com/sciansa/pdb-repair/repairsvc/pipeline/adapters"
	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// Factory creates and wires pipeline components from configuration.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewFactory creates a new pipeline factory.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateOrchestrator creates a fully wired orchestrator from config. The
// returned cleanup releases store resources and stops background workers.
func (f *Factory) CreateOrchestrator(ctx context.Context) (*Orchestrator, func() error, error) {
	store, cleanup, err := f.createStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	defaultPolicy := urn.Policy{}
	if f.cfg.Store.DefaultPolicy != "" {
		defaultPolicy, err = urn.ParsePolicy(f.cfg.Store.DefaultPolicy)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("store.default_policy: %w", err)
		}
	}

	orch := New(
		store,
		f.createCache(),
		adapters.NewExecRunner(f.logger),
		f.createProgress(),
		Options{
			Binary:        f.cfg.FoldX.Binary,
			WorkspaceRoot: f.cfg.Service.WorkspaceRoot,
			DefaultPolicy: defaultPolicy,
			Prep:          pdb.Options{SingleChain: f.cfg.Prep.SingleChain},
		},
		f.logger,
	)
	return orch, cleanup, nil
}

func (f *Factory) createStore(ctx context.Context) (ports.ArtifactStore, func() error, error) {
	switch f.cfg.Store.Mode {
	case "libsql":
		store, err := adapters.OpenLibSQLStore(f.cfg.Store.LibSQL.Path, f.cfg.Store.LibSQL.BlobDir, f.logger)
		if err != nil {
			return nil, nil, err
		}
		if f.cfg.Store.LibSQL.InboxDir == "" {
			return store, store.Close, nil
		}
		inbox := adapters.NewInboxWatcher(store, f.cfg.Store.LibSQL.InboxDir, f.cfg.Store.LibSQL.InboxWorkers, f.logger)
		if err := inbox.Start(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("starting inbox watcher: %w", err)
		}
		return store, func() error {
			inbox.Stop()
			return store.Close()
		}, nil
	default:
		store, err := adapters.NewHTTPStore(f.cfg.Store.BaseURL, f.cfg.Store.Token, f.cfg.Store.Timeout, f.logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}

func (f *Factory) createCache() ports.AspectCache {
	if !f.cfg.Cache.Enabled {
		return adapters.PassthroughAspectCache{}
	}
	return adapters.NewSturdycAspectCache(adapters.CacheSettings{
		Capacity:           f.cfg.Cache.Capacity,
		NumShards:          f.cfg.Cache.NumShards,
		TTL:                f.cfg.Cache.TTL,
		EvictionPercentage: f.cfg.Cache.EvictionPercentage,
	})
}

func (f *Factory) createProgress() ports.ProgressReporter {
	if !f.cfg.Telemetry.EnableProgress {
		return noOpProgress{}
	}
	return adapters.NewZerologProgress(f.logger)
}

// noOpProgress implements ProgressReporter with no-op behavior for when
// progress reporting is disabled.
type noOpProgress struct{}

func (noOpProgress) StepStarted(ctx context.Context, step, msg string)            {}
func (noOpProgress) StepFinished(ctx context.Context, step, msg string)           {}
func (noOpProgress) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure noOpProgress implements the ProgressReporter interface.
var _ ports.ProgressReporter = noOpProgress{}
