package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/alert"
	"github.com/cpm-tools/corvil-extract/internal/catalog"
	"github.com/cpm-tools/corvil-extract/internal/command"
	"github.com/cpm-tools/corvil-extract/internal/config"
	"github.com/cpm-tools/corvil-extract/internal/credentials"
	"github.com/cpm-tools/corvil-extract/internal/delivery"
	"github.com/cpm-tools/corvil-extract/internal/extract"
	"github.com/cpm-tools/corvil-extract/internal/manifest"
	"github.com/cpm-tools/corvil-extract/internal/metrics"
	"github.com/cpm-tools/corvil-extract/internal/runner"
	"github.com/cpm-tools/corvil-extract/internal/store"
	"github.com/cpm-tools/corvil-extract/internal/verify"
)

// extractEnv holds the controller and the resources it owns for one
// extract invocation.
type extractEnv struct {
	Store      store.Store
	Controller *extract.Controller
	Metrics    *metrics.Recorder
}

// Close releases resources held by the environment.
func (ee *extractEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initCatalog loads the market topology named in the config.
func initCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Topology.CorvilPath, cfg.Topology.MarketDBPath)
	if err != nil {
		return nil, configError(err)
	}
	return cat, nil
}

// initExtract wires every collaborator of the controller from cfg. Console
// output and the unknown-extract listing go to out. Callers should defer
// env.Close().
func initExtract(ctx context.Context, out io.Writer) (*extractEnv, error) {
	cat, err := initCatalog()
	if err != nil {
		return nil, err
	}
	creds, err := credentials.Load(cfg.Topology.AccountsPath, cfg.Topology.ConnectionsPath)
	if err != nil {
		return nil, configError(err)
	}
	publisher, err := delivery.FromConfig(cfg.Delivery)
	if err != nil {
		return nil, configError(err)
	}

	st, err := initStore(ctx)
	if err != nil {
		// The ledger is an audit trail; extraction proceeds without it.
		zap.L().Warn("run ledger unavailable", zap.Error(err))
		st = store.Nop{}
	}

	exec := runner.NewExecutor(out)
	rec := metrics.New()

	ctrl := &extract.Controller{
		Catalog:     cat,
		Credentials: creds,
		Builder:     builderFromConfig(cfg.Retrieval),
		Runner:      exec,
		Verifier:    verify.New(exec, alert.FromConfig(cfg.Alert)),
		Manifests: manifest.Writer{
			MinBytes: cfg.Extract.MinArtifactBytes,
			Scope:    manifest.Scope(cfg.Extract.ManifestScope),
		},
		Environment: cfg.Retrieval.Environment,
		Lock:        cfg.Extract.Lock,
		Listing:     out,
		Store:       st,
		Publisher:   publisher,
		Metrics:     rec,
	}
	if n := delivery.NewNotifier(cfg.Notify); n.Enabled() {
		ctrl.Notifier = n
	}

	return &extractEnv{Store: st, Controller: ctrl, Metrics: rec}, nil
}

func builderFromConfig(rc config.RetrievalConfig) command.Builder {
	return command.Builder{
		Program:       rc.Program,
		Script:        rc.Script,
		FilterPath:    rc.FilterPath,
		Timeout:       rc.Timeout,
		CanaryTimeout: rc.CanaryTimeout,
	}
}

// initStore opens the configured run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open run ledger")
	}
	return st, nil
}
