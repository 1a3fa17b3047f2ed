// Package extract sequences one extraction: resolve, build, verify, run,
// archive, manifest and deliver.
package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/catalog"
	"github.com/cpm-tools/corvil-extract/internal/command"
	"github.com/cpm-tools/corvil-extract/internal/credentials"
	"github.com/cpm-tools/corvil-extract/internal/delivery"
	"github.com/cpm-tools/corvil-extract/internal/manifest"
	"github.com/cpm-tools/corvil-extract/internal/metrics"
	"github.com/cpm-tools/corvil-extract/internal/model"
	"github.com/cpm-tools/corvil-extract/internal/runner"
	"github.com/cpm-tools/corvil-extract/internal/store"
	"github.com/cpm-tools/corvil-extract/internal/verify"
)

// Notifier announces written manifests.
type Notifier interface {
	Notify(ctx context.Context, events []delivery.ManifestEvent) error
}

// Controller runs extractions. The zero values of the optional collaborators
// (Store, Publisher, Notifier, Metrics) disable them.
type Controller struct {
	Catalog     *catalog.Catalog
	Credentials *credentials.Store
	Builder     command.Builder
	Runner      verify.Runner
	Verifier    *verify.Verifier
	Manifests   manifest.Writer
	Environment string
	// Lock serializes invocations on the same artifact stem.
	Lock bool
	// Listing receives the extract listing on an unknown extract name.
	Listing io.Writer

	Store     store.Store
	Publisher delivery.Publisher
	Notifier  Notifier
	Metrics   *metrics.Recorder
}

// Result describes a finished run.
type Result struct {
	RunID     string                 `json:"run_id,omitempty"`
	Plan      command.Plan           `json:"plan"`
	Verified  *verify.Result         `json:"verified,omitempty"`
	Artifact  string                 `json:"artifact,omitempty"`
	Manifests []model.ManifestRecord `json:"manifests,omitempty"`
}

// Run executes req. Steps run strictly in sequence and the first failure
// stops the run with a classified *Error.
func (c *Controller) Run(ctx context.Context, req model.RunRequest) (res *Result, err error) {
	log := zap.L().With(
		zap.String("market", req.Market),
		zap.String("extract", req.ExtractName),
		zap.String("window", req.Window.String()),
	)
	res = &Result{}

	def, err := c.Catalog.Resolve(req.Market, req.ExtractName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			log.Error("Extract name not found. See list below for available extracts")
			if c.Listing != nil {
				if lerr := c.Catalog.WriteListing(c.Listing, req.Market); lerr != nil {
					log.Warn("extract: write listing", zap.Error(lerr))
				}
			}
			return res, fail(KindInvalidRequest, err)
		}
		return res, fail(KindConfiguration, err)
	}
	decoder, err := c.Catalog.Decoder(def)
	if err != nil {
		return res, fail(KindConfiguration, err)
	}
	log = log.With(zap.String("class_id", def.ClassID))

	runID := c.startLedger(ctx, req, def)
	res.RunID = runID
	defer func() { c.finish(ctx, log, req, runID, res, err) }()

	paths := command.PathsFor(req.Filename, req.Mode.Compressed())
	if !req.Mode.Console {
		if c.Lock {
			lock, lerr := runner.AcquireLock(paths.Lock)
			if lerr != nil {
				if errors.Is(lerr, runner.ErrLocked) {
					return res, fail(KindLocked, lerr)
				}
				return res, fail(KindConfiguration, lerr)
			}
			defer func() {
				if rerr := lock.Release(); rerr != nil {
					log.Warn("extract: release lock", zap.Error(rerr))
				}
			}()
		}
		if cerr := runner.CheckCollision(paths, req.Mode.Overwrite); cerr != nil {
			return res, fail(KindOutputCollision, cerr)
		}
	}

	addr, err := c.Catalog.DeviceAddress(c.Environment, def.DeviceKey)
	if err != nil {
		return res, fail(KindConfiguration, err)
	}
	creds, err := c.Credentials.ForEnvironment(c.Catalog.Database(req.Market), c.Environment)
	if err != nil {
		return res, fail(KindConfiguration, err)
	}

	plan, err := c.Builder.Build(command.Target{
		Address:     addr,
		ClassID:     def.ClassID,
		Fields:      decoder.Fields,
		Credentials: creds,
	}, req)
	if err != nil {
		return res, fail(KindConfiguration, err)
	}
	res.Plan = plan

	if req.Mode.ShouldVerify() {
		done := c.time("canary")
		vres, verr := c.Verifier.Verify(ctx, plan, decoder.ExpectedColumns(), def.ClassID, req.Window)
		done()
		res.Verified = &vres
		if verr != nil {
			if errors.Is(verr, verify.ErrSchemaMismatch) {
				return res, fail(KindSchemaMismatch, verr)
			}
			return res, fail(KindExternalCommand, verr)
		}
	}

	done := c.time("full")
	err = c.Runner.Run(ctx, plan.Full)
	done()
	if err != nil {
		return res, fail(KindExternalCommand, err)
	}
	res.Artifact = plan.Full.Output

	if req.Mode.Archive && !req.Mode.Console {
		done := c.time("archive")
		err = runner.Archive(plan.Paths.Plain, plan.Paths.Compressed)
		done()
		if err != nil {
			return res, fail(KindExternalCommand, err)
		}
		res.Artifact = plan.Paths.Compressed
	}

	if req.Mode.ShouldManifest() {
		recs, merr := c.Manifests.Write(manifest.Request{
			Dir:      filepath.Dir(req.Filename),
			Prefix:   filepath.Base(req.Filename),
			Produced: []string{res.Artifact},
			Mnemonic: req.Mode.Mnemonic,
			Testing:  req.Mode.Testing,
		})
		res.Manifests = recs
		if merr != nil {
			return res, fail(KindExternalCommand, merr)
		}
	}

	if res.Artifact != "" {
		if derr := c.deliver(ctx, req, runID, res); derr != nil {
			return res, derr
		}
	}
	return res, nil
}

func (c *Controller) deliver(ctx context.Context, req model.RunRequest, runID string, res *Result) error {
	if c.Publisher != nil {
		files := []string{res.Artifact}
		for _, m := range res.Manifests {
			files = append(files, m.Path)
		}
		done := c.time("delivery")
		err := c.Publisher.Publish(ctx, files)
		done()
		if err != nil {
			return fail(KindDelivery, err)
		}
	}

	if c.Notifier != nil && len(res.Manifests) > 0 {
		events := make([]delivery.ManifestEvent, 0, len(res.Manifests))
		for _, m := range res.Manifests {
			events = append(events, delivery.ManifestEvent{
				Type:     "manifest",
				RunID:    runID,
				Market:   req.Market,
				Extract:  req.ExtractName,
				Record:   m,
				Manifest: filepath.Base(m.Path),
			})
		}
		if err := c.Notifier.Notify(ctx, events); err != nil {
			zap.L().Error("extract: manifest notification failed", zap.Error(err))
		}
	}
	return nil
}

func (c *Controller) startLedger(ctx context.Context, req model.RunRequest, def catalog.Definition) string {
	if c.Store == nil {
		return ""
	}
	run, err := c.Store.CreateRun(ctx, model.ExtractRun{
		Market:      req.Market,
		ExtractName: req.ExtractName,
		ClassID:     def.ClassID,
		Start:       req.Window.Start,
		End:         req.Window.End,
		Filename:    req.Filename,
	})
	if err != nil {
		zap.L().Error("extract: ledger create run", zap.Error(err))
		return ""
	}
	return run.ID
}

// finish records the outcome in the ledger and metrics. Neither can fail the run.
func (c *Controller) finish(ctx context.Context, log *zap.Logger, req model.RunRequest, runID string, res *Result, runErr error) {
	status := string(model.RunStatusComplete)
	if runErr != nil {
		status = string(KindOf(runErr))
		if status == "" {
			status = string(model.RunStatusFailed)
		}
		log.Error("extract: run failed", zap.String("kind", status), zap.Error(runErr))
	} else {
		log.Info("extract: run complete", zap.String("artifact", res.Artifact), zap.Int("manifests", len(res.Manifests)))
	}

	if c.Store != nil && runID != "" {
		var err error
		if runErr != nil {
			err = c.Store.FailRun(ctx, runID, status, runErr.Error())
		} else {
			err = c.Store.CompleteRun(ctx, runID, res.artifacts())
		}
		if err != nil {
			log.Error("extract: ledger update", zap.Error(err))
		}
	}

	if c.Metrics != nil {
		c.Metrics.ObserveRun(req.Market, req.ExtractName, status)
		if runErr == nil && res.Artifact != "" {
			if info, err := os.Stat(res.Artifact); err == nil {
				c.Metrics.ObserveArtifact(req.Market, req.ExtractName, info.Size())
			}
		}
	}
}

func (c *Controller) time(stage string) func() {
	if c.Metrics == nil {
		return func() {}
	}
	return c.Metrics.Time(stage)
}

func (r *Result) artifacts() []string {
	if r.Artifact == "" {
		return nil
	}
	out := []string{r.Artifact}
	for _, m := range r.Manifests {
		out = append(out, m.Path)
	}
	return out
}
