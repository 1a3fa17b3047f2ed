// Package runner executes retrieval commands and their post-processing
// pipelines, and owns the output-file policies around a run.
package runner

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cpm-tools/corvil-extract/internal/command"
)

// killGrace bounds how long Wait keeps waiting for I/O after a cancelled
// process group has been killed.
const killGrace = 2 * time.Second

// Executor runs commands to completion, one at a time.
type Executor struct {
	// Console receives console-sink output. Defaults to os.Stdout.
	Console io.Writer
}

// NewExecutor creates an Executor writing console output to console.
func NewExecutor(console io.Writer) *Executor {
	if console == nil {
		console = os.Stdout
	}
	return &Executor{Console: console}
}

// Run executes cmd and its pipeline and blocks until every stage has exited.
// Any failing stage fails the run; a partially written output file is removed.
func (e *Executor) Run(ctx context.Context, cmd command.Command) error {
	log := zap.L().With(zap.String("stage", cmd.Invocation.Description))
	log.Info(cmd.Invocation.Description,
		zap.String("command", cmd.Invocation.String()),
		zap.Any("stages", cmd.Stages()),
		zap.String("output", cmd.Output),
	)

	if err := cmd.Invocation.Validate(); err != nil {
		return err
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	err := e.run(ctx, cmd)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) && ctx.Err() == context.DeadlineExceeded {
			se.TimedOut = true
		}
		if cmd.Output != "" {
			if rmErr := removeIfExists(cmd.Output); rmErr != nil {
				log.Warn("runner: remove partial output", zap.String("path", cmd.Output), zap.Error(rmErr))
			}
		}
		log.Error("runner: command failed", zap.Error(err))
		return err
	}

	log.Info("runner: command complete")
	return nil
}

func (e *Executor) run(ctx context.Context, cmd command.Command) error {
	g, gctx := errgroup.WithContext(ctx)

	inv := cmd.Invocation
	retrieval := exec.CommandContext(gctx, inv.Program, inv.Args...)
	setProcessGroup(retrieval)
	retrievalStderr := &tailBuffer{}
	retrieval.Stderr = retrievalStderr

	// last is the process whose stdout feeds the in-process stages.
	last, lastName, lastStderr := retrieval, "retrieval", retrievalStderr
	var filter *exec.Cmd
	var filterStderr *tailBuffer

	if cmd.FilterPath != "" {
		pr, pw, err := os.Pipe()
		if err != nil {
			return eris.Wrap(err, "runner: create pipe")
		}
		retrieval.Stdout = pw
		filter = exec.CommandContext(gctx, cmd.FilterPath)
		setProcessGroup(filter)
		filter.Stdin = pr
		filterStderr = &tailBuffer{}
		filter.Stderr = filterStderr
		last, lastName, lastStderr = filter, "filter", filterStderr

		defer pr.Close() //nolint:errcheck
		defer pw.Close() //nolint:errcheck
	}

	src, err := last.StdoutPipe()
	if err != nil {
		return eris.Wrap(err, "runner: stdout pipe")
	}

	sink, closeSink, err := e.openSink(cmd)
	if err != nil {
		return err
	}

	if err := retrieval.Start(); err != nil {
		_ = closeSink()
		return &StageError{Stage: "retrieval", ExitCode: -1, Err: err}
	}
	if filter != nil {
		if err := filter.Start(); err != nil {
			_ = closeSink()
			_ = killProcessGroup(retrieval)
			_ = retrieval.Wait()
			return &StageError{Stage: "filter", ExitCode: -1, Err: err}
		}
		// The children hold their own copies of the pipe ends.
		_ = retrieval.Stdout.(*os.File).Close()
		_ = filter.Stdin.(*os.File).Close()

		g.Go(func() error {
			if err := retrieval.Wait(); err != nil {
				return &StageError{Stage: "retrieval", ExitCode: exitCode(err), Stderr: retrievalStderr.String(), Err: err}
			}
			return nil
		})
	}

	g.Go(func() error {
		_, copyErr := io.Copy(sink, src)
		if copyErr != nil {
			// Nobody reads the pipe any more; stop the writer before waiting.
			_ = killProcessGroup(last)
		}
		closeErr := closeSink()
		waitErr := last.Wait()
		if copyErr != nil {
			return &StageError{Stage: "sink", ExitCode: -1, Err: copyErr}
		}
		if waitErr != nil {
			return &StageError{Stage: lastName, ExitCode: exitCode(waitErr), Stderr: lastStderr.String(), Err: waitErr}
		}
		if closeErr != nil {
			return &StageError{Stage: "sink", ExitCode: -1, Err: closeErr}
		}
		return nil
	})

	return g.Wait()
}

// openSink builds the in-process part of the pipeline: remap, gzip, then the
// file or console. The returned close func flushes every layer in order.
func (e *Executor) openSink(cmd command.Command) (io.Writer, func() error, error) {
	var closers []func() error
	var w io.Writer

	switch cmd.Pipeline.Sink {
	case command.SinkConsole:
		bw := bufio.NewWriter(e.Console)
		w = bw
		closers = append(closers, bw.Flush)
	default:
		if cmd.Output == "" {
			return nil, nil, eris.New("runner: file sink without output path")
		}
		f, err := os.Create(cmd.Output)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "runner: create %s", cmd.Output)
		}
		bw := bufio.NewWriter(f)
		w = bw
		closers = append(closers, f.Close, bw.Flush)
	}

	// Wrap from the sink outwards so data passes the stages in list order.
	stages := cmd.Stages()
	for i := len(stages) - 1; i >= 0; i-- {
		switch stages[i] {
		case command.StageGzip:
			gz := gzip.NewWriter(w)
			w = gz
			closers = append(closers, gz.Close)
		case command.StageRemap:
			w = newRemapWriter(w)
		}
	}

	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return w, closeAll, nil
}

// RunFull runs the plan's full command and returns the artifact path, or ""
// for console output.
func (e *Executor) RunFull(ctx context.Context, plan command.Plan) (string, error) {
	if err := e.Run(ctx, plan.Full); err != nil {
		return "", err
	}
	return plan.Full.Output, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
