package main

import (
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/model"
)

// extractFlags mirrors the extract command line.
type extractFlags struct {
	MIC         string
	ExtractName string
	StartTime   string
	EndTime     string
	Filename    string
	Compress    bool
	Archive     bool
	Overwrite   bool
	Console     bool
	Human       bool
	Manifest    bool
	Mnemonic    string
	Testing     string
	Wildcard    bool
	NoVerify    bool
}

var extractOpts extractFlags

var extractCmd = &cobra.Command{
	Use:          "extract",
	Short:        "Verify the schema with a canary run, then extract the full window",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := buildRequest(extractOpts, cfg.Extract.OutputDir)
		if err != nil {
			return configError(err)
		}

		env, err := initExtract(ctx, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Controller.Run(ctx, req)

		// Push even on failure so the gateway sees failed runs. The signal
		// context may already be cancelled.
		if err := env.Metrics.Push(cmd.Context(), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			zap.L().Warn("push metrics", zap.Error(err))
		}

		if runErr != nil {
			return runErr
		}

		fields := []zap.Field{
			zap.String("run_id", res.RunID),
			zap.Int("manifests", len(res.Manifests)),
		}
		if res.Artifact != "" {
			fields = append(fields, zap.String("artifact", res.Artifact))
		}
		zap.L().Info("extract complete", fields...)
		return nil
	},
}

// buildRequest validates the flags and resolves them into a run request.
func buildRequest(f extractFlags, outputDir string) (model.RunRequest, error) {
	isTest, err := strconv.ParseBool(f.Testing)
	if err != nil {
		return model.RunRequest{}, eris.Errorf("--testing must be a boolean, got %q", f.Testing)
	}
	if f.Mnemonic != "" && !f.Manifest {
		zap.L().Info("--mnemonic has no effect without --manifest")
	}

	w, err := model.ParseWindow(f.StartTime, f.EndTime)
	if err != nil {
		return model.RunRequest{}, err
	}

	mode := model.OutputMode{
		Console:   f.Console,
		Human:     f.Human,
		Compress:  f.Compress,
		Archive:   f.Archive,
		Overwrite: f.Overwrite,
		Manifest:  f.Manifest,
		Mnemonic:  f.Mnemonic,
		Testing:   isTest,
		Wildcard:  f.Wildcard,
		NoVerify:  f.NoVerify,
	}
	return model.NewRunRequest(f.MIC, f.ExtractName, w, mode, f.Filename, outputDir)
}

func init() {
	fl := extractCmd.Flags()
	fl.StringVarP(&extractOpts.MIC, "mic", "m", "", "market identifier")
	fl.StringVarP(&extractOpts.ExtractName, "extract_name", "x", "", "extract definition name (see list)")
	fl.StringVar(&extractOpts.StartTime, "start_time", "", `window start, "YYYY-MM-DD HH:MM:SS"`)
	fl.StringVar(&extractOpts.EndTime, "end_time", "", `window end, "YYYY-MM-DD HH:MM:SS"`)
	fl.StringVarP(&extractOpts.Filename, "filename", "f", "", "output file stem (default <mic>_<extract>_<start>_to_<end>)")
	fl.BoolVarP(&extractOpts.Compress, "compress", "c", false, "gzip the output in the pipeline")
	fl.BoolVar(&extractOpts.Archive, "archive", false, "write plain CSV then pack it into a tar.gz")
	fl.BoolVarP(&extractOpts.Overwrite, "overwrite", "o", false, "replace existing output files")
	fl.BoolVar(&extractOpts.Console, "console", false, "stream rows to stdout instead of a file")
	fl.BoolVar(&extractOpts.Human, "human", false, "convert SOH delimiters back to commas")
	fl.BoolVar(&extractOpts.Manifest, "manifest", false, "write a manifest for each compressed artifact")
	fl.StringVar(&extractOpts.Mnemonic, "mnemonic", "", "manifest mnemonic")
	fl.StringVar(&extractOpts.Testing, "testing", "", "test run (True/False); test runs never flag small artifacts")
	fl.BoolVar(&extractOpts.Wildcard, "wildcard", false, "request every field and skip schema verification")
	fl.BoolVar(&extractOpts.NoVerify, "no_verify", false, "skip the canary schema check")

	for _, name := range []string{"mic", "extract_name", "start_time", "end_time", "testing"} {
		_ = extractCmd.MarkFlagRequired(name)
	}
	extractCmd.MarkFlagsMutuallyExclusive("compress", "archive")
	rootCmd.AddCommand(extractCmd)
}
