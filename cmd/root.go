package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
	"github.com/cpm-tools/corvil-extract/internal/extract"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "corvil-extract",
	Short: "Schema-checked Corvil telemetry extracts",
	Long:  "Resolves market extracts against the Corvil topology, validates the column layout with a canary run, then streams the full window to disk with optional compression and manifests.",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// PersistentPreRunE is assigned in init because it refers to rootCmd
// through commandMode, which would otherwise be an initialization cycle.
func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return configError(fmt.Errorf("load config: %w", err))
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return configError(fmt.Errorf("init logger: %w", err))
		}

		mode := commandMode(cmd)
		if !validatedModes[mode] {
			return nil
		}
		if err := cfg.Validate(mode); err != nil {
			return configError(err)
		}
		return nil
	}
}

// validatedModes are the subcommands whose settings are checked up front.
// help and completion run with whatever configuration is present.
var validatedModes = map[string]bool{"list": true, "extract": true, "runs": true, "serve": true}

// commandMode names the top-level subcommand cmd belongs to.
func commandMode(cmd *cobra.Command) string {
	for cmd.HasParent() && cmd.Parent() != rootCmd {
		cmd = cmd.Parent()
	}
	return cmd.Name()
}

func configError(err error) error {
	return &extract.Error{Kind: extract.KindConfiguration, Err: err}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		zap.L().Error("corvil-extract failed",
			zap.String("kind", string(extract.KindOf(err))),
			zap.Error(err),
		)
		_ = zap.L().Sync()
	}
	os.Exit(extract.ExitCode(err))
}
