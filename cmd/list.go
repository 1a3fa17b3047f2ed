package main

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cpm-tools/corvil-extract/internal/catalog"
)

var listMIC string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the valid extracts for a market",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := initCatalog()
		if err != nil {
			return err
		}
		return runList(cmd.OutOrStdout(), cat, listMIC)
	},
}

// runList prints the extract listing for mic. Markets without extracts are
// a configuration error.
func runList(out io.Writer, cat *catalog.Catalog, mic string) error {
	if !cat.HasMarket(mic) {
		return configError(eris.Errorf("unknown mic %q, choose one of: %s", mic, strings.Join(cat.Markets(), ", ")))
	}
	return cat.WriteListing(out, mic)
}

func init() {
	listCmd.Flags().StringVarP(&listMIC, "mic", "m", "", "market identifier")
	_ = listCmd.MarkFlagRequired("mic")
	rootCmd.AddCommand(listCmd)
}
