package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reoring/fieldmerge/internal/config"
	"github.com/reoring/fieldmerge/internal/logger"
)

// env carries what every subcommand needs after flag parsing.
type env struct {
	out    io.Writer
	errOut io.Writer
	cfg    *config.Configuration
	log    zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	e := &env{out: stdout, errOut: stderr}
	var configPath string

	root := &cobra.Command{
		Use:   "fieldmerge",
		Short: "Merge proposed field updates into structured report sections",
		Long: `fieldmerge validates proposed field updates against section schemas,
merges them into the stored section documents and reports every outcome.`,
		Example: `  # Preview a batch without writing
  fieldmerge apply --schemas schemas.yaml --documents report.json --updates updates.json --dry-run

  # List the field paths a section accepts
  fieldmerge paths --schemas schemas.yaml --section background

  # Describe a section document as JSON Schema
  fieldmerge schema --schemas schemas.yaml --section background

  # Remove self-nesting corruption from stored documents
  fieldmerge clean --documents report.json --write`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: stderr})
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "fieldmerge.json", "Path to config file")

	root.AddCommand(newApplyCmd(e), newPathsCmd(e), newSchemaCmd(e), newCleanCmd(e))
	return root
}
