package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reoring/fieldmerge/loader"
)

func newPathsCmd(e *env) *cobra.Command {
	var schemas, section string
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List the field paths accepted by each section",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := loader.LoadSchemas(schemas)
			if err != nil {
				return err
			}
			keys := ix.Keys()
			if section != "" {
				if _, ok := ix[section]; !ok {
					return fmt.Errorf("unknown section %q", section)
				}
				keys = []string{section}
			}
			for _, k := range keys {
				fmt.Fprintf(e.out, "%s:\n", k)
				for _, p := range ix[k].Paths() {
					fmt.Fprintf(e.out, "  %s\n", p)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemas, "schemas", "", "Section schema file (JSON or YAML)")
	cmd.Flags().StringVar(&section, "section", "", "Only list this section")
	_ = cmd.MarkFlagRequired("schemas")
	return cmd
}
