package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/reoring/fieldmerge/jsonschema"
	"github.com/reoring/fieldmerge/loader"
)

func newSchemaCmd(e *env) *cobra.Command {
	var schemas, section string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a section document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := loader.LoadSchemas(schemas)
			if err != nil {
				return err
			}
			s, ok := ix[section]
			if !ok {
				return fmt.Errorf("unknown section %q", section)
			}
			out, err := json.MarshalIndent(jsonschema.FromSection(s), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(e.out, string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&schemas, "schemas", "", "Section schema file (JSON or YAML)")
	cmd.Flags().StringVar(&section, "section", "", "Section key")
	_ = cmd.MarkFlagRequired("schemas")
	_ = cmd.MarkFlagRequired("section")
	return cmd
}
