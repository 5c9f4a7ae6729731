package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	fieldmerge "github.com/reoring/fieldmerge"
	"github.com/reoring/fieldmerge/store"
)

func newCleanCmd(e *env) *cobra.Command {
	var documents string
	var write bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Detect and remove self-nesting corruption in stored documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.OpenFile(documents)
			if err != nil {
				return err
			}
			g := fieldmerge.NewGuard(e.cfg.StorageKey)
			var found map[string][]string
			if write {
				if found, err = st.Clean(cmd.Context(), g); err != nil {
					return err
				}
			} else {
				found = map[string][]string{}
				for id, rec := range st.Records() {
					if cr := g.CleanCorruptedData(rec.StructuredData); cr.WasCorrupted {
						found[id] = cr.IssuesFound
					}
				}
			}
			ids := make([]string, 0, len(found))
			for id := range found {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				for _, is := range found[id] {
					fmt.Fprintf(e.out, "%s: %s\n", id, is)
				}
			}
			e.log.Info().Int("sections", len(ids)).Bool("write", write).Msg("clean finished")
			if len(ids) == 0 {
				fmt.Fprintln(e.out, "no corruption found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&documents, "documents", "", "Section document store (JSON)")
	cmd.Flags().BoolVar(&write, "write", false, "Persist the cleaned documents")
	_ = cmd.MarkFlagRequired("documents")
	return cmd
}
