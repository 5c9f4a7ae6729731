package main

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	fieldmerge "github.com/reoring/fieldmerge"
	"github.com/reoring/fieldmerge/i18n"
	"github.com/reoring/fieldmerge/loader"
	"github.com/reoring/fieldmerge/metrics"
	"github.com/reoring/fieldmerge/orchestrator"
	"github.com/reoring/fieldmerge/store"
)

type applyFlags struct {
	schemas     string
	documents   string
	updates     string
	sections    []string
	dryRun      bool
	replace     bool
	metricsFile string
	documentsIn bool
	trace       bool
	startDocs   map[string]string
}

func newApplyCmd(e *env) *cobra.Command {
	f := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch of field updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd, e, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.schemas, "schemas", "", "Section schema file (JSON or YAML)")
	fl.StringVar(&f.documents, "documents", "", "Section document store (JSON)")
	fl.StringVar(&f.updates, "updates", "", "Proposed updates (JSON or YAML)")
	fl.StringSliceVar(&f.sections, "sections", nil, "Authorized section IDs (default: every known section)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Compute results without writing")
	fl.BoolVar(&f.replace, "replace", false, "Force the replace strategy for every update")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	fl.BoolVar(&f.documentsIn, "show-documents", false, "Include resulting documents in the output")
	fl.BoolVar(&f.trace, "trace", false, "Write batch and update spans to stderr")
	fl.StringToStringVar(&f.startDocs, "document", nil, "Starting document of a section as ID=FILE (JSON or YAML); overrides the stored one")
	_ = cmd.MarkFlagRequired("schemas")
	_ = cmd.MarkFlagRequired("documents")
	_ = cmd.MarkFlagRequired("updates")
	return cmd
}

func runApply(cmd *cobra.Command, e *env, f *applyFlags) error {
	ix, err := loader.LoadSchemas(f.schemas)
	if err != nil {
		return err
	}
	updates, err := loader.LoadUpdates(f.updates)
	if err != nil {
		return err
	}
	st, err := store.OpenFile(f.documents)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(e.log),
		orchestrator.WithMetrics(metrics.New(reg)),
		orchestrator.WithEngine(fieldmerge.NewEngine(e.cfg.EngineOptions())),
		orchestrator.WithGuard(fieldmerge.NewGuard(e.cfg.StorageKey)),
		orchestrator.WithTranslator(i18n.New(e.cfg.Language)),
		orchestrator.WithDefaultSectionKeys(e.cfg.DefaultSectionKeys...),
	}
	if f.trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(e.errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		defer func() {
			if err := tp.Shutdown(cmd.Context()); err != nil {
				e.log.Warn().Err(err).Msg("trace shutdown failed")
			}
		}()
		opts = append(opts, orchestrator.WithTracerProvider(tp))
	}
	orch := orchestrator.New(st, opts...)

	sections := sectionsFor(ix, st.Records())
	if err := attachDocuments(sections, f.startDocs); err != nil {
		return err
	}
	batch := orchestrator.Batch{
		Updates:              updates,
		Sections:             sections,
		AuthorizedSectionIDs: f.sections,
		DryRun:               f.dryRun || e.cfg.DryRun,
		ReplaceMode:          f.replace || e.cfg.ReplaceMode,
	}
	res, err := orch.Apply(cmd.Context(), batch)
	if err != nil {
		return err
	}
	if !f.documentsIn {
		res.Documents = nil
	}

	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(e.out, string(out))
	return err
}

// sectionsFor pairs stored sections with the schema of their section type.
// Every schema key is also addressable as a section ID of its own, so a
// fresh store can be filled without pre-creating sections.
func sectionsFor(ix loader.SchemaIndex, recs map[string]store.Record) map[string]orchestrator.Section {
	out := make(map[string]orchestrator.Section, len(ix)+len(recs))
	for key, s := range ix {
		out[key] = orchestrator.Section{Schema: s, Type: key, Title: key}
	}
	for id, rec := range recs {
		typ := rec.SectionType
		if typ == "" {
			typ = id
		}
		out[id] = orchestrator.Section{Schema: ix[typ], Title: rec.Title, Type: typ}
	}
	return out
}

// attachDocuments loads caller-supplied starting documents into sections.
func attachDocuments(sections map[string]orchestrator.Section, files map[string]string) error {
	for id, path := range files {
		sec, ok := sections[id]
		if !ok {
			return fmt.Errorf("document for unknown section %q", id)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document %s: %w", id, err)
		}
		doc, err := loader.DecodeDocument(data, loader.FormatOf(path))
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		sec.Document = doc
		sections[id] = sec
	}
	return nil
}
