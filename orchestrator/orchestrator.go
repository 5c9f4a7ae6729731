// Package orchestrator applies batches of proposed field updates to report
// section documents using the fieldmerge engine.
//
// Updates are processed sequentially in input order so that later updates
// observe the documents produced by earlier ones, in dry-run mode as well.
// A failing update is recorded in the batch result and never aborts the
// remaining updates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	fieldmerge "github.com/reoring/fieldmerge"
	"github.com/reoring/fieldmerge/i18n"
	"github.com/reoring/fieldmerge/metrics"
)

// Orchestrator applies update batches against a Store. It holds no per-batch
// state and may be shared across goroutines when its Store allows it.
type Orchestrator struct {
	store       Store
	engine      *fieldmerge.Engine
	guard       *fieldmerge.Guard
	log         zerolog.Logger
	metrics     *metrics.Metrics
	tr          i18n.Translator
	sectionKeys []string
	validate    *validator.Validate
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With().Str("component", "orchestrator").Logger() }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithEngine sets the merge engine.
func WithEngine(e *fieldmerge.Engine) Option { return func(o *Orchestrator) { o.engine = e } }

// WithGuard sets the data integrity guard.
func WithGuard(g *fieldmerge.Guard) Option { return func(o *Orchestrator) { o.guard = g } }

// WithTranslator sets the translator used for result error messages.
func WithTranslator(tr i18n.Translator) Option { return func(o *Orchestrator) { o.tr = tr } }

// WithTracerProvider sets the provider of batch and update spans. The
// default is the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

// WithDefaultSectionKeys adds well-known section keys stripped from field
// paths during normalization, in addition to each section's schema key, ID
// and type.
func WithDefaultSectionKeys(keys ...string) Option {
	return func(o *Orchestrator) { o.sectionKeys = append(o.sectionKeys, keys...) }
}

const tracerName = "github.com/reoring/fieldmerge/orchestrator"

// New returns an Orchestrator persisting through store.
func New(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		log:      zerolog.Nop(),
		tr:       i18n.English,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = fieldmerge.NewEngine(fieldmerge.EngineOptions{})
	}
	if o.guard == nil {
		o.guard = fieldmerge.NewGuard("")
	}
	if o.tr == nil {
		o.tr = i18n.English
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return o
}

// ErrNilStore is returned by Apply when the Orchestrator has no Store.
var ErrNilStore = errors.New("orchestrator: nil store")

// Apply processes every update of b in order and reports each outcome. It
// returns an error only when the batch cannot be started at all; failures of
// individual updates are recorded in the result. When ctx is cancelled
// mid-batch the remaining updates are recorded as failed.
func (o *Orchestrator) Apply(ctx context.Context, b Batch) (*BatchResult, error) {
	if o.store == nil {
		return nil, ErrNilStore
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := ModeWrite
	if b.DryRun {
		mode = ModeDryRun
	}
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, span := o.tracer.Start(ctx, "fieldmerge.Apply", trace.WithAttributes(
		attribute.String("fieldmerge.batch_id", id),
		attribute.String("fieldmerge.mode", mode),
		attribute.Int("fieldmerge.updates", len(b.Updates)),
	))
	defer span.End()

	res := &BatchResult{
		BatchID:          id,
		Mode:             mode,
		ProcessSummaries: []string{},
		UpdateResults:    make([]UpdateResult, 0, len(b.Updates)),
		ProposedUpdates:  b.Updates,
	}
	if res.ProposedUpdates == nil {
		res.ProposedUpdates = []FieldUpdate{}
	}
	run := newBatchRun(o, b)
	log := o.log.With().Str("batch_id", id).Logger()
	run.log = log

	for _, u := range b.Updates {
		if s := strings.TrimSpace(u.ProcessSummary); s != "" {
			res.ProcessSummaries = append(res.ProcessSummaries, s)
		}
		var r UpdateResult
		uctx, uspan := o.tracer.Start(ctx, "fieldmerge.update", trace.WithAttributes(
			attribute.String("fieldmerge.section_id", u.SectionID),
			attribute.String("fieldmerge.field_path", u.FieldPath),
			attribute.String("fieldmerge.strategy", string(u.MergeStrategy)),
		))
		if err := ctx.Err(); err != nil {
			r = run.fail(u, u.FieldPath, fieldmerge.CodeUnexpected, map[string]string{"detail": err.Error()}, nil)
		} else {
			r = run.apply(uctx, u)
		}
		endUpdateSpan(uspan, r)
		outcome := "failed"
		switch {
		case r.Skipped:
			res.Skipped++
			outcome = "skipped"
		case r.Success:
			res.Successful++
			outcome = "success"
		default:
			res.Failed++
		}
		o.metrics.RecordUpdate(outcome, r.Code)
		res.UpdateResults = append(res.UpdateResults, r)
	}

	res.Documents = run.docs
	o.metrics.RecordBatch(mode)
	span.SetAttributes(
		attribute.Int("fieldmerge.successful", res.Successful),
		attribute.Int("fieldmerge.failed", res.Failed),
		attribute.Int("fieldmerge.skipped", res.Skipped),
	)
	log.Info().
		Str("mode", mode).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("update batch applied")
	return res, nil
}

func endUpdateSpan(span trace.Span, r UpdateResult) {
	if r.FieldPath != "" {
		span.SetAttributes(attribute.String("fieldmerge.normalized_path", r.FieldPath))
	}
	switch {
	case r.Skipped:
		span.SetAttributes(attribute.Bool("fieldmerge.skipped", true))
	case !r.Success:
		span.SetAttributes(attribute.String("fieldmerge.code", r.Code))
		span.SetStatus(codes.Error, r.Error)
	}
	span.End()
}

// batchRun carries the state of one Apply call.
type batchRun struct {
	o          *Orchestrator
	log        zerolog.Logger
	batch      Batch
	authorized map[string]bool
	validIDs   string
	docs       map[string]map[string]any
	pathSets   map[string]map[string]struct{}
}

func newBatchRun(o *Orchestrator, b Batch) *batchRun {
	ids := b.AuthorizedSectionIDs
	if len(ids) == 0 {
		for id := range b.Sections {
			ids = append(ids, id)
		}
	}
	authorized := make(map[string]bool, len(ids))
	for _, id := range ids {
		authorized[id] = true
	}
	sorted := make([]string, 0, len(authorized))
	for id := range authorized {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	valid := strings.Join(sorted, ", ")
	if valid == "" {
		valid = "none"
	}
	return &batchRun{
		o:          o,
		batch:      b,
		authorized: authorized,
		validIDs:   valid,
		docs:       map[string]map[string]any{},
		pathSets:   map[string]map[string]struct{}{},
	}
}

func (r *batchRun) apply(ctx context.Context, u FieldUpdate) (out UpdateResult) {
	o := r.o
	defer func() {
		if p := recover(); p != nil {
			out = r.fail(u, u.FieldPath, fieldmerge.CodeUnexpected, map[string]string{"detail": fmt.Sprint(p)}, nil)
		}
	}()

	// shape check and corruption pre-clean of the raw update
	if err := o.validate.Struct(u); err != nil {
		return r.fail(u, u.FieldPath, fieldmerge.CodeInvalidUpdate, map[string]string{"detail": err.Error()}, nil)
	}
	value, warnings, err := o.guard.SanitizeUpdate(u.FieldPath, u.Value)
	if err != nil {
		return r.fail(u, u.FieldPath, fieldmerge.CodeCorruption, map[string]string{"detail": issueDetail(err)}, nil)
	}

	if !r.authorized[u.SectionID] {
		return r.fail(u, u.FieldPath, fieldmerge.CodeOutOfScope, map[string]string{"valid": r.validIDs}, warnings)
	}
	sec := r.batch.Sections[u.SectionID]
	if sec.Schema == nil {
		msg := o.tr.Message(fieldmerge.CodeNoSchema, map[string]string{"section": u.SectionID})
		r.log.Debug().Str("section_id", u.SectionID).Msg(msg)
		return UpdateResult{
			SectionID: u.SectionID,
			FieldPath: u.FieldPath,
			Code:      fieldmerge.CodeNoSchema,
			Skipped:   true,
			Warnings:  append(warnings, msg),
		}
	}

	keys := append([]string{u.SectionID, sec.Type}, o.sectionKeys...)
	path := NormalizeFieldPath(u.FieldPath, sec.Schema, o.guard.Key(), keys...)

	node, err := sec.Schema.Lookup(path)
	if path != "" {
		if _, ok := r.pathSet(u.SectionID, sec.Schema)[fieldmerge.CanonicalPath(path)]; !ok {
			detail := "path is not declared in the section schema"
			if err != nil {
				detail = issueDetail(err)
			}
			return r.fail(u, path, fieldmerge.CodeUnknownPath, map[string]string{"detail": detail}, warnings)
		}
	}
	if err != nil || node == nil {
		detail := "path does not resolve to a schema field"
		if err != nil {
			detail = issueDetail(err)
		}
		return r.fail(u, path, fieldmerge.CodeUnknownPath, map[string]string{"detail": detail}, warnings)
	}

	if cv, ok := fieldmerge.Coerce(value, node); ok {
		value = cv
	}

	doc, err := r.document(ctx, u.SectionID, sec)
	if err != nil {
		return r.fail(u, path, fieldmerge.CodeStore, map[string]string{"detail": err.Error()}, warnings)
	}
	doc = r.clean(u.SectionID, doc, "pre-merge", &warnings)

	strategy := u.MergeStrategy
	if r.batch.ReplaceMode {
		strategy = fieldmerge.StrategyReplace
	}
	current, _ := fieldmerge.GetFieldValue(doc, path)
	start := time.Now()
	mr := o.engine.Merge(current, value, strategy, node, u.Confidence)
	o.metrics.RecordMerge(time.Since(start))
	warnings = append(warnings, mr.Warnings...)
	if !mr.Success {
		code := mr.Errors.FirstCode()
		if code == "" {
			code = fieldmerge.CodeUnexpected
		}
		detail := strings.Join(mr.Errors.Messages(), "; ")
		res := r.fail(u, path, code, map[string]string{"detail": detail}, warnings)
		res.Conflicts = prefixConflicts(path, mr.Conflicts)
		return res
	}

	next, err := fieldmerge.SetFieldValue(doc, path, mr.MergedValue)
	if err != nil {
		return r.fail(u, path, fieldmerge.CodePathInvalid, map[string]string{"detail": issueDetail(err)}, warnings)
	}
	if u.SourceReference != "" || u.Confidence != nil {
		next = appendProvenance(next, path, u)
	}
	next = r.clean(u.SectionID, next, "post-merge", &warnings)
	if cleaned := o.guard.PreventCircularReferences(next); !sameMap(cleaned, next) {
		warnings = append(warnings, "post-merge: removed nested storage-key entries")
		o.metrics.RecordCorruption(1)
		next = cleaned
	}
	if _, ok := next[o.guard.Key()]; ok {
		next = cloneMap(next)
		delete(next, o.guard.Key())
	}

	if !r.batch.DryRun {
		if err := o.store.Save(ctx, u.SectionID, next); err != nil {
			return r.fail(u, path, fieldmerge.CodeStore, map[string]string{"detail": err.Error()}, warnings)
		}
	}
	r.docs[u.SectionID] = next

	r.log.Debug().
		Str("section_id", u.SectionID).
		Str("field_path", path).
		Str("strategy", string(strategy)).
		Bool("dry_run", r.batch.DryRun).
		Msg("field update applied")
	return UpdateResult{
		SectionID: u.SectionID,
		FieldPath: path,
		Success:   true,
		DryRun:    r.batch.DryRun,
		Warnings:  warnings,
		Conflicts: prefixConflicts(path, mr.Conflicts),
	}
}

// document returns the working document of a section, loading it on first
// use and creating an empty persisted one when none exists yet.
func (r *batchRun) document(ctx context.Context, id string, sec Section) (map[string]any, error) {
	if d, ok := r.docs[id]; ok {
		return d, nil
	}
	if sec.Document != nil {
		r.docs[id] = sec.Document
		return sec.Document, nil
	}
	d, ok, err := r.o.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load section %s: %w", id, err)
	}
	if !ok {
		title, typ := sec.Title, sec.Type
		if title == "" {
			title = id
		}
		if typ == "" {
			typ = "unknown"
		}
		if !r.batch.DryRun {
			if err := r.o.store.Create(ctx, id, title, typ); err != nil {
				return nil, fmt.Errorf("create section %s: %w", id, err)
			}
		}
		r.log.Debug().Str("section_id", id).Str("title", title).Str("section_type", typ).Msg("created empty section document")
	}
	if d == nil {
		d = map[string]any{}
	}
	r.docs[id] = d
	return d, nil
}

func (r *batchRun) clean(id string, doc map[string]any, stage string, warnings *[]string) map[string]any {
	cr := r.o.guard.CleanCorruptedData(doc)
	if !cr.WasCorrupted {
		return doc
	}
	r.o.metrics.RecordCorruption(len(cr.IssuesFound))
	r.log.Warn().
		Str("section_id", id).
		Str("stage", stage).
		Strs("issues", cr.IssuesFound).
		Msg("removed corrupted data")
	for _, is := range cr.IssuesFound {
		*warnings = append(*warnings, stage+": "+is)
	}
	return cr.CleanedData
}

func (r *batchRun) pathSet(id string, schema *fieldmerge.SectionSchema) map[string]struct{} {
	if set, ok := r.pathSets[id]; ok {
		return set
	}
	set := schema.PathSet()
	r.pathSets[id] = set
	return set
}

func (r *batchRun) fail(u FieldUpdate, path, code string, data map[string]string, warnings []string) UpdateResult {
	if data == nil {
		data = map[string]string{}
	}
	data["section"] = u.SectionID
	if _, ok := data["path"]; !ok {
		data["path"] = path
	}
	msg := r.o.tr.Message(code, data)
	r.log.Warn().
		Str("section_id", u.SectionID).
		Str("field_path", u.FieldPath).
		Str("code", code).
		Msg(msg)
	return UpdateResult{
		SectionID: u.SectionID,
		FieldPath: path,
		Error:     msg,
		Code:      code,
		Warnings:  warnings,
	}
}

func issueDetail(err error) string {
	if iss, ok := fieldmerge.AsIssues(err); ok {
		return strings.Join(iss.Messages(), "; ")
	}
	return err.Error()
}

func prefixConflicts(path string, cs []fieldmerge.ConflictInfo) []fieldmerge.ConflictInfo {
	if len(cs) == 0 {
		return nil
	}
	out := make([]fieldmerge.ConflictInfo, len(cs))
	for i, c := range cs {
		c.FieldPath = fieldmerge.JoinPath(path, c.FieldPath)
		out[i] = c
	}
	return out
}

func appendProvenance(doc map[string]any, path string, u FieldUpdate) map[string]any {
	rec := map[string]any{"field_path": path, "artifactId": nil, "confidence": nil}
	if u.SourceReference != "" {
		rec["artifactId"] = u.SourceReference
	}
	if u.Confidence != nil {
		rec["confidence"] = *u.Confidence
	}
	prev, _ := doc[fieldmerge.ProvenanceKey].([]any)
	list := make([]any, 0, len(prev)+1)
	list = append(list, prev...)
	out := cloneMap(doc)
	out[fieldmerge.ProvenanceKey] = append(list, rec)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sameMap(a, b map[string]any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
