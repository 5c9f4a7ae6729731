// Package fieldmerge applies proposed field updates to structured report
// section documents.
//
// It provides:
//
// - A declarative schema model (FieldSchema / SectionSchema) describing a section's shape
// - Path helpers to read and write values at dot/bracket paths without mutating inputs
// - A validator with best-effort primitive coercion (Validate / Coerce)
// - A merge engine implementing the replace, append and merge strategies (Engine / MergeFieldUpdate)
// - A data integrity guard that strips self-nested storage-key corruption (Guard)
//
// Design policy:
// - Keep the pure engine in the root package; batch orchestration lives in orchestrator/.
// - Persistence adapters live under store/, decoding under loader/, the CLI under cmd/fieldmerge.
// - Never mutate caller-owned maps or slices; every write produces a new spine.
//
// Typical usage:
//
//	schema := &fieldmerge.FieldSchema{Key: "notes", Type: fieldmerge.TypeString}
//	res := fieldmerge.MergeFieldUpdate("First sentence", "Second sentence", fieldmerge.StrategyAppend, schema, nil)
//	// res.MergedValue == "First sentence. Second sentence"
package fieldmerge
