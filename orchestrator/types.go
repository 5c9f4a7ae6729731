package orchestrator

import (
	fieldmerge "github.com/reoring/fieldmerge"
)

// FieldUpdate is one externally proposed change. It is untrusted: the
// orchestrator validates, sanitizes and normalizes it before use.
type FieldUpdate struct {
	SectionID       string              `json:"section_id" validate:"required"`
	FieldPath       string              `json:"field_path"`
	Value           any                 `json:"value"`
	MergeStrategy   fieldmerge.Strategy `json:"merge_strategy" validate:"required"`
	SourceReference string              `json:"source_reference,omitempty"`
	Confidence      *float64            `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	ProcessSummary  string              `json:"process_summary"`
}

// Section describes one target section of a batch. Document is the current
// structured document when the caller already holds it; when nil the
// document is loaded from the Store.
type Section struct {
	Schema   *fieldmerge.SectionSchema
	Document map[string]any
	Title    string
	Type     string
}

// Batch is a set of updates applied against one report's sections.
// AuthorizedSectionIDs restricts which sections may be written; when empty
// every key of Sections is authorized.
type Batch struct {
	// ID correlates logs and spans of the batch; a random UUID when empty.
	ID                   string
	Updates              []FieldUpdate
	Sections             map[string]Section
	AuthorizedSectionIDs []string
	DryRun               bool
	// ReplaceMode forces every update to use the replace strategy.
	ReplaceMode bool
}

// Mode names reported in BatchResult.Mode.
const (
	ModeDryRun = "dryRun"
	ModeWrite  = "write"
)

// UpdateResult is the outcome of one update.
type UpdateResult struct {
	SectionID string                    `json:"sectionId"`
	FieldPath string                    `json:"fieldPath,omitempty"`
	Success   bool                      `json:"success"`
	Error     string                    `json:"error,omitempty"`
	Code      string                    `json:"code,omitempty"`
	DryRun    bool                      `json:"dryRun,omitempty"`
	Skipped   bool                      `json:"skipped,omitempty"`
	Warnings  []string                  `json:"warnings,omitempty"`
	Conflicts []fieldmerge.ConflictInfo `json:"conflicts,omitempty"`
}

// BatchResult reports every update of a batch. No update is dropped: each
// input update has exactly one entry in UpdateResults, in input order.
type BatchResult struct {
	BatchID          string                    `json:"batchId"`
	Successful       int                       `json:"successful"`
	Failed           int                       `json:"failed"`
	Skipped          int                       `json:"skipped"`
	ProcessSummaries []string                  `json:"processSummaries"`
	UpdateResults    []UpdateResult            `json:"updateResults"`
	ProposedUpdates  []FieldUpdate             `json:"proposedUpdates"`
	Mode             string                    `json:"mode"`
	Documents        map[string]map[string]any `json:"documents,omitempty"`
}
