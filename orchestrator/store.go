package orchestrator

import "context"

// Store is the persistence port for section documents. Implementations own
// concurrency control across batches; the orchestrator only reads a section
// once per batch and writes it after each successful update.
type Store interface {
	// Load returns the stored document of a section and whether it exists.
	Load(ctx context.Context, sectionID string) (map[string]any, bool, error)
	// Create makes an empty document for a section.
	Create(ctx context.Context, sectionID, title, sectionType string) error
	// Save replaces the stored document of a section.
	Save(ctx context.Context, sectionID string, doc map[string]any) error
}
