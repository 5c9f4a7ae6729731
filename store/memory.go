// Package store provides persistence adapters for section documents.
package store

import (
	"context"
	"sort"
	"sync"
)

// SectionMeta describes a stored section.
type SectionMeta struct {
	Title       string `json:"title"`
	SectionType string `json:"section_type"`
}

// Memory keeps section documents in process memory. Documents are copied on
// the way in and out, so callers never share containers with the store.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
	meta map[string]SectionMeta
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]any{}, meta: map[string]SectionMeta{}}
}

// Load returns a copy of the stored document.
func (m *Memory) Load(ctx context.Context, sectionID string) (map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[sectionID]
	if !ok {
		return nil, false, nil
	}
	return copyDocument(d), true, nil
}

// Create stores an empty document unless one already exists.
func (m *Memory) Create(ctx context.Context, sectionID, title, sectionType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[sectionID]; !ok {
		m.docs[sectionID] = map[string]any{}
	}
	m.meta[sectionID] = SectionMeta{Title: title, SectionType: sectionType}
	return nil
}

// Save replaces the stored document. The last write wins.
func (m *Memory) Save(ctx context.Context, sectionID string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[sectionID] = copyDocument(doc)
	return nil
}

// Meta returns the metadata recorded by Create.
func (m *Memory) Meta(sectionID string) (SectionMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[sectionID]
	return meta, ok
}

// SectionIDs lists stored sections in lexical order.
func (m *Memory) SectionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// copyDocument deep-copies maps and slices of a JSON-like document.
func copyDocument(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out, _ := copyValue(d).(map[string]any)
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = copyValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
