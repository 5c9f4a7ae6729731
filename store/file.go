package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	fieldmerge "github.com/reoring/fieldmerge"
)

// Record is the persisted form of one section in a File store. The document
// lives under the storage key, mirroring the report database layout.
type Record struct {
	Title          string         `json:"title,omitempty"`
	SectionType    string         `json:"section_type,omitempty"`
	StructuredData map[string]any `json:"structured_data"`
}

// File persists all sections of one report in a single JSON file keyed by
// section ID. Every Create and Save rewrites the file atomically.
type File struct {
	path    string
	mu      sync.RWMutex
	records map[string]Record
}

// OpenFile loads path, or starts empty when the file does not exist yet.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, records: map[string]Record{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	recs, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	f.records = recs
	return f, nil
}

// DecodeRecords parses the JSON layout used by File. Numbers are kept as
// json.Number so that values round-trip unchanged.
func DecodeRecords(data []byte) (map[string]Record, error) {
	recs := map[string]Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return recs, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&recs); err != nil {
		return nil, err
	}
	for id, r := range recs {
		if r.StructuredData == nil {
			r.StructuredData = map[string]any{}
			recs[id] = r
		}
	}
	return recs, nil
}

// Load returns a copy of the stored document.
func (f *File) Load(ctx context.Context, sectionID string) (map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.records[sectionID]
	if !ok {
		return nil, false, nil
	}
	return copyDocument(r.StructuredData), true, nil
}

// Create adds an empty section unless it already exists.
func (f *File) Create(ctx context.Context, sectionID, title, sectionType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[sectionID]
	if !ok {
		r.StructuredData = map[string]any{}
	}
	r.Title, r.SectionType = title, sectionType
	f.records[sectionID] = r
	return f.flushLocked()
}

// Save replaces the document of a section and rewrites the file.
func (f *File) Save(ctx context.Context, sectionID string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[sectionID]
	r.StructuredData = copyDocument(doc)
	if r.StructuredData == nil {
		r.StructuredData = map[string]any{}
	}
	f.records[sectionID] = r
	return f.flushLocked()
}

// Records returns a snapshot of every section.
func (f *File) Records() map[string]Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Record, len(f.records))
	for id, r := range f.records {
		r.StructuredData = copyDocument(r.StructuredData)
		out[id] = r
	}
	return out
}

// SectionIDs lists stored sections in lexical order.
func (f *File) SectionIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clean runs the integrity guard over every stored document and persists
// the cleaned documents. It returns the issues found per section.
func (f *File) Clean(ctx context.Context, g *fieldmerge.Guard) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	found := map[string][]string{}
	for id, r := range f.records {
		cr := g.CleanCorruptedData(r.StructuredData)
		if !cr.WasCorrupted {
			continue
		}
		r.StructuredData = cr.CleanedData
		f.records[id] = r
		found[id] = cr.IssuesFound
	}
	if len(found) == 0 {
		return found, nil
	}
	return found, f.flushLocked()
}

func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".fieldmerge-*.json")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}
