package fieldmerge

import (
	"fmt"
	"reflect"
)

// DefaultStorageKey is the key under which the persistence layer stores a
// section's structured document. A document must never contain it.
const DefaultStorageKey = "structured_data"

// ProvenanceKey is the reserved document key holding provenance records.
const ProvenanceKey = "__provenance"

// Guard removes the self-nesting corruption pattern: a document holding a
// nested copy of itself under its own storage key. It only removes keys
// matching that signature and leaves everything else intact.
type Guard struct {
	StorageKey string
}

// NewGuard returns a Guard for storageKey, or DefaultStorageKey when empty.
func NewGuard(storageKey string) *Guard {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &Guard{StorageKey: storageKey}
}

// Key returns the storage key the guard protects.
func (g *Guard) Key() string {
	if g == nil || g.StorageKey == "" {
		return DefaultStorageKey
	}
	return g.StorageKey
}

// CleanResult reports what CleanCorruptedData removed.
type CleanResult struct {
	CleanedData  map[string]any
	WasCorrupted bool
	IssuesFound  []string
}

// CleanCorruptedData removes a top-level storage-key entry from doc. doc is
// not modified; when nothing is removed CleanedData is doc itself. Running it
// on its own output is a no-op.
func (g *Guard) CleanCorruptedData(doc map[string]any) CleanResult {
	key := g.Key()
	nested, ok := doc[key]
	if !ok {
		return CleanResult{CleanedData: doc}
	}
	out := cloneMap(doc)
	delete(out, key)
	depth := 1
	for cur := nested; ; depth++ {
		m, ok := cur.(map[string]any)
		if !ok {
			break
		}
		if cur, ok = m[key]; !ok {
			break
		}
	}
	return CleanResult{
		CleanedData:  out,
		WasCorrupted: true,
		IssuesFound:  []string{fmt.Sprintf("removed nested %q key (self-nesting depth %d)", key, depth)},
	}
}

// PreventCircularReferences returns a copy of doc without storage-key entries
// at any depth and without containers that contain themselves. Containers
// that need no change are shared with doc.
func (g *Guard) PreventCircularReferences(doc map[string]any) map[string]any {
	w := &cycleWalker{key: g.Key(), ancestors: map[uintptr]bool{}}
	out, _ := w.walk(doc).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

type cycleWalker struct {
	key       string
	ancestors map[uintptr]bool
}

// cycleMarker marks a value that must be dropped from its parent.
type cycleMarker struct{}

func (w *cycleWalker) walk(v any) any {
	switch t := v.(type) {
	case map[string]any:
		id := reflect.ValueOf(t).Pointer()
		if w.ancestors[id] {
			return cycleMarker{}
		}
		w.ancestors[id] = true
		defer delete(w.ancestors, id)
		var out map[string]any
		for k, child := range t {
			if k == w.key {
				if out == nil {
					out = cloneMap(t)
				}
				delete(out, k)
				continue
			}
			nc := w.walk(child)
			if _, drop := nc.(cycleMarker); drop {
				if out == nil {
					out = cloneMap(t)
				}
				delete(out, k)
				continue
			}
			if !sameContainer(nc, child) {
				if out == nil {
					out = cloneMap(t)
				}
				out[k] = nc
			}
		}
		if out == nil {
			return t
		}
		return out
	case []any:
		if len(t) == 0 {
			return t
		}
		id := reflect.ValueOf(t).Pointer()
		if w.ancestors[id] {
			return cycleMarker{}
		}
		w.ancestors[id] = true
		defer delete(w.ancestors, id)
		var out []any
		changed := false
		for i, child := range t {
			nc := w.walk(child)
			_, drop := nc.(cycleMarker)
			if !changed && (drop || !sameContainer(nc, child)) {
				changed = true
				out = append(make([]any, 0, len(t)), t[:i]...)
			}
			if !changed || drop {
				continue
			}
			out = append(out, nc)
		}
		if !changed {
			return t
		}
		return out
	default:
		return v
	}
}

// sameContainer reports whether a and b are the identical value; containers
// compare by identity.
func sameContainer(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && reflect.ValueOf(x).Pointer() == reflect.ValueOf(y).Pointer()
	case []any:
		y, ok := b.([]any)
		return ok && len(x) == len(y) && (len(x) == 0 || &x[0] == &y[0])
	}
	return true
}

// SanitizeUpdate inspects one proposed update before it is applied. A field
// path that repeats the storage key is rejected; storage-key entries inside
// an object value are stripped. The returned warnings describe removals.
func (g *Guard) SanitizeUpdate(fieldPath string, value any) (any, []string, error) {
	key := g.Key()
	count := 0
	for _, seg := range SplitPath(fieldPath) {
		if seg == key {
			count++
		}
	}
	if count > 1 {
		return value, nil, singleIssue(fieldPath, CodeCorruption,
			fmt.Sprintf("field path repeats %q %d times", key, count))
	}
	m, ok := value.(map[string]any)
	if !ok || len(m) == 0 {
		return value, nil, nil
	}
	cleaned := g.PreventCircularReferences(m)
	if reflect.ValueOf(cleaned).Pointer() == reflect.ValueOf(m).Pointer() {
		return value, nil, nil
	}
	return cleaned, []string{fmt.Sprintf("removed %q entries from proposed value", key)}, nil
}
