package fieldmerge

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultConflictThreshold is the confidence below which replacing an
	// existing value is flagged as a conflict.
	DefaultConflictThreshold = 0.7
	// DefaultMaxDepth bounds recursion of object merges.
	DefaultMaxDepth = 32
)

// EngineOptions configures an Engine. Zero values select the defaults.
type EngineOptions struct {
	ConflictThreshold float64
	MaxDepth          int
	Now               func() time.Time
}

// Engine merges field updates under a schema. An Engine holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	threshold float64
	maxDepth  int
	now       func() time.Time
}

// NewEngine returns an Engine with opts applied over the defaults.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{threshold: DefaultConflictThreshold, maxDepth: DefaultMaxDepth, now: time.Now}
	if opts.ConflictThreshold > 0 {
		e.threshold = opts.ConflictThreshold
	}
	if opts.MaxDepth > 0 {
		e.maxDepth = opts.MaxDepth
	}
	if opts.Now != nil {
		e.now = opts.Now
	}
	return e
}

// ConflictThreshold returns the configured threshold.
func (e *Engine) ConflictThreshold() float64 { return e.threshold }

var defaultEngine = NewEngine(EngineOptions{})

// MergeFieldUpdate merges newValue into current using the default Engine.
func MergeFieldUpdate(current, newValue any, strategy Strategy, schema *FieldSchema, confidence *float64) MergeResult {
	return defaultEngine.Merge(current, newValue, strategy, schema, confidence)
}

// Merge combines current and newValue according to strategy and schema.
// Merge never panics: any internal failure yields a failed result whose
// MergedValue is current, so callers can always fall back to the existing
// value.
func (e *Engine) Merge(current, newValue any, strategy Strategy, schema *FieldSchema, confidence *float64) (res MergeResult) {
	meta := MergeMetadata{OriginalValue: current, Strategy: strategy, Timestamp: e.now(), Confidence: confidence}
	defer func() {
		if r := recover(); r != nil {
			res = MergeResult{
				MergedValue: current,
				Warnings:    []string{fmt.Sprintf("merge failed: %v", r)},
				Errors:      singleIssue("", CodeUnexpected, fmt.Sprint(r)),
				Metadata:    meta,
			}
		}
	}()
	if schema == nil {
		res = rejected(current, "", CodeNoSchema, "no schema provided for merge")
		res.Metadata = meta
		return res
	}
	m := &merger{engine: e, confidence: confidence}
	res = m.merge(current, newValue, strategy, schema, "", 0)
	res.Metadata = meta
	return res
}

type merger struct {
	engine     *Engine
	confidence *float64
}

func (m *merger) merge(current, newValue any, strategy Strategy, schema *FieldSchema, path string, depth int) MergeResult {
	if depth > m.engine.maxDepth {
		return rejected(current, path, CodeDepthExceeded, fmt.Sprintf("maximum merge depth %d exceeded", m.engine.maxDepth))
	}
	switch strategy {
	case StrategyReplace:
		return m.replace(current, newValue, schema, path)
	case StrategyAppend:
		return m.append(current, newValue, schema, path)
	case StrategyMerge:
		return m.mergeStrategy(current, newValue, schema, path, depth)
	default:
		return rejected(current, path, CodeUnknownStrategy, fmt.Sprintf("Unknown merge strategy: %s", strategy))
	}
}

func (m *merger) replace(current, newValue any, schema *FieldSchema, path string) MergeResult {
	vr := Validate(newValue, schema)
	if !vr.Valid {
		res := MergeResult{MergedValue: current, Warnings: vr.Warnings}
		for _, it := range vr.Errors {
			it.Path = path
			res.Errors = AppendIssues(res.Errors, it)
			res.Warnings = append(res.Warnings, it.Message)
			res.Conflicts = append(res.Conflicts, validationConflict(path, it, current, newValue))
		}
		return res
	}
	res := MergeResult{Success: true, MergedValue: vr.Value, Warnings: vr.Warnings}
	if c := m.confidence; c != nil && *c < m.engine.threshold && current != nil {
		res.Conflicts = append(res.Conflicts, ConflictInfo{
			FieldPath:           path,
			ConflictType:        ConflictValueConflict,
			CurrentValue:        current,
			NewValue:            vr.Value,
			SuggestedResolution: "review the proposed value before accepting it",
			Description:         fmt.Sprintf("Low confidence (%.2f) replacement of existing value", *c),
		})
	}
	return res
}

func (m *merger) append(current, newValue any, schema *FieldSchema, path string) MergeResult {
	switch schema.Type {
	case TypeArray:
		return appendArray(current, newValue)
	case TypeString:
		return appendString(current, newValue)
	default:
		res := m.replace(current, newValue, schema, path)
		res.Warnings = append([]string{fmt.Sprintf("Cannot append to %s, falling back to replace strategy", schema.Type)}, res.Warnings...)
		return res
	}
}

func (m *merger) mergeStrategy(current, newValue any, schema *FieldSchema, path string, depth int) MergeResult {
	switch schema.Type {
	case TypeObject:
		if len(schema.Children) > 0 {
			if incoming, ok := newValue.(map[string]any); ok {
				return m.mergeObject(current, incoming, schema, path, depth)
			}
		}
	case TypeArray:
		return appendArray(current, newValue)
	}
	res := m.replace(current, newValue, schema, path)
	res.Warnings = append([]string{fmt.Sprintf("Cannot merge %s, falling back to replace strategy", schema.Type)}, res.Warnings...)
	return res
}

// mergeObject merges the keys of incoming into a shallow copy of current.
// Keys described by the schema are merged recursively; a failed child keeps
// its existing value. Keys unknown to the schema are copied through.
func (m *merger) mergeObject(current any, incoming map[string]any, schema *FieldSchema, path string, depth int) MergeResult {
	res := MergeResult{Success: true}
	base := map[string]any{}
	switch cur := current.(type) {
	case map[string]any:
		base = cloneMap(cur)
	case nil:
	default:
		res.Warnings = append(res.Warnings, fmt.Sprintf("existing value at %q is a %s, starting from an empty object", path, kindOf(cur)))
	}

	for i := range schema.Children {
		child := &schema.Children[i]
		nv, ok := incoming[child.Key]
		if !ok {
			continue
		}
		cp := JoinPath(path, child.Key)
		cr := m.merge(base[child.Key], nv, StrategyMerge, child, cp, depth+1)
		res.Conflicts = append(res.Conflicts, cr.Conflicts...)
		res.Warnings = append(res.Warnings, cr.Warnings...)
		if !cr.Success {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Failed to merge field %s, keeping existing value", cp))
			continue
		}
		base[child.Key] = cr.MergedValue
	}

	var unknown []string
	for k := range incoming {
		if _, ok := schema.Child(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		base[k] = incoming[k]
		res.Warnings = append(res.Warnings, fmt.Sprintf("Field %s not found in schema, copied without validation", JoinPath(path, k)))
	}

	res.MergedValue = base
	return res
}

// appendArray appends the elements of newValue that are not deep-equal to an
// element already present. Order is preserved and the first occurrence wins.
func appendArray(current, newValue any) MergeResult {
	res := MergeResult{Success: true}
	existing, ok := toAnySlice(current)
	if !ok && current != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("existing value is a %s, starting a new array", kindOf(current)))
	}
	if newValue == nil {
		res.MergedValue = append([]any{}, existing...)
		res.Warnings = append(res.Warnings, "Nothing to append")
		return res
	}
	incoming, ok := toAnySlice(newValue)
	if !ok {
		incoming = []any{newValue}
	}

	out := make([]any, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	skipped := 0
	for _, item := range incoming {
		if containsDeepEqual(out, item) {
			skipped++
			continue
		}
		out = append(out, item)
	}
	if skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Skipped %d duplicate item(s)", skipped))
	}
	res.MergedValue = out
	return res
}

func containsDeepEqual(list []any, v any) bool {
	for _, it := range list {
		if DeepEqual(it, v) {
			return true
		}
	}
	return false
}

func appendString(current, newValue any) MergeResult {
	cur, err := stringify(current)
	if err != nil {
		return rejected(current, "", CodeInvalidType, fmt.Sprintf("existing value cannot be read as text: %v", err))
	}
	add, err := stringify(newValue)
	if err != nil {
		return rejected(current, "", CodeInvalidType, fmt.Sprintf("appended value cannot be read as text: %v", err))
	}
	res := MergeResult{Success: true}
	if _, ok := newValue.(string); !ok && newValue != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("coerced %s to string", kindOf(newValue)))
	}
	if add == "" {
		res.MergedValue = cur
		res.Warnings = append(res.Warnings, "Nothing to append")
		return res
	}
	res.MergedValue = cur + separatorFor(cur) + add
	return res
}

// separatorFor picks the text inserted between existing prose and an
// appended fragment. Nothing is inserted after sentence-final punctuation,
// a newline or a space; a single space follows a comma; otherwise the
// existing text is closed with ". ".
func separatorFor(cur string) string {
	if cur == "" {
		return ""
	}
	switch cur[len(cur)-1] {
	case '.', '!', '?', '\n', ' ':
		return ""
	case ',':
		return " "
	default:
		return ". "
	}
}

func rejected(current any, path, code, msg string) MergeResult {
	return MergeResult{
		MergedValue: current,
		Warnings:    []string{msg},
		Errors:      singleIssue(path, code, msg),
	}
}

func validationConflict(path string, it Issue, current, newValue any) ConflictInfo {
	c := ConflictInfo{
		FieldPath:    path,
		CurrentValue: current,
		NewValue:     newValue,
		Description:  it.Message,
	}
	switch it.Code {
	case CodeInvalidType:
		c.ConflictType = ConflictTypeMismatch
		c.SuggestedResolution = "provide a value of the declared type"
	default:
		c.ConflictType = ConflictSchemaViolation
		c.SuggestedResolution = "provide a value that satisfies the field constraints"
	}
	return c
}
