package fieldmerge_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	fm "github.com/reoring/fieldmerge"
)

var (
	stringSchema   = &fm.FieldSchema{Key: "notes", Type: fm.TypeString}
	numberSchema   = &fm.FieldSchema{Key: "score", Type: fm.TypeNumber}
	arraySchema    = &fm.FieldSchema{Key: "items", Type: fm.TypeArray}
	requiredString = &fm.FieldSchema{Key: "name", Type: fm.TypeString, Required: true}
	scoreSchema    = &fm.FieldSchema{Key: "result", Type: fm.TypeObject, Children: []fm.FieldSchema{
		{Key: "score", Type: fm.TypeNumber},
		{Key: "notes", Type: fm.TypeString},
	}}
)

func ptr(f float64) *float64 { return &f }

func TestMerge_ReplaceIdempotent(t *testing.T) {
	cases := []struct {
		v      any
		schema *fm.FieldSchema
	}{
		{"text", stringSchema},
		{85, numberSchema},
		{1.5, numberSchema},
		{true, &fm.FieldSchema{Key: "b", Type: fm.TypeBoolean}},
		{[]any{"a", "b"}, arraySchema},
		{map[string]any{"score": 1.0, "notes": "x"}, scoreSchema},
	}
	for _, c := range cases {
		res := fm.MergeFieldUpdate(c.v, c.v, fm.StrategyReplace, c.schema, nil)
		if !res.Success {
			t.Fatalf("replace %v failed: %v", c.v, res.Errors)
		}
		if !reflect.DeepEqual(res.MergedValue, c.v) {
			t.Fatalf("replace not idempotent: got %#v want %#v", res.MergedValue, c.v)
		}
	}
}

func TestMerge_AppendDedup(t *testing.T) {
	res := fm.MergeFieldUpdate([]any{"a", "b"}, []any{"b", "c"}, fm.StrategyAppend, arraySchema, nil)
	if !res.Success {
		t.Fatalf("append failed: %v", res.Errors)
	}
	want := []any{"a", "b", "c"}
	if !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v want %#v", res.MergedValue, want)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "duplicate") {
		t.Fatalf("expected duplicate warning, got %v", res.Warnings)
	}
}

func TestMerge_AppendDedupWithinIncoming(t *testing.T) {
	res := fm.MergeFieldUpdate(nil, []any{"x", "x", map[string]any{"k": 1}, map[string]any{"k": 1.0}}, fm.StrategyAppend, arraySchema, nil)
	want := []any{"x", map[string]any{"k": 1}}
	if !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v want %#v", res.MergedValue, want)
	}
}

func TestMerge_AppendSingleToArray(t *testing.T) {
	res := fm.MergeFieldUpdate([]any{"item1"}, "item2", fm.StrategyAppend, arraySchema, nil)
	want := []any{"item1", "item2"}
	if !res.Success || !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v (success=%v) want %#v", res.MergedValue, res.Success, want)
	}
}

func TestMerge_AppendDoesNotMutateCurrent(t *testing.T) {
	cur := make([]any, 1, 4)
	cur[0] = "a"
	res := fm.MergeFieldUpdate(cur, []any{"b"}, fm.StrategyAppend, arraySchema, nil)
	if len(cur) != 1 || cur[:2][1] != nil {
		t.Fatalf("current was modified: %#v", cur[:2])
	}
	if got := res.MergedValue.([]any); len(got) != 2 {
		t.Fatalf("got %#v", got)
	}
}

func TestMerge_StringAppendSeparator(t *testing.T) {
	cases := []struct{ cur, add, want string }{
		{"First sentence", "Second sentence", "First sentence. Second sentence"},
		{"First sentence.", "Second sentence", "First sentence.Second sentence"},
		{"Really?", "Yes", "Really?Yes"},
		{"Wow!", "Yes", "Wow!Yes"},
		{"one,", "two", "one, two"},
		{"line\n", "next", "line\nnext"},
		{"", "start", "start"},
	}
	for _, c := range cases {
		res := fm.MergeFieldUpdate(c.cur, c.add, fm.StrategyAppend, stringSchema, nil)
		if !res.Success || res.MergedValue != c.want {
			t.Fatalf("append %q+%q: got %#v want %q", c.cur, c.add, res.MergedValue, c.want)
		}
	}
}

func TestMerge_StringAppendNothing(t *testing.T) {
	res := fm.MergeFieldUpdate("kept", "", fm.StrategyAppend, stringSchema, nil)
	if !res.Success || res.MergedValue != "kept" {
		t.Fatalf("got %#v", res.MergedValue)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "Nothing to append" {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestMerge_AppendFallsBackToReplace(t *testing.T) {
	res := fm.MergeFieldUpdate(1, 2, fm.StrategyAppend, numberSchema, nil)
	if !res.Success || res.MergedValue != 2 {
		t.Fatalf("got %#v", res.MergedValue)
	}
	if !strings.Contains(res.Warnings[0], "falling back to replace") {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestMerge_ObjectPreservesSiblings(t *testing.T) {
	cur := map[string]any{"score": 85, "notes": "Good"}
	res := fm.MergeFieldUpdate(cur, map[string]any{"score": 92}, fm.StrategyMerge, scoreSchema, nil)
	want := map[string]any{"score": 92, "notes": "Good"}
	if !res.Success || !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v want %#v", res.MergedValue, want)
	}
	if cur["score"] != 85 {
		t.Fatalf("current was modified: %#v", cur)
	}
}

func TestMerge_NestedObject(t *testing.T) {
	schema := &fm.FieldSchema{Key: "root", Type: fm.TypeObject, Children: []fm.FieldSchema{
		{Key: "info", Type: fm.TypeObject, Children: []fm.FieldSchema{
			{Key: "name", Type: fm.TypeString},
			{Key: "age", Type: fm.TypeNumber},
		}},
	}}
	cur := map[string]any{"info": map[string]any{"name": "John", "age": 10}}
	res := fm.MergeFieldUpdate(cur, map[string]any{"info": map[string]any{"age": 11}}, fm.StrategyMerge, schema, nil)
	want := map[string]any{"info": map[string]any{"name": "John", "age": 11}}
	if !res.Success || !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v want %#v", res.MergedValue, want)
	}
}

func TestMerge_ObjectChildFailureKeepsExisting(t *testing.T) {
	cur := map[string]any{"score": 85, "notes": "Good"}
	res := fm.MergeFieldUpdate(cur, map[string]any{"score": "bad", "notes": "Better"}, fm.StrategyMerge, scoreSchema, nil)
	want := map[string]any{"score": 85, "notes": "Better"}
	if !res.Success || !reflect.DeepEqual(res.MergedValue, want) {
		t.Fatalf("got %#v want %#v", res.MergedValue, want)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].FieldPath != "score" || res.Conflicts[0].ConflictType != fm.ConflictTypeMismatch {
		t.Fatalf("conflicts: %#v", res.Conflicts)
	}
}

func TestMerge_ObjectUnknownKeysCopied(t *testing.T) {
	res := fm.MergeFieldUpdate(nil, map[string]any{"extra": 1}, fm.StrategyMerge, scoreSchema, nil)
	if !res.Success || !reflect.DeepEqual(res.MergedValue, map[string]any{"extra": 1}) {
		t.Fatalf("got %#v", res.MergedValue)
	}
	if !strings.Contains(strings.Join(res.Warnings, "\n"), "not found in schema") {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestMerge_NumberCoercion(t *testing.T) {
	res := fm.MergeFieldUpdate(0, "85", fm.StrategyReplace, numberSchema, nil)
	if !res.Success || res.MergedValue != 85.0 {
		t.Fatalf("got %#v (success=%v)", res.MergedValue, res.Success)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "coerced") {
		t.Fatalf("expected coercion warning, got %v", res.Warnings)
	}
}

func TestMerge_TypeRejectionKeepsCurrent(t *testing.T) {
	res := fm.MergeFieldUpdate(85, "invalid", fm.StrategyReplace, numberSchema, nil)
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.MergedValue != 85 {
		t.Fatalf("original not preserved: %#v", res.MergedValue)
	}
	if res.Errors.FirstCode() != fm.CodeInvalidType {
		t.Fatalf("code: %s", res.Errors.FirstCode())
	}
}

func TestMerge_RequiredRejection(t *testing.T) {
	res := fm.MergeFieldUpdate("existing", nil, fm.StrategyReplace, requiredString, nil)
	if res.Success || res.MergedValue != "existing" {
		t.Fatalf("got %#v (success=%v)", res.MergedValue, res.Success)
	}
	if res.Errors.FirstCode() != fm.CodeRequired {
		t.Fatalf("code: %s", res.Errors.FirstCode())
	}
}

func TestMerge_LowConfidenceConflict(t *testing.T) {
	res := fm.MergeFieldUpdate("existing", "new", fm.StrategyReplace, stringSchema, ptr(0.5))
	if !res.Success || res.MergedValue != "new" {
		t.Fatalf("got %#v", res.MergedValue)
	}
	if len(res.Conflicts) == 0 || !strings.Contains(res.Conflicts[0].Description, "Low confidence") {
		t.Fatalf("conflicts: %#v", res.Conflicts)
	}
	if res.Conflicts[0].ConflictType != fm.ConflictValueConflict {
		t.Fatalf("type: %s", res.Conflicts[0].ConflictType)
	}

	res = fm.MergeFieldUpdate(nil, "new", fm.StrategyReplace, stringSchema, ptr(0.5))
	if len(res.Conflicts) != 0 {
		t.Fatalf("no conflict expected without an existing value: %#v", res.Conflicts)
	}
}

func TestMerge_UnknownStrategy(t *testing.T) {
	res := fm.MergeFieldUpdate("a", "b", fm.Strategy("overwrite"), stringSchema, nil)
	if res.Success || res.MergedValue != "a" {
		t.Fatalf("got %#v", res.MergedValue)
	}
	if res.Errors.FirstCode() != fm.CodeUnknownStrategy || !strings.Contains(res.Warnings[0], "Unknown merge strategy") {
		t.Fatalf("result: %#v", res)
	}
}

func TestMerge_NilSchema(t *testing.T) {
	res := fm.MergeFieldUpdate("a", "b", fm.StrategyReplace, nil, nil)
	if res.Success || res.Errors.FirstCode() != fm.CodeNoSchema {
		t.Fatalf("result: %#v", res)
	}
}

func TestEngine_OptionsAndMetadata(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e := fm.NewEngine(fm.EngineOptions{ConflictThreshold: 0.4, Now: func() time.Time { return at }})
	if e.ConflictThreshold() != 0.4 {
		t.Fatalf("threshold: %v", e.ConflictThreshold())
	}
	res := e.Merge("old", "new", fm.StrategyReplace, stringSchema, ptr(0.5))
	if len(res.Conflicts) != 0 {
		t.Fatalf("0.5 is above the configured threshold: %#v", res.Conflicts)
	}
	if !res.Metadata.Timestamp.Equal(at) || res.Metadata.OriginalValue != "old" || res.Metadata.Strategy != fm.StrategyReplace {
		t.Fatalf("metadata: %#v", res.Metadata)
	}
}

func TestEngine_DepthGuard(t *testing.T) {
	leaf := fm.FieldSchema{Key: "v", Type: fm.TypeString}
	schema := fm.FieldSchema{Key: "l3", Type: fm.TypeObject, Children: []fm.FieldSchema{leaf}}
	for _, k := range []string{"l2", "l1"} {
		schema = fm.FieldSchema{Key: k, Type: fm.TypeObject, Children: []fm.FieldSchema{schema}}
	}
	in := map[string]any{"l2": map[string]any{"l3": map[string]any{"v": "x"}}}

	e := fm.NewEngine(fm.EngineOptions{MaxDepth: 1})
	res := e.Merge(nil, in, fm.StrategyMerge, &schema, nil)
	if got, _ := fm.GetFieldValue(res.MergedValue, "l2.l3.v"); got != nil {
		t.Fatalf("value beyond the depth limit was merged: %#v", res.MergedValue)
	}
	if !strings.Contains(strings.Join(res.Warnings, "\n"), "maximum merge depth") {
		t.Fatalf("warnings: %v", res.Warnings)
	}

	res = fm.NewEngine(fm.EngineOptions{}).Merge(nil, in, fm.StrategyMerge, &schema, nil)
	if got, _ := fm.GetFieldValue(res.MergedValue, "l2.l3.v"); got != "x" {
		t.Fatalf("got %#v", res.MergedValue)
	}
}
