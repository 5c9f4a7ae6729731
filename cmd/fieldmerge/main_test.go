package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/fieldmerge/orchestrator"
	"github.com/reoring/fieldmerge/store"
)

const testSchemas = `
key: background
fields:
  - key: notes
    type: string
  - key: concerns
    type: array
`

func run(t *testing.T, args ...string) (string, error) {
	out, _, err := runWithStderr(t, args...)
	return out, err
}

func runWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.json")}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestApply_WritesDocuments(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	updates := writeFile(t, dir, "updates.json", `[
		{"section_id":"background","field_path":"notes","value":"Born at term","merge_strategy":"replace","process_summary":"history"},
		{"section_id":"background","field_path":"concerns","value":["articulation"],"merge_strategy":"append"},
		{"section_id":"other","field_path":"notes","value":"x","merge_strategy":"replace"}
	]`)
	docs := filepath.Join(dir, "report.json")

	out, err := run(t, "apply", "--schemas", schemas, "--documents", docs, "--updates", updates)
	require.NoError(t, err)

	var res orchestrator.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, orchestrator.ModeWrite, res.Mode)
	assert.Equal(t, []string{"history"}, res.ProcessSummaries)

	st, err := store.OpenFile(docs)
	require.NoError(t, err)
	rec := st.Records()["background"]
	assert.Equal(t, "Born at term", rec.StructuredData["notes"])
	assert.Equal(t, []any{"articulation"}, rec.StructuredData["concerns"])
}

func TestApply_DryRunLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	updates := writeFile(t, dir, "updates.json", `[{"section_id":"background","field_path":"notes","value":"x","merge_strategy":"replace"}]`)
	docs := filepath.Join(dir, "report.json")

	out, err := run(t, "apply", "--schemas", schemas, "--documents", docs, "--updates", updates, "--dry-run", "--show-documents")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode": "dryRun"`)
	assert.Contains(t, out, `"notes": "x"`)

	_, statErr := os.Stat(docs)
	assert.True(t, os.IsNotExist(statErr))
}

func TestApply_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	updates := writeFile(t, dir, "updates.json", `[{"section_id":"background","field_path":"notes","value":"x","merge_strategy":"replace"}]`)
	mf := filepath.Join(dir, "fieldmerge.prom")

	_, err := run(t, "apply", "--schemas", schemas, "--documents", filepath.Join(dir, "r.json"), "--updates", updates, "--metrics-file", mf)
	require.NoError(t, err)
	data, err := os.ReadFile(mf)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fieldmerge_updates_total")
	assert.Contains(t, string(data), "fieldmerge_batches_total")
}

func TestApply_RequiresFlags(t *testing.T) {
	_, err := run(t, "apply")
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	out, err := run(t, "paths", "--schemas", schemas)
	require.NoError(t, err)
	assert.Equal(t, "background:\n  notes\n  concerns\n", out)

	_, err = run(t, "paths", "--schemas", schemas, "--section", "missing")
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	docs := writeFile(t, dir, "report.json", `{"bg":{"structured_data":{"notes":"n","structured_data":{"notes":"old"}}}}`)

	out, err := run(t, "clean", "--documents", docs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "bg: "))
	raw, _ := os.ReadFile(docs)
	assert.Contains(t, string(raw), `"old"`)

	_, err = run(t, "clean", "--documents", docs, "--write")
	require.NoError(t, err)
	raw, _ = os.ReadFile(docs)
	assert.NotContains(t, string(raw), `"old"`)

	out, err = run(t, "clean", "--documents", docs)
	require.NoError(t, err)
	assert.Equal(t, "no corruption found\n", out)
}

func TestSchema(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	out, err := run(t, "schema", "--schemas", schemas, "--section", "background")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "background"`)
	assert.Contains(t, out, `"notes"`)
}

func TestApply_Trace(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	updates := writeFile(t, dir, "updates.json", `[{"section_id":"background","field_path":"notes","value":"x","merge_strategy":"replace"}]`)

	_, stderr, err := runWithStderr(t, "apply", "--schemas", schemas, "--documents", filepath.Join(dir, "r.json"), "--updates", updates, "--dry-run", "--trace")
	require.NoError(t, err)
	assert.Contains(t, stderr, "fieldmerge.Apply")
	assert.Contains(t, stderr, "fieldmerge.update")
}

func TestApply_StartingDocument(t *testing.T) {
	dir := t.TempDir()
	schemas := writeFile(t, dir, "schemas.yaml", testSchemas)
	draft := writeFile(t, dir, "draft.yaml", "notes: Referred by teacher\nconcerns: [fluency]\n")
	updates := writeFile(t, dir, "updates.json", `[{"section_id":"background","field_path":"concerns","value":["articulation"],"merge_strategy":"append"}]`)
	docs := filepath.Join(dir, "report.json")

	_, err := run(t, "apply", "--schemas", schemas, "--documents", docs, "--updates", updates, "--document", "background="+draft)
	require.NoError(t, err)

	st, err := store.OpenFile(docs)
	require.NoError(t, err)
	rec := st.Records()["background"]
	assert.Equal(t, "Referred by teacher", rec.StructuredData["notes"])
	assert.Equal(t, []any{"fluency", "articulation"}, rec.StructuredData["concerns"])

	_, err = run(t, "apply", "--schemas", schemas, "--documents", docs, "--updates", updates, "--document", "missing="+draft)
	assert.ErrorContains(t, err, "unknown section")
}
