package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/fieldmerge/orchestrator"
	"github.com/reoring/fieldmerge/store"
)

var _ orchestrator.Store = (*store.Memory)(nil)

func TestMemory_LoadCreateSave(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	doc, ok, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, doc)

	require.NoError(t, m.Create(ctx, "s1", "Background", "background"))
	doc, ok, err = m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, doc)

	meta, ok := m.Meta("s1")
	require.True(t, ok)
	assert.Equal(t, "Background", meta.Title)
	assert.Equal(t, "background", meta.SectionType)

	require.NoError(t, m.Save(ctx, "s1", map[string]any{"notes": "a"}))
	doc, _, err = m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"notes": "a"}, doc)
	assert.Equal(t, []string{"s1"}, m.SectionIDs())
}

func TestMemory_CopiesDocuments(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	in := map[string]any{"list": []any{"a"}, "obj": map[string]any{"k": "v"}}
	require.NoError(t, m.Save(ctx, "s1", in))

	in["list"].([]any)[0] = "changed"
	in["obj"].(map[string]any)["k"] = "changed"

	out, _, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", out["list"].([]any)[0])
	assert.Equal(t, "v", out["obj"].(map[string]any)["k"])

	out["obj"].(map[string]any)["k"] = "mutated"
	again, _, _ := m.Load(ctx, "s1")
	assert.Equal(t, "v", again["obj"].(map[string]any)["k"])
}

func TestMemory_CreateKeepsExistingDocument(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Save(ctx, "s1", map[string]any{"x": "1"}))
	require.NoError(t, m.Create(ctx, "s1", "t", "k"))
	doc, _, _ := m.Load(ctx, "s1")
	assert.Equal(t, map[string]any{"x": "1"}, doc)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := store.NewMemory()
	_, _, err := m.Load(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Save(ctx, "s1", map[string]any{}), context.Canceled)
}
