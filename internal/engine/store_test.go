package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

func TestCacheRoundTripAcrossWorkspaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache", "results.msgpack")

	ws := workspace.New()
	a := addProject(t, ws, dir, "a")
	cache := NewResultCache()
	want := diag.Diagnostic{
		Path:     filepath.Join(dir, "a", "a.go"),
		Severity: diag.SevError,
		ID:       "SEM3001",
		Message:  "undefined: b.B",
		Range: source.Range{
			Span:  source.Span{Start: 10, End: 13},
			Start: source.LineCol{Line: 2, Col: 3},
			End:   source.LineCol{Line: 2, Col: 6},
		},
	}
	cache.Store(ProjectResult{Key: a, Name: "a", Diagnostics: []diag.Diagnostic{want}})
	require.NoError(t, SaveCache(path, cache, ws.Snapshot()))

	// project keys are per process: a fresh workspace matches by name and dir
	ws2 := workspace.New()
	a2 := addProject(t, ws2, dir, "a")
	addProject(t, ws2, dir, "other")
	cache2 := NewResultCache()
	n, err := LoadCache(path, cache2, ws2.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := cache2.Get([]workspace.ProjectID{a2})
	require.Len(t, got, 1)
	want.Project = "a"
	assert.Equal(t, want, got[0].Diagnostic)
}

func TestLoadCacheMissingFile(t *testing.T) {
	n, err := LoadCache(filepath.Join(t.TempDir(), "none"), NewResultCache(), workspace.New().Snapshot())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadCacheSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.msgpack")
	data, err := msgpack.Marshal(&cachePayload{Schema: cacheSchemaVersion + 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = LoadCache(path, NewResultCache(), workspace.New().Snapshot())
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadCacheKeepsFresherEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.msgpack")
	ws := workspace.New()
	a := addProject(t, ws, dir, "a")

	old := NewResultCache()
	old.Store(ProjectResult{Key: a, Name: "a", Diagnostics: []diag.Diagnostic{{Message: "stale"}}})
	require.NoError(t, SaveCache(path, old, ws.Snapshot()))

	cache := NewResultCache()
	cache.Store(ProjectResult{Key: a, Name: "a", Diagnostics: []diag.Diagnostic{{Message: "fresh"}}})
	n, err := LoadCache(path, cache, ws.Snapshot())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"fresh"}, messages(cache.Get([]workspace.ProjectID{a})))
}
