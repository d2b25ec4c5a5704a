package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

func TestResultCacheReplacesWholesale(t *testing.T) {
	c := NewResultCache()
	k := workspace.NewProjectID()

	c.Store(ProjectResult{Key: k, Name: "app", Diagnostics: []diag.Diagnostic{
		{Path: "/a.go", ID: "SEM3000", Message: "a0"},
		{Path: "/b.go", ID: "SEM3000", Message: "b0"},
	}})
	c.Store(ProjectResult{Key: k, Name: "app", Diagnostics: []diag.Diagnostic{
		{Path: "/a.go", ID: "SEM3000", Message: "a1"},
	}})

	got := c.Get([]workspace.ProjectID{k})
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Diagnostic.Message)
	assert.Equal(t, "app", got[0].ProjectName)
	assert.Equal(t, "app", got[0].Diagnostic.Project)
}

func TestResultCacheGetSkipsUnknownKeys(t *testing.T) {
	c := NewResultCache()
	a, b := workspace.NewProjectID(), workspace.NewProjectID()
	c.Store(ProjectResult{Key: a, Name: "a", Diagnostics: []diag.Diagnostic{{Message: "x"}}})
	c.Store(ProjectResult{Key: b, Name: "b"})

	assert.Len(t, c.Get([]workspace.ProjectID{a, b, workspace.NewProjectID()}), 1)
	assert.Empty(t, c.Get(nil))
	assert.Equal(t, 2, c.Len())
}

func TestResultCacheStoreCopiesInput(t *testing.T) {
	c := NewResultCache()
	k := workspace.NewProjectID()
	in := []diag.Diagnostic{{Message: "before"}}
	c.Store(ProjectResult{Key: k, Name: "a", Diagnostics: in})
	in[0].Message = "after"

	e, ok := c.Entry(k)
	require.True(t, ok)
	assert.Equal(t, "before", e.Diagnostics[0].Message)
}

func TestGroupByFileDropsProjectScoped(t *testing.T) {
	files := GroupByFile([]diag.Diagnostic{
		{Path: "/b.go", Message: "b"},
		{Message: "project-scoped"},
		{Path: "/a.go", Message: "a"},
	})
	require.Len(t, files, 2)
	assert.Equal(t, "/a.go", files[0].Path)
	assert.Equal(t, "/b.go", files[1].Path)
}
