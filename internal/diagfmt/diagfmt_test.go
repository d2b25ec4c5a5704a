package diagfmt

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/diag"
	"vigil/internal/fix"
	"vigil/internal/source"
)

const (
	sampleBase = "/work"
	samplePath = "/work/app/app.go"
	sampleText = "// Package app is a sample.\npackage app\n\nimport \"fmt\"\n"
)

func sample() []diag.Diagnostic {
	text := source.NewText([]byte(sampleText))
	return []diag.Diagnostic{
		diag.New(diag.SevError, diag.SemUnusedImport, samplePath,
			text.Range(source.Span{Start: 48, End: 53}), `"fmt" imported and not used`).WithProject("app"),
		diag.New(diag.SevWarning, diag.PrjMissingReference, "",
			source.Range{}, `reference "core" is not a project`).WithProject("app"),
	}
}

func sources(path string) *source.Text {
	if path == samplePath {
		return source.NewText([]byte(sampleText))
	}
	return nil
}

func TestSampleRange(t *testing.T) {
	d := sample()[0]
	assert.Equal(t, source.LineCol{Line: 4, Col: 8}, d.Range.Start)
	assert.Equal(t, source.LineCol{Line: 4, Col: 13}, d.Range.End)
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	diags := sample()
	Pretty(&buf, diags, PrettyOpts{Context: 1, PathMode: PathModeRelative, BaseDir: sampleBase, Sources: sources})
	Summary(&buf, diags, false)
	g := goldie.New(t)
	g.Assert(t, "pretty", buf.Bytes())
}

func TestPrettyWithoutSources(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sample()[:1], PrettyOpts{PathMode: PathModeBasename})
	assert.Equal(t, "app.go:4:8: ERROR SEM3019: \"fmt\" imported and not used\n", buf.String())
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, nil, false)
	assert.Empty(t, buf.String())

	info := diag.New(diag.SevInfo, diag.SynInfo, "", source.Range{}, "note")
	Summary(&buf, []diag.Diagnostic{info, info}, false)
	assert.Equal(t, "0 errors, 0 warnings, 2 infos\n", buf.String())
}

func TestUnderlineWideRunes(t *testing.T) {
	line := "x := \"日本\""
	pad, width := underline(line, source.Range{
		Start: source.LineCol{Line: 1, Col: 6},
		End:   source.LineCol{Line: 1, Col: 14},
	})
	assert.Equal(t, "     ", pad)
	assert.Equal(t, 6, width)

	pad, width = underline("\tfoo()", source.Range{
		Start: source.LineCol{Line: 1, Col: 2},
		End:   source.LineCol{Line: 3, Col: 1},
	})
	assert.Equal(t, "\t", pad)
	assert.Equal(t, 5, width)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sample(), JSONOpts{IncludePositions: true, PathMode: PathModeRelative, BaseDir: sampleBase}))
	g := goldie.New(t)
	g.Assert(t, "json", buf.Bytes())
}

func TestJSONMax(t *testing.T) {
	out := BuildDiagnosticsOutput(sample(), JSONOpts{Max: 1})
	assert.Equal(t, 1, out.Count)
	assert.True(t, out.Truncated)
	assert.Equal(t, 1, out.Errors)
	assert.Equal(t, 1, out.Warnings)
	require.NotNil(t, out.Diagnostics[0].Location)
	assert.Equal(t, "app/app.go", out.Diagnostics[0].Location.File)
	assert.Zero(t, out.Diagnostics[0].Location.StartLine)
}

func TestSarif(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Sarif(&buf, sample(), SarifRunMeta{
		ToolName:       "vigil",
		ToolVersion:    "0.1.0",
		InvocationArgs: []string{"check", "--format", "sarif"},
		BaseDir:        sampleBase,
	}))
	g := goldie.New(t)
	g.Assert(t, "sarif", buf.Bytes())
}

func TestDiff(t *testing.T) {
	var buf bytes.Buffer
	Diff(&buf, []fix.FileChange{{
		Path:      samplePath,
		Before:    []byte(sampleText),
		After:     []byte("// Package app is a sample.\npackage app\n"),
		EditCount: 1,
	}}, DiffOpts{Context: 1, PathMode: PathModeRelative, BaseDir: sampleBase})
	g := goldie.New(t)
	g.Assert(t, "diff", buf.Bytes())
}

func TestHunksMergeNearbyChanges(t *testing.T) {
	lines := diffLines("a\nb\nc\nd\ne\nf\ng\n", "a\nB\nc\nd\ne\nF\ng\n")
	hs := hunks(lines, 1)
	require.Len(t, hs, 2)
	assert.Equal(t, 1, hs[0].oldStart)
	assert.Equal(t, 3, hs[0].oldLen)
	assert.Equal(t, 3, hs[0].newLen)

	hs = hunks(lines, 2)
	require.Len(t, hs, 1)
	assert.Equal(t, 1, hs[0].oldStart)
	assert.Equal(t, 7, hs[0].oldLen)
}

func TestParsePathMode(t *testing.T) {
	m, ok := ParsePathMode("basename")
	assert.True(t, ok)
	assert.Equal(t, PathModeBasename, m)
	_, ok = ParsePathMode("weird")
	assert.False(t, ok)
}
