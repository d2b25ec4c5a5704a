package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/workspace"
)

const sampleManifest = `
[workspace]
name = "demo"
module_prefix = "example.com/demo"

[analysis]
interval = "250ms"
max_parallel = 2
cache_file = ".vigil/cache.msgpack"

[logging]
level = "debug"
format = "json"

[server]
addr = "127.0.0.1:7420"

[[project]]
name = "app"
dir = "app"
references = ["lib", "ghost"]

[project.rules]
STY4002 = "none"

[[project]]
name = "lib"
dir = "lib"
import_path = "example.com/lib"
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestFindManifestWalksUp(t *testing.T) {
	root := writeTree(t, map[string]string{
		ManifestName:     "",
		"a/b/c/keep.txt": "",
	})
	path, ok, err := FindManifest(filepath.Join(root, "a", "b", "c"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, ManifestName), path)

	got, err := FindRoot(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestDiscoverWithoutManifest(t *testing.T) {
	_, err := Discover(t.TempDir())
	// a manifest further up the real filesystem would be found first
	if err != nil {
		assert.ErrorIs(t, err, ErrManifestNotFound)
	}
}

func TestLoadManifest(t *testing.T) {
	root := writeTree(t, map[string]string{ManifestName: sampleManifest})
	m, err := LoadManifest(filepath.Join(root, ManifestName))
	require.NoError(t, err)

	assert.Equal(t, "demo", m.Workspace.Name)
	assert.Equal(t, root, m.Root)
	require.Len(t, m.Projects, 2)
	assert.Equal(t, map[string]string{"STY4002": "none"}, m.Projects[0].Rules)

	cfg := m.EngineConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.StartupPoll)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, filepath.Join(root, ".vigil", "cache.msgpack"), m.CachePath())
	assert.Equal(t, "json", m.LoggingConfig().Format)
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"duplicate names": "[[project]]\nname = \"a\"\ndir = \"x\"\n[[project]]\nname = \"a\"\ndir = \"y\"\n",
		"missing dir":     "[[project]]\nname = \"a\"\n",
		"bad level":       "[logging]\nlevel = \"loud\"\n",
		"negative":        "[analysis]\ninterval = \"-1s\"\n",
		"unknown key":     "[analysis]\nturbo = true\n",
		"self reference":  "[[project]]\nname = \"a\"\ndir = \"a\"\nreferences = [\"a\"]\n",
		"bad toml":        "[analysis\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := writeTree(t, map[string]string{ManifestName: body})
			_, err := LoadManifest(filepath.Join(root, ManifestName))
			assert.Error(t, err)
		})
	}
}

func TestAnalysisCanBeDisabled(t *testing.T) {
	root := writeTree(t, map[string]string{ManifestName: "[analysis]\nenabled = false\ninterval = \"0s\"\n"})
	m, err := LoadManifest(filepath.Join(root, ManifestName))
	require.NoError(t, err)
	cfg := m.EngineConfig()
	assert.False(t, cfg.Enabled)
	assert.Zero(t, cfg.Interval)
	assert.Empty(t, m.CachePath())
}

func TestLoadBuildsWorkspace(t *testing.T) {
	root := writeTree(t, map[string]string{
		ManifestName:          sampleManifest,
		"app/main.go":         "package main\n",
		"app/main_test.go":    "package main_test\n",
		"app/notes.md":        "# notes\n",
		"app/sub/inner.go":    "package sub\n",
		"lib/lib.go":          "package lib\n",
		"lib/_scratch.go":     "package lib\n",
		"lib/zz_generated.go": "package lib\n",
	})
	m, err := LoadManifest(filepath.Join(root, ManifestName))
	require.NoError(t, err)

	ws := workspace.New()
	ids, err := Load(context.Background(), m, ws, nil)
	require.NoError(t, err)
	require.True(t, ws.Ready())

	snap := ws.Snapshot()
	app, ok := snap.Project(ids["app"])
	require.True(t, ok)
	lib, ok := snap.Project(ids["lib"])
	require.True(t, ok)

	assert.Equal(t, "example.com/demo/app", app.ImportPath)
	assert.Equal(t, "example.com/lib", lib.ImportPath)
	assert.Equal(t, []workspace.ProjectID{lib.ID}, app.References)
	assert.Equal(t, []string{"ghost"}, app.MissingReferences)
	assert.Equal(t, "none", app.Rules["STY4002"])

	var paths []string
	for _, d := range app.Documents {
		paths = append(paths, filepath.Base(d.Path))
	}
	assert.Equal(t, []string{"main.go"}, paths)
	assert.Len(t, lib.Documents, 2)

	assert.True(t, OwnsFile(app, filepath.Join(root, "app", "new.go")))
	assert.False(t, OwnsFile(app, filepath.Join(root, "app", "sub", "inner.go")))
}

func TestLoadRejectsEscapingDir(t *testing.T) {
	root := writeTree(t, map[string]string{ManifestName: "[[project]]\nname = \"a\"\ndir = \"../outside\"\n"})
	m, err := LoadManifest(filepath.Join(root, ManifestName))
	require.NoError(t, err)
	_, err = Load(context.Background(), m, workspace.New(), nil)
	assert.ErrorContains(t, err, "escapes workspace root")
}

func TestLoadRejectsBadRules(t *testing.T) {
	root := writeTree(t, map[string]string{
		ManifestName: "[[project]]\nname = \"a\"\ndir = \"a\"\n[project.rules]\nSEM3020 = \"loud\"\n",
		"a/a.go":     "package a\n",
	})
	m, err := LoadManifest(filepath.Join(root, ManifestName))
	require.NoError(t, err)
	_, err = Load(context.Background(), m, workspace.New(), nil)
	assert.ErrorContains(t, err, "rules")
}
