package project

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"vigil/internal/analyzer"
	"vigil/internal/workspace"
)

// IsSource reports whether name is a Go file the loader picks up. Test
// files are left out since they may declare an external test package.
func IsSource(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".go") && !strings.HasSuffix(base, "_test.go") &&
		!strings.HasPrefix(base, ".") && !strings.HasPrefix(base, "_")
}

// Load adds every configured project with its on-disk sources to ws, wires
// references and marks the workspace initialized. It returns project ids by
// name.
func Load(ctx context.Context, m *Manifest, ws *workspace.Workspace, log logrus.FieldLogger) (map[string]workspace.ProjectID, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ids := make(map[string]workspace.ProjectID, len(m.Projects))
	for _, pc := range m.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir, err := resolveDir(m.Root, pc.Dir)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", pc.Name, err)
		}
		if _, err := analyzer.ParseRules(pc.Rules); err != nil {
			return nil, fmt.Errorf("project %s: rules: %w", pc.Name, err)
		}
		id, err := ws.AddProject(workspace.ProjectInfo{
			Name:       pc.Name,
			Dir:        dir,
			ImportPath: m.importPath(pc),
			Rules:      pc.Rules,
		})
		if err != nil {
			return nil, err
		}
		ids[pc.Name] = id
		n, err := loadSources(ws, id, dir)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", pc.Name, err)
		}
		log.WithFields(logrus.Fields{"project": pc.Name, "documents": n}).Debug("project loaded")
	}
	for _, pc := range m.Projects {
		from := ids[pc.Name]
		for _, ref := range pc.References {
			to, ok := ids[ref]
			if !ok {
				log.WithFields(logrus.Fields{"project": pc.Name, "reference": ref}).Warn("reference to unknown project")
				if err := ws.AddMissingReference(from, ref); err != nil {
					return nil, err
				}
				continue
			}
			if err := ws.AddReference(from, to); err != nil {
				return nil, fmt.Errorf("project %s -> %s: %w", pc.Name, ref, err)
			}
		}
	}
	ws.MarkInitialized()
	return ids, nil
}

func (m *Manifest) importPath(pc ProjectConfig) string {
	if pc.ImportPath != "" {
		return pc.ImportPath
	}
	if m.Workspace.ModulePrefix == "" {
		return pc.Name
	}
	dir := filepath.ToSlash(filepath.Clean(pc.Dir))
	if dir == "." {
		return m.Workspace.ModulePrefix
	}
	return path.Join(m.Workspace.ModulePrefix, dir)
}

func loadSources(ws *workspace.Workspace, id workspace.ProjectID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && IsSource(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		p := filepath.Join(dir, name)
		content, err := os.ReadFile(p)
		if err != nil {
			return 0, err
		}
		if err := ws.SetDocument(id, p, content); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

// OwnsFile reports whether a package project holds path directly in its
// directory. Files in subdirectories belong to other packages.
func OwnsFile(p *workspace.Project, file string) bool {
	if p == nil || p.IsLoose() || p.Dir == "" {
		return false
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == p.Dir
}
