package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/importer"
	"go/token"
	"go/types"
	"slices"
	"sync"

	"vigil/internal/workspace"
)

// projectImporter resolves imports of workspace projects by type-checking
// them from their current documents. A project can only import projects it
// references; anything else goes to the fallback importer.
type projectImporter struct {
	ctx      context.Context
	analyzer *Analyzer
	snap     *workspace.Snapshot
	from     *workspace.Project
}

func (imp *projectImporter) Import(path string) (*types.Package, error) {
	return imp.ImportFrom(path, imp.from.Dir, 0)
}

func (imp *projectImporter) ImportFrom(path, dir string, mode types.ImportMode) (*types.Package, error) {
	if imp.snap != nil {
		if dep, ok := imp.snap.ProjectByImportPath(path); ok && dep.ID != imp.from.ID {
			if !slices.Contains(imp.from.References, dep.ID) {
				return nil, fmt.Errorf("project %s does not reference %s", imp.from.Name, dep.Name)
			}
			return imp.analyzer.dependency(imp.ctx, imp.snap, dep)
		}
	}
	return imp.analyzer.fallback.ImportFrom(path, dir, mode)
}

// dependency type-checks dep once per content fingerprint. Concurrent
// requests for the same fingerprint share one check.
func (a *Analyzer) dependency(ctx context.Context, snap *workspace.Snapshot, dep *workspace.Project) (*types.Package, error) {
	fp := fingerprint(snap, dep, map[workspace.ProjectID]string{})
	if pkg, ok := a.cache.get(dep.ID, fp); ok {
		return pkg, nil
	}
	v, err, _ := a.deps.Do(fp, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := parseUnit(goDocuments(dep))
		if len(u.files) == 0 {
			return nil, fmt.Errorf("project %s has no Go source files", dep.Name)
		}
		imp := &projectImporter{ctx: ctx, analyzer: a, snap: snap, from: dep}
		conf := types.Config{
			Importer:    imp,
			FakeImportC: true,
			Error:       func(error) {},
		}
		pkg, _ := conf.Check(dep.ImportPath, u.fset, u.files, nil)
		if pkg == nil {
			return nil, fmt.Errorf("type-check %s failed", dep.Name)
		}
		a.cache.put(dep.ID, fp, pkg)
		a.log.WithField("project", dep.Name).Debug("dependency checked")
		return pkg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Package), nil
}

// fingerprint hashes a project's documents and, recursively, the
// fingerprints of its references.
func fingerprint(snap *workspace.Snapshot, p *workspace.Project, memo map[workspace.ProjectID]string) string {
	if fp, ok := memo[p.ID]; ok {
		return fp
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", p.ID, p.ImportPath)
	for _, d := range p.Documents {
		fmt.Fprintf(h, "%s\x00%d\x00", d.Path, d.Text.Len())
		h.Write(d.Text.Bytes())
	}
	for _, ref := range p.References {
		if dep, ok := snap.Project(ref); ok {
			h.Write([]byte(fingerprint(snap, dep, memo)))
		}
	}
	fp := hex.EncodeToString(h.Sum(nil))
	memo[p.ID] = fp
	return fp
}

type cachedPackage struct {
	fingerprint string
	pkg         *types.Package
}

// packageCache keeps the last checked package per project.
type packageCache struct {
	mu    sync.Mutex
	items map[workspace.ProjectID]cachedPackage
}

func newPackageCache() *packageCache {
	return &packageCache{items: make(map[workspace.ProjectID]cachedPackage)}
}

func (c *packageCache) get(id workspace.ProjectID, fp string) (*types.Package, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok || item.fingerprint != fp {
		return nil, false
	}
	return item.pkg, true
}

func (c *packageCache) put(id workspace.ProjectID, fp string, pkg *types.Package) {
	c.mu.Lock()
	c.items[id] = cachedPackage{fingerprint: fp, pkg: pkg}
	c.mu.Unlock()
}

// sourceImporter serializes access to the go/importer source importer,
// which is not safe for concurrent use.
type sourceImporter struct {
	mu  sync.Mutex
	imp types.ImporterFrom
}

func newSourceImporter() *sourceImporter {
	imp, _ := importer.ForCompiler(token.NewFileSet(), "source", nil).(types.ImporterFrom)
	return &sourceImporter{imp: imp}
}

func (s *sourceImporter) Import(path string) (*types.Package, error) {
	return s.ImportFrom(path, "", 0)
}

func (s *sourceImporter) ImportFrom(path, dir string, mode types.ImportMode) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imp == nil {
		return nil, fmt.Errorf("no importer for %q", path)
	}
	return s.imp.ImportFrom(path, dir, mode)
}
