package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

// Current schema version - increment when cachePayload format changes
const cacheSchemaVersion uint16 = 1

// ErrSchemaMismatch is returned by LoadCache for files written by an
// incompatible version.
var ErrSchemaMismatch = errors.New("result cache schema mismatch")

type cachePayload struct {
	Schema   uint16
	SavedAt  time.Time
	Projects []cachedProject
}

// Project keys are per-process identities, so entries are matched back by
// name and directory.
type cachedProject struct {
	Name        string
	Dir         string
	AnalyzedAt  time.Time
	Diagnostics []cachedDiagnostic
}

type cachedDiagnostic struct {
	Path      string
	Severity  uint8
	ID        string
	Message   string
	Start     uint32
	End       uint32
	StartLine uint32
	StartCol  uint32
	EndLine   uint32
	EndCol    uint32
}

// SaveCache writes every cache entry whose project is still in snap.
func SaveCache(path string, cache *ResultCache, snap *workspace.Snapshot) error {
	payload := cachePayload{Schema: cacheSchemaVersion, SavedAt: time.Now()}
	for _, p := range snap.Projects() {
		r, ok := cache.Entry(p.ID)
		if !ok {
			continue
		}
		cp := cachedProject{Name: p.Name, Dir: p.Dir, AnalyzedAt: r.AnalyzedAt}
		for _, d := range r.Diagnostics {
			cp.Diagnostics = append(cp.Diagnostics, cachedDiagnostic{
				Path:      d.Path,
				Severity:  uint8(d.Severity),
				ID:        d.ID,
				Message:   d.Message,
				Start:     d.Range.Span.Start,
				End:       d.Range.Span.End,
				StartLine: d.Range.Start.Line,
				StartCol:  d.Range.Start.Col,
				EndLine:   d.Range.End.Line,
				EndCol:    d.Range.End.Col,
			})
		}
		payload.Projects = append(payload.Projects, cp)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name())
	}()

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode result cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), path)
}

// LoadCache seeds cache with entries saved by SaveCache for projects of
// snap with the same name and directory. Seeded entries are stale until
// the project is analyzed again. A missing file loads nothing.
func LoadCache(path string, cache *ResultCache, snap *workspace.Snapshot) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	var payload cachePayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode result cache: %w", err)
	}
	if payload.Schema != cacheSchemaVersion {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, payload.Schema, cacheSchemaVersion)
	}

	loaded := 0
	for _, cp := range payload.Projects {
		p, ok := snap.ProjectByName(cp.Name)
		if !ok || p.Dir != cp.Dir {
			continue
		}
		if _, exists := cache.Entry(p.ID); exists {
			continue
		}
		diags := make([]diag.Diagnostic, 0, len(cp.Diagnostics))
		for _, cd := range cp.Diagnostics {
			diags = append(diags, diag.Diagnostic{
				Path:     cd.Path,
				Severity: diag.Severity(cd.Severity),
				ID:       cd.ID,
				Message:  cd.Message,
				Range: source.Range{
					Span:  source.Span{Start: cd.Start, End: cd.End},
					Start: source.LineCol{Line: cd.StartLine, Col: cd.StartCol},
					End:   source.LineCol{Line: cd.EndLine, Col: cd.EndCol},
				},
			})
		}
		cache.Store(ProjectResult{Key: p.ID, Name: p.Name, Diagnostics: diags, AnalyzedAt: cp.AnalyzedAt})
		loaded++
	}
	return loaded, nil
}
