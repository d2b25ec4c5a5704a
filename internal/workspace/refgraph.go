package workspace

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// ErrReferenceCycle is returned when a reference would make the project
// graph cyclic.
var ErrReferenceCycle = errors.New("project reference creates a cycle")

// refGraph stores project references as edges from a dependency to its
// dependents, so a topological order lists dependencies first.
type refGraph struct {
	g graph.Graph[string, string]
}

func newRefGraph() *refGraph {
	return &refGraph{g: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())}
}

func (r *refGraph) addProject(id ProjectID) error {
	if err := r.g.AddVertex(id.String()); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return err
	}
	return nil
}

func (r *refGraph) addReference(from, to ProjectID) error {
	err := r.g.AddEdge(to.String(), from.String())
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("%w: %s -> %s", ErrReferenceCycle, from.Short(), to.Short())
	}
	return err
}

func (r *refGraph) removeProject(id ProjectID) error {
	key := id.String()
	adj, err := r.g.AdjacencyMap()
	if err != nil {
		return err
	}
	pred, err := r.g.PredecessorMap()
	if err != nil {
		return err
	}
	for target := range adj[key] {
		if err := r.g.RemoveEdge(key, target); err != nil {
			return err
		}
	}
	for src := range pred[key] {
		if err := r.g.RemoveEdge(src, key); err != nil {
			return err
		}
	}
	if err := r.g.RemoveVertex(key); err != nil && !errors.Is(err, graph.ErrVertexNotFound) {
		return err
	}
	return nil
}

// dependents returns every project that directly or transitively
// references id, excluding id itself.
func (r *refGraph) dependents(id ProjectID) ([]ProjectID, error) {
	start := id.String()
	var out []ProjectID
	err := graph.BFS(r.g, start, func(k string) bool {
		if k == start {
			return false
		}
		if pid, perr := ParseProjectID(k); perr == nil {
			out = append(out, pid)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// order returns project ids with dependencies first; ties are broken by
// name so the result is deterministic.
func (r *refGraph) order(names map[ProjectID]string) ([]ProjectID, error) {
	less := func(a, b string) bool {
		ida, _ := ParseProjectID(a)
		idb, _ := ParseProjectID(b)
		if names[ida] != names[idb] {
			return names[ida] < names[idb]
		}
		return a < b
	}
	keys, err := graph.StableTopologicalSort(r.g, less)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectID, 0, len(keys))
	for _, k := range keys {
		pid, err := ParseProjectID(k)
		if err != nil {
			return nil, err
		}
		out = append(out, pid)
	}
	return out, nil
}
