package workspace

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"vigil/internal/source"
)

var (
	// ErrUnknownProject is returned when a mutation names a project that is
	// not part of the current snapshot.
	ErrUnknownProject = errors.New("unknown project")
	// ErrDuplicateProject is returned by AddProject when the name is taken.
	ErrDuplicateProject = errors.New("duplicate project name")
	// ErrUnknownDocument is returned when removing a document that does not exist.
	ErrUnknownDocument = errors.New("unknown document")
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger used for mutation tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(w *Workspace) {
		if log != nil {
			w.log = log
		}
	}
}

// Workspace is the mutable project graph. Readers take immutable snapshots
// without locking; mutations are serialized and publish a new snapshot
// before notifying subscribers.
type Workspace struct {
	mu          sync.Mutex
	snap        atomic.Pointer[Snapshot]
	refs        *refGraph
	loose       ProjectID
	initialized atomic.Bool

	subMu   sync.RWMutex
	subs    map[uint64]func(Change)
	nextSub uint64

	log logrus.FieldLogger
}

// New creates an empty, uninitialized workspace.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		refs: newRefGraph(),
		subs: make(map[uint64]func(Change)),
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.snap.Store(emptySnapshot())
	return w
}

// Snapshot returns the current immutable view.
func (w *Workspace) Snapshot() *Snapshot {
	return w.snap.Load()
}

// ProjectIDs returns the ids of every project in the current snapshot.
func (w *Workspace) ProjectIDs() []ProjectID {
	return w.Snapshot().ProjectIDs()
}

// Project resolves a key against the current snapshot.
func (w *Workspace) Project(id ProjectID) (*Project, bool) {
	return w.Snapshot().Project(id)
}

// MarkInitialized records that initial loading has finished.
func (w *Workspace) MarkInitialized() {
	w.initialized.Store(true)
}

// Ready reports whether the workspace is initialized and holds at least one project.
func (w *Workspace) Ready() bool {
	return w.initialized.Load() && w.Snapshot().Len() > 0
}

// Subscribe registers fn for change notifications. Notifications are
// delivered synchronously on the mutating goroutine, after the mutation is
// visible through Snapshot. The returned function unsubscribes.
func (w *Workspace) Subscribe(fn func(Change)) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subMu.Lock()
			delete(w.subs, id)
			w.subMu.Unlock()
		})
	}
}

// Dependents returns the projects that directly or transitively reference id.
func (w *Workspace) Dependents(id ProjectID) []ProjectID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out, err := w.refs.dependents(id)
	if err != nil {
		return nil
	}
	return out
}

// AddProject adds a package project and announces it with ProjectAdded.
func (w *Workspace) AddProject(info ProjectInfo) (ProjectID, error) {
	if info.Name == "" {
		return ProjectID{}, fmt.Errorf("add project: empty name")
	}
	id := NewProjectID()
	err := w.commit(func(next *Snapshot) ([]Change, error) {
		for _, p := range next.projects {
			if p.Name == info.Name {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateProject, info.Name)
			}
		}
		if err := w.refs.addProject(id); err != nil {
			return nil, err
		}
		importPath := info.ImportPath
		if importPath == "" {
			importPath = info.Name
		}
		next.projects[id] = &Project{
			ID:         id,
			Name:       info.Name,
			Dir:        CleanPath(info.Dir),
			ImportPath: importPath,
			Kind:       KindPackage,
			Rules:      copyRules(info.Rules),
		}
		return []Change{{Kind: ProjectAdded, Project: id}}, nil
	})
	if err != nil {
		return ProjectID{}, err
	}
	return id, nil
}

// RemoveProject drops a project. Projects referencing it keep the name in
// MissingReferences.
func (w *Workspace) RemoveProject(id ProjectID) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		removed, ok := next.projects[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, id)
		}
		if err := w.refs.removeProject(id); err != nil {
			return nil, err
		}
		delete(next.projects, id)
		if id == w.loose {
			w.loose = ProjectID{}
		}
		changes := []Change{{Kind: ProjectRemoved, Project: id}}
		for pid, p := range next.projects {
			if !slices.Contains(p.References, id) {
				continue
			}
			cp := p.clone()
			cp.References = slices.DeleteFunc(cp.References, func(x ProjectID) bool { return x == id })
			cp.MissingReferences = append(cp.MissingReferences, removed.Name)
			next.projects[pid] = cp
			changes = append(changes, Change{Kind: ProjectChanged, Project: pid})
		}
		return changes, nil
	})
}

// AddReference records that from references to.
func (w *Workspace) AddReference(from, to ProjectID) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		p, ok := next.projects[from]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, from)
		}
		if _, ok := next.projects[to]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, to)
		}
		if err := w.refs.addReference(from, to); err != nil {
			return nil, err
		}
		if slices.Contains(p.References, to) {
			return nil, nil
		}
		cp := p.clone()
		cp.References = append(cp.References, to)
		next.projects[from] = cp
		return []Change{{Kind: ProjectChanged, Project: from}}, nil
	})
}

// AddMissingReference records a configured reference to a project name that
// is not part of the workspace.
func (w *Workspace) AddMissingReference(from ProjectID, name string) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		p, ok := next.projects[from]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, from)
		}
		cp := p.clone()
		cp.MissingReferences = append(cp.MissingReferences, name)
		next.projects[from] = cp
		return []Change{{Kind: ProjectChanged, Project: from}}, nil
	})
}

// SetRules replaces a project's rule overrides.
func (w *Workspace) SetRules(id ProjectID, rules map[string]string) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		p, ok := next.projects[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, id)
		}
		cp := p.clone()
		cp.Rules = copyRules(rules)
		next.projects[id] = cp
		return []Change{{Kind: ProjectChanged, Project: id}}, nil
	})
}

// SetDocument adds or replaces a document in a project.
func (w *Workspace) SetDocument(id ProjectID, path string, content []byte) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		return w.setDocumentLocked(next, id, path, content)
	})
}

// RemoveDocument removes a document from a project.
func (w *Workspace) RemoveDocument(id ProjectID, path string) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		p, ok := next.projects[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, id)
		}
		path = CleanPath(path)
		cp := p.clone()
		if !cp.withoutDocument(path) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, path)
		}
		next.projects[id] = cp
		return []Change{{Kind: DocumentRemoved, Project: id, Path: path}}, nil
	})
}

// OpenDocument stores content for path in the project that owns it, or in
// the loose files project when no project does. It returns the owner.
func (w *Workspace) OpenDocument(path string, content []byte) (ProjectID, error) {
	var owner ProjectID
	err := w.commit(func(next *Snapshot) ([]Change, error) {
		var changes []Change
		if p, ok := next.ProjectForPath(path); ok {
			owner = p.ID
		} else {
			var added bool
			owner, added = w.ensureLooseLocked(next)
			if added {
				changes = append(changes, Change{Kind: ProjectAdded, Project: owner})
			}
		}
		docChanges, err := w.setDocumentLocked(next, owner, path, content)
		if err != nil {
			return nil, err
		}
		return append(changes, docChanges...), nil
	})
	return owner, err
}

// CloseDocument forgets a loose document. Documents of package projects stay
// because they exist on disk.
func (w *Workspace) CloseDocument(path string) error {
	return w.commit(func(next *Snapshot) ([]Change, error) {
		if w.loose.IsZero() {
			return nil, nil
		}
		p, ok := next.projects[w.loose]
		if !ok {
			return nil, nil
		}
		path = CleanPath(path)
		cp := p.clone()
		if !cp.withoutDocument(path) {
			return nil, nil
		}
		next.projects[w.loose] = cp
		return []Change{{Kind: DocumentRemoved, Project: w.loose, Path: path}}, nil
	})
}

func (w *Workspace) setDocumentLocked(next *Snapshot, id ProjectID, path string, content []byte) ([]Change, error) {
	p, ok := next.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	path = CleanPath(path)
	normalized, _ := source.Normalize(content)
	version := int32(1)
	if prev, ok := p.Document(path); ok {
		if string(prev.Text.Bytes()) == string(normalized) {
			return nil, nil
		}
		version = prev.Version + 1
	}
	cp := p.clone()
	added := cp.withDocument(&Document{
		Path:    path,
		Text:    source.NewText(append([]byte(nil), normalized...)),
		Version: version,
	})
	next.projects[id] = cp
	kind := DocumentChanged
	if added {
		kind = DocumentAdded
	}
	return []Change{{Kind: kind, Project: id, Path: path}}, nil
}

func (w *Workspace) ensureLooseLocked(next *Snapshot) (ProjectID, bool) {
	if !w.loose.IsZero() {
		if _, ok := next.projects[w.loose]; ok {
			return w.loose, false
		}
	}
	id := NewProjectID()
	if err := w.refs.addProject(id); err != nil {
		w.log.WithError(err).Warn("workspace: register loose project")
	}
	next.projects[id] = &Project{
		ID:   id,
		Name: LooseProjectName,
		Kind: KindLoose,
	}
	w.loose = id
	return id, true
}

// commit applies mutate to a copy of the current snapshot and publishes it.
// A mutation returning no changes publishes nothing.
func (w *Workspace) commit(mutate func(next *Snapshot) ([]Change, error)) error {
	w.mu.Lock()
	cur := w.snap.Load()
	next := cur.next()
	changes, err := mutate(next)
	if err != nil || len(changes) == 0 {
		w.mu.Unlock()
		return err
	}
	names := make(map[ProjectID]string, len(next.projects))
	for id, p := range next.projects {
		names[id] = p.Name
	}
	order, oerr := w.refs.order(names)
	if oerr != nil || len(order) != len(next.projects) {
		order = sortedByName(next.projects)
	}
	next.order = order
	w.snap.Store(next)
	w.mu.Unlock()

	for i := range changes {
		changes[i].Version = next.version
		w.log.WithFields(logrus.Fields{
			"kind":    changes[i].Kind.String(),
			"project": changes[i].Project.Short(),
			"path":    changes[i].Path,
		}).Debug("workspace: change")
	}
	w.notify(changes)
	return nil
}

func (w *Workspace) notify(changes []Change) {
	w.subMu.RLock()
	subs := make([]func(Change), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.subMu.RUnlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

func copyRules(rules map[string]string) map[string]string {
	if len(rules) == 0 {
		return nil
	}
	out := make(map[string]string, len(rules))
	for k, v := range rules {
		out[k] = v
	}
	return out
}
