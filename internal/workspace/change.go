package workspace

// ChangeKind classifies a workspace mutation.
type ChangeKind uint8

const (
	DocumentChanged ChangeKind = iota
	DocumentAdded
	DocumentRemoved
	ProjectAdded
	ProjectChanged
	ProjectRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case DocumentChanged:
		return "document-changed"
	case DocumentAdded:
		return "document-added"
	case DocumentRemoved:
		return "document-removed"
	case ProjectAdded:
		return "project-added"
	case ProjectChanged:
		return "project-changed"
	case ProjectRemoved:
		return "project-removed"
	}
	return "unknown"
}

// Change is delivered to subscribers after the mutation is visible in the
// current snapshot.
type Change struct {
	Kind    ChangeKind
	Project ProjectID
	// Path is set for document changes.
	Path    string
	Version uint64
}
