package workspace

import (
	"github.com/google/uuid"
)

// ProjectID identifies a project for the lifetime of a workspace. Equality is
// identity: re-adding a project from the same directory yields a new ID.
type ProjectID uuid.UUID

// NewProjectID returns a fresh random identifier.
func NewProjectID() ProjectID {
	return ProjectID(uuid.New())
}

// ParseProjectID parses the canonical textual form produced by String.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID(u), nil
}

func (id ProjectID) String() string {
	return uuid.UUID(id).String()
}

func (id ProjectID) IsZero() bool {
	return id == ProjectID{}
}

// Short is the first eight hex digits, used in log fields.
func (id ProjectID) Short() string {
	return id.String()[:8]
}
