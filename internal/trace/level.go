package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff     Level = iota // no tracing
	LevelBatch                // service + batch boundaries
	LevelProject              // per-project analyses
	LevelDebug                // everything including documents
)

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelBatch:
		return "batch"
	case LevelProject:
		return "project"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff, nil
	case "batch":
		return LevelBatch, nil
	case "project":
		return LevelProject, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|batch|project|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelBatch:
		return scope <= ScopeBatch
	case LevelProject:
		return scope <= ScopeProject
	case LevelDebug:
		return true
	}
	return false
}
