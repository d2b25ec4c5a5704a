package engine

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a value recovered from a panicking analysis.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("analysis panicked: %v", e.Value)
}

// catch runs fn and returns its panic, if any, as a *PanicError.
func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}
