package submodule

import (
	"errors"
	"fmt"
)

var (
	ErrNotRecorded    = errors.New("commit not recorded in the parent index")
	ErrCommitNotFound = errors.New("commit not found after fetch")
)

// Error is a fatal synchronization failure. Op names the failing step:
// open, enumerate, repair, init or update.
type Error struct {
	Op        string
	Submodule string
	Path      string
	Err       error
}

func (e *Error) Error() string {
	if e.Submodule == "" {
		return fmt.Sprintf("submodule %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("submodule %q: %s %s: %v", e.Submodule, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
