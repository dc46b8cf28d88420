package manager

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoActivePatch      = errors.New("no patch exists, please create one first")
	ErrNoActiveArchive    = errors.New("no archive exists to create a patch from, please open one first")
	ErrMissingDestination = errors.New("no destination id given")
	ErrNotFound           = errors.New("entry not found")
)

// PolicyError reports a request the manager refused. State is unchanged
// when it is returned.
type PolicyError struct {
	Op     string
	FileID uint64
	TypeID uint64
	Err    error
}

func (e *PolicyError) Error() string {
	if e.FileID == 0 && e.TypeID == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %d:%016x: %v", e.Op, e.FileID, e.TypeID, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }
func (e *PolicyError) Cause() error  { return e.Err }

func policy(op string, fileID, typeID uint64, err error) error {
	return &PolicyError{Op: op, FileID: fileID, TypeID: typeID, Err: err}
}
