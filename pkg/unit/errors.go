package unit

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownFormat is returned for a vertex component format with no
	// codec. It means the format table is incomplete, not that the input is
	// malformed.
	ErrUnknownFormat = errors.New("unknown vertex component format")
	// ErrUnknownComponent is returned for a vertex component type with no
	// accessor.
	ErrUnknownComponent = errors.New("unknown vertex component type")

	ErrNoGeometry     = errors.New("unsupported mesh format (no geometry)")
	ErrNoBufferStream = errors.New("unsupported mesh format (no buffer stream)")
	ErrNoMaterials    = errors.New("mesh has no materials, but at least one is required")
	ErrNoVertices     = errors.New("mesh has no vertices")
	ErrComposite      = errors.New("composite mesh could not be resolved")
)

// DecodeError reports a structural violation found while decoding one mesh.
// It is fatal for that entry only.
type DecodeError struct {
	Section string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode mesh %s at %#x: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Cause() error  { return e.Err }

func decodeError(section string, offset int, err error) error {
	return &DecodeError{Section: section, Offset: offset, Err: err}
}
