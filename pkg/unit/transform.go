package unit

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// LocalTransform is a node's rotation, position and scale relative to its
// parent.
type LocalTransform struct {
	Rot   mgl32.Mat3
	Pos   mgl32.Vec3
	Scale mgl32.Vec3
	Dummy float32
}

// TransformEntry links a node to its parent.
type TransformEntry struct {
	Increment  uint16
	ParentBone uint16
}

// TransformInfo is the unit's node hierarchy: one local transform, world
// matrix, parent link and name hash per node.
type TransformInfo struct {
	Reserved   [12]byte
	Transforms []LocalTransform
	Matrices   []mgl32.Mat4
	Entries    []TransformEntry
	NameHashes []uint32
}

// transformRecordSize is the per-node footprint of the four parallel tables.
const transformRecordSize = 64 + 64 + 4 + 4

func serializeVec3(c *stream.Cursor, v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3(c.Vec3Float([3]float32(v)))
}

func serializeMat4(c *stream.Cursor, m mgl32.Mat4) mgl32.Mat4 {
	for i := range m {
		m[i] = c.Float32(m[i])
	}
	return m
}

func (t *LocalTransform) serialize(c *stream.Cursor) {
	for col := 0; col < 3; col++ {
		v := serializeVec3(c, t.Rot.Col(col))
		t.Rot.SetCol(col, v)
	}
	t.Pos = serializeVec3(c, t.Pos)
	t.Scale = serializeVec3(c, t.Scale)
	t.Dummy = c.Float32(t.Dummy)
}

func (t *TransformInfo) serialize(c *stream.Cursor) error {
	n := c.Uint32(uint32(len(t.Transforms)))
	copy(t.Reserved[:], c.Bytes(t.Reserved[:], len(t.Reserved)))
	if c.IsReading() {
		if !fits(c, int(n), transformRecordSize) {
			return errors.Errorf("%d transforms overrun the buffer", n)
		}
		t.Transforms = make([]LocalTransform, n)
		t.Matrices = make([]mgl32.Mat4, n)
		t.Entries = make([]TransformEntry, n)
		t.NameHashes = make([]uint32, n)
	} else if len(t.Matrices) != int(n) || len(t.Entries) != int(n) || len(t.NameHashes) != int(n) {
		return errors.Errorf("transform tables disagree: %d transforms, %d matrices, %d entries, %d hashes",
			n, len(t.Matrices), len(t.Entries), len(t.NameHashes))
	}
	for i := range t.Transforms {
		t.Transforms[i].serialize(c)
	}
	for i := range t.Matrices {
		t.Matrices[i] = serializeMat4(c, t.Matrices[i])
	}
	for i := range t.Entries {
		t.Entries[i].Increment = c.Uint16(t.Entries[i].Increment)
		t.Entries[i].ParentBone = c.Uint16(t.Entries[i].ParentBone)
	}
	c.Uint32s(t.NameHashes)
	return nil
}

// Matrix returns the world matrix of node i, or the identity when i is out
// of range.
func (t *TransformInfo) Matrix(i uint32) mgl32.Mat4 {
	if int(i) < len(t.Matrices) {
		return t.Matrices[i]
	}
	return mgl32.Ident4()
}
