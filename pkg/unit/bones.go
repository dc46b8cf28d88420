package unit

import (
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// BoneInfo is the skinning table of one LOD: the bones it uses, their
// inverse bind matrices, and per material a remap from the sub-mesh local
// bone index to an index into RealIndices.
type BoneInfo struct {
	MatrixOffset      uint32
	RealIndicesOffset uint32
	RemapOffset       uint32

	Bones       []mgl32.Mat4
	RealIndices []uint32
	Remaps      [][]uint32
}

func (b *BoneInfo) serialize(c *stream.Cursor) error {
	base := c.Tell()
	n := c.Uint32(uint32(len(b.Bones)))
	b.MatrixOffset = c.Uint32(b.MatrixOffset)
	b.RealIndicesOffset = c.Uint32(b.RealIndicesOffset)
	b.RemapOffset = c.Uint32(b.RemapOffset)

	if c.IsReading() {
		if !fits(c, int(n), 64+4) {
			return errors.Errorf("%d bones overrun the buffer", n)
		}
		b.Bones = make([]mgl32.Mat4, n)
		b.RealIndices = make([]uint32, n)
		c.Seek(base + int(b.MatrixOffset))
	} else {
		b.MatrixOffset = uint32(c.Tell() - base)
	}
	for i := range b.Bones {
		m := [16]float32(b.Bones[i])
		for j := range m {
			m[j] = c.Float32(m[j])
		}
		b.Bones[i] = mgl32.Mat4(m)
	}

	if c.IsReading() {
		c.Seek(base + int(b.RealIndicesOffset))
	} else {
		b.RealIndicesOffset = uint32(c.Tell() - base)
	}
	c.Uint32s(b.RealIndices)

	if c.IsReading() {
		c.Seek(base + int(b.RemapOffset))
	} else {
		b.RemapOffset = uint32(c.Tell() - base)
	}
	start := c.Tell()
	count := c.Uint32(uint32(len(b.Remaps)))
	if c.IsReading() {
		if !fits(c, int(count), 8) {
			return errors.Errorf("%d remaps overrun the buffer", count)
		}
		b.Remaps = make([][]uint32, count)
	}
	offsets := make([]uint32, count)
	counts := make([]uint32, count)
	next := 4 + 8*uint32(count)
	for i := range offsets {
		if c.IsWriting() {
			offsets[i], counts[i] = next, uint32(len(b.Remaps[i]))
			next += 4 * counts[i]
		}
		offsets[i] = c.Uint32(offsets[i])
		counts[i] = c.Uint32(counts[i])
	}
	for i := range b.Remaps {
		c.Seek(start + int(offsets[i]))
		if c.IsReading() {
			if !fits(c, int(counts[i]), 4) {
				return errors.Errorf("remap %d of %d entries overruns the buffer", i, counts[i])
			}
			b.Remaps[i] = make([]uint32, counts[i])
		}
		c.Uint32s(b.Remaps[i])
	}
	return nil
}

// Clone returns a deep copy of b.
func (b *BoneInfo) Clone() *BoneInfo {
	out := *b
	out.Bones = append([]mgl32.Mat4(nil), b.Bones...)
	out.RealIndices = append([]uint32(nil), b.RealIndices...)
	out.Remaps = make([][]uint32, len(b.Remaps))
	for i, r := range b.Remaps {
		out.Remaps[i] = append([]uint32(nil), r...)
	}
	return &out
}

// RealIndex maps a sub-mesh local bone index of material to the bone's
// transform index.
func (b *BoneInfo) RealIndex(bone uint32, material int) (uint32, bool) {
	if material < 0 || material >= len(b.Remaps) || int(bone) >= len(b.Remaps[material]) {
		return 0, false
	}
	fake := b.Remaps[material][bone]
	if int(fake) >= len(b.RealIndices) {
		return 0, false
	}
	return b.RealIndices[fake], true
}

// RemappedIndex is the inverse of RealIndex.
func (b *BoneInfo) RemappedIndex(ri uint32, material int) (uint32, bool) {
	if material < 0 || material >= len(b.Remaps) {
		return 0, false
	}
	fake := indexOf(b.RealIndices, ri)
	if fake < 0 {
		return 0, false
	}
	local := indexOf(b.Remaps[material], uint32(fake))
	if local < 0 {
		return 0, false
	}
	return uint32(local), true
}

// SetRemap rebuilds the remap tables from bone names, one list per
// material. A name is either a decimal name hash or a bone name. Bones the
// LOD does not use yet are appended to RealIndices with an identity
// matrix. Bones missing from the unit's transforms are skipped and
// reported.
func (b *BoneInfo) SetRemap(remap [][]string, transforms *TransformInfo) []string {
	var skipped []string
	b.Remaps = make([][]uint32, len(remap))
	for i, names := range remap {
		r := make([]uint32, 0, len(names))
		for _, name := range names {
			h, err := strconv.ParseUint(name, 10, 32)
			if err != nil {
				h = uint64(registry.Hash32(name))
			}
			ri := indexOf(transforms.NameHashes, uint32(h))
			if ri < 0 {
				skipped = append(skipped, fmt.Sprintf("bone %q does not exist in unit transform info", name))
				continue
			}
			fake := indexOf(b.RealIndices, uint32(ri))
			if fake < 0 {
				b.RealIndices = append(b.RealIndices, uint32(ri))
				b.Bones = append(b.Bones, mgl32.Ident4())
				fake = len(b.RealIndices) - 1
			}
			r = append(r, uint32(fake))
		}
		b.Remaps[i] = r
	}
	return skipped
}

func indexOf[T comparable](s []T, v T) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}
