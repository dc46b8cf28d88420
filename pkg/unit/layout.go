package unit

import (
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// Section is one material range of a sub-mesh.
type Section struct {
	MaterialIndex uint32
	VertexOffset  uint32
	NumVertices   uint32
	IndexOffset   uint32
	NumIndices    uint32
	GroupIndex    uint32

	// ID is the material slot id, resolved through the owning MeshInfo's
	// material list. It is not stored in the section record.
	ID uint32
}

const sectionSize = 24

func (s *Section) serialize(c *stream.Cursor, slots []uint32) {
	s.MaterialIndex = c.Uint32(s.MaterialIndex)
	if c.IsReading() && int(s.MaterialIndex) < len(slots) {
		s.ID = slots[s.MaterialIndex]
	}
	s.VertexOffset = c.Uint32(s.VertexOffset)
	s.NumVertices = c.Uint32(s.NumVertices)
	s.IndexOffset = c.Uint32(s.IndexOffset)
	s.NumIndices = c.Uint32(s.NumIndices)
	s.GroupIndex = c.Uint32(s.GroupIndex)
}

// MeshInfo is the header record of one sub-mesh.
type MeshInfo struct {
	Unk1           uint64
	Unk2           [32]byte
	MeshID         uint32
	Unk3           uint32
	TransformIndex uint32
	Unk4           uint32
	LodIndex       int32
	StreamIndex    uint32
	Unk6           [40]byte
	NumMaterials   uint32
	MaterialOffset uint32
	Unk8           uint64
	NumSections    uint32
	SectionsOffset uint32

	MaterialIDs []uint32
	Sections    []Section
}

const meshInfoHeaderSize = 128

func (m *MeshInfo) serialize(c *stream.Cursor) error {
	m.Unk1 = c.Uint64(m.Unk1)
	copy(m.Unk2[:], c.Bytes(m.Unk2[:], len(m.Unk2)))
	m.MeshID = c.Uint32(m.MeshID)
	m.Unk3 = c.Uint32(m.Unk3)
	m.TransformIndex = c.Uint32(m.TransformIndex)
	m.Unk4 = c.Uint32(m.Unk4)
	m.LodIndex = c.Int32(m.LodIndex)
	m.StreamIndex = c.Uint32(m.StreamIndex)
	copy(m.Unk6[:], c.Bytes(m.Unk6[:], len(m.Unk6)))
	if c.IsWriting() {
		m.NumMaterials = uint32(len(m.Sections))
		m.NumSections = uint32(len(m.Sections))
		// The material list always directly follows the record.
		m.MaterialOffset = meshInfoHeaderSize
	}
	m.NumMaterials = c.Uint32(m.NumMaterials)
	m.MaterialOffset = c.Uint32(m.MaterialOffset)
	m.Unk8 = c.Uint64(m.Unk8)
	m.NumSections = c.Uint32(m.NumSections)
	if c.IsWriting() {
		m.SectionsOffset = m.MaterialOffset + 4*m.NumMaterials
	}
	m.SectionsOffset = c.Uint32(m.SectionsOffset)

	if c.IsReading() {
		if !fits(c, int(m.NumMaterials), 4) || !fits(c, int(m.NumSections), sectionSize) {
			return errors.Errorf("%d materials and %d sections overrun the buffer", m.NumMaterials, m.NumSections)
		}
		m.MaterialIDs = make([]uint32, m.NumMaterials)
		m.Sections = make([]Section, m.NumSections)
	} else {
		m.MaterialIDs = make([]uint32, len(m.Sections))
		for i := range m.Sections {
			m.MaterialIDs[i] = m.Sections[i].ID
		}
	}
	c.Uint32s(m.MaterialIDs)
	for i := range m.Sections {
		m.Sections[i].serialize(c, m.MaterialIDs)
	}
	return nil
}

// NumIndices returns the index count over all sections.
func (m *MeshInfo) NumIndices() int {
	n := 0
	for _, s := range m.Sections {
		n += int(s.NumIndices)
	}
	return n
}

// NumVertices returns the vertex count of the first section, which all
// sections share.
func (m *MeshInfo) NumVertices() int {
	if len(m.Sections) == 0 {
		return 0
	}
	return int(m.Sections[0].NumVertices)
}

func (m *MeshInfo) orderKeys() (vertex, index uint32) {
	if len(m.Sections) == 0 {
		return 0, 0
	}
	return m.Sections[0].VertexOffset, m.Sections[0].IndexOffset
}

// StreamInfo describes one interleaved vertex buffer and its index buffer.
type StreamInfo struct {
	ComponentInfoID uint64
	Components      []Component

	VertexBufferID   uint64
	VertexBufferUnk1 uint64
	NumVertices      uint32
	VertexStride     uint32
	VertexBufferUnk2 uint64
	VertexBufferUnk3 uint64

	IndexBufferID   uint64
	IndexBufferUnk1 uint64
	NumIndices      uint32
	// IndexBufferType is 1 for 32-bit indices, otherwise 16-bit.
	IndexBufferType uint32
	IndexBufferUnk2 uint64
	IndexBufferUnk3 uint64

	VertexBufferOffset uint32
	VertexBufferSize   uint32
	IndexBufferOffset  uint32
	IndexBufferSize    uint32

	UnkEnding [16]byte
}

// IndexStride returns the size of one index in bytes.
func (s *StreamInfo) IndexStride() int {
	if s.IndexBufferType == 1 {
		return 4
	}
	return 2
}

func (s *StreamInfo) serialize(c *stream.Cursor) error {
	s.ComponentInfoID = c.Uint64(s.ComponentInfoID)
	table := c.Tell()
	c.Seek(table + componentTable)

	if c.IsWriting() && len(s.Components) > maxComponents {
		return errors.Errorf("%d vertex components, at most %d fit", len(s.Components), maxComponents)
	}
	n := c.Uint64(uint64(len(s.Components)))
	s.VertexBufferID = c.Uint64(s.VertexBufferID)
	s.VertexBufferUnk1 = c.Uint64(s.VertexBufferUnk1)
	s.NumVertices = c.Uint32(s.NumVertices)
	s.VertexStride = c.Uint32(s.VertexStride)
	s.VertexBufferUnk2 = c.Uint64(s.VertexBufferUnk2)
	s.VertexBufferUnk3 = c.Uint64(s.VertexBufferUnk3)

	s.IndexBufferID = c.Uint64(s.IndexBufferID)
	s.IndexBufferUnk1 = c.Uint64(s.IndexBufferUnk1)
	s.NumIndices = c.Uint32(s.NumIndices)
	s.IndexBufferType = c.Uint32(s.IndexBufferType)
	s.IndexBufferUnk2 = c.Uint64(s.IndexBufferUnk2)
	s.IndexBufferUnk3 = c.Uint64(s.IndexBufferUnk3)

	s.VertexBufferOffset = c.Uint32(s.VertexBufferOffset)
	s.VertexBufferSize = c.Uint32(s.VertexBufferSize)
	s.IndexBufferOffset = c.Uint32(s.IndexBufferOffset)
	s.IndexBufferSize = c.Uint32(s.IndexBufferSize)
	copy(s.UnkEnding[:], c.Bytes(s.UnkEnding[:], len(s.UnkEnding)))
	end := stream.AlignUp(c.Tell(), 16)

	if c.IsReading() {
		if n > maxComponents {
			return errors.Errorf("%d vertex components, at most %d fit", n, maxComponents)
		}
		s.Components = make([]Component, n)
	}
	c.Seek(table)
	for i := range s.Components {
		s.Components[i].serialize(c)
	}
	c.Seek(end)
	return nil
}

// count returns how many components of type t the stream carries, counted
// as the highest channel index plus one.
func (s *StreamInfo) count(t ComponentType) int {
	n := 0
	for _, comp := range s.Components {
		if comp.Type == t && int(comp.Index)+1 > n {
			n = int(comp.Index) + 1
		}
	}
	return n
}

// fits reports whether n records of size bytes remain after the cursor.
func fits(c *stream.Cursor, n, size int) bool {
	return n >= 0 && n*size <= c.Len()-c.Tell()
}
