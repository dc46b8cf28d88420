package unit

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// orderedStream holds the sub-meshes of one stream in vertex buffer order
// and in index buffer order.
type orderedStream struct {
	byVertex []*RawMesh
	byIndex  []*RawMesh
}

// serializeGpu walks the vertex and index buffers of every stream. Reading
// visits the index buffer first so the vertex count can be corrected before
// vertices are read; writing emits vertices first so sections know their
// vertex offsets.
func (m *Mesh) serializeGpu(c *stream.Cursor, opts *Options) error {
	log := opts.log()
	if c.IsReading() {
		if err := m.initRawMeshes(c, log); err != nil {
			return err
		}
	}
	ordered := m.orderedMeshes()
	if c.IsWriting() {
		if err := m.setupComponents(ordered, opts); err != nil {
			return err
		}
	}

	for si, st := range m.StreamInfos {
		var err error
		if c.IsReading() {
			if err = m.readIndices(c, st, ordered[si].byIndex, opts); err == nil {
				m.fixVertexCounts(st, ordered[si].byVertex, log)
				err = m.serializeVertices(c, st, ordered[si].byVertex)
			}
		} else {
			if err = m.serializeVertices(c, st, ordered[si].byVertex); err == nil {
				err = m.writeIndices(c, st, ordered[si].byIndex, log)
			}
		}
		if err != nil {
			return decodeError("gpu stream", si, err)
		}
	}
	return nil
}

// initRawMeshes allocates one blank sub-mesh per mesh info, sized from the
// section table.
func (m *Mesh) initRawMeshes(c *stream.Cursor, log *logrus.Entry) error {
	for si, st := range m.StreamInfos {
		if int(st.VertexBufferOffset)+int(st.VertexBufferSize) > c.Len() || int(st.IndexBufferOffset)+int(st.IndexBufferSize) > c.Len() {
			return decodeError("gpu stream", si, errors.Wrapf(stream.ErrShortBuffer, "buffers end past %d bytes", c.Len()))
		}
	}
	m.RawMeshes = m.RawMeshes[:0]
	for n, mi := range m.MeshInfos {
		if int(mi.StreamIndex) >= len(m.StreamInfos) {
			m.warn(log, "mesh info %d: stream index %d out of range (%d streams)", n, mi.StreamIndex, len(m.StreamInfos))
			continue
		}
		st := m.StreamInfos[mi.StreamIndex]
		if mi.NumVertices()*int(st.VertexStride) > c.Len() || mi.NumIndices()*st.IndexStride() > c.Len() {
			return decodeError("mesh info", n, errors.Errorf("%d vertices and %d indices overrun the gpu buffer", mi.NumVertices(), mi.NumIndices()))
		}
		raw := &RawMesh{
			MeshInfoIndex: n,
			MeshID:        mi.MeshID,
			LodIndex:      mi.LodIndex,
			BoneInfoIndex: int(mi.LodIndex),
			Transform:     m.Transforms.Matrix(mi.TransformIndex),
		}
		raw.InitBlank(mi.NumVertices(), mi.NumIndices(), st.count(UV), st.count(BoneIndex))
		m.RawMeshes = append(m.RawMeshes, raw)
	}
	return nil
}

// orderedMeshes groups the sub-meshes by stream, sorted by the vertex and
// the index offset of their first section. A sub-mesh asking for 32-bit
// indices promotes its whole stream.
func (m *Mesh) orderedMeshes() []orderedStream {
	out := make([]orderedStream, len(m.StreamInfos))
	keys := make(map[*RawMesh][2]uint32, len(m.RawMeshes))
	for _, raw := range m.RawMeshes {
		mi, err := m.meshInfo(raw)
		if err != nil || int(mi.StreamIndex) >= len(m.StreamInfos) {
			continue
		}
		v, i := mi.orderKeys()
		keys[raw] = [2]uint32{v, i}
		out[mi.StreamIndex].byVertex = append(out[mi.StreamIndex].byVertex, raw)
		out[mi.StreamIndex].byIndex = append(out[mi.StreamIndex].byIndex, raw)
		if raw.Use32BitIndices {
			m.StreamInfos[mi.StreamIndex].IndexBufferType = 1
		}
	}
	for i := range out {
		s := out[i]
		sort.SliceStable(s.byVertex, func(a, b int) bool { return keys[s.byVertex[a]][0] < keys[s.byVertex[b]][0] })
		sort.SliceStable(s.byIndex, func(a, b int) bool { return keys[s.byIndex[a]][1] < keys[s.byIndex[b]][1] })
	}
	return out
}

func (m *Mesh) readIndices(c *stream.Cursor, st *StreamInfo, meshes []*RawMesh, opts *Options) error {
	stride := st.IndexStride()
	for _, raw := range meshes {
		mi, err := m.meshInfo(raw)
		if err != nil {
			return err
		}
		raw.LodIndex = mi.LodIndex
		raw.BoneInfoIndex = int(mi.LodIndex)
		raw.Materials = raw.Materials[:0]

		face := 0
		nth := make(map[uint64]int)
		for _, s := range mi.Sections {
			mat := DefaultMaterial()
			if i := indexOf(m.SectionIDs, s.ID); i >= 0 && i < len(m.MaterialIDs) {
				mat.MaterialID = m.MaterialIDs[i]
				mat.ShortID = s.ID
				if opts.Slots != nil {
					if slots := opts.Slots.Slots(m.NameHash, mat.MaterialID); nth[mat.MaterialID] < len(slots) {
						mat.ShortID = slots[nth[mat.MaterialID]]
					}
				}
				nth[mat.MaterialID]++
			}
			mat.StartIndex = uint32(face * 3)
			mat.NumIndices = s.NumIndices
			raw.Materials = append(raw.Materials, mat)

			c.Seek(int(st.IndexBufferOffset) + int(s.IndexOffset)*stride)
			for f := 0; f < int(s.NumIndices)/3 && face < len(raw.Indices); f++ {
				for k := 0; k < 3; k++ {
					if stride == 4 {
						raw.Indices[face][k] = c.Uint32(0)
					} else {
						raw.Indices[face][k] = uint32(c.Uint16(0))
					}
				}
				face++
			}
		}
		if err := c.Err(); err != nil {
			return errors.Wrapf(err, "indices of mesh info %d", raw.MeshInfoIndex)
		}
	}
	return nil
}

// fixVertexCounts clamps indices that point past the stream's vertices to
// the last one and derives each sub-mesh's vertex count from its highest index. Stored
// counts are sometimes wrong; the derived count is a heuristic.
// vertexCapacity returns how many vertices the stream holds: its declared
// count, never more than the buffer fits. Alignment padding past the last
// vertex does not count. It is -1 without a stride.
func (s *StreamInfo) vertexCapacity() int {
	if s.VertexStride == 0 {
		return -1
	}
	n := int(s.VertexBufferSize) / int(s.VertexStride)
	if s.NumVertices > 0 && int(s.NumVertices) < n {
		n = int(s.NumVertices)
	}
	return n
}

func (m *Mesh) fixVertexCounts(st *StreamInfo, meshes []*RawMesh, log *logrus.Entry) {
	for _, raw := range meshes {
		if len(raw.Indices) == 0 {
			continue
		}
		mi, err := m.meshInfo(raw)
		if err != nil || len(mi.Sections) == 0 {
			continue
		}
		limit := -1
		if n := st.vertexCapacity(); n >= 0 {
			limit = n - int(mi.Sections[0].VertexOffset)
		}
		highest := 0
		clamped := 0
		for f := range raw.Indices {
			for k := range raw.Indices[f] {
				if limit > 0 && int(raw.Indices[f][k]) >= limit {
					raw.Indices[f][k] = uint32(limit - 1)
					clamped++
				}
				if v := int(raw.Indices[f][k]); v > highest {
					highest = v
				}
			}
		}
		if clamped > 0 {
			raw.CompiledIncorrectly = true
			m.warn(log, "mesh info %d: %d indices clamped to vertex buffer size %d", raw.MeshInfoIndex, clamped, limit)
		}
		if count := highest + 1; mi.NumVertices() != count {
			m.warn(log, "mesh info %d: vertex count %d recomputed as %d", raw.MeshInfoIndex, mi.NumVertices(), count)
			for i := range mi.Sections {
				mi.Sections[i].NumVertices = uint32(count)
			}
			raw.ReInitVerts(count)
		}
	}
}

func (m *Mesh) writeIndices(c *stream.Cursor, st *StreamInfo, meshes []*RawMesh, log *logrus.Entry) error {
	stride := st.IndexStride()
	st.IndexBufferOffset = uint32(c.Tell())
	offset := uint32(0)
	for _, raw := range meshes {
		mi, err := m.meshInfo(raw)
		if err != nil {
			return err
		}
		face := 0
		clamped := 0
		for si := range mi.Sections {
			s := &mi.Sections[si]
			s.IndexOffset = offset
			for f := 0; f < int(s.NumIndices)/3; f++ {
				if face >= len(raw.Indices) {
					return errors.Errorf("mesh info %d: materials cover more than %d triangles", raw.MeshInfoIndex, len(raw.Indices))
				}
				for k := 0; k < 3; k++ {
					v := raw.Indices[face][k]
					if stride == 4 {
						c.Uint32(v)
						continue
					}
					if v > 0xffff {
						v = 0xffff
						clamped++
					}
					c.Uint16(uint16(v))
				}
				face++
			}
			offset += s.NumIndices
		}
		if clamped > 0 {
			raw.CompiledIncorrectly = true
			m.warn(log, "mesh info %d: %d indices out of 16-bit range clamped", raw.MeshInfoIndex, clamped)
		}
	}
	st.IndexBufferSize = uint32(c.Tell()) - st.IndexBufferOffset
	st.NumIndices = offset
	return nil
}

func (m *Mesh) serializeVertices(c *stream.Cursor, st *StreamInfo, meshes []*RawMesh) error {
	stride := int(st.VertexStride)
	if c.IsWriting() {
		st.VertexBufferOffset = uint32(c.Tell())
	}
	offset := 0
	for _, raw := range meshes {
		mi, err := m.meshInfo(raw)
		if err != nil {
			return err
		}
		if len(mi.Sections) == 0 {
			continue
		}
		if c.IsWriting() {
			for i := range mi.Sections {
				mi.Sections[i].VertexOffset = uint32(offset)
				mi.Sections[i].NumVertices = uint32(len(raw.Positions))
			}
		} else {
			raw.dropAbsent(st)
			c.Seek(int(st.VertexBufferOffset) + int(mi.Sections[0].VertexOffset)*stride)
		}
		for vi := range raw.Positions {
			start := c.Tell()
			for _, comp := range st.Components {
				if err := raw.serializeAttribute(c, comp, vi); err != nil {
					return errors.Wrapf(err, "mesh info %d vertex %d", raw.MeshInfoIndex, vi)
				}
			}
			c.Seek(start + stride)
		}
		if err := c.Err(); err != nil {
			return errors.Wrapf(err, "vertices of mesh info %d", raw.MeshInfoIndex)
		}
		offset += len(raw.Positions)
	}
	if c.IsWriting() {
		c.Align(16)
		st.VertexBufferSize = uint32(c.Tell()) - st.VertexBufferOffset
		st.NumVertices = uint32(offset)
	}
	return nil
}

// dropAbsent releases the per-vertex arrays the stream layout does not
// carry, so a re-encode keeps the same layout.
func (m *RawMesh) dropAbsent(st *StreamInfo) {
	if st.count(Normal) == 0 {
		m.Normals = nil
	}
	if st.count(Tangent) == 0 {
		m.Tangents = nil
	}
	if st.count(Bitangent) == 0 {
		m.Bitangents = nil
	}
	if st.count(Color) == 0 {
		m.Colors = nil
	}
	if st.count(BoneWeight) == 0 {
		m.Weights = nil
	}
}

// setupComponents rebuilds each stream's vertex layout as the union of the
// attributes its sub-meshes populate, and pads sub-meshes missing one of
// them with zeros.
func (m *Mesh) setupComponents(ordered []orderedStream, opts *Options) error {
	for si, s := range ordered {
		if len(s.byVertex) == 0 {
			continue
		}
		var hasNormals, hasColors, skinned bool
		numUVs, numBoneIndices := 0, 0
		for _, raw := range s.byVertex {
			hasNormals = hasNormals || len(raw.Normals) > 0
			hasColors = hasColors || len(raw.Colors) > 0
			skinned = skinned || len(raw.BoneIndices) > 0
			if len(raw.UVs) > numUVs {
				numUVs = len(raw.UVs)
			}
			if len(raw.BoneIndices) > numBoneIndices {
				numBoneIndices = len(raw.BoneIndices)
			}
		}
		if opts.Force3UVs && numUVs < 3 {
			numUVs = 3
		}
		if skinned && numBoneIndices > 1 && opts.Force1Group {
			numBoneIndices = 1
		}

		for _, raw := range s.byVertex {
			n := len(raw.Positions)
			if n == 0 {
				return errors.Wrapf(ErrNoVertices, "mesh info %d", raw.MeshInfoIndex)
			}
			var err error
			if raw.Normals, err = pad("normals", raw.Normals, n, hasNormals); err != nil {
				return err
			}
			if raw.Colors, err = pad("colors", raw.Colors, n, hasColors); err != nil {
				return err
			}
			if raw.Tangents, err = pad("tangents", raw.Tangents, n, len(raw.Tangents) > 0); err != nil {
				return err
			}
			if raw.Bitangents, err = pad("bitangents", raw.Bitangents, n, len(raw.Bitangents) > 0); err != nil {
				return err
			}
			if raw.Weights, err = pad("weights", raw.Weights, n, skinned); err != nil {
				return err
			}
			raw.UVs = padChannels(raw.UVs, numUVs)
			for i := range raw.UVs {
				if raw.UVs[i], err = pad("uvs", raw.UVs[i], n, true); err != nil {
					return err
				}
			}
			raw.BoneIndices = padChannels(raw.BoneIndices, numBoneIndices)
			for i := range raw.BoneIndices {
				if raw.BoneIndices[i], err = pad("bone indices", raw.BoneIndices[i], n, true); err != nil {
					return err
				}
			}
		}

		comps := make([]Component, 0, 4+numUVs+numBoneIndices)
		if hasColors {
			comps = append(comps, Component{Type: Color, Format: FormatRGBA8})
		}
		comps = append(comps, Component{Type: Position, Format: FormatVec3Float})
		if hasNormals {
			comps = append(comps, Component{Type: Normal, Format: FormatPackedNormal})
		}
		for i := 0; i < numUVs; i++ {
			comps = append(comps, Component{Type: UV, Format: FormatVec2Half, Index: uint32(i)})
		}
		if skinned {
			comps = append(comps, Component{Type: BoneWeight, Format: FormatVec4Half})
		}
		for i := 0; i < numBoneIndices; i++ {
			comps = append(comps, Component{Type: BoneIndex, Format: FormatVec4Uint8, Index: uint32(i)})
		}

		st := m.StreamInfos[si]
		st.Components = comps
		st.VertexStride = 0
		for _, comp := range comps {
			size, err := comp.Format.Size()
			if err != nil {
				return err
			}
			st.VertexStride += uint32(size)
		}
	}
	return nil
}

// pad returns s sized to n. An empty s is zero filled when want is set; a
// populated s of another length is an error.
func pad[T any](name string, s []T, n int, want bool) ([]T, error) {
	switch {
	case len(s) == n:
		return s, nil
	case len(s) == 0 && want:
		return make([]T, n), nil
	case len(s) == 0:
		return s, nil
	}
	return nil, errors.Errorf("%d %s for %d vertices", len(s), name, n)
}

// padChannels returns channels truncated or padded with empty channels to n.
func padChannels[T any](channels [][]T, n int) [][]T {
	if len(channels) > n {
		return channels[:n]
	}
	for len(channels) < n {
		channels = append(channels, nil)
	}
	return channels
}
