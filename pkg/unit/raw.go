package unit

import (
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
)

// The engine's fallback material. Sections bound to it carry no material id.
const (
	DefaultMaterialName    = "StingrayDefaultMaterial"
	DefaultMaterialShortID = 155175220
)

// RawMaterial binds a range of a sub-mesh's indices to a material.
type RawMaterial struct {
	// MaterialID is the material resource id; zero selects the default
	// material.
	MaterialID uint64
	// ShortID is the material slot id written into the section table.
	ShortID    uint32
	StartIndex uint32
	NumIndices uint32
	// BoneInfoOverride, when set, replaces the section's material and group
	// index on encode.
	BoneInfoOverride *uint32
}

// DefaultMaterial returns a material bound to the engine default.
func DefaultMaterial() RawMaterial {
	return RawMaterial{ShortID: DefaultMaterialShortID}
}

func (m RawMaterial) IsDefault() bool { return m.MaterialID == 0 }

// Name returns the material id in decimal, or DefaultMaterialName.
func (m RawMaterial) Name() string {
	if m.IsDefault() {
		return DefaultMaterialName
	}
	return strconv.FormatUint(m.MaterialID, 10)
}

// RawMesh is one decoded sub-mesh: per-vertex arrays, triangles and the
// materials covering them. MeshInfoIndex is owned by the caller and keys the
// sub-mesh back to its header slot through Mesh.MeshInfoMap.
type RawMesh struct {
	MeshInfoIndex int
	MeshID        uint32
	LodIndex      int32

	Positions   []mgl32.Vec3
	Normals     []mgl32.Vec3
	Tangents    []mgl32.Vec3
	Bitangents  []mgl32.Vec3
	Colors      []mgl32.Vec4
	UVs         [][]mgl32.Vec2
	BoneIndices [][][4]uint32
	Weights     []mgl32.Vec4
	Indices     [][3]uint32
	Materials   []RawMaterial

	Transform     mgl32.Mat4
	BoneInfoIndex int

	Use32BitIndices bool
	// CompiledIncorrectly is set when an index had to be clamped to the
	// range its buffer or stride allows.
	CompiledIncorrectly bool
}

// InitBlank sizes every array for numVertices vertices and numIndices
// indices, zero filled.
func (m *RawMesh) InitBlank(numVertices, numIndices, numUVs, numBoneIndices int) {
	m.Indices = make([][3]uint32, numIndices/3)
	m.UVs = make([][]mgl32.Vec2, numUVs)
	m.BoneIndices = make([][][4]uint32, numBoneIndices)
	m.ReInitVerts(numVertices)
}

// ReInitVerts resizes every per-vertex array to numVertices, keeping the
// number of UV and bone index channels.
func (m *RawMesh) ReInitVerts(numVertices int) {
	m.Positions = make([]mgl32.Vec3, numVertices)
	m.Normals = make([]mgl32.Vec3, numVertices)
	m.Tangents = make([]mgl32.Vec3, numVertices)
	m.Bitangents = make([]mgl32.Vec3, numVertices)
	m.Colors = make([]mgl32.Vec4, numVertices)
	m.Weights = make([]mgl32.Vec4, numVertices)
	for i := range m.UVs {
		m.UVs[i] = make([]mgl32.Vec2, numVertices)
	}
	for i := range m.BoneIndices {
		m.BoneIndices[i] = make([][4]uint32, numVertices)
	}
}

// IsCullingBody reports whether every material is the default material.
func (m *RawMesh) IsCullingBody() bool {
	for _, mat := range m.Materials {
		if !mat.IsDefault() {
			return false
		}
	}
	return true
}

// IsLod reports whether the sub-mesh is a reduced level of detail: it has a
// LOD index above zero and is not a culling body.
func (m *RawMesh) IsLod() bool {
	if m.LodIndex == 0 || m.LodIndex == -1 {
		return false
	}
	return !m.IsCullingBody()
}

// IsStaticMesh reports whether no vertex carries a bone weight.
func (m *RawMesh) IsStaticMesh() bool {
	for _, w := range m.Weights {
		if w != (mgl32.Vec4{}) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m *RawMesh) Clone() *RawMesh {
	out := *m
	out.Positions = append([]mgl32.Vec3(nil), m.Positions...)
	out.Normals = append([]mgl32.Vec3(nil), m.Normals...)
	out.Tangents = append([]mgl32.Vec3(nil), m.Tangents...)
	out.Bitangents = append([]mgl32.Vec3(nil), m.Bitangents...)
	out.Colors = append([]mgl32.Vec4(nil), m.Colors...)
	out.Weights = append([]mgl32.Vec4(nil), m.Weights...)
	out.Indices = append([][3]uint32(nil), m.Indices...)
	out.Materials = append([]RawMaterial(nil), m.Materials...)
	out.UVs = make([][]mgl32.Vec2, len(m.UVs))
	for i, ch := range m.UVs {
		out.UVs[i] = append([]mgl32.Vec2(nil), ch...)
	}
	out.BoneIndices = make([][][4]uint32, len(m.BoneIndices))
	for i, ch := range m.BoneIndices {
		out.BoneIndices[i] = append([][4]uint32(nil), ch...)
	}
	return &out
}
