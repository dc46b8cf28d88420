package unit

// ApplyAutoLODs replaces every LOD sub-mesh with a copy of the first LOD0
// sub-mesh that is not a culling body. A copy keeps the header slot, mesh
// id, LOD index and transform of the sub-mesh it replaces and shares LOD0's
// bone info, which prepare duplicates into the LOD's own slot. It returns
// the number of sub-meshes replaced.
func (m *Mesh) ApplyAutoLODs() int {
	var lod0 *RawMesh
	for _, raw := range m.RawMeshes {
		if raw.LodIndex == 0 && !raw.IsCullingBody() {
			lod0 = raw
			break
		}
	}
	if lod0 == nil {
		return 0
	}
	n := 0
	for i, raw := range m.RawMeshes {
		if raw == lod0 || !raw.IsLod() {
			continue
		}
		cp := lod0.Clone()
		cp.MeshInfoIndex = raw.MeshInfoIndex
		cp.MeshID = raw.MeshID
		cp.LodIndex = raw.LodIndex
		cp.Transform = raw.Transform
		m.RawMeshes[i] = cp
		n++
	}
	return n
}
