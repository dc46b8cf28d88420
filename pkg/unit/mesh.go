// Package unit decodes and encodes the engine's mesh ("unit") payload: the
// offset-addressed section table held in an entry's TOC payload and the
// interleaved vertex and index buffers held in its GPU payload.
package unit

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// Header is the fixed 128-byte prefix of a mesh payload. A zero section
// offset means the section is absent.
type Header struct {
	UnkRef1         uint64
	BonesRef        uint64
	CompositeRef    uint64
	UnkRef2         uint64
	StateMachineRef uint64
	HeaderData1     uint64

	LODGroupOffset          uint32
	TransformInfoOffset     uint32
	LightListOffset         uint32
	PreLightListOffset      uint32
	WwiseCallbackOffset     uint32
	HeaderData2             [8]byte
	CustomizationInfoOffset uint32
	UnkHeaderOffset1        uint32
	ConnectingBoneOffset    uint32
	BoneInfoOffset          uint32
	StreamInfoOffset        uint32
	EndingOffset            uint32
	MeshInfoOffset          uint32
	HeaderUnk               uint64
	MaterialsOffset         uint32
	Reserved                [12]byte
}

const HeaderSize = 128

// serialize walks the header. The composite reference is never written:
// an encoded mesh always carries its own stream layout.
func (h *Header) serialize(c *stream.Cursor) {
	h.UnkRef1 = c.Uint64(h.UnkRef1)
	h.BonesRef = c.Uint64(h.BonesRef)
	if c.IsWriting() {
		c.Uint64(0)
	} else {
		h.CompositeRef = c.Uint64(0)
	}
	h.UnkRef2 = c.Uint64(h.UnkRef2)
	h.StateMachineRef = c.Uint64(h.StateMachineRef)
	h.HeaderData1 = c.Uint64(h.HeaderData1)
	h.LODGroupOffset = c.Uint32(h.LODGroupOffset)
	h.TransformInfoOffset = c.Uint32(h.TransformInfoOffset)
	h.LightListOffset = c.Uint32(h.LightListOffset)
	h.PreLightListOffset = c.Uint32(h.PreLightListOffset)
	h.WwiseCallbackOffset = c.Uint32(h.WwiseCallbackOffset)
	copy(h.HeaderData2[:], c.Bytes(h.HeaderData2[:], len(h.HeaderData2)))
	h.CustomizationInfoOffset = c.Uint32(h.CustomizationInfoOffset)
	h.UnkHeaderOffset1 = c.Uint32(h.UnkHeaderOffset1)
	h.ConnectingBoneOffset = c.Uint32(h.ConnectingBoneOffset)
	h.BoneInfoOffset = c.Uint32(h.BoneInfoOffset)
	h.StreamInfoOffset = c.Uint32(h.StreamInfoOffset)
	h.EndingOffset = c.Uint32(h.EndingOffset)
	h.MeshInfoOffset = c.Uint32(h.MeshInfoOffset)
	h.HeaderUnk = c.Uint64(h.HeaderUnk)
	h.MaterialsOffset = c.Uint32(h.MaterialsOffset)
	copy(h.Reserved[:], c.Bytes(h.Reserved[:], len(h.Reserved)))
}

// Section tags of the variable part of a mesh payload, in on-disk order.
type section int

const (
	secWwiseCallback section = iota
	secPreLightList
	secLightList
	secTransformInfo
	secCustomizationInfo
	secUnkHeader1
	secConnectingBone
	secBoneInfo
	secStreamInfo
	secMeshInfo
)

// sectionChain pairs every tag with its header offset. Sections store no
// length: a block ends where the first present section after it starts,
// found by walking this list forward.
var sectionChain = []struct {
	tag    section
	name   string
	offset func(*Header) uint32
}{
	{secWwiseCallback, "wwise callback", func(h *Header) uint32 { return h.WwiseCallbackOffset }},
	{secPreLightList, "pre light list", func(h *Header) uint32 { return h.PreLightListOffset }},
	{secLightList, "light list", func(h *Header) uint32 { return h.LightListOffset }},
	{secTransformInfo, "transform info", func(h *Header) uint32 { return h.TransformInfoOffset }},
	{secCustomizationInfo, "customization info", func(h *Header) uint32 { return h.CustomizationInfoOffset }},
	{secUnkHeader1, "unknown header 1", func(h *Header) uint32 { return h.UnkHeaderOffset1 }},
	{secConnectingBone, "connecting bones", func(h *Header) uint32 { return h.ConnectingBoneOffset }},
	{secBoneInfo, "bone info", func(h *Header) uint32 { return h.BoneInfoOffset }},
	{secStreamInfo, "stream info", func(h *Header) uint32 { return h.StreamInfoOffset }},
	{secMeshInfo, "mesh info", func(h *Header) uint32 { return h.MeshInfoOffset }},
}

func (s section) String() string {
	for _, link := range sectionChain {
		if link.tag == s {
			return link.name
		}
	}
	return "unknown"
}

// extentEnd returns where the block of section s ends: the offset of the
// first present section after it.
func (h *Header) extentEnd(s section) (uint32, bool) {
	found := false
	for _, link := range sectionChain {
		if found {
			if off := link.offset(h); off != 0 {
				return off, true
			}
			continue
		}
		found = link.tag == s
	}
	return 0, false
}

// SlotCache remembers, per unit, which material slot ids each material was
// bound to, so re-imported meshes keep their slot names.
type SlotCache interface {
	AddSlot(unit, material uint64, slot uint32)
	Slots(unit, material uint64) []uint32
}

// CompositeMesh is the layout a composite (geometry group) entry supplies
// for one sub-mesh.
type CompositeMesh struct {
	StreamIndex     uint32
	MaterialsOffset uint32
	Materials       []uint32
	SectionsOffset  uint32
	Sections        []Section
}

// CompositeLayout is the shared stream layout of a geometry group, as seen
// by one unit.
type CompositeLayout struct {
	StreamInfos []*StreamInfo
	// Meshes is keyed by MeshInfo.MeshID.
	Meshes map[uint32]CompositeMesh
	Gpu    []byte
}

// CompositeResolver loads the geometry group a unit refers to.
type CompositeResolver interface {
	ResolveComposite(compositeID, unitID uint64) (*CompositeLayout, error)
}

// Options tunes decoding and encoding.
type Options struct {
	// AutoLODs replaces every LOD sub-mesh with a copy of LOD0 on encode.
	AutoLODs bool
	// Force3UVs pads every stream to at least three UV channels on encode.
	Force3UVs bool
	// Force1Group limits skinned streams to one bone index channel on
	// encode.
	Force1Group bool
	// LoadMaterialSlotNames records slot ids into Slots on decode.
	LoadMaterialSlotNames bool

	Slots     SlotCache
	Composite CompositeResolver
	Log       *logrus.Entry
}

func (o *Options) log() *logrus.Entry {
	if o.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return o.Log
}

// Mesh is a decoded unit.
type Mesh struct {
	Header

	// NameHash is the unit's file id.
	NameHash uint64

	WwiseCallbackData  []byte
	PreLightListData   []byte
	LODGroupData       []byte
	CustomizationData  []byte
	UnkHeaderData1     []byte
	ConnectingBoneData []byte
	TrailingData       []byte

	Lights        LightList
	Transforms    TransformInfo
	Customization CustomizationInfo

	BoneInfos       []*BoneInfo
	BoneInfoOffsets []uint32

	StreamInfos       []*StreamInfo
	StreamInfoOffsets []uint32
	StreamInfoUnk2    uint32

	MeshInfos       []*MeshInfo
	MeshInfoOffsets []uint32
	// MeshInfoMap maps RawMesh.MeshInfoIndex to a MeshInfos slot, so
	// sub-meshes can be removed or reordered without renumbering.
	MeshInfoMap []int

	SectionIDs  []uint32
	MaterialIDs []uint64

	RawMeshes []*RawMesh
	// Warnings lists the data integrity anomalies recovered while
	// decoding or encoding.
	Warnings []string
}

func (m *Mesh) warn(log *logrus.Entry, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.Warnings = append(m.Warnings, msg)
	log.WithField("unit", m.NameHash).Warn(msg)
}

// meshInfo returns the header record of raw.
func (m *Mesh) meshInfo(raw *RawMesh) (*MeshInfo, error) {
	if raw.MeshInfoIndex < 0 || raw.MeshInfoIndex >= len(m.MeshInfoMap) {
		return nil, errors.Errorf("mesh info index %d out of range", raw.MeshInfoIndex)
	}
	slot := m.MeshInfoMap[raw.MeshInfoIndex]
	if slot < 0 || slot >= len(m.MeshInfos) {
		return nil, errors.Errorf("mesh info slot %d out of range", slot)
	}
	return m.MeshInfos[slot], nil
}

// Decode parses a unit payload. unitID is the entry's file id.
func Decode(unitID uint64, tocData, gpuData []byte, opts Options) (*Mesh, error) {
	m := &Mesh{NameHash: unitID}
	c := stream.NewReader(tocData)
	gpu, err := m.serialize(c, gpuData, &opts, false)
	if err != nil {
		return nil, err
	}
	if err := m.serializeGpu(stream.NewReader(gpu), &opts); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode re-emits the mesh. The section table is written twice: the first
// pass places every block, the GPU pass fills buffer offsets, and the
// second pass rewrites the table with the final values.
func (m *Mesh) Encode(opts Options) (tocData, gpuData []byte, err error) {
	if opts.AutoLODs {
		m.ApplyAutoLODs()
	}
	if err := m.prepare(); err != nil {
		return nil, nil, err
	}
	c := stream.NewWriter()
	if _, err := m.serialize(c, nil, &opts, false); err != nil {
		return nil, nil, err
	}
	gpu := stream.NewWriter()
	if err := m.serializeGpu(gpu, &opts); err != nil {
		return nil, nil, err
	}
	c.Seek(0)
	if _, err := m.serialize(c, nil, &opts, true); err != nil {
		return nil, nil, err
	}
	return c.Data(), gpu.Data(), nil
}

// prepare rebuilds the per-LOD bone infos and the section and material
// tables from the raw meshes.
func (m *Mesh) prepare() error {
	infos := make([]*BoneInfo, len(m.BoneInfos))
	copy(infos, m.BoneInfos)
	for _, raw := range m.RawMeshes {
		mi, err := m.meshInfo(raw)
		if err != nil {
			return err
		}
		if mi.LodIndex < 0 || int(mi.LodIndex) >= len(infos) || raw.BoneInfoIndex < 0 || raw.BoneInfoIndex >= len(m.BoneInfos) {
			continue
		}
		if int(mi.LodIndex) != raw.BoneInfoIndex && m.BoneInfos[raw.BoneInfoIndex] != nil {
			infos[mi.LodIndex] = m.BoneInfos[raw.BoneInfoIndex].Clone()
		}
	}
	m.BoneInfos = infos

	m.SectionIDs = m.SectionIDs[:0]
	m.MaterialIDs = m.MaterialIDs[:0]
	order := uint32(0)
	for _, raw := range m.RawMeshes {
		if len(raw.Materials) == 0 {
			return errors.Wrapf(ErrNoMaterials, "mesh info index %d", raw.MeshInfoIndex)
		}
		mi, _ := m.meshInfo(raw)
		mi.Sections = make([]Section, 0, len(raw.Materials))
		for _, mat := range raw.Materials {
			s := Section{
				ID:         mat.ShortID,
				NumIndices: mat.NumIndices,
				// Placeholder keys so the ordered lists follow RawMeshes.
				VertexOffset: order,
				IndexOffset:  order,
			}
			if mat.BoneInfoOverride != nil {
				s.MaterialIndex, s.GroupIndex = *mat.BoneInfoOverride, *mat.BoneInfoOverride
			} else {
				s.MaterialIndex, s.GroupIndex = uint32(len(mi.Sections)), uint32(len(mi.Sections))
			}
			mi.Sections = append(mi.Sections, s)
			order++
			if !mat.IsDefault() {
				m.MaterialIDs = append(m.MaterialIDs, mat.MaterialID)
				m.SectionIDs = append(m.SectionIDs, mat.ShortID)
			}
		}
	}
	return nil
}

// blob reads or writes the opaque block of section s at the cursor. On read
// the block ends where the next present section begins.
func (m *Mesh) blob(c *stream.Cursor, s section, data []byte) ([]byte, error) {
	if c.IsWriting() {
		return c.Bytes(data, len(data)), nil
	}
	start := c.Tell()
	end, ok := m.Header.extentEnd(s)
	if !ok {
		return nil, nil
	}
	if int(end) < start || int(end) > c.Len() {
		return nil, decodeError(s.String(), start, errors.Errorf("block ends at %#x", end))
	}
	return c.Bytes(nil, int(end)-start), nil
}

// place seeks to a section when reading and records its new offset when
// writing.
func place(c *stream.Cursor, off *uint32) {
	if c.IsReading() {
		c.Seek(int(*off))
	} else {
		*off = uint32(c.Tell())
	}
}

// serialize walks the section table. When reading it returns the GPU
// payload the vertex walk must use, which a composite may replace.
func (m *Mesh) serialize(c *stream.Cursor, gpu []byte, opts *Options, redo bool) ([]byte, error) {
	h := &m.Header
	h.serialize(c)
	if c.IsReading() {
		if c.Err() != nil {
			return nil, decodeError("header", 0, c.Err())
		}
		if h.MeshInfoOffset == 0 {
			return nil, decodeError("header", 0, ErrNoGeometry)
		}
		if h.StreamInfoOffset == 0 && h.CompositeRef == 0 {
			return nil, decodeError("header", 0, ErrNoBufferStream)
		}
	}

	var err error
	if h.WwiseCallbackOffset > 0 {
		place(c, &h.WwiseCallbackOffset)
		if m.WwiseCallbackData, err = m.blob(c, secWwiseCallback, m.WwiseCallbackData); err != nil {
			return nil, err
		}
	}
	if h.PreLightListOffset > 0 {
		place(c, &h.PreLightListOffset)
		if m.PreLightListData, err = m.blob(c, secPreLightList, m.PreLightListData); err != nil {
			return nil, err
		}
	}
	if h.LightListOffset > 0 {
		place(c, &h.LightListOffset)
		if err := m.Lights.serialize(c); err != nil {
			return nil, decodeError(secLightList.String(), int(h.LightListOffset), err)
		}
	}

	// The LOD group list has no reliable offset of its own on read: it
	// follows the light list up to the next present section.
	if c.IsWriting() {
		h.LODGroupOffset = uint32(c.Tell())
	}
	if m.LODGroupData, err = m.blob(c, secLightList, m.LODGroupData); err != nil {
		return nil, err
	}

	if h.TransformInfoOffset > 0 {
		place(c, &h.TransformInfoOffset)
		if err := m.Transforms.serialize(c); err != nil {
			return nil, decodeError(secTransformInfo.String(), int(h.TransformInfoOffset), err)
		}
		c.Align(16)
	}
	if h.CustomizationInfoOffset > 0 {
		place(c, &h.CustomizationInfoOffset)
		if m.CustomizationData, err = m.blob(c, secCustomizationInfo, m.CustomizationData); err != nil {
			return nil, err
		}
		if c.IsReading() {
			m.Customization = parseCustomization(m.CustomizationData)
		}
	}
	if h.UnkHeaderOffset1 > 0 {
		place(c, &h.UnkHeaderOffset1)
		if m.UnkHeaderData1, err = m.blob(c, secUnkHeader1, m.UnkHeaderData1); err != nil {
			return nil, err
		}
	}
	if h.ConnectingBoneOffset > 0 {
		place(c, &h.ConnectingBoneOffset)
		if m.ConnectingBoneData, err = m.blob(c, secConnectingBone, m.ConnectingBoneData); err != nil {
			return nil, err
		}
	}

	if h.BoneInfoOffset > 0 || (c.IsWriting() && len(m.BoneInfos) > 0) {
		place(c, &h.BoneInfoOffset)
		if err := m.serializeBoneInfos(c, redo); err != nil {
			return nil, decodeError(secBoneInfo.String(), int(h.BoneInfoOffset), err)
		}
	}

	if h.StreamInfoOffset != 0 {
		if c.IsWriting() {
			c.Align(16)
		}
		place(c, &h.StreamInfoOffset)
		if err := m.serializeStreamInfos(c); err != nil {
			return nil, decodeError(secStreamInfo.String(), int(h.StreamInfoOffset), err)
		}
	}

	place(c, &h.MeshInfoOffset)
	if err := m.serializeMeshInfos(c); err != nil {
		return nil, decodeError(secMeshInfo.String(), int(h.MeshInfoOffset), err)
	}

	if c.IsReading() && h.CompositeRef != 0 {
		if gpu, err = m.resolveComposite(opts); err != nil {
			return nil, decodeError("composite", 0, err)
		}
	}

	place(c, &h.MaterialsOffset)
	n := c.Uint32(uint32(len(m.MaterialIDs)))
	if c.IsReading() {
		if !fits(c, int(n), 12) {
			return nil, decodeError("materials", int(h.MaterialsOffset), errors.Errorf("%d materials overrun the buffer", n))
		}
		m.SectionIDs = make([]uint32, n)
		m.MaterialIDs = make([]uint64, n)
	}
	c.Uint32s(m.SectionIDs)
	c.Uint64s(m.MaterialIDs)
	if c.IsReading() && opts.LoadMaterialSlotNames && opts.Slots != nil {
		for i := range m.MaterialIDs {
			opts.Slots.AddSlot(m.NameHash, m.MaterialIDs[i], m.SectionIDs[i])
		}
	}

	if c.IsReading() {
		size := int(h.EndingOffset) - c.Tell()
		if size < 0 || int(h.EndingOffset) > c.Len() {
			return nil, decodeError("trailing data", c.Tell(), errors.Errorf("ending offset %#x", h.EndingOffset))
		}
		m.TrailingData = c.Bytes(nil, size)
	} else {
		c.Bytes(m.TrailingData, len(m.TrailingData))
		h.EndingOffset = uint32(c.Tell())
	}
	c.Uint64(uint64(len(m.MeshInfos)))

	if err := c.Err(); err != nil {
		return nil, decodeError("section table", c.Tell(), err)
	}
	return gpu, nil
}

func (m *Mesh) serializeBoneInfos(c *stream.Cursor, redo bool) error {
	base := c.Tell()
	n := c.Uint32(uint32(len(m.BoneInfos)))
	if c.IsReading() {
		if !fits(c, int(n), 4) {
			return errors.Errorf("%d bone infos overrun the buffer", n)
		}
		m.BoneInfos = make([]*BoneInfo, n)
		for i := range m.BoneInfos {
			m.BoneInfos[i] = &BoneInfo{}
		}
	}
	if c.IsReading() || !redo || len(m.BoneInfoOffsets) != int(n) {
		m.BoneInfoOffsets = make([]uint32, n)
	}
	c.Uint32s(m.BoneInfoOffsets)
	for i, info := range m.BoneInfos {
		if c.IsReading() {
			c.Seek(base + int(m.BoneInfoOffsets[i]))
		} else {
			m.BoneInfoOffsets[i] = uint32(c.Tell() - base)
		}
		if info == nil {
			info = &BoneInfo{}
			m.BoneInfos[i] = info
		}
		if err := info.serialize(c); err != nil {
			return errors.Wrapf(err, "bone info %d", i)
		}
	}
	return nil
}

func (m *Mesh) serializeStreamInfos(c *stream.Cursor) error {
	base := c.Tell()
	n := c.Uint32(uint32(len(m.StreamInfos)))
	if c.IsReading() {
		if !fits(c, int(n), 8) {
			return errors.Errorf("%d stream infos overrun the buffer", n)
		}
		m.StreamInfos = make([]*StreamInfo, n)
		for i := range m.StreamInfos {
			m.StreamInfos[i] = &StreamInfo{}
		}
	}
	if len(m.StreamInfoOffsets) != int(n) {
		m.StreamInfoOffsets = make([]uint32, n)
	}
	c.Uint32s(m.StreamInfoOffsets)
	// The second table holds the mesh id of the first n mesh infos.
	for i := 0; i < int(n); i++ {
		var id uint32
		if i < len(m.MeshInfos) {
			id = m.MeshInfos[i].MeshID
		}
		c.Uint32(id)
	}
	m.StreamInfoUnk2 = c.Uint32(m.StreamInfoUnk2)
	for i, info := range m.StreamInfos {
		if c.IsReading() {
			c.Seek(base + int(m.StreamInfoOffsets[i]))
		} else {
			m.StreamInfoOffsets[i] = uint32(c.Tell() - base)
		}
		if err := info.serialize(c); err != nil {
			return errors.Wrapf(err, "stream info %d", i)
		}
	}
	return nil
}

func (m *Mesh) serializeMeshInfos(c *stream.Cursor) error {
	base := c.Tell()
	n := c.Uint32(uint32(len(m.MeshInfos)))
	if c.IsReading() {
		if !fits(c, int(n), 8) {
			return errors.Errorf("%d mesh infos overrun the buffer", n)
		}
		m.MeshInfos = make([]*MeshInfo, n)
		m.MeshInfoMap = make([]int, n)
		for i := range m.MeshInfos {
			m.MeshInfos[i] = &MeshInfo{}
			m.MeshInfoMap[i] = i
		}
	}
	if len(m.MeshInfoOffsets) != int(n) {
		m.MeshInfoOffsets = make([]uint32, n)
	}
	c.Uint32s(m.MeshInfoOffsets)
	for _, mi := range m.MeshInfos {
		mi.MeshID = c.Uint32(mi.MeshID)
	}
	for i, mi := range m.MeshInfos {
		if c.IsReading() {
			c.Seek(base + int(m.MeshInfoOffsets[i]))
		} else {
			m.MeshInfoOffsets[i] = uint32(c.Tell() - base)
		}
		if err := mi.serialize(c); err != nil {
			return errors.Wrapf(err, "mesh info %d", i)
		}
	}
	return nil
}

// resolveComposite replaces the stream layout with the one of the geometry
// group the unit belongs to and returns the group's GPU payload.
func (m *Mesh) resolveComposite(opts *Options) ([]byte, error) {
	if opts.Composite == nil {
		return nil, errors.Wrapf(ErrComposite, "%d: no resolver", m.CompositeRef)
	}
	layout, err := opts.Composite.ResolveComposite(m.CompositeRef, m.NameHash)
	if err != nil {
		return nil, errors.Wrapf(ErrComposite, "%d: %v", m.CompositeRef, err)
	}
	if layout == nil {
		return nil, errors.Wrapf(ErrComposite, "%d: not found", m.CompositeRef)
	}
	m.StreamInfos = layout.StreamInfos
	for _, mi := range m.MeshInfos {
		cm, ok := layout.Meshes[mi.MeshID]
		if !ok {
			return nil, errors.Wrapf(ErrComposite, "%d: mesh %d missing", m.CompositeRef, mi.MeshID)
		}
		mi.StreamIndex = cm.StreamIndex
		mi.NumMaterials = uint32(len(cm.Materials))
		mi.MaterialOffset = cm.MaterialsOffset + 0x50
		mi.MaterialIDs = append([]uint32(nil), cm.Materials...)
		mi.Sections = append([]Section(nil), cm.Sections...)
		mi.SectionsOffset = cm.SectionsOffset + 0x50
		mi.NumSections = uint32(len(cm.Sections))
	}
	m.StreamInfoOffset = 1
	return layout.Gpu, nil
}
