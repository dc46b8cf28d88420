package unit

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// quadMesh returns a one-stream unit holding a single textured quad.
func quadMesh() *Mesh {
	raw := &RawMesh{
		MeshID:    0x11,
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Normals:   []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:       [][]mgl32.Vec2{{{0, 0}, {1, 0}, {0, 1}, {1, 1}}},
		Indices:   [][3]uint32{{0, 1, 2}, {2, 1, 3}},
		Materials: []RawMaterial{{MaterialID: 1234, ShortID: 0xABCD, NumIndices: 6}},
		Transform: mgl32.Ident4(),
	}
	return &Mesh{
		NameHash:    42,
		Header:      Header{StreamInfoOffset: 1, MeshInfoOffset: 1},
		StreamInfos: []*StreamInfo{{}},
		MeshInfos:   []*MeshInfo{{MeshID: 0x11}},
		MeshInfoMap: []int{0},
		RawMeshes:   []*RawMesh{raw},
	}
}

// skinnedMesh returns a unit whose attributes all survive a decode and
// re-encode bit for bit.
func skinnedMesh() *Mesh {
	m := quadMesh()
	raw := m.RawMeshes[0]
	raw.Normals = nil
	raw.BoneIndices = [][][4]uint32{{{0, 1, 0, 0}, {1, 0, 0, 0}, {0, 0, 0, 0}, {2, 0, 0, 0}}}
	raw.Weights = []mgl32.Vec4{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}, {1, 0, 0, 0}, {0.25, 0.75, 0, 0}}
	return m
}

func TestNormalPacking(t *testing.T) {
	t.Run("Up", func(t *testing.T) {
		assert.Equal(t, uint32(523775), PackNormal(mgl32.Vec3{0, 0, 1}))
	})

	t.Run("RandomDirections", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 10000; i++ {
			n := mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
			if n.Len() < 1e-3 {
				continue
			}
			n = n.Normalize()
			got := UnpackNormal(PackNormal(n))
			require.LessOrEqual(t, 1-got.Dot(n), float32(0.003), "normal %v decoded as %v", n, got)
		}
	})

	t.Run("UnpackIsUnitLength", func(t *testing.T) {
		for _, v := range []uint32{0, 0x3ff, 0xffc00, 0xfffff, 523775} {
			assert.InDelta(t, 1, UnpackNormal(v).Len(), 1e-5)
		}
	})
}

func Test1010102(t *testing.T) {
	packed := pack1010102([4]float32{1, 0, 0.5, 1})
	assert.Equal(t, uint32(1023|512<<20|3<<30), packed)

	got := unpack1010102(packed)
	assert.InDelta(t, 1, got[0], 1e-6)
	assert.InDelta(t, 0, got[1], 1e-6)
	assert.InDelta(t, 0.5, got[2], 1e-3)
	assert.InDelta(t, 1, got[3], 1e-6)

	t.Run("ReadDropsAlpha", func(t *testing.T) {
		w := stream.NewWriter()
		_, err := serializeFloats(w, FormatVec4R10G10B10A2, [4]float32{0.25, 0.5, 0.75, 1})
		require.NoError(t, err)
		v, err := serializeFloats(stream.NewReader(w.Data()), FormatVec4R10G10B10A2, [4]float32{})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, v[0], 1e-3)
		assert.InDelta(t, 0.75, v[2], 1e-3)
		assert.Equal(t, float32(0), v[3])
	})
}

func TestComponentFormats(t *testing.T) {
	t.Run("Sizes", func(t *testing.T) {
		sizes := map[Format]int{
			FormatFloat: 4, FormatVec2Float: 8, FormatVec3Float: 12, FormatRGBA8: 4,
			FormatVec4Uint32: 16, FormatVec4Uint8: 4, FormatVec4R10G10B10A2: 4,
			FormatPackedNormal: 4, FormatVec2Half: 4, FormatVec4Half: 8,
		}
		for f, want := range sizes {
			got, err := f.Size()
			require.NoError(t, err, f.String())
			assert.Equal(t, want, got, f.String())
		}
		_, err := Format(99).Size()
		assert.True(t, errors.Is(err, ErrUnknownFormat))
	})

	t.Run("RGBA8Clamps", func(t *testing.T) {
		w := stream.NewWriter()
		_, err := serializeFloats(w, FormatRGBA8, [4]float32{1, 0.5, -1, 2})
		require.NoError(t, err)
		assert.Equal(t, []byte{255, 127, 0, 255}, w.Data())

		v, err := serializeFloats(stream.NewReader(w.Data()), FormatRGBA8, [4]float32{})
		require.NoError(t, err)
		assert.Equal(t, float32(1), v[0])
		assert.InDelta(t, 127.0/255, v[1], 1e-6)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := serializeFloats(stream.NewWriter(), Format(77), [4]float32{})
		assert.True(t, errors.Is(err, ErrUnknownFormat))
	})

	t.Run("UnknownComponentType", func(t *testing.T) {
		raw := &RawMesh{}
		raw.InitBlank(1, 0, 0, 0)
		err := raw.serializeAttribute(stream.NewWriter(), Component{Type: ComponentType(42), Format: FormatFloat}, 0)
		assert.True(t, errors.Is(err, ErrUnknownComponent))
	})

	t.Run("BoneIndexChannelOutOfRange", func(t *testing.T) {
		raw := &RawMesh{}
		raw.InitBlank(1, 0, 0, 1)
		err := raw.serializeAttribute(stream.NewWriter(), Component{Type: BoneIndex, Format: FormatVec4Uint8, Index: 1}, 0)
		assert.Error(t, err)
	})
}

func TestExtentEnd(t *testing.T) {
	h := Header{LightListOffset: 0x100, BoneInfoOffset: 0x300, MeshInfoOffset: 0x400}

	end, ok := h.extentEnd(secLightList)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x300), end)

	end, ok = h.extentEnd(secBoneInfo)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x400), end)

	_, ok = h.extentEnd(secMeshInfo)
	assert.False(t, ok)

	assert.Equal(t, "bone info", secBoneInfo.String())
}

func TestMeshRoundTrip(t *testing.T) {
	tocData, gpuData, err := quadMesh().Encode(Options{})
	require.NoError(t, err)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(tocData[16:]), "composite reference")

	m, err := Decode(42, tocData, gpuData, Options{})
	require.NoError(t, err)
	assert.Empty(t, m.Warnings)
	require.Len(t, m.RawMeshes, 1)
	raw := m.RawMeshes[0]

	t.Run("Geometry", func(t *testing.T) {
		assert.Equal(t, uint32(0x11), raw.MeshID)
		assert.Equal(t, quadMesh().RawMeshes[0].Positions, raw.Positions)
		assert.Equal(t, [][3]uint32{{0, 1, 2}, {2, 1, 3}}, raw.Indices)
		require.Len(t, raw.UVs, 1)
		assert.Equal(t, []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, raw.UVs[0])
		for _, n := range raw.Normals {
			assert.InDelta(t, 1, n.Dot(mgl32.Vec3{0, 0, 1}), 1e-3)
		}
		assert.Nil(t, raw.Colors, "stream carries no colors")
		assert.False(t, raw.CompiledIncorrectly)
	})

	t.Run("Materials", func(t *testing.T) {
		require.Len(t, raw.Materials, 1)
		mat := raw.Materials[0]
		assert.Equal(t, uint64(1234), mat.MaterialID)
		assert.Equal(t, uint32(0xABCD), mat.ShortID)
		assert.Equal(t, uint32(0), mat.StartIndex)
		assert.Equal(t, uint32(6), mat.NumIndices)
		assert.Equal(t, []uint32{0xABCD}, m.SectionIDs)
		assert.Equal(t, []uint64{1234}, m.MaterialIDs)
	})

	t.Run("Layout", func(t *testing.T) {
		require.Len(t, m.StreamInfos, 1)
		st := m.StreamInfos[0]
		assert.Equal(t, uint32(4), st.NumVertices)
		assert.Equal(t, uint32(6), st.NumIndices)
		assert.Equal(t, 2, st.IndexStride())
		assert.Equal(t, uint32(12+4+4), st.VertexStride)
		assert.Equal(t, 1, st.count(UV))
	})

	t.Run("SlotCache", func(t *testing.T) {
		slots := registry.NewMaterialSlots()
		_, err := Decode(42, tocData, gpuData, Options{LoadMaterialSlotNames: true, Slots: slots})
		require.NoError(t, err)
		assert.Equal(t, []uint32{0xABCD}, slots.Slots(42, 1234))
	})
}

func TestReencodeIsStable(t *testing.T) {
	tocData, gpuData, err := skinnedMesh().Encode(Options{})
	require.NoError(t, err)

	m, err := Decode(42, tocData, gpuData, Options{})
	require.NoError(t, err)
	require.Len(t, m.RawMeshes, 1)
	assert.Equal(t, skinnedMesh().RawMeshes[0].Weights, m.RawMeshes[0].Weights)
	assert.Equal(t, skinnedMesh().RawMeshes[0].BoneIndices, m.RawMeshes[0].BoneIndices)

	toc2, gpu2, err := m.Encode(Options{})
	require.NoError(t, err)
	assert.Equal(t, tocData, toc2)
	assert.Equal(t, gpuData, gpu2)
}

func TestEncodeOptions(t *testing.T) {
	t.Run("Force3UVs", func(t *testing.T) {
		m := quadMesh()
		_, _, err := m.Encode(Options{Force3UVs: true})
		require.NoError(t, err)
		assert.Equal(t, 3, m.StreamInfos[0].count(UV))
		assert.Len(t, m.RawMeshes[0].UVs, 3)
	})

	t.Run("Force1Group", func(t *testing.T) {
		m := skinnedMesh()
		raw := m.RawMeshes[0]
		raw.BoneIndices = append(raw.BoneIndices, make([][4]uint32, len(raw.Positions)))
		_, _, err := m.Encode(Options{Force1Group: true})
		require.NoError(t, err)
		assert.Equal(t, 1, m.StreamInfos[0].count(BoneIndex))
	})

	t.Run("NoMaterials", func(t *testing.T) {
		m := quadMesh()
		m.RawMeshes[0].Materials = nil
		_, _, err := m.Encode(Options{})
		assert.True(t, errors.Is(err, ErrNoMaterials))
	})

	t.Run("NoVertices", func(t *testing.T) {
		m := quadMesh()
		m.RawMeshes[0].Positions = nil
		_, _, err := m.Encode(Options{})
		assert.True(t, errors.Is(err, ErrNoVertices))
	})

	t.Run("MismatchedAttribute", func(t *testing.T) {
		m := quadMesh()
		m.RawMeshes[0].Normals = m.RawMeshes[0].Normals[:2]
		_, _, err := m.Encode(Options{})
		assert.Error(t, err)
	})
}

func TestIndexClamp(t *testing.T) {
	clampMesh := func() *Mesh {
		m := quadMesh()
		raw := m.RawMeshes[0]
		raw.Positions = raw.Positions[:3]
		raw.Normals = nil
		raw.UVs = nil
		raw.Indices = [][3]uint32{{0, 1, 0x10000}}
		raw.Materials[0].NumIndices = 3
		return m
	}

	t.Run("SixteenBit", func(t *testing.T) {
		m := clampMesh()
		tocData, gpuData, err := m.Encode(Options{})
		require.NoError(t, err)
		assert.True(t, m.RawMeshes[0].CompiledIncorrectly)
		assert.Len(t, m.Warnings, 1)

		// Three 12-byte positions padded to 48, then the index buffer.
		st := m.StreamInfos[0]
		require.Equal(t, uint32(48), st.IndexBufferOffset)
		assert.Equal(t, uint16(0xffff), binary.LittleEndian.Uint16(gpuData[52:]))

		got, err := Decode(42, tocData, gpuData, Options{})
		require.NoError(t, err)
		require.Len(t, got.RawMeshes, 1)
		assert.True(t, got.RawMeshes[0].CompiledIncorrectly)
		assert.NotEmpty(t, got.Warnings)
		assert.Equal(t, [3]uint32{0, 1, 2}, got.RawMeshes[0].Indices[0], "clamped to the last vertex")
	})

	t.Run("IntoPadding", func(t *testing.T) {
		m := clampMesh()
		m.RawMeshes[0].Indices = [][3]uint32{{0, 1, 2}}
		tocData, gpuData, err := m.Encode(Options{})
		require.NoError(t, err)
		require.False(t, m.RawMeshes[0].CompiledIncorrectly)

		// Vertex 3 lies in the alignment padding of the 48-byte buffer.
		binary.LittleEndian.PutUint16(gpuData[52:], 3)
		got, err := Decode(42, tocData, gpuData, Options{})
		require.NoError(t, err)
		assert.True(t, got.RawMeshes[0].CompiledIncorrectly)
		assert.Equal(t, [3]uint32{0, 1, 2}, got.RawMeshes[0].Indices[0])
	})

	t.Run("ThirtyTwoBit", func(t *testing.T) {
		m := clampMesh()
		m.RawMeshes[0].Use32BitIndices = true
		_, gpuData, err := m.Encode(Options{})
		require.NoError(t, err)
		assert.False(t, m.RawMeshes[0].CompiledIncorrectly)
		st := m.StreamInfos[0]
		assert.Equal(t, uint32(1), st.IndexBufferType)
		assert.Equal(t, uint32(0x10000), binary.LittleEndian.Uint32(gpuData[st.IndexBufferOffset+8:]))
	})
}

func TestDecodeErrors(t *testing.T) {
	t.Run("NoGeometry", func(t *testing.T) {
		_, err := Decode(1, make([]byte, HeaderSize), nil, Options{})
		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "header", de.Section)
		assert.True(t, errors.Is(err, ErrNoGeometry))
	})

	t.Run("NoBufferStream", func(t *testing.T) {
		data := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(data[100:], HeaderSize)
		_, err := Decode(1, data, nil, Options{})
		assert.True(t, errors.Is(err, ErrNoBufferStream))
	})

	t.Run("CompositeWithoutResolver", func(t *testing.T) {
		tocData, gpuData, err := quadMesh().Encode(Options{})
		require.NoError(t, err)
		binary.LittleEndian.PutUint64(tocData[16:], 0xC0FFEE)
		_, err = Decode(1, tocData, gpuData, Options{})
		assert.True(t, errors.Is(err, ErrComposite))
	})

	tocData, gpuData, err := quadMesh().Encode(Options{})
	require.NoError(t, err)

	t.Run("TruncatedToc", func(t *testing.T) {
		_, err := Decode(1, tocData[:len(tocData)/2], gpuData, Options{})
		assert.Error(t, err)
	})

	t.Run("TruncatedGpu", func(t *testing.T) {
		_, err := Decode(1, tocData, gpuData[:10], Options{})
		var de *DecodeError
		assert.True(t, errors.As(err, &de))
	})
}

type fixedComposite struct{ layout *CompositeLayout }

func (f fixedComposite) ResolveComposite(compositeID, unitID uint64) (*CompositeLayout, error) {
	return f.layout, nil
}

func TestCompositeResolution(t *testing.T) {
	src := quadMesh()
	tocData, gpuData, err := src.Encode(Options{})
	require.NoError(t, err)

	layout := &CompositeLayout{
		StreamInfos: src.StreamInfos,
		Meshes: map[uint32]CompositeMesh{
			0x11: {Materials: src.MeshInfos[0].MaterialIDs, Sections: src.MeshInfos[0].Sections},
		},
		Gpu: gpuData,
	}
	binary.LittleEndian.PutUint64(tocData[16:], 0xC0FFEE)

	m, err := Decode(42, tocData, nil, Options{Composite: fixedComposite{layout}})
	require.NoError(t, err)
	require.Len(t, m.RawMeshes, 1)
	assert.Equal(t, src.RawMeshes[0].Positions, m.RawMeshes[0].Positions)

	// Re-encoding writes a standalone unit.
	tocOut, _, err := m.Encode(Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(tocOut[16:]))
}

func TestAutoLODs(t *testing.T) {
	lod0 := &RawMesh{
		MeshInfoIndex: 0,
		MeshID:        1,
		Positions:     []mgl32.Vec3{{1, 2, 3}},
		Materials:     []RawMaterial{{MaterialID: 7}},
		BoneInfoIndex: 0,
	}
	culling := &RawMesh{MeshInfoIndex: 1, MeshID: 2, LodIndex: 1, Materials: []RawMaterial{DefaultMaterial()}}
	lod1 := &RawMesh{
		MeshInfoIndex: 2,
		MeshID:        3,
		LodIndex:      1,
		Positions:     []mgl32.Vec3{{9, 9, 9}},
		Materials:     []RawMaterial{{MaterialID: 8}},
		Transform:     mgl32.Translate3D(1, 0, 0),
		BoneInfoIndex: 1,
	}
	m := &Mesh{RawMeshes: []*RawMesh{lod0, culling, lod1}}

	assert.Equal(t, 1, m.ApplyAutoLODs())
	assert.Same(t, culling, m.RawMeshes[1])

	got := m.RawMeshes[2]
	assert.Equal(t, 2, got.MeshInfoIndex)
	assert.Equal(t, uint32(3), got.MeshID)
	assert.Equal(t, int32(1), got.LodIndex)
	assert.Equal(t, mgl32.Translate3D(1, 0, 0), got.Transform)
	assert.Equal(t, 0, got.BoneInfoIndex)
	assert.Equal(t, lod0.Positions, got.Positions)
	assert.Equal(t, lod0.Materials, got.Materials)

	got.Positions[0] = mgl32.Vec3{}
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, lod0.Positions[0], "copies are deep")

	t.Run("NoSource", func(t *testing.T) {
		m := &Mesh{RawMeshes: []*RawMesh{culling}}
		assert.Equal(t, 0, m.ApplyAutoLODs())
	})
}

func TestPrepareCopiesBoneInfoIntoLODSlot(t *testing.T) {
	b0 := &BoneInfo{RealIndices: []uint32{4}, Bones: []mgl32.Mat4{mgl32.Ident4()}, Remaps: [][]uint32{{0}}}
	b1 := &BoneInfo{RealIndices: []uint32{9}, Bones: []mgl32.Mat4{mgl32.Ident4()}, Remaps: [][]uint32{{0}}}
	m := &Mesh{
		MeshInfos:   []*MeshInfo{{LodIndex: 0}, {LodIndex: 1}},
		MeshInfoMap: []int{0, 1},
		BoneInfos:   []*BoneInfo{b0, b1},
		RawMeshes: []*RawMesh{
			{MeshInfoIndex: 0, BoneInfoIndex: 0, Materials: []RawMaterial{{MaterialID: 5, ShortID: 6, NumIndices: 3}}},
			{MeshInfoIndex: 1, LodIndex: 1, BoneInfoIndex: 0, Materials: []RawMaterial{DefaultMaterial()}},
		},
	}
	require.NoError(t, m.prepare())

	assert.Same(t, b0, m.BoneInfos[0])
	assert.NotSame(t, b0, m.BoneInfos[1])
	assert.Equal(t, []uint32{4}, m.BoneInfos[1].RealIndices)
	assert.Equal(t, []uint32{9}, b1.RealIndices, "the replaced table is untouched")

	assert.Equal(t, []uint32{6}, m.SectionIDs, "default materials are not listed")
	assert.Equal(t, []uint64{5}, m.MaterialIDs)
	assert.Equal(t, uint32(DefaultMaterialShortID), m.MeshInfos[1].Sections[0].ID)
}

func TestBoneRemap(t *testing.T) {
	transforms := &TransformInfo{NameHashes: []uint32{registry.Hash32("root"), registry.Hash32("spine"), 777}}
	b := &BoneInfo{}

	skipped := b.SetRemap([][]string{{"spine", "777", "missing"}, {"777"}}, transforms)
	assert.Len(t, skipped, 1)
	assert.Equal(t, []uint32{1, 2}, b.RealIndices)
	assert.Len(t, b.Bones, 2)
	assert.Equal(t, [][]uint32{{0, 1}, {1}}, b.Remaps)

	ri, ok := b.RealIndex(1, 0)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), ri)

	local, ok := b.RemappedIndex(2, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), local)

	_, ok = b.RealIndex(5, 0)
	assert.False(t, ok)
	_, ok = b.RemappedIndex(0, 3)
	assert.False(t, ok)

	t.Run("Serialize", func(t *testing.T) {
		// Offsets are only known after the first pass.
		w := stream.NewWriter()
		require.NoError(t, b.serialize(w))
		w.Seek(0)
		require.NoError(t, b.serialize(w))

		var got BoneInfo
		r := stream.NewReader(w.Data())
		require.NoError(t, got.serialize(r))
		require.NoError(t, r.Err())
		assert.Equal(t, b.Bones, got.Bones)
		assert.Equal(t, b.RealIndices, got.RealIndices)
		assert.Equal(t, b.Remaps, got.Remaps)
	})
}

func TestCustomization(t *testing.T) {
	w := stream.NewWriter()
	for i, s := range []string{"body\x00", "slot", "weight", "piece"} {
		skip := 12
		if i == 0 {
			skip = 24
		}
		w.Skip(skip)
		w.Uint32(uint32(len(s)))
		w.Bytes([]byte(s), len(s))
	}
	got := parseCustomization(w.Data())
	assert.Equal(t, CustomizationInfo{BodyType: "body", Slot: "slot", Weight: "weight", PieceType: "piece"}, got)

	assert.Equal(t, CustomizationInfo{}, parseCustomization(w.Data()[:30]))
}

func BenchmarkDecode(b *testing.B) {
	tocData, gpuData, err := skinnedMesh().Encode(Options{})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(42, tocData, gpuData, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPackNormal(b *testing.B) {
	n := mgl32.Vec3{0.3, -0.5, 0.8}
	for i := 0; i < b.N; i++ {
		_ = UnpackNormal(PackNormal(n))
	}
}
