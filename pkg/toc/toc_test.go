package toc

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleToc() *StreamToc {
	t := New("/tmp/sample")
	add := func(fileID, typeID uint64, tocData, gpu, strm []byte) {
		e := NewEntry(fileID, typeID)
		e.SetData(Payload{Toc: tocData, Gpu: gpu, Stream: strm}, false)
		if err := t.AddEntry(e, false); err != nil {
			panic(err)
		}
	}
	add(1, UnitID, []byte("unit-one"), bytes.Repeat([]byte{0xAA}, 70), []byte{1, 2, 3})
	add(2, TextureID, []byte("tex"), nil, bytes.Repeat([]byte{0xBB}, 130))
	add(3, UnitID, []byte("unit-three"), []byte{9}, nil)
	add(4, MaterialID, []byte{}, nil, nil)
	return t
}

func TestContainerRoundTrip(t *testing.T) {
	src := sampleToc()
	tocData, gpu, strm := src.ToTriplet()

	got, err := FromTriplet(tocData, gpu, strm, true)
	require.NoError(t, err)

	t.Run("TypeTable", func(t *testing.T) {
		assert.Equal(t, []uint64{UnitID, TextureID, MaterialID}, got.TypeIDs())
		require.Len(t, got.Types, 3)
		assert.Equal(t, uint64(2), got.Types[0].Count)
		assert.Equal(t, uint32(16), got.Types[0].Unknown2)
		assert.Equal(t, uint32(64), got.Types[0].Unknown3)
	})

	t.Run("Payloads", func(t *testing.T) {
		require.Equal(t, src.Len(), got.Len())
		for _, want := range src.Entries() {
			e := got.GetEntry(want.FileID, want.TypeID)
			require.NotNil(t, e, "entry %s", want)
			assert.Equal(t, len(want.TocData), len(e.TocData))
			assert.True(t, bytes.Equal(want.TocData, e.TocData))
			assert.True(t, bytes.Equal(want.GpuData, e.GpuData))
			assert.True(t, bytes.Equal(want.StreamData, e.StreamData))
		}
	})

	t.Run("IndicesAreOneBasedInTypeOrder", func(t *testing.T) {
		var idx []uint32
		for _, e := range got.Entries() {
			idx = append(idx, e.EntryIndex)
		}
		assert.Equal(t, []uint32{1, 2, 3, 4}, idx)
		assert.Equal(t, uint64(3), got.Entries()[1].FileID)
	})

	t.Run("Alignment", func(t *testing.T) {
		for _, e := range got.Entries() {
			if e.GpuResourceSize > 0 {
				assert.Zero(t, e.GpuResourceOffset%PayloadAlignment, "gpu offset of %s", e)
			} else {
				assert.Zero(t, e.GpuResourceOffset)
			}
			if e.StreamSize > 0 {
				assert.Zero(t, e.StreamOffset%PayloadAlignment, "stream offset of %s", e)
			} else {
				assert.Zero(t, e.StreamOffset)
			}
		}
		// 70 bytes then 1 byte at the next boundary.
		assert.Len(t, gpu, 129)
	})

	t.Run("ReencodeIsStable", func(t *testing.T) {
		toc2, gpu2, strm2 := got.ToTriplet()
		assert.Equal(t, tocData, toc2)
		assert.Equal(t, gpu, gpu2)
		assert.Equal(t, strm, strm2)
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		hdr, err := FromTriplet(tocData, nil, nil, false)
		require.NoError(t, err)
		e := hdr.GetEntry(2, TextureID)
		require.NotNil(t, e)
		assert.Equal(t, uint32(130), e.StreamSize)
		assert.Nil(t, e.StreamData)
	})
}

func TestMinimumSize(t *testing.T) {
	c := New("")
	for i := uint64(1); i <= 3; i++ {
		e := NewEntry(i, TextureID)
		e.SetData(Payload{Toc: []byte{byte(i)}}, false)
		require.NoError(t, c.AddEntry(e, false))
	}
	tocData, _, _ := c.ToTriplet()
	assert.GreaterOrEqual(t, len(tocData), 768)
	assert.Equal(t, 768, len(tocData))
}

func TestFormatProbe(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		_, err := FromTriplet(nil, nil, nil, true)
		assert.True(t, errors.Is(err, ErrNotStreamToc))
	})

	t.Run("BadMagic", func(t *testing.T) {
		data := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(data, 0x12345678)
		_, err := FromTriplet(data, nil, nil, true)
		assert.True(t, errors.Is(err, ErrNotStreamToc))
	})

	t.Run("TruncatedEntryTable", func(t *testing.T) {
		data := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(data[0:], Magic)
		binary.LittleEndian.PutUint32(data[8:], 5)
		_, err := FromTriplet(data, nil, nil, true)
		assert.True(t, errors.Is(err, ErrTruncated))
		assert.False(t, errors.Is(err, ErrNotStreamToc))
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		tocData, gpu, strm := sampleToc().ToTriplet()
		_, err := FromTriplet(tocData, gpu[:10], strm, true)
		assert.True(t, errors.Is(err, ErrTruncated))
	})
}

func TestEntryOperations(t *testing.T) {
	t.Run("DuplicateRejected", func(t *testing.T) {
		c := sampleToc()
		err := c.AddEntry(NewEntry(1, UnitID), false)
		assert.True(t, errors.Is(err, ErrDuplicateEntry))
		assert.Equal(t, []byte("unit-one"), c.GetEntry(1, UnitID).TocData)
	})

	t.Run("OverrideKeepsPosition", func(t *testing.T) {
		c := sampleToc()
		repl := NewEntry(1, UnitID)
		repl.SetData(Payload{Toc: []byte("new")}, true)
		require.NoError(t, c.AddEntry(repl, true))
		assert.Same(t, repl, c.EntriesOfType(UnitID)[0])
		assert.Equal(t, 2, c.Count(UnitID))
	})

	t.Run("RemoveDropsEmptyType", func(t *testing.T) {
		c := sampleToc()
		assert.True(t, c.RemoveEntry(2, TextureID))
		assert.False(t, c.RemoveEntry(2, TextureID))
		assert.Equal(t, []uint64{UnitID, MaterialID}, c.TypeIDs())
		require.Len(t, c.Types, 2)
	})

	t.Run("Rename", func(t *testing.T) {
		c := sampleToc()
		require.NoError(t, c.RenameEntry(3, UnitID, 30))
		assert.Nil(t, c.GetEntry(3, UnitID))
		assert.Equal(t, uint64(30), c.EntriesOfType(UnitID)[1].FileID)
		assert.True(t, errors.Is(c.RenameEntry(1, UnitID, 30), ErrDuplicateEntry))
	})

	t.Run("CloneDoesNotAlias", func(t *testing.T) {
		c := sampleToc()
		dup := c.Clone()
		dup.GetEntry(1, UnitID).TocData[0] = 'X'
		assert.Equal(t, byte('u'), c.GetEntry(1, UnitID).TocData[0])
	})

	t.Run("EmptyCopy", func(t *testing.T) {
		c := sampleToc()
		p := c.EmptyCopy()
		assert.Zero(t, p.Len())
		assert.Equal(t, c.Path, p.Path)
	})
}

func TestUndo(t *testing.T) {
	tocData, gpu, strm := sampleToc().ToTriplet()
	c, err := FromTriplet(tocData, gpu, strm, true)
	require.NoError(t, err)

	e := c.GetEntry(1, UnitID)
	before := e.Data().Clone()
	sizes := [3]uint32{e.TocDataSize, e.GpuResourceSize, e.StreamSize}

	e.SetData(Payload{Toc: []byte("changed"), Gpu: nil, Stream: []byte{7}}, true)
	assert.True(t, e.IsModified)
	assert.Equal(t, uint32(7), e.TocDataSize)

	require.NoError(t, e.Undo(nil))
	assert.False(t, e.IsModified)
	assert.Equal(t, before, e.Data())
	assert.Equal(t, sizes, [3]uint32{e.TocDataSize, e.GpuResourceSize, e.StreamSize})

	require.NoError(t, e.Undo(nil))
	assert.Equal(t, before, e.Data())
}

func TestLoadSaveRaw(t *testing.T) {
	e := NewEntry(9, ParticleID)
	e.SetData(Payload{Toc: []byte{1, 2}}, false)
	require.NoError(t, e.Load(NewCodecTable(), false))
	raw, ok := e.Model.(*RawModel)
	require.True(t, ok)
	raw.Toc[0] = 5
	require.NoError(t, e.Save(NewCodecTable()))
	assert.Equal(t, []byte{5, 2}, e.TocData)
	assert.True(t, e.IsModified)

	dup := e.Clone()
	assert.True(t, dup.IsLoaded)
	dup.Model.(*RawModel).Toc[0] = 6
	assert.Equal(t, byte(5), raw.Toc[0])
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "9ba626afa44a3aa3")

	src := sampleToc()
	require.NoError(t, src.ToFile(path))
	for _, suffix := range []string{"", GpuSuffix, StreamSuffix} {
		_, err := os.Stat(path + suffix)
		assert.NoError(t, err, suffix)
	}

	got, err := FromFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, "9ba626afa44a3aa3", got.Name)
	assert.Equal(t, src.Len(), got.Len())

	require.NoError(t, os.Remove(path+StreamSuffix))
	_, err = FromFile(path, true)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestPatchPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/9ba626afa44a3aa3", "data/9ba626afa44a3aa3.patch_0"},
		{"data/9ba626afa44a3aa3.patch_0", "data/9ba626afa44a3aa3.patch_1"},
		{"data/9ba626afa44a3aa3.patch_9", "data/9ba626afa44a3aa3.patch_10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPatchPath(tt.in))
			assert.True(t, IsPatchPath(tt.want))
		})
	}
	assert.False(t, IsPatchPath("data/9ba626afa44a3aa3"))

	t.Run("Free", func(t *testing.T) {
		taken := map[string]bool{
			"data/9ba626afa44a3aa3.patch_0": true,
			"data/9ba626afa44a3aa3.patch_1": true,
		}
		got := FreePatchPath("data/9ba626afa44a3aa3", func(p string) bool { return taken[p] })
		assert.Equal(t, "data/9ba626afa44a3aa3.patch_2", got)
		got = FreePatchPath("data/9ba626afa44a3aa3", func(string) bool { return false })
		assert.Equal(t, "data/9ba626afa44a3aa3.patch_0", got)
	})
}

func BenchmarkToTriplet(b *testing.B) {
	c := New("")
	for i := uint64(0); i < 2048; i++ {
		e := NewEntry(i, TextureID)
		e.SetData(Payload{Toc: make([]byte, 64), Gpu: make([]byte, 100), Stream: make([]byte, 33)}, false)
		_ = c.AddEntry(e, false)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.ToTriplet()
	}
}
