package search

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/stingrayTools/pkg/frame"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

func writeArchive(t *testing.T, path string, ids map[uint64]uint64) {
	t.Helper()
	c := toc.New(path)
	for fileID, typeID := range ids {
		e := toc.NewEntry(fileID, typeID)
		e.SetData(toc.Payload{Toc: []byte{1, 2, 3}, Gpu: []byte{4}}, false)
		require.NoError(t, c.AddEntry(e, false))
	}
	require.NoError(t, c.ToFile(""))
}

func gameDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeArchive(t, filepath.Join(dir, "aaaa"), map[uint64]uint64{1: toc.UnitID, 2: toc.TextureID})
	writeArchive(t, filepath.Join(dir, "bbbb"), map[uint64]uint64{3: toc.MaterialID})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeArchive(t, filepath.Join(dir, "sub", "cccc"), map[uint64]uint64{4: toc.UnitID})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk"), []byte("definitely not a toc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny"), []byte{1}, 0o644))
	return dir
}

func TestIndexVariants(t *testing.T) {
	t.Run("TocBytes", func(t *testing.T) {
		c := toc.New("")
		for i, typeID := range []uint64{toc.UnitID, toc.UnitID, toc.TextureID} {
			require.NoError(t, c.AddEntry(toc.NewEntry(uint64(i+10), typeID), false))
		}
		data, _, _ := c.ToTriplet()

		x, err := FromTocBytes("some/dir/abc", data)
		require.NoError(t, err)
		assert.Equal(t, "abc", x.Name)
		assert.Equal(t, []uint64{10, 11, 12}, x.FileIDs)
		assert.True(t, x.HasEntry(11, toc.UnitID))
		assert.False(t, x.HasEntry(11, toc.TextureID))
		assert.Equal(t, []uint64{toc.UnitID, toc.TextureID}, x.Types())
		assert.Equal(t, []uint64{10, 11}, x.FilesOfType(toc.UnitID))
	})

	t.Run("BadMagic", func(t *testing.T) {
		_, err := FromTocBytes("x", make([]byte, 100))
		assert.True(t, errors.Is(err, toc.ErrNotStreamToc))
	})

	t.Run("Package", func(t *testing.T) {
		data := make([]byte, 0x10+2*0x10)
		binary.LittleEndian.PutUint32(data[8:], 2)
		binary.LittleEndian.PutUint64(data[0x10:], toc.TextureID)
		binary.LittleEndian.PutUint64(data[0x18:], 77)
		binary.LittleEndian.PutUint64(data[0x20:], toc.UnitID)
		binary.LittleEndian.PutUint64(data[0x28:], 78)

		x, err := FromPackage("pkg", data)
		require.NoError(t, err)
		assert.True(t, x.HasEntry(77, toc.TextureID))
		assert.True(t, x.HasEntry(78, toc.UnitID))
		assert.Equal(t, 2, x.Len())

		_, err = FromPackage("pkg", data[:0x18])
		assert.True(t, errors.Is(err, toc.ErrTruncated))
	})

	t.Run("BundleDatabase", func(t *testing.T) {
		data := make([]byte, 0x10+2*0x33)
		binary.LittleEndian.PutUint32(data[4:], 2)
		copy(data[0x10:], "9ba626afa44a3aa3\x17garbage")
		copy(data[0x10+0x33:], "e75f556a740e00c9")
		names, err := ParseBundleDatabase(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"9ba626afa44a3aa3", "e75f556a740e00c9"}, names)
	})
}

func TestDiscover(t *testing.T) {
	t.Run("Walk", func(t *testing.T) {
		dir := gameDir(t)
		paths, err := Discover(dir)
		require.NoError(t, err)
		var names []string
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
		assert.ElementsMatch(t, []string{"aaaa", "bbbb", "cccc", "junk", "tiny"}, names)
	})

	t.Run("BundleDatabase", func(t *testing.T) {
		dir := t.TempDir()
		data := make([]byte, 0x10+0x33)
		binary.LittleEndian.PutUint32(data[4:], 1)
		copy(data[0x10:], "aaaa\x17")
		require.NoError(t, os.WriteFile(filepath.Join(dir, BundleDatabaseName), data, 0o644))

		paths, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "aaaa")}, paths)
	})
}

func TestBuild(t *testing.T) {
	dir := gameDir(t)
	paths, err := Discover(dir)
	require.NoError(t, err)

	t.Run("Parallel", func(t *testing.T) {
		xs, err := Build(context.Background(), paths, Options{Workers: 2})
		require.NoError(t, err)
		require.Len(t, xs, 3)

		set := NewSet(xs)
		found := set.Find(4, toc.UnitID)
		require.NotNil(t, found)
		assert.Equal(t, "cccc", found.Name)
		assert.Nil(t, set.Find(4, toc.TextureID))
		assert.Equal(t, 3, set.Len())
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Build(ctx, paths, Options{})
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("Cache", func(t *testing.T) {
		cache, err := OpenBoltCache(filepath.Join(t.TempDir(), "cache", "index.db"), frame.CodecLZ4)
		require.NoError(t, err)
		defer cache.Close()

		first, err := Build(context.Background(), paths, Options{Cache: cache})
		require.NoError(t, err)
		assert.Equal(t, 3, cache.Len())

		second, err := Build(context.Background(), paths, Options{Cache: cache})
		require.NoError(t, err)
		require.Len(t, second, len(first))
		for i := range first {
			assert.Equal(t, first[i].FileIDs, second[i].FileIDs)
			assert.Equal(t, first[i].Types(), second[i].Types())
		}

		path := filepath.Join(dir, "aaaa")
		fi, err := os.Stat(path)
		require.NoError(t, err)
		_, ok := cache.Get(path, fi)
		assert.True(t, ok)

		writeArchive(t, path, map[uint64]uint64{9: toc.UnitID, 10: toc.UnitID, 11: toc.UnitID})
		fi, err = os.Stat(path)
		require.NoError(t, err)
		_, ok = cache.Get(path, fi)
		assert.False(t, ok, "stale record must not be served")
	})
}
