package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHash(t *testing.T) {
	assert.Equal(t, uint64(0), Hash64(""))
	assert.Equal(t, Hash64("content/fac_helldivers/cape"), Hash64("content/fac_helldivers/cape"))
	assert.NotEqual(t, Hash64("bone_a"), Hash64("bone_b"))
	assert.Equal(t, uint32(Hash64("spine")>>32), Hash32("spine"))

	// Every tail length goes through a different branch.
	seen := map[uint64]bool{}
	for n := 0; n <= 16; n++ {
		h := Murmur64(make([]byte, n), 0)
		assert.False(t, seen[h], "collision at length %d", n)
		seen[h] = true
	}
}

func TestNameTable(t *testing.T) {
	dir := t.TempDir()

	t.Run("HexTypes", func(t *testing.T) {
		path := writeFile(t, dir, "typehash.txt", "e0a48d0be9a7453f unit\ncd4238c6a0c69e32 texture\r\nbogus\n")
		tbl := NewNameTable(16)
		require.NoError(t, tbl.Load(path))
		assert.Equal(t, "unit", tbl.Name(0xe0a48d0be9a7453f))
		assert.Equal(t, "texture", tbl.Name(0xcd4238c6a0c69e32))
		id, ok := tbl.Lookup("texture")
		assert.True(t, ok)
		assert.Equal(t, uint64(0xcd4238c6a0c69e32), id)
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("DecimalFirstWins", func(t *testing.T) {
		path := writeFile(t, dir, "friendly.txt", "10 first name\n10 second\n11 other\n")
		tbl := NewNameTable(10)
		require.NoError(t, tbl.Load(path))
		assert.Equal(t, "first name", tbl.Name(10))
		assert.Equal(t, []uint64{10, 11}, tbl.IDs())
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		tbl := NewNameTable(10)
		tbl.Set(5, "five")
		tbl.Set(6, "")
		path := filepath.Join(dir, "saved.txt")
		require.NoError(t, tbl.Save(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "5 five\n", string(data))
	})

	t.Run("ParseID", func(t *testing.T) {
		id, err := ParseID("ff", 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(255), id)
		id, err = ParseID("0x10", 16)
		require.NoError(t, err)
		assert.Equal(t, uint64(16), id)
		_, err = ParseID("zz", 0)
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	friendly := writeFile(t, dir, "friendlynames.txt", "42 the answer\n")
	archives := writeFile(t, dir, "archivehashes.json", `{"Armor": {"aabbccdd": "Cape"}}`)
	templates := writeFile(t, dir, "templates.txt", "1234 basic\n")

	r := New(nil)
	require.NoError(t, r.Load(Paths{
		FriendlyNames:     friendly,
		ArchiveNames:      archives,
		MaterialTemplates: templates,
		TypeNames:         filepath.Join(dir, "missing.txt"),
	}))

	assert.Equal(t, "the answer", r.FriendlyName(42))
	assert.Equal(t, "43", r.FriendlyName(43))
	assert.Equal(t, "unknown", r.TypeName(1))
	assert.Equal(t, "Armor: Cape", r.ArchiveNames.Name("aabbccdd"))
	assert.Equal(t, "SDK: Base Patch Archive", r.ArchiveNames.Name(BaseArchiveID))

	tmpl, ok := r.MaterialTemplate(0x1234)
	assert.True(t, ok)
	assert.Equal(t, "basic", tmpl)

	require.NoError(t, r.AddFriendlyName(7, "seven"))
	reloaded := NewNameTable(10)
	require.NoError(t, reloaded.Load(friendly))
	assert.Equal(t, "seven", reloaded.Name(7))
	assert.Equal(t, "the answer", reloaded.Name(42))

	bad := writeFile(t, dir, "bad.json", `{`)
	assert.Error(t, New(nil).Load(Paths{ArchiveNames: bad}))
}

func TestAnimationIndex(t *testing.T) {
	idx := NewAnimationIndex()
	var wg sync.WaitGroup
	idx.Add(100, 1, 2, 3)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx.StateMachines(1)
			idx.Belongs(2, 100)
		}()
	}
	idx.Add(200, 1)
	wg.Wait()

	assert.Equal(t, []uint64{100, 200}, idx.StateMachines(1))
	assert.True(t, idx.Belongs(3, 100))
	assert.False(t, idx.Belongs(3, 200))
	assert.Equal(t, 3, idx.Len())
}

func TestMaterialSlots(t *testing.T) {
	s := NewMaterialSlots()
	s.Set(1, map[uint64][]uint32{10: {5, 6}})
	assert.Equal(t, []uint32{5, 6}, s.Slots(1, 10))
	assert.Nil(t, s.Slots(2, 10))
	assert.Equal(t, 1, s.Units())
}

func TestMaterialSlotsAddSlot(t *testing.T) {
	s := NewMaterialSlots()
	s.AddSlot(1, 10, 5)
	s.AddSlot(1, 10, 6)
	s.AddSlot(1, 10, 5)
	s.AddSlot(2, 20, 7)
	assert.Equal(t, []uint32{5, 6}, s.Slots(1, 10))
	assert.Equal(t, []uint32{7}, s.Slots(2, 20))
	assert.Equal(t, 2, s.Units())
}
