package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("MissingFileIsDefault", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "nope.toml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.True(t, cfg.Mesh.AutoLODs)
		assert.Positive(t, cfg.WorkerCount())
	})

	t.Run("Values", func(t *testing.T) {
		path := filepath.Join(dir, "stingraytools.toml")
		content := `
game_path = "/games/hd2/data"
workers = 3

[cache]
path = "/tmp/index.db"
codec = "lz4"

[hashlists]
friendly_names = "friendlynames.txt"

[archive]
unload_empty = true

[mesh]
auto_lods = false
force_3_uvs = true
force_1_group = true
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/games/hd2/data", cfg.GamePath)
		assert.Equal(t, 3, cfg.WorkerCount())
		assert.Equal(t, "lz4", cfg.Cache.Codec)
		assert.Equal(t, "/tmp/index.db", cfg.Cache.Path)
		assert.True(t, cfg.Archive.UnloadEmpty)
		assert.False(t, cfg.Mesh.AutoLODs)
		assert.Equal(t, "friendlynames.txt", cfg.RegistryPaths().FriendlyNames)
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		cfg := Default()
		cfg.GamePath = "/data"
		cfg.Mesh.LoadMaterialSlotNames = true
		path := filepath.Join(dir, "saved.toml")
		require.NoError(t, cfg.Save(path))

		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("game_path = "), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
