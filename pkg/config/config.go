// Package config loads and saves the stingraytools.toml configuration.
package config

import (
	"os"
	"runtime"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/registry"
)

// DefaultFile is the configuration file name looked up by the CLI.
const DefaultFile = "stingraytools.toml"

type Config struct {
	// GamePath is the game's data directory holding the archives.
	GamePath string `toml:"game_path"`
	// SearchPath is the directory last used to import or export patches.
	SearchPath string `toml:"search_path"`
	// Workers bounds the parallel search index build. Zero means NumCPU.
	Workers int `toml:"workers"`

	Cache     CacheConfig    `toml:"cache"`
	Hashlists HashlistConfig `toml:"hashlists"`
	Archive   ArchiveConfig  `toml:"archive"`
	Mesh      MeshConfig     `toml:"mesh"`
}

type CacheConfig struct {
	// Path of the bbolt search index cache. Empty disables the cache.
	Path string `toml:"path"`
	// Codec compresses cached records: zstd, lz4 or none.
	Codec string `toml:"codec" default:"zstd"`
}

type HashlistConfig struct {
	TypeNames         string `toml:"type_names"`
	FriendlyNames     string `toml:"friendly_names"`
	ArchiveNames      string `toml:"archive_names"`
	BoneNames         string `toml:"bone_names"`
	MaterialTemplates string `toml:"material_templates"`
}

type ArchiveConfig struct {
	// UnloadEmpty drops a base archive right after loading it when it has
	// no material, texture or mesh entries.
	UnloadEmpty bool `toml:"unload_empty"`
	// UnloadPatches unloads all archives before a bulk load.
	UnloadPatches bool `toml:"unload_patches"`
}

type MeshConfig struct {
	AutoLODs              bool `toml:"auto_lods" default:"true"`
	Force3UVs             bool `toml:"force_3_uvs" default:"true"`
	Force1Group           bool `toml:"force_1_group" default:"true"`
	LoadMaterialSlotNames bool `toml:"load_material_slot_names"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{Codec: "zstd"},
		Mesh: MeshConfig{
			AutoLODs:    true,
			Force3UVs:   true,
			Force1Group: true,
		},
	}
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Save writes cfg to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(*c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

// WorkerCount resolves Workers.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// RegistryPaths returns the hash list locations for registry.Load.
func (c *Config) RegistryPaths() registry.Paths {
	return registry.Paths{
		TypeNames:         c.Hashlists.TypeNames,
		FriendlyNames:     c.Hashlists.FriendlyNames,
		ArchiveNames:      c.Hashlists.ArchiveNames,
		BoneNames:         c.Hashlists.BoneNames,
		MaterialTemplates: c.Hashlists.MaterialTemplates,
	}
}
