package manifest

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/texture"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// Export writes the entries of t under outputDir and returns how many were
// written. Empty GPU and stream payloads get no sibling file. With
// WithDDS, textures also get a .dds sibling; one that does not decode is an
// error.
func Export(t *toc.StreamToc, outputDir string, opts ...ExtractOption) (int, error) {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Avoid repeated MkdirAll calls.
	createdDirs := make(map[string]struct{})
	n := 0
	for _, e := range t.Entries() {
		if len(cfg.allowedTypes) > 0 && !cfg.allowedTypes[e.TypeID] {
			continue
		}

		fileName := strconv.FormatUint(e.FileID, 16)
		if cfg.decimalNames {
			fileName = strconv.FormatUint(e.FileID, 10)
		}
		basePath := filepath.Join(outputDir, strconv.FormatUint(e.TypeID, 16))
		if _, exists := createdDirs[basePath]; !exists {
			if err := os.MkdirAll(basePath, 0o755); err != nil {
				return n, errors.Wrapf(err, "create dir %s", basePath)
			}
			createdDirs[basePath] = struct{}{}
		}

		filePath := filepath.Join(basePath, fileName)
		files := []struct {
			path string
			data []byte
			keep bool
		}{
			{filePath, e.TocData, true},
			{filePath + toc.GpuSuffix, e.GpuData, len(e.GpuData) > 0},
			{filePath + toc.StreamSuffix, e.StreamData, len(e.StreamData) > 0},
		}
		for _, f := range files {
			if !f.keep {
				continue
			}
			if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
				return n, errors.Wrapf(err, "write file %s", f.path)
			}
		}
		if cfg.dds && e.TypeID == toc.TextureID {
			tex, err := texture.Decode(e.Data())
			if err != nil {
				return n, errors.Wrapf(err, "decode texture %d", e.FileID)
			}
			if err := os.WriteFile(filePath+DDSSuffix, tex.ToDDS(), 0o644); err != nil {
				return n, errors.Wrapf(err, "write file %s", filePath+DDSSuffix)
			}
		}
		n++
	}
	return n, nil
}

type extractConfig struct {
	decimalNames bool
	dds          bool
	allowedTypes map[uint64]bool
}

// ExtractOption configures Export.
type ExtractOption func(*extractConfig)

// WithDecimalNames names files in decimal instead of hex.
func WithDecimalNames(decimal bool) ExtractOption {
	return func(c *extractConfig) {
		c.decimalNames = decimal
	}
}

// WithTypeFilter exports only the given types.
func WithTypeFilter(types []uint64) ExtractOption {
	return func(c *extractConfig) {
		if len(types) > 0 {
			c.allowedTypes = make(map[uint64]bool, len(types))
			for _, t := range types {
				c.allowedTypes[t] = true
			}
		}
	}
}

// WithDDS also writes textures as standalone DDS files.
func WithDDS(dds bool) ExtractOption {
	return func(c *extractConfig) {
		c.dds = dds
	}
}
