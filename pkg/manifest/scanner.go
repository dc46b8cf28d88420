// Package manifest maps containers to and from directory trees laid out as
// <type>/<file>, where <file> holds the TOC payload and the optional
// <file>.gpu_resources and <file>.stream siblings hold the other two. A
// texture may also carry a <file>.dds sibling whose pixels replace the
// payload's on import.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/texture"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// DDSSuffix names the decoded texture sibling.
const DDSSuffix = ".dds"

// ScannedFile is one entry found in an input directory. Paths of absent
// payloads are empty.
type ScannedFile struct {
	TypeID     uint64
	FileID     uint64
	Path       string
	GpuPath    string
	StreamPath string
	DDSPath    string
	Size       uint32
}

// ParseID reads a directory or file name as an id in hex, or in decimal
// with decimal set. Any extension is ignored.
func ParseID(s string, decimal bool) (uint64, error) {
	s = strings.TrimSuffix(s, filepath.Ext(s))
	if decimal {
		return strconv.ParseUint(s, 10, 64)
	}
	return strconv.ParseUint(s, 16, 64)
}

// ScanFiles walks inputDir and returns its entries ordered by type and
// file id. Type directories are always hex; file names are hex unless
// decimalNames is set. Paths not shaped <type>/<file> or not named by ids
// are skipped.
func ScanFiles(inputDir string, decimalNames bool) ([]ScannedFile, error) {
	type key struct{ typeID, fileID uint64 }
	found := make(map[key]*ScannedFile)

	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return errors.Wrap(err, "relative path")
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 {
			return nil
		}

		typeID, err := ParseID(parts[0], false)
		if err != nil {
			return nil
		}
		name := parts[1]
		sibling := filepath.Ext(name)
		if sibling == toc.GpuSuffix || sibling == toc.StreamSuffix || sibling == DDSSuffix {
			name = strings.TrimSuffix(name, sibling)
		} else {
			sibling = ""
		}
		fileID, err := ParseID(name, decimalNames)
		if err != nil {
			return nil
		}

		size := info.Size()
		const maxUint32 = int64(^uint32(0))
		if size > maxUint32 {
			return errors.Errorf("file too large: %s (size %d exceeds %d bytes)", path, size, maxUint32)
		}

		k := key{typeID, fileID}
		f := found[k]
		if f == nil {
			f = &ScannedFile{TypeID: typeID, FileID: fileID}
			found[k] = f
		}
		switch sibling {
		case toc.GpuSuffix:
			f.GpuPath = path
		case toc.StreamSuffix:
			f.StreamPath = path
		case DDSSuffix:
			f.DDSPath = path
		default:
			f.Path = path
			f.Size = uint32(size)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", inputDir)
	}

	files := make([]ScannedFile, 0, len(found))
	for _, f := range found {
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].TypeID != files[j].TypeID {
			return files[i].TypeID < files[j].TypeID
		}
		return files[i].FileID < files[j].FileID
	})
	return files, nil
}

// Entry reads the payload files into a new entry marked created. A DDS
// sibling replaces the pixel data of the texture the payload holds.
func (f ScannedFile) Entry() (*toc.Entry, error) {
	var p toc.Payload
	for _, part := range []struct {
		path string
		dst  *[]byte
	}{
		{f.Path, &p.Toc},
		{f.GpuPath, &p.Gpu},
		{f.StreamPath, &p.Stream},
	} {
		if part.path == "" {
			continue
		}
		data, err := os.ReadFile(part.path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %d:%016x", f.FileID, f.TypeID)
		}
		*part.dst = data
	}
	if f.DDSPath != "" {
		var err error
		if p, err = f.applyDDS(p); err != nil {
			return nil, err
		}
	}
	e := toc.NewEntry(f.FileID, f.TypeID)
	e.SetData(p, true)
	e.IsCreated = true
	return e, nil
}

// Import adds every entry found under inputDir to dst and returns how many
// were added. Existing entries are replaced only with override.
func Import(inputDir string, dst *toc.StreamToc, override, decimalNames bool) (int, error) {
	files, err := ScanFiles(inputDir, decimalNames)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		e, err := f.Entry()
		if err != nil {
			return n, err
		}
		if err := dst.AddEntry(e, override); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (f ScannedFile) applyDDS(p toc.Payload) (toc.Payload, error) {
	if f.TypeID != toc.TextureID {
		return p, errors.Errorf("%s: dds sibling on a non-texture entry", f.DDSPath)
	}
	if f.Path == "" {
		return p, errors.Errorf("%s: dds sibling without a texture header", f.DDSPath)
	}
	dds, err := os.ReadFile(f.DDSPath)
	if err != nil {
		return p, errors.Wrap(err, "read dds")
	}
	tex, err := texture.Decode(p)
	if err != nil {
		return p, errors.Wrapf(err, "%d", f.FileID)
	}
	if err := tex.FromDDS(dds); err != nil {
		return p, errors.Wrapf(err, "%s", f.DDSPath)
	}
	return tex.Encode()
}
