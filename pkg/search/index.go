// Package search builds lightweight, read-only indexes of which entries a
// container holds, without reading payloads. Indexes answer "does archive X
// contain (file, type)" when resolving entries that are not loaded.
package search

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// Index lists the entries of one container.
type Index struct {
	Path    string
	Name    string
	FileIDs []uint64

	typeIDs   []uint64
	types     []uint64
	byType    map[uint64][]uint64
	membersOf map[uint64]map[uint64]struct{}
}

func newIndex(path string) *Index {
	return &Index{
		Path:      path,
		Name:      filepath.Base(path),
		byType:    make(map[uint64][]uint64),
		membersOf: make(map[uint64]map[uint64]struct{}),
	}
}

func (x *Index) add(fileID, typeID uint64) {
	x.FileIDs = append(x.FileIDs, fileID)
	x.typeIDs = append(x.typeIDs, typeID)
	set, ok := x.membersOf[typeID]
	if !ok {
		set = make(map[uint64]struct{})
		x.membersOf[typeID] = set
		x.types = append(x.types, typeID)
	}
	set[fileID] = struct{}{}
	x.byType[typeID] = append(x.byType[typeID], fileID)
}

// HasEntry reports whether the container lists (fileID, typeID).
func (x *Index) HasEntry(fileID, typeID uint64) bool {
	_, ok := x.membersOf[typeID][fileID]
	return ok
}

// FilesOfType returns the file ids of typeID in table order.
func (x *Index) FilesOfType(typeID uint64) []uint64 {
	return x.byType[typeID]
}

// Types returns the type ids in first-seen order.
func (x *Index) Types() []uint64 {
	return x.types
}

// Len returns the number of listed entries.
func (x *Index) Len() int {
	return len(x.FileIDs)
}

// tableSize returns how many bytes of a stream TOC hold the header, the type
// table and the entry table.
func tableSize(numTypes, numFiles uint32) int {
	return toc.HeaderSize + toc.TypeSize*int(numTypes) + toc.EntrySize*int(numFiles)
}

// FromTocBytes indexes the standard stream TOC layout held in data. Only
// the entry table is read.
func FromTocBytes(path string, data []byte) (*Index, error) {
	if len(data) < 12 || binary.LittleEndian.Uint32(data) != toc.Magic {
		return nil, toc.ErrNotStreamToc
	}
	numTypes := binary.LittleEndian.Uint32(data[4:])
	numFiles := binary.LittleEndian.Uint32(data[8:])
	if tableSize(numTypes, numFiles) > len(data) {
		return nil, errors.Wrapf(toc.ErrTruncated, "index %s", filepath.Base(path))
	}

	x := newIndex(path)
	off := toc.HeaderSize + toc.TypeSize*int(numTypes)
	for i := uint32(0); i < numFiles; i++ {
		fileID := binary.LittleEndian.Uint64(data[off:])
		typeID := binary.LittleEndian.Uint64(data[off+8:])
		x.add(fileID, typeID)
		off += toc.EntrySize
	}
	return x, nil
}

// FromFile indexes the container at path, reading only the header and the
// tables.
func FromFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	defer f.Close()

	var head [12]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, toc.ErrNotStreamToc
		}
		return nil, errors.Wrap(err, "read archive header")
	}
	if binary.LittleEndian.Uint32(head[:]) != toc.Magic {
		return nil, toc.ErrNotStreamToc
	}
	size := tableSize(binary.LittleEndian.Uint32(head[4:]), binary.LittleEndian.Uint32(head[8:]))
	if fi, err := f.Stat(); err == nil && int64(size) > fi.Size() {
		return nil, errors.Wrapf(toc.ErrTruncated, "index %s", filepath.Base(path))
	}

	data := make([]byte, size)
	copy(data, head[:])
	if _, err := io.ReadFull(f, data[len(head):]); err != nil {
		return nil, errors.Wrapf(toc.ErrTruncated, "index %s: %v", filepath.Base(path), err)
	}
	return FromTocBytes(path, data)
}

// Packed index layout: u32 count at 8, rows of (u64 type id, u64 file id)
// starting at 0x10.
const (
	packedCountOffset = 8
	packedRowsOffset  = 0x10
	packedRowSize     = 0x10
)

// FromPackage indexes the packed variant, where rows carry the type id
// before the file id.
func FromPackage(path string, data []byte) (*Index, error) {
	if len(data) < packedRowsOffset {
		return nil, errors.Wrapf(toc.ErrTruncated, "package %s", filepath.Base(path))
	}
	n := int(binary.LittleEndian.Uint32(data[packedCountOffset:]))
	if packedRowsOffset+n*packedRowSize > len(data) {
		return nil, errors.Wrapf(toc.ErrTruncated, "package %s: %d rows", filepath.Base(path), n)
	}
	x := newIndex(path)
	for i := 0; i < n; i++ {
		off := packedRowsOffset + i*packedRowSize
		typeID := binary.LittleEndian.Uint64(data[off:])
		fileID := binary.LittleEndian.Uint64(data[off+8:])
		x.add(fileID, typeID)
	}
	return x, nil
}

// Bundle database layout: u32 count at 4, fixed 0x33-byte name records from
// 0x10, each name terminated by 0x17.
const (
	BundleDatabaseName = "bundle_database.data"

	bundleCountOffset = 4
	bundleNameOffset  = 0x10
	bundleNameSize    = 0x33
	bundleNameEnd     = 0x17
)

// ParseBundleDatabase returns the archive names listed in a bundle database.
func ParseBundleDatabase(data []byte) ([]string, error) {
	if len(data) < bundleNameOffset {
		return nil, errors.Wrap(toc.ErrTruncated, "bundle database")
	}
	n := int(binary.LittleEndian.Uint32(data[bundleCountOffset:]))
	if bundleNameOffset+n*bundleNameSize > len(data) {
		return nil, errors.Wrapf(toc.ErrTruncated, "bundle database: %d names", n)
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec := data[bundleNameOffset+i*bundleNameSize:][:bundleNameSize]
		for j, b := range rec {
			if b == bundleNameEnd || b == 0 {
				rec = rec[:j]
				break
			}
		}
		if len(rec) > 0 {
			names = append(names, string(rec))
		}
	}
	return names, nil
}
