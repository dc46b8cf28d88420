// Package toc reads and writes stream TOC containers: an index blob holding
// a type table and an entry table, plus gpu and stream payload blobs stored
// next to it as <path>.gpu_resources and <path>.stream.
package toc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/EchoTools/stingrayTools/pkg/stream"
	"github.com/pkg/errors"
)

// Header is the fixed prefix of the index blob.
type Header struct {
	Magic    uint32
	NumTypes uint32
	NumFiles uint32
	Unknown  uint32
	Reserved [56]byte
}

func (h *Header) serialize(c *stream.Cursor) {
	h.Magic = c.Uint32(h.Magic)
	h.NumTypes = c.Uint32(h.NumTypes)
	h.NumFiles = c.Uint32(h.NumFiles)
	h.Unknown = c.Uint32(h.Unknown)
	copy(h.Reserved[:], c.Bytes(h.Reserved[:], len(h.Reserved)))
}

type bucket struct {
	order   []uint64
	entries map[uint64]*Entry
}

// StreamToc is a container. Entries are grouped by type; types keep the order
// in which they first appeared and entries keep their insertion order within
// a type, which is also the on-disk order.
type StreamToc struct {
	Header Header
	Types  []TypeRow

	// Path is the location of the index blob. Name is its base name and
	// LocalName a user-facing label for patches.
	Path      string
	Name      string
	LocalName string

	typeOrder []uint64
	buckets   map[uint64]*bucket
}

// New returns an empty container for path.
func New(path string) *StreamToc {
	t := &StreamToc{Header: Header{Magic: Magic}, buckets: make(map[uint64]*bucket)}
	t.SetPath(path)
	return t
}

// SetPath updates Path and Name.
func (t *StreamToc) SetPath(path string) {
	t.Path = path
	t.Name = filepath.Base(path)
	if path == "" {
		t.Name = ""
	}
}

// FromTriplet decodes a container. When withPayload is false only the type
// and entry tables are read and the payload buffers stay empty.
func FromTriplet(tocData, gpuData, streamData []byte, withPayload bool) (*StreamToc, error) {
	t := New("")
	if len(tocData) < 4 {
		return nil, ErrNotStreamToc
	}
	c := stream.NewReader(tocData)
	t.Header.serialize(c)
	if t.Header.Magic != Magic {
		return nil, errors.Wrapf(ErrNotStreamToc, "magic %#x", t.Header.Magic)
	}
	tables := HeaderSize + TypeSize*int(t.Header.NumTypes) + EntrySize*int(t.Header.NumFiles)
	if tables > len(tocData) {
		return nil, errors.Wrapf(ErrTruncated, "%d types and %d entries need %d bytes, have %d",
			t.Header.NumTypes, t.Header.NumFiles, tables, len(tocData))
	}

	t.Types = make([]TypeRow, t.Header.NumTypes)
	for i := range t.Types {
		serializeTypeRow(c, &t.Types[i])
	}
	entries := make([]*Entry, t.Header.NumFiles)
	for i := range entries {
		e := NewEntry(0, 0)
		e.SerializeHeader(c, 0)
		entries[i] = e
	}
	if err := c.Err(); err != nil {
		return nil, errors.Wrapf(ErrTruncated, "entry table: %v", err)
	}
	for _, e := range entries {
		t.insert(e)
	}

	if withPayload {
		gpuC := stream.NewReader(gpuData)
		streamC := stream.NewReader(streamData)
		for _, e := range entries {
			if err := e.SerializePayload(c, gpuC, streamC); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func serializeTypeRow(c *stream.Cursor, r *TypeRow) {
	r.Unknown1 = c.Uint64(r.Unknown1)
	r.TypeID = c.Uint64(r.TypeID)
	r.Count = c.Uint64(r.Count)
	r.Unknown2 = c.Uint32(r.Unknown2)
	r.Unknown3 = c.Uint32(r.Unknown3)
}

// FromFile loads the triplet rooted at path. Missing companion files are
// read as empty blobs.
func FromFile(path string, withPayload bool) (*StreamToc, error) {
	tocData, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read toc")
	}
	var gpuData, streamData []byte
	if withPayload {
		if gpuData, err = readOptional(path + GpuSuffix); err != nil {
			return nil, err
		}
		if streamData, err = readOptional(path + StreamSuffix); err != nil {
			return nil, err
		}
	}
	t, err := FromTriplet(tocData, gpuData, streamData, withPayload)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	t.SetPath(path)
	return t, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return data, nil
}

// entryLayout is the placement computed for one entry before emission.
type entryLayout struct {
	entry                   *Entry
	index                   uint32
	tocOff, gpuOff, strmOff uint64
}

// layout assigns indices and payload offsets without writing anything.
func (t *StreamToc) layout() (rows []entryLayout, tocEnd, gpuEnd, streamEnd int) {
	entries := t.Entries()
	tocEnd = HeaderSize + TypeSize*len(t.Types) + EntrySize*len(entries)
	rows = make([]entryLayout, len(entries))
	for i, e := range entries {
		l := entryLayout{entry: e, index: uint32(i + 1), tocOff: uint64(tocEnd)}
		tocEnd += len(e.TocData)
		if len(e.GpuData) > 0 {
			gpuEnd = stream.AlignUp(gpuEnd, PayloadAlignment)
			l.gpuOff = uint64(gpuEnd)
			gpuEnd += len(e.GpuData)
		}
		if len(e.StreamData) > 0 {
			streamEnd = stream.AlignUp(streamEnd, PayloadAlignment)
			l.strmOff = uint64(streamEnd)
			streamEnd += len(e.StreamData)
		}
		rows[i] = l
	}
	return rows, tocEnd, gpuEnd, streamEnd
}

// ToTriplet encodes the container. The type table is regenerated, then a
// layout plan assigns 1-based indices and payload offsets, then the header,
// tables and payloads are emitted in one pass. The index blob is padded to
// MinBytesPerEntry bytes per entry.
func (t *StreamToc) ToTriplet() (tocData, gpuData, streamData []byte) {
	t.UpdateTypes()
	rows, tocEnd, gpuEnd, streamEnd := t.layout()

	t.Header.Magic = Magic
	t.Header.NumTypes = uint32(len(t.Types))
	t.Header.NumFiles = uint32(len(rows))

	tocC := stream.NewWriter()
	t.Header.serialize(tocC)
	for i := range t.Types {
		serializeTypeRow(tocC, &t.Types[i])
	}
	for _, l := range rows {
		l.entry.TocDataOffset = l.tocOff
		l.entry.GpuResourceOffset = l.gpuOff
		l.entry.StreamOffset = l.strmOff
		l.entry.SerializeHeader(tocC, l.index)
	}

	gpuC := stream.NewWriter()
	streamC := stream.NewWriter()
	for _, l := range rows {
		tocC.Seek(int(l.tocOff))
		tocC.Bytes(l.entry.TocData, len(l.entry.TocData))
		if len(l.entry.GpuData) > 0 {
			gpuC.Seek(int(l.gpuOff))
			gpuC.Bytes(l.entry.GpuData, len(l.entry.GpuData))
		}
		if len(l.entry.StreamData) > 0 {
			streamC.Seek(int(l.strmOff))
			streamC.Bytes(l.entry.StreamData, len(l.entry.StreamData))
		}
	}

	if minSize := MinBytesPerEntry * len(rows); tocEnd < minSize {
		tocC.Seek(minSize)
	}
	gpuC.Seek(gpuEnd)
	streamC.Seek(streamEnd)
	return tocC.Data(), gpuC.Data(), streamC.Data()
}

// ToFile writes the triplet to path, or to t.Path when path is empty.
func (t *StreamToc) ToFile(path string) error {
	if path == "" {
		path = t.Path
	}
	if path == "" {
		return errors.New("write container: no path")
	}
	tocData, gpuData, streamData := t.ToTriplet()
	files := []struct {
		name string
		data []byte
	}{
		{path, tocData},
		{path + GpuSuffix, gpuData},
		{path + StreamSuffix, streamData},
	}
	for _, f := range files {
		if err := os.WriteFile(f.name, f.data, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", filepath.Base(f.name))
		}
	}
	return nil
}

// UpdateTypes regenerates the type table from the entry dictionary.
func (t *StreamToc) UpdateTypes() {
	t.Types = t.Types[:0]
	for _, typeID := range t.typeOrder {
		t.Types = append(t.Types, newTypeRow(typeID, len(t.buckets[typeID].order)))
	}
}

func (t *StreamToc) insert(e *Entry) {
	b, ok := t.buckets[e.TypeID]
	if !ok {
		b = &bucket{entries: make(map[uint64]*Entry)}
		t.buckets[e.TypeID] = b
		t.typeOrder = append(t.typeOrder, e.TypeID)
	}
	if _, exists := b.entries[e.FileID]; !exists {
		b.order = append(b.order, e.FileID)
	}
	b.entries[e.FileID] = e
}

// GetEntry returns the entry for (fileID, typeID), or nil.
func (t *StreamToc) GetEntry(fileID, typeID uint64) *Entry {
	if b, ok := t.buckets[typeID]; ok {
		return b.entries[fileID]
	}
	return nil
}

// HasEntry reports whether (fileID, typeID) is present.
func (t *StreamToc) HasEntry(fileID, typeID uint64) bool {
	return t.GetEntry(fileID, typeID) != nil
}

// AddEntry inserts e. An existing entry with the same ids is replaced only
// when override is set; otherwise ErrDuplicateEntry is returned.
func (t *StreamToc) AddEntry(e *Entry, override bool) error {
	if !override && t.HasEntry(e.FileID, e.TypeID) {
		return errors.Wrapf(ErrDuplicateEntry, "%s in %s", e, t.Name)
	}
	t.insert(e)
	t.UpdateTypes()
	return nil
}

// RemoveEntry deletes (fileID, typeID) and reports whether it was present.
// A type left without entries disappears from the type table.
func (t *StreamToc) RemoveEntry(fileID, typeID uint64) bool {
	b, ok := t.buckets[typeID]
	if !ok {
		return false
	}
	if _, ok := b.entries[fileID]; !ok {
		return false
	}
	delete(b.entries, fileID)
	b.order = removeID(b.order, fileID)
	if len(b.order) == 0 {
		delete(t.buckets, typeID)
		t.typeOrder = removeID(t.typeOrder, typeID)
	}
	t.UpdateTypes()
	return true
}

// RenameEntry changes the file id of an entry in place, keeping its position.
func (t *StreamToc) RenameEntry(fileID, typeID, newID uint64) error {
	b, ok := t.buckets[typeID]
	if !ok || b.entries[fileID] == nil {
		return errors.Errorf("rename %d: entry not found in %s", fileID, t.Name)
	}
	if fileID == newID {
		return nil
	}
	if b.entries[newID] != nil {
		return errors.Wrapf(ErrDuplicateEntry, "rename %d to %d in %s", fileID, newID, t.Name)
	}
	e := b.entries[fileID]
	delete(b.entries, fileID)
	e.FileID = newID
	b.entries[newID] = e
	for i, id := range b.order {
		if id == fileID {
			b.order[i] = newID
			break
		}
	}
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// TypeIDs returns the type ids in table order.
func (t *StreamToc) TypeIDs() []uint64 {
	return append([]uint64(nil), t.typeOrder...)
}

// EntriesOfType returns the entries of one type in insertion order.
func (t *StreamToc) EntriesOfType(typeID uint64) []*Entry {
	b, ok := t.buckets[typeID]
	if !ok {
		return nil
	}
	out := make([]*Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out
}

// Count returns the number of entries of typeID.
func (t *StreamToc) Count(typeID uint64) int {
	if b, ok := t.buckets[typeID]; ok {
		return len(b.order)
	}
	return 0
}

// Entries returns every entry in on-disk order.
func (t *StreamToc) Entries() []*Entry {
	var out []*Entry
	for _, typeID := range t.typeOrder {
		out = append(out, t.EntriesOfType(typeID)...)
	}
	return out
}

// Len returns the number of entries.
func (t *StreamToc) Len() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b.order)
	}
	return n
}

// EmptyCopy returns a container with the same header and path but no
// entries.
func (t *StreamToc) EmptyCopy() *StreamToc {
	c := New(t.Path)
	c.Header = t.Header
	c.LocalName = t.LocalName
	return c
}

// Clone returns a deep copy of the container and its entries.
func (t *StreamToc) Clone() *StreamToc {
	c := t.EmptyCopy()
	for _, e := range t.Entries() {
		c.insert(e.Clone())
	}
	c.UpdateTypes()
	return c
}

const patchMarker = ".patch_"

// NextPatchPath derives the path of a patch for base: a path already
// carrying a ".patch_N" suffix yields ".patch_N+1", any other path gets
// ".patch_0" appended.
func NextPatchPath(base string) string {
	i := strings.LastIndex(base, patchMarker)
	if i >= 0 {
		if n, err := strconv.Atoi(base[i+len(patchMarker):]); err == nil {
			return base[:i] + patchMarker + strconv.Itoa(n+1)
		}
	}
	return base + patchMarker + "0"
}

// FreePatchPath returns the first patch path for base, counting up from
// NextPatchPath, that taken rejects.
func FreePatchPath(base string, taken func(path string) bool) string {
	path := NextPatchPath(base)
	for taken(path) {
		path = NextPatchPath(path)
	}
	return path
}

// IsPatchPath reports whether path names a patch container.
func IsPatchPath(path string) bool {
	i := strings.LastIndex(path, patchMarker)
	if i < 0 {
		return false
	}
	_, err := strconv.Atoi(path[i+len(patchMarker):])
	return err == nil
}
