package toc

import (
	"fmt"

	"github.com/EchoTools/stingrayTools/pkg/stream"
	"github.com/pkg/errors"
)

// Entry is one record of a container, addressed by (FileID, TypeID).
//
// Offsets and sizes mirror the on-disk row. Sizes are always derived from the
// payload buffers when written, and offsets are only meaningful for the
// container the entry was read from or last flushed to.
type Entry struct {
	FileID            uint64
	TypeID            uint64
	TocDataOffset     uint64
	StreamOffset      uint64
	GpuResourceOffset uint64
	Unknown1          uint64
	Unknown2          uint64
	TocDataSize       uint32
	StreamSize        uint32
	GpuResourceSize   uint32
	Unknown3          uint32
	Unknown4          uint32
	EntryIndex        uint32

	TocData    []byte
	GpuData    []byte
	StreamData []byte

	// Pristine copies taken when the payload was first read.
	oldToc, oldGpu, oldStream []byte

	Model      any
	IsLoaded   bool
	IsModified bool
	IsCreated  bool
	IsSelected bool

	// MaterialTemplate names the custom material template a material entry
	// was derived from. It is not format data.
	MaterialTemplate string
}

// NewEntry returns an entry with the engine defaults for the unknown fields.
func NewEntry(fileID, typeID uint64) *Entry {
	return &Entry{FileID: fileID, TypeID: typeID, Unknown3: 16, Unknown4: 64}
}

func (e *Entry) String() string {
	return fmt.Sprintf("%d:%016x", e.FileID, e.TypeID)
}

// SerializeHeader reads or writes the fixed entry row. On write the sizes
// come from the current buffers and the index from the argument.
func (e *Entry) SerializeHeader(c *stream.Cursor, index uint32) {
	e.FileID = c.Uint64(e.FileID)
	e.TypeID = c.Uint64(e.TypeID)
	e.TocDataOffset = c.Uint64(e.TocDataOffset)
	e.StreamOffset = c.Uint64(e.StreamOffset)
	e.GpuResourceOffset = c.Uint64(e.GpuResourceOffset)
	e.Unknown1 = c.Uint64(e.Unknown1)
	e.Unknown2 = c.Uint64(e.Unknown2)
	e.TocDataSize = c.Uint32(uint32(len(e.TocData)))
	e.StreamSize = c.Uint32(uint32(len(e.StreamData)))
	e.GpuResourceSize = c.Uint32(uint32(len(e.GpuData)))
	e.Unknown3 = c.Uint32(e.Unknown3)
	e.Unknown4 = c.Uint32(e.Unknown4)
	e.EntryIndex = c.Uint32(index)
}

// SerializePayload reads or writes the three payloads.
//
// Reading seeks to each stored offset and pulls exactly the stored size, then
// snapshots the pristine copies used by Undo. Writing appends the toc payload
// at the current position of tocC and the gpu and stream payloads at the next
// 64-byte boundary of their cursors. Empty gpu and stream payloads are not
// placed and get offset 0.
func (e *Entry) SerializePayload(tocC, gpuC, streamC *stream.Cursor) error {
	if tocC.IsReading() {
		tocC.Seek(int(e.TocDataOffset))
		e.TocData = tocC.Bytes(nil, int(e.TocDataSize))
		e.GpuData, e.StreamData = nil, nil
		if e.GpuResourceSize > 0 {
			gpuC.Seek(int(e.GpuResourceOffset))
			e.GpuData = gpuC.Bytes(nil, int(e.GpuResourceSize))
		}
		if e.StreamSize > 0 {
			streamC.Seek(int(e.StreamOffset))
			e.StreamData = streamC.Bytes(nil, int(e.StreamSize))
		}
		for _, c := range []*stream.Cursor{tocC, gpuC, streamC} {
			if err := c.Err(); err != nil {
				return errors.Wrapf(ErrTruncated, "payload of %s: %v", e, err)
			}
		}
		e.snapshot()
		return nil
	}

	e.TocDataOffset = uint64(tocC.Tell())
	tocC.Bytes(e.TocData, len(e.TocData))

	e.GpuResourceOffset = 0
	if len(e.GpuData) > 0 {
		gpuC.Align(PayloadAlignment)
		e.GpuResourceOffset = uint64(gpuC.Tell())
		gpuC.Bytes(e.GpuData, len(e.GpuData))
	}

	e.StreamOffset = 0
	if len(e.StreamData) > 0 {
		streamC.Align(PayloadAlignment)
		e.StreamOffset = uint64(streamC.Tell())
		streamC.Bytes(e.StreamData, len(e.StreamData))
	}
	e.syncSizes()
	return nil
}

func (e *Entry) snapshot() {
	e.oldToc = cloneBytes(e.TocData)
	e.oldGpu = cloneBytes(e.GpuData)
	e.oldStream = cloneBytes(e.StreamData)
}

func (e *Entry) syncSizes() {
	e.TocDataSize = uint32(len(e.TocData))
	e.GpuResourceSize = uint32(len(e.GpuData))
	e.StreamSize = uint32(len(e.StreamData))
}

// Data returns the current payload. The buffers are shared with the entry.
func (e *Entry) Data() Payload {
	return Payload{Toc: e.TocData, Gpu: e.GpuData, Stream: e.StreamData}
}

// SetData replaces the payload buffers and recomputes the size fields.
func (e *Entry) SetData(p Payload, markModified bool) {
	e.TocData = p.Toc
	e.GpuData = p.Gpu
	e.StreamData = p.Stream
	e.syncSizes()
	e.IsModified = markModified
}

// Undo restores the pristine payload and clears the modified flag. A loaded
// model is decoded again from the restored bytes.
func (e *Entry) Undo(table *CodecTable) error {
	e.TocData = cloneBytes(e.oldToc)
	e.GpuData = cloneBytes(e.oldGpu)
	e.StreamData = cloneBytes(e.oldStream)
	e.syncSizes()
	e.IsModified = false
	if e.IsLoaded {
		return e.Load(table, true)
	}
	return nil
}

// Load decodes the payload with the codec registered for the entry type.
// An already loaded entry is left alone unless reload is set.
func (e *Entry) Load(table *CodecTable, reload bool) error {
	if e.IsLoaded && !reload {
		return nil
	}
	model, err := table.Lookup(e.TypeID).Decode(e.FileID, e.Data())
	if err != nil {
		return errors.Wrapf(err, "load %s", e)
	}
	e.Model = model
	e.IsLoaded = true
	return nil
}

// Save re-encodes the loaded model into the payload buffers, loading the
// entry first if needed. It never touches disk.
func (e *Entry) Save(table *CodecTable) error {
	if !e.IsLoaded {
		if err := e.Load(table, true); err != nil {
			return err
		}
	}
	p, err := table.Lookup(e.TypeID).Encode(e.FileID, e.Data(), e.Model)
	if err != nil {
		return errors.Wrapf(err, "save %s", e)
	}
	e.SetData(p, true)
	return nil
}

// Clone returns a deep copy of e. Payload and pristine buffers are copied;
// the model is copied when it implements Cloner and dropped otherwise.
func (e *Entry) Clone() *Entry {
	dup := *e
	dup.TocData = cloneBytes(e.TocData)
	dup.GpuData = cloneBytes(e.GpuData)
	dup.StreamData = cloneBytes(e.StreamData)
	dup.oldToc = cloneBytes(e.oldToc)
	dup.oldGpu = cloneBytes(e.oldGpu)
	dup.oldStream = cloneBytes(e.oldStream)
	dup.Model = nil
	dup.IsLoaded = false
	if c, ok := e.Model.(Cloner); ok && e.IsLoaded {
		dup.Model = c.CloneModel()
		dup.IsLoaded = true
	}
	return &dup
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
