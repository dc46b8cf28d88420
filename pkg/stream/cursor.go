// Package stream provides a seekable, growable byte buffer whose accessors
// serve both decoding and encoding.
//
// Every accessor takes the current in-memory value. In Reading mode the value
// is ignored and a freshly decoded one is returned; in Writing mode the value
// is encoded at the cursor and returned unchanged. A structure can therefore
// describe its layout once:
//
//	h.Count = c.Uint32(h.Count)
//	h.Offset = c.Uint32(h.Offset)
//
// and the same function both parses and emits it.
package stream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Mode selects the direction of a Cursor.
type Mode int

const (
	Reading Mode = iota
	Writing
)

func (m Mode) String() string {
	if m == Writing {
		return "write"
	}
	return "read"
}

// ErrShortBuffer is recorded when a read runs past the end of the buffer.
var ErrShortBuffer = errors.New("read past end of buffer")

// Cursor is a little-endian read/write cursor over a single byte buffer.
//
// Reads past the end of the buffer do not panic: they return zero values and
// record a sticky error available from Err. Writes past the end grow the
// buffer, zero-filling any gap left by a forward Seek.
type Cursor struct {
	data []byte
	pos  int
	mode Mode
	err  error
}

// NewReader returns a cursor decoding data. The slice is not copied.
func NewReader(data []byte) *Cursor {
	return &Cursor{data: data, mode: Reading}
}

// NewWriter returns an empty cursor in Writing mode.
func NewWriter() *Cursor {
	return &Cursor{data: make([]byte, 0, 1024), mode: Writing}
}

// NewWriterFrom returns a Writing cursor positioned at 0 over a copy of data,
// so a structure can be re-emitted on top of its previous encoding.
func NewWriterFrom(data []byte) *Cursor {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Cursor{data: buf, mode: Writing}
}

func (c *Cursor) Mode() Mode      { return c.mode }
func (c *Cursor) IsReading() bool { return c.mode == Reading }
func (c *Cursor) IsWriting() bool { return c.mode == Writing }

// Tell returns the current position.
func (c *Cursor) Tell() int { return c.pos }

// Len returns the buffer length.
func (c *Cursor) Len() int { return len(c.data) }

// Data returns the underlying buffer.
func (c *Cursor) Data() []byte { return c.data }

// Err returns the first read error encountered, if any.
func (c *Cursor) Err() error { return c.err }

// Seek moves the cursor to an absolute position. In Writing mode a position
// beyond the end grows the buffer. A negative position is a layout bug in the
// caller and panics.
func (c *Cursor) Seek(pos int) {
	if pos < 0 {
		panic(fmt.Sprintf("stream: seek to negative position %d", pos))
	}
	c.pos = pos
	if c.mode == Writing && pos > len(c.data) {
		c.grow(pos)
	}
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) { c.Seek(c.pos + n) }

// Align seeks forward to the next multiple of n.
func (c *Cursor) Align(n int) { c.Seek(AlignUp(c.pos, n)) }

// AlignUp rounds v up to a multiple of n.
func AlignUp(v, n int) int {
	if n <= 1 {
		return v
	}
	return (v + n - 1) / n * n
}

func (c *Cursor) grow(size int) {
	if size <= len(c.data) {
		return
	}
	if size <= cap(c.data) {
		tail := c.data[len(c.data):size]
		for i := range tail {
			tail[i] = 0
		}
		c.data = c.data[:size]
		return
	}
	buf := make([]byte, size, size*2)
	copy(buf, c.data)
	c.data = buf
}

// next returns the n bytes at the cursor and advances it. In Reading mode it
// returns nil and records ErrShortBuffer when fewer than n bytes remain.
func (c *Cursor) next(n int) []byte {
	if c.mode == Writing {
		c.grow(c.pos + n)
		b := c.data[c.pos : c.pos+n]
		c.pos += n
		return b
	}
	if c.pos+n > len(c.data) {
		if c.err == nil {
			c.err = errors.Wrapf(ErrShortBuffer, "need %d bytes at %d, have %d", n, c.pos, len(c.data))
		}
		c.pos += n
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *Cursor) Uint8(v uint8) uint8 {
	b := c.next(1)
	if b == nil {
		return 0
	}
	if c.mode == Writing {
		b[0] = v
		return v
	}
	return b[0]
}

func (c *Cursor) Uint16(v uint16) uint16 {
	b := c.next(2)
	if b == nil {
		return 0
	}
	if c.mode == Writing {
		binary.LittleEndian.PutUint16(b, v)
		return v
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *Cursor) Uint32(v uint32) uint32 {
	b := c.next(4)
	if b == nil {
		return 0
	}
	if c.mode == Writing {
		binary.LittleEndian.PutUint32(b, v)
		return v
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *Cursor) Uint64(v uint64) uint64 {
	b := c.next(8)
	if b == nil {
		return 0
	}
	if c.mode == Writing {
		binary.LittleEndian.PutUint64(b, v)
		return v
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *Cursor) Int32(v int32) int32 {
	return int32(c.Uint32(uint32(v)))
}

func (c *Cursor) Float32(v float32) float32 {
	return math.Float32frombits(c.Uint32(math.Float32bits(v)))
}

// Half reads or writes an IEEE 754 binary16 value.
func (c *Cursor) Half(v float32) float32 {
	bits := c.Uint16(float16.Fromfloat32(v).Bits())
	if c.mode == Writing {
		return v
	}
	return float16.Frombits(bits).Float32()
}

func (c *Cursor) Vec2Half(v [2]float32) [2]float32 {
	for i := range v {
		v[i] = c.Half(v[i])
	}
	return v
}

func (c *Cursor) Vec4Half(v [4]float32) [4]float32 {
	for i := range v {
		v[i] = c.Half(v[i])
	}
	return v
}

func (c *Cursor) Vec2Float(v [2]float32) [2]float32 {
	for i := range v {
		v[i] = c.Float32(v[i])
	}
	return v
}

func (c *Cursor) Vec3Float(v [3]float32) [3]float32 {
	for i := range v {
		v[i] = c.Float32(v[i])
	}
	return v
}

func (c *Cursor) Vec4Float(v [4]float32) [4]float32 {
	for i := range v {
		v[i] = c.Float32(v[i])
	}
	return v
}

func (c *Cursor) Vec4Uint8(v [4]uint32) [4]uint32 {
	for i := range v {
		v[i] = uint32(c.Uint8(uint8(v[i])))
	}
	return v
}

func (c *Cursor) Vec4Uint32(v [4]uint32) [4]uint32 {
	for i := range v {
		v[i] = c.Uint32(v[i])
	}
	return v
}

// Bytes reads or writes a run of exactly n bytes. When writing, v is
// truncated or zero-padded to n. When reading, a new slice is returned.
func (c *Cursor) Bytes(v []byte, n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("stream: negative byte run %d at %d", n, c.pos))
	}
	b := c.next(n)
	if b == nil {
		return nil
	}
	if c.mode == Writing {
		m := copy(b, v)
		for i := m; i < n; i++ {
			b[i] = 0
		}
		if len(v) > n {
			return v[:n]
		}
		return v
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Uint32s reads or writes len(v) consecutive uint32 values.
func (c *Cursor) Uint32s(v []uint32) []uint32 {
	for i := range v {
		v[i] = c.Uint32(v[i])
	}
	return v
}

// Uint64s reads or writes len(v) consecutive uint64 values.
func (c *Cursor) Uint64s(v []uint64) []uint64 {
	for i := range v {
		v[i] = c.Uint64(v[i])
	}
	return v
}
