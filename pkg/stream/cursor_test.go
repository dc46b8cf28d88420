package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorSymmetry(t *testing.T) {
	type record struct {
		A uint8
		B uint16
		C uint32
		D uint64
		E int32
		F float32
		G [2]float32
		H [3]float32
		I [4]uint32
		J []byte
	}

	walk := func(c *Cursor, r *record) {
		r.A = c.Uint8(r.A)
		r.B = c.Uint16(r.B)
		r.C = c.Uint32(r.C)
		r.D = c.Uint64(r.D)
		r.E = c.Int32(r.E)
		r.F = c.Float32(r.F)
		r.G = c.Vec2Half(r.G)
		r.H = c.Vec3Float(r.H)
		r.I = c.Vec4Uint8(r.I)
		r.J = c.Bytes(r.J, 5)
	}

	in := record{
		A: 0xAB, B: 0xBEEF, C: 0xDEADBEEF, D: 0x0123456789ABCDEF, E: -42,
		F: 3.5, G: [2]float32{0.5, -1}, H: [3]float32{1, 2, 3},
		I: [4]uint32{1, 2, 3, 255}, J: []byte("hello"),
	}

	w := NewWriter()
	walk(w, &in)
	require.Equal(t, 1+2+4+8+4+4+4+12+4+5, w.Len())

	var out record
	r := NewReader(w.Data())
	walk(r, &out)
	require.NoError(t, r.Err())
	assert.Equal(t, in, out)
}

func TestCursorSeek(t *testing.T) {
	t.Run("WriteGrowsZeroFilled", func(t *testing.T) {
		w := NewWriter()
		w.Seek(10)
		w.Uint8(1)
		assert.Equal(t, 11, w.Len())
		assert.Equal(t, make([]byte, 10), w.Data()[:10])
	})

	t.Run("Align", func(t *testing.T) {
		w := NewWriter()
		w.Uint8(1)
		w.Align(64)
		assert.Equal(t, 64, w.Tell())
		w.Align(64)
		assert.Equal(t, 64, w.Tell())
	})

	t.Run("NegativePanics", func(t *testing.T) {
		assert.Panics(t, func() { NewWriter().Seek(-1) })
	})

	t.Run("ShortReadIsSticky", func(t *testing.T) {
		r := NewReader([]byte{1, 2})
		assert.Equal(t, uint32(0), r.Uint32(0))
		assert.ErrorIs(t, r.Err(), ErrShortBuffer)
		r.Seek(0)
		r.Uint8(0)
		assert.Error(t, r.Err())
	})

	t.Run("BytesPadsAndTruncates", func(t *testing.T) {
		w := NewWriter()
		w.Bytes([]byte{1, 2}, 4)
		w.Bytes([]byte{3, 4, 5, 6, 7}, 2)
		assert.Equal(t, []byte{1, 2, 0, 0, 3, 4}, w.Data())
	})

	t.Run("WriterFromOverwrites", func(t *testing.T) {
		src := []byte{1, 2, 3, 4}
		w := NewWriterFrom(src)
		w.Uint16(0xFFFF)
		assert.Equal(t, []byte{0xFF, 0xFF, 3, 4}, w.Data())
		assert.Equal(t, []byte{1, 2, 3, 4}, src)
	})
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, n, want int
	}{
		{0, 64, 0},
		{1, 64, 64},
		{64, 64, 64},
		{65, 16, 80},
		{7, 1, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.v, tt.n), "AlignUp(%d, %d)", tt.v, tt.n)
	}
}

func BenchmarkCursorWrite(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w := NewWriter()
		for j := 0; j < 1024; j++ {
			w.Uint32(uint32(j))
			w.Vec3Float([3]float32{1, 2, 3})
		}
	}
}

func BenchmarkCursorRead(b *testing.B) {
	w := NewWriter()
	for j := 0; j < 1024; j++ {
		w.Uint32(uint32(j))
		w.Vec3Float([3]float32{1, 2, 3})
	}
	data := w.Data()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := NewReader(data)
		for j := 0; j < 1024; j++ {
			r.Uint32(0)
			r.Vec3Float([3]float32{})
		}
	}
}
