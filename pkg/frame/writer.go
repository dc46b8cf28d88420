package frame

import (
	"io"

	"github.com/DataDog/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// DefaultCompressionLevel is the default zstd level.
const DefaultCompressionLevel = zstd.BestSpeed

// Writer compresses data into a frame. The header is written up front with a
// placeholder compressed size and rewritten on Close.
type Writer struct {
	dst    io.WriteSeeker
	start  int64
	comp   io.WriteCloser
	header Header
	level  int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec selects the compression codec.
func WithCodec(c Codec) WriterOption {
	return func(w *Writer) {
		w.header.Codec = c
	}
}

// WithCompressionLevel sets the zstd compression level.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter creates a frame writer on dst for uncompressedSize bytes.
func NewWriter(dst io.WriteSeeker, uncompressedSize uint64, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dst:   dst,
		level: DefaultCompressionLevel,
		header: Header{
			Magic:  Magic,
			Codec:  CodecZstd,
			Length: uncompressedSize,
		},
	}
	for _, opt := range opts {
		opt(w)
	}

	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "get position")
	}
	w.start = start

	// Placeholder header.
	headerBytes, _ := w.header.MarshalBinary()
	if _, err := dst.Write(headerBytes); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	switch w.header.Codec {
	case CodecZstd:
		w.comp = zstd.NewWriterLevel(dst, w.level)
	case CodecLZ4:
		zw := lz4.NewWriter(dst)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, errors.Wrap(err, "configure lz4")
		}
		w.comp = zw
	case CodecNone:
		w.comp = nopCloser{dst}
	default:
		return nil, errors.Errorf("invalid codec: %d", uint32(w.header.Codec))
	}
	return w, nil
}

// Write writes compressed data.
func (w *Writer) Write(p []byte) (int, error) {
	return w.comp.Write(p)
}

// Close flushes the compressor and rewrites the header with the compressed
// size.
func (w *Writer) Close() error {
	if err := w.comp.Close(); err != nil {
		return errors.Wrap(err, "close compressor")
	}

	pos, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "get position")
	}
	w.header.CompressedLength = uint64(pos - w.start - HeaderSize)

	if _, err := w.dst.Seek(w.start, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to start")
	}
	headerBytes, _ := w.header.MarshalBinary()
	if _, err := w.dst.Write(headerBytes); err != nil {
		return errors.Wrap(err, "write header")
	}
	if _, err := w.dst.Seek(pos, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to end")
	}
	return nil
}

// Encode compresses data and writes it as a frame to dst.
func Encode(dst io.WriteSeeker, data []byte, opts ...WriterOption) error {
	w, err := NewWriter(dst, uint64(len(data)), opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write data")
	}
	return w.Close()
}

// Bytes encodes data into an in-memory frame.
func Bytes(data []byte, opts ...WriterOption) ([]byte, error) {
	buf := &Buffer{}
	if err := Encode(buf, data, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Buffer is an in-memory io.WriteSeeker.
type Buffer struct {
	data []byte
	pos  int64
}

func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.Errorf("negative position %d", pos)
	}
	b.pos = pos
	return pos, nil
}
