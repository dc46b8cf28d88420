package frame

import (
	"bytes"
	"io"

	"github.com/DataDog/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Reader decompresses the data of one frame.
type Reader struct {
	header    Header
	src       io.Reader
	closer    io.Closer
	headerBuf [HeaderSize]byte
}

// NewReader reads and validates the header, then returns a reader for the
// decompressed content.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{}

	if _, err := io.ReadFull(r, reader.headerBuf[:]); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if err := reader.header.UnmarshalBinary(reader.headerBuf[:]); err != nil {
		return nil, errors.Wrap(err, "parse header")
	}

	body := io.LimitReader(r, int64(reader.header.CompressedLength))
	switch reader.header.Codec {
	case CodecZstd:
		z := zstd.NewReader(body)
		reader.src, reader.closer = z, z
	case CodecLZ4:
		reader.src = lz4.NewReader(body)
	default:
		reader.src = body
	}
	return reader, nil
}

// Header returns the frame header.
func (r *Reader) Header() Header {
	return r.header
}

// Read reads decompressed data into p.
func (r *Reader) Read(p []byte) (int, error) {
	return r.src.Read(p)
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll reads the entire decompressed content of a frame.
func ReadAll(r io.Reader) ([]byte, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data := make([]byte, reader.header.Length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, errors.Wrap(err, "read content")
	}
	return data, nil
}

// Decode is ReadAll over an in-memory frame.
func Decode(frame []byte) ([]byte, error) {
	return ReadAll(bytes.NewReader(frame))
}
