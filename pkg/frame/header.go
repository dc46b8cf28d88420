// Package frame stores a byte payload behind a small fixed header and
// compresses it with zstd or lz4. It is used for cached search index records.
package frame

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// Magic bytes identifying a frame header.
var Magic = [4]byte{'S', 'T', 'F', 'R'}

// HeaderSize is the fixed binary size of a frame header.
const HeaderSize = 24

// Codec selects the compression applied after the header.
type Codec uint32

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

var codecNames = map[Codec]string{
	CodecNone: "none",
	CodecZstd: "zstd",
	CodecLZ4:  "lz4",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", uint32(c))
}

// ParseCodec maps a configuration name to a Codec. An empty name is zstd.
func ParseCodec(name string) (Codec, error) {
	if name == "" {
		return CodecZstd, nil
	}
	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown frame codec %q", name)
}

// Header is the fixed prefix of a frame.
type Header struct {
	Magic            [4]byte
	Codec            Codec
	Length           uint64 // uncompressed
	CompressedLength uint64 // bytes after the header
}

func (h *Header) serialize(c *stream.Cursor) error {
	copy(h.Magic[:], c.Bytes(h.Magic[:], len(h.Magic)))
	h.Codec = Codec(c.Uint32(uint32(h.Codec)))
	h.Length = c.Uint64(h.Length)
	h.CompressedLength = c.Uint64(h.CompressedLength)
	return c.Err()
}

// Validate checks the magic and codec, and that a non-empty frame has a body.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return errors.Errorf("bad frame magic %x", h.Magic)
	}
	if _, ok := codecNames[h.Codec]; !ok {
		return errors.Errorf("bad frame codec %d", uint32(h.Codec))
	}
	if h.Length > 0 && h.CompressedLength == 0 {
		return errors.New("frame has no compressed body")
	}
	return nil
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	c := stream.NewWriter()
	if err := h.serialize(c); err != nil {
		return nil, err
	}
	return c.Data(), nil
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if err := h.serialize(stream.NewReader(data)); err != nil {
		return errors.Wrapf(err, "frame header (%d bytes)", len(data))
	}
	return h.Validate()
}
