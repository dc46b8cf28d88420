// Package texture decodes Stingray texture entries.
//
// The TOC payload holds three header words, a fixed table of 15 mip
// descriptors and a complete DX10 DDS header. The pixel data follows the DDS
// header in a file but lives outside the TOC in the archive: the largest
// mips in the stream payload and the tail in the GPU payload.
package texture

import (
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// MipCount is the number of mip descriptors in every texture header.
const MipCount = 15

// HeaderSize is the TOC size up to the DDS header.
const HeaderSize = 12 + MipCount*12

// MipInfo locates one mip level in the pixel data.
type MipInfo struct {
	Start     uint32
	BytesLeft uint32
	Height    uint16
	Width     uint16
}

// Texture is a decoded texture entry.
type Texture struct {
	UnkID uint32
	Unk1  uint32
	Unk2  uint32
	Mips  [MipCount]MipInfo

	// DDSHeader is the DDSHeaderSize byte header, magic included.
	DDSHeader []byte
	// Trailing holds TOC bytes after the DDS header.
	Trailing []byte

	// Raw is the pixel data: the stream payload followed by the GPU one.
	Raw []byte
	// StreamSize is the number of leading Raw bytes stored in the stream
	// payload.
	StreamSize int
}

func (t *Texture) serialize(c *stream.Cursor) error {
	t.UnkID = c.Uint32(t.UnkID)
	t.Unk1 = c.Uint32(t.Unk1)
	t.Unk2 = c.Uint32(t.Unk2)
	for i := range t.Mips {
		m := &t.Mips[i]
		m.Start = c.Uint32(m.Start)
		m.BytesLeft = c.Uint32(m.BytesLeft)
		m.Height = c.Uint16(m.Height)
		m.Width = c.Uint16(m.Width)
	}
	t.DDSHeader = c.Bytes(t.DDSHeader, DDSHeaderSize)
	if err := c.Err(); err != nil {
		return err
	}
	n := len(t.Trailing)
	if c.IsReading() {
		n = c.Len() - c.Tell()
	}
	t.Trailing = c.Bytes(t.Trailing, n)
	return c.Err()
}

// Decode reads a texture from an entry payload.
func Decode(p toc.Payload) (*Texture, error) {
	t := &Texture{}
	if err := t.serialize(stream.NewReader(p.Toc)); err != nil {
		return nil, errors.Wrapf(err, "texture header (%d bytes)", len(p.Toc))
	}
	if _, err := ParseDDSHeader(t.DDSHeader); err != nil {
		return nil, err
	}
	t.Raw = make([]byte, 0, len(p.Stream)+len(p.Gpu))
	t.Raw = append(t.Raw, p.Stream...)
	t.Raw = append(t.Raw, p.Gpu...)
	t.StreamSize = len(p.Stream)
	return t, nil
}

// Encode writes t back into a payload.
func (t *Texture) Encode() (toc.Payload, error) {
	if t.StreamSize < 0 || t.StreamSize > len(t.Raw) {
		return toc.Payload{}, errors.Errorf("stream split %d outside %d bytes of pixel data", t.StreamSize, len(t.Raw))
	}
	c := stream.NewWriter()
	if err := t.serialize(c); err != nil {
		return toc.Payload{}, err
	}
	p := toc.Payload{Toc: c.Data()}
	if t.StreamSize > 0 {
		p.Stream = append([]byte(nil), t.Raw[:t.StreamSize]...)
	}
	if len(t.Raw) > t.StreamSize {
		p.Gpu = append([]byte(nil), t.Raw[t.StreamSize:]...)
	}
	return p, nil
}

// Info parses the embedded DDS header.
func (t *Texture) Info() (Info, error) {
	return ParseDDSHeader(t.DDSHeader)
}

// ToDDS returns a standalone DDS file.
func (t *Texture) ToDDS() []byte {
	out := make([]byte, 0, len(t.DDSHeader)+len(t.Raw))
	out = append(out, t.DDSHeader...)
	return append(out, t.Raw...)
}

// FromDDS replaces the header and pixel data with a DX10 DDS file. The GPU
// payload keeps its former size when the texture was split, so the smallest
// mips stay resident; the mip table is kept as is.
func (t *Texture) FromDDS(dds []byte) error {
	if _, err := ParseDDSHeader(dds); err != nil {
		return err
	}
	gpuSize := len(t.Raw) - t.StreamSize
	split := t.StreamSize > 0
	t.DDSHeader = append([]byte(nil), dds[:DDSHeaderSize]...)
	t.Raw = append([]byte(nil), dds[DDSHeaderSize:]...)
	t.StreamSize = 0
	if split && len(t.Raw) > gpuSize {
		t.StreamSize = len(t.Raw) - gpuSize
	}
	return nil
}

func (t *Texture) CloneModel() any {
	out := *t
	out.DDSHeader = append([]byte(nil), t.DDSHeader...)
	out.Trailing = append([]byte(nil), t.Trailing...)
	out.Raw = append([]byte(nil), t.Raw...)
	return &out
}
