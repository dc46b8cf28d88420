package texture

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// DXGI_FORMAT constants for common texture formats
const (
	DXGI_FORMAT_UNKNOWN             = 0
	DXGI_FORMAT_R8G8B8A8_UNORM      = 28
	DXGI_FORMAT_R8G8B8A8_UNORM_SRGB = 29
	DXGI_FORMAT_BC1_UNORM           = 71
	DXGI_FORMAT_BC1_UNORM_SRGB      = 72
	DXGI_FORMAT_BC2_UNORM           = 74
	DXGI_FORMAT_BC2_UNORM_SRGB      = 75
	DXGI_FORMAT_BC3_UNORM           = 77
	DXGI_FORMAT_BC3_UNORM_SRGB      = 78
	DXGI_FORMAT_BC4_UNORM           = 80
	DXGI_FORMAT_BC4_SNORM           = 81
	DXGI_FORMAT_BC5_UNORM           = 83
	DXGI_FORMAT_BC5_SNORM           = 84
	DXGI_FORMAT_BC6H_UF16           = 95
	DXGI_FORMAT_BC6H_SF16           = 96
	DXGI_FORMAT_BC7_UNORM           = 98
	DXGI_FORMAT_BC7_UNORM_SRGB      = 99
)

var formatNames = map[uint32]string{
	DXGI_FORMAT_R8G8B8A8_UNORM:      "R8G8B8A8_UNORM",
	DXGI_FORMAT_R8G8B8A8_UNORM_SRGB: "R8G8B8A8_UNORM_SRGB",
	DXGI_FORMAT_BC1_UNORM:           "BC1_UNORM",
	DXGI_FORMAT_BC1_UNORM_SRGB:      "BC1_UNORM_SRGB",
	DXGI_FORMAT_BC2_UNORM:           "BC2_UNORM",
	DXGI_FORMAT_BC2_UNORM_SRGB:      "BC2_UNORM_SRGB",
	DXGI_FORMAT_BC3_UNORM:           "BC3_UNORM",
	DXGI_FORMAT_BC3_UNORM_SRGB:      "BC3_UNORM_SRGB",
	DXGI_FORMAT_BC4_UNORM:           "BC4_UNORM",
	DXGI_FORMAT_BC4_SNORM:           "BC4_SNORM",
	DXGI_FORMAT_BC5_UNORM:           "BC5_UNORM",
	DXGI_FORMAT_BC5_SNORM:           "BC5_SNORM",
	DXGI_FORMAT_BC6H_UF16:           "BC6H_UF16",
	DXGI_FORMAT_BC6H_SF16:           "BC6H_SF16",
	DXGI_FORMAT_BC7_UNORM:           "BC7_UNORM",
	DXGI_FORMAT_BC7_UNORM_SRGB:      "BC7_UNORM_SRGB",
}

// FormatName returns a human-readable name for a DXGI_FORMAT value.
func FormatName(format uint32) string {
	if name, ok := formatNames[format]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", format)
}

// DDS header constants
const (
	DDS_MAGIC                    = 0x20534444 // "DDS "
	DDS_HEADER_SIZE              = 124
	DDS_HEADER_FLAGS_CAPS        = 0x1
	DDS_HEADER_FLAGS_HEIGHT      = 0x2
	DDS_HEADER_FLAGS_WIDTH       = 0x4
	DDS_HEADER_FLAGS_PIXELFORMAT = 0x1000
	DDS_HEADER_FLAGS_MIPMAPCOUNT = 0x20000
	DDS_HEADER_FLAGS_LINEARSIZE  = 0x80000

	DDS_SURFACE_FLAGS_TEXTURE = 0x1000
	DDS_SURFACE_FLAGS_MIPMAP  = 0x400000

	DDS_PIXELFORMAT_SIZE = 32
	DDS_FOURCC           = 0x4

	DX10_FOURCC = 0x30315844 // "DX10"
)

// DDSHeaderSize covers the magic, the legacy header and the DX10 extension.
const DDSHeaderSize = 4 + DDS_HEADER_SIZE + 20

// Info is the part of a DDS header the tools care about.
type Info struct {
	Width      uint32
	Height     uint32
	MipLevels  uint32
	DXGIFormat uint32
	ArraySize  uint32
}

func (i Info) String() string {
	return fmt.Sprintf("%dx%d, %d mips, format=%s", i.Width, i.Height, i.MipLevels, FormatName(i.DXGIFormat))
}

// ddsHeader is the complete DDS_HEADER plus DDS_HEADER_DXT10.
type ddsHeader struct {
	Magic       uint32
	Size        uint32
	Flags       uint32
	Height      uint32
	Width       uint32
	LinearSize  uint32
	Depth       uint32
	MipMapCount uint32
	Reserved1   [11]uint32

	PFSize      uint32
	PFFlags     uint32
	FourCC      uint32
	RGBBitCount uint32
	BitMasks    [4]uint32
	Caps        [4]uint32
	Reserved2   uint32
	DXGIFormat  uint32
	Dimension   uint32
	MiscFlag    uint32
	ArraySize   uint32
	MiscFlags2  uint32
}

func (h *ddsHeader) serialize(c *stream.Cursor) error {
	h.Magic = c.Uint32(h.Magic)
	h.Size = c.Uint32(h.Size)
	h.Flags = c.Uint32(h.Flags)
	h.Height = c.Uint32(h.Height)
	h.Width = c.Uint32(h.Width)
	h.LinearSize = c.Uint32(h.LinearSize)
	h.Depth = c.Uint32(h.Depth)
	h.MipMapCount = c.Uint32(h.MipMapCount)
	c.Uint32s(h.Reserved1[:])
	h.PFSize = c.Uint32(h.PFSize)
	h.PFFlags = c.Uint32(h.PFFlags)
	h.FourCC = c.Uint32(h.FourCC)
	h.RGBBitCount = c.Uint32(h.RGBBitCount)
	c.Uint32s(h.BitMasks[:])
	c.Uint32s(h.Caps[:])
	h.Reserved2 = c.Uint32(h.Reserved2)
	h.DXGIFormat = c.Uint32(h.DXGIFormat)
	h.Dimension = c.Uint32(h.Dimension)
	h.MiscFlag = c.Uint32(h.MiscFlag)
	h.ArraySize = c.Uint32(h.ArraySize)
	h.MiscFlags2 = c.Uint32(h.MiscFlags2)
	if err := c.Err(); err != nil {
		return err
	}
	if c.IsReading() {
		if h.Magic != DDS_MAGIC {
			return errors.Errorf("bad dds magic %#08x", h.Magic)
		}
		if h.FourCC != DX10_FOURCC {
			return errors.Errorf("dds without a DX10 extension (fourcc %#08x)", h.FourCC)
		}
	}
	return nil
}

// ParseDDSHeader reads the header fields of a DX10 DDS blob.
func ParseDDSHeader(data []byte) (Info, error) {
	var h ddsHeader
	if err := h.serialize(stream.NewReader(data)); err != nil {
		return Info{}, errors.Wrap(err, "parse dds header")
	}
	return Info{
		Width:      h.Width,
		Height:     h.Height,
		MipLevels:  h.MipMapCount,
		DXGIFormat: h.DXGIFormat,
		ArraySize:  h.ArraySize,
	}, nil
}

// NewDDSHeader builds a DX10 DDS header for a 2D texture.
func NewDDSHeader(info Info) []byte {
	h := ddsHeader{
		Magic:       DDS_MAGIC,
		Size:        DDS_HEADER_SIZE,
		Flags:       DDS_HEADER_FLAGS_CAPS | DDS_HEADER_FLAGS_HEIGHT | DDS_HEADER_FLAGS_WIDTH | DDS_HEADER_FLAGS_PIXELFORMAT | DDS_HEADER_FLAGS_LINEARSIZE,
		Height:      info.Height,
		Width:       info.Width,
		LinearSize:  calculateLinearSize(info.Width, info.Height, info.DXGIFormat),
		MipMapCount: info.MipLevels,
		PFSize:      DDS_PIXELFORMAT_SIZE,
		PFFlags:     DDS_FOURCC,
		FourCC:      DX10_FOURCC,
		DXGIFormat:  info.DXGIFormat,
		Dimension:   3, // TEXTURE2D
		ArraySize:   info.ArraySize,
	}
	h.Caps[0] = DDS_SURFACE_FLAGS_TEXTURE
	if info.MipLevels > 1 {
		h.Flags |= DDS_HEADER_FLAGS_MIPMAPCOUNT
		h.Caps[0] |= DDS_SURFACE_FLAGS_MIPMAP
	}
	if h.ArraySize == 0 {
		h.ArraySize = 1
	}
	c := stream.NewWriter()
	_ = h.serialize(c)
	return c.Data()
}

// calculateLinearSize calculates the linear size for a compressed texture.
func calculateLinearSize(width, height, format uint32) uint32 {
	switch format {
	case DXGI_FORMAT_R8G8B8A8_UNORM, DXGI_FORMAT_R8G8B8A8_UNORM_SRGB:
		return width * height * 4
	}

	blockSize := uint32(16)
	// BC1 and BC4 use 8 bytes per block
	if format == DXGI_FORMAT_BC1_UNORM || format == DXGI_FORMAT_BC1_UNORM_SRGB ||
		format == DXGI_FORMAT_BC4_UNORM || format == DXGI_FORMAT_BC4_SNORM {
		blockSize = 8
	}
	blocksWide := (width + 3) / 4
	blocksHigh := (height + 3) / 4
	return blocksWide * blocksHigh * blockSize
}
