package unit

import (
	"bytes"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// LightType selects the shape of a Light.
type LightType uint32

const (
	LightOmni LightType = iota
	LightSpot
	LightBox
	LightDirectional
)

// Light flags.
const (
	LightCastShadow       = 0x1
	LightDisabled         = 0x2
	LightIndirectLighting = 0x4
	LightVolumetricFog    = 0x10
)

// Light is one light attached to a unit node.
type Light struct {
	NameHash     uint32
	BoneIndex    uint32
	Color        mgl32.Vec3
	Intensity    float32
	FalloffStart float32
	FalloffEnd   float32
	FalloffExp   float32
	StartAngle   float32
	EndAngle     float32
	Unk0         float32
	ShadowBias   float32
	Unk1         [5]float32
	Flags        uint8
	Type         LightType
	Unk2         [32]byte
}

const lightSize = 112

// NewLight returns a light with the engine's default intensity, falloff
// exponent and shadow bias.
func NewLight() Light {
	return Light{Intensity: 1, FalloffExp: 1, ShadowBias: 0.4}
}

func (l *Light) serialize(c *stream.Cursor) {
	l.NameHash = c.Uint32(l.NameHash)
	l.BoneIndex = c.Uint32(l.BoneIndex)
	l.Color = serializeVec3(c, l.Color)
	l.Intensity = c.Float32(l.Intensity)
	l.FalloffStart = c.Float32(l.FalloffStart)
	l.FalloffEnd = c.Float32(l.FalloffEnd)
	l.FalloffExp = c.Float32(l.FalloffExp)
	l.StartAngle = c.Float32(l.StartAngle)
	l.EndAngle = c.Float32(l.EndAngle)
	l.Unk0 = c.Float32(l.Unk0)
	l.ShadowBias = c.Float32(l.ShadowBias)
	for i := range l.Unk1 {
		l.Unk1[i] = c.Float32(l.Unk1[i])
	}
	l.Flags = c.Uint8(l.Flags)
	c.Bytes(nil, 3)
	l.Type = LightType(c.Uint32(uint32(l.Type)))
	copy(l.Unk2[:], c.Bytes(l.Unk2[:], len(l.Unk2)))
}

// LightList is the count-prefixed light table.
type LightList struct {
	Unk0   [3]uint32
	Lights []Light
}

func (ll *LightList) serialize(c *stream.Cursor) error {
	n := c.Uint32(uint32(len(ll.Lights)))
	for i := range ll.Unk0 {
		ll.Unk0[i] = c.Uint32(ll.Unk0[i])
	}
	if c.IsReading() {
		if !fits(c, int(n), lightSize) {
			return errors.Errorf("%d lights overrun the buffer", n)
		}
		ll.Lights = make([]Light, n)
	}
	for i := range ll.Lights {
		ll.Lights[i].serialize(c)
	}
	return nil
}

// CustomizationInfo is the armor customization user data some units carry.
// It is parsed for inspection only; the block is re-emitted byte for byte.
type CustomizationInfo struct {
	BodyType  string
	Slot      string
	Weight    string
	PieceType string
}

// parseCustomization reads the four length-prefixed strings of a
// customization block. Blocks with another shape yield empty strings.
func parseCustomization(data []byte) CustomizationInfo {
	c := stream.NewReader(data)
	ok := true
	field := func(skip int) string {
		if !ok {
			return ""
		}
		c.Skip(skip)
		n := int(c.Uint32(0))
		if c.Err() != nil || !fits(c, n, 1) {
			ok = false
			return ""
		}
		return string(bytes.ReplaceAll(c.Bytes(nil, n), []byte{0}, nil))
	}
	info := CustomizationInfo{
		BodyType:  field(24),
		Slot:      field(12),
		Weight:    field(12),
		PieceType: field(12),
	}
	if !ok {
		return CustomizationInfo{}
	}
	return info
}
