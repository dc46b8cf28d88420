package unit

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
)

// ComponentType is the semantic of one interleaved vertex attribute.
type ComponentType uint32

const (
	Position ComponentType = iota
	Normal
	Tangent
	Bitangent
	UV
	Color
	BoneIndex
	BoneWeight
)

var componentTypeNames = map[ComponentType]string{
	Position:   "position",
	Normal:     "normal",
	Tangent:    "tangent",
	Bitangent:  "bitangent",
	UV:         "uv",
	Color:      "color",
	BoneIndex:  "bone_index",
	BoneWeight: "bone_weight",
}

func (t ComponentType) String() string {
	if name, ok := componentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// Format is the binary encoding of a vertex attribute.
type Format uint32

const (
	FormatFloat           Format = 0
	FormatVec2Float       Format = 1
	FormatVec3Float       Format = 2
	FormatRGBA8           Format = 4
	FormatVec4Uint32      Format = 20
	FormatVec4Uint8       Format = 24
	FormatVec4R10G10B10A2 Format = 25
	FormatPackedNormal    Format = 26
	FormatVec2Half        Format = 29
	FormatVec4Half        Format = 31
)

var formats = map[Format]struct {
	name string
	size int
}{
	FormatFloat:           {"float", 4},
	FormatVec2Float:       {"vec2_float", 8},
	FormatVec3Float:       {"vec3_float", 12},
	FormatRGBA8:           {"rgba_r8g8b8a8", 4},
	FormatVec4Uint32:      {"vec4_uint32", 16},
	FormatVec4Uint8:       {"vec4_uint8", 4},
	FormatVec4R10G10B10A2: {"vec4_1010102", 4},
	FormatPackedNormal:    {"unk_normal", 4},
	FormatVec2Half:        {"vec2_half", 4},
	FormatVec4Half:        {"vec4_half", 8},
}

func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown(%d)", uint32(f))
}

// Size returns the encoded size of f in bytes.
func (f Format) Size() (int, error) {
	info, ok := formats[f]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownFormat, "format %d", uint32(f))
	}
	return info.size, nil
}

// Component describes one attribute of a stream's vertex layout.
type Component struct {
	Type    ComponentType
	Format  Format
	Index   uint32
	Unknown uint64
}

const (
	componentSize  = 20
	maxComponents  = 16
	componentTable = componentSize * maxComponents
)

func (comp *Component) serialize(c *stream.Cursor) {
	comp.Type = ComponentType(c.Uint32(uint32(comp.Type)))
	comp.Format = Format(c.Uint32(uint32(comp.Format)))
	comp.Index = c.Uint32(comp.Index)
	comp.Unknown = c.Uint64(comp.Unknown)
}

// serializeFloats reads or writes one value of a continuous attribute in
// format f. Integer formats are converted lane by lane.
func serializeFloats(c *stream.Cursor, f Format, v [4]float32) ([4]float32, error) {
	switch f {
	case FormatFloat:
		v[0] = c.Float32(v[0])
	case FormatVec2Float:
		xy := c.Vec2Float([2]float32{v[0], v[1]})
		v[0], v[1] = xy[0], xy[1]
	case FormatVec3Float:
		xyz := c.Vec3Float([3]float32{v[0], v[1], v[2]})
		v[0], v[1], v[2] = xyz[0], xyz[1], xyz[2]
	case FormatRGBA8:
		if c.IsReading() {
			u := c.Vec4Uint8([4]uint32{})
			for i := range v {
				v[i] = float32(math.Min(1, float64(u[i])/255))
			}
			return v, nil
		}
		var u [4]uint32
		for i := range v {
			u[i] = uint32(mgl32.Clamp(v[i]*255, 0, 255))
		}
		c.Vec4Uint8(u)
	case FormatVec4Uint32, FormatVec4Uint8:
		u, err := serializeUints(c, f, toUints(v))
		if err != nil {
			return v, err
		}
		for i := range v {
			v[i] = float32(u[i])
		}
	case FormatVec4R10G10B10A2:
		if c.IsReading() {
			v = unpack1010102(c.Uint32(0))
			v[3] = 0
			return v, nil
		}
		c.Uint32(pack1010102(v))
	case FormatPackedNormal:
		if c.IsReading() {
			n := UnpackNormal(c.Uint32(0))
			return [4]float32{n[0], n[1], n[2], 0}, nil
		}
		c.Uint32(PackNormal(mgl32.Vec3{v[0], v[1], v[2]}))
	case FormatVec2Half:
		uv := c.Vec2Half([2]float32{v[0], v[1]})
		v[0], v[1] = uv[0], uv[1]
	case FormatVec4Half:
		v = c.Vec4Half(v)
	default:
		return v, errors.Wrapf(ErrUnknownFormat, "format %d", uint32(f))
	}
	return v, nil
}

// serializeUints reads or writes one value of an integer attribute.
func serializeUints(c *stream.Cursor, f Format, v [4]uint32) ([4]uint32, error) {
	switch f {
	case FormatVec4Uint8:
		return c.Vec4Uint8(v), nil
	case FormatVec4Uint32:
		return c.Vec4Uint32(v), nil
	}
	fv, err := serializeFloats(c, f, toFloats(v))
	return toUints(fv), err
}

func toUints(v [4]float32) [4]uint32 {
	var u [4]uint32
	for i := range v {
		if v[i] > 0 {
			u[i] = uint32(math.Round(float64(v[i])))
		}
	}
	return u
}

func toFloats(u [4]uint32) [4]float32 {
	var v [4]float32
	for i := range u {
		v[i] = float32(u[i])
	}
	return v
}

func vec2(v [4]float32) mgl32.Vec2 { return mgl32.Vec2{v[0], v[1]} }
func vec3(v [4]float32) mgl32.Vec3 { return mgl32.Vec3{v[0], v[1], v[2]} }
func vec4(v [4]float32) mgl32.Vec4 { return mgl32.Vec4(v) }

// normalize returns v scaled to unit length, or v when it has none.
func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return v
	}
	return v.Normalize()
}

func from2(v mgl32.Vec2) [4]float32 { return [4]float32{v[0], v[1]} }
func from3(v mgl32.Vec3) [4]float32 { return [4]float32{v[0], v[1], v[2]} }

// serializeAttribute reads or writes component comp of vertex vi of m.
func (m *RawMesh) serializeAttribute(c *stream.Cursor, comp Component, vi int) error {
	var err error
	var v [4]float32
	switch comp.Type {
	case Position:
		v, err = serializeFloats(c, comp.Format, from3(m.Positions[vi]))
		m.Positions[vi] = vec3(v)
	case Normal:
		v, err = serializeFloats(c, comp.Format, from3(normalize(m.Normals[vi])))
		if c.IsReading() {
			m.Normals[vi] = normalize(vec3(v))
		}
	case Tangent:
		v, err = serializeFloats(c, comp.Format, from3(m.Tangents[vi]))
		m.Tangents[vi] = vec3(v)
	case Bitangent:
		v, err = serializeFloats(c, comp.Format, from3(m.Bitangents[vi]))
		m.Bitangents[vi] = vec3(v)
	case UV:
		if int(comp.Index) >= len(m.UVs) {
			return errors.Errorf("uv channel %d out of range (%d channels)", comp.Index, len(m.UVs))
		}
		v, err = serializeFloats(c, comp.Format, from2(m.UVs[comp.Index][vi]))
		m.UVs[comp.Index][vi] = vec2(v)
	case Color:
		v, err = serializeFloats(c, comp.Format, [4]float32(m.Colors[vi]))
		m.Colors[vi] = vec4(v)
	case BoneIndex:
		if int(comp.Index) >= len(m.BoneIndices) {
			return errors.Errorf("vertex bone index out of range: component index %d vertex %d", comp.Index, vi)
		}
		m.BoneIndices[comp.Index][vi], err = serializeUints(c, comp.Format, m.BoneIndices[comp.Index][vi])
	case BoneWeight:
		if comp.Index > 0 {
			size, err := comp.Format.Size()
			if err != nil {
				return err
			}
			c.Skip(size)
			return nil
		}
		v, err = serializeFloats(c, comp.Format, [4]float32(m.Weights[vi]))
		m.Weights[vi] = vec4(v)
	default:
		return errors.Wrapf(ErrUnknownComponent, "type %d", uint32(comp.Type))
	}
	return err
}
