package unit

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// octEncode projects a direction onto the octahedron and folds the lower
// hemisphere over the upper one. Both results are in [-1, 1].
func octEncode(x, y, z float64) (float64, float64) {
	l1 := math.Abs(x) + math.Abs(y) + math.Abs(z)
	if l1 == 0 {
		return 0, 0
	}
	x /= l1
	y /= l1
	if z < 0 {
		x, y = (1-math.Abs(y))*sign(x), (1-math.Abs(x))*sign(y)
	}
	return x, y
}

func octDecode(x, y float64) mgl32.Vec3 {
	z := 1 - math.Abs(x) - math.Abs(y)
	if z < 0 {
		x, y = (1-math.Abs(y))*sign(x), (1-math.Abs(x))*sign(y)
	}
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{float32(x / n), float32(y / n), float32(z / n)}
}

// PackNormal encodes a direction as two 10-bit octahedral coordinates in the
// low 20 bits of a word. The input is normalized first.
func PackNormal(n mgl32.Vec3) uint32 {
	var x, y, z float64
	if l := n.Len(); l > 0 {
		x, y, z = float64(n[0])/float64(l), float64(n[1])/float64(l), float64(n[2])/float64(l)
	}
	ox, oy := octEncode(x, y, z)
	return uint32((ox+1)*(1023.0/2.0)) | uint32((oy+1)*(1023.0/2.0))<<10
}

// UnpackNormal decodes a word produced by PackNormal into a unit vector.
func UnpackNormal(v uint32) mgl32.Vec3 {
	r := float64(v & 0x3ff)
	g := float64((v >> 10) & 0x3ff)
	return octDecode(r*(2.0/1023.0)-1, g*(2.0/1023.0)-1)
}

// unpack1010102 splits a 10-10-10-2 word into unit-range lanes.
func unpack1010102(v uint32) [4]float32 {
	return [4]float32{
		float32(v&0x3ff) / 1023,
		float32((v>>10)&0x3ff) / 1023,
		float32((v>>20)&0x3ff) / 1023,
		float32(v>>30) / 3,
	}
}

func pack1010102(v [4]float32) uint32 {
	lane := func(f, scale float32) uint32 {
		f = mgl32.Clamp(f, 0, 1)
		return uint32(math.Round(float64(f * scale)))
	}
	return lane(v[0], 1023) | lane(v[1], 1023)<<10 | lane(v[2], 1023)<<20 | lane(v[3], 3)<<30
}
