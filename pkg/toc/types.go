package toc

// Engine type ids. The type id selects the codec applied to an entry.
const (
	UnitID          uint64 = 0xe0a48d0be9a7453f
	TextureID       uint64 = 0xcd4238c6a0c69e32
	CompositeUnitID uint64 = 0xc4f0f4be7fb0c8d6
	MaterialID      uint64 = 0xeac0b497876adedf
	BoneID          uint64 = 0x18dead01056b72e9
	ParticleID      uint64 = 0xa8193123526fad64
	AnimationID     uint64 = 0x931e336d7646cc26
	StateMachineID  uint64 = 0xa486d4045106165c
)

// Magic identifies a stream TOC index blob.
const Magic uint32 = 0xF0000011

// On-disk sizes of the fixed records.
const (
	HeaderSize = 72
	TypeSize   = 32
	EntrySize  = 80

	// MinBytesPerEntry is the engine-imposed floor on the index blob size.
	MinBytesPerEntry = 256

	// PayloadAlignment applies to gpu and stream payload offsets.
	PayloadAlignment = 64
)

// Companion file suffixes of a container triplet.
const (
	GpuSuffix    = ".gpu_resources"
	StreamSuffix = ".stream"
)

var builtinTypeNames = map[uint64]string{
	UnitID:          "unit",
	TextureID:       "texture",
	CompositeUnitID: "composite_unit",
	MaterialID:      "material",
	BoneID:          "bones",
	ParticleID:      "particles",
	AnimationID:     "animation",
	StateMachineID:  "state_machine",
}

// TypeName returns the short name of a built-in type id, or "" if unknown.
func TypeName(id uint64) string {
	return builtinTypeNames[id]
}

// TypeRow is one row of the type table.
type TypeRow struct {
	Unknown1 uint64
	TypeID   uint64
	Count    uint64
	Unknown2 uint32
	Unknown3 uint32
}

func newTypeRow(typeID uint64, count int) TypeRow {
	return TypeRow{TypeID: typeID, Count: uint64(count), Unknown2: 16, Unknown3: 64}
}
