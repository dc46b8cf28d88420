package toc

import (
	"sync"

	"github.com/pkg/errors"
)

// Payload is the three buffers owned by an entry.
type Payload struct {
	Toc    []byte
	Gpu    []byte
	Stream []byte
}

// Clone returns a payload whose buffers do not alias p.
func (p Payload) Clone() Payload {
	return Payload{Toc: cloneBytes(p.Toc), Gpu: cloneBytes(p.Gpu), Stream: cloneBytes(p.Stream)}
}

// Codec decodes an entry payload into an in-memory model and encodes a model
// back into a payload. Encode receives the current payload so codecs that
// only rewrite part of an asset can carry the rest through.
type Codec interface {
	Decode(fileID uint64, p Payload) (any, error)
	Encode(fileID uint64, p Payload, model any) (Payload, error)
}

// Cloner is implemented by models that can be deep copied when their entry
// is copied into another container.
type Cloner interface {
	CloneModel() any
}

// RawModel is the model produced by RawCodec: the payload itself.
type RawModel struct {
	Payload
}

func (m *RawModel) CloneModel() any {
	return &RawModel{Payload: m.Payload.Clone()}
}

// RawCodec is an opaque passthrough used for every type without a codec.
type RawCodec struct{}

func (RawCodec) Decode(_ uint64, p Payload) (any, error) {
	return &RawModel{Payload: p.Clone()}, nil
}

func (RawCodec) Encode(_ uint64, p Payload, model any) (Payload, error) {
	raw, ok := model.(*RawModel)
	if !ok {
		return p, errors.Errorf("raw codec: unexpected model %T", model)
	}
	return raw.Payload.Clone(), nil
}

// CodecTable maps type ids to codecs. Unknown types fall back to RawCodec.
type CodecTable struct {
	mu     sync.RWMutex
	codecs map[uint64]Codec
}

// NewCodecTable returns a table holding only the raw fallback.
func NewCodecTable() *CodecTable {
	return &CodecTable{codecs: make(map[uint64]Codec)}
}

// Register binds a codec to a type id, replacing any previous binding.
func (t *CodecTable) Register(typeID uint64, c Codec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.codecs[typeID] = c
}

// Lookup returns the codec for typeID.
func (t *CodecTable) Lookup(typeID uint64) Codec {
	if t == nil {
		return RawCodec{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.codecs[typeID]; ok {
		return c
	}
	return RawCodec{}
}
