package codecs

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// parentOffset locates a material's parent material id in its TOC payload.
const parentOffset = 0x18

// Material is a material entry. Only the parent material id is decoded;
// the rest of the payload is carried through untouched.
type Material struct {
	ParentMaterialID uint64
	Payload          toc.Payload
}

func (m *Material) CloneModel() any {
	return &Material{ParentMaterialID: m.ParentMaterialID, Payload: m.Payload.Clone()}
}

// ParentMaterialID reads the parent material id of a material TOC payload.
func ParentMaterialID(tocData []byte) (uint64, bool) {
	if len(tocData) < parentOffset+8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(tocData[parentOffset:]), true
}

type MaterialCodec struct{}

func (MaterialCodec) Decode(fileID uint64, p toc.Payload) (any, error) {
	parent, ok := ParentMaterialID(p.Toc)
	if !ok {
		return nil, errors.Errorf("material %d: %d byte payload has no parent id", fileID, len(p.Toc))
	}
	return &Material{ParentMaterialID: parent, Payload: p.Clone()}, nil
}

func (MaterialCodec) Encode(fileID uint64, p toc.Payload, model any) (toc.Payload, error) {
	m, ok := model.(*Material)
	if !ok {
		return p, errors.Errorf("material %d: unexpected model %T", fileID, model)
	}
	out := m.Payload.Clone()
	if len(out.Toc) < parentOffset+8 {
		return p, errors.Errorf("material %d: %d byte payload has no parent id", fileID, len(out.Toc))
	}
	binary.LittleEndian.PutUint64(out.Toc[parentOffset:], m.ParentMaterialID)
	return out, nil
}
