package codecs

import (
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/texture"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

type TextureCodec struct{}

func (TextureCodec) Decode(fileID uint64, p toc.Payload) (any, error) {
	t, err := texture.Decode(p)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %d", fileID)
	}
	return t, nil
}

func (TextureCodec) Encode(fileID uint64, p toc.Payload, model any) (toc.Payload, error) {
	t, ok := model.(*texture.Texture)
	if !ok {
		return p, errors.Errorf("texture %d: unexpected model %T", fileID, model)
	}
	out, err := t.Encode()
	if err != nil {
		return p, errors.Wrapf(err, "texture %d", fileID)
	}
	return out, nil
}
