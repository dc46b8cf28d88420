package codecs

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/config"
	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/toc"
	"github.com/EchoTools/stingrayTools/pkg/unit"
)

// MeshCodec binds the unit codec into the dispatch table. Decoded models
// are *unit.Mesh. The stream payload is carried through untouched.
type MeshCodec struct {
	Mesh      config.MeshConfig
	Registry  *registry.Registry
	Composite unit.CompositeResolver
	Log       *logrus.Entry
}

func (m *MeshCodec) options() unit.Options {
	opts := unit.Options{
		AutoLODs:              m.Mesh.AutoLODs,
		Force3UVs:             m.Mesh.Force3UVs,
		Force1Group:           m.Mesh.Force1Group,
		LoadMaterialSlotNames: m.Mesh.LoadMaterialSlotNames,
		Composite:             m.Composite,
		Log:                   m.Log,
	}
	if m.Registry != nil {
		opts.Slots = m.Registry.MaterialSlots
	}
	return opts
}

func (m *MeshCodec) Decode(fileID uint64, p toc.Payload) (any, error) {
	mesh, err := unit.Decode(fileID, p.Toc, p.Gpu, m.options())
	if err != nil {
		return nil, err
	}
	return mesh, nil
}

func (m *MeshCodec) Encode(fileID uint64, p toc.Payload, model any) (toc.Payload, error) {
	mesh, ok := model.(*unit.Mesh)
	if !ok {
		return p, errors.Errorf("mesh %d: unexpected model %T", fileID, model)
	}
	tocData, gpuData, err := mesh.Encode(m.options())
	if err != nil {
		return p, errors.Wrapf(err, "encode mesh %d", fileID)
	}
	return toc.Payload{Toc: tocData, Gpu: gpuData, Stream: p.Stream}, nil
}
