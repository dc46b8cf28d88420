// Package codecs holds the type-specific entry codecs and builds the
// dispatch table the archive manager loads and saves entries through.
package codecs

import (
	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/config"
	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/toc"
	"github.com/EchoTools/stingrayTools/pkg/unit"
)

// NewTable returns the dispatch table for the known entry types. Types
// without a codec here (particles, bones, animations, composite units) load
// as opaque payloads.
func NewTable(mesh config.MeshConfig, reg *registry.Registry, composite unit.CompositeResolver, log *logrus.Entry) *toc.CodecTable {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := toc.NewCodecTable()
	t.Register(toc.UnitID, &MeshCodec{
		Mesh:      mesh,
		Registry:  reg,
		Composite: composite,
		Log:       log.WithField("codec", "unit"),
	})
	t.Register(toc.TextureID, TextureCodec{})
	t.Register(toc.MaterialID, MaterialCodec{})
	t.Register(toc.StateMachineID, StateMachineCodec{})
	return t
}
