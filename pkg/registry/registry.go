// Package registry holds the process-wide lookup state shared by the
// archive manager and the codecs: hash lists, the animation to state machine
// index and the material slot cache.
package registry

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Paths locates the hash lists. Empty paths are skipped.
type Paths struct {
	TypeNames         string
	FriendlyNames     string
	ArchiveNames      string
	BoneNames         string
	MaterialTemplates string
}

// Registry is created once at startup and passed to the manager and codecs.
type Registry struct {
	TypeNames     *NameTable
	FriendlyNames *NameTable
	BoneNames     *NameTable
	// MaterialTemplates maps a parent material id to the name of the custom
	// material template it was built from.
	MaterialTemplates *NameTable
	ArchiveNames      *ArchiveNames

	Animations    *AnimationIndex
	MaterialSlots *MaterialSlots

	log *logrus.Entry
}

// New returns an empty registry.
func New(log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		TypeNames:         NewNameTable(16),
		FriendlyNames:     NewNameTable(10),
		BoneNames:         NewNameTable(0),
		MaterialTemplates: NewNameTable(0),
		ArchiveNames:      NewArchiveNames(),
		Animations:        NewAnimationIndex(),
		MaterialSlots:     NewMaterialSlots(),
		log:               log,
	}
}

// Load reads every configured hash list. A missing file is logged and
// skipped; a file that cannot be parsed is an error.
func (r *Registry) Load(p Paths) error {
	tables := []struct {
		name string
		path string
		load func(string) error
	}{
		{"type names", p.TypeNames, r.TypeNames.Load},
		{"friendly names", p.FriendlyNames, r.FriendlyNames.Load},
		{"bone names", p.BoneNames, r.BoneNames.Load},
		{"material templates", p.MaterialTemplates, r.MaterialTemplates.Load},
		{"archive names", p.ArchiveNames, r.ArchiveNames.Load},
	}
	for _, t := range tables {
		if t.path == "" {
			continue
		}
		if _, err := os.Stat(t.path); os.IsNotExist(err) {
			r.log.WithField("path", t.path).Debugf("%s not found, skipping", t.name)
			continue
		}
		if err := t.load(t.path); err != nil {
			return errors.Wrapf(err, "load %s", t.name)
		}
	}
	r.log.WithFields(logrus.Fields{
		"types":     r.TypeNames.Len(),
		"friendly":  r.FriendlyNames.Len(),
		"bones":     r.BoneNames.Len(),
		"templates": r.MaterialTemplates.Len(),
	}).Debug("registry loaded")
	return nil
}

// FriendlyName returns the friendly name of id, or id in decimal.
func (r *Registry) FriendlyName(id uint64) string {
	if name := r.FriendlyNames.Name(id); name != "" {
		return name
	}
	return strconv.FormatUint(id, 10)
}

// AddFriendlyName records a name and persists the friendly name list when
// it has a backing file.
func (r *Registry) AddFriendlyName(id uint64, name string) error {
	r.FriendlyNames.Set(id, name)
	if r.FriendlyNames.Path() == "" {
		return nil
	}
	return r.FriendlyNames.Save("")
}

// TypeName returns the hash list name of a type id, or "unknown".
func (r *Registry) TypeName(id uint64) string {
	if name := r.TypeNames.Name(id); name != "" {
		return name
	}
	return "unknown"
}

// MaterialTemplate returns the template name for a parent material id.
func (r *Registry) MaterialTemplate(parent uint64) (string, bool) {
	name := r.MaterialTemplates.Name(parent)
	return name, name != ""
}

// BoneHash returns the hash of a bone name, preferring the hash list.
func (r *Registry) BoneHash(name string) uint32 {
	if id, ok := r.BoneNames.Lookup(name); ok {
		return uint32(id)
	}
	return Hash32(name)
}
