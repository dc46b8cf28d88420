// Package manager keeps the loaded base archives and patches, resolves
// entries across them and applies patch edits. A Manager is driven from a
// single goroutine; only the search index build runs in parallel.
package manager

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/codecs"
	"github.com/EchoTools/stingrayTools/pkg/config"
	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/search"
	"github.com/EchoTools/stingrayTools/pkg/toc"
	"github.com/EchoTools/stingrayTools/pkg/unit"
)

// Options configures a Manager. Zero values are usable.
type Options struct {
	Log     *logrus.Entry
	Metrics *Metrics
	// Cache is handed to the search index build.
	Cache *search.BoltCache
	// SearchOnLoad builds the search index when the first archive is
	// loaded, from the game path or else the archive's directory.
	SearchOnLoad bool
}

type Manager struct {
	Archives      []*toc.StreamToc
	Patches       []*toc.StreamToc
	ActiveArchive *toc.StreamToc
	ActivePatch   *toc.StreamToc

	cfg          *config.Config
	reg          *registry.Registry
	codecs       *toc.CodecTable
	search       *search.Set
	cache        *search.BoltCache
	searchOnLoad bool
	clipboard    []*toc.Entry
	metrics      *Metrics
	log          *logrus.Entry
}

// New returns a manager. A nil cfg, reg or table is replaced by the
// defaults.
func New(cfg *config.Config, reg *registry.Registry, table *toc.CodecTable, opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if reg == nil {
		reg = registry.New(log)
	}
	if table == nil {
		table = codecs.NewTable(cfg.Mesh, reg, nil, log)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Manager{
		cfg:          cfg,
		reg:          reg,
		codecs:       table,
		cache:        opts.Cache,
		searchOnLoad: opts.SearchOnLoad,
		metrics:      metrics,
		log:          log,
	}
}

func (m *Manager) Metrics() *Metrics            { return m.metrics }
func (m *Manager) Registry() *registry.Registry { return m.reg }
func (m *Manager) Codecs() *toc.CodecTable      { return m.codecs }

// ArchiveLabel returns the display name of the archive at path, falling
// back to its file name.
func (m *Manager) ArchiveLabel(path string) string {
	id := filepath.Base(path)
	if i := strings.Index(id, ".patch_"); i >= 0 {
		id = id[:i]
	}
	if name := m.reg.ArchiveNames.Name(id); name != "" {
		return name
	}
	return filepath.Base(path)
}

// ArchiveNotEmpty reports whether t holds any material, texture or mesh
// entry. Archives holding none of these are of no use to the editor.
func ArchiveNotEmpty(t *toc.StreamToc) bool {
	for _, typeID := range []uint64{toc.MaterialID, toc.TextureID, toc.UnitID, toc.CompositeUnitID} {
		if t.Count(typeID) > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) loaded(path string) *toc.StreamToc {
	for _, list := range [][]*toc.StreamToc{m.Archives, m.Patches} {
		for _, t := range list {
			if t.Path == path {
				return t
			}
		}
	}
	return nil
}

// LoadArchive reads the container at path. With setActive a base archive
// becomes the active archive, or is dropped again when it is empty and the
// configuration asks for that, and a patch becomes the active patch.
// Loading a path twice returns the container already loaded.
func (m *Manager) LoadArchive(ctx context.Context, path string, setActive, isPatch bool) (*toc.StreamToc, error) {
	if t := m.loaded(path); t != nil {
		return t, nil
	}
	log := m.log.WithField("archive", m.ArchiveLabel(path))
	t, err := toc.FromFile(path, true)
	if err != nil {
		return nil, errors.Wrapf(err, "load archive %s", path)
	}
	m.metrics.archivesLoaded.Inc()
	log.WithField("entries", t.Len()).Info("loaded archive")
	m.indexAnimations(t, log)

	switch {
	case setActive && !isPatch:
		if m.cfg.Archive.UnloadEmpty && !ArchiveNotEmpty(t) {
			log.Info("unloading empty archive")
			return t, nil
		}
		m.Archives = append(m.Archives, t)
		m.SetActive(t)
	case setActive && isPatch:
		m.Patches = append(m.Patches, t)
		m.SetActivePatch(t)
		m.tagMaterialTemplates(t, log)
	default:
		m.Archives = append(m.Archives, t)
	}

	if m.searchOnLoad && m.search == nil {
		dir := m.cfg.GamePath
		if dir == "" {
			dir = filepath.Dir(path)
		}
		if err := m.BuildSearchIndex(ctx, dir); err != nil {
			return t, err
		}
	}
	return t, nil
}

// indexAnimations records which animations each state machine of t
// references.
func (m *Manager) indexAnimations(t *toc.StreamToc, log *logrus.Entry) {
	for _, e := range t.EntriesOfType(toc.StateMachineID) {
		ids, err := codecs.AnimationIDs(e.TocData)
		if err != nil {
			log.WithError(err).WithField("file_id", e.FileID).Warn("skipping unreadable state machine")
			continue
		}
		m.reg.Animations.Add(e.FileID, ids...)
	}
}

// tagMaterialTemplates marks the materials of a patch that derive from a
// known custom template and loads them.
func (m *Manager) tagMaterialTemplates(t *toc.StreamToc, log *logrus.Entry) {
	for _, e := range t.EntriesOfType(toc.MaterialID) {
		parent, ok := codecs.ParentMaterialID(e.TocData)
		if !ok {
			continue
		}
		name, ok := m.reg.MaterialTemplate(parent)
		if !ok {
			log.WithFields(logrus.Fields{"file_id": e.FileID, "parent": parent}).Debug("not a custom material")
			continue
		}
		e.MaterialTemplate = name
		if err := e.Load(m.codecs, false); err != nil {
			log.WithError(err).WithField("file_id", e.FileID).Warn("failed to load material")
		}
	}
}

// BuildSearchIndex indexes every container found under dir.
func (m *Manager) BuildSearchIndex(ctx context.Context, dir string) error {
	paths, err := search.Discover(dir)
	if err != nil {
		return err
	}
	indexes, err := search.Build(ctx, paths, search.Options{
		Workers: m.cfg.WorkerCount(),
		Cache:   m.cache,
		Log:     m.log,
	})
	if err != nil {
		return err
	}
	m.search = search.NewSet(indexes)
	m.metrics.searchIndexSize.Set(float64(m.search.Len()))
	return nil
}

// AddPackageIndex adds the entries of a packed index to the search index.
// The packed layout carries no magic, so it is only read on request. Its
// entries resolve to the archive named name in the game directory.
func (m *Manager) AddPackageIndex(name string, data []byte) error {
	x, err := search.FromPackage(filepath.Join(m.cfg.GamePath, name), data)
	if err != nil {
		return err
	}
	if m.search == nil {
		m.search = search.NewSet(nil)
	}
	m.search.Add(x)
	m.metrics.searchIndexSize.Set(float64(m.search.Len()))
	m.log.WithFields(logrus.Fields{"archive": x.Path, "entries": x.Len()}).Debug("indexed package")
	return nil
}

// SearchIndex returns the search index, or nil before it is built.
func (m *Manager) SearchIndex() *search.Set { return m.search }

// UnloadArchives drops every base archive and the search index.
func (m *Manager) UnloadArchives() {
	m.Archives = nil
	m.ActiveArchive = nil
	m.search = nil
	m.metrics.searchIndexSize.Set(0)
}

// UnloadPatches drops every patch.
func (m *Manager) UnloadPatches() {
	m.Patches = nil
	m.ActivePatch = nil
}

// BulkLoad loads paths as active base archives, unloading the current ones
// first when configured to.
func (m *Manager) BulkLoad(ctx context.Context, paths []string) error {
	if m.cfg.Archive.UnloadPatches {
		m.UnloadArchives()
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.LoadArchive(ctx, path, true, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) SetActive(t *toc.StreamToc) { m.ActiveArchive = t }

// SetActiveByName activates the loaded archive called name.
func (m *Manager) SetActiveByName(name string) bool {
	for _, t := range m.Archives {
		if t.Name == name {
			m.SetActive(t)
			return true
		}
	}
	return false
}

func (m *Manager) SetActivePatch(t *toc.StreamToc) { m.ActivePatch = t }

// SetActivePatchByName activates the loaded patch called name.
func (m *Manager) SetActivePatchByName(name string) bool {
	for _, t := range m.Patches {
		if t.Name == name {
			m.SetActivePatch(t)
			return true
		}
	}
	return false
}

// Lookup selects the resolution tiers GetEntry consults.
type Lookup struct {
	// SearchAll falls back to the search index, loading the archive that
	// holds the entry.
	SearchAll bool
	// IgnorePatch skips the active patch.
	IgnorePatch bool
}

// GetEntry resolves (fileID, typeID): the active patch, then the active
// archive, then every loaded archive, then optionally the search index.
// A miss returns nil and no error; an error means an archive found through
// the search index failed to load.
func (m *Manager) GetEntry(fileID, typeID uint64, l Lookup) (*toc.Entry, error) {
	if !l.IgnorePatch && m.ActivePatch != nil {
		if e := m.ActivePatch.GetEntry(fileID, typeID); e != nil {
			m.metrics.resolutions.WithLabelValues(tierPatch).Inc()
			return e, nil
		}
	}
	if m.ActiveArchive != nil {
		if e := m.ActiveArchive.GetEntry(fileID, typeID); e != nil {
			m.metrics.resolutions.WithLabelValues(tierActive).Inc()
			return e, nil
		}
	}
	for _, t := range m.Archives {
		if e := t.GetEntry(fileID, typeID); e != nil {
			m.metrics.resolutions.WithLabelValues(tierLoaded).Inc()
			return e, nil
		}
	}
	if l.SearchAll && m.search != nil {
		if x := m.search.Find(fileID, typeID); x != nil {
			t, err := m.LoadArchive(context.Background(), x.Path, false, false)
			if err != nil {
				return nil, err
			}
			m.metrics.resolutions.WithLabelValues(tierSearch).Inc()
			return t.GetEntry(fileID, typeID), nil
		}
		m.log.WithFields(logrus.Fields{"file_id": fileID, "type_id": typeID}).Debug("entry not found")
	}
	m.metrics.resolutions.WithLabelValues(tierMissing).Inc()
	return nil, nil
}

// Load decodes the entry wherever it resolves. A miss is not an error.
func (m *Manager) Load(fileID, typeID uint64, reload, searchAll bool) error {
	e, err := m.GetEntry(fileID, typeID, Lookup{SearchAll: searchAll})
	if err != nil || e == nil {
		return err
	}
	return m.loadEntry(e, reload)
}

func (m *Manager) loadEntry(e *toc.Entry, reload bool) error {
	if err := e.Load(m.codecs, reload); err != nil {
		return err
	}
	if mesh, ok := e.Model.(*unit.Mesh); ok && len(mesh.Warnings) > 0 {
		m.metrics.decodeWarnings.Add(float64(len(mesh.Warnings)))
	}
	return nil
}

// Save re-encodes the entry's model. An entry not yet in the active patch
// is copied into it first, so base archives are never modified.
func (m *Manager) Save(fileID, typeID uint64) error {
	e, err := m.GetEntry(fileID, typeID, Lookup{})
	if err != nil {
		return err
	}
	if e == nil {
		return policy("save", fileID, typeID, ErrNotFound)
	}
	if !m.IsInPatch(e) {
		src := e
		if e, err = m.AddEntryToPatch(fileID, typeID); err != nil {
			return err
		}
		// A model that cannot be cloned moves to the copy along with its
		// edits; the source decodes afresh from its untouched payload.
		if src.IsLoaded && !e.IsLoaded {
			e.Model, e.IsLoaded = src.Model, true
			src.Model, src.IsLoaded = nil, false
		}
	}
	if !e.IsLoaded {
		if err := m.loadEntry(e, false); err != nil {
			return err
		}
	}
	return e.Save(m.codecs)
}

// NewFileID returns a random 64-bit file id.
func NewFileID() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}
