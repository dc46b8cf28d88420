package manager

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// CreatePatchFromActive starts an empty patch inheriting the active
// archive's header, stored next to it as "<path>.patch_N". N is the first
// number neither a loaded patch nor a file on disk uses. An empty name
// defaults to the file name.
func (m *Manager) CreatePatchFromActive(name string) (*toc.StreamToc, error) {
	if m.ActiveArchive == nil {
		return nil, policy("create patch", 0, 0, ErrNoActiveArchive)
	}
	patch := m.ActiveArchive.EmptyCopy()
	patch.SetPath(toc.FreePatchPath(m.ActiveArchive.Path, m.patchPathTaken))
	if name == "" {
		name = filepath.Base(patch.Path)
	}
	patch.LocalName = name
	m.Patches = append(m.Patches, patch)
	m.SetActivePatch(patch)
	m.metrics.patchesCreated.Inc()
	m.log.WithFields(logrus.Fields{"patch": patch.Path, "name": name}).Info("created patch")
	return patch, nil
}

func (m *Manager) patchPathTaken(path string) bool {
	for _, p := range m.Patches {
		if p.Path == path {
			return true
		}
	}
	_, err := os.Stat(path)
	return err == nil
}

// PatchActiveArchive writes the active patch to disk.
func (m *Manager) PatchActiveArchive() error {
	if m.ActivePatch == nil {
		return policy("write patch", 0, 0, ErrNoActivePatch)
	}
	return m.ActivePatch.ToFile("")
}

// AddNewEntryToPatch inserts e as is. An existing entry with the same ids
// is an error.
func (m *Manager) AddNewEntryToPatch(e *toc.Entry) error {
	if m.ActivePatch == nil {
		return policy("add entry", e.FileID, e.TypeID, ErrNoActivePatch)
	}
	if err := m.ActivePatch.AddEntry(e, false); err != nil {
		return policy("add entry", e.FileID, e.TypeID, err)
	}
	return nil
}

// AddEntryToPatch copies the entry wherever it resolves into the active
// patch. The copy owns its buffers. A miss returns nil.
func (m *Manager) AddEntryToPatch(fileID, typeID uint64) (*toc.Entry, error) {
	if m.ActivePatch == nil {
		return nil, policy("add entry to patch", fileID, typeID, ErrNoActivePatch)
	}
	e, err := m.GetEntry(fileID, typeID, Lookup{})
	if err != nil || e == nil {
		return nil, err
	}
	dup := e.Clone()
	if err := m.ActivePatch.AddEntry(dup, false); err != nil {
		return nil, policy("add entry to patch", fileID, typeID, err)
	}
	return dup, nil
}

// AddEntryToPatchAs copies e into the active patch under destID,
// replacing any entry already there.
func (m *Manager) AddEntryToPatchAs(e *toc.Entry, destID uint64) (*toc.Entry, error) {
	if m.ActivePatch == nil {
		return nil, policy("add entry to patch", e.FileID, e.TypeID, ErrNoActivePatch)
	}
	if destID == 0 {
		return nil, policy("add entry to patch", e.FileID, e.TypeID, ErrMissingDestination)
	}
	dup := e.Clone()
	dup.FileID = destID
	if err := m.ActivePatch.AddEntry(dup, true); err != nil {
		return nil, policy("add entry to patch", e.FileID, e.TypeID, err)
	}
	return dup, nil
}

// RemoveEntryFromPatch drops (fileID, typeID) from the active patch.
func (m *Manager) RemoveEntryFromPatch(fileID, typeID uint64) bool {
	if m.ActivePatch == nil {
		return false
	}
	return m.ActivePatch.RemoveEntry(fileID, typeID)
}

// RenamePatchEntry moves an entry of the active patch to newID.
func (m *Manager) RenamePatchEntry(fileID, typeID, newID uint64) error {
	if m.ActivePatch == nil {
		return policy("rename entry", fileID, typeID, ErrNoActivePatch)
	}
	if newID == 0 {
		return policy("rename entry", fileID, typeID, ErrMissingDestination)
	}
	if err := m.ActivePatch.RenameEntry(fileID, typeID, newID); err != nil {
		return policy("rename entry", fileID, typeID, err)
	}
	return nil
}

// GetPatchEntry looks (fileID, typeID) up in the active patch only.
func (m *Manager) GetPatchEntry(fileID, typeID uint64) *toc.Entry {
	if m.ActivePatch == nil {
		return nil
	}
	return m.ActivePatch.GetEntry(fileID, typeID)
}

// IsInPatch reports whether e is the entry the active patch holds under
// its ids.
func (m *Manager) IsInPatch(e *toc.Entry) bool {
	return e != nil && m.GetPatchEntry(e.FileID, e.TypeID) == e
}

// DuplicateEntry copies an entry into the active patch under newID, as a
// created asset. An entry already at newID is an error.
func (m *Manager) DuplicateEntry(fileID, typeID, newID uint64) (*toc.Entry, error) {
	if m.ActivePatch == nil {
		return nil, policy("duplicate", fileID, typeID, ErrNoActivePatch)
	}
	if newID == 0 {
		return nil, policy("duplicate", fileID, typeID, ErrMissingDestination)
	}
	e, err := m.GetEntry(fileID, typeID, Lookup{})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, policy("duplicate", fileID, typeID, ErrNotFound)
	}
	out, err := m.copyPaste("duplicate", []*toc.Entry{e}, false, newID)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// copyPaste inserts created copies of entries into the active patch. newID
// wins over genID; with neither a copy keeps its source id. Every
// destination is checked before the first insert, so a refused request
// leaves the patch untouched.
func (m *Manager) copyPaste(op string, entries []*toc.Entry, genID bool, newID uint64) ([]*toc.Entry, error) {
	type key struct{ fileID, typeID uint64 }
	dups := make([]*toc.Entry, 0, len(entries))
	taken := make(map[key]bool, len(entries))
	for _, e := range entries {
		dup := e.Clone()
		dup.IsCreated = true
		switch {
		case newID != 0:
			dup.FileID = newID
		case genID:
			dup.FileID = NewFileID()
		}
		k := key{dup.FileID, dup.TypeID}
		if taken[k] || m.ActivePatch.HasEntry(dup.FileID, dup.TypeID) {
			return nil, policy(op, dup.FileID, dup.TypeID, toc.ErrDuplicateEntry)
		}
		taken[k] = true
		dups = append(dups, dup)
	}
	for _, dup := range dups {
		if err := m.ActivePatch.AddEntry(dup, false); err != nil {
			return nil, policy(op, dup.FileID, dup.TypeID, err)
		}
	}
	return dups, nil
}

// Copy replaces the clipboard with entries. Nil entries are skipped.
func (m *Manager) Copy(entries ...*toc.Entry) {
	clip := make([]*toc.Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			clip = append(clip, e)
		}
	}
	m.clipboard = clip
}

// Clipboard returns the copied entries.
func (m *Manager) Clipboard() []*toc.Entry { return m.clipboard }

func (m *Manager) ClearClipboard() { m.clipboard = nil }

// Paste inserts created copies of the clipboard into the active patch and
// clears it. genID gives every copy a random id; newID gives every copy
// that id, so two clipboard entries of one type cannot share it. On error
// nothing is inserted and the clipboard is kept.
func (m *Manager) Paste(genID bool, newID uint64) ([]*toc.Entry, error) {
	if m.ActivePatch == nil {
		return nil, policy("paste", 0, 0, ErrNoActivePatch)
	}
	out, err := m.copyPaste("paste", m.clipboard, genID, newID)
	if err != nil {
		return nil, err
	}
	m.clipboard = nil
	return out, nil
}
