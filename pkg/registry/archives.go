package registry

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// BaseArchiveID is the archive that patches created from scratch target.
const BaseArchiveID = "9ba626afa44a3aa3"

// ArchiveNames maps archive file names (hex ids) to display names loaded
// from a JSON document of the form {"<title>": {"<archive id>": "<name>"}}.
type ArchiveNames struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewArchiveNames() *ArchiveNames {
	a := &ArchiveNames{names: make(map[string]string)}
	a.names[BaseArchiveID] = "SDK: Base Patch Archive"
	return a
}

// Load merges the document at path. Names are rendered as "<title>: <name>".
func (a *ArchiveNames) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read archive names")
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "parse archive names")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for title, entries := range doc {
		for id, name := range entries {
			a.names[id] = title + ": " + name
		}
	}
	return nil
}

// Name returns the display name of an archive id, or "".
func (a *ArchiveNames) Name(id string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.names[id]
}

// ID returns the archive id carrying a display name.
func (a *ArchiveNames) ID(name string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, n := range a.names {
		if n == name {
			return id, true
		}
	}
	return "", false
}

// Set records the display name of an archive id.
func (a *ArchiveNames) Set(id, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names[id] = name
}
