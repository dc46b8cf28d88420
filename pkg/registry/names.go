package registry

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// NameTable is an id -> name lookup loaded from a line-oriented hash list
// of "<id> <name>" lines. Base selects how ids are written: 16 for hex, 10
// for decimal, 0 to try hex first and fall back to decimal.
type NameTable struct {
	mu    sync.RWMutex
	base  int
	path  string
	names map[uint64]string
	order []uint64
}

// NewNameTable returns an empty table whose ids are written in base.
func NewNameTable(base int) *NameTable {
	return &NameTable{base: base, names: make(map[uint64]string)}
}

// ParseID parses an id in base, with base 0 trying hex before decimal.
func ParseID(s string, base int) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if base != 0 {
		return strconv.ParseUint(s, base, 64)
	}
	if u, err := strconv.ParseUint(s, 16, 64); err == nil {
		return u, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// Load reads path into the table. The first occurrence of an id wins.
// Malformed lines are skipped.
func (t *NameTable) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open hash list")
	}
	defer f.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		idStr, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		id, err := ParseID(idStr, t.base)
		if err != nil {
			continue
		}
		if _, seen := t.names[id]; seen {
			continue
		}
		t.names[id] = name
		t.order = append(t.order, id)
	}
	return errors.Wrap(sc.Err(), "read hash list")
}

// Name returns the name for id, or "" if unknown.
func (t *NameTable) Name(id uint64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.names[id]
}

// Has reports whether id has a name.
func (t *NameTable) Has(id uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.names[id]
	return ok
}

// Lookup returns the id of name.
func (t *NameTable) Lookup(name string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.order {
		if t.names[id] == name {
			return id, true
		}
	}
	return 0, false
}

// Set adds or overwrites a name.
func (t *NameTable) Set(id uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.names[id]; !ok {
		t.order = append(t.order, id)
	}
	t.names[id] = name
}

// Path returns the file the table was loaded from.
func (t *NameTable) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

// Len returns the number of names.
func (t *NameTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// IDs returns the ids in ascending order.
func (t *NameTable) IDs() []uint64 {
	t.mu.RLock()
	ids := append([]uint64(nil), t.order...)
	t.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Save writes the non-empty names to path, or to the path the table was
// loaded from when path is empty.
func (t *NameTable) Save(path string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if path == "" {
		path = t.path
	}
	if path == "" {
		return errors.New("save hash list: no path")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create hash list")
	}
	w := bufio.NewWriter(f)
	for _, id := range t.order {
		name := t.names[id]
		if name == "" {
			continue
		}
		if t.base == 16 {
			fmt.Fprintf(w, "%x %s\n", id, name)
		} else {
			fmt.Fprintf(w, "%d %s\n", id, name)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "write hash list")
	}
	return errors.Wrap(f.Close(), "close hash list")
}
