package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// Options configures Build.
type Options struct {
	// Workers bounds the number of concurrent probes. Zero means NumCPU.
	Workers int
	// Cache, when set, is consulted before probing and filled afterwards.
	Cache *BoltCache
	Log   *logrus.Entry
}

// Discover lists candidate archives under dir. When dir holds a bundle
// database its names are used; otherwise every extensionless regular file
// below dir is a candidate.
func Discover(dir string) ([]string, error) {
	if data, err := os.ReadFile(filepath.Join(dir, BundleDatabaseName)); err == nil {
		names, err := ParseBundleDatabase(data)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(names))
		for i, name := range names {
			paths[i] = filepath.Join(dir, name)
		}
		return paths, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(d.Name()) == "" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}
	return paths, nil
}

// Build probes every path in parallel and returns the indexes of the files
// that parse as stream TOCs, in the order of paths. Files that are not
// containers or cannot be read are skipped. Cancelling ctx stops scheduling
// new probes; probes already running are allowed to finish.
func Build(ctx context.Context, paths []string, opts Options) ([]*Index, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Index, len(paths))
	var cached, probed int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			x, hit := probe(path, opts.Cache, log)
			if hit {
				atomic.AddInt64(&cached, 1)
			} else {
				atomic.AddInt64(&probed, 1)
			}
			results[i] = x
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "build search index")
	}

	out := make([]*Index, 0, len(results))
	for _, x := range results {
		if x != nil {
			out = append(out, x)
		}
	}
	log.WithFields(logrus.Fields{
		"candidates": len(paths),
		"archives":   len(out),
		"cached":     cached,
		"probed":     probed,
	}).Debug("search index built")
	return out, nil
}

func probe(path string, cache *BoltCache, log *logrus.Entry) (*Index, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		log.WithField("archive", path).WithError(err).Debug("skip candidate")
		return nil, false
	}
	if cache != nil {
		if x, ok := cache.Get(path, fi); ok {
			return x, true
		}
	}

	x, err := FromFile(path)
	switch {
	case errors.Is(err, toc.ErrNotStreamToc):
		log.WithField("archive", path).Debug("not a stream toc")
		return nil, false
	case err != nil:
		log.WithField("archive", path).WithError(err).Warn("skip unreadable archive")
		return nil, false
	}

	if cache != nil {
		if err := cache.Put(path, fi, x); err != nil {
			log.WithField("archive", path).WithError(err).Warn("cache index")
		}
	}
	return x, false
}

// Set is a built collection of indexes.
type Set struct {
	indexes []*Index
}

func NewSet(indexes []*Index) *Set {
	return &Set{indexes: indexes}
}

// Find returns the first index listing (fileID, typeID), or nil.
func (s *Set) Find(fileID, typeID uint64) *Index {
	if s == nil {
		return nil
	}
	for _, x := range s.indexes {
		if x.HasEntry(fileID, typeID) {
			return x
		}
	}
	return nil
}

// Add appends x to the set. A nil set is not usable.
func (s *Set) Add(x *Index) {
	s.indexes = append(s.indexes, x)
}

// Indexes returns the indexes in build order.
func (s *Set) Indexes() []*Index {
	if s == nil {
		return nil
	}
	return s.indexes
}

// Len returns the number of indexed archives.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.indexes)
}
