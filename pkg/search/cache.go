package search

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/EchoTools/stingrayTools/pkg/frame"
	"github.com/EchoTools/stingrayTools/pkg/stream"
)

var indexBucketName = []byte("indexes") // <archive path>=<frame(record)>

// BoltCache persists indexes across runs, keyed by archive path. A cached
// record is reused only while the archive's size and modification time
// match.
type BoltCache struct {
	db    *bolt.DB
	codec frame.Codec
}

// OpenBoltCache opens or creates the cache database at path.
func OpenBoltCache(path string, codec frame.Codec) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open index cache")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize index cache")
	}
	return &BoltCache{db: db, codec: codec}, nil
}

// Close closes the database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

type stamp struct {
	size  int64
	mtime int64
}

func stampOf(fi os.FileInfo) stamp {
	return stamp{size: fi.Size(), mtime: fi.ModTime().UnixNano()}
}

// Get returns the cached index of path when it is still fresh for fi.
func (c *BoltCache) Get(path string, fi os.FileInfo) (*Index, bool) {
	var value []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(indexBucketName).Get([]byte(path)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if value == nil {
		return nil, false
	}
	raw, err := frame.Decode(value)
	if err != nil {
		return nil, false
	}
	x, st, err := decodeRecord(path, raw)
	if err != nil || st != stampOf(fi) {
		return nil, false
	}
	return x, true
}

// Put stores the index of path stamped with fi.
func (c *BoltCache) Put(path string, fi os.FileInfo, x *Index) error {
	value, err := frame.Bytes(encodeRecord(x, stampOf(fi)), frame.WithCodec(c.codec))
	if err != nil {
		return errors.Wrapf(err, "encode index of %s", path)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(indexBucketName).Put([]byte(path), value); err != nil {
			return errors.Wrapf(err, "failed to insert index with key %q", path)
		}
		return nil
	})
}

// Len returns the number of cached records.
func (c *BoltCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(indexBucketName).Stats().KeyN
		return nil
	})
	return n
}

// Record layout: i64 size, i64 mtime, u32 count, count x (u64 file, u64 type).
func serializeRecord(cur *stream.Cursor, x *Index, st *stamp) {
	st.size = int64(cur.Uint64(uint64(st.size)))
	st.mtime = int64(cur.Uint64(uint64(st.mtime)))
	n := cur.Uint32(uint32(len(x.FileIDs)))
	for i := 0; i < int(n); i++ {
		var fileID, typeID uint64
		if cur.IsWriting() {
			fileID, typeID = x.FileIDs[i], x.typeIDs[i]
		}
		fileID = cur.Uint64(fileID)
		typeID = cur.Uint64(typeID)
		if cur.IsReading() {
			if cur.Err() != nil {
				return
			}
			x.add(fileID, typeID)
		}
	}
}

func encodeRecord(x *Index, st stamp) []byte {
	cur := stream.NewWriter()
	serializeRecord(cur, x, &st)
	return cur.Data()
}

func decodeRecord(path string, data []byte) (*Index, stamp, error) {
	x := newIndex(path)
	var st stamp
	cur := stream.NewReader(data)
	serializeRecord(cur, x, &st)
	return x, st, cur.Err()
}
