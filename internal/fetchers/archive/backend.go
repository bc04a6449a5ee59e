package archive

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// Backend stores encoded index entries keyed by story id. Puts happen
// only during the single-threaded load phase; after that the backend is
// read-only until closed.
type Backend interface {
	Put(key int, blob []byte) error
	Get(key int) ([]byte, error)
	Keys() ([]int, error)
	Len() (int, error)
	Flush() error
	Close() error
}

// MemoryBackend keeps all entries in memory in their compact encoded
// form, decoding on lookup.
type MemoryBackend struct {
	entries map[int][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[int][]byte)}
}

func (b *MemoryBackend) Put(key int, blob []byte) error {
	b.entries[key] = blob
	return nil
}

func (b *MemoryBackend) Get(key int) ([]byte, error) {
	return b.entries[key], nil
}

func (b *MemoryBackend) Keys() ([]int, error) {
	keys := make([]int, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys, nil
}

func (b *MemoryBackend) Len() (int, error) {
	return len(b.entries), nil
}

func (b *MemoryBackend) Flush() error {
	return nil
}

func (b *MemoryBackend) Close() error {
	b.entries = nil
	return nil
}

// boltBatchSize is the number of puts gathered into one write
// transaction during index loading.
const boltBatchSize = 1024

var boltBucket = []byte("index")

// BoltBackend spills entries into a single-file bbolt store, keeping
// memory flat regardless of archive size.
type BoltBackend struct {
	db        *bolt.DB
	path      string
	temporary bool

	batchKeys  []int
	batchBlobs [][]byte
}

// NewBoltBackend opens a bbolt store at path. An empty path creates a
// temporary file that is removed on close.
func NewBoltBackend(path string) (*BoltBackend, error) {
	temporary := false
	if path == "" {
		f, err := os.CreateTemp("", "archive-index-*.db")
		if err != nil {
			return nil, fmt.Errorf("create index store: %w", err)
		}
		path = f.Name()
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close index store: %w", err)
		}
		temporary = true
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open index store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index bucket: %w", err)
	}

	return &BoltBackend{db: db, path: path, temporary: temporary}, nil
}

func boltKey(key int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(key))
	return buf[:]
}

func (b *BoltBackend) Put(key int, blob []byte) error {
	b.batchKeys = append(b.batchKeys, key)
	b.batchBlobs = append(b.batchBlobs, blob)

	if len(b.batchKeys) >= boltBatchSize {
		return b.Flush()
	}
	return nil
}

// Flush writes any batched entries in one transaction.
func (b *BoltBackend) Flush() error {
	if len(b.batchKeys) == 0 {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for i, key := range b.batchKeys {
			if err := bucket.Put(boltKey(key), b.batchBlobs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flush index batch: %w", err)
	}

	b.batchKeys = b.batchKeys[:0]
	b.batchBlobs = b.batchBlobs[:0]
	return nil
}

func (b *BoltBackend) Get(key int) ([]byte, error) {
	var blob []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(boltBucket).Get(boltKey(key))
		if value != nil {
			blob = make([]byte, len(value))
			copy(blob, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read index entry %d: %w", key, err)
	}
	return blob, nil
}

func (b *BoltBackend) Keys() ([]int, error) {
	var keys []int
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, int(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list index keys: %w", err)
	}
	return keys, nil
}

func (b *BoltBackend) Len() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(boltBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return n, nil
}

func (b *BoltBackend) Close() error {
	err := b.db.Close()
	if b.temporary {
		if rmErr := os.Remove(b.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
