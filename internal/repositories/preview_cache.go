package repositories

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
)

var previewPrefix = []byte("preview:")

// PreviewCache keeps downloaded preview clips in a badger store keyed by the xxhash of their URL.
//
// Re-running the signature pipeline for tracks that failed after download then skips the network.
type PreviewCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenPreviewCache opens (or creates) the cache directory at path. inMemory ignores path.
func OpenPreviewCache(path string, inMemory bool, ttl time.Duration) (*PreviewCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open preview cache: %w", err)
	}
	return &PreviewCache{db: db, ttl: ttl}, nil
}

func previewKey(url string) []byte {
	key := make([]byte, len(previewPrefix)+8)
	copy(key, previewPrefix)
	binary.BigEndian.PutUint64(key[len(previewPrefix):], xxhash.Checksum64([]byte(url)))
	return key
}

// Get returns the cached bytes for url and whether they were present.
func (c *PreviewCache) Get(url string) ([]byte, bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(previewKey(url))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached preview: %w", err)
	}
	return data, true, nil
}

// Put stores data for url, expiring after the cache TTL when one is set.
func (c *PreviewCache) Put(url string, data []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(previewKey(url), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to cache preview: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying store.
func (c *PreviewCache) Close() error {
	return c.db.Close()
}
