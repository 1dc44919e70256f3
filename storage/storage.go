// Package storage implements the on-host file cache that backs tensor
// payloads moved to and from disk: a single process-wide LRU of size 1024
// mapping an opaque path-like key to a raw little-endian byte blob.
//
// The cache is the concrete implementation of the "process-wide file-manager
// cache for on-disk tensor payloads" collaborator the root package's
// out-of-scope section describes only as an interface; it is small and
// load-bearing enough for the storage data model in this repository to
// carry a real implementation rather than stop at an interface.
package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/tensor/internal/cache"
)

// DefaultCapacity is the file cache's soft size limit: 1024 entries, per
// the storage data model.
const DefaultCapacity = 1024

// FileCache is an LRU cache of raw tensor byte blobs keyed by a path-like
// string. A single mutex, inherited from the underlying cache.Cache, guards
// every operation; callers must not perform I/O suspensions while holding
// it (there are none — every method here is synchronous and in-memory).
type FileCache struct {
	entries *cache.Cache[string, []byte]
}

// NewFileCache builds a FileCache with the given soft capacity. Most
// callers should use the process-wide Default instead of constructing
// their own.
func NewFileCache(capacity int) *FileCache {
	return &FileCache{entries: cache.New[string, []byte](capacity)}
}

var (
	defaultOnce  sync.Once
	defaultCache *FileCache
)

// Default returns the lazily-initialized, process-wide FileCache of
// capacity DefaultCapacity, matching the spec's "single lazily-initialized
// cache guarded by a mutex".
func Default() *FileCache {
	defaultOnce.Do(func() {
		defaultCache = NewFileCache(DefaultCapacity)
	})
	return defaultCache
}

// Put stores bytes under a freshly generated, collision-avoiding key
// (a UUID-derived identifier, per the file cache key-space interface) and
// returns that key.
func (f *FileCache) Put(bytes []byte) string {
	key := uuid.New().String()
	f.CreateWithBytes(key, bytes)
	return key
}

// CreateWithBytes stores bytes under an explicit key, overwriting any
// existing entry.
func (f *FileCache) CreateWithBytes(key string, bytes []byte) {
	f.entries.Set(key, bytes)
}

// Read returns the bytes stored under key, or (nil, false) if absent or
// already evicted.
func (f *FileCache) Read(key string) ([]byte, bool) {
	return f.entries.Get(key)
}

// Evict removes key from the cache. It reports whether the key was
// present.
func (f *FileCache) Evict(key string) bool {
	return f.entries.Delete(key)
}

// Len returns the number of entries currently cached.
func (f *FileCache) Len() int {
	return f.entries.Len()
}
