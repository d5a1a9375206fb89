package searchers

import (
	"encoding/gob"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"os"
	"sync"
	"sync/atomic"
)

type bound uint8

const (
	boundExact bound = iota
	boundLower
	boundUpper
)

type cacheKey struct {
	State BoardState
	Mover Side
	Depth int8
}

type cacheEntry struct {
	Score int32
	Bound bound
}

// DefaultCacheMaxEntries is used by NewCache when no limit is given.
const DefaultCacheMaxEntries = 1 << 22

// Cache memoizes alpha-beta search results, keyed by board state, side to move and remaining
// depth. It is safe for concurrent use, so many self-play workers can share it.
//
// When it reaches its maximum number of entries, it is cleared.
type Cache struct {
	mu         sync.RWMutex
	entries    map[cacheKey]cacheEntry
	maxEntries int

	hits, misses atomic.Int64
}

// NewCache creates an empty cache. If maxEntries <= 0, DefaultCacheMaxEntries is used.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{entries: make(map[cacheKey]cacheEntry), maxEntries: maxEntries}
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) get(key cacheKey) (cacheEntry, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return entry, found
}

func (c *Cache) put(key cacheKey, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		klog.V(1).Infof("alpha-beta cache reached %d entries, clearing it", len(c.entries))
		clear(c.entries)
	}
	c.entries[key] = entry
}

// cacheRecord is the persisted form of one entry.
type cacheRecord struct {
	Key   cacheKey
	Entry cacheEntry
}

type cacheSnapshot struct {
	Records []cacheRecord
}

// SaveFile writes the cache contents to the given file, using a temporary file renamed at the end.
func (c *Cache) SaveFile(path string) error {
	c.mu.RLock()
	snapshot := cacheSnapshot{Records: make([]cacheRecord, 0, len(c.entries))}
	for key, entry := range c.entries {
		snapshot.Records = append(snapshot.Records, cacheRecord{Key: key, Entry: entry})
	}
	c.mu.RUnlock()

	tmpPath := path + "~tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create cache file %q", tmpPath)
	}
	err = gob.NewEncoder(f).Encode(&snapshot)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write cache file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "failed renaming %q to %q", tmpPath, path)
	}
	klog.V(1).Infof("alpha-beta cache: saved %d entries to %s", len(snapshot.Records), path)
	return nil
}

// LoadFile merges into the cache the entries saved with SaveFile. A missing file is not an error.
func (c *Cache) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			klog.V(1).Infof("alpha-beta cache: no cache file %s, starting empty", path)
			return nil
		}
		return errors.Wrapf(err, "failed to open cache file %q", path)
	}
	defer func() { _ = f.Close() }()
	var snapshot cacheSnapshot
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return errors.Wrapf(err, "failed to decode cache file %q", path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range snapshot.Records {
		if len(c.entries) >= c.maxEntries {
			break
		}
		c.entries[record.Key] = record.Entry
	}
	klog.V(1).Infof("alpha-beta cache: restored %d entries from %s", len(snapshot.Records), path)
	return nil
}
