package tokens

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheCapacity bounds the tokenizer cache. A handful of encodings
// covers every model family in practice, and each constructed tokenizer
// holds a full BPE rank table in memory.
const DefaultCacheCapacity = 4

// MetricsRecorder defines the interface for recording tokenizer cache
// events. This decouples the cache from the concrete instrumentation
// implementation.
type MetricsRecorder interface {
	// RecordCacheHit records a tokenizer cache hit.
	RecordCacheHit(encoding string)

	// RecordCacheMiss records a tokenizer cache miss.
	RecordCacheMiss(encoding string)

	// RecordCacheEviction records the eviction of a cached tokenizer.
	RecordCacheEviction(encoding string)
}

// noopMetricsRecorder is a no-op implementation of MetricsRecorder.
type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordCacheHit(string)      {}
func (noopMetricsRecorder) RecordCacheMiss(string)     {}
func (noopMetricsRecorder) RecordCacheEviction(string) {}

// cachedTokenizer pairs a constructed tokenizer with its LRU bookkeeping.
type cachedTokenizer struct {
	tokenizer Tokenizer
	encoding  string

	// lastUsed holds a monotonically increasing access stamp. Atomic so
	// hits under the read lock stay lock-free.
	lastUsed atomic.Int64
}

// encodingCache is a bounded LRU cache of constructed tokenizers keyed by
// encoding name.
type encodingCache struct {
	mu       sync.RWMutex
	entries  map[string]*cachedTokenizer
	capacity int

	// clock is an access sequence, not wall time: eviction order must stay
	// stable even when consecutive accesses land in the same nanosecond.
	clock atomic.Int64

	// group collapses concurrent construction of the same encoding.
	group singleflight.Group

	metrics MetricsRecorder
}

func newEncodingCache(capacity int, metrics MetricsRecorder) *encodingCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if metrics == nil {
		metrics = noopMetricsRecorder{}
	}
	return &encodingCache{
		entries:  make(map[string]*cachedTokenizer),
		capacity: capacity,
		metrics:  metrics,
	}
}

// get returns the cached tokenizer for encoding, refreshing its LRU stamp.
func (c *encodingCache) get(encoding string) (Tokenizer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[encoding]
	if !ok {
		c.metrics.RecordCacheMiss(encoding)
		return nil, false
	}

	entry.lastUsed.Store(c.clock.Add(1))
	c.metrics.RecordCacheHit(encoding)
	return entry.tokenizer, true
}

// getOrBuild returns the cached tokenizer for encoding, constructing and
// storing it on a miss. Concurrent calls for the same encoding construct
// at most once.
func (c *encodingCache) getOrBuild(encoding string, build builderFunc) (Tokenizer, error) {
	if tk, ok := c.get(encoding); ok {
		return tk, nil
	}

	result, err, _ := c.group.Do(encoding, func() (any, error) {
		// Double-check inside singleflight: a concurrent call may have
		// stored the tokenizer while this one waited.
		if tk, ok := c.get(encoding); ok {
			return tk, nil
		}

		tk, err := build(encoding)
		if err != nil {
			return nil, err
		}

		c.store(encoding, tk)
		return tk, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(Tokenizer), nil
}

// store inserts a constructed tokenizer, evicting the least recently used
// entry when at capacity.
func (c *encodingCache) store(encoding string, tk Tokenizer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[encoding]; !ok && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	entry := &cachedTokenizer{
		tokenizer: tk,
		encoding:  encoding,
	}
	entry.lastUsed.Store(c.clock.Add(1))
	c.entries[encoding] = entry
}

// evictOldestLocked removes the entry with the smallest access stamp.
// Must be called with c.mu held for writing.
func (c *encodingCache) evictOldestLocked() {
	var oldestKey string
	var oldestStamp int64

	for key, entry := range c.entries {
		stamp := entry.lastUsed.Load()
		if oldestKey == "" || stamp < oldestStamp {
			oldestKey = key
			oldestStamp = stamp
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.metrics.RecordCacheEviction(oldestKey)
	}
}

// CacheStats describes the tokenizer cache for monitoring.
type CacheStats struct {
	// Size is the current number of constructed tokenizers.
	Size int

	// Capacity is the maximum number of tokenizers kept.
	Capacity int
}

func (c *encodingCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Size:     len(c.entries),
		Capacity: c.capacity,
	}
}
