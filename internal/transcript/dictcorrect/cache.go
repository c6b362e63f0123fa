package dictcorrect

import "sync"

// Entry is a memoised correction.
type Entry struct {
	// Word is the corrected form (or the raw word when no confident match
	// was found).
	Word string

	// Score is the similarity between Word and the lowercased raw word, as
	// computed when the entry was created.
	Score int
}

// Cache memoises corrections keyed by the raw word exactly as it appeared in
// the fragment. Entries are never evicted.
type Cache interface {
	Get(raw string) (Entry, bool)
	Put(raw string, e Entry)
	Len() int
}

// MapCache is a plain map. It is not safe for concurrent use and relies on
// the caller submitting at most one fragment at a time.
type MapCache struct {
	m map[string]Entry
}

// NewMapCache returns an empty [MapCache].
func NewMapCache() *MapCache {
	return &MapCache{m: make(map[string]Entry)}
}

// Get implements [Cache].
func (c *MapCache) Get(raw string) (Entry, bool) {
	e, ok := c.m[raw]
	return e, ok
}

// Put implements [Cache].
func (c *MapCache) Put(raw string, e Entry) {
	c.m[raw] = e
}

// Len implements [Cache].
func (c *MapCache) Len() int {
	return len(c.m)
}

// SyncCache is a read-mostly [Cache] that is safe for concurrent use.
type SyncCache struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// NewSyncCache returns an empty [SyncCache].
func NewSyncCache() *SyncCache {
	return &SyncCache{m: make(map[string]Entry)}
}

// Get implements [Cache].
func (c *SyncCache) Get(raw string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[raw]
	return e, ok
}

// Put implements [Cache]. An existing entry is kept so that concurrent
// writers for the same raw word cannot flip a cached result.
func (c *SyncCache) Put(raw string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[raw]; ok {
		return
	}
	c.m[raw] = e
}

// Len implements [Cache].
func (c *SyncCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
