package rowhash

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"weak"

	"reach/blackbox/internal/table"
)

// Cache memoizes RowHashes results per table identity, keyed further by
// the column list and group size used to compute them. Entries are
// indexed by a weak.Pointer to the table so a table that becomes
// unreachable elsewhere is evicted here too, instead of pinning it in
// memory for the lifetime of the recorder.
type Cache struct {
	mu      sync.Mutex
	entries map[weak.Pointer[table.NativeTable]]map[string][]uint64
}

// NewCache returns an empty row-hash cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[weak.Pointer[table.NativeTable]]map[string][]uint64)}
}

func cacheKey(cols []string, groupSize int) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(c)
		b.WriteByte('\x00')
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(groupSize))
	return b.String()
}

// Get returns a cached row-hash series for t/cols/groupSize, and whether
// it was found. A cache hit always has the exact row count of t; on any
// mismatch the caller should treat it as a miss and recompute.
func (c *Cache) Get(t *table.NativeTable, cols []string, groupSize int) ([]uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr := weak.Make(t)
	byKey, ok := c.entries[ptr]
	if !ok {
		return nil, false
	}
	hashes, ok := byKey[cacheKey(cols, groupSize)]
	if !ok || len(hashes) != t.NumRows() {
		return nil, false
	}
	out := make([]uint64, len(hashes))
	copy(out, hashes)
	return out, true
}

// Put stores hashes for t/cols/groupSize and registers a cleanup that
// drops the entry once t is collected.
func (c *Cache) Put(t *table.NativeTable, cols []string, groupSize int, hashes []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr := weak.Make(t)
	byKey, ok := c.entries[ptr]
	if !ok {
		byKey = make(map[string][]uint64)
		c.entries[ptr] = byKey
		runtime.AddCleanup(t, c.evict, ptr)
	}
	stored := make([]uint64, len(hashes))
	copy(stored, hashes)
	byKey[cacheKey(cols, groupSize)] = stored
}

func (c *Cache) evict(ptr weak.Pointer[table.NativeTable]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ptr)
}

// RowHashesCached is RowHashes with cache-or-compute semantics.
func RowHashesCached(cache *Cache, t *table.NativeTable, cols []string, plan ParallelPlan) []uint64 {
	if cache == nil {
		return RowHashes(t, cols, plan)
	}
	if hashes, ok := cache.Get(t, cols, plan.GroupSize); ok {
		return hashes
	}
	hashes := RowHashes(t, cols, plan)
	cache.Put(t, cols, plan.GroupSize, hashes)
	return hashes
}
