package watch

import (
	"sync"
	"time"
)

type dedupKey struct {
	path string
	kind changeKind
}

// DedupCache suppresses a change whose (path, kind) was already seen within the TTL.
// It is shared by every batch of one watcher and is safe for concurrent use.
type DedupCache struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

func NewDedupCache(ttl time.Duration) *DedupCache {
	return newDedupCacheWithClock(ttl, time.Now)
}

func newDedupCacheWithClock(ttl time.Duration, now func() time.Time) *DedupCache {
	return &DedupCache{ttl: ttl, now: now, seen: make(map[dedupKey]time.Time)}
}

// Admit records c and reports whether it should be processed.
func (d *DedupCache) Admit(c Change) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{path: c.ChangedPath(), kind: c.kind()}
	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return false
	}
	d.seen[key] = now
	return true
}

// Forget drops the entry for c so that the next identical change is admitted.
// Routing a removal forgets the matching creation and the other way around.
func (d *DedupCache) Forget(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, dedupKey{path: c.ChangedPath(), kind: c.kind()})
}

// Evict drops every entry older than the TTL. The watcher calls it once per batch.
func (d *DedupCache) Evict() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, last := range d.seen {
		if now.Sub(last) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
