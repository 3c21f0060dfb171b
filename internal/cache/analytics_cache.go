package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// tombstones outlive entries so a view computed just before a delete cannot be stored after it
const tombstoneTTLFactor = 6

// AnalyticsCache memoizes per-race analytics responses in process memory
type AnalyticsCache struct {
	mu      sync.Mutex
	store   *gocache.Cache
	deleted *gocache.Cache // race id -> tombstone
}

// NewAnalyticsCache creates a cache whose entries expire after ttl
func NewAnalyticsCache(ttl time.Duration) *AnalyticsCache {
	return &AnalyticsCache{
		store:   gocache.New(ttl, 2*ttl),
		deleted: gocache.New(tombstoneTTLFactor*ttl, 2*ttl),
	}
}

// AnalyticsKey identifies one computed view of a race
func AnalyticsKey(raceID, kind string, window int, smoothed bool) string {
	return fmt.Sprintf("%s|%s|%d|%t", raceID, kind, window, smoothed)
}

func (c *AnalyticsCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Set stores a value unless its race has been invalidated
func (c *AnalyticsCache) Set(key string, value interface{}) {
	raceID, _, _ := strings.Cut(key, "|")

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, gone := c.deleted.Get(raceID); gone {
		return
	}
	c.store.SetDefault(key, value)
}

// InvalidateRace drops every entry of a deleted race and refuses later writes for it
func (c *AnalyticsCache) InvalidateRace(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted.SetDefault(raceID, struct{}{})

	prefix := raceID + "|"
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Len returns the number of live entries
func (c *AnalyticsCache) Len() int {
	return c.store.ItemCount()
}
