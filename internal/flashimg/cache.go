package flashimg

import "sync"

// regionCache keeps recently touched regions in memory so repeated
// probe walks do not hit the file for every read.
type regionCache struct {
	maxRegions int
	items      map[int][]byte
	mu         sync.RWMutex
}

func newRegionCache(maxRegions int) *regionCache {
	return &regionCache{
		maxRegions: maxRegions,
		items:      make(map[int][]byte),
	}
}

func (c *regionCache) get(region int) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[region]
	return data, ok
}

func (c *regionCache) add(region int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: if full, drop any other region.
	if len(c.items) >= c.maxRegions {
		for r := range c.items {
			if r == region {
				continue
			}
			delete(c.items, r)
			break
		}
	}

	c.items[region] = data
}

func (c *regionCache) remove(region int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, region)
}
