package capabilities

import "sync"

// Cache memoizes Normalize by (model, firmware), recomputing only when the
// raw input's fingerprint changes — avoids re-normalizing on every mapping
// cache rebuild when many devices share a model/firmware pair.
type Cache struct {
	mu      sync.Mutex
	entries map[[2]string]cacheEntry
}

type cacheEntry struct {
	fingerprint string
	value       NormalizedCapabilities
}

// NewCache returns an empty capability cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[[2]string]cacheEntry)}
}

// Normalize returns the cached normalization for (model, raw's firmware key)
// if the raw fingerprint is unchanged, otherwise recomputes and stores it.
func (c *Cache) Normalize(model string, raw map[string]any) NormalizedCapabilities {
	key := [2]string{model, extractFirmware(raw)}
	fp := fingerprint(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok && entry.fingerprint == fp {
		return entry.value
	}
	normalized := Normalize(model, raw)
	c.entries[key] = cacheEntry{fingerprint: fp, value: normalized}
	return normalized
}
