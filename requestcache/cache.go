package requestcache

import (
	"sync"

	"miner-api/logging"
	"miner-api/types"
)

// Cache is a block-height indexed deduplication cache. It maps a request
// fingerprint to the block height at which it was first seen, and forgets
// entries once they are older than the configured block span.
//
// All access happens under a single mutex: the lookup, the insert and the
// sweep for one CheckAndRecord call form one critical section, so two
// concurrent requests with the same fingerprint can never both be admitted
// as first-seen.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]int64
	blockSpan  int64
	maxEntries int
}

// New creates a cache that remembers fingerprints for blockSpan blocks.
// maxEntries is a hard capacity ceiling guarding against a stalled block
// height source; 0 means unbounded.
func New(blockSpan int64, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]int64),
		blockSpan:  blockSpan,
		maxEntries: maxEntries,
	}
}

// CheckAndRecord reports whether fingerprint has already been seen within the
// block span. The height supplier is invoked under the cache mutex, so the
// expiry sweep, the lookup and the insert all see one block height. A
// first-seen fingerprint is recorded at that height and false is returned;
// a fingerprint whose previous sighting aged out is admitted again.
func (c *Cache) CheckAndRecord(fingerprint string, height func() int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBlock := height()
	c.expire(currentBlock)

	_, duplicate := c.entries[fingerprint]
	if !duplicate {
		c.entries[fingerprint] = currentBlock
		c.enforceCapacity(currentBlock)
	}

	return duplicate
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// BlockSpan returns the configured retention span in blocks.
func (c *Cache) BlockSpan() int64 {
	return c.blockSpan
}

// expire removes entries whose recorded block plus the span is behind
// currentBlock. Caller must hold c.mu.
func (c *Cache) expire(currentBlock int64) {
	for key, block := range c.entries {
		if block+c.blockSpan < currentBlock {
			delete(c.entries, key)
		}
	}
}

// enforceCapacity evicts oldest-block entries until the cache fits under the
// hard ceiling. This only triggers when the chain height source stalls and
// the span expiry stops making progress. Caller must hold c.mu.
func (c *Cache) enforceCapacity(currentBlock int64) {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	evicted := 0
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		oldestBlock := int64(0)
		for key, block := range c.entries {
			if oldestKey == "" || block < oldestBlock {
				oldestKey = key
				oldestBlock = block
			}
		}
		delete(c.entries, oldestKey)
		evicted++
	}
	logging.Warn("Request cache over capacity, evicted oldest entries", types.Admission,
		"evicted", evicted, "maxEntries", c.maxEntries, "currentBlock", currentBlock)
}
