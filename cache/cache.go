package cache

import (
	"github.com/loambase/loam/doc"
	"github.com/spaolacci/murmur3"
)

/*
Package cache is a sharded LRU over document rows, keyed by (collection,
key). Reads on the hot path hit the cache; local writes store the new row
and merged batches invalidate the touched keys. Sharding by key hash keeps lock contention off
the merge path when a large batch invalidates many keys at once.
*/

////////////////////////////////////////////////////////////////////////////////

// DocCache caches document rows for read-through access.
type DocCache struct {
	shards []*lru
}

// NewDocCache returns a cache with the given total capacity spread over
// shardCount shards.
func NewDocCache(capacity int64, shardCount int) *DocCache {
	if shardCount < 1 {
		shardCount = 1
	}
	perShard := capacity / int64(shardCount)
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]*lru, shardCount)
	for i := range shards {
		shards[i] = newLRU(perShard)
	}
	return &DocCache{shards: shards}
}

func (c *DocCache) shard(collection, key string) *lru {
	h := murmur3.New32()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the cached row for (collection, key) if present.
func (c *DocCache) Get(collection, key string) (doc.Document, bool) {
	return c.shard(collection, key).get(cacheKey{collection, key})
}

// Put caches a document row.
func (c *DocCache) Put(d doc.Document) {
	c.shard(d.Collection, d.Key).put(cacheKey{d.Collection, d.Key}, d)
}

// Invalidate drops any cached row for (collection, key).
func (c *DocCache) Invalidate(collection, key string) {
	c.shard(collection, key).delete(cacheKey{collection, key})
}

// Reset clears the cache.
func (c *DocCache) Reset() {
	for _, shard := range c.shards {
		shard.reset()
	}
}
