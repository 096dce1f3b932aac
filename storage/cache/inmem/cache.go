package inmemcache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
)

type partitionEntries struct {
	gen     uint64
	entries map[string][]byte
}

// Cache keeps JSON-encoded entries in memory, grouped by partition.
// Only the entries of a partition's current generation are kept; writes for an older one are dropped.
type Cache struct {
	mu         sync.RWMutex
	partitions map[core.CachePartition]*partitionEntries
}

var _ core.Cache = (*Cache)(nil)

func New() *Cache {
	return &Cache{partitions: make(map[core.CachePartition]*partitionEntries)}
}

func (c *Cache) Generation(_ context.Context, p core.CachePartition) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if part, ok := c.partitions[p]; ok {
		return part.gen, nil
	}
	return 0, nil
}

func (c *Cache) Get(_ context.Context, p core.CachePartition, gen uint64, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	var data []byte
	if part, ok := c.partitions[p]; ok && part.gen == gen {
		data = part.entries[key]
	}
	c.mu.RUnlock()
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "decoding cache entry")
	}
	return true, nil
}

func (c *Cache) Set(_ context.Context, p core.CachePartition, gen uint64, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	part := c.partition(p)
	if part.gen != gen {
		return nil // loaded before an invalidation
	}
	part.entries[key] = data
	return nil
}

func (c *Cache) Invalidate(_ context.Context, partitions ...core.CachePartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range partitions {
		part := c.partition(p)
		part.gen++
		part.entries = make(map[string][]byte)
	}
	return nil
}

// partition must be called with the write lock held.
func (c *Cache) partition(p core.CachePartition) *partitionEntries {
	part, ok := c.partitions[p]
	if !ok {
		part = &partitionEntries{entries: make(map[string][]byte)}
		c.partitions[p] = part
	}
	return part
}

// Len returns the number of entries stored in the current generation of the partition.
func (c *Cache) Len(p core.CachePartition) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if part, ok := c.partitions[p]; ok {
		return len(part.entries)
	}
	return 0
}
