package core

import "context"

// CachePartition groups cached reads that must be evicted together.
type CachePartition string

func StudentPartition(studentID string) CachePartition { return CachePartition("student:" + studentID) }
func QuizPartition(quizID string) CachePartition       { return CachePartition("quiz:" + quizID) }

// Cache is a read-through cache for query results, evicted per partition on every write.
//
// Entries are stored under the generation of their partition. Readers take the generation
// before loading and store under it, so a result loaded before a concurrent Invalidate
// lands in a dead generation and is never served.
type Cache interface {
	// Generation returns the current generation of the partition.
	Generation(ctx context.Context, partition CachePartition) (uint64, error)
	// Get decodes the entry stored under (partition, gen, key) into dest and reports whether it was found.
	Get(ctx context.Context, partition CachePartition, gen uint64, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, partition CachePartition, gen uint64, key string, value interface{}) error
	// Invalidate moves the given partitions to a new generation, dropping every entry stored so far.
	Invalidate(ctx context.Context, partitions ...CachePartition) error
}

type noopCache struct{}

var _ Cache = (*noopCache)(nil)

// NoopCache never stores anything.
func NoopCache() Cache { return noopCache{} }

func (noopCache) Generation(context.Context, CachePartition) (uint64, error) { return 0, nil }
func (noopCache) Get(context.Context, CachePartition, uint64, string, interface{}) (bool, error) {
	return false, nil
}
func (noopCache) Set(context.Context, CachePartition, uint64, string, interface{}) error { return nil }
func (noopCache) Invalidate(context.Context, ...CachePartition) error                    { return nil }
