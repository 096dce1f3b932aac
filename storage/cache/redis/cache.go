package rediscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/edusmart/assessment/core"
)

const (
	keyPrefix  = "assessment:"
	defaultTTL = 10 * time.Minute
)

// Cache stores JSON-encoded entries under `assessment:<partition>:<gen>:<key>`, where gen is the counter
// kept at `assessment:gen:<partition>`. Invalidating a partition increments its counter; entries of older
// generations are left to expire.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.Cache = (*Cache)(nil)

// New returns a cache whose entries live for ttl, or 10 minutes when ttl is not positive.
func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// NewClient connects to the redis server described by conf and pings it.
func NewClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func generationKey(partition core.CachePartition) string {
	return keyPrefix + "gen:" + string(partition)
}

func entryKey(partition core.CachePartition, gen uint64, key string) string {
	return keyPrefix + string(partition) + ":" + strconv.FormatUint(gen, 10) + ":" + key
}

func (c *Cache) Generation(ctx context.Context, partition core.CachePartition) (uint64, error) {
	gen, err := c.client.Get(ctx, generationKey(partition)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, errors.Wrap(err, "reading redis generation")
}

func (c *Cache) Get(ctx context.Context, partition core.CachePartition, gen uint64, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, entryKey(partition, gen, key)).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "reading redis entry")
	}
	if err = json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "decoding redis entry")
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, partition core.CachePartition, gen uint64, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding redis entry")
	}
	return errors.Wrap(c.client.Set(ctx, entryKey(partition, gen, key), data, c.ttl).Err(), "writing redis entry")
}

func (c *Cache) Invalidate(ctx context.Context, partitions ...core.CachePartition) error {
	if len(partitions) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range partitions {
			pipe.Incr(ctx, generationKey(p))
		}
		return nil
	})
	return errors.Wrap(err, "incrementing redis generations")
}
