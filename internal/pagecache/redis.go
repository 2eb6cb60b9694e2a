package pagecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// RedisBackend stores pages as plain string keys with a TTL.
type RedisBackend struct {
	rdb redis.Cmdable
}

func NewRedisBackend(rdb redis.Cmdable) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN and deletes each matching batch.
func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	match := globEscaper.Replace(prefix) + "*"

	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan %s: %w", match, err)
		}
		if len(keys) > 0 {
			n, err := b.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
