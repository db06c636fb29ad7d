package store

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	linkup_errors "linkup-client/pkg/errors"
)

// RedisKV backs the draft stores with a Redis instance. Useful when several
// client deployments share one state store; records carry no TTL since a
// draft lives until it is sent or cleared.
type RedisKV struct {
	client *goredis.Client
	prefix string
}

func NewRedisKV(client *goredis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, linkup_errors.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is available.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
