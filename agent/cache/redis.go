package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// Redis caches bundles in a Redis server.
type Redis struct {
	client *backend.Client
	prefix string
}

var _ contractx.BundleCache = (*Redis)(nil)

type RedisOption func(*Redis)

func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedis(address, password string, db int, opts ...RedisOption) *Redis {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Get(ctx context.Context, businessRef string) (*contractx.ContextBundle, error) {
	key, err := cacheKey(r.prefix, businessRef)
	if err != nil {
		return nil, err
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return decodeBundle(val)
}

func (r *Redis) Put(ctx context.Context, businessRef string, bundle *contractx.ContextBundle, ttl time.Duration) error {
	key, err := cacheKey(r.prefix, businessRef)
	if err != nil {
		return err
	}
	data, err := encodeBundle(bundle)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
