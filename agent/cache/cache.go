// Package cache keeps assembled context bundles for a short freshness
// window so bursts of turns for one business skip the catalog reads.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const (
	BackendNone    = "none"
	BackendRedis   = "redis"
	BackendUpstash = "upstash"

	defaultKeyPrefix = "twin:bundle:"
)

var ErrInvalidKey = errors.New("bundle cache key is empty")

type Config struct {
	Backend   string `split_words:"true" default:"none"`
	KeyPrefix string `split_words:"true" default:"twin:bundle:"`

	RedisAddr     string `split_words:"true" default:"localhost:6379"`
	RedisPassword string `split_words:"true"`
	RedisDB       int    `split_words:"true" default:"0"`

	UpstashURL     string        `split_words:"true"`
	UpstashToken   string        `split_words:"true"`
	UpstashTimeout time.Duration `split_words:"true" default:"2s"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", BackendNone, BackendRedis:
	case BackendUpstash:
		if strings.TrimSpace(c.UpstashURL) == "" || strings.TrimSpace(c.UpstashToken) == "" {
			return fmt.Errorf("%w: upstash cache needs url and token", contractx.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported cache backend %q", contractx.ErrConfig, c.Backend)
	}
	return nil
}

// New builds the configured cache. It returns nil for the "none" backend;
// callers treat a nil cache as disabled.
func New(cfg Config) (contractx.BundleCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRedis:
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, WithRedisPrefix(cfg.KeyPrefix)), nil
	case BackendUpstash:
		c, err := NewUpstash(UpstashConfig{
			URL:     cfg.UpstashURL,
			Token:   cfg.UpstashToken,
			Timeout: cfg.UpstashTimeout,
		}, WithKeyPrefix(cfg.KeyPrefix))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

func cacheKey(prefix, businessRef string) (string, error) {
	ref := strings.TrimSpace(businessRef)
	if ref == "" {
		return "", ErrInvalidKey
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + ref, nil
}

func encodeBundle(bundle *contractx.ContextBundle) ([]byte, error) {
	if bundle == nil {
		return nil, errors.New("bundle is nil")
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}

// decodeBundle restores a cached bundle. Row ids are never serialized, so
// the profile id is restored from the bundle's business id.
func decodeBundle(data []byte) (*contractx.ContextBundle, error) {
	var bundle contractx.ContextBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	if bundle.BusinessID == "" {
		return nil, errors.New("cached bundle has no business id")
	}
	bundle.Profile.ID = bundle.BusinessID
	return &bundle, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
