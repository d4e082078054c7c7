package linkpreview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"prioritylist/api/internal/logger"
)

// DefaultCacheTTL bounds how long a fetched preview is reused.
const DefaultCacheTTL = 24 * time.Hour

// RedisCache stores previews keyed by a hash of the requested URL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: "prioritylist:preview:", ttl: ttl}
}

func (c *RedisCache) key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, rawURL string) (Preview, bool, error) {
	raw, err := c.client.Get(ctx, c.key(rawURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preview{}, false, nil
	}
	if err != nil {
		return Preview{}, false, fmt.Errorf("read preview cache: %w", err)
	}
	var preview Preview
	if err := json.Unmarshal(raw, &preview); err != nil {
		return Preview{}, false, fmt.Errorf("decode cached preview: %w", err)
	}
	return preview, true, nil
}

func (c *RedisCache) Set(ctx context.Context, rawURL string, preview Preview) error {
	raw, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := c.client.Set(ctx, c.key(rawURL), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write preview cache: %w", err)
	}
	return nil
}

type cache interface {
	Get(ctx context.Context, rawURL string) (Preview, bool, error)
	Set(ctx context.Context, rawURL string, preview Preview) error
}

type fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Preview, error)
}

// Service fronts a Fetcher with an optional cache. Cache failures are logged
// and never fail a preview.
type Service struct {
	fetcher fetcher
	cache   cache
	log     *logger.Logger
}

func NewService(f fetcher, c *RedisCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{fetcher: f, log: log}
	if c != nil {
		s.cache = c
	}
	return s
}

func (s *Service) Preview(ctx context.Context, rawURL string) (Preview, error) {
	if s.cache != nil {
		preview, ok, err := s.cache.Get(ctx, rawURL)
		if err != nil {
			s.log.Warn("preview cache read failed", "error", err)
		} else if ok {
			return preview, nil
		}
	}

	preview, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Preview{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rawURL, preview); err != nil {
			s.log.Warn("preview cache write failed", "error", err)
		}
	}
	return preview, nil
}
