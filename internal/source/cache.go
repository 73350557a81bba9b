package source

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/panel"
)

// redisOpTimeout bounds each cache round trip so a slow redis cannot stall
// a run.
const redisOpTimeout = 500 * time.Millisecond

// Cache stores encoded panels by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns an in-process cache with per-entry TTLs.
func NewMemoryCache() Cache {
	return &memoryCache{m: make(map[string]entry)}
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	r *redis.Client
}

// NewRedisCache wraps an existing redis client. Errors degrade to misses;
// the source behind the cache stays authoritative.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{r: client}
}

func (c *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	v, err := c.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.r.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Panel cache write failed")
	}
}

// NewCacheFromConfig builds the configured cache backend, or returns nil
// when caching is disabled.
func NewCacheFromConfig(cfg config.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" {
		return NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	return NewMemoryCache()
}

// CachedSource serves fetches from a cache in front of another source.
type CachedSource struct {
	inner     Source
	cache     Cache
	ttl       time.Duration
	cacheType string
	reg       *metrics.Registry
}

// NewCached decorates inner with cache. cacheType labels the hit and miss
// counters; reg may be nil in tests.
func NewCached(inner Source, cache Cache, ttl time.Duration, cacheType string, reg *metrics.Registry) *CachedSource {
	return &CachedSource{inner: inner, cache: cache, ttl: ttl, cacheType: cacheType, reg: reg}
}

func (s *CachedSource) Name() string { return s.inner.Name() }

// Fetch returns the cached panel when present, otherwise fetches from the
// inner source and stores the result. An undecodable cache entry counts as
// a miss and is overwritten.
func (s *CachedSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	key := "panel:" + s.inner.Name()
	if b, ok := s.cache.Get(key); ok {
		var p panel.Panel
		if err := json.Unmarshal(b, &p); err == nil {
			s.recordHit()
			return &p, nil
		}
		log.Warn().Str("key", key).Msg("Dropping undecodable panel cache entry")
	}
	s.recordMiss()

	p, err := s.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		s.cache.Set(key, b, s.ttl)
	}
	return p, nil
}

func (s *CachedSource) recordHit() {
	if s.reg != nil {
		s.reg.RecordCacheHit(s.cacheType)
	}
}

func (s *CachedSource) recordMiss() {
	if s.reg != nil {
		s.reg.RecordCacheMiss(s.cacheType)
	}
}
