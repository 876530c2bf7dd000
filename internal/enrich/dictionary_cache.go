package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// CacheStore is the subset of Redis used by CachedDictionary
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ErrCacheMiss is returned by CacheStore.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// RedisStore adapts a go-redis client to CacheStore
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get reads key, mapping redis.Nil to ErrCacheMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set writes key with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// CachedDictionary memoizes lookups of a slower dictionary, including
// misses. Cache failures fall through to the backing dictionary.
type CachedDictionary struct {
	backing Dictionary
	store   CacheStore
	prefix  string
	ttl     time.Duration
	logger  *logging.Logger
}

// NewCachedDictionary wraps backing. Keys are "<prefix>:dict:<limit>:<term>".
func NewCachedDictionary(backing Dictionary, store CacheStore, prefix string, ttl time.Duration) *CachedDictionary {
	return &CachedDictionary{
		backing: backing,
		store:   store,
		prefix:  prefix,
		ttl:     ttl,
		logger:  logging.NewLogger("DictionaryCache"),
	}
}

func (c *CachedDictionary) key(term string, limit int) string {
	return fmt.Sprintf("%s:dict:%d:%s", c.prefix, limit, term)
}

// Lookup serves from the cache when possible.
func (c *CachedDictionary) Lookup(ctx context.Context, term string, limit int) ([]annotation.DictionaryEntry, error) {
	key := c.key(term, limit)

	if raw, err := c.store.Get(ctx, key); err == nil {
		var entries []annotation.DictionaryEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		c.logger.Warn("Discarding corrupt cache entry", "key", key)
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Dictionary cache read failed", "key", key, "error", err)
	}

	entries, err := c.backing.Lookup(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []annotation.DictionaryEntry{}
	}

	if raw, err := json.Marshal(entries); err == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("Dictionary cache write failed", "key", key, "error", err)
		}
	}
	return entries, nil
}
