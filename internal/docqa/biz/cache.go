package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
)

// AnswerCacheConfig configures the stateless query answer cache.
type AnswerCacheConfig struct {
	// Enabled toggles the cache.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces cache keys in Redis.
	KeyPrefix string
}

// DefaultAnswerCacheConfig returns the default answer cache configuration.
func DefaultAnswerCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "docqa:answer:",
	}
}

// AnswerCache caches results of the stateless query endpoint. Session
// answers are never cached: they depend on per-session conversation
// state.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates an answer cache. A nil redis client disables it.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = DefaultAnswerCacheConfig()
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

func (c *AnswerCache) enabled() bool {
	return c.config.Enabled && c.redis != nil
}

// cacheKey hashes everything that determines an answer: the question,
// retrieval parameters, the metadata filter, and the generation model.
func (c *AnswerCache) cacheKey(question string, k int, alpha float64, filter *store.Filter, chatModel string) string {
	material := fmt.Sprintf("%s|k=%d|alpha=%g|filter=%s|model=%s", question, k, alpha, filter.Key(), chatModel)
	hash := sha256.Sum256([]byte(material))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached result for the query parameters, or nil on a
// miss. A disabled cache always misses.
func (c *AnswerCache) Get(ctx context.Context, question string, k int, alpha float64, filter *store.Filter, chatModel string) (*model.QueryResult, error) {
	if !c.enabled() {
		return nil, nil
	}

	key := c.cacheKey(question, k, alpha, filter, chatModel)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("answer cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from answer cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached answer, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("answer cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set stores a query result under the query parameters.
func (c *AnswerCache) Set(ctx context.Context, question string, k int, alpha float64, filter *store.Filter, chatModel string, result *model.QueryResult) error {
	if !c.enabled() {
		return nil
	}

	key := c.cacheKey(question, k, alpha, filter, chatModel)

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "error", err.Error(), "key", key)
		return err
	}

	logger.Debugw("cached answer", "key", key, "ttl", c.config.TTL)
	return nil
}

// Stats reports answer cache usage for the stats endpoint.
func (c *AnswerCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	if !c.enabled() {
		return map[string]interface{}{
			"enabled": false,
		}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
