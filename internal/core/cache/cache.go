// Package cache stores match-debug probe responses in Redis.
//
// A cached response is only reusable while the stored groups are unchanged,
// so the key folds in a fingerprint of every group's id, priority and
// update time alongside the request and its window.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solatis/dispatchkeeper/internal/types"
)

const keyPrefix = "dispatchkeeper:probe:"

// Cache looks up and stores probe responses.
type Cache interface {
	Get(ctx context.Context, key string) (*types.DebugResponse, error)
	Set(ctx context.Context, key string, resp types.DebugResponse) error
}

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache keeps responses for a fixed TTL.
type RedisCache struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisCache wraps a connected client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached response, or nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) (*types.DebugResponse, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get probe response from redis: %w", err)
	}

	var resp types.DebugResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal probe response: %w", err)
	}
	return &resp, nil
}

// Set stores resp under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, resp types.DebugResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal probe response: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write probe response to redis: %w", err)
	}
	return nil
}

// Key derives the cache key of a probe. groups are the stored groups the
// probe evaluated against; their order does not matter.
func Key(req types.DebugRequest, window types.TimeWindow, groups []types.GroupInfo) (string, error) {
	payload, err := json.Marshal(struct {
		Request types.DebugRequest `json:"request"`
		Start   int64              `json:"start"`
		End     int64              `json:"end"`
	}{req, window.Start.Unix(), window.End.Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal probe request: %w", err)
	}

	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(Fingerprint(groups)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint summarizes the stored group state a probe depends on.
func Fingerprint(groups []types.GroupInfo) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, strconv.FormatInt(g.ID, 10)+"@"+strconv.Itoa(g.Priority)+"@"+strconv.FormatInt(g.UpdateTime.Unix(), 10))
	}
	sort.Strings(parts)

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
