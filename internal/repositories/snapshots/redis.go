package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

const (
	snapshotKeyPrefix = "snapshot:"

	// TTL for stored sessions (7 days)
	snapshotTTL = 7 * 24 * time.Hour
)

// RedisRepoConfig holds configuration for the Redis repository
type RedisRepoConfig struct {
	Client      redis.UniversalClient
	SnapshotTTL time.Duration
}

// redisRepository implements Repository using Redis
type redisRepository struct {
	client      redis.UniversalClient
	snapshotTTL time.Duration
}

// NewRedisRepository creates a new Redis-backed snapshot repository
func NewRedisRepository(cfg *RedisRepoConfig) Repository {
	if cfg.Client == nil {
		panic("redis client is required")
	}

	ttl := cfg.SnapshotTTL
	if ttl == 0 {
		ttl = snapshotTTL
	}

	return &redisRepository{
		client:      cfg.Client,
		snapshotTTL: ttl,
	}
}

// Load retrieves the snapshot for a session key
func (r *redisRepository) Load(ctx context.Context, sessionKey string) (*game.State, error) {
	if sessionKey == "" {
		return nil, apperr.InvalidArgument("session key cannot be empty")
	}

	data, err := r.client.Get(ctx, snapshotKeyPrefix+sessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperr.NotFoundf("no snapshot for session %q", sessionKey)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot game.State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}
	return &snapshot, nil
}

// Save stores a consistent snapshot under the session key
func (r *redisRepository) Save(ctx context.Context, sessionKey string, snapshot *game.State) error {
	if sessionKey == "" {
		return apperr.InvalidArgument("session key cannot be empty")
	}
	if snapshot == nil {
		return apperr.InvalidArgument("snapshot cannot be nil")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	if err := r.client.Set(ctx, snapshotKeyPrefix+sessionKey, data, r.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes a stored snapshot
func (r *redisRepository) Delete(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return apperr.InvalidArgument("session key cannot be empty")
	}

	if err := r.client.Del(ctx, snapshotKeyPrefix+sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
