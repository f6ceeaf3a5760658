// pkg/lti/storage/redis.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

// DefaultKeyPrefix namespaces every key written by RedisLaunchStore.
const DefaultKeyPrefix = "lti1p3:"

// RedisLaunchStore implements lti.LaunchStateStore and lti.NonceConsumer on
// Redis. Nonces are written with SETNX and consumed by swapping the value for
// a tombstone that keeps the TTL, so a nonce can be recorded and used at most
// once across replicas.
type RedisLaunchStore struct {
	client    redis.UniversalClient
	keyPrefix string

	LaunchTTL time.Duration
	NonceTTL  time.Duration
}

// NewRedisLaunchStore connects to the Redis server at url and pings it.
func NewRedisLaunchStore(ctx context.Context, url string) (*RedisLaunchStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisLaunchStoreWithClient(client, DefaultKeyPrefix), nil
}

// NewRedisLaunchStoreWithClient wraps an existing client. Handy with miniredis.
func NewRedisLaunchStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisLaunchStore {
	return &RedisLaunchStore{
		client:    client,
		keyPrefix: keyPrefix,
		LaunchTTL: DefaultLaunchTTL,
		NonceTTL:  DefaultNonceTTL,
	}
}

func (s *RedisLaunchStore) Close() error { return s.client.Close() }

func (s *RedisLaunchStore) launchKey(id string) string { return s.keyPrefix + "launch:" + id }

func (s *RedisLaunchStore) nonceKey(n string) string { return s.keyPrefix + "nonce:" + n }

func (s *RedisLaunchStore) GetLaunchClaims(ctx context.Context, launchID string) (map[string]any, error) {
	b, err := s.client.Get(ctx, s.launchKey(launchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("launch %s: %w", launchID, lti.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get launch: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, fmt.Errorf("decode launch: %w", err)
	}
	return claims, nil
}

func (s *RedisLaunchStore) PutLaunchClaims(ctx context.Context, launchID string, claims map[string]any) error {
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode launch: %w", err)
	}
	if err := s.client.Set(ctx, s.launchKey(launchID), b, s.LaunchTTL).Err(); err != nil {
		return fmt.Errorf("put launch: %w", err)
	}
	return nil
}

const (
	nonceLive = "1"
	nonceUsed = "used"
)

func (s *RedisLaunchStore) RecordNonce(ctx context.Context, nonce string) error {
	if nonce == "" {
		return fmt.Errorf("storage: empty nonce")
	}
	ok, err := s.client.SetNX(ctx, s.nonceKey(nonce), nonceLive, s.NonceTTL).Result()
	if err != nil {
		return fmt.Errorf("record nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage: nonce already recorded")
	}
	return nil
}

func (s *RedisLaunchStore) HasNonce(ctx context.Context, nonce string) (bool, error) {
	v, err := s.client.Get(ctx, s.nonceKey(nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check nonce: %w", err)
	}
	return v == nonceLive, nil
}

func (s *RedisLaunchStore) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	prev, err := s.client.SetArgs(ctx, s.nonceKey(nonce), nonceUsed, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
		Get:     true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return prev == nonceLive, nil
}
