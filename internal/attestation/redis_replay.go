package attestation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"cate-trust-layer/internal/idhash"
)

// RedisReplayGuard shares the seen-hash set between signer replicas.
// Each hash is a key set with NX and an expiry equal to retention.
type RedisReplayGuard struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// RedisOptions configures NewRedisReplayGuard.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Prefix    string
	Retention time.Duration
}

// NewRedisReplayGuard connects to Redis and verifies the connection.
func NewRedisReplayGuard(ctx context.Context, opts RedisOptions) (*RedisReplayGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedisReplayGuard(client, opts.Prefix, opts.Retention), nil
}

func newRedisReplayGuard(client *redis.Client, prefix string, retention time.Duration) *RedisReplayGuard {
	if prefix == "" {
		prefix = "cate:decision:"
	}
	if retention <= 0 {
		retention = DefaultReplayRetention
	}
	return &RedisReplayGuard{client: client, prefix: prefix, retention: retention}
}

// Compile-time interface check.
var _ ReplayGuard = (*RedisReplayGuard)(nil)

// Accept implements ReplayGuard.
func (g *RedisReplayGuard) Accept(ctx context.Context, hash [32]byte) error {
	key := g.prefix + idhash.DecisionID(hash)
	ok, err := g.client.SetNX(ctx, key, time.Now().Unix(), g.retention).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}

// Close closes the Redis client.
func (g *RedisReplayGuard) Close() error {
	return g.client.Close()
}
