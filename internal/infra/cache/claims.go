package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryClaims is a process-local claim store.
type MemoryClaims struct {
	items *InMemory[struct{}]
}

// NewMemoryClaims creates a claim store whose sweeper runs every sweep.
func NewMemoryClaims(sweep time.Duration) *MemoryClaims {
	return &MemoryClaims{items: New[struct{}](sweep)}
}

// Claim returns true the first time key is seen within ttl.
func (m *MemoryClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return m.items.SetIfAbsent(key, struct{}{}, ttl), nil
}

// Release forgets key.
func (m *MemoryClaims) Release(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Close stops the sweeper.
func (m *MemoryClaims) Close() error {
	m.items.Close()
	return nil
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewRedisClient connects to Redis and pings it with a short timeout.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	var tlsConf *tls.Config
	if opts.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: tlsConf,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisClaims stores claims as Redis keys set with NX and an expiry, so the
// claim is shared by every replica.
type RedisClaims struct {
	client *redis.Client
	prefix string
}

// NewRedisClaims wraps client. Keys are namespaced with prefix.
func NewRedisClaims(client *redis.Client, prefix string) *RedisClaims {
	return &RedisClaims{client: client, prefix: prefix}
}

func (r *RedisClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim: %w", err)
	}
	return ok, nil
}

func (r *RedisClaims) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (r *RedisClaims) Close() error {
	return r.client.Close()
}
