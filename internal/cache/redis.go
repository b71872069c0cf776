// Package cache holds the Redis-backed idempotency keys and distributed locks.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const pendingMarker = "pending"

// ErrClaimInProgress is returned when another request holds the same key
var ErrClaimInProgress = errors.New("idempotency key is in use by a request still in progress")

// Client wraps a Redis connection
type Client struct {
	rdb            *redis.Client
	idempotencyTTL time.Duration
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr, password string, db int, idempotencyTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, idempotencyTTL: idempotencyTTL}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("idempotency:booking:%s:%s", userID, key)
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// ClaimIdempotencyKey reserves key for userID. When the key was already used
// the booking it produced is returned with claimed=false.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (existing uuid.UUID, claimed bool, err error) {
	redisKey := idempotencyKey(userID, key)

	ok, err := c.rdb.SetNX(ctx, redisKey, pendingMarker, c.idempotencyTTL).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return uuid.Nil, true, nil
	}

	value, err := c.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the caller may retry
		return uuid.Nil, false, ErrClaimInProgress
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return parseClaim(value)
}

// CompleteIdempotencyKey records the booking produced under key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, userID uuid.UUID, key string, bookingID uuid.UUID) error {
	return c.rdb.Set(ctx, idempotencyKey(userID, key), bookingID.String(), c.idempotencyTTL).Err()
}

// ReleaseIdempotencyKey frees key after a request failed before persisting
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(userID, key)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(name), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, lockKey(name)).Err()
}

func parseClaim(value string) (uuid.UUID, bool, error) {
	if value == pendingMarker {
		return uuid.Nil, false, ErrClaimInProgress
	}
	bookingID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency value %q: %w", value, err)
	}
	return bookingID, false, nil
}

// NoopStore is used when Redis is not configured: every key is claimable
// and every lock is granted, which is correct for a single instance
type NoopStore struct{}

func (NoopStore) ClaimIdempotencyKey(context.Context, uuid.UUID, string) (uuid.UUID, bool, error) {
	return uuid.Nil, true, nil
}

func (NoopStore) CompleteIdempotencyKey(context.Context, uuid.UUID, string, uuid.UUID) error {
	return nil
}

func (NoopStore) ReleaseIdempotencyKey(context.Context, uuid.UUID, string) error { return nil }

func (NoopStore) AcquireLock(context.Context, string, time.Duration) (bool, error) { return true, nil }

func (NoopStore) ReleaseLock(context.Context, string) error { return nil }
