package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplyStore keeps Idempotency-Key replies for the order and registration
// routes. Consumers use the same claim and release pair for processed marks.
type ReplyStore interface {
	Claim(ctx context.Context, key, marker string, ttl time.Duration) (bool, error)
	Settle(ctx context.Context, key, value string, ttl time.Duration) error
	Lookup(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyKey is sf:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(areaIdempotency, scope, id)
}

// Claim writes marker under key unless the key already exists.
func (c *Client) Claim(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotConnected
	}
	return c.store.SetNX(ctx, key, marker, ttl).Result()
}

// Settle overwrites a claimed key in place with its final value and TTL.
func (c *Client) Settle(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.store == nil {
		return errNotConnected
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Lookup reports found=false for a missing or expired key.
func (c *Client) Lookup(ctx context.Context, key string) (string, bool, error) {
	if c.store == nil {
		return "", false, errNotConnected
	}
	value, err := c.store.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return value, true, nil
}

func (c *Client) Release(ctx context.Context, key string) error {
	if c.store == nil {
		return errNotConnected
	}
	return c.store.Del(ctx, key).Err()
}
