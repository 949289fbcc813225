package redis

import (
	"context"
	"time"
)

// Both scripts only touch the key while it still holds the caller's token,
// so an expired holder can never free or extend a newer holder's lock.
const (
	releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	extendLockScript  = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// LockStore is the surface behind cart owner locks and the cron leader lock.
type LockStore interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// CartLockKey is sf:lock:cart:<owner key>, one per guest or user cart.
func (c *Client) CartLockKey(ownerKey string) string {
	return key(areaLock, areaCart, ownerKey)
}

// WorkerLockKey names the lock a background worker holds while it runs.
func (c *Client) WorkerLockKey(worker string) string {
	return key(areaLock, areaWorker, worker)
}

// AcquireLock claims key for token until ttl elapses.
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotConnected
	}
	return c.store.SetNX(ctx, key, token, ttl).Result()
}

// ExtendLock pushes the expiry of a lock still owned by token to ttl from now.
func (c *Client) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.compareAndRun(ctx, extendLockScript, key, token, ttl.Milliseconds())
}

// ReleaseLock removes key only when it is still owned by token.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	return c.compareAndRun(ctx, releaseLockScript, key, token)
}

func (c *Client) compareAndRun(ctx context.Context, script, key, token string, extra ...any) (bool, error) {
	if c.store == nil {
		return false, errNotConnected
	}
	args := append([]any{token}, extra...)
	n, err := c.store.Eval(ctx, script, []string{key}, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
