package redis

import (
	"context"
	"time"
)

// hitWindowScript increments the counter and arms its expiry on the first
// hit of a window in one round trip, so a crash between the two can never
// leave a counter without a TTL.
const hitWindowScript = `local n = redis.call("INCR", KEYS[1]) if n == 1 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end return n`

// RateLimitKey is sf:rate_limit:<policy>:<dimension>:<value>.
func (c *Client) RateLimitKey(policy, dimension, value string) string {
	return key(areaRateLimit, policy, dimension, value)
}

// HitWindow counts one request against a fixed window and returns the total
// seen in the current window.
func (c *Client) HitWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotConnected
	}
	return c.store.Eval(ctx, hitWindowScript, []string{key}, window.Milliseconds()).Int64()
}
