package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
	minRetryDelay   = 10 * time.Millisecond
	maxRetryDelay   = 200 * time.Millisecond
	releaseTimeout  = 2 * time.Second
)

var (
	// ErrLockTimeout is returned when the owner lock could not be acquired within the wait budget.
	ErrLockTimeout = errors.New("cart lock wait exceeded")
	// ErrLockLost is returned when a held owner lock expired or was taken over
	// before the work it guarded finished.
	ErrLockLost = errors.New("cart lock lost")
)

// Locker serialises mutations of one owner's cart. Different keys never contend.
type Locker interface {
	Lock(ctx context.Context, key string) (Lease, error)
}

// Lease is one held owner lock. Held turns false for good once the lock
// expired or was taken over. Release is idempotent.
type Lease interface {
	Held() bool
	Release()
}

type lease struct {
	release   func()
	lost      chan struct{}
	parts     []Lease
	lostOnce  sync.Once
	closeOnce sync.Once
}

func newLease(release func()) *lease {
	return &lease{release: release, lost: make(chan struct{})}
}

func (l *lease) Held() bool {
	select {
	case <-l.lost:
		return false
	default:
	}
	for _, part := range l.parts {
		if !part.Held() {
			return false
		}
	}
	return true
}

// Release gives the lock back. Parts are released in reverse acquisition order.
func (l *lease) Release() {
	l.closeOnce.Do(func() {
		for i := len(l.parts) - 1; i >= 0; i-- {
			l.parts[i].Release()
		}
		if l.release != nil {
			l.release()
		}
	})
}

func (l *lease) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}

type lockStore interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	CartLockKey(ownerKey string) string
}

// RedisLocker holds a token-owned Redis key per owner so every API replica
// shares the same serialisation. While a lease is held its key is extended
// every third of the TTL; a failed extension marks the lease lost.
type RedisLocker struct {
	store   lockStore
	ttl     time.Duration
	wait    time.Duration
	refresh time.Duration
	logg    *logger.Logger
	metrics *metrics.CartMetrics
	jitter  func(time.Duration) time.Duration
}

// NewRedisLocker builds a Redis-backed locker.
func NewRedisLocker(store lockStore, ttl, wait time.Duration, logg *logger.Logger, m *metrics.CartMetrics) (*RedisLocker, error) {
	if store == nil {
		return nil, fmt.Errorf("lock store required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisLocker{
		store:   store,
		ttl:     ttl,
		wait:    wait,
		refresh: max(ttl/3, time.Millisecond),
		logg:    logg,
		metrics: m,
		jitter:  randomJitter,
	}, nil
}

// Lock blocks until the owner's key is acquired, the wait budget runs out or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Lease, error) {
	redisKey := l.store.CartLockKey(key)
	token := uuid.NewString()
	started := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	delay := minRetryDelay
	for {
		ok, err := l.store.AcquireLock(waitCtx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire cart lock: %w", err)
		}
		if ok {
			l.metrics.ObserveLockWait(time.Since(started))
			return l.hold(ctx, redisKey, token), nil
		}

		timer := time.NewTimer(l.jitter(delay))
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrLockTimeout
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// hold starts the keep-alive loop for an acquired key. The loop stops on
// Release and outlives ctx so an order commit finishing after the client
// disconnected is still covered.
func (l *RedisLocker) hold(ctx context.Context, key, token string) *lease {
	stop := make(chan struct{})
	done := make(chan struct{})
	held := newLease(func() {
		close(stop)
		<-done
		l.release(ctx, key, token)
	})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if !l.extend(ctx, key, token) {
				held.markLost()
				return
			}
		}
	}()
	return held
}

func (l *RedisLocker) extend(ctx context.Context, key, token string) bool {
	extendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.refresh)
	defer cancel()
	extended, err := l.store.ExtendLock(extendCtx, key, token, l.ttl)
	if err == nil && extended {
		return true
	}
	if l.logg != nil {
		logCtx := l.logg.WithField(ctx, "lock_key", key)
		if err != nil {
			l.logg.Error(logCtx, "extend cart lock", err)
		} else {
			l.logg.Warn(logCtx, "cart lock taken over before extension")
		}
	}
	return false
}

func (l *RedisLocker) release(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	released, err := l.store.ReleaseLock(releaseCtx, key, token)
	if l.logg == nil {
		return
	}
	logCtx := l.logg.WithField(ctx, "lock_key", key)
	if err != nil {
		l.logg.Error(logCtx, "release cart lock", err)
		return
	}
	if !released {
		l.logg.Warn(logCtx, "cart lock expired before release")
	}
}

func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// KeyedMutex is the in-process Locker used when Redis is not configured.
// Its leases are never lost.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	metrics *metrics.CartMetrics
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex builds an in-process per-key locker.
func NewKeyedMutex(m *metrics.CartMetrics) *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry), metrics: m}
}

// Lock waits for the key or until ctx ends.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (Lease, error) {
	started := time.Now()
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}
	k.metrics.ObserveLockWait(time.Since(started))

	return newLease(func() {
		<-entry.sem
		k.unref(key, entry)
	}), nil
}

func (k *KeyedMutex) unref(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

// LockOwners acquires the locks for several keys in sorted order so two
// callers locking the same pair never deadlock.
func LockOwners(ctx context.Context, locker Locker, keys ...string) (Lease, error) {
	combined := newLease(nil)
	for _, key := range uniqueSorted(keys) {
		part, err := locker.Lock(ctx, key)
		if err != nil {
			combined.Release()
			return nil, err
		}
		combined.parts = append(combined.parts, part)
	}
	return combined, nil
}

func uniqueSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
