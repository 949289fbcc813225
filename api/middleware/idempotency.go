package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-cart/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-cart/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	pendingIdempotencyTTL  = time.Minute
)

// replayRoute names a write that honours Idempotency-Key and how long its
// reply is kept.
type replayRoute struct {
	method string
	path   string
	ttl    time.Duration
}

var replayRoutes = []replayRoute{
	{method: http.MethodPost, path: "/orders", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, path: "/users", ttl: defaultIdempotencyTTL},
}

func lookupReplayRoute(method, path string) (replayRoute, bool) {
	if path == "" {
		return replayRoute{}, false
	}
	for _, route := range replayRoutes {
		if route.method == method && route.path == path {
			return route, true
		}
	}
	return replayRoute{}, false
}

// storedReply is the redis value under an idempotency key. A zero Status
// marks a request that is still running.
type storedReply struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

func (s storedReply) inFlight() bool { return s.Status == 0 }

type replayGuard struct {
	store pkgredis.ReplyStore
	logg  *logger.Logger
}

// Idempotency lets clients retry order placement and registration safely.
// The first request claims the key with a short pending marker; once the
// handler answers below 500 the marker is overwritten in place with the
// reply, so the key is never absent between claim and completion. Server
// errors drop the claim so the client can retry.
func Idempotency(store pkgredis.ReplyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	guard := replayGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupReplayRoute(r.Method, routePattern(r))
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(ownerScope(r), clientKey)
			fingerprint := fingerprintBody(body)

			claimed, err := guard.claim(r.Context(), key, fingerprint)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !claimed {
				guard.replay(w, r, key, fingerprint)
				return
			}

			capture := &replyCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the outcome is recorded even if the client went away
			guard.settle(context.WithoutCancel(r.Context()), key, route.ttl, fingerprint, capture)
		})
	}
}

func (g replayGuard) claim(ctx context.Context, key, fingerprint string) (bool, error) {
	marker, err := json.Marshal(storedReply{Fingerprint: fingerprint})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	claimed, err := g.store.Claim(ctx, key, string(marker), pendingIdempotencyTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return claimed, nil
}

func (g replayGuard) settle(ctx context.Context, key string, ttl time.Duration, fingerprint string, capture *replyCapture) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, key); err != nil {
			g.logError(ctx, "release idempotency claim", err)
		}
		return
	}

	reply, err := json.Marshal(storedReply{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		Fingerprint: fingerprint,
	})
	if err != nil {
		g.logError(ctx, "encode idempotency reply", err)
		return
	}
	if err := g.store.Settle(ctx, key, string(reply), ttl); err != nil {
		g.logError(ctx, "persist idempotency reply", err)
	}
}

func (g replayGuard) replay(w http.ResponseWriter, r *http.Request, key, fingerprint string) {
	ctx := r.Context()
	raw, found, err := g.store.Lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	inProgress := pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress")
	if !found {
		responses.WriteError(ctx, g.logg, w, inProgress)
		return
	}

	var stored storedReply
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.Fingerprint != fingerprint:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.inFlight():
		responses.WriteError(ctx, g.logg, w, inProgress)
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		if decoded, err := base64.StdEncoding.DecodeString(stored.Body); err == nil {
			_, _ = w.Write(decoded)
		}
	}
}

func (g replayGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg == nil {
		return
	}
	g.logg.Error(ctx, msg, err)
}

// ownerScope keys replies per cart owner so guests never replay each other's orders.
func ownerScope(r *http.Request) string {
	owner := "anonymous"
	if o, ok := OwnerFromContext(r.Context()); ok {
		owner = o.Key()
	}
	return owner + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Middleware running before
// sub-routing only sees a mount wildcard, so the raw path is used then.
func routePattern(r *http.Request) string {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			path = pattern
		}
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

type replyCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *replyCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *replyCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *replyCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
