package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-cart/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// Throttle dimensions. Emails are hashed before they reach redis or logs.
const (
	dimensionIP    = "ip"
	dimensionOwner = "owner"
	dimensionEmail = "email"
)

// WindowCounter is the fixed-window counter behind RateLimit.
type WindowCounter interface {
	HitWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(policy, dimension, value string) string
}

// RateLimitPolicy caps requests to one surface per client address, per cart
// owner and per submitted email within Window. A zero limit disables that
// dimension.
type RateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerOwner int
	PerEmail int
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerOwner > 0 || p.PerEmail > 0)
}

type throttleCheck struct {
	dimension string
	value     string
	limit     int
}

// RateLimit rejects with RATE_LIMIT_EXCEEDED once any dimension goes over
// its limit. Checks run in order ip, owner, email and stop at the first hit.
func RateLimit(policy RateLimitPolicy, counter WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if counter == nil || !policy.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks, err := throttleChecks(policy, r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			for _, check := range checks {
				key := counter.RateLimitKey(policy.Name, check.dimension, check.value)
				seen, err := counter.HitWindow(ctx, key, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit counter"))
					return
				}
				if seen > int64(check.limit) {
					rejectThrottled(ctx, logg, w, policy, check, seen)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func throttleChecks(policy RateLimitPolicy, r *http.Request) ([]throttleCheck, error) {
	var checks []throttleCheck
	if policy.PerIP > 0 {
		if ip := clientIP(r); ip != "" {
			checks = append(checks, throttleCheck{dimensionIP, ip, policy.PerIP})
		}
	}
	if policy.PerOwner > 0 {
		if owner, ok := OwnerFromContext(r.Context()); ok {
			checks = append(checks, throttleCheck{dimensionOwner, owner.Key(), policy.PerOwner})
		}
	}
	if policy.PerEmail > 0 {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if email := submittedEmail(body); email != "" {
			sum := sha256.Sum256([]byte(email))
			checks = append(checks, throttleCheck{dimensionEmail, hex.EncodeToString(sum[:12]), policy.PerEmail})
		}
	}
	return checks, nil
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, check throttleCheck, seen int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    policy.Name,
			"dimension": check.dimension,
			"key_value": check.value,
			"seen":      seen,
			"limit":     check.limit,
		}), "request throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

func submittedEmail(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// clientIP trusts the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
