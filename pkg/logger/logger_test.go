package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

func jsonLogger(buf *bytes.Buffer, opts Options) *Logger {
	opts.Output = buf
	opts.Format = "json"
	if opts.ServiceName == "" {
		opts.ServiceName = "cart-api"
	}
	return New(opts)
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestContextFieldsReachEveryEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := jsonLogger(buf, Options{Level: zerolog.DebugLevel})

	ctx := logg.WithRequestID(context.Background(), "req-123")
	ctx = logg.WithOwner(ctx, "guest", "g-1")
	logg.Error(ctx, "checkout failed", errors.New("db timeout"))

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "guest", entry["owner_type"])
	assert.Equal(t, "g-1", entry["owner_id"])
	assert.Equal(t, "cart-api", entry["service"])
	assert.Equal(t, "db timeout", entry["error"])
	assert.Contains(t, entry, "stack")
}

func TestDerivedContextDoesNotLeakIntoParent(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := jsonLogger(buf, Options{})

	parent := logg.WithRequestID(context.Background(), "req-1")
	_ = logg.WithOrderID(parent, "ord-9")
	logg.Info(parent, "after child")

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.NotContains(t, entry, "order_id")
}

func TestErrorTagsTypedCodes(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := jsonLogger(buf, Options{})

	logg.Error(context.Background(), "rejected", pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"))
	client := lastEntry(t, buf)
	assert.Equal(t, "EMPTY_CART", client["error_code"])
	assert.NotContains(t, client, "stack")

	logg.Error(context.Background(), "broken", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis"), "lock"))
	server := lastEntry(t, buf)
	assert.Equal(t, "DEPENDENCY_ERROR", server["error_code"])
	assert.Contains(t, server, "stack")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger(buf, Options{WarnStack: true}).Warn(context.Background(), "slow lock")
	assert.Contains(t, lastEntry(t, buf), "stack")

	buf.Reset()
	jsonLogger(buf, Options{}).Warn(context.Background(), "slow lock")
	assert.NotContains(t, lastEntry(t, buf), "stack")
}

func TestLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger(buf, Options{Level: zerolog.WarnLevel}).Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
}
