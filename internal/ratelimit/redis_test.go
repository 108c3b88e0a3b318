// ABOUTME: Tests for the Redis limiter
// ABOUTME: Reply parsing runs always; the live test needs INKWELL_TEST_REDIS_ADDR

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisLimiter_RequiresAddr(t *testing.T) {
	_, err := NewRedisLimiter(RedisConfig{})
	assert.Error(t, err)
}

func TestParseScriptResult(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	d, err := parseScriptResult([]any{int64(2), int64(30_000)}, 3, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, now.Add(30*time.Second), d.ResetAt)

	d, err = parseScriptResult([]any{int64(4), int64(1_000)}, 3, now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	_, err = parseScriptResult("OK", 3, now)
	assert.Error(t, err)

	_, err = parseScriptResult([]any{"x", int64(1)}, 3, now)
	assert.Error(t, err)
}

func TestRedisLimiter_Live(t *testing.T) {
	addr := os.Getenv("INKWELL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INKWELL_TEST_REDIS_ADDR not set")
	}

	l, err := NewRedisLimiter(RedisConfig{Addr: addr, KeyPrefix: "inkwell-test:"})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Ping(ctx))

	key := uuid.New().String()
	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
