package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, burst int, perSecond float64) *TriggerLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTriggerLimiter(client, burst, perSecond, time.Minute)
}

func TestAllowTrigger_SpendsBudget(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter(t, 2, 1)

	allowed, remaining, err := limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.InDelta(t, 1, remaining, 0.01)

	allowed, _, err = limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, remaining, err = limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed, "burst exhausted, trigger must be rejected")
	assert.Less(t, remaining, 1.0)
}

func TestAllowTrigger_BudgetsArePerClient(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter(t, 1, 1)

	allowed, _, err := limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different client spends from its own budget.
	allowed, _, err = limiter.AllowTrigger(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowTrigger_BudgetRefills(t *testing.T) {
	ctx := context.Background()
	// A high refill rate keeps this test fast without faking clocks: the
	// script reads time from the caller, not from Redis, so
	// miniredis.FastForward cannot advance it.
	limiter := newLimiter(t, 1, 100)

	allowed, _, err := limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(50 * time.Millisecond)

	allowed, _, err = limiter.AllowTrigger(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed, "budget should refill with elapsed time")
}
