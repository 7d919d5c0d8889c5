package parameters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOverrideTracker(t *testing.T) (*OverrideTracker, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return NewOverrideTracker(client), server
}

func TestOverrideTracker_MarkActiveAndIsActive(t *testing.T) {
	tracker, _ := newTestOverrideTracker(t)
	ctx := context.Background()

	active, err := tracker.IsActive(ctx, "ems.mode")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, tracker.MarkActive(ctx, "ems.mode", time.Minute))

	active, err = tracker.IsActive(ctx, "ems.mode")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestOverrideTracker_ExpiresAfterTTL(t *testing.T) {
	tracker, server := newTestOverrideTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkActive(ctx, "ems.mode", time.Second))
	server.FastForward(2 * time.Second)

	active, err := tracker.IsActive(ctx, "ems.mode")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestOverrideTracker_Clear(t *testing.T) {
	tracker, _ := newTestOverrideTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkActive(ctx, "ems.mode", time.Minute))
	require.NoError(t, tracker.Clear(ctx, "ems.mode"))

	active, err := tracker.IsActive(ctx, "ems.mode")
	require.NoError(t, err)
	assert.False(t, active)
}
