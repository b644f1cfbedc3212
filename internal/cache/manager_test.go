package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	// 创建 miniredis 实例
	mr, err := miniredis.Run()
	require.NoError(t, err)

	logger := zap.NewNop()
	config := Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "docroute",
		DefaultTTL: 1 * time.Minute,
	}

	manager, err := NewManager(config, logger)
	require.NoError(t, err)

	return mr, manager
}

func TestNewManager(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
}

func TestManager_Key(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	assert.Equal(t, "docroute:definition:review", manager.Key("definition", "review"))
	assert.Equal(t, "docroute", manager.Key())
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()

	err := manager.Set(ctx, "test-key", "test-value", 1*time.Minute)
	require.NoError(t, err)

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetMiss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	_, err := manager.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()

	type payload struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}

	err := manager.SetJSON(ctx, "spec", payload{ID: "review", Version: 3}, 0)
	require.NoError(t, err)

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "spec", &got))
	assert.Equal(t, payload{ID: "review", Version: 3}, got)

	assert.ErrorIs(t, manager.GetJSON(ctx, "absent", &got), ErrCacheMiss)
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", "v1", 0))
	require.NoError(t, manager.Set(ctx, "k2", "v2", 0))
	require.NoError(t, manager.Delete(ctx, "k1", "k2"))

	_, err := manager.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// 空键列表是空操作
	require.NoError(t, manager.Delete(ctx))
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ephemeral", "v", 1*time.Second))
	mr.FastForward(2 * time.Second)

	_, err := manager.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_ClosedOperationsFail(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	// Close 是幂等的
	require.NoError(t, manager.Close())

	ctx := context.Background()
	_, err := manager.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, manager.Set(ctx, "k", "v", 0))
	assert.Error(t, manager.Delete(ctx, "k"))
	assert.Error(t, manager.Ping(ctx))
}
