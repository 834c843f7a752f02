// 文件: pkg/platform/manager_test.go

package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool    { return &b }
func feePtr(f uint16) *uint16 { return &f }

func TestInitialize(t *testing.T) {
	m := NewManager(NewMemoryRepository())
	ctx := context.Background()

	cfg, err := m.Initialize(ctx, "authority-addr", 100, 85_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), cfg.PlatformFeeBps)
	assert.False(t, cfg.Paused)
	assert.Equal(t, ConfigAddress().String(), cfg.Address)

	// 只能初始化一次
	_, err = m.Initialize(ctx, "authority-addr", 100, 0)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeFeeTooHigh(t *testing.T) {
	m := NewManager(NewMemoryRepository())

	_, err := m.Initialize(context.Background(), "authority-addr", 1001, 0)
	assert.ErrorIs(t, err, ErrFeeTooHigh)
}

func TestUpdateAuthorityGated(t *testing.T) {
	m := NewManager(NewMemoryRepository())
	ctx := context.Background()
	_, err := m.Initialize(ctx, "authority-addr", 100, 0)
	require.NoError(t, err)

	// 非权限方
	_, err = m.Update(ctx, "mallory", &UpdateRequest{Paused: boolPtr(true)})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// 权限方: 暂停 + 调费率
	cfg, err := m.Update(ctx, "authority-addr", &UpdateRequest{
		Paused: boolPtr(true),
		FeeBps: feePtr(250),
	})
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
	assert.Equal(t, uint16(250), cfg.PlatformFeeBps)

	// 费率超限
	_, err = m.Update(ctx, "authority-addr", &UpdateRequest{FeeBps: feePtr(1200)})
	assert.ErrorIs(t, err, ErrFeeTooHigh)
}

func TestCounters(t *testing.T) {
	m := NewManager(NewMemoryRepository())
	ctx := context.Background()
	_, err := m.Initialize(ctx, "authority-addr", 100, 0)
	require.NoError(t, err)

	require.NoError(t, m.RecordLaunch(ctx))
	require.NoError(t, m.RecordVolume(ctx, 1_000_000_000))
	require.NoError(t, m.RecordVolume(ctx, 500))

	cfg, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.TotalLaunches)
	assert.Equal(t, uint64(1_000_000_500), cfg.TotalVolume)
}
