// 文件: pkg/platform/manager.go
// 平台配置管理器 - 业务逻辑层
//
// 生命周期: Initialize 只能执行一次；之后只有权限方能 Update
// Update 立即生效，没有延迟激活

package platform

import (
	"context"
	"errors"
	"log"

	"moonpad.com/pkg/fixmath"
)

var (
	ErrFeeTooHigh   = errors.New("platform fee exceeds 1000 bps")
	ErrUnauthorized = errors.New("caller is not the platform authority")
)

// Manager 平台配置管理器
// 只依赖 Repository 接口，可注入 MySQL / Cached / Memory 实现
type Manager struct {
	repo Repository
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// =============================================================================
// 初始化
// =============================================================================

// Initialize 创建平台配置单例
// feeBps > 1000 拒绝
func (m *Manager) Initialize(ctx context.Context, authority string, feeBps uint16, migrationThreshold uint64) (*Config, error) {
	if feeBps > MaxPlatformFeeBps {
		return nil, ErrFeeTooHigh
	}

	cfg := &Config{
		Address:            ConfigAddress().String(),
		Authority:          authority,
		PlatformFeeBps:     feeBps,
		MigrationThreshold: migrationThreshold,
	}
	if err := m.repo.Create(ctx, cfg); err != nil {
		return nil, err
	}

	log.Printf("[Platform] Initialized: feeBps=%d, migrationThreshold=%d", feeBps, migrationThreshold)
	return cfg, nil
}

// =============================================================================
// 更新 (权限方专属)
// =============================================================================

// UpdateRequest 可选字段更新
type UpdateRequest struct {
	Paused *bool
	FeeBps *uint16
}

// Update 权限方更新配置
func (m *Manager) Update(ctx context.Context, caller string, req *UpdateRequest) (*Config, error) {
	cfg, err := m.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Authority != caller {
		return nil, ErrUnauthorized
	}

	if req.Paused != nil {
		cfg.Paused = *req.Paused
	}
	if req.FeeBps != nil {
		if *req.FeeBps > MaxPlatformFeeBps {
			return nil, ErrFeeTooHigh
		}
		cfg.PlatformFeeBps = *req.FeeBps
	}

	if err := m.repo.Update(ctx, cfg); err != nil {
		return nil, err
	}
	log.Printf("[Platform] Updated: paused=%v, feeBps=%d", cfg.Paused, cfg.PlatformFeeBps)
	return cfg, nil
}

// =============================================================================
// 读取与计数
// =============================================================================

// Get 读取配置
func (m *Manager) Get(ctx context.Context) (*Config, error) {
	return m.repo.Get(ctx)
}

// RecordLaunch 发射计数 +1
func (m *Manager) RecordLaunch(ctx context.Context) error {
	cfg, err := m.repo.Get(ctx)
	if err != nil {
		return err
	}
	cfg.TotalLaunches = fixmath.SatAdd(cfg.TotalLaunches, 1)
	return m.repo.Update(ctx, cfg)
}

// RecordVolume 成交量累加 (饱和)
func (m *Manager) RecordVolume(ctx context.Context, amount uint64) error {
	cfg, err := m.repo.Get(ctx)
	if err != nil {
		return err
	}
	cfg.TotalVolume = fixmath.SatAdd(cfg.TotalVolume, amount)
	return m.repo.Update(ctx, cfg)
}
