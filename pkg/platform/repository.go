// 文件: pkg/platform/repository.go
// 平台配置存储
//
// 【设计模式】Repository Pattern
// 业务层只依赖接口；MySQL 为主存储，Redis 装饰器加速读，内存实现供测试

package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotInitialized     = errors.New("platform not initialized")
	ErrAlreadyInitialized = errors.New("platform already initialized")
)

// Repository 平台配置存储接口
type Repository interface {
	// Create 创建单例，已存在返回 ErrAlreadyInitialized
	Create(ctx context.Context, cfg *Config) error

	// Get 读取单例，不存在返回 ErrNotInitialized
	Get(ctx context.Context) (*Config, error)

	// Update 全量更新
	Update(ctx context.Context, cfg *Config) error
}

// =============================================================================
// MySQL 实现
// =============================================================================

var _ Repository = (*MySQLRepository)(nil)

type MySQLRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (r *MySQLRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Config{})
}

func (r *MySQLRepository) Create(ctx context.Context, cfg *Config) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Config{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyInitialized
		}
		now := time.Now().UnixMilli()
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		return tx.Create(cfg).Error
	})
}

func (r *MySQLRepository) Get(ctx context.Context) (*Config, error) {
	var cfg Config
	err := r.db.WithContext(ctx).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *MySQLRepository) Update(ctx context.Context, cfg *Config) error {
	cfg.UpdatedAt = time.Now().UnixMilli()
	result := r.db.WithContext(ctx).
		Model(&Config{}).
		Where("address = ?", cfg.Address).
		Select("platform_fee_bps", "migration_threshold", "total_launches",
			"total_volume", "paused", "updated_at").
		Updates(cfg)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotInitialized
	}
	return nil
}

// =============================================================================
// 内存实现 (测试/模拟)
// =============================================================================

var _ Repository = (*MemoryRepository)(nil)

type MemoryRepository struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg != nil {
		return ErrAlreadyInitialized
	}
	now := time.Now().UnixMilli()
	cp := *cfg
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.cfg = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cfg == nil {
		return nil, ErrNotInitialized
	}
	cp := *r.cfg
	return &cp, nil
}

func (r *MemoryRepository) Update(ctx context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return ErrNotInitialized
	}
	cp := *cfg
	cp.UpdatedAt = time.Now().UnixMilli()
	r.cfg = &cp
	return nil
}
