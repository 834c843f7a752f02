// 文件: pkg/launch/repository.go
// 发射记录/用户持仓存储
//
// 【设计模式】Repository Pattern，同 pkg/platform

package launch

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Repository 发射记录存储接口
type Repository interface {
	// CreateLaunch 创建发射记录，mint 已存在返回 ErrLaunchExists
	CreateLaunch(ctx context.Context, l *TokenLaunch) error

	// GetLaunch 按 mint 查询，不存在返回 ErrLaunchNotFound
	GetLaunch(ctx context.Context, mint string) (*TokenLaunch, error)

	// UpdateLaunch 回写曲线状态
	UpdateLaunch(ctx context.Context, l *TokenLaunch) error

	// GetPosition 查询用户持仓，不存在返回 (nil, nil)
	GetPosition(ctx context.Context, owner, mint string) (*UserPosition, error)

	// SavePosition 创建或更新持仓
	SavePosition(ctx context.Context, p *UserPosition) error
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
	return r.db.AutoMigrate(&TokenLaunch{}, &UserPosition{})
}

func (r *MySQLRepository) CreateLaunch(ctx context.Context, l *TokenLaunch) error {
	now := time.Now().UnixMilli()
	l.CreatedAt = now
	l.UpdatedAt = now

	var count int64
	if err := r.db.WithContext(ctx).Model(&TokenLaunch{}).
		Where("mint = ?", l.Mint).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrLaunchExists
	}
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *MySQLRepository) GetLaunch(ctx context.Context, mint string) (*TokenLaunch, error) {
	var l TokenLaunch
	err := r.db.WithContext(ctx).Where("mint = ?", mint).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLaunchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *MySQLRepository) UpdateLaunch(ctx context.Context, l *TokenLaunch) error {
	l.UpdatedAt = time.Now().UnixMilli()
	result := r.db.WithContext(ctx).
		Model(&TokenLaunch{}).
		Where("mint = ?", l.Mint).
		Select("tokens_sold", "total_staked", "reserve", "migrated",
			"total_volume", "updated_at").
		Updates(l)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLaunchNotFound
	}
	return nil
}

func (r *MySQLRepository) GetPosition(ctx context.Context, owner, mint string) (*UserPosition, error) {
	var p UserPosition
	err := r.db.WithContext(ctx).
		Where("owner = ? AND mint = ?", owner, mint).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MySQLRepository) SavePosition(ctx context.Context, p *UserPosition) error {
	now := time.Now().UnixMilli()
	p.UpdatedAt = now
	if p.ID == 0 {
		p.CreatedAt = now
		return r.db.WithContext(ctx).Create(p).Error
	}
	return r.db.WithContext(ctx).Save(p).Error
}

// =============================================================================
// 内存实现 (测试/模拟)
// =============================================================================

var _ Repository = (*MemoryRepository)(nil)

type MemoryRepository struct {
	mu        sync.RWMutex
	launches  map[string]*TokenLaunch
	positions map[string]*UserPosition
	nextID    uint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		launches:  make(map[string]*TokenLaunch),
		positions: make(map[string]*UserPosition),
	}
}

func (r *MemoryRepository) CreateLaunch(ctx context.Context, l *TokenLaunch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.launches[l.Mint]; ok {
		return ErrLaunchExists
	}
	now := time.Now().UnixMilli()
	cp := *l
	r.nextID++
	cp.ID = r.nextID
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.launches[l.Mint] = &cp
	return nil
}

func (r *MemoryRepository) GetLaunch(ctx context.Context, mint string) (*TokenLaunch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.launches[mint]
	if !ok {
		return nil, ErrLaunchNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *MemoryRepository) UpdateLaunch(ctx context.Context, l *TokenLaunch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.launches[l.Mint]; !ok {
		return ErrLaunchNotFound
	}
	cp := *l
	cp.UpdatedAt = time.Now().UnixMilli()
	r.launches[l.Mint] = &cp
	return nil
}

func (r *MemoryRepository) GetPosition(ctx context.Context, owner, mint string) (*UserPosition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[owner+"/"+mint]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) SavePosition(ctx context.Context, p *UserPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	if cp.ID == 0 {
		r.nextID++
		cp.ID = r.nextID
		cp.CreatedAt = time.Now().UnixMilli()
	}
	cp.UpdatedAt = time.Now().UnixMilli()
	r.positions[p.Owner+"/"+p.Mint] = &cp
	return nil
}
