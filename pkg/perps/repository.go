// 文件: pkg/perps/repository.go
// 合约记录存储
//
// 【设计模式】Repository Pattern，同 pkg/launch / pkg/platform

package perps

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Repository 合约记录存储接口
type Repository interface {
	// CreateMarket mint 已存在返回 ErrMarketExists
	CreateMarket(ctx context.Context, m *Market) error

	// GetMarket 不存在返回 ErrMarketNotFound
	GetMarket(ctx context.Context, mint string) (*Market, error)

	UpdateMarket(ctx context.Context, m *Market) error

	// GetMarginAccount 不存在返回 (nil, nil)
	GetMarginAccount(ctx context.Context, owner string) (*MarginAccount, error)

	SaveMarginAccount(ctx context.Context, a *MarginAccount) error

	CreatePosition(ctx context.Context, p *Position) error

	// GetPosition 不存在返回 ErrPositionNotFound
	GetPosition(ctx context.Context, id int64) (*Position, error)

	UpdatePosition(ctx context.Context, p *Position) error
	DeletePosition(ctx context.Context, id int64) error

	// ListPositionsByOwner 用户全部存续持仓 (跨市场，全仓保证金检查用)
	ListPositionsByOwner(ctx context.Context, owner string) ([]*Position, error)

	// ListPositionsByMint 市场全部存续持仓 (风险索引重扫用)
	ListPositionsByMint(ctx context.Context, mint string) ([]*Position, error)

	// GetInsuranceFund 不存在返回 (nil, nil)
	GetInsuranceFund(ctx context.Context, mint string) (*InsuranceFund, error)

	SaveInsuranceFund(ctx context.Context, f *InsuranceFund) error

	// GetOrderBook 不存在返回 (nil, nil)
	GetOrderBook(ctx context.Context, mint string) (*OrderBook, error)

	SaveOrderBook(ctx context.Context, b *OrderBook) error
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
	return r.db.AutoMigrate(&Market{}, &MarginAccount{}, &Position{}, &InsuranceFund{}, &OrderBookRecord{})
}

func (r *MySQLRepository) CreateMarket(ctx context.Context, m *Market) error {
	now := time.Now().UnixMilli()
	m.CreatedAt = now
	m.UpdatedAt = now

	var count int64
	if err := r.db.WithContext(ctx).Model(&Market{}).
		Where("mint = ?", m.Mint).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrMarketExists
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MySQLRepository) GetMarket(ctx context.Context, mint string) (*Market, error) {
	var m Market
	err := r.db.WithContext(ctx).Where("mint = ?", mint).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MySQLRepository) UpdateMarket(ctx context.Context, m *Market) error {
	m.UpdatedAt = time.Now().UnixMilli()
	result := r.db.WithContext(ctx).
		Model(&Market{}).
		Where("mint = ?", m.Mint).
		Select("mark_price", "index_price", "long_oi", "short_oi",
			"cum_funding_long", "cum_funding_short", "last_funding_time",
			"paused", "updated_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMarketNotFound
	}
	return nil
}

func (r *MySQLRepository) GetMarginAccount(ctx context.Context, owner string) (*MarginAccount, error) {
	var a MarginAccount
	err := r.db.WithContext(ctx).Where("owner = ?", owner).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *MySQLRepository) SaveMarginAccount(ctx context.Context, a *MarginAccount) error {
	now := time.Now().UnixMilli()
	a.UpdatedAt = now
	if a.ID == 0 {
		a.CreatedAt = now
		return r.db.WithContext(ctx).Create(a).Error
	}
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *MySQLRepository) CreatePosition(ctx context.Context, p *Position) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *MySQLRepository) GetPosition(ctx context.Context, id int64) (*Position, error) {
	var p Position
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MySQLRepository) UpdatePosition(ctx context.Context, p *Position) error {
	p.UpdatedAt = time.Now().UnixMilli()
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *MySQLRepository) DeletePosition(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&Position{}, "id = ?", id).Error
}

func (r *MySQLRepository) ListPositionsByOwner(ctx context.Context, owner string) ([]*Position, error) {
	var ps []*Position
	err := r.db.WithContext(ctx).
		Where("owner = ? AND size > 0", owner).
		Find(&ps).Error
	return ps, err
}

func (r *MySQLRepository) ListPositionsByMint(ctx context.Context, mint string) ([]*Position, error) {
	var ps []*Position
	err := r.db.WithContext(ctx).
		Where("mint = ? AND size > 0", mint).
		Find(&ps).Error
	return ps, err
}

func (r *MySQLRepository) GetInsuranceFund(ctx context.Context, mint string) (*InsuranceFund, error) {
	var f InsuranceFund
	err := r.db.WithContext(ctx).Where("mint = ?", mint).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *MySQLRepository) SaveInsuranceFund(ctx context.Context, f *InsuranceFund) error {
	f.UpdatedAt = time.Now().UnixMilli()
	if f.ID == 0 {
		return r.db.WithContext(ctx).Create(f).Error
	}
	return r.db.WithContext(ctx).Save(f).Error
}

func (r *MySQLRepository) GetOrderBook(ctx context.Context, mint string) (*OrderBook, error) {
	var rec OrderBookRecord
	err := r.db.WithContext(ctx).Where("mint = ?", mint).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Restore()
}

func (r *MySQLRepository) SaveOrderBook(ctx context.Context, b *OrderBook) error {
	rec, err := b.Record()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	rec.UpdatedAt = now

	var existing OrderBookRecord
	err = r.db.WithContext(ctx).Select("id", "created_at").
		Where("mint = ?", b.Mint).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec.CreatedAt = now
		return r.db.WithContext(ctx).Create(rec).Error
	}
	if err != nil {
		return err
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(rec).Error
}

// =============================================================================
// 内存实现 (测试/模拟)
// =============================================================================

var _ Repository = (*MemoryRepository)(nil)

type MemoryRepository struct {
	mu        sync.RWMutex
	markets   map[string]*Market
	margins   map[string]*MarginAccount
	positions map[int64]*Position
	funds     map[string]*InsuranceFund
	books     map[string]*OrderBookRecord
	nextID    uint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		markets:   make(map[string]*Market),
		margins:   make(map[string]*MarginAccount),
		positions: make(map[int64]*Position),
		funds:     make(map[string]*InsuranceFund),
		books:     make(map[string]*OrderBookRecord),
	}
}

func (r *MemoryRepository) CreateMarket(ctx context.Context, m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.Mint]; ok {
		return ErrMarketExists
	}
	now := time.Now().UnixMilli()
	cp := *m
	r.nextID++
	cp.ID = r.nextID
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.markets[m.Mint] = &cp
	return nil
}

func (r *MemoryRepository) GetMarket(ctx context.Context, mint string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[mint]
	if !ok {
		return nil, ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) UpdateMarket(ctx context.Context, m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.Mint]; !ok {
		return ErrMarketNotFound
	}
	cp := *m
	cp.UpdatedAt = time.Now().UnixMilli()
	r.markets[m.Mint] = &cp
	return nil
}

func (r *MemoryRepository) GetMarginAccount(ctx context.Context, owner string) (*MarginAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.margins[owner]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) SaveMarginAccount(ctx context.Context, a *MarginAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	if cp.ID == 0 {
		r.nextID++
		cp.ID = r.nextID
		cp.CreatedAt = time.Now().UnixMilli()
	}
	cp.UpdatedAt = time.Now().UnixMilli()
	r.margins[cp.Owner] = &cp
	a.ID = cp.ID
	return nil
}

func (r *MemoryRepository) CreatePosition(ctx context.Context, p *Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.positions[cp.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetPosition(ctx context.Context, id int64) (*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) UpdatePosition(ctx context.Context, p *Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[p.ID]; !ok {
		return ErrPositionNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now().UnixMilli()
	r.positions[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeletePosition(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.positions, id)
	return nil
}

func (r *MemoryRepository) ListPositionsByOwner(ctx context.Context, owner string) ([]*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Position
	for _, p := range r.positions {
		if p.Owner == owner && p.Size > 0 {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListPositionsByMint(ctx context.Context, mint string) ([]*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Position
	for _, p := range r.positions {
		if p.Mint == mint && p.Size > 0 {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetInsuranceFund(ctx context.Context, mint string) (*InsuranceFund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funds[mint]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (r *MemoryRepository) SaveInsuranceFund(ctx context.Context, f *InsuranceFund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	if cp.ID == 0 {
		r.nextID++
		cp.ID = r.nextID
	}
	cp.UpdatedAt = time.Now().UnixMilli()
	r.funds[cp.Mint] = &cp
	f.ID = cp.ID
	return nil
}

// GetOrderBook 经编码记录往返，天然深拷贝
func (r *MemoryRepository) GetOrderBook(ctx context.Context, mint string) (*OrderBook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.books[mint]
	if !ok {
		return nil, nil
	}
	return rec.Restore()
}

func (r *MemoryRepository) SaveOrderBook(ctx context.Context, b *OrderBook) error {
	rec, err := b.Record()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.UpdatedAt = time.Now().UnixMilli()
	r.books[b.Mint] = rec
	return nil
}
