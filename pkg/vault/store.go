// 文件: pkg/vault/store.go
// 资金库持久化
//
// MySQLStore: 账户快照 + 流水写进同一个数据库事务
// MemoryStore: 测试/模拟用

package vault

import (
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// MySQLStore
// =============================================================================

// MySQLStore GORM 落账实现
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// AutoMigrate 建表
func (s *MySQLStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Account{}, &Journal{})
}

// Persist 同一事务写入账户快照和流水
func (s *MySQLStore) Persist(accounts []*Account, journals []*Journal) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, acc := range accounts {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "address"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"balance":    acc.Balance,
					"updated_at": acc.UpdatedAt,
				}),
			}).Create(acc).Error
			if err != nil {
				return err
			}
		}
		if len(journals) > 0 {
			if err := tx.Create(journals).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore 内存落账 (测试/模拟)
type MemoryStore struct {
	mu       sync.Mutex
	Accounts map[string]*Account
	Journals []*Journal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Accounts: make(map[string]*Account)}
}

func (s *MemoryStore) Persist(accounts []*Account, journals []*Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range accounts {
		cp := *acc
		s.Accounts[acc.Address] = &cp
	}
	s.Journals = append(s.Journals, journals...)
	return nil
}

// JournalCount 流水条数
func (s *MemoryStore) JournalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Journals)
}
