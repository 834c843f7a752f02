// 文件: pkg/vault/model.go
// 资金库 - 核心数据模型
//
// 账户 = 链上记录的离链形态，地址由 pkg/keys 确定性派生
// 每次余额变动都落一条流水 (Journal)，审计可回放

package vault

import (
	"errors"

	"moonpad.com/pkg/keys"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// RentExemptMinimum 程序金库账户的最低保留余额
	// 低于这个值账户会被底层账本的租金机制回收，金库账户永远不允许跌破
	RentExemptMinimum = 890_880
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBelowMinBalance   = errors.New("balance would fall below minimum")
	ErrZeroAmount        = errors.New("zero amount")
	ErrMintMismatch      = errors.New("token mint mismatch")
)

// =============================================================================
// 账户
// =============================================================================

// AccountKind 账户类型
type AccountKind int8

const (
	KindBase  AccountKind = iota // 基础资产 (SOL 类)
	KindToken                    // 代币账户
)

func (k AccountKind) String() string {
	if k == KindBase {
		return "BASE"
	}
	return "TOKEN"
}

// Account 余额账户
//
// MinBalance > 0 的账户 (程序金库) 任何转出都不能让余额跌破该值
type Account struct {
	Address    string      `gorm:"column:address;type:varchar(64);primaryKey"`
	Kind       AccountKind `gorm:"column:kind"`
	Mint       string      `gorm:"column:mint;type:varchar(64);index"`  // 仅代币账户
	Owner      string      `gorm:"column:owner;type:varchar(64);index"` // 授权方地址
	Balance    uint64      `gorm:"column:balance"`
	MinBalance uint64      `gorm:"column:min_balance"`
	CreatedAt  int64       `gorm:"column:created_at"`
	UpdatedAt  int64       `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "vault_accounts"
}

// Addr 解析回 keys.Address
func (a *Account) Addr() keys.Address {
	addr, _ := keys.FromString(a.Address)
	return addr
}

// =============================================================================
// 流水
// =============================================================================

// JournalKind 流水类型
type JournalKind string

const (
	JournalTransfer JournalKind = "TRANSFER"
	JournalMint     JournalKind = "MINT"
	JournalBurn     JournalKind = "BURN"
)

// Journal 余额变动流水
// 一次转账落两条 (借方负、贷方正)，ID 用雪花算法
type Journal struct {
	ID           int64       `gorm:"column:id;primaryKey"`
	Account      string      `gorm:"column:account;type:varchar(64);index"`
	Counterparty string      `gorm:"column:counterparty;type:varchar(64)"`
	Kind         JournalKind `gorm:"column:kind;type:varchar(16)"`
	Delta        int64       `gorm:"column:delta"` // 正=入账，负=出账
	BalanceAfter uint64      `gorm:"column:balance_after"`
	Ref          string      `gorm:"column:ref;type:varchar(64)"` // 触发操作 (buy/sell/liquidate...)
	CreatedAt    int64       `gorm:"column:created_at;index"`
}

func (Journal) TableName() string {
	return "vault_journals"
}
