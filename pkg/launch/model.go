// 文件: pkg/launch/model.go
// 代币发射 - 数据模型
//
// TokenLaunch: 每个 mint 一条，持有曲线状态 (已售/储备/质押)
// UserPosition: 每个 (用户, mint) 一条，首次买入时惰性创建

package launch

import (
	"moonpad.com/pkg/keys"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// TotalSupply 固定总供应量: 1e15 最小单位 (6 位小数，10 亿枚)
	TotalSupply = 1_000_000_000_000_000

	// TokenDecimals 代币小数位
	TokenDecimals = 6

	// MaxNameLen / MaxSymbolLen / MaxURILen 元数据字符串字节上限
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200

	// MaxCreatorFeeBps 创建者费率上限 (5%)
	MaxCreatorFeeBps = 500
)

// =============================================================================
// TokenLaunch
// =============================================================================

// TokenLaunch 发射记录
//
// 【不变量】
// - TokensSold ≤ TotalSupply
// - Reserve = 历次买入净额之和 − 历次卖出毛额之和，永不为负
// - Migrated = true 后禁止一切买卖 (终态)
type TokenLaunch struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Creator string `gorm:"column:creator;type:varchar(64);index"`
	Mint    string `gorm:"column:mint;type:varchar(64);uniqueIndex"`

	Name   string `gorm:"column:name;type:varchar(32)"`
	Symbol string `gorm:"column:symbol;type:varchar(10)"`
	URI    string `gorm:"column:uri;type:varchar(200)"`

	CreatorFeeBps uint16 `gorm:"column:creator_fee_bps"` // ≤ 500

	TotalSupply uint64 `gorm:"column:total_supply"`
	TokensSold  uint64 `gorm:"column:tokens_sold"`
	TotalStaked uint64 `gorm:"column:total_staked"`
	Reserve     uint64 `gorm:"column:reserve"` // 基础资产储备 (净额)

	Migrated    bool   `gorm:"column:migrated"`
	TotalVolume uint64 `gorm:"column:total_volume"` // 饱和计数器

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (TokenLaunch) TableName() string {
	return "token_launches"
}

// Available 未售出库存
func (l *TokenLaunch) Available() uint64 {
	return l.TotalSupply - l.TokensSold
}

// =============================================================================
// UserPosition
// =============================================================================

// UserPosition 用户持仓账页 (展示/部分卖出用，饱和计数)
// Staked 同时是解押额度上限: 只能取回自己押进去的量
type UserPosition struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Owner   string `gorm:"column:owner;type:varchar(64);index"`
	Mint    string `gorm:"column:mint;type:varchar(64);index"`

	TokensBought uint64 `gorm:"column:tokens_bought"` // 净持有 (饱和)
	SolSpent     uint64 `gorm:"column:sol_spent"`     // 累计花费 (饱和)
	Staked       uint64 `gorm:"column:staked"`        // 本人质押在押量 (checked)

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (UserPosition) TableName() string {
	return "user_positions"
}

// =============================================================================
// 地址派生
// =============================================================================

// LaunchAddress 发射记录地址
func LaunchAddress(mint string) keys.Address {
	return keys.Derive(keys.TagLaunch, []byte(mint))
}

// ReserveVaultAddress 基础资产储备金库
func ReserveVaultAddress(mint string) keys.Address {
	return keys.Derive(keys.TagLaunchVault, []byte(mint), []byte("sol"))
}

// TokenVaultAddress 未售库存代币金库
func TokenVaultAddress(mint string) keys.Address {
	return keys.Derive(keys.TagLaunchVault, []byte(mint), []byte("token"))
}

// StakeVaultAddress 质押金库
func StakeVaultAddress(mint string) keys.Address {
	return keys.Derive(keys.TagStakeVault, []byte(mint))
}

// PositionAddress 用户持仓地址
func PositionAddress(owner, mint string) keys.Address {
	return keys.Derive(keys.TagUserPosition, []byte(owner), []byte(mint))
}

// WalletAddress 用户基础资产钱包
func WalletAddress(owner string) keys.Address {
	return keys.Derive(keys.TagWallet, []byte(owner))
}

// TokenAccountAddress 用户代币账户
func TokenAccountAddress(owner, mint string) keys.Address {
	return keys.Derive(keys.TagTokenAccount, []byte(mint), []byte(owner))
}
