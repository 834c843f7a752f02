// 文件: pkg/perps/model.go
// 永续合约数据结构
//
// 【记录清单】
// - Market:        每个发射代币一个合约市场
// - MarginAccount: 全仓保证金账户，每用户一个，跨所有市场共享
// - Position:      杠杆持仓，Size > 0 表示仍然存续
// - InsuranceFund: 每市场一个保险基金
// - Order/OrderBook 见 orderbook.go
//
// 【存储策略】同 pkg/launch: MySQL 主存储 + Redis 标记价格缓存 + 内存实现

package perps

import (
	"moonpad.com/pkg/keys"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// Precision 价格/费率定点尺度
	Precision = 1_000_000

	// MaxFundingRate 单次资金费率上限 (Precision 的千分之一 = 0.1%)
	MaxFundingRate = 1000

	// PriceBandBps 熔断价格带: 成交价偏离指数价超过 10% 拒绝
	PriceBandBps = 1000

	// MaxLeverageCap 全局杠杆上限
	MaxLeverageCap = 20

	// BpsDenominator 万分比分母
	BpsDenominator = 10_000

	// TwapWindow 标记价格 TWAP 环形窗口大小
	TwapWindow = 24
)

// =============================================================================
// 持仓方向
// =============================================================================

type Side int8

const (
	SideLong  Side = 1  // 多头
	SideShort Side = -1 // 空头
)

func (s Side) String() string {
	if s == SideLong {
		return "LONG"
	}
	return "SHORT"
}

// =============================================================================
// Market - 合约市场
// =============================================================================

// Market 每个发射代币一个永续市场
//
// 【资金费累计器】
// CumFundingLong / CumFundingShort 始终等量反向移动，
// 两者之和恒为 0，一个撮合完全的账本上全体持仓结算净额为零
type Market struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Mint    string `gorm:"column:mint;type:varchar(64);uniqueIndex"`

	// ===== 风控参数 =====
	MaxLeverage          uint8  `gorm:"column:max_leverage"`           // ≤ 20
	MaintenanceMarginBps uint16 `gorm:"column:maintenance_margin_bps"` // 维持保证金率
	LiquidationFeeBps    uint16 `gorm:"column:liquidation_fee_bps"`
	MakerFeeBps          uint16 `gorm:"column:maker_fee_bps"`
	TakerFeeBps          uint16 `gorm:"column:taker_fee_bps"`
	FundingInterval      int64  `gorm:"column:funding_interval"` // 毫秒
	MaxOpenInterest      uint64 `gorm:"column:max_open_interest"`
	MaxPositionSize      uint64 `gorm:"column:max_position_size"`

	// ===== 行情状态 =====
	MarkPrice  uint64 `gorm:"column:mark_price"`  // 最新成交价
	IndexPrice uint64 `gorm:"column:index_price"` // 预言机指数价，0 = 未喂价

	// ===== 持仓量 =====
	LongOI  uint64 `gorm:"column:long_oi"`
	ShortOI uint64 `gorm:"column:short_oi"`

	// ===== 资金费 =====
	CumFundingLong  int64 `gorm:"column:cum_funding_long"`
	CumFundingShort int64 `gorm:"column:cum_funding_short"`
	LastFundingTime int64 `gorm:"column:last_funding_time"`

	Paused    bool  `gorm:"column:paused"`
	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (Market) TableName() string {
	return "perp_markets"
}

// CumFunding 取某方向的资金费累计器
func (m *Market) CumFunding(side Side) int64 {
	if side == SideLong {
		return m.CumFundingLong
	}
	return m.CumFundingShort
}

// =============================================================================
// MarginAccount - 全仓保证金账户
// =============================================================================

// MarginAccount 每用户一个，所有市场的持仓共享这一笔抵押
// Collateral 是尚未被持仓占用的可用余额，
// 开仓时划出、平仓时归还
type MarginAccount struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Owner   string `gorm:"column:owner;type:varchar(64);uniqueIndex"`

	Collateral    uint64 `gorm:"column:collateral"`
	OpenPositions uint32 `gorm:"column:open_positions"`
	RealizedPnL   int64  `gorm:"column:realized_pnl"`

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (MarginAccount) TableName() string {
	return "perp_margin_accounts"
}

// =============================================================================
// Position - 杠杆持仓
// =============================================================================

// Position 用户在某市场的持仓
//
// LastCumFunding 是开仓/上次结算时刻该方向累计器的快照，
// 资金费结算量 = Size·(当前累计器 − 快照)/Precision
type Position struct {
	ID    int64  `gorm:"primaryKey"` // 雪花 ID
	Owner string `gorm:"column:owner;type:varchar(64);index"`
	Mint  string `gorm:"column:mint;type:varchar(64);index"`

	Side       Side   `gorm:"column:side"`
	Size       uint64 `gorm:"column:size"`
	EntryPrice uint64 `gorm:"column:entry_price"` // 开仓均价
	Collateral uint64 `gorm:"column:collateral"`  // 占用保证金
	Leverage   uint8  `gorm:"column:leverage"`

	LastCumFunding int64 `gorm:"column:last_cum_funding"`

	OpenedAt  int64 `gorm:"column:opened_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (Position) TableName() string {
	return "perp_positions"
}

// =============================================================================
// InsuranceFund - 保险基金
// =============================================================================

// InsuranceFund 每市场一个
//
// 【资金来源】开仓吃单费全额注入
// 【支出】强平穿仓兜底，封顶在当前余额
// Uncovered 记录基金耗尽后放弃的缺口 (未做损失社会化，见 DESIGN.md)
type InsuranceFund struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Mint    string `gorm:"column:mint;type:varchar(64);uniqueIndex"`

	Balance       uint64 `gorm:"column:balance"`
	TotalDeposits uint64 `gorm:"column:total_deposits"`
	TotalPayouts  uint64 `gorm:"column:total_payouts"`
	Uncovered     uint64 `gorm:"column:uncovered"`

	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (InsuranceFund) TableName() string {
	return "perp_insurance_funds"
}

// =============================================================================
// 地址推导
// =============================================================================

func MarketAddress(mint string) keys.Address {
	return keys.Derive(keys.TagPerpMarket, []byte(mint))
}

func OrderBookAddress(mint string) keys.Address {
	return keys.Derive(keys.TagOrderBook, []byte(mint))
}

func MarginAddress(owner string) keys.Address {
	return keys.Derive(keys.TagMargin, []byte(owner))
}

func InsuranceFundAddress(mint string) keys.Address {
	return keys.Derive(keys.TagInsuranceFund, []byte(mint))
}

// CollateralVaultAddress 全仓抵押金库，所有市场共用一个
func CollateralVaultAddress() keys.Address {
	return keys.Derive(keys.TagPerpVault, []byte("collateral"))
}
