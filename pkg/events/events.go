// 文件: pkg/events/events.go
// 结构化事件定义
//
// 每个变更操作对外唯一的旁路输出就是事件，
// 除成功/失败外不向调用方返回任何结果

package events

import (
	"time"

	"moonpad.com/pkg/ids"
)

// Kind 事件类型
type Kind string

const (
	KindTokenCreated  Kind = "token.created"
	KindTokenBought   Kind = "token.bought"
	KindTokenSold     Kind = "token.sold"
	KindTokenStaked   Kind = "token.staked"
	KindTokenUnstaked Kind = "token.unstaked"

	KindMarketCreated       Kind = "perp.market.created"
	KindPositionOpened      Kind = "perp.position.opened"
	KindPositionClosed      Kind = "perp.position.closed"
	KindPositionLiquidated  Kind = "perp.position.liquidated"
	KindOrderPlaced         Kind = "perp.order.placed"
	KindOrderCancelled      Kind = "perp.order.cancelled"
	KindOrderMatched        Kind = "perp.order.matched"
	KindFundingRateUpdated  Kind = "perp.funding.updated"
	KindCollateralDeposited Kind = "perp.collateral.deposited"
	KindCollateralWithdrawn Kind = "perp.collateral.withdrawn"
)

// Event 事件信封
type Event struct {
	ID        int64  `json:"id"` // 雪花 ID
	Kind      Kind   `json:"kind"`
	Mint      string `json:"mint,omitempty"` // 分区 key
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// New 构造事件
func New(kind Kind, mint string, payload any) Event {
	return Event{
		ID:        ids.Next(),
		Kind:      kind,
		Mint:      mint,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// =============================================================================
// 负载定义
// =============================================================================

type TokenCreated struct {
	Mint          string `json:"mint"`
	Creator       string `json:"creator"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	URI           string `json:"uri"`
	TotalSupply   uint64 `json:"total_supply"`
	CreatorFeeBps uint16 `json:"creator_fee_bps"`
}

type TokenBought struct {
	Mint      string `json:"mint"`
	Buyer     string `json:"buyer"`
	SolAmount uint64 `json:"sol_amount"`
	TokensOut uint64 `json:"tokens_out"`
	Price     uint64 `json:"price"`
}

type TokenSold struct {
	Mint        string `json:"mint"`
	Seller      string `json:"seller"`
	TokenAmount uint64 `json:"token_amount"`
	SolOut      uint64 `json:"sol_out"`
	Price       uint64 `json:"price"`
}

type TokenStaked struct {
	Mint   string `json:"mint"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type TokenUnstaked struct {
	Mint   string `json:"mint"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type MarketCreated struct {
	Mint        string `json:"mint"`
	MaxLeverage uint8  `json:"max_leverage"`
}

type PositionOpened struct {
	Mint       string `json:"mint"`
	Owner      string `json:"owner"`
	PositionID int64  `json:"position_id"`
	Side       string `json:"side"`
	Size       uint64 `json:"size"`
	EntryPrice uint64 `json:"entry_price"`
	Leverage   uint8  `json:"leverage"`
	Collateral uint64 `json:"collateral"`
}

type PositionClosed struct {
	Mint       string `json:"mint"`
	Owner      string `json:"owner"`
	PositionID int64  `json:"position_id"`
	ExitPrice  uint64 `json:"exit_price"`
	PnL        int64  `json:"pnl"`
	Funding    int64  `json:"funding"`
	Returned   uint64 `json:"returned"`
}

type PositionLiquidated struct {
	Mint           string `json:"mint"`
	Owner          string `json:"owner"`
	Liquidator     string `json:"liquidator"`
	PositionID     int64  `json:"position_id"`
	LiquidatedSize uint64 `json:"liquidated_size"`
	MarkPrice      uint64 `json:"mark_price"`
	InsuranceUsed  uint64 `json:"insurance_used"`
	Uncovered      uint64 `json:"uncovered"`
}

type OrderPlaced struct {
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	OrderID uint64 `json:"order_id"`
	Side    string `json:"side"`
	Price   uint64 `json:"price"`
	Size    uint64 `json:"size"`
}

type OrderCancelled struct {
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	OrderID uint64 `json:"order_id"`
}

type OrderMatched struct {
	Mint       string `json:"mint"`
	BidOrderID uint64 `json:"bid_order_id"`
	AskOrderID uint64 `json:"ask_order_id"`
	Price      uint64 `json:"price"`
	Size       uint64 `json:"size"`
}

type FundingRateUpdated struct {
	Mint            string `json:"mint"`
	Rate            int64  `json:"rate"`
	CumFundingLong  int64  `json:"cum_funding_long"`
	CumFundingShort int64  `json:"cum_funding_short"`
}

type CollateralChanged struct {
	Owner      string `json:"owner"`
	Amount     uint64 `json:"amount"`
	Collateral uint64 `json:"collateral"`
}
