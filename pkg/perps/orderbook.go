// 文件: pkg/perps/orderbook.go
// 限价订单簿 - 插入排序维护价优先、同价时间优先
//
// 【排序约定】
// Bids 价格降序 (最优买价在头部)，Asks 价格升序 (最优卖价在头部)
// 市价单 Price = 0: 买侧视为无穷大价格排到头部，卖侧 0 天然最小
// 同价位先挂先优先，插入点取同价区间末尾

package perps

import (
	"encoding/json"
	"math"
)

// Order 挂单
type Order struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Side      Side   `json:"side"`
	Price     uint64 `json:"price"` // 0 = 市价单
	Size      uint64 `json:"size"`
	Remaining uint64 `json:"remaining"`
	PlacedAt  int64  `json:"placed_at"`
}

// IsMarket 是否市价单
func (o *Order) IsMarket() bool {
	return o.Price == 0
}

// OrderBook 单市场订单簿
// 并发保护在 Engine 层，这里是纯数据结构
type OrderBook struct {
	Mint        string
	Bids        []*Order
	Asks        []*Order
	NextOrderID uint64
}

func NewOrderBook(mint string) *OrderBook {
	return &OrderBook{Mint: mint, NextOrderID: 1}
}

// bidKey 买侧排序键，市价单置顶
func bidKey(o *Order) uint64 {
	if o.Price == 0 {
		return math.MaxUint64
	}
	return o.Price
}

// Insert 按排序约定插入挂单
func (b *OrderBook) Insert(o *Order) {
	if o.Side == SideLong {
		i := 0
		for i < len(b.Bids) && bidKey(b.Bids[i]) >= bidKey(o) {
			i++
		}
		b.Bids = append(b.Bids, nil)
		copy(b.Bids[i+1:], b.Bids[i:])
		b.Bids[i] = o
		return
	}
	i := 0
	for i < len(b.Asks) && b.Asks[i].Price <= o.Price {
		i++
	}
	b.Asks = append(b.Asks, nil)
	copy(b.Asks[i+1:], b.Asks[i:])
	b.Asks[i] = o
}

// Remove 按 ID 摘单
func (b *OrderBook) Remove(id uint64) (*Order, bool) {
	for i, o := range b.Bids {
		if o.ID == id {
			b.Bids = append(b.Bids[:i], b.Bids[i+1:]...)
			return o, true
		}
	}
	for i, o := range b.Asks {
		if o.ID == id {
			b.Asks = append(b.Asks[:i], b.Asks[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

// BestBid 最优买单，空簿返回 nil
func (b *OrderBook) BestBid() *Order {
	if len(b.Bids) == 0 {
		return nil
	}
	return b.Bids[0]
}

// BestAsk 最优卖单
func (b *OrderBook) BestAsk() *Order {
	if len(b.Asks) == 0 {
		return nil
	}
	return b.Asks[0]
}

// popBestBid 摘掉头部买单
func (b *OrderBook) popBestBid() {
	b.Bids = b.Bids[1:]
}

func (b *OrderBook) popBestAsk() {
	b.Asks = b.Asks[1:]
}

// crosses 买卖是否交叉 (任一侧市价单必然交叉)
func crosses(bid, ask *Order) bool {
	if bid.IsMarket() || ask.IsMarket() {
		return true
	}
	return bid.Price >= ask.Price
}

// =============================================================================
// 持久化
// =============================================================================

// OrderBookRecord 订单簿持久化形态
// 挂单是引擎状态不是缓存: 重启后 resting 挂单要还在，订单号要接着发
type OrderBookRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Mint    string `gorm:"column:mint;type:varchar(64);uniqueIndex"`

	Bids        []byte `gorm:"column:bids;type:mediumblob"` // JSON 序列化的 []*Order
	Asks        []byte `gorm:"column:asks;type:mediumblob"`
	NextOrderID uint64 `gorm:"column:next_order_id"`

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (OrderBookRecord) TableName() string {
	return "order_books"
}

// Record 编码成持久化记录
func (b *OrderBook) Record() (*OrderBookRecord, error) {
	bids, err := json.Marshal(b.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := json.Marshal(b.Asks)
	if err != nil {
		return nil, err
	}
	return &OrderBookRecord{
		Address:     OrderBookAddress(b.Mint).String(),
		Mint:        b.Mint,
		Bids:        bids,
		Asks:        asks,
		NextOrderID: b.NextOrderID,
	}, nil
}

// Restore 从持久化记录还原内存簿
func (r *OrderBookRecord) Restore() (*OrderBook, error) {
	b := &OrderBook{Mint: r.Mint, NextOrderID: r.NextOrderID}
	if len(r.Bids) > 0 {
		if err := json.Unmarshal(r.Bids, &b.Bids); err != nil {
			return nil, err
		}
	}
	if len(r.Asks) > 0 {
		if err := json.Unmarshal(r.Asks, &b.Asks); err != nil {
			return nil, err
		}
	}
	if b.NextOrderID == 0 {
		b.NextOrderID = 1
	}
	return b, nil
}
