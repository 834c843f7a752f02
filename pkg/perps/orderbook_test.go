// 文件: pkg/perps/orderbook_test.go
// 订单簿与撮合摇柄测试

package perps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonpad.com/pkg/events"
)

// checkSorted 买侧非增、卖侧非减 (市价单按排序键处理)
func checkSorted(t *testing.T, b *OrderBook) {
	t.Helper()
	for i := 1; i < len(b.Bids); i++ {
		assert.GreaterOrEqual(t, bidKey(b.Bids[i-1]), bidKey(b.Bids[i]),
			"bids out of order at %d", i)
	}
	for i := 1; i < len(b.Asks); i++ {
		assert.LessOrEqual(t, b.Asks[i-1].Price, b.Asks[i].Price,
			"asks out of order at %d", i)
	}
}

func TestOrderBookInsertSorted(t *testing.T) {
	b := NewOrderBook("m")
	prices := []uint64{1_000_000, 3_000_000, 2_000_000, 2_000_000, 500_000}
	for i, p := range prices {
		b.Insert(&Order{ID: uint64(i + 1), Side: SideLong, Price: p, Remaining: 10})
		b.Insert(&Order{ID: uint64(i + 100), Side: SideShort, Price: p, Remaining: 10})
	}
	checkSorted(t, b)

	assert.Equal(t, uint64(3_000_000), b.BestBid().Price)
	assert.Equal(t, uint64(500_000), b.BestAsk().Price)

	// 同价先到优先: 两个 2_000_000 买单里 ID 小的排前面
	var first uint64
	for _, o := range b.Bids {
		if o.Price == 2_000_000 {
			first = o.ID
			break
		}
	}
	assert.Equal(t, uint64(3), first)
}

func TestOrderBookMarketOrderPriority(t *testing.T) {
	b := NewOrderBook("m")
	b.Insert(&Order{ID: 1, Side: SideLong, Price: 3_000_000, Remaining: 10})
	b.Insert(&Order{ID: 2, Side: SideLong, Price: 0, Remaining: 10}) // 市价买
	b.Insert(&Order{ID: 3, Side: SideShort, Price: 1_000_000, Remaining: 10})
	b.Insert(&Order{ID: 4, Side: SideShort, Price: 0, Remaining: 10}) // 市价卖

	assert.Equal(t, uint64(2), b.BestBid().ID)
	assert.Equal(t, uint64(4), b.BestAsk().ID)
	checkSorted(t, b)
}

func TestOrderBookRemove(t *testing.T) {
	b := NewOrderBook("m")
	b.Insert(&Order{ID: 1, Side: SideLong, Price: 1_000_000, Remaining: 10})
	b.Insert(&Order{ID: 2, Side: SideShort, Price: 2_000_000, Remaining: 10})

	o, ok := b.Remove(2)
	require.True(t, ok)
	assert.Equal(t, uint64(2), o.ID)
	assert.Empty(t, b.Asks)

	_, ok = b.Remove(99)
	assert.False(t, ok)
}

// =============================================================================
// 撮合摇柄
// =============================================================================

func TestMatchOrdersFillAtRestingPrice(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	// 先挂买 1.05，后挂卖 1.00 → 交叉，按先挂的买价成交
	_, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_050_000, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 1_000_000, 100)
	require.NoError(t, err)

	fills, err := h.engine.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, 1, fills)

	m, err := h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_050_000), m.MarkPrice)
	assert.Equal(t, uint64(1_050_000), h.engine.Twap("mintP"))

	matched := h.emitter.ByKind(events.KindOrderMatched)
	require.Len(t, matched, 1)
	payload := matched[0].Payload.(events.OrderMatched)
	assert.Equal(t, uint64(100), payload.Size)
}

func TestMatchOrdersNoCross(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	_, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 900_000, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 1_000_000, 100)
	require.NoError(t, err)

	_, err = h.engine.MatchOrders(ctx, "mintP")
	assert.ErrorIs(t, err, ErrNoOrdersToMatch)

	// 挂单原样还在
	bids, asks, err := h.engine.Book("mintP")
	require.NoError(t, err)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 1)
}

// TestMatchOrdersSelfTrade 同一用户交叉: 摘后挂的那单，不成交
func TestMatchOrdersSelfTrade(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	bid, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_100_000, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "alice", "mintP", SideShort, 1_000_000, 100)
	require.NoError(t, err)

	// 摘单算推进，零成交但不算空转
	fills, err := h.engine.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Zero(t, fills)

	bids, asks, err := h.engine.Book("mintP")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ID, bids[0].ID) // 先挂的买单保留
	assert.Empty(t, asks)               // 后挂的卖单被摘掉
}

func TestMatchOrdersPartialFill(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	_, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_000_000, 150)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 1_000_000, 100)
	require.NoError(t, err)

	fills, err := h.engine.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, 1, fills)

	bids, asks, err := h.engine.Book("mintP")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(50), bids[0].Remaining)
	assert.Empty(t, asks)
}

// TestMatchOrdersMarketOrder 市价卖吃掉挂着的限价买，按限价方定价
func TestMatchOrdersMarketOrder(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	_, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_200_000, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 0, 100)
	require.NoError(t, err)

	fills, err := h.engine.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, 1, fills)

	m, err := h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_200_000), m.MarkPrice)
}

// TestMatchOrdersSweep 一张大卖单连吃多档买单，簿保持有序
func TestMatchOrdersSweep(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	_, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_200_000, 50)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "carol", "mintP", SideLong, 1_100_000, 50)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "dave", "mintP", SideLong, 900_000, 50)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 1_000_000, 120)
	require.NoError(t, err)

	fills, err := h.engine.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, 2, fills)

	bids, asks, err := h.engine.Book("mintP")
	require.NoError(t, err)
	// 0.9 的买单不交叉留下；卖单吃掉 100 后剩 20 挂着
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(900_000), bids[0].Price)
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(20), asks[0].Remaining)

	b, err := h.engine.book("mintP")
	require.NoError(t, err)
	checkSorted(t, b)
}

// TestOrderBookSurvivesRestart 挂单是引擎状态:
// 换一个引擎实例挂同一仓储，resting 挂单还在、订单号接续、可撤可撮合
func TestOrderBookSurvivesRestart(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	bid, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 900_000, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceOrder(ctx, "bob", "mintP", SideShort, 1_100_000, 50)
	require.NoError(t, err)

	// "重启": 新引擎，同仓储
	restarted := NewEngine(h.repo, h.ledger, h.emitter)
	restarted.SetClock(func() int64 { return h.now })

	o, err := restarted.PlaceOrder(ctx, "carol", "mintP", SideShort, 1_200_000, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), o.ID) // 序列不回卷

	bids, asks, err := restarted.Book("mintP")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ID, bids[0].ID)
	require.Len(t, asks, 2)

	// 重启前的挂单照常撤单
	require.NoError(t, restarted.CancelOrder(ctx, "alice", "mintP", bid.ID))

	// 交叉后照常撮合
	_, err = restarted.PlaceOrder(ctx, "dave", "mintP", SideLong, 1_100_000, 50)
	require.NoError(t, err)
	fills, err := restarted.MatchOrders(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, 1, fills)
}

func TestCancelOrder(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()

	o, err := h.engine.PlaceOrder(ctx, "alice", "mintP", SideLong, 1_000_000, 100)
	require.NoError(t, err)

	// 别人撤不动
	err = h.engine.CancelOrder(ctx, "mallory", "mintP", o.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, h.engine.CancelOrder(ctx, "alice", "mintP", o.ID))
	err = h.engine.CancelOrder(ctx, "alice", "mintP", o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
