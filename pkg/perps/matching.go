// 文件: pkg/perps/matching.go
// 挂单 / 撤单 / 撮合摇柄
//
// 【撮合规则】
// 1. 反复取最优买与最优卖，只要交叉就撮合
// 2. 成交价取先挂那一方 (resting) 的价格；对手是市价单时取限价方价格
// 3. 同一用户自成交: 摘掉后挂的那一单，不成交
// 4. 每笔成交更新标记价格并追加一个 TWAP 样本
// 5. 整轮零成交返回 ErrNoOrdersToMatch，轮询方据此停手
// 6. 簿面每次变动落回仓储，重启后挂单与订单号序列接续

package perps

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
)

// PlaceOrder 挂单，Price = 0 表示市价单
func (e *Engine) PlaceOrder(ctx context.Context, owner, mint string, side Side, price, size uint64) (*Order, error) {
	if size == 0 {
		return nil, ErrZeroAmount
	}
	if side != SideLong && side != SideShort {
		return nil, ErrInvalidSide
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.repo.GetMarket(ctx, mint)
	if err != nil {
		return nil, err
	}
	if m.Paused {
		return nil, ErrMarketPaused
	}

	b, err := e.loadBook(ctx, mint)
	if err != nil {
		return nil, err
	}
	o := &Order{
		ID:        b.NextOrderID,
		Owner:     owner,
		Side:      side,
		Price:     price,
		Size:      size,
		Remaining: size,
		PlacedAt:  e.clock(),
	}
	b.NextOrderID++
	b.Insert(o)
	if err := e.repo.SaveOrderBook(ctx, b); err != nil {
		b.Remove(o.ID)
		b.NextOrderID--
		return nil, err
	}

	e.emitter.Emit(events.New(events.KindOrderPlaced, mint, events.OrderPlaced{
		Mint:    mint,
		Owner:   owner,
		OrderID: o.ID,
		Side:    side.String(),
		Price:   price,
		Size:    size,
	}))
	return o, nil
}

// CancelOrder 撤单，只有挂单人可撤
func (e *Engine) CancelOrder(ctx context.Context, owner, mint string, orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.loadBook(ctx, mint)
	if err != nil {
		return err
	}
	o := findOrder(b, orderID)
	if o == nil {
		return ErrOrderNotFound
	}
	if o.Owner != owner {
		return ErrUnauthorized
	}
	b.Remove(orderID)
	if err := e.repo.SaveOrderBook(ctx, b); err != nil {
		b.Insert(o)
		return err
	}

	e.emitter.Emit(events.New(events.KindOrderCancelled, mint, events.OrderCancelled{
		Mint:    mint,
		Owner:   owner,
		OrderID: orderID,
	}))
	return nil
}

// MatchOrders 撮合摇柄，任何人可调
func (e *Engine) MatchOrders(ctx context.Context, mint string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.repo.GetMarket(ctx, mint)
	if err != nil {
		return 0, err
	}
	if m.Paused {
		return 0, ErrMarketPaused
	}
	b, err := e.loadBook(ctx, mint)
	if err != nil {
		return 0, err
	}

	fills, removed := 0, 0
	now := e.clock()
	for {
		bid, ask := b.BestBid(), b.BestAsk()
		if bid == nil || ask == nil || !crosses(bid, ask) {
			break
		}

		// 自成交: 摘后挂的那一单，不成交
		// 摘单也算推进了状态，不触发零成交错误
		if bid.Owner == ask.Owner {
			if bid.ID > ask.ID {
				b.popBestBid()
			} else {
				b.popBestAsk()
			}
			removed++
			continue
		}

		price := fillPrice(bid, ask, m.MarkPrice)
		if price == 0 {
			// 双边市价单且市场还没有标记价格，无法定价
			break
		}

		size := bid.Remaining
		if ask.Remaining < size {
			size = ask.Remaining
		}
		bid.Remaining -= size
		ask.Remaining -= size
		if bid.Remaining == 0 {
			b.popBestBid()
		}
		if ask.Remaining == 0 {
			b.popBestAsk()
		}

		m.MarkPrice = price
		e.ensureTwap(mint).Push(price, now)
		fills++

		e.emitter.Emit(events.New(events.KindOrderMatched, mint, events.OrderMatched{
			Mint:       mint,
			BidOrderID: bid.ID,
			AskOrderID: ask.ID,
			Price:      price,
			Size:       size,
		}))
	}

	if fills == 0 && removed == 0 {
		return 0, ErrNoOrdersToMatch
	}
	if err := e.repo.SaveOrderBook(ctx, b); err != nil {
		return fills, err
	}
	if fills == 0 {
		return 0, nil
	}
	if err := e.repo.UpdateMarket(ctx, m); err != nil {
		return fills, err
	}
	e.cacheMarkPrice(ctx, mint, m.MarkPrice)
	log.Printf("[Perps] Matched %d fills: mint=%s, mark=%d", fills, mint, m.MarkPrice)
	return fills, nil
}

// Twap 窗口均价读数
func (e *Engine) Twap(mint string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.twaps[mint]
	if !ok {
		return 0
	}
	return r.Average()
}

// =============================================================================
// 内部辅助
// =============================================================================

// fillPrice 先挂方定价；先挂方是市价单时取对手价，双边市价取标记价
func fillPrice(bid, ask *Order, mark uint64) uint64 {
	resting, other := bid, ask
	if ask.ID < bid.ID {
		resting, other = ask, bid
	}
	if !resting.IsMarket() {
		return resting.Price
	}
	if !other.IsMarket() {
		return other.Price
	}
	return mark
}

// loadBook 内存未命中时从仓储还原，尚无记录则新建空簿
// 重启后 resting 挂单与订单号序列都从仓储接续
func (e *Engine) loadBook(ctx context.Context, mint string) (*OrderBook, error) {
	if b, ok := e.books[mint]; ok {
		return b, nil
	}
	b, err := e.repo.GetOrderBook(ctx, mint)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = NewOrderBook(mint)
	}
	e.books[mint] = b
	return b, nil
}

func (e *Engine) ensureTwap(mint string) *TwapRing {
	r, ok := e.twaps[mint]
	if !ok {
		r = NewTwapRing(TwapWindow)
		e.twaps[mint] = r
	}
	return r
}

func findOrder(b *OrderBook, id uint64) *Order {
	for _, o := range b.Bids {
		if o.ID == id {
			return o
		}
	}
	for _, o := range b.Asks {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// cacheMarkPrice 标记价格写进 Redis (尽力而为，失败只打日志)
func (e *Engine) cacheMarkPrice(ctx context.Context, mint string, price uint64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, mint, price); err != nil {
		log.Printf("[Perps] mark price cache write failed: mint=%s, err=%v", mint, err)
	}
}
