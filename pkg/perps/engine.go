// 文件: pkg/perps/engine.go
// 永续合约引擎 - 市场生命周期与公共骨架
//
// 【调度模型】
// 每个公共操作是一次单线程、同步、原子的状态迁移，
// 内部没有 goroutine；操作之间由引擎互斥锁串行化
// (对应底层账本按读写集互斥调度的语义)
//
// 摇柄操作 (MatchOrders / UpdateFunding / Liquidate) 任何人可调，
// 活性交给外部机器人，引擎自身不做调度

package perps

import (
	"context"
	"log"
	"sync"
	"time"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
	"moonpad.com/pkg/vault"
)

// Clock 可注入时钟 (Unix 毫秒)，测试里推时间用
type Clock func() int64

// Engine 合约引擎
//
// 市场/持仓/保证金/保险基金/订单簿是持久记录；
// books 是订单簿的热路径缓存，每次变更写回仓储，未命中时从仓储还原。
// TWAP 环是纯内存读数，重启后随成交重新积累
type Engine struct {
	repo    Repository
	ledger  *vault.Ledger
	emitter events.Emitter
	cache   *MarkPriceCache // 可选
	clock   Clock

	mu    sync.Mutex
	books map[string]*OrderBook
	twaps map[string]*TwapRing
	index *RiskIndex
}

func NewEngine(repo Repository, ledger *vault.Ledger, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		repo:    repo,
		ledger:  ledger,
		emitter: emitter,
		clock:   func() int64 { return time.Now().UnixMilli() },
		books:   make(map[string]*OrderBook),
		twaps:   make(map[string]*TwapRing),
		index:   NewRiskIndex(),
	}
}

// SetClock 注入时钟
func (e *Engine) SetClock(c Clock) { e.clock = c }

// SetMarkPriceCache 挂接 Redis 标记价格缓存
func (e *Engine) SetMarkPriceCache(c *MarkPriceCache) { e.cache = c }

// RiskIndex 强平候选索引，外部机器人扫描用
func (e *Engine) RiskIndex() *RiskIndex { return e.index }

// =============================================================================
// 市场生命周期
// =============================================================================

// MarketParams 建市参数
type MarketParams struct {
	Mint                 string
	MaxLeverage          uint8
	MaintenanceMarginBps uint16
	LiquidationFeeBps    uint16
	MakerFeeBps          uint16
	TakerFeeBps          uint16
	FundingInterval      time.Duration
	MaxOpenInterest      uint64
	MaxPositionSize      uint64
}

// InitializeMarket 建市: 空订单簿 + 零余额保险基金
func (e *Engine) InitializeMarket(ctx context.Context, p *MarketParams) (*Market, error) {
	if p.MaxLeverage == 0 || p.MaxLeverage > MaxLeverageCap {
		return nil, ErrExcessiveLeverage
	}
	if p.MaintenanceMarginBps == 0 || p.MaintenanceMarginBps >= BpsDenominator {
		return nil, ErrInvalidMarginBps
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	m := &Market{
		Address:              MarketAddress(p.Mint).String(),
		Mint:                 p.Mint,
		MaxLeverage:          p.MaxLeverage,
		MaintenanceMarginBps: p.MaintenanceMarginBps,
		LiquidationFeeBps:    p.LiquidationFeeBps,
		MakerFeeBps:          p.MakerFeeBps,
		TakerFeeBps:          p.TakerFeeBps,
		FundingInterval:      p.FundingInterval.Milliseconds(),
		MaxOpenInterest:      p.MaxOpenInterest,
		MaxPositionSize:      p.MaxPositionSize,
		LastFundingTime:      now,
	}
	if err := e.repo.CreateMarket(ctx, m); err != nil {
		return nil, err
	}

	fund := &InsuranceFund{
		Address: InsuranceFundAddress(p.Mint).String(),
		Mint:    p.Mint,
	}
	if err := e.repo.SaveInsuranceFund(ctx, fund); err != nil {
		return nil, err
	}

	book := NewOrderBook(p.Mint)
	if err := e.repo.SaveOrderBook(ctx, book); err != nil {
		return nil, err
	}
	e.books[p.Mint] = book
	e.twaps[p.Mint] = NewTwapRing(TwapWindow)

	e.emitter.Emit(events.New(events.KindMarketCreated, p.Mint, events.MarketCreated{
		Mint:        p.Mint,
		MaxLeverage: p.MaxLeverage,
	}))
	log.Printf("[Perps] Market created: mint=%s, maxLeverage=%dx", p.Mint, p.MaxLeverage)
	return m, nil
}

// SetIndexPrice 预言机喂价
// 首次喂价时标记价格跟随指数价启动
func (e *Engine) SetIndexPrice(ctx context.Context, mint string, price uint64) error {
	if price == 0 {
		return ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.repo.GetMarket(ctx, mint)
	if err != nil {
		return err
	}
	m.IndexPrice = price
	if m.MarkPrice == 0 {
		m.MarkPrice = price
	}
	return e.repo.UpdateMarket(ctx, m)
}

// Market 市场快照
func (e *Engine) Market(ctx context.Context, mint string) (*Market, error) {
	return e.repo.GetMarket(ctx, mint)
}

// Book 订单簿浅快照 (买卖各自拷贝切片头)
func (e *Engine) Book(mint string) ([]*Order, []*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[mint]
	if !ok {
		return nil, nil, ErrMarketNotFound
	}
	bids := make([]*Order, len(b.Bids))
	asks := make([]*Order, len(b.Asks))
	copy(bids, b.Bids)
	copy(asks, b.Asks)
	return bids, asks, nil
}

// =============================================================================
// 内部辅助
// =============================================================================

func (e *Engine) book(mint string) (*OrderBook, error) {
	b, ok := e.books[mint]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return b, nil
}

// notional 名义价值 = size·price/Precision
func notional(size, price uint64) (uint64, error) {
	return fixmath.MulDiv(size, price, Precision)
}

// feeOn 万分比费用，向下取整
func feeOn(amount uint64, bps uint16) (uint64, error) {
	return fixmath.MulDiv(amount, uint64(bps), BpsDenominator)
}

// positionPnL 按方向符号化的盈亏 = ±(exit−entry)·size/Precision
func positionPnL(side Side, entry, exit, size uint64) (int64, error) {
	diff := int64(exit) - int64(entry)
	if side == SideShort {
		diff = -diff
	}
	return fixmath.MulDivI64(diff, int64(size), Precision)
}

// fundingCredit 未结算资金费的符号化入账额
// 累计器上行表示该方向付费，所以入账额取负
func fundingCredit(m *Market, p *Position) (int64, error) {
	delta, err := fixmath.CheckedSubI64(m.CumFunding(p.Side), p.LastCumFunding)
	if err != nil {
		return 0, err
	}
	credit, err := fixmath.MulDivI64(delta, int64(p.Size), Precision)
	if err != nil {
		return 0, err
	}
	return -credit, nil
}

// marginRatioBps 保证金率 = (占用保证金 + 盈亏 + 资金费)·10000/名义价值
// 权益非正时直接归零 (必然可强平)
func marginRatioBps(m *Market, p *Position) (int64, error) {
	pnl, err := positionPnL(p.Side, p.EntryPrice, m.MarkPrice, p.Size)
	if err != nil {
		return 0, err
	}
	credit, err := fundingCredit(m, p)
	if err != nil {
		return 0, err
	}
	equity := int64(p.Collateral) + pnl + credit
	if equity <= 0 {
		return 0, nil
	}
	n, err := notional(p.Size, m.MarkPrice)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrStaleOracle
	}
	return fixmath.MulDivI64(equity, BpsDenominator, uint64(n))
}

// checkPriceBand 熔断: 价格偏离指数价超过 PriceBandBps 拒绝
func checkPriceBand(price, indexPrice uint64) error {
	if indexPrice == 0 {
		return ErrStaleOracle
	}
	var dev uint64
	if price > indexPrice {
		dev = price - indexPrice
	} else {
		dev = indexPrice - price
	}
	devBps, err := fixmath.MulDiv(dev, BpsDenominator, indexPrice)
	if err != nil {
		return err
	}
	if devBps > PriceBandBps {
		return ErrCircuitBreaker
	}
	return nil
}
