// 模拟器: 全内存跑一遍发射平台 + 永续合约的完整剧本
//
// 1. 初始化平台 → 创建代币 → 一串买卖 (观察曲线价格移动)
// 2. 开永续市场 → 入金 → 开仓
// 3. 挂单撮合 → 资金费摇柄 → 制造一次强平
// 4. GBM 指数喂价 → 风险刷新
//
// 不连 MySQL/Redis/NATS，全部用内存实现，演示引擎语义用

package main

import (
	"context"
	"log"
	"time"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/launch"
	"moonpad.com/pkg/oracle"
	"moonpad.com/pkg/perps"
	"moonpad.com/pkg/platform"
	"moonpad.com/pkg/vault"
)

const mint = "MOON-mint"

func main() {
	log.SetFlags(log.Ltime)
	ctx := context.Background()

	// -------------------------------------------------------------------------
	// 1. 平台与发射
	// -------------------------------------------------------------------------
	pm := platform.NewManager(platform.NewMemoryRepository())
	if _, err := pm.Initialize(ctx, "admin", 100, 0); err != nil {
		log.Fatalf("platform init: %v", err)
	}

	ledger := vault.NewLedger()
	emitter := events.NewMemoryEmitter()
	proc := launch.NewProcessor(pm, launch.NewMemoryRepository(), ledger, nil, emitter)

	if _, err := proc.CreateToken(ctx, &launch.CreateTokenRequest{
		Creator:       "creator",
		Mint:          mint,
		Name:          "Moon Token",
		Symbol:        "MOON",
		URI:           "https://moon.example/meta.json",
		CreatorFeeBps: 100,
	}); err != nil {
		log.Fatalf("create token: %v", err)
	}
	log.Println("✅ Token created")

	fund(ledger, "alice", 10_000_000_000)
	fund(ledger, "bob", 10_000_000_000)

	// 连续买入推高曲线价格
	for i, amount := range []uint64{1_000_000_000, 2_000_000_000, 4_000_000_000} {
		tokens, err := proc.Buy(ctx, "alice", mint, amount)
		if err != nil {
			log.Fatalf("buy #%d: %v", i+1, err)
		}
		log.Printf("[Curve] 🛒 Buy %d lamports → %d tokens", amount, tokens)
	}

	// 卖掉一部分
	sold, err := proc.Sell(ctx, "alice", mint, 1_000_000_000_000)
	if err != nil {
		log.Fatalf("sell: %v", err)
	}
	log.Printf("[Curve] 💸 Sell 1e12 tokens → %d lamports net", sold)

	// -------------------------------------------------------------------------
	// 2. 永续市场
	// -------------------------------------------------------------------------
	engine := perps.NewEngine(perps.NewMemoryRepository(), ledger, emitter)
	now := time.Now().UnixMilli()
	engine.SetClock(func() int64 { return now })

	if _, err := engine.InitializeMarket(ctx, &perps.MarketParams{
		Mint:                 mint,
		MaxLeverage:          10,
		MaintenanceMarginBps: 500,
		LiquidationFeeBps:    200,
		TakerFeeBps:          10,
		FundingInterval:      time.Hour,
	}); err != nil {
		log.Fatalf("init market: %v", err)
	}
	if err := engine.SetIndexPrice(ctx, mint, 1_000_000); err != nil {
		log.Fatalf("set index: %v", err)
	}
	log.Println("✅ Perp market created @ index 1.0")

	if _, err := engine.DepositCollateral(ctx, "alice", 500_000_000); err != nil {
		log.Fatalf("deposit alice: %v", err)
	}
	if _, err := engine.DepositCollateral(ctx, "bob", 500_000_000); err != nil {
		log.Fatalf("deposit bob: %v", err)
	}

	long, err := engine.OpenPosition(ctx, "alice", mint, perps.SideLong, 1_000_000_000, 10, 100_000_000)
	if err != nil {
		log.Fatalf("open long: %v", err)
	}
	if _, err := engine.OpenPosition(ctx, "bob", mint, perps.SideShort, 1_000_000_000, 10, 100_000_000); err != nil {
		log.Fatalf("open short: %v", err)
	}
	log.Printf("[Perps] 📈 Long + 📉 Short opened @ %d", long.EntryPrice)

	// -------------------------------------------------------------------------
	// 3. 撮合 → 资金费 → 强平
	// -------------------------------------------------------------------------
	if _, err := engine.PlaceOrder(ctx, "alice", mint, perps.SideLong, 1_020_000, 500_000_000); err != nil {
		log.Fatalf("place bid: %v", err)
	}
	if _, err := engine.PlaceOrder(ctx, "bob", mint, perps.SideShort, 1_000_000, 500_000_000); err != nil {
		log.Fatalf("place ask: %v", err)
	}
	fills, err := engine.MatchOrders(ctx, mint)
	if err != nil {
		log.Fatalf("match: %v", err)
	}
	log.Printf("[Perps] 🤝 %d fills, mark = %d, twap = %d", fills, mustMark(ctx, engine), engine.Twap(mint))

	// 资金费摇柄 (标记 1.02 vs 指数 1.0 → 多头付费，费率夹在上限)
	now += time.Hour.Milliseconds()
	rate, err := engine.UpdateFunding(ctx, mint)
	if err != nil {
		log.Fatalf("funding: %v", err)
	}
	log.Printf("[Perps] 💰 Funding rate = %d", rate)

	// 行情崩盘: 卖单把标记价砸到 0.9，多头穿维持线
	if _, err := engine.PlaceOrder(ctx, "bob", mint, perps.SideShort, 900_000, 300_000_000); err != nil {
		log.Fatalf("place crash ask: %v", err)
	}
	if _, err := engine.PlaceOrder(ctx, "carol", mint, perps.SideLong, 0, 300_000_000); err != nil {
		log.Fatalf("place crash bid: %v", err)
	}
	if _, err := engine.MatchOrders(ctx, mint); err != nil {
		log.Fatalf("crash match: %v", err)
	}
	log.Printf("[Market] 📉 CRASH! mark = %d", mustMark(ctx, engine))

	if err := engine.RefreshRisk(ctx, mint); err != nil {
		log.Fatalf("refresh risk: %v", err)
	}
	for _, c := range engine.RiskIndex().Candidates(perps.RiskCritical) {
		if err := engine.Liquidate(ctx, "keeper", c.PositionID, 0); err != nil {
			log.Printf("[Perps] liquidate %d: %v", c.PositionID, err)
			continue
		}
		log.Printf("[Perps] ⚡ Liquidated position %d (owner=%s)", c.PositionID, c.Owner)
	}

	// -------------------------------------------------------------------------
	// 4. 模拟指数喂价: GBM 价格源 → 扇出 → 指数更新 + 风险刷新
	// -------------------------------------------------------------------------
	feed := oracle.NewFeed(mint, mustMark(ctx, engine), 10*time.Millisecond)
	fanout := oracle.NewBroadcaster()
	indexSub := fanout.Subscribe()
	riskSub := fanout.Subscribe()
	go fanout.Run(feed.Start())

	for i := 0; i < 10; i++ {
		update := <-indexSub
		if err := engine.SetIndexPrice(ctx, update.Mint, update.Price); err != nil {
			log.Fatalf("set index: %v", err)
		}
	}
	feed.Stop()
	for range riskSub {
		// 风险侧只关心"有过更新"这个事实，刷新动作在流结束后统一做
	}
	if err := engine.RefreshRisk(ctx, mint); err != nil {
		log.Fatalf("refresh risk: %v", err)
	}
	m, err := engine.Market(ctx, mint)
	if err != nil {
		log.Fatalf("market: %v", err)
	}
	log.Printf("[Oracle] 📡 Index drifted to %d, %d accounts on risk watch", m.IndexPrice, engine.RiskIndex().Len())

	log.Printf("✅ Simulation finished, %d events emitted", len(emitter.Events()))
}

func fund(ledger *vault.Ledger, owner string, amount uint64) {
	tx := ledger.Begin("sim_fund")
	tx.EnsureAccount(launch.WalletAddress(owner), vault.KindBase, "", owner, 0)
	tx.Mint(launch.WalletAddress(owner), amount)
	if err := tx.Commit(); err != nil {
		log.Fatalf("fund %s: %v", owner, err)
	}
}

func mustMark(ctx context.Context, engine *perps.Engine) uint64 {
	m, err := engine.Market(ctx, mint)
	if err != nil {
		log.Fatalf("market: %v", err)
	}
	return m.MarkPrice
}
