// 文件: pkg/perps/liquidation_test.go
// 强平摇柄测试: 门禁、部分强平、保险基金兜底

package perps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonpad.com/pkg/events"
)

// liqMarket 10x、5% 维持、2% 强平费、零吃单费 (数字干净)
func liqHarness(t *testing.T) (*perpHarness, *Position) {
	t.Helper()
	h := newPerpHarness(t)
	ctx := context.Background()
	_, err := h.engine.InitializeMarket(ctx, &MarketParams{
		Mint:                 "mintP",
		MaxLeverage:          10,
		MaintenanceMarginBps: 500,
		LiquidationFeeBps:    200,
		FundingInterval:      time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, h.engine.SetIndexPrice(ctx, "mintP", 1_000_000))
	h.fundAndDeposit(t, "alice", 100_000_000)

	// 名义 1e9，占用保证金 1e8 (10%)
	pos, err := h.engine.OpenPosition(ctx, "alice", "mintP", SideLong, 1_000_000_000, 10, 100_000_000)
	require.NoError(t, err)
	return h, pos
}

// TestLiquidateGate 保证金率在维持线以上时必须拒绝
func TestLiquidateGate(t *testing.T) {
	h, pos := liqHarness(t)
	ctx := context.Background()

	// 入场价位: 保证金率 1000 bps ≥ 500
	err := h.engine.Liquidate(ctx, "keeper", pos.ID, 0)
	assert.ErrorIs(t, err, ErrNotLiquidatable)

	// 跌到 0.95: 权益 5e7，名义 9.5e8，比率 526 bps，仍在线上
	h.setMark(t, "mintP", 950_000)
	err = h.engine.Liquidate(ctx, "keeper", pos.ID, 0)
	assert.ErrorIs(t, err, ErrNotLiquidatable)

	// 跌到 0.945: 比率 476 bps < 500，可以强平
	h.setMark(t, "mintP", 945_000)
	err = h.engine.Liquidate(ctx, "keeper", pos.ID, 0)
	require.NoError(t, err)

	_, err = h.engine.Position(ctx, pos.ID)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

// TestLiquidateWaterfall 全仓强平的资金瀑布:
// 强平费给强平人，正余额归还持仓人
func TestLiquidateWaterfall(t *testing.T) {
	h, pos := liqHarness(t)
	ctx := context.Background()

	h.setMark(t, "mintP", 945_000)
	require.NoError(t, h.engine.Liquidate(ctx, "keeper", pos.ID, 0))

	// 盈亏 −5.5e7，强平费 = 9.45e8·2% = 18_900_000
	// 余额 = 1e8 − 5.5e7 − 18.9e6 = 26_100_000 归还持仓人
	acc, err := h.engine.MarginAccountOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(26_100_000), acc.Collateral)
	assert.Zero(t, acc.OpenPositions)

	keeper, err := h.engine.MarginAccountOf(ctx, "keeper")
	require.NoError(t, err)
	assert.Equal(t, uint64(18_900_000), keeper.Collateral)

	m, err := h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Zero(t, m.LongOI)

	liq := h.emitter.ByKind(events.KindPositionLiquidated)
	require.Len(t, liq, 1)
	payload := liq[0].Payload.(events.PositionLiquidated)
	assert.Equal(t, uint64(1_000_000_000), payload.LiquidatedSize)
	assert.Zero(t, payload.InsuranceUsed)
}

// TestLiquidatePartial 部分强平按比例切分，剩余持仓继续存续
func TestLiquidatePartial(t *testing.T) {
	h, pos := liqHarness(t)
	ctx := context.Background()

	h.setMark(t, "mintP", 945_000)
	require.NoError(t, h.engine.Liquidate(ctx, "keeper", pos.ID, 500_000_000))

	remaining, err := h.engine.Position(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), remaining.Size)
	assert.Equal(t, uint64(50_000_000), remaining.Collateral)

	m, err := h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), m.LongOI)

	// 剩余一半: 盈亏 −2.75e7，费 9_450_000，余额 13_050_000
	acc, err := h.engine.MarginAccountOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(13_050_000), acc.Collateral)
}

// TestLiquidateShortfall 穿仓: 保险基金兜底，耗尽部分记 Uncovered
func TestLiquidateShortfall(t *testing.T) {
	h, pos := liqHarness(t)
	ctx := context.Background()

	// 预注 1e7 保险基金
	fund, err := h.repo.GetInsuranceFund(ctx, "mintP")
	require.NoError(t, err)
	fund.Balance = 10_000_000
	require.NoError(t, h.repo.SaveInsuranceFund(ctx, fund))

	// 跌到 0.89: 盈亏 −1.1e8 已穿仓
	// 余额 = 1e8 − 1.1e8 − 17.8e6 = −27_800_000
	h.setMark(t, "mintP", 890_000)
	require.NoError(t, h.engine.Liquidate(ctx, "keeper", pos.ID, 0))

	fund, err = h.repo.GetInsuranceFund(ctx, "mintP")
	require.NoError(t, err)
	assert.Zero(t, fund.Balance)
	assert.Equal(t, uint64(10_000_000), fund.TotalPayouts)
	assert.Equal(t, uint64(17_800_000), fund.Uncovered)

	// 持仓人分文不剩，强平费照付
	acc, err := h.engine.MarginAccountOf(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acc.Collateral)

	keeper, err := h.engine.MarginAccountOf(ctx, "keeper")
	require.NoError(t, err)
	assert.Equal(t, uint64(17_800_000), keeper.Collateral)

	liq := h.emitter.ByKind(events.KindPositionLiquidated)
	require.Len(t, liq, 1)
	payload := liq[0].Payload.(events.PositionLiquidated)
	assert.Equal(t, uint64(10_000_000), payload.InsuranceUsed)
	assert.Equal(t, uint64(17_800_000), payload.Uncovered)
}

// TestRiskIndex 行情恶化时持仓进入候选索引，平仓后移出
func TestRiskIndex(t *testing.T) {
	h, pos := liqHarness(t)
	ctx := context.Background()

	// 开仓时比率 1000 bps = 维持 500 的 2 倍 → Warning 档
	assert.Equal(t, 1, h.engine.RiskIndex().Len())
	entries := h.engine.RiskIndex().Candidates(RiskWarning)
	require.Len(t, entries, 1)
	assert.Equal(t, pos.ID, entries[0].PositionID)

	// 行情下跌后重扫，持仓升级到 Critical 档
	h.setMark(t, "mintP", 945_000)
	require.NoError(t, h.engine.RefreshRisk(ctx, "mintP"))
	entries = h.engine.RiskIndex().Candidates(RiskCritical)
	require.Len(t, entries, 1)
	assert.Equal(t, RiskCritical, entries[0].Level)

	require.NoError(t, h.engine.Liquidate(ctx, "keeper", pos.ID, 0))
	assert.Zero(t, h.engine.RiskIndex().Len())
}
