// 文件: pkg/perps/funding_test.go
// 资金费率摇柄测试

package perps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFundingIntervalGate(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()
	require.NoError(t, h.engine.SetIndexPrice(ctx, "mintP", 1_000_000))

	// 建市当刻就摇，间隔未到
	_, err := h.engine.UpdateFunding(ctx, "mintP")
	assert.ErrorIs(t, err, ErrFundingNotElapsed)

	h.advance(time.Hour)
	_, err = h.engine.UpdateFunding(ctx, "mintP")
	require.NoError(t, err)

	// 刚结算完又摇
	_, err = h.engine.UpdateFunding(ctx, "mintP")
	assert.ErrorIs(t, err, ErrFundingNotElapsed)
}

func TestUpdateFundingStaleOracle(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	h.advance(time.Hour)

	_, err := h.engine.UpdateFunding(context.Background(), "mintP")
	assert.ErrorIs(t, err, ErrStaleOracle)
}

// TestFundingSymmetry 两个累计器等量反向，总和恒为 0
func TestFundingSymmetry(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()
	require.NoError(t, h.engine.SetIndexPrice(ctx, "mintP", 1_000_000))

	// 标记 1.0005 / 指数 1.0 → raw = 500
	h.setMark(t, "mintP", 1_000_500)
	h.advance(time.Hour)
	rate, err := h.engine.UpdateFunding(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, int64(500), rate)

	m, err := h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, int64(500), m.CumFundingLong)
	assert.Equal(t, int64(-500), m.CumFundingShort)
	assert.Zero(t, m.CumFundingLong+m.CumFundingShort)

	// 标记跌破指数 1% → raw = −10000 夹到 −1000
	h.setMark(t, "mintP", 990_000)
	h.advance(time.Hour)
	rate, err = h.engine.UpdateFunding(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, int64(-MaxFundingRate), rate)

	m, err = h.repo.GetMarket(ctx, "mintP")
	require.NoError(t, err)
	assert.Equal(t, int64(-500), m.CumFundingLong)
	assert.Equal(t, int64(500), m.CumFundingShort)
	assert.Zero(t, m.CumFundingLong+m.CumFundingShort)
}

// TestFundingSettlementOnClose 多头在累计器上行期间持仓要付费
func TestFundingSettlementOnClose(t *testing.T) {
	h := newPerpHarness(t)
	h.defaultMarket(t, "mintP")
	ctx := context.Background()
	require.NoError(t, h.engine.SetIndexPrice(ctx, "mintP", 1_000_000))
	h.fundAndDeposit(t, "alice", 300_000_000)

	// 名义 1e9，吃单费 1e6
	pos, err := h.engine.OpenPosition(ctx, "alice", "mintP", SideLong, 1_000_000_000, 10, 100_000_000)
	require.NoError(t, err)

	// 标记 1.0005，费率 +500: 多头应付 1e9·500/1e6 = 500_000
	h.setMark(t, "mintP", 1_000_500)
	h.advance(time.Hour)
	_, err = h.engine.UpdateFunding(ctx, "mintP")
	require.NoError(t, err)

	// 平仓价 1.0005: pnl = 500·1000 = 500_000，恰好被资金费抵消
	// 归还 = 1e8 + 500_000 (pnl) − 500_000 (资金费) − 1_000_500 (平仓费)
	require.NoError(t, h.engine.ClosePosition(ctx, "alice", pos.ID))

	acc, err := h.engine.MarginAccountOf(ctx, "alice")
	require.NoError(t, err)
	// 入金 3e8 − 开仓划扣 101e6 = 199e6，再加归还 98_999_500
	assert.Equal(t, uint64(199_000_000+98_999_500), acc.Collateral)
}
