// 文件: pkg/launch/curve_test.go

package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSpotPrice 瞬时价格: 起点为底价，终点为底价+满斜率
func TestSpotPrice(t *testing.T) {
	p, err := SpotPrice(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(BasePrice), p)

	p, err = SpotPrice(TotalSupply)
	require.NoError(t, err)
	assert.Equal(t, uint64(BasePrice+SlopeScale), p)

	// 半程: base + slope/2
	p, err = SpotPrice(TotalSupply / 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(BasePrice+SlopeScale/2), p)
}

// TestBuyTokensOut 起始价下 1 SOL (1e9 最小单位) 应换得 1e12 代币最小单位
func TestBuyTokensOut(t *testing.T) {
	tokens, err := BuyTokensOut(1_000_000_000, 0, TotalSupply)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), tokens)

	// 已售一半后价格翻倍以上，产出变少
	tokensLater, err := BuyTokensOut(1_000_000_000, TotalSupply/2, TotalSupply/2)
	require.NoError(t, err)
	assert.Less(t, tokensLater, tokens)
}

// TestBuyTokensOutClamped 产出封顶在剩余库存
func TestBuyTokensOutClamped(t *testing.T) {
	tokens, err := BuyTokensOut(1_000_000_000, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tokens)
}

// TestSellAveragePrice 梯形平均: avg = base + (old+new)·slope/(2·supply)
func TestSellAveragePrice(t *testing.T) {
	// sold=2e12, amount=1e12 → span=3e12 → slope 分量 1500
	avg, err := SellAveragePrice(1_000_000_000_000, 2_000_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), avg)

	// 全部卖空回到 [0, sold] 区间
	avg, err = SellAveragePrice(2_000_000_000_000, 2_000_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), avg)
}

// TestSellProceeds 回款 = avg·amount/TokenScale
func TestSellProceeds(t *testing.T) {
	sol, avg, err := SellProceeds(1_000_000_000_000, 2_000_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), avg)
	assert.Equal(t, uint64(2_500_000_000), sol)
}

// TestSellAveragePriceMoreThanSold 超过流通量直接报错
func TestSellAveragePriceMoreThanSold(t *testing.T) {
	_, err := SellAveragePrice(101, 100)
	assert.Error(t, err)
}

// TestSplitFees 1%+1% 下 1 SOL 的拆分
func TestSplitFees(t *testing.T) {
	pf, cf, net, err := SplitFees(1_000_000_000, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), pf)
	assert.Equal(t, uint64(10_000_000), cf)
	assert.Equal(t, uint64(980_000_000), net)
}

// TestSplitFeesConservation 任意金额下恒等式 pf+cf+net == amount
func TestSplitFeesConservation(t *testing.T) {
	amounts := []uint64{1, 7, 999, 10_001, 123_456_789, 1_000_000_000}
	for _, a := range amounts {
		pf, cf, net, err := SplitFees(a, 100, 50)
		require.NoError(t, err)
		assert.Equal(t, a, pf+cf+net, "amount=%d", a)
	}
}

// TestSplitFeesZeroBps 零费率时全额归 net
func TestSplitFeesZeroBps(t *testing.T) {
	pf, cf, net, err := SplitFees(12_345, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, pf)
	assert.Zero(t, cf)
	assert.Equal(t, uint64(12_345), net)
}

// TestBuySellAsymmetry 买用瞬时价、卖用平均价，大额时二者必然分离
func TestBuySellAsymmetry(t *testing.T) {
	// 大额买入: 按起始瞬时价 1000 折算
	tokens, err := BuyTokensOut(1_000_000_000_000, 0, TotalSupply)
	require.NoError(t, err)

	// 立刻全部卖出: 平均价 > 1000，毛回款反而高于买入额
	sol, avg, err := SellProceeds(tokens, tokens)
	require.NoError(t, err)
	assert.Greater(t, avg, uint64(BasePrice))
	assert.Greater(t, sol, uint64(1_000_000_000_000))
}
