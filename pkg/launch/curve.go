// 文件: pkg/launch/curve.go
// 线性联合曲线定价
//
// 【模型】
// 边际价格 price(s) = BasePrice + s·SlopeScale/TotalSupply
// (价格单位: 基础资产最小单位 / 整枚代币，整枚 = 1e6 最小单位)
//
// 【买卖不对称 — 有意保留】
// buy  用成交前售出量处的【瞬时价格】折算产出，
// sell 用区间 [sold−amount, sold] 上的【梯形平均价】折算回款。
// 这是对源行为的忠实复刻：小额买入时两者近似相等，
// 大额买入会偏离真实积分。测试钉死这一行为，改动必须是显式决策。
//
// 所有中间量 128 位、所有除法向下取整 (pkg/fixmath)

package launch

import (
	"moonpad.com/pkg/fixmath"
)

const (
	// BasePrice 起始边际价格
	BasePrice = 1000

	// SlopeScale 斜率分子: price(s) = BasePrice + s·SlopeScale/TotalSupply
	SlopeScale = 1_000_000_000

	// TokenScale 代币折算尺度: 整枚 = 1e6 最小单位
	TokenScale = 1_000_000
)

// SpotPrice 售出量 s 处的瞬时边际价格
func SpotPrice(sold uint64) (uint64, error) {
	slope, err := fixmath.MulDiv(sold, SlopeScale, TotalSupply)
	if err != nil {
		return 0, err
	}
	return fixmath.CheckedAdd(BasePrice, slope)
}

// BuyTokensOut 买入折算: tokens = sol·TokenScale/price(sold)
// 产出封顶在剩余库存 available
func BuyTokensOut(solAmount, sold, available uint64) (uint64, error) {
	price, err := SpotPrice(sold)
	if err != nil {
		return 0, err
	}
	tokens, err := fixmath.MulDiv(solAmount, TokenScale, price)
	if err != nil {
		return 0, err
	}
	if tokens > available {
		tokens = available
	}
	return tokens, nil
}

// SellAveragePrice 区间 [sold−amount, sold] 的梯形平均价
// avg = BasePrice + (old_sold + new_sold)·SlopeScale/(2·TotalSupply)
func SellAveragePrice(amount, sold uint64) (uint64, error) {
	newSold, err := fixmath.CheckedSub(sold, amount)
	if err != nil {
		return 0, err
	}
	span, err := fixmath.CheckedAdd(sold, newSold)
	if err != nil {
		return 0, err
	}
	slope, err := fixmath.MulDiv(span, SlopeScale, 2*uint64(TotalSupply))
	if err != nil {
		return 0, err
	}
	return fixmath.CheckedAdd(BasePrice, slope)
}

// SellProceeds 卖出毛回款: sol = avg·amount/TokenScale
func SellProceeds(amount, sold uint64) (uint64, uint64, error) {
	avg, err := SellAveragePrice(amount, sold)
	if err != nil {
		return 0, 0, err
	}
	sol, err := fixmath.MulDiv(avg, amount, TokenScale)
	if err != nil {
		return 0, 0, err
	}
	return sol, avg, nil
}

// SplitFees 费用拆分: platform/creator 各自万分比向下取整，余数全部归 net
// 恒等式: platformFee + creatorFee + net == amount
func SplitFees(amount uint64, platformFeeBps, creatorFeeBps uint16) (platformFee, creatorFee, net uint64, err error) {
	platformFee, err = fixmath.MulDiv(amount, uint64(platformFeeBps), 10_000)
	if err != nil {
		return 0, 0, 0, err
	}
	creatorFee, err = fixmath.MulDiv(amount, uint64(creatorFeeBps), 10_000)
	if err != nil {
		return 0, 0, 0, err
	}
	net, err = fixmath.CheckedSub(amount, platformFee)
	if err != nil {
		return 0, 0, 0, err
	}
	net, err = fixmath.CheckedSub(net, creatorFee)
	if err != nil {
		return 0, 0, 0, err
	}
	return platformFee, creatorFee, net, nil
}
