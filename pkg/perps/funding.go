// 文件: pkg/perps/funding.go
// 资金费率摇柄
//
// 【核心公式】
// raw = (标记价 − 指数价)·Precision/指数价，夹在 ±MaxFundingRate (0.1%)
// CumFundingLong += raw，CumFundingShort −= raw
//
// 两个累计器等量反向，总和恒为 0:
// 标记价高于指数价时多头付空头，经济上把标记价压回指数价

package perps

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
)

// UpdateFunding 资金费率摇柄，任何人可调
// 距离上次结算不足 FundingInterval 时拒绝
func (e *Engine) UpdateFunding(ctx context.Context, mint string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.repo.GetMarket(ctx, mint)
	if err != nil {
		return 0, err
	}
	if m.Paused {
		return 0, ErrMarketPaused
	}
	if m.IndexPrice == 0 {
		return 0, ErrStaleOracle
	}

	now := e.clock()
	if now-m.LastFundingTime < m.FundingInterval {
		return 0, ErrFundingNotElapsed
	}

	diff := int64(m.MarkPrice) - int64(m.IndexPrice)
	raw, err := fixmath.MulDivI64(diff, Precision, m.IndexPrice)
	if err != nil {
		return 0, err
	}
	rate := fixmath.Clamp(raw, -MaxFundingRate, MaxFundingRate)

	if m.CumFundingLong, err = fixmath.CheckedAddI64(m.CumFundingLong, rate); err != nil {
		return 0, err
	}
	if m.CumFundingShort, err = fixmath.CheckedSubI64(m.CumFundingShort, rate); err != nil {
		return 0, err
	}
	m.LastFundingTime = now
	if err := e.repo.UpdateMarket(ctx, m); err != nil {
		return 0, err
	}

	e.emitter.Emit(events.New(events.KindFundingRateUpdated, mint, events.FundingRateUpdated{
		Mint:            mint,
		Rate:            rate,
		CumFundingLong:  m.CumFundingLong,
		CumFundingShort: m.CumFundingShort,
	}))
	log.Printf("[Perps] Funding updated: mint=%s, rate=%d, cumLong=%d", mint, rate, m.CumFundingLong)
	return rate, nil
}
