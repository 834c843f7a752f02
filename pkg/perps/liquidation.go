// 文件: pkg/perps/liquidation.go
// 强平摇柄
//
// 【触发条件】
// 保证金率 (权益·10000/名义价值) 低于维持保证金率
//
// 【部分强平】
// 调用方指定强平规模，夹在持仓规模以内；
// 被强平部分按比例切出盈亏与占用保证金
//
// 【结算瀑布】
// 1. 强平费从切出部分优先付给强平人 (入其保证金账户)
// 2. 剩余为正 → 归还持仓人保证金账户
// 3. 剩余为负 → 保险基金兜底，封顶在基金余额
// 4. 基金不足的缺口记入 Uncovered 计数器 (没有损失社会化，见 DESIGN.md)

package perps

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
)

// Liquidate 强平，任何人可调
// size = 0 或超过持仓规模时按全仓处理
func (e *Engine) Liquidate(ctx context.Context, liquidator string, positionID int64, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.repo.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	m, err := e.repo.GetMarket(ctx, pos.Mint)
	if err != nil {
		return err
	}
	if m.MarkPrice == 0 {
		return ErrStaleOracle
	}

	// 1. 强平门禁
	ratio, err := marginRatioBps(m, pos)
	if err != nil {
		return err
	}
	if ratio >= int64(m.MaintenanceMarginBps) {
		return ErrNotLiquidatable
	}

	// 2. 先把资金费折进占用保证金，之后全按比例切分
	if err := e.settleFundingLocked(m, pos); err != nil {
		return err
	}

	liqSize := size
	if liqSize == 0 || liqSize > pos.Size {
		liqSize = pos.Size
	}

	// 3. 切出被强平部分
	pnl, err := positionPnL(pos.Side, pos.EntryPrice, m.MarkPrice, liqSize)
	if err != nil {
		return err
	}
	cutCollateral, err := fixmath.MulDiv(pos.Collateral, liqSize, pos.Size)
	if err != nil {
		return err
	}
	liqNotional, err := notional(liqSize, m.MarkPrice)
	if err != nil {
		return err
	}
	fee, err := feeOn(liqNotional, m.LiquidationFeeBps)
	if err != nil {
		return err
	}

	// 4. 结算瀑布
	remainder := int64(cutCollateral) + pnl - int64(fee)
	var insuranceUsed, uncovered uint64
	if remainder < 0 {
		shortfall := uint64(-remainder)
		insuranceUsed, uncovered, err = e.drawInsurance(ctx, m.Mint, shortfall)
		if err != nil {
			return err
		}
	} else if remainder > 0 {
		if err := e.creditMargin(ctx, pos.Owner, uint64(remainder), pnl); err != nil {
			return err
		}
	}
	if fee > 0 {
		if err := e.creditMargin(ctx, liquidator, fee, 0); err != nil {
			return err
		}
	}

	// 5. 持仓收尾
	if err := e.bumpOI(ctx, m, pos.Side, liqSize, false); err != nil {
		return err
	}
	if liqSize == pos.Size {
		if err := e.repo.DeletePosition(ctx, pos.ID); err != nil {
			return err
		}
		e.index.Remove(pos.ID)
		if err := e.decOpenPositions(ctx, pos.Owner); err != nil {
			return err
		}
	} else {
		pos.Size -= liqSize
		pos.Collateral -= cutCollateral
		pos.UpdatedAt = e.clock()
		if err := e.repo.UpdatePosition(ctx, pos); err != nil {
			return err
		}
		e.reindexPosition(m, pos)
	}

	e.emitter.Emit(events.New(events.KindPositionLiquidated, m.Mint, events.PositionLiquidated{
		Mint:           m.Mint,
		Owner:          pos.Owner,
		Liquidator:     liquidator,
		PositionID:     pos.ID,
		LiquidatedSize: liqSize,
		MarkPrice:      m.MarkPrice,
		InsuranceUsed:  insuranceUsed,
		Uncovered:      uncovered,
	}))
	log.Printf("[Perps] Position liquidated: id=%d, size=%d, insurance=%d, uncovered=%d",
		pos.ID, liqSize, insuranceUsed, uncovered)
	return nil
}

// drawInsurance 保险基金出账，封顶在余额，缺口记 Uncovered
func (e *Engine) drawInsurance(ctx context.Context, mint string, shortfall uint64) (used, uncovered uint64, err error) {
	fund, err := e.repo.GetInsuranceFund(ctx, mint)
	if err != nil {
		return 0, 0, err
	}
	if fund == nil {
		fund = &InsuranceFund{Address: InsuranceFundAddress(mint).String(), Mint: mint}
	}

	used = shortfall
	if used > fund.Balance {
		used = fund.Balance
	}
	uncovered = shortfall - used

	fund.Balance -= used
	fund.TotalPayouts = fixmath.SatAdd(fund.TotalPayouts, used)
	fund.Uncovered = fixmath.SatAdd(fund.Uncovered, uncovered)
	if err := e.repo.SaveInsuranceFund(ctx, fund); err != nil {
		return 0, 0, err
	}
	return used, uncovered, nil
}

// creditMargin 给保证金账户入账 (不存在则创建，强平人可能首次出现)
func (e *Engine) creditMargin(ctx context.Context, owner string, amount uint64, realized int64) error {
	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &MarginAccount{Address: MarginAddress(owner).String(), Owner: owner}
	}
	acc.Collateral = fixmath.SatAdd(acc.Collateral, amount)
	if realized != 0 {
		if acc.RealizedPnL, err = fixmath.CheckedAddI64(acc.RealizedPnL, realized); err != nil {
			return err
		}
	}
	return e.repo.SaveMarginAccount(ctx, acc)
}

// decOpenPositions 持仓计数 −1
func (e *Engine) decOpenPositions(ctx context.Context, owner string) error {
	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil || acc == nil {
		return err
	}
	if acc.OpenPositions > 0 {
		acc.OpenPositions--
	}
	return e.repo.SaveMarginAccount(ctx, acc)
}
