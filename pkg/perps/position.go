// 文件: pkg/perps/position.go
// 持仓生命周期: 开仓 / 加仓 / 减仓 / 平仓
//
// 【入场价】
// 开仓直接取当前标记价格，没有滑点模型 (撮合成交走订单簿路径)
//
// 【资金费快照】
// 开仓时快照该方向累计器，结算量 = Size·(当前 − 快照)/Precision，
// 加仓/减仓先结算到当下再更新快照，避免新旧规模混算

package perps

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
	"moonpad.com/pkg/ids"
)

// OpenPosition 开仓
//
// 【守卫顺序】
// 暂停 → 方向 → 杠杆 → 规模 → 持仓量上限 → 喂价 → 保证金足额
func (e *Engine) OpenPosition(ctx context.Context, owner, mint string, side Side, size uint64, leverage uint8, collateral uint64) (*Position, error) {
	if size == 0 || collateral == 0 {
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
	if leverage == 0 || leverage > m.MaxLeverage {
		return nil, ErrExcessiveLeverage
	}
	if m.MaxPositionSize > 0 && size > m.MaxPositionSize {
		return nil, ErrPositionTooLarge
	}
	if m.MarkPrice == 0 {
		return nil, ErrStaleOracle
	}

	oi := m.LongOI
	if side == SideShort {
		oi = m.ShortOI
	}
	newOI, err := fixmath.CheckedAdd(oi, size)
	if err != nil {
		return nil, err
	}
	if m.MaxOpenInterest > 0 && newOI > m.MaxOpenInterest {
		return nil, ErrOpenInterestCap
	}

	n, err := notional(size, m.MarkPrice)
	if err != nil {
		return nil, err
	}
	buying, err := fixmath.CheckedMul(collateral, uint64(leverage))
	if err != nil {
		return nil, err
	}
	if buying < n {
		return nil, ErrInsufficientMargin
	}

	// 吃单费按名义价值收取，注入保险基金
	fee, err := feeOn(n, m.TakerFeeBps)
	if err != nil {
		return nil, err
	}
	charge, err := fixmath.CheckedAdd(collateral, fee)
	if err != nil {
		return nil, err
	}

	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Collateral < charge {
		return nil, ErrInsufficientCollateral
	}

	now := e.clock()
	pos := &Position{
		ID:             ids.Next(),
		Owner:          owner,
		Mint:           mint,
		Side:           side,
		Size:           size,
		EntryPrice:     m.MarkPrice,
		Collateral:     collateral,
		Leverage:       leverage,
		LastCumFunding: m.CumFunding(side),
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if err := e.repo.CreatePosition(ctx, pos); err != nil {
		return nil, err
	}

	acc.Collateral -= charge
	acc.OpenPositions++
	if err := e.repo.SaveMarginAccount(ctx, acc); err != nil {
		return nil, err
	}

	if side == SideLong {
		m.LongOI = newOI
	} else {
		m.ShortOI = newOI
	}
	if err := e.repo.UpdateMarket(ctx, m); err != nil {
		return nil, err
	}
	if err := e.creditInsurance(ctx, mint, fee); err != nil {
		return nil, err
	}
	e.reindexPosition(m, pos)

	e.emitter.Emit(events.New(events.KindPositionOpened, mint, events.PositionOpened{
		Mint:       mint,
		Owner:      owner,
		PositionID: pos.ID,
		Side:       side.String(),
		Size:       size,
		EntryPrice: pos.EntryPrice,
		Leverage:   leverage,
		Collateral: collateral,
	}))
	log.Printf("[Perps] Position opened: id=%d, %s %s size=%d @ %d, %dx",
		pos.ID, owner, side, size, pos.EntryPrice, leverage)
	return pos, nil
}

// IncreasePosition 加仓: 规模加权平均入场价，追加保证金
// 标记价偏离指数价超出熔断带时拒绝
func (e *Engine) IncreasePosition(ctx context.Context, owner string, positionID int64, addSize, addCollateral uint64) (*Position, error) {
	if addSize == 0 {
		return nil, ErrZeroAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, m, err := e.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	if m.Paused {
		return nil, ErrMarketPaused
	}
	if err := checkPriceBand(m.MarkPrice, m.IndexPrice); err != nil {
		return nil, err
	}
	newSize, err := fixmath.CheckedAdd(pos.Size, addSize)
	if err != nil {
		return nil, err
	}
	if m.MaxPositionSize > 0 && newSize > m.MaxPositionSize {
		return nil, ErrPositionTooLarge
	}

	// 先把旧规模的资金费结算进占用保证金，再换快照
	if err := e.settleFundingLocked(m, pos); err != nil {
		return nil, err
	}

	// 加权平均: newEntry = (oldNotional + addNotional)/(oldSize + addSize)
	oldN, err := notional(pos.Size, pos.EntryPrice)
	if err != nil {
		return nil, err
	}
	addN, err := notional(addSize, m.MarkPrice)
	if err != nil {
		return nil, err
	}
	totalN, err := fixmath.CheckedAdd(oldN, addN)
	if err != nil {
		return nil, err
	}
	newEntry, err := fixmath.MulDiv(totalN, Precision, newSize)
	if err != nil {
		return nil, err
	}

	totalCollateral, err := fixmath.CheckedAdd(pos.Collateral, addCollateral)
	if err != nil {
		return nil, err
	}
	buying, err := fixmath.CheckedMul(totalCollateral, uint64(pos.Leverage))
	if err != nil {
		return nil, err
	}
	if buying < totalN {
		return nil, ErrInsufficientMargin
	}

	if addCollateral > 0 {
		acc, err := e.repo.GetMarginAccount(ctx, owner)
		if err != nil {
			return nil, err
		}
		if acc == nil || acc.Collateral < addCollateral {
			return nil, ErrInsufficientCollateral
		}
		acc.Collateral -= addCollateral
		if err := e.repo.SaveMarginAccount(ctx, acc); err != nil {
			return nil, err
		}
	}

	if err := e.bumpOI(ctx, m, pos.Side, addSize, true); err != nil {
		return nil, err
	}

	pos.Size = newSize
	pos.EntryPrice = newEntry
	pos.Collateral = totalCollateral
	pos.UpdatedAt = e.clock()
	if err := e.repo.UpdatePosition(ctx, pos); err != nil {
		return nil, err
	}
	e.reindexPosition(m, pos)
	return pos, nil
}

// DecreasePosition 减仓: 按比例落实盈亏、按比例归还保证金
func (e *Engine) DecreasePosition(ctx context.Context, owner string, positionID int64, cutSize uint64) (*Position, error) {
	if cutSize == 0 {
		return nil, ErrZeroAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, m, err := e.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	if err := checkPriceBand(m.MarkPrice, m.IndexPrice); err != nil {
		return nil, err
	}
	if cutSize >= pos.Size {
		return nil, e.closeLocked(ctx, m, pos)
	}

	if err := e.settleFundingLocked(m, pos); err != nil {
		return nil, err
	}

	pnl, err := positionPnL(pos.Side, pos.EntryPrice, m.MarkPrice, cutSize)
	if err != nil {
		return nil, err
	}
	cutCollateral, err := fixmath.MulDiv(pos.Collateral, cutSize, pos.Size)
	if err != nil {
		return nil, err
	}

	returned := clampToZero(int64(cutCollateral) + pnl)

	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrInsufficientCollateral
	}
	acc.Collateral = fixmath.SatAdd(acc.Collateral, returned)
	acc.RealizedPnL, err = fixmath.CheckedAddI64(acc.RealizedPnL, pnl)
	if err != nil {
		return nil, err
	}
	if err := e.repo.SaveMarginAccount(ctx, acc); err != nil {
		return nil, err
	}

	if err := e.bumpOI(ctx, m, pos.Side, cutSize, false); err != nil {
		return nil, err
	}

	pos.Size -= cutSize
	pos.Collateral -= cutCollateral
	pos.UpdatedAt = e.clock()
	if err := e.repo.UpdatePosition(ctx, pos); err != nil {
		return nil, err
	}
	e.reindexPosition(m, pos)
	return pos, nil
}

// ClosePosition 全部平仓
func (e *Engine) ClosePosition(ctx context.Context, owner string, positionID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, m, err := e.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return err
	}
	return e.closeLocked(ctx, m, pos)
}

// closeLocked 平仓主体: 结算资金费 + 盈亏 − 手续费，余额回保证金账户
// 亏穿占用保证金时归零，不从账户其余抵押里追补 (追补走强平路径)
func (e *Engine) closeLocked(ctx context.Context, m *Market, pos *Position) error {
	exit := m.MarkPrice
	pnl, err := positionPnL(pos.Side, pos.EntryPrice, exit, pos.Size)
	if err != nil {
		return err
	}
	credit, err := fundingCredit(m, pos)
	if err != nil {
		return err
	}
	n, err := notional(pos.Size, exit)
	if err != nil {
		return err
	}
	fee, err := feeOn(n, m.TakerFeeBps)
	if err != nil {
		return err
	}

	returned := clampToZero(int64(pos.Collateral) + pnl + credit - int64(fee))

	acc, err := e.repo.GetMarginAccount(ctx, pos.Owner)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrInsufficientCollateral
	}
	acc.Collateral = fixmath.SatAdd(acc.Collateral, returned)
	acc.RealizedPnL, err = fixmath.CheckedAddI64(acc.RealizedPnL, pnl)
	if err != nil {
		return err
	}
	if acc.OpenPositions > 0 {
		acc.OpenPositions--
	}
	if err := e.repo.SaveMarginAccount(ctx, acc); err != nil {
		return err
	}

	if err := e.bumpOI(ctx, m, pos.Side, pos.Size, false); err != nil {
		return err
	}
	if err := e.creditInsurance(ctx, m.Mint, fee); err != nil {
		return err
	}
	if err := e.repo.DeletePosition(ctx, pos.ID); err != nil {
		return err
	}
	e.index.Remove(pos.ID)

	e.emitter.Emit(events.New(events.KindPositionClosed, m.Mint, events.PositionClosed{
		Mint:       m.Mint,
		Owner:      pos.Owner,
		PositionID: pos.ID,
		ExitPrice:  exit,
		PnL:        pnl,
		Funding:    credit,
		Returned:   returned,
	}))
	log.Printf("[Perps] Position closed: id=%d, pnl=%d, funding=%d, returned=%d",
		pos.ID, pnl, credit, returned)
	return nil
}

// Position 持仓快照
func (e *Engine) Position(ctx context.Context, id int64) (*Position, error) {
	return e.repo.GetPosition(ctx, id)
}

// =============================================================================
// 内部辅助
// =============================================================================

// ownedPosition 持仓 + 所属市场，校验调用方是持仓人
func (e *Engine) ownedPosition(ctx context.Context, owner string, id int64) (*Position, *Market, error) {
	pos, err := e.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pos.Owner != owner {
		return nil, nil, ErrUnauthorized
	}
	m, err := e.repo.GetMarket(ctx, pos.Mint)
	if err != nil {
		return nil, nil, err
	}
	return pos, m, nil
}

// settleFundingLocked 把未结算资金费折进占用保证金并更新快照
func (e *Engine) settleFundingLocked(m *Market, pos *Position) error {
	credit, err := fundingCredit(m, pos)
	if err != nil {
		return err
	}
	pos.Collateral = satAddI64(pos.Collateral, credit)
	pos.LastCumFunding = m.CumFunding(pos.Side)
	return nil
}

// bumpOI 持仓量计数增减
func (e *Engine) bumpOI(ctx context.Context, m *Market, side Side, size uint64, up bool) error {
	oi := &m.LongOI
	if side == SideShort {
		oi = &m.ShortOI
	}
	if up {
		v, err := fixmath.CheckedAdd(*oi, size)
		if err != nil {
			return err
		}
		*oi = v
	} else {
		*oi = fixmath.SatSub(*oi, size)
	}
	return e.repo.UpdateMarket(ctx, m)
}

// creditInsurance 手续费注入保险基金
func (e *Engine) creditInsurance(ctx context.Context, mint string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fund, err := e.repo.GetInsuranceFund(ctx, mint)
	if err != nil {
		return err
	}
	if fund == nil {
		fund = &InsuranceFund{Address: InsuranceFundAddress(mint).String(), Mint: mint}
	}
	fund.Balance = fixmath.SatAdd(fund.Balance, amount)
	fund.TotalDeposits = fixmath.SatAdd(fund.TotalDeposits, amount)
	return e.repo.SaveInsuranceFund(ctx, fund)
}

// reindexPosition 持仓变更后刷新强平候选索引
func (e *Engine) reindexPosition(m *Market, pos *Position) {
	if pos.Size == 0 {
		e.index.Remove(pos.ID)
		return
	}
	ratio, err := marginRatioBps(m, pos)
	if err != nil {
		return
	}
	e.index.Update(pos.ID, m.Mint, pos.Owner, ratio, m.MaintenanceMarginBps)
}

// clampToZero 负数截断为 0
func clampToZero(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// satAddI64 uint64 与符号化增量的饱和相加
func satAddI64(base uint64, delta int64) uint64 {
	if delta >= 0 {
		return fixmath.SatAdd(base, uint64(delta))
	}
	return fixmath.SatSub(base, uint64(-delta))
}
