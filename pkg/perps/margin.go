// 文件: pkg/perps/margin.go
// 全仓保证金账户 - 入金/出金
//
// 【出金守卫】
// 提取后的剩余抵押必须仍然覆盖该用户全部存续持仓的维持保证金之和，
// 否则用户可以先开仓再抽走抵押，把亏损留给保险基金

package perps

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
	"moonpad.com/pkg/launch"
	"moonpad.com/pkg/vault"
)

// DepositCollateral 基础资产 钱包→抵押金库，记入保证金账户
func (e *Engine) DepositCollateral(ctx context.Context, owner string, amount uint64) (*MarginAccount, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &MarginAccount{
			Address: MarginAddress(owner).String(),
			Owner:   owner,
		}
	}

	tx := e.ledger.Begin("perp_deposit")
	tx.EnsureAccount(CollateralVaultAddress(), vault.KindBase, "", "perps", 0)
	tx.Transfer(launch.WalletAddress(owner), CollateralVaultAddress(), amount)
	err = tx.CommitWith(func() error {
		var werr error
		if acc.Collateral, werr = fixmath.CheckedAdd(acc.Collateral, amount); werr != nil {
			return werr
		}
		return e.repo.SaveMarginAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(events.New(events.KindCollateralDeposited, "", events.CollateralChanged{
		Owner:      owner,
		Amount:     amount,
		Collateral: acc.Collateral,
	}))
	return acc, nil
}

// WithdrawCollateral 抵押金库→钱包
// 先验足额: 可用余额够提，且提取后仍覆盖全部维持保证金
func (e *Engine) WithdrawCollateral(ctx context.Context, owner string, amount uint64) (*MarginAccount, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc, err := e.repo.GetMarginAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Collateral < amount {
		return nil, ErrInsufficientCollateral
	}

	required, locked, err := e.maintenanceRequired(ctx, owner)
	if err != nil {
		return nil, err
	}
	remaining := acc.Collateral - amount
	if fixmath.SatAdd(remaining, locked) < required {
		return nil, ErrInsufficientMargin
	}

	tx := e.ledger.Begin("perp_withdraw")
	tx.Transfer(CollateralVaultAddress(), launch.WalletAddress(owner), amount)
	err = tx.CommitWith(func() error {
		acc.Collateral = remaining
		return e.repo.SaveMarginAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(events.New(events.KindCollateralWithdrawn, "", events.CollateralChanged{
		Owner:      owner,
		Amount:     amount,
		Collateral: acc.Collateral,
	}))
	log.Printf("[Perps] Collateral withdrawn: owner=%s, amount=%d, remaining=%d", owner, amount, remaining)
	return acc, nil
}

// MarginAccountOf 保证金账户快照，不存在返回 (nil, nil)
func (e *Engine) MarginAccountOf(ctx context.Context, owner string) (*MarginAccount, error) {
	return e.repo.GetMarginAccount(ctx, owner)
}

// maintenanceRequired 用户全部存续持仓的维持保证金之和 (按各市场最新标记价)
// 同时返回这些持仓已占用的保证金，占用部分也算抵押覆盖
func (e *Engine) maintenanceRequired(ctx context.Context, owner string) (required, locked uint64, err error) {
	positions, err := e.repo.ListPositionsByOwner(ctx, owner)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range positions {
		m, err := e.repo.GetMarket(ctx, p.Mint)
		if err != nil {
			return 0, 0, err
		}
		n, err := notional(p.Size, m.MarkPrice)
		if err != nil {
			return 0, 0, err
		}
		req, err := feeOn(n, m.MaintenanceMarginBps)
		if err != nil {
			return 0, 0, err
		}
		if required, err = fixmath.CheckedAdd(required, req); err != nil {
			return 0, 0, err
		}
		locked = fixmath.SatAdd(locked, p.Collateral)
	}
	return required, locked, nil
}
