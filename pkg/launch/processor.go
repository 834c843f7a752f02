// 文件: pkg/launch/processor.go
// 代币发射交易处理器
//
// 【职责】
// 1. create_token: 建记录 + 全量铸到库存金库 + 注册元数据
// 2. buy/sell: 曲线定价 → 费用拆分 → 原子转账 → 状态回写 → 发事件
// 3. stake/unstake: 代币在用户账户与质押金库之间搬运
//
// 【原子性】
// 每个操作恰好一个资金工作单元 (vault.Tx)，
// 先做全部校验，Commit 失败时账本与记录都不变

package launch

import (
	"context"
	"log"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/fixmath"
	"moonpad.com/pkg/platform"
	"moonpad.com/pkg/vault"
)

// Processor 发射交易处理器
type Processor struct {
	platform  *platform.Manager
	repo      Repository
	ledger    *vault.Ledger
	registrar Registrar
	emitter   events.Emitter
}

func NewProcessor(
	pm *platform.Manager,
	repo Repository,
	ledger *vault.Ledger,
	registrar Registrar,
	emitter events.Emitter,
) *Processor {
	if registrar == nil {
		registrar = NoopRegistrar{}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Processor{
		platform:  pm,
		repo:      repo,
		ledger:    ledger,
		registrar: registrar,
		emitter:   emitter,
	}
}

// =============================================================================
// create_token
// =============================================================================

// CreateTokenRequest 创建代币请求
type CreateTokenRequest struct {
	Creator       string
	Mint          string
	Name          string
	Symbol        string
	URI           string
	CreatorFeeBps uint16
}

// CreateToken 创建代币并把全部供应量铸进库存金库
// 此时还没有任何人付过钱，金库只是持有未售库存
func (p *Processor) CreateToken(ctx context.Context, req *CreateTokenRequest) (*TokenLaunch, error) {
	// 1. 输入校验 (长度按字节算)
	if len(req.Name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	if len(req.Symbol) > MaxSymbolLen {
		return nil, ErrSymbolTooLong
	}
	if len(req.URI) > MaxURILen {
		return nil, ErrURITooLong
	}
	if req.CreatorFeeBps > MaxCreatorFeeBps {
		return nil, ErrFeeTooHigh
	}

	// 2. 平台状态
	cfg, err := p.platform.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, ErrPlatformPaused
	}

	// 3. 发射记录
	l := &TokenLaunch{
		Address:       LaunchAddress(req.Mint).String(),
		Creator:       req.Creator,
		Mint:          req.Mint,
		Name:          req.Name,
		Symbol:        req.Symbol,
		URI:           req.URI,
		CreatorFeeBps: req.CreatorFeeBps,
		TotalSupply:   TotalSupply,
	}

	// 4. 金库账户 + 全量铸造，发射记录与计数在同一工作单元落库
	reserveVault := ReserveVaultAddress(req.Mint)
	tokenVault := TokenVaultAddress(req.Mint)
	stakeVault := StakeVaultAddress(req.Mint)

	tx := p.ledger.Begin("create_token")
	tx.EnsureAccount(reserveVault, vault.KindBase, "", l.Address, vault.RentExemptMinimum)
	tx.EnsureAccount(tokenVault, vault.KindToken, req.Mint, l.Address, 0)
	tx.EnsureAccount(stakeVault, vault.KindToken, req.Mint, l.Address, 0)
	// 储备金库垫上租金线 (创建者在链上支付租金，这里由铸造体现)
	tx.Mint(reserveVault, vault.RentExemptMinimum)
	tx.Mint(tokenVault, TotalSupply)
	err = tx.CommitWith(func() error {
		if werr := p.repo.CreateLaunch(ctx, l); werr != nil {
			return werr
		}
		return p.platform.RecordLaunch(ctx)
	})
	if err != nil {
		return nil, err
	}

	// 5. 元数据 CPI
	if err := p.registrar.Register(req.Mint, req.Name, req.Symbol, req.URI); err != nil {
		log.Printf("[Launch] metadata register failed for %s: %v", req.Mint, err)
	}
	p.emitter.Emit(events.New(events.KindTokenCreated, req.Mint, events.TokenCreated{
		Mint:          req.Mint,
		Creator:       req.Creator,
		Name:          req.Name,
		Symbol:        req.Symbol,
		URI:           req.URI,
		TotalSupply:   TotalSupply,
		CreatorFeeBps: req.CreatorFeeBps,
	}))

	log.Printf("[Launch] Token created: mint=%s, symbol=%s", req.Mint, req.Symbol)
	return l, nil
}

// =============================================================================
// buy
// =============================================================================

// Buy 按当前瞬时价格买入
//
// 【顺序】净额→储备金库、平台费→平台金库、创建者费→创建者钱包、
// 代币库存→买家账户，四笔同一工作单元，全有或全无
func (p *Processor) Buy(ctx context.Context, buyer, mint string, solAmount uint64) (uint64, error) {
	if solAmount == 0 {
		return 0, ErrZeroAmount
	}

	cfg, err := p.platform.Get(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, ErrPlatformPaused
	}

	l, err := p.repo.GetLaunch(ctx, mint)
	if err != nil {
		return 0, err
	}
	if l.Migrated {
		return 0, ErrAlreadyMigrated
	}

	// 1. 定价
	price, err := SpotPrice(l.TokensSold)
	if err != nil {
		return 0, err
	}
	tokensOut, err := BuyTokensOut(solAmount, l.TokensSold, l.Available())
	if err != nil {
		return 0, err
	}
	if tokensOut == 0 {
		return 0, ErrInsufficientOutput
	}

	// 2. 费用拆分 (恒等: platformFee + creatorFee + net == solAmount)
	platformFee, creatorFee, net, err := SplitFees(solAmount, cfg.PlatformFeeBps, l.CreatorFeeBps)
	if err != nil {
		return 0, err
	}

	// 3. 原子转账
	buyerWallet := WalletAddress(buyer)
	buyerToken := TokenAccountAddress(buyer, mint)
	creatorWallet := WalletAddress(l.Creator)

	tx := p.ledger.Begin("buy")
	tx.EnsureAccount(buyerToken, vault.KindToken, mint, buyer, 0)
	tx.EnsureAccount(creatorWallet, vault.KindBase, "", l.Creator, 0)
	tx.EnsureAccount(platform.VaultAddress(), vault.KindBase, "", cfg.Authority, 0)
	if net > 0 {
		tx.Transfer(buyerWallet, ReserveVaultAddress(mint), net)
	}
	if platformFee > 0 {
		tx.Transfer(buyerWallet, platform.VaultAddress(), platformFee)
	}
	if creatorFee > 0 {
		tx.Transfer(buyerWallet, creatorWallet, creatorFee)
	}
	tx.Transfer(TokenVaultAddress(mint), buyerToken, tokensOut)

	// 4. 曲线状态回写走同一工作单元: 记录更新失败则余额也不动
	err = tx.CommitWith(func() error {
		var werr error
		if l.TokensSold, werr = fixmath.CheckedAdd(l.TokensSold, tokensOut); werr != nil {
			return werr
		}
		if l.Reserve, werr = fixmath.CheckedAdd(l.Reserve, net); werr != nil {
			return werr
		}
		l.TotalVolume = fixmath.SatAdd(l.TotalVolume, solAmount)

		// 储备过线后进入终态，后续买卖全部拒绝 (迁移指令本身不在此处)
		if cfg.MigrationThreshold > 0 && l.Reserve >= cfg.MigrationThreshold {
			l.Migrated = true
			log.Printf("[Launch] Migration threshold crossed: mint=%s, reserve=%d", mint, l.Reserve)
		}

		if werr := p.repo.UpdateLaunch(ctx, l); werr != nil {
			return werr
		}
		if werr := p.updatePosition(ctx, buyer, mint, tokensOut, solAmount, true); werr != nil {
			return werr
		}
		return p.platform.RecordVolume(ctx, solAmount)
	})
	if err != nil {
		return 0, err
	}

	p.emitter.Emit(events.New(events.KindTokenBought, mint, events.TokenBought{
		Mint:      mint,
		Buyer:     buyer,
		SolAmount: solAmount,
		TokensOut: tokensOut,
		Price:     price,
	}))
	return tokensOut, nil
}

// =============================================================================
// sell
// =============================================================================

// Sell 按区间平均价卖出
//
// 【顺序】代币 卖家→库存金库 先行，随后三笔基础资产
// 储备金库→卖家/平台金库/创建者，同一工作单元
func (p *Processor) Sell(ctx context.Context, seller, mint string, tokenAmount uint64) (uint64, error) {
	if tokenAmount == 0 {
		return 0, ErrZeroAmount
	}

	cfg, err := p.platform.Get(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, ErrPlatformPaused
	}

	l, err := p.repo.GetLaunch(ctx, mint)
	if err != nil {
		return 0, err
	}
	if l.Migrated {
		return 0, ErrAlreadyMigrated
	}
	// 流通量以外的代币不可能通过曲线回购
	if tokenAmount > l.TokensSold {
		return 0, ErrInsufficientTokensSold
	}

	// 1. 定价 (梯形平均)
	solOut, avgPrice, err := SellProceeds(tokenAmount, l.TokensSold)
	if err != nil {
		return 0, err
	}

	// 2. 费用来自回款
	platformFee, creatorFee, net, err := SplitFees(solOut, cfg.PlatformFeeBps, l.CreatorFeeBps)
	if err != nil {
		return 0, err
	}

	// 3. 不变量守卫 (全部在转账之前)
	if net > l.Reserve {
		return 0, ErrInsufficientReserve
	}
	reserveVault := ReserveVaultAddress(mint)
	vaultBalance := p.ledger.Balance(reserveVault)
	if vaultBalance < solOut || vaultBalance-solOut < vault.RentExemptMinimum {
		return 0, ErrVaultBelowRentExempt
	}

	// 4. 原子转账: 代币先进金库，再付三笔基础资产
	sellerWallet := WalletAddress(seller)
	sellerToken := TokenAccountAddress(seller, mint)
	creatorWallet := WalletAddress(l.Creator)

	tx := p.ledger.Begin("sell")
	tx.EnsureAccount(sellerWallet, vault.KindBase, "", seller, 0)
	tx.EnsureAccount(creatorWallet, vault.KindBase, "", l.Creator, 0)
	tx.EnsureAccount(platform.VaultAddress(), vault.KindBase, "", cfg.Authority, 0)
	tx.Transfer(sellerToken, TokenVaultAddress(mint), tokenAmount)
	if net > 0 {
		tx.Transfer(reserveVault, sellerWallet, net)
	}
	if platformFee > 0 {
		tx.Transfer(reserveVault, platform.VaultAddress(), platformFee)
	}
	if creatorFee > 0 {
		tx.Transfer(reserveVault, creatorWallet, creatorFee)
	}

	// 5. 状态回写 (与 buy 镜像，同一工作单元)
	err = tx.CommitWith(func() error {
		var werr error
		if l.TokensSold, werr = fixmath.CheckedSub(l.TokensSold, tokenAmount); werr != nil {
			return werr
		}
		if l.Reserve, werr = fixmath.CheckedSub(l.Reserve, solOut); werr != nil {
			return werr
		}
		l.TotalVolume = fixmath.SatAdd(l.TotalVolume, solOut)

		if werr := p.repo.UpdateLaunch(ctx, l); werr != nil {
			return werr
		}
		if werr := p.updatePosition(ctx, seller, mint, tokenAmount, 0, false); werr != nil {
			return werr
		}
		return p.platform.RecordVolume(ctx, solOut)
	})
	if err != nil {
		return 0, err
	}

	p.emitter.Emit(events.New(events.KindTokenSold, mint, events.TokenSold{
		Mint:        mint,
		Seller:      seller,
		TokenAmount: tokenAmount,
		SolOut:      net,
		Price:       avgPrice,
	}))
	return net, nil
}

// =============================================================================
// stake / unstake
// =============================================================================

// Stake 质押发射代币，解押额度记在质押者自己的持仓账页上
func (p *Processor) Stake(ctx context.Context, owner, mint string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l, err := p.repo.GetLaunch(ctx, mint)
	if err != nil {
		return err
	}

	tx := p.ledger.Begin("stake")
	tx.Transfer(TokenAccountAddress(owner, mint), StakeVaultAddress(mint), amount)
	err = tx.CommitWith(func() error {
		var werr error
		if l.TotalStaked, werr = fixmath.CheckedAdd(l.TotalStaked, amount); werr != nil {
			return werr
		}
		if werr := p.repo.UpdateLaunch(ctx, l); werr != nil {
			return werr
		}
		return p.updateStake(ctx, owner, mint, amount, true)
	})
	if err != nil {
		return err
	}

	p.emitter.Emit(events.New(events.KindTokenStaked, mint, events.TokenStaked{
		Mint: mint, Owner: owner, Amount: amount,
	}))
	return nil
}

// Unstake 解押
//
// 质押金库是共享账户，额度必须按人核对: 取量超过本人在押量直接拒绝，
// 否则任何人都能把别人押进金库的代币取走
func (p *Processor) Unstake(ctx context.Context, owner, mint string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l, err := p.repo.GetLaunch(ctx, mint)
	if err != nil {
		return err
	}
	pos, err := p.repo.GetPosition(ctx, owner, mint)
	if err != nil {
		return err
	}
	if pos == nil || amount > pos.Staked || amount > l.TotalStaked {
		return ErrInsufficientStake
	}

	tx := p.ledger.Begin("unstake")
	tx.Transfer(StakeVaultAddress(mint), TokenAccountAddress(owner, mint), amount)
	err = tx.CommitWith(func() error {
		var werr error
		if l.TotalStaked, werr = fixmath.CheckedSub(l.TotalStaked, amount); werr != nil {
			return werr
		}
		if werr := p.repo.UpdateLaunch(ctx, l); werr != nil {
			return werr
		}
		return p.updateStake(ctx, owner, mint, amount, false)
	})
	if err != nil {
		return err
	}

	p.emitter.Emit(events.New(events.KindTokenUnstaked, mint, events.TokenUnstaked{
		Mint: mint, Owner: owner, Amount: amount,
	}))
	return nil
}

// =============================================================================
// 辅助
// =============================================================================

// updatePosition 持仓账页饱和更新，首次买入惰性创建
func (p *Processor) updatePosition(ctx context.Context, owner, mint string, tokens, solSpent uint64, isBuy bool) error {
	pos, err := p.repo.GetPosition(ctx, owner, mint)
	if err != nil {
		return err
	}
	if pos == nil {
		pos = &UserPosition{
			Address: PositionAddress(owner, mint).String(),
			Owner:   owner,
			Mint:    mint,
		}
	}
	if isBuy {
		pos.TokensBought = fixmath.SatAdd(pos.TokensBought, tokens)
		pos.SolSpent = fixmath.SatAdd(pos.SolSpent, solSpent)
	} else {
		pos.TokensBought = fixmath.SatSub(pos.TokensBought, tokens)
	}
	return p.repo.SavePosition(ctx, pos)
}

// updateStake 更新账页上的在押量 (checked，额度随转账一致变动)
func (p *Processor) updateStake(ctx context.Context, owner, mint string, amount uint64, isStake bool) error {
	pos, err := p.repo.GetPosition(ctx, owner, mint)
	if err != nil {
		return err
	}
	if pos == nil {
		pos = &UserPosition{
			Address: PositionAddress(owner, mint).String(),
			Owner:   owner,
			Mint:    mint,
		}
	}
	if isStake {
		if pos.Staked, err = fixmath.CheckedAdd(pos.Staked, amount); err != nil {
			return err
		}
	} else {
		if pos.Staked, err = fixmath.CheckedSub(pos.Staked, amount); err != nil {
			return err
		}
	}
	return p.repo.SavePosition(ctx, pos)
}
