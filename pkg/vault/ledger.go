// 文件: pkg/vault/ledger.go
// 资金库引擎 - 原子多账户变更
//
// 【核心语义】
// 一条指令内的所有转账要么全部生效、要么全部不生效:
//   tx := ledger.Begin("buy")
//   tx.Transfer(buyer, reserveVault, net)
//   tx.Transfer(buyer, platformVault, platformFee)
//   tx.Transfer(launchVault, buyerToken, tokensOut)
//   err := tx.Commit()   // 先全量校验，再全量落账
//
// Commit 失败时账本不发生任何变化 (对应链上指令的原子回滚)

package vault

import (
	"math"
	"sync"
	"time"

	"moonpad.com/pkg/fixmath"
	"moonpad.com/pkg/ids"
	"moonpad.com/pkg/keys"
)

// =============================================================================
// Store - 持久化钩子
// =============================================================================

// Store 落账钩子，在内存账本成功提交后调用
// GORM 实现把账户快照和流水写进同一个数据库事务
type Store interface {
	Persist(accounts []*Account, journals []*Journal) error
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger 资金库引擎
// 单互斥锁保护，对应底层账本"写集互斥"的调度模型：
// 指令内部无并发，指令之间由锁串行化
type Ledger struct {
	mu       sync.Mutex
	accounts map[keys.Address]*Account
	store    Store // 可选
}

// NewLedger 创建账本
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[keys.Address]*Account),
	}
}

// SetStore 设置持久化钩子
func (l *Ledger) SetStore(store Store) {
	l.store = store
}

// CreateAccount 创建账户
func (l *Ledger) CreateAccount(addr keys.Address, kind AccountKind, mint, owner string, minBalance uint64) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createLocked(addr, kind, mint, owner, minBalance)
}

func (l *Ledger) createLocked(addr keys.Address, kind AccountKind, mint, owner string, minBalance uint64) (*Account, error) {
	if _, ok := l.accounts[addr]; ok {
		return nil, ErrAccountExists
	}
	now := time.Now().UnixMilli()
	acc := &Account{
		Address:    addr.String(),
		Kind:       kind,
		Mint:       mint,
		Owner:      owner,
		MinBalance: minBalance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.accounts[addr] = acc
	return acc, nil
}

// Balance 查询余额，账户不存在返回 0
func (l *Ledger) Balance(addr keys.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Balance
	}
	return 0
}

// Exists 账户是否存在
func (l *Ledger) Exists(addr keys.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[addr]
	return ok
}

// GetAccount 返回账户副本
func (l *Ledger) GetAccount(addr keys.Address) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

// =============================================================================
// Tx - 工作单元
// =============================================================================

type moveKind int8

const (
	moveTransfer moveKind = iota
	moveMint
	moveBurn
)

type move struct {
	kind   moveKind
	from   keys.Address
	to     keys.Address
	amount uint64
}

type pendingCreate struct {
	addr       keys.Address
	kind       AccountKind
	mint       string
	owner      string
	minBalance uint64
}

// Tx 一次原子变更的暂存区
// 所有 Transfer/Mint/Burn 只是登记意图，Commit 才校验并落账
type Tx struct {
	ledger  *Ledger
	ref     string
	moves   []move
	creates []pendingCreate
}

// Begin 开启工作单元
// ref 写进每条流水，标记触发操作
func (l *Ledger) Begin(ref string) *Tx {
	return &Tx{ledger: l, ref: ref}
}

// EnsureAccount 账户不存在则在提交时创建 (买家代币账户按需建)
func (t *Tx) EnsureAccount(addr keys.Address, kind AccountKind, mint, owner string, minBalance uint64) *Tx {
	t.creates = append(t.creates, pendingCreate{addr, kind, mint, owner, minBalance})
	return t
}

// Transfer 登记转账
func (t *Tx) Transfer(from, to keys.Address, amount uint64) *Tx {
	t.moves = append(t.moves, move{moveTransfer, from, to, amount})
	return t
}

// Mint 登记铸造 (只有贷方)
func (t *Tx) Mint(to keys.Address, amount uint64) *Tx {
	t.moves = append(t.moves, move{moveMint, keys.Zero, to, amount})
	return t
}

// Burn 登记销毁 (只有借方)
func (t *Tx) Burn(from keys.Address, amount uint64) *Tx {
	t.moves = append(t.moves, move{moveBurn, from, keys.Zero, amount})
	return t
}

// Commit 校验并落账
//
// 【两阶段】
// 1. 在影子余额上按顺序回放所有动作，任何一步失败立即返回错误，账本不动
// 2. 全部通过后一次性写回真实账户并生成流水
func (t *Tx) Commit() error {
	return t.CommitWith(nil)
}

// CommitWith 校验通过后、落账之前先执行 fn
//
// 记录回写 (曲线状态、持仓账页、保证金账户) 放进 fn，
// fn 失败时账本分文不动: 余额移动与记录更新同属一个工作单元，
// 不会出现钱动了而记录没跟上的半截状态
func (t *Tx) CommitWith(fn func() error) error {
	l := t.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	// 阶段一: 影子回放
	shadow := make(map[keys.Address]uint64)
	created := make(map[keys.Address]*pendingCreate)

	balanceOf := func(addr keys.Address) (uint64, uint64, bool) {
		if b, ok := shadow[addr]; ok {
			if acc, exists := l.accounts[addr]; exists {
				return b, acc.MinBalance, true
			}
			if pc, pending := created[addr]; pending {
				return b, pc.minBalance, true
			}
			return b, 0, true
		}
		if acc, ok := l.accounts[addr]; ok {
			return acc.Balance, acc.MinBalance, true
		}
		if pc, ok := created[addr]; ok {
			return 0, pc.minBalance, true
		}
		return 0, 0, false
	}

	for i := range t.creates {
		pc := &t.creates[i]
		if _, exists := l.accounts[pc.addr]; exists {
			continue // 已存在，跳过
		}
		created[pc.addr] = pc
	}

	for _, mv := range t.moves {
		if mv.amount == 0 {
			return ErrZeroAmount
		}
		if mv.amount > math.MaxInt64 {
			return fixmath.ErrMathOverflow
		}
		// 借方
		if mv.kind != moveMint {
			bal, minBal, ok := balanceOf(mv.from)
			if !ok {
				return ErrAccountNotFound
			}
			if bal < mv.amount {
				return ErrInsufficientFunds
			}
			remaining := bal - mv.amount
			if remaining < minBal {
				return ErrBelowMinBalance
			}
			shadow[mv.from] = remaining
		}
		// 贷方
		if mv.kind != moveBurn {
			bal, _, ok := balanceOf(mv.to)
			if !ok {
				return ErrAccountNotFound
			}
			newBal, err := fixmath.CheckedAdd(bal, mv.amount)
			if err != nil {
				return err
			}
			shadow[mv.to] = newBal
		}
	}

	// 记录回写: 校验已通过但账本还没动，失败即整体放弃
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}

	// 阶段二: 落账
	now := time.Now().UnixMilli()
	for addr, pc := range created {
		l.createLocked(addr, pc.kind, pc.mint, pc.owner, pc.minBalance)
	}

	journals := make([]*Journal, 0, len(t.moves)*2)
	touched := make(map[keys.Address]*Account)
	apply := func(addr keys.Address, delta int64, counterparty keys.Address, kind JournalKind) {
		acc := l.accounts[addr]
		if delta >= 0 {
			acc.Balance += uint64(delta)
		} else {
			acc.Balance -= uint64(-delta)
		}
		acc.UpdatedAt = now
		touched[addr] = acc
		journals = append(journals, &Journal{
			ID:           ids.Next(),
			Account:      acc.Address,
			Counterparty: counterparty.String(),
			Kind:         kind,
			Delta:        delta,
			BalanceAfter: acc.Balance,
			Ref:          t.ref,
			CreatedAt:    now,
		})
	}

	for _, mv := range t.moves {
		switch mv.kind {
		case moveTransfer:
			apply(mv.from, -int64(mv.amount), mv.to, JournalTransfer)
			apply(mv.to, int64(mv.amount), mv.from, JournalTransfer)
		case moveMint:
			apply(mv.to, int64(mv.amount), keys.Zero, JournalMint)
		case moveBurn:
			apply(mv.from, -int64(mv.amount), keys.Zero, JournalBurn)
		}
	}

	// 持久化钩子 (失败只记日志级别的错误向上抛，内存账本已是事实状态)
	if l.store != nil {
		accs := make([]*Account, 0, len(touched))
		for _, acc := range touched {
			cp := *acc
			accs = append(accs, &cp)
		}
		return l.store.Persist(accs, journals)
	}
	return nil
}
