// 文件: pkg/launch/processor_test.go
// 发射处理器集成测试: 内存仓储 + 内存账本 + 内存事件

package launch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonpad.com/pkg/events"
	"moonpad.com/pkg/platform"
	"moonpad.com/pkg/vault"
)

type launchHarness struct {
	proc    *Processor
	repo    *MemoryRepository
	ledger  *vault.Ledger
	emitter *events.MemoryEmitter
	pm      *platform.Manager
}

// newLaunchHarness 平台费 1%，迁移阈值可调
func newLaunchHarness(t *testing.T, migrationThreshold uint64) *launchHarness {
	t.Helper()
	pm := platform.NewManager(platform.NewMemoryRepository())
	_, err := pm.Initialize(context.Background(), "admin", 100, migrationThreshold)
	require.NoError(t, err)

	repo := NewMemoryRepository()
	ledger := vault.NewLedger()
	emitter := events.NewMemoryEmitter()
	return &launchHarness{
		proc:    NewProcessor(pm, repo, ledger, nil, emitter),
		repo:    repo,
		ledger:  ledger,
		emitter: emitter,
		pm:      pm,
	}
}

// fund 给用户钱包铸入基础资产
func (h *launchHarness) fund(t *testing.T, owner string, amount uint64) {
	t.Helper()
	tx := h.ledger.Begin("test_fund")
	tx.EnsureAccount(WalletAddress(owner), vault.KindBase, "", owner, 0)
	tx.Mint(WalletAddress(owner), amount)
	require.NoError(t, tx.Commit())
}

// createToken 创建者费 1%
func (h *launchHarness) createToken(t *testing.T, mint string) *TokenLaunch {
	t.Helper()
	l, err := h.proc.CreateToken(context.Background(), &CreateTokenRequest{
		Creator:       "creator",
		Mint:          mint,
		Name:          "Moon Token",
		Symbol:        "MOON",
		URI:           "https://moon.example/meta.json",
		CreatorFeeBps: 100,
	})
	require.NoError(t, err)
	return l
}

// =============================================================================
// create_token
// =============================================================================

func TestCreateToken(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	l := h.createToken(t, "mintA")

	assert.Equal(t, uint64(TotalSupply), l.TotalSupply)
	assert.Zero(t, l.TokensSold)
	assert.False(t, l.Migrated)

	// 全部供应量在库存金库，储备金库垫着租金线
	assert.Equal(t, uint64(TotalSupply), h.ledger.Balance(TokenVaultAddress("mintA")))
	assert.Equal(t, uint64(vault.RentExemptMinimum), h.ledger.Balance(ReserveVaultAddress("mintA")))

	cfg, err := h.pm.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.TotalLaunches)
	assert.Len(t, h.emitter.ByKind(events.KindTokenCreated), 1)
}

func TestCreateTokenValidation(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	ctx := context.Background()

	_, err := h.proc.CreateToken(ctx, &CreateTokenRequest{
		Creator: "c", Mint: "m1", Name: strings.Repeat("x", MaxNameLen+1), Symbol: "S",
	})
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, err = h.proc.CreateToken(ctx, &CreateTokenRequest{
		Creator: "c", Mint: "m1", Name: "ok", Symbol: strings.Repeat("x", MaxSymbolLen+1),
	})
	assert.ErrorIs(t, err, ErrSymbolTooLong)

	_, err = h.proc.CreateToken(ctx, &CreateTokenRequest{
		Creator: "c", Mint: "m1", Name: "ok", Symbol: "S", URI: strings.Repeat("x", MaxURILen+1),
	})
	assert.ErrorIs(t, err, ErrURITooLong)

	_, err = h.proc.CreateToken(ctx, &CreateTokenRequest{
		Creator: "c", Mint: "m1", Name: "ok", Symbol: "S", CreatorFeeBps: MaxCreatorFeeBps + 1,
	})
	assert.ErrorIs(t, err, ErrFeeTooHigh)
}

func TestCreateTokenDuplicateMint(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")

	_, err := h.proc.CreateToken(context.Background(), &CreateTokenRequest{
		Creator: "other", Mint: "mintA", Name: "Dup", Symbol: "DUP",
	})
	assert.ErrorIs(t, err, ErrLaunchExists)
}

// =============================================================================
// buy
// =============================================================================

// TestBuyFeeSplit 1 SOL 买入、双边各 1% 费:
// 平台 1e7、创建者 1e7、储备 9.8e8、产出 1e12
func TestBuyFeeSplit(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 2_000_000_000)
	ctx := context.Background()

	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), tokens)

	assert.Equal(t, uint64(10_000_000), h.ledger.Balance(platform.VaultAddress()))
	assert.Equal(t, uint64(10_000_000), h.ledger.Balance(WalletAddress("creator")))
	assert.Equal(t, uint64(vault.RentExemptMinimum+980_000_000),
		h.ledger.Balance(ReserveVaultAddress("mintA")))
	assert.Equal(t, tokens, h.ledger.Balance(TokenAccountAddress("alice", "mintA")))
	assert.Equal(t, uint64(1_000_000_000), h.ledger.Balance(WalletAddress("alice")))

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, tokens, l.TokensSold)
	assert.Equal(t, uint64(980_000_000), l.Reserve)
	assert.Equal(t, uint64(1_000_000_000), l.TotalVolume)

	pos, err := h.repo.GetPosition(ctx, "alice", "mintA")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, tokens, pos.TokensBought)
	assert.Equal(t, uint64(1_000_000_000), pos.SolSpent)

	bought := h.emitter.ByKind(events.KindTokenBought)
	require.Len(t, bought, 1)
	payload := bought[0].Payload.(events.TokenBought)
	assert.Equal(t, uint64(1000), payload.Price)
}

// TestBuyInsufficientFunds 钱包余额不足时整笔回滚，曲线状态不变
func TestBuyInsufficientFunds(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 100)
	ctx := context.Background()

	_, err := h.proc.Buy(ctx, "alice", "mintA", 1_000_000_000)
	assert.ErrorIs(t, err, vault.ErrInsufficientFunds)

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Zero(t, l.TokensSold)
	assert.Zero(t, l.Reserve)
	assert.Equal(t, uint64(100), h.ledger.Balance(WalletAddress("alice")))
	assert.Empty(t, h.emitter.ByKind(events.KindTokenBought))
}

func TestBuyGuards(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 1_000_000)
	ctx := context.Background()

	_, err := h.proc.Buy(ctx, "alice", "mintA", 0)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = h.proc.Buy(ctx, "alice", "unknown", 1000)
	assert.ErrorIs(t, err, ErrLaunchNotFound)

	paused := true
	_, err = h.pm.Update(ctx, "admin", &platform.UpdateRequest{Paused: &paused})
	require.NoError(t, err)
	_, err = h.proc.Buy(ctx, "alice", "mintA", 1000)
	assert.ErrorIs(t, err, ErrPlatformPaused)
}

// TestBuyMigrationFlip 储备过线后发射进入终态，买卖全部拒绝
func TestBuyMigrationFlip(t *testing.T) {
	h := newLaunchHarness(t, 500_000) // 阈值 0.0005 SOL
	h.createToken(t, "mintA")
	h.fund(t, "alice", 10_000_000)
	ctx := context.Background()

	// net = 1_000_000·98% = 980_000 ≥ 500_000
	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 1_000_000)
	require.NoError(t, err)
	require.NotZero(t, tokens)

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, l.Migrated)

	_, err = h.proc.Buy(ctx, "alice", "mintA", 1_000_000)
	assert.ErrorIs(t, err, ErrAlreadyMigrated)
	_, err = h.proc.Sell(ctx, "alice", "mintA", tokens)
	assert.ErrorIs(t, err, ErrAlreadyMigrated)
}

// =============================================================================
// sell
// =============================================================================

// TestSellMoreThanSold 超出流通量直接拒绝，账本与记录都不动
func TestSellMoreThanSold(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 1_000_000)
	ctx := context.Background()

	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 100_000)
	require.NoError(t, err)

	_, err = h.proc.Sell(ctx, "alice", "mintA", tokens+1)
	assert.ErrorIs(t, err, ErrInsufficientTokensSold)

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, tokens, l.TokensSold)
	assert.Equal(t, tokens, h.ledger.Balance(TokenAccountAddress("alice", "mintA")))
}

// TestSellRoundTripLoss 买 20_000 再卖一半:
// 回款净额 9_948 < 花费的一半 10_000，双边手续费造成亏损
func TestSellRoundTripLoss(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 20_000)
	ctx := context.Background()

	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 20_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000_000), tokens) // 20_000·1e6/1000

	// 卖一半: avg = 1000 + (2e7+1e7)·1e9/(2·1e15) = 1015
	// 毛回款 10_150，费各 101，净 9_948
	net, err := h.proc.Sell(ctx, "alice", "mintA", tokens/2)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_948), net)
	assert.Less(t, net, uint64(10_000))

	// 平台金库累计两边的费: 买 200 + 卖 101
	assert.Equal(t, uint64(301), h.ledger.Balance(platform.VaultAddress()))
	assert.Equal(t, uint64(301), h.ledger.Balance(WalletAddress("creator")))

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, tokens/2, l.TokensSold)
	assert.Equal(t, uint64(19_600-10_150), l.Reserve)
	assert.Equal(t, net, h.ledger.Balance(WalletAddress("alice")))
}

// TestSellFullExceedsReserve 单笔买入后全量卖出:
// 毛回款按含费均价折算，超出只收净额的储备 → 拒绝
func TestSellFullExceedsReserve(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 20_000)
	ctx := context.Background()

	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 20_000)
	require.NoError(t, err)

	// 毛回款 20_200 → 净 19_796 > 储备 19_600
	_, err = h.proc.Sell(ctx, "alice", "mintA", tokens)
	assert.ErrorIs(t, err, ErrInsufficientReserve)
}

func TestSellZeroAmount(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")

	_, err := h.proc.Sell(context.Background(), "alice", "mintA", 0)
	assert.ErrorIs(t, err, ErrZeroAmount)
}

// =============================================================================
// stake / unstake
// =============================================================================

func TestStakeUnstake(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 1_000_000)
	ctx := context.Background()

	tokens, err := h.proc.Buy(ctx, "alice", "mintA", 100_000)
	require.NoError(t, err)

	require.NoError(t, h.proc.Stake(ctx, "alice", "mintA", tokens))
	assert.Equal(t, tokens, h.ledger.Balance(StakeVaultAddress("mintA")))
	assert.Zero(t, h.ledger.Balance(TokenAccountAddress("alice", "mintA")))

	l, err := h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, tokens, l.TotalStaked)

	// 超额解押拒绝
	err = h.proc.Unstake(ctx, "alice", "mintA", tokens+1)
	assert.ErrorIs(t, err, ErrInsufficientStake)

	require.NoError(t, h.proc.Unstake(ctx, "alice", "mintA", tokens))
	assert.Equal(t, tokens, h.ledger.Balance(TokenAccountAddress("alice", "mintA")))

	l, err = h.repo.GetLaunch(ctx, "mintA")
	require.NoError(t, err)
	assert.Zero(t, l.TotalStaked)
	assert.Len(t, h.emitter.ByKind(events.KindTokenStaked), 1)
	assert.Len(t, h.emitter.ByKind(events.KindTokenUnstaked), 1)
}

// TestUnstakeOnlyOwnStake 共享质押金库按人核对额度: 别人押的取不走
func TestUnstakeOnlyOwnStake(t *testing.T) {
	h := newLaunchHarness(t, 1<<62)
	h.createToken(t, "mintA")
	h.fund(t, "alice", 1_000_000)
	h.fund(t, "bob", 1_000_000)
	ctx := context.Background()

	aliceTokens, err := h.proc.Buy(ctx, "alice", "mintA", 100_000)
	require.NoError(t, err)
	require.NoError(t, h.proc.Stake(ctx, "alice", "mintA", aliceTokens))

	// bob 从未质押，哪怕金库里有量也取不到
	err = h.proc.Unstake(ctx, "bob", "mintA", aliceTokens)
	assert.ErrorIs(t, err, ErrInsufficientStake)
	assert.Equal(t, aliceTokens, h.ledger.Balance(StakeVaultAddress("mintA")))
	assert.Zero(t, h.ledger.Balance(TokenAccountAddress("bob", "mintA")))

	// bob 自己押了一部分，也只能取回这一部分
	bobTokens, err := h.proc.Buy(ctx, "bob", "mintA", 50_000)
	require.NoError(t, err)
	require.NoError(t, h.proc.Stake(ctx, "bob", "mintA", bobTokens))
	err = h.proc.Unstake(ctx, "bob", "mintA", bobTokens+1)
	assert.ErrorIs(t, err, ErrInsufficientStake)
	require.NoError(t, h.proc.Unstake(ctx, "bob", "mintA", bobTokens))
	assert.Equal(t, bobTokens, h.ledger.Balance(TokenAccountAddress("bob", "mintA")))

	// alice 的量原封不动
	assert.Equal(t, aliceTokens, h.ledger.Balance(StakeVaultAddress("mintA")))
	pos, err := h.repo.GetPosition(ctx, "alice", "mintA")
	require.NoError(t, err)
	assert.Equal(t, aliceTokens, pos.Staked)
}

// =============================================================================
// 工作单元: 记录落库失败时账本分文不动
// =============================================================================

// flakyRepo 包装内存仓储，按开关让曲线状态回写失败
type flakyRepo struct {
	*MemoryRepository
	failUpdate bool
}

var errStorageDown = errors.New("storage offline")

func (r *flakyRepo) UpdateLaunch(ctx context.Context, l *TokenLaunch) error {
	if r.failUpdate {
		return errStorageDown
	}
	return r.MemoryRepository.UpdateLaunch(ctx, l)
}

func TestBuyRecordFailureLeavesLedgerUntouched(t *testing.T) {
	pm := platform.NewManager(platform.NewMemoryRepository())
	_, err := pm.Initialize(context.Background(), "admin", 100, 1<<62)
	require.NoError(t, err)

	repo := &flakyRepo{MemoryRepository: NewMemoryRepository()}
	ledger := vault.NewLedger()
	proc := NewProcessor(pm, repo, ledger, nil, events.NewMemoryEmitter())
	ctx := context.Background()

	_, err = proc.CreateToken(ctx, &CreateTokenRequest{
		Creator: "creator", Mint: "mintF", Name: "Moon Token", Symbol: "MOON", CreatorFeeBps: 100,
	})
	require.NoError(t, err)

	tx := ledger.Begin("test_fund")
	tx.EnsureAccount(WalletAddress("alice"), vault.KindBase, "", "alice", 0)
	tx.Mint(WalletAddress("alice"), 50_000)
	require.NoError(t, tx.Commit())

	repo.failUpdate = true
	_, err = proc.Buy(ctx, "alice", "mintF", 20_000)
	assert.ErrorIs(t, err, errStorageDown)

	// 钱没动: 钱包原封，储备金库只有租金垫底，费金库没长
	assert.Equal(t, uint64(50_000), ledger.Balance(WalletAddress("alice")))
	assert.Equal(t, uint64(vault.RentExemptMinimum), ledger.Balance(ReserveVaultAddress("mintF")))
	assert.Zero(t, ledger.Balance(platform.VaultAddress()))
	assert.Equal(t, uint64(TotalSupply), ledger.Balance(TokenVaultAddress("mintF")))

	// 曲线状态也原封
	l, err := repo.GetLaunch(ctx, "mintF")
	require.NoError(t, err)
	assert.Zero(t, l.TokensSold)

	// 仓储恢复后同一笔买入照常成交
	repo.failUpdate = false
	tokens, err := proc.Buy(ctx, "alice", "mintF", 20_000)
	require.NoError(t, err)
	assert.NotZero(t, tokens)
}
