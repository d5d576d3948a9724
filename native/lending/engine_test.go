package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"lendcore/native/bank"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
)

type memoryState struct {
	pools        map[string]*PoolState
	positions    map[string]*AssetPosition
	fees         map[string]*FeeAccrual
	liquidations []LiquidationRecord
}

func newMemoryState() *memoryState {
	return &memoryState{
		pools:     make(map[string]*PoolState),
		positions: make(map[string]*AssetPosition),
		fees:      make(map[string]*FeeAccrual),
	}
}

func (s *memoryState) Pool(asset string) (*PoolState, error) {
	return s.pools[asset].Clone(), nil
}

func (s *memoryState) PutPool(asset string, pool *PoolState) error {
	s.pools[asset] = pool.Clone()
	return nil
}

func (s *memoryState) Position(account, asset string) (*AssetPosition, error) {
	return s.positions[account+"/"+asset].Clone(), nil
}

func (s *memoryState) PutPosition(account, asset string, position *AssetPosition) error {
	s.positions[account+"/"+asset] = position.Clone()
	return nil
}

func (s *memoryState) Fees(asset string) (*FeeAccrual, error) {
	return s.fees[asset].Clone(), nil
}

func (s *memoryState) PutFees(asset string, fees *FeeAccrual) error {
	s.fees[asset] = fees.Clone()
	return nil
}

func (s *memoryState) AppendLiquidation(record LiquidationRecord) error {
	s.liquidations = append(s.liquidations, record)
	return nil
}

type transfer struct {
	asset   string
	account string
	amount  *big.Int
}

type mockBank struct {
	failIn  bool
	failOut bool
	in      []transfer
	out     []transfer
}

func (b *mockBank) TransferIn(asset, from string, amount *big.Int) error {
	if b.failIn {
		return errors.New("transfer in rejected")
	}
	b.in = append(b.in, transfer{asset: asset, account: from, amount: new(big.Int).Set(amount)})
	return nil
}

func (b *mockBank) TransferOut(asset, to string, amount *big.Int) error {
	if b.failOut {
		return errors.New("transfer out rejected")
	}
	b.out = append(b.out, transfer{asset: asset, account: to, amount: new(big.Int).Set(amount)})
	return nil
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

type fixture struct {
	engine *Engine
	state  *memoryState
	bank   *mockBank
	prices *oracle.ManualOracle
	minter *MemoryMinter
	rates  map[string]*big.Rat
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := NewRegistry()
	assets := []Asset{
		{Symbol: "ETH", Decimals: 18, CollateralFactorBps: 7500, LiquidationThresholdBps: 8000, ReserveFactorBps: 1000, Active: true},
		{Symbol: "USDU", Decimals: 6, CollateralFactorBps: 8500, LiquidationThresholdBps: 9000, ReserveFactorBps: 1000, Active: true},
	}
	for _, asset := range assets {
		if err := registry.Register(asset); err != nil {
			t.Fatalf("register %s: %v", asset.Symbol, err)
		}
	}

	fx := &fixture{
		state:  newMemoryState(),
		bank:   &mockBank{},
		prices: oracle.NewManualOracle(),
		minter: NewMemoryMinter(),
		rates:  make(map[string]*big.Rat),
		now:    time.Unix(1_700_000_000, 0),
	}
	fx.engine = NewEngine(registry, fx.state, fx.bank, fx.prices)
	fx.engine.SetRewardMinter(fx.minter)
	fx.engine.SetClock(func() time.Time { return fx.now })
	fx.setPrice("ETH", "2000")
	fx.setPrice("USDU", "1")
	return fx
}

func (fx *fixture) setPrice(symbol, rate string) {
	rat, ok := new(big.Rat).SetString(rate)
	if !ok {
		panic("invalid test rate " + rate)
	}
	fx.rates[symbol] = rat
	fx.prices.Set(symbol, rat, fx.now)
}

// advance moves the clock forward and re-stamps every quote so only accrual,
// not oracle freshness, observes the elapsed time.
func (fx *fixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
	for symbol, rate := range fx.rates {
		fx.prices.Set(symbol, rate, fx.now)
	}
}

func eth(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), pow10(18))
}

func usdu(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), pow10(6))
}

func TestDepositMintsSharesAndReward(t *testing.T) {
	fx := newFixture(t)

	reward, err := fx.engine.Deposit("alice", "eth", eth(5))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if reward.Cmp(eth(5)) != 0 {
		t.Fatalf("reward = %s, want %s", reward, eth(5))
	}
	if got := fx.minter.BalanceOf("alice"); got.Cmp(eth(5)) != 0 {
		t.Fatalf("minted balance = %s", got)
	}

	pool := fx.state.pools["ETH"]
	if pool.TotalDeposited.Cmp(eth(5)) != 0 {
		t.Fatalf("pool deposited = %s", pool.TotalDeposited)
	}
	position := fx.state.positions["alice/ETH"]
	if position.SupplyShares.Cmp(eth(5)) != 0 {
		t.Fatalf("supply shares = %s", position.SupplyShares)
	}
	if len(fx.bank.in) != 1 || fx.bank.in[0].asset != "ETH" || fx.bank.in[0].amount.Cmp(eth(5)) != 0 {
		t.Fatalf("unexpected transfers: %+v", fx.bank.in)
	}
}

func TestDepositValidation(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "DOGE", eth(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("unsupported asset: %v", err)
	}
	if err := fx.engine.Registry().SetActive("ETH", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := fx.engine.Deposit("alice", "ETH", eth(1)); !errors.Is(err, ErrAssetInactive) {
		t.Fatalf("inactive asset: %v", err)
	}
	if _, err := fx.engine.Deposit("alice", "USDU", big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := fx.engine.Deposit("alice", "USDU", nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("nil amount: %v", err)
	}
	if _, err := fx.engine.Deposit("  ", "USDU", usdu(1)); err == nil {
		t.Fatal("expected empty account to be rejected")
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Withdraw("alice", "ETH", eth(5)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	position := fx.state.positions["alice/ETH"]
	if position.SupplyShares.Sign() != 0 {
		t.Fatalf("residual shares = %s", position.SupplyShares)
	}
	pool := fx.state.pools["ETH"]
	if pool.TotalDeposited.Sign() != 0 {
		t.Fatalf("residual deposits = %s", pool.TotalDeposited)
	}

	if err := fx.engine.Withdraw("alice", "ETH", eth(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-withdraw: %v", err)
	}
}

func TestWithdrawInsufficientLiquidity(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(80)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	if err := fx.engine.Withdraw("alice", "USDU", usdu(100)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected liquidity error, got %v", err)
	}
	if err := fx.engine.Withdraw("alice", "USDU", usdu(20)); err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
}

func TestWithdrawGuardsHealthFactor(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(7000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Removing 2 ETH leaves 3 ETH: 3 * 2000 * 0.80 = 4800 USD of weighted
	// collateral against 7000 USD of debt.
	if err := fx.engine.Withdraw("bob", "ETH", eth(2)); !errors.Is(err, ErrUndercollateralized) {
		t.Fatalf("expected undercollateralized, got %v", err)
	}

	// A small trim keeps the health factor above 1.
	if err := fx.engine.Withdraw("bob", "ETH", new(big.Int).Div(eth(1), big.NewInt(10))); err != nil {
		t.Fatalf("safe withdraw: %v", err)
	}
}

func TestRepayThenWithdrawCollateral(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(7000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	if err := fx.engine.Withdraw("bob", "ETH", eth(5)); !errors.Is(err, ErrUndercollateralized) {
		t.Fatalf("expected undercollateralized, got %v", err)
	}

	repaid, err := fx.engine.Repay("bob", "USDU", usdu(7000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repaid.Cmp(usdu(7000)) != 0 {
		t.Fatalf("repaid = %s", repaid)
	}

	// With the debt cleared the full collateral comes back out.
	if err := fx.engine.Withdraw("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("withdraw after repay: %v", err)
	}
	if position := fx.state.positions["bob/ETH"]; position.SupplyShares.Sign() != 0 {
		t.Fatalf("residual supply shares: %s", position.SupplyShares)
	}
}

func TestBorrowAgainstCapacity(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 5 ETH at 2000 USD and a 75% collateral factor supports exactly 7500
	// USDU of stable debt.
	if err := fx.engine.Borrow("bob", "USDU", usdu(7500)); err != nil {
		t.Fatalf("borrow at capacity: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", big.NewInt(1)); !errors.Is(err, ErrExceedsBorrowCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	position := fx.state.positions["bob/USDU"]
	if position.Principal.Cmp(usdu(7500)) != 0 {
		t.Fatalf("principal = %s", position.Principal)
	}
}

func TestBorrowRequiresLiquidity(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(200)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected liquidity error, got %v", err)
	}
}

func TestRepayClampsAndSplitsInterest(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(2000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(1000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// One year at 50% utilisation accrues 2.5% on the 1000 USDU principal.
	fx.advance(365 * 24 * time.Hour)

	repaid, err := fx.engine.Repay("bob", "USDU", usdu(2000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	wantDebt := usdu(1025)
	if repaid.Cmp(wantDebt) != 0 {
		t.Fatalf("repaid = %s, want %s", repaid, wantDebt)
	}

	position := fx.state.positions["bob/USDU"]
	if position.ScaledDebt.Sign() != 0 || position.Principal.Sign() != 0 {
		t.Fatalf("residual debt: %s / %s", position.ScaledDebt, position.Principal)
	}
	pool := fx.state.pools["USDU"]
	if pool.TotalBorrowed.Sign() != 0 {
		t.Fatalf("pool borrowed = %s", pool.TotalBorrowed)
	}
	// Accrued interest stays with the pool, minus the 10% reserve cut.
	if pool.TotalDeposited.Cmp(usdu(2025)) != 0 {
		t.Fatalf("pool deposited = %s", pool.TotalDeposited)
	}
	fees := fx.state.fees["USDU"]
	wantFees := new(big.Int).Div(usdu(25), big.NewInt(10))
	if fees.ReserveFees.Cmp(wantFees) != 0 {
		t.Fatalf("reserve fees = %s, want %s", fees.ReserveFees, wantFees)
	}
}

func TestRepayWithoutDebt(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.engine.Repay("bob", "USDU", usdu(10)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected no-debt error, got %v", err)
	}
}

func TestAccrualIdempotentWithinSameSecond(t *testing.T) {
	fx := newFixture(t)
	asset, _ := fx.engine.Registry().Get("USDU")

	pool := &PoolState{
		TotalDeposited: usdu(2000),
		TotalBorrowed:  usdu(1000),
		SupplyIndex:    new(big.Int).Set(ray),
		BorrowIndex:    new(big.Int).Set(ray),
		LastAccrual:    uint64(fx.now.Unix()),
	}
	fees := &FeeAccrual{ReserveFees: big.NewInt(0)}

	fx.advance(time.Hour)
	first := fx.engine.accrue(asset, pool, fees)
	if first.Sign() == 0 {
		t.Fatal("expected interest after an hour")
	}
	borrowIndex := new(big.Int).Set(pool.BorrowIndex)
	borrowed := new(big.Int).Set(pool.TotalBorrowed)

	second := fx.engine.accrue(asset, pool, fees)
	if second.Sign() != 0 {
		t.Fatalf("second accrual minted %s", second)
	}
	if pool.BorrowIndex.Cmp(borrowIndex) != 0 || pool.TotalBorrowed.Cmp(borrowed) != 0 {
		t.Fatal("second accrual changed the pool")
	}
}

func TestTransferFailureLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.bank.failIn = true

	_, err := fx.engine.Deposit("alice", "ETH", eth(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if _, ok := fx.state.pools["ETH"]; ok {
		t.Fatal("pool persisted despite failed transfer")
	}
	if got := fx.minter.TotalMinted(); got.Sign() != 0 {
		t.Fatalf("reward minted despite failed transfer: %s", got)
	}
}

func TestPausedModuleRejectsOperations(t *testing.T) {
	fx := newFixture(t)
	fx.engine.SetPauses(pauseAll{})

	if _, err := fx.engine.Deposit("alice", "ETH", eth(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("deposit while paused: %v", err)
	}
	if err := fx.engine.Borrow("alice", "USDU", usdu(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("borrow while paused: %v", err)
	}
}

func TestStalePriceBlocksBorrow(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Move past the freshness window without restamping the quotes.
	fx.now = fx.now.Add(10 * time.Minute)

	if err := fx.engine.Borrow("bob", "USDU", usdu(100)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
}

type failingMinter struct{}

func (failingMinter) Mint(string, *big.Int) error { return errors.New("mint authority offline") }

func TestDepositMintFailureRefundsFunds(t *testing.T) {
	fx := newFixture(t)
	vault := bank.NewVault()
	engine := NewEngine(fx.engine.Registry(), fx.state, vault, fx.prices)
	engine.SetRewardMinter(failingMinter{})
	engine.SetClock(func() time.Time { return fx.now })

	if err := vault.Credit("ETH", "alice", eth(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Deposit("alice", "ETH", eth(5)); !errors.Is(err, errRewardMint) {
		t.Fatalf("expected reward mint failure, got %v", err)
	}

	if balance := vault.Balance("ETH", "alice"); balance.Cmp(eth(5)) != 0 {
		t.Fatalf("balance after failed deposit = %s", balance)
	}
	if custody := vault.Custody("ETH"); custody.Sign() != 0 {
		t.Fatalf("custody after failed deposit = %s", custody)
	}
	if _, ok := fx.state.positions["alice/ETH"]; ok {
		t.Fatal("position persisted despite failed mint")
	}
}

func TestBorrowMintFailureClawsBackPayout(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(20_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(1000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Pending interest forces a treasury mint on the next operation.
	fx.advance(30 * 24 * time.Hour)
	params := DefaultParams()
	params.RewardTreasury = "treasury"
	fx.engine.SetParams(params)
	fx.engine.SetRewardMinter(failingMinter{})

	if err := fx.engine.Borrow("bob", "USDU", usdu(100)); !errors.Is(err, errRewardMint) {
		t.Fatalf("expected reward mint failure, got %v", err)
	}

	position := fx.state.positions["bob/USDU"]
	if position.Principal.Cmp(usdu(1000)) != 0 {
		t.Fatalf("principal changed on failed borrow: %s", position.Principal)
	}
	clawback := fx.bank.in[len(fx.bank.in)-1]
	if clawback.account != "bob" || clawback.asset != "USDU" || clawback.amount.Cmp(usdu(100)) != 0 {
		t.Fatalf("unexpected clawback transfer: %+v", clawback)
	}
}

func TestWithdrawReserveFees(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(2000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(1000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	fx.advance(365 * 24 * time.Hour)
	if _, err := fx.engine.Repay("bob", "USDU", usdu(2000)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	// A year at 50% utilisation left 2.5 USDU in the reserve; asking for more
	// clamps to the accrued balance.
	paid, err := fx.engine.WithdrawReserveFees("ops", "USDU", usdu(10))
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	want := new(big.Int).Div(usdu(25), big.NewInt(10))
	if paid.Cmp(want) != 0 {
		t.Fatalf("paid = %s, want %s", paid, want)
	}

	fees := fx.state.fees["USDU"]
	if fees.ReserveFees.Sign() != 0 {
		t.Fatalf("residual reserve fees: %s", fees.ReserveFees)
	}
	pool := fx.state.pools["USDU"]
	wantDeposited := new(big.Int).Sub(usdu(2025), want)
	if pool.TotalDeposited.Cmp(wantDeposited) != 0 {
		t.Fatalf("pool deposited = %s, want %s", pool.TotalDeposited, wantDeposited)
	}
	payout := fx.bank.out[len(fx.bank.out)-1]
	if payout.account != "ops" || payout.asset != "USDU" || payout.amount.Cmp(want) != 0 {
		t.Fatalf("unexpected fee payout transfer: %+v", payout)
	}

	if _, err := fx.engine.WithdrawReserveFees("ops", "USDU", usdu(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected empty reserve error, got %v", err)
	}
}
