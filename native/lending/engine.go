package lending

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"lendcore/core/events"
	"lendcore/native/bank"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
)

const moduleName = "lending"

// Engine orchestrates every state transition of the lending ledger. All
// state-changing operations run under one exclusive lock so the accrual,
// check and mutation sequence is never interleaved; read-only risk queries
// take the shared lock and observe the latest committed state.
type Engine struct {
	mu       sync.RWMutex
	state    State
	registry *Registry
	bank     bank.Transferor
	prices   oracle.PriceOracle
	minter   RewardMinter
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	model    *InterestModel
	params   Params
	now      func() time.Time
}

// NewEngine constructs a lending engine bound to the asset registry, the
// persistence layer, the token transfer primitive and the price oracle.
func NewEngine(registry *Registry, state State, transferor bank.Transferor, prices oracle.PriceOracle) *Engine {
	return &Engine{
		state:    state,
		registry: registry,
		bank:     transferor,
		prices:   prices,
		emitter:  events.NoopEmitter{},
		model:    DefaultInterestModel.Clone(),
		params:   DefaultParams(),
		now:      time.Now,
	}
}

// SetInterestModel configures the interest rate model used by the engine.
func (e *Engine) SetInterestModel(model *InterestModel) {
	if e == nil {
		return
	}
	if model != nil {
		e.model = model.Clone()
	} else {
		e.model = DefaultInterestModel.Clone()
	}
}

// SetParams configures the protocol safety limits.
func (e *Engine) SetParams(params Params) {
	if e == nil {
		return
	}
	e.params = params.Normalise()
}

// SetEmitter wires the engine to a downstream event subscriber.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetRewardMinter wires the reward-token mint authority.
func (e *Engine) SetRewardMinter(minter RewardMinter) {
	if e == nil {
		return
	}
	e.minter = minter
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the engine's time source. Used by tests and by
// deterministic replay harnesses.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// Registry exposes the engine's asset registry.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Deposit supplies amount of asset as collateral for the account. The reward
// minted against the new principal is returned. Deposits never fail on risk
// grounds.
func (e *Engine) Deposit(account, symbol string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return nil, err
	}
	asset, err := e.lookupAsset(symbol, true)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	pool, fees, interest, err := e.accruedPool(asset)
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(account, asset.Symbol)
	if err != nil {
		return nil, err
	}

	shares := sharesFromAmount(amount, pool.SupplyIndex)
	reward := bpsShare(amount, e.params.RewardRateBps)

	if err := e.bank.TransferIn(asset.Symbol, account, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.mintRewards(account, reward, interest); err != nil {
		// Best-effort refund of the deposit already collected.
		_ = e.bank.TransferOut(asset.Symbol, account, amount)
		return nil, err
	}

	position.SupplyShares = new(big.Int).Add(position.SupplyShares, shares)
	pool.TotalDeposited = new(big.Int).Add(pool.TotalDeposited, amount)

	if err := e.persist(asset.Symbol, pool, fees, account, position); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingDeposited{
		Account:      account,
		Asset:        asset.Symbol,
		Amount:       new(big.Int).Set(amount),
		RewardMinted: new(big.Int).Set(reward),
	})
	return reward, nil
}

// Withdraw redeems amount of the account's deposit in asset. When the account
// carries any debt the post-withdrawal health factor must stay at or above 1.
func (e *Engine) Withdraw(account, symbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return err
	}
	asset, err := e.lookupAsset(symbol, false)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	pool, fees, interest, err := e.accruedPool(asset)
	if err != nil {
		return err
	}
	position, err := e.loadPosition(account, asset.Symbol)
	if err != nil {
		return err
	}

	deposit := amountFromShares(position.SupplyShares, pool.SupplyIndex)
	if amount.Cmp(deposit) > 0 {
		return ErrInsufficientBalance
	}
	if amount.Cmp(availableLiquidity(pool)) > 0 {
		return ErrInsufficientLiquidity
	}

	indebted, err := e.hasDebt(account)
	if err != nil {
		return err
	}
	if indebted {
		remaining := new(big.Int).Sub(deposit, amount)
		debt := amountFromShares(position.ScaledDebt, pool.BorrowIndex)
		view, err := e.riskLocked(account, map[string]effOverride{
			asset.Symbol: {deposit: remaining, debt: debt},
		})
		if err != nil {
			return err
		}
		if view.HealthFactor != nil && view.HealthFactor.Cmp(ratOne) < 0 {
			return ErrUndercollateralized
		}
	}

	burned := sharesFromAmountCeil(amount, pool.SupplyIndex)
	if burned.Cmp(position.SupplyShares) > 0 {
		burned = new(big.Int).Set(position.SupplyShares)
	}

	if err := e.bank.TransferOut(asset.Symbol, account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.mintRewards("", nil, interest); err != nil {
		// Best-effort clawback of the payout already released.
		_ = e.bank.TransferIn(asset.Symbol, account, amount)
		return err
	}

	position.SupplyShares = new(big.Int).Sub(position.SupplyShares, burned)
	pool.TotalDeposited = new(big.Int).Sub(pool.TotalDeposited, amount)

	if err := e.persist(asset.Symbol, pool, fees, account, position); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingWithdrawn{
		Account: account,
		Asset:   asset.Symbol,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Borrow draws amount of asset against the account's collateral. The borrow
// must fit within both the pool's unborrowed liquidity and the account's
// remaining borrowing capacity.
func (e *Engine) Borrow(account, symbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return err
	}
	asset, err := e.lookupAsset(symbol, true)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	pool, fees, interest, err := e.accruedPool(asset)
	if err != nil {
		return err
	}
	if amount.Cmp(availableLiquidity(pool)) > 0 {
		return ErrInsufficientLiquidity
	}
	position, err := e.loadPosition(account, asset.Symbol)
	if err != nil {
		return err
	}

	deposit := amountFromShares(position.SupplyShares, pool.SupplyIndex)
	debt := amountFromShares(position.ScaledDebt, pool.BorrowIndex)
	view, err := e.riskLocked(account, map[string]effOverride{
		asset.Symbol: {deposit: deposit, debt: debt},
	})
	if err != nil {
		return err
	}
	rate, err := e.quote(asset.Symbol)
	if err != nil {
		return err
	}
	if usdValue(amount, asset.Decimals, rate).Cmp(view.BorrowCapacityUSD) > 0 {
		return ErrExceedsBorrowCapacity
	}

	if err := e.bank.TransferOut(asset.Symbol, account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.mintRewards("", nil, interest); err != nil {
		// Best-effort clawback of the payout already released.
		_ = e.bank.TransferIn(asset.Symbol, account, amount)
		return err
	}

	position.ScaledDebt = new(big.Int).Add(position.ScaledDebt, sharesFromAmount(amount, pool.BorrowIndex))
	position.Principal = new(big.Int).Add(position.Principal, amount)
	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, amount)

	if err := e.persist(asset.Symbol, pool, fees, account, position); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingBorrowed{
		Account: account,
		Asset:   asset.Symbol,
		Amount:  new(big.Int).Set(amount),
		RateBps: e.model.BorrowRateBps(pool.TotalBorrowed, pool.TotalDeposited),
	})
	return nil
}

// Repay settles up to amount of the account's debt in asset. Overpayment is
// clamped to the outstanding debt rather than rejected; the actual amount
// repaid is returned.
func (e *Engine) Repay(account, symbol string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return nil, err
	}
	asset, err := e.lookupAsset(symbol, false)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	pool, fees, interest, err := e.accruedPool(asset)
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(account, asset.Symbol)
	if err != nil {
		return nil, err
	}
	debt := amountFromShares(position.ScaledDebt, pool.BorrowIndex)
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}

	repay := new(big.Int).Set(amount)
	if repay.Cmp(debt) > 0 {
		repay.Set(debt)
	}

	if err := e.bank.TransferIn(asset.Symbol, account, repay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.mintRewards("", nil, interest); err != nil {
		// Best-effort refund of the repayment already collected.
		_ = e.bank.TransferOut(asset.Symbol, account, repay)
		return nil, err
	}

	interestPortion := settleDebt(position, pool.BorrowIndex, debt, repay)
	pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, repay)
	if pool.TotalBorrowed.Sign() < 0 {
		pool.TotalBorrowed = big.NewInt(0)
	}

	if err := e.persist(asset.Symbol, pool, fees, account, position); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingRepaid{
		Account:  account,
		Asset:    asset.Symbol,
		Amount:   new(big.Int).Set(repay),
		Interest: interestPortion,
	})
	return repay, nil
}

// WithdrawReserveFees pays out up to amount of the asset's accrued reserve
// fees to the recipient. The payout is clamped to the accrued balance and the
// amount actually paid is returned.
func (e *Engine) WithdrawReserveFees(recipient, symbol string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	recipient, err := normaliseAccount(recipient)
	if err != nil {
		return nil, err
	}
	asset, err := e.lookupAsset(symbol, false)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	pool, fees, interest, err := e.accruedPool(asset)
	if err != nil {
		return nil, err
	}
	payout := new(big.Int).Set(amount)
	if payout.Cmp(fees.ReserveFees) > 0 {
		payout.Set(fees.ReserveFees)
	}
	if payout.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	// The reserve cut is only realised as custody once borrowers repay, so
	// the payout still has to fit within the pool's unborrowed liquidity.
	if payout.Cmp(availableLiquidity(pool)) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.bank.TransferOut(asset.Symbol, recipient, payout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.mintRewards("", nil, interest); err != nil {
		// Best-effort clawback of the payout already released.
		_ = e.bank.TransferIn(asset.Symbol, recipient, payout)
		return nil, err
	}

	fees.ReserveFees = new(big.Int).Sub(fees.ReserveFees, payout)
	pool.TotalDeposited = new(big.Int).Sub(pool.TotalDeposited, payout)

	if err := e.persist(asset.Symbol, pool, fees, "", nil); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingFeesWithdrawn{
		Recipient: recipient,
		Asset:     asset.Symbol,
		Amount:    new(big.Int).Set(payout),
	})
	return payout, nil
}

// settleDebt reduces the position's debt by repay, paying accrued interest
// before principal, and returns the interest portion.
func settleDebt(position *AssetPosition, borrowIndex, debt, repay *big.Int) *big.Int {
	interestOwed := new(big.Int).Sub(debt, position.Principal)
	if interestOwed.Sign() < 0 {
		interestOwed = big.NewInt(0)
	}
	interestPortion := new(big.Int).Set(repay)
	if interestPortion.Cmp(interestOwed) > 0 {
		interestPortion.Set(interestOwed)
	}
	principalPortion := new(big.Int).Sub(repay, interestPortion)

	if repay.Cmp(debt) == 0 {
		position.ScaledDebt = big.NewInt(0)
		position.Principal = big.NewInt(0)
		return interestPortion
	}
	scaled := sharesFromAmountCeil(repay, borrowIndex)
	if scaled.Cmp(position.ScaledDebt) > 0 {
		scaled = new(big.Int).Set(position.ScaledDebt)
	}
	position.ScaledDebt = new(big.Int).Sub(position.ScaledDebt, scaled)
	position.Principal = new(big.Int).Sub(position.Principal, principalPortion)
	if position.Principal.Sign() < 0 {
		position.Principal = big.NewInt(0)
	}
	return interestPortion
}

// accruedPool loads the asset's pool and fee accrual and compounds pending
// interest. The interest added to the pool is returned so callers can route
// the accrual reward. Accrual is idempotent within the same timestamp.
func (e *Engine) accruedPool(asset Asset) (*PoolState, *FeeAccrual, *big.Int, error) {
	pool, err := e.loadPool(asset.Symbol)
	if err != nil {
		return nil, nil, nil, err
	}
	fees, err := e.loadFees(asset.Symbol)
	if err != nil {
		return nil, nil, nil, err
	}
	interest := e.accrue(asset, pool, fees)
	return pool, fees, interest, nil
}

func (e *Engine) accrue(asset Asset, pool *PoolState, fees *FeeAccrual) *big.Int {
	now := uint64(e.now().Unix())
	if now <= pool.LastAccrual {
		return big.NewInt(0)
	}
	delta := now - pool.LastAccrual
	if pool.LastAccrual == 0 {
		// First touch of the pool establishes the accrual baseline.
		pool.LastAccrual = now
		return big.NewInt(0)
	}
	pool.LastAccrual = now
	if pool.TotalBorrowed.Sign() == 0 {
		return big.NewInt(0)
	}

	borrowBps := e.model.BorrowRateBps(pool.TotalBorrowed, pool.TotalDeposited)
	if borrowBps == 0 {
		return big.NewInt(0)
	}
	supplyBps := e.model.SupplyRateBps(pool.TotalBorrowed, pool.TotalDeposited, asset.ReserveFactorBps)

	pool.BorrowIndex = rayMul(pool.BorrowIndex, rateFactor(borrowBps, delta))
	pool.SupplyIndex = rayMul(pool.SupplyIndex, rateFactor(supplyBps, delta))

	interest := computeInterest(pool.TotalBorrowed, borrowBps, delta)
	if interest.Sign() == 0 {
		return interest
	}
	reserveCut := bpsShare(interest, asset.ReserveFactorBps)
	if reserveCut.Sign() > 0 {
		fees.ReserveFees = new(big.Int).Add(fees.ReserveFees, reserveCut)
	}
	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, interest)
	pool.TotalDeposited = new(big.Int).Add(pool.TotalDeposited, interest)
	return interest
}

// rateFactor returns the ray-scaled simple-interest multiplier for a rate in
// basis points applied over delta seconds.
func rateFactor(rateBps uint64, delta uint64) *big.Int {
	if rateBps == 0 || delta == 0 {
		return new(big.Int).Set(ray)
	}
	growth := new(big.Int).Mul(ray, new(big.Int).SetUint64(rateBps))
	growth.Mul(growth, new(big.Int).SetUint64(delta))
	growth.Quo(growth, new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear)))
	return growth.Add(growth, ray)
}

// computeInterest returns the interest accrued on totalBorrowed at rateBps
// over delta seconds, rounded down.
func computeInterest(totalBorrowed *big.Int, rateBps uint64, delta uint64) *big.Int {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 || rateBps == 0 || delta == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(totalBorrowed, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, new(big.Int).SetUint64(delta))
	return interest.Quo(interest, new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear)))
}

// mintRewards mints the deposit reward to the depositor and the accrual
// reward to the treasury. Minting runs before any state is persisted so a
// mint-authority outage aborts the whole operation.
func (e *Engine) mintRewards(depositor string, depositReward, interest *big.Int) error {
	if e.minter == nil {
		return nil
	}
	if depositor != "" && depositReward != nil && depositReward.Sign() > 0 {
		if err := e.minter.Mint(depositor, depositReward); err != nil {
			return fmt.Errorf("%w: %v", errRewardMint, err)
		}
		e.emitter.Emit(events.LendingRewardMinted{Recipient: depositor, Amount: new(big.Int).Set(depositReward)})
	}
	treasury := strings.TrimSpace(e.params.RewardTreasury)
	if treasury == "" || interest == nil || interest.Sign() == 0 {
		return nil
	}
	accrualReward := bpsShare(interest, e.params.RewardRateBps)
	if accrualReward.Sign() == 0 {
		return nil
	}
	if err := e.minter.Mint(treasury, accrualReward); err != nil {
		return fmt.Errorf("%w: %v", errRewardMint, err)
	}
	e.emitter.Emit(events.LendingRewardMinted{Recipient: treasury, Amount: accrualReward})
	return nil
}

func (e *Engine) persist(symbol string, pool *PoolState, fees *FeeAccrual, account string, position *AssetPosition) error {
	if err := e.state.PutFees(symbol, fees); err != nil {
		return err
	}
	if position != nil {
		if err := e.state.PutPosition(account, symbol, position); err != nil {
			return err
		}
	}
	return e.state.PutPool(symbol, pool)
}

func (e *Engine) lookupAsset(symbol string, requireActive bool) (Asset, error) {
	if e.registry == nil {
		return Asset{}, ErrUnsupportedAsset
	}
	asset, ok := e.registry.Get(symbol)
	if !ok {
		return Asset{}, ErrUnsupportedAsset
	}
	if requireActive && !asset.Active {
		return Asset{}, ErrAssetInactive
	}
	return asset, nil
}

func (e *Engine) loadPool(symbol string) (*PoolState, error) {
	pool, err := e.state.Pool(symbol)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &PoolState{}
	}
	if pool.TotalDeposited == nil {
		pool.TotalDeposited = big.NewInt(0)
	}
	if pool.TotalBorrowed == nil {
		pool.TotalBorrowed = big.NewInt(0)
	}
	if pool.SupplyIndex == nil || pool.SupplyIndex.Sign() == 0 {
		pool.SupplyIndex = new(big.Int).Set(ray)
	}
	if pool.BorrowIndex == nil || pool.BorrowIndex.Sign() == 0 {
		pool.BorrowIndex = new(big.Int).Set(ray)
	}
	return pool, nil
}

func (e *Engine) loadPosition(account, symbol string) (*AssetPosition, error) {
	position, err := e.state.Position(account, symbol)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &AssetPosition{}
	}
	if position.SupplyShares == nil {
		position.SupplyShares = big.NewInt(0)
	}
	if position.ScaledDebt == nil {
		position.ScaledDebt = big.NewInt(0)
	}
	if position.Principal == nil {
		position.Principal = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) loadFees(symbol string) (*FeeAccrual, error) {
	fees, err := e.state.Fees(symbol)
	if err != nil {
		return nil, err
	}
	if fees == nil {
		fees = &FeeAccrual{}
	}
	if fees.ReserveFees == nil {
		fees.ReserveFees = big.NewInt(0)
	}
	return fees, nil
}

func (e *Engine) hasDebt(account string) (bool, error) {
	for _, symbol := range e.registry.Symbols() {
		position, err := e.state.Position(account, symbol)
		if err != nil {
			return false, err
		}
		if position != nil && position.ScaledDebt != nil && position.ScaledDebt.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func availableLiquidity(pool *PoolState) *big.Int {
	liquidity := new(big.Int).Sub(pool.TotalDeposited, pool.TotalBorrowed)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

func normaliseAccount(account string) (string, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return "", errAccountRequired
	}
	return trimmed, nil
}
