/*

Exchange engine. Owns every Token and LiquidityPool for the process lifetime and
serializes all mutation behind one mutex (single writer per entity set). The engine
enforces the pairing invariant the pools themselves cannot see: every pool contains the
base currency on exactly one side, and pool IDs are always "{TOKEN}-{BASE}".

*/

package dex

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusos/dex/internal/ledger"
	"github.com/nexusos/dex/internal/logger"
	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

var dexLogger = logger.GetForComponent("dex_engine")

// Config carries the engine's dependencies; main wires one up at startup.
type Config struct {
	BaseCurrency   string
	Ledger         ledger.Adapter
	Recorder       types.Recorder
	Schedule       tier.Schedule
	WithdrawalLock time.Duration
	ValidatorPool  string
}

type Engine struct {
	mu sync.Mutex

	baseCurrency   string
	tokens         map[string]*Token
	pools          map[types.PoolID]*LiquidityPool
	ledger         ledger.Adapter
	recorder       types.Recorder
	schedule       tier.Schedule
	withdrawalLock time.Duration
	validatorPool  string

	totalSwaps          uint64
	totalVolume         float64
	totalLiquidityAdded float64
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.BaseCurrency == "" {
		return nil, fmt.Errorf("%w: base currency symbol is required", types.ErrInvalidToken)
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger adapter is required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = types.NopRecorder{}
	}
	if cfg.ValidatorPool == "" {
		cfg.ValidatorPool = ledger.ValidatorPoolAccount
	}

	e := &Engine{
		baseCurrency:   cfg.BaseCurrency,
		tokens:         make(map[string]*Token),
		pools:          make(map[types.PoolID]*LiquidityPool),
		ledger:         cfg.Ledger,
		recorder:       cfg.Recorder,
		schedule:       cfg.Schedule,
		withdrawalLock: cfg.WithdrawalLock,
		validatorPool:  cfg.ValidatorPool,
	}

	// The base currency token always exists; everything pairs against it.
	e.tokens[cfg.BaseCurrency] = NewToken(cfg.BaseCurrency, cfg.BaseCurrency+" Base Currency", 6, "system")

	return e, nil
}

func (e *Engine) BaseCurrency() string {
	return e.baseCurrency
}

// CreateToken registers a new fungible token and mints the initial supply to the creator.
func (e *Engine) CreateToken(symbol, name string, decimals int, initialSupply float64, creator string) (*Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tokens[symbol]; ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTokenExists, symbol)
	}

	token := NewToken(symbol, name, decimals, creator)
	if initialSupply > 0 {
		if err := token.Mint(creator, initialSupply); err != nil {
			return nil, err
		}
	}
	e.tokens[symbol] = token

	dexLogger.Info().Str("symbol", symbol).Float64("supply", initialSupply).Str("creator", creator).Msg("Token created")
	return token, nil
}

// MintToken adds supply to an existing token. Used for genesis bootstrapping.
func (e *Engine) MintToken(symbol, to string, amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, ok := e.tokens[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrInvalidToken, symbol)
	}
	return token.Mint(to, amount)
}

// normalizePair orders a token pair so the non-base token comes first, and rejects
// pairs that do not contain the base currency on exactly one side.
func (e *Engine) normalizePair(tokenX, tokenY string, amountX, amountY float64) (nonBase string, nonBaseAmt, baseAmt float64, err error) {
	xIsBase := tokenX == e.baseCurrency
	yIsBase := tokenY == e.baseCurrency

	switch {
	case xIsBase && yIsBase:
		return "", 0, 0, fmt.Errorf("%w: both sides are the base currency", types.ErrInvalidToken)
	case !xIsBase && !yIsBase:
		return "", 0, 0, fmt.Errorf("%w: one side must be the base currency %s", types.ErrInvalidToken, e.baseCurrency)
	case xIsBase:
		return tokenY, amountY, amountX, nil
	default:
		return tokenX, amountX, amountY, nil
	}
}

// CreatePool registers a new pool paired against the base currency and seeds it with
// the provider's initial liquidity. The mutation is staged: both token legs transfer
// into the pool account first, and a failure on the pool-math side compensates by
// transferring them back, so no partial state survives a failed create.
func (e *Engine) CreatePool(tokenX, tokenY string, amountX, amountY float64, provider string) (types.PoolID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nonBase, nonBaseAmt, baseAmt, err := e.normalizePair(tokenX, tokenY, amountX, amountY)
	if err != nil {
		return "", err
	}

	token, ok := e.tokens[nonBase]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrInvalidToken, nonBase)
	}
	base := e.tokens[e.baseCurrency]

	pool := NewLiquidityPool(nonBase, e.baseCurrency, e.schedule, e.withdrawalLock)
	poolID := pool.ID()
	if _, exists := e.pools[poolID]; exists {
		return "", fmt.Errorf("%w: %s", types.ErrPoolExists, poolID)
	}

	// Validate all preconditions before touching anything.
	if token.BalanceOf(provider) < nonBaseAmt {
		return "", fmt.Errorf("%w: %s balance of %s below %.6f", types.ErrInsufficientBalance, nonBase, provider, nonBaseAmt)
	}
	if base.BalanceOf(provider) < baseAmt {
		return "", fmt.Errorf("%w: %s balance of %s below %.6f", types.ErrInsufficientBalance, e.baseCurrency, provider, baseAmt)
	}
	if e.ledger.GetBalance(provider) < baseAmt {
		return "", fmt.Errorf("%w: ledger balance of %s below %.6f", types.ErrInsufficientBalance, provider, baseAmt)
	}

	// Stage: asset transfers first, then pool math, compensating on failure.
	poolAccount := string(poolID)
	if err := token.Transfer(provider, poolAccount, nonBaseAmt); err != nil {
		return "", err
	}
	if err := base.Transfer(provider, poolAccount, baseAmt); err != nil {
		_ = token.Transfer(poolAccount, provider, nonBaseAmt)
		return "", err
	}

	lpMinted, err := pool.AddLiquidity(provider, nonBaseAmt, baseAmt)
	if err != nil {
		_ = token.Transfer(poolAccount, provider, nonBaseAmt)
		_ = base.Transfer(poolAccount, provider, baseAmt)
		return "", err
	}

	e.pools[poolID] = pool
	e.totalLiquidityAdded += nonBaseAmt + baseAmt

	dexLogger.Info().
		Str("pool_id", string(poolID)).
		Float64("lp_minted", lpMinted).
		Str("provider", provider).
		Msg("Pool created")

	if err := e.recorder.RecordLiquidity(types.ActionCreatePool, types.LiquidityReceipt{
		PoolID: poolID, Provider: provider, AmountA: nonBaseAmt, AmountB: baseAmt,
		LPTokens: lpMinted, Timestamp: time.Now(),
	}); err != nil {
		dexLogger.Error().Err(err).Msg("Failed to record create-pool receipt")
	}

	return poolID, nil
}

// poolForToken locates the unique base-paired pool for a non-base token.
func (e *Engine) poolForToken(nonBase string) (*LiquidityPool, error) {
	poolID := types.PoolID(nonBase + "-" + e.baseCurrency)
	pool, ok := e.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool, nil
}

// GetQuote prices a swap without executing it.
func (e *Engine) GetQuote(inputToken, outputToken string, inputAmount float64) (types.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quoteLocked(inputToken, outputToken, inputAmount)
}

func (e *Engine) quoteLocked(inputToken, outputToken string, inputAmount float64) (types.Quote, error) {
	nonBase, _, _, err := e.normalizePair(inputToken, outputToken, 0, 0)
	if err != nil {
		return types.Quote{}, err
	}
	pool, err := e.poolForToken(nonBase)
	if err != nil {
		return types.Quote{}, err
	}

	output, impact := pool.Quote(inputToken, inputAmount)
	quote := types.Quote{
		PoolID:         pool.ID(),
		InputToken:     inputToken,
		OutputToken:    outputToken,
		InputAmount:    inputAmount,
		OutputAmount:   output,
		PriceImpactPct: impact,
		FeeRate:        pool.FeeRate(),
	}
	if inputAmount > 0 {
		quote.EffectivePrice = output / inputAmount
	}
	return quote, nil
}

// SwapTokens executes a swap for the user: quote, slippage bound, AMM execution, both
// token legs, then fee routing to the validator pool. The routed fee is always
// denominated in the base currency; a fee paid on the non-base side converts at the
// pool's pre-trade spot price. Fee routing gates on ledger settlement and leaves the
// executed swap intact if settlement is refused.
func (e *Engine) SwapTokens(user, inputToken, outputToken string, inputAmount, slippageTolerance float64) (types.SwapReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nonBase, _, _, err := e.normalizePair(inputToken, outputToken, 0, 0)
	if err != nil {
		return types.SwapReceipt{}, err
	}
	pool, err := e.poolForToken(nonBase)
	if err != nil {
		return types.SwapReceipt{}, err
	}

	inTok, ok := e.tokens[inputToken]
	if !ok {
		return types.SwapReceipt{}, fmt.Errorf("%w: %s", types.ErrInvalidToken, inputToken)
	}
	outTok, ok := e.tokens[outputToken]
	if !ok {
		return types.SwapReceipt{}, fmt.Errorf("%w: %s", types.ErrInvalidToken, outputToken)
	}
	if inTok.BalanceOf(user) < inputAmount {
		return types.SwapReceipt{}, fmt.Errorf("%w: %s balance of %s below %.6f", types.ErrInsufficientBalance, inputToken, user, inputAmount)
	}

	expected, _ := pool.Quote(inputToken, inputAmount)
	minOutput := expected * (1 - slippageTolerance)

	// Pre-trade spot price for converting a non-base fee into base terms.
	spotToBase := pool.Price(inputToken)

	output, impact, feeAmount, err := pool.Swap(inputToken, inputAmount, minOutput)
	if err != nil {
		return types.SwapReceipt{}, err
	}

	poolAccount := string(pool.ID())
	if err := inTok.Transfer(user, poolAccount, inputAmount); err != nil {
		return types.SwapReceipt{}, fmt.Errorf("%w: input leg transfer: %v", types.ErrInvariantViolation, err)
	}
	if err := outTok.Transfer(poolAccount, user, output); err != nil {
		return types.SwapReceipt{}, fmt.Errorf("%w: output leg transfer: %v", types.ErrInvariantViolation, err)
	}

	feeNXT := feeAmount
	if inputToken != e.baseCurrency {
		feeNXT = feeAmount * spotToBase
	}
	routed := e.routeFee(pool.ID(), user, feeNXT)

	e.totalSwaps++
	e.totalVolume += inputAmount

	receipt := types.SwapReceipt{
		PoolID:         pool.ID(),
		User:           user,
		InputToken:     inputToken,
		OutputToken:    outputToken,
		InputAmount:    inputAmount,
		OutputAmount:   output,
		PriceImpactPct: impact,
		FeeAmount:      feeAmount,
		FeeRouted:      routed,
		Timestamp:      time.Now(),
	}
	if err := e.recorder.RecordSwap(receipt); err != nil {
		dexLogger.Error().Err(err).Msg("Failed to record swap receipt")
	}
	return receipt, nil
}

// routeFee forwards the base-denominated fee to the validator pool. The trader's
// ledger account funds DEX_FEES first, and DEX_FEES settles to the validator pool.
// Routing failures are logged and reported on the receipt; they do not unwind the
// swap, and a fee stranded in DEX_FEES by a refused settlement rides along with the
// next successful one.
func (e *Engine) routeFee(poolID types.PoolID, user string, feeNXT float64) bool {
	if feeNXT <= 0 {
		return false
	}
	if err := e.ledger.Transfer(user, ledger.DEXFeesAccount, feeNXT); err != nil {
		dexLogger.Warn().
			Str("pool_id", string(poolID)).
			Str("user", user).
			Float64("fee_nxt", feeNXT).
			Err(err).
			Msg("Fee routing skipped: trader ledger account cannot fund the fee")
		return false
	}
	// Forward everything DEX_FEES holds, including fees stranded by earlier refusals.
	accrued := e.ledger.GetBalance(ledger.DEXFeesAccount)
	result := e.ledger.Settle(ledger.SettlementRequest{
		SourceAddress:    ledger.DEXFeesAccount,
		RecipientAddress: e.validatorPool,
		AmountNXT:        accrued,
		WavelengthNM:     e.schedule.ForTVL(0).WavelengthNM,
		Module:           ledger.ModuleDEX,
		TransferID:       "DEX-FEE-" + uuid.NewString(),
	})
	if !result.SettlementSuccess {
		dexLogger.Warn().
			Str("pool_id", string(poolID)).
			Float64("fee_nxt", feeNXT).
			Str("reason", result.Message).
			Msg("Fee routing settlement refused; fee held in DEX_FEES")
		return false
	}
	return true
}

// AddLiquidity deposits both assets into an existing pool on behalf of the provider.
func (e *Engine) AddLiquidity(poolID types.PoolID, provider string, amountA, amountB float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	token := e.tokens[pool.TokenA]
	base := e.tokens[pool.TokenB]

	if token.BalanceOf(provider) < amountA {
		return 0, fmt.Errorf("%w: %s balance of %s below %.6f", types.ErrInsufficientBalance, pool.TokenA, provider, amountA)
	}
	if base.BalanceOf(provider) < amountB {
		return 0, fmt.Errorf("%w: %s balance of %s below %.6f", types.ErrInsufficientBalance, pool.TokenB, provider, amountB)
	}

	poolAccount := string(poolID)
	if err := token.Transfer(provider, poolAccount, amountA); err != nil {
		return 0, err
	}
	if err := base.Transfer(provider, poolAccount, amountB); err != nil {
		_ = token.Transfer(poolAccount, provider, amountA)
		return 0, err
	}

	lpMinted, err := pool.AddLiquidity(provider, amountA, amountB)
	if err != nil {
		_ = token.Transfer(poolAccount, provider, amountA)
		_ = base.Transfer(poolAccount, provider, amountB)
		return 0, err
	}

	e.totalLiquidityAdded += amountA + amountB

	if err := e.recorder.RecordLiquidity(types.ActionAddLiquidity, types.LiquidityReceipt{
		PoolID: poolID, Provider: provider, AmountA: amountA, AmountB: amountB,
		LPTokens: lpMinted, Timestamp: time.Now(),
	}); err != nil {
		dexLogger.Error().Err(err).Msg("Failed to record add-liquidity receipt")
	}
	return lpMinted, nil
}

// RequestWithdrawal starts the withdrawal time-lock window for the provider.
func (e *Engine) RequestWithdrawal(poolID types.PoolID, provider string) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	at, err := pool.RequestWithdrawal(provider)
	if err != nil {
		return time.Time{}, err
	}
	dexLogger.Info().
		Str("pool_id", string(poolID)).
		Str("provider", provider).
		Time("requested_at", at).
		Msg("Withdrawal requested")
	return at, nil
}

// RemoveLiquidity burns the provider's LP and pays out both assets from the pool account.
func (e *Engine) RemoveLiquidity(poolID types.PoolID, provider string, lpTokens float64) (amountA, amountB float64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}

	amountA, amountB, err = pool.RemoveLiquidity(provider, lpTokens)
	if err != nil {
		return 0, 0, err
	}

	poolAccount := string(poolID)
	if err := e.tokens[pool.TokenA].Transfer(poolAccount, provider, amountA); err != nil {
		return 0, 0, fmt.Errorf("%w: payout leg A: %v", types.ErrInvariantViolation, err)
	}
	if err := e.tokens[pool.TokenB].Transfer(poolAccount, provider, amountB); err != nil {
		return 0, 0, fmt.Errorf("%w: payout leg B: %v", types.ErrInvariantViolation, err)
	}

	if err := e.recorder.RecordLiquidity(types.ActionRemoveLiquidity, types.LiquidityReceipt{
		PoolID: poolID, Provider: provider, AmountA: amountA, AmountB: amountB,
		LPTokens: lpTokens, Timestamp: time.Now(),
	}); err != nil {
		dexLogger.Error().Err(err).Msg("Failed to record remove-liquidity receipt")
	}
	return amountA, amountB, nil
}

// TransferLP moves LP shares between holders of a pool. The farming engine escrows
// staked LP through this method instead of reaching into pool internals.
func (e *Engine) TransferLP(poolID types.PoolID, from, to string, amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool.TransferLP(from, to, amount)
}

// LPBalance returns the unescrowed LP balance of an address in a pool.
func (e *Engine) LPBalance(poolID types.PoolID, address string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool.LPBalanceOf(address), nil
}

// LPValue estimates the base-currency worth of an LP amount: the share of supply times
// twice the base reserve, since the AMM holds equivalent value on both sides.
func (e *Engine) LPValue(poolID types.PoolID, lpAmount float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	if pool.LPSupply() <= 0 {
		return 0, nil
	}
	_, reserveB := pool.Reserves()
	share := lpAmount / pool.LPSupply()
	return share * reserveB * 2, nil
}

// PoolTokens returns the token pair of a pool.
func (e *Engine) PoolTokens(poolID types.PoolID) (tokenA, tokenB string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool.TokenA, pool.TokenB, nil
}

// PoolEscrowAccount returns the farm escrow account name for a pool.
func (e *Engine) PoolEscrowAccount(poolID types.PoolID) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool.EscrowAccount(), nil
}

// HasPool reports whether the pool exists.
func (e *Engine) HasPool(poolID types.PoolID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pools[poolID]
	return ok
}

// PoolSummary snapshots one pool.
func (e *Engine) PoolSummary(poolID types.PoolID) (types.PoolSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return types.PoolSummary{}, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	return pool.Summary(), nil
}

// Pools snapshots every pool.
func (e *Engine) Pools() []types.PoolSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.PoolSummary, 0, len(e.pools))
	for _, pool := range e.pools {
		out = append(out, pool.Summary())
	}
	return out
}

// Tokens lists every registered token symbol with supply and holder counts.
func (e *Engine) Tokens() []map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(e.tokens))
	for _, t := range e.tokens {
		out = append(out, map[string]interface{}{
			"symbol":       t.Symbol,
			"name":         t.Name,
			"decimals":     t.Decimals,
			"total_supply": t.TotalSupply,
			"creator":      t.Creator,
			"created_at":   t.CreatedAt,
			"holders":      t.HolderCount(),
		})
	}
	return out
}

// TokenBalance returns a user's balance for one token.
func (e *Engine) TokenBalance(symbol, address string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, ok := e.tokens[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrInvalidToken, symbol)
	}
	return token.BalanceOf(address), nil
}

// UserBalances returns every non-zero token balance for a user.
func (e *Engine) UserBalances(user string) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64)
	for symbol, token := range e.tokens {
		if bal := token.BalanceOf(user); bal > 0 {
			out[symbol] = bal
		}
	}
	return out
}

// Stats returns engine-level counters.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	return map[string]interface{}{
		"total_pools":           len(e.pools),
		"total_tokens":          len(e.tokens),
		"total_swaps":           e.totalSwaps,
		"total_volume":          e.totalVolume,
		"total_liquidity_added": e.totalLiquidityAdded,
	}
}
