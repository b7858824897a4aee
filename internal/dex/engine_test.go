package dex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusos/dex/internal/ledger"
	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.InMemoryLedger) {
	t.Helper()

	ldg, err := ledger.NewInMemoryLedger(1_000_000, 100_000)
	require.NoError(t, err)

	engine, err := NewEngine(Config{
		BaseCurrency: "NXT",
		Ledger:       ldg,
		Schedule:     tier.DefaultSchedule(),
	})
	require.NoError(t, err)
	return engine, ldg
}

// fundUser gives the user token and base balances plus a matching ledger balance.
func fundUser(t *testing.T, engine *Engine, ldg *ledger.InMemoryLedger, user string, tokenAmount, baseAmount float64) {
	t.Helper()
	require.NoError(t, engine.MintToken("TOKEN", user, tokenAmount))
	require.NoError(t, engine.MintToken("NXT", user, baseAmount))
	require.NoError(t, ldg.Transfer(ledger.TreasuryAccount, user, baseAmount))
}

func setupPool(t *testing.T, engine *Engine, ldg *ledger.InMemoryLedger) types.PoolID {
	t.Helper()
	_, err := engine.CreateToken("TOKEN", "Test Token", 6, 0, "system")
	require.NoError(t, err)
	fundUser(t, engine, ldg, "alice", 50_000, 10_000)

	poolID, err := engine.CreatePool("TOKEN", "NXT", 10_000, 1_000, "alice")
	require.NoError(t, err)
	return poolID
}

func TestCreatePool(t *testing.T) {
	engine, ldg := newTestEngine(t)
	poolID := setupPool(t, engine, ldg)

	require.Equal(t, types.PoolID("TOKEN-NXT"), poolID)
	require.True(t, engine.HasPool(poolID))

	lp, err := engine.LPBalance(poolID, "alice")
	require.NoError(t, err)
	require.InDelta(t, math.Sqrt(10_000*1_000), lp, 1e-9)

	// The deposited assets sit on the pool account.
	bal, err := engine.TokenBalance("TOKEN", string(poolID))
	require.NoError(t, err)
	require.Equal(t, 10_000.0, bal)
	bal, err = engine.TokenBalance("NXT", string(poolID))
	require.NoError(t, err)
	require.Equal(t, 1_000.0, bal)
}

func TestCreatePoolRequiresBasePair(t *testing.T) {
	engine, ldg := newTestEngine(t)
	_, err := engine.CreateToken("TOKEN", "Test Token", 6, 0, "system")
	require.NoError(t, err)
	_, err = engine.CreateToken("USDC", "USD Coin", 6, 0, "system")
	require.NoError(t, err)
	fundUser(t, engine, ldg, "alice", 1_000, 1_000)

	_, err = engine.CreatePool("TOKEN", "USDC", 100, 100, "alice")
	require.ErrorIs(t, err, types.ErrInvalidToken)

	_, err = engine.CreatePool("NXT", "NXT", 100, 100, "alice")
	require.ErrorIs(t, err, types.ErrInvalidToken)
}

func TestCreatePoolFailureLeavesNoState(t *testing.T) {
	engine, ldg := newTestEngine(t)
	_, err := engine.CreateToken("TOKEN", "Test Token", 6, 0, "system")
	require.NoError(t, err)
	fundUser(t, engine, ldg, "alice", 1_000, 1_000)

	// Zero on one leg fails inside the staged mutation; everything compensates back.
	_, err = engine.CreatePool("TOKEN", "NXT", 0, 100, "alice")
	require.Error(t, err)
	require.False(t, engine.HasPool("TOKEN-NXT"))

	bal, err := engine.TokenBalance("TOKEN", "alice")
	require.NoError(t, err)
	require.Equal(t, 1_000.0, bal)
	bal, err = engine.TokenBalance("NXT", "alice")
	require.NoError(t, err)
	require.Equal(t, 1_000.0, bal)

	// Insufficient balances are rejected before anything moves.
	_, err = engine.CreatePool("TOKEN", "NXT", 5_000, 100, "alice")
	require.ErrorIs(t, err, types.ErrInsufficientBalance)

	// Duplicate pools are rejected.
	_, err = engine.CreatePool("TOKEN", "NXT", 100, 100, "alice")
	require.NoError(t, err)
	_, err = engine.CreatePool("TOKEN", "NXT", 100, 100, "alice")
	require.ErrorIs(t, err, types.ErrPoolExists)
}

func TestGetQuote(t *testing.T) {
	engine, ldg := newTestEngine(t)
	setupPool(t, engine, ldg)

	quote, err := engine.GetQuote("TOKEN", "NXT", 100)
	require.NoError(t, err)
	require.InDelta(t, 9.8716, quote.OutputAmount, 1e-3)
	require.Equal(t, 0.003, quote.FeeRate)
	require.InDelta(t, quote.OutputAmount/100, quote.EffectivePrice, 1e-9)

	_, err = engine.GetQuote("TOKEN", "TOKEN", 100)
	require.ErrorIs(t, err, types.ErrInvalidToken)
	_, err = engine.GetQuote("GHOST", "NXT", 100)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestSwapTokensMovesBothLegs(t *testing.T) {
	engine, ldg := newTestEngine(t)
	poolID := setupPool(t, engine, ldg)

	tokenBefore, _ := engine.TokenBalance("TOKEN", "alice")
	baseBefore, _ := engine.TokenBalance("NXT", "alice")

	receipt, err := engine.SwapTokens("alice", "TOKEN", "NXT", 100, 0.01)
	require.NoError(t, err)
	require.Equal(t, poolID, receipt.PoolID)
	require.InDelta(t, 9.8716, receipt.OutputAmount, 1e-3)
	require.InDelta(t, 0.3, receipt.FeeAmount, 1e-9)

	tokenAfter, _ := engine.TokenBalance("TOKEN", "alice")
	baseAfter, _ := engine.TokenBalance("NXT", "alice")
	require.InDelta(t, tokenBefore-100, tokenAfter, 1e-9)
	require.InDelta(t, baseBefore+receipt.OutputAmount, baseAfter, 1e-9)

	// Alice holds ledger funds, so the fee routes in the same call.
	require.True(t, receipt.FeeRouted)

	stats := engine.Stats()
	require.Equal(t, uint64(1), stats["total_swaps"])
}

// The default wiring (genesis ledger, no extra funding) must route swap fees: the
// trader's ledger account funds DEX_FEES, which settles to the validator pool.
func TestSwapFeeRoutesToValidatorPool(t *testing.T) {
	engine, ldg := newTestEngine(t)
	setupPool(t, engine, ldg)

	ledgerBefore := ldg.GetBalance("alice")

	receipt, err := engine.SwapTokens("alice", "TOKEN", "NXT", 100, 0.01)
	require.NoError(t, err)
	require.True(t, receipt.FeeRouted)

	// Non-base input: the fee converts to base at the pre-trade spot price (0.1).
	feeNXT := receipt.FeeAmount * 0.1
	require.InDelta(t, ledgerBefore-feeNXT, ldg.GetBalance("alice"), 1e-6)
	require.InDelta(t, feeNXT*(1-ledger.SettlementFeeRate), ldg.GetBalance(ledger.ValidatorPoolAccount), 1e-6)
	require.Zero(t, ldg.GetBalance(ledger.DEXFeesAccount))

	// Repeated swaps keep accumulating on the validator pool.
	receipt2, err := engine.SwapTokens("alice", "TOKEN", "NXT", 100, 0.01)
	require.NoError(t, err)
	require.True(t, receipt2.FeeRouted)
	require.Greater(t, ldg.GetBalance(ledger.ValidatorPoolAccount), feeNXT*(1-ledger.SettlementFeeRate))
}

// A trader without ledger funds cannot fund the fee; routing is skipped and reported
// while the swap itself stands.
func TestSwapFeeRoutingSkippedWithoutLedgerFunds(t *testing.T) {
	engine, ldg := newTestEngine(t)
	setupPool(t, engine, ldg)
	require.NoError(t, engine.MintToken("TOKEN", "bob", 1_000))

	receipt, err := engine.SwapTokens("bob", "TOKEN", "NXT", 100, 0.01)
	require.NoError(t, err)
	require.False(t, receipt.FeeRouted)
	require.Greater(t, receipt.OutputAmount, 0.0)

	bal, err := engine.TokenBalance("NXT", "bob")
	require.NoError(t, err)
	require.InDelta(t, receipt.OutputAmount, bal, 1e-9)
	require.Zero(t, ldg.GetBalance(ledger.ValidatorPoolAccount))
}

func TestSwapRejectsInsufficientBalance(t *testing.T) {
	engine, ldg := newTestEngine(t)
	setupPool(t, engine, ldg)

	_, err := engine.SwapTokens("bob", "TOKEN", "NXT", 100, 0.01)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestAddRemoveLiquidity(t *testing.T) {
	engine, ldg := newTestEngine(t)
	poolID := setupPool(t, engine, ldg)
	fundUser(t, engine, ldg, "bob", 10_000, 1_000)

	minted, err := engine.AddLiquidity(poolID, "bob", 1_000, 100)
	require.NoError(t, err)
	require.Greater(t, minted, 0.0)

	// An unbalanced deposit compensates both legs back to the provider.
	tokenBefore, _ := engine.TokenBalance("TOKEN", "bob")
	baseBefore, _ := engine.TokenBalance("NXT", "bob")
	_, err = engine.AddLiquidity(poolID, "bob", 1_000, 500)
	require.ErrorIs(t, err, types.ErrUnbalancedDeposit)
	tokenAfter, _ := engine.TokenBalance("TOKEN", "bob")
	baseAfter, _ := engine.TokenBalance("NXT", "bob")
	require.Equal(t, tokenBefore, tokenAfter)
	require.Equal(t, baseBefore, baseAfter)

	amountA, amountB, err := engine.RemoveLiquidity(poolID, "bob", minted)
	require.NoError(t, err)
	require.InDelta(t, 1_000, amountA, 1e-6)
	require.InDelta(t, 100, amountB, 1e-6)

	tokenAfter, _ = engine.TokenBalance("TOKEN", "bob")
	require.InDelta(t, 10_000, tokenAfter, 1e-6)
}

func TestTransferLPThroughEngine(t *testing.T) {
	engine, ldg := newTestEngine(t)
	poolID := setupPool(t, engine, ldg)

	lp, err := engine.LPBalance(poolID, "alice")
	require.NoError(t, err)

	escrow, err := engine.PoolEscrowAccount(poolID)
	require.NoError(t, err)
	require.NoError(t, engine.TransferLP(poolID, "alice", escrow, lp/2))

	remaining, err := engine.LPBalance(poolID, "alice")
	require.NoError(t, err)
	require.InDelta(t, lp/2, remaining, 1e-9)

	value, err := engine.LPValue(poolID, lp/2)
	require.NoError(t, err)
	// Half the supply is worth half of 2x the base reserve.
	require.InDelta(t, 1_000, value, 1e-6)

	err = engine.TransferLP("GHOST-NXT", "alice", escrow, 1)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestUserBalancesAndTokens(t *testing.T) {
	engine, ldg := newTestEngine(t)
	setupPool(t, engine, ldg)

	balances := engine.UserBalances("alice")
	require.Contains(t, balances, "TOKEN")
	require.Contains(t, balances, "NXT")

	tokens := engine.Tokens()
	require.Len(t, tokens, 2)

	pools := engine.Pools()
	require.Len(t, pools, 1)
	require.Equal(t, types.PoolID("TOKEN-NXT"), pools[0].PoolID)
}
