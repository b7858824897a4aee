package dex

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

func newTestPool(t *testing.T) *LiquidityPool {
	t.Helper()
	return NewLiquidityPool("TOKEN", "NXT", tier.DefaultSchedule(), 0)
}

func seededPool(t *testing.T, reserveA, reserveB float64) *LiquidityPool {
	t.Helper()
	p := newTestPool(t)
	_, err := p.AddLiquidity("alice", reserveA, reserveB)
	require.NoError(t, err)
	return p
}

func TestFirstDepositMintsSqrtShares(t *testing.T) {
	p := newTestPool(t)

	minted, err := p.AddLiquidity("alice", 10000, 1000)
	require.NoError(t, err)
	require.InDelta(t, math.Sqrt(10000*1000), minted, 1e-9)
	require.InDelta(t, 3162.27766, minted, 1e-4)

	a, b := p.Reserves()
	require.Equal(t, 10000.0, a)
	require.Equal(t, 1000.0, b)
	require.Equal(t, minted, p.LPSupply())
	require.Equal(t, minted, p.LPBalanceOf("alice"))
}

func TestLaterDepositsRequireMatchingRatio(t *testing.T) {
	p := seededPool(t, 10000, 1000)

	// 30% off the pool ratio on one side is rejected.
	_, err := p.AddLiquidity("bob", 1000, 130)
	require.ErrorIs(t, err, types.ErrUnbalancedDeposit)

	// Within the 2% tolerance mints the minimum proportional share.
	supplyBefore := p.LPSupply()
	minted, err := p.AddLiquidity("bob", 1000, 101)
	require.NoError(t, err)
	require.InDelta(t, 0.1*supplyBefore, minted, 1e-9)

	require.InDelta(t, p.LPSupply(), p.lpBalanceSum(), 1e-9)
}

func TestQuoteMatchesConstantProduct(t *testing.T) {
	p := seededPool(t, 10000, 1000)

	// TVL 11000 sits in the uv band: 0.3% fee.
	require.Equal(t, 0.003, p.FeeRate())
	require.Equal(t, "uv", p.Band().Name)

	out, impact := p.Quote("TOKEN", 100)
	require.InDelta(t, 9.8716, out, 1e-3)
	require.Greater(t, impact, 0.0)

	// Soft-zero on unusable inputs.
	out, impact = p.Quote("TOKEN", 0)
	require.Zero(t, out)
	require.Zero(t, impact)

	empty := newTestPool(t)
	out, _ = empty.Quote("TOKEN", 100)
	require.Zero(t, out)
}

func TestSwapPreservesConstantProduct(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	a0, b0 := p.Reserves()
	k0 := a0 * b0

	out, impact, fee, err := p.Swap("TOKEN", 100, 0)
	require.NoError(t, err)
	require.InDelta(t, 9.8716, out, 1e-3)
	require.Greater(t, impact, 0.0)
	require.InDelta(t, 100*0.003, fee, 1e-9)

	// The fee stays in the pool, so k never decreases.
	a1, b1 := p.Reserves()
	require.GreaterOrEqual(t, a1*b1, k0)
	require.Equal(t, a0+100, a1)
	require.InDelta(t, b0-out, b1, 1e-9)
}

func TestSwapRejectsWithoutMutating(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	a0, b0 := p.Reserves()
	v0 := p.Version()

	_, _, _, err := p.Swap("OTHER", 100, 0)
	require.ErrorIs(t, err, types.ErrInvalidToken)

	_, _, _, err = p.Swap("TOKEN", -1, 0)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	// Demanding more than the quote can deliver trips the slippage guard.
	_, _, _, err = p.Swap("TOKEN", 100, 50)
	require.ErrorIs(t, err, types.ErrSlippageExceeded)

	a1, b1 := p.Reserves()
	require.Equal(t, a0, a1)
	require.Equal(t, b0, b1)
	require.Equal(t, v0, p.Version())
}

func TestRemoveLiquidityPaysProportionalShare(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	supply := p.LPSupply()

	a, b, err := p.RemoveLiquidity("alice", supply/2)
	require.NoError(t, err)
	require.InDelta(t, 5000, a, 1e-9)
	require.InDelta(t, 500, b, 1e-9)
	require.InDelta(t, supply/2, p.LPSupply(), 1e-9)
	require.InDelta(t, p.LPSupply(), p.lpBalanceSum(), 1e-9)

	// Removing the rest empties the pool and deletes the holder entry.
	_, _, err = p.RemoveLiquidity("alice", p.LPBalanceOf("alice"))
	require.NoError(t, err)
	require.Zero(t, p.LPBalanceOf("alice"))
}

func TestProtectedAccountsCannotWithdraw(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	p.lpBalances["VALIDATOR_POOL"] = 10 // even with a recorded balance

	for _, account := range []string{"VALIDATOR_POOL", "TREASURY", "FARM_ESCROW_TOKEN-NXT", "dex_fees_x"} {
		_, _, err := p.RemoveLiquidity(account, 1)
		require.ErrorIs(t, err, types.ErrUnauthorized, "account=%s", account)

		_, err = p.RequestWithdrawal(account)
		require.ErrorIs(t, err, types.ErrUnauthorized, "account=%s", account)
	}

	_, _, err := p.RemoveLiquidity("not a valid address!", 1)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestWithdrawalTimeLock(t *testing.T) {
	p := NewLiquidityPool("TOKEN", "NXT", tier.DefaultSchedule(), time.Hour)
	current := time.Now()
	p.now = func() time.Time { return current }

	_, err := p.AddLiquidity("alice", 10000, 1000)
	require.NoError(t, err)

	// First attempt files the request and blocks.
	_, _, err = p.RemoveLiquidity("alice", 100)
	require.ErrorIs(t, err, types.ErrWithdrawalLocked)

	// Still inside the window.
	current = current.Add(30 * time.Minute)
	_, _, err = p.RemoveLiquidity("alice", 100)
	require.ErrorIs(t, err, types.ErrWithdrawalLocked)

	// Past the window the withdrawal executes and the request clears.
	current = current.Add(31 * time.Minute)
	a, b, err := p.RemoveLiquidity("alice", 100)
	require.NoError(t, err)
	require.Greater(t, a, 0.0)
	require.Greater(t, b, 0.0)

	_, _, err = p.RemoveLiquidity("alice", 100)
	require.ErrorIs(t, err, types.ErrWithdrawalLocked)
}

func TestTransferLPAndEscrowVisibility(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	supply := p.LPSupply()
	escrow := p.EscrowAccount()

	require.NoError(t, p.TransferLP("alice", escrow, supply/2))
	require.InDelta(t, supply/2, p.LPBalanceOf("alice"), 1e-9)
	require.InDelta(t, supply/2, p.LPBalanceOf(escrow), 1e-9)
	require.InDelta(t, supply, p.lpBalanceSum(), 1e-9)

	// Escrowed LP is invisible to withdrawal.
	_, _, err := p.RemoveLiquidity("alice", supply*0.75)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	err = p.TransferLP("alice", escrow, supply)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	err = p.TransferLP("alice", escrow, -1)
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestTierShiftsWithTVL(t *testing.T) {
	p := seededPool(t, 500, 400) // TVL 900: infrared
	require.Equal(t, "infrared", p.Band().Name)
	require.Equal(t, 0.005, p.FeeRate())

	_, err := p.AddLiquidity("alice", 5000, 4000) // TVL 9900: visible
	require.NoError(t, err)
	require.Equal(t, "visible", p.Band().Name)
	require.Equal(t, 0.004, p.FeeRate())

	_, err = p.AddLiquidity("alice", 50000, 40000) // TVL ~99900: xray
	require.NoError(t, err)
	require.Equal(t, "xray", p.Band().Name)
	require.Equal(t, 0.002, p.FeeRate())
}

func TestPoolSummary(t *testing.T) {
	p := seededPool(t, 10000, 1000)
	_, _, _, err := p.Swap("TOKEN", 100, 0)
	require.NoError(t, err)

	s := p.Summary()
	require.Equal(t, types.PoolID("TOKEN-NXT"), s.PoolID)
	require.Equal(t, "TOKEN", s.TokenA)
	require.Equal(t, "NXT", s.TokenB)
	require.Equal(t, 1, s.ProviderCount)
	require.Equal(t, 100.0, s.TotalVolumeA)
	require.InDelta(t, 0.3, s.TotalFeesCollected, 1e-9)
	require.Greater(t, s.PriceAToB, 0.0)
}
