/*

Constant-product AMM pool. One side is always the base currency (TokenB); the pool ID
is "{TOKEN_A}-{BASE}". The swap fee rate is a pure function of current TVL through the
shared tier schedule and is re-derived after every state-changing operation.

Pools carry no locking: the owning Engine serializes access. A version counter bumps on
every mutation so preview/commit flows can detect interleaved changes.

*/

package dex

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

// EscrowPrefix is the LP-balance account prefix holding farm-staked LP per pool.
const EscrowPrefix = "FARM_ESCROW_"

// ratioTolerance is the maximum deviation between deposit ratios on the two sides
// before an add-liquidity call is rejected as unbalanced.
const ratioTolerance = 0.02

var providerPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// protectedPrefixes are system accounts that must never withdraw liquidity directly,
// regardless of any LP balance recorded under their name.
var protectedPrefixes = []string{
	"TREASURY",
	"VALIDATOR_POOL",
	"FARM_ESCROW",
	"FARMING_REWARDS",
	"DEX_FEES",
	"SDK_WALLET",
	"TRANSITION_RESERVE",
	"SYSTEM",
}

type LiquidityPool struct {
	TokenA string // non-base token symbol
	TokenB string // base currency symbol

	reserveA float64
	reserveB float64

	lpTokenSupply float64
	lpBalances    map[string]float64

	totalVolumeA       float64
	totalVolumeB       float64
	totalFeesCollected float64

	schedule tier.Schedule
	band     tier.Band

	// Withdrawal time-lock. A zero lock duration executes withdrawals immediately
	// (requests are still logged); a positive duration blocks RemoveLiquidity until
	// the request has aged past it.
	lockDuration       time.Duration
	withdrawalRequests map[string]time.Time

	version   uint64
	createdAt time.Time
	now       func() time.Time
}

func NewLiquidityPool(tokenA, base string, schedule tier.Schedule, lockDuration time.Duration) *LiquidityPool {
	p := &LiquidityPool{
		TokenA:             tokenA,
		TokenB:             base,
		lpBalances:         make(map[string]float64),
		schedule:           schedule,
		lockDuration:       lockDuration,
		withdrawalRequests: make(map[string]time.Time),
		createdAt:          time.Now(),
		now:                time.Now,
	}
	p.band = schedule.ForTVL(0)
	return p
}

// ID returns the canonical pool identifier "{TOKEN_A}-{BASE}".
func (p *LiquidityPool) ID() types.PoolID {
	return types.PoolID(p.TokenA + "-" + p.TokenB)
}

// EscrowAccount is the synthetic LP holder for this pool's farm-staked shares.
func (p *LiquidityPool) EscrowAccount() string {
	return EscrowPrefix + string(p.ID())
}

// TVL is the total value locked, the sum of both reserves. It selects the fee tier.
func (p *LiquidityPool) TVL() float64 {
	return p.reserveA + p.reserveB
}

// FeeRate returns the swap fee currently in effect.
func (p *LiquidityPool) FeeRate() float64 {
	return p.schedule.FeeRate(p.TVL())
}

// Band returns the tier band currently in effect.
func (p *LiquidityPool) Band() tier.Band {
	return p.band
}

// Version returns the mutation counter, bumped on every state change.
func (p *LiquidityPool) Version() uint64 {
	return p.version
}

func (p *LiquidityPool) Reserves() (float64, float64) {
	return p.reserveA, p.reserveB
}

func (p *LiquidityPool) LPSupply() float64 {
	return p.lpTokenSupply
}

func (p *LiquidityPool) LPBalanceOf(address string) float64 {
	return p.lpBalances[address]
}

// Price returns the marginal price of the input token in terms of the other side.
func (p *LiquidityPool) Price(inputToken string) float64 {
	if p.reserveA == 0 || p.reserveB == 0 {
		return 0
	}
	if inputToken == p.TokenA {
		return p.reserveB / p.reserveA
	}
	return p.reserveA / p.reserveB
}

func (p *LiquidityPool) retier() {
	p.band = p.schedule.ForTVL(p.TVL())
	p.version++
}

// Quote computes the swap output for the given input using the constant-product
// formula with the tier fee applied, plus the resulting price impact in percent.
// Empty reserves or a non-positive input quote as zero rather than erroring.
func (p *LiquidityPool) Quote(inputToken string, inputAmount float64) (outputAmount, priceImpactPct float64) {
	if inputAmount <= 0 {
		return 0, 0
	}

	var reserveIn, reserveOut float64
	if inputToken == p.TokenA {
		reserveIn, reserveOut = p.reserveA, p.reserveB
	} else {
		reserveIn, reserveOut = p.reserveB, p.reserveA
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0
	}

	inputWithFee := inputAmount * (1 - p.FeeRate())

	// (x + dx)(y - dy) = xy  =>  dy = y*dx / (x + dx)
	outputAmount = (reserveOut * inputWithFee) / (reserveIn + inputWithFee)

	oldPrice := reserveOut / reserveIn
	newPrice := (reserveOut - outputAmount) / (reserveIn + inputAmount)
	priceImpactPct = math.Abs((newPrice-oldPrice)/oldPrice) * 100

	return outputAmount, priceImpactPct
}

// Swap executes a trade against the pool. No state mutates when the quoted output
// falls short of minOutput or the pool cannot price the trade.
func (p *LiquidityPool) Swap(inputToken string, inputAmount, minOutput float64) (outputAmount, priceImpactPct, feeAmount float64, err error) {
	if inputToken != p.TokenA && inputToken != p.TokenB {
		return 0, 0, 0, fmt.Errorf("%w: %s is not in pool %s", types.ErrInvalidToken, inputToken, p.ID())
	}
	if inputAmount <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: swap input must be positive", types.ErrInvalidAmount)
	}

	feeRate := p.FeeRate()
	outputAmount, priceImpactPct = p.Quote(inputToken, inputAmount)
	if outputAmount <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: pool %s cannot price this trade", types.ErrInsufficientLiquidity, p.ID())
	}
	if outputAmount < minOutput {
		return 0, 0, 0, fmt.Errorf("%w: got %.6f, minimum %.6f", types.ErrSlippageExceeded, outputAmount, minOutput)
	}

	if inputToken == p.TokenA {
		p.reserveA += inputAmount
		p.reserveB -= outputAmount
		p.totalVolumeA += inputAmount
	} else {
		p.reserveB += inputAmount
		p.reserveA -= outputAmount
		p.totalVolumeB += inputAmount
	}

	feeAmount = inputAmount * feeRate
	p.totalFeesCollected += feeAmount

	// Fee rate follows TVL, so the tier can shift between swaps in the same pool.
	p.retier()

	return outputAmount, priceImpactPct, feeAmount, nil
}

// AddLiquidity deposits both assets and mints LP shares to the provider. The first
// deposit bootstraps the reserves and mints sqrt(a*b) shares; later deposits must match
// the current ratio within tolerance and mint the minimum proportional share, so an
// unbalanced deposit cannot extract value from existing providers.
func (p *LiquidityPool) AddLiquidity(provider string, amountA, amountB float64) (lpMinted float64, err error) {
	if amountA <= 0 || amountB <= 0 {
		return 0, fmt.Errorf("%w: both deposit amounts must be positive", types.ErrInvalidAmount)
	}

	if p.lpTokenSupply == 0 {
		lpMinted = math.Sqrt(amountA * amountB)
		p.reserveA = amountA
		p.reserveB = amountB
	} else {
		ratioA := amountA / p.reserveA
		ratioB := amountB / p.reserveB
		if math.Abs(ratioA-ratioB) > ratioTolerance {
			return 0, fmt.Errorf("%w: ratio A %.4f vs ratio B %.4f", types.ErrUnbalancedDeposit, ratioA, ratioB)
		}
		lpMinted = math.Min(ratioA, ratioB) * p.lpTokenSupply
		p.reserveA += amountA
		p.reserveB += amountB
	}

	p.lpBalances[provider] += lpMinted
	p.lpTokenSupply += lpMinted
	p.retier()

	return lpMinted, nil
}

// validateProvider rejects malformed names and protected system accounts.
func validateProvider(provider string) error {
	if !providerPattern.MatchString(provider) {
		return fmt.Errorf("%w: malformed provider address", types.ErrUnauthorized)
	}
	upper := strings.ToUpper(provider)
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return fmt.Errorf("%w: %s is a protected system account", types.ErrUnauthorized, provider)
		}
	}
	return nil
}

// RequestWithdrawal records the provider's intent to withdraw, starting the time-lock
// window. Calling it again resets nothing: the earliest request stands.
func (p *LiquidityPool) RequestWithdrawal(provider string) (time.Time, error) {
	if err := validateProvider(provider); err != nil {
		return time.Time{}, err
	}
	if at, ok := p.withdrawalRequests[provider]; ok {
		return at, nil
	}
	at := p.now()
	p.withdrawalRequests[provider] = at
	return at, nil
}

// RemoveLiquidity burns LP shares and pays out the proportional reserves. LP staked in
// a farm sits under the escrow account and is therefore invisible to this call. With a
// positive lock duration the provider must have a request older than the lock; without
// one the call files the request and fails with ErrWithdrawalLocked.
func (p *LiquidityPool) RemoveLiquidity(provider string, lpTokens float64) (amountA, amountB float64, err error) {
	if err := validateProvider(provider); err != nil {
		return 0, 0, err
	}
	if lpTokens <= 0 {
		return 0, 0, fmt.Errorf("%w: LP amount must be positive", types.ErrInvalidAmount)
	}

	balance := p.lpBalances[provider]
	if balance < lpTokens {
		return 0, 0, fmt.Errorf("%w: unescrowed LP %.6f below requested %.6f", types.ErrInsufficientLiquidity, balance, lpTokens)
	}

	if p.lockDuration > 0 {
		requestedAt, ok := p.withdrawalRequests[provider]
		if !ok {
			requestedAt, err = p.RequestWithdrawal(provider)
			if err != nil {
				return 0, 0, err
			}
			return 0, 0, fmt.Errorf("%w: request filed, executable after %s", types.ErrWithdrawalLocked, requestedAt.Add(p.lockDuration).Format(time.RFC3339))
		}
		if p.now().Sub(requestedAt) < p.lockDuration {
			return 0, 0, fmt.Errorf("%w: executable after %s", types.ErrWithdrawalLocked, requestedAt.Add(p.lockDuration).Format(time.RFC3339))
		}
	}

	share := lpTokens / p.lpTokenSupply
	amountA = p.reserveA * share
	amountB = p.reserveB * share

	p.reserveA -= amountA
	p.reserveB -= amountB
	p.lpBalances[provider] -= lpTokens
	p.lpTokenSupply -= lpTokens
	if p.lpBalances[provider] == 0 {
		delete(p.lpBalances, provider)
	}
	delete(p.withdrawalRequests, provider)
	p.retier()

	return amountA, amountB, nil
}

// TransferLP moves LP shares between holders inside this pool. This is the only path
// by which the farming engine escrows and releases staked LP.
func (p *LiquidityPool) TransferLP(from, to string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: LP transfer amount must be positive", types.ErrInvalidAmount)
	}
	if p.lpBalances[from] < amount {
		return fmt.Errorf("%w: %s holds %.6f LP, needs %.6f", types.ErrInsufficientLiquidity, from, p.lpBalances[from], amount)
	}
	p.lpBalances[from] -= amount
	p.lpBalances[to] += amount
	if p.lpBalances[from] == 0 {
		delete(p.lpBalances, from)
	}
	p.version++
	return nil
}

// PoolShare returns the provider's unescrowed share of the pool in percent.
func (p *LiquidityPool) PoolShare(provider string) float64 {
	if p.lpTokenSupply == 0 {
		return 0
	}
	return p.lpBalances[provider] / p.lpTokenSupply * 100
}

// Summary snapshots the pool for the API and persistence layers.
func (p *LiquidityPool) Summary() types.PoolSummary {
	return types.PoolSummary{
		PoolID:             p.ID(),
		TokenA:             p.TokenA,
		TokenB:             p.TokenB,
		ReserveA:           p.reserveA,
		ReserveB:           p.reserveB,
		PriceAToB:          p.Price(p.TokenA),
		PriceBToA:          p.Price(p.TokenB),
		LPTokenSupply:      p.lpTokenSupply,
		TVL:                p.TVL(),
		FeeRate:            p.FeeRate(),
		Tier:               p.band.Name,
		TotalVolumeA:       p.totalVolumeA,
		TotalVolumeB:       p.totalVolumeB,
		TotalFeesCollected: p.totalFeesCollected,
		ProviderCount:      len(p.lpBalances),
		CreatedAt:          p.createdAt,
	}
}

// lpBalanceSum is used by invariant checks: sum of all LP balances must equal supply.
func (p *LiquidityPool) lpBalanceSum() float64 {
	var sum float64
	for _, b := range p.lpBalances {
		sum += b
	}
	return sum
}
