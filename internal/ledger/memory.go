package ledger

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/nexusos/dex/internal/logger"
	"github.com/nexusos/dex/internal/types"
	"github.com/nexusos/dex/internal/units"
)

var ledgerLogger = logger.GetForComponent("ledger")

// Well-known system accounts created at genesis.
const (
	TreasuryAccount       = "TREASURY"
	ValidatorPoolAccount  = "VALIDATOR_POOL"
	FarmingRewardsAccount = "FARMING_REWARDS"
	DEXFeesAccount        = "DEX_FEES"
	SDKWalletAccount      = "SDK_WALLET"
)

// SettlementFeeRate is the ledger-side fee deducted from every settlement payout.
const SettlementFeeRate = 0.005

// InMemoryLedger is an Adapter backed by an in-process account map. Balances are held
// as integer micro-units so repeated transfers never accumulate float dust.
type InMemoryLedger struct {
	mu       sync.Mutex
	balances map[string]sdkmath.Int
	txCount  uint64
}

// NewInMemoryLedger creates a ledger seeded with the system accounts. The treasury and
// farming reward source receive the given initial balances (in NXT).
func NewInMemoryLedger(treasuryNXT, rewardSourceNXT float64) (*InMemoryLedger, error) {
	l := &InMemoryLedger{balances: make(map[string]sdkmath.Int)}

	for _, acc := range []string{TreasuryAccount, ValidatorPoolAccount, FarmingRewardsAccount, DEXFeesAccount, SDKWalletAccount} {
		l.balances[acc] = sdkmath.ZeroInt()
	}

	treasury, err := units.ToUnits(treasuryNXT)
	if err != nil {
		return nil, fmt.Errorf("treasury balance: %w", err)
	}
	rewards, err := units.ToUnits(rewardSourceNXT)
	if err != nil {
		return nil, fmt.Errorf("reward source balance: %w", err)
	}
	l.balances[TreasuryAccount] = treasury
	l.balances[FarmingRewardsAccount] = rewards

	return l, nil
}

func (l *InMemoryLedger) GetBalance(address string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[address]
	if !ok {
		l.balances[address] = sdkmath.ZeroInt()
		return 0
	}
	nxt, err := units.ToNXT(bal)
	if err != nil {
		ledgerLogger.Error().Err(err).Str("address", address).Msg("Balance conversion failed")
		return 0
	}
	return nxt
}

func (l *InMemoryLedger) CreateAccount(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[address]; !ok {
		l.balances[address] = sdkmath.ZeroInt()
	}
}

func (l *InMemoryLedger) Transfer(from, to string, amountNXT float64) error {
	amount, err := units.ToUnits(amountNXT)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidAmount, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: transfer amount must be positive", types.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok {
		fromBal = sdkmath.ZeroInt()
		l.balances[from] = fromBal
	}
	if _, ok := l.balances[to]; !ok {
		l.balances[to] = sdkmath.ZeroInt()
	}

	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s units, needs %s", types.ErrInsufficientBalance, from, fromBal, amount)
	}

	l.balances[from] = fromBal.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// Settle applies a value transfer with the ledger fee routed to the SDK wallet. The
// net payout lands on the recipient only if the source covers the full amount; a short
// source fails the settlement with no balance changes.
func (l *InMemoryLedger) Settle(req SettlementRequest) SettlementResult {
	result := SettlementResult{TxID: req.TransferID}

	amount, err := units.ToUnits(req.AmountNXT)
	if err != nil || !amount.IsPositive() {
		result.Message = "settlement amount must be a positive finite number"
		return result
	}

	feeNXT := req.AmountNXT * SettlementFeeRate
	fee, err := units.ToUnits(feeNXT)
	if err != nil {
		result.Message = "settlement fee conversion failed"
		return result
	}
	net := amount.Sub(fee)

	l.mu.Lock()
	defer l.mu.Unlock()

	srcBal, ok := l.balances[req.SourceAddress]
	if !ok {
		srcBal = sdkmath.ZeroInt()
		l.balances[req.SourceAddress] = srcBal
	}
	if _, ok := l.balances[req.RecipientAddress]; !ok {
		l.balances[req.RecipientAddress] = sdkmath.ZeroInt()
	}

	if srcBal.LT(amount) {
		result.Message = fmt.Sprintf("source %s cannot cover %.6f NXT", req.SourceAddress, req.AmountNXT)
		ledgerLogger.Warn().
			Str("transfer_id", req.TransferID).
			Str("source", req.SourceAddress).
			Float64("amount_nxt", req.AmountNXT).
			Msg("Settlement rejected: insufficient source balance")
		return result
	}

	l.balances[req.SourceAddress] = srcBal.Sub(amount)
	l.balances[req.RecipientAddress] = l.balances[req.RecipientAddress].Add(net)
	l.balances[SDKWalletAccount] = l.balances[SDKWalletAccount].Add(fee)
	l.txCount++

	netNXT, _ := units.ToNXT(net)
	result.SettlementSuccess = true
	result.FeeNXT = feeNXT
	result.NetNXT = netNXT
	result.Message = fmt.Sprintf("settled %.6f NXT to %s", netNXT, req.RecipientAddress)

	ledgerLogger.Debug().
		Str("transfer_id", req.TransferID).
		Str("module", string(req.Module)).
		Str("recipient", req.RecipientAddress).
		Float64("net_nxt", netNXT).
		Msg("Settlement applied")

	return result
}

// TxCount returns the number of settlements applied. Mostly useful for stats.
func (l *InMemoryLedger) TxCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txCount
}
