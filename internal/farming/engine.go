/*

Farming engine. Holds a reference to (but does not own) the exchange engine; staked LP
moves between the user and the pool's escrow account exclusively through the exchange's
TransferLP method. Every reward payout settles through the ledger adapter before any
in-memory accounting commits: a refused settlement leaves all state unchanged.

*/

package farming

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	dexpkg "github.com/nexusos/dex/internal/dex"
	"github.com/nexusos/dex/internal/ledger"
	"github.com/nexusos/dex/internal/logger"
	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

var farmLogger = logger.GetForComponent("farming_engine")

// rewardWavelengthNM tags farm reward settlements on the ledger.
const rewardWavelengthNM = 600.0

// DefaultBaseRewardRate is the daily base reward fraction for new farms.
const DefaultBaseRewardRate = 0.01

// Config carries the farming engine's dependencies.
type Config struct {
	DEX            *dexpkg.Engine
	Ledger         ledger.Adapter
	Recorder       types.Recorder
	Schedule       tier.Schedule
	BaseRewardRate float64
	RewardSource   string
	Clock          func() time.Time
}

type Engine struct {
	mu sync.Mutex

	dex            *dexpkg.Engine
	ledger         ledger.Adapter
	recorder       types.Recorder
	schedule       tier.Schedule
	baseRewardRate float64
	rewardSource   string
	now            func() time.Time

	farms map[types.PoolID]*FarmPool

	totalRewardsDistributed float64
	createdAt               time.Time
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.DEX == nil {
		return nil, fmt.Errorf("exchange engine is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger adapter is required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = types.NopRecorder{}
	}
	if cfg.BaseRewardRate <= 0 {
		cfg.BaseRewardRate = DefaultBaseRewardRate
	}
	if cfg.RewardSource == "" {
		cfg.RewardSource = ledger.FarmingRewardsAccount
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		dex:            cfg.DEX,
		ledger:         cfg.Ledger,
		recorder:       cfg.Recorder,
		schedule:       cfg.Schedule,
		baseRewardRate: cfg.BaseRewardRate,
		rewardSource:   cfg.RewardSource,
		now:            cfg.Clock,
		farms:          make(map[types.PoolID]*FarmPool),
		createdAt:      time.Now(),
	}, nil
}

// CreateFarm registers a farm for an existing exchange pool.
func (e *Engine) CreateFarm(poolID types.PoolID, baseRewardRate, bonusMultiplier float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.createFarmLocked(poolID, baseRewardRate, bonusMultiplier)
	return err
}

func (e *Engine) createFarmLocked(poolID types.PoolID, baseRewardRate, bonusMultiplier float64) (*FarmPool, error) {
	if _, ok := e.farms[poolID]; ok {
		return nil, fmt.Errorf("farm already exists for %s", poolID)
	}

	tokenA, tokenB, err := e.dex.PoolTokens(poolID)
	if err != nil {
		return nil, fmt.Errorf("%w: no exchange pool %s", types.ErrPoolNotFound, poolID)
	}
	if baseRewardRate <= 0 {
		baseRewardRate = e.baseRewardRate
	}
	if bonusMultiplier <= 0 {
		bonusMultiplier = 1.0
	}

	farm := NewFarmPool(poolID, tokenA, tokenB, baseRewardRate, bonusMultiplier, e.schedule, e.now)
	e.farms[poolID] = farm

	farmLogger.Info().
		Str("pool_id", string(poolID)).
		Float64("base_reward_rate", baseRewardRate).
		Msg("Farm created")
	return farm, nil
}

// getOrCreateFarm returns the farm for a pool, creating it lazily when the exchange
// pool exists.
func (e *Engine) getOrCreateFarm(poolID types.PoolID) (*FarmPool, error) {
	if farm, ok := e.farms[poolID]; ok {
		return farm, nil
	}
	return e.createFarmLocked(poolID, e.baseRewardRate, 1.0)
}

// StakeLP stakes the user's LP tokens into the pool's farm. Ordering is the core
// correctness contract: validate, settle any already-pending rewards externally,
// commit the in-memory stake, then move LP into escrow. A refused settlement stops
// everything before any mutation; a failed escrow transfer reverts the commit.
func (e *Engine) StakeLP(user string, poolID types.PoolID, lpAmount float64) (types.FarmReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lpAmount <= 0 {
		return types.FarmReceipt{}, fmt.Errorf("%w: stake amount must be positive", types.ErrInvalidAmount)
	}

	farm, err := e.getOrCreateFarm(poolID)
	if err != nil {
		return types.FarmReceipt{}, err
	}
	if !farm.Active() {
		return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrFarmInactive, poolID)
	}

	available, err := e.dex.LPBalance(poolID, user)
	if err != nil {
		return types.FarmReceipt{}, err
	}
	if available < lpAmount {
		return types.FarmReceipt{}, fmt.Errorf("%w: available LP %.6f below requested %.6f", types.ErrInsufficientLiquidity, available, lpAmount)
	}

	lpValue, err := e.dex.LPValue(poolID, lpAmount)
	if err != nil {
		return types.FarmReceipt{}, err
	}

	preview, err := farm.PreviewStake(user, lpAmount, lpValue)
	if err != nil {
		return types.FarmReceipt{}, err
	}

	var txID string
	if preview.PendingRewards > 0 {
		result := e.settleRewards(user, preview.PendingRewards)
		if !result.SettlementSuccess {
			return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrSettlementFailed, result.Message)
		}
		txID = result.TxID
		e.totalRewardsDistributed += preview.PendingRewards
	}

	if err := farm.CommitStake(preview); err != nil {
		return types.FarmReceipt{}, err
	}

	escrow, err := e.dex.PoolEscrowAccount(poolID)
	if err == nil {
		err = e.dex.TransferLP(poolID, user, escrow, lpAmount)
	}
	if err != nil {
		farm.revertStake(preview)
		return types.FarmReceipt{}, fmt.Errorf("%w: LP escrow transfer: %v", types.ErrInvariantViolation, err)
	}

	receipt := types.FarmReceipt{
		PoolID:         poolID,
		User:           user,
		LPAmount:       lpAmount,
		RewardsNXT:     preview.PendingRewards,
		SettlementTxID: txID,
		Timestamp:      e.now(),
	}
	if err := e.recorder.RecordFarm(types.ActionStake, receipt); err != nil {
		farmLogger.Error().Err(err).Msg("Failed to record stake receipt")
	}

	farmLogger.Info().
		Str("pool_id", string(poolID)).
		Str("user", user).
		Float64("lp_amount", lpAmount).
		Msg("LP staked")
	return receipt, nil
}

// UnstakeLP releases staked LP from escrow and settles any pending rewards. The
// rewards settle before the commit; the escrow release follows the commit.
func (e *Engine) UnstakeLP(user string, poolID types.PoolID, lpAmount float64) (types.FarmReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	farm, ok := e.farms[poolID]
	if !ok {
		return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrFarmNotFound, poolID)
	}

	preview, err := farm.PreviewUnstake(user, lpAmount)
	if err != nil {
		return types.FarmReceipt{}, err
	}

	var txID string
	if preview.PendingRewards > 0 {
		result := e.settleRewards(user, preview.PendingRewards)
		if !result.SettlementSuccess {
			return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrSettlementFailed, result.Message)
		}
		txID = result.TxID
		e.totalRewardsDistributed += preview.PendingRewards
	}

	if err := farm.CommitUnstake(preview); err != nil {
		return types.FarmReceipt{}, err
	}

	escrow, err := e.dex.PoolEscrowAccount(poolID)
	if err == nil {
		err = e.dex.TransferLP(poolID, escrow, user, lpAmount)
	}
	if err != nil {
		farm.revertUnstake(preview)
		farmLogger.Error().Err(err).
			Str("pool_id", string(poolID)).
			Str("user", user).
			Msg("Escrow release failed after unstake commit; stake restored")
		return types.FarmReceipt{}, fmt.Errorf("%w: LP escrow release: %v", types.ErrInvariantViolation, err)
	}

	receipt := types.FarmReceipt{
		PoolID:         poolID,
		User:           user,
		LPAmount:       lpAmount,
		RewardsNXT:     preview.PendingRewards,
		SettlementTxID: txID,
		Timestamp:      e.now(),
	}
	if err := e.recorder.RecordFarm(types.ActionUnstake, receipt); err != nil {
		farmLogger.Error().Err(err).Msg("Failed to record unstake receipt")
	}

	farmLogger.Info().
		Str("pool_id", string(poolID)).
		Str("user", user).
		Float64("lp_amount", lpAmount).
		Float64("rewards_nxt", preview.PendingRewards).
		Msg("LP unstaked")
	return receipt, nil
}

// ClaimRewards settles and commits the user's pending rewards in one farm.
func (e *Engine) ClaimRewards(user string, poolID types.PoolID) (types.FarmReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	farm, ok := e.farms[poolID]
	if !ok {
		return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrFarmNotFound, poolID)
	}

	preview, err := farm.PreviewClaim(user)
	if err != nil {
		return types.FarmReceipt{}, err
	}

	result := e.settleRewards(user, preview.Rewards)
	if !result.SettlementSuccess {
		return types.FarmReceipt{}, fmt.Errorf("%w: %s", types.ErrSettlementFailed, result.Message)
	}

	if err := farm.CommitClaim(preview); err != nil {
		return types.FarmReceipt{}, err
	}
	e.totalRewardsDistributed += preview.Rewards

	receipt := types.FarmReceipt{
		PoolID:         poolID,
		User:           user,
		RewardsNXT:     preview.Rewards,
		SettlementTxID: result.TxID,
		Timestamp:      e.now(),
	}
	if err := e.recorder.RecordFarm(types.ActionClaim, receipt); err != nil {
		farmLogger.Error().Err(err).Msg("Failed to record claim receipt")
	}
	return receipt, nil
}

// ClaimAllRewards aggregates pending rewards across every farm the user is staked in,
// re-validates membership after aggregation, issues one combined settlement, then
// commits each farm individually.
func (e *Engine) ClaimAllRewards(user string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var previews []ClaimPreview
	for _, farm := range e.farms {
		if farm.Position(user) == nil {
			continue
		}
		preview, err := farm.PreviewClaim(user)
		if err != nil {
			continue
		}
		previews = append(previews, preview)
	}
	if len(previews) == 0 {
		return 0, types.ErrNoRewards
	}

	// Re-validate every farm still holds the user before settling the aggregate.
	for _, p := range previews {
		if e.farms[p.PoolID].Position(user) == nil {
			return 0, fmt.Errorf("%w: %s left farm %s between preview and settlement", types.ErrConflict, user, p.PoolID)
		}
	}

	var total float64
	for _, p := range previews {
		total += p.Rewards
	}

	result := e.settleRewards(user, total)
	if !result.SettlementSuccess {
		return 0, fmt.Errorf("%w: %s", types.ErrSettlementFailed, result.Message)
	}

	for _, p := range previews {
		if err := e.farms[p.PoolID].CommitClaim(p); err != nil {
			farmLogger.Error().Err(err).
				Str("pool_id", string(p.PoolID)).
				Msg("Claim commit failed after combined settlement")
			continue
		}
		if err := e.recorder.RecordFarm(types.ActionClaim, types.FarmReceipt{
			PoolID: p.PoolID, User: user, RewardsNXT: p.Rewards,
			SettlementTxID: result.TxID, Timestamp: e.now(),
		}); err != nil {
			farmLogger.Error().Err(err).Msg("Failed to record claim receipt")
		}
	}
	e.totalRewardsDistributed += total

	return total, nil
}

// settleRewards pays the user from the reward source through the ledger adapter.
func (e *Engine) settleRewards(user string, amountNXT float64) ledger.SettlementResult {
	return e.ledger.Settle(ledger.SettlementRequest{
		SourceAddress:    e.rewardSource,
		RecipientAddress: user,
		AmountNXT:        amountNXT,
		WavelengthNM:     rewardWavelengthNM,
		Module:           ledger.ModuleFarming,
		TransferID:       "FARM-REWARD-" + uuid.NewString(),
	})
}

// PendingRewards returns the user's accrued rewards in one farm without mutating state.
func (e *Engine) PendingRewards(user string, poolID types.PoolID) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	farm, ok := e.farms[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrFarmNotFound, poolID)
	}
	return farm.PendingRewards(user), nil
}

// UserFarms lists the user's positions across all farms.
func (e *Engine) UserFarms(user string) []types.FarmPositionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []types.FarmPositionInfo
	for _, farm := range e.farms {
		if info := farm.UserInfo(user); info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// FarmSummary snapshots one farm.
func (e *Engine) FarmSummary(poolID types.PoolID) (types.FarmSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	farm, ok := e.farms[poolID]
	if !ok {
		return types.FarmSummary{}, fmt.Errorf("%w: %s", types.ErrFarmNotFound, poolID)
	}
	return farm.Summary(), nil
}

// AllFarms snapshots every active farm.
func (e *Engine) AllFarms() []types.FarmSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.FarmSummary, 0, len(e.farms))
	for _, farm := range e.farms {
		if farm.Active() {
			out = append(out, farm.Summary())
		}
	}
	return out
}

// TotalTVL sums TVL across all farms.
func (e *Engine) TotalTVL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total float64
	for _, farm := range e.farms {
		total += farm.TVL()
	}
	return total
}

// Stats returns engine-level counters.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := 0
	stakers := 0
	var tvl float64
	for _, farm := range e.farms {
		if farm.Active() {
			active++
		}
		stakers += len(farm.positions)
		tvl += farm.TVL()
	}

	return map[string]interface{}{
		"total_farms":               len(e.farms),
		"active_farms":              active,
		"total_tvl":                 tvl,
		"total_stakers":             stakers,
		"total_rewards_distributed": e.totalRewardsDistributed,
		"uptime_days":               time.Since(e.createdAt).Hours() / 24,
	}
}
