/*

Farm pool: LP-token staking with time-accrued rewards. Rewards accrue continuously as
base_rate * stake_share * elapsed_days * tier_multiplier * TVL, with the tier taken
from the shared schedule at the farm's current TVL.

Every mutation goes through a preview/commit pair: a preview snapshots the amounts and
the farm's version counter without touching state; the caller settles externally; the
commit applies the snapshot and fails with ErrConflict if the farm changed in between.
The FarmingEngine serializes access, so the version check is a backstop for callers
that drop the engine's ordering, not the primary guard.

*/

package farming

import (
	"fmt"
	"time"

	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

const secondsPerDay = 86400.0

// FarmPosition is one user's stake in one farm. It exists only while staked LP is
// non-zero: positions are created on first stake and deleted when the stake empties.
type FarmPosition struct {
	UserAddress         string       `json:"user_address"`
	PoolID              types.PoolID `json:"pool_id"`
	StakedLP            float64      `json:"staked_lp"`
	StakedAt            time.Time    `json:"staked_at"`
	LastRewardClaim     time.Time    `json:"last_reward_claim"`
	TotalRewardsClaimed float64      `json:"total_rewards_claimed"`
}

// StakePreview snapshots a pending stake: any rewards already accrued must settle
// externally before the stake commits.
type StakePreview struct {
	User           string
	PoolID         types.PoolID
	LPAmount       float64
	LPValueNXT     float64
	PendingRewards float64
	SnapshotTime   time.Time
	Version        uint64
}

// UnstakePreview snapshots a pending unstake with the rewards and TVL share to remove.
// StakedAt and ClaimedToDate carry the position's pre-commit history so a failed
// escrow release can restore a position the commit deleted.
type UnstakePreview struct {
	User           string
	PoolID         types.PoolID
	LPAmount       float64
	PendingRewards float64
	ValueToRemove  float64
	StakedAt       time.Time
	ClaimedToDate  float64
	SnapshotTime   time.Time
	Version        uint64
}

// ClaimPreview snapshots a pending reward claim.
type ClaimPreview struct {
	User         string
	PoolID       types.PoolID
	Rewards      float64
	SnapshotTime time.Time
	Version      uint64
}

type FarmPool struct {
	PoolID types.PoolID
	TokenA string
	TokenB string

	totalStakedLP    float64
	totalValueLocked float64

	baseRewardRate  float64 // rewards per day as a fraction, e.g. 0.01
	bonusMultiplier float64

	positions map[string]*FarmPosition
	schedule  tier.Schedule
	active    bool

	totalRewardsDistributed float64

	version   uint64
	createdAt time.Time
	now       func() time.Time
}

func NewFarmPool(poolID types.PoolID, tokenA, tokenB string, baseRewardRate, bonusMultiplier float64, schedule tier.Schedule, now func() time.Time) *FarmPool {
	if now == nil {
		now = time.Now
	}
	return &FarmPool{
		PoolID:          poolID,
		TokenA:          tokenA,
		TokenB:          tokenB,
		baseRewardRate:  baseRewardRate,
		bonusMultiplier: bonusMultiplier,
		positions:       make(map[string]*FarmPosition),
		schedule:        schedule,
		active:          true,
		createdAt:       time.Now(),
		now:             now,
	}
}

func (f *FarmPool) Active() bool           { return f.active }
func (f *FarmPool) SetActive(active bool)  { f.active = active; f.version++ }
func (f *FarmPool) TVL() float64           { return f.totalValueLocked }
func (f *FarmPool) TotalStakedLP() float64 { return f.totalStakedLP }
func (f *FarmPool) Version() uint64        { return f.version }

// Band returns the reward tier in effect at the farm's current TVL.
func (f *FarmPool) Band() tier.Band {
	return f.schedule.ForTVL(f.totalValueLocked)
}

// Multiplier is the tier reward multiplier scaled by any promotional bonus.
func (f *FarmPool) Multiplier() float64 {
	return f.Band().RewardMultiplier * f.bonusMultiplier
}

// APY estimates the annualized reward rate for the farm.
func (f *FarmPool) APY() float64 {
	return f.schedule.APY(f.totalValueLocked)
}

// PendingRewards computes the user's accrued, unclaimed rewards at the current time.
func (f *FarmPool) PendingRewards(user string) float64 {
	pos, ok := f.positions[user]
	if !ok {
		return 0
	}
	if f.totalStakedLP <= 0 {
		return 0
	}

	elapsedDays := f.now().Sub(pos.LastRewardClaim).Seconds() / secondsPerDay
	share := pos.StakedLP / f.totalStakedLP

	return f.baseRewardRate * share * elapsedDays * f.Multiplier() * f.totalValueLocked
}

// Position returns the user's position, or nil when unstaked.
func (f *FarmPool) Position(user string) *FarmPosition {
	return f.positions[user]
}

// PreviewStake snapshots a stake. Rewards already pending for an existing staker are
// part of the snapshot and must settle before CommitStake.
func (f *FarmPool) PreviewStake(user string, lpAmount, lpValueNXT float64) (StakePreview, error) {
	if !f.active {
		return StakePreview{}, fmt.Errorf("%w: %s", types.ErrFarmInactive, f.PoolID)
	}
	if lpAmount <= 0 {
		return StakePreview{}, fmt.Errorf("%w: stake amount must be positive", types.ErrInvalidAmount)
	}
	return StakePreview{
		User:           user,
		PoolID:         f.PoolID,
		LPAmount:       lpAmount,
		LPValueNXT:     lpValueNXT,
		PendingRewards: f.PendingRewards(user),
		SnapshotTime:   f.now(),
		Version:        f.version,
	}, nil
}

// CommitStake applies a stake snapshot. Call only after any pending rewards in the
// preview have settled externally.
func (f *FarmPool) CommitStake(p StakePreview) error {
	if p.Version != f.version {
		return fmt.Errorf("%w: farm %s moved from version %d to %d", types.ErrConflict, f.PoolID, p.Version, f.version)
	}

	if pos, ok := f.positions[p.User]; ok {
		if !p.SnapshotTime.IsZero() {
			pos.LastRewardClaim = p.SnapshotTime
			pos.TotalRewardsClaimed += p.PendingRewards
			f.totalRewardsDistributed += p.PendingRewards
		}
		pos.StakedLP += p.LPAmount
	} else {
		f.positions[p.User] = &FarmPosition{
			UserAddress:     p.User,
			PoolID:          f.PoolID,
			StakedLP:        p.LPAmount,
			StakedAt:        p.SnapshotTime,
			LastRewardClaim: p.SnapshotTime,
		}
	}

	f.totalStakedLP += p.LPAmount
	f.totalValueLocked += p.LPValueNXT
	f.version++
	return nil
}

// revertStake undoes the stake amount of a just-committed stake when the LP escrow
// transfer fails after the commit. Reward bookkeeping stays committed: any pending
// rewards in the preview were already settled on the ledger, so total_rewards_claimed
// never moves backwards.
func (f *FarmPool) revertStake(p StakePreview) {
	pos, ok := f.positions[p.User]
	if !ok {
		return
	}
	pos.StakedLP -= p.LPAmount
	f.totalStakedLP -= p.LPAmount
	f.totalValueLocked -= p.LPValueNXT
	if f.totalValueLocked < 0 {
		f.totalValueLocked = 0
	}
	if pos.StakedLP <= 0 {
		delete(f.positions, p.User)
	}
	f.version++
}

// PreviewUnstake snapshots an unstake without modifying state.
func (f *FarmPool) PreviewUnstake(user string, lpAmount float64) (UnstakePreview, error) {
	if lpAmount <= 0 {
		return UnstakePreview{}, fmt.Errorf("%w: unstake amount must be positive", types.ErrInvalidAmount)
	}
	pos, ok := f.positions[user]
	if !ok {
		return UnstakePreview{}, fmt.Errorf("%w: %s has no stake in %s", types.ErrNoStake, user, f.PoolID)
	}
	if pos.StakedLP < lpAmount {
		return UnstakePreview{}, fmt.Errorf("%w: staked %.6f below requested %.6f", types.ErrInsufficientLiquidity, pos.StakedLP, lpAmount)
	}

	var valueToRemove float64
	if f.totalStakedLP > 0 {
		valueToRemove = lpAmount / f.totalStakedLP * f.totalValueLocked
	}

	return UnstakePreview{
		User:           user,
		PoolID:         f.PoolID,
		LPAmount:       lpAmount,
		PendingRewards: f.PendingRewards(user),
		ValueToRemove:  valueToRemove,
		StakedAt:       pos.StakedAt,
		ClaimedToDate:  pos.TotalRewardsClaimed,
		SnapshotTime:   f.now(),
		Version:        f.version,
	}, nil
}

// CommitUnstake applies an unstake snapshot. The position is deleted when its staked
// LP reaches zero, returning the user to the unstaked state.
func (f *FarmPool) CommitUnstake(p UnstakePreview) error {
	if p.Version != f.version {
		return fmt.Errorf("%w: farm %s moved from version %d to %d", types.ErrConflict, f.PoolID, p.Version, f.version)
	}
	pos, ok := f.positions[p.User]
	if !ok {
		return fmt.Errorf("%w: %s has no stake in %s", types.ErrNoStake, p.User, f.PoolID)
	}
	if pos.StakedLP < p.LPAmount {
		return fmt.Errorf("%w: staked %.6f below requested %.6f", types.ErrInsufficientLiquidity, pos.StakedLP, p.LPAmount)
	}

	pos.StakedLP -= p.LPAmount
	pos.LastRewardClaim = p.SnapshotTime
	pos.TotalRewardsClaimed += p.PendingRewards

	f.totalStakedLP -= p.LPAmount
	f.totalValueLocked -= p.ValueToRemove
	if f.totalValueLocked < 0 {
		f.totalValueLocked = 0
	}
	f.totalRewardsDistributed += p.PendingRewards

	if pos.StakedLP <= 0 {
		delete(f.positions, p.User)
	}
	f.version++
	return nil
}

// revertUnstake re-applies the staked amount of a just-committed unstake when the
// escrow release fails after the commit. A position the commit deleted is rebuilt
// from the preview's history. Reward bookkeeping stays committed: the rewards in the
// preview were already settled on the ledger.
func (f *FarmPool) revertUnstake(p UnstakePreview) {
	pos, ok := f.positions[p.User]
	if !ok {
		pos = &FarmPosition{
			UserAddress:         p.User,
			PoolID:              f.PoolID,
			StakedAt:            p.StakedAt,
			LastRewardClaim:     p.SnapshotTime,
			TotalRewardsClaimed: p.ClaimedToDate + p.PendingRewards,
		}
		f.positions[p.User] = pos
	}
	pos.StakedLP += p.LPAmount
	f.totalStakedLP += p.LPAmount
	f.totalValueLocked += p.ValueToRemove
	f.version++
}

// PreviewClaim snapshots a reward claim without modifying state.
func (f *FarmPool) PreviewClaim(user string) (ClaimPreview, error) {
	if _, ok := f.positions[user]; !ok {
		return ClaimPreview{}, fmt.Errorf("%w: %s has no stake in %s", types.ErrNoStake, user, f.PoolID)
	}
	rewards := f.PendingRewards(user)
	if rewards <= 0 {
		return ClaimPreview{}, types.ErrNoRewards
	}
	return ClaimPreview{
		User:         user,
		PoolID:       f.PoolID,
		Rewards:      rewards,
		SnapshotTime: f.now(),
		Version:      f.version,
	}, nil
}

// CommitClaim applies a claim snapshot after its settlement succeeded.
func (f *FarmPool) CommitClaim(p ClaimPreview) error {
	if p.Version != f.version {
		return fmt.Errorf("%w: farm %s moved from version %d to %d", types.ErrConflict, f.PoolID, p.Version, f.version)
	}
	pos, ok := f.positions[p.User]
	if !ok {
		return fmt.Errorf("%w: %s has no stake in %s", types.ErrNoStake, p.User, f.PoolID)
	}

	pos.LastRewardClaim = p.SnapshotTime
	pos.TotalRewardsClaimed += p.Rewards
	f.totalRewardsDistributed += p.Rewards
	f.version++
	return nil
}

// UserInfo returns the API view of a user's position, or nil when unstaked.
func (f *FarmPool) UserInfo(user string) *types.FarmPositionInfo {
	pos, ok := f.positions[user]
	if !ok {
		return nil
	}

	var sharePct float64
	if f.totalStakedLP > 0 {
		sharePct = pos.StakedLP / f.totalStakedLP * 100
	}

	return &types.FarmPositionInfo{
		PoolID:            f.PoolID,
		StakedLP:          pos.StakedLP,
		SharePct:          sharePct,
		PendingRewards:    f.PendingRewards(user),
		TotalClaimed:      pos.TotalRewardsClaimed,
		StakedAt:          pos.StakedAt,
		StakeDurationDays: f.now().Sub(pos.StakedAt).Seconds() / secondsPerDay,
		APY:               f.APY(),
		Tier:              f.Band().Name,
	}
}

// Summary snapshots the farm for the API and persistence layers.
func (f *FarmPool) Summary() types.FarmSummary {
	return types.FarmSummary{
		PoolID:                  f.PoolID,
		TokenA:                  f.TokenA,
		TokenB:                  f.TokenB,
		TotalStakedLP:           f.totalStakedLP,
		TVL:                     f.totalValueLocked,
		APY:                     f.APY(),
		Tier:                    f.Band().Name,
		Multiplier:              f.Multiplier(),
		StakerCount:             len(f.positions),
		TotalRewardsDistributed: f.totalRewardsDistributed,
		Active:                  f.active,
	}
}

// stakedSum is used by invariant checks: sum of position stakes must equal the total.
func (f *FarmPool) stakedSum() float64 {
	var sum float64
	for _, pos := range f.positions {
		sum += pos.StakedLP
	}
	return sum
}
