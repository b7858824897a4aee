package farming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFarm(t *testing.T) (*FarmPool, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	farm := NewFarmPool("TOKEN-NXT", "TOKEN", "NXT", 0.01, 1.0, tier.DefaultSchedule(), clock.Now)
	return farm, clock
}

func stake(t *testing.T, farm *FarmPool, user string, lpAmount, lpValue float64) {
	t.Helper()
	preview, err := farm.PreviewStake(user, lpAmount, lpValue)
	require.NoError(t, err)
	require.NoError(t, farm.CommitStake(preview))
}

func TestStakeCreatesPosition(t *testing.T) {
	farm, _ := newTestFarm(t)

	stake(t, farm, "alice", 100, 50_000)

	pos := farm.Position("alice")
	require.NotNil(t, pos)
	require.Equal(t, 100.0, pos.StakedLP)
	require.Equal(t, 100.0, farm.TotalStakedLP())
	require.Equal(t, 50_000.0, farm.TVL())
	require.Equal(t, "xray", farm.Band().Name)
	require.InDelta(t, farm.TotalStakedLP(), farm.stakedSum(), 1e-9)
}

func TestRewardsAccrueOverTime(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)

	// No elapsed time, no rewards.
	require.Zero(t, farm.PendingRewards("alice"))

	// One day as the sole staker at TVL 50000 in the xray band (multiplier 3):
	// 0.01 * 1.0 * 1 day * 3 * 50000 = 1500.
	clock.Advance(24 * time.Hour)
	require.InDelta(t, 1500, farm.PendingRewards("alice"), 1e-6)

	// Half a day more accrues proportionally.
	clock.Advance(12 * time.Hour)
	require.InDelta(t, 2250, farm.PendingRewards("alice"), 1e-6)

	require.Zero(t, farm.PendingRewards("nobody"))
}

func TestRewardsSplitByShare(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 75, 37_500)
	stake(t, farm, "bob", 25, 12_500)

	clock.Advance(24 * time.Hour)

	alice := farm.PendingRewards("alice")
	bob := farm.PendingRewards("bob")
	require.InDelta(t, 3.0, alice/bob, 1e-9)
	require.InDelta(t, 1500, alice+bob, 1e-6)
}

func TestClaimResetsAccrual(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)
	clock.Advance(24 * time.Hour)

	preview, err := farm.PreviewClaim("alice")
	require.NoError(t, err)
	require.InDelta(t, 1500, preview.Rewards, 1e-6)

	require.NoError(t, farm.CommitClaim(preview))
	require.Zero(t, farm.PendingRewards("alice"))
	require.InDelta(t, 1500, farm.Position("alice").TotalRewardsClaimed, 1e-6)

	// Nothing pending right after a claim.
	_, err = farm.PreviewClaim("alice")
	require.ErrorIs(t, err, types.ErrNoRewards)

	_, err = farm.PreviewClaim("nobody")
	require.ErrorIs(t, err, types.ErrNoStake)
}

func TestUnstakeRemovesShareAndPosition(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)
	clock.Advance(24 * time.Hour)

	preview, err := farm.PreviewUnstake("alice", 40)
	require.NoError(t, err)
	require.InDelta(t, 20_000, preview.ValueToRemove, 1e-9)
	require.InDelta(t, 1500, preview.PendingRewards, 1e-6)

	require.NoError(t, farm.CommitUnstake(preview))
	require.Equal(t, 60.0, farm.TotalStakedLP())
	require.InDelta(t, 30_000, farm.TVL(), 1e-9)

	// Unstaking the rest deletes the position entirely.
	preview, err = farm.PreviewUnstake("alice", 60)
	require.NoError(t, err)
	require.NoError(t, farm.CommitUnstake(preview))
	require.Nil(t, farm.Position("alice"))
	require.Zero(t, farm.TotalStakedLP())
	require.Zero(t, farm.TVL())

	_, err = farm.PreviewUnstake("alice", 1)
	require.ErrorIs(t, err, types.ErrNoStake)
}

func TestPreviewValidation(t *testing.T) {
	farm, _ := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)

	_, err := farm.PreviewStake("alice", 0, 0)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = farm.PreviewUnstake("alice", 150)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	farm.SetActive(false)
	_, err = farm.PreviewStake("alice", 10, 100)
	require.ErrorIs(t, err, types.ErrFarmInactive)
}

func TestCommitDetectsInterleavedMutation(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)
	clock.Advance(24 * time.Hour)

	preview, err := farm.PreviewClaim("alice")
	require.NoError(t, err)

	// Another stake lands between preview and commit.
	stake(t, farm, "bob", 50, 25_000)

	err = farm.CommitClaim(preview)
	require.ErrorIs(t, err, types.ErrConflict)

	// Stale stake and unstake previews fail the same way.
	stakePreview, err := farm.PreviewStake("alice", 10, 5_000)
	require.NoError(t, err)
	unstakePreview, err := farm.PreviewUnstake("alice", 10)
	require.NoError(t, err)
	require.NoError(t, farm.CommitStake(stakePreview))
	require.ErrorIs(t, farm.CommitUnstake(unstakePreview), types.ErrConflict)
}

func TestRevertStakeRestoresState(t *testing.T) {
	farm, _ := newTestFarm(t)

	preview, err := farm.PreviewStake("alice", 100, 50_000)
	require.NoError(t, err)
	require.NoError(t, farm.CommitStake(preview))

	farm.revertStake(preview)
	require.Nil(t, farm.Position("alice"))
	require.Zero(t, farm.TotalStakedLP())
	require.Zero(t, farm.TVL())
}

// Reverting a stake after its pending rewards already settled must keep the reward
// bookkeeping: total_rewards_claimed never decreases.
func TestRevertStakeKeepsSettledRewards(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)
	clock.Advance(24 * time.Hour)

	preview, err := farm.PreviewStake("alice", 50, 25_000)
	require.NoError(t, err)
	require.InDelta(t, 1500, preview.PendingRewards, 1e-6)
	require.NoError(t, farm.CommitStake(preview))

	farm.revertStake(preview)

	pos := farm.Position("alice")
	require.NotNil(t, pos)
	require.Equal(t, 100.0, pos.StakedLP)
	require.InDelta(t, 1500, pos.TotalRewardsClaimed, 1e-6)
	require.InDelta(t, 1500, farm.totalRewardsDistributed, 1e-6)
	require.Equal(t, 100.0, farm.TotalStakedLP())
	require.InDelta(t, 50_000, farm.TVL(), 1e-9)

	// Accrual restarts from the settled snapshot, not from before it.
	require.Zero(t, farm.PendingRewards("alice"))
	require.InDelta(t, farm.TotalStakedLP(), farm.stakedSum(), 1e-9)
}

// Reverting an unstake whose commit deleted the position rebuilds it with its claim
// history, again without unwinding settled rewards.
func TestRevertUnstakeRestoresPosition(t *testing.T) {
	farm, clock := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)
	clock.Advance(24 * time.Hour)

	preview, err := farm.PreviewUnstake("alice", 100)
	require.NoError(t, err)
	require.InDelta(t, 1500, preview.PendingRewards, 1e-6)
	require.NoError(t, farm.CommitUnstake(preview))
	require.Nil(t, farm.Position("alice"))

	farm.revertUnstake(preview)

	pos := farm.Position("alice")
	require.NotNil(t, pos)
	require.Equal(t, 100.0, pos.StakedLP)
	require.InDelta(t, 1500, pos.TotalRewardsClaimed, 1e-6)
	require.InDelta(t, 1500, farm.totalRewardsDistributed, 1e-6)
	require.Equal(t, 100.0, farm.TotalStakedLP())
	require.InDelta(t, 50_000, farm.TVL(), 1e-9)
	require.Zero(t, farm.PendingRewards("alice"))
	require.InDelta(t, farm.TotalStakedLP(), farm.stakedSum(), 1e-9)

	// A partial unstake reverts onto the surviving position the same way.
	preview, err = farm.PreviewUnstake("alice", 40)
	require.NoError(t, err)
	require.NoError(t, farm.CommitUnstake(preview))
	farm.revertUnstake(preview)
	require.Equal(t, 100.0, farm.Position("alice").StakedLP)
	require.InDelta(t, 50_000, farm.TVL(), 1e-9)
}

func TestFarmSummary(t *testing.T) {
	farm, _ := newTestFarm(t)
	stake(t, farm, "alice", 100, 50_000)

	s := farm.Summary()
	require.Equal(t, types.PoolID("TOKEN-NXT"), s.PoolID)
	require.Equal(t, 100.0, s.TotalStakedLP)
	require.Equal(t, 50_000.0, s.TVL)
	require.Equal(t, "xray", s.Tier)
	require.Equal(t, 3.0, s.Multiplier)
	require.Equal(t, 1, s.StakerCount)
	require.True(t, s.Active)

	info := farm.UserInfo("alice")
	require.NotNil(t, info)
	require.Equal(t, 100.0, info.StakedLP)
	require.Equal(t, 100.0, info.SharePct)
	require.Nil(t, farm.UserInfo("nobody"))
}
