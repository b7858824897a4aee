/*

Shared value types for the exchange and farming engines. These are the serialization
units for persistence and the payloads for the web API.

*/

package types

import "time"

// PoolID identifies a liquidity pool. It is always formatted "{TOKEN}-{BASE}", where
// BASE is the configured base currency; callers never construct IDs by hand.
type PoolID string

// ActionType labels persisted action receipts.
type ActionType string

const (
	ActionSwap            ActionType = "SWAP"
	ActionAddLiquidity    ActionType = "ADD_LIQUIDITY"
	ActionRemoveLiquidity ActionType = "REMOVE_LIQUIDITY"
	ActionCreatePool      ActionType = "CREATE_POOL"
	ActionStake           ActionType = "STAKE_LP"
	ActionUnstake         ActionType = "UNSTAKE_LP"
	ActionClaim           ActionType = "CLAIM_REWARDS"
)

// Quote is the result of pricing a swap without executing it.
type Quote struct {
	PoolID         PoolID  `json:"pool_id"`
	InputToken     string  `json:"input_token"`
	OutputToken    string  `json:"output_token"`
	InputAmount    float64 `json:"input_amount"`
	OutputAmount   float64 `json:"output_amount"`
	PriceImpactPct float64 `json:"price_impact_pct"`
	EffectivePrice float64 `json:"effective_price"`
	FeeRate        float64 `json:"fee_rate"`
}

// SwapReceipt records an executed swap.
type SwapReceipt struct {
	PoolID         PoolID    `json:"pool_id"`
	User           string    `json:"user"`
	InputToken     string    `json:"input_token"`
	OutputToken    string    `json:"output_token"`
	InputAmount    float64   `json:"input_amount"`
	OutputAmount   float64   `json:"output_amount"`
	PriceImpactPct float64   `json:"price_impact_pct"`
	FeeAmount      float64   `json:"fee_amount"`
	FeeRouted      bool      `json:"fee_routed"`
	Timestamp      time.Time `json:"timestamp"`
}

// LiquidityReceipt records an add or remove liquidity action.
type LiquidityReceipt struct {
	PoolID    PoolID    `json:"pool_id"`
	Provider  string    `json:"provider"`
	AmountA   float64   `json:"amount_a"`
	AmountB   float64   `json:"amount_b"`
	LPTokens  float64   `json:"lp_tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// FarmReceipt records a stake, unstake, or claim action.
type FarmReceipt struct {
	PoolID         PoolID    `json:"pool_id"`
	User           string    `json:"user"`
	LPAmount       float64   `json:"lp_amount"`
	RewardsNXT     float64   `json:"rewards_nxt"`
	SettlementTxID string    `json:"settlement_tx_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PoolSummary is the API/persistence view of a liquidity pool.
type PoolSummary struct {
	PoolID             PoolID    `json:"pool_id"`
	TokenA             string    `json:"token_a"`
	TokenB             string    `json:"token_b"`
	ReserveA           float64   `json:"reserve_a"`
	ReserveB           float64   `json:"reserve_b"`
	PriceAToB          float64   `json:"price_a_to_b"`
	PriceBToA          float64   `json:"price_b_to_a"`
	LPTokenSupply      float64   `json:"lp_token_supply"`
	TVL                float64   `json:"tvl"`
	FeeRate            float64   `json:"fee_rate"`
	Tier               string    `json:"tier"`
	TotalVolumeA       float64   `json:"total_volume_a"`
	TotalVolumeB       float64   `json:"total_volume_b"`
	TotalFeesCollected float64   `json:"total_fees_collected"`
	ProviderCount      int       `json:"provider_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// FarmSummary is the API/persistence view of a farm pool.
type FarmSummary struct {
	PoolID                  PoolID  `json:"pool_id"`
	TokenA                  string  `json:"token_a"`
	TokenB                  string  `json:"token_b"`
	TotalStakedLP           float64 `json:"total_staked_lp"`
	TVL                     float64 `json:"tvl"`
	APY                     float64 `json:"apy"`
	Tier                    string  `json:"tier"`
	Multiplier              float64 `json:"multiplier"`
	StakerCount             int     `json:"staker_count"`
	TotalRewardsDistributed float64 `json:"total_rewards_distributed"`
	Active                  bool    `json:"active"`
}

// FarmPositionInfo is the API view of one user's stake in one farm.
type FarmPositionInfo struct {
	PoolID            PoolID    `json:"pool_id"`
	StakedLP          float64   `json:"staked_lp"`
	SharePct          float64   `json:"share_pct"`
	PendingRewards    float64   `json:"pending_rewards"`
	TotalClaimed      float64   `json:"total_claimed"`
	StakedAt          time.Time `json:"staked_at"`
	StakeDurationDays float64   `json:"stake_duration_days"`
	APY               float64   `json:"apy"`
	Tier              string    `json:"tier"`
}
