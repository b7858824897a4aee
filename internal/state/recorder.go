package state

import (
	"fmt"

	"github.com/nexusos/dex/internal/types"
)

// PGRecorder persists engine action receipts and snapshots to Postgres. It implements
// types.Recorder against the global DB pool initialized by InitDB.
type PGRecorder struct{}

func NewPGRecorder() (*PGRecorder, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &PGRecorder{}, nil
}

func (r *PGRecorder) RecordSwap(receipt types.SwapReceipt) error {
	_, err := DB.Exec(`
		INSERT INTO action_receipts
			(action_timestamp, action_type, pool_id, account, input_token, output_token, amount_a, amount_b, fee_amount, fee_routed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		receipt.Timestamp, types.ActionSwap, string(receipt.PoolID), receipt.User,
		receipt.InputToken, receipt.OutputToken, receipt.InputAmount, receipt.OutputAmount,
		receipt.FeeAmount, receipt.FeeRouted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap receipt: %w", err)
	}
	return nil
}

func (r *PGRecorder) RecordLiquidity(action types.ActionType, receipt types.LiquidityReceipt) error {
	_, err := DB.Exec(`
		INSERT INTO action_receipts
			(action_timestamp, action_type, pool_id, account, amount_a, amount_b, lp_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		receipt.Timestamp, action, string(receipt.PoolID), receipt.Provider,
		receipt.AmountA, receipt.AmountB, receipt.LPTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to insert liquidity receipt: %w", err)
	}
	return nil
}

func (r *PGRecorder) RecordFarm(action types.ActionType, receipt types.FarmReceipt) error {
	_, err := DB.Exec(`
		INSERT INTO action_receipts
			(action_timestamp, action_type, pool_id, account, lp_amount, rewards_nxt, settlement_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		receipt.Timestamp, action, string(receipt.PoolID), receipt.User,
		receipt.LPAmount, receipt.RewardsNXT, receipt.SettlementTxID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert farm receipt: %w", err)
	}
	return nil
}

func (r *PGRecorder) SnapshotPool(s types.PoolSummary) error {
	_, err := DB.Exec(`
		INSERT INTO pool_snapshots
			(pool_id, token_a, token_b, reserve_a, reserve_b, lp_token_supply, tvl, fee_rate, tier,
			 total_volume_a, total_volume_b, total_fees_collected, provider_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(s.PoolID), s.TokenA, s.TokenB, s.ReserveA, s.ReserveB, s.LPTokenSupply,
		s.TVL, s.FeeRate, s.Tier, s.TotalVolumeA, s.TotalVolumeB, s.TotalFeesCollected, s.ProviderCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pool snapshot: %w", err)
	}
	return nil
}

func (r *PGRecorder) SnapshotFarm(s types.FarmSummary) error {
	_, err := DB.Exec(`
		INSERT INTO farm_snapshots
			(pool_id, total_staked_lp, tvl, apy, tier, multiplier, staker_count, total_rewards_distributed, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(s.PoolID), s.TotalStakedLP, s.TVL, s.APY, s.Tier, s.Multiplier,
		s.StakerCount, s.TotalRewardsDistributed, s.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert farm snapshot: %w", err)
	}
	return nil
}

// ActionRecord is one persisted action receipt row, as served by the web API.
type ActionRecord struct {
	ReceiptID      int64   `json:"receipt_id"`
	Timestamp      string  `json:"timestamp"`
	ActionType     string  `json:"action_type"`
	PoolID         string  `json:"pool_id"`
	Account        string  `json:"account"`
	LPAmount       float64 `json:"lp_amount,omitempty"`
	RewardsNXT     float64 `json:"rewards_nxt,omitempty"`
	SettlementTxID string  `json:"settlement_tx_id,omitempty"`
}

// GetRecentActions returns the newest persisted action receipts, capped at limit.
func GetRecentActions(limit int) ([]ActionRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT receipt_id, action_timestamp, action_type, pool_id, account,
		       COALESCE(lp_amount, 0), COALESCE(rewards_nxt, 0), COALESCE(settlement_tx_id, '')
		FROM action_receipts
		ORDER BY action_timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query action receipts: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(&rec.ReceiptID, &rec.Timestamp, &rec.ActionType, &rec.PoolID,
			&rec.Account, &rec.LPAmount, &rec.RewardsNXT, &rec.SettlementTxID); err != nil {
			return nil, fmt.Errorf("failed to scan action receipt: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
