package types

// Recorder receives action receipts and periodic snapshots from the engines. The
// Postgres-backed implementation lives in internal/state; tests use NopRecorder.
// Recording is best-effort: engines log recorder errors and carry on.
type Recorder interface {
	RecordSwap(receipt SwapReceipt) error
	RecordLiquidity(action ActionType, receipt LiquidityReceipt) error
	RecordFarm(action ActionType, receipt FarmReceipt) error
	SnapshotPool(summary PoolSummary) error
	SnapshotFarm(summary FarmSummary) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordSwap(SwapReceipt) error                       { return nil }
func (NopRecorder) RecordLiquidity(ActionType, LiquidityReceipt) error { return nil }
func (NopRecorder) RecordFarm(ActionType, FarmReceipt) error           { return nil }
func (NopRecorder) SnapshotPool(PoolSummary) error                     { return nil }
func (NopRecorder) SnapshotFarm(FarmSummary) error                     { return nil }
