/*

Ledger adapter contract consumed by the exchange and farming engines. The adapter is
the settlement boundary: reward payouts and fee routing must not commit any in-memory
accounting until the adapter reports SettlementSuccess.

*/

package ledger

// Module tags a settlement with the subsystem that originated it.
type Module string

const (
	ModuleDEX     Module = "DEX"
	ModuleFarming Module = "FARMING"
)

// SettlementRequest describes a value transfer to be durably applied by the ledger.
type SettlementRequest struct {
	SourceAddress    string  `json:"source_address"`
	RecipientAddress string  `json:"recipient_address"`
	AmountNXT        float64 `json:"amount_nxt"`
	WavelengthNM     float64 `json:"wavelength_nm"`
	Module           Module  `json:"module"`
	TransferID       string  `json:"transfer_id"`
	Category         string  `json:"category,omitempty"`
}

// SettlementResult reports the outcome of a settlement. SettlementSuccess is the sole
// gate for committing local state; Message carries detail either way.
type SettlementResult struct {
	TxID              string  `json:"tx_id"`
	SettlementSuccess bool    `json:"settlement_success"`
	Message           string  `json:"message"`
	FeeNXT            float64 `json:"fee_nxt"`
	NetNXT            float64 `json:"net_nxt"`
}

// Adapter is the account-balance store the engines settle against. Implementations
// auto-create missing accounts with zero balance.
type Adapter interface {
	// GetBalance returns the NXT balance for an address, creating the account if absent.
	GetBalance(address string) float64

	// Transfer moves NXT between accounts. It fails without mutating state rather than
	// allowing a negative balance.
	Transfer(from, to string, amountNXT float64) error

	// CreateAccount ensures an account exists.
	CreateAccount(address string)

	// Settle durably applies a value transfer, deducting the ledger fee from the payout.
	Settle(req SettlementRequest) SettlementResult
}
