/*

Error taxonomy shared by the exchange, farming, and ledger packages. Every failure
surfaces as one of these sentinels (usually wrapped with detail via fmt.Errorf and %w)
so callers can branch with errors.Is without parsing messages.

*/

package types

import "errors"

var (
	// ErrInvalidAmount covers non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidToken covers unknown tokens and bad token pairs.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInsufficientBalance is returned before any mutation when funds are short.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity covers empty reserves and LP shortfalls.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrSlippageExceeded means the quoted output fell below the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolExists        = errors.New("pool already exists")
	ErrTokenExists       = errors.New("token already exists")
	ErrFarmNotFound      = errors.New("farm not found")
	ErrFarmInactive      = errors.New("farm is not active")
	ErrNoStake           = errors.New("no stake found")
	ErrNoRewards         = errors.New("no rewards to claim")
	ErrUnbalancedDeposit = errors.New("unbalanced liquidity deposit")

	// ErrSettlementFailed means the external ledger refused the transfer; local
	// accounting must not have changed when this is returned.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrUnauthorized is returned for malformed or protected provider addresses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWithdrawalLocked is returned while a withdrawal request is inside the
	// configured time-lock window.
	ErrWithdrawalLocked = errors.New("withdrawal is time-locked")

	// ErrConflict means state changed between preview and commit.
	ErrConflict = errors.New("state changed between preview and commit")

	ErrInvariantViolation = errors.New("invariant violation")
)
