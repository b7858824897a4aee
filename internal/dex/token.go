/*

Fungible token with per-address balances and owner->spender allowances. The invariant
is that the sum of all balances equals the total supply at all times: every mutation
either fails cleanly or preserves it. Tokens are owned and serialized by the Engine;
they carry no locking of their own.

*/

package dex

import (
	"fmt"
	"time"

	"github.com/nexusos/dex/internal/types"
)

type Token struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Decimals    int       `json:"decimals"`
	TotalSupply float64   `json:"total_supply"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"created_at"`

	balances   map[string]float64
	allowances map[string]map[string]float64
}

func NewToken(symbol, name string, decimals int, creator string) *Token {
	return &Token{
		Symbol:     symbol,
		Name:       name,
		Decimals:   decimals,
		Creator:    creator,
		CreatedAt:  time.Now(),
		balances:   make(map[string]float64),
		allowances: make(map[string]map[string]float64),
	}
}

// Mint creates new supply on the given address.
func (t *Token) Mint(to string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: mint amount must be positive", types.ErrInvalidAmount)
	}
	t.balances[to] += amount
	t.TotalSupply += amount
	return nil
}

// Burn destroys supply held by the given address.
func (t *Token) Burn(from string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: burn amount must be positive", types.ErrInvalidAmount)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %.6f %s, cannot burn %.6f", types.ErrInsufficientBalance, from, t.balances[from], t.Symbol, amount)
	}
	t.balances[from] -= amount
	t.TotalSupply -= amount
	return nil
}

func (t *Token) Transfer(from, to string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", types.ErrInvalidAmount)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %.6f %s, needs %.6f", types.ErrInsufficientBalance, from, t.balances[from], t.Symbol, amount)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// Approve lets spender move up to amount of owner's tokens via TransferFrom.
func (t *Token) Approve(owner, spender string, amount float64) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[string]float64)
	}
	t.allowances[owner][spender] = amount
}

// TransferFrom spends from owner's balance against spender's allowance.
func (t *Token) TransferFrom(spender, from, to string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", types.ErrInvalidAmount)
	}
	allowed := t.Allowance(from, spender)
	if allowed < amount {
		return fmt.Errorf("%w: allowance %.6f below requested %.6f", types.ErrInsufficientBalance, allowed, amount)
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = allowed - amount
	return nil
}

func (t *Token) BalanceOf(address string) float64 {
	return t.balances[address]
}

func (t *Token) Allowance(owner, spender string) float64 {
	if m, ok := t.allowances[owner]; ok {
		return m[spender]
	}
	return 0
}

// HolderCount returns the number of addresses with a recorded balance entry.
func (t *Token) HolderCount() int {
	return len(t.balances)
}
