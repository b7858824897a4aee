package dex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusos/dex/internal/types"
)

func TestTokenMintBurnTransfer(t *testing.T) {
	tok := NewToken("TKN", "Test Token", 6, "alice")

	require.NoError(t, tok.Mint("alice", 1000))
	require.Equal(t, 1000.0, tok.TotalSupply)
	require.Equal(t, 1000.0, tok.BalanceOf("alice"))

	require.NoError(t, tok.Transfer("alice", "bob", 400))
	require.Equal(t, 600.0, tok.BalanceOf("alice"))
	require.Equal(t, 400.0, tok.BalanceOf("bob"))

	require.NoError(t, tok.Burn("bob", 100))
	require.Equal(t, 900.0, tok.TotalSupply)
	require.Equal(t, 300.0, tok.BalanceOf("bob"))
}

func TestTokenRejectsBadAmounts(t *testing.T) {
	tok := NewToken("TKN", "Test Token", 6, "alice")
	require.NoError(t, tok.Mint("alice", 100))

	require.ErrorIs(t, tok.Mint("alice", 0), types.ErrInvalidAmount)
	require.ErrorIs(t, tok.Mint("alice", -5), types.ErrInvalidAmount)
	require.ErrorIs(t, tok.Transfer("alice", "bob", -1), types.ErrInvalidAmount)
	require.ErrorIs(t, tok.Burn("alice", 0), types.ErrInvalidAmount)

	// A failed mutation leaves everything untouched.
	require.Equal(t, 100.0, tok.TotalSupply)
	require.Equal(t, 100.0, tok.BalanceOf("alice"))
}

func TestTokenNoNegativeBalances(t *testing.T) {
	tok := NewToken("TKN", "Test Token", 6, "alice")
	require.NoError(t, tok.Mint("alice", 50))

	require.ErrorIs(t, tok.Transfer("alice", "bob", 51), types.ErrInsufficientBalance)
	require.ErrorIs(t, tok.Burn("alice", 51), types.ErrInsufficientBalance)
	require.ErrorIs(t, tok.Transfer("bob", "alice", 1), types.ErrInsufficientBalance)

	require.Equal(t, 50.0, tok.BalanceOf("alice"))
	require.Equal(t, 0.0, tok.BalanceOf("bob"))
}

func TestTokenAllowances(t *testing.T) {
	tok := NewToken("TKN", "Test Token", 6, "alice")
	require.NoError(t, tok.Mint("alice", 100))

	tok.Approve("alice", "spender", 60)
	require.Equal(t, 60.0, tok.Allowance("alice", "spender"))

	require.NoError(t, tok.TransferFrom("spender", "alice", "bob", 40))
	require.Equal(t, 20.0, tok.Allowance("alice", "spender"))
	require.Equal(t, 40.0, tok.BalanceOf("bob"))

	// Spending beyond the remaining allowance fails even with balance available.
	err := tok.TransferFrom("spender", "alice", "bob", 30)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	require.Equal(t, 20.0, tok.Allowance("alice", "spender"))
}
