/*
This file contains conversion helpers between display-denominated NXT amounts (float64)
and the integer micro-units the ledger accounts in. Conversions go through decimal
string parsing rather than float multiplication so balances never pick up binary
floating point dust.
*/

package units

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Precision is the number of decimal places the ledger tracks: 1 NXT = 10^6 units.
const Precision = 6

// UnitsPerNXT is the integer scale factor for one whole NXT.
const UnitsPerNXT = 1_000_000

var (
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// ToUnits converts a display NXT amount to ledger micro-units, truncating anything
// below the ledger precision.
func ToUnits(amountNXT float64) (sdkmath.Int, error) {
	if math.IsNaN(amountNXT) || math.IsInf(amountNXT, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amountNXT)
	}
	if amountNXT < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amountNXT == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// String round-trip avoids float multiplication artifacts.
	amountStr := fmt.Sprintf("%.*f", Precision, amountNXT)
	dec, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	result := dec.MulInt64(UnitsPerNXT).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return result, nil
}

// ToNXT converts ledger micro-units back to a display NXT amount.
func ToNXT(amount sdkmath.Int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	dec := sdkmath.LegacyNewDecFromInt(amount).QuoInt64(UnitsPerNXT)
	result, err := dec.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}
