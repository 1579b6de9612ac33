package market

import (
	"fmt"
	"math/big"
)

// BaseUnitScale is the number of base units in one whole unit of the crypto
// asset. All fund-movement arithmetic happens in base units; the scale exists
// only for display conversion at the edges.
const BaseUnitScale = 1_000_000_000

var baseUnitScaleBig = big.NewInt(BaseUnitScale)

// ToBaseUnits converts a whole-unit amount into base units.
func ToBaseUnits(whole *big.Int) *big.Int {
	if whole == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(whole, baseUnitScaleBig)
}

// FromBaseUnits converts base units into whole units and the base-unit
// remainder. Integer division only; callers wanting fractional display do
// their own formatting with the remainder.
func FromBaseUnits(base *big.Int) (whole, rem *big.Int) {
	if base == nil {
		return big.NewInt(0), big.NewInt(0)
	}
	return new(big.Int).QuoRem(base, baseUnitScaleBig, new(big.Int))
}

// FiatValue computes the fiat value of a crypto amount at the given offer
// price. Both inputs are integers (base units x fiat price per unit) so the
// result is deterministic and reproducible from the stored fields.
func FiatValue(amount, price *big.Int) (*big.Int, error) {
	if amount == nil || price == nil {
		return nil, fmt.Errorf("market: fiat value requires amount and price")
	}
	if amount.Sign() < 0 || price.Sign() < 0 {
		return nil, fmt.Errorf("market: fiat value inputs must be non-negative")
	}
	return new(big.Int).Mul(amount, price), nil
}
