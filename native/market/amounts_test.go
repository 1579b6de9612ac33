package market

import (
	"math/big"
	"testing"
)

func TestBaseUnitConversion(t *testing.T) {
	base := ToBaseUnits(big.NewInt(3))
	if base.Cmp(big.NewInt(3_000_000_000)) != 0 {
		t.Fatalf("expected 3e9 base units, got %s", base)
	}
	whole, rem := FromBaseUnits(big.NewInt(3_500_000_000))
	if whole.Cmp(big.NewInt(3)) != 0 || rem.Cmp(big.NewInt(500_000_000)) != 0 {
		t.Fatalf("expected 3 whole + 5e8 rem, got %s + %s", whole, rem)
	}
	whole, rem = FromBaseUnits(nil)
	if whole.Sign() != 0 || rem.Sign() != 0 {
		t.Fatalf("nil input must convert to zero")
	}
	if ToBaseUnits(nil).Sign() != 0 {
		t.Fatalf("nil input must convert to zero")
	}
}

func TestFiatValue(t *testing.T) {
	fiat, err := FiatValue(big.NewInt(200), big.NewInt(1000))
	if err != nil {
		t.Fatalf("fiat value: %v", err)
	}
	if fiat.Cmp(big.NewInt(200000)) != 0 {
		t.Fatalf("expected 200000, got %s", fiat)
	}
	if _, err := FiatValue(nil, big.NewInt(1)); err == nil {
		t.Fatalf("nil amount must be rejected")
	}
	if _, err := FiatValue(big.NewInt(-1), big.NewInt(1)); err == nil {
		t.Fatalf("negative amount must be rejected")
	}
}
