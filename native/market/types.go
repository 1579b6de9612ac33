package market

import (
	"fmt"
	"math/big"
	"strings"
)

// EscrowStatus represents the lifecycle states of an in-flight trade.
type EscrowStatus uint8

const (
	EscrowPending EscrowStatus = iota
	EscrowCompleted
	EscrowDisputed
	EscrowCancelled
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowPending, EscrowCompleted, EscrowDisputed, EscrowCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical wire label for the status.
func (s EscrowStatus) String() string {
	switch s {
	case EscrowPending:
		return "PENDING"
	case EscrowCompleted:
		return "COMPLETED"
	case EscrowDisputed:
		return "DISPUTE"
	case EscrowCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition can leave this status.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowCompleted || s == EscrowCancelled
}

// Offer is a seller's standing collateralised listing. LockedAmount is the
// crypto collateral (base units) still available to back new escrows;
// ActiveEscrows counts escrows currently in PENDING or DISPUTE against it.
type Offer struct {
	ID            [32]byte
	Owner         [20]byte
	CurrencyCode  string
	Price         *big.Int
	PaymentType   string
	LockedAmount  *big.Int
	ActiveEscrows uint32
	CreatedAt     int64
}

// Clone returns a deep copy of the offer so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if o.LockedAmount != nil {
		clone.LockedAmount = new(big.Int).Set(o.LockedAmount)
	} else {
		clone.LockedAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeOffer validates and normalises the supplied offer, returning a
// cloned instance with canonical currency and payment labels and non-nil
// amount fields. The function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	currency, err := NormalizeCurrencyCode(clone.CurrencyCode)
	if err != nil {
		return nil, err
	}
	clone.CurrencyCode = currency
	payment, err := NormalizePaymentType(clone.PaymentType)
	if err != nil {
		return nil, err
	}
	clone.PaymentType = payment
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: offer price must be positive")
	}
	if clone.LockedAmount.Sign() < 0 {
		return nil, fmt.Errorf("market: offer locked amount must be non-negative")
	}
	return clone, nil
}

// Escrow captures one buyer's claim against an offer's collateral. Amount is
// owned exclusively by the escrow from creation until a terminal transition
// releases or returns it; FiatAmount is fixed at creation from the offer
// price and never recomputed.
type Escrow struct {
	ID         [32]byte
	OfferID    [32]byte
	Seller     [20]byte
	Buyer      [20]byte
	Amount     *big.Int
	FiatAmount *big.Int
	Status     EscrowStatus
	CreatedAt  int64
	DisputedAt int64
}

// Clone returns a deep copy of the escrow.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.FiatAmount != nil {
		clone.FiatAmount = new(big.Int).Set(e.FiatAmount)
	} else {
		clone.FiatAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates the supplied escrow definition and returns a
// cloned instance with non-nil amount fields.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("market: nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: escrow amount must be positive")
	}
	if clone.FiatAmount.Sign() < 0 {
		return nil, fmt.Errorf("market: escrow fiat amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

// Profile holds the trading identity and counters for one address. The
// counters are maintained inside the same atomic transaction as the escrow
// transition that changes them.
type Profile struct {
	Owner           [20]byte
	Name            string
	Contact         string
	Email           string
	JoinedAt        int64
	TotalTrades     uint64
	CompletedTrades uint64
	Disputes        uint64
}

// Clone returns a copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

var supportedCurrencyCodes = map[string]struct{}{
	"NGN": {},
	"USD": {},
	"EUR": {},
	"GBP": {},
	"KES": {},
	"GHS": {},
	"ZAR": {},
}

var supportedPaymentTypes = []string{
	"Bank Transfer",
	"Credit Card",
	"PayPal",
	"Mobile Money",
	"Cash Deposit",
}

// NormalizeCurrencyCode ensures the fiat currency symbol is one of the
// supported codes and returns the canonical uppercase form.
func NormalizeCurrencyCode(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := supportedCurrencyCodes[trimmed]; !ok {
		return "", fmt.Errorf("market: unsupported currency code: %s", code)
	}
	return trimmed, nil
}

// NormalizePaymentType matches the supplied label against the supported
// payment methods, ignoring case, and returns the canonical form.
func NormalizePaymentType(label string) (string, error) {
	trimmed := strings.TrimSpace(label)
	for _, canonical := range supportedPaymentTypes {
		if strings.EqualFold(trimmed, canonical) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("market: unsupported payment type: %s", label)
}
