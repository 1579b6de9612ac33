package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"fiatmarket/config"
	"fiatmarket/native/market"
)

// writeOutcome is the uniform result shape for every write operation: either
// success, or exactly one taxonomy kind with a human-readable message.
type writeOutcome struct {
	Success   bool         `json:"success"`
	ErrorKind string       `json:"errorKind,omitempty"`
	Message   string       `json:"message,omitempty"`
	Offer     *offerJSON   `json:"offer,omitempty"`
	Escrow    *escrowJSON  `json:"escrow,omitempty"`
	Profile   *profileJSON `json:"profile,omitempty"`
}

func successOutcome() writeOutcome {
	return writeOutcome{Success: true}
}

func failureOutcome(err error) writeOutcome {
	return writeOutcome{
		Success:   false,
		ErrorKind: string(market.KindOf(err)),
		Message:   err.Error(),
	}
}

type offerJSON struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	CurrencyCode  string `json:"currencyCode"`
	Price         string `json:"price"`
	PaymentType   string `json:"paymentType"`
	LockedAmount  string `json:"lockedAmount"`
	ActiveEscrows uint32 `json:"activeEscrows"`
	CreatedAt     int64  `json:"createdAt"`
	MerchantName  string `json:"merchantName,omitempty"`
}

type escrowJSON struct {
	ID           string `json:"id"`
	OfferID      string `json:"offerId"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Amount       string `json:"amount"`
	FiatAmount   string `json:"fiatAmount"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"createdAt"`
	DisputedAt   int64  `json:"disputedAt,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`
	Price        string `json:"price,omitempty"`
	PaymentType  string `json:"paymentType,omitempty"`
	MerchantName string `json:"merchantName,omitempty"`
}

type profileJSON struct {
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	Contact         string `json:"contact"`
	Email           string `json:"email"`
	JoinedAt        int64  `json:"joinedAt"`
	TotalTrades     uint64 `json:"totalTrades"`
	CompletedTrades uint64 `json:"completedTrades"`
	Disputes        uint64 `json:"disputes"`
}

func offerToJSON(o *market.Offer) *offerJSON {
	if o == nil {
		return nil
	}
	return &offerJSON{
		ID:            hexID(o.ID),
		Owner:         hexAddr(o.Owner),
		CurrencyCode:  o.CurrencyCode,
		Price:         o.Price.String(),
		PaymentType:   o.PaymentType,
		LockedAmount:  o.LockedAmount.String(),
		ActiveEscrows: o.ActiveEscrows,
		CreatedAt:     o.CreatedAt,
	}
}

func offerViewToJSON(v market.OfferView) *offerJSON {
	out := offerToJSON(v.Offer)
	if out != nil {
		out.MerchantName = v.MerchantName
	}
	return out
}

func escrowToJSON(e *market.Escrow) *escrowJSON {
	if e == nil {
		return nil
	}
	return &escrowJSON{
		ID:         hexID(e.ID),
		OfferID:    hexID(e.OfferID),
		Seller:     hexAddr(e.Seller),
		Buyer:      hexAddr(e.Buyer),
		Amount:     e.Amount.String(),
		FiatAmount: e.FiatAmount.String(),
		Status:     e.Status.String(),
		CreatedAt:  e.CreatedAt,
		DisputedAt: e.DisputedAt,
	}
}

func escrowViewToJSON(v market.EscrowView) *escrowJSON {
	out := escrowToJSON(v.Escrow)
	if out == nil {
		return nil
	}
	out.CurrencyCode = v.CurrencyCode
	out.Price = v.Price.String()
	out.PaymentType = v.PaymentType
	out.MerchantName = v.MerchantName
	return out
}

func profileToJSON(p *market.Profile) *profileJSON {
	if p == nil {
		return nil
	}
	return &profileJSON{
		Owner:           hexAddr(p.Owner),
		Name:            p.Name,
		Contact:         p.Contact,
		Email:           p.Email,
		JoinedAt:        p.JoinedAt,
		TotalTrades:     p.TotalTrades,
		CompletedTrades: p.CompletedTrades,
		Disputes:        p.Disputes,
	}
}

func hexID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAddress(value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	return config.ParseAddress(value)
}

func parseID(value string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return id, fmt.Errorf("id required")
	}
	trimmed = strings.TrimPrefix(trimmed, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid hex id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
