package market

import (
	"crypto/subtle"
	"errors"
	"math/big"
)

var errDisputeNilEngine = errors.New("dispute engine: escrow engine not configured")

// DisputeEngine wraps the DISPUTE-state transitions. The administrative
// authority is a single configured address with exclusive rights to
// ForceCompleteTrade and RefundSeller; there is no rotation, multi-sig or
// timeout fallback.
type DisputeEngine struct {
	escrow *EscrowEngine
	admin  [20]byte
}

// NewDisputeEngine constructs a dispute engine bound to the supplied escrow
// engine.
func NewDisputeEngine(esc *EscrowEngine) *DisputeEngine {
	return &DisputeEngine{escrow: esc}
}

// SetAdmin configures the administrative authority address.
func (e *DisputeEngine) SetAdmin(admin [20]byte) {
	if e == nil {
		return
	}
	e.admin = admin
}

func (e *DisputeEngine) isAdmin(caller [20]byte) bool {
	if e == nil || e.admin == ([20]byte{}) {
		return false
	}
	return subtle.ConstantTimeCompare(e.admin[:], caller[:]) == 1
}

// MakeDispute flags a pending escrow as disputed. Either party may raise it:
// fiat payment happens off the ledger, so the state machine cannot tell a
// legitimate non-payment from a false claim. Funds stay locked in the escrow.
func (e *DisputeEngine) MakeDispute(id [32]byte, caller [20]byte) (*Escrow, error) {
	if e == nil || e.escrow == nil {
		return nil, errDisputeNilEngine
	}
	esc, err := e.escrow.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowPending {
		return nil, Errf(KindInvalidStateTransition, "cannot dispute in status %s", esc.Status)
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return nil, Errf(KindNotOwner, "only the buyer or seller may raise a dispute")
	}
	esc.Status = EscrowDisputed
	esc.DisputedAt = e.escrow.now()
	if err := e.escrow.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	bump := func(p *Profile) { p.Disputes++ }
	if err := e.escrow.bumpProfile(esc.Buyer, bump); err != nil {
		return nil, err
	}
	if esc.Seller != esc.Buyer {
		if err := e.escrow.bumpProfile(esc.Seller, bump); err != nil {
			return nil, err
		}
	}
	e.escrow.emit(NewDisputeRaisedEvent(esc, caller))
	return esc.Clone(), nil
}

// ResolveDispute is the seller voluntarily conceding the dispute: the escrow
// amount is released to the buyer. There is deliberately no symmetric
// buyer-side resolution; only the seller can give funds away without
// adjudication.
func (e *DisputeEngine) ResolveDispute(id [32]byte, caller [20]byte) (*Escrow, error) {
	if e == nil || e.escrow == nil {
		return nil, errDisputeNilEngine
	}
	esc, err := e.escrow.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowDisputed {
		return nil, Errf(KindInvalidStateTransition, "cannot resolve in status %s", esc.Status)
	}
	if caller != esc.Seller {
		return nil, Errf(KindNotOwner, "only the seller may concede a dispute")
	}
	if err := e.escrow.completeEscrow(esc); err != nil {
		return nil, err
	}
	e.escrow.emit(NewDisputeResolvedEvent(esc))
	return esc.Clone(), nil
}

// ForceCompleteTrade is the administrative ruling in the buyer's favour: the
// escrow amount is released to the buyer.
func (e *DisputeEngine) ForceCompleteTrade(id [32]byte, caller [20]byte) (*Escrow, error) {
	if e == nil || e.escrow == nil {
		return nil, errDisputeNilEngine
	}
	if !e.isAdmin(caller) {
		return nil, Errf(KindNotAdmin, "caller is not the administrative authority")
	}
	esc, err := e.escrow.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowDisputed {
		return nil, Errf(KindInvalidStateTransition, "cannot force-complete in status %s", esc.Status)
	}
	if err := e.escrow.completeEscrow(esc); err != nil {
		return nil, err
	}
	e.escrow.emit(NewForceCompletedEvent(esc, caller))
	return esc.Clone(), nil
}

// RefundSeller is the administrative ruling in the seller's favour: the
// escrow amount goes to the seller's spendable balance, not back into the
// offer pool, and the escrow terminates as CANCELLED.
func (e *DisputeEngine) RefundSeller(id [32]byte, caller [20]byte) (*Escrow, error) {
	if e == nil || e.escrow == nil {
		return nil, errDisputeNilEngine
	}
	if !e.isAdmin(caller) {
		return nil, Errf(KindNotAdmin, "caller is not the administrative authority")
	}
	esc, err := e.escrow.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowDisputed {
		return nil, Errf(KindInvalidStateTransition, "cannot refund in status %s", esc.Status)
	}
	offer, err := e.escrow.loadOffer(esc.OfferID)
	if err != nil {
		return nil, err
	}
	if err := e.escrow.state.BalanceCredit(esc.Seller, new(big.Int).Set(esc.Amount)); err != nil {
		return nil, err
	}
	if err := e.escrow.decrementActive(offer); err != nil {
		return nil, err
	}
	esc.Status = EscrowCancelled
	if err := e.escrow.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.escrow.emit(NewSellerRefundedEvent(esc, caller))
	return esc.Clone(), nil
}
