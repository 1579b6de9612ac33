package market

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fiatmarket/core/events"
)

var errEscrowNilState = errors.New("escrow engine: state not configured")

var escrowIDDomain = []byte("market.escrow")

// EscrowEngine drives the escrow state machine. Every transition changes the
// escrow status, moves the matching funds and updates the offer counters
// inside the same staged transaction; partial application is impossible by
// construction.
type EscrowEngine struct {
	state   escrowEngineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEscrowEngine creates an escrow engine with a no-op emitter.
func NewEscrowEngine() *EscrowEngine {
	return &EscrowEngine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *EscrowEngine) SetState(state escrowEngineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *EscrowEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *EscrowEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *EscrowEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *EscrowEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// EscrowID derives the deterministic identifier for an escrow opened by
// buyer against offerID with the given request nonce.
func EscrowID(offerID [32]byte, buyer [20]byte, nonce [16]byte) [32]byte {
	return ethcrypto.Keccak256Hash(escrowIDDomain, offerID[:], buyer[:], nonce[:])
}

func (e *EscrowEngine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errEscrowNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Errf(KindNotFound, "escrow %x not found", id[:4])
	}
	return esc, nil
}

func (e *EscrowEngine) loadOffer(id [32]byte) (*Offer, error) {
	offer, ok, err := e.state.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Errf(KindNotFound, "offer %x not found", id[:4])
	}
	return offer, nil
}

// bumpProfile applies fn to the stored profile for addr. A missing profile is
// skipped: the counters are display data and must never block a fund
// movement.
func (e *EscrowEngine) bumpProfile(addr [20]byte, fn func(*Profile)) error {
	profile, ok, err := e.state.ProfileGet(addr)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	fn(profile)
	return e.state.ProfilePut(profile)
}

// CreateEscrow moves amount from the offer's locked collateral into a new
// PENDING escrow, bumps the offer's active-escrow count and registers the
// escrow under both parties. FiatAmount is fixed here from the offer price.
func (e *EscrowEngine) CreateEscrow(offerID [32]byte, buyer [20]byte, amount *big.Int, nonce [16]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errEscrowNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, Errf(KindInvalidParams, "escrow amount must be positive")
	}
	hasProfile, err := e.state.ProfileExists(buyer)
	if err != nil {
		return nil, err
	}
	if !hasProfile {
		return nil, Errf(KindProfileRequired, "address %x has no trading profile", buyer)
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}

	id := EscrowID(offerID, buyer, nonce)
	if existing, ok, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if ok {
		if existing.OfferID != offerID || existing.Buyer != buyer || existing.Amount.Cmp(amount) != 0 {
			return nil, Errf(KindInvalidParams, "escrow identifier already exists with a different definition")
		}
		return existing.Clone(), nil
	}

	if offer.LockedAmount == nil || offer.LockedAmount.Cmp(amount) < 0 {
		return nil, Errf(KindInsufficientOfferCollateral, "offer holds %s, escrow needs %s", offer.LockedAmount, amount)
	}
	fiat, err := FiatValue(amount, offer.Price)
	if err != nil {
		return nil, Errf(KindInvalidParams, "%v", err)
	}

	offer.LockedAmount = new(big.Int).Sub(offer.LockedAmount, amount)
	offer.ActiveEscrows++
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	escrow := &Escrow{
		ID:         id,
		OfferID:    offerID,
		Seller:     offer.Owner,
		Buyer:      buyer,
		Amount:     new(big.Int).Set(amount),
		FiatAmount: fiat,
		Status:     EscrowPending,
		CreatedAt:  e.now(),
	}
	if err := e.state.EscrowPut(escrow); err != nil {
		return nil, err
	}
	if err := e.state.EscrowRegistryAppend(buyer, id); err != nil {
		return nil, err
	}
	if escrow.Seller != buyer {
		if err := e.state.EscrowRegistryAppend(escrow.Seller, id); err != nil {
			return nil, err
		}
	}
	bump := func(p *Profile) { p.TotalTrades++ }
	if err := e.bumpProfile(escrow.Buyer, bump); err != nil {
		return nil, err
	}
	if escrow.Seller != escrow.Buyer {
		if err := e.bumpProfile(escrow.Seller, bump); err != nil {
			return nil, err
		}
	}
	e.emit(NewEscrowCreatedEvent(escrow))
	return escrow.Clone(), nil
}

// ConfirmPayment releases the escrow amount to the buyer after the seller
// acknowledges the off-chain fiat payment.
func (e *EscrowEngine) ConfirmPayment(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowPending {
		return nil, Errf(KindInvalidStateTransition, "cannot confirm payment in status %s", esc.Status)
	}
	if caller != esc.Seller {
		return nil, Errf(KindNotOwner, "only the seller may confirm payment")
	}
	if err := e.completeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewPaymentConfirmedEvent(esc, caller))
	return esc.Clone(), nil
}

// CancelEscrow returns the escrow amount to the offer's locked pool when the
// buyer abandons a pending trade.
func (e *EscrowEngine) CancelEscrow(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowPending {
		return nil, Errf(KindInvalidStateTransition, "cannot cancel in status %s", esc.Status)
	}
	if caller != esc.Buyer {
		return nil, Errf(KindNotOwner, "only the buyer may cancel the escrow")
	}
	offer, err := e.loadOffer(esc.OfferID)
	if err != nil {
		return nil, err
	}
	offer.LockedAmount = new(big.Int).Add(offer.LockedAmount, esc.Amount)
	if err := e.decrementActive(offer); err != nil {
		return nil, err
	}
	esc.Status = EscrowCancelled
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewEscrowCancelledEvent(esc))
	return esc.Clone(), nil
}

// completeEscrow performs the shared COMPLETED transition: credit the buyer,
// drop the offer's active count, persist the terminal status and bump the
// parties' completion counters.
func (e *EscrowEngine) completeEscrow(esc *Escrow) error {
	offer, err := e.loadOffer(esc.OfferID)
	if err != nil {
		return err
	}
	if err := e.state.BalanceCredit(esc.Buyer, esc.Amount); err != nil {
		return err
	}
	if err := e.decrementActive(offer); err != nil {
		return err
	}
	esc.Status = EscrowCompleted
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	bump := func(p *Profile) { p.CompletedTrades++ }
	if err := e.bumpProfile(esc.Buyer, bump); err != nil {
		return err
	}
	if esc.Seller != esc.Buyer {
		if err := e.bumpProfile(esc.Seller, bump); err != nil {
			return err
		}
	}
	return nil
}

func (e *EscrowEngine) decrementActive(offer *Offer) error {
	if offer.ActiveEscrows == 0 {
		return Errf(KindInternal, "offer %x active-escrow count underflow", offer.ID[:4])
	}
	offer.ActiveEscrows--
	return e.state.OfferPut(offer)
}
