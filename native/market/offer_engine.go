package market

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fiatmarket/core/events"
)

var errOfferNilState = errors.New("offer engine: state not configured")

var offerIDDomain = []byte("market.offer")

// OfferEngine owns the offer lifecycle: creation with collateral locking,
// and deletion with collateral return. All fund movement happens through the
// injected state so a single atomic transaction covers balance, offer and
// registry changes.
type OfferEngine struct {
	state   offerEngineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewOfferEngine creates an offer engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewOfferEngine() *OfferEngine {
	return &OfferEngine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *OfferEngine) SetState(state offerEngineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *OfferEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *OfferEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *OfferEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *OfferEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// OfferID derives the deterministic identifier for an offer created by owner
// with the given request nonce.
func OfferID(owner [20]byte, nonce [16]byte) [32]byte {
	return ethcrypto.Keccak256Hash(offerIDDomain, owner[:], nonce[:])
}

// CreateOffer locks collateral from the seller's spendable balance into a new
// offer and registers it under the seller's address. The debit, the offer
// record and the registry append are staged into one transaction. Replaying
// the same nonce with an identical definition returns the stored offer
// without debiting again.
func (e *OfferEngine) CreateOffer(owner [20]byte, currencyCode string, price *big.Int, paymentType string, collateral *big.Int, nonce [16]byte) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errOfferNilState
	}
	currency, err := NormalizeCurrencyCode(currencyCode)
	if err != nil {
		return nil, Errf(KindInvalidParams, "%v", err)
	}
	payment, err := NormalizePaymentType(paymentType)
	if err != nil {
		return nil, Errf(KindInvalidParams, "%v", err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, Errf(KindInvalidParams, "offer price must be positive")
	}
	if collateral == nil || collateral.Sign() <= 0 {
		return nil, Errf(KindInvalidParams, "offer collateral must be positive")
	}
	hasProfile, err := e.state.ProfileExists(owner)
	if err != nil {
		return nil, err
	}
	if !hasProfile {
		return nil, Errf(KindProfileRequired, "address %x has no trading profile", owner)
	}

	id := OfferID(owner, nonce)
	if existing, ok, err := e.state.OfferGet(id); err != nil {
		return nil, err
	} else if ok {
		if existing.Owner != owner || existing.CurrencyCode != currency || existing.PaymentType != payment || existing.Price.Cmp(price) != 0 {
			return nil, Errf(KindInvalidParams, "offer identifier already exists with a different definition")
		}
		return existing.Clone(), nil
	}

	if err := e.state.BalanceDebit(owner, collateral); err != nil {
		return nil, err
	}
	offer := &Offer{
		ID:            id,
		Owner:         owner,
		CurrencyCode:  currency,
		Price:         new(big.Int).Set(price),
		PaymentType:   payment,
		LockedAmount:  new(big.Int).Set(collateral),
		ActiveEscrows: 0,
		CreatedAt:     e.now(),
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.OfferRegistryAppend(owner, id); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// DeleteOffer removes an offer with no active escrows, returning any
// remaining locked collateral to the owner and pruning the registry entry.
func (e *OfferEngine) DeleteOffer(id [32]byte, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errOfferNilState
	}
	offer, ok, err := e.state.OfferGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return Errf(KindNotFound, "offer %x not found", id[:4])
	}
	if offer.Owner != caller {
		return Errf(KindNotOwner, "only the offer owner may delete it")
	}
	if offer.ActiveEscrows > 0 {
		return Errf(KindOfferHasActiveEscrows, "offer has %d active escrows", offer.ActiveEscrows)
	}
	if offer.LockedAmount != nil && offer.LockedAmount.Sign() > 0 {
		if err := e.state.BalanceCredit(offer.Owner, offer.LockedAmount); err != nil {
			return err
		}
	}
	if err := e.state.OfferDelete(id); err != nil {
		return err
	}
	if err := e.state.OfferRegistryRemove(offer.Owner, id); err != nil {
		return err
	}
	e.emit(NewOfferDeletedEvent(offer))
	return nil
}
