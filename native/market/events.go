package market

import (
	"encoding/hex"
	"strconv"

	"fiatmarket/core/events"
)

const (
	EventTypeOfferCreated           = "market.offer.created"
	EventTypeOfferDeleted           = "market.offer.deleted"
	EventTypeEscrowCreated          = "market.escrow.created"
	EventTypeEscrowPaymentConfirmed = "market.escrow.payment_confirmed"
	EventTypeEscrowCancelled        = "market.escrow.cancelled"
	EventTypeEscrowDisputed         = "market.escrow.disputed"
	EventTypeEscrowDisputeResolved  = "market.escrow.dispute_resolved"
	EventTypeEscrowForceCompleted   = "market.escrow.force_completed"
	EventTypeEscrowSellerRefunded   = "market.escrow.seller_refunded"
	EventTypeProfileCreated         = "market.profile.created"
)

// NewOfferCreatedEvent returns the canonical event payload for a newly
// created offer.
func NewOfferCreatedEvent(o *Offer) events.Event { return newOfferEvent(EventTypeOfferCreated, o) }

// NewOfferDeletedEvent returns the canonical event payload emitted when an
// offer is removed and its remaining collateral returned to the owner.
func NewOfferDeletedEvent(o *Offer) events.Event { return newOfferEvent(EventTypeOfferDeleted, o) }

// NewEscrowCreatedEvent returns the payload emitted when a buyer opens an
// escrow against an offer.
func NewEscrowCreatedEvent(e *Escrow) events.Event {
	return newEscrowEvent(EventTypeEscrowCreated, e, nil)
}

// NewPaymentConfirmedEvent returns the payload emitted when the seller
// confirms off-chain payment and releases the escrow to the buyer.
func NewPaymentConfirmedEvent(e *Escrow, confirmedBy [20]byte) events.Event {
	return newEscrowEvent(EventTypeEscrowPaymentConfirmed, e, map[string]string{
		"confirmedBy": hex.EncodeToString(confirmedBy[:]),
	})
}

// NewEscrowCancelledEvent returns the payload emitted when the buyer cancels
// a pending escrow and the collateral returns to the offer pool.
func NewEscrowCancelledEvent(e *Escrow) events.Event {
	return newEscrowEvent(EventTypeEscrowCancelled, e, nil)
}

// NewDisputeRaisedEvent returns the payload emitted when either party flags
// the escrow as disputed.
func NewDisputeRaisedEvent(e *Escrow, raisedBy [20]byte) events.Event {
	return newEscrowEvent(EventTypeEscrowDisputed, e, map[string]string{
		"raisedBy": hex.EncodeToString(raisedBy[:]),
	})
}

// NewDisputeResolvedEvent returns the payload emitted when the seller
// concedes a dispute in the buyer's favour.
func NewDisputeResolvedEvent(e *Escrow) events.Event {
	return newEscrowEvent(EventTypeEscrowDisputeResolved, e, nil)
}

// NewForceCompletedEvent returns the payload emitted when the administrative
// authority settles a dispute in the buyer's favour.
func NewForceCompletedEvent(e *Escrow, admin [20]byte) events.Event {
	return newEscrowEvent(EventTypeEscrowForceCompleted, e, map[string]string{
		"admin": hex.EncodeToString(admin[:]),
	})
}

// NewSellerRefundedEvent returns the payload emitted when the administrative
// authority returns disputed funds to the seller.
func NewSellerRefundedEvent(e *Escrow, admin [20]byte) events.Event {
	return newEscrowEvent(EventTypeEscrowSellerRefunded, e, map[string]string{
		"admin": hex.EncodeToString(admin[:]),
	})
}

// NewProfileCreatedEvent returns the payload emitted when a trading profile
// is registered.
func NewProfileCreatedEvent(p *Profile) events.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["owner"] = hex.EncodeToString(p.Owner[:])
		attrs["name"] = p.Name
		attrs["joinedAt"] = strconv.FormatInt(p.JoinedAt, 10)
	}
	return events.Event{Type: EventTypeProfileCreated, Attributes: attrs}
}

func newOfferEvent(eventType string, o *Offer) events.Event {
	attrs := make(map[string]string)
	if o == nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["owner"] = hex.EncodeToString(sanitized.Owner[:])
	attrs["currencyCode"] = sanitized.CurrencyCode
	attrs["price"] = sanitized.Price.String()
	attrs["paymentType"] = sanitized.PaymentType
	attrs["lockedAmount"] = sanitized.LockedAmount.String()
	attrs["activeEscrows"] = strconv.FormatUint(uint64(sanitized.ActiveEscrows), 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return events.Event{Type: eventType, Attributes: attrs}
}

func newEscrowEvent(eventType string, e *Escrow, extra map[string]string) events.Event {
	attrs := make(map[string]string)
	if e == nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["escrowId"] = hex.EncodeToString(sanitized.ID[:])
	attrs["offerId"] = hex.EncodeToString(sanitized.OfferID[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["fiatAmount"] = sanitized.FiatAmount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	for k, v := range extra {
		attrs[k] = v
	}
	return events.Event{Type: eventType, Attributes: attrs}
}
