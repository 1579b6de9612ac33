package market

import (
	"math/big"
	"testing"
)

func TestListOffersJoinsMerchantName(t *testing.T) {
	f := newTradeFixture(t)
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListOffers()
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if !skipped.Empty() {
		t.Fatalf("expected no skips, got %v", skipped)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(views))
	}
	if views[0].MerchantName != "ada" {
		t.Fatalf("expected merchant name ada, got %s", views[0].MerchantName)
	}
}

func TestListOffersSkipsDanglingRegistryIDs(t *testing.T) {
	f := newTradeFixture(t)
	// Leave the registry entry behind but remove the object, the shape a
	// reader can observe between a delete and its registry prune.
	delete(f.state.offers, f.offer.ID)
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListOffers()
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected no offers, got %d", len(views))
	}
	if len(skipped.IDs) != 1 || skipped.IDs[0] != f.offer.ID {
		t.Fatalf("dangling id must be reported, got %v", skipped)
	}
}

func TestListOffersPlaceholderForMissingProfile(t *testing.T) {
	f := newTradeFixture(t)
	delete(f.state.profiles, f.seller)
	q := NewQueryEngine(f.state)

	views, _, err := q.ListOffers()
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(views) != 1 || views[0].MerchantName != PlaceholderLabel {
		t.Fatalf("missing profile must degrade to placeholder")
	}
}

func TestListEscrowsForUserBothParties(t *testing.T) {
	f := newTradeFixture(t)
	esc := f.openEscrow(t, 200)
	q := NewQueryEngine(f.state)

	for _, addr := range [][20]byte{f.buyer, f.seller} {
		views, skipped, err := q.ListEscrowsForUser(addr)
		if err != nil {
			t.Fatalf("list escrows: %v", err)
		}
		if !skipped.Empty() {
			t.Fatalf("expected no skips, got %v", skipped)
		}
		if len(views) != 1 || views[0].Escrow.ID != esc.ID {
			t.Fatalf("escrow must be listed under both parties")
		}
		if views[0].CurrencyCode != "NGN" || views[0].PaymentType != "Bank Transfer" {
			t.Fatalf("offer terms must be joined, got %s/%s", views[0].CurrencyCode, views[0].PaymentType)
		}
		if views[0].Price.Cmp(big.NewInt(1000)) != 0 {
			t.Fatalf("expected joined price 1000, got %s", views[0].Price)
		}
	}
}

func TestListEscrowsForUnknownUserIsEmpty(t *testing.T) {
	f := newTradeFixture(t)
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListEscrowsForUser(newTestAddress(0x42))
	if err != nil {
		t.Fatalf("list escrows: %v", err)
	}
	if len(views) != 0 || !skipped.Empty() {
		t.Fatalf("unknown address must yield an empty list")
	}
}

func TestListEscrowsDegradesMissingOfferJoin(t *testing.T) {
	f := newTradeFixture(t)
	esc := f.openEscrow(t, 200)
	if _, err := f.eng.ConfirmPayment(esc.ID, f.seller); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	offers, _ := newTestOfferEngine(f.state)
	if err := offers.DeleteOffer(f.offer.ID, f.seller); err != nil {
		t.Fatalf("delete offer: %v", err)
	}
	q := NewQueryEngine(f.state)

	views, _, err := q.ListEscrowsForUser(f.buyer)
	if err != nil {
		t.Fatalf("list escrows: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("settled escrow must survive offer deletion")
	}
	view := views[0]
	if view.CurrencyCode != PlaceholderLabel || view.PaymentType != PlaceholderLabel {
		t.Fatalf("missing offer join must degrade to placeholders")
	}
	if view.Escrow.FiatAmount.Cmp(big.NewInt(200000)) != 0 {
		t.Fatalf("fiat amount is fixed at creation, got %s", view.Escrow.FiatAmount)
	}
}

func TestListDisputedEscrowsDedupesAndFilters(t *testing.T) {
	f := newTradeFixture(t)
	disputes := newTestDisputeEngine(f, newTestAddress(0xAD))
	disputed := f.openEscrowWithNonce(t, 100, newTestNonce(0x31))
	settled := f.openEscrowWithNonce(t, 100, newTestNonce(0x32))

	if _, err := disputes.MakeDispute(disputed.ID, f.buyer); err != nil {
		t.Fatalf("make dispute: %v", err)
	}
	if _, err := f.eng.ConfirmPayment(settled.ID, f.seller); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListDisputedEscrows()
	if err != nil {
		t.Fatalf("list disputed: %v", err)
	}
	if !skipped.Empty() {
		t.Fatalf("expected no skips, got %v", skipped)
	}
	// Registered under both parties, must still appear exactly once.
	if len(views) != 1 || views[0].Escrow.ID != disputed.ID {
		t.Fatalf("expected the single disputed escrow, got %d entries", len(views))
	}
	if views[0].Escrow.Status != EscrowDisputed {
		t.Fatalf("expected DISPUTE, got %s", views[0].Escrow.Status)
	}
}

func TestListOffersReportsUnloadableRegistryOwner(t *testing.T) {
	f := newTradeFixture(t)
	other := newTestAddress(0x03)
	f.state.addProfile(other, "linus")
	f.state.fund(other, 1000)
	offers, _ := newTestOfferEngine(f.state)
	if _, err := offers.CreateOffer(other, "USD", big.NewInt(500), "PayPal", big.NewInt(100), newTestNonce(0x40)); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	f.state.corruptOwners[f.seller] = true
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListOffers()
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(views) != 1 || views[0].Offer.Owner != other {
		t.Fatalf("readable owners must still be listed, got %d views", len(views))
	}
	if len(skipped.Owners) != 1 || skipped.Owners[0] != f.seller {
		t.Fatalf("unloadable registry owner must be reported, got %v", skipped.Owners)
	}
}

func TestListDisputedEscrowsReportsUnloadableRegistryOwner(t *testing.T) {
	f := newTradeFixture(t)
	disputes := newTestDisputeEngine(f, newTestAddress(0xAD))
	esc := f.openEscrow(t, 200)
	if _, err := disputes.MakeDispute(esc.ID, f.buyer); err != nil {
		t.Fatalf("make dispute: %v", err)
	}
	f.state.corruptOwners[f.seller] = true
	q := NewQueryEngine(f.state)

	views, skipped, err := q.ListDisputedEscrows()
	if err != nil {
		t.Fatalf("list disputed: %v", err)
	}
	// The escrow is still reachable through the buyer's entry.
	if len(views) != 1 || views[0].Escrow.ID != esc.ID {
		t.Fatalf("escrow reachable via the other party must survive, got %d views", len(views))
	}
	if len(skipped.Owners) != 1 || skipped.Owners[0] != f.seller {
		t.Fatalf("unloadable registry owner must be reported, got %v", skipped.Owners)
	}
}

func TestQueryIsReadOnly(t *testing.T) {
	f := newTradeFixture(t)
	esc := f.openEscrow(t, 200)
	q := NewQueryEngine(f.state)

	before := f.storedOffer(t).Clone()
	if _, _, err := q.ListOffers(); err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if _, _, err := q.ListEscrowsForUser(f.buyer); err != nil {
		t.Fatalf("list escrows: %v", err)
	}
	after := f.storedOffer(t)
	if before.LockedAmount.Cmp(after.LockedAmount) != 0 || before.ActiveEscrows != after.ActiveEscrows {
		t.Fatalf("reads must not change state")
	}
	if f.state.escrows[esc.ID].Status != EscrowPending {
		t.Fatalf("reads must not change escrow status")
	}
}
