package market

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
	"testing"

	"fiatmarket/core/events"
)

type mockState struct {
	profiles       map[[20]byte]*Profile
	balances       map[[20]byte]*big.Int
	offers         map[[32]byte]*Offer
	escrows        map[[32]byte]*Escrow
	offerRegistry  map[[20]byte][][32]byte
	escrowRegistry map[[20]byte][][32]byte
	// corruptOwners marks registry entries that fail to load during a scan.
	corruptOwners map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		profiles:       make(map[[20]byte]*Profile),
		balances:       make(map[[20]byte]*big.Int),
		offers:         make(map[[32]byte]*Offer),
		escrows:        make(map[[32]byte]*Escrow),
		offerRegistry:  make(map[[20]byte][][32]byte),
		escrowRegistry: make(map[[20]byte][][32]byte),
		corruptOwners:  make(map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestNonce(fill byte) [16]byte {
	var nonce [16]byte
	copy(nonce[:], bytes.Repeat([]byte{fill}, 16))
	return nonce
}

func (m *mockState) ProfileExists(addr [20]byte) (bool, error) {
	_, ok := m.profiles[addr]
	return ok, nil
}

func (m *mockState) ProfileGet(addr [20]byte) (*Profile, bool, error) {
	p, ok := m.profiles[addr]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) ProfilePut(p *Profile) error {
	m.profiles[p.Owner] = p.Clone()
	return nil
}

func (m *mockState) BalanceDebit(addr [20]byte, amount *big.Int) error {
	balance, ok := m.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		return Errf(KindInsufficientFunds, "insufficient spendable balance")
	}
	m.balances[addr] = new(big.Int).Sub(balance, amount)
	return nil
}

func (m *mockState) BalanceCredit(addr [20]byte, amount *big.Int) error {
	balance, ok := m.balances[addr]
	if !ok {
		balance = big.NewInt(0)
	}
	m.balances[addr] = new(big.Int).Add(balance, amount)
	return nil
}

func (m *mockState) OfferPut(o *Offer) error {
	m.offers[o.ID] = o.Clone()
	return nil
}

func (m *mockState) OfferGet(id [32]byte) (*Offer, bool, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) OfferDelete(id [32]byte) error {
	delete(m.offers, id)
	return nil
}

func (m *mockState) OfferRegistryAppend(owner [20]byte, id [32]byte) error {
	m.offerRegistry[owner] = append(m.offerRegistry[owner], id)
	return nil
}

func (m *mockState) OfferRegistryRemove(owner [20]byte, id [32]byte) error {
	ids := m.offerRegistry[owner]
	for i, existing := range ids {
		if existing == id {
			m.offerRegistry[owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.offerRegistry[owner]) == 0 {
		delete(m.offerRegistry, owner)
	}
	return nil
}

func (m *mockState) EscrowPut(e *Escrow) error {
	m.escrows[e.ID] = e.Clone()
	return nil
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	e, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (m *mockState) EscrowRegistryAppend(owner [20]byte, id [32]byte) error {
	m.escrowRegistry[owner] = append(m.escrowRegistry[owner], id)
	return nil
}

func (m *mockState) registryEntries(registry map[[20]byte][][32]byte) ([]RegistryEntry, [][20]byte) {
	owners := make([][20]byte, 0, len(registry))
	for owner := range registry {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	entries := make([]RegistryEntry, 0, len(owners))
	failed := make([][20]byte, 0)
	for _, owner := range owners {
		if m.corruptOwners[owner] {
			failed = append(failed, owner)
			continue
		}
		ids := append([][32]byte(nil), registry[owner]...)
		entries = append(entries, RegistryEntry{Owner: owner, IDs: ids})
	}
	return entries, failed
}

func (m *mockState) OfferRegistryEntries() ([]RegistryEntry, [][20]byte, error) {
	entries, failed := m.registryEntries(m.offerRegistry)
	return entries, failed, nil
}

func (m *mockState) EscrowRegistryEntries() ([]RegistryEntry, [][20]byte, error) {
	entries, failed := m.registryEntries(m.escrowRegistry)
	return entries, failed, nil
}

func (m *mockState) EscrowRegistryList(owner [20]byte) ([][32]byte, error) {
	return append([][32]byte(nil), m.escrowRegistry[owner]...), nil
}

func (m *mockState) addProfile(addr [20]byte, name string) {
	m.profiles[addr] = &Profile{Owner: addr, Name: name, JoinedAt: 1}
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.balances[addr] = big.NewInt(amount)
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *captureEmitter) last() events.Event {
	if len(c.events) == 0 {
		return events.Event{}
	}
	return c.events[len(c.events)-1]
}

func newTestOfferEngine(state *mockState) (*OfferEngine, *captureEmitter) {
	emitter := &captureEmitter{}
	eng := NewOfferEngine()
	eng.SetState(state)
	eng.SetEmitter(emitter)
	eng.SetNowFunc(func() int64 { return 1700000000 })
	return eng, emitter
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("expected classified error, got %T: %v", err, err)
	}
	if me.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, me.Kind, err)
	}
}

func TestCreateOfferLocksCollateral(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.addProfile(seller, "ada")
	state.fund(seller, 1000)
	eng, emitter := newTestOfferEngine(state)

	offer, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), newTestNonce(0x10))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.LockedAmount.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected locked 600, got %s", offer.LockedAmount)
	}
	if offer.ActiveEscrows != 0 {
		t.Fatalf("expected zero active escrows, got %d", offer.ActiveEscrows)
	}
	if got := state.balance(seller); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected seller balance 400, got %s", got)
	}
	if ids := state.offerRegistry[seller]; len(ids) != 1 || ids[0] != offer.ID {
		t.Fatalf("offer not registered under seller")
	}
	if emitter.last().Type != EventTypeOfferCreated {
		t.Fatalf("expected %s event, got %s", EventTypeOfferCreated, emitter.last().Type)
	}
}

func TestCreateOfferRequiresProfile(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.fund(seller, 1000)
	eng, _ := newTestOfferEngine(state)

	_, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), newTestNonce(0x10))
	requireKind(t, err, KindProfileRequired)
	if got := state.balance(seller); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("balance must be untouched on failure, got %s", got)
	}
}

func TestCreateOfferInsufficientFunds(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.addProfile(seller, "ada")
	state.fund(seller, 100)
	eng, _ := newTestOfferEngine(state)

	_, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), newTestNonce(0x10))
	requireKind(t, err, KindInsufficientFunds)
	if len(state.offers) != 0 {
		t.Fatalf("no offer may be stored on failed debit")
	}
}

func TestCreateOfferRejectsBadParams(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.addProfile(seller, "ada")
	state.fund(seller, 1000)
	eng, _ := newTestOfferEngine(state)

	cases := []struct {
		name       string
		currency   string
		price      *big.Int
		payment    string
		collateral *big.Int
	}{
		{"unsupported currency", "XYZ", big.NewInt(1), "Bank Transfer", big.NewInt(1)},
		{"unsupported payment", "NGN", big.NewInt(1), "Wire Pigeon", big.NewInt(1)},
		{"zero price", "NGN", big.NewInt(0), "Bank Transfer", big.NewInt(1)},
		{"nil price", "NGN", nil, "Bank Transfer", big.NewInt(1)},
		{"zero collateral", "NGN", big.NewInt(1), "Bank Transfer", big.NewInt(0)},
		{"negative collateral", "NGN", big.NewInt(1), "Bank Transfer", big.NewInt(-5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CreateOffer(seller, tc.currency, tc.price, tc.payment, tc.collateral, newTestNonce(0x10))
			requireKind(t, err, KindInvalidParams)
		})
	}
}

func TestCreateOfferNonceReplayIsIdempotent(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.addProfile(seller, "ada")
	state.fund(seller, 1000)
	eng, _ := newTestOfferEngine(state)
	nonce := newTestNonce(0x10)

	first, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), nonce)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	second, err := eng.CreateOffer(seller, "ngn", big.NewInt(1500), "bank transfer", big.NewInt(600), nonce)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay must return the stored offer")
	}
	if got := state.balance(seller); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("replay must not debit again, balance %s", got)
	}

	_, err = eng.CreateOffer(seller, "USD", big.NewInt(1500), "Bank Transfer", big.NewInt(600), nonce)
	requireKind(t, err, KindInvalidParams)
}

func TestDeleteOfferReturnsCollateral(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	state.addProfile(seller, "ada")
	state.fund(seller, 1000)
	eng, emitter := newTestOfferEngine(state)

	offer, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), newTestNonce(0x10))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := eng.DeleteOffer(offer.ID, seller); err != nil {
		t.Fatalf("delete offer: %v", err)
	}
	if got := state.balance(seller); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected full collateral back, balance %s", got)
	}
	if _, ok := state.offers[offer.ID]; ok {
		t.Fatalf("offer record must be removed")
	}
	if len(state.offerRegistry[seller]) != 0 {
		t.Fatalf("registry entry must be pruned")
	}
	if emitter.last().Type != EventTypeOfferDeleted {
		t.Fatalf("expected %s event, got %s", EventTypeOfferDeleted, emitter.last().Type)
	}
}

func TestDeleteOfferGuards(t *testing.T) {
	state := newMockState()
	seller := newTestAddress(0x01)
	stranger := newTestAddress(0x02)
	state.addProfile(seller, "ada")
	state.fund(seller, 1000)
	eng, _ := newTestOfferEngine(state)

	offer, err := eng.CreateOffer(seller, "NGN", big.NewInt(1500), "Bank Transfer", big.NewInt(600), newTestNonce(0x10))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	requireKind(t, eng.DeleteOffer([32]byte{0xFF}, seller), KindNotFound)
	requireKind(t, eng.DeleteOffer(offer.ID, stranger), KindNotOwner)

	stored := state.offers[offer.ID]
	stored.ActiveEscrows = 1
	requireKind(t, eng.DeleteOffer(offer.ID, seller), KindOfferHasActiveEscrows)
}
