package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"fiatmarket/ledger"
	"fiatmarket/native/market"
)

// Manager projects the marketplace's typed records onto the versioned object
// store. One Manager wraps one ledger transaction: every mutation staged
// through it lands in the same atomic commit, and every read fences that
// commit against concurrent writers.
type Manager struct {
	tx *ledger.Txn
}

// NewManager creates a state manager operating on the provided transaction.
func NewManager(tx *ledger.Txn) *Manager {
	return &Manager{tx: tx}
}

type storedOffer struct {
	Owner         [20]byte
	CurrencyCode  string
	Price         *big.Int
	PaymentType   string
	LockedAmount  *big.Int
	ActiveEscrows uint32
	CreatedAt     uint64
}

type storedEscrow struct {
	OfferID    [32]byte
	Seller     [20]byte
	Buyer      [20]byte
	Amount     *big.Int
	FiatAmount *big.Int
	Status     uint8
	CreatedAt  uint64
	DisputedAt uint64
}

type storedProfile struct {
	Name            string
	Contact         string
	Email           string
	JoinedAt        uint64
	TotalTrades     uint64
	CompletedTrades uint64
	Disputes        uint64
}

type storedIDList struct {
	IDs [][32]byte
}

type storedOwnerList struct {
	Owners [][20]byte
}

func (m *Manager) getDecode(key ledger.ObjectID, out interface{}) (bool, error) {
	raw, err := m.tx.Get(key)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode object: %w", err)
	}
	return true, nil
}

func (m *Manager) putEncode(key ledger.ObjectID, in interface{}) error {
	encoded, err := rlp.EncodeToBytes(in)
	if err != nil {
		return fmt.Errorf("state: encode object: %w", err)
	}
	return m.tx.Put(key, encoded)
}

// --- Offers ---

// OfferGet loads the offer record for id.
func (m *Manager) OfferGet(id [32]byte) (*market.Offer, bool, error) {
	stored := new(storedOffer)
	ok, err := m.getDecode(offerKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	offer := &market.Offer{
		ID:            id,
		Owner:         stored.Owner,
		CurrencyCode:  stored.CurrencyCode,
		Price:         stored.Price,
		PaymentType:   stored.PaymentType,
		LockedAmount:  stored.LockedAmount,
		ActiveEscrows: stored.ActiveEscrows,
		CreatedAt:     int64(stored.CreatedAt),
	}
	return offer, true, nil
}

// OfferPut stores the offer after sanitising it.
func (m *Manager) OfferPut(offer *market.Offer) error {
	sanitized, err := market.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	return m.putEncode(offerKey(sanitized.ID), &storedOffer{
		Owner:         sanitized.Owner,
		CurrencyCode:  sanitized.CurrencyCode,
		Price:         sanitized.Price,
		PaymentType:   sanitized.PaymentType,
		LockedAmount:  sanitized.LockedAmount,
		ActiveEscrows: sanitized.ActiveEscrows,
		CreatedAt:     uint64(sanitized.CreatedAt),
	})
}

// OfferDelete removes the offer record.
func (m *Manager) OfferDelete(id [32]byte) error {
	return m.tx.Delete(offerKey(id))
}

// --- Escrows ---

// EscrowGet loads the escrow record for id.
func (m *Manager) EscrowGet(id [32]byte) (*market.Escrow, bool, error) {
	stored := new(storedEscrow)
	ok, err := m.getDecode(escrowKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	escrow := &market.Escrow{
		ID:         id,
		OfferID:    stored.OfferID,
		Seller:     stored.Seller,
		Buyer:      stored.Buyer,
		Amount:     stored.Amount,
		FiatAmount: stored.FiatAmount,
		Status:     market.EscrowStatus(stored.Status),
		CreatedAt:  int64(stored.CreatedAt),
		DisputedAt: int64(stored.DisputedAt),
	}
	return escrow, true, nil
}

// EscrowPut stores the escrow after sanitising it. Escrow records are never
// deleted, only terminally statused.
func (m *Manager) EscrowPut(escrow *market.Escrow) error {
	sanitized, err := market.SanitizeEscrow(escrow)
	if err != nil {
		return err
	}
	return m.putEncode(escrowKey(sanitized.ID), &storedEscrow{
		OfferID:    sanitized.OfferID,
		Seller:     sanitized.Seller,
		Buyer:      sanitized.Buyer,
		Amount:     sanitized.Amount,
		FiatAmount: sanitized.FiatAmount,
		Status:     uint8(sanitized.Status),
		CreatedAt:  uint64(sanitized.CreatedAt),
		DisputedAt: uint64(sanitized.DisputedAt),
	})
}

// --- Profiles ---

// ProfileExists reports whether a trading profile is registered for addr.
func (m *Manager) ProfileExists(addr [20]byte) (bool, error) {
	return m.getDecode(profileKey(addr), new(storedProfile))
}

// ProfileGet loads the profile for addr.
func (m *Manager) ProfileGet(addr [20]byte) (*market.Profile, bool, error) {
	stored := new(storedProfile)
	ok, err := m.getDecode(profileKey(addr), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.Profile{
		Owner:           addr,
		Name:            stored.Name,
		Contact:         stored.Contact,
		Email:           stored.Email,
		JoinedAt:        int64(stored.JoinedAt),
		TotalTrades:     stored.TotalTrades,
		CompletedTrades: stored.CompletedTrades,
		Disputes:        stored.Disputes,
	}, true, nil
}

// ProfilePut stores the profile record.
func (m *Manager) ProfilePut(profile *market.Profile) error {
	if profile == nil {
		return fmt.Errorf("state: nil profile")
	}
	return m.putEncode(profileKey(profile.Owner), &storedProfile{
		Name:            profile.Name,
		Contact:         profile.Contact,
		Email:           profile.Email,
		JoinedAt:        uint64(profile.JoinedAt),
		TotalTrades:     profile.TotalTrades,
		CompletedTrades: profile.CompletedTrades,
		Disputes:        profile.Disputes,
	})
}

// --- Balances ---

// BalanceGet returns the spendable balance for addr, zero when absent.
func (m *Manager) BalanceGet(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.getDecode(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// BalanceCredit adds amount to the spendable balance for addr.
func (m *Manager) BalanceCredit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	balance, err := m.BalanceGet(addr)
	if err != nil {
		return err
	}
	return m.putEncode(balanceKey(addr), new(big.Int).Add(balance, amount))
}

// BalanceDebit subtracts amount from the spendable balance for addr,
// rejecting the whole transaction when the balance does not cover it.
func (m *Manager) BalanceDebit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	balance, err := m.BalanceGet(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return market.Errf(market.KindInsufficientFunds, "balance %s cannot cover %s", balance, amount)
	}
	return m.putEncode(balanceKey(addr), new(big.Int).Sub(balance, amount))
}

// --- Registries ---

func (m *Manager) registryAppend(entryKey, ownersKey ledger.ObjectID, owner [20]byte, id [32]byte) error {
	entry := new(storedIDList)
	ok, err := m.getDecode(entryKey, entry)
	if err != nil {
		return err
	}
	if !ok {
		if err := m.ownerIndexAdd(ownersKey, owner); err != nil {
			return err
		}
	}
	entry.IDs = append(entry.IDs, id)
	return m.putEncode(entryKey, entry)
}

func (m *Manager) ownerIndexAdd(ownersKey ledger.ObjectID, owner [20]byte) error {
	index := new(storedOwnerList)
	if _, err := m.getDecode(ownersKey, index); err != nil {
		return err
	}
	for _, existing := range index.Owners {
		if existing == owner {
			return nil
		}
	}
	index.Owners = append(index.Owners, owner)
	return m.putEncode(ownersKey, index)
}

func (m *Manager) ownerIndexRemove(ownersKey ledger.ObjectID, owner [20]byte) error {
	index := new(storedOwnerList)
	ok, err := m.getDecode(ownersKey, index)
	if err != nil || !ok {
		return err
	}
	filtered := index.Owners[:0]
	for _, existing := range index.Owners {
		if existing != owner {
			filtered = append(filtered, existing)
		}
	}
	index.Owners = filtered
	return m.putEncode(ownersKey, index)
}

// registryEntries walks the owner index and loads every owner's id list. An
// indexed owner whose entry cannot be loaded or decoded is reported in the
// second return value, never silently dropped from the result set.
func (m *Manager) registryEntries(ownersKey ledger.ObjectID, entryKeyFn func([20]byte) ledger.ObjectID) ([]market.RegistryEntry, [][20]byte, error) {
	index := new(storedOwnerList)
	ok, err := m.getDecode(ownersKey, index)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return []market.RegistryEntry{}, nil, nil
	}
	entries := make([]market.RegistryEntry, 0, len(index.Owners))
	failed := make([][20]byte, 0)
	for _, owner := range index.Owners {
		entry := new(storedIDList)
		ok, err := m.getDecode(entryKeyFn(owner), entry)
		if err != nil || !ok {
			failed = append(failed, owner)
			continue
		}
		entries = append(entries, market.RegistryEntry{Owner: owner, IDs: entry.IDs})
	}
	return entries, failed, nil
}

// OfferRegistryAppend records an offer id under its owner.
func (m *Manager) OfferRegistryAppend(owner [20]byte, id [32]byte) error {
	return m.registryAppend(offerRegistryKey(owner), offerRegistryOwnersKey, owner, id)
}

// OfferRegistryRemove drops an offer id from its owner's entry, removing the
// entry and the owner-index row when the entry empties.
func (m *Manager) OfferRegistryRemove(owner [20]byte, id [32]byte) error {
	entryKey := offerRegistryKey(owner)
	entry := new(storedIDList)
	ok, err := m.getDecode(entryKey, entry)
	if err != nil || !ok {
		return err
	}
	filtered := entry.IDs[:0]
	for _, existing := range entry.IDs {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	entry.IDs = filtered
	if len(entry.IDs) == 0 {
		if err := m.tx.Delete(entryKey); err != nil {
			return err
		}
		return m.ownerIndexRemove(offerRegistryOwnersKey, owner)
	}
	return m.putEncode(entryKey, entry)
}

// OfferRegistryEntries returns every owner's offer-id list, plus the owners
// whose entry could not be resolved.
func (m *Manager) OfferRegistryEntries() ([]market.RegistryEntry, [][20]byte, error) {
	return m.registryEntries(offerRegistryOwnersKey, offerRegistryKey)
}

// EscrowRegistryAppend records an escrow id under an owner. The escrow
// registry is append-only: entries are the historical trade record and are
// never pruned.
func (m *Manager) EscrowRegistryAppend(owner [20]byte, id [32]byte) error {
	return m.registryAppend(escrowRegistryKey(owner), escrowRegistryOwnersKey, owner, id)
}

// EscrowRegistryList returns the escrow ids recorded under owner, empty when
// the entry is absent.
func (m *Manager) EscrowRegistryList(owner [20]byte) ([][32]byte, error) {
	entry := new(storedIDList)
	ok, err := m.getDecode(escrowRegistryKey(owner), entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][32]byte{}, nil
	}
	return entry.IDs, nil
}

// EscrowRegistryEntries returns every owner's escrow-id list, plus the owners
// whose entry could not be resolved.
func (m *Manager) EscrowRegistryEntries() ([]market.RegistryEntry, [][20]byte, error) {
	return m.registryEntries(escrowRegistryOwnersKey, escrowRegistryKey)
}
