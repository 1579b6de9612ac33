package market

import "math/big"

// RegistryEntry is one row of an address-keyed registry: the owner and the
// ordered object ids recorded under it.
type RegistryEntry struct {
	Owner [20]byte
	IDs   [][32]byte
}

// offerEngineState is the slice of ledger state the offer engine mutates.
// Implementations stage every mutation into one atomic transaction; the
// engine never observes a partially applied operation.
type offerEngineState interface {
	ProfileExists(addr [20]byte) (bool, error)
	BalanceDebit(addr [20]byte, amount *big.Int) error
	BalanceCredit(addr [20]byte, amount *big.Int) error
	OfferPut(*Offer) error
	OfferGet(id [32]byte) (*Offer, bool, error)
	OfferDelete(id [32]byte) error
	OfferRegistryAppend(owner [20]byte, id [32]byte) error
	OfferRegistryRemove(owner [20]byte, id [32]byte) error
}

// escrowEngineState extends the offer surface with escrow records, profile
// counters and the append-only escrow registry.
type escrowEngineState interface {
	ProfileExists(addr [20]byte) (bool, error)
	ProfileGet(addr [20]byte) (*Profile, bool, error)
	ProfilePut(*Profile) error
	BalanceCredit(addr [20]byte, amount *big.Int) error
	OfferGet(id [32]byte) (*Offer, bool, error)
	OfferPut(*Offer) error
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	EscrowRegistryAppend(owner [20]byte, id [32]byte) error
}

// queryState is the read-only surface for the projection layer. Fetches are
// individually current but carry no cross-fetch consistency guarantee.
type queryState interface {
	OfferGet(id [32]byte) (*Offer, bool, error)
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	ProfileGet(addr [20]byte) (*Profile, bool, error)
	OfferRegistryEntries() ([]RegistryEntry, [][20]byte, error)
	EscrowRegistryEntries() ([]RegistryEntry, [][20]byte, error)
	EscrowRegistryList(owner [20]byte) ([][32]byte, error)
}
