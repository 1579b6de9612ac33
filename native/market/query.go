package market

import (
	"errors"
	"math/big"
	"sort"
)

var errQueryNilState = errors.New("query engine: state not configured")

// PlaceholderLabel substitutes missing join data on the read path. A record
// that cannot be enriched still appears in listings rather than failing the
// whole call.
const PlaceholderLabel = "UNKNOWN"

// OfferView is an offer joined with display data from the owner's profile.
type OfferView struct {
	Offer        *Offer
	MerchantName string
}

// EscrowView is an escrow joined with the parent offer's terms and the
// seller's display name. Join fields degrade to placeholders when the parent
// data cannot be fetched.
type EscrowView struct {
	Escrow       *Escrow
	CurrencyCode string
	Price        *big.Int
	PaymentType  string
	MerchantName string
}

// Skipped reports everything a listing could not resolve: object ids whose
// fetch failed and registry owners whose id list could not be loaded at all.
type Skipped struct {
	IDs    [][32]byte
	Owners [][20]byte
}

// Empty reports whether the listing resolved every registered record.
func (s Skipped) Empty() bool {
	return len(s.IDs) == 0 && len(s.Owners) == 0
}

// QueryEngine is the read side of the marketplace. Every listing is composed
// from multiple independent fetches: results are each current as of their
// own fetch, and ids that could not be resolved are reported alongside the
// result set instead of aborting it.
type QueryEngine struct {
	state queryState
}

// NewQueryEngine creates a query engine over the supplied read state.
func NewQueryEngine(state queryState) *QueryEngine {
	return &QueryEngine{state: state}
}

// ListOffers walks the whole offer registry and fetches every offer. An id
// present in the registry whose object is already gone is skipped, not
// fatal; such ids, and any owner whose registry entry could not be loaded,
// are reported in the Skipped value.
func (q *QueryEngine) ListOffers() ([]OfferView, Skipped, error) {
	if q == nil || q.state == nil {
		return nil, Skipped{}, errQueryNilState
	}
	entries, failedOwners, err := q.state.OfferRegistryEntries()
	if err != nil {
		return nil, Skipped{}, err
	}
	views := make([]OfferView, 0)
	skipped := Skipped{Owners: failedOwners}
	for _, entry := range entries {
		for _, id := range entry.IDs {
			offer, ok, err := q.state.OfferGet(id)
			if err != nil || !ok {
				skipped.IDs = append(skipped.IDs, id)
				continue
			}
			views = append(views, OfferView{
				Offer:        offer,
				MerchantName: q.merchantName(offer.Owner),
			})
		}
	}
	sortOfferViews(views)
	return views, skipped, nil
}

// ListEscrowsForUser returns every escrow registered under the address. An
// absent registry entry yields an empty list; an unreadable one is an error,
// there is no partial set to salvage for a single owner. Parent-offer data
// is joined best effort.
func (q *QueryEngine) ListEscrowsForUser(addr [20]byte) ([]EscrowView, Skipped, error) {
	if q == nil || q.state == nil {
		return nil, Skipped{}, errQueryNilState
	}
	ids, err := q.state.EscrowRegistryList(addr)
	if err != nil {
		return nil, Skipped{}, err
	}
	return q.collectEscrows(ids, nil, nil)
}

// ListDisputedEscrows scans the full escrow registry across all owners and
// returns only escrows currently in DISPUTE. Intended for the administrative
// authority's work queue.
func (q *QueryEngine) ListDisputedEscrows() ([]EscrowView, Skipped, error) {
	if q == nil || q.state == nil {
		return nil, Skipped{}, errQueryNilState
	}
	entries, failedOwners, err := q.state.EscrowRegistryEntries()
	if err != nil {
		return nil, Skipped{}, err
	}
	// Escrows are registered under both parties; dedupe before fetching.
	seen := make(map[[32]byte]struct{})
	ids := make([][32]byte, 0)
	for _, entry := range entries {
		for _, id := range entry.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	filter := func(e *Escrow) bool { return e.Status == EscrowDisputed }
	return q.collectEscrows(ids, filter, failedOwners)
}

func (q *QueryEngine) collectEscrows(ids [][32]byte, filter func(*Escrow) bool, failedOwners [][20]byte) ([]EscrowView, Skipped, error) {
	views := make([]EscrowView, 0, len(ids))
	skipped := Skipped{Owners: failedOwners}
	for _, id := range ids {
		esc, ok, err := q.state.EscrowGet(id)
		if err != nil || !ok {
			skipped.IDs = append(skipped.IDs, id)
			continue
		}
		if filter != nil && !filter(esc) {
			continue
		}
		views = append(views, q.escrowView(esc))
	}
	sortEscrowViews(views)
	return views, skipped, nil
}

func (q *QueryEngine) escrowView(esc *Escrow) EscrowView {
	view := EscrowView{
		Escrow:       esc,
		CurrencyCode: PlaceholderLabel,
		Price:        big.NewInt(0),
		PaymentType:  PlaceholderLabel,
		MerchantName: q.merchantName(esc.Seller),
	}
	offer, ok, err := q.state.OfferGet(esc.OfferID)
	if err == nil && ok {
		view.CurrencyCode = offer.CurrencyCode
		view.Price = new(big.Int).Set(offer.Price)
		view.PaymentType = offer.PaymentType
	}
	return view
}

func (q *QueryEngine) merchantName(addr [20]byte) string {
	profile, ok, err := q.state.ProfileGet(addr)
	if err != nil || !ok || profile.Name == "" {
		return PlaceholderLabel
	}
	return profile.Name
}

func sortOfferViews(views []OfferView) {
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Offer, views[j].Offer
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return string(a.ID[:]) < string(b.ID[:])
	})
}

func sortEscrowViews(views []EscrowView) {
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Escrow, views[j].Escrow
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return string(a.ID[:]) < string(b.ID[:])
	})
}
