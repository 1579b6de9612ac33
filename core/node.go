package core

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"fiatmarket/core/events"
	"fiatmarket/core/state"
	"fiatmarket/ledger"
	"fiatmarket/native/market"
	"fiatmarket/observability"
)

// Node wires the marketplace engines to the ledger. Every write operation is
// staged by a fresh state manager and submitted as one atomic transaction;
// commits that lose an optimistic-concurrency race are retried up to the
// configured bound before surfacing ConcurrencyConflict to the caller. Reads
// run unfenced and are eventually consistent with writes.
type Node struct {
	store       *ledger.Store
	emitter     events.Emitter
	logger      *slog.Logger
	metrics     *observability.MarketMetrics
	admin       [20]byte
	maxAttempts int
	nowFn       func() int64
}

// Option configures a Node.
type Option func(*Node)

// WithAdmin sets the administrative authority address for dispute rulings.
func WithAdmin(admin [20]byte) Option {
	return func(n *Node) { n.admin = admin }
}

// WithEmitter sets the event emitter shared by all engines.
func WithEmitter(emitter events.Emitter) Option {
	return func(n *Node) {
		if emitter != nil {
			n.emitter = emitter
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics enables operation metrics.
func WithMetrics(m *observability.MarketMetrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithMaxAttempts bounds the retry loop for conflicted commits.
func WithMaxAttempts(attempts int) Option {
	return func(n *Node) {
		if attempts > 0 {
			n.maxAttempts = attempts
		}
	}
}

// WithNowFunc overrides the time source, primarily used in tests.
func WithNowFunc(now func() int64) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// NewNode constructs a marketplace node over the supplied object store.
func NewNode(store *ledger.Store, opts ...Option) *Node {
	n := &Node{
		store:       store,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default(),
		maxAttempts: 3,
		nowFn:       func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) offerEngine(mgr *state.Manager) *market.OfferEngine {
	eng := market.NewOfferEngine()
	eng.SetState(mgr)
	eng.SetEmitter(n.emitter)
	eng.SetNowFunc(n.nowFn)
	return eng
}

func (n *Node) escrowEngine(mgr *state.Manager) *market.EscrowEngine {
	eng := market.NewEscrowEngine()
	eng.SetState(mgr)
	eng.SetEmitter(n.emitter)
	eng.SetNowFunc(n.nowFn)
	return eng
}

func (n *Node) disputeEngine(mgr *state.Manager) *market.DisputeEngine {
	eng := market.NewDisputeEngine(n.escrowEngine(mgr))
	eng.SetAdmin(n.admin)
	return eng
}

func newNonce() [16]byte {
	return [16]byte(uuid.New())
}

// runWrite executes fn inside an atomic ledger transaction with bounded
// conflict retries.
func (n *Node) runWrite(op string, fn func(mgr *state.Manager) error) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		err = n.store.Update(func(tx *ledger.Txn) error {
			return fn(state.NewManager(tx))
		})
		if !errors.Is(err, ledger.ErrConflict) {
			break
		}
		n.metrics.ObserveConflictRetry(op)
		n.logger.Warn("commit lost version race, retrying", "op", op, "attempt", attempt+1)
	}
	if errors.Is(err, ledger.ErrConflict) {
		err = market.Errf(market.KindConcurrencyConflict, "lost %d consecutive version races; retry the operation", n.maxAttempts)
	}
	if err != nil {
		kind := market.KindOf(err)
		n.metrics.ObserveOp(op, "error", start)
		n.metrics.ObserveError(op, string(kind))
		n.logger.Info("operation failed", "op", op, "kind", string(kind), "err", err.Error())
		return err
	}
	n.metrics.ObserveOp(op, "ok", start)
	return nil
}

func (n *Node) runRead(fn func(mgr *state.Manager) error) error {
	return n.store.View(func(tx *ledger.Txn) error {
		return fn(state.NewManager(tx))
	})
}

// CreateProfile registers a trading profile for owner. Re-registering an
// existing owner returns the stored profile unchanged.
func (n *Node) CreateProfile(owner [20]byte, name, contact, email string) (*market.Profile, error) {
	if name == "" {
		return nil, market.Errf(market.KindInvalidParams, "profile name is required")
	}
	var out *market.Profile
	err := n.runWrite("create_profile", func(mgr *state.Manager) error {
		existing, ok, err := mgr.ProfileGet(owner)
		if err != nil {
			return err
		}
		if ok {
			out = existing
			return nil
		}
		profile := &market.Profile{
			Owner:    owner,
			Name:     name,
			Contact:  contact,
			Email:    email,
			JoinedAt: n.nowFn(),
		}
		if err := mgr.ProfilePut(profile); err != nil {
			return err
		}
		n.emitter.Emit(market.NewProfileCreatedEvent(profile))
		out = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) isAdmin(caller [20]byte) bool {
	if n.admin == ([20]byte{}) {
		return false
	}
	return subtle.ConstantTimeCompare(n.admin[:], caller[:]) == 1
}

// FundAccount credits spendable balance to target. Restricted to the
// administrative authority; real deposits arrive through the external wallet
// boundary, this exists for operations and testing.
func (n *Node) FundAccount(caller, target [20]byte, amount *big.Int) error {
	if !n.isAdmin(caller) {
		return market.Errf(market.KindNotAdmin, "caller is not the administrative authority")
	}
	if amount == nil || amount.Sign() <= 0 {
		return market.Errf(market.KindInvalidParams, "fund amount must be positive")
	}
	return n.runWrite("fund_account", func(mgr *state.Manager) error {
		return mgr.BalanceCredit(target, amount)
	})
}

// CreateOffer locks collateral into a new offer owned by caller.
func (n *Node) CreateOffer(caller [20]byte, currencyCode string, price *big.Int, paymentType string, collateral *big.Int) (*market.Offer, error) {
	nonce := newNonce()
	var out *market.Offer
	err := n.runWrite("create_offer", func(mgr *state.Manager) error {
		offer, err := n.offerEngine(mgr).CreateOffer(caller, currencyCode, price, paymentType, collateral, nonce)
		if err != nil {
			return err
		}
		out = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOffer removes caller's offer and returns its remaining collateral.
func (n *Node) DeleteOffer(caller [20]byte, offerID [32]byte) error {
	return n.runWrite("delete_offer", func(mgr *state.Manager) error {
		return n.offerEngine(mgr).DeleteOffer(offerID, caller)
	})
}

// CreateEscrow opens a PENDING escrow for caller against the offer.
func (n *Node) CreateEscrow(caller [20]byte, offerID [32]byte, amount *big.Int) (*market.Escrow, error) {
	nonce := newNonce()
	var out *market.Escrow
	err := n.runWrite("create_escrow", func(mgr *state.Manager) error {
		esc, err := n.escrowEngine(mgr).CreateEscrow(offerID, caller, amount, nonce)
		if err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmPayment releases the escrow to the buyer on the seller's call.
func (n *Node) ConfirmPayment(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("confirm_payment", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.escrowEngine(mgr).ConfirmPayment(escrowID, caller)
	})
}

// CancelEscrow returns the escrow amount to the offer pool on the buyer's call.
func (n *Node) CancelEscrow(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("cancel_escrow", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.escrowEngine(mgr).CancelEscrow(escrowID, caller)
	})
}

// MakeDispute flags a pending escrow as disputed on either party's call.
func (n *Node) MakeDispute(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("make_dispute", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.disputeEngine(mgr).MakeDispute(escrowID, caller)
	})
}

// ResolveDispute lets the seller concede a dispute in the buyer's favour.
func (n *Node) ResolveDispute(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("resolve_dispute", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.disputeEngine(mgr).ResolveDispute(escrowID, caller)
	})
}

// ForceCompleteTrade settles a dispute in the buyer's favour by admin ruling.
func (n *Node) ForceCompleteTrade(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("force_complete_trade", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.disputeEngine(mgr).ForceCompleteTrade(escrowID, caller)
	})
}

// RefundSeller settles a dispute in the seller's favour by admin ruling.
func (n *Node) RefundSeller(caller [20]byte, escrowID [32]byte) (*market.Escrow, error) {
	return n.escrowTransition("refund_seller", func(mgr *state.Manager) (*market.Escrow, error) {
		return n.disputeEngine(mgr).RefundSeller(escrowID, caller)
	})
}

func (n *Node) escrowTransition(op string, fn func(mgr *state.Manager) (*market.Escrow, error)) (*market.Escrow, error) {
	var out *market.Escrow
	err := n.runWrite(op, func(mgr *state.Manager) error {
		esc, err := fn(mgr)
		if err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOffers returns every registered offer, with ids and registry owners
// that could not be resolved reported separately. Skips are logged, never
// fatal.
func (n *Node) ListOffers() ([]market.OfferView, market.Skipped, error) {
	var views []market.OfferView
	var skipped market.Skipped
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		views, skipped, err = market.NewQueryEngine(mgr).ListOffers()
		return err
	})
	if err != nil {
		return nil, market.Skipped{}, err
	}
	n.logSkipped("list_offers", skipped)
	return views, skipped, nil
}

// ListEscrowsForUser returns every escrow registered under addr.
func (n *Node) ListEscrowsForUser(addr [20]byte) ([]market.EscrowView, market.Skipped, error) {
	var views []market.EscrowView
	var skipped market.Skipped
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		views, skipped, err = market.NewQueryEngine(mgr).ListEscrowsForUser(addr)
		return err
	})
	if err != nil {
		return nil, market.Skipped{}, err
	}
	n.logSkipped("list_escrows_for_user", skipped)
	return views, skipped, nil
}

// ListDisputedEscrows returns every escrow currently in DISPUTE.
func (n *Node) ListDisputedEscrows() ([]market.EscrowView, market.Skipped, error) {
	var views []market.EscrowView
	var skipped market.Skipped
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		views, skipped, err = market.NewQueryEngine(mgr).ListDisputedEscrows()
		return err
	})
	if err != nil {
		return nil, market.Skipped{}, err
	}
	n.logSkipped("list_disputed_escrows", skipped)
	return views, skipped, nil
}

func (n *Node) logSkipped(op string, skipped market.Skipped) {
	if skipped.Empty() {
		return
	}
	n.logger.Warn("read path skipped unresolvable entries", "op", op, "ids", len(skipped.IDs), "owners", len(skipped.Owners))
}

// GetProfile returns the profile for addr.
func (n *Node) GetProfile(addr [20]byte) (*market.Profile, bool, error) {
	var profile *market.Profile
	var ok bool
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		profile, ok, err = mgr.ProfileGet(addr)
		return err
	})
	return profile, ok, err
}

// GetBalance returns the spendable balance for addr.
func (n *Node) GetBalance(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		balance, err = mgr.BalanceGet(addr)
		return err
	})
	return balance, err
}

// GetOffer returns the offer for id.
func (n *Node) GetOffer(id [32]byte) (*market.Offer, bool, error) {
	var offer *market.Offer
	var ok bool
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		offer, ok, err = mgr.OfferGet(id)
		return err
	})
	return offer, ok, err
}

// GetEscrow returns the escrow for id.
func (n *Node) GetEscrow(id [32]byte) (*market.Escrow, bool, error) {
	var escrow *market.Escrow
	var ok bool
	err := n.runRead(func(mgr *state.Manager) error {
		var err error
		escrow, ok, err = mgr.EscrowGet(id)
		return err
	})
	return escrow, ok, err
}
