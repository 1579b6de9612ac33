package rpc

import (
	"net/http"

	"fiatmarket/native/market"
)

type createProfileParams struct {
	Caller  string `json:"caller"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
}

type createOfferParams struct {
	Caller       string `json:"caller"`
	CurrencyCode string `json:"currencyCode"`
	Price        string `json:"price"`
	PaymentType  string `json:"paymentType"`
	Collateral   string `json:"collateral"`
}

type offerActorParams struct {
	Caller  string `json:"caller"`
	OfferID string `json:"offerId"`
}

type createEscrowParams struct {
	Caller  string `json:"caller"`
	OfferID string `json:"offerId"`
	Amount  string `json:"amount"`
}

type escrowActorParams struct {
	Caller   string `json:"caller"`
	EscrowID string `json:"escrowId"`
}

type fundAccountParams struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
	Amount string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type idParams struct {
	ID string `json:"id"`
}

type listResult struct {
	Offers        []*offerJSON  `json:"offers,omitempty"`
	Escrows       []*escrowJSON `json:"escrows,omitempty"`
	Skipped       []string      `json:"skipped,omitempty"`
	SkippedOwners []string      `json:"skippedOwners,omitempty"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, req *RPCRequest) {
	var params createProfileParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.CreateProfile(caller, params.Name, params.Contact, params.Email)
	if err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	out := successOutcome()
	out.Profile = profileToJSON(profile)
	writeResult(w, req.ID, out)
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, req *RPCRequest) {
	var params createOfferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	collateral, err := parsePositiveBigInt(params.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offer, err := s.node.CreateOffer(caller, params.CurrencyCode, price, params.PaymentType, collateral)
	if err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	out := successOutcome()
	out.Offer = offerToJSON(offer)
	writeResult(w, req.ID, out)
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, req *RPCRequest) {
	var params offerActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerID, err := parseID(params.OfferID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.DeleteOffer(caller, offerID); err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	writeResult(w, req.ID, successOutcome())
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, req *RPCRequest) {
	var params createEscrowParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerID, err := parseID(params.OfferID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	escrow, err := s.node.CreateEscrow(caller, offerID, amount)
	if err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	out := successOutcome()
	out.Escrow = escrowToJSON(escrow)
	writeResult(w, req.ID, out)
}

// handleEscrowTransition factors the shared shape of the five status
// transitions that take (caller, escrowId).
func (s *Server) handleEscrowTransition(w http.ResponseWriter, req *RPCRequest, transition func([20]byte, [32]byte) error) {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	escrowID, err := parseID(params.EscrowID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := transition(caller, escrowID); err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	writeResult(w, req.ID, successOutcome())
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.ConfirmPayment(caller, id)
		return err
	})
}

func (s *Server) handleCancelEscrow(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.CancelEscrow(caller, id)
		return err
	})
}

func (s *Server) handleMakeDispute(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.MakeDispute(caller, id)
		return err
	})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.ResolveDispute(caller, id)
		return err
	})
}

func (s *Server) handleForceCompleteTrade(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.ForceCompleteTrade(caller, id)
		return err
	})
}

func (s *Server) handleRefundSeller(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, func(caller [20]byte, id [32]byte) error {
		_, err := s.node.RefundSeller(caller, id)
		return err
	})
}

func (s *Server) handleFundAccount(w http.ResponseWriter, req *RPCRequest) {
	var params fundAccountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	target, err := parseAddress(params.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.FundAccount(caller, target, amount); err != nil {
		writeResult(w, req.ID, failureOutcome(err))
		return
	}
	writeResult(w, req.ID, successOutcome())
}

func (s *Server) handleListOffers(w http.ResponseWriter, req *RPCRequest) {
	views, skipped, err := s.node.ListOffers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	result := listResult{
		Offers:        make([]*offerJSON, 0, len(views)),
		Skipped:       hexIDs(skipped.IDs),
		SkippedOwners: hexAddrs(skipped.Owners),
	}
	for _, view := range views {
		result.Offers = append(result.Offers, offerViewToJSON(view))
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleListEscrowsForUser(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	views, skipped, err := s.node.ListEscrowsForUser(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	writeResult(w, req.ID, escrowListResult(views, skipped))
}

func (s *Server) handleListDisputedEscrows(w http.ResponseWriter, req *RPCRequest) {
	views, skipped, err := s.node.ListDisputedEscrows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	writeResult(w, req.ID, escrowListResult(views, skipped))
}

func escrowListResult(views []market.EscrowView, skipped market.Skipped) listResult {
	result := listResult{
		Escrows:       make([]*escrowJSON, 0, len(views)),
		Skipped:       hexIDs(skipped.IDs),
		SkippedOwners: hexAddrs(skipped.Owners),
	}
	for _, view := range views {
		result.Escrows = append(result.Escrows, escrowViewToJSON(view))
	}
	return result
}

func hexIDs(ids [][32]byte) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, hexID(id))
	}
	return out
}

func hexAddrs(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, hexAddr(addr))
	}
	return out
}

func (s *Server) handleGetProfile(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, ok, err := s.node.GetProfile(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, profileToJSON(profile))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.GetBalance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{"address": params.Address, "balance": balance.String()})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offer, ok, err := s.node.GetOffer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, offerToJSON(offer))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	escrow, ok, err := s.node.GetEscrow(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, escrowToJSON(escrow))
}
