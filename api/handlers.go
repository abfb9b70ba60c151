package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blockberries/pollberry/engine"
	"github.com/blockberries/pollberry/state"
	"github.com/blockberries/pollberry/types"
)

// maxBodySize bounds a submitted envelope. Data is base64, so it needs
// headroom over MaxTxDataSize.
const maxBodySize = 4 * types.MaxTxDataSize

// TxRequest is the JSON form of a signed transaction. Addresses and keys are
// base58; data and signature are base64.
type TxRequest struct {
	Program   types.Address   `json:"program"`
	Signer    types.PublicKey `json:"signer"`
	Nonce     uint64          `json:"nonce"`
	Data      []byte          `json:"data"`
	Signature []byte          `json:"signature"`
}

// Transaction converts the request into a transaction
func (r *TxRequest) Transaction() (*types.Transaction, error) {
	sig, err := types.NewSignature(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidTransaction, err)
	}
	return &types.Transaction{
		Program:   r.Program,
		Signer:    r.Signer,
		Nonce:     r.Nonce,
		Data:      r.Data,
		Signature: sig,
	}, nil
}

// NewTxRequest builds the envelope for a signed transaction
func NewTxRequest(tx *types.Transaction) TxRequest {
	return TxRequest{
		Program:   tx.Program,
		Signer:    tx.Signer,
		Nonce:     tx.Nonce,
		Data:      tx.Data,
		Signature: tx.Signature[:],
	}
}

// ReceiptResponse is the JSON form of engine.Receipt
type ReceiptResponse struct {
	ID       uuid.UUID       `json:"id"`
	TxHash   string          `json:"tx_hash"`
	Slot     uint64          `json:"slot"`
	Time     uint64          `json:"time"`
	Program  types.Address   `json:"program"`
	Accounts []types.Address `json:"accounts"`
}

// AccountResponse is a raw account
type AccountResponse struct {
	Address types.Address `json:"address"`
	Owner   types.Address `json:"owner"`
	Balance uint64        `json:"balance"`
	Data    []byte        `json:"data"`
}

// CandidateResponse is one decoded candidate
type CandidateResponse struct {
	Name  string `json:"name"`
	Votes uint64 `json:"votes"`
}

// PollResponse is a decoded poll record
type PollResponse struct {
	Address     types.Address       `json:"address"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	ClosesAt    uint64              `json:"closes_at"`
	Open        bool                `json:"open"`
	Authority   types.PublicKey     `json:"authority"`
	Candidates  []CandidateResponse `json:"candidates"`
	TotalVotes  uint64              `json:"total_votes"`
}

// VoterResponse is a decoded voter receipt
type VoterResponse struct {
	Address types.Address   `json:"address"`
	Voter   types.PublicKey `json:"voter"`
	Voted   bool            `json:"voted"`
}

// TallyResponse is a decoded tally record
type TallyResponse struct {
	Address types.Address `json:"address"`
	Label   string        `json:"label"`
	GM      uint64        `json:"gm"`
	GN      uint64        `json:"gn"`
}

// StatusResponse describes the running engine
type StatusResponse struct {
	ChainID      string        `json:"chain_id"`
	Slot         uint64        `json:"slot"`
	Time         uint64        `json:"time"`
	PollProgram  types.Address `json:"poll_program"`
	TallyProgram types.Address `json:"tally_program"`
}

// AddressResponse carries one derived address
type AddressResponse struct {
	Address types.Address `json:"address"`
}

// StatusHandler returns the chain id, slot and program ids
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		ChainID:      s.engine.ChainID(),
		Slot:         s.engine.Slot(),
		Time:         s.engine.Now(),
		PollProgram:  s.engine.PollProgramID(),
		TallyProgram: s.engine.TallyProgramID(),
	})
}

// SubmitHandler executes one signed transaction
func (s *Server) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	tx, err := req.Transaction()
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	receipt, err := s.engine.Submit(r.Context(), tx)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			s.log.WithError(err).Error("submit failed")
		}
		writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReceiptResponse{
		ID:       receipt.ID,
		TxHash:   receipt.TxHash.String(),
		Slot:     receipt.Slot,
		Time:     receipt.Time,
		Program:  receipt.Program,
		Accounts: receipt.Accounts,
	})
}

// AccountHandler returns a raw account
func (s *Server) AccountHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, ok := s.account(w, r, addr)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		Address: acc.Address,
		Owner:   acc.Owner,
		Balance: acc.Balance,
		Data:    acc.Data,
	})
}

// PollHandler returns the decoded poll with the given name
func (s *Server) PollHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	addr := types.PollAddress(s.engine.PollProgramID(), name)

	acc, ok := s.account(w, r, addr)
	if !ok {
		return
	}
	var poll state.Poll
	if !s.decode(w, acc, &poll) {
		return
	}
	if !poll.IsInitialized() {
		writeError(w, http.StatusNotFound, "poll not found")
		return
	}

	resp := PollResponse{
		Address:     addr,
		Name:        poll.Name,
		Description: poll.Description,
		ClosesAt:    poll.ClosesAt,
		Open:        poll.IsOpen(s.engine.Now()),
		Authority:   poll.Authority,
		Candidates:  make([]CandidateResponse, len(poll.Candidates)),
		TotalVotes:  poll.TotalVotes(),
	}
	for i, c := range poll.Candidates {
		resp.Candidates[i] = CandidateResponse{Name: c.Name, Votes: c.VoteCount}
	}
	writeJSON(w, http.StatusOK, resp)
}

// VoterHandler returns the receipt of one voter in one poll
func (s *Server) VoterHandler(w http.ResponseWriter, r *http.Request) {
	voter, err := types.ParsePublicKey(chi.URLParam(r, "voter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	program := s.engine.PollProgramID()
	addr := types.VoterAddress(program, types.PollAddress(program, chi.URLParam(r, "name")), voter)

	acc, ok := s.account(w, r, addr)
	if !ok {
		return
	}
	var v state.Voter
	if !s.decode(w, acc, &v) {
		return
	}
	writeJSON(w, http.StatusOK, VoterResponse{Address: addr, Voter: v.ID, Voted: v.HasVoted()})
}

// TallyHandler returns the decoded tally with the given label
func (s *Server) TallyHandler(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	addr := types.TallyAddress(s.engine.TallyProgramID(), label)

	acc, ok := s.account(w, r, addr)
	if !ok {
		return
	}
	var t state.Tally
	if !s.decode(w, acc, &t) {
		return
	}
	if !t.IsInitialized() {
		writeError(w, http.StatusNotFound, "tally not found")
		return
	}
	writeJSON(w, http.StatusOK, TallyResponse{Address: addr, Label: label, GM: t.GM, GN: t.GN})
}

// DerivePollHandler returns the address of a poll without reading it
func (s *Server) DerivePollHandler(w http.ResponseWriter, r *http.Request) {
	addr := types.PollAddress(s.engine.PollProgramID(), chi.URLParam(r, "name"))
	writeJSON(w, http.StatusOK, AddressResponse{Address: addr})
}

// DeriveVoterHandler returns the address of a voter receipt
func (s *Server) DeriveVoterHandler(w http.ResponseWriter, r *http.Request) {
	voter, err := types.ParsePublicKey(chi.URLParam(r, "voter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	program := s.engine.PollProgramID()
	poll := types.PollAddress(program, chi.URLParam(r, "name"))
	writeJSON(w, http.StatusOK, AddressResponse{Address: types.VoterAddress(program, poll, voter)})
}

// DeriveTallyHandler returns the address of a tally
func (s *Server) DeriveTallyHandler(w http.ResponseWriter, r *http.Request) {
	addr := types.TallyAddress(s.engine.TallyProgramID(), chi.URLParam(r, "label"))
	writeJSON(w, http.StatusOK, AddressResponse{Address: addr})
}

// account loads addr, writing a 404 or 500 response if it cannot
func (s *Server) account(w http.ResponseWriter, r *http.Request, addr types.Address) (*engine.Account, bool) {
	acc, err := s.engine.Account(r.Context(), addr)
	if errors.Is(err, engine.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).WithField("address", addr.String()).Error("account lookup failed")
		writeError(w, http.StatusInternalServerError, "account lookup failed")
		return nil, false
	}
	return acc, true
}

type binaryRecord interface {
	UnmarshalBinary(data []byte) error
}

func (s *Server) decode(w http.ResponseWriter, acc *engine.Account, rec binaryRecord) bool {
	if err := rec.UnmarshalBinary(acc.Data); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
