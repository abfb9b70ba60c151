package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/blockberries/pollberry/engine"
	"github.com/blockberries/pollberry/instruction"
	"github.com/blockberries/pollberry/processor"
	"github.com/blockberries/pollberry/state"
	"github.com/blockberries/pollberry/types"
)

type testSigner struct {
	priv  ed25519.PrivateKey
	pub   types.PublicKey
	nonce uint64
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{priv: priv, pub: types.MustNewPublicKey(pub)}
}

func (s *testSigner) request(chainID string, program types.Address, data []byte) TxRequest {
	s.nonce++
	tx := &types.Transaction{Program: program, Signer: s.pub, Nonce: s.nonce, Data: data}
	tx.Signature = types.MustNewSignature(ed25519.Sign(s.priv, tx.SignBytes(chainID)))
	return NewTxRequest(tx)
}

type testServer struct {
	*httptest.Server
	engine *engine.Engine
	clock  *engine.ManualClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := engine.NewManualClock(50)
	eng := engine.NewEngine(engine.DefaultConfig(), engine.NewMemStore(), nil, clock, logger)
	if err := eng.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { eng.Stop() })

	srv := httptest.NewServer(NewServer(eng, logger).Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: eng, clock: clock}
}

func (ts *testServer) post(t *testing.T, req TxRequest) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+"/tx", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func (ts *testServer) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) pollTx(s *testSigner, ix instruction.Instruction) TxRequest {
	return s.request(ts.engine.ChainID(), ts.engine.PollProgramID(), instruction.Encode(ix))
}

func TestCreateVoteAndRead(t *testing.T) {
	ts := newTestServer(t)
	creator := newTestSigner(t)

	status, body := ts.post(t, ts.pollTx(creator, instruction.CreatePoll{
		Name:        "Lang",
		Description: "favourite language",
		ClosesAt:    100,
		Candidates:  []string{"Rust", "Go"},
	}))
	if status != http.StatusOK {
		t.Fatalf("create: status %d: %s", status, body)
	}
	var receipt ReceiptResponse
	if err := json.Unmarshal(body, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	pollAddr := types.PollAddress(ts.engine.PollProgramID(), "Lang")
	if receipt.Slot != 1 || len(receipt.Accounts) != 1 || receipt.Accounts[0] != pollAddr {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	voter := newTestSigner(t)
	if status, body := ts.post(t, ts.pollTx(voter, instruction.Vote{PollName: "Lang", Candidate: "Go"})); status != http.StatusOK {
		t.Fatalf("vote: status %d: %s", status, body)
	}

	var poll PollResponse
	if status := ts.get(t, "/polls/Lang", &poll); status != http.StatusOK {
		t.Fatalf("get poll: status %d", status)
	}
	if poll.Address != pollAddr || poll.Authority != creator.pub || !poll.Open || poll.TotalVotes != 1 {
		t.Errorf("unexpected poll %+v", poll)
	}
	if len(poll.Candidates) != 2 || poll.Candidates[1] != (CandidateResponse{Name: "Go", Votes: 1}) {
		t.Errorf("unexpected candidates %+v", poll.Candidates)
	}

	var v VoterResponse
	if status := ts.get(t, "/polls/Lang/voters/"+voter.pub.String(), &v); status != http.StatusOK {
		t.Fatalf("get voter: status %d", status)
	}
	if !v.Voted || v.Voter != voter.pub {
		t.Errorf("unexpected voter %+v", v)
	}

	var acc AccountResponse
	if status := ts.get(t, "/accounts/"+pollAddr.String(), &acc); status != http.StatusOK {
		t.Fatalf("get account: status %d", status)
	}
	if acc.Owner != ts.engine.PollProgramID() || len(acc.Data) != state.PollSpace {
		t.Errorf("unexpected account owner %s size %d", acc.Owner, len(acc.Data))
	}

	var derived AddressResponse
	ts.get(t, "/derive/poll/Lang", &derived)
	if derived.Address != pollAddr {
		t.Errorf("derived %s, want %s", derived.Address, pollAddr)
	}
	ts.get(t, "/derive/poll/Lang/voters/"+voter.pub.String(), &derived)
	if derived.Address != v.Address {
		t.Errorf("derived voter %s, want %s", derived.Address, v.Address)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	creator := newTestSigner(t)
	if status, body := ts.post(t, ts.pollTx(creator, instruction.CreatePoll{Name: "P", ClosesAt: 100, Candidates: []string{"A"}})); status != http.StatusOK {
		t.Fatalf("create: status %d: %s", status, body)
	}

	cases := []struct {
		name   string
		req    func() TxRequest
		status int
		code   uint32
		kind   string
	}{
		{
			name:   "duplicate poll",
			req:    func() TxRequest { return ts.pollTx(newTestSigner(t), instruction.CreatePoll{Name: "P", ClosesAt: 1}) },
			status: http.StatusConflict,
			code:   processor.CodePollAlreadyExists,
			kind:   "state_conflict",
		},
		{
			name:   "unknown candidate",
			req:    func() TxRequest { return ts.pollTx(newTestSigner(t), instruction.Vote{PollName: "P", Candidate: "Z"}) },
			status: http.StatusBadRequest,
			code:   processor.CodeCandidateNotFound,
			kind:   "validation",
		},
		{
			name:   "unknown poll",
			req:    func() TxRequest { return ts.pollTx(newTestSigner(t), instruction.Vote{PollName: "Q", Candidate: "A"}) },
			status: http.StatusConflict,
			code:   processor.CodePollNotInitialized,
			kind:   "state_conflict",
		},
		{
			name:   "malformed instruction",
			req:    func() TxRequest { return newTestSigner(t).request(ts.engine.ChainID(), ts.engine.PollProgramID(), []byte{9}) },
			status: http.StatusUnprocessableEntity,
			code:   processor.CodeMalformedRecord,
			kind:   "integrity",
		},
		{
			name: "bad signature",
			req: func() TxRequest {
				r := ts.pollTx(newTestSigner(t), instruction.Vote{PollName: "P", Candidate: "A"})
				r.Nonce++
				return r
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown program",
			req: func() TxRequest {
				return newTestSigner(t).request(ts.engine.ChainID(), types.ProgramID("other"), []byte{0})
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ts.post(t, tc.req())
			if status != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, status, body)
			}
			var resp errorResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" || resp.Code != tc.code || resp.Kind != tc.kind {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestSubmitDuplicateAndClosedPoll(t *testing.T) {
	ts := newTestServer(t)
	creator := newTestSigner(t)
	ts.post(t, ts.pollTx(creator, instruction.CreatePoll{Name: "P", ClosesAt: 100, Candidates: []string{"A"}}))

	voter := newTestSigner(t)
	req := ts.pollTx(voter, instruction.Vote{PollName: "P", Candidate: "A"})
	if status, _ := ts.post(t, req); status != http.StatusOK {
		t.Fatalf("first vote: status %d", status)
	}
	if status, _ := ts.post(t, req); status != http.StatusConflict {
		t.Errorf("replayed envelope: expected 409, got %d", status)
	}
	status, body := ts.post(t, ts.pollTx(voter, instruction.Vote{PollName: "P", Candidate: "A"}))
	if status != http.StatusConflict {
		t.Fatalf("second vote: expected 409, got %d", status)
	}
	var resp errorResponse
	json.Unmarshal(body, &resp)
	if resp.Code != processor.CodeAlreadyVoted {
		t.Errorf("expected code %d, got %d", processor.CodeAlreadyVoted, resp.Code)
	}

	ts.clock.Set(101)
	var poll PollResponse
	ts.get(t, "/polls/P", &poll)
	if poll.Open {
		t.Error("poll should report closed after ClosesAt")
	}
	status, body = ts.post(t, ts.pollTx(newTestSigner(t), instruction.Vote{PollName: "P", Candidate: "A"}))
	json.Unmarshal(body, &resp)
	if status != http.StatusConflict || resp.Code != processor.CodeVotingEnded {
		t.Errorf("late vote: status %d code %d", status, resp.Code)
	}
}

func TestTallyEndpoints(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSigner(t)
	program := ts.engine.TallyProgramID()
	rent := ts.engine.MinimumBalance(state.TallySpace)

	if status, body := ts.post(t, s.request(ts.engine.ChainID(), program, instruction.EncodeTally(instruction.CreateTally{Label: "morning", Rent: rent}))); status != http.StatusOK {
		t.Fatalf("create tally: status %d: %s", status, body)
	}
	for _, c := range []state.Choice{state.ChoiceGM, state.ChoiceGM, state.ChoiceGN} {
		if status, body := ts.post(t, s.request(ts.engine.ChainID(), program, instruction.EncodeTally(instruction.CastChoice{Label: "morning", Choice: c}))); status != http.StatusOK {
			t.Fatalf("cast: status %d: %s", status, body)
		}
	}

	var tally TallyResponse
	if status := ts.get(t, "/tallies/morning", &tally); status != http.StatusOK {
		t.Fatalf("get tally: status %d", status)
	}
	if tally.GM != 2 || tally.GN != 1 {
		t.Errorf("unexpected tally %+v", tally)
	}

	var derived AddressResponse
	ts.get(t, "/derive/tally/morning", &derived)
	if derived.Address != tally.Address {
		t.Errorf("derived %s, want %s", derived.Address, tally.Address)
	}
}

func TestReadErrors(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]int{
		"/polls/missing":             http.StatusNotFound,
		"/tallies/missing":           http.StatusNotFound,
		"/accounts/not-base58!":      http.StatusBadRequest,
		"/polls/P/voters/0OIl":       http.StatusBadRequest,
		"/derive/poll/P/voters/0OIl": http.StatusBadRequest,
	}
	cases["/accounts/"+types.ProgramID("nothing").String()] = http.StatusNotFound
	for path, want := range cases {
		if status := ts.get(t, path, nil); status != want {
			t.Errorf("%s: expected %d, got %d", path, want, status)
		}
	}

	resp, err := http.Post(ts.URL+"/tx", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad envelope: expected 400, got %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	var st StatusResponse
	if status := ts.get(t, "/status", &st); status != http.StatusOK {
		t.Fatalf("status: %d", status)
	}
	if st.ChainID != ts.engine.ChainID() || st.PollProgram != ts.engine.PollProgramID() || st.Time != 50 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(engine.ErrNotStarted); got != http.StatusServiceUnavailable {
		t.Errorf("ErrNotStarted: got %d", got)
	}
	if got := statusFor(fmt.Errorf("%w: slot 3 still pending", engine.ErrStoreCommit)); got != http.StatusServiceUnavailable {
		t.Errorf("ErrStoreCommit: got %d", got)
	}
	if got := statusFor(engine.ErrHalted); got != http.StatusServiceUnavailable {
		t.Errorf("ErrHalted: got %d", got)
	}
	if got := statusFor(engine.ErrWALWrite); got != http.StatusInternalServerError {
		t.Errorf("ErrWALWrite: got %d", got)
	}
	if got := statusFor(processor.ErrOwnerMismatch); got != http.StatusUnprocessableEntity {
		t.Errorf("ErrOwnerMismatch: got %d", got)
	}
}
