package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"daoctl/config"
	"daoctl/crypto"
	"daoctl/identity"
	"daoctl/rpc"
)

// fakeNetwork is an in-memory rendition of the five remote services, enough
// of each for one full deployment run.
type fakeNetwork struct {
	t  *testing.T
	mu sync.Mutex

	baseGov    crypto.Principal
	baseLedger crypto.Principal
	wrapper    crypto.Principal
	suite      rpc.SuiteServices
	minting    crypto.Principal

	fee      uint64
	minStake uint64
	maxDelay uint64

	dissolveDelays []uint64

	balances     map[string]uint64 // base ledger, keyed by owner principal text
	nextNeuron   uint64
	proposalID   uint64
	wrapperPolls int

	lifecycle      rpc.Lifecycle
	lifecyclePolls int
	nextTicket     uint64
	tickets        map[string]*rpc.Ticket // keyed by buyer principal text
	committed      uint64
	participants   map[string]bool
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	p := func(tag byte) crypto.Principal {
		pr, err := crypto.NewPrincipal(bytes.Repeat([]byte{tag}, 20))
		require.NoError(t, err)
		return pr
	}
	return &fakeNetwork{
		t:          t,
		baseGov:    p(1),
		baseLedger: p(2),
		wrapper:    p(3),
		suite: rpc.SuiteServices{
			Governance: p(10),
			Ledger:     p(11),
			Swap:       p(12),
			Root:       p(13),
			Index:      p(14),
		},
		minting:      identity.Minting().Principal,
		fee:          5,
		minStake:     20,
		maxDelay:     252_460_800,
		balances:     map[string]uint64{},
		tickets:      map[string]*rpc.Ticket{},
		participants: map[string]bool{},
	}
}

type wireRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (f *fakeNetwork) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		service := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		var req wireRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		caller := r.Header.Get("X-Caller")

		result, errMsg := f.dispatch(service, caller, req)
		resp := map[string]any{"jsonrpc": "2.0", "id": "1"}
		if errMsg != "" {
			resp["error"] = map[string]any{"code": -32000, "message": errMsg}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(f.t, json.NewEncoder(w).Encode(resp))
	})
}

func (f *fakeNetwork) dispatch(service, caller string, req wireRequest) (any, string) {
	var arg map[string]any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &arg); err != nil {
			return nil, "malformed params"
		}
	}

	switch {
	case service == f.baseLedger.String():
		return f.ledger(caller, req.Method, arg)
	case service == f.baseGov.String():
		return f.governance(req.Method, arg)
	case service == f.wrapper.String():
		return f.wrapperCall(req.Method)
	case service == f.suite.Swap.String():
		return f.swap(caller, req.Method, arg)
	default:
		return nil, "unknown service " + service
	}
}

func (f *fakeNetwork) ledger(caller, method string, arg map[string]any) (any, string) {
	switch method {
	case "ledger_fee":
		return map[string]any{"fee": f.fee}, ""
	case "ledger_balanceOf":
		owner, _ := arg["owner"].(string)
		return map[string]any{"balance": f.balances[owner]}, ""
	case "ledger_transfer":
		to, _ := arg["to"].(map[string]any)
		owner, _ := to["owner"].(string)
		amount := uint64(arg["amount"].(float64))
		if caller != f.minting.String() {
			have := f.balances[caller]
			if have < amount+f.fee {
				return nil, "insufficient funds"
			}
			f.balances[caller] = have - amount - f.fee
		}
		// Deposits into service subaccounts (neuron stake, swap
		// collection) leave the per-owner map; that is fine here.
		if sub, _ := to["subaccount"].(string); sub == "" {
			f.balances[owner] += amount
		}
		return map[string]any{"blockIndex": 1}, ""
	}
	return nil, "unknown ledger method " + method
}

func (f *fakeNetwork) governance(method string, arg map[string]any) (any, string) {
	switch method {
	case "gov_params":
		return map[string]any{"minimumStake": f.minStake, "maxDissolveDelaySecs": f.maxDelay}, ""
	case "gov_listNeurons":
		return map[string]any{"neurons": []any{}}, ""
	case "gov_manageNeuron":
		cmd, _ := arg["command"].(map[string]any)
		switch {
		case cmd["claim"] != nil:
			f.nextNeuron++
			return map[string]any{"claim": map[string]any{"neuronId": f.nextNeuron}}, ""
		case cmd["configure"] != nil:
			cfg, _ := cmd["configure"].(map[string]any)
			if raw, ok := cfg["increaseDissolveDelaySecs"].(float64); ok {
				f.dissolveDelays = append(f.dissolveDelays, uint64(raw))
			}
			return map[string]any{"configure": map[string]any{}}, ""
		case cmd["makeProposal"] != nil:
			f.proposalID = 42
			return map[string]any{"makeProposal": map[string]any{"proposalId": f.proposalID}}, ""
		}
		return nil, "unknown manage command"
	}
	return nil, "unknown governance method " + method
}

func (f *fakeNetwork) wrapperCall(method string) (any, string) {
	if method != "wrapper_deployedSuite" {
		return nil, "unknown wrapper method " + method
	}
	f.wrapperPolls++
	if f.wrapperPolls < 2 {
		return nil, "proposal not yet executed"
	}
	if f.lifecycle == rpc.LifecycleUnspecified {
		f.lifecycle = rpc.LifecyclePending
	}
	suite := map[string]any{
		"governance": f.suite.Governance.String(),
		"ledger":     f.suite.Ledger.String(),
		"swap":       f.suite.Swap.String(),
		"root":       f.suite.Root.String(),
		"index":      f.suite.Index.String(),
	}
	return map[string]any{"suite": suite}, ""
}

func (f *fakeNetwork) swap(caller, method string, arg map[string]any) (any, string) {
	switch method {
	case "swap_lifecycle":
		if f.lifecycle == rpc.LifecyclePending {
			f.lifecyclePolls++
			if f.lifecyclePolls >= 2 {
				f.lifecycle = rpc.LifecycleOpen
			}
		}
		return map[string]any{"lifecycle": int(f.lifecycle)}, ""
	case "swap_derivedState":
		return map[string]any{
			"participantCount": len(f.participants),
			"committed":        f.committed,
		}, ""
	case "swap_openTicket":
		participant, _ := arg["participant"].(string)
		if t := f.tickets[participant]; t != nil {
			return map[string]any{"ticket": map[string]any{"id": t.ID, "amount": t.Amount}}, ""
		}
		return map[string]any{"ticket": nil}, ""
	case "swap_newTicket":
		f.nextTicket++
		amount := uint64(arg["amount"].(float64))
		f.tickets[caller] = &rpc.Ticket{ID: f.nextTicket, Amount: amount}
		return map[string]any{"ticket": map[string]any{"id": f.nextTicket, "amount": amount}}, ""
	case "swap_refreshBuyer":
		buyer, _ := arg["buyer"].(string)
		ticket := f.tickets[buyer]
		if ticket == nil {
			return nil, "no open ticket for buyer"
		}
		f.committed += ticket.Amount
		f.participants[buyer] = true
		delete(f.tickets, buyer)
		return map[string]any{"accepted": ticket.Amount, "ledgerBalance": ticket.Amount}, ""
	case "swap_finalize":
		f.lifecycle = rpc.LifecycleCommitted
		return map[string]any{"errorMessage": ""}, ""
	}
	return nil, "unknown swap method " + method
}

func fastPolls() config.Polls {
	p := config.Poll{IntervalSecs: 0, MaxAttempts: 10}
	return config.Polls{Execution: p, SwapOpen: p, Commitment: p, Finalize: p}
}

func TestOrchestratorRunsFullDeployment(t *testing.T) {
	prev := neuronSettleDelay
	neuronSettleDelay = 0
	t.Cleanup(func() { neuronSettleDelay = prev })

	network := newFakeNetwork(t)
	server := httptest.NewServer(network.handler())
	t.Cleanup(server.Close)

	dataDir := t.TempDir()
	cfg := &config.Config{
		RPCEndpoint:    server.URL,
		BaseGovernance: network.baseGov.String(),
		BaseLedger:     network.baseLedger.String(),
		Wrapper:        network.wrapper.String(),
		DataDir:        dataDir,
		Polls:          fastPolls(),
	}
	params := &config.SuiteParams{Name: "Testnet DAO", Symbol: "TST"}
	params.Distribution.TreasuryTokens = 1_000
	params.Distribution.SwapTokens = 5_000
	params.Distribution.DeveloperTokens = 500
	params.Swap.MinParticipants = 2
	params.Swap.MinParticipationAmount = 10
	params.Swap.MaxParticipationAmount = 1_000
	params.Swap.MinCommitment = 100
	params.Swap.MaxCommitment = 1_000
	params.Swap.DurationSecs = 3600
	require.NoError(t, params.Validate())

	ownerSeed := bytes.Repeat([]byte{0xaa}, 32)
	ownerKey, err := crypto.NewEd25519KeyFromSeed(ownerSeed)
	require.NoError(t, err)
	owner := &identity.Identity{Principal: ownerKey.Principal(), Key: ownerKey}

	orch, err := New(cfg, params, owner, discardLog())
	require.NoError(t, err)

	rec, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateRecorded, orch.State())

	require.Equal(t, uint64(42), rec.ProposalID)
	require.Equal(t, owner.Principal.String(), rec.Owner)
	require.Equal(t, uint64(1), rec.OwnerNeuronID)
	require.Equal(t, network.suite, rec.Suite)
	require.Len(t, rec.Participants, 5)
	for _, p := range rec.Participants {
		require.Equal(t, uint64(20), p.Amount, "threshold split across the generated participants")
		require.FileExists(t, p.SeedFile)
		require.Equal(t, filepath.Join(dataDir, "participants"), filepath.Dir(p.SeedFile))
		require.Zero(t, network.balances[p.Principal],
			"each participant was funded its commitment plus fee and spent all of it")
	}

	require.Equal(t, []uint64{network.maxDelay}, network.dissolveDelays,
		"owner neuron locked for the advertised protocol maximum")
	require.Equal(t, uint64(100), network.committed, "all participants committed")
	require.Equal(t, rpc.LifecycleCommitted, network.lifecycle)

	onDisk, err := ReadRecord(cfg.RecordPath())
	require.NoError(t, err)
	require.Equal(t, rec.ProposalID, onDisk.ProposalID)
}

func TestParticipationAmountSplitsAcrossFixedParticipants(t *testing.T) {
	params := &config.SuiteParams{}
	params.Swap.MinParticipants = 2
	params.Swap.MinParticipationAmount = 10
	params.Swap.MaxParticipationAmount = 1_000
	params.Swap.MinCommitment = 101
	o := &Orchestrator{params: params}

	amount, err := o.participationAmount()
	require.NoError(t, err)
	require.Equal(t, uint64(21), amount, "threshold split across all generated participants, rounded up")

	params.Swap.MinCommitment = 10
	amount, err = o.participationAmount()
	require.NoError(t, err)
	require.Equal(t, uint64(10), amount, "floored at the per-participant minimum")

	params.Swap.MinParticipants = swapParticipants + 1
	_, err = o.participationAmount()
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestOrchestratorReportsFailedStep(t *testing.T) {
	prev := neuronSettleDelay
	neuronSettleDelay = 0
	t.Cleanup(func() { neuronSettleDelay = prev })

	// A network whose wrapper never provisions the suite: the run must
	// stall in await-execution with the proposal already submitted.
	network := newFakeNetwork(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, network.wrapper.String()) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": "1",
				"error": map[string]any{"code": -32000, "message": "proposal not yet executed"},
			})
			return
		}
		network.handler().ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		RPCEndpoint:    server.URL,
		BaseGovernance: network.baseGov.String(),
		BaseLedger:     network.baseLedger.String(),
		Wrapper:        network.wrapper.String(),
		DataDir:        t.TempDir(),
		Polls:          fastPolls(),
	}
	params := &config.SuiteParams{Name: "Testnet DAO", Symbol: "TST"}
	params.Distribution.SwapTokens = 5_000
	params.Swap.MinParticipants = 2
	params.Swap.MinParticipationAmount = 10
	params.Swap.MaxParticipationAmount = 1_000
	params.Swap.MinCommitment = 100
	params.Swap.MaxCommitment = 1_000

	ownerKey, err := crypto.NewEd25519KeyFromSeed(bytes.Repeat([]byte{0xbb}, 32))
	require.NoError(t, err)
	owner := &identity.Identity{Principal: ownerKey.Principal(), Key: ownerKey}

	orch, err := New(cfg, params, owner, discardLog())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "await-execution", se.Step)
	require.Equal(t, StateProposalSubmitted, se.State)

	_, statErr := os.Stat(cfg.RecordPath())
	require.True(t, os.IsNotExist(statErr), "no record written for a failed run")
}
