package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"daoctl/crypto"
	"daoctl/deploy"
	"daoctl/identity"
	"daoctl/rpc"
)

// suiteNeuron is one staked neuron as the fake suite governance tracks it.
type suiteNeuron struct {
	subaccount string
	controller string
	stake      uint64
	delaySecs  uint64
	hotkeys    []string
}

type suiteMintProposal struct {
	receiver string
	amount   uint64
	votes    int
}

// fakeSuiteNetwork serves a deployed suite's governance and ledger services,
// dispatching by service path like the real endpoint. Mint proposals are
// adopted once every known neuron has voted.
type fakeSuiteNetwork struct {
	t  *testing.T
	mu sync.Mutex

	governance crypto.Principal
	ledger     crypto.Principal

	neurons      []*suiteNeuron
	balances     map[string]uint64
	permissions  map[string][]int32 // granted per hotkey principal
	nextProposal uint64
	proposals    map[uint64]*suiteMintProposal
}

func newFakeSuiteNetwork(t *testing.T, governance, ledger crypto.Principal) *fakeSuiteNetwork {
	return &fakeSuiteNetwork{
		t:           t,
		governance:  governance,
		ledger:      ledger,
		balances:    map[string]uint64{},
		permissions: map[string][]int32{},
		proposals:   map[uint64]*suiteMintProposal{},
	}
}

func (f *fakeSuiteNetwork) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		service := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		var arg map[string]any
		if len(req.Params) > 0 {
			require.NoError(f.t, json.Unmarshal(req.Params[0], &arg))
		}

		var result any
		var errMsg string
		switch service {
		case f.governance.String():
			result, errMsg = f.govCall(req.Method, arg)
		case f.ledger.String():
			result, errMsg = f.ledgerCall(req.Method, arg)
		default:
			errMsg = "unknown service " + service
		}

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

func (f *fakeSuiteNetwork) ledgerCall(method string, arg map[string]any) (any, string) {
	if method != "ledger_balanceOf" {
		return nil, "unknown ledger method " + method
	}
	owner, _ := arg["owner"].(string)
	return map[string]any{"balance": f.balances[owner]}, ""
}

func (f *fakeSuiteNetwork) govCall(method string, arg map[string]any) (any, string) {
	switch method {
	case "gov_listNeurons":
		of, _ := arg["of"].(string)
		out := []any{}
		for _, n := range f.neurons {
			if n.controller != of && !contains(n.hotkeys, of) {
				continue
			}
			out = append(out, map[string]any{
				"subaccount":        n.subaccount,
				"controller":        n.controller,
				"stake":             n.stake,
				"dissolveDelaySecs": n.delaySecs,
				"hotkeys":           n.hotkeys,
			})
		}
		return map[string]any{"neurons": out}, ""
	case "gov_manageNeuron":
		return f.manage(arg)
	}
	return nil, "unknown governance method " + method
}

func (f *fakeSuiteNetwork) manage(arg map[string]any) (any, string) {
	subaccount, _ := arg["subaccount"].(string)
	cmd, _ := arg["command"].(map[string]any)
	switch {
	case cmd["addPermissions"] != nil:
		add, _ := cmd["addPermissions"].(map[string]any)
		principal, _ := add["principal"].(string)
		n := f.neuron(subaccount)
		if n == nil {
			return nil, "no neuron with subaccount " + subaccount
		}
		n.hotkeys = append(n.hotkeys, principal)
		for _, raw := range add["permissions"].([]any) {
			f.permissions[principal] = append(f.permissions[principal], int32(raw.(float64)))
		}
		return map[string]any{"addPermissions": map[string]any{}}, ""
	case cmd["makeProposal"] != nil:
		proposal, _ := cmd["makeProposal"].(map[string]any)
		action, _ := proposal["action"].(map[string]any)
		mint, _ := action["mintTokens"].(map[string]any)
		if mint == nil {
			return nil, "only mint proposals are supported"
		}
		f.nextProposal++
		f.proposals[f.nextProposal] = &suiteMintProposal{
			receiver: mint["receiver"].(string),
			amount:   uint64(mint["amount"].(float64)),
		}
		return map[string]any{"makeProposal": map[string]any{"proposalId": f.nextProposal}}, ""
	case cmd["registerVote"] != nil:
		vote, _ := cmd["registerVote"].(map[string]any)
		id := uint64(vote["proposalId"].(float64))
		p := f.proposals[id]
		if p == nil {
			return nil, "unknown proposal"
		}
		p.votes++
		if p.votes == len(f.neurons) {
			f.balances[p.receiver] += p.amount
		}
		return map[string]any{"registerVote": map[string]any{}}, ""
	}
	return nil, "unknown manage command"
}

func (f *fakeSuiteNetwork) neuron(subaccount string) *suiteNeuron {
	for _, n := range f.neurons {
		if n.subaccount == subaccount {
			return n
		}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// suiteFixture stands up the fake suite, a config pointing at it, generated
// participant seeds, and a deployment record tying them together. Each
// participant holds one staked suite neuron.
type suiteFixture struct {
	network *fakeSuiteNetwork
	cfgPath string
	record  *deploy.DeploymentRecord
}

func newSuiteFixture(t *testing.T, participantCount int) *suiteFixture {
	t.Helper()
	p := func(tag byte) crypto.Principal {
		pr, err := crypto.NewPrincipal(bytes.Repeat([]byte{tag}, 20))
		require.NoError(t, err)
		return pr
	}
	suite := rpc.SuiteServices{
		Governance: p(10), Ledger: p(11), Swap: p(12), Root: p(13), Index: p(14),
	}
	network := newFakeSuiteNetwork(t, suite.Governance, suite.Ledger)
	server := httptest.NewServer(network.handler())
	t.Cleanup(server.Close)

	cfgPath := writeTestConfig(t, server.URL)
	dir := filepath.Dir(cfgPath)
	manager := identity.NewManager(filepath.Join(dir, "generated", "participants"))

	rec := &deploy.DeploymentRecord{
		ProposalID:    42,
		Owner:         p(1).String(),
		OwnerNeuronID: 7,
		Suite:         suite,
	}
	for i := 1; i <= participantCount; i++ {
		id, err := manager.Participant(i)
		require.NoError(t, err)
		rec.Participants = append(rec.Participants, deploy.ParticipantRecord{
			Principal: id.Principal.String(),
			SeedFile:  manager.SeedPath(i),
			Amount:    20,
		})
		delay := uint64(3600)
		network.neurons = append(network.neurons, &suiteNeuron{
			subaccount: fmt.Sprintf("%02x", 0xa0+i),
			controller: id.Principal.String(),
			stake:      20,
			delaySecs:  delay,
		})
	}
	require.NoError(t, deploy.WriteRecord(filepath.Join(dir, "generated", "deployment.json"), rec))
	return &suiteFixture{network: network, cfgPath: cfgPath, record: rec}
}

func TestSuiteAddHotkeyVisibleToListNeurons(t *testing.T) {
	fx := newSuiteFixture(t, 3)
	hotkey, err := crypto.NewPrincipal(bytes.Repeat([]byte{0x42}, 20))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", fx.cfgPath, "add-hotkey",
		"--family", "suite", "--participant", "1",
		"--subaccount", "a1", "--hotkey", hotkey.String(), "--permissions", "3,4"},
		&stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, []int32{3, 4}, fx.network.permissions[hotkey.String()])

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"--config", fx.cfgPath, "list-neurons",
		"--family", "suite", "--participant", "1", "--of", hotkey.String()},
		&stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var neurons []rpc.Neuron
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &neurons))
	require.Len(t, neurons, 1, "the hotkey sees the neuron it was granted on")
	require.Equal(t, "a1", neurons[0].Subaccount)
	require.Contains(t, neurons[0].Hotkeys, hotkey.String())
}

func TestSuiteMintReflectedInBalance(t *testing.T) {
	fx := newSuiteFixture(t, 3)
	receiver, err := crypto.NewPrincipal(bytes.Repeat([]byte{0x51}, 20))
	require.NoError(t, err)

	balance := func() string {
		var stdout, stderr bytes.Buffer
		code := run([]string{"--config", fx.cfgPath, "get-balance",
			"--family", "suite", "--participant", "1", "--of", receiver.String()},
			&stdout, &stderr)
		require.Equal(t, 0, code, stderr.String())
		return stdout.String()
	}
	require.Equal(t, "0\n", balance(), "fresh receiver starts at zero")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", fx.cfgPath, "mint",
		"--family", "suite", "--amount", "250", "--receiver", receiver.String()},
		&stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "Mint proposal 1 adopted for 250 units")

	require.Equal(t, "250\n", balance(), "adopted mint shows up in the balance")

	proposal := fx.network.proposals[1]
	require.NotNil(t, proposal)
	require.Equal(t, 3, proposal.votes, "every participant neuron voted")
}
