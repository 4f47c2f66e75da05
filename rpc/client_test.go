package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"daoctl/crypto"
)

func testSigner(t *testing.T) crypto.Signer {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = 0x42
	key, err := crypto.NewEd25519KeyFromSeed(seed)
	require.NoError(t, err)
	return key
}

func servicePrincipal(t *testing.T, fill byte) crypto.Principal {
	t.Helper()
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	p, err := crypto.NewPrincipal(raw)
	require.NoError(t, err)
	return p
}

type stubHandler struct {
	t       *testing.T
	method  string
	handler func(params json.RawMessage) (any, *RemoteError)
	calls   int
}

func (s *stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls++
	var req struct {
		ID     string            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
	require.Equal(s.t, s.method, req.Method)
	require.NotEmpty(s.t, req.ID)

	var params json.RawMessage
	if len(req.Params) > 0 {
		params = req.Params[0]
	}
	result, remoteErr := s.handler(params)
	resp := map[string]any{}
	if remoteErr != nil {
		resp["error"] = remoteErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(resp))
}

func TestQueryDecodesResult(t *testing.T) {
	stub := &stubHandler{t: t, method: "ledger_balanceOf", handler: func(json.RawMessage) (any, *RemoteError) {
		return balanceResult{Balance: 123}, nil
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	ledger := NewLedgerClient(NewClient(srv.URL), servicePrincipal(t, 1))
	balance, err := ledger.Balance(context.Background(), Account{Owner: servicePrincipal(t, 2)})
	require.NoError(t, err)
	require.EqualValues(t, 123, balance)
	require.Equal(t, 1, stub.calls)
}

func TestUpdateRequiresSigner(t *testing.T) {
	ledger := NewLedgerClient(NewClient("http://unused.invalid"), servicePrincipal(t, 1))
	_, err := ledger.Transfer(context.Background(), Account{Owner: servicePrincipal(t, 2)}, 10, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "signing identity")
}

func TestUpdateSignsRequest(t *testing.T) {
	var caller, signature string
	mux := http.NewServeMux()
	stub := &stubHandler{t: t, method: "ledger_transfer", handler: func(json.RawMessage) (any, *RemoteError) {
		return transferResult{BlockIndex: 7}, nil
	}}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		caller = r.Header.Get("X-Caller")
		signature = r.Header.Get("X-Signature")
		stub.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	signer := testSigner(t)
	ledger := NewLedgerClient(NewClient(srv.URL, WithSigner(signer)), servicePrincipal(t, 1))
	block, err := ledger.Transfer(context.Background(), Account{Owner: servicePrincipal(t, 2)}, 10, 1)
	require.NoError(t, err)
	require.EqualValues(t, 7, block)
	require.Equal(t, signer.Principal().String(), caller)
	require.NotEmpty(t, signature)
}

func TestRemoteErrorSurfaced(t *testing.T) {
	stub := &stubHandler{t: t, method: "gov_manageNeuron", handler: func(json.RawMessage) (any, *RemoteError) {
		return nil, &RemoteError{Code: -32050, Message: "neuron not fully dissolved"}
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	gov := NewBaseGovClient(NewClient(srv.URL, WithSigner(testSigner(t))), servicePrincipal(t, 1))
	_, err := gov.Disburse(context.Background(), NeuronID{ID: 4}, servicePrincipal(t, 2), nil)
	require.True(t, IsRemoteReject(err))
	require.Contains(t, err.Error(), "neuron not fully dissolved")
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", WithSigner(testSigner(t)))
	ledger := NewLedgerClient(client, servicePrincipal(t, 1))
	_, err := ledger.Transfer(context.Background(), Account{Owner: servicePrincipal(t, 2)}, 10, 0)
	require.True(t, IsNetwork(err))
	require.Contains(t, err.Error(), "remote outcome unknown")
}

func TestServiceRouting(t *testing.T) {
	service := servicePrincipal(t, 9)
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"lifecycle":2}}`))
	}))
	defer srv.Close()

	swap := NewSwapClient(NewClient(srv.URL), service)
	lifecycle, err := swap.Lifecycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, LifecycleOpen, lifecycle)
	require.True(t, strings.HasSuffix(path, "/v1/service/"+service.String()))
}

func TestSuiteClaimDecodesSubaccount(t *testing.T) {
	stub := &stubHandler{t: t, method: "gov_manageNeuron", handler: func(params json.RawMessage) (any, *RemoteError) {
		var arg manageNeuronArg
		require.NoError(t, json.Unmarshal(params, &arg))
		require.NotNil(t, arg.Command.Claim)
		require.EqualValues(t, 3, arg.Command.Claim.Memo)
		return map[string]any{"claim": map[string]any{"subaccount": "00ff"}}, nil
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	gov := NewSuiteGovClient(NewClient(srv.URL, WithSigner(testSigner(t))), servicePrincipal(t, 1))
	id, err := gov.Claim(context.Background(), 3, servicePrincipal(t, 2))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, id.Subaccount)
}

func TestSuiteAddHotkeyDefaultsPermissions(t *testing.T) {
	var got []int32
	stub := &stubHandler{t: t, method: "gov_manageNeuron", handler: func(params json.RawMessage) (any, *RemoteError) {
		var arg manageNeuronArg
		require.NoError(t, json.Unmarshal(params, &arg))
		require.NotNil(t, arg.Command.AddPermissions)
		got = arg.Command.AddPermissions.Permissions
		return map[string]any{"addPermissions": map[string]any{}}, nil
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	gov := NewSuiteGovClient(NewClient(srv.URL, WithSigner(testSigner(t))), servicePrincipal(t, 1))
	require.NoError(t, gov.AddHotkey(context.Background(), NeuronID{Subaccount: []byte{1}}, servicePrincipal(t, 2), nil))
	require.Equal(t, DefaultHotkeyPermissions, got)
}
