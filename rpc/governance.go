package rpc

import (
	"context"
	"encoding/hex"
	"fmt"

	"daoctl/crypto"
)

// manage-neuron is a single method with a tagged command, mirroring the remote
// services' request shape. Exactly one command field is set per request.
type manageNeuronArg struct {
	NeuronID   uint64        `json:"neuronId,omitempty"`
	Subaccount string        `json:"subaccount,omitempty"`
	Command    manageCommand `json:"command"`
}

type manageCommand struct {
	Claim          *claimCommand          `json:"claim,omitempty"`
	Configure      *configureCommand      `json:"configure,omitempty"`
	Disburse       *disburseCommand       `json:"disburse,omitempty"`
	AddHotkey      *addHotkeyCommand      `json:"addHotkey,omitempty"`
	AddPermissions *addPermissionsCommand `json:"addPermissions,omitempty"`
	MakeProposal   *proposalCommand       `json:"makeProposal,omitempty"`
	RegisterVote   *registerVoteCommand   `json:"registerVote,omitempty"`
}

type claimCommand struct {
	Memo       uint64 `json:"memo"`
	Controller string `json:"controller,omitempty"`
}

type configureCommand struct {
	IncreaseDissolveDelaySecs *uint64 `json:"increaseDissolveDelaySecs,omitempty"`
	StartDissolving           bool    `json:"startDissolving,omitempty"`
	StopDissolving            bool    `json:"stopDissolving,omitempty"`
	// Visibility: 1 private, 2 public. Base family only.
	SetVisibility *int32 `json:"setVisibility,omitempty"`
}

type disburseCommand struct {
	To     wireAccount `json:"to"`
	Amount *uint64     `json:"amount,omitempty"` // nil disburses the full stake
}

type addHotkeyCommand struct {
	Hotkey string `json:"hotkey"`
}

type addPermissionsCommand struct {
	Principal   string  `json:"principal"`
	Permissions []int32 `json:"permissions"`
}

type proposalCommand struct {
	Title   string          `json:"title"`
	Summary string          `json:"summary"`
	Action  *proposalAction `json:"action"`
}

type proposalAction struct {
	CreateSuite *CreateSuiteAction `json:"createSuite,omitempty"`
	MintTokens  *MintTokensAction  `json:"mintTokens,omitempty"`
}

// CreateSuiteAction carries the suite genesis parameters of a suite-creation
// proposal.
type CreateSuiteAction struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Description      string `json:"description,omitempty"`
	Logo             []byte `json:"logo,omitempty"`
	TreasuryTokens   uint64 `json:"treasuryTokens"`
	SwapTokens       uint64 `json:"swapTokens"`
	DeveloperTokens  uint64 `json:"developerTokens"`
	MinParticipants  uint64 `json:"minParticipants"`
	MinParticipation uint64 `json:"minParticipation"`
	MaxParticipation uint64 `json:"maxParticipation"`
	MinCommitment    uint64 `json:"minCommitment"`
	MaxCommitment    uint64 `json:"maxCommitment"`
	DurationSecs     uint64 `json:"durationSecs"`
}

// MintTokensAction mints suite tokens to a receiver when adopted.
type MintTokensAction struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

type registerVoteCommand struct {
	ProposalID uint64 `json:"proposalId"`
	Vote       int32  `json:"vote"` // 1 adopt, 2 reject
}

type manageNeuronResult struct {
	Claim *struct {
		NeuronID   uint64 `json:"neuronId,omitempty"`
		Subaccount string `json:"subaccount,omitempty"`
	} `json:"claim,omitempty"`
	Configure *struct{} `json:"configure,omitempty"`
	Disburse  *struct {
		BlockIndex uint64 `json:"blockIndex"`
	} `json:"disburse,omitempty"`
	AddHotkey      *struct{} `json:"addHotkey,omitempty"`
	AddPermissions *struct{} `json:"addPermissions,omitempty"`
	MakeProposal   *struct {
		ProposalID uint64 `json:"proposalId"`
	} `json:"makeProposal,omitempty"`
	RegisterVote *struct{} `json:"registerVote,omitempty"`
}

type listNeuronsArg struct {
	Of    string `json:"of"`
	Limit int    `json:"limit"`
}

type listNeuronsResult struct {
	Neurons []Neuron `json:"neurons"`
}

// --- Base governance ---

// BaseGovClient drives the base chain's governance service. Base neurons are
// addressed by numeric id and hotkeys receive owner-equivalent control with no
// permission list.
type BaseGovClient struct {
	c       *Client
	service crypto.Principal
}

func NewBaseGovClient(c *Client, service crypto.Principal) *BaseGovClient {
	return &BaseGovClient{c: c, service: service}
}

func (g *BaseGovClient) manage(ctx context.Context, arg manageNeuronArg) (*manageNeuronResult, error) {
	var out manageNeuronResult
	if err := g.c.Update(ctx, g.service, "gov_manageNeuron", arg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Params fetches the remote-owned neuron constants.
func (g *BaseGovClient) Params(ctx context.Context) (NeuronParams, error) {
	var out NeuronParams
	err := g.c.Query(ctx, g.service, "gov_params", nil, &out)
	return out, err
}

// Claim claims the neuron staked under the subaccount derived from the caller
// and memo.
func (g *BaseGovClient) Claim(ctx context.Context, memo uint64, _ crypto.Principal) (NeuronID, error) {
	out, err := g.manage(ctx, manageNeuronArg{Command: manageCommand{Claim: &claimCommand{Memo: memo}}})
	if err != nil {
		return NeuronID{}, err
	}
	if out.Claim == nil {
		return NeuronID{}, fmt.Errorf("rpc: claim returned no neuron id")
	}
	return NeuronID{ID: out.Claim.NeuronID}, nil
}

func (g *BaseGovClient) AddHotkey(ctx context.Context, id NeuronID, hotkey crypto.Principal, _ []int32) error {
	_, err := g.manage(ctx, manageNeuronArg{
		NeuronID: id.ID,
		Command:  manageCommand{AddHotkey: &addHotkeyCommand{Hotkey: hotkey.String()}},
	})
	return err
}

func (g *BaseGovClient) Disburse(ctx context.Context, id NeuronID, to crypto.Principal, amount *uint64) (uint64, error) {
	out, err := g.manage(ctx, manageNeuronArg{
		NeuronID: id.ID,
		Command: manageCommand{Disburse: &disburseCommand{
			To:     Account{Owner: to}.wire(),
			Amount: amount,
		}},
	})
	if err != nil {
		return 0, err
	}
	if out.Disburse == nil {
		return 0, fmt.Errorf("rpc: disburse returned no block index")
	}
	return out.Disburse.BlockIndex, nil
}

func (g *BaseGovClient) IncreaseDissolveDelay(ctx context.Context, id NeuronID, seconds uint64) error {
	_, err := g.manage(ctx, manageNeuronArg{
		NeuronID: id.ID,
		Command:  manageCommand{Configure: &configureCommand{IncreaseDissolveDelaySecs: &seconds}},
	})
	return err
}

func (g *BaseGovClient) SetDissolving(ctx context.Context, id NeuronID, dissolving bool) error {
	cfg := &configureCommand{}
	if dissolving {
		cfg.StartDissolving = true
	} else {
		cfg.StopDissolving = true
	}
	_, err := g.manage(ctx, manageNeuronArg{NeuronID: id.ID, Command: manageCommand{Configure: cfg}})
	return err
}

func (g *BaseGovClient) SetVisibility(ctx context.Context, id NeuronID, public bool) error {
	visibility := int32(1)
	if public {
		visibility = 2
	}
	_, err := g.manage(ctx, manageNeuronArg{
		NeuronID: id.ID,
		Command:  manageCommand{Configure: &configureCommand{SetVisibility: &visibility}},
	})
	return err
}

func (g *BaseGovClient) List(ctx context.Context, of crypto.Principal) ([]Neuron, error) {
	var out listNeuronsResult
	err := g.c.Query(ctx, g.service, "gov_listNeurons", listNeuronsArg{Of: of.String(), Limit: 100}, &out)
	return out.Neurons, err
}

// Get returns a single neuron by id.
func (g *BaseGovClient) Get(ctx context.Context, id NeuronID) (*Neuron, error) {
	var out Neuron
	arg := struct {
		NeuronID uint64 `json:"neuronId"`
	}{NeuronID: id.ID}
	if err := g.c.Query(ctx, g.service, "gov_getNeuron", arg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitCreateSuite submits the suite-creation proposal under the given
// neuron's voting power and returns the proposal id.
func (g *BaseGovClient) SubmitCreateSuite(ctx context.Context, id NeuronID, title, summary string, action *CreateSuiteAction) (uint64, error) {
	out, err := g.manage(ctx, manageNeuronArg{
		NeuronID: id.ID,
		Command: manageCommand{MakeProposal: &proposalCommand{
			Title:   title,
			Summary: summary,
			Action:  &proposalAction{CreateSuite: action},
		}},
	})
	if err != nil {
		return 0, err
	}
	if out.MakeProposal == nil {
		return 0, fmt.Errorf("rpc: makeProposal returned no proposal id")
	}
	return out.MakeProposal.ProposalID, nil
}

// --- Suite governance ---

// SuiteGovClient drives a deployed suite's governance service. Suite neurons
// are addressed by staking subaccount and hotkeys carry an explicit
// permission list.
type SuiteGovClient struct {
	c       *Client
	service crypto.Principal
}

func NewSuiteGovClient(c *Client, service crypto.Principal) *SuiteGovClient {
	return &SuiteGovClient{c: c, service: service}
}

func (g *SuiteGovClient) manage(ctx context.Context, arg manageNeuronArg) (*manageNeuronResult, error) {
	var out manageNeuronResult
	if err := g.c.Update(ctx, g.service, "gov_manageNeuron", arg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *SuiteGovClient) Params(ctx context.Context) (NeuronParams, error) {
	var out NeuronParams
	err := g.c.Query(ctx, g.service, "gov_params", nil, &out)
	return out, err
}

func (g *SuiteGovClient) Claim(ctx context.Context, memo uint64, controller crypto.Principal) (NeuronID, error) {
	out, err := g.manage(ctx, manageNeuronArg{
		Command: manageCommand{Claim: &claimCommand{Memo: memo, Controller: controller.String()}},
	})
	if err != nil {
		return NeuronID{}, err
	}
	if out.Claim == nil || out.Claim.Subaccount == "" {
		return NeuronID{}, fmt.Errorf("rpc: claim returned no neuron subaccount")
	}
	sub, err := hex.DecodeString(out.Claim.Subaccount)
	if err != nil {
		return NeuronID{}, fmt.Errorf("rpc: claim returned malformed subaccount: %w", err)
	}
	return NeuronID{Subaccount: sub}, nil
}

func (g *SuiteGovClient) AddHotkey(ctx context.Context, id NeuronID, hotkey crypto.Principal, permissions []int32) error {
	if len(permissions) == 0 {
		permissions = DefaultHotkeyPermissions
	}
	_, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command: manageCommand{AddPermissions: &addPermissionsCommand{
			Principal:   hotkey.String(),
			Permissions: permissions,
		}},
	})
	return err
}

func (g *SuiteGovClient) Disburse(ctx context.Context, id NeuronID, to crypto.Principal, amount *uint64) (uint64, error) {
	out, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command: manageCommand{Disburse: &disburseCommand{
			To:     Account{Owner: to}.wire(),
			Amount: amount,
		}},
	})
	if err != nil {
		return 0, err
	}
	if out.Disburse == nil {
		return 0, fmt.Errorf("rpc: disburse returned no block index")
	}
	return out.Disburse.BlockIndex, nil
}

func (g *SuiteGovClient) IncreaseDissolveDelay(ctx context.Context, id NeuronID, seconds uint64) error {
	_, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command:    manageCommand{Configure: &configureCommand{IncreaseDissolveDelaySecs: &seconds}},
	})
	return err
}

func (g *SuiteGovClient) SetDissolving(ctx context.Context, id NeuronID, dissolving bool) error {
	cfg := &configureCommand{}
	if dissolving {
		cfg.StartDissolving = true
	} else {
		cfg.StopDissolving = true
	}
	_, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command:    manageCommand{Configure: cfg},
	})
	return err
}

func (g *SuiteGovClient) List(ctx context.Context, of crypto.Principal) ([]Neuron, error) {
	var out listNeuronsResult
	err := g.c.Query(ctx, g.service, "gov_listNeurons", listNeuronsArg{Of: of.String(), Limit: 100}, &out)
	return out.Neurons, err
}

// SubmitMintProposal proposes minting suite tokens to a receiver.
func (g *SuiteGovClient) SubmitMintProposal(ctx context.Context, id NeuronID, receiver crypto.Principal, amount uint64) (uint64, error) {
	out, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command: manageCommand{MakeProposal: &proposalCommand{
			Title:   fmt.Sprintf("Mint %d tokens to %s", amount, receiver),
			Summary: fmt.Sprintf("Mint %d minor units of the suite token to %s.", amount, receiver),
			Action:  &proposalAction{MintTokens: &MintTokensAction{Receiver: receiver.String(), Amount: amount}},
		}},
	})
	if err != nil {
		return 0, err
	}
	if out.MakeProposal == nil {
		return 0, fmt.Errorf("rpc: makeProposal returned no proposal id")
	}
	return out.MakeProposal.ProposalID, nil
}

// Vote registers a ballot from the given neuron.
func (g *SuiteGovClient) Vote(ctx context.Context, id NeuronID, proposalID uint64, adopt bool) error {
	vote := int32(2)
	if adopt {
		vote = 1
	}
	_, err := g.manage(ctx, manageNeuronArg{
		Subaccount: hex.EncodeToString(id.Subaccount),
		Command:    manageCommand{RegisterVote: &registerVoteCommand{ProposalID: proposalID, Vote: vote}},
	})
	return err
}
