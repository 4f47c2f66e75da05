package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"daoctl/config"
	"daoctl/crypto"
	"daoctl/identity"
	"daoctl/neuron"
	"daoctl/rpc"
)

// State names how far a deployment run has progressed. It advances strictly
// forward; a failed run reports the state it stalled in through StepError.
type State string

const (
	StateInit               State = "init"
	StateOwnerFunded        State = "owner-funded"
	StateOwnerNeuronCreated State = "owner-neuron-created"
	StateProposalSubmitted  State = "proposal-submitted"
	StateSuiteDeployed      State = "suite-deployed"
	StateParticipantsFunded State = "participants-funded"
	StateSwapOpen           State = "swap-open"
	StateThresholdReached   State = "threshold-reached"
	StateFinalized          State = "finalized"
	StateRecorded           State = "recorded"
)

// StepError wraps a failed deployment step with the state the run had
// reached, so the operator knows what already happened on chain.
type StepError struct {
	Step  string
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deploy: step %s failed in state %s: %v", e.Step, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// swapParticipants is how many deterministic participants a deployment
// generates and funds. Fixed: the swap's own min_participants threshold only
// gates the remote sale, not how many identities this tool derives.
const swapParticipants = 5

// neuronSettleDelay gives the governance service time to observe the staking
// deposit before it is claimed. Stubbed out in tests.
var neuronSettleDelay = 2 * time.Second

// Orchestrator runs a full deployment: owner neuron, suite-creation
// proposal, participant funding, swap participation, finalization, record.
type Orchestrator struct {
	cfg          *config.Config
	params       *config.SuiteParams
	owner        *identity.Identity
	participants *identity.Manager
	log          *slog.Logger

	baseGov    crypto.Principal
	baseLedger crypto.Principal
	wrapper    crypto.Principal

	state State
}

func New(cfg *config.Config, params *config.SuiteParams, owner *identity.Identity, log *slog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:          cfg,
		params:       params,
		owner:        owner,
		participants: identity.NewManager(cfg.ParticipantDir()),
		log:          log,
		state:        StateInit,
	}
	var err error
	if o.baseGov, err = crypto.DecodePrincipal(cfg.BaseGovernance); err != nil {
		return nil, fmt.Errorf("deploy: base governance principal: %w", err)
	}
	if o.baseLedger, err = crypto.DecodePrincipal(cfg.BaseLedger); err != nil {
		return nil, fmt.Errorf("deploy: base ledger principal: %w", err)
	}
	if o.wrapper, err = crypto.DecodePrincipal(cfg.Wrapper); err != nil {
		return nil, fmt.Errorf("deploy: wrapper principal: %w", err)
	}
	return o, nil
}

// State reports how far the current or last Run progressed.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) client(id *identity.Identity) *rpc.Client {
	opts := []rpc.Option{rpc.WithAuthToken(o.cfg.AuthToken())}
	if id != nil {
		opts = append(opts, rpc.WithSigner(id.Key))
	}
	return rpc.NewClient(o.cfg.RPCEndpoint, opts...)
}

func (o *Orchestrator) step(step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, State: o.state, Err: err}
}

// participationAmount is what each generated participant commits: enough
// that the fixed participant set together reaches the commitment threshold,
// floored at the per-participant minimum.
func (o *Orchestrator) participationAmount() (uint64, error) {
	if o.params.Swap.MinParticipants > swapParticipants {
		return 0, fmt.Errorf("%w: the swap requires %d participants but only %d are generated",
			config.ErrInvalid, o.params.Swap.MinParticipants, swapParticipants)
	}
	need := (o.params.Swap.MinCommitment + swapParticipants - 1) / swapParticipants
	amount := need
	if amount < o.params.Swap.MinParticipationAmount {
		amount = o.params.Swap.MinParticipationAmount
	}
	if amount > o.params.Swap.MaxParticipationAmount {
		return 0, fmt.Errorf("%w: reaching the commitment threshold needs %d per participant, above the %d maximum",
			config.ErrInvalid, amount, o.params.Swap.MaxParticipationAmount)
	}
	return amount, nil
}

// Run executes the deployment end to end and returns the written record.
func (o *Orchestrator) Run(ctx context.Context) (*DeploymentRecord, error) {
	ownerNeuron, err := o.createOwnerNeuron(ctx)
	if err != nil {
		return nil, o.step("create-owner-neuron", err)
	}

	proposalID, err := o.submitProposal(ctx, ownerNeuron)
	if err != nil {
		return nil, o.step("submit-proposal", err)
	}
	o.state = StateProposalSubmitted

	suite, err := o.awaitExecution(ctx, proposalID)
	if err != nil {
		return nil, o.step("await-execution", err)
	}
	o.state = StateSuiteDeployed
	o.log.Info("suite deployed",
		"governance", suite.Governance.String(), "ledger", suite.Ledger.String(), "swap", suite.Swap.String())

	amount, err := o.participationAmount()
	if err != nil {
		return nil, o.step("fund-participants", err)
	}
	participants, err := o.fundParticipants(ctx, amount)
	if err != nil {
		return nil, o.step("fund-participants", err)
	}
	o.state = StateParticipantsFunded

	if err := o.awaitSwapOpen(ctx, suite); err != nil {
		return nil, o.step("await-swap-open", err)
	}
	o.state = StateSwapOpen

	if err := o.participate(ctx, suite, participants, amount); err != nil {
		return nil, o.step("participate", err)
	}
	if err := o.awaitCommitment(ctx, suite); err != nil {
		return nil, o.step("await-commitment", err)
	}
	o.state = StateThresholdReached

	if err := o.finalize(ctx, suite); err != nil {
		return nil, o.step("finalize", err)
	}
	o.state = StateFinalized

	rec := o.buildRecord(proposalID, ownerNeuron, suite, participants, amount)
	if err := WriteRecord(o.cfg.RecordPath(), rec); err != nil {
		return nil, o.step("write-record", err)
	}
	o.state = StateRecorded
	o.log.Info("deployment recorded", "path", o.cfg.RecordPath())
	return rec, nil
}

// createOwnerNeuron mints base tokens to the owner and stakes them into a
// proposal-eligible neuron.
func (o *Orchestrator) createOwnerNeuron(ctx context.Context) (rpc.NeuronID, error) {
	ownerGov := rpc.NewBaseGovClient(o.client(o.owner), o.baseGov)
	ownerLedger := rpc.NewLedgerClient(o.client(o.owner), o.baseLedger)

	gp, err := ownerGov.Params(ctx)
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("fetch base neuron params: %w", err)
	}
	fee, err := ownerLedger.Fee(ctx)
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("fetch base transfer fee: %w", err)
	}
	stake := gp.MinimumStake + fee

	minting := identity.Minting()
	mintLedger := rpc.NewLedgerClient(o.client(minting), o.baseLedger)
	o.log.Info("minting owner funds", "owner", o.owner.Principal.String(), "amount", stake)
	if _, err := mintLedger.Transfer(ctx, rpc.Account{Owner: o.owner.Principal}, stake, 0); err != nil {
		return rpc.NeuronID{}, fmt.Errorf("mint owner funds: %w", err)
	}
	o.state = StateOwnerFunded

	ops := &neuron.Ops{
		Gov:         ownerGov,
		Ledger:      ownerLedger,
		GovService:  o.baseGov,
		Log:         o.log,
		SettleDelay: neuronSettleDelay,
	}
	// The dissolve delay is the protocol maximum, as reported by the
	// governance service itself.
	id, err := ops.Create(ctx, o.owner.Principal, stake, 0, gp.MaxDissolveDelaySec)
	if err != nil {
		return rpc.NeuronID{}, err
	}
	o.state = StateOwnerNeuronCreated
	o.log.Info("owner neuron created", "neuron", id.ID, "dissolveDelaySecs", gp.MaxDissolveDelaySec)
	return id, nil
}

func (o *Orchestrator) submitProposal(ctx context.Context, ownerNeuron rpc.NeuronID) (uint64, error) {
	action := &rpc.CreateSuiteAction{
		Name:             o.params.Name,
		Symbol:           o.params.Symbol,
		Description:      o.params.Description,
		TreasuryTokens:   o.params.Distribution.TreasuryTokens,
		SwapTokens:       o.params.Distribution.SwapTokens,
		DeveloperTokens:  o.params.Distribution.DeveloperTokens,
		MinParticipants:  o.params.Swap.MinParticipants,
		MinParticipation: o.params.Swap.MinParticipationAmount,
		MaxParticipation: o.params.Swap.MaxParticipationAmount,
		MinCommitment:    o.params.Swap.MinCommitment,
		MaxCommitment:    o.params.Swap.MaxCommitment,
		DurationSecs:     o.params.Swap.DurationSecs,
	}
	if o.params.LogoPath != "" {
		logo, err := os.ReadFile(o.params.LogoPath)
		if err != nil {
			return 0, fmt.Errorf("read suite logo: %w", err)
		}
		action.Logo = logo
	}

	gov := rpc.NewBaseGovClient(o.client(o.owner), o.baseGov)
	title := fmt.Sprintf("Create the %s suite", o.params.Name)
	summary := fmt.Sprintf("Deploy governance, ledger and swap services for %s (%s).", o.params.Name, o.params.Symbol)
	id, err := gov.SubmitCreateSuite(ctx, ownerNeuron, title, summary, action)
	if err != nil {
		return 0, err
	}
	o.log.Info("suite-creation proposal submitted", "proposal", id)
	return id, nil
}

// awaitExecution polls the wrapper until the proposal's suite is
// provisioned. The wrapper rejects the query while provisioning is still in
// flight, so rejections count as missed attempts.
func (o *Orchestrator) awaitExecution(ctx context.Context, proposalID uint64) (*rpc.SuiteServices, error) {
	wrapper := rpc.NewWrapperClient(o.client(nil), o.wrapper)
	return Await(ctx, "proposal execution", o.cfg.Polls.Execution,
		func(ctx context.Context) (*rpc.SuiteServices, bool, error) {
			suite, err := wrapper.DeployedSuite(ctx, proposalID)
			if rpc.IsRemoteReject(err) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return suite, suite != nil, nil
		})
}

type fundedParticipant struct {
	identity *identity.Identity
	seedFile string
}

// fundParticipants derives (or reloads) the generated participants and mints
// each one its participation amount plus the transfer fee it will pay.
func (o *Orchestrator) fundParticipants(ctx context.Context, amount uint64) ([]fundedParticipant, error) {
	minting := identity.Minting()
	mintLedger := rpc.NewLedgerClient(o.client(minting), o.baseLedger)
	fee, err := mintLedger.Fee(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch base transfer fee: %w", err)
	}
	// Sanity read: the minting account is exempt from balance checks, but a
	// failing query here catches a dead ledger before any transfer.
	mintBalance, err := mintLedger.Balance(ctx, rpc.Account{Owner: minting.Principal})
	if err != nil {
		return nil, fmt.Errorf("read minting account balance: %w", err)
	}
	o.log.Debug("minting account ready", "balance", mintBalance)

	participants := make([]fundedParticipant, 0, swapParticipants)
	for i := 1; i <= swapParticipants; i++ {
		id, err := o.participants.Participant(i)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		if _, err := mintLedger.Transfer(ctx, rpc.Account{Owner: id.Principal}, amount+fee, uint64(i)); err != nil {
			return nil, fmt.Errorf("fund participant %d: %w", i, err)
		}
		o.log.Info("participant funded",
			"index", i, "principal", id.Principal.String(), "amount", amount+fee)
		participants = append(participants, fundedParticipant{identity: id, seedFile: o.participants.SeedPath(i)})
	}
	return participants, nil
}

func (o *Orchestrator) awaitSwapOpen(ctx context.Context, suite *rpc.SuiteServices) error {
	swap := rpc.NewSwapClient(o.client(nil), suite.Swap)
	_, err := Await(ctx, "swap to open", o.cfg.Polls.SwapOpen,
		func(ctx context.Context) (rpc.Lifecycle, bool, error) {
			lifecycle, err := swap.Lifecycle(ctx)
			if err != nil {
				return lifecycle, false, err
			}
			if lifecycle == rpc.LifecycleAborted {
				return lifecycle, false, fmt.Errorf("%w: swap aborted before opening", ErrInconsistentState)
			}
			return lifecycle, lifecycle == rpc.LifecycleOpen, nil
		})
	return err
}

func (o *Orchestrator) participate(ctx context.Context, suite *rpc.SuiteServices, participants []fundedParticipant, amount uint64) error {
	for _, p := range participants {
		client := o.client(p.identity)
		swap := rpc.NewSwapClient(client, suite.Swap)
		ledger := rpc.NewLedgerClient(client, o.baseLedger)
		if err := Participate(ctx, o.log, swap, ledger, p.identity.Principal, amount); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) awaitCommitment(ctx context.Context, suite *rpc.SuiteServices) error {
	swap := rpc.NewSwapClient(o.client(nil), suite.Swap)
	threshold := o.params.Swap.MinCommitment
	_, err := Await(ctx, "commitment threshold", o.cfg.Polls.Commitment,
		func(ctx context.Context) (rpc.DerivedState, bool, error) {
			state, err := swap.DerivedState(ctx)
			if err != nil {
				return state, false, err
			}
			return state, state.Committed >= threshold, nil
		})
	return err
}

func (o *Orchestrator) finalize(ctx context.Context, suite *rpc.SuiteServices) error {
	swap := rpc.NewSwapClient(o.client(o.owner), suite.Swap)
	msg, err := swap.Finalize(ctx)
	if err != nil {
		return fmt.Errorf("finalize swap: %w", err)
	}
	if msg != "" {
		return fmt.Errorf("%w: swap finalize reported: %s", ErrInconsistentState, msg)
	}

	readonly := rpc.NewSwapClient(o.client(nil), suite.Swap)
	_, err = Await(ctx, "swap commitment", o.cfg.Polls.Finalize,
		func(ctx context.Context) (rpc.Lifecycle, bool, error) {
			lifecycle, err := readonly.Lifecycle(ctx)
			if err != nil {
				return lifecycle, false, err
			}
			if lifecycle == rpc.LifecycleAborted {
				return lifecycle, false, fmt.Errorf("%w: swap aborted during finalization", ErrInconsistentState)
			}
			return lifecycle, lifecycle == rpc.LifecycleCommitted, nil
		})
	return err
}

func (o *Orchestrator) buildRecord(proposalID uint64, ownerNeuron rpc.NeuronID, suite *rpc.SuiteServices, participants []fundedParticipant, amount uint64) *DeploymentRecord {
	rec := &DeploymentRecord{
		CreatedAt:     time.Now().UTC(),
		RPCEndpoint:   o.cfg.RPCEndpoint,
		ProposalID:    proposalID,
		Owner:         o.owner.Principal.String(),
		OwnerNeuronID: ownerNeuron.ID,
		Suite:         *suite,
	}
	for _, p := range participants {
		rec.Participants = append(rec.Participants, ParticipantRecord{
			Principal: p.identity.Principal.String(),
			SeedFile:  p.seedFile,
			Amount:    amount,
		})
	}
	return rec
}
