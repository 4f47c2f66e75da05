package neuron

import (
	"context"
	"fmt"
	"log/slog"

	"daoctl/crypto"
	"daoctl/rpc"
)

// SuiteGovernance extends Governance with the proposal and voting surface
// only the suite family exposes.
type SuiteGovernance interface {
	Governance
	SubmitMintProposal(ctx context.Context, id rpc.NeuronID, receiver crypto.Principal, amount uint64) (uint64, error)
	Vote(ctx context.Context, id rpc.NeuronID, proposalID uint64, adopt bool) error
}

// Voter pairs a participant with a governance client authenticated as that
// participant. Votes must be signed by the neuron's own controller, so each
// voter carries its own client.
type Voter struct {
	Principal crypto.Principal
	Gov       SuiteGovernance
}

// MintAndVote submits a mint proposal from the proposer's neuron and then
// registers an adopting ballot from every voter's main neuron. Voters
// without a vote-eligible neuron are skipped with a warning rather than
// failing the proposal. Returns the proposal id.
func MintAndVote(ctx context.Context, log *slog.Logger, proposer SuiteGovernance, proposerNeuron rpc.NeuronID, voters []Voter, receiver crypto.Principal, amount uint64) (uint64, error) {
	proposalID, err := proposer.SubmitMintProposal(ctx, proposerNeuron, receiver, amount)
	if err != nil {
		return 0, fmt.Errorf("submit mint proposal: %w", err)
	}
	log.Info("mint proposal submitted", "proposal", proposalID, "receiver", receiver.String(), "amount", amount)

	for _, v := range voters {
		neurons, err := v.Gov.List(ctx, v.Principal)
		if err != nil {
			return proposalID, fmt.Errorf("list neurons for voter %s: %w", v.Principal, err)
		}
		main := MainNeuron(neurons)
		if main == nil {
			log.Warn("voter has no vote-eligible neuron, skipping", "voter", v.Principal.String())
			continue
		}
		if err := v.Gov.Vote(ctx, main.NeuronID(), proposalID, true); err != nil {
			return proposalID, fmt.Errorf("register vote for %s: %w", v.Principal, err)
		}
		log.Info("vote registered", "voter", v.Principal.String(), "proposal", proposalID)
	}
	return proposalID, nil
}
