package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"

	"daoctl/crypto"
	"daoctl/identity"
	"daoctl/neuron"
	"daoctl/rpc"
)

func runGetBalanceCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get-balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	of := fs.String("of", "", "account owner principal (default: the signing identity)")
	subaccount := fs.String("subaccount", "", "account subaccount (hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	owner := id.Principal
	if strings.TrimSpace(*of) != "" {
		if owner, err = crypto.DecodePrincipal(*of); err != nil {
			fmt.Fprintf(stderr, "Error: invalid principal: %v\n", err)
			return 1
		}
	}
	var sub []byte
	if strings.TrimSpace(*subaccount) != "" {
		if sub, err = hex.DecodeString(*subaccount); err != nil {
			fmt.Fprintf(stderr, "Error: --subaccount is not hex: %v\n", err)
			return 1
		}
	}

	ops, err := env.familyOps(*family, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	balance, err := ops.Balance(context.Background(), owner, sub)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%d\n", balance)
	return 0
}

// runMintCommand mints tokens to a receiver. Base tokens come straight from
// the minting account; suite tokens go by proposal, with the first generated
// participant proposing and every participant's main neuron voting to adopt.
func runMintCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	amount := fs.Uint64("amount", 0, "minor units to mint")
	receiver := fs.String("receiver", "", "principal to mint to (default: the configured owner)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}

	if *family == "base" {
		return runBaseMint(env, *amount, *receiver, stdout, stderr)
	}
	if *family != "suite" {
		fmt.Fprintf(stderr, "Error: unknown neuron family %q, want base or suite\n", *family)
		return 1
	}

	suite, err := env.deployedSuite()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rec, err := env.deploymentRecord()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(rec.Participants) == 0 {
		fmt.Fprintln(stderr, "Error: deployment record lists no participants")
		return 1
	}

	to, err := resolveMintReceiver(env, *receiver)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	manager := identity.NewManager(env.cfg.ParticipantDir())
	voters := make([]neuron.Voter, 0, len(rec.Participants))
	for _, p := range rec.Participants {
		id, err := manager.Load(p.SeedFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		voters = append(voters, neuron.Voter{
			Principal: id.Principal,
			Gov:       rpc.NewSuiteGovClient(env.client(id), suite.Governance),
		})
	}

	proposer := voters[0]
	neurons, err := proposer.Gov.List(ctx, proposer.Principal)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	main := neuron.MainNeuron(neurons)
	if main == nil {
		fmt.Fprintln(stderr, "Error: proposing participant has no vote-eligible neuron")
		return 1
	}

	proposalID, err := neuron.MintAndVote(ctx, env.log, proposer.Gov, main.NeuronID(), voters, to, *amount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Mint proposal %d adopted for %d units to %s\n", proposalID, *amount, to)
	return 0
}

// runBaseMint transfers freshly minted base tokens from the fixed minting
// account. Local test network only: the base ledger exempts the minting
// account from balance checks.
func runBaseMint(env *cliEnv, amount uint64, receiver string, stdout, stderr io.Writer) int {
	to, err := resolveMintReceiver(env, receiver)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ledgerPrincipal, err := crypto.DecodePrincipal(env.cfg.BaseLedger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ledger := rpc.NewLedgerClient(env.client(identity.Minting()), ledgerPrincipal)
	block, err := ledger.Transfer(context.Background(), rpc.Account{Owner: to}, amount, 0)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Minted %d units to %s at block index %d\n", amount, to, block)
	return 0
}

func resolveMintReceiver(env *cliEnv, flagValue string) (crypto.Principal, error) {
	if strings.TrimSpace(flagValue) != "" {
		return crypto.DecodePrincipal(flagValue)
	}
	owner, err := env.loadIdentity("", 0)
	if err != nil {
		return crypto.Principal{}, fmt.Errorf("resolve default receiver: %w", err)
	}
	return owner.Principal, nil
}
