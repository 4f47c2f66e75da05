package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"daoctl/crypto"
	"daoctl/rpc"
)

// runCheckDeployedCommand shows the recorded deployment and, with --verify,
// confirms the wrapper still reports the same suite for the proposal.
func runCheckDeployedCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check-deployed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verify := fs.Bool("verify", false, "confirm the record against the wrapper service")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	rec, err := env.deploymentRecord()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, rec)

	if !*verify {
		return 0
	}
	wrapperPrincipal, err := crypto.DecodePrincipal(env.cfg.Wrapper)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	wrapper := rpc.NewWrapperClient(env.client(nil), wrapperPrincipal)
	suite, err := wrapper.DeployedSuite(context.Background(), rec.ProposalID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if suite == nil || *suite != rec.Suite {
		fmt.Fprintln(stderr, "Error: wrapper reports a different suite than the record")
		return 1
	}
	fmt.Fprintln(stdout, "Record matches the wrapper's view")
	return 0
}
