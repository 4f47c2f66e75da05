package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"daoctl/config"
	"daoctl/deploy"
)

func runDeployCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	paramsPath := fs.String("params", "", "suite parameter YAML (default: from configuration)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}

	path := strings.TrimSpace(*paramsPath)
	if path == "" {
		path = env.cfg.SuiteParamsFile
	}
	params, err := config.LoadSuiteParams(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	owner, err := env.loadIdentity("", 0)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	orch, err := deploy.New(env.cfg, params, owner, env.log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Deployment stalled in state %s\n", orch.State())
		return 1
	}

	fmt.Fprintf(stdout, "Suite deployed. Record written to %s\n", env.cfg.RecordPath())
	writeJSON(stdout, rec)
	return 0
}
