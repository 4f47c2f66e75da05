package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"daoctl/crypto"
	"daoctl/observability/logging"
)

// runGenerateOwnerCommand creates a fresh secp256k1 owner key and writes it
// as an Ethereum v3 keystore, protected by the passphrase from the configured
// environment variable or an interactive prompt.
func runGenerateOwnerCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-owner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "keystore path to write (default: from configuration)")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path := strings.TrimSpace(*out)
	if path == "" {
		path = env.cfg.OwnerKeystorePath
	}
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(stderr, "Error: %s already exists, pass --force to overwrite\n", path)
		return 1
	}

	secret, err := env.pass.Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GenerateSecp256k1Key()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(path, key, secret); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	env.log.Info("owner keystore written",
		"path", path,
		"principal", key.Principal().String(),
		logging.Field("passphrase", secret))
	fmt.Fprintf(stdout, "Owner keystore written to %s\n", path)
	fmt.Fprintf(stdout, "Principal: %s\n", key.Principal())
	return 0
}
