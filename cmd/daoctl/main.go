package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"daoctl/cmd/internal/passphrase"
	"daoctl/config"
	"daoctl/crypto"
	"daoctl/deploy"
	"daoctl/identity"
	"daoctl/neuron"
	"daoctl/observability/logging"
	"daoctl/rpc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// applyGlobalFlags consumes the global flags preceding the command.
func applyGlobalFlags(args []string) (rest []string, configPath string, verbose bool, err error) {
	configPath = "daoctl.toml"
	rest = args
	for len(rest) > 0 {
		switch {
		case rest[0] == "--config" || rest[0] == "-config":
			if len(rest) < 2 {
				return nil, "", false, fmt.Errorf("--config requires a path")
			}
			configPath = rest[1]
			rest = rest[2:]
		case strings.HasPrefix(rest[0], "--config="):
			configPath = strings.TrimPrefix(rest[0], "--config=")
			rest = rest[1:]
		case rest[0] == "--verbose" || rest[0] == "-v":
			verbose = true
			rest = rest[1:]
		default:
			return rest, configPath, verbose, nil
		}
	}
	return rest, configPath, verbose, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	rest, configPath, verbose, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(rest) < 1 {
		printUsage(stderr)
		return 1
	}
	command := rest[0]
	cmdArgs := rest[1:]

	if command == "help" || command == "--help" || command == "-h" {
		printUsage(stdout)
		return 0
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.Setup("daoctl", level, stderr)

	env, err := loadEnv(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch command {
	case "deploy":
		return runDeployCommand(env, cmdArgs, stdout, stderr)
	case "create-neuron":
		return runCreateNeuronCommand(env, cmdArgs, stdout, stderr)
	case "add-hotkey":
		return runAddHotkeyCommand(env, cmdArgs, stdout, stderr)
	case "list-neurons":
		return runListNeuronsCommand(env, cmdArgs, stdout, stderr)
	case "get-neuron-info":
		return runGetNeuronInfoCommand(env, cmdArgs, stdout, stderr)
	case "disburse-neuron":
		return runDisburseNeuronCommand(env, cmdArgs, stdout, stderr)
	case "increase-dissolve-delay":
		return runIncreaseDissolveDelayCommand(env, cmdArgs, stdout, stderr)
	case "set-dissolving":
		return runSetDissolvingCommand(env, cmdArgs, stdout, stderr)
	case "set-visibility":
		return runSetVisibilityCommand(env, cmdArgs, stdout, stderr)
	case "get-balance":
		return runGetBalanceCommand(env, cmdArgs, stdout, stderr)
	case "mint":
		return runMintCommand(env, cmdArgs, stdout, stderr)
	case "check-deployed":
		return runCheckDeployedCommand(env, cmdArgs, stdout, stderr)
	case "generate-owner":
		return runGenerateOwnerCommand(env, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: daoctl [--config <path>] [--verbose] <command> [flags]

Commands:
  deploy                   Deploy a full suite on the local test network
  check-deployed           Show the recorded deployment, if any
  generate-owner           Create a new owner key and write its keystore
  create-neuron            Stake a new neuron
  list-neurons             List a principal's neurons
  get-neuron-info          Show a single base neuron
  add-hotkey               Grant a hotkey control over a neuron
  increase-dissolve-delay  Lengthen a neuron's dissolve delay
  set-dissolving           Start or stop dissolving a neuron
  set-visibility           Mark a base neuron public or private
  disburse-neuron          Pay out a dissolved neuron's stake
  get-balance              Show a ledger balance
  mint                     Mint suite tokens via proposal and participant votes

Use "daoctl <command> --help" for command flags.`)
}

// cliEnv is the loaded configuration every command starts from.
type cliEnv struct {
	cfg  *config.Config
	log  *slog.Logger
	pass *passphrase.Source
}

func loadEnv(configPath string, log *slog.Logger) (*cliEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded",
		"path", configPath,
		"endpoint", cfg.RPCEndpoint,
		logging.Field("token", cfg.AuthToken()))
	return &cliEnv{cfg: cfg, log: log, pass: passphrase.NewSource(cfg.OwnerPassphraseEnv)}, nil
}

func (e *cliEnv) client(id *identity.Identity) *rpc.Client {
	opts := []rpc.Option{rpc.WithAuthToken(e.cfg.AuthToken())}
	if id != nil {
		opts = append(opts, rpc.WithSigner(id.Key))
	}
	return rpc.NewClient(e.cfg.RPCEndpoint, opts...)
}

// loadIdentity resolves the signing identity a command acts as: a generated
// participant by index, an explicit seed or keystore path, or the configured
// owner by default.
func (e *cliEnv) loadIdentity(identityPath string, participant int) (*identity.Identity, error) {
	if participant > 0 {
		return identity.NewManager(e.cfg.ParticipantDir()).Participant(participant)
	}
	path := identityPath
	if path == "" {
		path = e.cfg.OwnerKeystorePath
	}
	id, err := identity.LoadOwner(path, e.cfg.OwnerPassphrase())
	if err != nil && e.cfg.OwnerPassphrase() == "" {
		// A locked keystore without the passphrase env set: prompt once.
		if secret, perr := e.pass.Get(); perr == nil {
			return identity.LoadOwner(path, secret)
		}
	}
	return id, err
}

// familyOps binds the neuron operations layer to one family. The suite
// family resolves its service principals from the deployment record.
func (e *cliEnv) familyOps(family string, id *identity.Identity) (*neuron.Ops, error) {
	client := e.client(id)
	switch family {
	case "base":
		gov, err := crypto.DecodePrincipal(e.cfg.BaseGovernance)
		if err != nil {
			return nil, fmt.Errorf("base governance principal: %w", err)
		}
		ledger, err := crypto.DecodePrincipal(e.cfg.BaseLedger)
		if err != nil {
			return nil, fmt.Errorf("base ledger principal: %w", err)
		}
		return &neuron.Ops{
			Gov:        rpc.NewBaseGovClient(client, gov),
			Ledger:     rpc.NewLedgerClient(client, ledger),
			GovService: gov,
			Log:        e.log,
		}, nil
	case "suite":
		suite, err := e.deployedSuite()
		if err != nil {
			return nil, err
		}
		return &neuron.Ops{
			Gov:        rpc.NewSuiteGovClient(client, suite.Governance),
			Ledger:     rpc.NewLedgerClient(client, suite.Ledger),
			GovService: suite.Governance,
			Log:        e.log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown neuron family %q, want base or suite", family)
	}
}

// deploymentRecord loads the record written by a successful deploy run.
func (e *cliEnv) deploymentRecord() (*deploy.DeploymentRecord, error) {
	rec, err := deploy.ReadRecord(e.cfg.RecordPath())
	if err != nil {
		return nil, fmt.Errorf("no deployment record found, run deploy first: %w", err)
	}
	return rec, nil
}

// deployedSuite resolves the deployed suite's service principals from the
// deployment record.
func (e *cliEnv) deployedSuite() (*rpc.SuiteServices, error) {
	rec, err := e.deploymentRecord()
	if err != nil {
		return nil, err
	}
	return &rec.Suite, nil
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
