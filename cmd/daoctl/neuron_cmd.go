package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"daoctl/crypto"
	"daoctl/neuron"
	"daoctl/rpc"
)

// identityFlags are the signer-selection flags shared by every command that
// issues signed calls.
type identityFlags struct {
	path        string
	participant int
}

func addIdentityFlags(fs *flag.FlagSet) *identityFlags {
	f := &identityFlags{}
	fs.StringVar(&f.path, "identity", "", "keystore or seed file to sign with (default: configured owner)")
	fs.IntVar(&f.participant, "participant", 0, "sign as generated participant <n> instead")
	return f
}

func addFamilyFlag(fs *flag.FlagSet) *string {
	return fs.String("family", "base", "neuron family: base or suite")
}

// neuronRef parses the family-specific neuron reference flags: base neurons
// by numeric id, suite neurons by staking subaccount.
func neuronRef(family string, id uint64, subaccount string) (rpc.NeuronID, error) {
	switch family {
	case "base":
		if id == 0 {
			return rpc.NeuronID{}, fmt.Errorf("--neuron is required for base neurons")
		}
		return rpc.NeuronID{ID: id}, nil
	case "suite":
		if strings.TrimSpace(subaccount) == "" {
			return rpc.NeuronID{}, fmt.Errorf("--subaccount is required for suite neurons")
		}
		raw, err := hex.DecodeString(subaccount)
		if err != nil {
			return rpc.NeuronID{}, fmt.Errorf("--subaccount is not hex: %v", err)
		}
		return rpc.NeuronID{Subaccount: raw}, nil
	default:
		return rpc.NeuronID{}, fmt.Errorf("unknown neuron family %q, want base or suite", family)
	}
}

func runCreateNeuronCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create-neuron", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	amount := fs.Uint64("amount", 0, "stake amount in minor units (covers minimum stake plus fee)")
	memo := fs.Uint64("memo", 0, "staking memo (default: next free memo)")
	delay := fs.Uint64("dissolve-delay", 0, "initial dissolve delay in seconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}

	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops.SettleDelay = 2 * time.Second

	ref, err := ops.Create(context.Background(), id.Principal, *amount, *memo, *delay)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printNeuronRef(stdout, "Neuron created", ref)
	return 0
}

func runAddHotkeyCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("add-hotkey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	neuronID := fs.Uint64("neuron", 0, "base neuron id")
	subaccount := fs.String("subaccount", "", "suite neuron staking subaccount (hex)")
	hotkey := fs.String("hotkey", "", "principal to grant control to")
	perms := fs.String("permissions", "", "suite permission list, comma-separated (default: submit-proposal and vote)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*hotkey) == "" {
		fmt.Fprintln(stderr, "Error: --hotkey is required")
		return 1
	}
	hk, err := crypto.DecodePrincipal(*hotkey)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid hotkey principal: %v\n", err)
		return 1
	}
	ref, err := neuronRef(*family, *neuronID, *subaccount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var permissions []int32
	if strings.TrimSpace(*perms) != "" {
		for _, part := range strings.Split(*perms, ",") {
			v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
			if err != nil {
				fmt.Fprintf(stderr, "Error: invalid permission %q\n", part)
				return 1
			}
			permissions = append(permissions, int32(v))
		}
	}

	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := ops.AddHotkey(context.Background(), ref, hk, permissions); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Hotkey %s added\n", hk)
	return 0
}

func runListNeuronsCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list-neurons", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	of := fs.String("of", "", "principal to list neurons for (default: the signing identity)")
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
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	neurons, err := ops.List(context.Background(), owner)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, neurons)
	return 0
}

func runGetNeuronInfoCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get-neuron-info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	neuronID := fs.Uint64("neuron", 0, "base neuron id (default: the recorded owner neuron)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *neuronID == 0 {
		rec, err := env.deploymentRecord()
		if err != nil {
			fmt.Fprintf(stderr, "Error: --neuron is required when there is no deployment record (%v)\n", err)
			return 1
		}
		*neuronID = rec.OwnerNeuronID
	}
	gov, err := crypto.DecodePrincipal(env.cfg.BaseGovernance)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	client := rpc.NewBaseGovClient(env.client(nil), gov)
	info, err := client.Get(context.Background(), rpc.NeuronID{ID: *neuronID})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, info)
	return 0
}

func runDisburseNeuronCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("disburse-neuron", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	neuronID := fs.Uint64("neuron", 0, "base neuron id (default: shortest dissolve delay)")
	subaccount := fs.String("subaccount", "", "suite neuron staking subaccount (hex)")
	to := fs.String("to", "", "receiver principal (default: the signing identity)")
	amount := fs.Uint64("amount", 0, "amount in minor units (default: full stake)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var ref rpc.NeuronID
	if *neuronID == 0 && strings.TrimSpace(*subaccount) == "" {
		// No explicit reference: disburse the shortest-delay neuron.
		neurons, err := ops.List(ctx, id.Principal)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		target := neuron.DisburseTarget(neurons)
		if target == nil {
			fmt.Fprintln(stderr, "Error: no neurons to disburse")
			return 1
		}
		ref = target.NeuronID()
	} else if ref, err = neuronRef(*family, *neuronID, *subaccount); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	receiver := id.Principal
	if strings.TrimSpace(*to) != "" {
		if receiver, err = crypto.DecodePrincipal(*to); err != nil {
			fmt.Fprintf(stderr, "Error: invalid receiver principal: %v\n", err)
			return 1
		}
	}
	var amt *uint64
	if *amount > 0 {
		amt = amount
	}
	block, err := ops.Disburse(ctx, ref, receiver, amt)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Disbursed to %s at block index %d\n", receiver, block)
	return 0
}

func runIncreaseDissolveDelayCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("increase-dissolve-delay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	neuronID := fs.Uint64("neuron", 0, "base neuron id")
	subaccount := fs.String("subaccount", "", "suite neuron staking subaccount (hex)")
	seconds := fs.Uint64("seconds", 0, "seconds to add to the dissolve delay")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *seconds == 0 {
		fmt.Fprintln(stderr, "Error: --seconds is required")
		return 1
	}
	ref, err := neuronRef(*family, *neuronID, *subaccount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := ops.IncreaseDissolveDelay(context.Background(), ref, *seconds); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Dissolve delay increased by %d seconds\n", *seconds)
	return 0
}

func runSetDissolvingCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set-dissolving", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	neuronID := fs.Uint64("neuron", 0, "base neuron id")
	subaccount := fs.String("subaccount", "", "suite neuron staking subaccount (hex)")
	start := fs.Bool("start", false, "start dissolving")
	stop := fs.Bool("stop", false, "stop dissolving")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *start == *stop {
		fmt.Fprintln(stderr, "Error: exactly one of --start or --stop is required")
		return 1
	}
	ref, err := neuronRef(*family, *neuronID, *subaccount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := ops.SetDissolving(context.Background(), ref, *start); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *start {
		fmt.Fprintln(stdout, "Neuron is dissolving")
	} else {
		fmt.Fprintln(stdout, "Neuron dissolve stopped")
	}
	return 0
}

func runSetVisibilityCommand(env *cliEnv, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set-visibility", flag.ContinueOnError)
	fs.SetOutput(stderr)
	family := addFamilyFlag(fs)
	idf := addIdentityFlags(fs)
	neuronID := fs.Uint64("neuron", 0, "base neuron id")
	subaccount := fs.String("subaccount", "", "suite neuron staking subaccount (hex)")
	public := fs.Bool("public", false, "mark the neuron public")
	private := fs.Bool("private", false, "mark the neuron private")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *public == *private {
		fmt.Fprintln(stderr, "Error: exactly one of --public or --private is required")
		return 1
	}
	ref, err := neuronRef(*family, *neuronID, *subaccount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	id, err := env.loadIdentity(idf.path, idf.participant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ops, err := env.familyOps(*family, id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := ops.SetVisibility(context.Background(), ref, *public); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *public {
		fmt.Fprintln(stdout, "Neuron is now public")
	} else {
		fmt.Fprintln(stdout, "Neuron is now private")
	}
	return 0
}

func printNeuronRef(w io.Writer, prefix string, ref rpc.NeuronID) {
	if len(ref.Subaccount) > 0 {
		fmt.Fprintf(w, "%s: subaccount %s\n", prefix, hex.EncodeToString(ref.Subaccount))
		return
	}
	fmt.Fprintf(w, "%s: id %d\n", prefix, ref.ID)
}
