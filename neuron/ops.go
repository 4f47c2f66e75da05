// Package neuron implements the generic neuron-operations layer. Every
// operation is parameterized by a ledger family (base chain or deployed
// suite): the two backends expose structurally similar governance services,
// so one code path drives both through the Governance and Ledger contracts.
package neuron

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daoctl/crypto"
	"daoctl/rpc"
)

// Governance is the family-parameterized slice of a governance service this
// layer needs. rpc.BaseGovClient and rpc.SuiteGovClient both satisfy it; the
// documented asymmetries (permission list meaning, visibility support) live
// in the implementations, not in extra call sites.
type Governance interface {
	Params(ctx context.Context) (rpc.NeuronParams, error)
	Claim(ctx context.Context, memo uint64, controller crypto.Principal) (rpc.NeuronID, error)
	AddHotkey(ctx context.Context, id rpc.NeuronID, hotkey crypto.Principal, permissions []int32) error
	Disburse(ctx context.Context, id rpc.NeuronID, to crypto.Principal, amount *uint64) (uint64, error)
	IncreaseDissolveDelay(ctx context.Context, id rpc.NeuronID, seconds uint64) error
	SetDissolving(ctx context.Context, id rpc.NeuronID, dissolving bool) error
	List(ctx context.Context, of crypto.Principal) ([]rpc.Neuron, error)
}

// VisibilityGovernance is satisfied only by the base family; suite neurons
// have no visibility flag.
type VisibilityGovernance interface {
	Governance
	SetVisibility(ctx context.Context, id rpc.NeuronID, public bool) error
}

// Ledger is the slice of a ledger service the staking flow needs.
type Ledger interface {
	Transfer(ctx context.Context, to rpc.Account, amount uint64, memo uint64) (uint64, error)
	Balance(ctx context.Context, acct rpc.Account) (uint64, error)
	Fee(ctx context.Context) (uint64, error)
}

// ErrInsufficientBalance is wrapped by InsufficientBalanceError.
var ErrInsufficientBalance = errors.New("neuron: insufficient balance")

type InsufficientBalanceError struct {
	Have uint64
	Need uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("neuron: insufficient balance: have %d, need %d minor units", e.Have, e.Need)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StakeSubaccount derives the governance deposit subaccount for a
// (controller, memo) pair. Both families use the same derivation.
func StakeSubaccount(memo uint64, controller crypto.Principal) []byte {
	h := sha256.New()
	h.Write([]byte{0x0c})
	h.Write([]byte("neuron-stake"))
	h.Write(controller.Bytes())
	var memoBytes [8]byte
	binary.BigEndian.PutUint64(memoBytes[:], memo)
	h.Write(memoBytes[:])
	return h.Sum(nil)
}

// Ops binds one family's governance and ledger clients. The ledger transfer
// that funds a new neuron targets the governance service's deposit
// subaccount, so Ops also needs the governance service principal.
type Ops struct {
	Gov        Governance
	Ledger     Ledger
	GovService crypto.Principal
	Log        *slog.Logger

	// SettleDelay is slept between the staking transfer and the claim so the
	// governance service observes the deposit. Zero in tests.
	SettleDelay time.Duration
}

func (o *Ops) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Create stakes a new neuron for the controller: it verifies the balance
// precondition, transfers amount minus fee into the deposit subaccount,
// claims the neuron, and optionally sets an initial dissolve delay. The
// precondition is checked before any transfer; on failure zero value-moving
// calls have been issued. A memo of zero selects the next free memo based on
// the controller's existing neuron count.
func (o *Ops) Create(ctx context.Context, controller crypto.Principal, amount, memo uint64, dissolveDelaySecs uint64) (rpc.NeuronID, error) {
	params, err := o.Gov.Params(ctx)
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("fetch neuron params: %w", err)
	}
	fee, err := o.Ledger.Fee(ctx)
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("fetch transfer fee: %w", err)
	}
	if amount < params.MinimumStake+fee {
		return rpc.NeuronID{}, &InsufficientBalanceError{Have: amount, Need: params.MinimumStake + fee}
	}
	balance, err := o.Ledger.Balance(ctx, rpc.Account{Owner: controller})
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("fetch balance: %w", err)
	}
	if balance < amount {
		return rpc.NeuronID{}, &InsufficientBalanceError{Have: balance, Need: amount}
	}

	if memo == 0 {
		existing, err := o.Gov.List(ctx, controller)
		if err != nil {
			return rpc.NeuronID{}, fmt.Errorf("list existing neurons: %w", err)
		}
		memo = uint64(len(existing)) + 1
	}

	subaccount := StakeSubaccount(memo, controller)
	o.logger().Info("staking neuron deposit",
		"controller", controller.String(), "amount", amount-fee, "memo", memo)
	if _, err := o.Ledger.Transfer(ctx, rpc.Account{Owner: o.GovService, Subaccount: subaccount}, amount-fee, memo); err != nil {
		return rpc.NeuronID{}, fmt.Errorf("stake transfer: %w", err)
	}
	if o.SettleDelay > 0 {
		time.Sleep(o.SettleDelay)
	}

	id, err := o.Gov.Claim(ctx, memo, controller)
	if err != nil {
		return rpc.NeuronID{}, fmt.Errorf("claim neuron: %w", err)
	}
	if dissolveDelaySecs > 0 {
		if err := o.Gov.IncreaseDissolveDelay(ctx, id, dissolveDelaySecs); err != nil {
			return id, fmt.Errorf("set dissolve delay: %w", err)
		}
	}
	return id, nil
}

// AddHotkey grants the hotkey control over the neuron. For the suite family
// the permission list is the explicit bitmask to grant (defaulted when
// empty); base hotkeys receive owner-equivalent control and the list is
// ignored.
func (o *Ops) AddHotkey(ctx context.Context, id rpc.NeuronID, hotkey crypto.Principal, permissions []int32) error {
	return o.Gov.AddHotkey(ctx, id, hotkey, permissions)
}

// Disburse pays out a dissolved neuron's stake to the receiver. A nil amount
// disburses the full stake. Dissolve eligibility is enforced by the remote
// service; its rejection is surfaced verbatim.
func (o *Ops) Disburse(ctx context.Context, id rpc.NeuronID, receiver crypto.Principal, amount *uint64) (uint64, error) {
	return o.Gov.Disburse(ctx, id, receiver, amount)
}

// IncreaseDissolveDelay adds seconds to the neuron's dissolve delay. The
// operation is additive and safe to repeat.
func (o *Ops) IncreaseDissolveDelay(ctx context.Context, id rpc.NeuronID, seconds uint64) error {
	return o.Gov.IncreaseDissolveDelay(ctx, id, seconds)
}

// SetDissolving starts or stops dissolving. The dissolve state machine is
// owned by the remote service; this only drives it.
func (o *Ops) SetDissolving(ctx context.Context, id rpc.NeuronID, dissolving bool) error {
	return o.Gov.SetDissolving(ctx, id, dissolving)
}

// ErrNoVisibility is returned when visibility is toggled for a family whose
// neurons carry no visibility flag.
var ErrNoVisibility = errors.New("neuron: visibility not supported for this neuron family")

// SetVisibility marks a base neuron public or private. Suite neurons have no
// visibility flag; for those the call fails with ErrNoVisibility before any
// request is issued.
func (o *Ops) SetVisibility(ctx context.Context, id rpc.NeuronID, public bool) error {
	vg, ok := o.Gov.(VisibilityGovernance)
	if !ok {
		return ErrNoVisibility
	}
	return vg.SetVisibility(ctx, id, public)
}

// List returns the principal's neurons sorted by dissolve delay ascending,
// then stake descending.
func (o *Ops) List(ctx context.Context, of crypto.Principal) ([]rpc.Neuron, error) {
	neurons, err := o.Gov.List(ctx, of)
	if err != nil {
		return nil, err
	}
	SortNeurons(neurons)
	return neurons, nil
}

// Balance reads the family ledger balance for the principal.
func (o *Ops) Balance(ctx context.Context, of crypto.Principal, subaccount []byte) (uint64, error) {
	return o.Ledger.Balance(ctx, rpc.Account{Owner: of, Subaccount: subaccount})
}
