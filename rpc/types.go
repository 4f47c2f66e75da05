package rpc

import (
	"encoding/hex"

	"daoctl/crypto"
)

// Account addresses a ledger balance: an owning principal plus an optional
// 32-byte subaccount.
type Account struct {
	Owner      crypto.Principal `json:"owner"`
	Subaccount []byte           `json:"subaccount,omitempty"`
}

type wireAccount struct {
	Owner      string `json:"owner"`
	Subaccount string `json:"subaccount,omitempty"`
}

func (a Account) wire() wireAccount {
	w := wireAccount{Owner: a.Owner.String()}
	if len(a.Subaccount) > 0 {
		w.Subaccount = hex.EncodeToString(a.Subaccount)
	}
	return w
}

// NeuronID identifies a neuron in either family: base neurons carry a numeric
// id, suite neurons are addressed by their staking subaccount.
type NeuronID struct {
	ID         uint64 `json:"id,omitempty"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

// IsZero reports whether the reference is unset.
func (n NeuronID) IsZero() bool { return n.ID == 0 && len(n.Subaccount) == 0 }

// NeuronParams are the remote-owned neuron constants of a governance service.
// They are fetched, never hardcoded.
type NeuronParams struct {
	MinimumStake        uint64 `json:"minimumStake"`
	MaxDissolveDelaySec uint64 `json:"maxDissolveDelaySecs"`
}

// Neuron is a locked-stake record as reported by a governance service. The
// dissolve state is remote-owned: exactly one of DissolveDelaySecs (not
// dissolving) or WhenDissolvedSecs (dissolving, or dissolved once elapsed) is
// set.
type Neuron struct {
	ID                uint64            `json:"id,omitempty"`
	Subaccount        string            `json:"subaccount,omitempty"`
	Controller        string            `json:"controller"`
	Stake             uint64            `json:"stake"`
	DissolveDelaySecs *uint64           `json:"dissolveDelaySecs,omitempty"`
	WhenDissolvedSecs *uint64           `json:"whenDissolvedSecs,omitempty"`
	Hotkeys           []string          `json:"hotkeys,omitempty"`
	Permissions       map[string][]int32 `json:"permissions,omitempty"`
	Public            bool              `json:"public,omitempty"`
}

// NeuronID returns the reference for this neuron, whichever family it is from.
func (n Neuron) NeuronID() NeuronID {
	ref := NeuronID{ID: n.ID}
	if n.Subaccount != "" {
		if sub, err := hex.DecodeString(n.Subaccount); err == nil {
			ref.Subaccount = sub
		}
	}
	return ref
}

// Dissolving reports whether the neuron is in the Dissolving sub-state.
func (n Neuron) Dissolving() bool { return n.WhenDissolvedSecs != nil }

// SuiteServices are the provisioned service principals of a deployed suite.
type SuiteServices struct {
	Governance crypto.Principal `json:"governance"`
	Ledger     crypto.Principal `json:"ledger"`
	Swap       crypto.Principal `json:"swap"`
	Root       crypto.Principal `json:"root"`
	Index      crypto.Principal `json:"index"`
}

// Lifecycle is the remote swap lifecycle, read-only for this tool.
type Lifecycle int

const (
	LifecycleUnspecified Lifecycle = 0
	LifecyclePending     Lifecycle = 1
	LifecycleOpen        Lifecycle = 2
	LifecycleCommitted   Lifecycle = 3
	LifecycleAborted     Lifecycle = 4
)

func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "Pending"
	case LifecycleOpen:
		return "Open"
	case LifecycleCommitted:
		return "Committed"
	case LifecycleAborted:
		return "Aborted"
	default:
		return "Unspecified"
	}
}

// DerivedState is the swap's aggregate participation, polled while awaiting
// the commitment threshold.
type DerivedState struct {
	ParticipantCount uint64 `json:"participantCount"`
	Committed        uint64 `json:"committed"`
}

// Ticket is a per-participant sale reservation.
type Ticket struct {
	ID     uint64 `json:"id"`
	Amount uint64 `json:"amount"`
}

// RefreshResult reports what the swap recognised after a notify call.
type RefreshResult struct {
	Accepted      uint64 `json:"accepted"`
	LedgerBalance uint64 `json:"ledgerBalance"`
}

// Suite neuron permission types, as enumerated by the suite governance
// service itself.
const (
	PermissionConfigureDissolveState int32 = 1
	PermissionManagePrincipals       int32 = 2
	PermissionSubmitProposal         int32 = 3
	PermissionVote                   int32 = 4
	PermissionDisburse               int32 = 5
)

// DefaultHotkeyPermissions is applied when the caller does not supply an
// explicit permission list for a suite hotkey.
var DefaultHotkeyPermissions = []int32{PermissionSubmitProposal, PermissionVote}
