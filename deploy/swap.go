package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"daoctl/crypto"
	"daoctl/rpc"
)

// ErrInconsistentState marks remote state that contradicts what this run
// established, such as a leftover ticket reserving a different amount.
// Resolution needs an operator, not a retry.
var ErrInconsistentState = errors.New("deploy: inconsistent remote state")

// TicketConflictError reports an outstanding sale ticket whose amount does
// not match the requested participation.
type TicketConflictError struct {
	Participant crypto.Principal
	Existing    uint64
	Requested   uint64
}

func (e *TicketConflictError) Error() string {
	return fmt.Sprintf("deploy: participant %s holds an open ticket for %d but %d was requested",
		e.Participant, e.Existing, e.Requested)
}

func (e *TicketConflictError) Unwrap() error { return ErrInconsistentState }

// ParticipantSubaccount derives the swap collection subaccount for a
// participant: a length byte, the principal bytes, zero-padded to 32.
func ParticipantSubaccount(p crypto.Principal) []byte {
	sub := make([]byte, 32)
	raw := p.Bytes()
	sub[0] = byte(len(raw))
	copy(sub[1:], raw)
	return sub
}

// SwapService is the slice of the swap client Participate drives,
// authenticated as one participant.
type SwapService interface {
	Service() crypto.Principal
	Lifecycle(ctx context.Context) (rpc.Lifecycle, error)
	OpenTicket(ctx context.Context, participant crypto.Principal) (*rpc.Ticket, error)
	NewTicket(ctx context.Context, amount uint64, subaccount []byte) (*rpc.Ticket, error)
	RefreshBuyer(ctx context.Context, buyer crypto.Principal) (rpc.RefreshResult, error)
}

// Ledger is the transfer surface Participate funds the swap through.
type Ledger interface {
	Transfer(ctx context.Context, to rpc.Account, amount uint64, memo uint64) (uint64, error)
}

// Participate commits one participant for the given amount: it confirms the
// sale is open, reserves (or resumes) a ticket, moves the funds into the
// swap's collection subaccount for the participant, and notifies the swap.
// A leftover ticket for the same amount is resumed; one for a different
// amount is a TicketConflictError and nothing moves.
func Participate(ctx context.Context, log *slog.Logger, swap SwapService, ledger Ledger, participant crypto.Principal, amount uint64) error {
	lifecycle, err := swap.Lifecycle(ctx)
	if err != nil {
		return fmt.Errorf("read swap lifecycle: %w", err)
	}
	if lifecycle != rpc.LifecycleOpen {
		return fmt.Errorf("%w: swap lifecycle is %s, want Open", ErrInconsistentState, lifecycle)
	}

	ticket, err := swap.OpenTicket(ctx, participant)
	if err != nil {
		return fmt.Errorf("read open ticket: %w", err)
	}
	if ticket != nil {
		if ticket.Amount != amount {
			return &TicketConflictError{Participant: participant, Existing: ticket.Amount, Requested: amount}
		}
		log.Info("resuming open sale ticket", "participant", participant.String(), "ticket", ticket.ID)
	} else {
		ticket, err = swap.NewTicket(ctx, amount, nil)
		if err != nil {
			return fmt.Errorf("reserve sale ticket: %w", err)
		}
		if ticket == nil {
			return fmt.Errorf("%w: swap accepted the ticket request but returned none", ErrInconsistentState)
		}
	}

	to := rpc.Account{Owner: swap.Service(), Subaccount: ParticipantSubaccount(participant)}
	if _, err := ledger.Transfer(ctx, to, amount, ticket.ID); err != nil {
		return fmt.Errorf("transfer participation funds: %w", err)
	}

	result, err := swap.RefreshBuyer(ctx, participant)
	if err != nil {
		return fmt.Errorf("notify swap of participation: %w", err)
	}
	if result.Accepted < amount {
		return fmt.Errorf("%w: swap accepted %d of %d transferred units",
			ErrInconsistentState, result.Accepted, amount)
	}
	log.Info("participation registered",
		"participant", participant.String(), "amount", result.Accepted, "balance", result.LedgerBalance)
	return nil
}
