package rpc

import (
	"context"
	"encoding/hex"

	"daoctl/crypto"
)

// SwapClient drives a deployed suite's swap service. Lifecycle and derived
// state are read-only; ticket creation, refresh and finalize are updates.
type SwapClient struct {
	c       *Client
	service crypto.Principal
}

func NewSwapClient(c *Client, service crypto.Principal) *SwapClient {
	return &SwapClient{c: c, service: service}
}

// Service returns the swap's principal; ledger transfers for participation
// target its collection subaccounts.
func (s *SwapClient) Service() crypto.Principal { return s.service }

type lifecycleResult struct {
	Lifecycle Lifecycle `json:"lifecycle"`
}

func (s *SwapClient) Lifecycle(ctx context.Context) (Lifecycle, error) {
	var out lifecycleResult
	if err := s.c.Query(ctx, s.service, "swap_lifecycle", nil, &out); err != nil {
		return LifecycleUnspecified, err
	}
	return out.Lifecycle, nil
}

func (s *SwapClient) DerivedState(ctx context.Context) (DerivedState, error) {
	var out DerivedState
	err := s.c.Query(ctx, s.service, "swap_derivedState", nil, &out)
	return out, err
}

type openTicketResult struct {
	Ticket *Ticket `json:"ticket"`
}

// OpenTicket returns the caller's outstanding sale ticket, or nil when none
// exists.
func (s *SwapClient) OpenTicket(ctx context.Context, participant crypto.Principal) (*Ticket, error) {
	arg := struct {
		Participant string `json:"participant"`
	}{Participant: participant.String()}
	var out openTicketResult
	if err := s.c.Query(ctx, s.service, "swap_openTicket", arg, &out); err != nil {
		return nil, err
	}
	return out.Ticket, nil
}

type newTicketArg struct {
	Amount     uint64 `json:"amount"`
	Subaccount string `json:"subaccount,omitempty"`
}

type newTicketResult struct {
	Ticket *Ticket `json:"ticket"`
}

// NewTicket reserves a participation slot for the signing participant.
func (s *SwapClient) NewTicket(ctx context.Context, amount uint64, subaccount []byte) (*Ticket, error) {
	arg := newTicketArg{Amount: amount}
	if len(subaccount) > 0 {
		arg.Subaccount = hex.EncodeToString(subaccount)
	}
	var out newTicketResult
	if err := s.c.Update(ctx, s.service, "swap_newTicket", arg, &out); err != nil {
		return nil, err
	}
	return out.Ticket, nil
}

// RefreshBuyer notifies the swap that the participant's funds have landed so
// the participation is registered against the ticket.
func (s *SwapClient) RefreshBuyer(ctx context.Context, buyer crypto.Principal) (RefreshResult, error) {
	arg := struct {
		Buyer string `json:"buyer"`
	}{Buyer: buyer.String()}
	var out RefreshResult
	err := s.c.Update(ctx, s.service, "swap_refreshBuyer", arg, &out)
	return out, err
}

type finalizeResult struct {
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Finalize asks the swap to distribute proceeds and neurons. The lifecycle
// transition to Committed is confirmed separately by polling.
func (s *SwapClient) Finalize(ctx context.Context) (string, error) {
	var out finalizeResult
	if err := s.c.Update(ctx, s.service, "swap_finalize", nil, &out); err != nil {
		return "", err
	}
	return out.ErrorMessage, nil
}
