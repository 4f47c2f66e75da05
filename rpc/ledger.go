package rpc

import (
	"context"

	"daoctl/crypto"
)

// LedgerClient binds a Client to one ledger service. The base-chain ledger
// and the suite's ledger expose the same shape, so a single binding serves
// both families.
type LedgerClient struct {
	c       *Client
	service crypto.Principal
}

func NewLedgerClient(c *Client, service crypto.Principal) *LedgerClient {
	return &LedgerClient{c: c, service: service}
}

type transferArg struct {
	To     wireAccount `json:"to"`
	Amount uint64      `json:"amount"`
	Memo   uint64      `json:"memo,omitempty"`
}

type transferResult struct {
	BlockIndex uint64 `json:"blockIndex"`
}

// Transfer moves amount minor units from the signer's account to the target.
// The ledger deducts its fee on top; mint-style transfers from the minting
// account are exempt. Non-idempotent: never retried.
func (l *LedgerClient) Transfer(ctx context.Context, to Account, amount uint64, memo uint64) (uint64, error) {
	var out transferResult
	arg := transferArg{To: to.wire(), Amount: amount, Memo: memo}
	if err := l.c.Update(ctx, l.service, "ledger_transfer", arg, &out); err != nil {
		return 0, err
	}
	return out.BlockIndex, nil
}

type balanceResult struct {
	Balance uint64 `json:"balance"`
}

// Balance returns the minor-unit balance of an account.
func (l *LedgerClient) Balance(ctx context.Context, acct Account) (uint64, error) {
	var out balanceResult
	if err := l.c.Query(ctx, l.service, "ledger_balanceOf", acct.wire(), &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

type feeResult struct {
	Fee uint64 `json:"fee"`
}

// Fee returns the ledger's transfer fee in minor units.
func (l *LedgerClient) Fee(ctx context.Context) (uint64, error) {
	var out feeResult
	if err := l.c.Query(ctx, l.service, "ledger_fee", nil, &out); err != nil {
		return 0, err
	}
	return out.Fee, nil
}
