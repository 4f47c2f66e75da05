package rpc

import (
	"context"

	"daoctl/crypto"
)

// WrapperClient queries the wrapper service that provisions suites. The only
// contract this tool needs is resolving the provisioned service ids for an
// executed suite-creation proposal.
type WrapperClient struct {
	c       *Client
	service crypto.Principal
}

func NewWrapperClient(c *Client, service crypto.Principal) *WrapperClient {
	return &WrapperClient{c: c, service: service}
}

type deployedSuiteArg struct {
	ProposalID uint64 `json:"proposalId"`
}

type deployedSuiteResult struct {
	Suite *SuiteServices `json:"suite"`
}

// DeployedSuite returns the provisioned suite for the proposal, or nil while
// provisioning has not completed. A not-yet-provisioned proposal is reported
// by the wrapper as an explicit rejection, which callers poll through.
func (w *WrapperClient) DeployedSuite(ctx context.Context, proposalID uint64) (*SuiteServices, error) {
	var out deployedSuiteResult
	if err := w.c.Query(ctx, w.service, "wrapper_deployedSuite", deployedSuiteArg{ProposalID: proposalID}, &out); err != nil {
		return nil, err
	}
	return out.Suite, nil
}
