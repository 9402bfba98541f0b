package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/types"
)

// ReadCommitment fetches the commitment currently stored in the anchor
// contract at addr.
func ReadCommitment(ctx context.Context, backend Backend, addr common.Address) (*types.Commitment, error) {
	data, err := contracts.PackCurrentCommitment()
	if err != nil {
		return nil, fmt.Errorf("packing call: %w", err)
	}
	res, err := backend.Call(ctx, CallMsg{To: &addr, Data: data})
	if err != nil {
		return nil, fmt.Errorf("reading commitment: %w", err)
	}
	if res.ExecErr != nil {
		return nil, fmt.Errorf("reading commitment: %s", res.RevertReason)
	}
	return contracts.UnpackCurrentCommitment(res.ReturnData)
}

// ReadAttestor fetches the attestation signer the anchor contract at addr
// accepts proofs from.
func ReadAttestor(ctx context.Context, backend Backend, addr common.Address) (common.Address, error) {
	data, err := contracts.PackAttestorQuery()
	if err != nil {
		return common.Address{}, fmt.Errorf("packing call: %w", err)
	}
	res, err := backend.Call(ctx, CallMsg{To: &addr, Data: data})
	if err != nil {
		return common.Address{}, fmt.Errorf("reading attestor: %w", err)
	}
	if res.ExecErr != nil {
		return common.Address{}, fmt.Errorf("reading attestor: %s", res.RevertReason)
	}
	return contracts.UnpackAttestorQuery(res.ReturnData)
}
