// Package proof assembles and checks the hash chain that links a derived
// ledger transaction to the commitment stored on the base ledger. The chain
// folds, in fixed order, the previous commitment, the transaction digest,
// the post execution state, the outgoing calls with their results and the
// final state into one digest which the attestor signs.
package proof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/types"
)

var ErrNoAttestor = errors.New("attestor is not available")

// Build assembles the proof for one executed candidate and signs it. Fails
// closed: no attestor, no proof.
func Build(attestor Attestor, prev *types.Commitment, rawTx []byte, postState common.Hash, calls []*types.OutgoingCall, finalState common.Hash) (*types.Proof, error) {
	if attestor == nil {
		return nil, ErrNoAttestor
	}
	if err := prev.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid previous commitment: %w", err)
	}
	if len(rawTx) == 0 {
		return nil, fmt.Errorf("raw transaction is empty")
	}
	for i, call := range calls {
		if err := call.IsValid(); err != nil {
			return nil, fmt.Errorf("invalid outgoing call %d: %w", i, err)
		}
	}

	p := &types.Proof{
		PreviousCommitment: prev.Clone(),
		TxDigest:           crypto.Keccak256(rawTx),
		PostStateDigest:    postState.Bytes(),
		CallsDigest:        types.CallsDigest(calls),
		ResultsDigest:      types.ResultsDigest(calls),
		FinalStateDigest:   finalState.Bytes(),
	}
	sigHash, err := p.SigHash()
	if err != nil {
		return nil, fmt.Errorf("computing proof digest: %w", err)
	}
	if p.Attestation, err = attestor.Attest(sigHash); err != nil {
		return nil, fmt.Errorf("attesting proof: %w", err)
	}
	return p, nil
}

// RecoverSigner returns the address that produced the proof's attestation.
func RecoverSigner(p *types.Proof) (common.Address, error) {
	if err := p.IsValid(); err != nil {
		return common.Address{}, err
	}
	if len(p.Attestation) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("attestation must be %d bytes, got %d", crypto.SignatureLength, len(p.Attestation))
	}
	sigHash, err := p.SigHash()
	if err != nil {
		return common.Address{}, fmt.Errorf("computing proof digest: %w", err)
	}
	pub, err := crypto.SigToPub(sigHash, p.Attestation)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering attestation signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyAttestation checks that the proof was signed by attestor.
func VerifyAttestation(p *types.Proof, attestor common.Address) error {
	signer, err := RecoverSigner(p)
	if err != nil {
		return err
	}
	if signer != attestor {
		return fmt.Errorf("attestation signed by %s, expected %s", signer.Hex(), attestor.Hex())
	}
	return nil
}

// VerifyChain recomputes every digest of the hash chain from the raw inputs
// and checks them against the proof. The watcher runs this before replaying
// a submission.
func VerifyChain(p *types.Proof, prev *types.Commitment, rawTx []byte, calls []*types.OutgoingCall, finalState common.Hash) error {
	if err := p.IsValid(); err != nil {
		return err
	}
	if err := p.PreviousCommitment.AssertEqual(prev); err != nil {
		return fmt.Errorf("previous commitment mismatch: %w", err)
	}
	if !bytes.Equal(crypto.Keccak256(rawTx), p.TxDigest) {
		return fmt.Errorf("tx digest mismatch")
	}
	if !bytes.Equal(types.CallsDigest(calls), p.CallsDigest) {
		return fmt.Errorf("calls digest mismatch")
	}
	if !bytes.Equal(types.ResultsDigest(calls), p.ResultsDigest) {
		return fmt.Errorf("results digest mismatch")
	}
	if !bytes.Equal(finalState.Bytes(), p.FinalStateDigest) {
		return fmt.Errorf("final state digest mismatch")
	}
	return nil
}
