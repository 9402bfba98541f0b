package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrProofIsNil            = errors.New("proof is nil")
	ErrPrevCommitmentIsNil   = errors.New("previous commitment is nil")
	ErrTxDigestIsNil         = errors.New("transaction digest is nil")
	ErrPostStateDigestIsNil  = errors.New("post execution state digest is nil")
	ErrCallsDigestIsNil      = errors.New("calls digest is nil")
	ErrResultsDigestIsNil    = errors.New("results digest is nil")
	ErrFinalStateDigestIsNil = errors.New("final state digest is nil")
	ErrAttestationIsNil      = errors.New("attestation is nil")
)

/*
Proof is the hash chain binding a relayed transaction to the commitment
transition it causes, plus the authority attestation over the chain.
Constructed per submission attempt, never persisted beyond it.
*/
type Proof struct {
	_                  struct{}    `cbor:",toarray"`
	PreviousCommitment *Commitment `json:"previous_commitment"`
	TxDigest           []byte      `json:"tx_digest,omitempty"`
	PostStateDigest    []byte      `json:"post_state_digest,omitempty"`
	CallsDigest        []byte      `json:"calls_digest,omitempty"`
	ResultsDigest      []byte      `json:"results_digest,omitempty"`
	FinalStateDigest   []byte      `json:"final_state_digest,omitempty"`
	Attestation        []byte      `json:"attestation,omitempty"`
}

func (x *Proof) IsValid() error {
	if x == nil {
		return ErrProofIsNil
	}
	if err := x.PreviousCommitment.IsValid(); err != nil {
		if errors.Is(err, ErrCommitmentIsNil) {
			return ErrPrevCommitmentIsNil
		}
		return fmt.Errorf("invalid previous commitment: %w", err)
	}
	if x.TxDigest == nil {
		return ErrTxDigestIsNil
	}
	if x.PostStateDigest == nil {
		return ErrPostStateDigestIsNil
	}
	if x.CallsDigest == nil {
		return ErrCallsDigestIsNil
	}
	if x.ResultsDigest == nil {
		return ErrResultsDigestIsNil
	}
	if x.FinalStateDigest == nil {
		return ErrFinalStateDigestIsNil
	}
	if x.Attestation == nil {
		return ErrAttestationIsNil
	}
	return nil
}

/*
SigBytes serializes the proof fields for signing. The field order is fixed
and must not be permuted, the accepting contract re-derives the exact same
byte string.
*/
func (x *Proof) SigBytes() ([]byte, error) {
	if x == nil {
		return nil, ErrProofIsNil
	}
	if x.PreviousCommitment == nil {
		return nil, ErrPrevCommitmentIsNil
	}
	var b bytes.Buffer
	b.Write(x.PreviousCommitment.Bytes())
	b.Write(x.TxDigest)
	b.Write(x.PostStateDigest)
	b.Write(x.CallsDigest)
	b.Write(x.ResultsDigest)
	b.Write(x.FinalStateDigest)
	return b.Bytes(), nil
}

// SigHash is the attested message: keccak256 over SigBytes.
func (x *Proof) SigHash() ([]byte, error) {
	sb, err := x.SigBytes()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(sb), nil
}

func (x *Proof) String() string {
	if x == nil {
		return "proof is nil"
	}
	return fmt.Sprintf("prev: {%s} tx: %X post: %X calls: %X results: %X final: %X",
		x.PreviousCommitment, x.TxDigest, x.PostStateDigest, x.CallsDigest, x.ResultsDigest, x.FinalStateDigest)
}
