package types

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func validProof() *Proof {
	return &Proof{
		PreviousCommitment: &Commitment{BlockNumber: 1, StateRoot: zeroHash},
		TxDigest:           crypto.Keccak256([]byte("tx")),
		PostStateDigest:    crypto.Keccak256([]byte("post")),
		CallsDigest:        EmptySeqDigest(),
		ResultsDigest:      EmptySeqDigest(),
		FinalStateDigest:   crypto.Keccak256([]byte("final")),
		Attestation:        []byte{1, 2, 3},
	}
}

func TestProof_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Proof)
		wantErr error
	}{
		{name: "valid", mutate: func(p *Proof) {}},
		{name: "previous commitment is nil", mutate: func(p *Proof) { p.PreviousCommitment = nil }, wantErr: ErrPrevCommitmentIsNil},
		{name: "tx digest is nil", mutate: func(p *Proof) { p.TxDigest = nil }, wantErr: ErrTxDigestIsNil},
		{name: "post state digest is nil", mutate: func(p *Proof) { p.PostStateDigest = nil }, wantErr: ErrPostStateDigestIsNil},
		{name: "calls digest is nil", mutate: func(p *Proof) { p.CallsDigest = nil }, wantErr: ErrCallsDigestIsNil},
		{name: "results digest is nil", mutate: func(p *Proof) { p.ResultsDigest = nil }, wantErr: ErrResultsDigestIsNil},
		{name: "final state digest is nil", mutate: func(p *Proof) { p.FinalStateDigest = nil }, wantErr: ErrFinalStateDigestIsNil},
		{name: "attestation is nil", mutate: func(p *Proof) { p.Attestation = nil }, wantErr: ErrAttestationIsNil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProof()
			tt.mutate(p)
			err := p.IsValid()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("proof is nil", func(t *testing.T) {
		var p *Proof
		require.ErrorIs(t, p.IsValid(), ErrProofIsNil)
	})
}

func TestProof_SigBytes(t *testing.T) {
	p := validProof()
	sb, err := p.SigBytes()
	require.NoError(t, err)

	var expected bytes.Buffer
	expected.Write(p.PreviousCommitment.Bytes())
	expected.Write(p.TxDigest)
	expected.Write(p.PostStateDigest)
	expected.Write(p.CallsDigest)
	expected.Write(p.ResultsDigest)
	expected.Write(p.FinalStateDigest)
	require.Equal(t, expected.Bytes(), sb)

	// attestation is over the chain, not part of it
	p2 := validProof()
	p2.Attestation = []byte{9, 9, 9}
	sb2, err := p2.SigBytes()
	require.NoError(t, err)
	require.Equal(t, sb, sb2)
}

func TestProof_SigHash(t *testing.T) {
	p := validProof()
	h, err := p.SigHash()
	require.NoError(t, err)
	sb, err := p.SigBytes()
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256(sb), h)

	// every field of the chain changes the attested message
	mutations := []func(p *Proof){
		func(p *Proof) { p.PreviousCommitment.BlockNumber++ },
		func(p *Proof) { p.TxDigest = crypto.Keccak256([]byte("other tx")) },
		func(p *Proof) { p.PostStateDigest = crypto.Keccak256([]byte("other post")) },
		func(p *Proof) { p.CallsDigest = crypto.Keccak256([]byte("other calls")) },
		func(p *Proof) { p.ResultsDigest = crypto.Keccak256([]byte("other results")) },
		func(p *Proof) { p.FinalStateDigest = crypto.Keccak256([]byte("other final")) },
	}
	for _, mutate := range mutations {
		m := validProof()
		mutate(m)
		mh, err := m.SigHash()
		require.NoError(t, err)
		require.NotEqual(t, h, mh)
	}
}
