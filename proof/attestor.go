package proof

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	// Attestor signs proof hash chains. The relay refuses to build proofs
	// without one, an unsigned proof is not worth submitting.
	Attestor interface {
		Address() common.Address
		Attest(sigHash []byte) ([]byte, error)
	}

	// SecpAttestor signs with a plain secp256k1 key, the same scheme the
	// ledger uses for transactions so the anchor contract can ecrecover the
	// signer address.
	SecpAttestor struct {
		key *ecdsa.PrivateKey
	}
)

func NewSecpAttestor(key *ecdsa.PrivateKey) (*SecpAttestor, error) {
	if key == nil {
		return nil, fmt.Errorf("attestation key is nil")
	}
	return &SecpAttestor{key: key}, nil
}

// GenerateAttestor creates an attestor with a fresh random key.
func GenerateAttestor() (*SecpAttestor, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating attestation key: %w", err)
	}
	return &SecpAttestor{key: key}, nil
}

func (a *SecpAttestor) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

func (a *SecpAttestor) Attest(sigHash []byte) ([]byte, error) {
	if len(sigHash) != common.HashLength {
		return nil, fmt.Errorf("attestation input must be a %d byte digest", common.HashLength)
	}
	sig, err := crypto.Sign(sigHash, a.key)
	if err != nil {
		return nil, fmt.Errorf("signing proof digest: %w", err)
	}
	return sig, nil
}
