package types

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/util"
)

var (
	ErrOutgoingCallIsNil = errors.New("outgoing call is nil")
	ErrCallValueIsNil    = errors.New("call value is nil")
)

/*
OutgoingCall is a call made by a cross-ledger execution which must be
replayed on the counterpart ledger to preserve equivalence. ResultDigest
is the digest of the return data the call is expected to produce there.
*/
type OutgoingCall struct {
	_            struct{}       `cbor:",toarray"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        *big.Int       `json:"value"`
	GasLimit     uint64         `json:"gas_limit"`
	Payload      []byte         `json:"payload,omitempty"`
	ResultDigest []byte         `json:"result_digest,omitempty"`
}

func (x *OutgoingCall) IsValid() error {
	if x == nil {
		return ErrOutgoingCallIsNil
	}
	if x.Value == nil {
		return ErrCallValueIsNil
	}
	if x.Value.Sign() < 0 {
		return fmt.Errorf("call value is negative")
	}
	return nil
}

/*
Digest binds the call identity: from, to, value (32 bytes big-endian),
gas limit (8 bytes big-endian) and the digest of the payload.
*/
func (x *OutgoingCall) Digest() []byte {
	value := make([]byte, 32)
	if x.Value != nil {
		x.Value.FillBytes(value)
	}
	var b bytes.Buffer
	b.Write(x.From.Bytes())
	b.Write(x.To.Bytes())
	b.Write(value)
	b.Write(util.Uint64ToBytes(x.GasLimit))
	b.Write(crypto.Keccak256(x.Payload))
	return crypto.Keccak256(b.Bytes())
}

func (x *OutgoingCall) String() string {
	if x == nil {
		return "outgoing call is nil"
	}
	return fmt.Sprintf("%s->%s value: %v payload: %X", x.From.Hex(), x.To.Hex(), x.Value, x.Payload)
}

/*
EmptySeqDigest returns the digest of the canonical empty sequence, ie the
keccak256 hash of zero bytes. Call and result digests of a transaction
with no outgoing calls equal this value, the accepting contract relies on
the same constant.
*/
func EmptySeqDigest() []byte {
	return crypto.Keccak256()
}

// CallsDigest chains the digests of the calls in sequence order.
func CallsDigest(calls []*OutgoingCall) []byte {
	var b bytes.Buffer
	for _, c := range calls {
		b.Write(c.Digest())
	}
	return crypto.Keccak256(b.Bytes())
}

// ResultsDigest chains the expected result digests in sequence order.
func ResultsDigest(calls []*OutgoingCall) []byte {
	var b bytes.Buffer
	for _, c := range calls {
		b.Write(c.ResultDigest)
	}
	return crypto.Keccak256(b.Bytes())
}
