package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/util"
)

var (
	ErrCommitmentIsNil   = errors.New("commitment is nil")
	ErrStateRootIsNil    = errors.New("state root is nil")
	ErrInvalidRootLength = errors.New("state root must be 32 bytes")
)

/*
Commitment is the canonical anchor of the derived ledger state stored by
the base ledger contract: number of the last accepted derived block and
the state root it produced. Mutated only by accepted proof submissions.
*/
type Commitment struct {
	_           struct{} `cbor:",toarray"`
	BlockNumber uint64   `json:"block_number"`
	StateRoot   []byte   `json:"state_root,omitempty"`
}

func (x *Commitment) IsValid() error {
	if x == nil {
		return ErrCommitmentIsNil
	}
	if x.StateRoot == nil {
		return ErrStateRootIsNil
	}
	if len(x.StateRoot) != 32 {
		return fmt.Errorf("%w, got %d", ErrInvalidRootLength, len(x.StateRoot))
	}
	return nil
}

func (x *Commitment) AssertEqual(b *Commitment) error {
	if b == nil {
		return ErrCommitmentIsNil
	}
	if x.BlockNumber != b.BlockNumber {
		return fmt.Errorf("block number is different: %v vs %v", x.BlockNumber, b.BlockNumber)
	}
	if !bytes.Equal(x.StateRoot, b.StateRoot) {
		return fmt.Errorf("state root is different: %X vs %X", x.StateRoot, b.StateRoot)
	}
	return nil
}

func (x *Commitment) RootHash() common.Hash {
	return common.BytesToHash(x.StateRoot)
}

// Bytes serializes the commitment for hashing, block number as big-endian.
func (x *Commitment) Bytes() []byte {
	var b bytes.Buffer
	b.Write(util.Uint64ToBytes(x.BlockNumber))
	b.Write(x.StateRoot)
	return b.Bytes()
}

func (x *Commitment) Clone() *Commitment {
	if x == nil {
		return nil
	}
	return &Commitment{
		BlockNumber: x.BlockNumber,
		StateRoot:   bytes.Clone(x.StateRoot),
	}
}

func (x *Commitment) String() string {
	if x == nil {
		return "commitment is nil"
	}
	return fmt.Sprintf("block: %d root: %X", x.BlockNumber, x.StateRoot)
}
