package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

/*
CandidateCall describes a transaction to be traced before anything is
committed: sender, target (nil for contract creation), value, gas ceiling
and input data. The description is sufficient to re-execute the call
against live state, no signature needed.
*/
type CandidateCall struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Gas   uint64
	Data  []byte
}

func (x CandidateCall) IsValid() error {
	if x.Value != nil && x.Value.Sign() < 0 {
		return fmt.Errorf("call value is negative")
	}
	return nil
}

func (x CandidateCall) String() string {
	to := "create"
	if x.To != nil {
		to = x.To.Hex()
	}
	return fmt.Sprintf("call{from=%s, to=%s, value=%v, gas=%d}", x.From.Hex(), to, x.Value, x.Gas)
}
