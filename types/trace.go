package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrIntentIsNil      = errors.New("mirror intent is nil")
	ErrIntentProxyUnset = errors.New("proxy address is unassigned")
	ErrIntentPayloadNil = errors.New("payload is missing")
	ErrIntentNoGas      = errors.New("gas limit is zero")
)

/*
CallTraceNode is one frame of the nested call tree produced by executing a
transaction. Children are in execution order, the tree is deterministic
given identical ledger state.
*/
type CallTraceNode struct {
	Target   common.Address
	Children []*CallTraceNode
}

/*
Addresses flattens the tree into the set of contacted addresses,
pre-order, first contact wins (duplicates dropped).
*/
func (x *CallTraceNode) Addresses() AddressSet {
	if x == nil {
		return nil
	}
	seen := map[common.Address]struct{}{}
	var out AddressSet
	x.collect(seen, &out)
	return out
}

func (x *CallTraceNode) collect(seen map[common.Address]struct{}, out *AddressSet) {
	if _, ok := seen[x.Target]; !ok {
		seen[x.Target] = struct{}{}
		*out = append(*out, x.Target)
	}
	for _, c := range x.Children {
		c.collect(seen, out)
	}
}

// AddressSet is a deduplicated collection of addresses contacted by an
// execution, in first contact order.
type AddressSet []common.Address

func (s AddressSet) Contains(addr common.Address) bool {
	for _, a := range s {
		if a == addr {
			return true
		}
	}
	return false
}

/*
MirrorIntent is recorded by the derived ledger gateway when a proxy
contract asks for a call to be mirrored on the counterpart ledger. The
intent names the emitting proxy, the relay resolves the counterpart
address off-chain.
*/
type MirrorIntent struct {
	_        struct{}       `cbor:",toarray"`
	Proxy    common.Address `json:"proxy"`
	Caller   common.Address `json:"caller"`
	Value    *big.Int       `json:"value"`
	GasLimit uint64         `json:"gas_limit"`
	Payload  []byte         `json:"payload,omitempty"`
	Nonce    uint64         `json:"nonce"`
}

func (x *MirrorIntent) IsValid() error {
	if x == nil {
		return ErrIntentIsNil
	}
	if x.Proxy == (common.Address{}) {
		return ErrIntentProxyUnset
	}
	if len(x.Payload) == 0 {
		return ErrIntentPayloadNil
	}
	if x.GasLimit == 0 {
		return ErrIntentNoGas
	}
	return nil
}

func (x *MirrorIntent) String() string {
	if x == nil {
		return "intent{nil}"
	}
	return fmt.Sprintf("intent{proxy=%s, nonce=%d, value=%v}", x.Proxy.Hex(), x.Nonce, x.Value)
}
