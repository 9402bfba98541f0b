package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/crossbill-org/crossbill/types"
)

const maxNativeCallDepth = 8

// nativeEnv is the contracts.Env implementation for one call frame. Nested
// calls spawn child envs over the same state so a revert at the outer frame
// unwinds everything at once.
type nativeEnv struct {
	sb       *Sandbox
	sdb      *state.StateDB
	origin   common.Address
	caller   common.Address
	address  common.Address
	value    *big.Int
	blockNum uint64
	node     *types.CallTraceNode
	intents  *[]*types.MirrorIntent
	depth    int
}

func (e *nativeEnv) ChainID() *big.Int {
	return e.sb.cfg.ChainID
}

func (e *nativeEnv) BlockNumber() uint64 {
	return e.blockNum
}

func (e *nativeEnv) Origin() common.Address {
	return e.origin
}

func (e *nativeEnv) Caller() common.Address {
	return e.caller
}

func (e *nativeEnv) Address() common.Address {
	return e.address
}

func (e *nativeEnv) CallValue() *big.Int {
	if e.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(e.value)
}

func (e *nativeEnv) GetState(key common.Hash) common.Hash {
	return e.sdb.GetState(e.address, key)
}

func (e *nativeEnv) SetState(key common.Hash, value common.Hash) {
	e.sdb.SetState(e.address, key, value)
}

func (e *nativeEnv) BalanceOf(addr common.Address) *big.Int {
	return new(big.Int).Set(e.sdb.GetBalance(addr))
}

func (e *nativeEnv) Transfer(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.sdb.GetBalance(e.address).Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: address %s", e.address.Hex())
	}
	e.sdb.SubBalance(e.address, amount)
	e.sdb.AddBalance(to, amount)
	return nil
}

func (e *nativeEnv) Call(to common.Address, value *big.Int, gas uint64, input []byte) ([]byte, error) {
	if e.depth+1 > maxNativeCallDepth {
		return nil, fmt.Errorf("max call depth %d reached", maxNativeCallDepth)
	}
	child := &types.CallTraceNode{Target: to}
	e.node.Children = append(e.node.Children, child)

	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		if e.sdb.GetBalance(e.address).Cmp(value) < 0 {
			return nil, fmt.Errorf("insufficient balance: address %s", e.address.Hex())
		}
		e.sdb.SubBalance(e.address, value)
		e.sdb.AddBalance(to, value)
	}

	contract, ok := e.sb.natives[to]
	if !ok {
		// no dispatch target, the value transfer is the whole effect
		return nil, nil
	}
	if required := contract.RequiredGas(input); gas < required {
		return nil, fmt.Errorf("insufficient gas for %s call: have %d, need %d", contract.Name(), gas, required)
	}
	childEnv := &nativeEnv{
		sb:       e.sb,
		sdb:      e.sdb,
		origin:   e.origin,
		caller:   e.address,
		address:  to,
		value:    value,
		blockNum: e.blockNum,
		node:     child,
		intents:  e.intents,
		depth:    e.depth + 1,
	}
	return contract.Run(childEnv, input)
}

func (e *nativeEnv) EmitIntent(intent *types.MirrorIntent) error {
	if err := intent.IsValid(); err != nil {
		return fmt.Errorf("invalid mirror intent: %w", err)
	}
	*e.intents = append(*e.intents, intent)
	return nil
}

func (e *nativeEnv) AddLog(topics []common.Hash, data []byte) {
	e.sdb.AddLog(&ethtypes.Log{
		Address:     e.address,
		Topics:      topics,
		Data:        data,
		BlockNumber: e.blockNum,
	})
}
