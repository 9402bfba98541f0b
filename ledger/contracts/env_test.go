package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/types"
)

type (
	envCall struct {
		to    common.Address
		value *big.Int
		gas   uint64
		input []byte
	}

	envLog struct {
		topics []common.Hash
		data   []byte
	}

	// testEnv is a single frame Env over plain maps. Nested calls are
	// recorded and answered by callFn when set.
	testEnv struct {
		chainID  *big.Int
		blockNum uint64
		origin   common.Address
		caller   common.Address
		address  common.Address
		value    *big.Int
		storage  map[common.Hash]common.Hash
		balances map[common.Address]*big.Int
		intents  []*types.MirrorIntent
		logs     []envLog
		calls    []envCall
		callFn   func(call envCall) ([]byte, error)
	}
)

func newTestEnv(address common.Address) *testEnv {
	return &testEnv{
		chainID:  big.NewInt(1),
		blockNum: 1,
		address:  address,
		value:    big.NewInt(0),
		storage:  map[common.Hash]common.Hash{},
		balances: map[common.Address]*big.Int{},
	}
}

func (e *testEnv) seedState(state map[common.Hash]common.Hash) *testEnv {
	for k, v := range state {
		e.storage[k] = v
	}
	return e
}

func (e *testEnv) ChainID() *big.Int { return e.chainID }

func (e *testEnv) BlockNumber() uint64 { return e.blockNum }

func (e *testEnv) Origin() common.Address { return e.origin }

func (e *testEnv) Caller() common.Address { return e.caller }

func (e *testEnv) Address() common.Address { return e.address }

func (e *testEnv) CallValue() *big.Int { return new(big.Int).Set(e.value) }

func (e *testEnv) GetState(key common.Hash) common.Hash { return e.storage[key] }

func (e *testEnv) SetState(key common.Hash, value common.Hash) { e.storage[key] = value }

func (e *testEnv) BalanceOf(addr common.Address) *big.Int {
	if b, ok := e.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (e *testEnv) Transfer(to common.Address, amount *big.Int) error {
	e.balances[e.address] = new(big.Int).Sub(e.BalanceOf(e.address), amount)
	e.balances[to] = new(big.Int).Add(e.BalanceOf(to), amount)
	return nil
}

func (e *testEnv) Call(to common.Address, value *big.Int, gas uint64, input []byte) ([]byte, error) {
	call := envCall{to: to, value: value, gas: gas, input: input}
	e.calls = append(e.calls, call)
	if e.callFn != nil {
		return e.callFn(call)
	}
	return nil, nil
}

func (e *testEnv) EmitIntent(intent *types.MirrorIntent) error {
	e.intents = append(e.intents, intent)
	return nil
}

func (e *testEnv) AddLog(topics []common.Hash, data []byte) {
	e.logs = append(e.logs, envLog{topics: topics, data: data})
}
