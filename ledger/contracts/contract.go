package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/crossbill-org/crossbill/types"
)

type (
	// Env is the per call frame capability surface the ledger hands to a native
	// contract. State access is scoped to the executing contract's own address,
	// nested calls and intents go through the ledger so they end up in the same
	// call trace and receipt as everything else.
	Env interface {
		ChainID() *big.Int
		BlockNumber() uint64
		Origin() common.Address
		Caller() common.Address
		Address() common.Address
		CallValue() *big.Int
		GetState(key common.Hash) common.Hash
		SetState(key common.Hash, value common.Hash)
		BalanceOf(addr common.Address) *big.Int
		Transfer(to common.Address, amount *big.Int) error
		Call(to common.Address, value *big.Int, gas uint64, input []byte) ([]byte, error)
		EmitIntent(intent *types.MirrorIntent) error
		AddLog(topics []common.Hash, data []byte)
	}

	// Contract is a native contract dispatched by target address instead of
	// EVM bytecode. Run reverts the whole frame by returning a non-nil error,
	// the error text is surfaced as the revert reason.
	Contract interface {
		Name() string
		ABI() abi.ABI
		RequiredGas(input []byte) uint64
		Run(env Env, input []byte) ([]byte, error)
	}

	// StateInitializer is implemented by contracts that need genesis time
	// storage, the deployer writes the returned slots before the first block
	// is sealed so the genesis state root covers them.
	StateInitializer interface {
		InitialState() map[common.Hash]common.Hash
	}

	ContractRunner func(env Env, input []byte) ([]byte, error)
)

func mustParseABI(name, abiJSON string) abi.ABI {
	a, err := abi.JSON(bytes.NewBuffer([]byte(abiJSON)))
	if err != nil {
		panic(fmt.Sprintf("unable to load %s contract ABI: %v", name, err))
	}
	return a
}

func UnpackInput(a abi.ABI, name string, data []byte) ([]interface{}, error) {
	method, ok := a.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method %q not present in ABI", name)
	}
	return method.Inputs.Unpack(data)
}

func PackOutput(a abi.ABI, name string, values ...interface{}) ([]byte, error) {
	method, ok := a.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method %q not present in ABI", name)
	}
	return method.Outputs.Pack(values...)
}

func loadUint64(env Env, slot common.Hash) uint64 {
	return new(uint256.Int).SetBytes32(env.GetState(slot).Bytes()).Uint64()
}

func storeUint64(env Env, slot common.Hash, v uint64) {
	env.SetState(slot, common.Hash(uint256.NewInt(v).Bytes32()))
}

func loadU256(env Env, slot common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(env.GetState(slot).Bytes())
}

func storeU256(env Env, slot common.Hash, v *uint256.Int) {
	env.SetState(slot, common.Hash(v.Bytes32()))
}

func loadAddress(env Env, slot common.Hash) common.Address {
	return common.BytesToAddress(env.GetState(slot).Bytes())
}

func storeAddress(env Env, slot common.Hash, addr common.Address) {
	env.SetState(slot, common.BytesToHash(addr.Bytes()))
}
