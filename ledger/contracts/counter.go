package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CounterABI is a minimal stateful application contract, one uint256 slot
// behind a getter and a setter. It doubles as the mirroring demo: bind a
// counter on one ledger to a mirror counter on the other and setting either
// side propagates.
const CounterABI = `[
	{
		"inputs": [],
		"name": "get",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "value", "type": "uint256"}
		],
		"name": "set",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

var (
	counterABI = mustParseABI("counter", CounterABI)

	counterValueSlot = common.BytesToHash([]byte{0x00})
)

type CounterContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner
}

func NewCounterContract() *CounterContract {
	c := &CounterContract{
		abi: counterABI,
		gas: map[string]uint64{
			"get": 3_000,
			"set": 25_000,
		},
	}
	c.executor = map[string]ContractRunner{
		"get": c.get,
		"set": c.set,
	}
	return c
}

func (c *CounterContract) Name() string { return "counter" }

func (c *CounterContract) ABI() abi.ABI { return c.abi }

func (c *CounterContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return 0
	}
	return c.gas[method.Name]
}

func (c *CounterContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *CounterContract) get(env Env, _ []byte) ([]byte, error) {
	return PackOutput(c.abi, "get", loadU256(env, counterValueSlot).ToBig())
}

func (c *CounterContract) set(env Env, input []byte) ([]byte, error) {
	value, err := unpackCounterSet(c.abi, input)
	if err != nil {
		return nil, err
	}
	storeU256(env, counterValueSlot, value)
	return nil, nil
}

func unpackCounterSet(a abi.ABI, input []byte) (*uint256.Int, error) {
	res, err := UnpackInput(a, "set", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'set' input data: %w", err)
	}
	value := *abi.ConvertType(res[0], new(*big.Int)).(**big.Int)
	u, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("counter value overflows")
	}
	return u, nil
}

// PackCounterSet builds set calldata. The selector is shared by counter and
// mirror counter so a payload packed for one side replays against the other.
func PackCounterSet(value *big.Int) ([]byte, error) {
	return counterABI.Pack("set", value)
}

func PackCounterGet() ([]byte, error) {
	return counterABI.Pack("get")
}

func UnpackCounterGet(output []byte) (*big.Int, error) {
	res, err := counterABI.Unpack("get", output)
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'get' output: %w", err)
	}
	return *abi.ConvertType(res[0], new(*big.Int)).(**big.Int), nil
}
