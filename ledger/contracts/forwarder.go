package contracts

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ForwarderABI relays an arbitrary payload to an arbitrary target, passing
// any attached value along. It exists to give call traces more than one hop.
const ForwarderABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "target", "type": "address"},
			{"internalType": "bytes", "name": "payload", "type": "bytes"}
		],
		"name": "forward",
		"outputs": [
			{"internalType": "bytes", "name": "result", "type": "bytes"}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`

var forwarderABI = mustParseABI("forwarder", ForwarderABI)

const forwardCallGas = 500_000

type ForwarderContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner
}

func NewForwarderContract() *ForwarderContract {
	c := &ForwarderContract{
		abi: forwarderABI,
		gas: map[string]uint64{
			"forward": 100_000,
		},
	}
	c.executor = map[string]ContractRunner{
		"forward": c.forward,
	}
	return c
}

func (c *ForwarderContract) Name() string { return "forwarder" }

func (c *ForwarderContract) ABI() abi.ABI { return c.abi }

func (c *ForwarderContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return 0
	}
	return c.gas[method.Name]
}

func (c *ForwarderContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *ForwarderContract) forward(env Env, input []byte) ([]byte, error) {
	res, err := UnpackInput(c.abi, "forward", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'forward' input data: %w", err)
	}
	target := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
	payload := *abi.ConvertType(res[1], new([]byte)).(*[]byte)

	out, err := env.Call(target, env.CallValue(), forwardCallGas, payload)
	if err != nil {
		return nil, fmt.Errorf("forwarded call reverted: %w", err)
	}
	return PackOutput(c.abi, "forward", out)
}

// PackForward builds forward calldata.
func PackForward(target common.Address, payload []byte) ([]byte, error) {
	return forwarderABI.Pack("forward", target, payload)
}
