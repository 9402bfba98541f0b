package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/types"
)

// GatewayABI is the derived ledger outbox. Proxy contracts call emitIntent
// with the payload that should run against their base ledger counterpart,
// the gateway escrows any attached value in the vault and records a mirror
// intent under the next outbox nonce. The relay turns recorded intents into
// outgoing calls.
const GatewayABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "payload", "type": "bytes"}
		],
		"name": "emitIntent",
		"outputs": [
			{"internalType": "uint64", "name": "nonce", "type": "uint64"}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "outboxNonce",
		"outputs": [
			{"internalType": "uint64", "name": "", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	gatewayABI = mustParseABI("gateway", GatewayABI)

	gatewayOutboxNonceSlot = common.BytesToHash([]byte{0x00})
)

// DefaultIntentGasLimit is the gas budget a mirrored call gets on the base
// ledger when the emitting proxy does not negotiate one.
const DefaultIntentGasLimit = 2_000_000

const gatewayDepositGas = 10_000

type GatewayContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner

	vault common.Address
}

func NewGatewayContract(vault common.Address) *GatewayContract {
	c := &GatewayContract{
		abi: gatewayABI,
		gas: map[string]uint64{
			"emitIntent":  50_000,
			"outboxNonce": 3_000,
		},
		vault: vault,
	}
	c.executor = map[string]ContractRunner{
		"emitIntent":  c.emitIntent,
		"outboxNonce": c.outboxNonce,
	}
	return c
}

func (c *GatewayContract) Name() string { return "gateway" }

func (c *GatewayContract) ABI() abi.ABI { return c.abi }

func (c *GatewayContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return 0
	}
	return c.gas[method.Name]
}

func (c *GatewayContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *GatewayContract) emitIntent(env Env, input []byte) ([]byte, error) {
	res, err := UnpackInput(c.abi, "emitIntent", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'emitIntent' input data: %w", err)
	}
	payload := *abi.ConvertType(res[0], new([]byte)).(*[]byte)
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty intent payload")
	}

	value := env.CallValue()
	if value != nil && value.Sign() > 0 {
		deposit, err := vaultABI.Pack("deposit")
		if err != nil {
			return nil, err
		}
		if _, err := env.Call(c.vault, value, gatewayDepositGas, deposit); err != nil {
			return nil, fmt.Errorf("escrowing intent value: %w", err)
		}
	}

	nonce := loadUint64(env, gatewayOutboxNonceSlot)
	intent := &types.MirrorIntent{
		Proxy:    env.Caller(),
		Caller:   env.Origin(),
		Value:    new(big.Int).Set(valueOrZero(value)),
		GasLimit: DefaultIntentGasLimit,
		Payload:  payload,
		Nonce:    nonce,
	}
	if err := env.EmitIntent(intent); err != nil {
		return nil, fmt.Errorf("recording intent: %w", err)
	}
	storeUint64(env, gatewayOutboxNonceSlot, nonce+1)
	return PackOutput(c.abi, "emitIntent", nonce)
}

func (c *GatewayContract) outboxNonce(env Env, _ []byte) ([]byte, error) {
	return PackOutput(c.abi, "outboxNonce", loadUint64(env, gatewayOutboxNonceSlot))
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// PackEmitIntent builds emitIntent calldata, proxies use it to forward their
// received input to the gateway.
func PackEmitIntent(payload []byte) ([]byte, error) {
	return gatewayABI.Pack("emitIntent", payload)
}
