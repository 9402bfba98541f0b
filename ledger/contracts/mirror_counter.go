package contracts

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MirrorCounterContract is the proxy side of the counter pair. It shares the
// counter ABI. A set from a regular caller updates local storage and forwards
// the original calldata to the gateway so the bound counterpart is updated
// too. A set delivered by the relay authority only updates local storage,
// that call IS the mirrored update and forwarding it again would bounce
// between the ledgers forever.
type MirrorCounterContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner

	gateway   common.Address
	authority common.Address
}

func NewMirrorCounterContract(gateway common.Address, authority common.Address) *MirrorCounterContract {
	c := &MirrorCounterContract{
		abi: counterABI,
		gas: map[string]uint64{
			"get": 3_000,
			"set": 60_000,
		},
		gateway:   gateway,
		authority: authority,
	}
	c.executor = map[string]ContractRunner{
		"get": c.get,
		"set": c.set,
	}
	return c
}

func (c *MirrorCounterContract) Name() string { return "mirror-counter" }

func (c *MirrorCounterContract) ABI() abi.ABI { return c.abi }

func (c *MirrorCounterContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return 0
	}
	return c.gas[method.Name]
}

func (c *MirrorCounterContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *MirrorCounterContract) get(env Env, _ []byte) ([]byte, error) {
	return PackOutput(c.abi, "get", loadU256(env, counterValueSlot).ToBig())
}

func (c *MirrorCounterContract) set(env Env, input []byte) ([]byte, error) {
	value, err := unpackCounterSet(c.abi, input)
	if err != nil {
		return nil, err
	}
	storeU256(env, counterValueSlot, value)

	if env.Caller() == c.authority {
		return nil, nil
	}

	forward, err := PackEmitIntent(input)
	if err != nil {
		return nil, fmt.Errorf("packing intent payload: %w", err)
	}
	if _, err := env.Call(c.gateway, env.CallValue(), c.gas["set"], forward); err != nil {
		return nil, fmt.Errorf("forwarding to gateway: %w", err)
	}
	return nil, nil
}
