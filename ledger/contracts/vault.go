package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VaultABI is the escrow the value of cross ledger calls flows through. On
// the derived ledger the gateway parks deposited value here, on the base
// ledger the commitment contract draws from it when it replays value bearing
// outgoing calls. Only the configured operator may withdraw.
const VaultABI = `[
	{
		"inputs": [],
		"name": "deposit",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "withdrawTo",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "balance",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var vaultABI = mustParseABI("vault", VaultABI)

type VaultContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner

	operator common.Address
}

func NewVaultContract(operator common.Address) *VaultContract {
	c := &VaultContract{
		abi: vaultABI,
		gas: map[string]uint64{
			"deposit":    10_000,
			"withdrawTo": 30_000,
			"balance":    3_000,
		},
		operator: operator,
	}
	c.executor = map[string]ContractRunner{
		"deposit":    c.deposit,
		"withdrawTo": c.withdrawTo,
		"balance":    c.balance,
	}
	return c
}

func (c *VaultContract) Name() string { return "vault" }

func (c *VaultContract) ABI() abi.ABI { return c.abi }

func (c *VaultContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return 0
	}
	return c.gas[method.Name]
}

func (c *VaultContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *VaultContract) deposit(env Env, _ []byte) ([]byte, error) {
	// value is already credited by the call transfer, nothing to record
	return nil, nil
}

func (c *VaultContract) withdrawTo(env Env, input []byte) ([]byte, error) {
	if env.Caller() != c.operator {
		return nil, fmt.Errorf("not vault operator: %s", env.Caller().Hex())
	}
	res, err := UnpackInput(c.abi, "withdrawTo", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'withdrawTo' input data: %w", err)
	}
	to := *abi.ConvertType(res[0], new(common.Address)).(*common.Address)
	amount := *abi.ConvertType(res[1], new(*big.Int)).(**big.Int)

	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, fmt.Errorf("withdraw amount overflows")
	}
	if env.BalanceOf(env.Address()).Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient escrow: have %s, need %s", env.BalanceOf(env.Address()), amount)
	}
	if err := env.Transfer(to, amount); err != nil {
		return nil, fmt.Errorf("escrow transfer failed: %w", err)
	}
	return nil, nil
}

func (c *VaultContract) balance(env Env, _ []byte) ([]byte, error) {
	return PackOutput(c.abi, "balance", env.BalanceOf(env.Address()))
}
