package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/types"
)

// Canonical deployment names, the relay and the CLI resolve addresses
// through them.
const (
	ContractGateway       = "gateway"
	ContractVault         = "vault"
	ContractMirrorCounter = "mirror-counter"
	ContractForwarder     = "forwarder"
	ContractCommitment    = "commitment"
	ContractCounter       = "counter"
)

func DefaultSystemBalance() *big.Int {
	return new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
}

// DerivedGenesis is the canonical derived ledger bootstrap: gateway, vault,
// a mirror counter bound to the gateway, and a forwarder. authority is the
// relay's derived ledger account, it funds scratch runs and its calls skip
// the mirror forwarding.
func DerivedGenesis(chainID *big.Int, authority common.Address, accounts ...GenesisAccount) *Genesis {
	return &Genesis{
		Name:          "derived",
		ChainID:       chainID,
		BlockGasLimit: DefaultBlockGasLimit,
		SystemAccount: authority,
		SystemBalance: DefaultSystemBalance(),
		Accounts:      accounts,
		Deployments: []*Deployment{
			{
				Name:  ContractGateway,
				Nonce: 0,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewGatewayContract(addrs[ContractVault]), nil
				},
			},
			{
				Name:  ContractVault,
				Nonce: 1,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewVaultContract(addrs[ContractGateway]), nil
				},
			},
			{
				Name:  ContractMirrorCounter,
				Nonce: 2,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewMirrorCounterContract(addrs[ContractGateway], authority), nil
				},
			},
			{
				Name:  ContractForwarder,
				Nonce: 3,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewForwarderContract(), nil
				},
			},
		},
	}
}

// BaseGenesis is the canonical base ledger bootstrap: the commitment anchor
// initialized to the derived ledger's genesis commitment, a vault operated
// by the anchor, and a counter that can be bound to the derived mirror.
// submitter is the relay's base ledger account.
func BaseGenesis(chainID *big.Int, submitter common.Address, attestor common.Address, derivedGenesis *types.Commitment, accounts ...GenesisAccount) *Genesis {
	return &Genesis{
		Name:          "base",
		ChainID:       chainID,
		BlockGasLimit: DefaultBlockGasLimit,
		SystemAccount: submitter,
		SystemBalance: DefaultSystemBalance(),
		Accounts:      accounts,
		Deployments: []*Deployment{
			{
				Name:  ContractCommitment,
				Nonce: 0,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewCommitmentContract(attestor, addrs[ContractVault], derivedGenesis), nil
				},
			},
			{
				Name:  ContractVault,
				Nonce: 1,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewVaultContract(addrs[ContractCommitment]), nil
				},
			},
			{
				Name:  ContractCounter,
				Nonce: 2,
				Build: func(addrs map[string]common.Address) (contracts.Contract, error) {
					return contracts.NewCounterContract(), nil
				},
			},
		},
	}
}
