package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/types"
)

type (
	GenesisAccount struct {
		Address common.Address
		Balance *big.Int
	}

	// Deployment is one bootstrap contract. Its address is derived from the
	// system account and the declared nonce before anything is built, so
	// deployments can reference each other's addresses through the resolved
	// map handed to Build.
	Deployment struct {
		Name  string
		Nonce uint64
		Build func(addrs map[string]common.Address) (contracts.Contract, error)
	}

	// Genesis describes the initial state of a ledger: funded accounts and
	// an ordered list of native contract deployments. Build performs the
	// whole sequence and seals it into block 1, two Build runs from the same
	// description produce the same state root.
	Genesis struct {
		Name          string
		ChainID       *big.Int
		BlockGasLimit uint64
		SystemAccount common.Address
		SystemBalance *big.Int
		Accounts      []GenesisAccount
		Deployments   []*Deployment
	}
)

func (g *Genesis) IsValid() error {
	if g == nil {
		return fmt.Errorf("genesis is nil")
	}
	if g.ChainID == nil || g.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain ID must be a positive integer")
	}
	if g.SystemAccount == (common.Address{}) {
		return fmt.Errorf("system account is unassigned")
	}
	names := map[string]struct{}{}
	for i, d := range g.Deployments {
		if d.Name == "" {
			return fmt.Errorf("deployment %d has no name", i)
		}
		if _, ok := names[d.Name]; ok {
			return fmt.Errorf("duplicate deployment name %q", d.Name)
		}
		names[d.Name] = struct{}{}
		if d.Nonce != uint64(i) {
			return fmt.Errorf("deployment %q: nonce %d out of sequence, expected %d", d.Name, d.Nonce, i)
		}
		if d.Build == nil {
			return fmt.Errorf("deployment %q has no build function", d.Name)
		}
	}
	return nil
}

// ContractAddresses resolves every deployment to its deterministic address.
func (g *Genesis) ContractAddresses() (map[string]common.Address, error) {
	if err := g.IsValid(); err != nil {
		return nil, err
	}
	addrs := make(map[string]common.Address, len(g.Deployments))
	for _, d := range g.Deployments {
		addrs[d.Name] = crypto.CreateAddress(g.SystemAccount, d.Nonce)
	}
	return addrs, nil
}

// Address resolves a single deployment by name.
func (g *Genesis) Address(name string) (common.Address, error) {
	addrs, err := g.ContractAddresses()
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := addrs[name]
	if !ok {
		return common.Address{}, fmt.Errorf("no deployment named %q", name)
	}
	return addr, nil
}

// Build funds the genesis accounts, deploys the bootstrap contracts in
// order and seals block 1. The caller owns the returned sandbox.
func (g *Genesis) Build(ctx context.Context, obs Observability) (*Sandbox, error) {
	addrs, err := g.ContractAddresses()
	if err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	s, err := NewSandbox(Config{Name: g.Name, ChainID: g.ChainID, BlockGasLimit: g.BlockGasLimit}, obs)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	if g.SystemBalance != nil {
		if err := s.FundAccount(g.SystemAccount, g.SystemBalance); err != nil {
			return nil, disposeOnErr(s, err)
		}
	}
	for _, account := range g.Accounts {
		if err := s.FundAccount(account.Address, account.Balance); err != nil {
			return nil, disposeOnErr(s, fmt.Errorf("funding %s: %w", account.Address.Hex(), err))
		}
	}

	for _, d := range g.Deployments {
		contract, err := d.Build(addrs)
		if err != nil {
			return nil, disposeOnErr(s, fmt.Errorf("building %q: %w", d.Name, err))
		}
		if err := s.RegisterNative(addrs[d.Name], contract); err != nil {
			return nil, disposeOnErr(s, fmt.Errorf("deploying %q: %w", d.Name, err))
		}
		s.setNonce(g.SystemAccount, d.Nonce+1)
	}

	if _, err := s.MineBlock(ctx); err != nil {
		return nil, disposeOnErr(s, fmt.Errorf("sealing genesis block: %w", err))
	}
	return s, nil
}

// Commitment builds the genesis state in a throwaway sandbox and reports the
// resulting commitment, the anchor contract on the base ledger starts from
// it.
func (g *Genesis) Commitment(ctx context.Context, obs Observability) (*types.Commitment, error) {
	s, err := g.Build(ctx, obs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Dispose() }()
	return &types.Commitment{
		BlockNumber: s.CurrentBlock().Number,
		StateRoot:   s.StateRoot().Bytes(),
	}, nil
}

func disposeOnErr(s *Sandbox, err error) error {
	_ = s.Dispose()
	return err
}
