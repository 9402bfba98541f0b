package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

const DefaultBlockGasLimit = 30_000_000

type Config struct {
	// Name tags the chain in logs and metrics, e.g. "base" or "derived".
	Name          string
	ChainID       *big.Int
	BlockGasLimit uint64
}

func (c *Config) IsValid() error {
	if c.Name == "" {
		return fmt.Errorf("chain name must be assigned")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain ID must be a positive integer")
	}
	return nil
}

func (c *Config) initDefaults() {
	if c.BlockGasLimit == 0 {
		c.BlockGasLimit = DefaultBlockGasLimit
	}
}

// newChainConfig enables every fork up to London from block zero so the
// execution rules never shift under a running ledger.
func newChainConfig(chainID *big.Int) *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:             chainID,
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		MuirGlacierBlock:    big.NewInt(0),
		BerlinBlock:         big.NewInt(0),
		LondonBlock:         big.NewInt(0),
		ArrowGlacierBlock:   big.NewInt(0),
		GrayGlacierBlock:    big.NewInt(0),
	}
}
