package cmd

import (
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/util"
)

type genesisConfiguration struct {
	Base *baseConfiguration

	DerivedChainID   uint64
	AuthorityKeyFile string
	GenerateKeys     bool
	Fund             map[string]string
	OutputFile       string
}

// genesisInfo is what a base chain operator needs to anchor the derived
// ledger: the commitment its anchor contract is initialized with and the
// canonical contract addresses.
type genesisInfo struct {
	ChainID     uint64                    `json:"chain_id"`
	BlockNumber uint64                    `json:"block_number"`
	StateRoot   common.Hash               `json:"state_root"`
	Contracts   map[string]common.Address `json:"contracts"`
}

func newGenesisCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &genesisConfiguration{Base: baseConfig}
	var genesisCmd = &cobra.Command{
		Use:   "genesis",
		Short: "Prints the derived ledger genesis commitment",
		Long:  `Builds the canonical derived ledger genesis and prints the commitment the base chain anchor must be initialized with, together with the deployed contract addresses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenesis(cmd, config)
		},
	}

	genesisCmd.Flags().Uint64Var(&config.DerivedChainID, "derived-chain-id", 401, "chain id of the derived ledger")
	genesisCmd.Flags().StringVar(&config.AuthorityKeyFile, "authority-key-file", "",
		fmt.Sprintf("path to the authority key file, the contract addresses derive from it (default: $XB_HOME/%s/%s)", defaultKeysDir, authorityKeyFileName))
	genesisCmd.Flags().BoolVarP(&config.GenerateKeys, genKeysCmdFlag, "g", false, "generates new keys if none exist")
	genesisCmd.Flags().StringToStringVar(&config.Fund, "fund", nil, "accounts funded at genesis, address=balance pairs with the balance in wei")
	genesisCmd.Flags().StringVarP(&config.OutputFile, "output", "o", "", "write the genesis info to this file instead of stdout")

	return genesisCmd
}

func (c *genesisConfiguration) authorityKeyFilePath() string {
	if c.AuthorityKeyFile != "" {
		return c.AuthorityKeyFile
	}
	return filepath.Join(c.Base.defaultKeysDir(), authorityKeyFileName)
}

func runGenesis(cmd *cobra.Command, cfg *genesisConfiguration) error {
	authorityKey, err := LoadKey(cfg.authorityKeyFilePath(), cfg.GenerateKeys)
	if err != nil {
		return fmt.Errorf("loading authority key: %w", err)
	}
	accounts, err := fundedAccounts(cfg.Fund)
	if err != nil {
		return err
	}

	gen := ledger.DerivedGenesis(new(big.Int).SetUint64(cfg.DerivedChainID), crypto.PubkeyToAddress(authorityKey.PublicKey), accounts...)
	commitment, err := gen.Commitment(cmd.Context(), cfg.Base.observe)
	if err != nil {
		return fmt.Errorf("computing genesis commitment: %w", err)
	}
	contracts, err := gen.ContractAddresses()
	if err != nil {
		return fmt.Errorf("resolving contract addresses: %w", err)
	}

	info := &genesisInfo{
		ChainID:     cfg.DerivedChainID,
		BlockNumber: commitment.BlockNumber,
		StateRoot:   commitment.RootHash(),
		Contracts:   contracts,
	}
	if cfg.OutputFile != "" {
		return util.WriteJsonFile(cfg.OutputFile, info)
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis info: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
