package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/crossbill-org/crossbill/ledger"
	testobserve "github.com/crossbill-org/crossbill/testutils/observability"
	"github.com/crossbill-org/crossbill/util"
)

func TestGenesis_Generate(t *testing.T) {
	homeDir := t.TempDir()
	outFile := filepath.Join(homeDir, "genesis.json")

	app := New(testobserve.NewFactory(t))
	app.baseCmd.SetArgs(strings.Split("genesis --home "+homeDir+" --gen-keys --output "+outFile, " "))
	require.NoError(t, app.Execute(context.Background()))

	info, err := util.ReadJsonFile(outFile, &genesisInfo{})
	require.NoError(t, err)
	require.EqualValues(t, 401, info.ChainID)
	require.EqualValues(t, 1, info.BlockNumber)
	require.NotEqual(t, common.Hash{}, info.StateRoot)
	for _, name := range []string{ledger.ContractGateway, ledger.ContractVault, ledger.ContractMirrorCounter, ledger.ContractForwarder} {
		require.Contains(t, info.Contracts, name)
		require.NotEqual(t, common.Address{}, info.Contracts[name])
	}

	// the key was saved under the home directory so a second run must
	// reproduce the same genesis
	outFile2 := filepath.Join(homeDir, "genesis2.json")
	app = New(testobserve.NewFactory(t))
	app.baseCmd.SetArgs(strings.Split("genesis --home "+homeDir+" --output "+outFile2, " "))
	require.NoError(t, app.Execute(context.Background()))

	info2, err := util.ReadJsonFile(outFile2, &genesisInfo{})
	require.NoError(t, err)
	require.Equal(t, info, info2)

	t.Run("to stdout", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		app := New(testobserve.NewFactory(t))
		app.baseCmd.SetOut(buf)
		app.baseCmd.SetArgs(strings.Split("genesis --home "+homeDir, " "))
		require.NoError(t, app.Execute(context.Background()))

		printed := &genesisInfo{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), printed))
		require.Equal(t, info, printed)
	})

	t.Run("chain id from environment", func(t *testing.T) {
		t.Setenv("XB_DERIVED_CHAIN_ID", "555")
		outFile := filepath.Join(homeDir, "genesis-env.json")
		app := New(testobserve.NewFactory(t))
		app.baseCmd.SetArgs(strings.Split("genesis --home "+homeDir+" --output "+outFile, " "))
		require.NoError(t, app.Execute(context.Background()))

		envInfo, err := util.ReadJsonFile(outFile, &genesisInfo{})
		require.NoError(t, err)
		require.EqualValues(t, 555, envInfo.ChainID)
		// the chain id is not part of the contract state
		require.Equal(t, info.Contracts, envInfo.Contracts)
		require.Equal(t, info.StateRoot, envInfo.StateRoot)
	})

	t.Run("funding changes the state root", func(t *testing.T) {
		outFile := filepath.Join(homeDir, "genesis-funded.json")
		app := New(testobserve.NewFactory(t))
		args := "genesis --home " + homeDir + " --output " + outFile +
			" --fund " + common.Address{0x0f}.Hex() + "=1000000000000000000"
		app.baseCmd.SetArgs(strings.Split(args, " "))
		require.NoError(t, app.Execute(context.Background()))

		funded, err := util.ReadJsonFile(outFile, &genesisInfo{})
		require.NoError(t, err)
		require.Equal(t, info.Contracts, funded.Contracts)
		require.NotEqual(t, info.StateRoot, funded.StateRoot)
	})

	t.Run("missing key file", func(t *testing.T) {
		app := New(testobserve.NewFactory(t))
		app.baseCmd.SetArgs(strings.Split("genesis --home "+t.TempDir(), " "))
		err := app.Execute(context.Background())
		require.ErrorContains(t, err, "does not exist")
	})
}
