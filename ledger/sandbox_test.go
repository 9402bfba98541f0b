package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/crossbill-org/crossbill/ledger/contracts"
	testobserve "github.com/crossbill-org/crossbill/testutils/observability"
	"github.com/crossbill-org/crossbill/types"
)

func TestNewSandbox(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := NewSandbox(Config{ChainID: big.NewInt(1)}, testobserve.Default(t))
		require.ErrorContains(t, err, "chain name must be assigned")
	})
	t.Run("missing chain ID", func(t *testing.T) {
		_, err := NewSandbox(Config{Name: "test"}, testobserve.Default(t))
		require.ErrorContains(t, err, "chain ID must be a positive integer")
	})
	t.Run("dispose is idempotent", func(t *testing.T) {
		s := newTestSandbox(t)
		require.NoError(t, s.Dispose())
		require.NoError(t, s.Dispose())
		_, err := s.MineBlock(context.Background())
		require.ErrorIs(t, err, ErrDisposed)
		_, err = s.SubmitTx(context.Background(), &ethtypes.Transaction{})
		require.ErrorIs(t, err, ErrDisposed)
	})
}

func TestSandbox_Transfer(t *testing.T) {
	s := newTestSandbox(t)
	senderKey, sender := newKey(t)
	_, recipient := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(10)))

	tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 0, To: &recipient, Value: big.NewInt(1000), Gas: params.TxGas, GasPrice: big.NewInt(0),
	})
	receipt, err := s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, receipt.Successful())
	require.Equal(t, params.TxGas, receipt.GasUsed)
	require.NotNil(t, receipt.Trace)
	require.Equal(t, types.AddressSet{recipient}, receipt.Trace.Addresses())

	block, err := s.MineBlock(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, block.Number)
	require.Len(t, block.Txs, 1)
	require.NotEqual(t, common.Hash{}, block.Root)
	require.Equal(t, block.Root, s.StateRoot())
	require.Equal(t, block, s.CurrentBlock())

	require.Equal(t, big.NewInt(1000), s.BalanceOf(recipient))
	require.Equal(t, new(big.Int).Sub(ether(10), big.NewInt(1000)), s.BalanceOf(sender))
	require.EqualValues(t, 1, s.NonceOf(sender))
}

func TestSandbox_RejectsBadTransactions(t *testing.T) {
	s := newTestSandbox(t)
	senderKey, sender := newKey(t)
	_, recipient := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(1)))

	t.Run("wrong nonce", func(t *testing.T) {
		tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
			Nonce: 5, To: &recipient, Value: big.NewInt(1), Gas: params.TxGas, GasPrice: big.NewInt(0),
		})
		_, err := s.SubmitTx(context.Background(), tx)
		require.ErrorContains(t, err, "transaction rejected")
	})
	t.Run("insufficient funds", func(t *testing.T) {
		tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
			Nonce: 0, To: &recipient, Value: ether(2), Gas: params.TxGas, GasPrice: big.NewInt(0),
		})
		_, err := s.SubmitTx(context.Background(), tx)
		require.ErrorContains(t, err, "transaction rejected")
	})
	t.Run("wrong chain signature", func(t *testing.T) {
		foreign := ethtypes.LatestSignerForChainID(big.NewInt(99999))
		tx, err := ethtypes.SignNewTx(senderKey, foreign, &ethtypes.LegacyTx{
			Nonce: 0, To: &recipient, Value: big.NewInt(1), Gas: params.TxGas, GasPrice: big.NewInt(0),
		})
		require.NoError(t, err)
		_, err = s.SubmitTx(context.Background(), tx)
		require.ErrorContains(t, err, "invalid transaction signature")
	})
}

func TestSandbox_NativeDispatch(t *testing.T) {
	s := newTestSandbox(t)
	counterAddr := common.BytesToAddress([]byte{0xc0})
	require.NoError(t, s.RegisterNative(counterAddr, contracts.NewCounterContract()))
	require.Error(t, s.RegisterNative(counterAddr, contracts.NewCounterContract()))

	senderKey, sender := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(1)))

	set, err := contracts.PackCounterSet(big.NewInt(42))
	require.NoError(t, err)
	tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 0, To: &counterAddr, Gas: 100_000, GasPrice: big.NewInt(0), Value: big.NewInt(0), Data: set,
	})
	receipt, err := s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, receipt.Successful())
	require.Equal(t, types.AddressSet{counterAddr}, receipt.Trace.Addresses())
	_, err = s.MineBlock(context.Background())
	require.NoError(t, err)

	get, err := contracts.PackCounterGet()
	require.NoError(t, err)
	res, err := s.Call(context.Background(), CallMsg{From: sender, To: &counterAddr, Data: get})
	require.NoError(t, err)
	require.NoError(t, res.ExecErr)
	value, err := contracts.UnpackCounterGet(res.ReturnData)
	require.NoError(t, err)
	require.EqualValues(t, 42, value.Int64())
}

func TestSandbox_NativeRevertRollsBack(t *testing.T) {
	s := newTestSandbox(t)
	operator := common.BytesToAddress([]byte{0x0c})
	vaultAddr := common.BytesToAddress([]byte{0x0b})
	require.NoError(t, s.RegisterNative(vaultAddr, contracts.NewVaultContract(operator)))

	senderKey, sender := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(1)))
	require.NoError(t, s.FundAccount(vaultAddr, big.NewInt(5000)))

	// deposit succeeds, the value moves
	deposit := packVaultDeposit(t)
	tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 0, To: &vaultAddr, Value: big.NewInt(100), Gas: 100_000, GasPrice: big.NewInt(0), Data: deposit,
	})
	receipt, err := s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, receipt.Successful())
	require.Equal(t, big.NewInt(5100), s.BalanceOf(vaultAddr))

	// withdraw from a non-operator reverts, value and storage roll back
	// but the nonce advances
	withdraw := packVaultWithdraw(t, sender, big.NewInt(100))
	tx = signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 1, To: &vaultAddr, Value: big.NewInt(0), Gas: 100_000, GasPrice: big.NewInt(0), Data: withdraw,
	})
	receipt, err = s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.False(t, receipt.Successful())
	require.Contains(t, receipt.RevertReason, "not vault operator")
	require.Equal(t, big.NewInt(5100), s.BalanceOf(vaultAddr))
	require.EqualValues(t, 2, s.NonceOf(sender))
}

func TestSandbox_SimulateTxLeavesNoTrace(t *testing.T) {
	s := newTestSandbox(t)
	senderKey, sender := newKey(t)
	_, recipient := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(1)))

	tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 0, To: &recipient, Value: big.NewInt(500), Gas: params.TxGas, GasPrice: big.NewInt(0),
	})
	receipt, err := s.SimulateTx(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, receipt.Successful())

	require.Zero(t, s.BalanceOf(recipient).Sign())
	require.EqualValues(t, 0, s.NonceOf(sender))

	// the same transaction still submits for real
	_, err = s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), s.BalanceOf(recipient))
}

func TestSandbox_ContractCreation(t *testing.T) {
	s := newTestSandbox(t)
	senderKey, sender := newKey(t)
	require.NoError(t, s.FundAccount(sender, ether(1)))

	// init code returning empty runtime code
	initCode := common.FromHex("0x60006000f3")
	tx := signTx(t, s, senderKey, &ethtypes.LegacyTx{
		Nonce: 0, To: nil, Value: big.NewInt(0), Gas: 100_000, GasPrice: big.NewInt(0), Data: initCode,
	})
	receipt, err := s.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, receipt.Successful())
	require.Equal(t, crypto.CreateAddress(sender, 0), receipt.ContractAddress)
}

func TestSandbox_Determinism(t *testing.T) {
	run := func(t *testing.T) common.Hash {
		s, err := NewSandbox(Config{Name: "det", ChainID: big.NewInt(777)}, testobserve.Default(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Dispose() })

		key, err := crypto.ToECDSA(common.FromHex("0x2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6"))
		require.NoError(t, err)
		sender := crypto.PubkeyToAddress(key.PublicKey)
		require.NoError(t, s.FundAccount(sender, ether(5)))
		counterAddr := common.BytesToAddress([]byte{0xc0})
		require.NoError(t, s.RegisterNative(counterAddr, contracts.NewCounterContract()))

		set, err := contracts.PackCounterSet(big.NewInt(7))
		require.NoError(t, err)
		tx := signTx(t, s, key, &ethtypes.LegacyTx{
			Nonce: 0, To: &counterAddr, Value: big.NewInt(0), Gas: 100_000, GasPrice: big.NewInt(0), Data: set,
		})
		_, err = s.SubmitTx(context.Background(), tx)
		require.NoError(t, err)
		block, err := s.MineBlock(context.Background())
		require.NoError(t, err)
		return block.Root
	}
	require.Equal(t, run(t), run(t))
}

func TestSandbox_SubscribeBlocks(t *testing.T) {
	s := newTestSandbox(t)
	ch := make(chan *Block, 4)
	sub := s.SubscribeBlocks(ch)
	defer sub.Unsubscribe()

	mined, err := s.MineBlock(context.Background())
	require.NoError(t, err)
	select {
	case got := <-ch:
		require.Equal(t, mined, got)
	case <-time.After(time.Second):
		t.Fatal("no block notification")
	}
}

func TestSandbox_Clone(t *testing.T) {
	s := newTestSandbox(t)
	_, account := newKey(t)
	require.NoError(t, s.FundAccount(account, big.NewInt(1000)))
	counterAddr := common.BytesToAddress([]byte{0xc0})
	require.NoError(t, s.RegisterNative(counterAddr, contracts.NewCounterContract()))
	_, err := s.MineBlock(context.Background())
	require.NoError(t, err)

	clone, err := s.Clone("scratch")
	require.NoError(t, err)
	t.Cleanup(func() { _ = clone.Dispose() })
	require.Equal(t, s.StateRoot(), clone.StateRoot())
	require.Equal(t, big.NewInt(1000), clone.BalanceOf(account))

	require.NoError(t, clone.FundAccount(account, big.NewInt(500)))
	_, err = clone.MineBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1500), clone.BalanceOf(account))
	require.Equal(t, big.NewInt(1000), s.BalanceOf(account))
	require.NotEqual(t, s.StateRoot(), clone.StateRoot())

	// disposing the clone leaves the original working
	require.NoError(t, clone.Dispose())
	require.NoError(t, s.FundAccount(account, big.NewInt(1)))

	t.Run("clone with staged txs refused", func(t *testing.T) {
		key, addr := newKey(t)
		require.NoError(t, s.FundAccount(addr, ether(1)))
		_, err := s.MineBlock(context.Background())
		require.NoError(t, err)
		_, other := newKey(t)
		tx := signTx(t, s, key, &ethtypes.LegacyTx{
			Nonce: 0, To: &other, Value: big.NewInt(1), Gas: params.TxGas, GasPrice: big.NewInt(0),
		})
		_, err = s.SubmitTx(context.Background(), tx)
		require.NoError(t, err)
		_, err = s.Clone("nope")
		require.ErrorContains(t, err, "staged transaction")
	})
}

func TestSandbox_BlockByNumber(t *testing.T) {
	s := newTestSandbox(t)
	b1, err := s.MineBlock(context.Background())
	require.NoError(t, err)
	b2, err := s.MineBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, b1.Hash(), b2.ParentHash)

	got, err := s.BlockByNumber(1)
	require.NoError(t, err)
	require.Equal(t, b1, got)
	_, err = s.BlockByNumber(0)
	require.ErrorIs(t, err, ErrBlockNotFound)
	_, err = s.BlockByNumber(3)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func newTestSandbox(t *testing.T) *Sandbox {
	s, err := NewSandbox(Config{Name: "test", ChainID: big.NewInt(777)}, testobserve.Default(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Dispose() })
	return s
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signTx(t *testing.T, s *Sandbox, key *ecdsa.PrivateKey, data *ethtypes.LegacyTx) *ethtypes.Transaction {
	tx, err := ethtypes.SignNewTx(key, s.signer, data)
	require.NoError(t, err)
	return tx
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}

func packVaultDeposit(t *testing.T) []byte {
	a := contracts.NewVaultContract(common.Address{}).ABI()
	data, err := a.Pack("deposit")
	require.NoError(t, err)
	return data
}

func packVaultWithdraw(t *testing.T, to common.Address, amount *big.Int) []byte {
	a := contracts.NewVaultContract(common.Address{}).ABI()
	data, err := a.Pack("withdrawTo", to, amount)
	require.NoError(t, err)
	return data
}
