package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	test "github.com/crossbill-org/crossbill/testutils"
)

func TestVaultContract_WithdrawTo(t *testing.T) {
	operator := common.BytesToAddress([]byte{0x0c})
	vaultAddr := common.BytesToAddress([]byte{0x0b})
	recipient := common.BytesToAddress(test.RandomBytes(20))

	t.Run("operator withdraws", func(t *testing.T) {
		c := NewVaultContract(operator)
		env := newTestEnv(vaultAddr)
		env.caller = operator
		env.balances[vaultAddr] = big.NewInt(1000)

		input, err := vaultABI.Pack("withdrawTo", recipient, big.NewInt(400))
		require.NoError(t, err)
		_, err = c.Run(env, input)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(600), env.BalanceOf(vaultAddr))
		require.Equal(t, big.NewInt(400), env.BalanceOf(recipient))
	})

	t.Run("non-operator rejected", func(t *testing.T) {
		c := NewVaultContract(operator)
		env := newTestEnv(vaultAddr)
		env.caller = common.BytesToAddress(test.RandomBytes(20))
		env.balances[vaultAddr] = big.NewInt(1000)

		input, err := vaultABI.Pack("withdrawTo", recipient, big.NewInt(400))
		require.NoError(t, err)
		_, err = c.Run(env, input)
		require.ErrorContains(t, err, "not vault operator")
	})

	t.Run("insufficient escrow", func(t *testing.T) {
		c := NewVaultContract(operator)
		env := newTestEnv(vaultAddr)
		env.caller = operator
		env.balances[vaultAddr] = big.NewInt(10)

		input, err := vaultABI.Pack("withdrawTo", recipient, big.NewInt(400))
		require.NoError(t, err)
		_, err = c.Run(env, input)
		require.ErrorContains(t, err, "insufficient escrow")
	})
}

func TestVaultContract_Balance(t *testing.T) {
	c := NewVaultContract(common.BytesToAddress([]byte{0x0c}))
	vaultAddr := common.BytesToAddress([]byte{0x0b})
	env := newTestEnv(vaultAddr)
	env.balances[vaultAddr] = big.NewInt(12345)

	input, err := vaultABI.Pack("balance")
	require.NoError(t, err)
	out, err := c.Run(env, input)
	require.NoError(t, err)
	res, err := c.abi.Unpack("balance", out)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(12345), res[0])
}

func TestVaultContract_Deposit(t *testing.T) {
	c := NewVaultContract(common.BytesToAddress([]byte{0x0c}))
	env := newTestEnv(common.BytesToAddress([]byte{0x0b}))
	input, err := vaultABI.Pack("deposit")
	require.NoError(t, err)
	out, err := c.Run(env, input)
	require.NoError(t, err)
	require.Nil(t, out)
}
