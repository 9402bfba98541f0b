package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	test "github.com/crossbill-org/crossbill/testutils"
)

func TestGatewayContract_EmitIntent(t *testing.T) {
	vault := common.BytesToAddress([]byte{0x0b})
	gatewayAddr := common.BytesToAddress([]byte{0x0c})
	proxy := common.BytesToAddress(test.RandomBytes(20))
	user := common.BytesToAddress(test.RandomBytes(20))

	newEnv := func() *testEnv {
		env := newTestEnv(gatewayAddr)
		env.caller = proxy
		env.origin = user
		return env
	}

	t.Run("intents get sequential nonces", func(t *testing.T) {
		c := NewGatewayContract(vault)
		env := newEnv()
		payload, err := PackCounterSet(big.NewInt(5))
		require.NoError(t, err)
		input, err := PackEmitIntent(payload)
		require.NoError(t, err)

		out, err := c.Run(env, input)
		require.NoError(t, err)
		res, err := c.abi.Unpack("emitIntent", out)
		require.NoError(t, err)
		require.EqualValues(t, 0, res[0])

		out, err = c.Run(env, input)
		require.NoError(t, err)
		res, err = c.abi.Unpack("emitIntent", out)
		require.NoError(t, err)
		require.EqualValues(t, 1, res[0])

		require.Len(t, env.intents, 2)
		require.Equal(t, proxy, env.intents[0].Proxy)
		require.Equal(t, user, env.intents[0].Caller)
		require.Equal(t, payload, env.intents[0].Payload)
		require.EqualValues(t, 0, env.intents[0].Nonce)
		require.EqualValues(t, 1, env.intents[1].Nonce)
		require.EqualValues(t, DefaultIntentGasLimit, env.intents[0].GasLimit)
		require.Empty(t, env.calls)
	})

	t.Run("attached value is escrowed in the vault", func(t *testing.T) {
		c := NewGatewayContract(vault)
		env := newEnv()
		env.value = big.NewInt(777)
		payload, err := PackCounterSet(big.NewInt(5))
		require.NoError(t, err)
		input, err := PackEmitIntent(payload)
		require.NoError(t, err)

		_, err = c.Run(env, input)
		require.NoError(t, err)
		require.Len(t, env.calls, 1)
		require.Equal(t, vault, env.calls[0].to)
		require.Equal(t, big.NewInt(777), env.calls[0].value)
		deposit, err := vaultABI.Pack("deposit")
		require.NoError(t, err)
		require.Equal(t, deposit, env.calls[0].input)
		require.Len(t, env.intents, 1)
		require.Equal(t, big.NewInt(777), env.intents[0].Value)
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		c := NewGatewayContract(vault)
		input, err := PackEmitIntent(nil)
		require.NoError(t, err)
		_, err = c.Run(newEnv(), input)
		require.ErrorContains(t, err, "empty intent payload")
	})

	t.Run("outbox nonce view", func(t *testing.T) {
		c := NewGatewayContract(vault)
		env := newEnv()
		payload, err := PackCounterSet(big.NewInt(5))
		require.NoError(t, err)
		input, err := PackEmitIntent(payload)
		require.NoError(t, err)
		_, err = c.Run(env, input)
		require.NoError(t, err)

		view, err := c.abi.Pack("outboxNonce")
		require.NoError(t, err)
		out, err := c.Run(env, view)
		require.NoError(t, err)
		res, err := c.abi.Unpack("outboxNonce", out)
		require.NoError(t, err)
		require.EqualValues(t, 1, res[0])
	})
}
