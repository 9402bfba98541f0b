package contracts

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	test "github.com/crossbill-org/crossbill/testutils"
)

func TestCounterContract_SetGet(t *testing.T) {
	c := NewCounterContract()
	require.Len(t, c.gas, 2)
	env := newTestEnv(common.BytesToAddress([]byte{0x01}))

	get, err := PackCounterGet()
	require.NoError(t, err)
	out, err := c.Run(env, get)
	require.NoError(t, err)
	value, err := UnpackCounterGet(out)
	require.NoError(t, err)
	require.EqualValues(t, 0, value.Int64())

	set, err := PackCounterSet(big.NewInt(1234))
	require.NoError(t, err)
	out, err = c.Run(env, set)
	require.NoError(t, err)
	require.Nil(t, out)

	out, err = c.Run(env, get)
	require.NoError(t, err)
	value, err = UnpackCounterGet(out)
	require.NoError(t, err)
	require.EqualValues(t, 1234, value.Int64())
}

func TestCounterContract_InvalidMethod(t *testing.T) {
	c := NewCounterContract()
	_, err := c.Run(newTestEnv(common.BytesToAddress([]byte{0x01})), test.RandomBytes(20))
	require.ErrorContains(t, err, "invalid method")
	require.EqualValues(t, 0, c.RequiredGas(test.RandomBytes(4)))
}

func TestMirrorCounterContract_Set(t *testing.T) {
	gateway := common.BytesToAddress([]byte{0x02})
	authority := common.BytesToAddress([]byte{0x03})

	t.Run("regular caller forwards to gateway", func(t *testing.T) {
		c := NewMirrorCounterContract(gateway, authority)
		env := newTestEnv(common.BytesToAddress([]byte{0x01}))
		env.caller = common.BytesToAddress(test.RandomBytes(20))
		env.value = big.NewInt(7)

		set, err := PackCounterSet(big.NewInt(99))
		require.NoError(t, err)
		_, err = c.Run(env, set)
		require.NoError(t, err)

		require.Len(t, env.calls, 1)
		require.Equal(t, gateway, env.calls[0].to)
		require.Equal(t, big.NewInt(7), env.calls[0].value)
		expected, err := PackEmitIntent(set)
		require.NoError(t, err)
		require.Equal(t, expected, env.calls[0].input)

		get, err := PackCounterGet()
		require.NoError(t, err)
		out, err := c.Run(env, get)
		require.NoError(t, err)
		value, err := UnpackCounterGet(out)
		require.NoError(t, err)
		require.EqualValues(t, 99, value.Int64())
	})

	t.Run("authority caller updates silently", func(t *testing.T) {
		c := NewMirrorCounterContract(gateway, authority)
		env := newTestEnv(common.BytesToAddress([]byte{0x01}))
		env.caller = authority

		set, err := PackCounterSet(big.NewInt(55))
		require.NoError(t, err)
		_, err = c.Run(env, set)
		require.NoError(t, err)
		require.Empty(t, env.calls)

		get, err := PackCounterGet()
		require.NoError(t, err)
		out, err := c.Run(env, get)
		require.NoError(t, err)
		value, err := UnpackCounterGet(out)
		require.NoError(t, err)
		require.EqualValues(t, 55, value.Int64())
	})

	t.Run("gateway failure reverts the set", func(t *testing.T) {
		c := NewMirrorCounterContract(gateway, authority)
		env := newTestEnv(common.BytesToAddress([]byte{0x01}))
		env.caller = common.BytesToAddress(test.RandomBytes(20))
		env.callFn = func(envCall) ([]byte, error) {
			return nil, errors.New("gateway is gone")
		}
		set, err := PackCounterSet(big.NewInt(11))
		require.NoError(t, err)
		_, err = c.Run(env, set)
		require.ErrorContains(t, err, "forwarding to gateway")
	})
}
