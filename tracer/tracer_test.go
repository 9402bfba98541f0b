package tracer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/ledger/contracts"
	testobserve "github.com/crossbill-org/crossbill/testutils/observability"
	"github.com/crossbill-org/crossbill/types"
)

var (
	counterAddr   = common.BytesToAddress([]byte{0xc0})
	forwarderAddr = common.BytesToAddress([]byte{0xf0})
)

type mapResolver map[common.Address]common.Address

func (m mapResolver) Resolve(proxy common.Address) (common.Address, bool) {
	counterpart, ok := m[proxy]
	return counterpart, ok
}

func newTracerBackend(t *testing.T) (*Tracer, common.Address) {
	t.Helper()
	s, err := ledger.NewSandbox(ledger.Config{Name: "trace-test", ChainID: big.NewInt(99)}, testobserve.Default(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Dispose()) })

	require.NoError(t, s.RegisterNative(counterAddr, contracts.NewCounterContract()))
	require.NoError(t, s.RegisterNative(forwarderAddr, contracts.NewForwarderContract()))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, s.FundAccount(sender, big.NewInt(params.Ether)))
	return New(s), sender
}

// forwardChain packs calldata which bounces through the forwarder depth-1
// times before reaching the counter, so the counter is contacted at exactly
// the given call depth.
func forwardChain(t *testing.T, depth int, final []byte) []byte {
	t.Helper()
	payload, err := contracts.PackForward(counterAddr, final)
	require.NoError(t, err)
	for i := 1; i < depth; i++ {
		payload, err = contracts.PackForward(forwarderAddr, payload)
		require.NoError(t, err)
	}
	return payload
}

func TestTracer_Trace(t *testing.T) {
	tracer, sender := newTracerBackend(t)

	t.Run("plain transfer", func(t *testing.T) {
		recipient := common.BytesToAddress([]byte{0xee})
		addrs, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &recipient, Value: big.NewInt(1000),
		})
		require.NoError(t, err)
		require.Equal(t, types.AddressSet{recipient}, addrs)
	})

	t.Run("native call", func(t *testing.T) {
		get, err := contracts.PackCounterGet()
		require.NoError(t, err)
		addrs, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &counterAddr, Data: get,
		})
		require.NoError(t, err)
		require.Equal(t, types.AddressSet{counterAddr}, addrs)
	})

	t.Run("revert still returns contacted addresses", func(t *testing.T) {
		bogus, err := contracts.PackForward(counterAddr, []byte{0xde, 0xad, 0xbe, 0xef})
		require.NoError(t, err)
		addrs, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &forwarderAddr, Data: bogus,
		})
		require.ErrorIs(t, err, ErrCallReverted)
		require.True(t, addrs.Contains(forwarderAddr))
		require.True(t, addrs.Contains(counterAddr))
	})

	t.Run("negative value", func(t *testing.T) {
		_, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &counterAddr, Value: big.NewInt(-1),
		})
		require.ErrorContains(t, err, "invalid candidate call")
	})
}

func TestTracer_NestedProxyDetection(t *testing.T) {
	tracer, sender := newTracerBackend(t)
	l2Counter := common.BytesToAddress([]byte{0xc2})
	resolver := mapResolver{counterAddr: l2Counter}

	set, err := contracts.PackCounterSet(big.NewInt(7))
	require.NoError(t, err)

	for depth := 1; depth <= 5; depth++ {
		data := forwardChain(t, depth, set)
		addrs, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &forwarderAddr, Data: data,
		})
		require.NoError(t, err, "depth %d", depth)
		require.True(t, addrs.Contains(counterAddr), "depth %d", depth)

		cls := Classify(addrs, resolver)
		require.True(t, cls.IsCrossLedger, "depth %d", depth)
		require.Equal(t, []types.ProxyBinding{{Proxy: counterAddr, Counterpart: l2Counter}}, cls.Bindings, "depth %d", depth)
	}

	t.Run("unrelated binding does not classify", func(t *testing.T) {
		addrs, err := tracer.Trace(context.Background(), types.CandidateCall{
			From: sender, To: &forwarderAddr, Data: forwardChain(t, 2, set),
		})
		require.NoError(t, err)
		cls := Classify(addrs, mapResolver{common.BytesToAddress([]byte{0xaa}): l2Counter})
		require.False(t, cls.IsCrossLedger)
		require.Empty(t, cls.Bindings)
	})
}

func TestClassify(t *testing.T) {
	addr := func(b byte) common.Address { return common.Address{b} }

	t.Run("empty resolver", func(t *testing.T) {
		cls := Classify(types.AddressSet{addr(1), addr(2)}, mapResolver{})
		require.False(t, cls.IsCrossLedger)
		require.Empty(t, cls.Bindings)
	})

	t.Run("bindings in first contact order", func(t *testing.T) {
		resolver := mapResolver{addr(3): addr(0x33), addr(1): addr(0x11)}
		cls := Classify(types.AddressSet{addr(1), addr(2), addr(3)}, resolver)
		require.True(t, cls.IsCrossLedger)
		require.Equal(t, []types.ProxyBinding{
			{Proxy: addr(1), Counterpart: addr(0x11)},
			{Proxy: addr(3), Counterpart: addr(0x33)},
		}, cls.Bindings)
	})
}

func TestCandidateFromTx(t *testing.T) {
	chainID := big.NewInt(99)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	to := common.BytesToAddress([]byte{0xee})

	tx, err := ethtypes.SignNewTx(key, ethtypes.LatestSignerForChainID(chainID), &ethtypes.LegacyTx{
		Nonce: 3, To: &to, Value: big.NewInt(5), Gas: 60_000, GasPrice: big.NewInt(0), Data: []byte{0x01},
	})
	require.NoError(t, err)

	call, err := CandidateFromTx(tx, chainID)
	require.NoError(t, err)
	require.Equal(t, sender, call.From)
	require.Equal(t, &to, call.To)
	require.EqualValues(t, 5, call.Value.Int64())
	require.EqualValues(t, 60_000, call.Gas)
	require.Equal(t, []byte{0x01}, call.Data)

	t.Run("wrong chain", func(t *testing.T) {
		_, err := CandidateFromTx(tx, big.NewInt(100))
		require.ErrorContains(t, err, "recovering transaction sender")
	})
}
