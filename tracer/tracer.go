package tracer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/types"
)

// ErrCallReverted marks a trace whose execution reverted. The address set
// collected up to the revert is still returned, the caller decides whether
// a reverting candidate may be classified.
var ErrCallReverted = errors.New("candidate call reverted")

type (
	// CallBackend is the slice of the ledger surface the tracer needs,
	// ledger.Sandbox implements it.
	CallBackend interface {
		Call(ctx context.Context, msg ledger.CallMsg) (*ledger.CallResult, error)
	}

	// BindingResolver is the read side of the proxy binding registry,
	// bindings.Registry and its snapshots implement it.
	BindingResolver interface {
		Resolve(proxy common.Address) (common.Address, bool)
	}

	// Tracer extracts the set of addresses a candidate call contacts when
	// executed against the backend's live state.
	Tracer struct {
		backend CallBackend
	}
)

func New(backend CallBackend) *Tracer {
	return &Tracer{backend: backend}
}

/*
Trace executes the candidate against current committed state and flattens
the resulting call tree into the set of contacted addresses. Tracing always
runs against the live chain, never a scratch sandbox, so classification
reflects the state the transaction would land on. A reverting candidate
returns the addresses contacted before the revert together with
ErrCallReverted.
*/
func (t *Tracer) Trace(ctx context.Context, call types.CandidateCall) (types.AddressSet, error) {
	if err := call.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid candidate call: %w", err)
	}
	res, err := t.backend.Call(ctx, ledger.CallMsg{
		From:  call.From,
		To:    call.To,
		Value: call.Value,
		Gas:   call.Gas,
		Data:  call.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing candidate call: %w", err)
	}
	addrs := res.Trace.Addresses()
	if res.ExecErr != nil {
		if res.RevertReason != "" {
			return addrs, fmt.Errorf("%w: %s", ErrCallReverted, res.RevertReason)
		}
		return addrs, fmt.Errorf("%w: %v", ErrCallReverted, res.ExecErr)
	}
	return addrs, nil
}

/*
Classify matches the traced addresses against registered proxy bindings. A
single address resolving to a counterpart marks the transaction cross
ledger. Detection is transitive through nested calls because the address
set covers every frame of the trace, a proxy three calls deep classifies
the same as one invoked directly.
*/
func Classify(addrs types.AddressSet, resolver BindingResolver) types.Classification {
	cls := types.Classification{}
	for _, addr := range addrs {
		counterpart, ok := resolver.Resolve(addr)
		if !ok {
			continue
		}
		cls.IsCrossLedger = true
		cls.Bindings = append(cls.Bindings, types.ProxyBinding{Proxy: addr, Counterpart: counterpart})
	}
	return cls
}

// CandidateFromTx describes a signed transaction as a traceable call.
func CandidateFromTx(tx *ethtypes.Transaction, chainID *big.Int) (types.CandidateCall, error) {
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return types.CandidateCall{}, fmt.Errorf("recovering transaction sender: %w", err)
	}
	return types.CandidateCall{
		From:  from,
		To:    tx.To(),
		Value: tx.Value(),
		Gas:   tx.Gas(),
		Data:  tx.Data(),
	}, nil
}
