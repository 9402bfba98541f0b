package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/crossbill-org/crossbill/types"
)

// callTracer collects the call tree of one EVM transaction. Only the frame
// structure is recorded, opcode level callbacks are ignored.
type callTracer struct {
	root  *types.CallTraceNode
	stack []*types.CallTraceNode
}

func newCallTracer() *callTracer {
	return &callTracer{}
}

func (t *callTracer) Tree() *types.CallTraceNode {
	return t.root
}

func (t *callTracer) CaptureTxStart(gasLimit uint64) {}

func (t *callTracer) CaptureTxEnd(restGas uint64) {}

func (t *callTracer) CaptureStart(env *vm.EVM, from common.Address, to common.Address, create bool, input []byte, gas uint64, value *big.Int) {
	t.root = &types.CallTraceNode{Target: to}
	t.stack = append(t.stack[:0], t.root)
}

func (t *callTracer) CaptureEnd(output []byte, gasUsed uint64, d time.Duration, err error) {
	if len(t.stack) > 0 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

func (t *callTracer) CaptureEnter(typ vm.OpCode, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	if len(t.stack) == 0 {
		return
	}
	node := &types.CallTraceNode{Target: to}
	parent := t.stack[len(t.stack)-1]
	parent.Children = append(parent.Children, node)
	t.stack = append(t.stack, node)
}

func (t *callTracer) CaptureExit(output []byte, gasUsed uint64, err error) {
	if len(t.stack) > 1 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

func (t *callTracer) CaptureState(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, rData []byte, depth int, err error) {
}

func (t *callTracer) CaptureFault(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, depth int, err error) {
}
