package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/crossbill-org/crossbill/types"
)

var (
	ErrDisposed      = errors.New("sandbox is disposed")
	ErrBlockNotFound = errors.New("block not found")
)

type (
	// CallMsg is a read only contract call, no signature and no state change.
	CallMsg struct {
		From  common.Address
		To    *common.Address
		Value *big.Int
		Gas   uint64
		Data  []byte
	}

	// CallResult carries the outcome of a CallMsg. ExecErr is the execution
	// level failure (revert), transport and setup failures are returned as
	// the error of the Call itself.
	CallResult struct {
		ReturnData   []byte
		GasUsed      uint64
		Trace        *types.CallTraceNode
		Intents      []*types.MirrorIntent
		ExecErr      error
		RevertReason string
	}

	// Backend is the ledger surface the relay, the tracer and the watcher
	// operate against. Sandbox is the in process implementation.
	Backend interface {
		Name() string
		ChainID() *big.Int
		// SubmitTx executes the transaction against the open state and stages
		// it for the next block. Execution level failure is reported through
		// the receipt status, an error means the transaction was rejected
		// before inclusion.
		SubmitTx(ctx context.Context, tx *ethtypes.Transaction) (*Receipt, error)
		// SimulateTx executes the transaction against a throwaway copy of the
		// open state. Nothing is staged.
		SimulateTx(ctx context.Context, tx *ethtypes.Transaction) (*Receipt, error)
		Call(ctx context.Context, msg CallMsg) (*CallResult, error)
		// MineBlock seals all staged transactions into the next block and
		// commits the state trie.
		MineBlock(ctx context.Context) (*Block, error)
		// StateRoot is the root of the last sealed block.
		StateRoot() common.Hash
		BalanceOf(addr common.Address) *big.Int
		NonceOf(addr common.Address) uint64
		CurrentBlock() *Block
		BlockByNumber(number uint64) (*Block, error)
		SubscribeBlocks(ch chan<- *Block) event.Subscription
		FundAccount(addr common.Address, amount *big.Int) error
		Dispose() error
	}
)
