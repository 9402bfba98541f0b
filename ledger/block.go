package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/types"
	"github.com/crossbill-org/crossbill/util"
)

type (
	// Block is a sealed batch of transactions. Number starts at 1 with the
	// genesis block, Root is the state trie root after the whole batch.
	Block struct {
		Number     uint64
		ParentHash common.Hash
		Root       common.Hash
		Time       uint64
		Txs        []*ethtypes.Transaction
		Receipts   []*Receipt
	}

	// Receipt is the execution outcome of a single transaction. Trace and
	// Intents are populated during execution, they are what the relay's
	// simulation stage consumes.
	Receipt struct {
		TxHash          common.Hash
		TxIndex         int
		BlockNumber     uint64
		Status          uint64
		GasUsed         uint64
		ContractAddress common.Address
		ReturnData      []byte
		RevertReason    string
		Logs            []*ethtypes.Log
		Trace           *types.CallTraceNode
		Intents         []*types.MirrorIntent
	}
)

func (b *Block) Hash() common.Hash {
	parts := [][]byte{
		util.Uint64ToBytes(b.Number),
		b.ParentHash.Bytes(),
		b.Root.Bytes(),
		util.Uint64ToBytes(b.Time),
	}
	for _, tx := range b.Txs {
		parts = append(parts, tx.Hash().Bytes())
	}
	return common.BytesToHash(crypto.Keccak256(parts...))
}

func (b *Block) String() string {
	return fmt.Sprintf("block{number=%d, root=%X, txs=%d}", b.Number, b.Root, len(b.Txs))
}

func (r *Receipt) Successful() bool {
	return r.Status == ethtypes.ReceiptStatusSuccessful
}
