package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"go.opentelemetry.io/otel/metric"

	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/logger"
	"github.com/crossbill-org/crossbill/observability"
	"github.com/crossbill-org/crossbill/types"
)

type Observability interface {
	Meter(name string, opts ...metric.MeterOption) metric.Meter
	Logger() *slog.Logger
}

/*
Sandbox is an in process EVM ledger. State lives in a memory backed trie
database, transactions execute immediately on submission and MineBlock seals
everything staged since the previous block. Contracts registered through
RegisterNative are dispatched by target address instead of bytecode.

A Sandbox double-books as the live chain and, through Clone, as the relay's
scratch instance for speculative execution.
*/
type Sandbox struct {
	cfg      Config
	obs      Observability
	log      *slog.Logger
	chainCfg *params.ChainConfig
	signer   ethtypes.Signer

	db  ethdb.Database
	sdb state.Database

	mu       sync.Mutex
	statedb  *state.StateDB
	natives  map[common.Address]contracts.Contract
	blocks   []*Block
	staged   []*stagedTx
	lastRoot common.Hash
	disposed bool
	// owned is false for clones, they share the backing database with the
	// sandbox they were cloned from and must not close it.
	owned bool

	blockFeed event.Feed

	txCount    metric.Int64Counter
	txDur      metric.Float64Histogram
	blockCount metric.Int64Counter
}

type stagedTx struct {
	tx      *ethtypes.Transaction
	receipt *Receipt
}

func NewSandbox(cfg Config, obs Observability) (*Sandbox, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid ledger configuration: %w", err)
	}
	cfg.initDefaults()

	db := rawdb.NewMemoryDatabase()
	sdb := state.NewDatabase(db)
	statedb, err := state.New(common.Hash{}, sdb, nil)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}

	s := &Sandbox{
		cfg:      cfg,
		obs:      obs,
		log:      obs.Logger().With(logger.Chain(cfg.Name)),
		chainCfg: newChainConfig(cfg.ChainID),
		signer:   ethtypes.LatestSignerForChainID(cfg.ChainID),
		db:       db,
		sdb:      sdb,
		statedb:  statedb,
		natives:  map[common.Address]contracts.Contract{},
		owned:    true,
	}
	if err := s.initMetrics(obs.Meter("ledger")); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	return s, nil
}

func (s *Sandbox) initMetrics(m metric.Meter) (err error) {
	if s.txCount, err = m.Int64Counter("ledger.tx.count", metric.WithDescription("Number of transactions executed")); err != nil {
		return fmt.Errorf("creating tx counter: %w", err)
	}
	if s.txDur, err = m.Float64Histogram("ledger.tx.duration", metric.WithDescription("Transaction execution time"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("creating tx duration histogram: %w", err)
	}
	if s.blockCount, err = m.Int64Counter("ledger.block.count", metric.WithDescription("Number of blocks sealed")); err != nil {
		return fmt.Errorf("creating block counter: %w", err)
	}
	return nil
}

func (s *Sandbox) Name() string { return s.cfg.Name }

func (s *Sandbox) ChainID() *big.Int { return s.cfg.ChainID }

// RegisterNative installs a native contract at addr. A marker code blob and
// any initial storage the contract declares are written so the state root
// covers the deployment.
func (s *Sandbox) RegisterNative(addr common.Address, contract contracts.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if _, ok := s.natives[addr]; ok {
		return fmt.Errorf("native contract already registered at %s", addr.Hex())
	}
	s.natives[addr] = contract
	s.statedb.SetCode(addr, nativeMarkerCode(contract.Name()))
	if init, ok := contract.(contracts.StateInitializer); ok {
		for key, value := range init.InitialState() {
			s.statedb.SetState(addr, key, value)
		}
	}
	s.log.Debug(fmt.Sprintf("registered native contract %q", contract.Name()), logger.Addr(addr))
	return nil
}

func nativeMarkerCode(name string) []byte {
	return []byte("crossbill/native/" + name)
}

func (s *Sandbox) FundAccount(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("funding amount must be non-negative")
	}
	s.statedb.AddBalance(addr, amount)
	return nil
}

func (s *Sandbox) SubmitTx(ctx context.Context, tx *ethtypes.Transaction) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	receipt, err := s.execute(ctx, s.statedb, tx, len(s.staged))
	if err != nil {
		return nil, err
	}
	s.staged = append(s.staged, &stagedTx{tx: tx, receipt: receipt})
	return receipt, nil
}

func (s *Sandbox) SimulateTx(ctx context.Context, tx *ethtypes.Transaction) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	return s.execute(ctx, s.statedb.Copy(), tx, 0)
}

func (s *Sandbox) execute(ctx context.Context, sdb *state.StateDB, tx *ethtypes.Transaction, txIndex int) (rec *Receipt, err error) {
	defer func(start time.Time) {
		s.txDur.Record(ctx, time.Since(start).Seconds())
		s.txCount.Add(ctx, 1, metric.WithAttributes(observability.ErrStatus(err)))
	}(time.Now())

	from, err := ethtypes.Sender(s.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction signature: %w", err)
	}
	blockNumber := s.nextBlockNumber()
	sdb.Prepare(tx.Hash(), txIndex)

	if to := tx.To(); to != nil && s.natives[*to] != nil {
		rec, err = s.executeNative(sdb, tx, from, blockNumber, txIndex)
	} else {
		rec, err = s.executeEVM(sdb, tx, from, blockNumber, txIndex)
	}
	if err != nil {
		s.log.Warn("transaction rejected", logger.TxHash(tx.Hash()), logger.Error(err))
		return nil, err
	}
	if !rec.Successful() {
		s.log.Debug(fmt.Sprintf("transaction reverted: %s", rec.RevertReason), logger.TxHash(tx.Hash()))
	}
	return rec, nil
}

func (s *Sandbox) executeEVM(sdb *state.StateDB, tx *ethtypes.Transaction, from common.Address, blockNumber uint64, txIndex int) (*Receipt, error) {
	msg, err := tx.AsMessage(s.signer, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to convert transaction: %w", err)
	}
	tracer := newCallTracer()
	evm := vm.NewEVM(s.newBlockContext(blockNumber), newTxContext(msg), sdb, s.chainCfg, newVMConfig(tracer))
	gp := new(core.GasPool).AddGas(s.cfg.BlockGasLimit)
	execResult, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, fmt.Errorf("transaction rejected: %w", err)
	}

	receipt := &Receipt{
		TxHash:      tx.Hash(),
		TxIndex:     txIndex,
		BlockNumber: blockNumber,
		GasUsed:     execResult.UsedGas,
		Trace:       tracer.Tree(),
	}
	if execResult.Failed() {
		receipt.Status = ethtypes.ReceiptStatusFailed
		receipt.RevertReason = revertReason(execResult)
		receipt.ReturnData = execResult.Revert()
	} else {
		receipt.Status = ethtypes.ReceiptStatusSuccessful
		receipt.ReturnData = execResult.Return()
		receipt.Logs = collectLogs(sdb, tx.Hash(), blockNumber)
	}
	if msg.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}
	return receipt, nil
}

func (s *Sandbox) executeNative(sdb *state.StateDB, tx *ethtypes.Transaction, from common.Address, blockNumber uint64, txIndex int) (*Receipt, error) {
	to := *tx.To()
	contract := s.natives[to]

	if nonce := sdb.GetNonce(from); tx.Nonce() != nonce {
		return nil, fmt.Errorf("invalid nonce: got %d, expected %d", tx.Nonce(), nonce)
	}
	required := contract.RequiredGas(tx.Data())
	if tx.Gas() < required {
		return nil, fmt.Errorf("insufficient gas for %s call: have %d, need %d", contract.Name(), tx.Gas(), required)
	}
	value := tx.Value()
	if sdb.GetBalance(from).Cmp(value) < 0 {
		return nil, fmt.Errorf("insufficient funds for transfer: address %s", from.Hex())
	}

	sdb.SetNonce(from, tx.Nonce()+1)
	snapshot := sdb.Snapshot()
	if value.Sign() > 0 {
		sdb.SubBalance(from, value)
		sdb.AddBalance(to, value)
	}

	var intents []*types.MirrorIntent
	root := &types.CallTraceNode{Target: to}
	env := &nativeEnv{
		sb:       s,
		sdb:      sdb,
		origin:   from,
		caller:   from,
		address:  to,
		value:    value,
		blockNum: blockNumber,
		node:     root,
		intents:  &intents,
	}
	out, runErr := contract.Run(env, tx.Data())

	receipt := &Receipt{
		TxHash:      tx.Hash(),
		TxIndex:     txIndex,
		BlockNumber: blockNumber,
		GasUsed:     required,
		Trace:       root,
	}
	if runErr != nil {
		sdb.RevertToSnapshot(snapshot)
		receipt.Status = ethtypes.ReceiptStatusFailed
		receipt.RevertReason = runErr.Error()
	} else {
		receipt.Status = ethtypes.ReceiptStatusSuccessful
		receipt.ReturnData = out
		receipt.Intents = intents
		receipt.Logs = collectLogs(sdb, tx.Hash(), blockNumber)
	}
	return receipt, nil
}

func (s *Sandbox) Call(ctx context.Context, msg CallMsg) (*CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	sdb := s.statedb.Copy()
	sdb.Prepare(common.Hash{}, 0)
	blockNumber := s.nextBlockNumber()
	gas := msg.Gas
	if gas == 0 {
		gas = s.cfg.BlockGasLimit
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}

	if msg.To != nil && s.natives[*msg.To] != nil {
		return s.callNative(sdb, msg, value, gas, blockNumber)
	}

	m := ethtypes.NewMessage(msg.From, msg.To, sdb.GetNonce(msg.From), value, gas, new(big.Int), new(big.Int), new(big.Int), msg.Data, nil, true)
	tracer := newCallTracer()
	evm := vm.NewEVM(s.newBlockContext(blockNumber), newTxContext(m), sdb, s.chainCfg, newVMConfig(tracer))
	gp := new(core.GasPool).AddGas(gas)
	execResult, err := core.ApplyMessage(evm, m, gp)
	if err != nil {
		return nil, fmt.Errorf("call rejected: %w", err)
	}
	res := &CallResult{
		ReturnData: execResult.Return(),
		GasUsed:    execResult.UsedGas,
		Trace:      tracer.Tree(),
	}
	if execResult.Failed() {
		res.ExecErr = execResult.Err
		res.RevertReason = revertReason(execResult)
	}
	return res, nil
}

func (s *Sandbox) callNative(sdb *state.StateDB, msg CallMsg, value *big.Int, gas uint64, blockNumber uint64) (*CallResult, error) {
	to := *msg.To
	contract := s.natives[to]
	if required := contract.RequiredGas(msg.Data); gas < required {
		return nil, fmt.Errorf("insufficient gas for %s call: have %d, need %d", contract.Name(), gas, required)
	}
	if value.Sign() > 0 {
		if sdb.GetBalance(msg.From).Cmp(value) < 0 {
			return nil, fmt.Errorf("insufficient funds for transfer: address %s", msg.From.Hex())
		}
		sdb.SubBalance(msg.From, value)
		sdb.AddBalance(to, value)
	}

	var intents []*types.MirrorIntent
	root := &types.CallTraceNode{Target: to}
	env := &nativeEnv{
		sb:       s,
		sdb:      sdb,
		origin:   msg.From,
		caller:   msg.From,
		address:  to,
		value:    value,
		blockNum: blockNumber,
		node:     root,
		intents:  &intents,
	}
	out, runErr := contract.Run(env, msg.Data)
	res := &CallResult{
		ReturnData: out,
		GasUsed:    contract.RequiredGas(msg.Data),
		Trace:      root,
		Intents:    intents,
	}
	if runErr != nil {
		res.ExecErr = runErr
		res.RevertReason = runErr.Error()
	}
	return res, nil
}

func (s *Sandbox) MineBlock(ctx context.Context) (*Block, error) {
	s.mu.Lock()
	block, err := s.sealBlock(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.blockFeed.Send(block)
	return block, nil
}

func (s *Sandbox) sealBlock(ctx context.Context) (*Block, error) {
	if s.disposed {
		return nil, ErrDisposed
	}
	root, err := s.statedb.Commit(true)
	if err != nil {
		return nil, fmt.Errorf("committing state: %w", err)
	}
	if err := s.sdb.TrieDB().Commit(root, false, nil); err != nil {
		return nil, fmt.Errorf("persisting state trie: %w", err)
	}

	number := s.nextBlockNumber()
	parent := common.Hash{}
	if n := len(s.blocks); n > 0 {
		parent = s.blocks[n-1].Hash()
	}
	block := &Block{
		Number:     number,
		ParentHash: parent,
		Root:       root,
		Time:       number,
	}
	for _, staged := range s.staged {
		block.Txs = append(block.Txs, staged.tx)
		block.Receipts = append(block.Receipts, staged.receipt)
	}
	s.blocks = append(s.blocks, block)
	s.staged = nil
	s.lastRoot = root

	if s.statedb, err = state.New(root, s.sdb, nil); err != nil {
		return nil, fmt.Errorf("reopening state at %X: %w", root, err)
	}
	s.blockCount.Add(ctx, 1)
	s.log.Info(fmt.Sprintf("sealed block %d with %d transaction(s)", number, len(block.Txs)), logger.Round(number))
	return block, nil
}

func (s *Sandbox) StateRoot() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRoot
}

func (s *Sandbox) BalanceOf(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return new(big.Int)
	}
	return new(big.Int).Set(s.statedb.GetBalance(addr))
}

func (s *Sandbox) NonceOf(addr common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return 0
	}
	return s.statedb.GetNonce(addr)
}

func (s *Sandbox) CurrentBlock() *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

func (s *Sandbox) BlockByNumber(number uint64) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if number == 0 || number > uint64(len(s.blocks)) {
		return nil, fmt.Errorf("%w: number %d", ErrBlockNotFound, number)
	}
	return s.blocks[number-1], nil
}

func (s *Sandbox) SubscribeBlocks(ch chan<- *Block) event.Subscription {
	return s.blockFeed.Subscribe(ch)
}

// Clone snapshots the sandbox into an independent instance sharing the
// committed trie database. The clone sees the current state and chain but
// none of its writes reach the original. Staged transactions cannot be
// carried over, mine them first.
func (s *Sandbox) Clone(name string) (*Sandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	if len(s.staged) > 0 {
		return nil, fmt.Errorf("cannot clone with %d staged transaction(s)", len(s.staged))
	}
	cfg := s.cfg
	cfg.Name = name
	c := &Sandbox{
		cfg:        cfg,
		obs:        s.obs,
		log:        s.obs.Logger().With(logger.Chain(name)),
		chainCfg:   s.chainCfg,
		signer:     s.signer,
		db:         s.db,
		sdb:        s.sdb,
		statedb:    s.statedb.Copy(),
		natives:    map[common.Address]contracts.Contract{},
		blocks:     append([]*Block{}, s.blocks...),
		lastRoot:   s.lastRoot,
		owned:      false,
		txCount:    s.txCount,
		txDur:      s.txDur,
		blockCount: s.blockCount,
	}
	for addr, contract := range s.natives {
		c.natives[addr] = contract
	}
	return c, nil
}

func (s *Sandbox) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// nextBlockNumber requires s.mu to be held.
func (s *Sandbox) nextBlockNumber() uint64 {
	return uint64(len(s.blocks)) + 1
}

// newBlockContext requires s.mu to be held, the BLOCKHASH closure reads the
// chain. Block time equals block number so execution is reproducible.
func (s *Sandbox) newBlockContext(blockNumber uint64) vm.BlockContext {
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash: func(n uint64) common.Hash {
			if n == 0 || n > uint64(len(s.blocks)) {
				return common.Hash{}
			}
			return s.blocks[n-1].Hash()
		},
		Coinbase:    common.Address{},
		GasLimit:    s.cfg.BlockGasLimit,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
		Time:        new(big.Int).SetUint64(blockNumber),
		Difficulty:  big.NewInt(0),
		BaseFee:     big.NewInt(0),
		Random:      nil,
	}
}

func newTxContext(msg ethtypes.Message) vm.TxContext {
	return vm.TxContext{
		Origin:   msg.From(),
		GasPrice: new(big.Int).Set(msg.GasPrice()),
	}
}

func newVMConfig(tracer vm.EVMLogger) vm.Config {
	return vm.Config{
		Debug:     true,
		Tracer:    tracer,
		NoBaseFee: true,
	}
}

func revertReason(res *core.ExecutionResult) string {
	if len(res.Revert()) > 0 {
		if reason, err := abi.UnpackRevert(res.Revert()); err == nil {
			return reason
		}
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	return ""
}

func collectLogs(sdb *state.StateDB, txHash common.Hash, blockNumber uint64) []*ethtypes.Log {
	logs := sdb.GetLogs(txHash, common.Hash{})
	for _, l := range logs {
		l.BlockNumber = blockNumber
	}
	return logs
}

// setNonce is genesis plumbing, deployments advance the system account nonce
// without a signed transaction.
func (s *Sandbox) setNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statedb.SetNonce(addr, nonce)
}
