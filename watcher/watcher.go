/*
Package watcher replays every submission the base ledger accepted against
an independent replica of the derived ledger. The watcher trusts nothing
the relay computed: it re-verifies the proof hash chain and attestation
from the submitted calldata, re-executes the committed transaction and
compares the replica state root with what the contract stored. Any
disagreement is a divergence and stops the watcher, a halted auditor is
worth more than one that glosses over a mismatch.
*/
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/logger"
	"github.com/crossbill-org/crossbill/observability"
	"github.com/crossbill-org/crossbill/proof"
	"github.com/crossbill-org/crossbill/types"
)

const blockBufferSize = 64

// ErrDivergence means the base ledger committed a state the watcher cannot
// reproduce. There is no recovery, one of the two sides is wrong.
var ErrDivergence = errors.New("replica state diverged from committed state")

type (
	Observability interface {
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Logger() *slog.Logger
	}

	Config struct {
		// Base is the ledger carrying the commitment contract.
		Base ledger.Backend
		// ReplicaGenesis describes the derived ledger bootstrap, the watcher
		// builds its replica from it. It must be the description the live
		// derived ledger was built from.
		ReplicaGenesis *ledger.Genesis
		// CommitmentAddr is the anchor contract on the base ledger.
		CommitmentAddr common.Address
		// Attestor pins the expected attestation signer. Left unassigned it
		// is read from the anchor contract at startup.
		Attestor common.Address
		// Journal, when assigned, records every verified commitment.
		Journal *Journal
	}

	Watcher struct {
		cfg      Config
		log      *slog.Logger
		tracer   trace.Tracer
		replica  *ledger.Sandbox
		attestor common.Address

		mu       sync.Mutex
		last     *types.Commitment
		lastBase uint64
		// advanced is closed and replaced on every verified submission,
		// WaitForCommitment blocks on it.
		advanced chan struct{}

		replayCnt metric.Int64Counter
		replayDur metric.Float64Histogram
	}
)

func New(ctx context.Context, cfg Config, obs Observability) (*Watcher, error) {
	if cfg.Base == nil {
		return nil, fmt.Errorf("base ledger backend must be assigned")
	}
	if cfg.ReplicaGenesis == nil {
		return nil, fmt.Errorf("replica genesis must be assigned")
	}
	if cfg.CommitmentAddr == (common.Address{}) {
		return nil, fmt.Errorf("commitment contract address must be assigned")
	}

	replica, err := cfg.ReplicaGenesis.Build(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("building replica ledger: %w", err)
	}
	w := &Watcher{
		cfg:      cfg,
		log:      obs.Logger().With(logger.Chain("watcher")),
		tracer:   obs.Tracer("watcher"),
		replica:  replica,
		attestor: cfg.Attestor,
		last: &types.Commitment{
			BlockNumber: replica.CurrentBlock().Number,
			StateRoot:   replica.StateRoot().Bytes(),
		},
		advanced: make(chan struct{}),
	}
	if w.attestor == (common.Address{}) {
		if w.attestor, err = ledger.ReadAttestor(ctx, cfg.Base, cfg.CommitmentAddr); err != nil {
			return nil, disposeOnErr(replica, err)
		}
	}

	// when the contract still holds the genesis commitment the replica must
	// reproduce it exactly, catching a wrong genesis before any replay
	stored, err := ledger.ReadCommitment(ctx, cfg.Base, cfg.CommitmentAddr)
	if err != nil {
		return nil, disposeOnErr(replica, err)
	}
	if stored.BlockNumber == w.last.BlockNumber && stored.RootHash() != w.last.RootHash() {
		return nil, disposeOnErr(replica, fmt.Errorf("%w: replica genesis root %X, committed root %X", ErrDivergence, w.last.StateRoot, stored.StateRoot))
	}

	m := obs.Meter("watcher")
	if w.replayCnt, err = m.Int64Counter("watcher.replay.count", metric.WithDescription("Number of replayed submissions")); err != nil {
		return nil, disposeOnErr(replica, fmt.Errorf("creating replay counter: %w", err))
	}
	if w.replayDur, err = m.Float64Histogram("watcher.replay.duration", metric.WithDescription("Time to verify and replay one submission"), metric.WithUnit("s")); err != nil {
		return nil, disposeOnErr(replica, fmt.Errorf("creating replay duration histogram: %w", err))
	}
	return w, nil
}

func disposeOnErr(s *ledger.Sandbox, err error) error {
	_ = s.Dispose()
	return err
}

// Close disposes the replica ledger. Run must have returned.
func (w *Watcher) Close() error {
	return w.replica.Dispose()
}

// StateRoot is the replica's current state root.
func (w *Watcher) StateRoot() common.Hash {
	return w.replica.StateRoot()
}

// LastVerified returns the newest commitment the watcher reproduced.
func (w *Watcher) LastVerified() *types.Commitment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.Clone()
}

/*
WaitForCommitment blocks until the watcher has verified the commitment
with the given number, or the context ends. It reports the newest verified
commitment, which may be past the requested one.
*/
func (w *Watcher) WaitForCommitment(ctx context.Context, blockNumber uint64) (*types.Commitment, error) {
	for {
		w.mu.Lock()
		last, ch := w.last, w.advanced
		w.mu.Unlock()
		if last.BlockNumber >= blockNumber {
			return last.Clone(), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for commitment %d: %w", blockNumber, ctx.Err())
		case <-ch:
		}
	}
}

/*
Run processes base ledger blocks until the context ends or a divergence is
found. Blocks sealed before the watcher started are caught up first, the
subscription is opened before the catch-up so nothing slips between.
*/
func (w *Watcher) Run(ctx context.Context) error {
	blocks := make(chan *ledger.Block, blockBufferSize)
	sub := w.cfg.Base.SubscribeBlocks(blocks)
	defer sub.Unsubscribe()

	if err := w.catchUp(ctx); err != nil {
		return err
	}
	w.log.Info(fmt.Sprintf("watching %s for submissions", w.cfg.Base.Name()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Err():
			return fmt.Errorf("block subscription closed")
		case block := <-blocks:
			if err := w.handleBlock(ctx, block); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) catchUp(ctx context.Context) error {
	current := w.cfg.Base.CurrentBlock()
	if current == nil {
		return nil
	}
	for n := uint64(1); n <= current.Number; n++ {
		block, err := w.cfg.Base.BlockByNumber(n)
		if err != nil {
			return fmt.Errorf("loading base block %d: %w", n, err)
		}
		if err := w.handleBlock(ctx, block); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) handleBlock(ctx context.Context, block *ledger.Block) error {
	w.mu.Lock()
	seen := block.Number <= w.lastBase
	if !seen {
		w.lastBase = block.Number
	}
	w.mu.Unlock()
	if seen {
		// catch-up and the subscription overlap on the current block
		return nil
	}
	for i, receipt := range block.Receipts {
		if err := w.handleReceipt(ctx, block, block.Txs[i], receipt); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) handleReceipt(ctx context.Context, block *ledger.Block, tx *ethtypes.Transaction, receipt *ledger.Receipt) error {
	if to := tx.To(); to == nil || *to != w.cfg.CommitmentAddr {
		return nil
	}
	if !receipt.Successful() {
		w.log.Debug(fmt.Sprintf("ignoring rejected submission: %s", receipt.RevertReason), logger.TxHash(tx.Hash()))
		return nil
	}
	input, err := contracts.ParseAcceptProofInput(tx.Data())
	if err != nil {
		// a view method wrapped into a transaction, nothing to audit
		return nil
	}
	event, err := advancedEvent(receipt)
	if err != nil {
		return fmt.Errorf("%w: accepted submission without advancement event: %v", ErrDivergence, err)
	}
	return w.replaySubmission(ctx, block, tx, input, event)
}

func advancedEvent(receipt *ledger.Receipt) (*contracts.CommitmentAdvancedEvent, error) {
	for _, l := range receipt.Logs {
		if len(l.Topics) == 1 && l.Topics[0] == contracts.CommitmentAdvancedID() {
			return contracts.ParseCommitmentAdvanced(l)
		}
	}
	return nil, fmt.Errorf("no CommitmentAdvanced log in receipt")
}

/*
replaySubmission re-verifies one accepted submission end to end: the
attestation, the hash chain over the watcher's own previous commitment,
and the state transition by executing the committed transaction on the
replica. All failures short of infrastructure errors are divergences.
*/
func (w *Watcher) replaySubmission(ctx context.Context, block *ledger.Block, tx *ethtypes.Transaction, input *contracts.AcceptProofInput, event *contracts.CommitmentAdvancedEvent) (rErr error) {
	ctx, span := w.tracer.Start(ctx, "watcher.replay", trace.WithAttributes(
		observability.TxHash(tx.Hash().Bytes()),
		observability.Round(event.BlockNumber),
	))
	defer func(start time.Time) {
		if rErr != nil {
			span.RecordError(rErr)
			span.SetStatus(codes.Error, rErr.Error())
		}
		w.replayCnt.Add(ctx, 1, metric.WithAttributes(observability.ErrStatus(rErr)))
		w.replayDur.Record(ctx, time.Since(start).Seconds())
		span.End()
	}(time.Now())

	w.mu.Lock()
	prev := w.last.Clone()
	w.mu.Unlock()

	if err := proof.VerifyAttestation(input.Proof, w.attestor); err != nil {
		return fmt.Errorf("%w: %v", ErrDivergence, err)
	}
	if err := proof.VerifyChain(input.Proof, prev, input.RawTx, input.Calls, input.FinalStateRoot); err != nil {
		return fmt.Errorf("%w: %v", ErrDivergence, err)
	}
	if want := prev.BlockNumber + 1; event.BlockNumber != want {
		return fmt.Errorf("%w: commitment number jumped from %d to %d", ErrDivergence, prev.BlockNumber, event.BlockNumber)
	}

	candidate := new(ethtypes.Transaction)
	if err := candidate.UnmarshalBinary(input.RawTx); err != nil {
		return fmt.Errorf("%w: undecodable committed transaction: %v", ErrDivergence, err)
	}
	receipt, err := w.replica.SubmitTx(ctx, candidate)
	if err != nil {
		return fmt.Errorf("%w: replaying transaction: %v", ErrDivergence, err)
	}
	replayed, err := w.replica.MineBlock(ctx)
	if err != nil {
		return fmt.Errorf("sealing replica block: %w", err)
	}
	if !receipt.Successful() {
		return fmt.Errorf("%w: replayed transaction reverted: %s", ErrDivergence, receipt.RevertReason)
	}
	if replayed.Root != input.FinalStateRoot {
		return fmt.Errorf("%w: replica root %X, submitted root %X", ErrDivergence, replayed.Root, input.FinalStateRoot)
	}
	if replayed.Root != event.NewStateRoot {
		return fmt.Errorf("%w: replica root %X, committed root %X", ErrDivergence, replayed.Root, event.NewStateRoot)
	}

	next := &types.Commitment{BlockNumber: event.BlockNumber, StateRoot: event.NewStateRoot.Bytes()}
	w.mu.Lock()
	w.last = next
	close(w.advanced)
	w.advanced = make(chan struct{})
	w.mu.Unlock()

	if w.cfg.Journal != nil {
		if err := w.cfg.Journal.Append(Record{
			BlockNumber: event.BlockNumber,
			StateRoot:   event.NewStateRoot.Bytes(),
			TxDigest:    event.TxDigest.Bytes(),
			Submitter:   event.Submitter,
			BaseBlock:   block.Number,
		}); err != nil {
			return fmt.Errorf("recording verified commitment: %w", err)
		}
	}
	w.log.Info(fmt.Sprintf("verified commitment %s", next), logger.TxHash(tx.Hash()), logger.Round(event.BlockNumber))
	return nil
}
