package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/crossbill-org/crossbill/bindings"
	"github.com/crossbill-org/crossbill/ledger"
	"github.com/crossbill-org/crossbill/ledger/contracts"
	"github.com/crossbill-org/crossbill/logger"
	"github.com/crossbill-org/crossbill/observability"
	"github.com/crossbill-org/crossbill/proof"
	"github.com/crossbill-org/crossbill/tracer"
	"github.com/crossbill-org/crossbill/types"
)

const (
	// DefaultSpawnTimeout bounds how long an attempt waits for its scratch
	// sandbox, a spawn that hangs fails the attempt instead of blocking it.
	DefaultSpawnTimeout = 10 * time.Second

	// submitGasLimit covers the acceptProof gas requirement with headroom
	// for the outgoing calls the contract makes during acceptance.
	submitGasLimit = 1_000_000

	maxConnectivityRetries = 2
	retryBackoff           = 100 * time.Millisecond
)

// Source names the ledger a submitted transaction belongs to.
type Source string

const (
	SourceBase    Source = "L1"
	SourceDerived Source = "L2"
)

type (
	Observability interface {
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Logger() *slog.Logger
	}

	// SandboxFactory spawns one scratch execution instance per simulation
	// attempt, seeded with the live derived chain state. The instance is
	// disposed when the attempt is done with it.
	SandboxFactory func(ctx context.Context, name string) (ledger.Backend, error)

	Config struct {
		// Base is the ledger holding the commitment contract.
		Base ledger.Backend
		// Derived is the live derived ledger, it applies a candidate only
		// after the base ledger accepted the proof.
		Derived ledger.Backend
		// Scratch spawns the per attempt simulation instances.
		Scratch SandboxFactory
		// Registry resolves proxy bindings, each attempt classifies against
		// a snapshot taken when the attempt starts.
		Registry *bindings.Registry
		// Attestor signs proof hash chains. Without a working attestor every
		// attempt fails before any ledger mutating call.
		Attestor proof.Attestor
		// SubmitterKey is the relay's base ledger account, it signs the
		// acceptProof transactions.
		SubmitterKey *ecdsa.PrivateKey
		// AuthorityKey is the relay's derived ledger account. Mirrored calls
		// are delivered under it so proxy contracts recognize the relay and
		// skip re-emitting intents.
		AuthorityKey *ecdsa.PrivateKey
		// CommitmentAddr is the commitment contract on the base ledger.
		CommitmentAddr common.Address
		SpawnTimeout   time.Duration
	}

	/*
		Node drives the submission pipeline: classify against live state,
		simulate cross-ledger candidates in a scratch sandbox, build and sign
		the proof, submit it to the commitment contract and reconcile the
		expected post state with what the contract stored.
	*/
	Node struct {
		cfg Config
		log *slog.Logger

		tracer        trace.Tracer
		baseTracer    *tracer.Tracer
		derivedTracer *tracer.Tracer

		// the commitment contract accepts a proof only over its currently
		// stored commitment, so attempts racing on the same chain pair must
		// run one at a time.
		mu sync.Mutex

		attemptCnt metric.Int64Counter
		attemptDur metric.Float64Histogram
	}

	// Result of a confirmed attempt.
	Result struct {
		AttemptID      uuid.UUID
		L1TxHash       common.Hash
		L2TxHash       common.Hash
		FinalStateRoot common.Hash
	}

	// attempt carries the pipeline state of one submission.
	attempt struct {
		id       uuid.UUID
		source   Source
		tx       *ethtypes.Transaction
		log      *slog.Logger
		state    State
		bindings bindings.Snapshot

		cls       types.Classification
		intents   []*types.MirrorIntent
		calls     []*types.OutgoingCall
		rawTx     []byte
		prev      *types.Commitment
		postRoot  common.Hash
		finalRoot common.Hash
		// promoted is set once the candidate is part of the live derived
		// chain, the local path executes live up front while the cross
		// ledger path promotes only after base ledger acceptance.
		promoted bool
		prf      *types.Proof
		result   Result
	}
)

func New(cfg Config, obs Observability) (*Node, error) {
	if cfg.Base == nil || cfg.Derived == nil {
		return nil, fmt.Errorf("both ledger backends must be assigned")
	}
	if cfg.Scratch == nil {
		return nil, fmt.Errorf("scratch sandbox factory must be assigned")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("binding registry must be assigned")
	}
	if cfg.Attestor == nil {
		return nil, proof.ErrNoAttestor
	}
	if cfg.SubmitterKey == nil {
		return nil, fmt.Errorf("submitter key must be assigned")
	}
	if cfg.AuthorityKey == nil {
		return nil, fmt.Errorf("authority key must be assigned")
	}
	if cfg.CommitmentAddr == (common.Address{}) {
		return nil, fmt.Errorf("commitment contract address must be assigned")
	}
	if cfg.SpawnTimeout <= 0 {
		cfg.SpawnTimeout = DefaultSpawnTimeout
	}

	n := &Node{
		cfg:           cfg,
		log:           obs.Logger(),
		tracer:        obs.Tracer("relay"),
		baseTracer:    tracer.New(cfg.Base),
		derivedTracer: tracer.New(cfg.Derived),
	}
	m := obs.Meter("relay")
	var err error
	if n.attemptCnt, err = m.Int64Counter("relay.attempt.count", metric.WithDescription("Number of submission attempts")); err != nil {
		return nil, fmt.Errorf("creating attempt counter: %w", err)
	}
	if n.attemptDur, err = m.Float64Histogram("relay.attempt.duration", metric.WithDescription("Attempt duration from received to terminal state"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating attempt duration histogram: %w", err)
	}
	return n, nil
}

// CloneFactory derives scratch instances from the live sandbox. Clones
// share the committed trie database but none of their writes reach the
// original.
func CloneFactory(live *ledger.Sandbox) SandboxFactory {
	return func(_ context.Context, name string) (ledger.Backend, error) {
		return live.Clone(name)
	}
}

// SubmitRawTransaction decodes a binary encoded signed transaction and
// runs it through the pipeline.
func (n *Node) SubmitRawTransaction(ctx context.Context, raw []byte, source Source) (*Result, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decoding raw transaction: %w", err)
	}
	return n.SubmitTransaction(ctx, tx, source)
}

func (n *Node) SubmitTransaction(ctx context.Context, tx *ethtypes.Transaction, source Source) (*Result, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is nil")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.run(ctx, n.newAttempt(tx, source))
}

// Commitment reads the commitment currently stored by the base ledger
// contract.
func (n *Node) Commitment(ctx context.Context) (*types.Commitment, error) {
	return ledger.ReadCommitment(ctx, n.cfg.Base, n.cfg.CommitmentAddr)
}

// CommitmentAddress returns the commitment contract address on the base
// ledger.
func (n *Node) CommitmentAddress() common.Address {
	return n.cfg.CommitmentAddr
}

func (n *Node) newAttempt(tx *ethtypes.Transaction, source Source) *attempt {
	a := &attempt{
		id:       uuid.New(),
		source:   source,
		tx:       tx,
		state:    StateReceived,
		bindings: n.cfg.Registry.Snapshot(),
	}
	a.log = n.log.With(logger.Attempt(a.id.String()))
	a.result.AttemptID = a.id
	return a
}

// run executes the pipeline for one attempt, the node mutex must be held.
// Mirrored deliveries re-enter through here as child attempts of the
// triggering one.
func (n *Node) run(ctx context.Context, a *attempt) (_ *Result, rErr error) {
	ctx, span := n.tracer.Start(ctx, "relay.attempt", trace.WithAttributes(
		attribute.String("attempt.id", a.id.String()),
		attribute.String("source", string(a.source)),
		observability.TxHash(a.tx.Hash().Bytes()),
	))
	defer func(start time.Time) {
		if rErr != nil {
			a.state = StateRejected
			span.RecordError(rErr)
			span.SetStatus(codes.Error, rErr.Error())
			a.log.Error("attempt rejected", logger.Error(rErr))
		}
		span.SetAttributes(observability.StateKey.String(a.state.String()))
		n.attemptCnt.Add(ctx, 1, metric.WithAttributes(observability.ErrStatus(rErr), attribute.String("source", string(a.source))))
		n.attemptDur.Record(ctx, time.Since(start).Seconds())
		span.End()
	}(time.Now())

	a.log.Info(fmt.Sprintf("received %s transaction", a.source), logger.TxHash(a.tx.Hash()))
	switch a.source {
	case SourceBase:
		return n.submitBase(ctx, a)
	case SourceDerived:
		return n.submitDerived(ctx, a)
	default:
		return nil, fmt.Errorf("unknown source chain %q", a.source)
	}
}

/*
submitDerived advances a derived ledger candidate through the full
pipeline. Every accepted candidate advances the commitment, local
transactions skip the scratch sandbox and carry empty call digests.
*/
func (n *Node) submitDerived(ctx context.Context, a *attempt) (*Result, error) {
	if err := n.classify(ctx, a, n.derivedTracer, n.cfg.Derived); err != nil {
		return nil, fmt.Errorf("classifying candidate: %w", err)
	}
	if a.cls.IsCrossLedger {
		if err := n.simulate(ctx, a); err != nil {
			return nil, fmt.Errorf("simulating candidate: %w", err)
		}
	} else {
		if err := n.executeLive(ctx, a); err != nil {
			return nil, fmt.Errorf("executing candidate: %w", err)
		}
	}
	if err := n.prove(ctx, a); err != nil {
		return nil, fmt.Errorf("proving candidate: %w", err)
	}
	if err := n.submitProof(ctx, a); err != nil {
		return nil, fmt.Errorf("submitting proof: %w", err)
	}
	if !a.promoted {
		if err := n.promote(ctx, a); err != nil {
			return nil, fmt.Errorf("promoting candidate: %w", err)
		}
	}
	if err := n.confirm(ctx, a); err != nil {
		return nil, fmt.Errorf("confirming commitment: %w", err)
	}
	a.result.L2TxHash = a.tx.Hash()
	a.result.FinalStateRoot = a.finalRoot
	return &a.result, nil
}

/*
submitBase executes a base ledger candidate and, when it touches a bound
proxy, mirrors the call to the derived ledger as a privileged delivery
which re-enters the pipeline.
*/
func (n *Node) submitBase(ctx context.Context, a *attempt) (*Result, error) {
	if err := n.classify(ctx, a, n.baseTracer, n.cfg.Base); err != nil {
		return nil, fmt.Errorf("classifying candidate: %w", err)
	}

	sim, err := n.cfg.Base.SimulateTx(ctx, a.tx)
	if err != nil {
		return nil, fmt.Errorf("pre-checking candidate: %w", err)
	}
	if !sim.Successful() {
		return nil, fmt.Errorf("candidate reverted: %s", sim.RevertReason)
	}
	if _, err := n.cfg.Base.SubmitTx(ctx, a.tx); err != nil {
		return nil, fmt.Errorf("executing candidate: %w", err)
	}
	if _, err := n.cfg.Base.MineBlock(ctx); err != nil {
		return nil, fmt.Errorf("sealing base block: %w", err)
	}
	a.result.L1TxHash = a.tx.Hash()
	a.state = StateSubmitted

	if !a.cls.IsCrossLedger {
		a.result.FinalStateRoot = n.cfg.Base.StateRoot()
		a.state = StateConfirmed
		return &a.result, nil
	}

	delivery, err := n.buildDelivery(a)
	if err != nil {
		return nil, fmt.Errorf("building mirrored delivery: %w", err)
	}
	child := n.newAttempt(delivery, SourceDerived)
	a.log.Info(fmt.Sprintf("delivering mirrored call as attempt %s", child.id), logger.TxHash(delivery.Hash()))
	res, err := n.run(ctx, child)
	if err != nil {
		return nil, fmt.Errorf("delivering mirrored call: %w", err)
	}
	a.result.L2TxHash = res.L2TxHash
	a.result.FinalStateRoot = res.FinalStateRoot
	a.state = StateConfirmed
	return &a.result, nil
}

/*
classify traces the candidate against the live chain it belongs to and
matches the contacted addresses against the binding snapshot. A revert
during tracing does not abort the attempt, addresses contacted before the
revert still classify the transaction.
*/
func (n *Node) classify(ctx context.Context, a *attempt, tr *tracer.Tracer, backend ledger.Backend) error {
	ctx, span := n.tracer.Start(ctx, "relay.classify")
	defer span.End()

	call, err := tracer.CandidateFromTx(a.tx, backend.ChainID())
	if err != nil {
		return err
	}
	addrs, err := tr.Trace(ctx, call)
	if err != nil {
		if !errors.Is(err, tracer.ErrCallReverted) {
			return err
		}
		a.log.Debug("candidate reverted during tracing", logger.Error(err))
	}
	a.cls = tracer.Classify(addrs, a.bindings)
	a.state = StateClassified
	a.log.Info(fmt.Sprintf("classified, cross-ledger: %v, bindings: %d", a.cls.IsCrossLedger, len(a.cls.Bindings)))
	return nil
}

/*
simulate executes the candidate in a scratch sandbox and captures the
mirror intents and the post execution state root. Connectivity class
failures are retried a bounded number of times, each retry with a freshly
spawned sandbox. Simulation level failures, a reverting candidate above
all, are terminal.
*/
func (n *Node) simulate(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.simulate")
	defer span.End()

	if err := withRetry(ctx, a.log, "simulation", func(ctx context.Context) error {
		return n.simulateOnce(ctx, a)
	}); err != nil {
		return err
	}
	a.state = StateSimulated
	return nil
}

func (n *Node) simulateOnce(ctx context.Context, a *attempt) (rErr error) {
	spawnCtx, cancel := context.WithTimeout(ctx, n.cfg.SpawnTimeout)
	scratch, err := n.cfg.Scratch(spawnCtx, fmt.Sprintf("scratch-%s", a.id))
	cancel()
	if err != nil {
		return fmt.Errorf("spawning scratch sandbox: %w", err)
	}
	defer func() {
		if err := scratch.Dispose(); err != nil {
			rErr = errors.Join(rErr, fmt.Errorf("disposing scratch sandbox: %w", err))
		}
	}()

	receipt, err := scratch.SubmitTx(ctx, a.tx)
	if err != nil {
		return fmt.Errorf("executing candidate: %w", err)
	}
	if !receipt.Successful() {
		return fmt.Errorf("candidate reverted: %s", receipt.RevertReason)
	}
	block, err := scratch.MineBlock(ctx)
	if err != nil {
		return fmt.Errorf("sealing simulation block: %w", err)
	}
	a.intents = receipt.Intents
	a.postRoot = block.Root
	a.finalRoot = block.Root
	a.log.Info(fmt.Sprintf("simulated with %d intent(s), root %X", len(a.intents), a.finalRoot))
	return nil
}

/*
executeLive is the local transaction path: the candidate goes straight to
the live derived chain. It is simulated once against a throwaway state
copy first so a reverting transaction is rejected without entering the
chain.
*/
func (n *Node) executeLive(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.execute")
	defer span.End()

	sim, err := n.cfg.Derived.SimulateTx(ctx, a.tx)
	if err != nil {
		return fmt.Errorf("pre-checking candidate: %w", err)
	}
	if !sim.Successful() {
		return fmt.Errorf("candidate reverted: %s", sim.RevertReason)
	}
	if _, err := n.cfg.Derived.SubmitTx(ctx, a.tx); err != nil {
		return fmt.Errorf("executing candidate: %w", err)
	}
	block, err := n.cfg.Derived.MineBlock(ctx)
	if err != nil {
		return fmt.Errorf("sealing live block: %w", err)
	}
	a.postRoot = block.Root
	a.finalRoot = block.Root
	a.promoted = true
	a.state = StateSimulated
	return nil
}

/*
prove resolves the captured intents into outgoing calls, reads the
commitment the proof must chain from and signs the whole thing. Signing
failure aborts before any ledger mutating call.
*/
func (n *Node) prove(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.prove")
	defer span.End()

	calls, err := n.resolveIntents(ctx, a)
	if err != nil {
		return err
	}
	a.calls = calls

	if err := withRetry(ctx, a.log, "commitment read", func(ctx context.Context) error {
		prev, err := ledger.ReadCommitment(ctx, n.cfg.Base, n.cfg.CommitmentAddr)
		if err != nil {
			return err
		}
		a.prev = prev
		return nil
	}); err != nil {
		return fmt.Errorf("reading current commitment: %w", err)
	}

	if a.rawTx, err = a.tx.MarshalBinary(); err != nil {
		return fmt.Errorf("encoding transaction: %w", err)
	}
	if a.prf, err = proof.Build(n.cfg.Attestor, a.prev, a.rawTx, a.postRoot, a.calls, a.finalRoot); err != nil {
		return err
	}
	a.state = StateProven
	return nil
}

/*
resolveIntents turns mirror intents into outgoing calls: the counterpart
address comes from the attempt's binding snapshot and the expected result
digest from a read only call against the live base ledger. A missing
binding fails the attempt naming the proxy, classification cannot have
seen it either.
*/
func (n *Node) resolveIntents(ctx context.Context, a *attempt) ([]*types.OutgoingCall, error) {
	if len(a.intents) == 0 {
		return nil, nil
	}
	calls := make([]*types.OutgoingCall, 0, len(a.intents))
	for _, intent := range a.intents {
		counterpart, ok := a.bindings.Resolve(intent.Proxy)
		if !ok {
			return nil, fmt.Errorf("no binding registered for proxy %s", intent.Proxy.Hex())
		}
		call := &types.OutgoingCall{
			From:     intent.Proxy,
			To:       counterpart,
			Value:    intent.Value,
			GasLimit: intent.GasLimit,
			Payload:  intent.Payload,
		}
		// the precompute carries no value, escrow moves only inside
		// acceptProof. Result digests bind call outputs and the contract
		// recomputes them during acceptance.
		res, err := n.cfg.Base.Call(ctx, ledger.CallMsg{
			From: n.cfg.CommitmentAddr,
			To:   &call.To,
			Gas:  call.GasLimit,
			Data: call.Payload,
		})
		if err != nil {
			return nil, fmt.Errorf("precomputing result of call to %s: %w", call.To.Hex(), err)
		}
		if res.ExecErr != nil {
			return nil, fmt.Errorf("outgoing call to %s reverts: %s", call.To.Hex(), res.RevertReason)
		}
		call.ResultDigest = crypto.Keccak256(res.ReturnData)
		calls = append(calls, call)
	}
	return calls, nil
}

/*
submitProof signs and lands the acceptProof transaction on the base
ledger. An on-chain revert is terminal, the contract's reason is reported
verbatim and never retried.
*/
func (n *Node) submitProof(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.submit")
	defer span.End()

	data, err := contracts.PackAcceptProof(a.rawTx, a.finalRoot, a.calls, a.prf)
	if err != nil {
		return fmt.Errorf("packing acceptProof call: %w", err)
	}
	submitter := crypto.PubkeyToAddress(n.cfg.SubmitterKey.PublicKey)
	tx, err := ethtypes.SignNewTx(n.cfg.SubmitterKey, ethtypes.LatestSignerForChainID(n.cfg.Base.ChainID()), &ethtypes.LegacyTx{
		Nonce:    n.cfg.Base.NonceOf(submitter),
		To:       &n.cfg.CommitmentAddr,
		Gas:      submitGasLimit,
		GasPrice: big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("signing acceptProof transaction: %w", err)
	}

	receipt, err := n.cfg.Base.SubmitTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("submitting acceptProof transaction: %w", err)
	}
	// the block is sealed regardless of the receipt status, a rejected
	// proof must not leave the submission staged for the next attempt
	if _, err := n.cfg.Base.MineBlock(ctx); err != nil {
		return fmt.Errorf("sealing acceptance block: %w", err)
	}
	if !receipt.Successful() {
		return fmt.Errorf("acceptProof reverted: %s", receipt.RevertReason)
	}
	a.result.L1TxHash = tx.Hash()
	a.state = StateSubmitted
	a.log.Info("proof submitted", logger.TxHash(tx.Hash()))
	return nil
}

// promote applies the accepted candidate to the live derived chain and
// checks the live root against the proven final root.
func (n *Node) promote(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.promote")
	defer span.End()

	receipt, err := n.cfg.Derived.SubmitTx(ctx, a.tx)
	if err != nil {
		return fmt.Errorf("applying candidate to live chain: %w", err)
	}
	block, err := n.cfg.Derived.MineBlock(ctx)
	if err != nil {
		return fmt.Errorf("sealing live block: %w", err)
	}
	if !receipt.Successful() {
		return fmt.Errorf("candidate reverted on live chain: %s", receipt.RevertReason)
	}
	if block.Root != a.finalRoot {
		return fmt.Errorf("live state diverged from proven state: expected %X, got %X", a.finalRoot, block.Root)
	}
	a.promoted = true
	return nil
}

/*
confirm reads the commitment back from the contract and compares it with
the proven final state. A mismatch is a hard error surfaced with both
values, never silently retried, it means the relay and the contract
disagree about derived ledger state.
*/
func (n *Node) confirm(ctx context.Context, a *attempt) error {
	ctx, span := n.tracer.Start(ctx, "relay.confirm")
	defer span.End()

	c, err := ledger.ReadCommitment(ctx, n.cfg.Base, n.cfg.CommitmentAddr)
	if err != nil {
		return fmt.Errorf("reading back commitment: %w", err)
	}
	if c.RootHash() != a.finalRoot {
		return fmt.Errorf("commitment mismatch: expected root %X, got %X", a.finalRoot, c.StateRoot)
	}
	if want := a.prev.BlockNumber + 1; c.BlockNumber != want {
		return fmt.Errorf("commitment mismatch: expected block %d, got %d", want, c.BlockNumber)
	}
	a.state = StateConfirmed
	a.log.Info(fmt.Sprintf("confirmed commitment %s", c))
	return nil
}

// buildDelivery signs the derived ledger transaction mirroring the base
// ledger candidate. Only the top level call of a transaction can be
// mirrored, the trace records which addresses nested calls reached but
// not their payloads.
func (n *Node) buildDelivery(a *attempt) (*ethtypes.Transaction, error) {
	to := a.tx.To()
	if to == nil {
		return nil, fmt.Errorf("contract creation cannot be mirrored")
	}
	counterpart, ok := a.bindings.Resolve(*to)
	if !ok {
		return nil, fmt.Errorf("transaction target %s carries no binding, only top-level proxy targets are mirrored", to.Hex())
	}
	authority := crypto.PubkeyToAddress(n.cfg.AuthorityKey.PublicKey)
	tx, err := ethtypes.SignNewTx(n.cfg.AuthorityKey, ethtypes.LatestSignerForChainID(n.cfg.Derived.ChainID()), &ethtypes.LegacyTx{
		Nonce:    n.cfg.Derived.NonceOf(authority),
		To:       &counterpart,
		Gas:      contracts.DefaultIntentGasLimit,
		GasPrice: big.NewInt(0),
		Data:     a.tx.Data(),
	})
	if err != nil {
		return nil, fmt.Errorf("signing delivery transaction: %w", err)
	}
	return tx, nil
}

// withRetry re-runs fn for connectivity class failures with backoff.
// Everything else aborts on the first occurrence, reverts and mismatches
// are never retried.
func withRetry(ctx context.Context, log *slog.Logger, op string, fn func(context.Context) error) error {
	backoff, err := retry.NewExponential(retryBackoff)
	if err != nil {
		return fmt.Errorf("setting up retry: %w", err)
	}
	return retry.Do(ctx, retry.WithMaxRetries(maxConnectivityRetries, backoff), func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isConnectivity(err) {
				log.Warn(fmt.Sprintf("%s failed, retrying", op), logger.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

func isConnectivity(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
