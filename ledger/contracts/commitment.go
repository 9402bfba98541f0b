package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/types"
)

// CommitmentABI covers the base ledger anchor contract: acceptProof advances
// the stored commitment to the derived ledger, currentCommitment and attestor
// are views used by the relay and the watcher.
const CommitmentABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "rawTx", "type": "bytes"},
			{"internalType": "bytes32", "name": "finalStateRoot", "type": "bytes32"},
			{"internalType": "bytes", "name": "outgoingCalls", "type": "bytes"},
			{"internalType": "bytes", "name": "proof", "type": "bytes"}
		],
		"name": "acceptProof",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "currentCommitment",
		"outputs": [
			{"internalType": "uint64", "name": "blockNumber", "type": "uint64"},
			{"internalType": "bytes32", "name": "stateRoot", "type": "bytes32"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "attestor",
		"outputs": [
			{"internalType": "address", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "uint64", "name": "blockNumber", "type": "uint64"},
			{"indexed": false, "internalType": "bytes32", "name": "txDigest", "type": "bytes32"},
			{"indexed": false, "internalType": "address", "name": "submitter", "type": "address"},
			{"indexed": false, "internalType": "bytes32", "name": "newStateRoot", "type": "bytes32"}
		],
		"name": "CommitmentAdvanced",
		"type": "event"
	}
]`

var (
	commitmentABI = mustParseABI("commitment", CommitmentABI)

	commitmentBlockNumberSlot = common.BytesToHash([]byte{0x00})
	commitmentStateRootSlot   = common.BytesToHash([]byte{0x01})
	commitmentAttestorSlot    = common.BytesToHash([]byte{0x02})
)

const acceptProofCallGas = 30_000

type CommitmentContract struct {
	abi      abi.ABI
	gas      map[string]uint64
	executor map[string]ContractRunner

	vault    common.Address
	attestor common.Address
	initial  *types.Commitment
}

// NewCommitmentContract builds the anchor contract. Value bearing outgoing
// calls are funded from the vault at vault, the attestation on every proof
// must recover to attestor, and initial is the commitment the contract holds
// at genesis (the derived ledger genesis block).
func NewCommitmentContract(attestor common.Address, vault common.Address, initial *types.Commitment) *CommitmentContract {
	c := &CommitmentContract{
		abi: commitmentABI,
		gas: map[string]uint64{
			"acceptProof":       250_000,
			"currentCommitment": 3_000,
			"attestor":          3_000,
		},
		vault:    vault,
		attestor: attestor,
		initial:  initial.Clone(),
	}
	c.executor = map[string]ContractRunner{
		"acceptProof":       c.acceptProof,
		"currentCommitment": c.currentCommitment,
		"attestor":          c.attestorView,
	}
	return c
}

func (c *CommitmentContract) Name() string { return "commitment" }

func (c *CommitmentContract) ABI() abi.ABI { return c.abi }

func (c *CommitmentContract) InitialState() map[common.Hash]common.Hash {
	return map[common.Hash]common.Hash{
		commitmentBlockNumberSlot: common.BigToHash(new(big.Int).SetUint64(c.initial.BlockNumber)),
		commitmentStateRootSlot:   common.BytesToHash(c.initial.StateRoot),
		commitmentAttestorSlot:    common.BytesToHash(c.attestor.Bytes()),
	}
}

func (c *CommitmentContract) RequiredGas(input []byte) uint64 {
	method, err := c.abi.MethodById(input)
	if err != nil {
		// function not present in ABI
		return 0
	}
	return c.gas[method.Name]
}

func (c *CommitmentContract) Run(env Env, input []byte) ([]byte, error) {
	method, err := c.abi.MethodById(input)
	if err != nil {
		return nil, fmt.Errorf("invalid method: %w", err)
	}
	return c.executor[method.Name](env, input)
}

func (c *CommitmentContract) acceptProof(env Env, input []byte) ([]byte, error) {
	res, err := UnpackInput(c.abi, "acceptProof", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'acceptProof' input data: %w", err)
	}
	rawTx := *abi.ConvertType(res[0], new([]byte)).(*[]byte)
	finalRoot := *abi.ConvertType(res[1], new([32]byte)).(*[32]byte)
	callsBytes := *abi.ConvertType(res[2], new([]byte)).(*[]byte)
	proofBytes := *abi.ConvertType(res[3], new([]byte)).(*[]byte)

	var calls []*types.OutgoingCall
	if err := types.Cbor.Unmarshal(callsBytes, &calls); err != nil {
		return nil, fmt.Errorf("invalid outgoing call data: %w", err)
	}
	proof := &types.Proof{}
	if err := types.Cbor.Unmarshal(proofBytes, proof); err != nil {
		return nil, fmt.Errorf("invalid proof data: %w", err)
	}
	if err := proof.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid proof: %w", err)
	}

	current := c.storedCommitment(env)
	if err := proof.PreviousCommitment.AssertEqual(current); err != nil {
		return nil, fmt.Errorf("stale commitment: %w", err)
	}
	if !bytes.Equal(crypto.Keccak256(rawTx), proof.TxDigest) {
		return nil, fmt.Errorf("tx digest mismatch")
	}
	if !bytes.Equal(types.CallsDigest(calls), proof.CallsDigest) {
		return nil, fmt.Errorf("hash chain mismatch: calls digest")
	}
	if !bytes.Equal(types.ResultsDigest(calls), proof.ResultsDigest) {
		return nil, fmt.Errorf("hash chain mismatch: results digest")
	}
	if !bytes.Equal(finalRoot[:], proof.FinalStateDigest) {
		return nil, fmt.Errorf("hash chain mismatch: final state root")
	}
	if err := c.verifyAttestation(env, proof); err != nil {
		return nil, err
	}

	for i, call := range calls {
		if err := call.IsValid(); err != nil {
			return nil, fmt.Errorf("invalid outgoing call %d: %w", i, err)
		}
		if call.Value != nil && call.Value.Sign() > 0 {
			withdraw, err := vaultABI.Pack("withdrawTo", env.Address(), call.Value)
			if err != nil {
				return nil, fmt.Errorf("outgoing call %d: %w", i, err)
			}
			if _, err := env.Call(c.vault, nil, acceptProofCallGas, withdraw); err != nil {
				return nil, fmt.Errorf("outgoing call %d: %w", i, err)
			}
		}
		out, err := env.Call(call.To, call.Value, call.GasLimit, call.Payload)
		if err != nil {
			return nil, fmt.Errorf("outgoing call %d reverted: %w", i, err)
		}
		if !bytes.Equal(crypto.Keccak256(out), call.ResultDigest) {
			return nil, fmt.Errorf("call result mismatch: call %d", i)
		}
	}

	next := &types.Commitment{BlockNumber: current.BlockNumber + 1, StateRoot: finalRoot[:]}
	c.storeCommitment(env, next)

	var txDigest [32]byte
	copy(txDigest[:], proof.TxDigest)
	data, err := c.abi.Events["CommitmentAdvanced"].Inputs.Pack(next.BlockNumber, txDigest, env.Caller(), finalRoot)
	if err != nil {
		return nil, fmt.Errorf("unable to pack 'CommitmentAdvanced' event: %w", err)
	}
	env.AddLog([]common.Hash{c.abi.Events["CommitmentAdvanced"].ID}, data)
	return nil, nil
}

func (c *CommitmentContract) verifyAttestation(env Env, proof *types.Proof) error {
	if len(proof.Attestation) != crypto.SignatureLength {
		return fmt.Errorf("bad attestation: signature must be %d bytes", crypto.SignatureLength)
	}
	sigHash, err := proof.SigHash()
	if err != nil {
		return fmt.Errorf("bad attestation: %w", err)
	}
	pub, err := crypto.SigToPub(sigHash, proof.Attestation)
	if err != nil {
		return fmt.Errorf("bad attestation: %w", err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != loadAddress(env, commitmentAttestorSlot) {
		return fmt.Errorf("bad attestation: signed by %s", signer.Hex())
	}
	return nil
}

func (c *CommitmentContract) currentCommitment(env Env, _ []byte) ([]byte, error) {
	current := c.storedCommitment(env)
	var root [32]byte
	copy(root[:], current.StateRoot)
	return PackOutput(c.abi, "currentCommitment", current.BlockNumber, root)
}

func (c *CommitmentContract) attestorView(env Env, _ []byte) ([]byte, error) {
	return PackOutput(c.abi, "attestor", loadAddress(env, commitmentAttestorSlot))
}

func (c *CommitmentContract) storedCommitment(env Env) *types.Commitment {
	return &types.Commitment{
		BlockNumber: loadUint64(env, commitmentBlockNumberSlot),
		StateRoot:   env.GetState(commitmentStateRootSlot).Bytes(),
	}
}

func (c *CommitmentContract) storeCommitment(env Env, commitment *types.Commitment) {
	storeUint64(env, commitmentBlockNumberSlot, commitment.BlockNumber)
	env.SetState(commitmentStateRootSlot, common.BytesToHash(commitment.StateRoot))
}

// AcceptProofInput is the decoded calldata of an acceptProof transaction,
// the watcher parses submissions back out of base ledger blocks with it.
type AcceptProofInput struct {
	RawTx          []byte
	FinalStateRoot common.Hash
	Calls          []*types.OutgoingCall
	Proof          *types.Proof
}

func PackAcceptProof(rawTx []byte, finalRoot common.Hash, calls []*types.OutgoingCall, proof *types.Proof) ([]byte, error) {
	callsBytes, err := types.Cbor.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("encoding outgoing calls: %w", err)
	}
	proofBytes, err := types.Cbor.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("encoding proof: %w", err)
	}
	return commitmentABI.Pack("acceptProof", rawTx, [32]byte(finalRoot), callsBytes, proofBytes)
}

func ParseAcceptProofInput(input []byte) (*AcceptProofInput, error) {
	if len(input) < 4 || !bytes.Equal(input[:4], commitmentABI.Methods["acceptProof"].ID) {
		return nil, fmt.Errorf("input is not an 'acceptProof' call")
	}
	res, err := UnpackInput(commitmentABI, "acceptProof", input[4:])
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'acceptProof' input data: %w", err)
	}
	out := &AcceptProofInput{
		RawTx:          *abi.ConvertType(res[0], new([]byte)).(*[]byte),
		FinalStateRoot: common.Hash(*abi.ConvertType(res[1], new([32]byte)).(*[32]byte)),
	}
	callsBytes := *abi.ConvertType(res[2], new([]byte)).(*[]byte)
	proofBytes := *abi.ConvertType(res[3], new([]byte)).(*[]byte)
	if err := types.Cbor.Unmarshal(callsBytes, &out.Calls); err != nil {
		return nil, fmt.Errorf("invalid outgoing call data: %w", err)
	}
	out.Proof = &types.Proof{}
	if err := types.Cbor.Unmarshal(proofBytes, out.Proof); err != nil {
		return nil, fmt.Errorf("invalid proof data: %w", err)
	}
	return out, nil
}

func PackCurrentCommitment() ([]byte, error) {
	return commitmentABI.Pack("currentCommitment")
}

func PackAttestorQuery() ([]byte, error) {
	return commitmentABI.Pack("attestor")
}

func UnpackAttestorQuery(output []byte) (common.Address, error) {
	res, err := commitmentABI.Unpack("attestor", output)
	if err != nil {
		return common.Address{}, fmt.Errorf("unable to unpack 'attestor' output: %w", err)
	}
	return *abi.ConvertType(res[0], new(common.Address)).(*common.Address), nil
}

func UnpackCurrentCommitment(output []byte) (*types.Commitment, error) {
	res, err := commitmentABI.Unpack("currentCommitment", output)
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'currentCommitment' output: %w", err)
	}
	root := *abi.ConvertType(res[1], new([32]byte)).(*[32]byte)
	return &types.Commitment{
		BlockNumber: *abi.ConvertType(res[0], new(uint64)).(*uint64),
		StateRoot:   root[:],
	}, nil
}

// CommitmentAdvancedEvent is the decoded CommitmentAdvanced log.
type CommitmentAdvancedEvent struct {
	BlockNumber  uint64
	TxDigest     common.Hash
	Submitter    common.Address
	NewStateRoot common.Hash
}

func CommitmentAdvancedID() common.Hash {
	return commitmentABI.Events["CommitmentAdvanced"].ID
}

func ParseCommitmentAdvanced(l *ethtypes.Log) (*CommitmentAdvancedEvent, error) {
	if len(l.Topics) != 1 || l.Topics[0] != CommitmentAdvancedID() {
		return nil, fmt.Errorf("log is not a 'CommitmentAdvanced' event")
	}
	res, err := commitmentABI.Events["CommitmentAdvanced"].Inputs.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to unpack 'CommitmentAdvanced' event data: %w", err)
	}
	return &CommitmentAdvancedEvent{
		BlockNumber:  *abi.ConvertType(res[0], new(uint64)).(*uint64),
		TxDigest:     common.Hash(*abi.ConvertType(res[1], new([32]byte)).(*[32]byte)),
		Submitter:    *abi.ConvertType(res[2], new(common.Address)).(*common.Address),
		NewStateRoot: common.Hash(*abi.ConvertType(res[3], new([32]byte)).(*[32]byte)),
	}, nil
}
