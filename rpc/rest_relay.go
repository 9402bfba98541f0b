package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/crossbill-org/crossbill/relay"
	"github.com/crossbill-org/crossbill/types"
)

const (
	pathTransactions = "/transactions"
	pathCommitment   = "/commitment"
)

type (
	relayNode interface {
		SubmitRawTransaction(ctx context.Context, raw []byte, source relay.Source) (*relay.Result, error)
		Commitment(ctx context.Context) (*types.Commitment, error)
	}

	// SubmitTxRequest is the body of a transaction submission. The
	// transaction is the RLP encoding of a signed transaction, SourceChain
	// names the ledger it was signed for.
	SubmitTxRequest struct {
		SignedTransaction hexutil.Bytes `json:"signedTransaction"`
		SourceChain       string        `json:"sourceChain"`
	}

	SubmitTxResponse struct {
		L1TxHash       common.Hash `json:"l1TxHash"`
		L2TxHash       common.Hash `json:"l2TxHash"`
		FinalStateRoot common.Hash `json:"finalStateRoot"`
	}

	CommitmentResponse struct {
		BlockNumber uint64      `json:"blockNumber"`
		StateRoot   common.Hash `json:"stateRoot"`
	}
)

func RelayEndpoints(node relayNode, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {

		// submit a signed transaction for relaying
		r.HandleFunc(pathTransactions, submitTransaction(node, log)).Methods(http.MethodPost, http.MethodOptions)

		// read the commitment currently stored by the base ledger contract
		r.HandleFunc(pathCommitment, getCommitment(node, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func submitTransaction(node relayNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		req := &SubmitTxRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			WriteJSONError(w, fmt.Errorf("unable to decode request body as transaction submission: %w", err), http.StatusBadRequest, log)
			return
		}
		source := relay.Source(req.SourceChain)
		if source != relay.SourceBase && source != relay.SourceDerived {
			WriteJSONError(w, fmt.Errorf("invalid source chain %q, expected %q or %q", req.SourceChain, relay.SourceBase, relay.SourceDerived), http.StatusBadRequest, log)
			return
		}
		if len(req.SignedTransaction) == 0 {
			WriteJSONError(w, fmt.Errorf("signed transaction is empty"), http.StatusBadRequest, log)
			return
		}
		res, err := node.SubmitRawTransaction(r.Context(), req.SignedTransaction, source)
		if err != nil {
			WriteJSONError(w, err, http.StatusBadRequest, log)
			return
		}
		WriteJSONResponse(w, &SubmitTxResponse{
			L1TxHash:       res.L1TxHash,
			L2TxHash:       res.L2TxHash,
			FinalStateRoot: res.FinalStateRoot,
		}, http.StatusOK, log)
	}
}

func getCommitment(node relayNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := node.Commitment(r.Context())
		if err != nil {
			WriteJSONError(w, err, http.StatusInternalServerError, log)
			return
		}
		WriteJSONResponse(w, &CommitmentResponse{
			BlockNumber: c.BlockNumber,
			StateRoot:   c.RootHash(),
		}, http.StatusOK, log)
	}
}
