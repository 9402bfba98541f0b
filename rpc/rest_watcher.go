package rpc

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/crossbill-org/crossbill/types"
)

const pathStateRoot = "/state-root"

type (
	// stateVerifier is the read side of the watcher, the root it reports is
	// reconstructed independently of the relay pipeline.
	stateVerifier interface {
		StateRoot() common.Hash
		LastVerified() *types.Commitment
	}

	StateRootResponse struct {
		StateRoot   common.Hash `json:"stateRoot"`
		BlockNumber uint64      `json:"blockNumber"`
	}
)

func WatcherEndpoints(verifier stateVerifier, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {

		// replica state root reconstructed by replaying accepted submissions
		r.HandleFunc(pathStateRoot, getStateRoot(verifier, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func getStateRoot(verifier stateVerifier, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSONResponse(w, &StateRootResponse{
			StateRoot:   verifier.StateRoot(),
			BlockNumber: verifier.LastVerified().BlockNumber,
		}, http.StatusOK, log)
	}
}
