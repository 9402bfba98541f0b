package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/crossbill-org/crossbill/logger"
)

type (
	// NodeInfo is the static identity of the node served on /info.
	NodeInfo struct {
		Name               string
		BaseChainID        *big.Int
		DerivedChainID     *big.Int
		CommitmentContract common.Address
	}

	infoResponse struct {
		Name               string         `json:"name"` // one of [relay node | verifier node]
		BaseChainID        *big.Int       `json:"base_chain_id"`
		DerivedChainID     *big.Int       `json:"derived_chain_id"`
		CommitmentContract common.Address `json:"commitment_contract"`
	}
)

func InfoEndpoints(info NodeInfo, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {
		r.HandleFunc("/info", infoHandler(info, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func infoHandler(info NodeInfo, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := infoResponse{
			Name:               info.Name,
			BaseChainID:        info.BaseChainID,
			DerivedChainID:     info.DerivedChainID,
			CommitmentContract: info.CommitmentContract,
		}
		w.Header().Set(headerContentType, applicationJson)
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(i); err != nil {
			log.WarnContext(r.Context(), "failed to write info message", logger.Error(err))
		}
	}
}
