package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/crossbill-org/crossbill/bindings"
)

const pathBindings = "/bindings"

type (
	// RegisterBindingsRequest maps proxy addresses to their counterpart
	// addresses on the other ledger. ContractAddress names the base ledger
	// contract the registration belongs to, it is recorded in the audit
	// log only.
	RegisterBindingsRequest struct {
		ContractAddress common.Address                    `json:"contractAddress"`
		Bindings        map[common.Address]common.Address `json:"bindings"`
	}

	RegisterBindingsResponse struct {
		Registered int `json:"registered"`
	}
)

// BindingEndpoints serves the binding registry. The store is optional, when
// given every accepted registration is appended to its audit log.
func BindingEndpoints(registry *bindings.Registry, store *bindings.Store, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {

		// register proxy bindings, re-registering a proxy replaces its binding
		r.HandleFunc(pathBindings, putBindings(registry, store, log)).Methods(http.MethodPut, http.MethodOptions)

		// list the currently registered bindings
		r.HandleFunc(pathBindings, getBindings(registry, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func putBindings(registry *bindings.Registry, store *bindings.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		req := &RegisterBindingsRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			WriteJSONError(w, fmt.Errorf("unable to decode request body as binding registration: %w", err), http.StatusBadRequest, log)
			return
		}
		if len(req.Bindings) == 0 {
			WriteJSONError(w, fmt.Errorf("no bindings in request"), http.StatusBadRequest, log)
			return
		}

		// register in proxy address order so the audit log is deterministic
		proxies := make([]common.Address, 0, len(req.Bindings))
		for proxy := range req.Bindings {
			proxies = append(proxies, proxy)
		}
		sort.Slice(proxies, func(i, j int) bool {
			return bytes.Compare(proxies[i].Bytes(), proxies[j].Bytes()) < 0
		})

		for _, proxy := range proxies {
			if err := registry.Register(proxy, req.Bindings[proxy]); err != nil {
				WriteJSONError(w, fmt.Errorf("registering binding for proxy %s: %w", proxy, err), http.StatusBadRequest, log)
				return
			}
			if store == nil {
				continue
			}
			entry := bindings.Entry{Proxy: proxy, Counterpart: req.Bindings[proxy], Contract: req.ContractAddress}
			if _, err := store.Append(entry); err != nil {
				WriteJSONError(w, fmt.Errorf("recording binding for proxy %s: %w", proxy, err), http.StatusInternalServerError, log)
				return
			}
		}
		WriteJSONResponse(w, &RegisterBindingsResponse{Registered: len(req.Bindings)}, http.StatusOK, log)
	}
}

func getBindings(registry *bindings.Registry, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSONResponse(w, registry.Bindings(), http.StatusOK, log)
	}
}
