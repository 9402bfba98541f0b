package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/crossbill-org/crossbill/bindings"
	"github.com/crossbill-org/crossbill/keyvaluedb/boltdb"
	"github.com/crossbill-org/crossbill/testutils/observability"
	"github.com/crossbill-org/crossbill/types"
)

func registerBody(t *testing.T, req *RegisterBindingsRequest) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestRESTServer_RegisterBindings(t *testing.T) {
	obs := observability.Default(t)
	proxy := common.Address{0xaa}
	counterpart := common.Address{0xbb}
	contract := common.Address{0xcc}

	serve := func(t *testing.T, registry *bindings.Registry, store *bindings.Store, body *bytes.Reader) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/bindings", body)
		recorder := httptest.NewRecorder()
		NewRESTServer("", MaxBodySize, obs, BindingEndpoints(registry, store, obs.Logger())).Handler.ServeHTTP(recorder, req)
		return recorder
	}

	t.Run("registration lands in the registry and the audit log", func(t *testing.T) {
		registry := bindings.NewRegistry()
		db, err := boltdb.New(filepath.Join(t.TempDir(), "bindings.db"))
		require.NoError(t, err)
		store, err := bindings.NewStore(db)
		require.NoError(t, err)

		recorder := serve(t, registry, store, registerBody(t, &RegisterBindingsRequest{
			ContractAddress: contract,
			Bindings: map[common.Address]common.Address{
				proxy:       counterpart,
				counterpart: proxy,
			},
		}))
		require.Equal(t, http.StatusOK, recorder.Code)

		resp := &RegisterBindingsResponse{}
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(resp))
		require.Equal(t, 2, resp.Registered)

		got, ok := registry.Resolve(proxy)
		require.True(t, ok)
		require.Equal(t, counterpart, got)
		got, ok = registry.Resolve(counterpart)
		require.True(t, ok)
		require.Equal(t, proxy, got)

		entries, err := store.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		// proxies are registered in address order
		require.Equal(t, proxy, entries[0].Proxy)
		require.Equal(t, counterpart, entries[1].Proxy)
		for _, e := range entries {
			require.Equal(t, contract, e.Contract)
			require.NotZero(t, e.RegisteredAt)
		}
	})

	t.Run("re-registration replaces the binding", func(t *testing.T) {
		registry := bindings.NewRegistry()
		for _, target := range []common.Address{counterpart, {0xdd}} {
			recorder := serve(t, registry, nil, registerBody(t, &RegisterBindingsRequest{
				Bindings: map[common.Address]common.Address{proxy: target},
			}))
			require.Equal(t, http.StatusOK, recorder.Code)
		}
		got, ok := registry.Resolve(proxy)
		require.True(t, ok)
		require.Equal(t, common.Address{0xdd}, got)
		require.Len(t, registry.Bindings(), 1)
	})

	t.Run("empty registration", func(t *testing.T) {
		recorder := serve(t, bindings.NewRegistry(), nil, registerBody(t, &RegisterBindingsRequest{ContractAddress: contract}))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Contains(t, recorder.Body.String(), "no bindings in request")
	})

	t.Run("unassigned counterpart", func(t *testing.T) {
		registry := bindings.NewRegistry()
		recorder := serve(t, registry, nil, registerBody(t, &RegisterBindingsRequest{
			Bindings: map[common.Address]common.Address{proxy: {}},
		}))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Contains(t, recorder.Body.String(), "counterpart address is unassigned")
		require.Empty(t, registry.Bindings())
	})

	t.Run("body is not JSON", func(t *testing.T) {
		recorder := serve(t, bindings.NewRegistry(), nil, bytes.NewReader([]byte("not a registration")))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Contains(t, recorder.Body.String(), "unable to decode request body as binding registration")
	})
}

func TestRESTServer_GetBindings(t *testing.T) {
	registry := bindings.NewRegistry()
	require.NoError(t, registry.Register(common.Address{2}, common.Address{3}))
	require.NoError(t, registry.Register(common.Address{1}, common.Address{4}))

	obs := observability.Default(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bindings", nil)
	recorder := httptest.NewRecorder()
	NewRESTServer("", MaxBodySize, obs, BindingEndpoints(registry, nil, obs.Logger())).Handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp []types.ProxyBinding
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	require.Equal(t, []types.ProxyBinding{
		{Proxy: common.Address{1}, Counterpart: common.Address{4}},
		{Proxy: common.Address{2}, Counterpart: common.Address{3}},
	}, resp)
}
