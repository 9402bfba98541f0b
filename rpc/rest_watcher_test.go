package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	test "github.com/crossbill-org/crossbill/testutils"
	"github.com/crossbill-org/crossbill/testutils/observability"
	"github.com/crossbill-org/crossbill/types"
)

type mockVerifier struct {
	root common.Hash
	last *types.Commitment
}

func (m *mockVerifier) StateRoot() common.Hash          { return m.root }
func (m *mockVerifier) LastVerified() *types.Commitment { return m.last }

func TestRESTServer_GetStateRoot(t *testing.T) {
	root := common.BytesToHash(test.RandomBytes(32))
	verifier := &mockVerifier{
		root: root,
		last: &types.Commitment{BlockNumber: 12, StateRoot: root.Bytes()},
	}

	obs := observability.Default(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state-root", nil)
	recorder := httptest.NewRecorder()
	NewRESTServer("", MaxBodySize, obs, WatcherEndpoints(verifier, obs.Logger())).Handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, applicationJson, recorder.Result().Header.Get(headerContentType))

	resp := &StateRootResponse{}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(resp))
	require.Equal(t, root, resp.StateRoot)
	require.EqualValues(t, 12, resp.BlockNumber)
}
