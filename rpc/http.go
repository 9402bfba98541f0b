package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/crossbill-org/crossbill/logger"
)

// WriteJSONResponse replies to the request with the given response and HTTP code.
func WriteJSONResponse(w http.ResponseWriter, response any, statusCode int, log *slog.Logger) {
	w.Header().Set(headerContentType, applicationJson)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Warn("failed to write JSON response", logger.Error(err))
	}
}

// WriteJSONError replies to the request with the specified error message and HTTP code.
// It does not otherwise end the request; the caller should ensure no further
// writes are done to w.
func WriteJSONError(w http.ResponseWriter, e error, code int, log *slog.Logger) {
	w.Header().Set(headerContentType, applicationJson)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Err string `json:"err"`
	}{
		Err: fmt.Sprintf("%v", e),
	}); err != nil {
		log.Warn("failed to write JSON error response", logger.Error(err))
	}
}
