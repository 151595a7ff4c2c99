package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	logpkg "github.com/kailas-cloud/ragchat/internal/logger"
)

// Error codes and fixed client messages.
const (
	codeBadRequest        = "bad_request"
	codeInvalidInput      = "invalid_input"
	codeNotFound          = "not_found"
	codeEmbeddingFailed   = "embedding_failed"
	codeLLMFailed         = "llm_failed"
	codeStoreUnavailable  = "store_unavailable"
	codeDimensionMismatch = "dimension_mismatch"
	codeNoTextSearch      = "text_search_not_supported"
	codeInternalError     = "internal_error"
	searchFailedMessage   = "search failed"
	internalErrorMessage  = "internal error"
	invalidBodyPrefix     = "invalid request body: "
)

// errorMapping translates a domain sentinel into an HTTP status and code.
type errorMapping struct {
	sentinel error
	status   int
	code     string
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput},
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrEmbeddingFailed, http.StatusBadGateway, codeEmbeddingFailed},
	{domain.ErrLLMFailed, http.StatusBadGateway, codeLLMFailed},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable},
	{domain.ErrDimensionMismatch, http.StatusInternalServerError, codeDimensionMismatch},
	{domain.ErrTextSearchNotSupported, http.StatusNotImplemented, codeNoTextSearch},
}

// classify returns the status, code and client-safe message for err.
// Only validation errors expose their full text; everything else is reduced to the sentinel.
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		if m.sentinel == domain.ErrInvalidInput || m.sentinel == domain.ErrNotFound {
			return m.status, m.code, err.Error()
		}
		return m.status, m.code, m.sentinel.Error()
	}
	return http.StatusInternalServerError, codeInternalError, internalErrorMessage
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, ids []string) {
	status, code, msg := classify(err)
	log := logpkg.FromContextOr(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Warn("domain error", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Error: msg, IDs: ids})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}
