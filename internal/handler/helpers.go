package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

// Error codes returned in the "code" field of error bodies.
const (
	codeValidation         = "validation_error"
	codeInvalidOperation   = "invalid_operation"
	codeUnauthenticated    = "unauthenticated"
	codeInvalidCredentials = "invalid_credentials"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeConflict           = "conflict"
	codeGateway            = "gateway_error"
	codeTimeout            = "timeout"
	codeCircuitOpen        = "circuit_open"
	codeConfiguration      = "configuration_error"
	codeInternal           = "internal_error"
)

type errorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON body into dst. It writes a 400 and returns false
// when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var vErr *domain.ErrValidation
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, codeValidation, vErr.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return false
	}
	return true
}

// clientIP is the request's remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ErrValidation{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var invalidOp *domain.ErrInvalidOperation
	var unauthorized *domain.ErrUnauthorized
	var invalidCreds *domain.ErrInvalidCredentials
	var forbidden *domain.ErrForbidden
	var conflict *domain.ErrConflict
	var gateway *domain.ErrGateway
	var timeout *domain.ErrTimeout
	var circuitOpen *domain.ErrCircuitOpen
	var configuration *domain.ErrConfiguration

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.As(err, &invalidOp):
		logger.Debug("invalid operation", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, codeInvalidOperation, err.Error())
	case errors.As(err, &unauthorized):
		logger.Debug("unauthenticated", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
	case errors.As(err, &invalidCreds):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.As(err, &gateway):
		logger.Error("gateway error", zap.Int("upstream_status", gateway.StatusCode), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:          err.Error(),
			Code:           codeGateway,
			UpstreamStatus: gateway.StatusCode,
		})
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, codeTimeout, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeCircuitOpen, err.Error())
	case errors.As(err, &configuration):
		logger.Error("configuration error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeConfiguration, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
