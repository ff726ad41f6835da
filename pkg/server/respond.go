package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/credentials"
	"github.com/harrisonrobin/nexus/pkg/insight"
	"github.com/harrisonrobin/nexus/pkg/reconcile"
	"github.com/harrisonrobin/nexus/pkg/store"
)

// Response is the envelope of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error codes.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeReservedID   = "RESERVED_ID"
	CodeSyncedItem   = "SYNCED_ITEM"
	CodeNotSynced    = "NOT_SYNCED"
	CodeAuth         = "AUTH_ERROR"
	CodeTransport    = "TRANSPORT_ERROR"
	CodeProtocol     = "PROTOCOL_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

// apiError is an error with a fixed status and code.
type apiError struct {
	status int
	code   string
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, code: CodeBadRequest, msg: fmt.Sprintf(format, args...)}
}

func writeData(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeFailure(w http.ResponseWriter, logger *zap.Logger, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: false, Error: msg, Code: code}); err != nil {
		logger.Warn("failed to encode error response", zap.Error(err))
	}
}

// classify maps err to a status, a code and a message safe to return.
func classify(err error) (int, string, string) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status, ae.code, ae.msg
	}

	switch adapter.KindOf(err) {
	case adapter.ErrAuth:
		return http.StatusUnauthorized, CodeAuth, err.Error()
	case adapter.ErrTransport:
		return http.StatusGatewayTimeout, CodeTransport, err.Error()
	case adapter.ErrProtocol:
		return http.StatusBadGateway, CodeProtocol, err.Error()
	}

	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, credentials.ErrNotFound),
		errors.Is(err, alerts.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, store.ErrExists):
		return http.StatusConflict, CodeConflict, err.Error()
	case errors.Is(err, adapter.ErrUnknownKind):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, reconcile.ErrNotSynced):
		return http.StatusBadRequest, CodeNotSynced, err.Error()
	case errors.Is(err, insight.ErrNotConfigured):
		return http.StatusServiceUnavailable, CodeUnavailable, "report generation is not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout, "request cancelled"
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err))
	}
	writeFailure(w, s.logger, status, msg, code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
