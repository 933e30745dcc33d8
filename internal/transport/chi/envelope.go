package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	logpkg "github.com/fanhaiyang93/data-asset-platform-sub002/internal/logger"
)

// Error codes carried in the response envelope.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeExperimentNotFound = "experiment_not_found"
	CodeConflict           = "conflict"
	CodeExperimentStopped  = "experiment_not_active"
	CodeNotImplemented     = "not_implemented"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternalError      = "internal_error"
)

// Envelope wraps every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeFailure is sent when a response body cannot be marshalled.
var encodeFailure = []byte(`{"success":false,"error":{"code":"` + CodeInternalError + `","message":"response encoding failed"}}` + "\n")

// writeJSON marshals v before touching the response so an unencodable body
// becomes a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailure)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// errorHandler writes a response for err and reports whether it matched.
type errorHandler func(w http.ResponseWriter, err error) bool

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// validationHandler echoes the field and reason back to the caller.
func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, ve.Error())
		return true
	}
	if errors.Is(err, domain.ErrValidation) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, domain.ErrValidation.Error())
		return true
	}
	return false
}

var errorHandlers = []errorHandler{
	validationHandler,
	sentinelHandler(domain.ErrExperimentNotFound, http.StatusNotFound, CodeExperimentNotFound),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	sentinelHandler(domain.ErrExperimentStopped, http.StatusConflict, CodeExperimentStopped),
	sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, CodeConflict),
	sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeConflict),
	sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	sentinelHandler(domain.ErrServiceUnavailable, http.StatusServiceUnavailable, CodeServiceUnavailable),
	sentinelHandler(domain.ErrBackendUnavailable, http.StatusServiceUnavailable, CodeServiceUnavailable),
}

// handleDomainError maps err to a status and code without leaking internals.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			if errors.Is(err, domain.ErrValidation) {
				log.Debug("Rejected request", zap.Error(err))
			} else {
				log.Warn("Request failed", zap.Error(err))
			}
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
