package response

import (
	"errors"
	"net/http"

	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
)

// Error codes for dispatch failures
const (
	CodeUnrecognizedIdentifier = "unrecognized_identifier"
	CodeWriteFailed            = "write_failed"
	CodeConstraintViolation    = "constraint_violation"
	CodeNotImplemented         = "not_implemented"
	CodeNotInitialized         = "not_initialized"
	CodeInvalidInput           = "invalid_input"
)

// StatusFor returns the HTTP status and error code for a dispatch error
func StatusFor(err error) (int, string) {
	switch {
	case provider.IsUnrecognized(err):
		return http.StatusNotFound, CodeUnrecognizedIdentifier
	case provider.IsNotInitialized(err):
		return http.StatusServiceUnavailable, CodeNotInitialized
	case provider.IsNotImplemented(err):
		return http.StatusNotImplemented, CodeNotImplemented
	case store.IsConstraintViolation(err):
		return http.StatusConflict, CodeConstraintViolation
	case store.IsInvalidInput(err):
		return http.StatusBadRequest, CodeInvalidInput
	case provider.IsWriteFailed(err):
		return http.StatusInternalServerError, CodeWriteFailed
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable, CodeNotInitialized
	default:
		return http.StatusInternalServerError, codeFor(http.StatusInternalServerError)
	}
}

// RenderDispatchError renders a provider or store error with its mapped status
func RenderDispatchError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	RenderErrorWithCode(w, status, err, code)
}
