// Package response renders JSON bodies and maps dispatch errors onto HTTP
// status codes.
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// requestIDHeader is echoed by the request id middleware before handlers run
const requestIDHeader = "X-Request-ID"

var statusCodes = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "request_too_large",
	http.StatusUnsupportedMediaType:  "unsupported_media_type",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusInternalServerError:   "internal_error",
	http.StatusNotImplemented:        "not_implemented",
	http.StatusServiceUnavailable:    "service_unavailable",
}

// defaultMessages fill in replies rendered without a message
var defaultMessages = map[int]string{
	http.StatusUnauthorized:        "authentication required",
	http.StatusForbidden:           "access denied",
	http.StatusNotFound:            "resource not found",
	http.StatusInternalServerError: "internal server error",
	http.StatusServiceUnavailable:  "service temporarily unavailable",
}

func codeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return "error"
}

// RenderError renders err with a code derived from statusCode
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	render(w, statusCode, err.Error(), "", nil)
}

// RenderErrorWithCode renders err with a specific error code
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	render(w, statusCode, err.Error(), code, nil)
}

// RenderErrorWithDetails renders err with additional details
func RenderErrorWithDetails(w http.ResponseWriter, statusCode int, err error, details map[string]interface{}) {
	render(w, statusCode, err.Error(), "", details)
}

func RenderBadRequest(w http.ResponseWriter, message string) {
	render(w, http.StatusBadRequest, message, "", nil)
}

// RenderUnauthorized asks for a bearer token
func RenderUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	render(w, http.StatusUnauthorized, message, "", nil)
}

func RenderForbidden(w http.ResponseWriter, message string) {
	render(w, http.StatusForbidden, message, "", nil)
}

func RenderNotFound(w http.ResponseWriter, message string) {
	render(w, http.StatusNotFound, message, "", nil)
}

// RenderInternalError renders err, or a generic message when err is nil
func RenderInternalError(w http.ResponseWriter, err error) {
	var message string
	if err != nil {
		message = err.Error()
	}
	render(w, http.StatusInternalServerError, message, "", nil)
}

func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	render(w, http.StatusServiceUnavailable, message, "", nil)
}

func render(w http.ResponseWriter, status int, message, code string, details map[string]interface{}) {
	if message == "" {
		message = defaultMessages[status]
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if code == "" {
		code = codeFor(status)
	}

	JSON(w, status, &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get(requestIDHeader),
		Details:   details,
	})
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
