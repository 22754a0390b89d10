// Package response writes the API's JSON envelopes: {"data": ...} on success
// and {"error": {"code", "message", "details"}} on failure.
package response

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeNotFound         = "NOT_FOUND"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeQueueUnavailable = "QUEUE_UNAVAILABLE"
	CodeDegraded         = "DEGRADED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
)

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Accepted answers a request whose work continues in the background.
// location is where the client polls for the outcome.
func Accepted(w http.ResponseWriter, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Invalid reports a request that parsed but broke an input rule.
func Invalid(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeValidationFailed, message, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
