// Package apierr provides structured API error types and HTTP status mapping
// compatible with the OpenAI error format.
package apierr

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeProviderError  = "provider_error"
	TypeRateLimitError = "rate_limit_error"
	TypeInvalidRequest = "invalid_request_error"
	TypeServerError    = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInternalError     = "internal_error"
	CodeProviderError     = "provider_error"
	CodeRequestTimeout    = "request_timeout"
	CodeInvalidRequest    = "invalid_request"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error     APIError `json:"error"`
		Message   string   `json:"message"`
		Code      string   `json:"code"`
		RequestID string   `json:"request_id,omitempty"`
		Timestamp string   `json:"timestamp"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given
// HTTP status. message must already be scrubbed of sensitive detail
// (e.g. no raw database driver strings) — callers own that translation.
// The envelope duplicates message/code at the top level per spec.md §7,
// alongside the nested "error" object kept for OpenAI-client compatibility.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	requestID := string(ctx.Response.Header.Peek("X-Request-ID"))
	body, _ := json.Marshal(envelope{
		Error:     APIError{Message: message, Type: errType, Code: code},
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	ctx.SetBody(body)
}
