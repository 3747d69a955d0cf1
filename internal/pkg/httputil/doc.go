// Package httputil holds the response and request helpers used by the API
// handlers.
//
// Successful responses are the bare payload. Errors are always an
// ErrorResponse carrying a message and a machine-readable code. Request
// bodies are decoded strictly: one JSON value, no unknown fields, at most
// MaxBodyBytes.
package httputil
