package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ignite/cdp-activation/internal/pkg/logger"
)

// MaxBodyBytes caps request bodies read by Decode. Segment definitions and
// upload requests are a few KB.
const MaxBodyBytes = 1 << 20

// Error codes shared by every handler. Handlers add domain codes of their
// own (unknown_segment, invalid_definition, ...).
const (
	CodeBadRequest   = "bad_request"
	CodeInvalidJSON  = "invalid_json"
	CodeBodyTooLarge = "body_too_large"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

// ErrorResponse is the error envelope of every API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with status. Encoding failures are logged; the status
// line is already gone by then.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode error", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// ErrorCode writes an error envelope with a machine-readable code.
func ErrorCode(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	ErrorCode(w, http.StatusBadRequest, CodeBadRequest, message)
}

// ServiceUnavailable writes a 503 error.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	ErrorCode(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// InternalError logs err and answers 500 with a generic message.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "error", err)
	ErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Decode reads exactly one JSON value from the body into dst, rejecting
// unknown fields, trailing data and bodies over MaxBodyBytes. On failure it
// writes the error response and returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decode(w, r, dst, false)
}

// DecodeOptional is Decode for endpoints whose body may be omitted; an
// empty body leaves dst untouched.
func DecodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON value")
	}

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case optional && errors.Is(err, io.EOF):
		return true
	case errors.As(err, &tooLarge):
		ErrorCode(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	default:
		ErrorCode(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON: "+err.Error())
	}
	return false
}

// CSV sends body as a file download of rows data rows.
func CSV(w http.ResponseWriter, filename string, rows int, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Warn("httputil: CSV write failed", "file", filename, "error", err)
	}
}
