package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/andreyvit/recstore"
)

// Messages are part of the API contract; clients match on them.
const (
	MsgMissingOrInvalidID = "Missing or invalid id"
	MsgNotFoundID         = "Not found id=%d"
	MsgBadFormat          = "Bad format in request"
	MsgInvalidBody        = "Invalid or missing request body"
	MsgRequestTooLarge    = "Request too large"
	MsgInternal           = "Internal server error"
	MsgNotFound           = "Not found"
	MsgMethodNotAllowed   = "Method not allowed"
	MsgStorageUnavailable = "Storage unavailable"
)

// Response is the envelope of every non-record response.
type Response struct {
	OK    bool    `json:"ok"`
	Error *string `json:"error"`
	ID    *int64  `json:"id"`
}

func success(id int64) *Response {
	return &Response{OK: true, ID: &id}
}

// apiError is an error with the status and envelope it should produce.
type apiError struct {
	status int
	msg    string
	id     *int64
	cause  error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %v", e.status, e.msg, e.cause)
	}
	return fmt.Sprintf("%d %s", e.status, e.msg)
}

func (e *apiError) Unwrap() error {
	return e.cause
}

func (e *apiError) response() *Response {
	msg := e.msg
	return &Response{OK: false, Error: &msg, ID: e.id}
}

func badRequest(msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

func notFound(id int64) *apiError {
	return &apiError{status: http.StatusNotFound, msg: fmt.Sprintf(MsgNotFoundID, id), id: &id}
}

func internal(cause error) *apiError {
	return &apiError{status: http.StatusInternalServerError, msg: MsgInternal, cause: cause}
}

// toAPIError maps store errors to responses. Anything unrecognized is a 500.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &apiError{status: http.StatusRequestEntityTooLarge, msg: MsgRequestTooLarge, cause: err}
	}
	if errors.Is(err, recstore.ErrInvalidInput) {
		return &apiError{status: http.StatusBadRequest, msg: MsgBadFormat, cause: err}
	}
	return internal(err)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
		raw, _ = json.Marshal(internal(err).response())
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (e *env) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAPIError(err)
	if ae.status >= 500 {
		e.logger.ErrorContext(r.Context(), "Handler error", "err", err, "status", ae.status, "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	} else if ae.cause != nil {
		e.logger.DebugContext(r.Context(), "Request rejected", "err", err, "status", ae.status, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(r.Context(), w, ae.status, ae.response())
}
