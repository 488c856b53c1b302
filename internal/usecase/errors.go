package usecase

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorBusy          ErrorCode = "BUSY"
	ErrorRequestFailed ErrorCode = "REQUEST_FAILED"
)

// Generic per-lane failure notices. Every request failure collapses to one of these.
const (
	AskFailureMessage     = "Failed to get response from server"
	PDFFailureMessage     = "❌ Failed to upload PDF"
	YouTubeFailureMessage = "❌ Failed to ingest YouTube video"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// IsCode reports whether err is a usecase error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Code == code
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type malformedResponder interface {
	MalformedResponse() bool
}

type backendReporter interface {
	BackendMessage() string
}

// requestFailure classifies a gateway error into a REQUEST_FAILED error with a
// reason describing where the request broke.
func requestFailure(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return newError(ErrorRequestFailed, "cancelled", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(ErrorRequestFailed, "timeout", err)
	}

	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		return newError(ErrorRequestFailed, "upstream_status", err)
	}
	var backendErr backendReporter
	if errors.As(err, &backendErr) {
		return newError(ErrorRequestFailed, "backend_error", err)
	}
	var malformed malformedResponder
	if errors.As(err, &malformed) && malformed.MalformedResponse() {
		return newError(ErrorRequestFailed, "malformed_response", err)
	}
	return newError(ErrorRequestFailed, "transport", err)
}

// upstreamStatusCode returns the HTTP status carried by err, if any.
func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
