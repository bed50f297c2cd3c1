package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Code classifies a failure so callers and operators can distinguish outcomes
// without parsing message text. Codes are stable strings persisted alongside
// task records.
type Code string

const (
	CodeStartTimeout       Code = "engine_start_timeout"
	CodeLoadError          Code = "engine_load_error"
	CodeExportTimeout      Code = "engine_export_timeout"
	CodeExportError        Code = "engine_export_error"
	CodeVerificationFailed Code = "export_verification_failed"
	CodeResetError         Code = "engine_reset_error"
	CodeUnavailable        Code = "engine_unavailable"
	CodeRestartExhausted   Code = "engine_restart_exhausted"
	CodeInterrupted        Code = "interrupted"
)

// Error carries a classification code plus operation context around a cause.
type Error struct {
	Code      Code
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(string(e.Code), e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", detail, e.Err)
	}
	return detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds a classified error with operation context. The code should be
// one of the exported Code constants.
func Wrap(code Code, operation, message string, err error) error {
	return &Error{Code: code, Operation: operation, Message: message, Err: err}
}

// CodeOf extracts the classification code from an error chain. Unclassified
// errors report an empty code.
func CodeOf(err error) Code {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ""
}

// Message returns the human-readable portion of a classified error, falling
// back to the full error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		detail := buildDetail(classified.Operation, classified.Message, "")
		if classified.Err != nil {
			if detail != "" {
				return detail + ": " + classified.Err.Error()
			}
			return classified.Err.Error()
		}
		if detail != "" {
			return detail
		}
	}
	return err.Error()
}

// IsTransport reports whether an error chain indicates the engine transport
// itself failed (connection refused/reset, dial timeout, dead socket) rather
// than the engine answering with a failure. Transport failures warrant an
// engine restart; application-level failures do not.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsTimeout reports whether an error chain represents deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func buildDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ": ")
}
