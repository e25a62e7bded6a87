package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies every failure the request engine and parser can surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindServerBusy
	KindNetwork
	KindTimeout
	KindAPI
	KindParse
	KindConfig
	KindCanceled
)

// String returns the journal/log name of the kind.
func (k Kind) String() string {
	switch k {
	case KindServerBusy:
		return "server_busy"
	case KindNetwork:
		return "network_error"
	case KindTimeout:
		return "timeout"
	case KindAPI:
		return "api_error"
	case KindParse:
		return "parse_error"
	case KindConfig:
		return "config_error"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the client, engine and parser.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status for KindAPI and KindServerBusy.
	StatusCode int

	// Detail carries native context: the response body, the DNS or
	// connection failure, or a snippet of unparseable text.
	Detail string

	// Timeout is the per-attempt limit that elapsed, for KindTimeout.
	Timeout time.Duration

	Err error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindServerBusy:
		msg = "server busy"
		if e.StatusCode != 0 {
			msg = fmt.Sprintf("server busy (%d)", e.StatusCode)
		}
	case KindNetwork:
		msg = "network connection failed"
	case KindTimeout:
		msg = fmt.Sprintf("request timed out after %s", e.Timeout)
	case KindAPI:
		msg = fmt.Sprintf("API error (%d)", e.StatusCode)
	case KindParse:
		msg = "failed to parse response"
	case KindConfig:
		msg = "configuration error"
	case KindCanceled:
		msg = "request canceled"
	default:
		msg = "request failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, context.Canceled) hold for canceled errors even
// when the underlying cause was a transport error.
func (e *Error) Is(target error) bool {
	return e.Kind == KindCanceled && target == context.Canceled
}

// KindOf returns the Kind of the first *Error in err's chain. Bare context
// cancellation is reported as KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindUnknown
}

// IsCanceled reports whether err represents an intentional stop.
func IsCanceled(err error) bool {
	return KindOf(err) == KindCanceled
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// NewParseError builds a KindParse error whose detail includes a snippet
// of the offending text.
func NewParseError(what string, raw string, cause error) *Error {
	detail := what
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", what, cause)
	}
	if raw != "" {
		detail = fmt.Sprintf("%s (near %q)", detail, snippet(raw, 120))
	}
	return &Error{Kind: KindParse, Detail: detail, Err: cause}
}

// NewConfigError wraps a configuration validation failure.
func NewConfigError(cause error) *Error {
	return &Error{Kind: KindConfig, Detail: cause.Error(), Err: cause}
}

// Canceled returns a KindCanceled error wrapping cause.
func Canceled(cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	return &Error{Kind: KindCanceled, Err: cause}
}

func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
