package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure. The dispatcher maps each kind to a
// JSON-RPC error code.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindConnection
	KindPolicy
	KindInvalidParams
	KindMethodNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindPolicy:
		return "policy violation"
	case KindInvalidParams:
		return "invalid params"
	case KindMethodNotFound:
		return "method not found"
	default:
		return "internal"
	}
}

// Error is the single error type surfaced by the gateway core.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err, defaulting to KindInternal for errors
// that did not originate in the gateway.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindInternal
}

func ConfigError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

func ConnectionError(err error) *Error {
	return &Error{Kind: KindConnection, Message: "failed to connect to database", Err: err}
}

func PolicyViolation(format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

func InvalidParams(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func MethodNotFound(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

// InternalError wraps a store failure; the store's text is kept for the caller.
func InternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
