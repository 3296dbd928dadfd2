// Package errs defines the error kinds the orchestrator distinguishes
// between when deciding propagation, exit codes, and remediation text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the orchestrator's propagation policy.
type Kind string

const (
	// KindConfigInvalid marks a bad domain, bad port, bad mount, unknown
	// log level, or disallowed image reference caught during validation.
	KindConfigInvalid Kind = "config_invalid"
	// KindPermissionDenied marks a failed host packet-filter probe,
	// typically because the process is not running as root.
	KindPermissionDenied Kind = "permission_denied"
	// KindEngineUnavailable marks a missing container engine CLI or an
	// unreachable engine socket.
	KindEngineUnavailable Kind = "engine_unavailable"
	// KindProxyUnhealthy marks containers that came up but whose proxy
	// health check failed, usually from a bad proxy.conf.
	KindProxyUnhealthy Kind = "proxy_unhealthy"
	// KindDomainBlocked marks a non-zero agent exit where the access log
	// shows denials. Not itself treated as an orchestration failure.
	KindDomainBlocked Kind = "domain_blocked"
	// KindAgentFailed marks a non-zero agent exit with no denials found.
	KindAgentFailed Kind = "agent_failed"
)

// Error wraps an underlying cause with a Kind for dispatch by callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an Error of the given kind wrapping an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
