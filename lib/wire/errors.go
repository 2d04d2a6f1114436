// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed call. Codes travel on the wire as
// strings so clients can match on them without a shared enum.
type ErrorCode string

const (
	// CodeUnknownNode: the call targeted a node ID that is not live.
	CodeUnknownNode ErrorCode = "unknown_node"

	// CodeMethodNotSupported: the aspect is unregistered, not attached
	// to the node, or has no such method.
	CodeMethodNotSupported ErrorCode = "method_not_supported"

	// CodePermissionDenied: an ownership-sensitive method was called
	// by a client that neither owns nor was delegated the node.
	CodePermissionDenied ErrorCode = "permission_denied"

	// CodeClientDisconnected: the party that would have answered went
	// away before it did.
	CodeClientDisconnected ErrorCode = "client_disconnected"

	// CodeInternalAspectError: the handler faulted. The server logged
	// the fault and kept running.
	CodeInternalAspectError ErrorCode = "internal_aspect_error"

	// CodeInvalidArguments: the arguments did not decode into the
	// method's argument shape.
	CodeInvalidArguments ErrorCode = "invalid_arguments"

	// CodeAspectError: the handler rejected a well-formed request,
	// for example a reparent that would create a loop.
	CodeAspectError ErrorCode = "aspect_error"

	// CodeTimeout: a forwarded call got no response in time.
	CodeTimeout ErrorCode = "timeout"
)

// Error is the typed failure carried by an error Response.
type Error struct {
	Code    ErrorCode `cbor:"1,keyasint"`
	Message string    `cbor:"2,keyasint,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError converts any error returned by a handler into a wire Error.
// Errors that already carry a code keep it; everything else becomes
// CodeAspectError with the error text as the message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	return &Error{Code: CodeAspectError, Message: err.Error()}
}

// ProtocolError reports a frame or envelope that violates the wire
// format. It is always fatal to the connection it arrived on.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol error: " + e.Reason
	}
	return "protocol error: " + e.Reason + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErrorf(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr)
}
