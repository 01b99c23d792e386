package analyzer

import (
	"errors"
	"fmt"
)

// Standard errors returned by the analyzer session.
var (
	// ErrNotStarted indicates the session has not been started.
	ErrNotStarted = errors.New("analyzer session not started")

	// ErrAlreadyStarted indicates the session is already running.
	ErrAlreadyStarted = errors.New("analyzer session already started")

	// ErrSessionTerminated indicates the analyzer process died or its
	// stream closed. All pending requests are failed with this error and
	// no new requests are accepted until the session is restarted.
	ErrSessionTerminated = errors.New("analyzer session terminated")

	// ErrMalformedMessage indicates a framing or structural error while
	// decoding a message from the analyzer.
	ErrMalformedMessage = errors.New("malformed message from analyzer")

	// ErrRequestTimeout indicates a request did not receive a response
	// within its configured timeout.
	ErrRequestTimeout = errors.New("analyzer request timed out")
)

// SpawnError indicates the analyzer executable could not be started.
type SpawnError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// RPCError represents a JSON-RPC error explicitly returned by the analyzer
// for a request. It is recoverable: the command that triggered it fails, the
// session stays up.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("analyzer error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("analyzer error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// LSP-specific errors
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
	CodeRequestFailed        = -32803
)
