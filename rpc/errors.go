package rpc

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrTimeout completes a call whose deadline passed without a matching response.
	ErrTimeout = errors.ConstError("rpc timeout")

	// ErrNotConnected is returned when a correlated send is attempted while
	// the transport reports disconnected.
	ErrNotConnected = errors.ConstError("rpc: not connected")

	// ErrClientClosed fails calls still outstanding at Disconnect, and calls
	// issued after it.
	ErrClientClosed = errors.ConstError("rpc: client closed")

	// ErrRateLimited is returned when the publish rate limit is exhausted.
	ErrRateLimited = errors.ConstError("rpc: publish rate limit exceeded")
)

// Error codes carried in Response.Error by the Responder.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeServer         = -32000
)

// Error is the error object of a Response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an *Error a handler can return to control the code sent back.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
