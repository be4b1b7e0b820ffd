package client

import (
	"errors"
	"fmt"

	"github.com/localrivet/mcphost/protocol"
)

// Standard error types that can be used with errors.Is()
var (
	// ErrNotConnected indicates an operation was attempted before Connect
	// succeeded or after the connection closed.
	ErrNotConnected = errors.New("client is not connected")
	// ErrAlreadyConnected indicates Connect was called twice on one client.
	ErrAlreadyConnected = errors.New("client is already connected")
	// ErrRequestTimeout indicates a request did not receive its response in
	// time. The outstanding entry is dropped; a late response is ignored.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnectionClosed indicates the worker terminated while requests were
	// still outstanding.
	ErrConnectionClosed = errors.New("connection closed")
)

// ServerError represents a JSON-RPC error response returned by a worker. The
// worker answered, so the connection itself is healthy.
type ServerError struct {
	Method  string
	Code    protocol.ErrorCode
	Message string
	Data    interface{}
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error on %s: [%d] %s", e.Method, e.Code, e.Message)
}

// NewServerError creates a ServerError from an error response payload.
func NewServerError(method string, payload *protocol.ErrorPayload) *ServerError {
	return &ServerError{
		Method:  method,
		Code:    payload.Code,
		Message: payload.Message,
		Data:    payload.Data,
	}
}
