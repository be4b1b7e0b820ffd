package host

import "errors"

// Standard error types that can be used with errors.Is()
var (
	// ErrAlreadyInitialized indicates Initialize was called on a manager that
	// already holds live connections.
	ErrAlreadyInitialized = errors.New("manager is already initialized")
	// ErrNotInitialized indicates an operation that requires Initialize first.
	ErrNotInitialized = errors.New("manager is not initialized")
	// ErrAllServersFailed indicates that no configured server reached the
	// connected state during Initialize.
	ErrAllServersFailed = errors.New("all servers failed to connect")
	// ErrNotRegistered indicates the requested tool or resource is not present
	// in the routing tables.
	ErrNotRegistered = errors.New("not registered with any server")
	// ErrNotConnected indicates the owning server is currently not connected.
	ErrNotConnected = errors.New("server is not connected")
	// ErrSpawnFailed indicates the worker process could not be started at all.
	// Spawn failures are terminal; there is nothing to retry against.
	ErrSpawnFailed = errors.New("failed to spawn worker process")
	// ErrConnectTimeout indicates a single handshake attempt ran out of time.
	ErrConnectTimeout = errors.New("connection attempt timed out")
	// ErrRetriesExhausted indicates every handshake attempt failed.
	ErrRetriesExhausted = errors.New("connection retries exhausted")
	// ErrProcessExited indicates the worker process died before or during
	// connection establishment.
	ErrProcessExited = errors.New("worker process exited")
)
