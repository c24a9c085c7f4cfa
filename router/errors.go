package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raniellyferreira/redis-replica-router/protocol"
)

var (
	// ErrRedirectionLoop indicates a command exceeded the redirection bound
	ErrRedirectionLoop = errors.New("too many redirections")

	// ErrClusterUnavailable indicates the cluster kept reporting itself down
	ErrClusterUnavailable = errors.New("cluster unavailable")

	// ErrConnectionFailed indicates the retry budget ran out on connection failures
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTimeout indicates the command deadline expired
	ErrTimeout = errors.New("operation timed out")

	// ErrProtocol indicates a malformed reply; such commands are never retried
	ErrProtocol = protocol.ErrProtocol

	// ErrCancelled indicates the caller abandoned the command
	ErrCancelled = errors.New("operation cancelled")

	// ErrClosed indicates the router has been closed
	ErrClosed = errors.New("router is closed")

	// ErrNoTopology indicates no server is known yet
	ErrNoTopology = errors.New("no topology available")

	// ErrInvalidCommand indicates an empty or malformed command
	ErrInvalidCommand = errors.New("invalid command")
)

// RedirectError describes the last redirection seen before giving up.
type RedirectError struct {
	Kind protocol.ReplyKind
	Slot int
	Addr string
	Err  error
}

// Error implements the error interface
func (e *RedirectError) Error() string {
	return fmt.Sprintf("%v after %s %d %s", e.Err, e.Kind, e.Slot, e.Addr)
}

// Unwrap returns the wrapped error
func (e *RedirectError) Unwrap() error {
	return e.Err
}

// ServerError is an error reply returned by a server.
type ServerError struct {
	Message string
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return e.Message
}

// Prefix returns the error code, e.g. "ERR" or "WRONGTYPE".
func (e *ServerError) Prefix() string {
	if i := strings.IndexByte(e.Message, ' '); i >= 0 {
		return e.Message[:i]
	}
	return e.Message
}

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}
