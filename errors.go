package redisrouter

import (
	"errors"
	"fmt"

	"github.com/raniellyferreira/redis-replica-router/router"
)

// Error types for specific failure scenarios
var (
	// ErrRedirectionLoop indicates a command was redirected more times than allowed
	ErrRedirectionLoop = router.ErrRedirectionLoop

	// ErrClusterUnavailable indicates the cluster kept answering CLUSTERDOWN or
	// another transient error until the retry budget ran out
	ErrClusterUnavailable = router.ErrClusterUnavailable

	// ErrConnectionFailed indicates a server could not be reached within the retry budget
	ErrConnectionFailed = router.ErrConnectionFailed

	// ErrTimeout indicates an operation timed out
	ErrTimeout = router.ErrTimeout

	// ErrProtocol indicates a malformed or unexpected reply
	ErrProtocol = router.ErrProtocol

	// ErrCancelled indicates the caller cancelled the command
	ErrCancelled = router.ErrCancelled

	// ErrClosed indicates the client has been closed
	ErrClosed = router.ErrClosed

	// ErrNoTopology indicates no topology has been discovered yet
	ErrNoTopology = router.ErrNoTopology

	// ErrInvalidCommand indicates an empty or malformed command
	ErrInvalidCommand = router.ErrInvalidCommand

	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RedirectError describes the redirection that exceeded the limit.
type RedirectError = router.RedirectError

// ServerError is an error reply such as ERR or WRONGTYPE.
type ServerError = router.ServerError

// ConnectionError represents a connection-related error
type ConnectionError = router.ConnectionError

// ProtocolError reports a reply whose type does not fit the command.
type ProtocolError struct {
	Message string
	Data    []byte
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// Unwrap lets errors.Is match ErrProtocol.
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// ConfigError names the option that failed validation.
type ConfigError struct {
	Option string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Option, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
