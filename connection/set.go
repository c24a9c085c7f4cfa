package connection

import (
	"context"

	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Set holds one connection per server. It is not safe for concurrent use;
// a single owner goroutine drives it while connection events arrive
// through the Handler.
type Set[T any] struct {
	dialer  *Dialer
	handler Handler[T]
	conns   map[topology.Server]*Conn[T]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSet creates an empty connection set.
func NewSet[T any](dialer *Dialer, handler Handler[T]) *Set[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Set[T]{
		dialer:  dialer,
		handler: handler,
		conns:   make(map[topology.Server]*Conn[T]),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Get returns the live connection to server, if any.
func (s *Set[T]) Get(server topology.Server) (*Conn[T], bool) {
	c, ok := s.conns[server]
	return c, ok
}

// GetOrConnect returns the connection to server, starting a new one when
// none exists. readOnly only applies to newly created connections.
func (s *Set[T]) GetOrConnect(server topology.Server, readOnly bool) *Conn[T] {
	if c, ok := s.conns[server]; ok && c.State() != StateClosed {
		return c
	}
	c := newConn(server, readOnly, s.handler, s.dialer.WriteTimeout)
	s.conns[server] = c
	c.start(s.ctx, s.dialer)
	return c
}

// Current reports whether c is the connection registered for its server.
func (s *Set[T]) Current(c *Conn[T]) bool {
	return s.conns[c.server] == c
}

// Close tears down the connection to server and returns its pending items.
func (s *Set[T]) Close(server topology.Server) []T {
	c, ok := s.conns[server]
	if !ok {
		return nil
	}
	delete(s.conns, server)
	return c.Close()
}

// Servers lists servers with a registered connection.
func (s *Set[T]) Servers() []topology.Server {
	out := make([]topology.Server, 0, len(s.conns))
	for server := range s.conns {
		out = append(out, server)
	}
	return out
}

// Len returns the number of registered connections.
func (s *Set[T]) Len() int { return len(s.conns) }

// CloseAll tears down every connection and returns all pending items.
func (s *Set[T]) CloseAll() []T {
	s.cancel()
	var items []T
	for server, c := range s.conns {
		items = append(items, c.Close()...)
		delete(s.conns, server)
	}
	return items
}
