package connection

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is reported for writes to a closed connection.
var ErrClosed = errors.New("connection closed")

// Handler receives connection events. Calls for one connection are made
// from its own goroutines in order: Established, then Reply for each
// reply, then at most one Failed.
type Handler[T any] interface {
	Established(c *Conn[T])
	Reply(c *Conn[T], v protocol.Value)
	Failed(c *Conn[T], err error)
}

// Conn is one duplex connection with a FIFO of items awaiting replies.
// The N-th item queued with Send is paired with the N-th reply.
type Conn[T any] struct {
	server   topology.Server
	readOnly bool
	handler  Handler[T]

	state atomic.Int32

	mu      sync.Mutex
	pending []T
	out     []byte
	netConn net.Conn

	signal chan struct{}
	done   chan struct{}

	failOnce sync.Once
	closing  atomic.Bool

	writeTimeout time.Duration
}

func newConn[T any](server topology.Server, readOnly bool, handler Handler[T], writeTimeout time.Duration) *Conn[T] {
	c := &Conn[T]{
		server:       server,
		readOnly:     readOnly,
		handler:      handler,
		signal:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Server returns the peer identity.
func (c *Conn[T]) Server() topology.Server { return c.server }

// ReadOnly reports whether the connection was initialized with READONLY.
func (c *Conn[T]) ReadOnly() bool { return c.readOnly }

// State returns the current lifecycle state.
func (c *Conn[T]) State() State { return State(c.state.Load()) }

// Pending returns the number of items awaiting replies.
func (c *Conn[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send queues payload for writing and registers item as awaiting the
// reply. Payloads queued while connecting are written once the handshake
// completes.
func (c *Conn[T]) Send(item T, payload []byte) error {
	return c.SendBatch([]T{item}, payload)
}

// SendBatch registers items in order and writes payload, which must hold
// exactly one command per item, contiguously.
func (c *Conn[T]) SendBatch(items []T, payload []byte) error {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending = append(c.pending, items...)
	c.out = append(c.out, payload...)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the oldest pending item.
func (c *Conn[T]) Pop() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if len(c.pending) == 0 {
		return zero, false
	}
	item := c.pending[0]
	c.pending[0] = zero
	c.pending = c.pending[1:]
	return item, true
}

// Close tears down the connection and returns the items still awaiting
// replies, oldest first. No handler event is raised for a deliberate close.
func (c *Conn[T]) Close() []T {
	c.closing.Store(true)
	return c.shutdown()
}

func (c *Conn[T]) shutdown() []T {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state.Store(int32(StateClosed))
	items := c.pending
	c.pending = nil
	c.out = nil
	nc := c.netConn
	c.mu.Unlock()

	close(c.done)
	if nc != nil {
		nc.Close()
	}
	return items
}

func (c *Conn[T]) fail(err error) {
	c.failOnce.Do(func() {
		if c.closing.Load() {
			return
		}
		c.handler.Failed(c, err)
	})
}

// start dials in the background and then runs the reader and writer loops.
func (c *Conn[T]) start(ctx context.Context, d *Dialer) {
	go func() {
		if d.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
			defer cancel()
		}

		nc, reader, err := d.Dial(ctx, c.server, c.readOnly)
		if err != nil {
			c.fail(err)
			return
		}

		c.mu.Lock()
		if c.State() == StateClosed {
			c.mu.Unlock()
			nc.Close()
			return
		}
		c.netConn = nc
		c.state.Store(int32(StateReady))
		c.mu.Unlock()

		c.handler.Established(c)
		go c.writeLoop(nc)
		c.readLoop(reader)
	}()
}

func (c *Conn[T]) readLoop(reader *protocol.Reader) {
	for {
		v, err := reader.ReadNext()
		if err != nil {
			c.fail(err)
			return
		}
		c.handler.Reply(c, v)
	}
}

func (c *Conn[T]) writeLoop(nc net.Conn) {
	// Anything queued during the handshake is flushed on the first pass.
	pending := true
	for {
		if !pending {
			select {
			case <-c.signal:
			case <-c.done:
				return
			}
		}
		pending = false

		c.mu.Lock()
		buf := c.out
		c.out = nil
		c.mu.Unlock()
		if len(buf) == 0 {
			continue
		}

		if c.writeTimeout > 0 {
			nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := nc.Write(buf); err != nil {
			c.fail(err)
			nc.Close()
			return
		}
		if c.writeTimeout > 0 {
			nc.SetWriteDeadline(time.Time{})
		}
	}
}
