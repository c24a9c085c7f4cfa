package router

import (
	"context"
	"fmt"
	"time"

	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// envelope carries one command through the router. It is owned by the
// loop goroutine from the moment it is received until it completes.
type envelope struct {
	cmd     Command
	payload []byte
	key     []byte
	slot    uint16
	keyed   bool

	ctx     context.Context
	started time.Time

	redirections int
	attempts     int

	// target overrides slot resolution for the next dispatch only.
	target *topology.Server
	asking bool

	// primer marks the ASKING command written ahead of an asked envelope.
	primer bool

	done      chan Result
	batch     *batch
	index     int
	completed bool
}

func newEnvelope(ctx context.Context, cmd Command) *envelope {
	env := &envelope{
		cmd:     cmd,
		payload: cmd.Encode(nil),
		ctx:     ctx,
		started: time.Now(),
	}
	if key, ok := cmd.RoutingKey(); ok {
		env.key = key
		env.slot = topology.HashSlot(key)
		env.keyed = true
	}
	return env
}

type batch struct {
	results   []Result
	remaining int
	done      chan []Result
}

type (
	routeMsg struct {
		envs  []*envelope
		batch bool
	}
	retryMsg struct {
		envs []*envelope
	}
	syncMsg struct {
		full bool
		done chan error
	}
	topologyMsg struct {
		snap    *topology.Snapshot
		err     error
		started time.Time
	}
	establishedMsg struct {
		conn *connection.Conn[*envelope]
	}
	replyMsg struct {
		conn  *connection.Conn[*envelope]
		value protocol.Value
	}
	failedMsg struct {
		conn *connection.Conn[*envelope]
		err  error
	}
)

// connHandler forwards connection events into the router mailbox.
type connHandler struct {
	r *Router
}

func (h connHandler) Established(c *connection.Conn[*envelope]) {
	h.r.post(establishedMsg{conn: c})
}

func (h connHandler) Reply(c *connection.Conn[*envelope], v protocol.Value) {
	h.r.post(replyMsg{conn: c, value: v})
}

func (h connHandler) Failed(c *connection.Conn[*envelope], err error) {
	h.r.post(failedMsg{conn: c, err: err})
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
