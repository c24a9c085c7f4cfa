package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

func (r *Router) handleEstablished(conn *connection.Conn[*envelope]) {
	if !r.conns.Current(conn) {
		return
	}
	r.log.Debug("Connected", "server", conn.Server().String(), "readonly", conn.ReadOnly())
	r.metrics.RecordReconnection()
	r.stats.update(func(s *Stats) {
		s.Reconnections++
		s.Connections = r.conns.Len()
	})
}

func (r *Router) handleReply(conn *connection.Conn[*envelope], v protocol.Value) {
	if !r.conns.Current(conn) {
		return
	}
	env, ok := conn.Pop()
	if !ok {
		r.handleFailure(conn, fmt.Errorf("%w: reply without a pending command", ErrProtocol))
		return
	}
	if env.primer {
		return
	}

	reply, err := protocol.ParseReply(v)
	if err != nil {
		r.complete(env, v, err)
		return
	}

	switch reply.Kind {
	case protocol.ReplyNormal:
		if v.IsError() {
			r.complete(env, v, &ServerError{Message: v.Error()})
			return
		}
		r.complete(env, v, nil)
	case protocol.ReplyMoved, protocol.ReplyAsk:
		r.redirect(conn.Server(), env, reply)
	case protocol.ReplyClusterDown, protocol.ReplyTransient:
		reason := strings.ToLower(strings.SplitN(v.Error(), " ", 2)[0])
		r.retry([]*envelope{env}, reason, fmt.Errorf("%w: %s", ErrClusterUnavailable, v.Error()))
	}
}

// redirect follows a MOVED or ASK reply received from server. MOVED
// records the new owner in the topology; ASK is a one-shot detour that
// leaves the topology untouched.
func (r *Router) redirect(from topology.Server, env *envelope, reply protocol.Reply) {
	env.redirections++
	if env.redirections > r.cfg.MaxRedirections {
		r.log.Error("Redirection limit reached", "slot", reply.Slot, "addr", reply.Addr, "count", env.redirections-1)
		r.complete(env, protocol.Value{}, &RedirectError{
			Kind: reply.Kind,
			Slot: reply.Slot,
			Addr: reply.Addr,
			Err:  ErrRedirectionLoop,
		})
		return
	}

	target, err := redirectTarget(from, reply.Addr)
	if err != nil {
		r.complete(env, reply.Value, err)
		return
	}
	slot := uint16(reply.Slot)

	if reply.Kind == protocol.ReplyMoved {
		snap := r.store.Load()
		if cur, ok := snap.Primary(slot); snap.Clustered() && (!ok || cur != target) {
			r.store.Replace(snap.WithSlot(slot, target))
			r.log.Debug("Slot moved", "slot", slot, "from", cur.String(), "to", target.String())

			// A replica answering for a slot was promoted; its old
			// primary's replica set has changed too.
			if snap.IsReplica(target) {
				r.log.Info("Replica promoted", "server", target.String(), "slot", slot)
				r.requestSync(true, nil)
			}
		}
		r.stats.update(func(s *Stats) { s.Moved++ })
		r.metrics.RecordRedirection("moved")
	} else {
		env.asking = true
		r.stats.update(func(s *Stats) { s.Asks++ })
		r.metrics.RecordRedirection("ask")
		r.log.Debug("Slot asked", "slot", slot, "to", target.String())
	}

	env.target = &target
	r.dispatch(env)
}

// redirectTarget resolves the address in a redirection. An empty host
// refers to the node that sent it.
func redirectTarget(from topology.Server, addr string) (topology.Server, error) {
	target, err := topology.ParseServer(addr)
	if err != nil {
		return topology.Server{}, fmt.Errorf("%w: redirect address %q", ErrProtocol, addr)
	}
	if target.Host == "" {
		target.Host = from.Host
	}
	return target, nil
}

// handleFailure tears down a broken connection and routes its pending
// commands again. A lost replica is dropped from the topology; a lost
// primary triggers a cluster resync.
func (r *Router) handleFailure(conn *connection.Conn[*envelope], cause error) {
	if !r.conns.Current(conn) {
		return
	}
	server := conn.Server()
	items := r.conns.Close(server)

	pending := items[:0]
	for _, env := range items {
		if !env.primer {
			pending = append(pending, env)
		}
	}

	r.log.Error("Connection failed", "server", server.String(), "error", cause, "pending", len(pending))
	r.metrics.RecordError("connection")
	r.stats.update(func(s *Stats) { s.Connections = r.conns.Len() })

	// A corrupt stream cannot be attributed past its first reply.
	if errors.Is(cause, ErrProtocol) && len(pending) > 0 {
		r.complete(pending[0], protocol.Value{}, cause)
		pending = pending[1:]
	}

	snap := r.store.Load()
	if snap.IsReplica(server) {
		r.store.Replace(snap.WithoutReplica(server))
		r.stats.update(func(s *Stats) { s.DemotedReplicas++ })
		r.log.Info("Replica removed from topology", "server", server.String())
	} else {
		r.requestSync(true, nil)
	}

	if len(pending) == 0 {
		return
	}
	r.metrics.RecordRequeue(len(pending))
	r.stats.update(func(s *Stats) { s.Requeues += int64(len(pending)) })
	r.retry(pending, "connection", r.connectionFailed(server, cause))
}
