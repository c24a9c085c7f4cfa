package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

var errUnassigned = errors.New("slot not assigned")

func (r *Router) dispatch(env *envelope) {
	r.dispatchBatch([]*envelope{env})
}

// dispatchBatch resolves every envelope and writes those bound for the
// same server contiguously, in submission order.
func (r *Router) dispatchBatch(envs []*envelope) {
	type group struct {
		server   topology.Server
		readOnly bool
		envs     []*envelope
	}
	var groups []*group
	byServer := make(map[topology.Server]*group)

	for _, env := range envs {
		if env.completed {
			continue
		}
		if err := env.ctx.Err(); err != nil {
			r.complete(env, protocol.Value{}, contextError(err))
			continue
		}
		server, readOnly, err := r.resolve(env)
		if err != nil {
			r.unroutable(env, err)
			continue
		}
		g, ok := byServer[server]
		if !ok {
			g = &group{server: server, readOnly: readOnly}
			byServer[server] = g
			groups = append(groups, g)
		}
		g.envs = append(g.envs, env)
	}

	for _, g := range groups {
		r.write(g.server, g.readOnly, g.envs)
	}
}

// resolve picks the server for env: an explicit redirect target, else the
// slot owner (or the next primary for keyless commands), else one of its
// replicas when the command prefers them.
func (r *Router) resolve(env *envelope) (topology.Server, bool, error) {
	if env.target != nil {
		return *env.target, false, nil
	}

	snap := r.store.Load()
	var primary topology.Server
	if env.keyed {
		p, ok := snap.Primary(env.slot)
		if !ok {
			if len(snap.Primaries()) == 0 {
				return topology.Server{}, false, ErrNoTopology
			}
			return topology.Server{}, false, errUnassigned
		}
		primary = p
	} else {
		primaries := snap.Primaries()
		if len(primaries) == 0 {
			return topology.Server{}, false, ErrNoTopology
		}
		primary = primaries[r.rotation%len(primaries)]
		r.rotation++
	}

	if env.cmd.PreferReplica {
		if replicas := snap.Replicas(primary); len(replicas) > 0 {
			var key []byte
			if env.keyed {
				key = env.key
			}
			return r.cfg.ReplicaPolicy.Pick(primary, replicas, key), snap.Clustered(), nil
		}
	}
	return primary, false, nil
}

func (r *Router) write(server topology.Server, readOnly bool, envs []*envelope) {
	conn := r.conns.GetOrConnect(server, readOnly)

	items := make([]*envelope, 0, len(envs))
	var payload []byte
	for _, env := range envs {
		if env.asking {
			items = append(items, &envelope{primer: true})
			payload = append(payload, askingPayload...)
			env.asking = false
		}
		env.target = nil
		items = append(items, env)
		payload = append(payload, env.payload...)
	}

	if err := conn.SendBatch(items, payload); err != nil {
		r.conns.Close(server)
		r.retry(envs, "connection", r.connectionFailed(server, err))
	}
}

// unroutable handles envelopes with no known destination by asking for a
// cluster resync and retrying after a backoff.
func (r *Router) unroutable(env *envelope, err error) {
	r.requestSync(true, nil)
	if errors.Is(err, errUnassigned) {
		err = fmt.Errorf("%w: slot %d has no owner", ErrClusterUnavailable, env.slot)
	}
	r.retry([]*envelope{env}, "unroutable", err)
}

// retry schedules envs for another dispatch after a backoff. Envelopes
// whose budget is spent complete with cause.
func (r *Router) retry(envs []*envelope, reason string, cause error) {
	var again []*envelope
	maxAttempt := 0
	for _, env := range envs {
		if env.completed || env.primer {
			continue
		}
		env.attempts++
		if err := env.ctx.Err(); err != nil {
			r.complete(env, protocol.Value{}, contextError(err))
			continue
		}
		if r.cfg.Retry.exhausted(env.attempts, env.started) {
			r.complete(env, protocol.Value{}, cause)
			continue
		}
		if env.attempts > maxAttempt {
			maxAttempt = env.attempts
		}
		again = append(again, env)
	}
	if len(again) == 0 {
		return
	}

	r.metrics.RecordRetry(reason)
	r.stats.update(func(s *Stats) { s.Retries += int64(len(again)) })

	delay := r.cfg.Retry.Backoff(maxAttempt)
	r.log.Debug("Retrying commands", "count", len(again), "reason", reason, "delay", delay)
	time.AfterFunc(delay, func() {
		r.post(retryMsg{envs: again})
	})
}

func (r *Router) complete(env *envelope, v protocol.Value, err error) {
	if env.completed || env.primer {
		return
	}
	env.completed = true

	r.metrics.RecordCommand(env.cmd.String(), time.Since(env.started))
	r.stats.update(func(s *Stats) {
		s.Commands++
		if err != nil {
			s.Errors++
		}
	})
	if err != nil {
		r.metrics.RecordError(errorType(err))
	}

	res := Result{Value: v, Err: err}
	if b := env.batch; b != nil {
		b.results[env.index] = res
		b.remaining--
		if b.remaining == 0 {
			b.done <- b.results
		}
		return
	}
	env.done <- res
}

func (r *Router) connectionFailed(server topology.Server, err error) error {
	return fmt.Errorf("%w: %w", ErrConnectionFailed, &ConnectionError{Addr: server.String(), Err: err})
}

func errorType(err error) string {
	var se *ServerError
	switch {
	case errors.As(err, &se):
		return "server"
	case errors.Is(err, ErrRedirectionLoop):
		return "redirection_loop"
	case errors.Is(err, ErrClusterUnavailable):
		return "cluster_unavailable"
	case errors.Is(err, ErrConnectionFailed):
		return "connection"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNoTopology):
		return "no_topology"
	default:
		return "other"
	}
}
