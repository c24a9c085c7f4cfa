package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// syncRound collects the requests served by one discovery.
type syncRound struct {
	pending bool

	// full rediscovers slot ownership; otherwise only the replica table
	// is replaced.
	full bool

	// resetReplicas closes every replica connection on install.
	resetReplicas bool

	waiters []chan error
}

func (s *syncRound) add(full bool, done chan error) {
	s.pending = true
	s.full = s.full || full
	s.resetReplicas = s.resetReplicas || !full
	if done != nil {
		s.waiters = append(s.waiters, done)
	}
}

// requestSync starts a topology discovery unless one is running. A
// request the running discovery covers joins it; a full request arriving
// during a replica-only discovery waits for a follow-up round. done, if
// set, receives the outcome of the round that serves the request.
func (r *Router) requestSync(full bool, done chan error) {
	switch {
	case !r.syncing:
		r.syncRun.add(full, done)
		r.startSync()
	case full && !r.syncRun.full:
		r.syncNext.add(full, done)
	default:
		r.syncRun.add(full, done)
	}
}

func (r *Router) startSync() {
	r.syncing = true
	full := r.syncRun.full

	seeds := r.discoverySeeds()
	started := time.Now()
	r.log.Debug("Discovering topology", "full", full, "seeds", len(seeds))

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.DiscoveryTimeout)
		defer cancel()
		snap, err := discover(ctx, r.cfg.Dialer, seeds, r.cfg.Cluster, r.log)
		r.post(topologyMsg{snap: snap, err: err, started: started})
	}()
}

// discoverySeeds lists known primaries first, then replicas, then the
// configured seeds.
func (r *Router) discoverySeeds() []topology.Server {
	snap := r.store.Load()
	seen := make(map[topology.Server]struct{})
	var out []topology.Server
	add := func(servers ...topology.Server) {
		for _, s := range servers {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	add(snap.Primaries()...)
	add(r.cfg.Seeds...)
	for replica := range snap.ReplicaTable() {
		add(replica)
	}
	return out
}

func (r *Router) installTopology(m topologyMsg) {
	round := r.syncRun
	r.syncRun = syncRound{}
	r.syncing = false
	full := round.full
	waiters := round.waiters

	if m.err != nil {
		r.log.Error("Topology discovery failed", "error", m.err)
		r.metrics.RecordError("topology")
		for _, w := range waiters {
			w <- m.err
		}
	} else {
		old := r.store.Load()
		if len(old.Primaries()) == 0 {
			full = true
		}

		var next *topology.Snapshot
		if full {
			next = m.snap.Rebase(old)
		} else {
			next = old.WithReplicas(m.snap.ReplicaTable())
		}
		r.store.Replace(next)
		r.resetConnections(old, next, round.resetReplicas)

		r.metrics.RecordTopologySync(time.Since(m.started))
		r.stats.update(func(s *Stats) {
			s.TopologySyncs++
			s.LastSync = time.Now()
			s.Connections = r.conns.Len()
		})
		r.log.Info("Topology installed",
			"version", next.Version(),
			"clustered", next.Clustered(),
			"primaries", len(next.Primaries()),
			"replicas", len(next.ReplicaTable()))

		for _, w := range waiters {
			w <- nil
		}
	}

	if r.syncNext.pending {
		r.syncRun, r.syncNext = r.syncNext, syncRound{}
		r.startSync()
	}
}

// resetConnections closes connections to servers that left the topology,
// and every replica connection when resetReplicas is set. Their pending
// commands are routed again against the new snapshot.
func (r *Router) resetConnections(old, next *topology.Snapshot, resetReplicas bool) {
	known := make(map[topology.Server]struct{})
	for _, s := range next.Servers() {
		known[s] = struct{}{}
	}

	var requeue []*envelope
	for _, server := range r.conns.Servers() {
		_, stillKnown := known[server]
		if stillKnown && !(resetReplicas && old.IsReplica(server)) {
			continue
		}
		for _, env := range r.conns.Close(server) {
			if !env.primer {
				requeue = append(requeue, env)
			}
		}
		r.log.Debug("Closed connection", "server", server.String())
	}
	if len(requeue) == 0 {
		return
	}
	r.metrics.RecordRequeue(len(requeue))
	r.stats.update(func(s *Stats) { s.Requeues += int64(len(requeue)) })
	r.dispatchBatch(requeue)
}

// discover asks each seed in turn for the topology and returns the first
// usable answer.
func discover(ctx context.Context, d *connection.Dialer, seeds []topology.Server, cluster bool, log Logger) (*topology.Snapshot, error) {
	lastErr := ErrNoTopology
	for _, seed := range seeds {
		var snap *topology.Snapshot
		var err error
		if cluster {
			snap, err = discoverCluster(ctx, d, seed)
		} else {
			snap, err = discoverStandalone(ctx, d, seed)
		}
		if err == nil {
			return snap, nil
		}
		log.Debug("Discovery seed failed", "server", seed.String(), "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("topology discovery failed: %w", lastErr)
}

func discoverCluster(ctx context.Context, d *connection.Dialer, seed topology.Server) (*topology.Snapshot, error) {
	v, err := d.Exchange(ctx, seed, "CLUSTER", "SLOTS")
	if err != nil {
		return nil, &ConnectionError{Addr: seed.String(), Err: err}
	}
	snap, err := topology.ParseClusterSlots(v, seed, 0)
	if err != nil {
		return nil, err
	}
	if len(snap.Primaries()) == 0 {
		return nil, fmt.Errorf("%w: %s reports no slots", ErrClusterUnavailable, seed)
	}
	return snap, nil
}

// discoverStandalone resolves the primary behind seed with ROLE and lists
// its replicas. Servers without ROLE are treated as a lone primary.
func discoverStandalone(ctx context.Context, d *connection.Dialer, seed topology.Server) (*topology.Snapshot, error) {
	role, err := queryRole(ctx, d, seed)
	if err != nil {
		var se *connection.ServerError
		if errors.As(err, &se) && se.Command == "ROLE" {
			return topology.StandaloneSnapshot(seed, topology.Role{Primary: true}, 0), nil
		}
		return nil, err
	}
	if role.Primary {
		return topology.StandaloneSnapshot(seed, role, 0), nil
	}

	primary := role.PrimaryAddr
	role, err = queryRole(ctx, d, primary)
	if err != nil {
		return nil, err
	}
	if !role.Primary {
		return nil, fmt.Errorf("%w: %s follows %s which is not a primary", ErrNoTopology, seed, primary)
	}
	return topology.StandaloneSnapshot(primary, role, 0), nil
}

func queryRole(ctx context.Context, d *connection.Dialer, server topology.Server) (topology.Role, error) {
	v, err := d.Exchange(ctx, server, "ROLE")
	if err != nil {
		var se *connection.ServerError
		if errors.As(err, &se) {
			return topology.Role{}, err
		}
		return topology.Role{}, &ConnectionError{Addr: server.String(), Err: err}
	}
	return topology.ParseRole(v, server)
}
