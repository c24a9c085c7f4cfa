package redisrouter

import (
	"context"

	"github.com/raniellyferreira/redis-replica-router/router"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Replicas sends commands to a replica of the owning primary when one is
// known, and to the primary otherwise. In cluster mode a replica may answer
// with MOVED, which is followed to the primary.
type Replicas struct {
	commands

	client *Client
}

func newReplicas(c *Client) *Replicas {
	r := &Replicas{client: c}
	r.commands = commands{exec: replicaExecutor{r}}
	return r
}

// Nodes returns a copy of the replica to primary mapping.
func (r *Replicas) Nodes() map[topology.Server]topology.Server {
	return r.client.router.ReplicaTable()
}

// Pipeline returns a pipeline preferring replicas.
func (r *Replicas) Pipeline() *Pipeline {
	return r.pipeline()
}

// Client returns the primary-facing client sharing this view's router.
func (r *Replicas) Client() *Client {
	return r.client
}

// Sync rediscovers the replicas of every primary and waits for the new
// table. Replica connections are reopened and their in-flight commands
// routed again.
func (r *Replicas) Sync(ctx context.Context) error {
	return r.client.router.SyncReplicas(ctx)
}

type replicaExecutor struct{ r *Replicas }

func (e replicaExecutor) router() *router.Router { return e.r.client.router }

func (e replicaExecutor) prepare(cmd *router.Command) {
	cmd.PreferReplica = true
}
