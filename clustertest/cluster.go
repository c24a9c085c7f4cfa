package clustertest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Option configures a Cluster.
type Option func(*Cluster)

// WithPassword requires AUTH on every node.
func WithPassword(password string) Option {
	return func(c *Cluster) { c.password = password }
}

// Cluster is a group of in-process nodes speaking enough of the cluster
// protocol to exercise routing: slot ownership with MOVED, migrations with
// ASK, READONLY replicas, CLUSTER SLOTS and ROLE.
type Cluster struct {
	clustered bool
	password  string

	mu        sync.RWMutex
	nodes     []*Node
	slots     [topology.NumSlots]*Node
	importing map[uint16]*Node
}

// NewCluster starts primaries nodes splitting the slot space evenly, each
// followed by replicas replicas.
func NewCluster(primaries, replicas int, opts ...Option) (*Cluster, error) {
	if primaries < 1 {
		return nil, fmt.Errorf("need at least one primary")
	}
	c := &Cluster{clustered: true, importing: make(map[uint16]*Node)}
	for _, opt := range opts {
		opt(c)
	}

	per := topology.NumSlots / primaries
	for i := 0; i < primaries; i++ {
		p, err := startNode(c, nil)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.nodes = append(c.nodes, p)

		start, end := i*per, (i+1)*per-1
		if i == primaries-1 {
			end = topology.NumSlots - 1
		}
		for s := start; s <= end; s++ {
			c.slots[s] = p
		}

		for j := 0; j < replicas; j++ {
			if _, err := c.AddReplica(p); err != nil {
				c.Close()
				return nil, err
			}
		}
	}
	return c, nil
}

// NewStandalone starts a single primary with replicas replicas.
func NewStandalone(replicas int, opts ...Option) (*Cluster, error) {
	c := &Cluster{importing: make(map[uint16]*Node)}
	for _, opt := range opts {
		opt(c)
	}
	p, err := startNode(c, nil)
	if err != nil {
		return nil, err
	}
	c.nodes = append(c.nodes, p)
	for j := 0; j < replicas; j++ {
		if _, err := c.AddReplica(p); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close stops every node.
func (c *Cluster) Close() {
	c.mu.RLock()
	nodes := append([]*Node(nil), c.nodes...)
	c.mu.RUnlock()
	for _, n := range nodes {
		n.Close()
	}
}

// Nodes returns every node, primaries and replicas.
func (c *Cluster) Nodes() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Node(nil), c.nodes...)
}

// Primaries returns the primary nodes in creation order.
func (c *Cluster) Primaries() []*Node {
	var out []*Node
	for _, n := range c.Nodes() {
		if !n.IsReplica() {
			out = append(out, n)
		}
	}
	return out
}

// ReplicasOf returns the replicas following primary.
func (c *Cluster) ReplicasOf(primary *Node) []*Node {
	var out []*Node
	for _, n := range c.Nodes() {
		if n.Primary() == primary {
			out = append(out, n)
		}
	}
	return out
}

// Seeds returns the addresses of every primary.
func (c *Cluster) Seeds() []topology.Server {
	var out []topology.Server
	for _, n := range c.Primaries() {
		out = append(out, n.Server())
	}
	return out
}

// Addrs returns Seeds as "host:port" strings.
func (c *Cluster) Addrs() []string {
	var out []string
	for _, s := range c.Seeds() {
		out = append(out, s.String())
	}
	return out
}

// Node returns the node listening on server.
func (c *Cluster) Node(server topology.Server) *Node {
	for _, n := range c.Nodes() {
		if n.Server() == server {
			return n
		}
	}
	return nil
}

// Owner returns the primary serving slot. Standalone clusters have one
// primary serving everything.
func (c *Cluster) Owner(slot uint16) *Node {
	if !c.clustered {
		return c.Primaries()[0]
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slots[slot]
}

// OwnerOf returns the primary serving key.
func (c *Cluster) OwnerOf(key string) *Node {
	return c.Owner(topology.HashSlotString(key))
}

// Set writes key directly into the owning primary's store.
func (c *Cluster) Set(key, value string) {
	c.OwnerOf(key).Store().Set(key, []byte(value))
}

// Get reads key directly from the owning primary's store.
func (c *Cluster) Get(key string) (string, bool) {
	v, ok := c.OwnerOf(key).Store().Get(key)
	return string(v), ok
}

// AddReplica starts a new replica of primary sharing its keyspace.
func (c *Cluster) AddReplica(primary *Node) (*Node, error) {
	r, err := startNode(c, primary)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.nodes = append(c.nodes, r)
	c.mu.Unlock()
	return r, nil
}

// RemoveNode stops n and forgets it. Slots it owned become unassigned.
func (c *Cluster) RemoveNode(n *Node) {
	c.mu.Lock()
	for i, m := range c.nodes {
		if m == n {
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			break
		}
	}
	for s, owner := range c.slots {
		if owner == n {
			c.slots[s] = nil
		}
	}
	c.mu.Unlock()
	n.Close()
}

// MoveSlot reassigns slot to primary and carries its keys over. Clients
// still using the old owner receive MOVED.
func (c *Cluster) MoveSlot(slot uint16, to *Node) {
	c.mu.Lock()
	from := c.slots[slot]
	c.slots[slot] = to
	delete(c.importing, slot)
	c.mu.Unlock()

	if from != nil && from != to {
		for k, v := range from.Store().takeSlot(slot) {
			to.Store().Set(k, v)
		}
	}
}

// Promote detaches replica from its primary, as a failover does. The
// promoted node owns no slots until MoveSlot hands it some.
func (c *Cluster) Promote(replica *Node) {
	replica.mu.Lock()
	defer replica.mu.Unlock()
	if replica.primary == nil {
		return
	}
	replica.primary = nil
	replica.store = replica.store.clone()
}

// Migrate starts moving slot to primary. The current owner answers ASK
// for keys it no longer holds until FinishMigration is called.
func (c *Cluster) Migrate(slot uint16, to *Node) {
	c.mu.Lock()
	c.importing[slot] = to
	c.mu.Unlock()
}

// MigrateKey moves a single key of a migrating slot to its target.
func (c *Cluster) MigrateKey(key string) {
	slot := topology.HashSlotString(key)
	c.mu.RLock()
	from, to := c.slots[slot], c.importing[slot]
	c.mu.RUnlock()
	if from == nil || to == nil {
		return
	}
	if v, ok := from.Store().take(key); ok {
		to.Store().Set(key, v)
	}
}

// FinishMigration hands slot to its migration target.
func (c *Cluster) FinishMigration(slot uint16) {
	c.mu.RLock()
	to := c.importing[slot]
	c.mu.RUnlock()
	if to != nil {
		c.MoveSlot(slot, to)
	}
}

// ClearSlot leaves slot without an owner; commands for it get CLUSTERDOWN.
func (c *Cluster) ClearSlot(slot uint16) {
	c.mu.Lock()
	c.slots[slot] = nil
	c.mu.Unlock()
}

func (c *Cluster) slotsReply() protocol.Value {
	c.mu.RLock()
	slots := c.slots
	c.mu.RUnlock()

	nodeValue := func(n *Node) protocol.Value {
		return protocol.Array(
			protocol.BulkString([]byte(n.server.Host)),
			protocol.Integer(int64(n.server.Port)),
			protocol.BulkString([]byte(n.id)),
		)
	}

	var entries []protocol.Value
	for i := 0; i < len(slots); {
		owner := slots[i]
		j := i
		for j+1 < len(slots) && slots[j+1] == owner {
			j++
		}
		if owner != nil {
			entry := []protocol.Value{
				protocol.Integer(int64(i)),
				protocol.Integer(int64(j)),
				nodeValue(owner),
			}
			replicas := c.ReplicasOf(owner)
			sort.Slice(replicas, func(a, b int) bool { return replicas[a].server.Port < replicas[b].server.Port })
			for _, r := range replicas {
				entry = append(entry, nodeValue(r))
			}
			entries = append(entries, protocol.Array(entry...))
		}
		i = j + 1
	}
	return protocol.Array(entries...)
}
