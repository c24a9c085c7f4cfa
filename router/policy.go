package router

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/raniellyferreira/redis-replica-router/topology"
)

// ReplicaPolicy picks which replica serves a command.
type ReplicaPolicy interface {
	// Pick chooses one of replicas, which is never empty. key is nil for
	// keyless commands.
	Pick(primary topology.Server, replicas []topology.Server, key []byte) topology.Server
}

// RoundRobin rotates through the replicas of each primary.
type RoundRobin struct {
	mu   sync.Mutex
	next map[topology.Server]int
}

// NewRoundRobin creates a round-robin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{next: make(map[topology.Server]int)}
}

func (p *RoundRobin) Pick(primary topology.Server, replicas []topology.Server, key []byte) topology.Server {
	p.mu.Lock()
	i := p.next[primary]
	p.next[primary] = i + 1
	p.mu.Unlock()
	return replicas[i%len(replicas)]
}

// KeyAffinity sends the same key to the same replica for as long as the
// replica set is unchanged, and moves only the keys of a replica that
// leaves. It uses rendezvous hashing over the replica addresses.
type KeyAffinity struct {
	fallback *RoundRobin
}

// NewKeyAffinity creates a key-affinity policy. Keyless commands rotate.
func NewKeyAffinity() *KeyAffinity {
	return &KeyAffinity{fallback: NewRoundRobin()}
}

func (p *KeyAffinity) Pick(primary topology.Server, replicas []topology.Server, key []byte) topology.Server {
	if key == nil || len(replicas) == 1 {
		return p.fallback.Pick(primary, replicas, key)
	}
	names := make([]string, len(replicas))
	byName := make(map[string]topology.Server, len(replicas))
	for i, r := range replicas {
		names[i] = r.String()
		byName[names[i]] = r
	}
	rv := rendezvous.New(names, xxhash.Sum64String)
	return byName[rv.Lookup(string(key))]
}
