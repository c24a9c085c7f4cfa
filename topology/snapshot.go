package topology

import "sort"

// Snapshot is an immutable view of slot ownership and replica assignment.
// Every change produces a new Snapshot; existing ones are never modified,
// so a reader holding one always sees a consistent table.
type Snapshot struct {
	version   uint64
	clustered bool

	// nodes holds every primary ever referenced by slots. slots stores
	// index+1 into nodes, 0 meaning unassigned. Standalone snapshots have
	// no slots and a single node.
	nodes []Server
	slots []uint16

	// owners lists primaries that currently own at least one slot, in
	// first-slot order.
	owners []Server

	replicas  map[Server][]Server
	replicaOf map[Server]Server
}

// SlotRange is a contiguous range of slots served by one primary.
type SlotRange struct {
	Start    uint16
	End      uint16
	Primary  Server
	Replicas []Server
}

// Empty returns a snapshot with no known servers.
func Empty() *Snapshot {
	return &Snapshot{
		replicas:  map[Server][]Server{},
		replicaOf: map[Server]Server{},
	}
}

// Version increases by one with every derived snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// Clustered reports whether the snapshot maps hash slots.
func (s *Snapshot) Clustered() bool { return s.clustered }

// Primary returns the primary owning slot. In standalone mode the single
// primary owns every slot.
func (s *Snapshot) Primary(slot uint16) (Server, bool) {
	if !s.clustered {
		if len(s.nodes) == 0 {
			return Server{}, false
		}
		return s.nodes[0], true
	}
	if int(slot) >= len(s.slots) {
		return Server{}, false
	}
	idx := s.slots[slot]
	if idx == 0 {
		return Server{}, false
	}
	return s.nodes[idx-1], true
}

// Primaries returns the primaries that own at least one slot.
func (s *Snapshot) Primaries() []Server {
	return append([]Server(nil), s.owners...)
}

// Replicas returns the ordered replica set of primary.
func (s *Snapshot) Replicas(primary Server) []Server {
	return append([]Server(nil), s.replicas[primary]...)
}

// PrimaryOf returns the primary a replica backs.
func (s *Snapshot) PrimaryOf(replica Server) (Server, bool) {
	p, ok := s.replicaOf[replica]
	return p, ok
}

// IsReplica reports whether server is a known replica.
func (s *Snapshot) IsReplica(server Server) bool {
	_, ok := s.replicaOf[server]
	return ok
}

// ReplicaTable returns a copy of the replica to primary mapping.
func (s *Snapshot) ReplicaTable() map[Server]Server {
	out := make(map[Server]Server, len(s.replicaOf))
	for r, p := range s.replicaOf {
		out[r] = p
	}
	return out
}

// Servers returns every known primary and replica.
func (s *Snapshot) Servers() []Server {
	out := append([]Server(nil), s.owners...)
	for _, p := range s.owners {
		out = append(out, s.replicas[p]...)
	}
	return out
}

// Ranges returns the slot table as contiguous ranges. Standalone
// snapshots report one range covering every slot.
func (s *Snapshot) Ranges() []SlotRange {
	if !s.clustered {
		if len(s.nodes) == 0 {
			return nil
		}
		p := s.nodes[0]
		return []SlotRange{{Start: 0, End: NumSlots - 1, Primary: p, Replicas: s.Replicas(p)}}
	}

	var out []SlotRange
	for i := 0; i < len(s.slots); {
		idx := s.slots[i]
		j := i
		for j+1 < len(s.slots) && s.slots[j+1] == idx {
			j++
		}
		if idx != 0 {
			p := s.nodes[idx-1]
			out = append(out, SlotRange{Start: uint16(i), End: uint16(j), Primary: p, Replicas: s.Replicas(p)})
		}
		i = j + 1
	}
	return out
}

// WithSlot returns a copy of s where slot is served by primary. A replica
// taking over the slot stops being listed as a replica.
func (s *Snapshot) WithSlot(slot uint16, primary Server) *Snapshot {
	next := s.clone()
	if !next.clustered {
		next.clustered = true
		next.slots = make([]uint16, NumSlots)
		if len(next.nodes) > 0 {
			for i := range next.slots {
				next.slots[i] = 1
			}
		}
	}
	idx := -1
	for i, n := range next.nodes {
		if n == primary {
			idx = i
			break
		}
	}
	if idx < 0 {
		next.nodes = append(next.nodes, primary)
		idx = len(next.nodes) - 1
	}
	next.slots[slot] = uint16(idx + 1)
	next.finish()
	return next
}

// WithoutReplica returns a copy of s with replica removed.
func (s *Snapshot) WithoutReplica(replica Server) *Snapshot {
	next := s.clone()
	primary, ok := next.replicaOf[replica]
	if !ok {
		return next
	}
	delete(next.replicaOf, replica)
	var kept []Server
	for _, r := range next.replicas[primary] {
		if r != replica {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(next.replicas, primary)
	} else {
		next.replicas[primary] = kept
	}
	return next
}

// WithReplicas returns a copy of s whose replica assignment is replaced by
// table, a replica to primary mapping. Slot ownership is unchanged.
func (s *Snapshot) WithReplicas(table map[Server]Server) *Snapshot {
	next := s.clone()
	next.replicas = map[Server][]Server{}
	next.replicaOf = map[Server]Server{}

	keys := make([]Server, 0, len(table))
	for r := range table {
		keys = append(keys, r)
	}
	sortServers(keys)
	for _, r := range keys {
		p := table[r]
		next.replicas[p] = append(next.replicas[p], r)
		next.replicaOf[r] = p
	}
	next.dropOwnerReplicas()
	return next
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		version:   s.version + 1,
		clustered: s.clustered,
		nodes:     append([]Server(nil), s.nodes...),
		owners:    append([]Server(nil), s.owners...),
		replicas:  make(map[Server][]Server, len(s.replicas)),
		replicaOf: make(map[Server]Server, len(s.replicaOf)),
	}
	if s.slots != nil {
		next.slots = append([]uint16(nil), s.slots...)
	}
	for p, rs := range s.replicas {
		next.replicas[p] = append([]Server(nil), rs...)
	}
	for r, p := range s.replicaOf {
		next.replicaOf[r] = p
	}
	return next
}

// finish recomputes the derived owner list.
func (s *Snapshot) finish() {
	if !s.clustered {
		s.owners = append([]Server(nil), s.nodes...)
	} else {
		seen := make([]bool, len(s.nodes))
		s.owners = s.owners[:0]
		for _, idx := range s.slots {
			if idx == 0 || seen[idx-1] {
				continue
			}
			seen[idx-1] = true
			s.owners = append(s.owners, s.nodes[idx-1])
		}
	}
	s.dropOwnerReplicas()
}

// dropOwnerReplicas removes slot owners from the replica maps. A server
// is either a primary or a replica, never both.
func (s *Snapshot) dropOwnerReplicas() {
	for _, owner := range s.owners {
		primary, ok := s.replicaOf[owner]
		if !ok {
			continue
		}
		delete(s.replicaOf, owner)
		var kept []Server
		for _, r := range s.replicas[primary] {
			if r != owner {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.replicas, primary)
		} else {
			s.replicas[primary] = kept
		}
	}
}

func sortServers(servers []Server) {
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Host != servers[j].Host {
			return servers[i].Host < servers[j].Host
		}
		return servers[i].Port < servers[j].Port
	})
}

// Rebase returns a copy of s versioned as the successor of prev. Discovery
// builds snapshots concurrently with redirections, so the version is fixed
// when the result is installed.
func (s *Snapshot) Rebase(prev *Snapshot) *Snapshot {
	next := s.clone()
	next.version = prev.version + 1
	return next
}
