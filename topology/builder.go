package topology

// Builder assembles a Snapshot from discovery results.
type Builder struct {
	snap *Snapshot
}

// NewClusterBuilder starts a cluster snapshot with every slot unassigned.
// version is the version of the snapshot being replaced.
func NewClusterBuilder(version uint64) *Builder {
	s := Empty()
	s.version = version + 1
	s.clustered = true
	s.slots = make([]uint16, NumSlots)
	return &Builder{snap: s}
}

// NewStandaloneBuilder starts a non-cluster snapshot served by primary.
func NewStandaloneBuilder(version uint64, primary Server) *Builder {
	s := Empty()
	s.version = version + 1
	s.nodes = []Server{primary}
	return &Builder{snap: s}
}

// AssignSlots maps slots start..end inclusive to primary.
func (b *Builder) AssignSlots(start, end uint16, primary Server) *Builder {
	s := b.snap
	if !s.clustered {
		return b
	}
	idx := b.nodeIndex(primary)
	for slot := int(start); slot <= int(end) && slot < NumSlots; slot++ {
		s.slots[slot] = uint16(idx + 1)
	}
	return b
}

// AddReplica registers replica under primary. A replica already listed
// under another primary is moved, so each replica has exactly one primary.
func (b *Builder) AddReplica(primary, replica Server) *Builder {
	s := b.snap
	if replica == primary {
		return b
	}
	if prev, ok := s.replicaOf[replica]; ok {
		if prev == primary {
			return b
		}
		var kept []Server
		for _, r := range s.replicas[prev] {
			if r != replica {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.replicas, prev)
		} else {
			s.replicas[prev] = kept
		}
	}
	s.replicas[primary] = append(s.replicas[primary], replica)
	s.replicaOf[replica] = primary
	return b
}

// Build returns the finished snapshot. The builder must not be reused.
func (b *Builder) Build() *Snapshot {
	s := b.snap
	b.snap = nil
	s.finish()
	return s
}

func (b *Builder) nodeIndex(primary Server) int {
	for i, n := range b.snap.nodes {
		if n == primary {
			return i
		}
	}
	b.snap.nodes = append(b.snap.nodes, primary)
	return len(b.snap.nodes) - 1
}
