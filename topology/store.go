package topology

import "sync/atomic"

// Store holds the current Snapshot. Reads never block; a single writer
// installs replacements.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace installs snap and returns the snapshot it replaced.
func (s *Store) Replace(snap *Snapshot) *Snapshot {
	return s.current.Swap(snap)
}

// Primary looks up the primary serving slot in the current snapshot.
func (s *Store) Primary(slot uint16) (Server, bool) {
	return s.Load().Primary(slot)
}

// Replicas returns the replicas of primary in the current snapshot.
func (s *Store) Replicas(primary Server) []Server {
	return s.Load().Replicas(primary)
}

// ReplicaTable returns a copy of the current replica to primary mapping.
func (s *Store) ReplicaTable() map[Server]Server {
	return s.Load().ReplicaTable()
}
