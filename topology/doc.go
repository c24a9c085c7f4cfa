// Package topology describes where commands go: server identities, cluster
// hash slots, and immutable snapshots of slot and replica ownership.
//
// A Snapshot is never modified after it is built. Changes produce a new
// snapshot which is installed into a Store with a single atomic swap, so
// readers on any goroutine always see a consistent table:
//
//	store := topology.NewStore()
//	snap, err := topology.ParseClusterSlots(reply, seed, store.Load().Version())
//	if err != nil {
//		return err
//	}
//	store.Replace(snap)
//	primary, ok := store.Primary(topology.HashSlotString("user:1000"))
//
// The package supports:
//   - CRC16 hash slots with {hash tag} handling
//   - Cluster and standalone snapshots
//   - CLUSTER SLOTS and ROLE reply parsing
package topology
