// Package redisrouter is a client-side router for Redis Cluster and for
// primary/replica deployments.
//
// The client keeps a live view of which primary serves each hash slot and
// which replicas follow each primary. Commands are sent to the right
// server, MOVED and ASK redirections are followed, and commands in flight
// on a failed connection are routed again instead of being lost.
//
// Basic usage:
//
//	client, err := redisrouter.New(
//		redisrouter.WithSeeds("10.0.0.1:7000", "10.0.0.2:7000"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Connect(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
//	if err := client.Set(ctx, "user:1", "alice"); err != nil {
//		log.Fatal(err)
//	}
//
//	// Reads through Replicas prefer a replica of the owning primary.
//	value, ok, err := client.Replicas().Get(ctx, "user:1")
//
// The library supports:
//
//   - Hash slot routing with {hash tag} support
//   - Replica reads with round-robin or key-affinity selection
//   - Pipelines with results in submission order
//   - Retries with backoff for CLUSTERDOWN, TRYAGAIN and LOADING replies
//   - Standalone primaries discovered through ROLE
//
// For more examples and advanced usage, see the examples/ directory.
package redisrouter
