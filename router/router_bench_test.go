package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/raniellyferreira/redis-replica-router/clustertest"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// BenchmarkRoutingKey benchmarks key extraction for common command shapes
func BenchmarkRoutingKey(b *testing.B) {
	cmds := []Command{
		NewCommand("GET", "user:1000"),
		NewCommand("EVAL", "return 1", "2", "{a}1", "{a}2"),
		NewCommand("XREAD", "COUNT", "10", "STREAMS", "events", "0"),
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, ok := cmds[i%len(cmds)].Slot(); !ok {
			b.Fatal("keyless")
		}
	}
}

// BenchmarkReplicaPolicies compares replica selection costs
func BenchmarkReplicaPolicies(b *testing.B) {
	primary := topology.NewServer("10.0.0.1", 7000)
	replicas := []topology.Server{
		topology.NewServer("10.0.0.2", 7000),
		topology.NewServer("10.0.0.3", 7000),
		topology.NewServer("10.0.0.4", 7000),
	}
	policies := []struct {
		name   string
		policy ReplicaPolicy
	}{
		{"RoundRobin", NewRoundRobin()},
		{"KeyAffinity", NewKeyAffinity()},
	}

	for _, p := range policies {
		b.Run(p.name, func(b *testing.B) {
			key := []byte("user:1000")
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				p.policy.Pick(primary, replicas, key)
			}
		})
	}
}

// BenchmarkRoute benchmarks a full round trip through the router
func BenchmarkRoute(b *testing.B) {
	c, err := clustertest.NewCluster(3, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	r := New(Config{Seeds: c.Seeds(), Cluster: true})
	if err := r.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	keys := make([]Command, 64)
	for i := range keys {
		keys[i] = NewCommand("GET", fmt.Sprintf("bench:%d", i))
	}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := r.Route(ctx, keys[i%len(keys)]); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
