package clustertest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

func newCluster(t *testing.T, primaries, replicas int, opts ...Option) *Cluster {
	t.Helper()
	c, err := NewCluster(primaries, replicas, opts...)
	if err != nil {
		t.Fatalf("NewCluster() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestGoRedisClusterClient(t *testing.T) {
	c := newCluster(t, 3, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:           c.Addrs(),
		DisableIdentity: true,
	})
	defer client.Close()

	for _, key := range []string{"foo", "bar", "hello", "{user1000}.following"} {
		if err := client.Set(ctx, key, "v-"+key, 0).Err(); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
		got, err := client.Get(ctx, key).Result()
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if got != "v-"+key {
			t.Fatalf("Get(%s) = %q", key, got)
		}
		if v, ok := c.Get(key); !ok || v != "v-"+key {
			t.Fatalf("key %s not stored on its owner", key)
		}
	}
}

func TestGoRedisFollowsMoved(t *testing.T) {
	c := newCluster(t, 2, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:           c.Addrs(),
		DisableIdentity: true,
	})
	defer client.Close()

	if err := client.Set(ctx, "foo", "1", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	slot := topology.HashSlotString("foo")
	old := c.Owner(slot)
	var next *Node
	for _, p := range c.Primaries() {
		if p != old {
			next = p
		}
	}
	c.MoveSlot(slot, next)

	got, err := client.Get(ctx, "foo").Result()
	if err != nil {
		t.Fatalf("Get() after move error = %v", err)
	}
	if got != "1" {
		t.Fatalf("Get() = %q, want 1", got)
	}
	if next.Count("GET") == 0 {
		t.Fatal("new owner never served GET")
	}
}

func TestGoRedisReadOnlyReplicas(t *testing.T) {
	c := newCluster(t, 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.Set("foo", "bar")
	replica := c.ReplicasOf(c.Primaries()[0])[0]

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:           c.Addrs(),
		ReadOnly:        true,
		RouteByLatency:  false,
		RouteRandomly:   false,
		DisableIdentity: true,
	})
	defer client.Close()

	// Without READONLY the replica redirects to its primary.
	direct := redis.NewClient(&redis.Options{Addr: replica.Addr(), DisableIdentity: true})
	defer direct.Close()
	if err := direct.Get(ctx, "foo").Err(); err == nil || !strings.HasPrefix(err.Error(), "MOVED") {
		t.Fatalf("replica GET without READONLY error = %v, want MOVED", err)
	}
	if err := direct.Do(ctx, "READONLY").Err(); err != nil {
		t.Fatalf("READONLY error = %v", err)
	}
	if got, err := direct.Get(ctx, "foo").Result(); err != nil || got != "bar" {
		t.Fatalf("replica GET with READONLY = %q, %v", got, err)
	}
	if err := direct.Set(ctx, "foo", "x", 0).Err(); err == nil {
		t.Fatal("replica accepted a write")
	}

	if got, err := client.Get(ctx, "foo").Result(); err != nil || got != "bar" {
		t.Fatalf("cluster GET = %q, %v", got, err)
	}
}

func TestAskDuringMigration(t *testing.T) {
	c := newCluster(t, 2, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slot := topology.HashSlotString("foo")
	source := c.Owner(slot)
	var target *Node
	for _, p := range c.Primaries() {
		if p != source {
			target = p
		}
	}

	c.Set("foo", "moving")
	c.Migrate(slot, target)
	c.MigrateKey("foo")

	src := redis.NewClient(&redis.Options{Addr: source.Addr(), DisableIdentity: true})
	defer src.Close()
	err := src.Get(ctx, "foo").Err()
	if err == nil || !strings.HasPrefix(err.Error(), "ASK") {
		t.Fatalf("source GET error = %v, want ASK", err)
	}

	dst := redis.NewClient(&redis.Options{Addr: target.Addr(), DisableIdentity: true})
	defer dst.Close()
	if err := dst.Get(ctx, "foo").Err(); err == nil || !strings.HasPrefix(err.Error(), "MOVED") {
		t.Fatalf("target GET without ASKING error = %v, want MOVED", err)
	}

	// ASKING applies to the next command on the same connection only.
	var get *redis.StringCmd
	_, err = dst.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Do(ctx, "ASKING")
		get = p.Get(ctx, "foo")
		return nil
	})
	if err != nil {
		t.Fatalf("ASKING pipeline error = %v", err)
	}
	if get.Val() != "moving" {
		t.Fatalf("GET after ASKING = %q", get.Val())
	}

	c.FinishMigration(slot)
	if c.Owner(slot) != target {
		t.Fatal("slot not handed over")
	}
}

func TestEvalRoutedByKeys(t *testing.T) {
	c := newCluster(t, 2, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:           c.Addrs(),
		DisableIdentity: true,
	})
	defer client.Close()

	script := `redis.call("SET", KEYS[1], ARGV[1]); return redis.call("INCR", KEYS[2])`
	n, err := client.Eval(ctx, script, []string{"{acct}.name", "{acct}.count"}, "alice").Int64()
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Eval() = %d, want 1", n)
	}
	if v, _ := c.Get("{acct}.name"); v != "alice" {
		t.Fatalf("{acct}.name = %q", v)
	}

	err = client.Eval(ctx, "return 1", []string{"a", "b"}).Err()
	if err == nil {
		t.Fatal("expected CROSSSLOT error")
	}
}

func TestStandaloneRole(t *testing.T) {
	c, err := NewStandalone(2, WithPassword("secret"))
	if err != nil {
		t.Fatalf("NewStandalone() error = %v", err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	primary := c.Primaries()[0]
	client := redis.NewClient(&redis.Options{Addr: primary.Addr(), Password: "secret", DisableIdentity: true})
	defer client.Close()

	role, err := client.Do(ctx, "ROLE").Slice()
	if err != nil {
		t.Fatalf("ROLE error = %v", err)
	}
	if role[0] != "master" {
		t.Fatalf("ROLE = %v", role)
	}
	replicas, ok := role[2].([]interface{})
	if !ok || len(replicas) != 2 {
		t.Fatalf("ROLE replicas = %v", role[2])
	}

	if err := client.Do(ctx, "CLUSTER", "SLOTS").Err(); err == nil {
		t.Fatal("standalone node answered CLUSTER SLOTS")
	}

	unauth := redis.NewClient(&redis.Options{Addr: primary.Addr(), DisableIdentity: true})
	defer unauth.Close()
	if err := unauth.Get(ctx, "foo").Err(); err == nil || err == redis.Nil {
		t.Fatalf("GET without AUTH error = %v, want NOAUTH", err)
	}
}

func TestHooks(t *testing.T) {
	c := newCluster(t, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := c.Primaries()[0]
	node.SetHook(OnCommand("GET", 1, ReplyWith(protocol.BulkString([]byte("hooked")))))

	client := redis.NewClient(&redis.Options{Addr: node.Addr(), DisableIdentity: true})
	defer client.Close()

	if got, _ := client.Get(ctx, "foo").Result(); got != "hooked" {
		t.Fatalf("first GET = %q, want hooked", got)
	}
	if err := client.Get(ctx, "foo").Err(); err != redis.Nil {
		t.Fatalf("second GET error = %v, want redis.Nil", err)
	}
	if n := node.Count("GET"); n != 2 {
		t.Fatalf("Count(GET) = %d, want 2", n)
	}
}
