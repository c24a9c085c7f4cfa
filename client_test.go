package redisrouter_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	redisrouter "github.com/raniellyferreira/redis-replica-router"
	"github.com/raniellyferreira/redis-replica-router/clustertest"
	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/router"
)

func TestNew(t *testing.T) {
	client, err := redisrouter.New(
		redisrouter.WithSeeds("localhost:7000"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if client == nil {
		t.Fatal("Expected client to be non-nil")
	}
	if _, err := client.Do(context.Background(), "GET", "k"); !errors.Is(err, redisrouter.ErrNoTopology) {
		t.Fatalf("Do() before Connect error = %v, want ErrNoTopology", err)
	}
}

func TestNewWithInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []redisrouter.Option
	}{
		{"no seeds", nil},
		{"bad seed", []redisrouter.Option{redisrouter.WithSeeds("localhost")}},
		{"zero port", []redisrouter.Option{redisrouter.WithSeeds("localhost:0")}},
		{"empty seeds", []redisrouter.Option{redisrouter.WithSeeds()}},
		{"connect timeout", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithConnectTimeout(-1 * time.Second),
		}},
		{"redirections", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithMaxRedirections(0),
		}},
		{"retry empty", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithRetryPolicy(router.RetryPolicy{}),
		}},
		{"retry attempts", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithRetryPolicy(router.RetryPolicy{MaxAttempts: -1, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		}},
		{"retry bounds", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithRetryPolicy(router.RetryPolicy{MaxAttempts: 1, MinBackoff: time.Second, MaxBackoff: time.Millisecond}),
		}},
		{"database range", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithDatabase(16),
		}},
		{"database in cluster", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithDatabase(1),
		}},
		{"username only", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithAuth("app", ""),
		}},
		{"nil logger", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithLogger(nil),
		}},
		{"nil policy", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithReplicaPolicy(nil),
		}},
		{"tls server name", []redisrouter.Option{
			redisrouter.WithSeeds("localhost:7000"),
			redisrouter.WithSecureTLS(""),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisrouter.New(tt.opts...)
			if !errors.Is(err, redisrouter.ErrInvalidConfig) {
				t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestClientConfiguration(t *testing.T) {
	logger := &testLogger{}
	metrics := &testMetrics{}

	client, err := redisrouter.New(
		redisrouter.WithSeeds("localhost:7000", "localhost:7001"),
		redisrouter.WithCluster(false),
		redisrouter.WithDatabase(2),
		redisrouter.WithAuth("app", "secret"),
		redisrouter.WithConnectTimeout(time.Second),
		redisrouter.WithWriteTimeout(time.Second),
		redisrouter.WithCommandTimeout(0),
		redisrouter.WithDiscoveryTimeout(time.Second),
		redisrouter.WithMaxRedirections(3),
		redisrouter.WithRefreshInterval(time.Minute),
		redisrouter.WithReplicaPolicy(router.NewKeyAffinity()),
		redisrouter.WithSecureTLS("redis.example.com"),
		redisrouter.WithLogger(logger),
		redisrouter.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()
}

func newCluster(t *testing.T, primaries, replicas int) *clustertest.Cluster {
	t.Helper()
	c, err := clustertest.NewCluster(primaries, replicas)
	if err != nil {
		t.Fatalf("NewCluster() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func connect(t *testing.T, addrs []string, opts ...redisrouter.Option) *redisrouter.Client {
	t.Helper()
	opts = append([]redisrouter.Option{
		redisrouter.WithSeeds(addrs...),
		redisrouter.WithLogger(&testLogger{}),
		redisrouter.WithRetryPolicy(router.RetryPolicy{
			MaxAttempts: 3,
			MinBackoff:  time.Millisecond,
			MaxBackoff:  10 * time.Millisecond,
		}),
	}, opts...)
	client, err := redisrouter.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientCommands(t *testing.T) {
	c := newCluster(t, 3, 0)
	client := connect(t, c.Addrs())
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := client.Set(ctx, "user:1", "alice"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := client.Get(ctx, "user:1")
	if err != nil || !ok || string(value) != "alice" {
		t.Fatalf("Get() = %q, %v, %v", value, ok, err)
	}
	if _, ok, err := client.Get(ctx, "user:2"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}

	for i := int64(1); i <= 3; i++ {
		n, err := client.Incr(ctx, "counter")
		if err != nil || n != i {
			t.Fatalf("Incr() = %d, %v; want %d", n, err, i)
		}
	}

	n, err := client.Exists(ctx, "{user}:a", "{user}:b")
	if err != nil || n != 0 {
		t.Fatalf("Exists() = %d, %v", n, err)
	}
	if n, err := client.Del(ctx, "user:1"); err != nil || n != 1 {
		t.Fatalf("Del() = %d, %v", n, err)
	}
	if _, err := client.Del(ctx); !errors.Is(err, redisrouter.ErrInvalidCommand) {
		t.Fatalf("Del() without keys error = %v", err)
	}

	_, err = client.Incr(ctx, "user:1")
	if err != nil {
		t.Fatalf("Incr(new key) error = %v", err)
	}
	if err := client.Set(ctx, "text", "abc"); err != nil {
		t.Fatal(err)
	}
	var se *redisrouter.ServerError
	if _, err := client.Incr(ctx, "text"); !errors.As(err, &se) {
		t.Fatalf("Incr(text) error = %v, want ServerError", err)
	}
}

func TestClientEval(t *testing.T) {
	c := newCluster(t, 2, 0)
	client := connect(t, c.Addrs())
	ctx := context.Background()

	v, err := client.Eval(ctx, "redis.call('SET', KEYS[1], ARGV[1]); return redis.call('GET', KEYS[1])",
		[]string{"script:key"}, "from-lua")
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if v.String() != "from-lua" {
		t.Fatalf("Eval() = %q", v.String())
	}
	if got, _ := c.Get("script:key"); got != "from-lua" {
		t.Fatalf("owner holds %q", got)
	}
	if c.OwnerOf("script:key").Count("EVAL") != 1 {
		t.Fatal("EVAL not sent to the key owner")
	}
}

func TestReplicasReadFromReplica(t *testing.T) {
	c := newCluster(t, 2, 1)
	client := connect(t, c.Addrs())
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}

	replicas := client.Replicas()
	if replicas != client.Replicas() {
		t.Fatal("Replicas() returned a new view")
	}
	if replicas.Client() != client {
		t.Fatal("Replicas().Client() is not the originating client")
	}

	value, ok, err := replicas.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("Replicas().Get() = %q, %v, %v", value, ok, err)
	}

	owner := c.OwnerOf("k")
	if owner.Count("GET") != 0 {
		t.Errorf("primary served %d reads", owner.Count("GET"))
	}
	if c.ReplicasOf(owner)[0].Count("GET") != 1 {
		t.Error("replica did not serve the read")
	}

	nodes := replicas.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("Nodes() = %v", nodes)
	}
	for replica, primary := range nodes {
		if c.Node(replica).Primary().Server() != primary {
			t.Errorf("Nodes()[%v] = %v", replica, primary)
		}
	}
}

func TestReplicaWriteFollowsMoved(t *testing.T) {
	c := newCluster(t, 1, 1)
	client := connect(t, c.Addrs())

	// A write through the replica view is redirected to the primary.
	if _, err := client.Replicas().Do(context.Background(), "SET", "k", "v"); err != nil {
		t.Fatalf("Replicas().Do(SET) error = %v", err)
	}
	if got, ok := c.Get("k"); !ok || got != "v" {
		t.Fatalf("primary holds %q, %v", got, ok)
	}
	if client.Stats().Moved != 1 {
		t.Errorf("Stats().Moved = %d, want 1", client.Stats().Moved)
	}
}

func TestPipeline(t *testing.T) {
	c := newCluster(t, 3, 1)
	client := connect(t, c.Addrs())
	ctx := context.Background()

	p := client.Pipeline().
		Add("SET", "a", "1").
		Add("SET", "b", "2").
		Add("GET", "a").
		Add("INCR", "b").
		Add("GET", "zzz")
	if p.Len() != 5 {
		t.Fatalf("Len() = %d", p.Len())
	}
	res := p.Exec(ctx)
	if len(res) != 5 || p.Len() != 0 {
		t.Fatalf("Exec() returned %d results, %d left queued", len(res), p.Len())
	}
	for i, r := range res {
		if r.Err != nil {
			t.Fatalf("result %d error = %v", i, r.Err)
		}
	}
	if res[2].Value.String() != "1" || res[3].Value.Integer != 3 || !res[4].Value.IsNull {
		t.Fatalf("results = %s %d %v", res[2].Value.String(), res[3].Value.Integer, res[4].Value.IsNull)
	}

	rp := client.Replicas().Pipeline().Add("GET", "a").Add("GET", "b")
	res = rp.Exec(ctx)
	if res[0].Value.String() != "1" || res[1].Value.String() != "3" {
		t.Fatalf("replica pipeline = %s, %s", res[0].Value.String(), res[1].Value.String())
	}
	reads := 0
	for _, p := range c.Primaries() {
		for _, r := range c.ReplicasOf(p) {
			reads += r.Count("GET")
		}
	}
	if reads != 2 {
		t.Errorf("replicas served %d reads, want 2", reads)
	}
}

func TestSlotsAndSync(t *testing.T) {
	c := newCluster(t, 2, 1)
	client := connect(t, c.Addrs()[:1])

	slots := client.Slots()
	if len(slots) != 2 {
		t.Fatalf("Slots() = %d ranges, want 2", len(slots))
	}
	if slots[0].Start != 0 || slots[len(slots)-1].End != 16383 {
		t.Fatalf("Slots() = %+v", slots)
	}
	for _, r := range slots {
		if len(r.Replicas) != 1 {
			t.Errorf("range %d-%d has %d replicas", r.Start, r.End, len(r.Replicas))
		}
	}

	c.MoveSlot(0, c.Primaries()[1])
	if err := client.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := len(client.Slots()); got != 3 {
		t.Fatalf("Slots() after move = %d ranges, want 3", got)
	}

	if _, err := c.AddReplica(c.Primaries()[0]); err != nil {
		t.Fatal(err)
	}
	if err := client.Replicas().Sync(context.Background()); err != nil {
		t.Fatalf("Replicas().Sync() error = %v", err)
	}
	if got := len(client.Replicas().Nodes()); got != 3 {
		t.Fatalf("Nodes() after sync = %d, want 3", got)
	}

	info := client.GetInfo()
	for _, key := range []string{"clustered", "primaries", "replicas", "topology_version", "version"} {
		if _, exists := info[key]; !exists {
			t.Fatalf("Expected info key '%s' to exist", key)
		}
	}
	if s := client.Stats(); s.TopologySyncs != 3 {
		t.Errorf("Stats().TopologySyncs = %d, want 3", s.TopologySyncs)
	}
}

func TestStandaloneWithAuth(t *testing.T) {
	c, err := clustertest.NewStandalone(1, clustertest.WithPassword("secret"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	client := connect(t, c.Addrs(),
		redisrouter.WithCluster(false),
		redisrouter.WithAuth("", "secret"),
	)
	ctx := context.Background()
	if err := client.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := client.Replicas().Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("Replicas().Get() = %q, %v, %v", value, ok, err)
	}
	if client.Topology().Clustered() {
		t.Error("Topology() reports cluster mode")
	}
}

func TestConnectFailure(t *testing.T) {
	client, err := redisrouter.New(
		redisrouter.WithSeeds("127.0.0.1:1"),
		redisrouter.WithLogger(&testLogger{}),
		redisrouter.WithDiscoveryTimeout(time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect() succeeded without a reachable seed")
	}
	if _, err := client.Do(context.Background(), "PING"); !errors.Is(err, redisrouter.ErrClosed) {
		t.Fatalf("Do() after failed Connect error = %v, want ErrClosed", err)
	}
}

func TestUnexpectedReplyType(t *testing.T) {
	c := newCluster(t, 1, 0)
	client := connect(t, c.Addrs())
	c.Primaries()[0].SetHook(clustertest.OnCommand("INCR", 1, clustertest.ReplyWith(protocol.SimpleString("nope"))))

	_, err := client.Incr(context.Background(), "k")
	var pe *redisrouter.ProtocolError
	if !errors.As(err, &pe) || !errors.Is(err, redisrouter.ErrProtocol) {
		t.Fatalf("Incr() error = %v, want ProtocolError", err)
	}
}

func TestMetricsAndLoggerWiring(t *testing.T) {
	c := newCluster(t, 1, 0)
	metrics := &testMetrics{}
	var buf bytes.Buffer
	logger := redisrouter.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	client := connect(t, c.Addrs(), redisrouter.WithMetrics(metrics), redisrouter.WithLogger(logger))

	if err := client.Set(context.Background(), "k", "v"); err != nil {
		t.Fatal(err)
	}
	if got := metrics.commands(); got != 1 {
		t.Errorf("RecordCommand called %d times, want 1", got)
	}
	client.Close()
	if out := buf.String(); !strings.Contains(out, "Topology installed") || !strings.Contains(out, "primaries=1") {
		t.Errorf("log output = %q", out)
	}
}

func TestVersionInfo(t *testing.T) {
	info := redisrouter.VersionInfo()
	if info["version"] != redisrouter.Version {
		t.Fatalf("VersionInfo() = %v", info)
	}
}

// Test helper types
type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...redisrouter.Field) {}
func (l *testLogger) Info(msg string, fields ...redisrouter.Field)  {}
func (l *testLogger) Error(msg string, fields ...redisrouter.Field) {}

type testMetrics struct {
	mu    sync.Mutex
	calls int
}

func (m *testMetrics) RecordCommand(cmd string, duration time.Duration) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}
func (m *testMetrics) RecordRedirection(kind string)             {}
func (m *testMetrics) RecordRetry(reason string)                 {}
func (m *testMetrics) RecordReconnection()                       {}
func (m *testMetrics) RecordRequeue(count int)                   {}
func (m *testMetrics) RecordTopologySync(duration time.Duration) {}
func (m *testMetrics) RecordError(errorType string)              {}

func (m *testMetrics) commands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
