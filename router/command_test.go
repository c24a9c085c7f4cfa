package router

import (
	"testing"
	"time"

	"github.com/raniellyferreira/redis-replica-router/topology"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantKey string
		wantOK  bool
	}{
		{"get", NewCommand("GET", "foo"), "foo", true},
		{"lowercase", NewCommand("set", "bar", "1"), "bar", true},
		{"ping", NewCommand("PING"), "", false},
		{"info", NewCommand("INFO", "replication"), "", false},
		{"cluster", NewCommand("CLUSTER", "SLOTS"), "", false},
		{"eval keys", NewCommand("EVAL", "return 1", "2", "k1", "k2"), "k1", true},
		{"eval no keys", NewCommand("EVAL", "return 1", "0", "arg"), "", false},
		{"evalsha", NewCommand("EVALSHA", "abc", "1", "k"), "k", true},
		{"xread", NewCommand("XREAD", "COUNT", "2", "STREAMS", "s1", "0"), "s1", true},
		{"object", NewCommand("OBJECT", "ENCODING", "k"), "k", true},
		{"explicit", Command{Name: "PING", Key: []byte("pinned")}, "pinned", true},
		{"no args", NewCommand("GET"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.cmd.RoutingKey()
			if ok != tt.wantOK || string(key) != tt.wantKey {
				t.Fatalf("RoutingKey() = %q, %v; want %q, %v", key, ok, tt.wantKey, tt.wantOK)
			}
		})
	}
}

func TestCommandSlot(t *testing.T) {
	slot, ok := NewCommand("GET", "{user1000}.following").Slot()
	if !ok {
		t.Fatal("Slot() reported keyless")
	}
	if want := topology.HashSlotString("user1000"); slot != want {
		t.Fatalf("Slot() = %d, want %d", slot, want)
	}
}

func TestRoundRobin(t *testing.T) {
	p := NewRoundRobin()
	primary := topology.NewServer("10.0.0.1", 7000)
	replicas := []topology.Server{
		topology.NewServer("10.0.0.1", 7001),
		topology.NewServer("10.0.0.1", 7002),
	}

	seen := map[topology.Server]int{}
	for i := 0; i < 4; i++ {
		seen[p.Pick(primary, replicas, []byte("k"))]++
	}
	if seen[replicas[0]] != 2 || seen[replicas[1]] != 2 {
		t.Fatalf("Pick() distribution = %v", seen)
	}
}

func TestKeyAffinity(t *testing.T) {
	p := NewKeyAffinity()
	primary := topology.NewServer("10.0.0.1", 7000)
	replicas := []topology.Server{
		topology.NewServer("10.0.0.1", 7001),
		topology.NewServer("10.0.0.1", 7002),
		topology.NewServer("10.0.0.1", 7003),
	}

	first := p.Pick(primary, replicas, []byte("user:42"))
	for i := 0; i < 10; i++ {
		if got := p.Pick(primary, replicas, []byte("user:42")); got != first {
			t.Fatalf("Pick() = %v, want stable %v", got, first)
		}
	}

	// Removing a different replica keeps the key where it was.
	var remaining []topology.Server
	removed := false
	for _, r := range replicas {
		if r != first && !removed {
			removed = true
			continue
		}
		remaining = append(remaining, r)
	}
	if got := p.Pick(primary, remaining, []byte("user:42")); got != first {
		t.Fatalf("Pick() after shrink = %v, want %v", got, first)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, MinBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if p.exhausted(5, time.Now()) {
		t.Error("attempt 5 of 5 should not be exhausted")
	}
	if !p.exhausted(6, time.Now()) {
		t.Error("attempt 6 of 5 should be exhausted")
	}
	p.MaxElapsed = time.Millisecond
	if !p.exhausted(1, time.Now().Add(-time.Second)) {
		t.Error("elapsed budget not enforced")
	}
}
