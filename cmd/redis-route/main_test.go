package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replica-router/clustertest"
	"github.com/raniellyferreira/redis-replica-router/protocol"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newCluster(t *testing.T, primaries, replicas int) *clustertest.Cluster {
	t.Helper()
	c, err := clustertest.NewCluster(primaries, replicas)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name string
		v    protocol.Value
		want string
	}{
		{"simple", protocol.SimpleString("OK"), "OK"},
		{"error", protocol.ErrorValue("ERR boom"), "(error) ERR boom"},
		{"integer", protocol.Integer(42), "(integer) 42"},
		{"bulk", protocol.BulkString([]byte("a b")), `"a b"`},
		{"nil", protocol.Null(), "(nil)"},
		{"empty", protocol.Array(), "(empty array)"},
		{"array", protocol.Array(protocol.Integer(1), protocol.BulkString([]byte("x"))), "1) (integer) 1\n2) \"x\""},
		{"nested", protocol.Array(protocol.Array(protocol.Integer(1), protocol.Integer(2))), "1) 1) (integer) 1\n   2) (integer) 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatReply(tt.v, ""))
		})
	}
}

func TestSlotsCommand(t *testing.T) {
	c := newCluster(t, 3, 1)

	out, err := run(t, "slots", "--seeds", c.Addrs()[0])
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "0-"))
	for i, p := range c.Primaries() {
		assert.Contains(t, lines[i], p.Addr())
		assert.Contains(t, lines[i], "replicas="+c.ReplicasOf(p)[0].Addr())
	}
}

func TestReplicasCommand(t *testing.T) {
	c := newCluster(t, 2, 1)

	out, err := run(t, "replicas", "--seeds", strings.Join(c.Addrs(), ","))
	require.NoError(t, err)

	for _, p := range c.Primaries() {
		r := c.ReplicasOf(p)[0]
		assert.Contains(t, out, r.Addr()+" -> "+p.Addr())
	}
}

func TestExecCommand(t *testing.T) {
	c := newCluster(t, 2, 1)
	seed := c.Addrs()[0]

	out, err := run(t, "exec", "--seeds", seed, "SET", "greeting", "hello")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	out, err = run(t, "exec", "--seeds", seed, "GET", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "\"hello\"\n", out)

	out, err = run(t, "exec", "--seeds", seed, "--replica", "GET", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "\"hello\"\n", out)
	owner := c.OwnerOf("greeting")
	assert.Equal(t, 1, c.ReplicasOf(owner)[0].Count("GET"))

	out, err = run(t, "exec", "--seeds", seed, "INCR", "greeting")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "(error) ERR"))

	_, err = run(t, "exec", "--seeds", seed)
	assert.Error(t, err)
}

func TestResyncCommand(t *testing.T) {
	c := newCluster(t, 1, 1)

	out, err := run(t, "resync", "--seeds", c.Addrs()[0])
	require.NoError(t, err)
	assert.Equal(t, "topology version 2: 1 primaries, 1 replicas\n", out)

	out, err = run(t, "resync", "--replicas", "--seeds", c.Addrs()[0])
	require.NoError(t, err)
	p := c.Primaries()[0]
	assert.Contains(t, out, c.ReplicasOf(p)[0].Addr()+" -> "+p.Addr())
}

func TestDiffCommand(t *testing.T) {
	c := newCluster(t, 2, 1)

	out, err := run(t, "diff", "--seeds", c.Addrs()[0])
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "OK "))

	stale := c.Primaries()[1]
	stale.SetHook(clustertest.OnCommand("CLUSTER", 0, clustertest.ReplyWith(protocol.Array())))

	out, err = run(t, "diff", "--seeds", c.Addrs()[0])
	require.ErrorIs(t, err, errTopologyMismatch)
	assert.Contains(t, out, "MISMATCH "+stale.Addr())
	assert.Equal(t, 3, strings.Count(out, "OK "))

	_, err = run(t, "diff", "--cluster=false", "--seeds", c.Addrs()[0])
	assert.Error(t, err)
}

func TestSeedsFromEnvironment(t *testing.T) {
	c := newCluster(t, 2, 0)
	t.Setenv("REDISROUTE_SEEDS", strings.Join(c.Addrs(), ","))

	out, err := run(t, "slots")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestConfigFile(t *testing.T) {
	c := newCluster(t, 1, 0)
	path := filepath.Join(t.TempDir(), "route.yaml")
	content := "seeds:\n  - " + c.Addrs()[0] + "\nreplica-policy: key-affinity\nlog-level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := run(t, "exec", "--config", path, "PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", out)

	_, err = run(t, "exec", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "PING")
	assert.Error(t, err)
}

func TestInvalidSettings(t *testing.T) {
	c := newCluster(t, 1, 0)

	_, err := run(t, "slots", "--seeds", c.Addrs()[0], "--replica-policy", "random")
	assert.ErrorContains(t, err, "unknown replica policy")

	_, err = run(t, "slots", "--seeds", c.Addrs()[0], "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = run(t, "slots", "--seeds", "localhost")
	assert.Error(t, err)
}
