package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replica-router/clustertest"
	"github.com/raniellyferreira/redis-replica-router/router"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.RecordCommand("GET", 2*time.Millisecond)
	m.RecordCommand("GET", 3*time.Millisecond)
	m.RecordRedirection("moved")
	m.RecordRetry("clusterdown")
	m.RecordReconnection()
	m.RecordRequeue(3)
	m.RecordTopologySync(10 * time.Millisecond)
	m.RecordError("timeout")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["redisroute_command_duration_seconds"])
	assert.True(t, names["redisroute_redirections_total"])
	assert.True(t, names["redisroute_topology_sync_duration_seconds"])
	assert.True(t, names["redisroute_errors_total"])

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("GET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirections.WithLabelValues("moved")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.requeued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncsTotal))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestRouterMetrics(t *testing.T) {
	c, err := clustertest.NewCluster(2, 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	m := New(prometheus.NewRegistry())
	r := router.New(router.Config{
		Seeds:   c.Seeds(),
		Cluster: true,
		Metrics: m,
	})
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { r.Close() })

	ctx := context.Background()
	_, err = r.Route(ctx, router.NewCommand("SET", "k", "v"))
	require.NoError(t, err)

	// Send the key's slot elsewhere so the next read is redirected.
	slot, _ := router.NewCommand("GET", "k").Slot()
	for _, p := range c.Primaries() {
		if p != c.Owner(slot) {
			c.MoveSlot(slot, p)
			break
		}
	}
	v, err := r.Route(ctx, router.NewCommand("GET", "k"))
	require.NoError(t, err)
	assert.Equal(t, "v", v.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("SET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("GET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirections.WithLabelValues("moved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncsTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.reconnections), 2.0)
}
