package redisrouter

import (
	"context"
	"strconv"
	"sync"

	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/router"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Client sends every command to the primary that owns its key.
type Client struct {
	commands

	config *config
	router *router.Router

	mu       sync.Mutex
	replicas *Replicas
}

// New creates a new Client with the given options
//
// The client is created but not connected. Use Connect() to discover the
// topology.
//
// Example:
//
//	client, err := redisrouter.New(
//		redisrouter.WithSeeds("localhost:7000"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		router: router.New(cfg.routerConfig()),
	}
	c.commands = commands{exec: clientExecutor{c}}
	return c, nil
}

func newDialer(c *config) *connection.Dialer {
	return &connection.Dialer{
		ConnectTimeout: c.connectTimeout,
		WriteTimeout:   c.writeTimeout,
		TLS:            c.tls,
		Username:       c.username,
		Password:       c.password,
		Database:       c.database,
	}
}

// Connect discovers the topology and starts routing. It blocks until the
// first topology is installed or ctx ends.
//
// Example:
//
//	if err := client.Connect(context.Background()); err != nil {
//		log.Fatal(err)
//	}
func (c *Client) Connect(ctx context.Context) error {
	if err := c.router.Start(ctx); err != nil {
		c.config.logger.Error("Failed to discover topology", Field{Key: "error", Value: err})
		return err
	}
	snap := c.router.Snapshot()
	c.config.logger.Info("Client connected",
		Field{Key: "clustered", Value: snap.Clustered()},
		Field{Key: "primaries", Value: len(snap.Primaries())},
		Field{Key: "replicas", Value: len(snap.ReplicaTable())})
	return nil
}

// Close closes every connection. Commands in flight fail with ErrClosed.
func (c *Client) Close() error {
	return c.router.Close()
}

// Set stores value at key.
func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.Do(ctx, "SET", key, value)
	return err
}

// Del removes keys and returns how many existed. Keys must share a hash
// slot in cluster mode.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, ErrInvalidCommand
	}
	v, err := c.Do(ctx, "DEL", keys...)
	if err != nil {
		return 0, err
	}
	return integerReply("DEL", v)
}

// Incr increments the integer at key by one.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	v, err := c.Do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	return integerReply("INCR", v)
}

// Ping checks that a primary answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "PING")
	return err
}

// Eval runs script on the server owning keys. Scripts without keys go to
// any primary.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...string) (protocol.Value, error) {
	argv := make([]string, 0, 2+len(keys)+len(args))
	argv = append(argv, script, strconv.Itoa(len(keys)))
	argv = append(argv, keys...)
	argv = append(argv, args...)
	return c.Do(ctx, "EVAL", argv...)
}

// Pipeline returns a pipeline sending to primaries.
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline()
}

// Replicas returns the replica-preferring view of this client. Both share
// the same connections and topology.
func (c *Client) Replicas() *Replicas {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replicas == nil {
		c.replicas = newReplicas(c)
	}
	return c.replicas
}

// Sync rediscovers slot ownership and replicas and waits for the new
// topology to be installed.
func (c *Client) Sync(ctx context.Context) error {
	return c.router.SyncCluster(ctx)
}

// Slots returns the current slot ranges with their primary and replicas.
func (c *Client) Slots() []topology.SlotRange {
	return c.router.Snapshot().Ranges()
}

// Topology returns the current topology snapshot.
func (c *Client) Topology() *topology.Snapshot {
	return c.router.Snapshot()
}

// Stats returns a copy of the routing counters.
func (c *Client) Stats() Stats {
	return c.router.Stats()
}

// GetInfo returns routing statistics and version details.
func (c *Client) GetInfo() map[string]interface{} {
	s := c.Stats()
	snap := c.router.Snapshot()
	return map[string]interface{}{
		"clustered":        snap.Clustered(),
		"primaries":        len(snap.Primaries()),
		"replicas":         len(snap.ReplicaTable()),
		"topology_version": s.TopologyVersion,
		"last_sync":        s.LastSync,
		"connections":      s.Connections,
		"commands":         s.Commands,
		"errors":           s.Errors,
		"moved":            s.Moved,
		"asks":             s.Asks,
		"retries":          s.Retries,
		"requeues":         s.Requeues,
		"version":          VersionInfo(),
	}
}

type clientExecutor struct{ c *Client }

func (e clientExecutor) router() *router.Router      { return e.c.router }
func (e clientExecutor) prepare(cmd *router.Command) {}
