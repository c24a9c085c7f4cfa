package router

import (
	"context"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Config configures a Router.
type Config struct {
	// Seeds are queried for the initial topology.
	Seeds []topology.Server

	// Cluster selects CLUSTER SLOTS discovery and slot routing. Without it
	// a single primary and its replicas are discovered with ROLE.
	Cluster bool

	Dialer          *connection.Dialer
	MaxRedirections int

	// Retry is used as given; only the zero policy selects
	// DefaultRetryPolicy. MaxAttempts 0 with any other field set disables
	// retries.
	Retry         RetryPolicy
	ReplicaPolicy ReplicaPolicy

	// CommandTimeout applies to commands whose context has no deadline.
	CommandTimeout time.Duration

	// DiscoveryTimeout bounds a single topology discovery round.
	DiscoveryTimeout time.Duration

	// RefreshInterval triggers periodic cluster resyncs when positive.
	RefreshInterval time.Duration

	MailboxSize int
	Logger      Logger
	Metrics     MetricsCollector
}

// Result is the outcome of one routed command.
type Result struct {
	Value protocol.Value
	Err   error
}

// Router owns every server connection and the topology store. All
// routing decisions are made on a single goroutine which receives work
// through its mailbox; callers only block on their own result channels.
type Router struct {
	cfg     Config
	log     Logger
	metrics MetricsCollector
	store   *topology.Store
	stats   statsTracker

	mailbox chan any
	stop    chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool

	// Owned by the loop goroutine.
	conns    *connection.Set[*envelope]
	rotation int
	syncing  bool
	syncRun  syncRound
	syncNext syncRound
}

// New creates a router. Call Start to discover the topology and begin
// routing.
func New(cfg Config) *Router {
	if cfg.Dialer == nil {
		cfg.Dialer = &connection.Dialer{ConnectTimeout: 5 * time.Second}
	}
	if cfg.MaxRedirections <= 0 {
		cfg.MaxRedirections = 5
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.ReplicaPolicy == nil {
		cfg.ReplicaPolicy = NewRoundRobin()
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = 10 * time.Second
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		store:   topology.NewStore(),
		mailbox: make(chan any, cfg.MailboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.conns = connection.NewSet[*envelope](cfg.Dialer, connHandler{r: r})
	return r
}

// Start runs the routing loop and blocks until the initial topology has
// been discovered.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	go r.loop()

	if err := r.SyncCluster(ctx); err != nil {
		r.Close()
		return err
	}
	return nil
}

// Close stops the router. Commands still in flight fail with ErrClosed.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	started := r.started
	r.mu.Unlock()

	r.cancel()
	close(r.stop)
	if !started {
		close(r.done)
		return nil
	}
	<-r.done
	return nil
}

// Done is closed once the router has stopped.
func (r *Router) Done() <-chan struct{} { return r.done }

// Route sends cmd to the server responsible for it and waits for the reply.
// Error replies are returned as *ServerError along with the reply value.
func (r *Router) Route(ctx context.Context, cmd Command) (protocol.Value, error) {
	if cmd.Name == "" {
		return protocol.Value{}, ErrInvalidCommand
	}
	if err := r.running(); err != nil {
		return protocol.Value{}, err
	}

	ctx, cancel := r.commandContext(ctx)
	defer cancel()

	env := newEnvelope(ctx, cmd)
	env.done = make(chan Result, 1)
	if err := r.send(ctx, routeMsg{envs: []*envelope{env}}); err != nil {
		return protocol.Value{}, err
	}

	select {
	case res := <-env.done:
		return res.Value, res.Err
	case <-ctx.Done():
		select {
		case res := <-env.done:
			return res.Value, res.Err
		default:
		}
		return protocol.Value{}, contextError(ctx.Err())
	case <-r.done:
		return protocol.Value{}, ErrClosed
	}
}

// RouteBatch routes cmds as a pipeline. Commands for the same server are
// written back to back; the results are in submission order and each
// element carries its own error. A batch is not atomic.
func (r *Router) RouteBatch(ctx context.Context, cmds []Command) []Result {
	fail := func(err error) []Result {
		out := make([]Result, len(cmds))
		for i := range out {
			out[i].Err = err
		}
		return out
	}
	if len(cmds) == 0 {
		return nil
	}
	if err := r.running(); err != nil {
		return fail(err)
	}

	ctx, cancel := r.commandContext(ctx)
	defer cancel()

	b := &batch{
		results:   make([]Result, len(cmds)),
		remaining: len(cmds),
		done:      make(chan []Result, 1),
	}
	envs := make([]*envelope, 0, len(cmds))
	for i, cmd := range cmds {
		if cmd.Name == "" {
			b.results[i].Err = ErrInvalidCommand
			b.remaining--
			continue
		}
		env := newEnvelope(ctx, cmd)
		env.batch = b
		env.index = i
		envs = append(envs, env)
	}
	if b.remaining == 0 {
		return b.results
	}

	if err := r.send(ctx, routeMsg{envs: envs, batch: true}); err != nil {
		return fail(err)
	}

	select {
	case res := <-b.done:
		return res
	case <-ctx.Done():
		select {
		case res := <-b.done:
			return res
		default:
		}
		return fail(contextError(ctx.Err()))
	case <-r.done:
		return fail(ErrClosed)
	}
}

// SyncCluster rediscovers slot ownership and replicas and installs the
// result.
func (r *Router) SyncCluster(ctx context.Context) error {
	return r.sync(ctx, true)
}

// SyncReplicas rediscovers the replica assignment only. Replica
// connections are reset and their in-flight commands routed again.
func (r *Router) SyncReplicas(ctx context.Context) error {
	return r.sync(ctx, false)
}

func (r *Router) sync(ctx context.Context, full bool) error {
	done := make(chan error, 1)
	if err := r.send(ctx, syncMsg{full: full, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return contextError(ctx.Err())
	case <-r.done:
		return ErrClosed
	}
}

// Snapshot returns the current topology.
func (r *Router) Snapshot() *topology.Snapshot {
	return r.store.Load()
}

// ReplicaTable returns a copy of the replica to primary mapping.
func (r *Router) ReplicaTable() map[topology.Server]topology.Server {
	return r.store.ReplicaTable()
}

// Stats returns a copy of the router counters.
func (r *Router) Stats() Stats {
	s := r.stats.snapshot()
	s.TopologyVersion = r.store.Load().Version()
	return s
}

func (r *Router) running() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if !r.started {
		return ErrNoTopology
	}
	return nil
}

func (r *Router) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && r.cfg.CommandTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

// send enqueues msg, blocking until it is accepted, ctx ends or the
// router stops.
func (r *Router) send(ctx context.Context, msg any) error {
	select {
	case <-ctx.Done():
		return contextError(ctx.Err())
	case <-r.stop:
		return ErrClosed
	case r.mailbox <- msg:
		return nil
	}
}

// post enqueues an internal event. It reports false once the router stops.
func (r *Router) post(msg any) bool {
	select {
	case <-r.stop:
		return false
	case r.mailbox <- msg:
		return true
	}
}

func (r *Router) loop() {
	defer close(r.done)

	var tick <-chan time.Time
	if r.cfg.RefreshInterval > 0 {
		t := time.NewTicker(r.cfg.RefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.stop:
			r.shutdown()
			return
		case <-tick:
			r.requestSync(true, nil)
		case msg := <-r.mailbox:
			r.handle(msg)
		}
	}
}

func (r *Router) handle(msg any) {
	switch m := msg.(type) {
	case routeMsg:
		if m.batch {
			r.dispatchBatch(m.envs)
			return
		}
		for _, env := range m.envs {
			r.dispatch(env)
		}
	case retryMsg:
		r.dispatchBatch(m.envs)
	case syncMsg:
		r.requestSync(m.full, m.done)
	case topologyMsg:
		r.installTopology(m)
	case establishedMsg:
		r.handleEstablished(m.conn)
	case replyMsg:
		r.handleReply(m.conn, m.value)
	case failedMsg:
		r.handleFailure(m.conn, m.err)
	default:
		r.log.Error("Unknown router message", "type", typeName(msg))
	}
}

func (r *Router) shutdown() {
	for _, env := range r.conns.CloseAll() {
		r.complete(env, protocol.Value{}, ErrClosed)
	}
	for _, w := range append(r.syncRun.waiters, r.syncNext.waiters...) {
		w <- ErrClosed
	}
	r.syncRun, r.syncNext = syncRound{}, syncRound{}
	r.log.Info("Router stopped")
}
