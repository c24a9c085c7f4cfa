package redisrouter

import (
	"crypto/tls"
	"time"

	"github.com/raniellyferreira/redis-replica-router/router"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// config holds the configuration for a Client
type config struct {
	// Discovery
	seeds   []topology.Server
	cluster bool

	// Connection settings
	username string
	password string
	tls      *tls.Config
	database int

	// Timeouts and limits
	connectTimeout   time.Duration
	writeTimeout     time.Duration
	commandTimeout   time.Duration
	discoveryTimeout time.Duration
	maxRedirections  int
	retry            router.RetryPolicy
	refreshInterval  time.Duration

	replicaPolicy router.ReplicaPolicy

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		cluster:          true,
		connectTimeout:   5 * time.Second,
		writeTimeout:     10 * time.Second,
		commandTimeout:   30 * time.Second,
		discoveryTimeout: 10 * time.Second,
		maxRedirections:  5,
		retry:            router.DefaultRetryPolicy(),
		logger:           &defaultLogger{},
	}
}

func (c *config) validate() error {
	if len(c.seeds) == 0 {
		return &ConfigError{Option: "WithSeeds", Reason: "at least one seed is required"}
	}
	if c.cluster && c.database != 0 {
		return &ConfigError{Option: "WithDatabase", Reason: "cluster mode only has database 0"}
	}
	return nil
}

// routerConfig translates the options into the router configuration.
func (c *config) routerConfig() router.Config {
	cfg := router.Config{
		Seeds:            c.seeds,
		Cluster:          c.cluster,
		MaxRedirections:  c.maxRedirections,
		Retry:            c.retry,
		ReplicaPolicy:    c.replicaPolicy,
		CommandTimeout:   c.commandTimeout,
		DiscoveryTimeout: c.discoveryTimeout,
		RefreshInterval:  c.refreshInterval,
		Logger:           &loggerAdapter{logger: c.logger},
	}
	cfg.Dialer = newDialer(c)
	if c.metrics != nil {
		cfg.Metrics = &metricsAdapter{metrics: c.metrics}
	}
	return cfg
}

// Option represents a configuration option for a Client
type Option func(*config) error

// WithSeeds sets the servers queried for the initial topology. Any node of
// a cluster will do; more seeds make startup survive a node being down.
//
// Example:
//   WithSeeds("10.0.0.1:7000", "10.0.0.2:7000")
func WithSeeds(addrs ...string) Option {
	return func(c *config) error {
		seeds := make([]topology.Server, 0, len(addrs))
		for _, addr := range addrs {
			s, err := topology.ParseServer(addr)
			if err != nil {
				return &ConnectionError{
					Addr: addr,
					Err:  ErrInvalidConfig,
				}
			}
			seeds = append(seeds, s)
		}
		if len(seeds) == 0 {
			return &ConfigError{Option: "WithSeeds", Reason: "no addresses"}
		}
		c.seeds = seeds
		return nil
	}
}

// WithCluster selects between Redis Cluster (the default) and a single
// primary with replicas discovered through ROLE.
//
// Example:
//   WithCluster(false)
func WithCluster(enabled bool) Option {
	return func(c *config) error {
		c.cluster = enabled
		return nil
	}
}

// WithAuth sets the credentials sent with AUTH on every connection. An
// empty username authenticates with the password only.
//
// Example:
//   WithAuth("", "mypassword")
//   WithAuth("app", "secret")
func WithAuth(username, password string) Option {
	return func(c *config) error {
		if username != "" && password == "" {
			return &ConfigError{Option: "WithAuth", Reason: "username without password"}
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithDatabase selects the database on every connection. Only valid
// outside cluster mode.
//
// Example:
//   WithDatabase(2)
func WithDatabase(db int) Option {
	return func(c *config) error {
		if db < 0 || db > 15 {
			return ErrInvalidConfig
		}
		c.database = db
		return nil
	}
}

// WithTLS configures TLS for every server connection
//
// Example:
//   config := &tls.Config{
//     ServerName: "redis.example.com",
//   }
//   WithTLS(config)
func WithTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.tls = tlsConfig
		return nil
	}
}

// WithSecureTLS configures TLS with secure defaults
//
// It enforces certificate verification and TLS 1.2 or newer.
//
// Example:
//   WithSecureTLS("redis.example.com")
func WithSecureTLS(serverName string) Option {
	return func(c *config) error {
		if serverName == "" {
			return ErrInvalidConfig
		}
		c.tls = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
		return nil
	}
}

// WithConnectTimeout sets the timeout for dialing and the connection handshake
//
// Example:
//   WithConnectTimeout(2 * time.Second)
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout for network operations
//
// Example:
//   WithWriteTimeout(10 * time.Second)
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithCommandTimeout bounds commands whose context carries no deadline.
// Zero disables the bound.
//
// Example:
//   WithCommandTimeout(500 * time.Millisecond)
func WithCommandTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.commandTimeout = timeout
		return nil
	}
}

// WithDiscoveryTimeout bounds one round of topology discovery
//
// Example:
//   WithDiscoveryTimeout(5 * time.Second)
func WithDiscoveryTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.discoveryTimeout = timeout
		return nil
	}
}

// WithMaxRedirections sets how many MOVED or ASK replies a single command
// may follow before failing with ErrRedirectionLoop (default: 5)
//
// Example:
//   WithMaxRedirections(3)
func WithMaxRedirections(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return ErrInvalidConfig
		}
		c.maxRedirections = n
		return nil
	}
}

// WithRetryPolicy sets how transient replies and connection failures are
// retried. MaxAttempts 0 disables retries.
//
// Example:
//   WithRetryPolicy(router.RetryPolicy{
//     MaxAttempts: 10,
//     MinBackoff:  5 * time.Millisecond,
//     MaxBackoff:  time.Second,
//   })
func WithRetryPolicy(p router.RetryPolicy) Option {
	return func(c *config) error {
		if p == (router.RetryPolicy{}) {
			return &ConfigError{Option: "WithRetryPolicy", Reason: "empty policy"}
		}
		if p.MaxAttempts < 0 {
			return &ConfigError{Option: "WithRetryPolicy", Reason: "MaxAttempts must not be negative"}
		}
		if p.MinBackoff < 0 || p.MaxBackoff < p.MinBackoff || p.MaxElapsed < 0 {
			return &ConfigError{Option: "WithRetryPolicy", Reason: "invalid backoff bounds"}
		}
		c.retry = p
		return nil
	}
}

// WithReplicaPolicy sets how a replica is chosen for replica reads
// (default: round robin)
//
// Example:
//   WithReplicaPolicy(router.NewKeyAffinity())
func WithReplicaPolicy(p router.ReplicaPolicy) Option {
	return func(c *config) error {
		if p == nil {
			return ErrInvalidConfig
		}
		c.replicaPolicy = p
		return nil
	}
}

// WithRefreshInterval rediscovers the topology periodically. Zero, the
// default, relies on redirections and failures alone.
//
// Example:
//   WithRefreshInterval(time.Minute)
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval < 0 {
			return ErrInvalidConfig
		}
		c.refreshInterval = interval
		return nil
	}
}

// WithLogger sets a custom logger for the client
//
// Example:
//   WithLogger(redisrouter.NewSlogLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//   WithMetrics(prometheus.New(prometheus.DefaultRegisterer))
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}
