package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisrouter "github.com/raniellyferreira/redis-replica-router"
	"github.com/raniellyferreira/redis-replica-router/connection"
	"github.com/raniellyferreira/redis-replica-router/router"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// newRootCmd builds the command tree around its own viper instance so that
// flags, REDISROUTE_* variables and the config file resolve per invocation.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "redis-route",
		Short: "Inspect Redis Cluster and replica routing",
		Long: `redis-route discovers the topology of a Redis Cluster, or of a primary and
its replicas, and shows where commands are routed. It can run single
commands against the owning primary or one of its replicas, force a resync,
and check that every node agrees on slot ownership.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.redis-route.yaml)")
	flags.StringSliceP("seeds", "s", []string{"127.0.0.1:7000"}, "seed addresses (host:port)")
	flags.Bool("cluster", true, "use Redis Cluster discovery; false discovers replicas with ROLE")
	flags.String("username", "", "ACL username")
	flags.StringP("password", "a", "", "password sent with AUTH")
	flags.IntP("db", "n", 0, "database number (standalone only)")
	flags.DurationP("timeout", "t", 5*time.Second, "command and discovery timeout")
	flags.Bool("tls", false, "connect with TLS")
	flags.String("tls-server-name", "", "server name checked against the TLS certificate")
	flags.String("replica-policy", "round-robin", "replica selection: round-robin or key-affinity")
	flags.String("log-level", "error", "log level: debug, info or error")

	for _, name := range []string{"seeds", "cluster", "username", "password", "db", "timeout",
		"tls", "tls-server-name", "replica-policy", "log-level"} {
		v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newSlotsCmd(v),
		newReplicasCmd(v),
		newExecCmd(v),
		newResyncCmd(v),
		newDiffCmd(v),
	)
	return root
}

// initConfig reads in config file and ENV variables if set.
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("redisroute")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".redis-route")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if cfgFile == "" {
			// Probably no config found
			return nil
		}
		return fmt.Errorf("unable to read config: %w", err)
	}
	return nil
}

// seeds accepts repeated flags as well as comma separated values from the
// environment or the config file.
func seeds(v *viper.Viper) []string {
	var out []string
	for _, s := range v.GetStringSlice("seeds") {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func newLogger(v *viper.Viper, w io.Writer) (redisrouter.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", v.GetString("log-level"))
	}
	return redisrouter.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))), nil
}

func newClient(v *viper.Viper, logOut io.Writer) (*redisrouter.Client, error) {
	logger, err := newLogger(v, logOut)
	if err != nil {
		return nil, err
	}

	timeout := v.GetDuration("timeout")
	opts := []redisrouter.Option{
		redisrouter.WithSeeds(seeds(v)...),
		redisrouter.WithCluster(v.GetBool("cluster")),
		redisrouter.WithCommandTimeout(timeout),
		redisrouter.WithDiscoveryTimeout(timeout),
		redisrouter.WithLogger(logger),
	}
	if pw := v.GetString("password"); pw != "" {
		opts = append(opts, redisrouter.WithAuth(v.GetString("username"), pw))
	}
	if db := v.GetInt("db"); db != 0 {
		opts = append(opts, redisrouter.WithDatabase(db))
	}
	if v.GetBool("tls") {
		opts = append(opts, redisrouter.WithSecureTLS(v.GetString("tls-server-name")))
	}

	switch p := v.GetString("replica-policy"); p {
	case "", "round-robin":
	case "key-affinity":
		opts = append(opts, redisrouter.WithReplicaPolicy(router.NewKeyAffinity()))
	default:
		return nil, fmt.Errorf("unknown replica policy %q", p)
	}

	return redisrouter.New(opts...)
}

// withClient connects a client for the duration of fn.
func withClient(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, c *redisrouter.Client) error) error {
	client, err := newClient(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	return fn(cmd.Context(), client)
}

// newDialer mirrors the client's connection settings for direct queries.
func newDialer(v *viper.Viper) *connection.Dialer {
	d := &connection.Dialer{
		ConnectTimeout: v.GetDuration("timeout"),
		WriteTimeout:   v.GetDuration("timeout"),
		Username:       v.GetString("username"),
		Password:       v.GetString("password"),
	}
	if v.GetBool("tls") {
		d.TLS = tlsConfig(v.GetString("tls-server-name"))
	}
	return d
}

func serverList(servers []topology.Server) string {
	parts := make([]string, len(servers))
	for i, s := range servers {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
