package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisrouter "github.com/raniellyferreira/redis-replica-router"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

func newSlotsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Show slot ranges with their primary and replicas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *redisrouter.Client) error {
				out := cmd.OutOrStdout()
				for _, r := range c.Slots() {
					fmt.Fprintf(out, "%5d-%-5d %s", r.Start, r.End, r.Primary)
					if len(r.Replicas) > 0 {
						fmt.Fprintf(out, " replicas=%s", serverList(r.Replicas))
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newReplicasCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "replicas",
		Short: "Show which primary each replica follows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *redisrouter.Client) error {
				printReplicas(cmd, c.Replicas().Nodes())
				return nil
			})
		},
	}
}

func printReplicas(cmd *cobra.Command, table map[topology.Server]topology.Server) {
	replicas := make([]topology.Server, 0, len(table))
	for r := range table {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool {
		if replicas[i].Host != replicas[j].Host {
			return replicas[i].Host < replicas[j].Host
		}
		return replicas[i].Port < replicas[j].Port
	})
	for _, r := range replicas {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r, table[r])
	}
}

func newExecCmd(v *viper.Viper) *cobra.Command {
	var replica bool
	cmd := &cobra.Command{
		Use:   "exec COMMAND [ARG...]",
		Short: "Route a single command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *redisrouter.Client) error {
				do := c.Do
				if replica {
					do = c.Replicas().Do
				}
				reply, err := do(ctx, args[0], args[1:]...)
				var se *redisrouter.ServerError
				if err != nil && !errors.As(err, &se) {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatReply(reply, ""))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&replica, "replica", "r", false, "prefer a replica of the owning primary")
	return cmd
}

func newResyncCmd(v *viper.Viper) *cobra.Command {
	var replicasOnly bool
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rediscover the topology and report the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *redisrouter.Client) error {
				var err error
				if replicasOnly {
					err = c.Replicas().Sync(ctx)
				} else {
					err = c.Sync(ctx)
				}
				if err != nil {
					return err
				}
				snap := c.Topology()
				fmt.Fprintf(cmd.OutOrStdout(), "topology version %d: %d primaries, %d replicas\n",
					snap.Version(), len(snap.Primaries()), len(snap.ReplicaTable()))
				if replicasOnly {
					printReplicas(cmd, snap.ReplicaTable())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replicasOnly, "replicas", false, "only rediscover replicas")
	return cmd
}

var errTopologyMismatch = errors.New("nodes disagree on slot ownership")

func newDiffCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Compare every node's CLUSTER SLOTS with the discovered topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !v.GetBool("cluster") {
				return errors.New("diff needs cluster mode")
			}
			return withClient(cmd, v, func(ctx context.Context, c *redisrouter.Client) error {
				want := c.Slots()
				d := newDialer(v)
				out := cmd.OutOrStdout()

				mismatches := 0
				for _, server := range c.Topology().Servers() {
					reply, err := d.Exchange(ctx, server, "CLUSTER", "SLOTS")
					if err != nil {
						fmt.Fprintf(out, "ERROR    %s: %v\n", server, err)
						mismatches++
						continue
					}
					view, err := topology.ParseClusterSlots(reply, server, 0)
					if err != nil {
						fmt.Fprintf(out, "ERROR    %s: %v\n", server, err)
						mismatches++
						continue
					}
					got := view.Ranges()
					if !equalRanges(got, want) {
						fmt.Fprintf(out, "MISMATCH %s: %d ranges, expected %d\n", server, len(got), len(want))
						mismatches++
						continue
					}
					fmt.Fprintf(out, "OK       %s\n", server)
				}
				if mismatches > 0 {
					return fmt.Errorf("%w: %d of %d nodes", errTopologyMismatch, mismatches, len(c.Topology().Servers()))
				}
				return nil
			})
		},
	}
}

func equalRanges(a, b []topology.SlotRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End || a[i].Primary != b[i].Primary {
			return false
		}
		if len(a[i].Replicas) != len(b[i].Replicas) {
			return false
		}
		for j := range a[i].Replicas {
			if a[i].Replicas[j] != b[i].Replicas[j] {
				return false
			}
		}
	}
	return true
}

func tlsConfig(serverName string) *tls.Config {
	return &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
}
