package redisrouter

import (
	"context"

	"github.com/raniellyferreira/redis-replica-router/router"
)

// Pipeline queues commands and sends them together. Commands for the same
// server are written back to back. A pipeline is not a transaction: each
// command succeeds or fails on its own.
type Pipeline struct {
	exec executor
	cmds []router.Command
}

// Add queues the command name with args.
func (p *Pipeline) Add(name string, args ...string) *Pipeline {
	return p.AddCommand(router.NewCommand(name, args...))
}

// AddCommand queues cmd.
func (p *Pipeline) AddCommand(cmd router.Command) *Pipeline {
	p.exec.prepare(&cmd)
	p.cmds = append(p.cmds, cmd)
	return p
}

// Len returns the number of queued commands.
func (p *Pipeline) Len() int {
	return len(p.cmds)
}

// Exec sends the queued commands and empties the pipeline. The results are
// in the order the commands were added, each with its own error.
func (p *Pipeline) Exec(ctx context.Context) []Result {
	cmds := p.cmds
	p.cmds = nil
	return p.exec.router().RouteBatch(ctx, cmds)
}
