package redisrouter

import (
	"context"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/router"
)

// executor is implemented by the handles that send commands. prepare sets
// the routing hints of the handle before a command is routed.
type executor interface {
	router() *router.Router
	prepare(cmd *router.Command)
}

// commands implements the read helpers shared by Client and Replicas.
type commands struct {
	exec executor
}

// DoCommand routes cmd and returns its reply. Error replies are returned as
// *ServerError together with the reply value.
func (c commands) DoCommand(ctx context.Context, cmd router.Command) (protocol.Value, error) {
	c.exec.prepare(&cmd)
	return c.exec.router().Route(ctx, cmd)
}

// Do routes the command name with args.
func (c commands) Do(ctx context.Context, name string, args ...string) (protocol.Value, error) {
	return c.DoCommand(ctx, router.NewCommand(name, args...))
}

// Get returns the value of key and whether it exists.
func (c commands) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.Do(ctx, "GET", key)
	if err != nil {
		return nil, false, err
	}
	if v.Type != protocol.TypeBulkString {
		return nil, false, unexpectedReply("GET", v)
	}
	if v.IsNull {
		return nil, false, nil
	}
	return v.Data, true, nil
}

// Exists reports how many of keys exist. Keys must share a hash slot in
// cluster mode.
func (c commands) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, ErrInvalidCommand
	}
	v, err := c.Do(ctx, "EXISTS", keys...)
	if err != nil {
		return 0, err
	}
	return integerReply("EXISTS", v)
}

func (c commands) pipeline() *Pipeline {
	return &Pipeline{exec: c.exec}
}

func integerReply(cmd string, v protocol.Value) (int64, error) {
	if v.Type != protocol.TypeInteger {
		return 0, unexpectedReply(cmd, v)
	}
	return v.Integer, nil
}

func unexpectedReply(cmd string, v protocol.Value) error {
	return &ProtocolError{
		Message: "unexpected " + string(rune(v.Type)) + " reply to " + cmd,
		Data:    v.Data,
	}
}
