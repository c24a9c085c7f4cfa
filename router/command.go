package router

import (
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Command is a single request to route.
type Command struct {
	Name string
	Args [][]byte

	// Key overrides key extraction when set.
	Key []byte

	// PreferReplica sends the command to a replica of the owning primary
	// when one is known.
	PreferReplica bool
}

// NewCommand builds a command from string arguments.
func NewCommand(name string, args ...string) Command {
	bs := make([][]byte, len(args))
	for i, a := range args {
		bs[i] = []byte(a)
	}
	return Command{Name: name, Args: bs}
}

// String returns the command name, which is what gets logged.
func (c Command) String() string {
	return strings.ToUpper(c.Name)
}

// keyless lists commands whose first argument is not a key.
var keyless = map[string]struct{}{
	"PING": {}, "ECHO": {}, "INFO": {}, "ROLE": {}, "CLUSTER": {},
	"DBSIZE": {}, "TIME": {}, "LASTSAVE": {}, "RANDOMKEY": {}, "KEYS": {},
	"SCAN": {}, "FLUSHALL": {}, "FLUSHDB": {}, "SCRIPT": {}, "FUNCTION": {},
	"CONFIG": {}, "CLIENT": {}, "COMMAND": {}, "WAIT": {}, "READONLY": {},
	"READWRITE": {}, "ASKING": {}, "HELLO": {}, "AUTH": {}, "SELECT": {},
	"SAVE": {}, "BGSAVE": {}, "SLOWLOG": {}, "LATENCY": {}, "MEMORY": {},
	"PUBLISH": {}, "PUBSUB": {}, "SWAPDB": {},
}

// RoutingKey returns the key that decides the command's slot.
func (c Command) RoutingKey() ([]byte, bool) {
	if c.Key != nil {
		return c.Key, true
	}
	name := strings.ToUpper(c.Name)

	switch name {
	case "EVAL", "EVALSHA", "EVAL_RO", "EVALSHA_RO", "FCALL", "FCALL_RO":
		// script numkeys key [key ...] arg [arg ...]
		if len(c.Args) < 3 {
			return nil, false
		}
		n, err := strconv.Atoi(string(c.Args[1]))
		if err != nil || n <= 0 {
			return nil, false
		}
		return c.Args[2], true
	case "XREAD", "XREADGROUP":
		for i, a := range c.Args {
			if strings.EqualFold(string(a), "STREAMS") && i+1 < len(c.Args) {
				return c.Args[i+1], true
			}
		}
		return nil, false
	case "OBJECT":
		// OBJECT subcommand key
		if len(c.Args) < 2 {
			return nil, false
		}
		return c.Args[1], true
	}

	if _, ok := keyless[name]; ok || len(c.Args) == 0 {
		return nil, false
	}
	return c.Args[0], true
}

// Slot returns the hash slot of the routing key.
func (c Command) Slot() (uint16, bool) {
	key, ok := c.RoutingKey()
	if !ok {
		return 0, false
	}
	return topology.HashSlot(key), true
}

// Encode appends the RESP form of the command to dst.
func (c Command) Encode(dst []byte) []byte {
	return protocol.AppendCommand(dst, c.Name, c.Args...)
}

var askingPayload = protocol.AppendCommand(nil, "ASKING")
