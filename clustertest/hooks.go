package clustertest

import (
	"time"

	"github.com/raniellyferreira/redis-replica-router/protocol"
)

// Action tells a node how to treat one incoming command. The zero Action
// lets the node handle the command normally.
type Action struct {
	// Delay is applied before anything else.
	Delay time.Duration

	// Reply is sent instead of the normal answer.
	Reply *protocol.Value

	// Raw bytes are written instead of the normal answer.
	Raw []byte

	// Close drops the connection without answering.
	Close bool
}

// Hook inspects each command a node receives.
type Hook func(cmd *protocol.Command) Action

// ReplyWith returns an Action answering with v.
func ReplyWith(v protocol.Value) Action {
	return Action{Reply: &v}
}

// ReplyError returns an Action answering with an error reply.
func ReplyError(msg string) Action {
	return ReplyWith(protocol.ErrorValue(msg))
}

// Pass is the Action that handles a command normally.
var Pass = Action{}

// OnCommand returns a hook applying action to commands named name and
// passing everything else. times limits how often it fires; 0 means always.
func OnCommand(name string, times int, action Action) Hook {
	fired := 0
	return func(cmd *protocol.Command) Action {
		if cmd.Name != name {
			return Pass
		}
		if times > 0 && fired >= times {
			return Pass
		}
		fired++
		return action
	}
}
