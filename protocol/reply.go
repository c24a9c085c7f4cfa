package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplyKind classifies a reply for routing purposes.
type ReplyKind int

const (
	// ReplyNormal is any reply the caller should receive as-is, including
	// error replies that are not routing related.
	ReplyNormal ReplyKind = iota
	// ReplyMoved means the slot is permanently served by another node.
	ReplyMoved
	// ReplyAsk means the slot is migrating; retry once on another node.
	ReplyAsk
	// ReplyClusterDown means the cluster cannot serve the slot right now.
	ReplyClusterDown
	// ReplyTransient covers LOADING, TRYAGAIN and MASTERDOWN.
	ReplyTransient
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyNormal:
		return "normal"
	case ReplyMoved:
		return "moved"
	case ReplyAsk:
		return "ask"
	case ReplyClusterDown:
		return "clusterdown"
	case ReplyTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Reply is a classified server reply.
type Reply struct {
	Kind  ReplyKind
	Value Value

	// Slot and Addr are set for ReplyMoved and ReplyAsk. Addr may have an
	// empty host when the server does not know its own endpoint.
	Slot int
	Addr string
}

// ParseReply classifies v. Only malformed redirections return an error,
// which wraps ErrProtocol.
func ParseReply(v Value) (Reply, error) {
	if v.Type != TypeError {
		return Reply{Kind: ReplyNormal, Value: v}, nil
	}

	msg := string(v.Data)
	prefix := msg
	if i := strings.IndexByte(msg, ' '); i >= 0 {
		prefix = msg[:i]
	}

	switch prefix {
	case "MOVED", "ASK":
		slot, addr, err := parseRedirect(msg)
		if err != nil {
			return Reply{}, err
		}
		kind := ReplyMoved
		if prefix == "ASK" {
			kind = ReplyAsk
		}
		return Reply{Kind: kind, Value: v, Slot: slot, Addr: addr}, nil
	case "CLUSTERDOWN":
		return Reply{Kind: ReplyClusterDown, Value: v}, nil
	case "LOADING", "TRYAGAIN", "MASTERDOWN":
		return Reply{Kind: ReplyTransient, Value: v}, nil
	default:
		return Reply{Kind: ReplyNormal, Value: v}, nil
	}
}

// parseRedirect parses "MOVED <slot> <host>:<port>".
func parseRedirect(msg string) (int, string, error) {
	parts := strings.Fields(msg)
	if len(parts) != 3 {
		return 0, "", fmt.Errorf("%w: malformed redirection %q", ErrProtocol, msg)
	}

	slot, err := strconv.Atoi(parts[1])
	if err != nil || slot < 0 || slot >= 16384 {
		return 0, "", fmt.Errorf("%w: invalid slot in redirection %q", ErrProtocol, msg)
	}

	addr := parts[2]
	if strings.LastIndexByte(addr, ':') < 0 {
		return 0, "", fmt.Errorf("%w: invalid address in redirection %q", ErrProtocol, msg)
	}

	return slot, addr, nil
}
