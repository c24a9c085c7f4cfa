package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-replica-router/protocol"
)

// ParseClusterSlots builds a cluster snapshot from a CLUSTER SLOTS reply.
// origin is the node that answered; entries with an empty host refer to it.
func ParseClusterSlots(v protocol.Value, origin Server, version uint64) (*Snapshot, error) {
	if v.Type != protocol.TypeArray || v.IsNull {
		return nil, fmt.Errorf("%w: CLUSTER SLOTS reply type %c, want array", protocol.ErrProtocol, v.Type)
	}

	b := NewClusterBuilder(version)
	for i, entry := range v.Array {
		if entry.Type != protocol.TypeArray || len(entry.Array) < 3 {
			return nil, fmt.Errorf("%w: CLUSTER SLOTS entry %d malformed", protocol.ErrProtocol, i)
		}
		start, err := entry.Array[0].Int()
		if err != nil {
			return nil, fmt.Errorf("%w: slot start: %v", protocol.ErrProtocol, err)
		}
		end, err := entry.Array[1].Int()
		if err != nil {
			return nil, fmt.Errorf("%w: slot end: %v", protocol.ErrProtocol, err)
		}
		if start < 0 || end < start || end >= NumSlots {
			return nil, fmt.Errorf("%w: slot range %d-%d", protocol.ErrProtocol, start, end)
		}

		primary, err := parseNode(entry.Array[2], origin)
		if err != nil {
			return nil, err
		}
		b.AssignSlots(uint16(start), uint16(end), primary)

		for _, rv := range entry.Array[3:] {
			replica, err := parseNode(rv, origin)
			if err != nil {
				return nil, err
			}
			b.AddReplica(primary, replica)
		}
	}
	return b.Build(), nil
}

func parseNode(v protocol.Value, origin Server) (Server, error) {
	if v.Type != protocol.TypeArray || len(v.Array) < 2 {
		return Server{}, fmt.Errorf("%w: CLUSTER SLOTS node malformed", protocol.ErrProtocol)
	}
	host := v.Array[0].String()
	if host == "" || host == "?" {
		host = origin.Host
	}
	port, err := v.Array[1].Int()
	if err != nil || port <= 0 || port > 65535 {
		return Server{}, fmt.Errorf("%w: node port %q", protocol.ErrProtocol, v.Array[1].String())
	}
	return NewServer(host, uint16(port)), nil
}

// Role is the replication role a server reports.
type Role struct {
	Primary bool

	// Replicas is set for primaries.
	Replicas []Server

	// PrimaryAddr is set for replicas.
	PrimaryAddr Server
}

// ParseRole decodes a ROLE reply from self.
//
//	master:  ["master", offset, [[host, port, offset], ...]]
//	replica: ["slave", host, port, state, offset]
func ParseRole(v protocol.Value, self Server) (Role, error) {
	if v.Type != protocol.TypeArray || len(v.Array) == 0 {
		return Role{}, fmt.Errorf("%w: ROLE reply malformed", protocol.ErrProtocol)
	}

	switch strings.ToLower(v.Array[0].String()) {
	case "master":
		role := Role{Primary: true}
		if len(v.Array) < 3 {
			return role, nil
		}
		for _, rv := range v.Array[2].Array {
			if len(rv.Array) < 2 {
				return Role{}, fmt.Errorf("%w: ROLE replica entry malformed", protocol.ErrProtocol)
			}
			host := rv.Array[0].String()
			if host == "" {
				host = self.Host
			}
			port, err := strconv.ParseUint(rv.Array[1].String(), 10, 16)
			if err != nil || port == 0 {
				return Role{}, fmt.Errorf("%w: ROLE replica port %q", protocol.ErrProtocol, rv.Array[1].String())
			}
			role.Replicas = append(role.Replicas, NewServer(host, uint16(port)))
		}
		return role, nil

	case "slave", "replica":
		if len(v.Array) < 3 {
			return Role{}, fmt.Errorf("%w: ROLE replica reply malformed", protocol.ErrProtocol)
		}
		port, err := v.Array[2].Int()
		if err != nil || port <= 0 || port > 65535 {
			return Role{}, fmt.Errorf("%w: ROLE primary port %q", protocol.ErrProtocol, v.Array[2].String())
		}
		return Role{PrimaryAddr: NewServer(v.Array[1].String(), uint16(port))}, nil

	default:
		return Role{}, fmt.Errorf("%w: unsupported role %q", protocol.ErrProtocol, v.Array[0].String())
	}
}

// StandaloneSnapshot builds a non-cluster snapshot from a primary's role.
func StandaloneSnapshot(primary Server, role Role, version uint64) *Snapshot {
	b := NewStandaloneBuilder(version, primary)
	for _, r := range role.Replicas {
		b.AddReplica(primary, r)
	}
	return b.Build()
}
