// Package protocol implements the Redis Serialization Protocol (RESP)
// used between the router and the servers it talks to.
//
// Commands are serialized with AppendCommand or a Writer and replies are
// parsed with a Reader:
//
//	frame := protocol.AppendCommand(nil, "GET", []byte("foo"))
//	conn.Write(frame)
//
//	reader := protocol.NewReader(conn)
//	value, err := reader.ReadNext()
//
// ParseReply classifies a reply into a normal value, a cluster redirection
// (MOVED / ASK) or a transient unavailability (CLUSTERDOWN, LOADING,
// TRYAGAIN, MASTERDOWN). Framing violations are reported as errors
// wrapping ErrProtocol.
package protocol
