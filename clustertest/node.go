package clustertest

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Node is one fake server of a Cluster.
type Node struct {
	cluster *Cluster
	id      string
	server  topology.Server

	listener net.Listener
	clients  sync.Map // map[net.Conn]*client
	wg       sync.WaitGroup

	// hookMu serializes hook calls so hooks may keep unguarded state.
	hookMu sync.Mutex

	mu       sync.Mutex
	primary  *Node
	store    *Store
	hook     Hook
	received []string
	closed   bool
}

// client is the per-connection state of a node.
type client struct {
	node   *Node
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer

	authenticated bool
	readOnly      bool
	asking        bool
}

func startNode(c *Cluster, primary *Node) (*Node, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	server, err := topology.ParseServer(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, err
	}

	n := &Node{
		cluster:  c,
		id:       fmt.Sprintf("%040x", server.Port),
		server:   server,
		listener: ln,
		primary:  primary,
	}
	if primary == nil {
		n.store = NewStore()
	} else {
		n.store = primary.store
	}

	n.wg.Add(1)
	go n.acceptConnections()
	return n, nil
}

// Server returns the node address.
func (n *Node) Server() topology.Server { return n.server }

// Addr returns the node address as "host:port".
func (n *Node) Addr() string { return n.server.String() }

// ID returns the node id reported by CLUSTER SLOTS.
func (n *Node) ID() string { return n.id }

// Primary returns the node this replica follows, or nil for primaries.
func (n *Node) Primary() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.primary
}

// IsReplica reports whether the node is a replica.
func (n *Node) IsReplica() bool { return n.Primary() != nil }

// Store returns the keyspace served by the node.
func (n *Node) Store() *Store {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store
}

// SetHook installs h; nil removes the hook.
func (n *Node) SetHook(h Hook) {
	n.mu.Lock()
	n.hook = h
	n.mu.Unlock()
}

// Received returns every command the node has seen, formatted as
// "NAME arg ...".
func (n *Node) Received() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.received...)
}

// Count returns how many commands named name the node has seen.
func (n *Node) Count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, r := range n.received {
		if r == name || strings.HasPrefix(r, name+" ") {
			count++
		}
	}
	return count
}

// ResetReceived clears the command log.
func (n *Node) ResetReceived() {
	n.mu.Lock()
	n.received = nil
	n.mu.Unlock()
}

// DropConnections closes every client connection. The node keeps
// accepting new ones.
func (n *Node) DropConnections() {
	n.clients.Range(func(key, value interface{}) bool {
		value.(*client).conn.Close()
		return true
	})
}

// Close stops the node. Later dials are refused.
func (n *Node) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	n.listener.Close()
	n.DropConnections()
	n.wg.Wait()
}

func (n *Node) acceptConnections() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		cl := &client{
			node:          n,
			conn:          conn,
			reader:        protocol.NewReader(conn),
			writer:        protocol.NewWriter(conn),
			authenticated: n.cluster.password == "",
		}
		n.clients.Store(conn, cl)
		n.wg.Add(1)
		go cl.handle()
	}
}

func (cl *client) handle() {
	defer cl.node.wg.Done()
	defer func() {
		cl.conn.Close()
		cl.node.clients.Delete(cl.conn)
	}()

	for {
		value, err := cl.reader.ReadNext()
		if err != nil {
			if err != io.EOF {
				cl.write(protocol.ErrorValue(fmt.Sprintf("ERR Protocol error: %v", err)))
			}
			return
		}
		cmd, err := protocol.ParseCommand(value)
		if err != nil {
			cl.write(protocol.ErrorValue(fmt.Sprintf("ERR Protocol error: %v", err)))
			continue
		}

		n := cl.node
		n.mu.Lock()
		n.received = append(n.received, cmd.String())
		hook := n.hook
		n.mu.Unlock()

		var action Action
		if hook != nil {
			n.hookMu.Lock()
			action = hook(cmd)
			n.hookMu.Unlock()
		}

		if action.Delay > 0 {
			time.Sleep(action.Delay)
		}
		switch {
		case action.Close:
			return
		case action.Raw != nil:
			cl.writer.WriteRaw(action.Raw)
			cl.writer.Flush()
			continue
		case action.Reply != nil:
			cl.write(*action.Reply)
			continue
		}

		if cmd.Name == "QUIT" {
			cl.write(protocol.SimpleString("OK"))
			return
		}
		cl.write(cl.execute(cmd))
	}
}

func (cl *client) write(v protocol.Value) {
	cl.writer.WriteValue(v)
	cl.writer.Flush()
}

func errorf(format string, args ...interface{}) protocol.Value {
	return protocol.ErrorValue(fmt.Sprintf(format, args...))
}

func (cl *client) execute(cmd *protocol.Command) protocol.Value {
	n := cl.node
	c := n.cluster

	if !cl.authenticated && cmd.Name != "AUTH" {
		return protocol.ErrorValue("NOAUTH Authentication required.")
	}

	switch cmd.Name {
	case "AUTH":
		return cl.auth(cmd)
	case "PING":
		if len(cmd.Args) == 1 {
			return protocol.BulkString(cmd.Args[0])
		}
		return protocol.SimpleString("PONG")
	case "ECHO":
		if len(cmd.Args) != 1 {
			return wrongArgs(cmd)
		}
		return protocol.BulkString(cmd.Args[0])
	case "SELECT":
		if len(cmd.Args) != 1 {
			return wrongArgs(cmd)
		}
		db, err := strconv.Atoi(string(cmd.Args[0]))
		if err != nil || db < 0 || db > 15 {
			return protocol.ErrorValue("ERR DB index is out of range")
		}
		if c.clustered && db != 0 {
			return protocol.ErrorValue("ERR SELECT is not allowed in cluster mode")
		}
		return protocol.SimpleString("OK")
	case "READONLY", "READWRITE":
		if !c.clustered {
			return protocol.ErrorValue("ERR This instance has cluster support disabled")
		}
		cl.readOnly = cmd.Name == "READONLY"
		return protocol.SimpleString("OK")
	case "ASKING":
		if !c.clustered {
			return protocol.ErrorValue("ERR This instance has cluster support disabled")
		}
		cl.asking = true
		return protocol.SimpleString("OK")
	case "CLUSTER":
		return cl.clusterCommand(cmd)
	case "ROLE":
		return n.role()
	}

	asking := cl.asking
	cl.asking = false

	def, ok := commandTable[cmd.Name]
	if !ok {
		return errorf("ERR unknown command '%s', with args beginning with: ", strings.ToLower(cmd.Name))
	}
	if len(cmd.Args) < def.minArgs {
		return wrongArgs(cmd)
	}

	keys := def.keys(cmd)
	store, redirect := cl.owner(keys, def.write, asking)
	if redirect != nil {
		return *redirect
	}
	return def.run(store, cmd, keys)
}

func (cl *client) auth(cmd *protocol.Command) protocol.Value {
	password := cl.node.cluster.password
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		return wrongArgs(cmd)
	}
	if password == "" {
		return protocol.ErrorValue("ERR AUTH <password> called without any password configured for the default user.")
	}
	if string(cmd.Args[len(cmd.Args)-1]) != password {
		return protocol.ErrorValue("WRONGPASS invalid username-password pair or user is disabled.")
	}
	cl.authenticated = true
	return protocol.SimpleString("OK")
}

// owner decides whether this node serves keys, returning the store to use
// or the redirection to send back.
func (cl *client) owner(keys []string, write, asking bool) (*Store, *protocol.Value) {
	n := cl.node
	c := n.cluster
	primary := n.Primary()

	if !c.clustered || len(keys) == 0 {
		if primary != nil && write {
			v := protocol.ErrorValue("READONLY You can't write against a read only replica.")
			return nil, &v
		}
		return n.Store(), nil
	}

	slot := topology.HashSlotString(keys[0])
	for _, k := range keys[1:] {
		if topology.HashSlotString(k) != slot {
			v := protocol.ErrorValue("CROSSSLOT Keys in request don't hash to the same slot")
			return nil, &v
		}
	}

	c.mu.RLock()
	owner := c.slots[slot]
	importing := c.importing[slot]
	c.mu.RUnlock()

	moved := func() (*Store, *protocol.Value) {
		if owner == nil {
			v := errorf("CLUSTERDOWN Hash slot not served")
			return nil, &v
		}
		v := errorf("MOVED %d %s", slot, owner.Addr())
		return nil, &v
	}

	if primary != nil {
		if cl.readOnly && !write && owner == primary {
			return n.Store(), nil
		}
		return moved()
	}

	if owner == n {
		if importing != nil && n.Store().Exists(keys...) < int64(len(keys)) {
			v := errorf("ASK %d %s", slot, importing.Addr())
			return nil, &v
		}
		return n.Store(), nil
	}
	if importing == n && asking {
		return n.Store(), nil
	}
	return moved()
}

func (n *Node) role() protocol.Value {
	c := n.cluster
	if p := n.Primary(); p != nil {
		return protocol.Array(
			protocol.BulkString([]byte("slave")),
			protocol.BulkString([]byte(p.server.Host)),
			protocol.Integer(int64(p.server.Port)),
			protocol.BulkString([]byte("connected")),
			protocol.Integer(0),
		)
	}
	var replicas []protocol.Value
	for _, r := range c.ReplicasOf(n) {
		replicas = append(replicas, protocol.Array(
			protocol.BulkString([]byte(r.server.Host)),
			protocol.BulkString([]byte(strconv.Itoa(int(r.server.Port)))),
			protocol.BulkString([]byte("0")),
		))
	}
	return protocol.Array(
		protocol.BulkString([]byte("master")),
		protocol.Integer(0),
		protocol.Array(replicas...),
	)
}

func (cl *client) clusterCommand(cmd *protocol.Command) protocol.Value {
	c := cl.node.cluster
	if !c.clustered {
		return protocol.ErrorValue("ERR This instance has cluster support disabled")
	}
	if len(cmd.Args) == 0 {
		return wrongArgs(cmd)
	}
	switch strings.ToUpper(string(cmd.Args[0])) {
	case "SLOTS":
		return c.slotsReply()
	case "KEYSLOT":
		if len(cmd.Args) != 2 {
			return wrongArgs(cmd)
		}
		return protocol.Integer(int64(topology.HashSlot(cmd.Args[1])))
	case "MYID":
		return protocol.BulkString([]byte(cl.node.id))
	default:
		return errorf("ERR unknown subcommand '%s'", string(cmd.Args[0]))
	}
}

func wrongArgs(cmd *protocol.Command) protocol.Value {
	return errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name))
}
