package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/raniellyferreira/redis-replica-router/protocol"
	"github.com/raniellyferreira/redis-replica-router/topology"
)

// Dialer opens connections and runs the per-connection handshake.
type Dialer struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	TLS            *tls.Config

	// Username is optional; Password alone sends the legacy AUTH form.
	Username string
	Password string
	Database int
}

// ServerError is an error reply received during the handshake.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Dial connects to server and runs AUTH, SELECT and, when readOnly is set,
// READONLY. The returned reader is positioned after the handshake replies.
func (d *Dialer) Dial(ctx context.Context, server topology.Server, readOnly bool) (net.Conn, *protocol.Reader, error) {
	dialer := &net.Dialer{Timeout: d.ConnectTimeout}

	var conn net.Conn
	var err error
	if d.TLS != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: d.TLS}
		conn, err = td.DialContext(ctx, "tcp", server.String())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", server.String())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial failed: %w", err)
	}

	reader := protocol.NewReader(conn)
	if err := d.handshake(ctx, conn, reader, readOnly); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, reader, nil
}

func (d *Dialer) handshake(ctx context.Context, conn net.Conn, reader *protocol.Reader, readOnly bool) error {
	var cmds [][]string
	if d.Password != "" {
		if d.Username != "" {
			cmds = append(cmds, []string{"AUTH", d.Username, d.Password})
		} else {
			cmds = append(cmds, []string{"AUTH", d.Password})
		}
	}
	if d.Database != 0 {
		cmds = append(cmds, []string{"SELECT", strconv.Itoa(d.Database)})
	}
	if readOnly {
		cmds = append(cmds, []string{"READONLY"})
	}
	if len(cmds) == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	// Pipeline the handshake and read every reply.
	writer := protocol.NewWriter(conn)
	for _, cmd := range cmds {
		if err := writer.WriteCommand(cmd[0], cmd[1:]...); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("handshake write failed: %w", err)
	}

	var firstErr error
	for _, cmd := range cmds {
		resp, err := reader.ReadNext()
		if err != nil {
			return fmt.Errorf("handshake read failed: %w", err)
		}
		if resp.IsError() && firstErr == nil {
			firstErr = &ServerError{Command: cmd[0], Message: resp.Error()}
		}
	}
	return firstErr
}

// Exchange dials server, sends one command and returns its reply. It is
// used for discovery queries that must not interleave with routed traffic.
func (d *Dialer) Exchange(ctx context.Context, server topology.Server, name string, args ...string) (protocol.Value, error) {
	conn, reader, err := d.Dial(ctx, server, false)
	if err != nil {
		return protocol.Value{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	writer := protocol.NewWriter(conn)
	if err := writer.WriteCommand(name, args...); err != nil {
		return protocol.Value{}, err
	}
	if err := writer.Flush(); err != nil {
		return protocol.Value{}, fmt.Errorf("write failed: %w", err)
	}
	resp, err := reader.ReadNext()
	if err != nil {
		return protocol.Value{}, fmt.Errorf("read failed: %w", err)
	}
	if resp.IsError() {
		return resp, &ServerError{Command: name, Message: resp.Error()}
	}
	return resp, nil
}
