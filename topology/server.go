package topology

import (
	"fmt"
	"net"
	"strconv"
)

// Server identifies a node by host and port. It is a comparable value type
// and is used directly as a map key.
type Server struct {
	Host string
	Port uint16
}

// NewServer creates a server identity.
func NewServer(host string, port uint16) Server {
	return Server{Host: host, Port: port}
}

// ParseServer parses "host:port". IPv6 hosts must be bracketed.
func ParseServer(addr string) (Server, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Server{}, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Server{}, fmt.Errorf("invalid port in server address %q", addr)
	}
	return Server{Host: host, Port: uint16(port)}, nil
}

// String returns the dialable "host:port" form.
func (s Server) String() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// IsZero reports whether s is the zero Server.
func (s Server) IsZero() bool {
	return s.Host == "" && s.Port == 0
}
