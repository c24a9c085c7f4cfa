package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// CRLF is the Redis protocol line terminator
const CRLF = "\r\n"

const (
	// maxBulkSize matches the server's proto-max-bulk-len default.
	maxBulkSize  = 512 * 1024 * 1024
	maxArraySize = 1024 * 1024
)

// ErrProtocol marks a reply that violates RESP framing. Once it is
// returned the stream is out of sync and must be discarded.
var ErrProtocol = errors.New("protocol error")

// Reader decodes RESP values from a stream, one reply per ReadNext call.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 16*1024)}
}

// ReadNext reads the next RESP value from the stream.
//
// I/O failures are returned as-is; framing violations wrap ErrProtocol.
func (r *Reader) ReadNext() (Value, error) {
	header, err := r.line()
	if err != nil {
		return Value{}, err
	}
	if len(header) == 0 {
		return Value{}, fmt.Errorf("%w: empty reply header", ErrProtocol)
	}

	kind, rest := ValueType(header[0]), header[1:]
	switch kind {
	case TypeSimpleString, TypeError:
		return Value{Type: kind, Data: rest}, nil
	case TypeInteger:
		n, err := parseInt64(rest)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, rest)
		}
		return Value{Type: kind, Integer: n}, nil
	case TypeBulkString:
		n, err := length(kind, rest, maxBulkSize)
		if err != nil || n < 0 {
			return Value{Type: kind, IsNull: n < 0}, err
		}
		return r.bulk(n)
	case TypeArray:
		n, err := length(kind, rest, maxArraySize)
		if err != nil || n < 0 {
			return Value{Type: kind, IsNull: n < 0}, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = r.ReadNext(); err != nil {
				return Value{}, err
			}
		}
		return Value{Type: kind, Array: elems}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown RESP type %q (0x%02x)", ErrProtocol, header[0], header[0])
	}
}

// bulk reads a bulk payload of n bytes and its terminator.
func (r *Reader) bulk(n int64) (Value, error) {
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return Value{}, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Value{}, fmt.Errorf("%w: bulk string of %d bytes not terminated by CRLF", ErrProtocol, n)
	}
	return Value{Type: TypeBulkString, Data: buf[:n:n]}, nil
}

// line returns the next CRLF terminated line without its terminator.
func (r *Reader) line() ([]byte, error) {
	b, err := r.br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(b) < 2 || b[len(b)-2] != '\r' {
		return nil, fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return b[:len(b)-2], nil
}

// length parses an aggregate or bulk header. -1 denotes a null value and
// is returned as is.
func length(kind ValueType, b []byte, limit int64) (int64, error) {
	n, err := parseInt64(b)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: invalid %c length %q", ErrProtocol, kind, b)
	case n == -1:
		return -1, nil
	case n < 0 || n > limit:
		return 0, fmt.Errorf("%w: %c length %d out of range", ErrProtocol, kind, n)
	}
	return n, nil
}

// parseInt64 parses a base 10 integer without converting b to a string.
func parseInt64(b []byte) (int64, error) {
	neg := len(b) > 0 && b[0] == '-'
	if neg || len(b) > 0 && b[0] == '+' {
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
