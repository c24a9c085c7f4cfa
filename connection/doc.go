// Package connection manages one pipelined connection per server.
//
// Each Conn keeps a FIFO of items awaiting replies; the N-th item sent is
// answered by the N-th reply. Dialing and the AUTH/SELECT/READONLY
// handshake run in the background, and commands sent meanwhile are
// buffered and written once the connection is ready. Events are reported
// to a Handler, which is expected to forward them to the goroutine that
// owns the Set.
package connection
