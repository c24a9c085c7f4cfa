package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer provides efficient writing of RESP protocol messages
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteValue writes a RESP value to the output stream
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.WriteSimpleString(string(v.Data))
	case TypeError:
		return w.WriteError(string(v.Data))
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.WriteNullBulkString()
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.WriteNullArray()
		}
		return w.WriteArray(v.Array)
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
}

// WriteSimpleString writes a simple string
func (w *Writer) WriteSimpleString(s string) error {
	w.bw.WriteByte(byte(TypeSimpleString))
	w.bw.WriteString(s)
	return w.writeCRLF()
}

// WriteError writes an error message
func (w *Writer) WriteError(msg string) error {
	w.bw.WriteByte(byte(TypeError))
	w.bw.WriteString(msg)
	return w.writeCRLF()
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	w.bw.WriteByte(byte(TypeInteger))
	w.bw.WriteString(strconv.FormatInt(n, 10))
	return w.writeCRLF()
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	w.bw.WriteByte(byte(TypeBulkString))
	w.bw.WriteString(strconv.Itoa(len(data)))
	w.writeCRLF()
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteNullBulkString writes a null bulk string
func (w *Writer) WriteNullBulkString() error {
	w.bw.WriteString("$-1")
	return w.writeCRLF()
}

// WriteArray writes an array of values
func (w *Writer) WriteArray(values []Value) error {
	w.bw.WriteByte(byte(TypeArray))
	w.bw.WriteString(strconv.Itoa(len(values)))
	if err := w.writeCRLF(); err != nil {
		return err
	}

	for _, value := range values {
		if err := w.WriteValue(value); err != nil {
			return err
		}
	}
	return nil
}

// WriteNullArray writes a null array
func (w *Writer) WriteNullArray() error {
	w.bw.WriteString("*-1")
	return w.writeCRLF()
}

// WriteCommand writes a Redis command as a RESP array
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	_, err := w.bw.Write(AppendCommand(nil, cmd, stringsToBytes(args)...))
	return err
}

// WriteRaw writes pre-encoded bytes untouched.
func (w *Writer) WriteRaw(b []byte) error {
	_, err := w.bw.Write(b)
	return err
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}

func (w *Writer) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}

// AppendCommand serializes a command as a RESP array of bulk strings and
// appends it to dst.
func AppendCommand(dst []byte, name string, args ...[]byte) []byte {
	dst = append(dst, byte(TypeArray))
	dst = strconv.AppendInt(dst, int64(len(args)+1), 10)
	dst = append(dst, CRLF...)
	dst = appendBulk(dst, []byte(name))
	for _, arg := range args {
		dst = appendBulk(dst, arg)
	}
	return dst
}

func appendBulk(dst, b []byte) []byte {
	dst = append(dst, byte(TypeBulkString))
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, CRLF...)
	dst = append(dst, b...)
	return append(dst, CRLF...)
}

func stringsToBytes(args []string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}
