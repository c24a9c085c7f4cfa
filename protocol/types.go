package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a parsed RESP value
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// SimpleString builds a simple string value.
func SimpleString(s string) Value {
	return Value{Type: TypeSimpleString, Data: []byte(s)}
}

// BulkString builds a bulk string value.
func BulkString(b []byte) Value {
	return Value{Type: TypeBulkString, Data: b}
}

// Integer builds an integer value.
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// ErrorValue builds an error value.
func ErrorValue(msg string) Value {
	return Value{Type: TypeError, Data: []byte(msg)}
}

// Null builds a null bulk string.
func Null() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// Array builds an array value.
func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Type: TypeArray, Array: values}
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString, TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// Bytes returns the byte representation of the value
func (v Value) Bytes() []byte {
	return v.Data
}

// Int returns the integer value. Bulk strings holding a number are parsed.
func (v Value) Int() (int64, error) {
	switch v.Type {
	case TypeInteger:
		return v.Integer, nil
	case TypeBulkString, TypeSimpleString:
		return parseInt64(v.Data)
	default:
		return 0, fmt.Errorf("value of type %c is not an integer", v.Type)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || len(v.Array) == 0 {
		return nil, fmt.Errorf("invalid command format")
	}

	cmd := &Command{
		Args: make([][]byte, len(v.Array)-1),
	}

	if v.Array[0].Type != TypeBulkString {
		return nil, fmt.Errorf("command name must be bulk string")
	}
	cmd.Name = strings.ToUpper(string(v.Array[0].Data))

	for i := 1; i < len(v.Array); i++ {
		if v.Array[i].Type != TypeBulkString {
			return nil, fmt.Errorf("command arguments must be bulk strings")
		}
		cmd.Args[i-1] = v.Array[i].Data
	}

	return cmd, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return c.Name + " " + strings.Join(args, " ")
}
