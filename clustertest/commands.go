package clustertest

import (
	"fmt"
	"strconv"

	"github.com/raniellyferreira/redis-replica-router/protocol"
)

type commandSpec struct {
	minArgs int
	write   bool
	keys    func(cmd *protocol.Command) []string
	run     func(store *Store, cmd *protocol.Command, keys []string) protocol.Value
}

func firstKey(cmd *protocol.Command) []string {
	return []string{string(cmd.Args[0])}
}

func allKeys(cmd *protocol.Command) []string {
	keys := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		keys[i] = string(a)
	}
	return keys
}

func noKeys(cmd *protocol.Command) []string { return nil }

var commandTable = map[string]commandSpec{
	"GET": {minArgs: 1, keys: firstKey, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		v, ok := s.Get(keys[0])
		if !ok {
			return protocol.Null()
		}
		return protocol.BulkString(v)
	}},
	"SET": {minArgs: 2, write: true, keys: firstKey, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		s.Set(keys[0], cmd.Args[1])
		return protocol.SimpleString("OK")
	}},
	"DEL": {minArgs: 1, write: true, keys: allKeys, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		return protocol.Integer(s.Del(keys...))
	}},
	"EXISTS": {minArgs: 1, keys: allKeys, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		return protocol.Integer(s.Exists(keys...))
	}},
	"INCR": {minArgs: 1, write: true, keys: firstKey, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		n, err := s.Incr(keys[0], 1)
		if err != nil {
			return protocol.ErrorValue("ERR value is not an integer or out of range")
		}
		return protocol.Integer(n)
	}},
	"INCRBY": {minArgs: 2, write: true, keys: firstKey, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		by, err := strconv.ParseInt(string(cmd.Args[1]), 10, 64)
		if err != nil {
			return protocol.ErrorValue("ERR value is not an integer or out of range")
		}
		n, err := s.Incr(keys[0], by)
		if err != nil {
			return protocol.ErrorValue("ERR value is not an integer or out of range")
		}
		return protocol.Integer(n)
	}},
	"DBSIZE": {keys: noKeys, run: func(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
		return protocol.Integer(int64(s.Len()))
	}},
	"EVAL": {minArgs: 2, write: true, keys: scriptKeys, run: runScript},
}

// scriptKeys returns the declared keys of EVAL script numkeys key...
func scriptKeys(cmd *protocol.Command) []string {
	n, err := strconv.Atoi(string(cmd.Args[1]))
	if err != nil || n < 0 || len(cmd.Args) < 2+n {
		return nil
	}
	keys := make([]string, n)
	for i := range keys {
		keys[i] = string(cmd.Args[2+i])
	}
	return keys
}

func runScript(s *Store, cmd *protocol.Command, keys []string) protocol.Value {
	n, err := strconv.Atoi(string(cmd.Args[1]))
	if err != nil {
		return protocol.ErrorValue("ERR value is not an integer or out of range")
	}
	if n < 0 || len(cmd.Args) < 2+n {
		return protocol.ErrorValue("ERR Number of keys can't be greater than number of args")
	}
	args := make([]string, 0, len(cmd.Args)-2-n)
	for _, a := range cmd.Args[2+n:] {
		args = append(args, string(a))
	}

	result, err := evalScript(s, string(cmd.Args[0]), keys, args)
	if err != nil {
		return protocol.ErrorValue(fmt.Sprintf("ERR %v", err))
	}
	return toValue(result)
}

func toValue(v interface{}) protocol.Value {
	switch v := v.(type) {
	case nil:
		return protocol.Null()
	case bool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.Null()
	case string:
		return protocol.BulkString([]byte(v))
	case int64:
		return protocol.Integer(v)
	case float64:
		return protocol.Integer(int64(v))
	case []interface{}:
		values := make([]protocol.Value, len(v))
		for i, item := range v {
			values[i] = toValue(item)
		}
		return protocol.Array(values...)
	default:
		return protocol.BulkString([]byte(fmt.Sprintf("%v", v)))
	}
}
