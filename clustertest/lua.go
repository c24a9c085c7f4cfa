package clustertest

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// evalScript runs a Lua script against store with the Redis KEYS/ARGV
// globals and a redis.call/redis.pcall subset.
func evalScript(store *Store, script string, keys, args []string) (interface{}, error) {
	L := lua.NewState()
	defer L.Close()

	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key))
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	call := func(L *lua.LState) (interface{}, error) {
		argc := L.GetTop()
		if argc == 0 {
			return nil, fmt.Errorf("wrong number of arguments for redis command")
		}
		argv := make([]string, argc-1)
		for i := 2; i <= argc; i++ {
			argv[i-2] = L.ToString(i)
		}
		return scriptCommand(store, strings.ToUpper(L.ToString(1)), argv)
	}

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call": func(L *lua.LState) int {
			res, err := call(L)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(toLua(L, res))
			return 1
		},
		"pcall": func(L *lua.LState) int {
			res, err := call(L)
			if err != nil {
				t := L.NewTable()
				t.RawSetString("err", lua.LString(err.Error()))
				L.Push(t)
				return 1
			}
			L.Push(toLua(L, res))
			return 1
		},
	})
	L.SetGlobal("redis", redisTable)

	if err := L.DoString(script); err != nil {
		return nil, fmt.Errorf("script execution error: %w", err)
	}
	return fromLua(L.Get(-1)), nil
}

func scriptCommand(store *Store, name string, args []string) (interface{}, error) {
	switch name {
	case "GET":
		if len(args) != 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'get' command")
		}
		v, ok := store.Get(args[0])
		if !ok {
			return nil, nil
		}
		return string(v), nil
	case "SET":
		if len(args) < 2 {
			return nil, fmt.Errorf("wrong number of arguments for 'set' command")
		}
		store.Set(args[0], []byte(args[1]))
		return "OK", nil
	case "DEL":
		return store.Del(args...), nil
	case "EXISTS":
		return store.Exists(args...), nil
	case "INCR":
		if len(args) != 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'incr' command")
		}
		return store.Incr(args[0], 1)
	default:
		return nil, fmt.Errorf("unknown or unsupported command: %s", name)
	}
}

func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LFalse
	case string:
		return lua.LString(v)
	case int64:
		return lua.LNumber(float64(v))
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

func fromLua(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LTable:
		var out []interface{}
		for i := 1; i <= v.Len(); i++ {
			out = append(out, fromLua(v.RawGetInt(i)))
		}
		return out
	default:
		return nil
	}
}
