package runtime

import (
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for plugin Lua states.
const (
	DefaultCallStackSize   = 256
	DefaultRegistryMaxSize = 256 * 1024
)

// State is the lifecycle state of a plugin runtime.
type State int

const (
	// StateUnloaded means no Lua state exists for the plugin.
	StateUnloaded State = iota
	// StateLoading means the entry file or activate() is running.
	StateLoading
	// StateActive means the plugin accepts invocations.
	StateActive
	// StateError means the plugin faulted and refuses invocations.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// dangerousGlobals can load code from disk or strings and bypass the sandbox.
var dangerousGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
}

// safeModules may be passed to require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// newLuaState creates a sandboxed Lua state. Only the base, table, string
// and math libraries are opened; io, os, debug and package are not.
func newLuaState(callStackSize, registryMaxSize int, logger *slog.Logger, pluginID string) *lua.LState {
	if callStackSize <= 0 {
		callStackSize = DefaultCallStackSize
	}
	if registryMaxSize <= 0 {
		registryMaxSize = DefaultRegistryMaxSize
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       callStackSize,
		RegistryMaxSize:     registryMaxSize,
		IncludeGoStackTrace: false,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range dangerousGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	installPrint(L, logger, pluginID)
	installRequire(L)

	return L
}

// installPrint redirects print to the host log at debug level.
func installPrint(L *lua.LState, logger *slog.Logger, pluginID string) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Debug(strings.Join(parts, "\t"), "plugin", pluginID, "source", "print")
		return 0
	}))
}

// installRequire replaces require with one that only returns the already
// opened safe libraries. Nothing is ever loaded from disk.
func installRequire(L *lua.LState) {
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))
}

// callGlobal calls a global Lua function in protected mode and returns its
// results. Missing functions are reported with errFunctionNotFound.
func callGlobal(L *lua.LState, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	fnVal := L.GetGlobal(fn)
	if fnVal == lua.LNil {
		return nil, errFunctionNotFound{name: fn}
	}
	if fnVal.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%q is not a function (got %s)", fn, fnVal.Type())
	}
	return callFunction(L, fnVal, args...)
}

func callFunction(L *lua.LState, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	stackTop := L.GetTop()

	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	nRet := L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = L.Get(stackTop + i + 1)
	}
	L.Pop(nRet)
	return results, nil
}

type errFunctionNotFound struct {
	name string
}

func (e errFunctionNotFound) Error() string {
	return fmt.Sprintf("function %q not found", e.name)
}
