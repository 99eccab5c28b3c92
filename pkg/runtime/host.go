package runtime

import (
	"context"
	"strings"

	lua "github.com/yuin/gopher-lua"

	ouerrors "openusage.dev/openusage/pkg/errors"
	"openusage.dev/openusage/pkg/hostapi"
)

// Error kinds returned to Lua as the third value of a failed host call.
const (
	kindPermissionDenied = "permission_denied"
	kindNotSupported     = "not_supported"
	kindHostError        = "host_error"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// installHost builds the global host table. Every capability has a wrapper
// whether or not it was granted; permission is checked on invocation.
func (r *Runtime) installHost(L *lua.LState) {
	bridge := NewBridge(L)
	host := L.NewTable()

	for _, info := range hostapi.Capabilities() {
		if info.Kind != hostapi.KindCall || info.Name == hostapi.CapabilityLog {
			continue
		}
		group, fn, ok := strings.Cut(string(info.Name), ".")
		if !ok {
			host.RawSetString(group, L.NewFunction(r.capabilityFunc(bridge, info)))
			continue
		}
		groupTbl, _ := host.RawGetString(group).(*lua.LTable)
		if groupTbl == nil {
			groupTbl = L.NewTable()
			host.RawSetString(group, groupTbl)
		}
		groupTbl.RawSetString(fn, L.NewFunction(r.capabilityFunc(bridge, info)))
	}

	logTbl := L.NewTable()
	for _, level := range logLevels {
		logTbl.RawSetString(level, L.NewFunction(r.logFunc(level)))
	}
	host.RawSetString("log", logTbl)

	events := L.NewTable()
	events.RawSetString("on", L.NewFunction(r.eventsOn))
	host.RawSetString("events", events)

	host.RawSetString("invoke", L.NewFunction(r.invokeFunc(bridge)))
	host.RawSetString("api_version", lua.LString(hostapi.APIVersion))
	host.RawSetString("plugin_id", lua.LString(r.plugin.ID()))

	L.SetGlobal("host", host)
}

// callContext returns the context of the invocation currently running on L.
func (r *Runtime) callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return r.ctx
}

// capabilityFunc binds positional Lua arguments to the capability's
// parameter names.
func (r *Runtime) capabilityFunc(bridge *Bridge, info hostapi.CapabilityInfo) lua.LGFunction {
	return func(L *lua.LState) int {
		args := hostapi.Args{}
		for i, param := range info.Params {
			if i+1 > L.GetTop() {
				break
			}
			if v := bridge.ToGoValue(L.Get(i + 1)); v != nil {
				args[param] = v
			}
		}
		return r.pushResult(L, bridge, string(info.Name), args)
	}
}

func (r *Runtime) invokeFunc(bridge *Bridge) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		args := hostapi.Args{}
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			if m, ok := bridge.ToGoValue(tbl).(map[string]any); ok {
				args = m
			}
		}
		return r.pushResult(L, bridge, name, args)
	}
}

func (r *Runtime) logFunc(level string) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.ToStringMeta(L.Get(1)).String()
		bridge := NewBridge(L)
		return r.pushResult(L, bridge, string(hostapi.CapabilityLog), hostapi.Args{"level": level, "message": msg})
	}
}

// pushResult invokes the capability and pushes either its result or
// nil, message, kind.
func (r *Runtime) pushResult(L *lua.LState, bridge *Bridge, name string, args hostapi.Args) int {
	result, err := r.surface.Invoke(r.callContext(L), r.caller(), name, args)
	if err != nil {
		return pushError(L, err)
	}
	L.Push(bridge.ToLuaValue(result))
	return 1
}

func pushError(L *lua.LState, err error) int {
	kind := kindHostError
	switch {
	case ouerrors.IsPermissionDenied(err):
		kind = kindPermissionDenied
	case ouerrors.IsNotSupported(err):
		kind = kindNotSupported
	}
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	L.Push(lua.LString(kind))
	return 3
}

// eventsOn implements host.events.on(event, fn). The handler runs later on
// this plugin's executor; an uncaught error in it faults the plugin.
func (r *Runtime) eventsOn(L *lua.LState) int {
	event := L.CheckString(1)
	fn := L.CheckFunction(2)

	err := r.surface.Subscribe(r.caller(), event, func(_ context.Context, name string, payload map[string]any) {
		r.dispatchEvent(fn, name, payload)
	})
	if err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

func (r *Runtime) dispatchEvent(fn *lua.LFunction, event string, payload map[string]any) {
	if r.State() != StateActive {
		return
	}
	err := r.exec.Submit(func(L *lua.LState) error {
		if r.State() != StateActive {
			return nil
		}
		ctx, cancel := r.newCallContext(r.ctx)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()

		bridge := NewBridge(L)
		_, err := callFunction(L, fn, lua.LString(event), bridge.ToLuaValue(payload))
		return err
	}, func(err error) {
		if err != nil {
			r.fault("event "+event, err)
		}
	})
	if err != nil {
		r.logger.Warn("dropping event", "plugin", r.plugin.ID(), "event", event, "error", err)
	}
}
