package runtime

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	ouerrors "openusage.dev/openusage/pkg/errors"
	"openusage.dev/openusage/pkg/hostapi"
	"openusage.dev/openusage/pkg/plugin"
)

// Default timeouts for plugin calls.
const (
	DefaultCallTimeout       = 10 * time.Second
	defaultDeactivateTimeout = 2 * time.Second
	defaultCloseWait         = 5 * time.Second
)

// Options configures plugin runtimes.
type Options struct {
	// CallTimeout bounds every call into Lua, including loading the entry file.
	CallTimeout     time.Duration
	CallStackSize   int
	RegistryMaxSize int
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Runtime executes one loaded plugin.
type Runtime struct {
	plugin  *plugin.LoadedPlugin
	surface *hostapi.Surface
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	lastErr   error
	activated bool
	exec      *Executor
	ctx       context.Context
	cancel    context.CancelFunc

	busy atomic.Int32
}

// New creates an unloaded runtime for p.
func New(p *plugin.LoadedPlugin, surface *hostapi.Surface, opts Options) *Runtime {
	opts = opts.withDefaults()
	return &Runtime{
		plugin:  p,
		surface: surface,
		opts:    opts,
		logger:  opts.Logger.With("plugin", p.ID()),
		state:   StateUnloaded,
	}
}

// Plugin returns the plugin this runtime executes.
func (r *Runtime) Plugin() *plugin.LoadedPlugin {
	return r.plugin
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the fault that moved the runtime to StateError, if any.
func (r *Runtime) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Runtime) caller() hostapi.Caller {
	return hostapi.Caller{PluginID: r.plugin.ID(), Permissions: r.plugin.Permissions()}
}

// newCallContext derives the context for one call into Lua. It ends at the
// call timeout, when parent ends, or when the runtime is torn down.
func (r *Runtime) newCallContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, r.opts.CallTimeout)
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Activate loads the entry file into a fresh Lua state and calls the
// optional global activate(). A runtime can be activated once.
func (r *Runtime) Activate(ctx context.Context) error {
	r.mu.Lock()
	if r.activated {
		state := r.state
		r.mu.Unlock()
		return ouerrors.NewPluginError(r.plugin.ID(), "Activate", "runtime already used (state "+state.String()+")")
	}
	r.activated = true
	r.state = StateLoading

	entry := r.plugin.EntryPath()
	if info, err := os.Stat(entry); err != nil || !info.Mode().IsRegular() {
		fault := ouerrors.NewRuntimeFaultError(r.plugin.ID(), "load", "entry point "+entry+" is missing", err)
		r.state = StateError
		r.lastErr = fault
		r.mu.Unlock()
		r.logger.Warn("plugin entry point disappeared", "entry", entry)
		return fault
	}

	L := newLuaState(r.opts.CallStackSize, r.opts.RegistryMaxSize, r.opts.Logger, r.plugin.ID())
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.exec = NewExecutor(L, 0)
	r.mu.Unlock()

	go r.exec.Run()

	err := r.exec.Execute(ctx, func(L *lua.LState) error {
		r.installHost(L)

		callCtx, cancel := r.newCallContext(ctx)
		defer cancel()
		L.SetContext(callCtx)
		defer L.RemoveContext()

		if err := L.DoFile(entry); err != nil {
			return err
		}
		if fn, ok := L.GetGlobal("activate").(*lua.LFunction); ok {
			if _, err := callFunction(L, fn, r.contextTable(L)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.fault("load", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateLoading {
		return ouerrors.NewPluginError(r.plugin.ID(), "Activate", "deactivated while loading")
	}
	r.state = StateActive
	r.logger.Debug("plugin activated", "version", r.plugin.Version())
	return nil
}

// enter admits a call when the runtime is active and marks it busy.
func (r *Runtime) enter(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateActive:
		r.busy.Add(1)
		return nil
	case StateError:
		return ouerrors.NewPluginError(r.plugin.ID(), op, "plugin is disabled after a fault").WithCause(r.lastErr)
	default:
		return ouerrors.NewPluginError(r.plugin.ID(), op, "plugin is "+r.state.String())
	}
}

// Invoke calls the global Lua function fn with args and returns its results
// converted to Go values.
func (r *Runtime) Invoke(ctx context.Context, fn string, args ...any) ([]any, error) {
	if err := r.enter("Invoke"); err != nil {
		return nil, err
	}
	defer r.busy.Add(-1)

	var out []any
	err := r.exec.Execute(ctx, func(L *lua.LState) error {
		callCtx, cancel := r.newCallContext(ctx)
		defer cancel()
		L.SetContext(callCtx)
		defer L.RemoveContext()

		bridge := NewBridge(L)
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = bridge.ToLuaValue(a)
		}

		rets, err := callGlobal(L, fn, largs...)
		if err != nil {
			return err
		}
		results := make([]any, len(rets))
		for i, v := range rets {
			results[i] = bridge.ToGoValue(v)
		}
		out = results
		return nil
	})
	if err != nil {
		return nil, r.callError(ctx, fn, err)
	}
	return out, nil
}

// Probe calls the plugin's probe(ctx) function. Malformed output is turned
// into a single error badge; a fault returns the badge and the error.
func (r *Runtime) Probe(ctx context.Context) (ProbeOutput, error) {
	out := ProbeOutput{ProviderID: r.plugin.ID(), DisplayName: r.plugin.Name()}

	if err := r.enter("Probe"); err != nil {
		out.Lines = []MetricLine{ErrorBadge(err.Error())}
		return out, err
	}
	defer r.busy.Add(-1)

	var lines []MetricLine
	err := r.exec.Execute(ctx, func(L *lua.LState) error {
		callCtx, cancel := r.newCallContext(ctx)
		defer cancel()
		L.SetContext(callCtx)
		defer L.RemoveContext()

		rets, err := callGlobal(L, "probe", r.contextTable(L))
		if err != nil {
			return err
		}

		result := lua.LValue(lua.LNil)
		if len(rets) > 0 {
			result = rets[0]
		}
		parsed, perr := parseProbeResult(result)
		if perr != nil {
			r.logger.Warn("malformed probe output", "error", perr)
			parsed = []MetricLine{ErrorBadge("invalid probe output: " + perr.Error())}
		}
		lines = parsed
		return nil
	})
	if err != nil {
		err = r.callError(ctx, "probe", err)
		out.Lines = []MetricLine{ErrorBadge(err.Error())}
		return out, err
	}

	out.Lines = lines
	return out, nil
}

// contextTable is the ctx argument passed to activate() and probe().
func (r *Runtime) contextTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("plugin_id", lua.LString(r.plugin.ID()))
	t.RawSetString("plugin_version", lua.LString(r.plugin.Version()))
	t.RawSetString("api_version", lua.LString(hostapi.APIVersion))
	t.RawSetString("now", lua.LString(time.Now().UTC().Format(time.RFC3339)))
	t.RawSetString("host", L.GetGlobal("host"))
	return t
}

// callError classifies a failed call. Lua errors, panics and call timeouts
// fault the plugin; caller cancellation, teardown and missing functions do not.
func (r *Runtime) callError(ctx context.Context, fn string, err error) error {
	var notFound errFunctionNotFound
	switch {
	case ouerrors.As(err, &notFound):
		return ouerrors.NewPluginError(r.plugin.ID(), "Invoke", notFound.Error())
	case ouerrors.Is(err, ErrExecutorClosed):
		return ouerrors.NewPluginError(r.plugin.ID(), "Invoke", "plugin was stopped").WithCause(err)
	case r.ctx.Err() != nil:
		return ouerrors.NewPluginError(r.plugin.ID(), "Invoke", "plugin was deactivated during "+fn).WithCause(err)
	case ctx.Err() != nil:
		return ouerrors.Wrapf(ctx.Err(), "plugin %s: %s cancelled", r.plugin.ID(), fn)
	}
	return r.fault(fn, err)
}

// fault moves the runtime to StateError and releases its Lua state. It is
// safe to call from the executor goroutine.
func (r *Runtime) fault(op string, cause error) error {
	msg := cause.Error()
	var apiErr *lua.ApiError
	if ouerrors.As(cause, &apiErr) && apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	fault := ouerrors.NewRuntimeFaultError(r.plugin.ID(), op, msg, cause)

	r.mu.Lock()
	if r.state == StateUnloaded || r.state == StateError {
		r.mu.Unlock()
		return fault
	}
	r.state = StateError
	r.lastErr = fault
	exec, cancel := r.exec, r.cancel
	r.mu.Unlock()

	r.logger.Warn("plugin faulted", "operation", op, "error", msg)
	r.surface.Events().UnsubscribeAll(r.plugin.ID())
	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.Close()
	}
	return fault
}

// Deactivate tears the runtime down. It cancels any in-flight call, runs
// the optional global deactivate() when the plugin is idle, and closes the
// Lua state. It is idempotent and safe to call during an invocation.
func (r *Runtime) Deactivate() error {
	r.mu.Lock()
	prev := r.state
	if prev == StateUnloaded {
		r.mu.Unlock()
		return nil
	}
	r.state = StateUnloaded
	exec, cancel := r.exec, r.cancel
	r.mu.Unlock()

	r.surface.Events().UnsubscribeAll(r.plugin.ID())

	if prev == StateActive && r.busy.Load() == 0 && exec != nil {
		timeout := min(r.opts.CallTimeout, defaultDeactivateTimeout)
		ctx, done := context.WithTimeout(context.Background(), timeout)
		err := exec.Execute(ctx, func(L *lua.LState) error {
			fn, ok := L.GetGlobal("deactivate").(*lua.LFunction)
			if !ok {
				return nil
			}
			L.SetContext(ctx)
			defer L.RemoveContext()
			_, err := callFunction(L, fn)
			return err
		})
		done()
		if err != nil {
			r.logger.Warn("deactivate hook failed", "error", err)
		}
	}

	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.Close()
		ctx, done := context.WithTimeout(context.Background(), defaultCloseWait)
		defer done()
		if err := exec.Wait(ctx); err != nil {
			r.logger.Warn("lua state did not stop in time", "error", err)
		}
	}

	r.logger.Debug("plugin deactivated", "previous_state", prev.String())
	return nil
}
