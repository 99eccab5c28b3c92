// Package runtime executes loaded plugins in isolated Lua states.
//
// Each activated plugin gets its own gopher-lua state owned by a dedicated
// goroutine (see Executor). Lua code never touches the host directly: the
// only bridge is the global "host" table, whose functions route through a
// hostapi.Surface gated by the plugin's manifest permissions.
//
// # Lifecycle
//
// A plugin moves through Unloaded → Loading → Active and ends in Error or
// Unloaded:
//
//	rt := runtime.New(loaded, surface, runtime.Options{})
//	err := rt.Activate(ctx)        // runs the entry file, then activate()
//	out, err := rt.Probe(ctx)      // calls probe(ctx)
//	err = rt.Deactivate()          // cancels in-flight work, closes the state
//
// Any uncaught Lua error, Go panic, or call timeout moves the plugin to Error.
// It is unsubscribed from host events and refuses further calls. Other
// plugins are unaffected since they share no Lua state.
//
// # Plugin API
//
// Inside Lua, host functions follow the capability names:
//
//	host.fs.exists(path)                      -> bool
//	host.fs.readText(path)                    -> string
//	host.keychain.readGenericPassword(svc)    -> string | nil
//	host.http.request({method=, url=, ...})   -> {status=, headers=, bodyText=}
//	host.json.query(doc, path)                -> value
//	host.json.set(doc, path, value)           -> string
//	host.env.get(name)                        -> string | nil
//	host.log.info(msg)  (also debug, warn, error)
//	host.events.on(event, fn)
//	host.invoke(name, argsTable)
//
// On failure a host function returns nil, an error message and an error kind
// ("permission_denied", "not_supported" or "host_error") instead of raising,
// so plugins can degrade without faulting.
package runtime
